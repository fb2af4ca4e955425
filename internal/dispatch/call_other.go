//go:build !arm64

package dispatch

// callUnit has no implementation outside arm64: the bytes icache.Heap
// hands Dispatcher are AArch64 machine code and cannot run on any
// other host architecture. Kept so the rest of the module still builds
// and tests on a development machine of a different GOARCH.
func callUnit(entry, ctx uintptr) {
	panic("dispatch: callUnit requires GOARCH=arm64")
}
