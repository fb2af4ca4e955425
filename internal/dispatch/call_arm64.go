//go:build arm64

package dispatch

// callUnit transfers control to the machine code at entry (a Unit's
// HostEntry), passing ctx (a GuestState pointer) in x18. Implemented
// in call_arm64.s; see that file's comment for why no corpus example
// grounds it.
//
//go:noescape
func callUnit(entry, ctx uintptr)
