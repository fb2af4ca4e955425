//go:build !(arm64 && linux)

package fault

import "errors"

// Install is unavailable outside linux/arm64: the ucontext layout this
// package decodes, and the machine code whose faults it reflects, are
// both specific to that target. Kept so the rest of the module still
// builds and tests on a development machine of a different platform.
func Install(h *Handler) error {
	return errors.New("fault: Install requires GOOS=linux GOARCH=arm64")
}

// Remove is the no-op counterpart of Install on unsupported platforms.
func Remove() error { return nil }
