//go:build arm64 && linux

package fault

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// trampolineAddr is implemented in sigtramp_arm64.s; it returns the
// entry address of the assembly handler the kernel calls back into
// directly, bypassing Go's own signal dispatch entirely.
func trampolineAddr() uintptr

// goHandleSignal is called from sigtrampHandler with the raw
// ucontext_t pointer the kernel handed the signal. It is exported to
// assembly by name (no //export needed; BL ·goHandleSignal(SB)
// resolves against this package's symbol table directly) rather than
// through cgo, since nothing here crosses the cgo boundary.
//
//go:nosplit
func goHandleSignal(ctx uintptr) {
	h, _ := installedHandler.Load().(*Handler)
	if h == nil {
		return
	}
	h.Handle((*ucontextCtx)(unsafe.Pointer(ctx)))
}

// ucontextCtx adapts the kernel's arm64 ucontext layout to the
// Context interface fault.go's decode/dispatch logic consumes.
// Matches golang.org/x/sys/unix's Ucontext/Sigcontext field layout for
// linux/arm64: Mcontext carries Fault_address, the 31-entry Regs
// array, Sp, Pc and Pstate in that order, identical to the kernel's
// struct sigcontext.
type ucontextCtx unix.Ucontext

func (c *ucontextCtx) raw() *unix.Ucontext { return (*unix.Ucontext)(c) }

func (c *ucontextCtx) FaultAddr() uint64 { return c.raw().Mcontext.Fault_address }

func (c *ucontextCtx) PC() uint64 { return c.raw().Mcontext.Pc }

func (c *ucontextCtx) SetPC(v uint64) { c.raw().Mcontext.Pc = v }

func (c *ucontextCtx) InstructionWord() uint32 {
	return *(*uint32)(unsafe.Pointer(uintptr(c.raw().Mcontext.Pc)))
}

// GPR indexes the saved x0-x30 register file. x31 (the zero
// register/SP depending on context) never appears as an Rt/Rn/Rm field
// in any encoding Decode recognizes, so it is intentionally
// unreachable here.
func (c *ucontextCtx) GPR(n uint8) uint64 {
	if n == 31 {
		return 0
	}
	return c.raw().Mcontext.Regs[n]
}

func (c *ucontextCtx) SetGPR(n uint8, v uint64) {
	if n == 31 {
		return
	}
	c.raw().Mcontext.Regs[n] = v
}

// installedHandler lets goHandleSignal reach the installed Handler without
// a lock: Install only ever runs once at startup, long before any
// fault can occur, and Handle itself runs entirely on the signal stack
// of whichever thread faulted.
var installedHandler atomic.Value

// Install registers h to receive SIGSEGV and SIGBUS via a direct
// sa_sigaction handler, replacing Go's own default crash-and-dump
// behavior for these two signals. SA_SIGINFO is required so the
// handler receives the ucontext this package decodes; SA_ONSTACK is
// deliberately not requested since the faulting goroutine's own stack
// is exactly where spec.md's dispatch loop expects control to resume.
func Install(h *Handler) error {
	installedHandler.Store(h)
	var act unix.Sigaction
	act.Handler = trampolineAddr()
	act.Flags = unix.SA_SIGINFO | unix.SA_RESTART
	if err := unix.Sigaction(unix.SIGSEGV, &act, nil); err != nil {
		return err
	}
	return unix.Sigaction(unix.SIGBUS, &act, nil)
}

// Remove restores the default disposition for SIGSEGV/SIGBUS.
func Remove() error {
	installedHandler.Store((*Handler)(nil))
	var act unix.Sigaction
	act.Handler = uintptr(unix.SIG_DFL)
	if err := unix.Sigaction(unix.SIGSEGV, &act, nil); err != nil {
		return err
	}
	return unix.Sigaction(unix.SIGBUS, &act, nil)
}
