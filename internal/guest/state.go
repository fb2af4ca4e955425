// Package guest defines the in-memory mirror of 68000-family architectural
// state that every other core component reads and writes: integer and
// floating-point registers, the status register, the three stack
// pointers, and the handful of fields that exist only to let other host
// cores post pending-interrupt notifications without taking a lock.
package guest

import "sync/atomic"

// CCR bit positions within SR, matching the 68000 hardware layout.
const (
	CCR_C = 1 << 0
	CCR_V = 1 << 1
	CCR_Z = 1 << 2
	CCR_N = 1 << 3
	CCR_X = 1 << 4
)

// SR bit positions above the CCR byte.
const (
	SR_IPM0 = 1 << 8
	SR_IPM1 = 1 << 9
	SR_IPM2 = 1 << 10
	SR_M    = 1 << 12 // master/interrupt stack selector
	SR_S    = 1 << 13 // supervisor mode
	SR_T0   = 1 << 14
	SR_T1   = 1 << 15

	srIPMShift = 8
	srIPMMask  = 0x7
)

// StackMode selects which of USP/ISP/MSP is architecturally active as A7.
type StackMode int

const (
	StackUser StackMode = iota
	StackInterrupt
	StackMaster
)

// State is the host mirror of one 68000-family CPU's architectural
// register file. Integer and address registers are stored in host byte
// order (not guest big-endian): every load/store that crosses the
// guest/host boundary goes through BusBackend, which performs the
// byte swap, so State itself never needs one.
type State struct {
	D [8]uint32
	A [8]uint32
	PC uint32
	SR uint16

	USP uint32
	ISP uint32
	MSP uint32

	FP   [8]float64
	FPCR uint32
	FPSR uint32
	FPIAR uint32

	VBR   uint32
	CACR  uint32

	// InsnCount is the cumulative executed-instruction counter
	// exposed to the guest as INSN_COUNT (spec.md §6).
	InsnCount uint64

	// pendingBus, pendingIRQ and pendingSError are written by other
	// host cores via atomic stores only; core 0 reads them with
	// atomic loads at each dispatch boundary (spec.md §5).
	pendingBus    atomic.Uint32 // incoming bus IPL, 0..7
	pendingIRQ    atomic.Uint32 // ARM-originated pseudo-IPL, 0..7
	pendingSError atomic.Bool
}

// New returns a State with PC and SR zeroed (reset vector fetch is the
// external loader's job, per spec.md §6).
func New() *State {
	return &State{}
}

// CCR returns the five condition-code bits packed as spec.md's CCR byte.
func (s *State) CCR() uint8 { return uint8(s.SR & 0x1f) }

// SetCCR replaces the five condition-code bits, leaving the rest of SR.
func (s *State) SetCCR(ccr uint8) {
	s.SR = (s.SR &^ 0x1f) | uint16(ccr&0x1f)
}

// Supervisor reports whether the guest is currently in supervisor mode.
func (s *State) Supervisor() bool { return s.SR&SR_S != 0 }

// IPM returns the interrupt priority mask currently in SR (0..7).
func (s *State) IPM() uint8 { return uint8((s.SR >> srIPMShift) & srIPMMask) }

// SetIPM rewrites the interrupt priority mask field of SR.
func (s *State) SetIPM(level uint8) {
	s.SR = (s.SR &^ (srIPMMask << srIPMShift)) | (uint16(level&srIPMMask) << srIPMShift)
}

// ActiveStackMode reports which physical stack pointer backs A7 right now.
func (s *State) ActiveStackMode() StackMode {
	if !s.Supervisor() {
		return StackUser
	}
	if s.SR&SR_M != 0 {
		return StackMaster
	}
	return StackInterrupt
}

// A7 returns the value of the currently active stack pointer.
func (s *State) A7() uint32 {
	switch s.ActiveStackMode() {
	case StackMaster:
		return s.MSP
	case StackInterrupt:
		return s.ISP
	default:
		return s.USP
	}
}

// SetA7 updates the currently active stack pointer.
func (s *State) SetA7(v uint32) {
	switch s.ActiveStackMode() {
	case StackMaster:
		s.MSP = v
	case StackInterrupt:
		s.ISP = v
	default:
		s.USP = v
	}
}

// PostBusIRQ is called from the housekeeper core (spec.md §5) to record
// the interrupt level currently asserted on the physical bus.
func (s *State) PostBusIRQ(level uint8) { s.pendingBus.Store(uint32(level)) }

// PostARMIRQ is called from an ARM-side interrupt vector to record a
// pseudo-IPL originated on the host rather than the guest bus.
func (s *State) PostARMIRQ(level uint8) { s.pendingIRQ.Store(uint32(level)) }

// PostSError is called from the ARM SError vector; spec.md §4.6.1 maps
// this unconditionally to guest IPL 7.
func (s *State) PostSError() { s.pendingSError.Store(true) }

// PendingSummary reports whether any interrupt source currently has a
// nonzero level or SError pending, the single flag the dispatcher tests
// once per iteration before deciding whether to examine each source.
func (s *State) PendingSummary() bool {
	return s.pendingBus.Load() != 0 || s.pendingIRQ.Load() != 0 || s.pendingSError.Load()
}

// InterruptSource identifies which transport carried the currently
// selected interrupt level, preserved per spec.md §9's open question
// rather than collapsed into a single integer.
type InterruptSource int

const (
	SourceNone InterruptSource = iota
	SourceGuestBus
	SourceGpio
	SourceSerror
)

// SelectInterrupt implements the "highest level wins" tie-break of
// spec.md §4.6.1: SError is normalized to level 7 and wins any tie
// against a same-level GPIO/bus source because it is sampled last.
func (s *State) SelectInterrupt() (level uint8, src InterruptSource) {
	bus := uint8(s.pendingBus.Load())
	irq := uint8(s.pendingIRQ.Load())
	level, src = 0, SourceNone
	if bus > level {
		level, src = bus, SourceGuestBus
	}
	if irq > level {
		level, src = irq, SourceGpio
	}
	if s.pendingSError.Load() {
		level, src = 7, SourceSerror
	}
	return level, src
}

// ClearInterrupt drops the pending indicator for the source that was
// just taken, so a level-triggered source must be re-asserted by its
// owning core to fire again.
func (s *State) ClearInterrupt(src InterruptSource) {
	switch src {
	case SourceGuestBus:
		s.pendingBus.Store(0)
	case SourceGpio:
		s.pendingIRQ.Store(0)
	case SourceSerror:
		s.pendingSError.Store(false)
	}
}
