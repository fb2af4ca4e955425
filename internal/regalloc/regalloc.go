// Package regalloc maps guest 68k registers onto fixed host AArch64
// registers and manages the small pool of transient scratch registers
// the Decoder needs for addressing-mode materialization and the lazily
// loaded condition-code / context / FPU-control slots, per spec.md §4.2.
//
// Guest D0-D7/A0-A7/FP0-FP7 are statically bound to fixed host
// registers for the whole lifetime of a Unit — there is no spill/reload
// of these, matching original_source/RegisterAllocator64.c's 1:1 FPU
// mapping (FP0-FP7 -> d8-d15) and the disabled "#if 0" LRU allocator
// spec.md §9 says to leave disabled.
package regalloc

import (
	"unsafe"

	"github.com/michalsc/Emu68-sub001/internal/emitter"
	"github.com/michalsc/Emu68-sub001/internal/guest"
)

// Static guest-register bindings. D0-D7 and A0-A7 occupy x0-x15 so the
// Decoder can address them without indirection; FP0-FP7 occupy d8-d15,
// the AAPCS callee-saved FP registers, the same choice
// RegisterAllocator64.c makes.
var (
	DReg = [8]emitter.Reg{emitter.R0, emitter.R1, emitter.R2, emitter.R3, emitter.R4, emitter.R5, emitter.R6, emitter.R7}
	AReg = [8]emitter.Reg{emitter.R8, emitter.R9, emitter.R10, emitter.R11, emitter.R12, emitter.R13, emitter.R14, emitter.R15}
	FReg = [8]emitter.FReg{8, 9, 10, 11, 12, 13, 14, 15}
)

// tempPool lists the host GPRs available for transient allocation, in
// ascending preference order: alloc_temp always hands out the
// lowest-numbered free one (spec.md §4.2). x18 is excluded — it is the
// host's platform register, which holds the GuestState pointer the
// lazy CC/CTX/FPCR/FPSR slots below are loaded through. x29/x30 are
// the frame pointer and link register, reserved for Unit linkage.
var tempPool = [12]emitter.Reg{
	16, 17, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28,
}

// CalleeSaved reports whether host GPR r is AAPCS callee-saved: true
// for x19-x28 only (it returns false for x29, x30 and sp). The guest D/A
// registers live in x0-x15, none of which is callee-saved. UnitBuilder's
// epilogue does not consult this predicate: it writes back every dirty
// D/A register through FlushGPRRegisters. This is the restored
// distinction from original_source/RegisterAllocator64.c's split
// between the scratch pool and the callee-saved set.
func CalleeSaved(r emitter.Reg) bool {
	return r >= 19 && r <= 28
}

// slotState is the three-state lifecycle spec.md §3 describes for CC,
// CTX, FPCR and FPSR: unallocated, loaded (clean), or loaded+dirty.
type slotState uint8

const (
	slotUnallocated slotState = iota
	slotLoaded
	slotDirty
)

// lazySlot tracks one of the lazily-materialized logical values (CC,
// CTX, FPCR, FPSR), each of which occupies one transient register once
// touched.
type lazySlot struct {
	state slotState
	reg   emitter.Reg
	// offset is the byte offset of this field within GuestState, as
	// seen through the CTX pointer.
	offset int32
}

// State is the per-Unit register allocator context (spec.md's
// RegAllocState), rebuilt fresh for every Unit — it carries no
// state across Units.
type State struct {
	buf *emitter.Buffer

	tempUsed [12]bool
	changed  uint16 // bitmask of temps touched since the last ClearChangedMask, mirrors RA_GetChangedMask

	ccr  lazySlot
	ctx  lazySlot
	fpcr lazySlot
	fpsr lazySlot

	// fpDirty/fpLoaded track guest FP0-FP7 independently of the
	// temp pool since they are statically bound, not lazily loaded;
	// a register is "loaded" once its value has been materialized
	// from GuestState and "dirty" once code has written to it.
	fpLoaded [8]bool
	fpDirty  [8]bool

	// dReg/aReg dirty tracking, used by UnitBuilder's epilogue to
	// decide which guest integer registers need writing back.
	dDirty [8]bool
	aDirty [8]bool
}

// GuestState field byte offsets, computed from the real struct layout
// rather than hand-derived, the way a translator poking at host memory
// through a thread-pointer-relative load must: a hand-kept constant
// silently rots the first time a field is added to guest.State.
var (
	offsetD    = int32(unsafe.Offsetof(guest.State{}.D))
	offsetA    = int32(unsafe.Offsetof(guest.State{}.A))
	offsetFP   = int32(unsafe.Offsetof(guest.State{}.FP))
	offsetPC   = int32(unsafe.Offsetof(guest.State{}.PC))
	offsetSR   = int32(unsafe.Offsetof(guest.State{}.SR))
	offsetFPCR = int32(unsafe.Offsetof(guest.State{}.FPCR))
	offsetFPSR = int32(unsafe.Offsetof(guest.State{}.FPSR))
)

// OffsetPC returns GuestState.PC's byte offset, for Decoder code that
// stores a computed branch target directly rather than through one of
// the lazy-slot accessors above.
func OffsetPC() int32 { return offsetPC }

// New returns a fresh State for a Unit being translated into buf.
func New(buf *emitter.Buffer) *State {
	return &State{buf: buf}
}

// MapGuestD returns the host GPR statically bound to guest D(n).
func MapGuestD(n uint8) emitter.Reg { return DReg[n&7] }

// MapGuestA returns the host GPR statically bound to guest A(n).
func MapGuestA(n uint8) emitter.Reg { return AReg[n&7] }

// MapGuestFP returns the host FP register statically bound to guest FP(n).
func MapGuestFP(n uint8) emitter.FReg { return FReg[n&7] }

// MarkDDirty/MarkADirty record that a static guest register now holds
// a value that must be visible if this Unit exits before an explicit
// flush — in this design D/A registers ARE GuestState (x0-x15 are
// live for the Unit's duration), so these simply record which ones the
// epilogue must consider dirty at all (spec.md §4.4 epilogue step (b)).
func (s *State) MarkDDirty(n uint8)  { s.dDirty[n&7] = true }
func (s *State) MarkADirty(n uint8)  { s.aDirty[n&7] = true }
func (s *State) DDirty(n uint8) bool { return s.dDirty[n&7] }
func (s *State) ADirty(n uint8) bool { return s.aDirty[n&7] }

// MapGuestFPForWrite marks guest FP(n) dirty without emitting a load —
// the RA_MapFPURegisterForWrite pattern from RegisterAllocator64.c,
// used when an opcode is about to fully overwrite the register.
func (s *State) MapGuestFPForWrite(n uint8) emitter.FReg {
	n &= 7
	s.fpLoaded[n] = true
	s.fpDirty[n] = true
	return FReg[n]
}

// MapGuestFPForRead marks guest FP(n) loaded (it always is, statically)
// and returns its host register; present for symmetry with the write
// path and to make read-only call sites self-documenting.
func (s *State) MapGuestFPForRead(n uint8) emitter.FReg {
	s.fpLoaded[n&7] = true
	return FReg[n&7]
}

// SetFPDirty marks guest FP(n) dirty after an in-place update.
func (s *State) SetFPDirty(n uint8) { s.fpDirty[n&7] = true }

// FPDirty reports whether guest FP(n) needs writing back at epilogue time.
func (s *State) FPDirty(n uint8) bool { return s.fpDirty[n&7] }

// AllocTemp reserves the lowest-numbered free scratch register,
// flushing FPCR, FPSR, then CC (in that order) if the pool is exhausted —
// spec.md §4.2's allocation policy. A further failure is a hard
// translator-bug panic.
func (s *State) AllocTemp() emitter.Reg {
	if r, ok := s.tryAlloc(); ok {
		return r
	}
	s.FlushFPCR()
	if r, ok := s.tryAlloc(); ok {
		return r
	}
	s.FlushFPSR()
	if r, ok := s.tryAlloc(); ok {
		return r
	}
	s.FlushCCR()
	if r, ok := s.tryAlloc(); ok {
		return r
	}
	panic("regalloc: temp pool exhausted after flushing CC/FPCR/FPSR (translator bug)")
}

func (s *State) tryAlloc() (emitter.Reg, bool) {
	for i, used := range s.tempUsed {
		if !used {
			s.tempUsed[i] = true
			s.changed |= 1 << i
			return tempPool[i], true
		}
	}
	return 0, false
}

// FreeTemp releases a register obtained from AllocTemp.
func (s *State) FreeTemp(r emitter.Reg) {
	for i, tr := range tempPool {
		if tr == r {
			s.tempUsed[i] = false
			return
		}
	}
}

// ChangedMask returns the set of temp-pool slots touched since the
// last call to ClearChangedMask, mirroring RA_GetChangedMask/
// RA_ClearChangedMask from original_source/RegisterAllocator64.c.
func (s *State) ChangedMask() uint16 { return s.changed }
func (s *State) ClearChangedMask()   { s.changed = 0 }

// Buf returns the instruction buffer this State is emitting into, for
// the Decoder's addressing-mode helpers that need to append
// instructions directly without going through a State method for
// every single opcode.
func (s *State) Buf() *emitter.Buffer { return s.buf }

// EmitAddImm32 emits dst = src + imm, choosing the immediate form when
// imm fits an AArch64 12-bit immediate and falling back to a
// synthesized constant through a temp register otherwise. Used for
// address-register pre-decrement/post-increment and d16(An)-style
// displacement addressing.
func (s *State) EmitAddImm32(dst, src emitter.Reg, imm int32) {
	if imm >= 0 && imm <= 0xfff {
		s.buf.AddImm(emitter.Size64, emitter.OpAdd, false, dst, src, uint16(imm), false)
		return
	}
	if imm < 0 && -imm <= 0xfff {
		s.buf.AddImm(emitter.Size64, emitter.OpSub, false, dst, src, uint16(-imm), false)
		return
	}
	tmp := s.AllocTemp()
	s.buf.MovImm64(emitter.Size64, tmp, uint64(int64(imm)))
	s.buf.AddReg(emitter.Size64, emitter.OpAdd, false, dst, src, tmp)
	s.FreeTemp(tmp)
}

// CopyFromGuestD returns a transient register holding a fresh copy of
// guest D(n), for destructive temporaries the Decoder needs without
// disturbing the statically-bound original (spec.md §4.2).
func (s *State) CopyFromGuestD(n uint8) emitter.Reg {
	tmp := s.AllocTemp()
	s.buf.AddReg(emitter.Size32, emitter.OpAdd, false, tmp, MapGuestD(n), emitter.ZR)
	return tmp
}
