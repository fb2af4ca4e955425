package regalloc

import "github.com/michalsc/Emu68-sub001/internal/emitter"

// ctxBaseReg is the host platform register holding the GuestState
// pointer for the core currently running; Dispatcher loads it once per
// entry into the run loop and it never changes for the lifetime of a
// Unit, so GetCTX only needs to copy it out of x18 the first time it
// is touched.
const ctxBaseReg emitter.Reg = 18

// GetCTX lazily materializes the guest-state base pointer into a
// scratch register, copying it out of x18 (ctxBaseReg) — spec.md
// §4.2's get_ctx. The result is cached in s.ctx for the
// remainder of the Unit.
func (s *State) GetCTX() emitter.Reg {
	if s.ctx.state == slotUnallocated {
		s.ctx.reg = s.AllocTemp()
		s.buf.AddReg(emitter.Size64, emitter.OpAdd, false, s.ctx.reg, ctxBaseReg, emitter.ZR)
		s.ctx.state = slotLoaded
	}
	return s.ctx.reg
}

// GetCCR lazily loads the guest SR's condition-code byte into a scratch
// register from GuestState, through the CTX pointer (spec.md §4.2's
// get_ccr). Subsequent calls reuse the cached register until flushed.
func (s *State) GetCCR() emitter.Reg {
	if s.ccr.state == slotUnallocated {
		ctx := s.GetCTX()
		s.ccr.reg = s.AllocTemp()
		s.buf.LoadStoreUnsignedOffset(emitter.Width16, emitter.OpLoadUnsigned, s.ccr.reg, ctx, uint32(offsetSR))
		s.ccr.state = slotLoaded
	}
	return s.ccr.reg
}

// ModifyCCR returns the same register as GetCCR, loading it first if
// the slot is unallocated, and marks the slot dirty, for opcodes that
// are about to overwrite some of the flags. Callers splice only the
// bits they redefine and FlushCCR stores the whole SR halfword, so the
// register always starts from GuestState's current SR.
func (s *State) ModifyCCR() emitter.Reg {
	s.GetCCR()
	s.ccr.state = slotDirty
	return s.ccr.reg
}

// StoreCCR installs reg as the CCR slot's register without re-reading
// it from GuestState, and marks it dirty. For opcodes whose condition
// codes aren't a direct NZCV splice (e.g. a literal CCR byte moved in
// from MOVE to CCR).
func (s *State) StoreCCR(reg emitter.Reg) {
	s.ccr.reg = reg
	s.ccr.state = slotDirty
}

// FlushCCR writes a dirty CC slot back to GuestState and frees its
// scratch register. A clean or unallocated slot is a no-op.
func (s *State) FlushCCR() {
	if s.ccr.state == slotDirty {
		ctx := s.GetCTX()
		s.buf.LoadStoreUnsignedOffset(emitter.Width16, emitter.OpStore, s.ccr.reg, ctx, uint32(offsetSR))
	}
	if s.ccr.state != slotUnallocated {
		s.FreeTemp(s.ccr.reg)
		s.ccr = lazySlot{}
	}
}

// GetFPCR / ModifyFPCR / FlushFPCR mirror the CCR trio for the host
// FPCR shadow copy kept in GuestState (spec.md §4.2).
func (s *State) GetFPCR() emitter.Reg {
	if s.fpcr.state == slotUnallocated {
		ctx := s.GetCTX()
		s.fpcr.reg = s.AllocTemp()
		s.buf.LoadStoreUnsignedOffset(emitter.Width32, emitter.OpLoadUnsigned, s.fpcr.reg, ctx, uint32(offsetFPCR))
		s.fpcr.state = slotLoaded
	}
	return s.fpcr.reg
}

func (s *State) ModifyFPCR() emitter.Reg {
	s.GetFPCR()
	s.fpcr.state = slotDirty
	return s.fpcr.reg
}

func (s *State) FlushFPCR() {
	if s.fpcr.state == slotDirty {
		ctx := s.GetCTX()
		s.buf.LoadStoreUnsignedOffset(emitter.Width32, emitter.OpStore, s.fpcr.reg, ctx, uint32(offsetFPCR))
	}
	if s.fpcr.state != slotUnallocated {
		s.FreeTemp(s.fpcr.reg)
		s.fpcr = lazySlot{}
	}
}

// GetFPSR / ModifyFPSR / FlushFPSR mirror the same pattern for FPSR.
func (s *State) GetFPSR() emitter.Reg {
	if s.fpsr.state == slotUnallocated {
		ctx := s.GetCTX()
		s.fpsr.reg = s.AllocTemp()
		s.buf.LoadStoreUnsignedOffset(emitter.Width32, emitter.OpLoadUnsigned, s.fpsr.reg, ctx, uint32(offsetFPSR))
		s.fpsr.state = slotLoaded
	}
	return s.fpsr.reg
}

func (s *State) ModifyFPSR() emitter.Reg {
	s.GetFPSR()
	s.fpsr.state = slotDirty
	return s.fpsr.reg
}

func (s *State) FlushFPSR() {
	if s.fpsr.state == slotDirty {
		ctx := s.GetCTX()
		s.buf.LoadStoreUnsignedOffset(emitter.Width32, emitter.OpStore, s.fpsr.reg, ctx, uint32(offsetFPSR))
	}
	if s.fpsr.state != slotUnallocated {
		s.FreeTemp(s.fpsr.reg)
		s.fpsr = lazySlot{}
	}
}

// FlushAll flushes CC, FPCR and FPSR in turn and releases CTX —
// UnitBuilder calls this once at every exit point of a Unit (spec.md
// §4.4's epilogue step (a)).
func (s *State) FlushAll() {
	s.FlushCCR()
	s.FlushFPCR()
	s.FlushFPSR()
	if s.ctx.state != slotUnallocated {
		s.FreeTemp(s.ctx.reg)
		s.ctx = lazySlot{}
	}
}

// LoadGPRRegisters loads every guest D/A register from GuestState into
// its statically bound host register. Unlike
// original_source/RegisterAllocator64.c, where a chain of translated
// Units branches directly from one to the next and so keeps x0-x15
// resident across the whole chain, this port ends every Unit and
// returns to the dispatcher (see internal/unit's store-PC-and-end
// strategy) — a boundary Go's own calling convention is free to
// clobber x0-x15 across. Every Unit therefore reloads the full
// register file at entry; FlushGPRRegisters is its exit-time mirror.
func (s *State) LoadGPRRegisters() {
	ctx := s.GetCTX()
	for n := uint8(0); n < 8; n++ {
		s.buf.LoadStoreUnsignedOffset(emitter.Width32, emitter.OpLoadUnsigned, MapGuestD(n), ctx, uint32(offsetD)+uint32(n)*4)
		s.buf.LoadStoreUnsignedOffset(emitter.Width32, emitter.OpLoadUnsigned, MapGuestA(n), ctx, uint32(offsetA)+uint32(n)*4)
	}
}

// LoadFPRegisters mirrors LoadGPRRegisters for the statically bound
// FP0-FP7 -> d8-d15 mapping, using the FPU load helper emitter.fpu.go
// exposes for GuestState.FP's float64 slots (spec.md §1's non-goal of
// 80-bit extended precision: FP is emulated as IEEE-754 double).
func (s *State) LoadFPRegisters() {
	ctx := s.GetCTX()
	for n := uint8(0); n < 8; n++ {
		s.buf.FPLoadStoreUnsignedOffset(emitter.FPPrecDouble, true, FReg[n], ctx, uint32(offsetFP)+uint32(n)*8)
	}
}

// FlushGPRRegisters writes back every dirty static D/A register to
// GuestState through CTX — the other half of the epilogue, for the
// registers that do not go through the lazy-slot machinery because
// they are statically bound for the whole Unit.
func (s *State) FlushGPRRegisters() {
	ctx := s.GetCTX()
	for n := uint8(0); n < 8; n++ {
		if s.dDirty[n] {
			s.buf.LoadStoreUnsignedOffset(emitter.Width32, emitter.OpStore, MapGuestD(n), ctx, uint32(offsetD)+uint32(n)*4)
		}
		if s.aDirty[n] {
			s.buf.LoadStoreUnsignedOffset(emitter.Width32, emitter.OpStore, MapGuestA(n), ctx, uint32(offsetA)+uint32(n)*4)
		}
	}
}

// FlushFPRegisters mirrors FlushGPRRegisters for the statically bound
// FP0-FP7 guest registers.
func (s *State) FlushFPRegisters() {
	ctx := s.GetCTX()
	for n := uint8(0); n < 8; n++ {
		if s.fpDirty[n] {
			s.buf.FPLoadStoreUnsignedOffset(emitter.FPPrecDouble, false, FReg[n], ctx, uint32(offsetFP)+uint32(n)*8)
		}
	}
}
