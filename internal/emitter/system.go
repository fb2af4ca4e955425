package emitter

// MrsNZCV encodes MRS Xt, NZCV, reading the raw host condition flags
// (N31/Z30/C29/V28) into rt. Most guest CCR splices read the flags bit
// by bit through CSEL instead (see decoder.emitNZCVToCCR); this stays
// useful wherever the whole register is wanted verbatim, e.g. FPSR.
func (b *Buffer) MrsNZCV(rt Reg) {
	if !validGPR(rt) {
		bug("MrsNZCV", "register out of range")
	}
	b.Emit(0xD53B4200 | uint32(rt))
}

// MsrNZCV encodes MSR NZCV, Xt — used when RTE/RTR restore the host
// flags from a guest SR value that was just flushed out of CC.
func (b *Buffer) MsrNZCV(rt Reg) {
	if !validGPR(rt) {
		bug("MsrNZCV", "register out of range")
	}
	b.Emit(0xD51B4200 | uint32(rt))
}

// Barrier kind for DMB/DSB; ISB always implies full-system ordering.
type Barrier uint8

const (
	BarrierDMB Barrier = iota
	BarrierDSB
	BarrierISB
)

// EmitBarrier appends the requested barrier instruction, full-system (SY)
// domain — spec.md §5's bus-PHY ordering guarantee.
func (b *Buffer) EmitBarrier(kind Barrier) {
	switch kind {
	case BarrierDMB:
		b.Emit(0xD5033FBF)
	case BarrierDSB:
		b.Emit(0xD5033F9F)
	case BarrierISB:
		b.Emit(0xD5033FDF)
	}
}

// DataCacheCleanToPoU encodes "DC CVAU, Xt" — clean a data-cache line
// by address to the point of unification, step (d) of the
// emit-then-flush sequence in spec.md §5.
func (b *Buffer) DataCacheCleanToPoU(rt Reg) {
	if !validGPR(rt) {
		bug("DataCacheCleanToPoU", "register out of range")
	}
	b.Emit(0xD50B7B20 | uint32(rt))
}

// InstructionCacheInvalidate encodes "IC IVAU, Xt" — invalidate an
// instruction-cache line by address, the companion half of spec.md
// §5's emit-then-flush sequence over the executable mirror.
func (b *Buffer) InstructionCacheInvalidate(rt Reg) {
	if !validGPR(rt) {
		bug("InstructionCacheInvalidate", "register out of range")
	}
	b.Emit(0xD50B7520 | uint32(rt))
}

// Nop encodes NOP.
func (b *Buffer) Nop() { b.Emit(0xD503201F) }
