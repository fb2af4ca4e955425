package emitter

// Width is the access width of a load/store: 8, 16, 32 or 64 bits,
// numbered as log2 of the byte count. There is no 16-byte member.
type Width uint8

const (
	Width8 Width = iota
	Width16
	Width32
	Width64
)

// sizeBits returns the size(2) field for the unsigned-offset/pre/post
// index load-store encodings, for integer (non-FP) accesses.
func (w Width) sizeBits() uint32 {
	switch w {
	case Width8:
		return 0b00
	case Width16:
		return 0b01
	case Width32:
		return 0b10
	default:
		return 0b11
	}
}

// LoadStoreOp selects load vs. store and, for loads narrower than the
// register width, zero- vs. sign-extension — the "opc" field.
type LoadStoreOp uint8

const (
	OpStore     LoadStoreOp = 0b00
	OpLoadUnsigned LoadStoreOp = 0b01
	OpLoadSigned64 LoadStoreOp = 0b10 // only valid for 8/16/32-bit widths, loads into X
	OpLoadSigned32 LoadStoreOp = 0b11 // only valid for 8/16-bit widths, loads into W
)

// LoadStoreUnsignedOffset encodes the "unsigned offset" addressing mode:
// LDR/STR Rt, [Rn, #imm12*scale]. imm12 is pre-division by the element
// size, matching spec.md §4.1's "scaled offsets divide the logical byte
// offset by the element size before encoding".
func (b *Buffer) LoadStoreUnsignedOffset(w Width, op LoadStoreOp, rt, rn Reg, byteOffset uint32) {
	if !validGPR(rt) || !validGPR(rn) {
		bug("LoadStoreUnsignedOffset", "register out of range")
	}
	scale := uint32(1) << w.sizeBits()
	if byteOffset%scale != 0 {
		bug("LoadStoreUnsignedOffset", "offset %d not aligned to scale %d", byteOffset, scale)
	}
	imm12 := byteOffset / scale
	if imm12 > 0xfff {
		bug("LoadStoreUnsignedOffset", "scaled offset %d exceeds imm12 range", imm12)
	}
	word := w.sizeBits()<<30 | 0b111<<27 | 0b01<<24 | uint32(op)<<22 | imm12<<10 | uint32(rn)<<5 | uint32(rt)
	b.Emit(word)
}

// IndexMode selects pre- vs. post-index addressing for the
// LoadStoreIndexed family.
type IndexMode uint8

const (
	PostIndex IndexMode = 0b01
	PreIndex  IndexMode = 0b11
)

// LoadStoreIndexed encodes the unscaled pre/post-index addressing mode:
// LDR/STR Rt, [Rn], #simm9 or LDR/STR Rt, [Rn, #simm9]!. simm9 is a
// signed byte offset in [-256,255], per spec.md §4.1's "unscaled" form.
func (b *Buffer) LoadStoreIndexed(w Width, op LoadStoreOp, rt, rn Reg, simm9 int32, mode IndexMode) {
	if !validGPR(rt) || !validGPR(rn) {
		bug("LoadStoreIndexed", "register out of range")
	}
	if simm9 < -256 || simm9 > 255 {
		bug("LoadStoreIndexed", "imm9 %d out of range", simm9)
	}
	word := w.sizeBits()<<30 | 0b111<<27 | uint32(op)<<22 | (uint32(simm9)&0x1ff)<<12 |
		uint32(mode)<<10 | uint32(rn)<<5 | uint32(rt)
	b.Emit(word)
}

// ExtendMode selects the extension applied to the offset register in
// the register-offset addressing mode.
type ExtendMode uint8

const (
	ExtendUXTW ExtendMode = 0b010
	ExtendLSL  ExtendMode = 0b011 // only valid when the offset register is X
	ExtendSXTW ExtendMode = 0b110
	ExtendSXTX ExtendMode = 0b111
)

// LoadStoreRegOffset encodes LDR/STR Rt, [Rn, Rm, <extend> {#scale}],
// spec.md §4.1's "register-offset with extend" form.
func (b *Buffer) LoadStoreRegOffset(w Width, op LoadStoreOp, rt, rn, rm Reg, ext ExtendMode, scaled bool) {
	if !validGPR(rt) || !validGPR(rn) || !validGPR(rm) {
		bug("LoadStoreRegOffset", "register out of range")
	}
	word := w.sizeBits()<<30 | 0b111<<27 | 0b1<<21 | uint32(op)<<22 | uint32(rm)<<16 |
		uint32(ext)<<13 | b2u32(scaled)<<12 | 0b10<<10 | uint32(rn)<<5 | uint32(rt)
	b.Emit(word)
}

// LoadLiteral encodes LDR Rt, <label> — a PC-relative literal load,
// used for constants too wide to synthesize cheaply with MOVZ/MOVK.
func (b *Buffer) LoadLiteral(sz Size, rt Reg, imm19Words int32) {
	if !validGPR(rt) {
		bug("LoadLiteral", "register out of range")
	}
	if imm19Words < -(1<<18) || imm19Words >= (1<<18) {
		bug("LoadLiteral", "pc-relative offset %d out of range", imm19Words)
	}
	word := uint32(sz)<<30 | 0b011<<27 | 0b00<<24 | (uint32(imm19Words)&0x7ffff)<<5 | uint32(rt)
	b.Emit(word)
}

// PairVariant selects the signed/unsigned and pre/post/offset forms of
// the LDP/STP family.
type PairVariant uint8

const (
	PairOffset  PairVariant = 0b010
	PairPostIdx PairVariant = 0b001
	PairPreIdx  PairVariant = 0b011
)

// LoadPair encodes LDP Rt, Rt2, [Rn, #imm7*scale] (and its pre/post
// index variants), spec.md §4.1's "load/store pair" form; signed
// selects LDPSW when sz is Size32.
func (b *Buffer) LoadPair(sz Size, signed bool, rt, rt2, rn Reg, imm7Elems int32, variant PairVariant) {
	b.pairCommon(sz, true, signed, rt, rt2, rn, imm7Elems, variant)
}

// StorePair encodes STP Rt, Rt2, [Rn, #imm7*scale].
func (b *Buffer) StorePair(sz Size, rt, rt2, rn Reg, imm7Elems int32, variant PairVariant) {
	b.pairCommon(sz, false, false, rt, rt2, rn, imm7Elems, variant)
}

func (b *Buffer) pairCommon(sz Size, load, signed bool, rt, rt2, rn Reg, imm7 int32, variant PairVariant) {
	if !validGPR(rt) || !validGPR(rt2) || !validGPR(rn) {
		bug("LoadStorePair", "register out of range")
	}
	if imm7 < -64 || imm7 > 63 {
		bug("LoadStorePair", "imm7 %d out of range", imm7)
	}
	opc := uint32(0b10)
	if sz == Size32 {
		opc = 0b00
	}
	if signed && load {
		opc = 0b01
	}
	l := b2u32(load)
	word := opc<<30 | 0b101<<27 | uint32(variant)<<23 | l<<22 | (uint32(imm7)&0x7f)<<15 |
		uint32(rt2)<<10 | uint32(rn)<<5 | uint32(rt)
	b.Emit(word)
}

// Exclusive encodes the single-copy-atomic pair LDAXR/STLXR used for
// bus-lock acquisition without a compare-and-swap; FaultHandler treats
// a faulting LDAXR as if it were a plain load that always "succeeds".
// The size field for this family only ever encodes word or doubleword
// (0b10/0b11), unlike the plain sf bit LoadLiteral and the data
// processing instructions use, so Size32/Size64 map to 0b10/0b11
// rather than 0b00/0b01.
func (b *Buffer) LoadAcquireExclusive(sz Size, rt, rn Reg) {
	if !validGPR(rt) || !validGPR(rn) {
		bug("LoadAcquireExclusive", "register out of range")
	}
	word := (0b10|uint32(sz))<<30 | 0b001000<<24 | 0b1<<22 | 0b11111<<16 | 0b111111<<10 | uint32(rn)<<5 | uint32(rt)
	b.Emit(word)
}

func (b *Buffer) StoreReleaseExclusive(sz Size, rs, rt, rn Reg) {
	if !validGPR(rs) || !validGPR(rt) || !validGPR(rn) {
		bug("StoreReleaseExclusive", "register out of range")
	}
	word := (0b10|uint32(sz))<<30 | 0b001000<<24 | uint32(rs)<<16 | 0b111111<<10 | uint32(rn)<<5 | uint32(rt)
	b.Emit(word)
}
