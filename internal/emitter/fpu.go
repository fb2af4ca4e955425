package emitter

// FPPrec selects single- vs. double-precision encoding ("ptype" field).
// Emu68 emulates the 68881/2 as IEEE-754 double per spec.md §1's
// non-goals (no 80-bit extended precision), so FPPrecDouble is the
// common case; FPPrecSingle exists for the handful of guest opcodes
// that explicitly operate on single-precision memory operands.
type FPPrec uint8

const (
	FPPrecSingle FPPrec = 0b00
	FPPrecDouble FPPrec = 0b01
)

// FPBinOp selects the two-operand FPU ALU family.
type FPBinOp uint8

const (
	FPAdd FPBinOp = iota
	FPSub
	FPMul
	FPDiv
	FPMax
	FPMin
)

var fpBinOpcode = [...]uint32{FPAdd: 0b0010, FPSub: 0b0011, FPMul: 0b0000, FPDiv: 0b0001, FPMax: 0b0100, FPMin: 0b0101}

// FPBinary encodes FADD/FSUB/FMUL/FDIV/FMAX/FMIN Dd, Dn, Dm.
func (b *Buffer) FPBinary(prec FPPrec, op FPBinOp, rd, rn, rm FReg) {
	if !validFPR(rd) || !validFPR(rn) || !validFPR(rm) {
		bug("FPBinary", "register out of range")
	}
	word := 0b00011110<<24 | uint32(prec)<<22 | 0b1<<21 | uint32(rm)<<16 |
		fpBinOpcode[op]<<12 | 0b10<<10 | uint32(rn)<<5 | uint32(rd)
	b.Emit(word)
}

// FPUnaryOp selects the one-operand FPU family: FMOV/FABS/FNEG/FSQRT.
type FPUnaryOp uint8

const (
	FMov FPUnaryOp = iota
	FAbs
	FNeg
	FSqrt
)

var fpUnaryOpcode = [...]uint32{FMov: 0b000000, FAbs: 0b000001, FNeg: 0b000010, FSqrt: 0b000011}

// FPUnary encodes FMOV/FABS/FNEG/FSQRT Dd, Dn.
func (b *Buffer) FPUnary(prec FPPrec, op FPUnaryOp, rd, rn FReg) {
	if !validFPR(rd) || !validFPR(rn) {
		bug("FPUnary", "register out of range")
	}
	word := 0b00011110<<24 | uint32(prec)<<22 | 0b1<<21 | fpUnaryOpcode[op]<<15 | 0b10000<<10 |
		uint32(rn)<<5 | uint32(rd)
	b.Emit(word)
}

// FPCompare encodes FCMP Dn, Dm. FCMP against zero takes no second
// register operand and is encoded by FPCompareZero instead.
func (b *Buffer) FPCompare(prec FPPrec, rn, rm FReg) {
	if !validFPR(rn) || !validFPR(rm) {
		bug("FPCompare", "register out of range")
	}
	word := 0b00011110<<24 | uint32(prec)<<22 | 0b1<<21 | uint32(rm)<<16 | 0b001000<<10 | uint32(rn)<<5
	b.Emit(word)
}

// FPCompareZero encodes FCMP Dn, #0.0.
func (b *Buffer) FPCompareZero(prec FPPrec, rn FReg) {
	if !validFPR(rn) {
		bug("FPCompareZero", "register out of range")
	}
	word := 0b00011110<<24 | uint32(prec)<<22 | 0b1<<21 | 0b001000<<10 | uint32(rn)<<5 | 0b01000
	b.Emit(word)
}

// FPLoadStoreUnsignedOffset encodes FP LDR/STR Dt, [Rn, #imm12*scale],
// the floating-point counterpart of LoadStoreUnsignedOffset used to
// spill/fill the statically-bound FP0-FP7 guest registers.
func (b *Buffer) FPLoadStoreUnsignedOffset(prec FPPrec, load bool, rt FReg, rn Reg, byteOffset uint32) {
	if !validFPR(rt) || !validGPR(rn) {
		bug("FPLoadStoreUnsignedOffset", "register out of range")
	}
	scale := uint32(4) << prec // single=4 bytes, double=8 bytes
	if byteOffset%scale != 0 {
		bug("FPLoadStoreUnsignedOffset", "offset %d not aligned to scale %d", byteOffset, scale)
	}
	imm12 := byteOffset / scale
	if imm12 > 0xfff {
		bug("FPLoadStoreUnsignedOffset", "scaled offset exceeds imm12 range")
	}
	size := uint32(0b10) | uint32(prec) // 10 for single, 11 for double — matches the integer size field reuse
	opc := uint32(0b01)
	if !load {
		opc = 0b00
	}
	word := size<<30 | 0b111<<27 | 0b1<<26 | 0b01<<24 | opc<<22 | imm12<<10 | uint32(rn)<<5 | uint32(rt)
	b.Emit(word)
}

// FPConvertKind selects the integer<->float conversion direction and
// rounding discipline spec.md §4.4 calls for ("truncation or rounding
// per the opcode").
type FPConvertKind uint8

const (
	FCvtToIntTruncS FPConvertKind = iota // FCVTZS: round toward zero, signed
	FCvtToIntTruncU                      // FCVTZU
	FCvtFromIntS                          // SCVTF
	FCvtFromIntU                          // UCVTF
)

// FPConvert encodes the integer<->FP conversion family between a GPR
// and an FP register.
func (b *Buffer) FPConvert(sz Size, prec FPPrec, kind FPConvertKind, rd, rn any) {
	switch kind {
	case FCvtToIntTruncS, FCvtToIntTruncU:
		gd, ok := rd.(Reg)
		fn, ok2 := rn.(FReg)
		if !ok || !ok2 || !validGPR(gd) || !validFPR(fn) {
			bug("FPConvert", "bad operand types for float-to-int conversion")
		}
		rmode := uint32(0b11) // round toward zero
		opcode := uint32(0b000)
		if kind == FCvtToIntTruncU {
			opcode = 0b001
		}
		word := sz.sf() | 0b0011110<<24 | uint32(prec)<<22 | 0b1<<21 | rmode<<19 | opcode<<16 |
			uint32(fn)<<5 | uint32(gd)
		b.Emit(word)
	case FCvtFromIntS, FCvtFromIntU:
		fd, ok := rd.(FReg)
		gn, ok2 := rn.(Reg)
		if !ok || !ok2 || !validFPR(fd) || !validGPR(gn) {
			bug("FPConvert", "bad operand types for int-to-float conversion")
		}
		opcode := uint32(0b010)
		if kind == FCvtFromIntU {
			opcode = 0b011
		}
		word := sz.sf() | 0b0011110<<24 | uint32(prec)<<22 | 0b1<<21 | opcode<<16 | uint32(gn)<<5 | uint32(fd)
		b.Emit(word)
	default:
		bug("FPConvert", "unknown conversion kind")
	}
}

// FPMoveFromGPR encodes FMOV Dd, Xn (raw bit move into the low bits of
// a double register, size must be 64-bit).
func (b *Buffer) FPMoveFromGPR(fd FReg, rn Reg) {
	if !validFPR(fd) || !validGPR(rn) {
		bug("FPMoveFromGPR", "register out of range")
	}
	word := 1<<31 | 0b0011110<<24 | uint32(FPPrecDouble)<<22 | 0b1<<21 | 0b00111<<16 | uint32(rn)<<5 | uint32(fd)
	b.Emit(word)
}

// FPMoveToGPR encodes FMOV Xn, Dd.
func (b *Buffer) FPMoveToGPR(rd Reg, fn FReg) {
	if !validGPR(rd) || !validFPR(fn) {
		bug("FPMoveToGPR", "register out of range")
	}
	word := 1<<31 | 0b0011110<<24 | uint32(FPPrecDouble)<<22 | 0b1<<21 | 0b00110<<16 | uint32(fn)<<5 | uint32(rd)
	b.Emit(word)
}
