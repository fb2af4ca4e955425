package emitter

// Size selects the 32-bit (W) or 64-bit (X) form of a data-processing
// instruction, encoded in the sf bit.
type Size uint8

const (
	Size32 Size = 0
	Size64 Size = 1
)

func (s Size) sf() uint32 { return uint32(s) << 31 }

// AddSubOp selects ADD vs SUB for the immediate and shifted-register
// families below.
type AddSubOp uint8

const (
	OpAdd AddSubOp = 0
	OpSub AddSubOp = 1
)

// AddImm encodes ADD/SUB/ADDS/SUBS (Rd, Rn, #imm12{, LSL #12}).
func (b *Buffer) AddImm(sz Size, op AddSubOp, setFlags bool, rd, rn Reg, imm12 uint16, shift12 bool) {
	if !validGPR(rd) || !validGPR(rn) {
		bug("AddImm", "register out of range rd=%d rn=%d", rd, rn)
	}
	if imm12 > 0xfff {
		bug("AddImm", "imm12 %d out of range", imm12)
	}
	word := sz.sf() | uint32(op)<<30 | b2u32(setFlags)<<29 | 0b10001<<24 |
		b2u32(shift12)<<22 | uint32(imm12)<<10 | uint32(rn)<<5 | uint32(rd)
	b.Emit(word)
}

// AddReg encodes ADD/SUB/ADDS/SUBS (Rd, Rn, Rm) with no shift, the form
// used for simple register-register arithmetic.
func (b *Buffer) AddReg(sz Size, op AddSubOp, setFlags bool, rd, rn, rm Reg) {
	if !validGPR(rd) || !validGPR(rn) || !validGPR(rm) {
		bug("AddReg", "register out of range")
	}
	word := sz.sf() | uint32(op)<<30 | b2u32(setFlags)<<29 | 0b01011<<24 |
		uint32(rm)<<16 | uint32(rn)<<5 | uint32(rd)
	b.Emit(word)
}

// Cmp encodes CMP Rn, Rm as SUBS XZR/WZR, Rn, Rm.
func (b *Buffer) Cmp(sz Size, rn, rm Reg) {
	b.AddReg(sz, OpSub, true, ZR, rn, rm)
}

// CmpImm encodes CMP Rn, #imm12 as SUBS XZR/WZR, Rn, #imm12.
func (b *Buffer) CmpImm(sz Size, rn Reg, imm12 uint16) {
	b.AddImm(sz, OpSub, true, ZR, rn, imm12, false)
}

// LogicOp selects AND/ORR/EOR/ANDS for the shifted-register logical family.
type LogicOp uint8

const (
	OpAnd LogicOp = 0b00
	OpOrr LogicOp = 0b01
	OpEor LogicOp = 0b10
	OpAnds LogicOp = 0b11
)

// LogicReg encodes AND/ORR/EOR/ANDS (Rd, Rn, Rm), unshifted.
func (b *Buffer) LogicReg(sz Size, op LogicOp, rd, rn, rm Reg) {
	if !validGPR(rd) || !validGPR(rn) || !validGPR(rm) {
		bug("LogicReg", "register out of range")
	}
	word := sz.sf() | uint32(op)<<29 | 0b01010<<24 | uint32(rm)<<16 | uint32(rn)<<5 | uint32(rd)
	b.Emit(word)
}

// ShiftOp selects the shift-by-register family: LSL/LSR/ASR/ROR.
type ShiftOp uint8

const (
	OpLsl ShiftOp = 0b00
	OpLsr ShiftOp = 0b01
	OpAsr ShiftOp = 0b10
	OpRor ShiftOp = 0b11
)

// ShiftReg encodes LSLV/LSRV/ASRV/RORV (Rd, Rn, Rm) — shift-by-register,
// the forms the 68k shift/rotate opcode family needs when the shift
// count is held in a data register rather than an immediate.
func (b *Buffer) ShiftReg(sz Size, op ShiftOp, rd, rn, rm Reg) {
	if !validGPR(rd) || !validGPR(rn) || !validGPR(rm) {
		bug("ShiftReg", "register out of range")
	}
	sub := [4]uint32{0b001000, 0b001001, 0b001010, 0b001011}[op]
	word := sz.sf() | 0b0011010110<<21 | uint32(rm)<<16 | sub<<10 | uint32(rn)<<5 | uint32(rd)
	b.Emit(word)
}

// MovKind selects MOVZ/MOVN/MOVK for the wide-immediate family.
type MovKind uint8

const (
	MovN MovKind = 0b00
	MovZ MovKind = 0b10
	MovK MovKind = 0b11
)

// MovImm16 encodes MOVZ/MOVN/MOVK Rd, #imm16, LSL #(hw*16).
func (b *Buffer) MovImm16(sz Size, kind MovKind, rd Reg, imm16 uint16, hw uint8) {
	if !validGPR(rd) {
		bug("MovImm16", "register out of range rd=%d", rd)
	}
	if hw > 3 || (sz == Size32 && hw > 1) {
		bug("MovImm16", "shift position %d invalid for size", hw)
	}
	word := sz.sf() | uint32(kind)<<29 | 0b100101<<23 | uint32(hw)<<21 | uint32(imm16)<<5 | uint32(rd)
	b.Emit(word)
}

// MovImm64 emits a MOVZ followed by up to three MOVKs spanning the
// four 16-bit shift positions, per spec.md §4.1's "MOV 64-bit constants"
// requirement. Leading all-zero or all-one halfwords beyond the first
// are skipped once MOVZ/MOVN has already set them.
func (b *Buffer) MovImm64(sz Size, rd Reg, value uint64) {
	if sz == Size32 {
		value &= 0xffffffff
	}
	halves := [4]uint16{
		uint16(value), uint16(value >> 16), uint16(value >> 32), uint16(value >> 48),
	}
	nHalves := 4
	if sz == Size32 {
		nHalves = 2
	}

	// Prefer MOVN when the constant has more set halfwords inverted,
	// matching a real assembler's minimal-instruction-count heuristic.
	onesCount, zerosCount := 0, 0
	for i := 0; i < nHalves; i++ {
		if halves[i] == 0xffff {
			onesCount++
		}
		if halves[i] == 0 {
			zerosCount++
		}
	}

	useMovn := onesCount > zerosCount
	first := true
	for hw := 0; hw < nHalves; hw++ {
		h := halves[hw]
		skippable := h == 0
		if useMovn {
			skippable = h == 0xffff
		}
		if skippable && !(first && hw == nHalves-1) {
			continue
		}
		if first {
			if useMovn {
				b.MovImm16(sz, MovN, rd, ^h, uint8(hw))
			} else {
				b.MovImm16(sz, MovZ, rd, h, uint8(hw))
			}
			first = false
		} else {
			b.MovImm16(sz, MovK, rd, h, uint8(hw))
		}
	}
}

// Madd encodes MADD Rd, Rn, Rm, Ra (Rd = Ra + Rn*Rm); Mul is the Ra=ZR
// special case spec.md §4.1 calls for.
func (b *Buffer) Madd(sz Size, rd, rn, rm, ra Reg) {
	if !validGPR(rd) || !validGPR(rn) || !validGPR(rm) || !validGPR(ra) {
		bug("Madd", "register out of range")
	}
	word := sz.sf() | 0b0011011000<<21 | uint32(rm)<<16 | uint32(ra)<<10 | uint32(rn)<<5 | uint32(rd)
	b.Emit(word)
}

func (b *Buffer) Mul(sz Size, rd, rn, rm Reg) { b.Madd(sz, rd, rn, rm, ZR) }

// Div encodes SDIV/UDIV Rd, Rn, Rm.
func (b *Buffer) Div(sz Size, signed bool, rd, rn, rm Reg) {
	if !validGPR(rd) || !validGPR(rn) || !validGPR(rm) {
		bug("Div", "register out of range")
	}
	word := sz.sf() | 0b0011010110<<21 | uint32(rm)<<16 | (0b0000010|b2u32(signed))<<10 | uint32(rn)<<5 | uint32(rd)
	b.Emit(word)
}

// Cond is an AArch64 condition code, used by CSEL/CSET/B.cond/CCMP.
type Cond uint8

const (
	CondEQ Cond = 0x0
	CondNE Cond = 0x1
	CondCS Cond = 0x2 // HS
	CondCC Cond = 0x3 // LO
	CondMI Cond = 0x4
	CondPL Cond = 0x5
	CondVS Cond = 0x6
	CondVC Cond = 0x7
	CondHI Cond = 0x8
	CondLS Cond = 0x9
	CondGE Cond = 0xa
	CondLT Cond = 0xb
	CondGT Cond = 0xc
	CondLE Cond = 0xd
	CondAL Cond = 0xe
)

func (c Cond) invert() Cond { return c ^ 1 }

// CSelOp selects the conditional-select sub-family.
type CSelOp uint8

const (
	CSelPlain CSelOp = 0b00 // CSEL
	CSelInc   CSelOp = 0b01 // CSINC
	CSelInv   CSelOp = 0b10 // CSINV
	CSelNeg   CSelOp = 0b11 // CSNEG
)

// csel opBit/op2 pairs, indexed by CSelOp: {op (bit30), op2 (bits11:10)}.
var cselEncoding = [4][2]uint32{
	CSelPlain: {0, 0b00},
	CSelInc:   {0, 0b01},
	CSelInv:   {1, 0b00},
	CSelNeg:   {1, 0b01},
}

// CondSel encodes CSEL/CSINC/CSINV/CSNEG Rd, Rn, Rm, cond.
func (b *Buffer) CondSel(sz Size, op CSelOp, rd, rn, rm Reg, cond Cond) {
	if !validGPR(rd) || !validGPR(rn) || !validGPR(rm) {
		bug("CondSel", "register out of range")
	}
	enc := cselEncoding[op]
	word := sz.sf() | enc[0]<<30 | 0b011010100<<21 | uint32(rm)<<16 | uint32(cond)<<12 |
		enc[1]<<10 | uint32(rn)<<5 | uint32(rd)
	b.Emit(word)
}

// CSet encodes CSET Rd, cond as CSINC Rd, ZR, ZR, invert(cond) — the
// canonical aliasing spec.md §4.2's "parallel helpers" use to splice a
// single boolean CCR bit out of the host NZCV flags.
func (b *Buffer) CSet(sz Size, rd Reg, cond Cond) {
	b.CondSel(sz, CSelInc, rd, ZR, ZR, cond.invert())
}

func b2u32(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
