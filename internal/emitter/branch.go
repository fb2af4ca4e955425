package emitter

// Branch encodes B <label>, an unconditional PC-relative branch.
// imm26Words is the displacement in instructions (words), not bytes.
func (b *Buffer) Branch(imm26Words int32) {
	checkImm(imm26Words, 26, "Branch")
	b.Emit(0b000101<<26 | uint32(imm26Words)&0x3ffffff)
}

// BranchLink encodes BL <label>, saving the return address in LR.
func (b *Buffer) BranchLink(imm26Words int32) {
	checkImm(imm26Words, 26, "BranchLink")
	b.Emit(0b100101<<26 | uint32(imm26Words)&0x3ffffff)
}

// BranchReg encodes BR Rn, an unconditional register-indirect branch —
// how a Unit's translated JMP (An) or indirect vector fetch reaches
// a host address materialized at runtime.
func (b *Buffer) BranchReg(rn Reg) {
	if !validGPR(rn) {
		bug("BranchReg", "register out of range")
	}
	b.Emit(0xD61F0000 | uint32(rn)<<5)
}

// BranchLinkReg encodes BLR Rn.
func (b *Buffer) BranchLinkReg(rn Reg) {
	if !validGPR(rn) {
		bug("BranchLinkReg", "register out of range")
	}
	b.Emit(0xD63F0000 | uint32(rn)<<5)
}

// Return encodes RET Rn (RET defaults to LR when called via RetLR).
func (b *Buffer) Return(rn Reg) {
	if !validGPR(rn) {
		bug("Return", "register out of range")
	}
	b.Emit(0xD65F0000 | uint32(rn)<<5)
}

func (b *Buffer) RetLR() { b.Return(LR) }

// BranchCond encodes B.cond <label>, spec.md §4.1's "conditional imm19".
func (b *Buffer) BranchCond(cond Cond, imm19Words int32) {
	checkImm(imm19Words, 19, "BranchCond")
	b.Emit(0x54000000 | (uint32(imm19Words)&0x7ffff)<<5 | uint32(cond))
}

// CompareBranch encodes CBZ/CBNZ Rt, <label>.
func (b *Buffer) CompareBranch(sz Size, rt Reg, nonZero bool, imm19Words int32) {
	if !validGPR(rt) {
		bug("CompareBranch", "register out of range")
	}
	checkImm(imm19Words, 19, "CompareBranch")
	base := uint32(0x34000000)
	if nonZero {
		base = 0x35000000
	}
	b.Emit(base | sz.sf() | (uint32(imm19Words)&0x7ffff)<<5 | uint32(rt))
}

// TestBranch encodes TBZ/TBNZ Rt, #bit, <label> — spec.md §4.1's
// "test-bit-and-branch", the fast path for single-CCR-bit tests.
func (b *Buffer) TestBranch(rt Reg, bit uint8, nonZero bool, imm14Words int32) {
	if !validGPR(rt) {
		bug("TestBranch", "register out of range")
	}
	if bit > 63 {
		bug("TestBranch", "bit index %d out of range", bit)
	}
	checkImm(imm14Words, 14, "TestBranch")
	base := uint32(0x36000000)
	if nonZero {
		base = 0x37000000
	}
	b5 := uint32(bit>>5) << 31
	b40 := uint32(bit&0x1f) << 19
	b.Emit(base | b5 | b40 | (uint32(imm14Words)&0x3fff)<<5 | uint32(rt))
}

// Adr encodes ADR Rd, <label> — a PC-relative byte address, used for
// materializing exit-stub and literal-pool addresses within a Unit.
func (b *Buffer) Adr(rd Reg, byteOffset int32) {
	if !validGPR(rd) {
		bug("Adr", "register out of range")
	}
	checkImm(byteOffset, 21, "Adr")
	immlo := uint32(byteOffset) & 0x3
	immhi := (uint32(byteOffset) >> 2) & 0x7ffff
	b.Emit(0<<31 | immlo<<29 | 0b10000<<24 | immhi<<5 | uint32(rd))
}

// Adrp encodes ADRP Rd, <label> — the page-granular counterpart of Adr,
// used when a target is further away than Adr's ±1MiB window.
func (b *Buffer) Adrp(rd Reg, pageOffset int32) {
	if !validGPR(rd) {
		bug("Adrp", "register out of range")
	}
	checkImm(pageOffset, 21, "Adrp")
	immlo := uint32(pageOffset) & 0x3
	immhi := (uint32(pageOffset) >> 2) & 0x7ffff
	b.Emit(1<<31 | immlo<<29 | 0b10000<<24 | immhi<<5 | uint32(rd))
}

// Hlt encodes HLT #imm16 — used by UnitBuilder to inject a guard trap
// in place of an un-encodeable instruction (spec.md §4.1).
func (b *Buffer) Hlt(imm16 uint16) { b.Emit(0xD4400000 | uint32(imm16)<<5) }

// Brk encodes BRK #imm16 — used for the validation-trap tagged address
// spec.md §4.7 describes (decoded code jumps here to force a
// re-verification of the Unit it is about to enter).
func (b *Buffer) Brk(imm16 uint16) { b.Emit(0xD4200000 | uint32(imm16)<<5) }

func checkImm(v int32, bits uint, op string) {
	lo := int32(-1) << (bits - 1)
	hi := -lo - 1
	if v < lo || v > hi {
		bug(op, "immediate %d exceeds %d-bit signed range", v, bits)
	}
}
