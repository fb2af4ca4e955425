package decoder

import (
	"github.com/michalsc/Emu68-sub001/internal/coreerr"
	"github.com/michalsc/Emu68-sub001/internal/emitter"
	"github.com/michalsc/Emu68-sub001/internal/guest"
	"github.com/michalsc/Emu68-sub001/internal/regalloc"
)

// decodeLine5 handles ADDQ/SUBQ and the Scc/DBcc family, which all
// share line 5's encoding but branch into very different shapes: the
// quick arithmetic ops are a plain ALU op with a 1-8 literal folded
// into the opcode word, Scc writes a boolean into a byte operand, and
// DBcc is a decrementing loop-branch.
func (t *Translator) decodeLine5(pos int, opcode uint16, pc uint32) (int, EmitEvent, error) {
	if opcode&0xf0c0 == 0x50c0 {
		if opcode&0x38 == 0x08 {
			return t.decodeDBcc(pos, opcode, pc)
		}
		return t.decodeScc(pos, opcode, pc)
	}
	return t.decodeQuick(pos, opcode, pc)
}

func (t *Translator) decodeQuick(pos int, opcode uint16, pc uint32) (int, EmitEvent, error) {
	data := uint8((opcode >> 9) & 7)
	if data == 0 {
		data = 8
	}
	isSub := opcode&0x0100 != 0
	sizeBytes := sizeOf(uint8((opcode >> 6) & 3))
	mode := uint8((opcode >> 3) & 7)
	reg := uint8(opcode & 7)

	e, words, err := decodeEA(t.RA, t.Stream, pos, mode, reg, sizeBytes, pc)
	if err != nil {
		return 0, EventBreak, err
	}

	if e.kind == eaAddrReg {
		// ADDQ/SUBQ to An always operates on the full 32-bit address and
		// never touches CCR.
		a := t.RA.AllocTemp()
		loadInto(t.RA, e, a)
		if isSub {
			t.RA.Buf().AddImm(emitter.Size64, emitter.OpSub, false, a, a, uint16(data), false)
		} else {
			t.RA.Buf().AddImm(emitter.Size64, emitter.OpAdd, false, a, a, uint16(data), false)
		}
		storeFrom(t.RA, e, a)
		t.RA.FreeTemp(a)
		return 1 + words, EventNone, nil
	}

	val := t.RA.AllocTemp()
	loadInto(t.RA, e, val)
	dst := t.RA.AllocTemp()
	op := emitter.OpAdd
	if isSub {
		op = emitter.OpSub
	}
	t.RA.Buf().AddImm(emitter.Size32, op, true, dst, val, uint16(data), false)

	writes := uint8(guest.CCR_N | guest.CCR_Z | guest.CCR_V | guest.CCR_C | guest.CCR_X)
	t.maybeEmitNZCV(pos, writes, isSub)

	if e.kind == eaDataReg {
		writeDReg(t, reg, dst, sizeBytes)
	} else {
		storeFrom(t.RA, e, dst)
	}
	t.RA.FreeTemp(val)
	t.RA.FreeTemp(dst)
	return 1 + words, EventNone, nil
}

// decodeScc evaluates the 4-bit condition embedded in bits 11:8 and
// writes 0xff (true) or 0x00 (false) into the byte-sized destination.
func (t *Translator) decodeScc(pos int, opcode uint16, pc uint32) (int, EmitEvent, error) {
	cc := uint8((opcode >> 8) & 0xf)
	mode := uint8((opcode >> 3) & 7)
	reg := uint8(opcode & 7)

	e, words, err := decodeEA(t.RA, t.Stream, pos, mode, reg, 1, pc)
	if err != nil {
		return 0, EventBreak, err
	}

	ccr := t.RA.GetCCR()
	pred := t.RA.AllocTemp()
	evalCondition(t.RA, ccr, cc, pred)
	// pred is 0/1; negating gives 0x00000000 or 0xffffffff, i.e. the
	// 68k convention of all-bits-clear/all-bits-set for false/true.
	result := t.RA.AllocTemp()
	t.RA.Buf().AddReg(emitter.Size32, emitter.OpSub, false, result, emitter.ZR, pred)

	if e.kind == eaDataReg {
		writeDReg(t, reg, result, 1)
	} else {
		storeFrom(t.RA, e, result)
	}
	t.RA.FreeTemp(pred)
	t.RA.FreeTemp(result)
	return 1 + words, EventNone, nil
}

// decodeDBcc is the decrement-and-branch-if-not-equal-to-minus-one
// loop primitive: if the condition is true, execution falls through
// without touching Dn; otherwise Dn's low word is decremented and,
// unless it wrapped past -1, control branches back to the 16-bit
// displacement. The loop condition and the decrement both require a
// runtime test the host can't resolve at translate time, so DBcc
// always ends the Unit with two ExitStubs (spec.md §4.4's
// two-exit-stub case).
func (t *Translator) decodeDBcc(pos int, opcode uint16, pc uint32) (int, EmitEvent, error) {
	if pos+1 >= len(t.Stream) {
		return 0, EventBreak, coreerr.New(coreerr.KindBadDisplacement, pc, "DBcc displacement word missing")
	}
	cc := uint8((opcode >> 8) & 0xf)
	reg := uint8(opcode & 7)
	disp := int16(t.Stream[pos+1])
	targetPC := uint32(int32(pc) + 2 + int32(disp))
	fallThroughPC := pc + 4
	if targetPC <= pc {
		t.backwardBranchSeen = true
	}

	ccr := t.RA.GetCCR()
	pred := t.RA.AllocTemp()
	evalCondition(t.RA, ccr, cc, pred)

	dReg := regalloc.MapGuestD(reg)
	maskLow := t.RA.AllocTemp()
	t.RA.Buf().MovImm64(emitter.Size32, maskLow, 0xffff)
	origLo := t.RA.AllocTemp()
	t.RA.Buf().LogicReg(emitter.Size32, emitter.OpAnd, origLo, dReg, maskLow)
	decLo := t.RA.AllocTemp()
	t.RA.Buf().AddImm(emitter.Size32, emitter.OpSub, false, decLo, origLo, 1, false)
	t.RA.Buf().LogicReg(emitter.Size32, emitter.OpAnd, decLo, decLo, maskLow)

	t.RA.Buf().Cmp(emitter.Size32, pred, emitter.ZR)
	finalLo := t.RA.AllocTemp()
	t.RA.Buf().CondSel(emitter.Size32, emitter.CSelPlain, finalLo, origLo, decLo, emitter.CondNE)

	notMaskHigh := t.RA.AllocTemp()
	t.RA.Buf().MovImm64(emitter.Size32, notMaskHigh, 0xffff0000)
	t.RA.Buf().LogicReg(emitter.Size32, emitter.OpAnd, dReg, dReg, notMaskHigh)
	t.RA.Buf().LogicReg(emitter.Size32, emitter.OpOrr, dReg, dReg, finalLo)
	t.RA.MarkDDirty(reg)

	allOnes := t.RA.AllocTemp()
	t.RA.Buf().MovImm64(emitter.Size32, allOnes, 0xffff)
	t.RA.Buf().Cmp(emitter.Size32, decLo, allOnes)
	notMinusOne := t.RA.AllocTemp()
	t.RA.Buf().CSet(emitter.Size32, notMinusOne, emitter.CondNE)

	t.RA.Buf().Cmp(emitter.Size32, pred, emitter.ZR)
	predFalse := t.RA.AllocTemp()
	t.RA.Buf().CSet(emitter.Size32, predFalse, emitter.CondEQ)

	takeBranch := t.RA.AllocTemp()
	t.RA.Buf().LogicReg(emitter.Size32, emitter.OpAnd, takeBranch, predFalse, notMinusOne)

	targetReg := t.RA.AllocTemp()
	fallReg := t.RA.AllocTemp()
	t.RA.Buf().MovImm64(emitter.Size64, targetReg, uint64(targetPC))
	t.RA.Buf().MovImm64(emitter.Size64, fallReg, uint64(fallThroughPC))
	selected := t.RA.AllocTemp()
	t.RA.Buf().Cmp(emitter.Size32, takeBranch, emitter.ZR)
	t.RA.Buf().CondSel(emitter.Size64, emitter.CSelPlain, selected, targetReg, fallReg, emitter.CondNE)
	t.emitStorePC(selected)

	t.RA.FreeTemp(pred)
	t.RA.FreeTemp(maskLow)
	t.RA.FreeTemp(origLo)
	t.RA.FreeTemp(decLo)
	t.RA.FreeTemp(finalLo)
	t.RA.FreeTemp(notMaskHigh)
	t.RA.FreeTemp(allOnes)
	t.RA.FreeTemp(notMinusOne)
	t.RA.FreeTemp(predFalse)
	t.RA.FreeTemp(takeBranch)
	t.RA.FreeTemp(targetReg)
	t.RA.FreeTemp(fallReg)
	t.RA.FreeTemp(selected)
	return 2, EventDoubleExit, nil
}

// evalCondition writes 0 or 1 into dst, the 68k condition cc tested
// against the guest CCR byte in ccr. It works directly off the 68k bit
// layout (C=bit0,V=bit1,Z=bit2,N=bit3) rather than reconstructing host
// NZCV, since the CCR byte already carries the corrected (borrow)
// carry polarity emitNZCVToCCR spliced in at the producing opcode, and
// reusing host B.cond semantics here would silently re-introduce the
// add/subtract mismatch.
func evalCondition(ra *regalloc.State, ccr emitter.Reg, cc uint8, dst emitter.Reg) {
	switch cc {
	case 0: // T
		ra.Buf().MovImm64(emitter.Size32, dst, 1)
	case 1: // F
		ra.Buf().MovImm64(emitter.Size32, dst, 0)
	case 2: // HI: C=0 && Z=0
		c0 := testBit(ra, ccr, guest.CCR_C, false)
		z0 := testBit(ra, ccr, guest.CCR_Z, false)
		ra.Buf().LogicReg(emitter.Size32, emitter.OpAnd, dst, c0, z0)
		ra.FreeTemp(c0)
		ra.FreeTemp(z0)
	case 3: // LS: C=1 || Z=1
		c1 := testBit(ra, ccr, guest.CCR_C, true)
		z1 := testBit(ra, ccr, guest.CCR_Z, true)
		ra.Buf().LogicReg(emitter.Size32, emitter.OpOrr, dst, c1, z1)
		ra.FreeTemp(c1)
		ra.FreeTemp(z1)
	case 4: // CC: C=0
		copyTemp(ra, dst, testBit(ra, ccr, guest.CCR_C, false))
	case 5: // CS: C=1
		copyTemp(ra, dst, testBit(ra, ccr, guest.CCR_C, true))
	case 6: // NE: Z=0
		copyTemp(ra, dst, testBit(ra, ccr, guest.CCR_Z, false))
	case 7: // EQ: Z=1
		copyTemp(ra, dst, testBit(ra, ccr, guest.CCR_Z, true))
	case 8: // VC: V=0
		copyTemp(ra, dst, testBit(ra, ccr, guest.CCR_V, false))
	case 9: // VS: V=1
		copyTemp(ra, dst, testBit(ra, ccr, guest.CCR_V, true))
	case 10: // PL: N=0
		copyTemp(ra, dst, testBit(ra, ccr, guest.CCR_N, false))
	case 11: // MI: N=1
		copyTemp(ra, dst, testBit(ra, ccr, guest.CCR_N, true))
	case 12: // GE: N==V
		evalGE(ra, ccr, dst)
	case 13: // LT: N!=V
		evalLT(ra, ccr, dst)
	case 14: // GT: Z=0 && N==V
		z0 := testBit(ra, ccr, guest.CCR_Z, false)
		ge := ra.AllocTemp()
		evalGE(ra, ccr, ge)
		ra.Buf().LogicReg(emitter.Size32, emitter.OpAnd, dst, z0, ge)
		ra.FreeTemp(z0)
		ra.FreeTemp(ge)
	case 15: // LE: Z=1 || N!=V
		z1 := testBit(ra, ccr, guest.CCR_Z, true)
		lt := ra.AllocTemp()
		evalLT(ra, ccr, lt)
		ra.Buf().LogicReg(emitter.Size32, emitter.OpOrr, dst, z1, lt)
		ra.FreeTemp(z1)
		ra.FreeTemp(lt)
	}
}

func evalGE(ra *regalloc.State, ccr emitter.Reg, dst emitter.Reg) {
	n := testBit(ra, ccr, guest.CCR_N, true)
	v := testBit(ra, ccr, guest.CCR_V, true)
	ra.Buf().LogicReg(emitter.Size32, emitter.OpEor, dst, n, v)
	one := ra.AllocTemp()
	ra.Buf().MovImm64(emitter.Size32, one, 1)
	ra.Buf().LogicReg(emitter.Size32, emitter.OpEor, dst, dst, one)
	ra.FreeTemp(one)
	ra.FreeTemp(n)
	ra.FreeTemp(v)
}

func evalLT(ra *regalloc.State, ccr emitter.Reg, dst emitter.Reg) {
	n := testBit(ra, ccr, guest.CCR_N, true)
	v := testBit(ra, ccr, guest.CCR_V, true)
	ra.Buf().LogicReg(emitter.Size32, emitter.OpEor, dst, n, v)
	ra.FreeTemp(n)
	ra.FreeTemp(v)
}

// testBit returns a fresh temp holding 1 if (ccr&mask != 0) == wantSet,
// else 0.
func testBit(ra *regalloc.State, ccr emitter.Reg, mask uint8, wantSet bool) emitter.Reg {
	masked := ra.AllocTemp()
	maskReg := ra.AllocTemp()
	ra.Buf().MovImm64(emitter.Size32, maskReg, uint64(mask))
	ra.Buf().LogicReg(emitter.Size32, emitter.OpAnd, masked, ccr, maskReg)
	ra.FreeTemp(maskReg)
	cond := emitter.CondNE
	if !wantSet {
		cond = emitter.CondEQ
	}
	ra.Buf().Cmp(emitter.Size32, masked, emitter.ZR)
	ra.Buf().CSet(emitter.Size32, masked, cond)
	return masked
}

func copyTemp(ra *regalloc.State, dst, src emitter.Reg) {
	ra.Buf().AddReg(emitter.Size32, emitter.OpAdd, false, dst, src, emitter.ZR)
	ra.FreeTemp(src)
}
