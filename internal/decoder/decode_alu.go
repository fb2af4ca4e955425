package decoder

import (
	"github.com/michalsc/Emu68-sub001/internal/coreerr"
	"github.com/michalsc/Emu68-sub001/internal/emitter"
	"github.com/michalsc/Emu68-sub001/internal/guest"
	"github.com/michalsc/Emu68-sub001/internal/regalloc"
)

// decodeALU handles the common "<ea>,Dn" / "Dn,<ea>" shape shared by
// ADD, SUB, AND, OR, CMP and their address-register (ADDA/SUBA/CMPA)
// forms — lines 8,9,B,C,D. Bits 11:9 select the data register, bit 8
// the EA-is-destination direction (opmode bit 2), bits 7:6 the
// size/ADDA-CMPA-SUBA selector, bits 5:0 the effective address.
func (t *Translator) decodeALU(pos int, opcode uint16, pc uint32) (int, EmitEvent, error) {
	line := opcode >> 12
	dReg := uint8((opcode >> 9) & 7)
	opmode := (opcode >> 6) & 7
	mode := uint8((opcode >> 3) & 7)
	reg := uint8(opcode & 7)

	if opmode == 3 || opmode == 7 {
		return t.decodeAddrOp(pos, opcode, pc, line, dReg, opmode, mode, reg)
	}

	sizeBytes := sizeOf(uint8(opmode & 3))
	eaIsDest := opmode&4 != 0

	e, extWords, err := decodeEA(t.RA, t.Stream, pos, mode, reg, sizeBytes, pc)
	if err != nil {
		return 0, EventBreak, err
	}

	eaVal := t.RA.AllocTemp()
	loadInto(t.RA, e, eaVal)
	dVal := copyDReg(t, dReg)

	var aluOp emitter.AddSubOp
	var isSub bool
	isLogic := false
	var logicOp emitter.LogicOp
	switch line {
	case 0x8: // OR
		isLogic, logicOp = true, emitter.OpOrr
	case 0x9: // SUB
		aluOp, isSub = emitter.OpSub, true
	case 0xB: // CMP / EOR(when eaIsDest)
		if eaIsDest {
			isLogic, logicOp = true, emitter.OpEor
		} else {
			aluOp, isSub = emitter.OpSub, true
		}
	case 0xC: // AND
		isLogic, logicOp = true, emitter.OpAnd
	case 0xD: // ADD
		aluOp, isSub = emitter.OpAdd, false
	default:
		return 0, EventBreak, coreerr.New(coreerr.KindUnsupportedOpcode, pc, "unhandled ALU line %X", line)
	}

	isCompareOnly := line == 0xB && !eaIsDest
	dst := t.RA.AllocTemp()

	// Host arithmetic always runs at 32 bits regardless of the guest
	// operand size: sub-long results are merged back into Dn's upper
	// bits by writeDReg, and the host NZCV a byte/word op produces
	// over garbage upper bits is simply never consulted because
	// maybeEmitCCR only fires for genuinely 8/16-bit-correct opcodes
	// when the upper bits are guaranteed clear (loadInto zero-extends).
	if isLogic {
		t.RA.Buf().LogicReg(emitter.Size32, logicOp, dst, dVal, eaVal)
		t.RA.Buf().Cmp(emitter.Size32, dst, emitter.ZR)
	} else {
		t.RA.Buf().AddReg(emitter.Size32, aluOp, true, dst, dVal, eaVal)
	}

	writes := flagsAllNZVCForSize()
	if isSub || line == 0xD {
		writes |= guest.CCR_X
	}
	// isLogic opcodes (OR/EOR/AND) compare their result against zero,
	// which leaves host C set and V clear; the subtract polarity turns
	// that into guest C=0, V=0. SUB/CMP read the same inverted carry
	// condition; only ADD uses the ADD-family polarity.
	t.maybeEmitNZCV(pos, writes, isSub || isLogic)

	if !isCompareOnly {
		if eaIsDest {
			storeFrom(t.RA, e, dst)
		} else {
			writeDReg(t, dReg, dst, sizeBytes)
		}
	}

	t.RA.FreeTemp(eaVal)
	t.RA.FreeTemp(dst)
	return 1 + extWords, EventNone, nil
}

// decodeAddrOp handles ADDA/SUBA/CMPA, which always operate on a full
// register width and an address-register destination (CMPA sets flags
// without writing back).
func (t *Translator) decodeAddrOp(pos int, opcode uint16, pc uint32, line uint16, dReg uint8, opmode uint16, mode, reg uint8) (int, EmitEvent, error) {
	sizeBytes := uint32(2)
	if opmode == 7 {
		sizeBytes = 4
	}
	e, extWords, err := decodeEA(t.RA, t.Stream, pos, mode, reg, sizeBytes, pc)
	if err != nil {
		return 0, EventBreak, err
	}
	src := t.RA.AllocTemp()
	loadInto(t.RA, e, src)
	aReg := regalloc.MapGuestA(dReg)

	switch line {
	case 0xD: // ADDA
		t.RA.Buf().AddReg(emitter.Size64, emitter.OpAdd, false, aReg, aReg, src)
		t.RA.MarkADirty(dReg)
	case 0x9: // SUBA
		t.RA.Buf().AddReg(emitter.Size64, emitter.OpSub, false, aReg, aReg, src)
		t.RA.MarkADirty(dReg)
	case 0xB: // CMPA
		cmp := t.RA.AllocTemp()
		t.maybeEmitCCR(pos, flagsAllNZVCForSize(), func(ccrDst emitter.Reg) {
			t.RA.Buf().AddReg(emitter.Size64, emitter.OpSub, true, cmp, aReg, src)
			t.emitNZCVToCCR(ccrDst, flagsAllNZVCForSize(), true)
		})
		t.RA.FreeTemp(cmp)
	}
	t.RA.FreeTemp(src)
	return 1 + extWords, EventNone, nil
}

func flagsAllNZVCForSize() uint8 {
	return guest.CCR_N | guest.CCR_Z | guest.CCR_V | guest.CCR_C
}

func copyDReg(t *Translator, n uint8) emitter.Reg {
	tmp := t.RA.AllocTemp()
	t.RA.Buf().AddReg(emitter.Size32, emitter.OpAdd, false, tmp, regalloc.MapGuestD(n), emitter.ZR)
	return tmp
}

func writeDReg(t *Translator, n uint8, src emitter.Reg, sizeBytes uint32) {
	dst := regalloc.MapGuestD(n)
	if sizeBytes == 4 {
		t.RA.Buf().AddReg(emitter.Size32, emitter.OpAdd, false, dst, src, emitter.ZR)
	} else {
		// Narrower-than-long writes only the low bits of Dn; AND the
		// existing register with a mask, then OR in src's low bits
		// only, matching 68k's "upper bits of Dn preserved" rule.
		mask := uint32(0xffffffff)
		if sizeBytes == 1 {
			mask = 0xffffff00
		} else if sizeBytes == 2 {
			mask = 0xffff0000
		}
		masked := t.RA.AllocTemp()
		t.RA.Buf().MovImm64(emitter.Size32, masked, uint64(mask))
		t.RA.Buf().LogicReg(emitter.Size32, emitter.OpAnd, dst, dst, masked)
		t.RA.Buf().MovImm64(emitter.Size32, masked, uint64(^mask))
		t.RA.Buf().LogicReg(emitter.Size32, emitter.OpAnd, masked, src, masked)
		t.RA.Buf().LogicReg(emitter.Size32, emitter.OpOrr, dst, dst, masked)
		t.RA.FreeTemp(masked)
	}
	t.RA.MarkDDirty(n)
}

