package decoder

import (
	"github.com/michalsc/Emu68-sub001/internal/coreerr"
	"github.com/michalsc/Emu68-sub001/internal/emitter"
	"github.com/michalsc/Emu68-sub001/internal/guest"
	"github.com/michalsc/Emu68-sub001/internal/regalloc"
)

// decodeImmediateALU handles line 0: the ORI/ANDI/SUBI/ADDI/EORI/CMPI
// immediate-operand family, their CCR-targeted special cases, and
// BTST (static bit-number and dynamic register-held forms). BCHG,
// BCLR, BSET and the 68020 CAS/CAS2/RTM extensions are not
// implemented; every 68000/68010 program that only tests bits rather
// than mutating them still translates correctly.
func (t *Translator) decodeImmediateALU(pos int, opcode uint16, pc uint32) (int, EmitEvent, error) {
	switch opcode {
	case 0x003c, 0x023c, 0x0a3c: // ORI/ANDI/EORI to CCR
		return t.decodeLogicToCCR(pos, opcode, pc)
	}

	if opcode&0xf9c0 == 0x0800 { // static BTST #imm,<ea>
		return t.decodeBtstStatic(pos, opcode, pc)
	}
	if opcode&0xf1c0 == 0x0100 { // dynamic BTST Dn,<ea>
		return t.decodeBtstDynamic(pos, opcode, pc)
	}

	opBits := (opcode >> 9) & 7
	sizeBits := uint8((opcode >> 6) & 3)
	if sizeBits == 3 {
		return 0, EventBreak, coreerr.New(coreerr.KindUnsupportedOpcode, pc, "line0 opcode %#04x has no byte/word/long size field", opcode)
	}
	sizeBytes := sizeOf(sizeBits)
	mode := uint8((opcode >> 3) & 7)
	reg := uint8(opcode & 7)

	switch opBits {
	case 0, 1, 2, 3, 5, 6:
		return t.decodeImmALUOp(pos, opcode, pc, opBits, mode, reg, sizeBytes)
	default:
		return 0, EventBreak, coreerr.New(coreerr.KindUnsupportedOpcode, pc, "line0 opcode %#04x not implemented", opcode)
	}
}

func (t *Translator) decodeLogicToCCR(pos int, opcode uint16, pc uint32) (int, EmitEvent, error) {
	if pos+1 >= len(t.Stream) {
		return 0, EventBreak, coreerr.New(coreerr.KindBadDisplacement, pc, "CCR immediate word missing")
	}
	imm := uint8(t.Stream[pos+1])
	ccr := t.RA.ModifyCCR()
	immReg := t.RA.AllocTemp()
	t.RA.Buf().MovImm64(emitter.Size32, immReg, uint64(imm))
	switch opcode {
	case 0x003c: // ORI to CCR
		t.RA.Buf().LogicReg(emitter.Size32, emitter.OpOrr, ccr, ccr, immReg)
	case 0x023c: // ANDI to CCR
		t.RA.Buf().LogicReg(emitter.Size32, emitter.OpAnd, ccr, ccr, immReg)
	case 0x0a3c: // EORI to CCR
		t.RA.Buf().LogicReg(emitter.Size32, emitter.OpEor, ccr, ccr, immReg)
	}
	t.RA.FreeTemp(immReg)
	return 2, EventNone, nil
}

// decodeImmALUOp is the shared body for ORI(0)/ANDI(1)/SUBI(2)/ADDI(3)/
// EORI(5)/CMPI(6) <ea>.
func (t *Translator) decodeImmALUOp(pos int, opcode uint16, pc uint32, opBits uint16, mode, reg uint8, sizeBytes uint32) (int, EmitEvent, error) {
	immWords := 1
	if sizeBytes == 4 {
		immWords = 2
	}
	if pos+immWords >= len(t.Stream) {
		return 0, EventBreak, coreerr.New(coreerr.KindBadDisplacement, pc, "line0 immediate word(s) missing")
	}
	var imm uint32
	if sizeBytes == 4 {
		imm = uint32(t.Stream[pos+1])<<16 | uint32(t.Stream[pos+2])
	} else {
		imm = uint32(t.Stream[pos+1])
	}

	e, eaWords, err := decodeEA(t.RA, t.Stream, pos+immWords, mode, reg, sizeBytes, pc)
	if err != nil {
		return 0, EventBreak, err
	}

	val := t.RA.AllocTemp()
	loadInto(t.RA, e, val)
	immReg := t.RA.AllocTemp()
	t.RA.Buf().MovImm64(emitter.Size32, immReg, uint64(imm))
	dst := t.RA.AllocTemp()

	isCompareOnly := opBits == 6
	isSub := opBits == 2 || opBits == 6
	writes := uint8(guest.CCR_N | guest.CCR_Z | guest.CCR_V | guest.CCR_C)
	if opBits == 2 || opBits == 3 {
		writes |= guest.CCR_X
	}

	switch opBits {
	case 0: // ORI
		t.RA.Buf().LogicReg(emitter.Size32, emitter.OpOrr, dst, val, immReg)
	case 1: // ANDI
		t.RA.Buf().LogicReg(emitter.Size32, emitter.OpAnd, dst, val, immReg)
	case 5: // EORI
		t.RA.Buf().LogicReg(emitter.Size32, emitter.OpEor, dst, val, immReg)
	case 2: // SUBI
		t.RA.Buf().AddReg(emitter.Size32, emitter.OpSub, true, dst, val, immReg)
	case 3: // ADDI
		t.RA.Buf().AddReg(emitter.Size32, emitter.OpAdd, true, dst, val, immReg)
	case 6: // CMPI
		t.RA.Buf().AddReg(emitter.Size32, emitter.OpSub, true, dst, val, immReg)
	}

	t.maybeEmitCCR(pos, writes, func(ccrDst emitter.Reg) {
		if !isSub && opBits != 3 {
			t.RA.Buf().Cmp(emitter.Size32, dst, emitter.ZR)
		}
		// ORI/ANDI/EORI compare against zero (host C=1, V=0), which the
		// subtract polarity turns into guest C=0, V=0; only ADDI uses
		// the ADD polarity.
		t.emitNZCVToCCR(ccrDst, writes, opBits != 3)
	})

	if !isCompareOnly {
		if e.kind == eaDataReg {
			writeDReg(t, reg, dst, sizeBytes)
		} else {
			storeFrom(t.RA, e, dst)
		}
	}

	t.RA.FreeTemp(val)
	t.RA.FreeTemp(immReg)
	t.RA.FreeTemp(dst)
	return 1 + immWords + eaWords, EventNone, nil
}

func (t *Translator) decodeBtstStatic(pos int, opcode uint16, pc uint32) (int, EmitEvent, error) {
	if pos+1 >= len(t.Stream) {
		return 0, EventBreak, coreerr.New(coreerr.KindBadDisplacement, pc, "BTST immediate word missing")
	}
	bitNum := uint8(t.Stream[pos+1])
	mode := uint8((opcode >> 3) & 7)
	reg := uint8(opcode & 7)
	sizeBytes := uint32(4)
	if mode != 0 {
		sizeBytes = 1
		bitNum &= 7
	} else {
		bitNum &= 31
	}
	e, eaWords, err := decodeEA(t.RA, t.Stream, pos+1, mode, reg, sizeBytes, pc)
	if err != nil {
		return 0, EventBreak, err
	}
	t.emitBtst(pos, e, bitNum)
	return 2 + eaWords, EventNone, nil
}

func (t *Translator) decodeBtstDynamic(pos int, opcode uint16, pc uint32) (int, EmitEvent, error) {
	bitReg := uint8((opcode >> 9) & 7)
	mode := uint8((opcode >> 3) & 7)
	reg := uint8(opcode & 7)
	sizeBytes := uint32(4)
	if mode != 0 {
		sizeBytes = 1
	}
	e, eaWords, err := decodeEA(t.RA, t.Stream, pos, mode, reg, sizeBytes, pc)
	if err != nil {
		return 0, EventBreak, err
	}
	mask := uint32(31)
	if sizeBytes == 1 {
		mask = 7
	}
	bitNumReg := t.RA.AllocTemp()
	maskReg := t.RA.AllocTemp()
	t.RA.Buf().AddReg(emitter.Size32, emitter.OpAdd, false, bitNumReg, regalloc.MapGuestD(bitReg), emitter.ZR)
	t.RA.Buf().MovImm64(emitter.Size32, maskReg, uint64(mask))
	t.RA.Buf().LogicReg(emitter.Size32, emitter.OpAnd, bitNumReg, bitNumReg, maskReg)
	t.RA.FreeTemp(maskReg)
	t.emitBtstDynamic(pos, e, bitNumReg)
	t.RA.FreeTemp(bitNumReg)
	return 1 + eaWords, EventNone, nil
}

// emitBtst tests a compile-time-known bit number and stores the
// inverted bit into CCR's Z flag (Z=1 means the bit was clear).
func (t *Translator) emitBtst(pos int, e ea, bitNum uint8) {
	val := t.RA.AllocTemp()
	loadInto(t.RA, e, val)
	t.maybeEmitCCR(pos, guest.CCR_Z, func(ccrDst emitter.Reg) {
		z := testBit(t.RA, val, 1<<(bitNum&31), false)
		zBit := t.RA.AllocTemp()
		t.RA.Buf().MovImm64(emitter.Size32, zBit, uint64(guest.CCR_Z))
		t.RA.Buf().LogicReg(emitter.Size32, emitter.OpAnd, zBit, zBit, z)
		maskReg := t.RA.AllocTemp()
		t.RA.Buf().MovImm64(emitter.Size32, maskReg, uint64(^uint32(guest.CCR_Z)))
		t.RA.Buf().LogicReg(emitter.Size32, emitter.OpAnd, ccrDst, ccrDst, maskReg)
		t.RA.Buf().LogicReg(emitter.Size32, emitter.OpOrr, ccrDst, ccrDst, zBit)
		t.RA.FreeTemp(maskReg)
		t.RA.FreeTemp(zBit)
		t.RA.FreeTemp(z)
	})
	t.RA.FreeTemp(val)
}

// emitBtstDynamic mirrors emitBtst for a runtime bit number, shifting
// the operand right by the bit count instead of masking a literal.
func (t *Translator) emitBtstDynamic(pos int, e ea, bitNumReg emitter.Reg) {
	val := t.RA.AllocTemp()
	loadInto(t.RA, e, val)
	t.maybeEmitCCR(pos, guest.CCR_Z, func(ccrDst emitter.Reg) {
		shifted := t.RA.AllocTemp()
		t.RA.Buf().ShiftReg(emitter.Size32, emitter.OpLsr, shifted, val, bitNumReg)
		oneReg := t.RA.AllocTemp()
		t.RA.Buf().MovImm64(emitter.Size32, oneReg, 1)
		t.RA.Buf().LogicReg(emitter.Size32, emitter.OpAnd, shifted, shifted, oneReg)
		t.RA.Buf().Cmp(emitter.Size32, shifted, emitter.ZR)
		zFlag := t.RA.AllocTemp()
		t.RA.Buf().CSet(emitter.Size32, zFlag, emitter.CondEQ)
		zBit := t.RA.AllocTemp()
		t.RA.Buf().MovImm64(emitter.Size32, zBit, uint64(guest.CCR_Z))
		t.RA.Buf().LogicReg(emitter.Size32, emitter.OpAnd, zBit, zBit, zFlag)
		maskReg := t.RA.AllocTemp()
		t.RA.Buf().MovImm64(emitter.Size32, maskReg, uint64(^uint32(guest.CCR_Z)))
		t.RA.Buf().LogicReg(emitter.Size32, emitter.OpAnd, ccrDst, ccrDst, maskReg)
		t.RA.Buf().LogicReg(emitter.Size32, emitter.OpOrr, ccrDst, ccrDst, zBit)
		t.RA.FreeTemp(maskReg)
		t.RA.FreeTemp(zBit)
		t.RA.FreeTemp(zFlag)
		t.RA.FreeTemp(oneReg)
		t.RA.FreeTemp(shifted)
	})
	t.RA.FreeTemp(val)
}
