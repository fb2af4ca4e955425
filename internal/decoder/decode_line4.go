package decoder

import (
	"github.com/michalsc/Emu68-sub001/internal/coreerr"
	"github.com/michalsc/Emu68-sub001/internal/emitter"
	"github.com/michalsc/Emu68-sub001/internal/guest"
	"github.com/michalsc/Emu68-sub001/internal/regalloc"
)

// decodeLine4 handles the 0x4xxx miscellaneous group: NOP, RTS, JMP,
// JSR, LEA, CLR, NEG, NOT, TST, EXT, SWAP, and the traps/STOP/RTE that
// end a Unit outright.
func (t *Translator) decodeLine4(pos int, opcode uint16, pc uint32) (int, EmitEvent, error) {
	switch {
	case opcode == 0x4e71: // NOP
		t.RA.Buf().Nop()
		return 1, EventNone, nil

	case opcode == 0x4e75: // RTS
		return t.emitRTS(pc)

	case opcode&0xfff8 == 0x4e68 || opcode&0xffc0 == 0x4e80: // JSR
		return t.emitJSR(pos, opcode, pc)

	case opcode&0xffc0 == 0x4ec0: // JMP
		return t.emitJMP(pos, opcode, pc)

	case opcode&0xf1c0 == 0x41c0: // LEA
		return t.emitLEA(pos, opcode, pc)

	case opcode&0xff00 == 0x4200: // CLR
		return t.emitClr(pos, opcode, pc)

	case opcode&0xff00 == 0x4400: // NEG
		return t.emitUnaryALU(pos, opcode, pc, true)

	case opcode&0xff00 == 0x4600: // NOT
		return t.emitUnaryALU(pos, opcode, pc, false)

	case opcode&0xff00 == 0x4a00: // TST
		return t.emitTst(pos, opcode, pc)

	case opcode&0xfff8 == 0x4840: // SWAP
		return t.emitSwap(opcode)

	case opcode&0xfeb8 == 0x4880: // EXT/EXTB
		return t.emitExt(opcode)

	case opcode == 0x4e72: // STOP
		return 2, EventStop, nil

	case opcode == 0x4e73: // RTE
		return 1, EventBlockEnd, nil

	case opcode&0xfff0 == 0x4e40: // TRAP
		return 1, EventBreak, nil

	case opcode == 0x4afc: // ILLEGAL
		return 1, EventBreak, nil

	default:
		return 0, EventBreak, coreerr.New(coreerr.KindUnsupportedOpcode, pc, "line4 opcode %#04x not implemented", opcode)
	}
}

func (t *Translator) emitRTS(pc uint32) (int, EmitEvent, error) {
	a7 := regalloc.MapGuestA(7)
	ret := t.RA.AllocTemp()
	t.RA.Buf().LoadStoreUnsignedOffset(emitter.Width32, emitter.OpLoadUnsigned, ret, a7, 0)
	t.RA.EmitAddImm32(a7, a7, 4)
	t.RA.MarkADirty(7)
	// The host can't branch to a guest address directly; Dispatcher's
	// ICache lookup resumes from here, so RTS just stores the new PC
	// and ends the Unit as a chained, address-computed exit.
	t.emitStorePC(ret)
	t.RA.FreeTemp(ret)
	return 1, EventBlockEnd, nil
}

func (t *Translator) emitJMP(pos int, opcode uint16, pc uint32) (int, EmitEvent, error) {
	mode := uint8((opcode >> 3) & 7)
	reg := uint8(opcode & 7)
	e, words, err := decodeEA(t.RA, t.Stream, pos, mode, reg, 4, pc)
	if err != nil {
		return 0, EventBreak, err
	}
	// JMP (An)/JMP d16(An)/etc target the computed address itself, not
	// a value loaded through it.
	var target emitter.Reg
	if e.kind == eaMemory {
		target = e.addr
	} else {
		target = t.RA.AllocTemp()
		loadInto(t.RA, e, target)
	}
	t.emitStorePC(target)
	return 1 + words, EventBlockEnd, nil
}

func (t *Translator) emitJSR(pos int, opcode uint16, pc uint32) (int, EmitEvent, error) {
	mode := uint8((opcode >> 3) & 7)
	reg := uint8(opcode & 7)
	e, words, err := decodeEA(t.RA, t.Stream, pos, mode, reg, 4, pc)
	if err != nil {
		return 0, EventBreak, err
	}
	var target emitter.Reg
	if e.kind == eaMemory {
		target = e.addr
	} else {
		target = t.RA.AllocTemp()
		loadInto(t.RA, e, target)
	}
	retPC := t.RA.AllocTemp()
	t.RA.Buf().MovImm64(emitter.Size64, retPC, uint64(pc+uint32(1+words)*2))
	a7 := regalloc.MapGuestA(7)
	t.RA.EmitAddImm32(a7, a7, -4)
	t.RA.Buf().LoadStoreUnsignedOffset(emitter.Width32, emitter.OpStore, retPC, a7, 0)
	t.RA.MarkADirty(7)
	t.RA.FreeTemp(retPC)
	t.emitStorePC(target)
	return 1 + words, EventBlockEnd, nil
}

func (t *Translator) emitLEA(pos int, opcode uint16, pc uint32) (int, EmitEvent, error) {
	mode := uint8((opcode >> 3) & 7)
	reg := uint8(opcode & 7)
	dReg := uint8((opcode >> 9) & 7)
	e, words, err := decodeEA(t.RA, t.Stream, pos, mode, reg, 4, pc)
	if err != nil {
		return 0, EventBreak, err
	}
	if e.kind != eaMemory {
		return 0, EventBreak, coreerr.New(coreerr.KindUnsupportedOpcode, pc, "LEA with non-memory operand")
	}
	dst := regalloc.MapGuestA(dReg)
	t.RA.Buf().AddReg(emitter.Size64, emitter.OpAdd, false, dst, e.addr, emitter.ZR)
	t.RA.MarkADirty(dReg)
	return 1 + words, EventNone, nil
}

func (t *Translator) emitClr(pos int, opcode uint16, pc uint32) (int, EmitEvent, error) {
	sizeBytes := sizeOf(uint8((opcode >> 6) & 3))
	mode := uint8((opcode >> 3) & 7)
	reg := uint8(opcode & 7)
	e, words, err := decodeEA(t.RA, t.Stream, pos, mode, reg, sizeBytes, pc)
	if err != nil {
		return 0, EventBreak, err
	}
	t.maybeEmitCCR(pos, guest.CCR_N|guest.CCR_Z|guest.CCR_V|guest.CCR_C, func(ccrDst emitter.Reg) {
		// N=0,V=0,C=0,Z=1 unconditionally: clear all four, then add Z.
		clear := t.RA.AllocTemp()
		t.RA.Buf().MovImm64(emitter.Size32, clear, uint64(^uint32(guest.CCR_N|guest.CCR_Z|guest.CCR_V|guest.CCR_C)))
		t.RA.Buf().LogicReg(emitter.Size32, emitter.OpAnd, ccrDst, ccrDst, clear)
		t.RA.FreeTemp(clear)
		t.RA.EmitAddImm32(ccrDst, ccrDst, int32(guest.CCR_Z))
	})
	if e.kind == eaDataReg {
		writeDReg(t, reg, emitter.ZR, sizeBytes)
	} else {
		storeFrom(t.RA, e, emitter.ZR)
	}
	return 1 + words, EventNone, nil
}

func (t *Translator) emitUnaryALU(pos int, opcode uint16, pc uint32, sub bool) (int, EmitEvent, error) {
	sizeBytes := sizeOf(uint8((opcode >> 6) & 3))
	mode := uint8((opcode >> 3) & 7)
	reg := uint8(opcode & 7)
	e, words, err := decodeEA(t.RA, t.Stream, pos, mode, reg, sizeBytes, pc)
	if err != nil {
		return 0, EventBreak, err
	}
	val := t.RA.AllocTemp()
	loadInto(t.RA, e, val)
	dst := t.RA.AllocTemp()
	if sub {
		t.RA.Buf().AddReg(emitter.Size32, emitter.OpSub, true, dst, emitter.ZR, val)
	} else {
		ones := t.RA.AllocTemp()
		t.RA.Buf().MovImm64(emitter.Size32, ones, 0xffffffff)
		t.RA.Buf().LogicReg(emitter.Size32, emitter.OpEor, dst, val, ones)
		t.RA.FreeTemp(ones)
		t.RA.Buf().AddImm(emitter.Size32, emitter.OpSub, true, emitter.ZR, dst, 0, false)
	}
	writes := uint8(guest.CCR_N | guest.CCR_Z | guest.CCR_V | guest.CCR_C)
	if sub {
		writes |= guest.CCR_X
	}
	// NEG is a subtraction (0-val); NOT compares its result against
	// zero, which leaves host C set and V clear. Both read the subtract
	// polarity, which gives NOT guest C=0 and V=0.
	t.maybeEmitNZCV(pos, writes, true)
	if e.kind == eaDataReg {
		writeDReg(t, reg, dst, sizeBytes)
	} else {
		storeFrom(t.RA, e, dst)
	}
	t.RA.FreeTemp(val)
	t.RA.FreeTemp(dst)
	return 1 + words, EventNone, nil
}

func (t *Translator) emitTst(pos int, opcode uint16, pc uint32) (int, EmitEvent, error) {
	sizeBytes := sizeOf(uint8((opcode >> 6) & 3))
	mode := uint8((opcode >> 3) & 7)
	reg := uint8(opcode & 7)
	e, words, err := decodeEA(t.RA, t.Stream, pos, mode, reg, sizeBytes, pc)
	if err != nil {
		return 0, EventBreak, err
	}
	val := t.RA.AllocTemp()
	loadInto(t.RA, e, val)
	t.maybeEmitCCR(pos, guest.CCR_N|guest.CCR_Z|guest.CCR_V|guest.CCR_C, func(ccrDst emitter.Reg) {
		t.RA.Buf().Cmp(emitter.Size32, val, emitter.ZR)
		t.emitNZCVToCCR(ccrDst, guest.CCR_N|guest.CCR_Z|guest.CCR_V|guest.CCR_C, true)
	})
	t.RA.FreeTemp(val)
	return 1 + words, EventNone, nil
}

func (t *Translator) emitSwap(opcode uint16) (int, EmitEvent, error) {
	reg := uint8(opcode & 7)
	d := regalloc.MapGuestD(reg)
	amount := t.RA.AllocTemp()
	t.RA.Buf().MovImm64(emitter.Size32, amount, 16)
	t.RA.Buf().ShiftReg(emitter.Size32, emitter.OpRor, d, d, amount)
	t.RA.FreeTemp(amount)
	t.RA.MarkDDirty(reg)
	return 1, EventNone, nil
}

func (t *Translator) emitExt(opcode uint16) (int, EmitEvent, error) {
	reg := uint8(opcode & 7)
	opmode := (opcode >> 6) & 7
	d := regalloc.MapGuestD(reg)
	amount := t.RA.AllocTemp()
	switch opmode {
	case 2: // EXT.W: byte -> word
		t.RA.Buf().MovImm64(emitter.Size32, amount, 24)
	case 3: // EXT.L: word -> long
		t.RA.Buf().MovImm64(emitter.Size32, amount, 16)
	default: // EXTB.L: byte -> long
		t.RA.Buf().MovImm64(emitter.Size32, amount, 24)
	}
	if opmode == 2 {
		// EXT.W writes only the low word; Dn's upper word is kept.
		tmp := t.RA.AllocTemp()
		t.RA.Buf().ShiftReg(emitter.Size32, emitter.OpLsl, tmp, d, amount)
		t.RA.Buf().ShiftReg(emitter.Size32, emitter.OpAsr, tmp, tmp, amount)
		t.RA.FreeTemp(amount)
		writeDReg(t, reg, tmp, 2)
		t.RA.FreeTemp(tmp)
		return 1, EventNone, nil
	}
	t.RA.Buf().ShiftReg(emitter.Size32, emitter.OpLsl, d, d, amount)
	t.RA.Buf().ShiftReg(emitter.Size32, emitter.OpAsr, d, d, amount)
	t.RA.FreeTemp(amount)
	t.RA.MarkDDirty(reg)
	return 1, EventNone, nil
}

// emitStorePC writes a computed guest PC value into GuestState.PC so
// the dispatcher's ICache lookup resumes from the right address; the
// actual host return to the dispatch loop happens via the Unit's
// shared epilogue, not here.
func (t *Translator) emitStorePC(val emitter.Reg) {
	ctx := t.RA.GetCTX()
	t.RA.Buf().LoadStoreUnsignedOffset(emitter.Width32, emitter.OpStore, val, ctx, uint32(regalloc.OffsetPC()))
}
