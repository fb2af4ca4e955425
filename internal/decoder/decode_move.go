package decoder

import (
	"github.com/michalsc/Emu68-sub001/internal/emitter"
	"github.com/michalsc/Emu68-sub001/internal/guest"
	"github.com/michalsc/Emu68-sub001/internal/regalloc"
)

// decodeMove handles lines 1-3: MOVE and MOVEA, which share one shape
// across all three operand sizes — only the size field (bits 13:12)
// differs, already folded into `line` by the caller.
func (t *Translator) decodeMove(pos int, opcode uint16, pc uint32) (int, EmitEvent, error) {
	sizeBits := uint8(opcode >> 12 & 3) // 1=byte,3=word,2=long in raw MOVE encoding
	var sizeBytes uint32
	switch sizeBits {
	case 1:
		sizeBytes = 1
	case 3:
		sizeBytes = 2
	default:
		sizeBytes = 4
	}

	srcMode := uint8((opcode >> 3) & 7)
	srcReg := uint8(opcode & 7)
	dstReg := uint8((opcode >> 9) & 7)
	dstMode := uint8((opcode >> 6) & 7)

	src, srcWords, err := decodeEA(t.RA, t.Stream, pos, srcMode, srcReg, sizeBytes, pc)
	if err != nil {
		return 0, EventBreak, err
	}

	val := t.RA.AllocTemp()
	loadInto(t.RA, src, val)

	isMovea := dstMode == 1
	if isMovea {
		dst := regalloc.MapGuestA(dstReg)
		if sizeBytes == 2 {
			signExtendWord(t.RA, val)
		}
		t.RA.Buf().AddReg(emitter.Size64, emitter.OpAdd, false, dst, val, emitter.ZR)
		t.RA.MarkADirty(dstReg)
		t.RA.FreeTemp(val)
		return 1 + srcWords, EventNone, nil
	}

	dstEA, dstWords, err := decodeEA(t.RA, t.Stream, pos+srcWords, dstMode, dstReg, sizeBytes, pc)
	if err != nil {
		t.RA.FreeTemp(val)
		return 0, EventBreak, err
	}

	// MOVE always sets N/Z and clears V/C; X is unaffected. Liveness
	// analysis still gates whether the store into CC happens at all.
	t.maybeEmitCCR(pos, guest.CCR_N|guest.CCR_Z|guest.CCR_V|guest.CCR_C, func(ccrDst emitter.Reg) {
		t.RA.Buf().Cmp(emitter.Size32, val, emitter.ZR)
		t.emitNZCVToCCR(ccrDst, guest.CCR_N|guest.CCR_Z|guest.CCR_V|guest.CCR_C, true)
	})

	if dstEA.kind == eaDataReg {
		writeDReg(t, dstReg, val, sizeBytes)
	} else {
		storeFrom(t.RA, dstEA, val)
	}
	t.RA.FreeTemp(val)
	return 1 + srcWords + dstWords, EventNone, nil
}

// signExtendWord sign-extends the low 16 bits of reg out to the full
// 64-bit register in place, using a shift-left/arithmetic-shift-right
// pair through a scratch shift-amount register since the emitter only
// exposes the register-shift-amount form of LSL/ASR, not an immediate
// bitfield move.
func signExtendWord(ra *regalloc.State, reg emitter.Reg) {
	amount := ra.AllocTemp()
	ra.Buf().MovImm64(emitter.Size32, amount, 16)
	ra.Buf().ShiftReg(emitter.Size64, emitter.OpLsl, reg, reg, amount)
	ra.Buf().ShiftReg(emitter.Size64, emitter.OpAsr, reg, reg, amount)
	ra.FreeTemp(amount)
}
