package decoder

import (
	"github.com/michalsc/Emu68-sub001/internal/coreerr"
	"github.com/michalsc/Emu68-sub001/internal/emitter"
)

// decodeFPU handles the MC68881/68882 coprocessor general instruction
// format (line 0xF, CpId=1): register-to-register FMOVE/FADD/FSUB/
// FMUL/FDIV/FABS/FNEG/FSQRT/FCMP/FTST between the statically-bound
// FP0-FP7 guest registers. Memory-sourced operands (the extension
// word's R/M=1 source-specifier forms, including 80-bit extended and
// packed-decimal formats) and the FBcc/FDBcc/FSave/FRestore
// instructions are not implemented — Emu68's emulated FPU is IEEE-754
// double only, per the double-precision-only non-goal.
func (t *Translator) decodeFPU(pos int, opcode uint16, pc uint32) (int, EmitEvent, error) {
	if opcode&0xfe00 != 0xf200 {
		return 0, EventBreak, coreerr.New(coreerr.KindUnsupportedOpcode, pc, "FPU opcode %#04x (CpId != 1) not implemented", opcode)
	}
	if pos+1 >= len(t.Stream) {
		return 0, EventBreak, coreerr.New(coreerr.KindBadDisplacement, pc, "FPU extension word missing")
	}
	ext := t.Stream[pos+1]
	if ext&0x4000 != 0 {
		return 0, EventBreak, coreerr.New(coreerr.KindUnsupportedOpcode, pc, "FPU memory-sourced operand not implemented")
	}

	mode := uint8((opcode >> 3) & 7)
	reg := uint8(opcode & 7)
	if mode != 0 {
		return 0, EventBreak, coreerr.New(coreerr.KindUnsupportedOpcode, pc, "FPU non-register EA not implemented")
	}
	_ = reg

	srcFP := uint8((ext >> 10) & 7)
	dstFP := uint8((ext >> 7) & 7)
	opmode := uint8(ext & 0x7f)

	src := t.RA.MapGuestFPForRead(srcFP)

	switch opmode {
	case 0x00: // FMOVE
		dst := t.RA.MapGuestFPForWrite(dstFP)
		t.RA.Buf().FPUnary(emitter.FPPrecDouble, emitter.FMov, dst, src)
	case 0x18: // FABS
		dst := t.RA.MapGuestFPForWrite(dstFP)
		t.RA.Buf().FPUnary(emitter.FPPrecDouble, emitter.FAbs, dst, src)
	case 0x1a: // FNEG
		dst := t.RA.MapGuestFPForWrite(dstFP)
		t.RA.Buf().FPUnary(emitter.FPPrecDouble, emitter.FNeg, dst, src)
	case 0x04: // FSQRT
		dst := t.RA.MapGuestFPForWrite(dstFP)
		t.RA.Buf().FPUnary(emitter.FPPrecDouble, emitter.FSqrt, dst, src)
	case 0x22: // FADD
		dst := t.RA.MapGuestFPForWrite(dstFP)
		t.RA.Buf().FPBinary(emitter.FPPrecDouble, emitter.FPAdd, dst, dst, src)
	case 0x28: // FSUB
		dst := t.RA.MapGuestFPForWrite(dstFP)
		t.RA.Buf().FPBinary(emitter.FPPrecDouble, emitter.FPSub, dst, dst, src)
	case 0x23: // FMUL
		dst := t.RA.MapGuestFPForWrite(dstFP)
		t.RA.Buf().FPBinary(emitter.FPPrecDouble, emitter.FPMul, dst, dst, src)
	case 0x20: // FDIV
		dst := t.RA.MapGuestFPForWrite(dstFP)
		t.RA.Buf().FPBinary(emitter.FPPrecDouble, emitter.FPDiv, dst, dst, src)
	case 0x38: // FCMP
		dstRead := t.RA.MapGuestFPForRead(dstFP)
		t.RA.Buf().FPCompare(emitter.FPPrecDouble, dstRead, src)
		t.emitFPSRFromNZCV(pos)
	case 0x3a: // FTST
		t.RA.Buf().FPCompareZero(emitter.FPPrecDouble, src)
		t.emitFPSRFromNZCV(pos)
	default:
		return 0, EventBreak, coreerr.New(coreerr.KindUnsupportedOpcode, pc, "FPU opmode %#02x not implemented", opmode)
	}

	return 2, EventNone, nil
}

// emitFPSRFromNZCV copies the host condition flags FCMP/FTST just set
// into GuestState's FPSR condition-code byte, the FPU analogue of
// maybeEmitCCR — FPSR is always materialized here rather than gated by
// liveness analysis since flags.Analyzer only tracks integer CCR bits.
func (t *Translator) emitFPSRFromNZCV(pos int) {
	_ = pos
	fpsr := t.RA.ModifyFPSR()
	nzcv := t.RA.AllocTemp()
	t.RA.Buf().MrsNZCV(nzcv)
	t.RA.Buf().LogicReg(emitter.Size32, emitter.OpOrr, fpsr, fpsr, nzcv)
	t.RA.FreeTemp(nzcv)
}
