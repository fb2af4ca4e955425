package decoder

import (
	"github.com/michalsc/Emu68-sub001/internal/emitter"
	"github.com/michalsc/Emu68-sub001/internal/guest"
)

// decodeMoveq handles MOVEQ #imm8,Dn (line 7): the 8-bit immediate is
// sign-extended into a full 32-bit data register and sets N/Z, always
// clearing V/C.
func (t *Translator) decodeMoveq(pos int, opcode uint16, pc uint32) (int, EmitEvent, error) {
	dReg := uint8((opcode >> 9) & 7)
	imm := int32(int8(opcode & 0xff))

	val := t.RA.AllocTemp()
	t.RA.Buf().MovImm64(emitter.Size32, val, uint64(uint32(imm)))

	t.maybeEmitCCR(pos, guest.CCR_N|guest.CCR_Z|guest.CCR_V|guest.CCR_C, func(ccrDst emitter.Reg) {
		t.RA.Buf().Cmp(emitter.Size32, val, emitter.ZR)
		t.emitNZCVToCCR(ccrDst, guest.CCR_N|guest.CCR_Z|guest.CCR_V|guest.CCR_C, true)
	})

	writeDReg(t, dReg, val, 4)
	t.RA.FreeTemp(val)
	return 1, EventNone, nil
}
