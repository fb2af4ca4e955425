package decoder

import (
	"github.com/michalsc/Emu68-sub001/internal/coreerr"
	"github.com/michalsc/Emu68-sub001/internal/emitter"
	"github.com/michalsc/Emu68-sub001/internal/regalloc"
)

// decodeBranch handles BRA/BSR/Bcc (line 6). None of these ever write
// host code that branches directly to the target: the guest PC the
// branch resolves to is simply stored into GuestState.PC and the Unit
// ends, leaving ICache lookup/chaining to UnitBuilder and Dispatcher.
// A conditional branch therefore always produces two successors (taken
// and fall-through) and reports EventDoubleExit; BRA/BSR are
// unconditional and report EventBlockEnd.
func (t *Translator) decodeBranch(pos int, opcode uint16, pc uint32) (int, EmitEvent, error) {
	cc := uint8((opcode >> 8) & 0xf)
	disp8 := int8(opcode & 0xff)

	words := 1
	var dispVal int32
	switch disp8 {
	case 0:
		if pos+1 >= len(t.Stream) {
			return 0, EventBreak, coreerr.New(coreerr.KindBadDisplacement, pc, "Bcc word displacement missing")
		}
		dispVal = int32(int16(t.Stream[pos+1]))
		words = 2
	case -1:
		if pos+2 >= len(t.Stream) {
			return 0, EventBreak, coreerr.New(coreerr.KindBadDisplacement, pc, "Bcc long displacement missing")
		}
		dispVal = int32(uint32(t.Stream[pos+1])<<16 | uint32(t.Stream[pos+2]))
		words = 3
	default:
		dispVal = int32(disp8)
	}
	targetPC := uint32(int32(pc) + 2 + dispVal)
	if targetPC <= pc {
		t.backwardBranchSeen = true
	}

	isBSR := cc == 1
	if isBSR {
		return t.emitBSR(pos, words, pc, targetPC)
	}

	if cc == 0 { // BRA
		target := t.RA.AllocTemp()
		t.RA.Buf().MovImm64(emitter.Size64, target, uint64(targetPC))
		t.emitStorePC(target)
		t.RA.FreeTemp(target)
		t.lastTarget, t.lastTarget2 = targetPC, 0
		return words, EventBlockEnd, nil
	}

	// Conditional: both successors are resolved at translate time as
	// literal PCs, but which one GuestState.PC ends up holding depends
	// on the runtime flag test, so the Unit ends with both fall-through
	// and taken targets needing their own ExitStub (spec.md §4.4).
	ccr := t.RA.GetCCR()
	pred := t.RA.AllocTemp()
	evalCondition(t.RA, ccr, cc, pred)

	fallThroughPC := pc + uint32(words)*2
	takenReg := t.RA.AllocTemp()
	fallReg := t.RA.AllocTemp()
	t.RA.Buf().MovImm64(emitter.Size64, takenReg, uint64(targetPC))
	t.RA.Buf().MovImm64(emitter.Size64, fallReg, uint64(fallThroughPC))

	selected := t.RA.AllocTemp()
	t.RA.Buf().Cmp(emitter.Size32, pred, emitter.ZR)
	t.RA.Buf().CondSel(emitter.Size64, emitter.CSelPlain, selected, takenReg, fallReg, emitter.CondNE)
	t.emitStorePC(selected)

	t.RA.FreeTemp(pred)
	t.RA.FreeTemp(takenReg)
	t.RA.FreeTemp(fallReg)
	t.RA.FreeTemp(selected)
	t.lastTarget, t.lastTarget2 = targetPC, fallThroughPC
	return words, EventDoubleExit, nil
}

func (t *Translator) emitBSR(pos, words int, pc uint32, targetPC uint32) (int, EmitEvent, error) {
	retPC := t.RA.AllocTemp()
	t.RA.Buf().MovImm64(emitter.Size64, retPC, uint64(pc+uint32(words)*2))
	a7 := regalloc.MapGuestA(7)
	t.RA.EmitAddImm32(a7, a7, -4)
	t.RA.Buf().LoadStoreUnsignedOffset(emitter.Width32, emitter.OpStore, retPC, a7, 0)
	t.RA.MarkADirty(7)
	t.RA.FreeTemp(retPC)

	target := t.RA.AllocTemp()
	t.RA.Buf().MovImm64(emitter.Size64, target, uint64(targetPC))
	t.emitStorePC(target)
	t.RA.FreeTemp(target)
	t.lastTarget, t.lastTarget2 = targetPC, 0
	return words, EventBlockEnd, nil
}
