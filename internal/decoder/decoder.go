package decoder

import (
	"github.com/michalsc/Emu68-sub001/internal/coreerr"
	"github.com/michalsc/Emu68-sub001/internal/emitter"
	"github.com/michalsc/Emu68-sub001/internal/flags"
	"github.com/michalsc/Emu68-sub001/internal/guest"
	"github.com/michalsc/Emu68-sub001/internal/regalloc"
)

// EmitEvent is the sum type the Decoder returns alongside the words it
// consumed, telling UnitBuilder how this Unit's translation should end
// (spec.md §4.4's redesign flag: a typed event replaces the original's
// ad-hoc sentinel return codes).
type EmitEvent uint8

const (
	// EventNone means keep decoding the next instruction in this Unit.
	EventNone EmitEvent = iota
	// EventBlockEnd means this instruction naturally ends the Unit
	// (an unconditional branch/jump/return) but guest execution
	// continues linearly from wherever it points — a plain chained
	// exit, not a guest trap.
	EventBlockEnd
	// EventStop means the guest executed STOP: halt until an
	// interrupt, the dispatcher's job to arbitrate.
	EventStop
	// EventBreak marks a BKPT or illegal-instruction encounter: hand
	// control back to the dispatcher for guest exception reflection.
	EventBreak
	// EventExitBlock means there is no instruction left to decode at
	// pos (it is past the end of the supplied stream); the Unit exits
	// cleanly to let the dispatcher re-enter the cache lookup for the
	// next PC. The instruction budget (config.BootArgs.InsnBudget) is
	// enforced by UnitBuilder itself, not signalled through this event.
	EventExitBlock
	// EventDoubleExit marks a conditional branch whose two successors
	// both need an ExitStub (spec.md §4.4's two-exit-stub case).
	EventDoubleExit
)

// Translator holds the per-Unit decode state: the buffer/regalloc pair
// every opcode handler emits into, the flag-liveness analyzer, and the
// guest instruction stream being translated.
type Translator struct {
	RA       *regalloc.State
	Analyzer *flags.Analyzer
	Stream   []uint16
	GuestPC  uint32 // guest address of Stream[0]

	// backwardBranchSeen flags that a Bcc/DBcc in this Unit targeted
	// an earlier word in the same stream — the inner-loop heuristic
	// spec.md §4.4 uses to decide whether to spend extra effort
	// keeping the loop's working set in registers across iterations.
	backwardBranchSeen bool

	// lastTarget/lastTarget2 hold the successor guest PC(s) resolved
	// by whichever opcode handler just returned EventBlockEnd or
	// EventDoubleExit, valid only for the instruction that set them —
	// UnitBuilder reads them immediately via LastTargets before
	// decoding anything else. RTS/JMP-through-register targets are not
	// known until the Unit actually runs, so those leave both fields 0.
	lastTarget, lastTarget2 uint32
}

// New returns a Translator ready to decode stream, whose first word is
// at guest address guestPC.
func New(ra *regalloc.State, analyzer *flags.Analyzer, stream []uint16, guestPC uint32) *Translator {
	return &Translator{RA: ra, Analyzer: analyzer, Stream: stream, GuestPC: guestPC}
}

// InnerLoop reports whether this Unit contains a backward branch,
// spec.md §4.4's loop-detection signal.
func (t *Translator) InnerLoop() bool { return t.backwardBranchSeen }

// LastTargets returns the successor guest PC(s) the most recent
// EventBlockEnd/EventDoubleExit resolved, for UnitBuilder to stamp onto
// the ExitStub it queues. Both are 0 for a register-indirect control
// transfer (RTS, JMP (An)) whose target only exists at run time.
func (t *Translator) LastTargets() (target, target2 uint32) {
	return t.lastTarget, t.lastTarget2
}

// DecodeOne decodes the instruction at word index pos, emits the
// equivalent host code, and returns how many 16-bit words it consumed
// plus the end-of-unit event (EventNone if decoding should continue).
func (t *Translator) DecodeOne(pos int) (words int, event EmitEvent, err error) {
	if pos >= len(t.Stream) {
		return 0, EventExitBlock, nil
	}
	t.lastTarget, t.lastTarget2 = 0, 0

	opcode := t.Stream[pos]
	pc := t.GuestPC + uint32(pos)*2
	line := opcode >> 12

	switch line {
	case 0x0:
		return t.decodeImmediateALU(pos, opcode, pc)
	case 0x1, 0x2, 0x3:
		return t.decodeMove(pos, opcode, pc)
	case 0x4:
		return t.decodeLine4(pos, opcode, pc)
	case 0x5:
		return t.decodeLine5(pos, opcode, pc)
	case 0x6:
		return t.decodeBranch(pos, opcode, pc)
	case 0x7:
		return t.decodeMoveq(pos, opcode, pc)
	case 0x8, 0x9, 0xB, 0xC, 0xD:
		return t.decodeALU(pos, opcode, pc)
	case 0xF:
		return t.decodeFPU(pos, opcode, pc)
	default:
		return 0, EventBreak, coreerr.New(coreerr.KindUnsupportedOpcode, pc, "opcode %#04x (line %X) not implemented", opcode, line)
	}
}

// sizeOf decodes the standard 2-bit size field (00=byte,01=word,10=long)
// used by MOVE, ALU-immediate and most line-8/9/B/C/D opcodes.
func sizeOf(bits uint8) uint32 {
	switch bits {
	case 0:
		return 1
	case 1:
		return 2
	default:
		return 4
	}
}

// maybeEmitCCR wraps a flag-producing opcode: it asks the Analyzer
// whether any of wouldWrite is read downstream from pos, and only then
// does the caller-supplied emit function run. When the scan finds the
// bits dead, the host compare/arith that would have fed the CCR splice
// still executes (it's needed for the result anyway) but the CCR store
// is skipped entirely.
func (t *Translator) maybeEmitCCR(pos int, wouldWrite flags.Bits, emit func(dst emitter.Reg)) {
	if !t.Analyzer.Live(t.Stream, pos, wouldWrite) {
		return
	}
	dst := t.RA.ModifyCCR()
	emit(dst)
}

// maybeEmitNZCV is maybeEmitCCR specialized for the ordinary case: the
// immediately preceding host compare/arithmetic instruction just set
// PSTATE, and that's the only input the splice needs.
func (t *Translator) maybeEmitNZCV(pos int, wouldWrite flags.Bits, isSubtract bool) {
	t.maybeEmitCCR(pos, wouldWrite, func(ccrDst emitter.Reg) {
		t.emitNZCVToCCR(ccrDst, wouldWrite, isSubtract)
	})
}

// emitNZCVToCCR splices the host condition flags set by the
// immediately preceding compare/arithmetic instruction into ccrDst,
// replacing exactly the guest CCR bits wouldWrite names and leaving
// every other bit of ccrDst untouched. It rebuilds each flag
// individually off PSTATE (CSEL Rd, #mask, #0, cond) rather than
// repositioning MRS NZCV's raw bits as a block: the host's N31/Z30/
// C29/V28 layout and the guest CCR's C0/V1/Z2/N3 layout don't just
// differ by a shift, C and V are in swapped relative order between
// the two. isSubtract applies the borrow/carry polarity a
// subtract-family opcode needs: AArch64's carry is set on "no
// borrow", 68k's C/X flags are set on borrow, so SUB/SUBX/NEG/CMP
// read the carry condition inverted relative to ADD/ADDX.
func (t *Translator) emitNZCVToCCR(ccrDst emitter.Reg, wouldWrite flags.Bits, isSubtract bool) {
	buf := t.RA.Buf()
	carryCond := emitter.CondCS
	if isSubtract {
		carryCond = emitter.CondCC
	}

	type flagBit struct {
		mask uint8
		cond emitter.Cond
	}
	var bits []flagBit
	if wouldWrite&guest.CCR_C != 0 {
		bits = append(bits, flagBit{guest.CCR_C, carryCond})
	}
	if wouldWrite&guest.CCR_V != 0 {
		bits = append(bits, flagBit{guest.CCR_V, emitter.CondVS})
	}
	if wouldWrite&guest.CCR_Z != 0 {
		bits = append(bits, flagBit{guest.CCR_Z, emitter.CondEQ})
	}
	if wouldWrite&guest.CCR_N != 0 {
		bits = append(bits, flagBit{guest.CCR_N, emitter.CondMI})
	}
	if wouldWrite&guest.CCR_X != 0 {
		// X always mirrors C for every opcode that redefines it.
		bits = append(bits, flagBit{guest.CCR_X, carryCond})
	}
	if len(bits) == 0 {
		return
	}

	acc := t.RA.AllocTemp()
	mask := t.RA.AllocTemp()
	buf.MovImm64(emitter.Size32, mask, uint64(bits[0].mask))
	buf.CondSel(emitter.Size32, emitter.CSelPlain, acc, mask, emitter.ZR, bits[0].cond)
	for _, fb := range bits[1:] {
		buf.MovImm64(emitter.Size32, mask, uint64(fb.mask))
		sel := t.RA.AllocTemp()
		buf.CondSel(emitter.Size32, emitter.CSelPlain, sel, mask, emitter.ZR, fb.cond)
		buf.LogicReg(emitter.Size32, emitter.OpOrr, acc, acc, sel)
		t.RA.FreeTemp(sel)
	}

	buf.MovImm64(emitter.Size32, mask, uint64(^uint32(wouldWrite)))
	buf.LogicReg(emitter.Size32, emitter.OpAnd, ccrDst, ccrDst, mask)
	buf.LogicReg(emitter.Size32, emitter.OpOrr, ccrDst, ccrDst, acc)

	t.RA.FreeTemp(mask)
	t.RA.FreeTemp(acc)
}
