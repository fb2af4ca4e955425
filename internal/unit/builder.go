package unit

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/michalsc/Emu68-sub001/internal/config"
	"github.com/michalsc/Emu68-sub001/internal/coreerr"
	"github.com/michalsc/Emu68-sub001/internal/decoder"
	"github.com/michalsc/Emu68-sub001/internal/emitter"
	"github.com/michalsc/Emu68-sub001/internal/flags"
	"github.com/michalsc/Emu68-sub001/internal/regalloc"
)

// Builder is spec.md §4.4's UnitBuilder: it drives decoder.Translator
// one instruction at a time, closing the Unit when the decoder returns
// a terminating EmitEvent or the per-unit instruction budget
// (config.BootArgs.InsnBudget) is reached.
//
// Every control-flow opcode in package decoder already resolves its
// successor PC(s) at translate time and stores the chosen value into
// GuestState.PC before ending the Unit (the "store-PC-and-end" strategy
// documented on decoder.EmitEvent) — there is never a host branch left
// dangling into a side-exit stub the way original_source/
// M68k_Translator.c's EMIT_NativeBranch patches one in after the fact.
// ExitStub therefore carries bookkeeping (kind, target PC(s), and the
// epilogue offset they fall into) rather than a fixup descriptor: there
// is nothing left to patch. This is a deliberate simplification; see
// DESIGN.md.
type Builder struct {
	cfg *config.BootArgs
}

// NewBuilder returns a Builder that will honor cfg's instruction budget
// and FlagAnalyzer scan depth for every Unit it builds.
func NewBuilder(cfg *config.BootArgs) *Builder {
	return &Builder{cfg: cfg}
}

// Build translates stream (the guest instruction words starting at
// guestPC) into a new Unit. stream may run well past the Unit's
// eventual end; Build only consumes as many words as decoding actually
// needs.
func (b *Builder) Build(stream []uint16, guestPC uint32) (*Unit, error) {
	buf := emitter.NewBuffer()
	ra := regalloc.New(buf)
	analyzer := flags.New(b.cfg.CCRScanDepth)
	tr := decoder.New(ra, analyzer, stream, guestPC)

	u := &Unit{GuestEntryPC: guestPC, GuestLow: guestPC, GuestHigh: guestPC}
	budget := int(b.cfg.InsnBudget)

	b.emitPrologue(ra)

	pos := 0
	insns := 0
decodeLoop:
	for {
		if pos >= len(stream) {
			break
		}
		if insns >= budget {
			break
		}

		words, event, err := tr.DecodeOne(pos)
		if err != nil {
			b.emitGuardTrap(buf, err)
			break
		}
		if words <= 0 {
			words = 1
		}
		pos += words
		insns++
		if end := guestPC + uint32(pos)*2 - 1; end > u.GuestHigh {
			u.GuestHigh = end
		}

		switch event {
		case decoder.EventNone:
			continue
		case decoder.EventBlockEnd:
			target, _ := tr.LastTargets()
			u.stubs = append(u.stubs, ExitStub{Kind: StubSingle, Target: target, Offset: buf.Len()})
			break decodeLoop
		case decoder.EventDoubleExit:
			target, target2 := tr.LastTargets()
			u.stubs = append(u.stubs, ExitStub{Kind: StubDual, Target: target, Target2: target2, Offset: buf.Len()})
			break decodeLoop
		case decoder.EventStop, decoder.EventBreak, decoder.EventExitBlock:
			break decodeLoop
		}
	}

	u.InnerLoop = tr.InnerLoop()
	u.InsnCount = insns
	b.emitEpilogue(ra, buf)

	u.CRC32 = CRC32(stream[:pos])
	u.HostCode = buf.Bytes()
	return u, nil
}

// CRC32 computes spec.md §3's checksum over a guest instruction-word
// range — the same computation Build uses to stamp a freshly built
// Unit, exported so ICache's verification pass can recompute it over
// whatever the guest's current memory holds.
func CRC32(stream []uint16) uint32 {
	return crc32.ChecksumIEEE(encodeBigEndian(stream))
}

// emitPrologue loads every statically bound guest register from
// GuestState into its host register before any opcode handler runs.
// Under the store-PC-and-end architecture a Unit never chains directly
// into the next one the way original_source/M68k_Translator.c's output
// does; Dispatcher's Go code runs between every pair of Units and is
// free to clobber x0-x15/d8-d15, so each Unit must re-establish its own
// register file rather than trusting it survived from the last call.
func (b *Builder) emitPrologue(ra *regalloc.State) {
	ra.LoadGPRRegisters()
	ra.LoadFPRegisters()
}

// emitEpilogue appends spec.md §4.4's normal-exit sequence: flush dirty
// FP registers, flush dirty D/A registers, flush CC/FPCR/FPSR, then
// return to the dispatcher. The cumulative instruction counter (step
// (e)) is GuestState.InsnCount, bumped by Dispatcher rather than here,
// since the Unit's own instruction count is only known to Builder after
// the fact and Dispatcher already owns the GuestState write path for
// the counters it exposes to the guest (spec.md §6).
func (b *Builder) emitEpilogue(ra *regalloc.State, buf *emitter.Buffer) {
	ra.FlushFPRegisters()
	ra.FlushGPRRegisters()
	ra.FlushAll()
	buf.RetLR()
}

// emitGuardTrap converts a recoverable decode-time error into spec.md
// §4.1's guard trap: a HLT carrying the error kind in its immediate so
// a post-mortem disassembly can identify why translation stopped short,
// ending the Unit exactly as if EventBreak had been returned.
func (b *Builder) emitGuardTrap(buf *emitter.Buffer, err error) {
	code := uint16(0xF000)
	if te, ok := err.(*coreerr.TranslatorError); ok {
		code = 0xF000 | uint16(te.Kind)
	}
	buf.Hlt(code)
}

// encodeBigEndian serializes a guest instruction stream back into the
// big-endian byte layout spec.md §3 says the guest's memory actually
// holds, so CRC32(guest_memory[low..high]) is computed over the same
// bytes the guest program counter range covers rather than over the
// host's native uint16 layout.
func encodeBigEndian(stream []uint16) []byte {
	out := make([]byte, len(stream)*2)
	for i, w := range stream {
		binary.BigEndian.PutUint16(out[i*2:], w)
	}
	return out
}
