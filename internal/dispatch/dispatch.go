// Package dispatch implements Dispatcher (spec.md §4.6): the
// cooperative loop on core 0 that is the sole caller of every Unit's
// machine code, handling interrupt injection (§4.6.1) between Units and
// keeping a small return-address predictor (§4.6.2) that only counts
// hits and misses; it never replaces the cache lookup.
package dispatch

import (
	"context"
	"log/slog"
	"unsafe"

	"github.com/michalsc/Emu68-sub001/internal/coreerr"
	"github.com/michalsc/Emu68-sub001/internal/guest"
	"github.com/michalsc/Emu68-sub001/internal/icache"
	"github.com/michalsc/Emu68-sub001/internal/stats"
	"github.com/michalsc/Emu68-sub001/internal/unit"
)

// instructionCacheEnable is CACR's bit 15, matching
// original_source/src/aarch64/start.c's CACR=0x80008000 reset value —
// the low enable bit gates the translator path Dispatcher takes.
const instructionCacheEnable = 1 << 15

// retStackDepth is the size of the return-address predictor
// ring (spec.md §4.6.2); small and fixed, matching the "ring buffer"
// wording rather than a growable structure.
const retStackDepth = 8

// GuestMemory is the slice of BusBackend (spec.md §4.8) Dispatcher
// needs directly: the instruction stream ICache translates, the vector
// table fetch, and the exception-frame writes interrupt injection
// pushes onto the supervisor stack. The full BusBackend contract lives
// in internal/bus; Dispatcher only depends on this narrower interface
// so it can be tested against a fake without pulling in MMIO decoding.
type GuestMemory interface {
	FetchWords(addr uint32, n int) []uint16
	WriteWord(addr uint32, v uint16)
	WriteLong(addr uint32, v uint32)
}

// Dispatcher is spec.md §4.6's dispatcher: the only caller of translated
// host code, running on core 0.
type Dispatcher struct {
	State *guest.State
	Cache *icache.ICache
	Mem   GuestMemory
	Stats *stats.Counters

	fetchWindow int

	lastPC   uint32
	lastUnit *unit.Unit
	haveLast bool

	retStack         [retStackDepth]uint32
	retTop           int
	retHits, retMiss uint64

	log *slog.Logger
}

// New returns a Dispatcher. fetchWindow bounds how many guest
// instruction words are pulled from mem per translation attempt; it
// should be at least the configured instruction budget to avoid
// truncating a Unit mid-build.
func New(state *guest.State, cache *icache.ICache, mem GuestMemory, st *stats.Counters, fetchWindow int, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		State:       state,
		Cache:       cache,
		Mem:         mem,
		Stats:       st,
		fetchWindow: fetchWindow,
		log:         log,
	}
}

// Run drives the dispatch loop until ctx is cancelled or a fatal error
// is raised anywhere in the translator or dispatcher. It is the only
// place *coreerr.FatalError is recovered (spec.md §7): every other
// layer lets it propagate.
func (d *Dispatcher) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			fe, ok := r.(*coreerr.FatalError)
			if !ok {
				panic(r)
			}
			d.log.Error("fatal core halt", "msg", fe.Msg, "data", fe.Data)
			err = fe
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		d.step()
	}
}

// step runs exactly one dispatch iteration: spec.md §4.6's five
// numbered points, with the return-stack predictor (§4.6.2) checked,
// for its hit/miss counters only, before the ICache lookup.
func (d *Dispatcher) step() {
	if d.State.PendingSummary() {
		d.injectInterrupt()
	}

	u := d.resolveUnit()

	callUnit(u.HostEntry, uintptr(unsafe.Pointer(d.State)))

	d.State.InsnCount += uint64(u.InsnCount)
	d.lastPC = d.State.PC
	d.lastUnit = u
	d.haveLast = true

	d.recordReturnPrediction(u)
}

// ReturnPredictorStats reports how often predictReturn's popped value
// matched the PC the Unit actually returned to. Exposed for diagnostics
// only: under the store-PC-and-end architecture every RTS still
// round-trips through Run's loop regardless of a hit, so unlike
// original_source/M68k_Translator.c's return-stack (which lets chained
// Units skip the dispatcher entirely on a hit) this predictor cannot
// change the cost of a return, only measure how well-formed the guest
// call/return pairing is.
func (d *Dispatcher) ReturnPredictorStats() (hits, misses uint64) {
	return d.retHits, d.retMiss
}

// resolveUnit implements spec.md §4.6 steps 2-5: the icache-enable
// check, the "same Unit as last time" fast path, and otherwise a full
// ICache lookup-or-translate.
func (d *Dispatcher) resolveUnit() *unit.Unit {
	pc := d.State.PC

	if predicted, ok := d.predictReturn(); ok {
		if predicted == pc {
			d.retHits++
		} else {
			d.retMiss++
		}
	}

	if d.State.CACR&instructionCacheEnable != 0 && d.haveLast && pc == d.lastPC {
		return d.lastUnit
	}

	if d.State.CACR&instructionCacheEnable != 0 {
		if cached := d.Cache.Lookup(pc); cached != nil {
			return cached
		}
	}

	if d.Stats != nil {
		d.Stats.CacheMiss.Add(1)
	}
	stream := d.Mem.FetchWords(pc, d.fetchWindow)
	u, err := d.Cache.LookupOrTranslate(stream, pc)
	if err != nil {
		d.reflectTranslatorError(err)
		return d.resolveUnit()
	}
	return u
}

// reflectTranslatorError turns a recoverable translation failure into
// the guest-visible illegal-instruction exception spec.md §7 calls for,
// by redirecting PC to the matching vector the same way injectInterrupt
// redirects it for a hardware interrupt.
func (d *Dispatcher) reflectTranslatorError(err error) {
	te, ok := err.(*coreerr.TranslatorError)
	vector := uint32(0x10) // illegal instruction, vector 4 * 4
	if ok && te.Kind == coreerr.KindBadDisplacement {
		vector = 0x0c // vector 3: address error
	}
	d.pushExceptionFrame(vector)
}

// recordReturnPrediction pushes Target2 of every dual exit stub of u
// (the fall-through PC of a Bcc/DBcc) onto the return-address ring.
// BSR and JSR end their Units in single-target stubs, so their return
// addresses are not recorded.
func (d *Dispatcher) recordReturnPrediction(u *unit.Unit) {
	for _, s := range u.Stubs() {
		if s.Kind == unit.StubDual {
			d.retStack[d.retTop%retStackDepth] = s.Target2
			d.retTop++
		}
	}
}

// predictReturn consumes the most recently pushed prediction.
// resolveUnit pops it once on every step, whatever shape the previous
// Unit had, and only counts whether it matched the PC being resolved;
// the ordinary lookup path runs either way.
func (d *Dispatcher) predictReturn() (uint32, bool) {
	if d.retTop == 0 {
		return 0, false
	}
	d.retTop--
	return d.retStack[d.retTop%retStackDepth], true
}

// injectInterrupt is spec.md §4.6.1's interrupt-injection path.
func (d *Dispatcher) injectInterrupt() {
	level, src := d.State.SelectInterrupt()
	if src == guest.SourceNone {
		return
	}
	if level <= d.State.IPM() && level != 7 {
		return
	}

	pc, sr := d.State.PC, d.State.SR

	d.State.SR |= guest.SR_S
	d.State.SR &^= guest.SR_T0 | guest.SR_T1
	d.State.SetIPM(level)

	vectorOffset := uint32(0x60) + uint32(level)*4
	d.pushFrame(sr, pc, vectorOffset)

	d.State.PC = d.fetchVectorPC(vectorOffset)
	d.State.ClearInterrupt(src)

	d.haveLast = false
}

// pushExceptionFrame mirrors injectInterrupt's frame push for a
// synchronous guest exception (illegal opcode, address error) rather
// than a hardware interrupt: same frame shape, no SR level change
// beyond entering supervisor mode.
func (d *Dispatcher) pushExceptionFrame(vectorOffset uint32) {
	pc, sr := d.State.PC, d.State.SR
	d.State.SR |= guest.SR_S
	d.pushFrame(sr, pc, vectorOffset)
	d.State.PC = d.fetchVectorPC(vectorOffset)
	d.haveLast = false
}

// pushFrame writes the six-byte SR/PC pair plus the frame-format/
// vector-offset word spec.md §4.6.1 describes onto the active
// supervisor stack, selecting ISP or MSP as A7 before writing.
func (d *Dispatcher) pushFrame(sr uint16, pc, vectorOffset uint32) {
	sp := d.State.A7() - 8
	d.Mem.WriteWord(sp, sr)
	d.Mem.WriteLong(sp+2, pc)
	d.Mem.WriteWord(sp+6, uint16(vectorOffset))
	d.State.SetA7(sp)
}

// fetchVectorPC loads the 32-bit vector table entry at VBR+vectorOffset.
func (d *Dispatcher) fetchVectorPC(vectorOffset uint32) uint32 {
	words := d.Mem.FetchWords(d.State.VBR+vectorOffset, 2)
	return uint32(words[0])<<16 | uint32(words[1])
}
