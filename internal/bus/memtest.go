package bus

import "log/slog"

// MemoryTest runs the walking-bit/walking-zero RAM exerciser the boot
// path invokes when buptest=N/bupiter=K are present in the boot
// arguments (config.BootArgs.MemTestPattern/MemTestIters) —
// start.c calls this ps_buptest(buptest, bupiter), whose own body
// lives in a ps_protocol translation unit outside this pack; only its
// call site and argument shapes are grounded in original_source, so
// the walking patterns below follow the conventional RAM-exerciser
// technique the two arguments imply rather than a transliterated
// routine. Failures are advisory: a bad bit is logged and the test
// continues, mirroring the boot path's un-gated continuation into the
// rest of startup regardless of buptest's outcome.
type MemoryTest struct {
	Log *slog.Logger
}

// Result reports how many addresses in a MemoryTest run disagreed
// with the pattern written, and the first failing address for a
// log line to point at.
type Result struct {
	Addresses  int
	Mismatches int
	FirstBad   uint32
}

// Run exercises ram with pattern distinct walking-bit passes, each
// repeated iters times, writing and reading back every 32-bit word in
// the window. pattern selects which walking families to run: bit 0
// enables a walking-ones pass (single set bit stepped across the
// word), bit 1 a walking-zeros pass (single clear bit in an
// otherwise-set word), matching buptest's bitmask shape as used
// elsewhere in the boot argument parser's small-integer option
// conventions.
func (m *MemoryTest) Run(ram *ShadowRAM, pattern uint32, iters uint32) Result {
	if iters == 0 {
		iters = 1
	}
	var res Result
	words := len(ram.mem) / 4
	res.Addresses = words

	for iter := uint32(0); iter < iters; iter++ {
		if pattern&1 != 0 {
			m.walkingOnes(ram, words, &res)
		}
		if pattern&2 != 0 {
			m.walkingZeros(ram, words, &res)
		}
	}
	if res.Mismatches > 0 && m.Log != nil {
		m.Log.Warn("memory test failures", "mismatches", res.Mismatches, "first_bad_addr", res.FirstBad)
	}
	return res
}

func (m *MemoryTest) walkingOnes(ram *ShadowRAM, words int, res *Result) {
	for bit := 0; bit < 32; bit++ {
		want := uint32(1) << uint(bit)
		m.sweep(ram, words, want, res)
	}
}

func (m *MemoryTest) walkingZeros(ram *ShadowRAM, words int, res *Result) {
	for bit := 0; bit < 32; bit++ {
		want := ^(uint32(1) << uint(bit))
		m.sweep(ram, words, want, res)
	}
}

func (m *MemoryTest) sweep(ram *ShadowRAM, words int, pattern uint32, res *Result) {
	base := ram.base
	for i := 0; i < words; i++ {
		addr := base + uint32(i)*4
		if err := ram.Write(addr, 4, uint64(pattern)); err != nil {
			continue
		}
		got, err := ram.Read(addr, 4)
		if err != nil || uint32(got) != pattern {
			res.Mismatches++
			if res.Mismatches == 1 {
				res.FirstBad = addr
			}
		}
	}
}
