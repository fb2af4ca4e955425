// Package stats holds the runtime counters spec.md §6 says are exposed
// back to the guest through the BusBackend window over GuestState:
// JIT_UNIT_COUNT, JIT_CACHE_FREE, JIT_CACHE_TOTAL, JIT_CACHE_MISS,
// JIT_CONTROL and JIT_CONTROL2. INSN_COUNT is not held here; it is
// guest.State.InsnCount.
package stats

import "sync/atomic"

// Counters is safe for concurrent increment from core 0 and concurrent
// read from whichever core services the guest's MMIO read of the
// statistics window.
type Counters struct {
	UnitCount  atomic.Int64
	CacheFree  atomic.Int64
	CacheTotal atomic.Int64
	CacheMiss  atomic.Int64
	Control    atomic.Uint32
	Control2   atomic.Uint32
}

// Control bit layout (JIT_CONTROL), packed per spec.md §6.
const (
	ControlSoftFlush  = 1 << 0
	controlDepthShift = 1
	controlDepthMask  = 0xff
	controlInlineShift = 9
	controlInlineMask  = 0xff
	controlLoopShift   = 17
	controlLoopMask    = 0x7fff
)

// SetControl packs softflush, instruction-budget depth, branch-inline
// range and loop count into JIT_CONTROL.
func (c *Counters) SetControl(softFlush bool, depth, inlineRange uint8, loopCount uint16) {
	var v uint32
	if softFlush {
		v |= ControlSoftFlush
	}
	v |= uint32(depth&controlDepthMask) << controlDepthShift
	v |= uint32(inlineRange&controlInlineMask) << controlInlineShift
	v |= uint32(loopCount&controlLoopMask) << controlLoopShift
	c.Control.Store(v)
}

// Control2 bit layout (JIT_CONTROL2).
const (
	Control2ChipSlowdown = 1 << 0
	Control2DbfSlowdown  = 1 << 1
	Control2Blitwait     = 1 << 2
	control2RatioShift   = 3
	control2RatioMask    = 0xff
	control2CCRDShift    = 11
	control2CCRDMask     = 0x1f
)

// SetControl2 packs the chip/dbf slowdown flags, slowdown ratio,
// CCR-scan depth and blitwait flag into JIT_CONTROL2.
func (c *Counters) SetControl2(chipSlow, dbfSlow, blitwait bool, ratio uint8, ccrDepth uint8) {
	var v uint32
	if chipSlow {
		v |= Control2ChipSlowdown
	}
	if dbfSlow {
		v |= Control2DbfSlowdown
	}
	if blitwait {
		v |= Control2Blitwait
	}
	v |= uint32(ratio&control2RatioMask) << control2RatioShift
	v |= uint32(ccrDepth&control2CCRDMask) << control2CCRDShift
	c.Control2.Store(v)
}
