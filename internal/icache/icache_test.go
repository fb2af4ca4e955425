package icache

import (
	"testing"

	"github.com/michalsc/Emu68-sub001/internal/config"
	"github.com/michalsc/Emu68-sub001/internal/stats"
	"github.com/michalsc/Emu68-sub001/internal/unit"
)

func testCfg() *config.BootArgs {
	return &config.BootArgs{InsnBudget: 64, CCRScanDepth: 20}
}

func newTestCache(t *testing.T, heapSize int) *ICache {
	t.Helper()
	heap, err := NewHeap(heapSize)
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}
	t.Cleanup(func() { heap.Close() })
	return New(heap, unit.NewBuilder(testCfg()), &stats.Counters{}, 6)
}

// moveq #0,D0 ; rts
var moveqRTS = []uint16{0x7000, 0x4e75}

func TestLookupOrTranslateInstallsUnitAtBucketAndLRUHead(t *testing.T) {
	ic := newTestCache(t, 64*1024)

	u, err := ic.LookupOrTranslate(moveqRTS, 0x2000)
	if err != nil {
		t.Fatalf("LookupOrTranslate: %v", err)
	}
	if u.GuestEntryPC != 0x2000 {
		t.Fatalf("GuestEntryPC = %#x, want 0x2000", u.GuestEntryPC)
	}

	idx := bucketIndex(0x2000, ic.hashMask)
	if ic.buckets[idx] != u {
		t.Fatalf("installed unit is not at its bucket head")
	}
	if ic.lruHead != u {
		t.Fatalf("installed unit is not at LRU head")
	}
	if ic.count != 1 {
		t.Fatalf("count = %d, want 1", ic.count)
	}
}

func TestLookupOrTranslateSecondCallHitsCache(t *testing.T) {
	ic := newTestCache(t, 64*1024)

	first, err := ic.LookupOrTranslate(moveqRTS, 0x2000)
	if err != nil {
		t.Fatalf("first LookupOrTranslate: %v", err)
	}
	second, err := ic.LookupOrTranslate(moveqRTS, 0x2000)
	if err != nil {
		t.Fatalf("second LookupOrTranslate: %v", err)
	}
	if first != second {
		t.Fatalf("expected cache hit to return the same Unit pointer")
	}
	if second.UseCount != 2 {
		t.Fatalf("UseCount = %d, want 2", second.UseCount)
	}
	if ic.count != 1 {
		t.Fatalf("count = %d, want 1 after a hit", ic.count)
	}
}

func TestLookupOrTranslateRetranslatesOnCRCMismatch(t *testing.T) {
	ic := newTestCache(t, 64*1024)

	first, err := ic.LookupOrTranslate(moveqRTS, 0x2000)
	if err != nil {
		t.Fatalf("first LookupOrTranslate: %v", err)
	}

	changed := []uint16{0x7001, 0x4e75}
	second, err := ic.LookupOrTranslate(changed, 0x2000)
	if err != nil {
		t.Fatalf("second LookupOrTranslate: %v", err)
	}
	if first == second {
		t.Fatalf("expected a new Unit after guest memory changed under a cached entry")
	}
	if ic.count != 1 {
		t.Fatalf("count = %d, want 1 (stale unit evicted)", ic.count)
	}
}

func TestLookupMissingPCReturnsNil(t *testing.T) {
	ic := newTestCache(t, 64*1024)
	if u := ic.Lookup(0x1234); u != nil {
		t.Fatalf("Lookup on empty cache returned %+v, want nil", u)
	}
}

func TestInstallEvictsLRUTailWhenHeapIsFull(t *testing.T) {
	// Size the heap to hold exactly one Unit so the second install
	// must evict the first before it can succeed.
	probe, err := unit.NewBuilder(testCfg()).Build(moveqRTS, 0x1000)
	if err != nil {
		t.Fatalf("probe Build: %v", err)
	}
	aligned := (len(probe.HostCode) + heapAlign - 1) &^ (heapAlign - 1)
	ic := newTestCache(t, aligned)

	if _, err := ic.LookupOrTranslate(moveqRTS, 0x1000); err != nil {
		t.Fatalf("first install: %v", err)
	}
	if ic.count != 1 {
		t.Fatalf("count = %d, want 1", ic.count)
	}

	if _, err := ic.LookupOrTranslate(moveqRTS, 0x3000); err != nil {
		t.Fatalf("second install: %v", err)
	}
	if ic.count != 1 {
		t.Fatalf("count = %d, want 1 after eviction freed room for the newcomer", ic.count)
	}
	if u := ic.Lookup(0x1000); u != nil {
		t.Fatalf("expected the first unit to have been evicted, found %+v", u)
	}
	if u := ic.Lookup(0x3000); u == nil {
		t.Fatalf("expected the newcomer to be installed")
	}
}

func TestEvictUnitUpdatesCountAndHeapFree(t *testing.T) {
	ic := newTestCache(t, 64*1024)

	u, err := ic.LookupOrTranslate(moveqRTS, 0x2000)
	if err != nil {
		t.Fatalf("LookupOrTranslate: %v", err)
	}
	freeBefore := ic.heap.Free()

	ic.evictUnit(u)

	if ic.count != 0 {
		t.Fatalf("count = %d, want 0", ic.count)
	}
	if ic.heap.Free() <= freeBefore {
		t.Fatalf("Free() = %d, want more than %d after eviction", ic.heap.Free(), freeBefore)
	}
	if ic.lruHead != nil || ic.lruTail != nil {
		t.Fatalf("expected empty LRU list after evicting the only unit")
	}
}
