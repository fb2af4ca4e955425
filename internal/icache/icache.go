package icache

import (
	"github.com/michalsc/Emu68-sub001/internal/coreerr"
	"github.com/michalsc/Emu68-sub001/internal/stats"
	"github.com/michalsc/Emu68-sub001/internal/unit"
)

// evictBatchSize is spec.md §4.5's "small fixed count per attempt" the
// LRU evictor removes when the executable heap refuses an allocation.
const evictBatchSize = 8

// ICache is spec.md §3/§4.5's fixed-size array of hash buckets plus a
// single global LRU list. Per spec.md §5 it is touched only by the
// translator on core 0, so it carries no internal locking of its own —
// callers on other cores never reach these methods.
type ICache struct {
	heap    *Heap
	builder *unit.Builder
	stats   *stats.Counters

	buckets  []*unit.Unit
	hashMask uint32

	lruHead, lruTail *unit.Unit
	count            int
}

// New returns an ICache with 1<<hashBits buckets, backed by heap for
// Unit storage and builder for translating cache misses. st may be nil
// in tests that don't care about the exposed runtime counters.
func New(heap *Heap, builder *unit.Builder, st *stats.Counters, hashBits uint) *ICache {
	n := 1 << hashBits
	ic := &ICache{
		heap:     heap,
		builder:  builder,
		stats:    st,
		buckets:  make([]*unit.Unit, n),
		hashMask: uint32(n - 1),
	}
	if st != nil {
		st.CacheTotal.Store(int64(heap.Size()))
		st.CacheFree.Store(int64(heap.Free()))
	}
	return ic
}

func bucketIndex(pc, mask uint32) uint32 { return (pc >> 5) & mask }

// Lookup walks the bucket for pc and returns the matching Unit, moving
// it to the head of its bucket and of the LRU list on a hit (spec.md
// §4.5). It does not verify the Unit's CRC; callers that care about
// guest-memory changes should use LookupOrTranslate instead.
func (ic *ICache) Lookup(pc uint32) *unit.Unit {
	idx := bucketIndex(pc, ic.hashMask)
	for u := ic.buckets[idx]; u != nil; u = u.HashNext {
		if u.GuestEntryPC == pc {
			ic.moveBucketHead(idx, u)
			ic.moveLRUHead(u)
			return u
		}
	}
	return nil
}

// LookupOrTranslate is spec.md §4.5's full lookup path: hash lookup,
// CRC verification against the guest bytes currently behind stream, and
// on a miss (cold or CRC-invalidated) a call into UnitBuilder followed
// by install. stream must start at pc and extend at least as far as
// whatever Build ultimately consumes.
func (ic *ICache) LookupOrTranslate(stream []uint16, pc uint32) (*unit.Unit, error) {
	if u := ic.Lookup(pc); u != nil {
		if ic.verify(u, stream) {
			u.UseCount++
			u.FetchCount++
			return u, nil
		}
		ic.evictUnit(u)
	}

	if ic.stats != nil {
		ic.stats.CacheMiss.Add(1)
	}
	built, err := ic.builder.Build(stream, pc)
	if err != nil {
		return nil, err
	}
	if err := ic.install(built); err != nil {
		return nil, err
	}
	built.UseCount++
	built.FetchCount++
	return built, nil
}

// verify recomputes CRC32 over [GuestLow, GuestHigh] from stream and
// compares it against the Unit's stamped checksum — spec.md §4.5's
// "verification ... recomputes CRC32 over its extent".
func (ic *ICache) verify(u *unit.Unit, stream []uint16) bool {
	words := int(u.GuestHigh-u.GuestLow+1) / 2
	if words > len(stream) {
		return false
	}
	return unit.CRC32(stream[:words]) == u.CRC32
}

// install places a freshly built Unit into the executable heap and
// links it into its bucket and the LRU head, evicting LRU-tail Units in
// batches if the heap is full (spec.md §4.5's eviction policy). Total
// exhaustion (the heap stays too small even when empty) is the
// "should not occur under correct sizing" fatal case from spec.md §7.
func (ic *ICache) install(u *unit.Unit) error {
	execAddr, offset, ok := ic.heap.Alloc(u.HostCode)
	for !ok && ic.count > 0 {
		ic.evictBatch(evictBatchSize)
		execAddr, offset, ok = ic.heap.Alloc(u.HostCode)
	}
	if !ok {
		coreerr.Fatal("icache: executable heap exhausted with cache empty", map[string]any{
			"unit_bytes": len(u.HostCode),
			"heap_size":  ic.heap.Size(),
		})
	}

	u.HostEntry = execAddr
	u.HeapOffset = offset
	u.HeapSize = len(u.HostCode)

	idx := bucketIndex(u.GuestEntryPC, ic.hashMask)
	ic.insertBucketHead(idx, u)
	ic.insertLRUHead(u)
	ic.count++

	if ic.stats != nil {
		ic.stats.UnitCount.Add(1)
		ic.stats.CacheFree.Store(int64(ic.heap.Free()))
	}
	return nil
}

// evictUnit removes one Unit from both structures and releases its
// heap allocation — spec.md §3's Drop.
func (ic *ICache) evictUnit(u *unit.Unit) {
	idx := bucketIndex(u.GuestEntryPC, ic.hashMask)
	ic.detachBucket(idx, u)
	ic.detachLRU(u)
	ic.heap.FreeRange(u.HeapOffset, u.HeapSize)
	ic.count--
	if ic.stats != nil {
		ic.stats.UnitCount.Add(-1)
		ic.stats.CacheFree.Store(int64(ic.heap.Free()))
	}
}

// evictBatch removes up to n Units from the LRU tail.
func (ic *ICache) evictBatch(n int) {
	for i := 0; i < n && ic.lruTail != nil; i++ {
		ic.evictUnit(ic.lruTail)
	}
}

// Count returns the number of Units currently installed.
func (ic *ICache) Count() int { return ic.count }
