package icache

import "github.com/michalsc/Emu68-sub001/internal/unit"

// detachBucket unlinks u from whichever hash bucket chain it currently
// sits in, fixing up the bucket head if u was first.
func (ic *ICache) detachBucket(idx uint32, u *unit.Unit) {
	if u.HashPrev != nil {
		u.HashPrev.HashNext = u.HashNext
	} else {
		ic.buckets[idx] = u.HashNext
	}
	if u.HashNext != nil {
		u.HashNext.HashPrev = u.HashPrev
	}
	u.HashPrev, u.HashNext = nil, nil
}

// insertBucketHead links u at the head of buckets[idx].
func (ic *ICache) insertBucketHead(idx uint32, u *unit.Unit) {
	u.HashPrev = nil
	u.HashNext = ic.buckets[idx]
	if ic.buckets[idx] != nil {
		ic.buckets[idx].HashPrev = u
	}
	ic.buckets[idx] = u
}

// moveBucketHead re-links u to the front of its bucket — spec.md
// §4.5's "on a hit, move the Unit to the head of its bucket".
func (ic *ICache) moveBucketHead(idx uint32, u *unit.Unit) {
	if ic.buckets[idx] == u {
		return
	}
	ic.detachBucket(idx, u)
	ic.insertBucketHead(idx, u)
}

// detachLRU unlinks u from the global LRU list.
func (ic *ICache) detachLRU(u *unit.Unit) {
	if u.LRUPrev != nil {
		u.LRUPrev.LRUNext = u.LRUNext
	} else {
		ic.lruHead = u.LRUNext
	}
	if u.LRUNext != nil {
		u.LRUNext.LRUPrev = u.LRUPrev
	} else {
		ic.lruTail = u.LRUPrev
	}
	u.LRUPrev, u.LRUNext = nil, nil
}

// insertLRUHead links u at the most-recently-used end of the LRU list.
func (ic *ICache) insertLRUHead(u *unit.Unit) {
	u.LRUPrev = nil
	u.LRUNext = ic.lruHead
	if ic.lruHead != nil {
		ic.lruHead.LRUPrev = u
	}
	ic.lruHead = u
	if ic.lruTail == nil {
		ic.lruTail = u
	}
}

// moveLRUHead re-links u to the most-recently-used end of the LRU list.
func (ic *ICache) moveLRUHead(u *unit.Unit) {
	if ic.lruHead == u {
		return
	}
	ic.detachLRU(u)
	ic.insertLRUHead(u)
}
