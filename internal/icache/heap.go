// Package icache implements spec.md §4.5's ICache: the hash-bucketed,
// LRU-ordered table of installed TranslationUnits, and the dedicated
// executable heap (§3, §5) Units are allocated from.
package icache

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// heapAlign is the byte granularity every allocation is rounded up to;
// AArch64 instructions are 4 bytes so this also keeps every Unit's
// entry point word-aligned.
const heapAlign = 16

// block is a free byte range within Heap, kept in offset order.
type block struct {
	offset, size int
}

// Heap is spec.md §5's double-mapped executable heap: two mmap views
// of the same memfd-backed pages, one writable (the translator appends
// Unit bytes here) and one executable (Dispatcher calls into this
// mirror). Grounded on the `unix.Mmap` double-mapping pattern in
// `other_examples/aamcrae-pru/pru.go`'s UIO device mapping, adapted
// from "map one physical device region" to "map one memfd region
// twice with different protections".
type Heap struct {
	mu   sync.Mutex
	fd   int
	size int

	writable []byte // PROT_READ|PROT_WRITE mirror
	exec     []byte // PROT_READ|PROT_EXEC mirror

	free []block
	used int
}

// NewHeap allocates a size-byte executable heap. size is rounded up to
// the host page size by the kernel; callers should pass a multiple of
// 4 KiB for predictable accounting.
func NewHeap(size int) (*Heap, error) {
	fd, err := unix.MemfdCreate("emu68-jit-heap", 0)
	if err != nil {
		return nil, fmt.Errorf("icache: memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("icache: ftruncate: %w", err)
	}
	w, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("icache: mmap writable mirror: %w", err)
	}
	x, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_EXEC, unix.MAP_SHARED)
	if err != nil {
		unix.Munmap(w)
		unix.Close(fd)
		return nil, fmt.Errorf("icache: mmap executable mirror: %w", err)
	}
	return &Heap{
		fd:       fd,
		size:     size,
		writable: w,
		exec:     x,
		free:     []block{{offset: 0, size: size}},
	}, nil
}

// Close unmaps both mirrors and releases the backing memfd.
func (h *Heap) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	unix.Munmap(h.writable)
	unix.Munmap(h.exec)
	return unix.Close(h.fd)
}

// Size returns the heap's total byte capacity.
func (h *Heap) Size() int { return h.size }

// Free returns the number of bytes not currently allocated to a Unit.
func (h *Heap) Free() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size - h.used
}

// Alloc reserves len(code) bytes (rounded up to heapAlign), copies code
// into the writable mirror, and returns the executable mirror's address
// for the first byte plus the offset ICache must remember for Evict.
// ok is false if no free block is large enough; the caller (ICache)
// evicts LRU-tail Units and retries.
func (h *Heap) Alloc(code []byte) (execAddr uintptr, offset int, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := (len(code) + heapAlign - 1) &^ (heapAlign - 1)
	for i, b := range h.free {
		if b.size < n {
			continue
		}
		offset = b.offset
		if b.size == n {
			h.free = append(h.free[:i], h.free[i+1:]...)
		} else {
			h.free[i] = block{offset: b.offset + n, size: b.size - n}
		}
		copy(h.writable[offset:offset+len(code)], code)
		h.flushRange(offset, n)
		h.used += n
		return uintptr(unsafe.Pointer(&h.exec[offset])), offset, true
	}
	return 0, 0, false
}

// FreeRange returns a previously allocated [offset, offset+size) range
// to the free list, merging with adjacent free blocks.
func (h *Heap) FreeRange(offset, size int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := (size + heapAlign - 1) &^ (heapAlign - 1)
	h.used -= n

	nb := block{offset: offset, size: n}
	i := 0
	for ; i < len(h.free); i++ {
		if h.free[i].offset > nb.offset {
			break
		}
	}
	h.free = append(h.free, block{})
	copy(h.free[i+1:], h.free[i:])
	h.free[i] = nb

	// Coalesce with the following block, then the preceding one.
	if i+1 < len(h.free) && h.free[i].offset+h.free[i].size == h.free[i+1].offset {
		h.free[i].size += h.free[i+1].size
		h.free = append(h.free[:i+1], h.free[i+2:]...)
	}
	if i > 0 && h.free[i-1].offset+h.free[i-1].size == h.free[i].offset {
		h.free[i-1].size += h.free[i].size
		h.free = append(h.free[:i], h.free[i+1:]...)
	}
}

// flushRange is spec.md §5's "flush the data cache over the written
// range and invalidate the instruction cache over the executable
// mirror range before any execution" step. On real AArch64 hardware
// this issues DC CVAU over the writable range and IC IVAU plus a
// DSB/ISB pair over the executable range; here both mirrors back the
// same memfd pages on a cache-coherent host, so the kernel's page
// cache already makes writes through one mapping visible through the
// other. Kept as a named no-op so the real barrier sequence has an
// obvious place to land if this ever targets bare-metal AArch64.
func (h *Heap) flushRange(offset, n int) {}
