// Package unit implements TranslationUnit and UnitBuilder (spec.md §3,
// §4.4): the immutable, once-built record of a translated guest code
// range, and the state machine that produces one by repeatedly calling
// into decoder.Translator until it hits a terminating EmitEvent or the
// per-unit instruction budget.
package unit

// Unit is spec.md §3's TranslationUnit: immutable once installed. The
// only fields ICache mutates afterward are the use/fetch counters and
// the intrusive list links that place it in a bucket and in the LRU.
type Unit struct {
	GuestEntryPC uint32
	GuestLow     uint32
	GuestHigh    uint32
	CRC32        uint32

	// HostCode is the writable mirror of the emitted instruction
	// stream — the bytes icache.Heap copies into the executable
	// mirror at install time (spec.md §5's double-mapping).
	HostCode []byte
	// HostEntry is the executable-mirror address of the first
	// instruction, filled in by ICache.install; zero until then.
	HostEntry uintptr

	UseCount   uint64
	FetchCount uint64

	// HeapOffset/HeapSize record where HostCode landed in icache.Heap's
	// byte-addressed allocator, so eviction can return the range to the
	// free list; meaningless until ICache.install sets them.
	HeapOffset int
	HeapSize   int

	// InnerLoop records whether UnitBuilder detected a backward
	// branch while translating this Unit, so Dispatcher's fast path
	// can recognize tight polling loops (spec.md §4.4).
	InnerLoop bool

	// InsnCount is the number of guest instructions this Unit
	// translates, for Dispatcher to add to GuestState.InsnCount after
	// every call (spec.md §4.4 epilogue step (e), §6's INSN_COUNT).
	InsnCount int

	// stubs holds the ExitStub records queued by Builder.Build while
	// this Unit was being built.
	stubs []ExitStub

	// HashPrev/HashNext and LRUPrev/LRUNext are the intrusive
	// doubly-linked list pointers ICache's hash buckets and LRU list walk;
	// unit itself never touches them.
	HashPrev, HashNext *Unit
	LRUPrev, LRUNext   *Unit
}

// Stubs returns this Unit's exit stubs.
func (u *Unit) Stubs() []ExitStub { return u.stubs }

// ExitStub is spec.md §3's side-exit record: it names the guest PC(s)
// the Unit can leave for. The Unit's code stores the next PC itself
// and returns; no branch in HostCode is patched from a stub.
type ExitStub struct {
	Kind    StubKind
	Target  uint32 // first guest PC (single- and dual-target stubs)
	Target2 uint32 // second guest PC (dual-target stubs only)
	// Offset is the word index within HostCode right after the
	// instruction that ended the Unit, where the epilogue begins.
	Offset int
}

// StubKind distinguishes a single-successor side exit (STOP-terminated
// branch/jump whose target could not be inlined) from the two-successor
// case DOUBLE_EXIT queues for conditional branches and DBcc.
type StubKind uint8

const (
	StubSingle StubKind = iota
	StubDual
)
