package dispatch

import (
	"testing"

	"github.com/michalsc/Emu68-sub001/internal/config"
	"github.com/michalsc/Emu68-sub001/internal/guest"
	"github.com/michalsc/Emu68-sub001/internal/icache"
	"github.com/michalsc/Emu68-sub001/internal/stats"
	"github.com/michalsc/Emu68-sub001/internal/unit"
)

// fakeMemory is a flat byte-addressable guest address space backing
// GuestMemory for tests that never touch real host memory or execute
// any translated code.
type fakeMemory struct {
	bytes map[uint32]byte
}

func newFakeMemory() *fakeMemory { return &fakeMemory{bytes: map[uint32]byte{}} }

func (m *fakeMemory) FetchWords(addr uint32, n int) []uint16 {
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		a := addr + uint32(i)*2
		out[i] = uint16(m.bytes[a])<<8 | uint16(m.bytes[a+1])
	}
	return out
}

func (m *fakeMemory) WriteWord(addr uint32, v uint16) {
	m.bytes[addr] = byte(v >> 8)
	m.bytes[addr+1] = byte(v)
}

func (m *fakeMemory) WriteLong(addr uint32, v uint32) {
	m.WriteWord(addr, uint16(v>>16))
	m.WriteWord(addr+2, uint16(v))
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeMemory) {
	t.Helper()
	heap, err := icache.NewHeap(256 * 1024)
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}
	t.Cleanup(func() { heap.Close() })

	cfg := &config.BootArgs{InsnBudget: 64, CCRScanDepth: 20}
	cache := icache.New(heap, unit.NewBuilder(cfg), &stats.Counters{}, 6)
	mem := newFakeMemory()
	st := guest.New()
	d := New(st, cache, mem, &stats.Counters{}, 128, nil)
	return d, mem
}

func TestInjectInterruptEntersSupervisorAndPushesFrame(t *testing.T) {
	d, mem := newTestDispatcher(t)
	d.State.PC = 0x4000
	d.State.VBR = 0x1000
	d.State.ISP = 0x2000
	d.State.SetIPM(2)
	d.State.PostBusIRQ(5)

	// Vector 0x60 + 5*4 = 0x74; VBR+0x74 = 0x1074.
	mem.WriteLong(0x1074, 0x8080)

	d.injectInterrupt()

	if !d.State.Supervisor() {
		t.Fatalf("expected supervisor mode after interrupt injection")
	}
	if d.State.IPM() != 5 {
		t.Fatalf("IPM = %d, want 5", d.State.IPM())
	}
	if d.State.PC != 0x8080 {
		t.Fatalf("PC = %#x, want 0x8080", d.State.PC)
	}
	if d.State.A7() != 0x2000-8 {
		t.Fatalf("A7 = %#x, want %#x", d.State.A7(), uint32(0x2000-8))
	}
}

func TestInjectInterruptMaskedByIPMIsNoOp(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.State.PC = 0x4000
	d.State.SetIPM(6)
	d.State.PostBusIRQ(3)

	d.injectInterrupt()

	if d.State.PC != 0x4000 {
		t.Fatalf("masked interrupt should not move PC, got %#x", d.State.PC)
	}
	if d.State.Supervisor() {
		t.Fatalf("masked interrupt should not enter supervisor mode")
	}
}

func TestInjectInterruptLevel7NeverMasked(t *testing.T) {
	d, mem := newTestDispatcher(t)
	d.State.PC = 0x4000
	d.State.VBR = 0
	d.State.SetIPM(7)
	mem.WriteLong(0x7c, 0x9090) // VBR(0) + 0x60 + 7*4 = 0x7c
	d.State.PostSError()

	d.injectInterrupt()

	if d.State.IPM() != 7 {
		t.Fatalf("IPM = %d, want 7", d.State.IPM())
	}
	if !d.State.Supervisor() {
		t.Fatalf("expected supervisor mode for NMI-equivalent SError")
	}
}

func TestResolveUnitCachesAcrossCallsWithSameEntryPC(t *testing.T) {
	d, mem := newTestDispatcher(t)
	// moveq #0,D0 ; rts
	mem.WriteWord(0x2000, 0x7000)
	mem.WriteWord(0x2002, 0x4e75)
	d.State.PC = 0x2000

	first := d.resolveUnit()
	if first == nil {
		t.Fatalf("resolveUnit returned nil")
	}
	if first.GuestEntryPC != 0x2000 {
		t.Fatalf("GuestEntryPC = %#x, want 0x2000", first.GuestEntryPC)
	}

	// Cache lookup path: CACR icache-enable bit clear by default, so
	// resolveUnit always retranslates through LookupOrTranslate, which
	// itself returns the same cached Unit on a CRC match.
	second := d.resolveUnit()
	if first != second {
		t.Fatalf("expected the same cached Unit on a second resolve at the same PC")
	}
}

func TestRecordAndPredictReturnRoundTrip(t *testing.T) {
	d, _ := newTestDispatcher(t)
	// Synthesize a dual-exit Unit the way a Bcc/DBcc translation would,
	// reusing StubDual as the call-shaped marker recordReturnPrediction
	// looks for. Per decode_branch.go, the fall-through target for this
	// stream (pc=0) is 2 words in: 0x0004.
	d.recordReturnPrediction(fakeDualStubUnit())

	got, ok := d.predictReturn()
	if !ok {
		t.Fatalf("predictReturn: ok = false, want true")
	}
	if got != 0x0004 {
		t.Fatalf("predictReturn = %#x, want 0x0004", got)
	}

	if _, ok := d.predictReturn(); ok {
		t.Fatalf("expected the ring to be empty after consuming its only entry")
	}
}

// fakeDualStubUnit builds a Unit whose only stub is a StubDual, without
// hand-assembling one — recordReturnPrediction only reads Stubs().
func fakeDualStubUnit() *unit.Unit {
	cfg := &config.BootArgs{InsnBudget: 1, CCRScanDepth: 1}
	u, _ := unit.NewBuilder(cfg).Build([]uint16{0x6700, 0x0004, 0x4e71, 0x4e71}, 0)
	return u
}

func TestReflectTranslatorErrorRedirectsToIllegalVector(t *testing.T) {
	d, mem := newTestDispatcher(t)
	d.State.PC = 0x5000
	d.State.VBR = 0
	mem.WriteLong(0x10, 0x7070)

	d.reflectTranslatorError(nil)

	if d.State.PC != 0x7070 {
		t.Fatalf("PC = %#x, want 0x7070", d.State.PC)
	}
	if !d.State.Supervisor() {
		t.Fatalf("expected supervisor mode after synthetic exception")
	}
}
