package bus

import (
	"testing"

	"github.com/michalsc/Emu68-sub001/internal/config"
)

func TestShadowRAMWriteReadRoundTrip(t *testing.T) {
	ram := NewShadowRAM(0x1000, 0x100)

	if err := ram.Write(0x1004, 4, 0xdeadbeef); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := ram.Read(0x1004, 4)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != 0xdeadbeef {
		t.Fatalf("Read = %#x, want 0xdeadbeef", got)
	}

	// Big-endian byte order: the high byte of 0xdeadbeef must land
	// first in the backing slice.
	if ram.Bytes()[4] != 0xde {
		t.Fatalf("Bytes()[4] = %#x, want 0xde (big-endian)", ram.Bytes()[4])
	}
}

func TestShadowRAMOutOfRangeIsUnmapped(t *testing.T) {
	ram := NewShadowRAM(0x1000, 0x10)
	if _, err := ram.Read(0x2000, 4); err == nil {
		t.Fatal("expected ErrUnmapped for an address outside the window")
	}
	if _, err := ram.Read(0x100e, 4); err == nil {
		t.Fatal("expected ErrUnmapped for an access that overruns the window")
	}
}

func TestShadowRAMReadWritePairRoundTrips(t *testing.T) {
	ram := NewShadowRAM(0, 0x20)
	if err := ram.WritePair(0x10, 0x1111111111111111, 0x2222222222222222); err != nil {
		t.Fatalf("WritePair: %v", err)
	}
	hi, lo, err := ram.ReadPair(0x10)
	if err != nil {
		t.Fatalf("ReadPair: %v", err)
	}
	if hi != 0x1111111111111111 || lo != 0x2222222222222222 {
		t.Fatalf("ReadPair = %#x/%#x, want 0x1111.../0x2222...", hi, lo)
	}
}

func TestRouterDispatchesByLayout(t *testing.T) {
	layout := config.MemoryLayout{
		RAM:  []config.MemoryBlock{{Base: 0, Size: 0x1000}},
		MMIO: []config.MMIORange{{Base: AddrINTENA &^ 0xff, Size: 0x100, Name: "custom"}},
	}
	ram := NewShadowRAM(0, 0x1000)
	perip := NewPeripheral(nil)
	r := NewRouter(layout, ram, nil, perip)

	if err := r.Write(0x100, 2, 0xabcd); err != nil {
		t.Fatalf("Write into RAM range: %v", err)
	}
	got, err := r.Read(0x100, 2)
	if err != nil || got != 0xabcd {
		t.Fatalf("Read from RAM range = (%#x, %v), want (0xabcd, nil)", got, err)
	}

	if err := r.Write(AddrINTENA, 2, 0x8001); err != nil {
		t.Fatalf("Write into MMIO range: %v", err)
	}
	if perip.intena != 0x0001 {
		t.Fatalf("peripheral intena = %#x, want 0x0001 (bit 15 is a set/clear flag, not stored)", perip.intena)
	}
}

func TestRouterFallsThroughToPhyBusOutsideKnownRanges(t *testing.T) {
	layout := config.MemoryLayout{}
	r := NewRouter(layout, nil, &PhyBus{base: 0, mem: make([]byte, 0x10)}, nil)

	if err := r.Write(4, 2, 0x1234); err != nil {
		t.Fatalf("Write via PhyBus fallback: %v", err)
	}
	got, err := r.Read(4, 2)
	if err != nil || got != 0x1234 {
		t.Fatalf("Read via PhyBus fallback = (%#x, %v), want (0x1234, nil)", got, err)
	}
}

func TestRouterFetchWordsReturnsZeroOnUnmappedAddress(t *testing.T) {
	// RAM covers only addresses [0,6): fetching the word at 4 hits RAM,
	// the word at 6 falls through to an empty PhyBus and comes back
	// unmapped.
	layout := config.MemoryLayout{RAM: []config.MemoryBlock{{Base: 0, Size: 6}}}
	ram := NewShadowRAM(0, 6)
	r := NewRouter(layout, ram, &PhyBus{base: 0, mem: nil}, nil)
	if err := ram.Write(4, 2, 0x1122); err != nil {
		t.Fatalf("Write: %v", err)
	}

	words := r.FetchWords(4, 2)
	if words[0] != 0x1122 {
		t.Fatalf("FetchWords[0] = %#x, want 0x1122", words[0])
	}
	if words[1] != 0 {
		t.Fatalf("FetchWords[1] = %#x, want 0 for an out-of-range fetch", words[1])
	}
}

func TestPeripheralINTENAShadowSetAndClear(t *testing.T) {
	p := NewPeripheral(nil)
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	must(p.Write(AddrINTENA, 2, 0x8000|0x0003))
	if p.intena != 0x0003 {
		t.Fatalf("intena after set = %#x, want 0x0003", p.intena)
	}
	must(p.Write(AddrINTENA, 2, 0x0001))
	if p.intena != 0x0002 {
		t.Fatalf("intena after clearing bit 0 = %#x, want 0x0002", p.intena)
	}
}

func TestPeripheralOverlayBitTracksCIAAPRA(t *testing.T) {
	p := NewPeripheral(nil)
	if !p.Overlay() {
		t.Fatal("overlay should default to true (page zero maps ROM at reset)")
	}
	if err := p.Write(AddrCIAAPRA, 1, 0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if p.Overlay() {
		t.Fatal("overlay should be false after writing a clear OVL bit")
	}
}

func TestPeripheralDriveSpoofSwapsSelectBits(t *testing.T) {
	p := NewPeripheral(nil)
	p.SwapDF0WithDFx = 1

	// SEL0 (bit 3) set, SEL1 (bit 4) clear, motor bit (0x80) clear:
	// the spoofed-ID condition (only 0x80 set) does not hold here.
	if err := p.Write(AddrCIABPRB, 1, 0x08); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := p.Read(AddrCIABPRB, 1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	// Bits 3 and 4 differ (0x08 has bit3 set, bit4 clear) so they get
	// swapped on read: bit3 clears, bit4 sets.
	if got&0x18 != 0x10 {
		t.Fatalf("CIABPRB readback = %#x, want bits 3/4 swapped to 0x10", got&0x18)
	}
}

func TestPeripheralAutoconfigMapsZorro3Board(t *testing.T) {
	mapped := uint32(0)
	p := NewPeripheral([]AutoconfigBoard{
		{IsZorro3: true, Map: func(base uint32) { mapped = base }},
	})
	if err := p.Write(0xe80044, 4, 0x0020); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if mapped != 0x00200000 {
		t.Fatalf("mapped base = %#x, want 0x00200000", mapped)
	}
	if p.boardIdx != 1 {
		t.Fatalf("boardIdx = %d, want 1 after mapping the only board", p.boardIdx)
	}
}

func TestMemoryTestDetectsNoFailuresOnHealthyRAM(t *testing.T) {
	ram := NewShadowRAM(0, 0x40)
	mt := &MemoryTest{}
	res := mt.Run(ram, 0b11, 1)
	if res.Mismatches != 0 {
		t.Fatalf("Mismatches = %d, want 0 on a plain in-memory slice", res.Mismatches)
	}
	if res.Addresses != 0x40/4 {
		t.Fatalf("Addresses = %d, want %d", res.Addresses, 0x40/4)
	}
}
