package regalloc

import (
	"testing"

	"github.com/michalsc/Emu68-sub001/internal/emitter"
)

func TestMapGuestDAWraps(t *testing.T) {
	if MapGuestD(0) != emitter.R0 || MapGuestD(7) != emitter.R7 {
		t.Fatalf("D0/D7 mapped to %v/%v, want x0/x7", MapGuestD(0), MapGuestD(7))
	}
	if MapGuestA(0) != emitter.R8 || MapGuestA(7) != emitter.R15 {
		t.Fatalf("A0/A7 mapped to %v/%v, want x8/x15", MapGuestA(0), MapGuestA(7))
	}
	// n&7 wraps rather than panicking — callers pass decoded 3-bit fields.
	if MapGuestD(8) != MapGuestD(0) {
		t.Fatalf("D(8) should wrap to D(0)")
	}
}

func TestMapGuestFPUsesCalleeSavedDoubles(t *testing.T) {
	for n := uint8(0); n < 8; n++ {
		if got, want := MapGuestFP(n), emitter.FReg(8+n); got != want {
			t.Fatalf("FP%d mapped to d%d, want d%d", n, got, want)
		}
	}
}

func TestAllocTempReturnsLowestFreeThenExhausts(t *testing.T) {
	s := New(emitter.NewBuffer())
	first := s.AllocTemp()
	if first != 16 {
		t.Fatalf("first temp = %v, want x16", first)
	}
	second := s.AllocTemp()
	if second != 17 {
		t.Fatalf("second temp = %v, want x17", second)
	}
	s.FreeTemp(first)
	third := s.AllocTemp()
	if third != 16 {
		t.Fatalf("freed x16 should be reused first, got %v", third)
	}
}

func TestAllocTempExhaustionPanicsAfterFlushingLazySlots(t *testing.T) {
	s := New(emitter.NewBuffer())
	for i := 0; i < len(tempPool); i++ {
		s.AllocTemp()
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when temp pool and lazy slots are both exhausted")
		}
	}()
	s.AllocTemp()
}

func TestCalleeSavedMatchesAAPCS(t *testing.T) {
	for _, r := range []emitter.Reg{19, 20, 23, 28} {
		if !CalleeSaved(r) {
			t.Fatalf("x%d should be callee-saved", r)
		}
	}
	for _, r := range []emitter.Reg{8, 9, 15, 16, 17} {
		if CalleeSaved(r) {
			t.Fatalf("x%d should NOT be callee-saved", r)
		}
	}
}

func TestChangedMaskTracksAllocations(t *testing.T) {
	s := New(emitter.NewBuffer())
	if s.ChangedMask() != 0 {
		t.Fatal("fresh state should have an empty changed mask")
	}
	s.AllocTemp()
	s.AllocTemp()
	if mask := s.ChangedMask(); mask != 0b11 {
		t.Fatalf("changed mask = %#b, want 0b11", mask)
	}
	s.ClearChangedMask()
	if s.ChangedMask() != 0 {
		t.Fatal("ClearChangedMask should zero the mask")
	}
}

func TestFPDirtyTracking(t *testing.T) {
	s := New(emitter.NewBuffer())
	if s.FPDirty(2) {
		t.Fatal("FP2 should start clean")
	}
	s.MapGuestFPForWrite(2)
	if !s.FPDirty(2) {
		t.Fatal("MapGuestFPForWrite should mark FP2 dirty")
	}
}

func TestCopyFromGuestDEmitsMoveAndReturnsTemp(t *testing.T) {
	s := New(emitter.NewBuffer())
	tmp := s.CopyFromGuestD(3)
	if tmp != 16 {
		t.Fatalf("expected the first temp to be allocated, got %v", tmp)
	}
	if s.buf.Len() != 1 {
		t.Fatalf("expected exactly one emitted instruction, got %d", s.buf.Len())
	}
}
