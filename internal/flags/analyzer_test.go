package flags

import (
	"testing"

	"github.com/michalsc/Emu68-sub001/internal/guest"
)

func TestWritesMoveqSetsNZVC(t *testing.T) {
	// MOVEQ #0,D0 -> 0x7000
	if w := Writes(0x7000); w != (guest.CCR_C | guest.CCR_V | guest.CCR_Z | guest.CCR_N) {
		t.Fatalf("MOVEQ writes = %#x, want NZVC", w)
	}
}

func TestWritesExgDoesNotTouchCC(t *testing.T) {
	// EXG D0,D1 -> 0xc140 | (reg fields)
	if w := Writes(0xc140); w != 0 {
		t.Fatalf("EXG writes = %#x, want 0", w)
	}
}

func TestWritesAddxPreservesCCR_XAsWrittenNotRead(t *testing.T) {
	// ADDX.W D1,D0 -> 0xd141
	if w := Writes(0xd141); w&guest.CCR_C == 0 {
		t.Fatalf("ADDX should write C, got %#x", w)
	}
}

func TestCondBitsReadEQReadsOnlyZ(t *testing.T) {
	if got := condBitsRead(7); got != guest.CCR_Z {
		t.Fatalf("EQ reads %#x, want Z only", got)
	}
}

func TestCondBitsReadTrueFalseReadNothing(t *testing.T) {
	if condBitsRead(0) != 0 || condBitsRead(1) != 0 {
		t.Fatal("T/F conditions should read no CCR bits")
	}
}

func TestLiveDetectsDownstreamBcc(t *testing.T) {
	a := New(20)
	// stream: CMP.L (writes NZVC, index 0) ; BEQ +2 words (index 1, reads Z)
	stream := []uint16{0xb080, 0x6700, 0x0004}
	if !a.Live(stream, 0, guest.CCR_Z) {
		t.Fatal("Z flag should be live: BEQ immediately after reads it")
	}
}

func TestLiveDeadWhenFullyOverwrittenBeforeAnyRead(t *testing.T) {
	a := New(20)
	// CLR.L D0 (writes NZVC) ; MOVEQ #0,D1 (writes NZVC again, no read in between)
	stream := []uint16{0x4280, 0x7200}
	if a.Live(stream, 0, guest.CCR_Z) {
		t.Fatal("Z should be dead: overwritten before any read")
	}
}

func TestLiveAssumesLiveAtStreamEnd(t *testing.T) {
	a := New(20)
	stream := []uint16{0xb080} // CMP.L, nothing follows
	if !a.Live(stream, 0, guest.CCR_Z) {
		t.Fatal("running off the end of the decoded stream should assume live")
	}
}
