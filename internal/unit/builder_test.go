package unit

import (
	"testing"

	"github.com/michalsc/Emu68-sub001/internal/config"
)

func testCfg() *config.BootArgs {
	return &config.BootArgs{InsnBudget: 64, CCRScanDepth: 20}
}

func TestBuildStraightLineMoveqPairCoversTwoWords(t *testing.T) {
	// MOVEQ #5,D0 ; MOVEQ #6,D1 -- straight-line, runs off the
	// supplied stream rather than hitting a terminator.
	stream := []uint16{0x7005, 0x7206}
	u, err := NewBuilder(testCfg()).Build(stream, 0x1000)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if u.GuestEntryPC != 0x1000 {
		t.Fatalf("GuestEntryPC = %#x, want 0x1000", u.GuestEntryPC)
	}
	if u.GuestLow != 0x1000 || u.GuestHigh != 0x1003 {
		t.Fatalf("guest range = [%#x,%#x], want [0x1000,0x1003]", u.GuestLow, u.GuestHigh)
	}
	if len(u.HostCode) == 0 {
		t.Fatal("expected non-empty host code")
	}
	if u.InnerLoop {
		t.Fatal("straight-line code should not be flagged as an inner loop")
	}
}

func TestBuildRTSEndsUnitAndQueuesSingleExitStub(t *testing.T) {
	stream := []uint16{0x4e75} // RTS
	u, err := NewBuilder(testCfg()).Build(stream, 0x2000)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	stubs := u.Stubs()
	if len(stubs) != 1 || stubs[0].Kind != StubSingle {
		t.Fatalf("stubs = %+v, want one StubSingle", stubs)
	}
	if stubs[0].Target != 0 {
		t.Fatalf("RTS target = %#x, want 0 (only known at run time)", stubs[0].Target)
	}
}

func TestBuildBccQueuesDualExitStub(t *testing.T) {
	// BEQ.W +4 (opcode plus displacement word) followed by two NOPs.
	stream := []uint16{0x6700, 0x0004, 0x4e71, 0x4e71}
	u, err := NewBuilder(testCfg()).Build(stream, 0x3000)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	stubs := u.Stubs()
	if len(stubs) != 1 || stubs[0].Kind != StubDual {
		t.Fatalf("stubs = %+v, want one StubDual", stubs)
	}
	// Taken target: pc(0x3000) + 2 (opcode word) + disp(4) = 0x3006.
	// Fall-through: pc + 2 words (opcode + disp word) = 0x3004.
	if stubs[0].Target != 0x3006 {
		t.Fatalf("taken target = %#x, want 0x3006", stubs[0].Target)
	}
	if stubs[0].Target2 != 0x3004 {
		t.Fatalf("fall-through target = %#x, want 0x3004", stubs[0].Target2)
	}
}

func TestBuildRespectsInstructionBudget(t *testing.T) {
	stream := make([]uint16, 10)
	for i := range stream {
		stream[i] = 0x7000 // MOVEQ #0,D0, repeated
	}
	cfg := &config.BootArgs{InsnBudget: 3, CCRScanDepth: 20}
	u, err := NewBuilder(cfg).Build(stream, 0x4000)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if u.GuestHigh != 0x4000+3*2-1 {
		t.Fatalf("GuestHigh = %#x, want budget of 3 instructions to stop translation early", u.GuestHigh)
	}
}

func TestBuildUnsupportedOpcodeEmitsGuardTrapInsteadOfError(t *testing.T) {
	stream := []uint16{0xA000} // LINE A opcode, unsupported by design
	u, err := NewBuilder(testCfg()).Build(stream, 0x5000)
	if err != nil {
		t.Fatalf("Build should absorb the decode error into a guard trap, got: %v", err)
	}
	if len(u.HostCode) == 0 {
		t.Fatal("expected the guard trap HLT to still produce host code")
	}
}
