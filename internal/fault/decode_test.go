package fault

import (
	"testing"

	"github.com/michalsc/Emu68-sub001/internal/emitter"
)

func TestDecodeUnsignedOffsetLoadRoundTrips(t *testing.T) {
	b := emitter.NewBuffer()
	b.LoadStoreUnsignedOffset(emitter.Width32, emitter.OpLoadUnsigned, emitter.R5, emitter.R2, 0x40)
	insn, ok := Decode(b.Words[0])
	if !ok {
		t.Fatalf("Decode reported unrecognized instruction for %#08x", b.Words[0])
	}
	if insn.Kind != KindUnsignedOffset {
		t.Fatalf("Kind = %v, want KindUnsignedOffset", insn.Kind)
	}
	if !insn.Load || insn.Width != 4 || insn.Offset != 0x40 {
		t.Fatalf("insn = %+v, want load width=4 offset=0x40", insn)
	}
	if insn.Rt != uint8(emitter.R5) || insn.Rn != uint8(emitter.R2) {
		t.Fatalf("Rt/Rn = %d/%d, want %d/%d", insn.Rt, insn.Rn, emitter.R5, emitter.R2)
	}
}

func TestDecodeUnsignedOffsetSignedLoadSetsExtension(t *testing.T) {
	b := emitter.NewBuffer()
	b.LoadStoreUnsignedOffset(emitter.Width16, emitter.OpLoadSigned64, emitter.R0, emitter.R1, 0x10)
	insn, ok := Decode(b.Words[0])
	if !ok {
		t.Fatal("Decode failed")
	}
	if !insn.Signed || !insn.To64 || insn.Width != 2 {
		t.Fatalf("insn = %+v, want signed 64-bit-extending 2-byte load", insn)
	}
}

func TestDecodeStoreIsNotALoad(t *testing.T) {
	b := emitter.NewBuffer()
	b.LoadStoreUnsignedOffset(emitter.Width64, emitter.OpStore, emitter.R3, emitter.R4, 8)
	insn, ok := Decode(b.Words[0])
	if !ok || insn.Load {
		t.Fatalf("insn = %+v, ok=%v, want a recognized store", insn, ok)
	}
}

func TestDecodeIndexedPostIncrement(t *testing.T) {
	b := emitter.NewBuffer()
	b.LoadStoreIndexed(emitter.Width32, emitter.OpLoadUnsigned, emitter.R6, emitter.R7, 4, emitter.PostIndex)
	insn, ok := Decode(b.Words[0])
	if !ok {
		t.Fatal("Decode failed")
	}
	if insn.Kind != KindIndexed || insn.Index != IndexPost || insn.Offset != 4 {
		t.Fatalf("insn = %+v, want post-index offset 4", insn)
	}
}

func TestDecodeIndexedPreIncrementNegativeOffset(t *testing.T) {
	b := emitter.NewBuffer()
	b.LoadStoreIndexed(emitter.Width8, emitter.OpStore, emitter.R0, emitter.R1, -16, emitter.PreIndex)
	insn, ok := Decode(b.Words[0])
	if !ok {
		t.Fatal("Decode failed")
	}
	if insn.Index != IndexPre || insn.Offset != -16 {
		t.Fatalf("insn = %+v, want pre-index offset -16", insn)
	}
}

func TestDecodeRegOffsetScaledExtended(t *testing.T) {
	b := emitter.NewBuffer()
	b.LoadStoreRegOffset(emitter.Width64, emitter.OpLoadUnsigned, emitter.R2, emitter.R3, emitter.R4, emitter.ExtendSXTW, true)
	insn, ok := Decode(b.Words[0])
	if !ok {
		t.Fatal("Decode failed")
	}
	if insn.Kind != KindRegOffset || !insn.UseRm || !insn.Scaled || insn.Rm != uint8(emitter.R4) {
		t.Fatalf("insn = %+v, want scaled reg-offset using x%d", insn, emitter.R4)
	}
}

func TestDecodeLoadPairOffset(t *testing.T) {
	b := emitter.NewBuffer()
	b.LoadPair(emitter.Size64, false, emitter.R0, emitter.R1, emitter.R2, 2, emitter.PairOffset)
	insn, ok := Decode(b.Words[0])
	if !ok {
		t.Fatal("Decode failed")
	}
	if insn.Kind != KindPair || !insn.Load || insn.Width != 8 || insn.Offset != 16 {
		t.Fatalf("insn = %+v, want pair load width=8 offset=16", insn)
	}
	if insn.Rt2 != uint8(emitter.R1) {
		t.Fatalf("Rt2 = %d, want %d", insn.Rt2, emitter.R1)
	}
}

func TestDecodeStorePairPreIndex(t *testing.T) {
	b := emitter.NewBuffer()
	b.StorePair(emitter.Size32, emitter.R5, emitter.R6, emitter.R7, -3, emitter.PairPreIdx)
	insn, ok := Decode(b.Words[0])
	if !ok {
		t.Fatal("Decode failed")
	}
	if insn.Kind != KindPair || insn.Load || insn.Width != 4 || insn.Index != IndexPre || insn.Offset != -12 {
		t.Fatalf("insn = %+v, want pre-index store width=4 offset=-12", insn)
	}
}

func TestDecodeExclusiveLoad(t *testing.T) {
	b := emitter.NewBuffer()
	b.LoadAcquireExclusive(emitter.Size64, emitter.R0, emitter.R1)
	insn, ok := Decode(b.Words[0])
	if !ok {
		t.Fatal("Decode failed")
	}
	if insn.Kind != KindExclusive || !insn.Load || !insn.To64 || insn.Width != 8 {
		t.Fatalf("insn = %+v, want a 64-bit exclusive load", insn)
	}
}

func TestDecodeExclusiveStoreWord(t *testing.T) {
	b := emitter.NewBuffer()
	b.StoreReleaseExclusive(emitter.Size32, emitter.R2, emitter.R0, emitter.R1)
	insn, ok := Decode(b.Words[0])
	if !ok {
		t.Fatal("Decode failed")
	}
	if insn.Kind != KindExclusive || insn.Load || insn.To64 || insn.Width != 4 {
		t.Fatalf("insn = %+v, want a 32-bit exclusive store", insn)
	}
}

func TestDecodeFPUnsignedOffsetRecognizedButFlagged(t *testing.T) {
	b := emitter.NewBuffer()
	b.FPLoadStoreUnsignedOffset(emitter.FPPrecDouble, true, emitter.FReg(0), emitter.R1, 8)
	insn, ok := Decode(b.Words[0])
	if !ok {
		t.Fatal("Decode failed")
	}
	if insn.Kind != KindFloatingPoint {
		t.Fatalf("Kind = %v, want KindFloatingPoint", insn.Kind)
	}
}

func TestDecodeLiteralLoadRecognizedButFlagged(t *testing.T) {
	b := emitter.NewBuffer()
	b.LoadLiteral(emitter.Size64, emitter.R3, 16)
	insn, ok := Decode(b.Words[0])
	if !ok {
		t.Fatal("Decode failed")
	}
	if insn.Kind != KindLiteral {
		t.Fatalf("Kind = %v, want KindLiteral", insn.Kind)
	}
}

func TestDecodeRejectsUnrelatedInstruction(t *testing.T) {
	b := emitter.NewBuffer()
	b.MovImm16(emitter.Size32, emitter.MovZ, emitter.R0, 1, 0)
	if _, ok := Decode(b.Words[0]); ok {
		t.Fatal("Decode should not recognize a MOVZ as a load/store")
	}
}
