package emitter

import "testing"

func TestMovImm16(t *testing.T) {
	cases := []struct {
		name string
		sz   Size
		kind MovKind
		rd   Reg
		imm  uint16
		hw   uint8
		want uint32
	}{
		{"movz w0 #1", Size32, MovZ, R0, 1, 0, 0x52800020},
		{"movz x0 #1", Size64, MovZ, R0, 1, 0, 0xD2800020},
		{"movk x1 #0xbeef hw1", Size64, MovK, R1, 0xbeef, 1, 0xF2B7DDE1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b := NewBuffer()
			b.MovImm16(c.sz, c.kind, c.rd, c.imm, c.hw)
			if got := b.Words[0]; got != c.want {
				t.Fatalf("got %#08x, want %#08x", got, c.want)
			}
		})
	}
}

func TestMovImm64StartsWithWideMoveToRd(t *testing.T) {
	b := NewBuffer()
	b.MovImm64(Size64, R3, 0x1122334455667788)
	if b.Len() == 0 {
		t.Fatal("expected at least one instruction")
	}
	// First instruction must be MOVZ or MOVN targeting x3.
	first := b.Words[0]
	op := (first >> 23) & 0x3f
	if op != 0b100101 {
		t.Fatalf("first instruction not a wide-immediate move: %#08x", first)
	}
	if rd := first & 0x1f; rd != uint32(R3) {
		t.Fatalf("destination register = %d, want %d", rd, R3)
	}
}

func TestAddImmRoundTrip(t *testing.T) {
	b := NewBuffer()
	b.AddImm(Size64, OpAdd, false, R2, R3, 0x100, false)
	word := b.Words[0]
	if op := (word >> 30) & 1; op != 0 {
		t.Fatalf("expected ADD opcode bit clear, got %#08x", word)
	}
	if imm := (word >> 10) & 0xfff; imm != 0x100 {
		t.Fatalf("imm12 = %#x, want 0x100", imm)
	}
}

func TestLoadStoreUnsignedOffsetRejectsMisalignedOffset(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for misaligned offset")
		} else if _, ok := r.(*BugError); !ok {
			t.Fatalf("expected *BugError, got %T", r)
		}
	}()
	b := NewBuffer()
	b.LoadStoreUnsignedOffset(Width64, OpLoadUnsigned, R0, R1, 3)
}

func TestBranchCondEncodesConditionInLowBits(t *testing.T) {
	b := NewBuffer()
	b.BranchCond(CondNE, 4)
	if got := b.Words[0] & 0xf; got != uint32(CondNE) {
		t.Fatalf("condition field = %d, want %d", got, CondNE)
	}
}

func TestCSetInvertsConditionForCsinc(t *testing.T) {
	b := NewBuffer()
	b.CSet(Size32, R0, CondEQ)
	cond := (b.Words[0] >> 12) & 0xf
	if cond != uint32(CondNE) {
		t.Fatalf("CSET EQ should encode CSINC with inverted cond NE, got %d", cond)
	}
}

func TestLoadAcquireExclusiveEncodesWordVsDoubleSize(t *testing.T) {
	b32 := NewBuffer()
	b32.LoadAcquireExclusive(Size32, R0, R1)
	size32 := b32.Words[0] >> 30 & 0b11
	if size32 != 0b10 {
		t.Fatalf("LoadAcquireExclusive(Size32) size field = %#b, want 10", size32)
	}

	b64 := NewBuffer()
	b64.LoadAcquireExclusive(Size64, R0, R1)
	size64 := b64.Words[0] >> 30 & 0b11
	if size64 != 0b11 {
		t.Fatalf("LoadAcquireExclusive(Size64) size field = %#b, want 11", size64)
	}
}

func TestStoreReleaseExclusiveEncodesWordVsDoubleSize(t *testing.T) {
	b32 := NewBuffer()
	b32.StoreReleaseExclusive(Size32, R2, R0, R1)
	size32 := b32.Words[0] >> 30 & 0b11
	if size32 != 0b10 {
		t.Fatalf("StoreReleaseExclusive(Size32) size field = %#b, want 10", size32)
	}

	b64 := NewBuffer()
	b64.StoreReleaseExclusive(Size64, R2, R0, R1)
	size64 := b64.Words[0] >> 30 & 0b11
	if size64 != 0b11 {
		t.Fatalf("StoreReleaseExclusive(Size64) size field = %#b, want 11", size64)
	}
}

func TestBytesIsLittleEndian(t *testing.T) {
	b := NewBuffer()
	b.Emit(0x12345678)
	out := b.Bytes()
	want := []byte{0x78, 0x56, 0x34, 0x12}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, out[i], want[i])
		}
	}
}

func TestCheckImmRejectsOutOfRangeBranch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for out-of-range branch displacement")
		}
	}()
	b := NewBuffer()
	b.BranchCond(CondAL, 1<<20)
}
