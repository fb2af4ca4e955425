package fault

import (
	"testing"

	"github.com/michalsc/Emu68-sub001/internal/emitter"
)

// fakeCtx is a Context backed by plain Go fields, standing in for the
// ucontext_t a real SIGSEGV/SIGBUS delivers — letting Handle's decode
// and dispatch logic be exercised without raising a signal.
type fakeCtx struct {
	fault uint64
	pc    uint64
	word  uint32
	regs  [32]uint64
}

func (c *fakeCtx) FaultAddr() uint64          { return c.fault }
func (c *fakeCtx) PC() uint64                 { return c.pc }
func (c *fakeCtx) SetPC(v uint64)             { c.pc = v }
func (c *fakeCtx) InstructionWord() uint32    { return c.word }
func (c *fakeCtx) GPR(n uint8) uint64         { return c.regs[n] }
func (c *fakeCtx) SetGPR(n uint8, v uint64)   { c.regs[n] = v }

type fakeBus struct {
	mem           map[uint32]uint64
	lastReadAddr  uint32
	lastReadWidth uint8
	lastWrite     struct {
		addr  uint32
		width uint8
		value uint64
	}
}

func newFakeBus() *fakeBus { return &fakeBus{mem: map[uint32]uint64{}} }

func (b *fakeBus) Read(addr uint32, width uint8) (uint64, error) {
	b.lastReadAddr, b.lastReadWidth = addr, width
	return b.mem[addr], nil
}

func (b *fakeBus) Write(addr uint32, width uint8, value uint64) error {
	b.lastWrite.addr, b.lastWrite.width, b.lastWrite.value = addr, width, value
	b.mem[addr] = value
	return nil
}

func TestHandleUnsignedOffsetLoadReadsBusAndAdvancesPC(t *testing.T) {
	buf := emitter.NewBuffer()
	buf.LoadStoreUnsignedOffset(emitter.Width32, emitter.OpLoadUnsigned, emitter.R3, emitter.R2, 0x20)

	bus := newFakeBus()
	bus.mem[0x1020] = 0xdeadbeef

	h := &Handler{Bus: bus, TranslationBase: 0}
	ctx := &fakeCtx{pc: 0x4000, fault: 0x1020, word: buf.Words[0]}
	ctx.regs[2] = 0x1000 // base register (Rn = R2)

	h.Handle(ctx)

	if ctx.regs[3] != 0xdeadbeef {
		t.Fatalf("Rt(x3) = %#x, want 0xdeadbeef", ctx.regs[3])
	}
	if ctx.pc != 0x4004 {
		t.Fatalf("PC = %#x, want 0x4004 (advanced by 4)", ctx.pc)
	}
	if bus.lastReadAddr != 0x1020 || bus.lastReadWidth != 4 {
		t.Fatalf("bus read (addr=%#x, width=%d), want (0x1020, 4)", bus.lastReadAddr, bus.lastReadWidth)
	}
}

func TestHandleStoreWritesBusValue(t *testing.T) {
	buf := emitter.NewBuffer()
	buf.LoadStoreUnsignedOffset(emitter.Width16, emitter.OpStore, emitter.R0, emitter.R1, 4)

	bus := newFakeBus()
	h := &Handler{Bus: bus}
	ctx := &fakeCtx{pc: 0x8000, fault: 0x2004}
	ctx.word = buf.Words[0]
	ctx.regs[1] = 0x2000
	ctx.regs[0] = 0x1234abcd

	h.Handle(ctx)

	if bus.lastWrite.addr != 0x2004 || bus.lastWrite.width != 2 {
		t.Fatalf("bus write (addr=%#x, width=%d), want (0x2004, 2)", bus.lastWrite.addr, bus.lastWrite.width)
	}
	if bus.lastWrite.value != 0xabcd {
		t.Fatalf("write value = %#x, want the low 16 bits (0xabcd)", bus.lastWrite.value)
	}
}

func TestHandlePostIndexLoadWritesBackBase(t *testing.T) {
	buf := emitter.NewBuffer()
	buf.LoadStoreIndexed(emitter.Width32, emitter.OpLoadUnsigned, emitter.R5, emitter.R6, 4, emitter.PostIndex)

	bus := newFakeBus()
	bus.mem[0x3000] = 0x42
	h := &Handler{Bus: bus}
	ctx := &fakeCtx{pc: 0x100, fault: 0x3000, word: buf.Words[0]}
	ctx.regs[6] = 0x3000

	h.Handle(ctx)

	if ctx.regs[5] != 0x42 {
		t.Fatalf("loaded value = %#x, want 0x42", ctx.regs[5])
	}
	if ctx.regs[6] != 0x3004 {
		t.Fatalf("base after post-increment = %#x, want 0x3004", ctx.regs[6])
	}
}

func TestHandlePreIndexStoreAccessesUpdatedAddressAndWritesBack(t *testing.T) {
	buf := emitter.NewBuffer()
	buf.LoadStoreIndexed(emitter.Width8, emitter.OpStore, emitter.R2, emitter.R3, 8, emitter.PreIndex)

	bus := newFakeBus()
	h := &Handler{Bus: bus}
	ctx := &fakeCtx{pc: 0x100, fault: 0x5008, word: buf.Words[0]}
	ctx.regs[3] = 0x5000
	ctx.regs[2] = 0xff

	h.Handle(ctx)

	if bus.lastWrite.addr != 0x5008 {
		t.Fatalf("write addr = %#x, want 0x5008 (base+offset before access)", bus.lastWrite.addr)
	}
	if ctx.regs[3] != 0x5008 {
		t.Fatalf("base after pre-index = %#x, want 0x5008", ctx.regs[3])
	}
}

func TestHandleSignedLoadSignExtends(t *testing.T) {
	buf := emitter.NewBuffer()
	buf.LoadStoreUnsignedOffset(emitter.Width8, emitter.OpLoadSigned64, emitter.R0, emitter.R1, 0)

	bus := newFakeBus()
	bus.mem[0x100] = 0xff // -1 as a signed byte
	h := &Handler{Bus: bus}
	ctx := &fakeCtx{pc: 0, fault: 0x100, word: buf.Words[0]}
	ctx.regs[1] = 0x100

	h.Handle(ctx)

	if ctx.regs[0] != ^uint64(0) {
		t.Fatalf("sign-extended load = %#x, want all-ones (-1)", ctx.regs[0])
	}
}

func TestHandleLoadPairUnpacksBothRegisters(t *testing.T) {
	buf := emitter.NewBuffer()
	buf.LoadPair(emitter.Size64, false, emitter.R0, emitter.R1, emitter.R2, 0, emitter.PairOffset)

	bus := newFakeBus()
	bus.mem[0x400] = 0x1111
	bus.mem[0x408] = 0x2222
	h := &Handler{Bus: bus}
	ctx := &fakeCtx{pc: 0, fault: 0x400, word: buf.Words[0]}
	ctx.regs[2] = 0x400

	h.Handle(ctx)

	if ctx.regs[0] != 0x1111 || ctx.regs[1] != 0x2222 {
		t.Fatalf("Rt/Rt2 = %#x/%#x, want 0x1111/0x2222", ctx.regs[0], ctx.regs[1])
	}
}

func TestHandleValidationTrapCallsRevalidateInsteadOfBus(t *testing.T) {
	bus := newFakeBus()
	called := false
	h := &Handler{
		Bus:            bus,
		ValidationTrap: AddrRange{Low: 0xfff00000, High: 0xfff01000},
		Revalidate: func(pc uint64) (uint64, bool) {
			called = true
			return pc + 0x10, true
		},
	}
	ctx := &fakeCtx{pc: 0x9000, fault: 0xfff00040}

	h.Handle(ctx)

	if !called {
		t.Fatal("expected Revalidate to be called for an address inside ValidationTrap")
	}
	if ctx.pc != 0x9010 {
		t.Fatalf("PC = %#x, want 0x9010 (Revalidate's resume address)", ctx.pc)
	}
	if len(bus.mem) != 0 {
		t.Fatal("a validation trap must not reach the bus at all")
	}
}

func TestHandleLiteralLoadPanicsAsUnreachable(t *testing.T) {
	buf := emitter.NewBuffer()
	buf.LoadLiteral(emitter.Size64, emitter.R0, 4)

	h := &Handler{Bus: newFakeBus()}
	ctx := &fakeCtx{pc: 0x100, fault: 0x200, word: buf.Words[0]}

	defer func() {
		if recover() == nil {
			t.Fatal("expected Handle to panic on a literal-load fault")
		}
	}()
	h.Handle(ctx)
}

func TestHandleExclusiveLoadAlwaysSucceeds(t *testing.T) {
	buf := emitter.NewBuffer()
	buf.LoadAcquireExclusive(emitter.Size64, emitter.R0, emitter.R1)

	h := &Handler{Bus: newFakeBus()}
	ctx := &fakeCtx{pc: 0, fault: 0x900, word: buf.Words[0]}
	ctx.regs[1] = 0x900

	h.Handle(ctx)

	if ctx.pc != 4 {
		t.Fatalf("PC = %#x, want 4 (advanced past the faulting instruction)", ctx.pc)
	}
}
