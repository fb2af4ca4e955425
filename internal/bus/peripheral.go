package bus

import "sync"

// Register addresses a named MMIO range in config.MemoryLayout can
// resolve to Peripheral, mirrored from
// original_source/src/aarch64/vectors.c's SYSWriteValToAddr/
// SYSReadValFromAddr register enum.
const (
	AddrCIAAPRA = 0xbfe001
	AddrCIABPRB = 0xbfd100

	AddrINTENA  = 0xdff09a
	AddrINTENAR = 0xdff01c
	AddrINTREQ  = 0xdff09c
	AddrINTREQR = 0xdff01e

	addrAutoconfBase = 0xe80000
	addrAutoconfTop  = 0xe8ffff
)

const ciaSel0Bitnum = 3

// Peripheral answers the small set of Amiga custom-chip and CIA
// control registers Emu68 intercepts directly rather than forwarding
// to real hardware: the INTENA/INTREQ shadow pair, the CIAAPRA
// overlay (OVL) bit, the CIABPRB floppy drive-select lines
// (optionally spoofed so a second physical or virtual drive answers
// in place of DF0), and the expansion-board autoconfig handshake.
// State and behavior follow vectors.c's SYSWriteValToAddr/
// SYSReadValFromAddr one field at a time, not transliterated but
// carried over into Go fields and methods a goroutine can call
// concurrently with the dispatcher.
type Peripheral struct {
	mu sync.Mutex

	intena uint16
	intreq uint16

	overlay bool // OVL bit: page zero maps ROM (true) or RAM (false)

	// SwapDF0WithDFx, when non-zero, remaps CIABPRB's drive-select bit
	// SEL0_BITNUM with the bit SwapDF0WithDFx positions higher so a
	// different physical unit answers as DF0 — vectors.c's
	// swap_df0_with_dfx knob.
	SwapDF0WithDFx uint8
	spoofDF0ID     bool

	ciabprb uint8 // last value written to CIABPRB, pre-swap

	boards     []AutoconfigBoard
	boardIdx   int
	mappedBase uint32
}

// AutoconfigBoard is one entry of the Zorro expansion-board list the
// autoconfig handshake below walks, mirroring vectors.c's
// `struct ExpansionBoard **board` array (board[board_idx]->is_z3,
// ->map_base, ->map()).
type AutoconfigBoard struct {
	IsZorro3 bool
	// Map is invoked once the host has written this board's map_base,
	// letting the caller wire the board's own registers into whatever
	// MemoryLayout or Router reconfiguration it needs; nil is fine for
	// a board with nothing to do at map time.
	Map func(mapBase uint32)
}

// NewPeripheral constructs a Peripheral with the reset-state shadow
// registers vectors.c initializes statically (overlay on, no drives
// swapped) and the given autoconfig board list.
func NewPeripheral(boards []AutoconfigBoard) *Peripheral {
	return &Peripheral{overlay: true, boards: boards}
}

// Overlay reports whether the CIAAPRA OVL bit currently maps page
// zero to ROM (true) or to RAM (false).
func (p *Peripheral) Overlay() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overlay
}

// Read implements Backend for the registers above; any other address
// within a caller's MMIO window is reported unmapped rather than
// silently returning zero, since an unrecognized peripheral address
// is a configuration bug worth surfacing.
func (p *Peripheral) Read(addr uint32, width uint8) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch addr &^ 1 {
	case AddrINTENAR:
		return p.readSplitWord(p.intena, addr, width), nil
	case AddrINTREQR:
		return p.readSplitWord(p.intreq, addr, width), nil
	}
	switch addr {
	case AddrCIAAPRA:
		v := uint64(0xff)
		if p.SwapDF0WithDFx != 0 && p.spoofDF0ID {
			v &^= 1 // drive present
		}
		return v, nil
	case AddrCIABPRB:
		return uint64(p.ciabprbReadValue()), nil
	}
	return 0, &ErrUnmapped{Addr: addr, Width: width}
}

// readSplitWord serves INTENAR/INTREQR's byte-addressable halves the
// way vectors.c's SYSReadValFromAddr does: accessing the +0/+1 byte
// returns only that half of the 16-bit shadow register.
func (p *Peripheral) readSplitWord(shadow uint16, addr uint32, width uint8) uint64 {
	if width >= 2 {
		return uint64(shadow)
	}
	if addr&1 == 1 {
		return uint64(shadow & 0xff)
	}
	return uint64(shadow >> 8)
}

func (p *Peripheral) ciabprbReadValue() uint8 {
	value := p.ciabprb
	if p.SwapDF0WithDFx == 0 {
		return value
	}
	sel1 := ciaSel0Bitnum + p.SwapDF0WithDFx
	if (value>>ciaSel0Bitnum)&1 != (value>>sel1)&1 {
		value ^= (1 << ciaSel0Bitnum) | (1 << sel1)
	}
	return value
}

// Write implements Backend.
func (p *Peripheral) Write(addr uint32, width uint8, value uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch addr {
	case AddrINTENA:
		if value&0x8000 != 0 {
			p.intena |= uint16(value) & 0x7fff
		} else {
			p.intena &^= uint16(value) & 0x7fff
		}
		return nil
	case AddrINTREQ:
		if value&0x8000 != 0 {
			p.intreq |= uint16(value) & 0x3fff
		} else {
			p.intreq &^= uint16(value) & 0x3fff
		}
		return nil
	case AddrCIAAPRA:
		if width == 1 {
			p.setOverlay(value&1 != 0)
		}
		return nil
	case AddrCIABPRB:
		p.handleCIABPRBWrite(uint8(value))
		return nil
	}
	if addr >= addrAutoconfBase && addr <= addrAutoconfTop {
		return p.autoconfigWrite(addr, uint32(value))
	}
	return &ErrUnmapped{Addr: addr, Width: width}
}

func (p *Peripheral) setOverlay(v bool) {
	p.overlay = v
}

// handleCIABPRBWrite mirrors vectors.c's CIABPRB write handling: first
// deciding whether the drive-select lines currently address a
// motor-off read (meaning the host is probing the drive ID, so the
// spoofed unit should answer), then swapping the SEL0/SELx bits when
// SwapDF0WithDFx is configured.
func (p *Peripheral) handleCIABPRBWrite(value uint8) {
	p.ciabprb = value
	if p.SwapDF0WithDFx == 0 {
		return
	}
	selxBit := ciaSel0Bitnum + p.SwapDF0WithDFx
	if value&((1<<selxBit)|0x80) == 0x80 {
		p.spoofDF0ID = true
	} else {
		p.spoofDF0ID = false
	}
}

// autoconfigWrite drives the Zorro expansion autoconfig handshake: the
// host probes the next unclaimed board's configuration space and,
// once it writes a base address to 0xe80044 (map_base, for a Zorro III
// board), this calls that board's Map and advances board_idx — the
// same sequencing as vectors.c's SYSWriteValToAddr board walk.
func (p *Peripheral) autoconfigWrite(addr uint32, value uint32) error {
	if p.boardIdx >= len(p.boards) {
		return nil
	}
	board := p.boards[p.boardIdx]
	if board.IsZorro3 && addr == 0xe80044 {
		p.mappedBase = (value & 0xffff) << 16
		if board.Map != nil {
			board.Map(p.mappedBase)
		}
		p.boardIdx++
	}
	return nil
}
