// Package flags implements the condition-code liveness analysis the
// Decoder consults before emitting a flag-producing instruction
// (spec.md §4.3): if no downstream instruction within the scan window
// reads a bit a given opcode would set, the emitter skips computing it.
//
// The per-opcode-line writes table below is grounded directly on
// original_source/M68k_SR.c's Line0_Map..LineF_Map mask/match tables —
// the same opcode-mask-and-match shape
// hansbonini-musashi-go/IntuitionAmiga-IntuitionEngine use for opcode
// dispatch, reused here for which CCR bits an instruction defines
// rather than what it does.
package flags

import "github.com/michalsc/Emu68-sub001/internal/guest"

// Bits is a subset of {C,V,Z,N,X}, reusing guest's CCR bit positions.
type Bits = uint8

const AllBits Bits = guest.CCR_C | guest.CCR_V | guest.CCR_Z | guest.CCR_N | guest.CCR_X

// maskEntry is one mask/match/writes tuple, checked in order; the first
// entry whose (opcode & Mask) == Match decides the result, matching
// M68k_SR.c's linear SRMaskEntry scan.
type maskEntry struct {
	mask, match uint16
	writes      Bits
}

func lookup(table []maskEntry, opcode uint16) (Bits, bool) {
	for _, e := range table {
		if opcode&e.mask == e.match {
			return e.writes, true
		}
	}
	return 0, false
}

// Line0 covers ORI/ANDI/SUBI/ADDI/EORI/CMPI/BTST family/CAS, ported
// from Line0_Map. The ORI/ANDI/EORI-to-CCR/SR forms intentionally carry
// writes=0 here: those opcodes consume the current CCR rather than
// redefine it outright, so FlagAnalyzer must not treat them as a kill:
// writes=0 keeps the scan going past them, so a later Bcc/Scc read is
// still found. The analyzer records no read for them.
var line0 = []maskEntry{
	{0xffbf, 0x003c, 0},                                                   // ORI to CCR/SR
	{0xff00, 0x0000, guest.CCR_C | guest.CCR_Z | guest.CCR_N | guest.CCR_V}, // ORI
	{0xffbf, 0x023c, 0},                                                   // ANDI to CCR/SR
	{0xf9c0, 0x00c0, guest.CCR_C | guest.CCR_Z | guest.CCR_N | guest.CCR_V}, // CHK2/CMP2
	{0xff00, 0x0200, guest.CCR_C | guest.CCR_Z | guest.CCR_N | guest.CCR_V}, // ANDI
	{0xff00, 0x0400, AllBits},                                             // SUBI
	{0xffc0, 0x06c0, 0},                                                   // RTM/CALLM
	{0xff00, 0x0600, AllBits},                                             // ADDI
	{0xffbf, 0x0a3c, 0},                                                   // EORI to CCR/SR
	{0xff00, 0x0a00, guest.CCR_C | guest.CCR_Z | guest.CCR_N | guest.CCR_V}, // EORI
	{0xff00, 0x0c00, guest.CCR_C | guest.CCR_Z | guest.CCR_N | guest.CCR_V}, // CMPI
	{0xff00, 0x0800, guest.CCR_Z},                                         // BTST/BSET/BCLR/BCHG static
	{0xf9c0, 0x08c0, guest.CCR_C | guest.CCR_Z | guest.CCR_N | guest.CCR_V}, // CAS/CAS2
	{0xf100, 0x0100, guest.CCR_Z},                                         // BTST/BSET/BCLR/BCHG dynamic
}

// line1 covers MOVE.B (lines 1-3 alias the same table in the original,
// varying only in operand size which does not change which bits it
// touches).
var line1 = []maskEntry{
	{0xc1c0, 0x0040, 0}, // MOVEA: does not touch CC
	{0xc000, 0x0000, guest.CCR_C | guest.CCR_V | guest.CCR_Z | guest.CCR_N}, // MOVE
}

var line4 = []maskEntry{
	{0xfdc0, 0x40c0, 0},       // MOVE from CCR/SR
	{0xff00, 0x4000, AllBits}, // NEGX
	{0xff00, 0x4200, guest.CCR_C | guest.CCR_Z | guest.CCR_N | guest.CCR_V}, // CLR
	{0xffc0, 0x44c0, AllBits}, // MOVE to CCR
	{0xff00, 0x4400, AllBits}, // NEG
	{0xffc0, 0x46c0, AllBits}, // MOVE to SR
	{0xff00, 0x4600, guest.CCR_C | guest.CCR_Z | guest.CCR_N | guest.CCR_V}, // NOT
	{0xfeb8, 0x4880, guest.CCR_C | guest.CCR_Z | guest.CCR_N | guest.CCR_V}, // EXT/EXTB
	{0xffc0, 0x4800, AllBits},                                             // NBCD
	{0xfff8, 0x4840, guest.CCR_C | guest.CCR_Z | guest.CCR_N | guest.CCR_V}, // SWAP
	{0xff00, 0x4a00, guest.CCR_C | guest.CCR_Z | guest.CCR_N | guest.CCR_V}, // TAS/TST
	{0xff80, 0x4c00, guest.CCR_C | guest.CCR_Z | guest.CCR_N | guest.CCR_V}, // MULU/MULS/DIVU/DIVS
	{0xffff, 0x4e72, AllBits},                                             // STOP
	{0xffff, 0x4e73, AllBits},                                             // RTE
	{0xffff, 0x4e77, AllBits},                                             // RTR
}

var line5 = []maskEntry{
	{0xf0c0, 0x50c0, 0},       // Scc/DBcc: reads CC, does not write it
	{0xf000, 0x5000, AllBits}, // ADDQ/SUBQ
}

var line6 = []maskEntry{
	{0xf000, 0x6000, 0}, // Bcc: reads CC, does not write it
}

var line7 = []maskEntry{
	{0xf000, 0x7000, guest.CCR_C | guest.CCR_V | guest.CCR_Z | guest.CCR_N}, // MOVEQ
}

var line8 = []maskEntry{
	{0xf1c0, 0x80c0, guest.CCR_C | guest.CCR_V | guest.CCR_Z | guest.CCR_N}, // DIVU
	{0xf1f0, 0x8100, AllBits},                                             // SBCD
	{0xf1f0, 0x8140, 0},                                                   // PACK
	{0xf1f0, 0x8180, 0},                                                   // UNPK
	{0xf1c0, 0x81c0, guest.CCR_C | guest.CCR_V | guest.CCR_Z | guest.CCR_N}, // DIVS
	{0xf000, 0x8000, guest.CCR_C | guest.CCR_V | guest.CCR_Z | guest.CCR_N}, // OR
}

var line9 = []maskEntry{
	{0xf130, 0x9100, guest.CCR_C | guest.CCR_V | guest.CCR_Z | guest.CCR_N}, // SUBX
	{0xf000, 0x9000, AllBits},                                             // SUB/SUBA
}

var lineA = []maskEntry{}

var lineB = []maskEntry{
	{0xf000, 0xb000, guest.CCR_C | guest.CCR_V | guest.CCR_Z | guest.CCR_N}, // CMP/CMPM/CMPA/EOR
}

var lineC = []maskEntry{
	{0xf1c0, 0xc0c0, guest.CCR_C | guest.CCR_V | guest.CCR_Z | guest.CCR_N}, // MULU
	{0xf1f0, 0xc100, guest.CCR_C | guest.CCR_V | guest.CCR_Z | guest.CCR_N}, // ABCD
	{0xf1c0, 0xc1c0, guest.CCR_C | guest.CCR_V | guest.CCR_Z | guest.CCR_N}, // MULS
	{0xf1f0, 0xc140, 0}, // EXG Dx,Dy
	{0xf1f0, 0xc180, 0}, // EXG Dx,Ay
	{0xf000, 0xc000, guest.CCR_C | guest.CCR_V | guest.CCR_Z | guest.CCR_N}, // AND
}

var lineD = []maskEntry{
	{0xf130, 0xd100, guest.CCR_C | guest.CCR_V | guest.CCR_Z | guest.CCR_N}, // ADDX
	{0xf000, 0xd000, AllBits},                                             // ADD/ADDA
}

var lineE = []maskEntry{
	{0xfec0, 0xe0c0, AllBits},                                             // ASL/ASR memory
	{0xfec0, 0xe2c0, AllBits},                                             // LSL/LSR memory
	{0xfec0, 0xe4c0, guest.CCR_C | guest.CCR_V | guest.CCR_Z | guest.CCR_N}, // ROXL/ROXR memory
	{0xfec0, 0xe6c0, guest.CCR_C | guest.CCR_V | guest.CCR_Z | guest.CCR_N}, // ROL/ROR memory
	{0xffc0, 0xe8c0, guest.CCR_C | guest.CCR_V | guest.CCR_Z | guest.CCR_N}, // BFTST
	{0xffc0, 0xe9c0, guest.CCR_C | guest.CCR_V | guest.CCR_Z | guest.CCR_N}, // BFEXTU
	{0xffc0, 0xeac0, guest.CCR_C | guest.CCR_V | guest.CCR_Z | guest.CCR_N}, // BFCHG
	{0xffc0, 0xebc0, guest.CCR_C | guest.CCR_V | guest.CCR_Z | guest.CCR_N}, // BFEXTS
	{0xffc0, 0xecc0, guest.CCR_C | guest.CCR_V | guest.CCR_Z | guest.CCR_N}, // BFCLR
	{0xffc0, 0xedc0, guest.CCR_C | guest.CCR_V | guest.CCR_Z | guest.CCR_N}, // BFFFO
	{0xffc0, 0xeec0, guest.CCR_C | guest.CCR_V | guest.CCR_Z | guest.CCR_N}, // BFSET
	{0xffc0, 0xefc0, guest.CCR_C | guest.CCR_V | guest.CCR_Z | guest.CCR_N}, // BFINS
	{0xf018, 0xe000, AllBits},                                             // ASL/ASR register
	{0xf018, 0xe008, AllBits},                                             // LSL/LSR register
	{0xf018, 0xe010, guest.CCR_C | guest.CCR_V | guest.CCR_Z | guest.CCR_N}, // ROXL/ROXR register
	{0xf018, 0xe018, guest.CCR_C | guest.CCR_V | guest.CCR_Z | guest.CCR_N}, // ROL/ROR register
}

var lineF = []maskEntry{}

var lineTables = [16][]maskEntry{
	0: line0, 1: line1, 2: line1, 3: line1, 4: line4,
	5: line5, 6: line6, 7: line7, 8: line8, 9: line9,
	0xA: lineA, 0xB: lineB, 0xC: lineC, 0xD: lineD, 0xE: lineE, 0xF: lineF,
}

// Writes reports the CCR bits opcode unconditionally redefines, per the
// per-line mask tables above. An opcode that matches no entry (a "line
// A"/"line F" coprocessor/unimplemented slot, or one of the EXG/PACK/
// RTS-class instructions that never touch CC) writes nothing.
func Writes(opcode uint16) Bits {
	line := (opcode >> 12) & 0xf
	w, _ := lookup(lineTables[line], opcode)
	return w
}
