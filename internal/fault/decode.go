package fault

// Kind classifies the addressing-mode family a faulting load/store
// instruction word was encoded with, mirroring the families
// internal/emitter's loadstore.go knows how to produce.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindUnsignedOffset
	KindIndexed // unscaled offset, and its pre/post-index writeback forms
	KindRegOffset
	KindPair
	KindExclusive
	KindFloatingPoint // recognized but never reached through guest memory, see decode doc
	KindLiteral       // PC-relative literal load, see decode doc
)

// IndexKind distinguishes the three sub-forms KindIndexed covers.
type IndexKind uint8

const (
	IndexNone IndexKind = iota // plain unscaled offset, no base writeback
	IndexPost
	IndexPre
)

// Insn is the decoded shape of one faulting AArch64 load/store
// instruction: enough to synthesize the equivalent guest bus cycle and
// write the result (or the updated base, for writeback forms) back
// into the saved register file.
type Insn struct {
	Kind   Kind
	Load   bool // false for a store
	Signed bool // sign-extend on load, for sub-register widths
	Width  uint8 // access size in bytes: 1, 2, 4 or 8 (per register, for a pair)
	To64   bool  // destination is an X register rather than W, for sign-extending loads

	Rt, Rt2, Rn, Rm uint8
	UseRm           bool
	Extend          uint8 // ExtendMode bit pattern, valid when UseRm
	Scaled          bool

	Offset int32 // byte offset: imm12*scale, imm9, or imm7*scale as applicable
	Index  IndexKind
}

// Decode inspects a 32-bit AArch64 instruction word and reports the
// load/store it encodes, following the exact bit layouts
// internal/emitter/loadstore.go's Buffer methods produce. FaultHandler
// never needs to decode anything wider than what the Emitter itself
// can emit (spec.md §4.7 step 2's supported-encodings list matches the
// Emitter's repertoire one for one), so this is not a general AArch64
// disassembler.
func Decode(word uint32) (Insn, bool) {
	switch {
	case word>>24&0b111111 == 0b011000:
		// LDR/LDRSW/PRFM (literal): PC-relative, always addressing the
		// generated code buffer's own constant pool, a host page that
		// is always present — never the guest-mapped memory that can
		// raise the fault this package handles. Recognized so Decode
		// never reports "undecodable" for it; Handle still refuses to
		// act on one, see handler doc.
		return Insn{Kind: KindLiteral}, true
	case word>>24&0b111111 == 0b001000 && word>>27&0b111 == 0b001:
		return decodeExclusive(word), true
	case word>>27&0b111 == 0b101:
		return decodePair(word), true
	case word>>27&0b111 == 0b111 && word>>24&0b11 == 0b01:
		return decodeUnsignedOffset(word), true
	case word>>27&0b111 == 0b111 && word>>24&0b11 == 0b00 && word>>21&1 == 1 && word>>10&0b11 == 0b10:
		return decodeRegOffset(word), true
	case word>>27&0b111 == 0b111 && word>>24&0b11 == 0b00 && word>>21&1 == 0:
		return decodeIndexed(word), true
	default:
		return Insn{}, false
	}
}

func widthFromSizeBits(size uint32) uint8 {
	return [4]uint8{1, 2, 4, 8}[size&0b11]
}

// signExtend interprets the low bits-wide field of v as a two's
// complement value of that width and sign-extends it into an int32.
func signExtend(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}

func decodeUnsignedOffset(word uint32) Insn {
	size := word >> 30 & 0b11
	v := word >> 26 & 1
	op := word >> 22 & 0b11
	imm12 := word >> 10 & 0xfff
	rn := uint8(word >> 5 & 0x1f)
	rt := uint8(word & 0x1f)

	if v == 1 {
		// FP/SIMD variant: reuses the size field to also carry
		// precision, and FaultHandler never sees one of these fault
		// through guest memory (FP spill/fill only ever targets the
		// always-mapped GuestState struct, see handler.go).
		return Insn{Kind: KindFloatingPoint, Rt: rt, Rn: rn}
	}

	width := widthFromSizeBits(size)
	insn := Insn{
		Kind:   KindUnsignedOffset,
		Rt:     rt,
		Rn:     rn,
		Width:  width,
		Offset: int32(imm12) * int32(width),
	}
	switch op {
	case 0b00:
		insn.Load = false
	case 0b01:
		insn.Load, insn.To64 = true, true
	case 0b10:
		insn.Load, insn.Signed, insn.To64 = true, true, true
	case 0b11:
		insn.Load, insn.Signed, insn.To64 = true, true, false
	}
	return insn
}

func decodeIndexed(word uint32) Insn {
	size := word >> 30 & 0b11
	op := word >> 22 & 0b11
	imm9 := signExtend(word>>12&0x1ff, 9)
	mode := word >> 10 & 0b11
	rn := uint8(word >> 5 & 0x1f)
	rt := uint8(word & 0x1f)

	width := widthFromSizeBits(size)
	insn := Insn{
		Kind:   KindIndexed,
		Rt:     rt,
		Rn:     rn,
		Width:  width,
		Offset: imm9,
	}
	switch mode {
	case 0b01:
		insn.Index = IndexPost
	case 0b11:
		insn.Index = IndexPre
	default:
		insn.Index = IndexNone
	}
	switch op {
	case 0b00:
		insn.Load = false
	case 0b01:
		insn.Load, insn.To64 = true, true
	case 0b10:
		insn.Load, insn.Signed, insn.To64 = true, true, true
	case 0b11:
		insn.Load, insn.Signed, insn.To64 = true, true, false
	}
	return insn
}

func decodeRegOffset(word uint32) Insn {
	size := word >> 30 & 0b11
	op := word >> 22 & 0b11
	rm := uint8(word >> 16 & 0x1f)
	ext := uint8(word >> 13 & 0b111)
	scaled := word>>12&1 == 1
	rn := uint8(word >> 5 & 0x1f)
	rt := uint8(word & 0x1f)

	width := widthFromSizeBits(size)
	insn := Insn{
		Kind:   KindRegOffset,
		Rt:     rt,
		Rn:     rn,
		Rm:     rm,
		UseRm:  true,
		Extend: ext,
		Scaled: scaled,
		Width:  width,
	}
	switch op {
	case 0b00:
		insn.Load = false
	case 0b01:
		insn.Load, insn.To64 = true, true
	case 0b10:
		insn.Load, insn.Signed, insn.To64 = true, true, true
	case 0b11:
		insn.Load, insn.Signed, insn.To64 = true, true, false
	}
	return insn
}

func decodePair(word uint32) Insn {
	opc := word >> 30 & 0b11
	variant := word >> 23 & 0b111
	l := word>>22&1 == 1
	imm7 := signExtend(word>>15&0x7f, 7)
	rt2 := uint8(word >> 10 & 0x1f)
	rn := uint8(word >> 5 & 0x1f)
	rt := uint8(word & 0x1f)

	var width uint8
	var to64 bool
	switch opc {
	case 0b00: // plain 32-bit pair, destination W registers
		width, to64 = 4, false
	case 0b01: // LDPSW: 32-bit pair, sign-extended into X registers
		width, to64 = 4, true
	default: // plain 64-bit pair
		width, to64 = 8, true
	}
	signed := opc == 0b01

	insn := Insn{
		Kind:   KindPair,
		Load:   l,
		Signed: signed,
		To64:   to64,
		Rt:     rt,
		Rt2:    rt2,
		Rn:     rn,
		Width:  width,
		Offset: imm7 * int32(width),
	}
	switch PairVariantBits(variant) {
	case pairVariantPost:
		insn.Index = IndexPost
	case pairVariantPre:
		insn.Index = IndexPre
	default:
		insn.Index = IndexNone
	}
	return insn
}

// PairVariantBits mirrors emitter.PairVariant's three-bit encodings so
// decodePair can switch on the raw field without importing emitter
// (which has no reason to depend back on fault).
type PairVariantBits uint8

const (
	pairVariantPost PairVariantBits = 0b001
	pairVariantOff  PairVariantBits = 0b010
	pairVariantPre  PairVariantBits = 0b011
)

func decodeExclusive(word uint32) Insn {
	isLoad := word>>22&1 == 1
	rn := uint8(word >> 5 & 0x1f)
	rt := uint8(word & 0x1f)
	size := word >> 30 & 0b11
	return Insn{
		Kind:  KindExclusive,
		Load:  isLoad,
		To64:  size == 0b11,
		Width: widthFromSizeBits(size),
		Rt:    rt,
		Rn:    rn,
	}
}
