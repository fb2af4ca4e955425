package flags

import "github.com/michalsc/Emu68-sub001/internal/guest"

// condBitsRead returns the CCR bits the 4-bit 68k condition code cc
// tests, the table implicit in every Scc/DBcc/Bcc opcode. T(0) and
// F(1) read nothing; they are resolved at decode time without ever
// touching CC.
func condBitsRead(cc uint8) Bits {
	switch cc {
	case 0, 1: // T, F
		return 0
	case 2, 3: // HI, LS
		return guest.CCR_C | guest.CCR_Z
	case 4, 5: // CC, CS
		return guest.CCR_C
	case 6, 7: // NE, EQ
		return guest.CCR_Z
	case 8, 9: // VC, VS
		return guest.CCR_V
	case 10, 11: // PL, MI
		return guest.CCR_N
	case 12, 13: // GE, LT
		return guest.CCR_N | guest.CCR_V
	case 14, 15: // GT, LE
		return guest.CCR_N | guest.CCR_V | guest.CCR_Z
	default:
		return AllBits
	}
}

// step is the liveness-relevant summary of one decoded instruction,
// produced without needing the full Decoder: only the bits written,
// the bits a conditional test reads, and branch shape matter here.
type step struct {
	words    int  // length of this instruction in 16-bit words, at least 1
	writes   Bits
	reads    Bits
	isBranch bool
	taken    bool // true if this branch is unconditionally taken (BRA); Bcc/DBcc set false since they may fall through
	target   int  // word index branched to; -1 if not staticaly known
}

func decodeStep(stream []uint16, i int) step {
	opcode := stream[i]
	line := (opcode >> 12) & 0xf

	switch line {
	case 5:
		if opcode&0xf0c0 == 0x50c0 {
			cc := uint8((opcode >> 8) & 0xf)
			return step{words: 1, reads: condBitsRead(cc)}
		}
	case 6:
		cc := uint8((opcode >> 8) & 0xf)
		disp := int8(opcode & 0xff)
		words := 1
		var target int
		switch disp {
		case 0:
			if i+1 < len(stream) {
				target = i + 1 + int(int16(stream[i+1]))/2
			} else {
				target = -1
			}
			words = 2
		case -1: // 0xff: 32-bit displacement, rare (68020); scanned conservatively
			return step{words: 3, isBranch: true, target: -1}
		default:
			target = i + 1 + int(disp)/2
		}
		return step{words: words, reads: condBitsRead(cc), isBranch: true, taken: cc == 0, target: target}
	}

	w := Writes(opcode)
	return step{words: 1, writes: w}
}

// Analyzer runs the bounded forward liveness scan spec.md §4.3
// describes, with a configurable depth bound (CCRScanDepth) guarding
// against pathological code shapes making the scan unbounded.
type Analyzer struct {
	MaxDepth int
	MaxForks int
}

// New returns an Analyzer with the given scan-depth budget (normally
// config.BootArgs.CCRScanDepth) and a small fixed fork budget: branch
// targets are only followed a handful of times before the scan gives up
// and assumes the bits are live, matching the "default to live" safety
// rule spec.md §4.3 calls for when analysis is inconclusive.
func New(maxDepth uint8) *Analyzer {
	depth := int(maxDepth)
	if depth == 0 {
		depth = 20
	}
	return &Analyzer{MaxDepth: depth, MaxForks: 4}
}

// Live reports whether any of bits is read by a downstream instruction
// before being fully overwritten, starting just after stream[idx] (the
// flag-producing instruction under consideration). A scan that runs out
// of depth or fork budget without resolving the question returns true:
// spec.md's "assume live, compute the flags" fallback.
func (a *Analyzer) Live(stream []uint16, idx int, bits Bits) bool {
	if bits == 0 {
		return false
	}
	return a.scan(stream, idx+1, bits, a.MaxDepth, a.MaxForks)
}

func (a *Analyzer) scan(stream []uint16, i int, bits Bits, depth, forks int) bool {
	for depth > 0 {
		if i < 0 || i >= len(stream) {
			return true // ran off the end of what we decoded: assume live
		}
		s := decodeStep(stream, i)

		if s.reads&bits != 0 {
			return true
		}
		bits &^= s.writes
		if bits == 0 {
			return false
		}

		if s.isBranch {
			if forks <= 0 {
				return true
			}
			if s.target < 0 {
				return true // undecodable displacement: assume live
			}
			if s.taken {
				i = s.target
				depth--
				continue
			}
			// Conditional: the flags must still be live down the
			// fall-through path AND the taken path both turning up
			// dead for Live to report false; either side live makes
			// the whole query live.
			if a.scan(stream, s.target, bits, depth-1, forks-1) {
				return true
			}
			i += s.words
			depth--
			continue
		}

		i += s.words
		depth--
	}
	return true // exhausted the depth budget: assume live
}
