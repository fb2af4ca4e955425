// Package config parses the device-tree "bootargs" string (spec.md §6)
// into the tuning knobs the core consults at startup, and holds the
// memory-layout tables the device tree otherwise supplies.
//
// Grounded on rcornwell-S370/config/configparser's line scanner: tokens
// are whitespace-separated, each either a bare switch ("debug") or a
// key=value pair ("ICNT=64"); unlike the file-oriented S370 parser this
// one scans a single already-read string rather than a file.
package config

import (
	"fmt"
	"strconv"
	"strings"
)

// BootArgs is the parsed form of spec.md §6's recognized tuning options.
type BootArgs struct {
	EnableCache bool
	Limit2G     bool
	NoFPU       bool
	Debug       bool
	Disassemble bool

	ChipSlowdown bool
	ChipSlowdownDist uint32 // cs_dist=N

	DbfSlowdown bool
	Blitwait    bool

	InsnBudget  uint16 // ICNT=n, 1..256
	CCRScanDepth uint8 // CCRD=n, 0..31
	InlineRange  uint16 // IRNG=n

	MemTestPattern uint32 // buptest=N
	MemTestIters   uint32 // bupiter=K

	CoprocMemMiB uint32 // vc4.mem=N

	ChecksumROM bool
	CopyROMSize uint32 // copy_rom=N
	FastPageZero bool

	SwapDF0WithDF1 bool
	SwapDF0WithDF2 bool
	SwapDF0WithDF3 bool
	MoveSlowToChip bool
}

// DefaultInsnBudget matches the original implementation's default
// per-unit instruction budget when ICNT is not given.
const DefaultInsnBudget = 64

// DefaultCCRScanDepth matches spec.md §4.3's default FlagAnalyzer scan depth.
const DefaultCCRScanDepth = 20

// Parse scans a bootargs string of whitespace-separated tokens. Unknown
// tokens are ignored rather than rejected: a board built against a
// newer firmware image may pass tokens this core version does not know,
// and spec.md treats these as advisory tuning, not contract.
func Parse(bootargs string) (*BootArgs, error) {
	b := &BootArgs{
		InsnBudget:   DefaultInsnBudget,
		CCRScanDepth: DefaultCCRScanDepth,
	}

	for _, tok := range strings.Fields(bootargs) {
		name, value, hasValue := strings.Cut(tok, "=")
		switch strings.ToLower(name) {
		case "enable_cache":
			b.EnableCache = true
		case "limit_2g":
			b.Limit2G = true
		case "nofpu":
			b.NoFPU = true
		case "debug":
			b.Debug = true
		case "disassemble":
			b.Disassemble = true
		case "chip_slowdown", "sc":
			b.ChipSlowdown = true
		case "cs_dist":
			n, err := parseUint(value, hasValue, "cs_dist")
			if err != nil {
				return nil, err
			}
			b.ChipSlowdownDist = n
		case "dbf_slowdown", "dbf":
			b.DbfSlowdown = true
		case "blitwait":
			b.Blitwait = true
		case "icnt":
			n, err := parseUint(value, hasValue, "ICNT")
			if err != nil {
				return nil, err
			}
			if n < 1 || n > 256 {
				return nil, fmt.Errorf("config: ICNT=%d out of range [1,256]", n)
			}
			b.InsnBudget = uint16(n)
		case "ccrd":
			n, err := parseUint(value, hasValue, "CCRD")
			if err != nil {
				return nil, err
			}
			if n > 31 {
				return nil, fmt.Errorf("config: CCRD=%d out of range [0,31]", n)
			}
			b.CCRScanDepth = uint8(n)
		case "irng":
			n, err := parseUint(value, hasValue, "IRNG")
			if err != nil {
				return nil, err
			}
			b.InlineRange = uint16(n)
		case "buptest":
			n, err := parseUint(value, hasValue, "buptest")
			if err != nil {
				return nil, err
			}
			b.MemTestPattern = n
		case "bupiter":
			n, err := parseUint(value, hasValue, "bupiter")
			if err != nil {
				return nil, err
			}
			b.MemTestIters = n
		case "vc4.mem":
			n, err := parseUint(value, hasValue, "vc4.mem")
			if err != nil {
				return nil, err
			}
			b.CoprocMemMiB = n
		case "checksum_rom":
			b.ChecksumROM = true
		case "copy_rom":
			n, err := parseUint(value, hasValue, "copy_rom")
			if err != nil {
				return nil, err
			}
			b.CopyROMSize = n
		case "fast_page_zero":
			b.FastPageZero = true
		case "swap_df0_with_df1":
			b.SwapDF0WithDF1 = true
		case "swap_df0_with_df2":
			b.SwapDF0WithDF2 = true
		case "swap_df0_with_df3":
			b.SwapDF0WithDF3 = true
		case "move_slow_to_chip":
			b.MoveSlowToChip = true
		}
	}
	return b, nil
}

func parseUint(value string, has bool, name string) (uint32, error) {
	if !has {
		return 0, fmt.Errorf("config: %s requires a value", name)
	}
	n, err := strconv.ParseUint(value, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", name, err)
	}
	return uint32(n), nil
}

// MemoryBlock describes one physical RAM block from the device tree.
type MemoryBlock struct {
	Base uint64
	Size uint64
}

// MMIORange describes one peripheral MMIO window to be identity-mapped
// between guest physical and host virtual address space.
type MMIORange struct {
	Base uint64
	Size uint64
	Name string
}

// MemoryLayout is the device-tree-derived description of guest physical
// address space that BusBackend needs to decide shadow-RAM vs. bus-PHY
// vs. peripheral routing.
type MemoryLayout struct {
	RAM  []MemoryBlock
	MMIO []MMIORange
}
