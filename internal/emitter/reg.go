// Package emitter appends one AArch64 instruction word at a time to a
// growing code buffer. Each method validates its operands and encodes
// exactly one instruction; an out-of-range register or offset is a
// translator bug, not a guest-visible condition, so it is reported via
// a guard trap rather than a Go error (spec.md §4.1).
package emitter

import "fmt"

// Reg identifies a host AArch64 general-purpose register, 0..30, plus
// the two encode-only aliases for the zero register and stack pointer.
// Numbering matches the hardware encoding directly so Reg can be spliced
// into instruction words without a lookup table, the way
// faddat-wazero/internal/engine/wazevo/backend/isa/arm64/reg.go numbers
// its w0..w30/x0..x30/wzr/xzr/wsp/sp/lr constants.
type Reg uint8

const (
	R0 Reg = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	R16
	R17
	R18
	R19
	R20
	R21
	R22
	R23
	R24
	R25
	R26
	R27
	R28
	FP // x29, frame pointer
	LR // x30, link register
	ZR // encode-only: xzr/wzr depending on size, or sp depending on context
)

// SP is the encode-only stack-pointer register number used by the
// load/store and ADD/SUB (unshifted register) forms that special-case
// register 31 as sp instead of the zero register.
const SP Reg = 31

// FReg identifies a host AArch64 SIMD/FP register, 0..31.
type FReg uint8

// regNames mirrors faddat-wazero's regNames table, used only for the
// disassembly-style String() methods below (spec.md's "disassemble"
// bootarg, §6).
var regNames64 = [32]string{
	"x0", "x1", "x2", "x3", "x4", "x5", "x6", "x7",
	"x8", "x9", "x10", "x11", "x12", "x13", "x14", "x15",
	"x16", "x17", "x18", "x19", "x20", "x21", "x22", "x23",
	"x24", "x25", "x26", "x27", "x28", "x29", "x30", "xzr",
}

func (r Reg) String() string {
	if int(r) < len(regNames64) {
		return regNames64[r]
	}
	return fmt.Sprintf("x?%d", r)
}

func (r FReg) String() string { return fmt.Sprintf("d%d", uint8(r)) }

// validGPR reports whether r is a usable encode-time GPR index (0..31,
// 31 meaning sp or the zero register depending on instruction class).
func validGPR(r Reg) bool { return r <= 31 }

func validFPR(r FReg) bool { return r <= 31 }
