package emitter

import (
	"encoding/binary"
	"fmt"
)

// BugError is raised (via panic) when an Emitter method is asked to
// encode an operand combination that cannot be represented — an
// out-of-range register number or an offset outside the addressing
// mode's encodeable window. Per spec.md §4.1 this always indicates a
// translator bug, never a guest-triggerable condition. Nothing in the
// translator recovers it: the panic propagates out of unit.Builder.Build
// to its caller, and no guard instruction is emitted in its place.
type BugError struct {
	Op  string
	Msg string
}

func (e *BugError) Error() string { return "emitter: " + e.Op + ": " + e.Msg }

func bug(op, format string, args ...any) {
	panic(&BugError{Op: op, Msg: fmt.Sprintf(format, args...)})
}

// Buffer is a growing little-endian AArch64 instruction stream. Units
// are built by appending to a Buffer, then the finished byte slice is
// copied into the executable heap described in spec.md §5.
type Buffer struct {
	Words []uint32
}

// NewBuffer returns an empty Buffer with capacity for a typical
// translation unit's worth of instructions, sized to need at most one
// growth for the common case.
func NewBuffer() *Buffer {
	return &Buffer{Words: make([]uint32, 0, 64)}
}

// Emit appends one raw 32-bit instruction word.
func (b *Buffer) Emit(word uint32) {
	b.Words = append(b.Words, word)
}

// Len returns the number of instruction words emitted so far.
func (b *Buffer) Len() int { return len(b.Words) }

// PC returns the byte offset the next Emit call will land at, i.e. the
// address a branch fixup targeting "here" should compute relative to.
func (b *Buffer) PC() int32 { return int32(len(b.Words)) * 4 }

// Patch overwrites the word at the given instruction index. ExitStubs
// record no fixups, and unit.Builder.Build never calls Patch.
func (b *Buffer) Patch(index int, word uint32) {
	b.Words[index] = word
}

// Bytes renders the buffer as a little-endian byte slice, the form the
// executable heap's writable mirror receives before the data cache is
// flushed and the instruction cache invalidated (spec.md §5).
func (b *Buffer) Bytes() []byte {
	out := make([]byte, len(b.Words)*4)
	for i, w := range b.Words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}
