package bus

import "encoding/binary"

// ShadowRAM backs guest physical addresses that map onto host memory
// directly — spec.md §4.8's "shadow-RAM" implementation: plain host
// memory accesses with the guest's big-endian byte order restored,
// since State and every other in-process structure is kept in host
// (little-endian on AArch64) order and only the guest-visible bus
// byte stream needs the flip.
type ShadowRAM struct {
	base uint32
	mem  []byte
}

// NewShadowRAM allocates a ShadowRAM window of size bytes starting at
// guest physical address base.
func NewShadowRAM(base uint32, size uint32) *ShadowRAM {
	return &ShadowRAM{base: base, mem: make([]byte, size)}
}

func (s *ShadowRAM) offset(addr uint32, width uint8) (int, error) {
	off := int(addr - s.base)
	if off < 0 || off+int(width) > len(s.mem) {
		return 0, &ErrUnmapped{Addr: addr, Width: width}
	}
	return off, nil
}

// Read implements Backend.
func (s *ShadowRAM) Read(addr uint32, width uint8) (uint64, error) {
	off, err := s.offset(addr, width)
	if err != nil {
		return 0, err
	}
	switch width {
	case 1:
		return uint64(s.mem[off]), nil
	case 2:
		return uint64(binary.BigEndian.Uint16(s.mem[off:])), nil
	case 4:
		return uint64(binary.BigEndian.Uint32(s.mem[off:])), nil
	case 8:
		return binary.BigEndian.Uint64(s.mem[off:]), nil
	case 16:
		// A 128-bit FP pair access: only the first 8 bytes (the high
		// half, in big-endian order) fit the uint64 return value, so
		// callers reading a genuine 16-byte quantity must use ReadPair
		// instead.
		return binary.BigEndian.Uint64(s.mem[off:]), nil
	default:
		return 0, &ErrUnmapped{Addr: addr, Width: width}
	}
}

// ReadPair reads the full 16 bytes of a width-16 access, returning the
// high and low 64-bit halves in guest (big-endian) order.
func (s *ShadowRAM) ReadPair(addr uint32) (hi, lo uint64, err error) {
	off, err := s.offset(addr, 16)
	if err != nil {
		return 0, 0, err
	}
	return binary.BigEndian.Uint64(s.mem[off:]), binary.BigEndian.Uint64(s.mem[off+8:]), nil
}

// WritePair writes the full 16 bytes of a width-16 access.
func (s *ShadowRAM) WritePair(addr uint32, hi, lo uint64) error {
	off, err := s.offset(addr, 16)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint64(s.mem[off:], hi)
	binary.BigEndian.PutUint64(s.mem[off+8:], lo)
	return nil
}

// Write implements Backend.
func (s *ShadowRAM) Write(addr uint32, width uint8, value uint64) error {
	off, err := s.offset(addr, width)
	if err != nil {
		return err
	}
	switch width {
	case 1:
		s.mem[off] = byte(value)
	case 2:
		binary.BigEndian.PutUint16(s.mem[off:], uint16(value))
	case 4:
		binary.BigEndian.PutUint32(s.mem[off:], uint32(value))
	case 8, 16:
		binary.BigEndian.PutUint64(s.mem[off:], value)
	default:
		return &ErrUnmapped{Addr: addr, Width: width}
	}
	return nil
}

// Bytes exposes the backing store directly for bus.MemoryTest and for
// loading a ROM/kickstart image at boot, ahead of any guest execution.
func (s *ShadowRAM) Bytes() []byte { return s.mem }

// Base reports the guest physical address this window starts at.
func (s *ShadowRAM) Base() uint32 { return s.base }
