package bus

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// PhyBus backs guest physical addresses that drive the real Zorro/CIA
// bus PHY — spec.md §4.8's "bus-PHY" implementation — by mmap'ing the
// host device exposing that bus window, the same
// open-device/unix.Mmap(PROT_READ|PROT_WRITE, MAP_SHARED) shape
// `other_examples/920b1d47_aamcrae-pru__pru.go.go`'s Open uses for its
// PRU register window. lock is spec.md §5's "bus ownership lock
// (atomic exclusive on a single byte)": every other host core that
// touches the physical bus must take it too, so PhyBus exposes
// Lock/Unlock for the housekeeper/write-back cores mentioned there
// rather than only serializing its own two methods.
type PhyBus struct {
	base uint32
	mem  []byte
	file *os.File
	lock atomic.Bool
}

// OpenPhyBus mmaps size bytes of the bus PHY window exposed at devPath
// (a UIO-style character device), representing guest physical
// addresses starting at base.
func OpenPhyBus(devPath string, base uint32, size int) (*PhyBus, error) {
	f, err := os.OpenFile(devPath, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("bus: open %s: %w", devPath, err)
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("bus: mmap %s: %w", devPath, err)
	}
	return &PhyBus{base: base, mem: mem, file: f}, nil
}

// Close unmaps the PHY window and closes the backing device.
func (p *PhyBus) Close() error {
	if err := unix.Munmap(p.mem); err != nil {
		return err
	}
	return p.file.Close()
}

// Lock acquires exclusive ownership of the physical bus, spinning
// until whichever core currently holds it releases it. Dispatcher's
// core 0 only needs this indirectly through Read/Write; the
// housekeeper and write-back cores spec.md §5 describes call it
// directly around a burst of raw transfers.
func (p *PhyBus) Lock() {
	for !p.lock.CompareAndSwap(false, true) {
	}
}

// Unlock releases the bus ownership lock.
func (p *PhyBus) Unlock() { p.lock.Store(false) }

func (p *PhyBus) offset(addr uint32, width uint8) (int, error) {
	off := int(addr - p.base)
	if off < 0 || off+int(width) > len(p.mem) {
		return 0, &ErrUnmapped{Addr: addr, Width: width}
	}
	return off, nil
}

// Read implements Backend, serializing against other cores contending
// the same physical bus.
func (p *PhyBus) Read(addr uint32, width uint8) (uint64, error) {
	p.Lock()
	defer p.Unlock()
	off, err := p.offset(addr, width)
	if err != nil {
		return 0, err
	}
	switch width {
	case 1:
		return uint64(p.mem[off]), nil
	case 2:
		return uint64(binary.BigEndian.Uint16(p.mem[off:])), nil
	case 4:
		return uint64(binary.BigEndian.Uint32(p.mem[off:])), nil
	case 8, 16:
		// Width 16 (a 128-bit FP pair) only returns its first 8 bytes
		// (the high half, in big-endian order) through this call; see
		// ShadowRAM.ReadPair's equivalent.
		return binary.BigEndian.Uint64(p.mem[off:]), nil
	default:
		return 0, &ErrUnmapped{Addr: addr, Width: width}
	}
}

// Write implements Backend.
func (p *PhyBus) Write(addr uint32, width uint8, value uint64) error {
	p.Lock()
	defer p.Unlock()
	off, err := p.offset(addr, width)
	if err != nil {
		return err
	}
	switch width {
	case 1:
		p.mem[off] = byte(value)
	case 2:
		binary.BigEndian.PutUint16(p.mem[off:], uint16(value))
	case 4:
		binary.BigEndian.PutUint32(p.mem[off:], uint32(value))
	case 8, 16:
		binary.BigEndian.PutUint64(p.mem[off:], value)
	default:
		return &ErrUnmapped{Addr: addr, Width: width}
	}
	return nil
}
