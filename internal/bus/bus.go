// Package bus implements BusBackend (spec.md §4.8): the abstract
// contract FaultHandler calls into once it has decoded a faulting host
// load/store, and the three concrete regions a real Amiga-on-AArch64
// host needs simultaneously (shadow RAM, the physical bus PHY, and
// peripheral control registers) rather than alternatives selected at
// build time, the way IntuitionAmiga-IntuitionEngine's
// audio_backend_*.go/video_backend_*.go pick one backend per build tag
// for a single output device.
package bus

import (
	"fmt"

	"github.com/michalsc/Emu68-sub001/internal/config"
)

// Backend is spec.md §4.8's abstract contract: a synthesized guest bus
// cycle keyed by physical address and width, with no notion of which
// concrete region answered it.
type Backend interface {
	Read(addr uint32, width uint8) (uint64, error)
	Write(addr uint32, width uint8, value uint64) error
}

// Router dispatches a guest physical address to whichever Backend
// config.MemoryLayout says owns it: a RAM block to ShadowRAM, a named
// MMIO range to Peripheral, and everything else to PhyBus, matching
// the real hardware's address decode order (RAM and known peripheral
// windows are claimed explicitly; the rest of the 24/32-bit space
// falls through to the Zorro/CIA bus PHY).
type Router struct {
	ram   *ShadowRAM
	phy   *PhyBus
	perip *Peripheral

	layout config.MemoryLayout
}

// NewRouter builds a Router over layout's RAM blocks and MMIO ranges,
// backing RAM accesses with ram, named MMIO windows with peripheral,
// and everything else with phy.
func NewRouter(layout config.MemoryLayout, ram *ShadowRAM, phy *PhyBus, peripheral *Peripheral) *Router {
	return &Router{ram: ram, phy: phy, perip: peripheral, layout: layout}
}

func (r *Router) route(addr uint32) Backend {
	a := uint64(addr)
	for _, b := range r.layout.RAM {
		if a >= b.Base && a < b.Base+b.Size {
			return r.ram
		}
	}
	for _, m := range r.layout.MMIO {
		if a >= m.Base && a < m.Base+m.Size {
			return r.perip
		}
	}
	return r.phy
}

// Read implements Backend by routing to the owning region.
func (r *Router) Read(addr uint32, width uint8) (uint64, error) {
	return r.route(addr).Read(addr, width)
}

// Write implements Backend by routing to the owning region.
func (r *Router) Write(addr uint32, width uint8, value uint64) error {
	return r.route(addr).Write(addr, width, value)
}

// FetchWords implements dispatch.GuestMemory's instruction-fetch path
// over the same routing Read uses: a Unit's guest instruction stream
// is ordinary guest-bus reads at width 2, one per word.
func (r *Router) FetchWords(addr uint32, n int) []uint16 {
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		v, err := r.Read(addr+uint32(i)*2, 2)
		if err != nil {
			v = 0
		}
		out[i] = uint16(v)
	}
	return out
}

// WriteWord implements dispatch.GuestMemory for the interrupt-frame
// pushes Dispatcher performs directly against guest memory.
func (r *Router) WriteWord(addr uint32, v uint16) {
	_ = r.Write(addr, 2, uint64(v))
}

// WriteLong implements dispatch.GuestMemory.
func (r *Router) WriteLong(addr uint32, v uint32) {
	_ = r.Write(addr, 4, uint64(v))
}

// ErrUnmapped is returned by a Backend when an address within its own
// claimed window still has no concrete handler — distinct from the
// page-fault path (an address outside every claimed window, which
// FaultHandler's signal path catches), this covers addresses inside a
// named MMIO range that Peripheral has no state machine for yet.
type ErrUnmapped struct {
	Addr  uint32
	Width uint8
}

func (e *ErrUnmapped) Error() string {
	return fmt.Sprintf("bus: no handler for addr=%#x width=%d", e.Addr, e.Width)
}
