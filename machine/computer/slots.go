package computer

import (
	"fmt"
	"sync"

	"github.com/casevm/casevm/machine"
)

// Slots is the fixed set of device bays of a computer case.
type Slots struct {
	mu      sync.Mutex
	devices []machine.Component
	version uint64
}

// NewSlots creates n empty slots.
func NewSlots(n int) *Slots {
	return &Slots{devices: make([]machine.Component, max(n, 0))}
}

// Len returns the number of slots.
func (s *Slots) Len() int { return len(s.devices) }

// Insert places a device in slot, replacing what was there.
func (s *Slots) Insert(slot int, c machine.Component) error {
	if c == nil {
		return fmt.Errorf("slot %d: nil device", slot)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot < 0 || slot >= len(s.devices) {
		return fmt.Errorf("slot %d out of range [0, %d)", slot, len(s.devices))
	}
	s.devices[slot] = c
	s.version++
	return nil
}

// Remove empties slot and returns the device that was in it.
func (s *Slots) Remove(slot int) (machine.Component, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot < 0 || slot >= len(s.devices) || s.devices[slot] == nil {
		return nil, false
	}
	c := s.devices[slot]
	s.devices[slot] = nil
	s.version++
	return c, true
}

// Get returns the device in slot.
func (s *Slots) Get(slot int) (machine.Component, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot < 0 || slot >= len(s.devices) || s.devices[slot] == nil {
		return nil, false
	}
	return s.devices[slot], true
}

// Scan implements machine.DeviceDirectory. Devices that are no longer valid
// are left out.
func (s *Slots) Scan() []machine.Component {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]machine.Component, 0, len(s.devices))
	for _, c := range s.devices {
		if c != nil && c.Valid() {
			out = append(out, c)
		}
	}
	return out
}

// Version changes whenever a slot is written.
func (s *Slots) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}
