package computer

import "sync"

// EnergyBuffer stores energy up to a fixed capacity.
type EnergyBuffer struct {
	mu       sync.Mutex
	stored   int
	capacity int
}

// NewEnergyBuffer creates an empty buffer.
func NewEnergyBuffer(capacity int) *EnergyBuffer {
	return &EnergyBuffer{capacity: max(capacity, 0)}
}

// Stored returns the buffered energy.
func (b *EnergyBuffer) Stored() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stored
}

// Capacity returns the maximum buffered energy.
func (b *EnergyBuffer) Capacity() int { return b.capacity }

// Receive adds up to amount and returns what was accepted.
func (b *EnergyBuffer) Receive(amount int) int {
	if amount <= 0 {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	accepted := min(amount, b.capacity-b.stored)
	b.stored += accepted
	return accepted
}

// Extract removes up to amount and returns what was removed.
func (b *EnergyBuffer) Extract(amount int) int {
	if amount <= 0 {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	taken := min(amount, b.stored)
	b.stored -= taken
	return taken
}

// set overwrites the stored amount, clamped to the capacity.
func (b *EnergyBuffer) set(stored int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stored = min(max(stored, 0), b.capacity)
}
