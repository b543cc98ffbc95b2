// Package testutil provides shared test infrastructure for the machine
// packages: a fake host, scripted components and a scripted guest runtime.
package testutil

import (
	"sync"

	"github.com/google/uuid"

	"github.com/casevm/casevm/machine"
)

// Host is an in-memory machine.Host.
type Host struct {
	mu       sync.Mutex
	stored   int
	capacity int
	id       string
	tags     *Tags
	limit    int // per-call extraction cap, 0 for none
}

// NewHost creates a host holding energy units with the same capacity.
func NewHost(energy int) *Host {
	return &Host{stored: energy, capacity: energy, id: uuid.NewString(), tags: NewTags()}
}

func (h *Host) EnergyStored() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stored
}

func (h *Host) MaxEnergy() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.capacity
}

func (h *Host) ExtractEnergy(amount int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	taken := min(amount, h.stored)
	if h.limit > 0 {
		taken = min(taken, h.limit)
	}
	h.stored -= taken
	return taken
}

func (h *Host) Identity() string      { return h.id }
func (h *Host) Tag() machine.TagStore { return h.tags }

// SetEnergy overwrites the stored energy.
func (h *Host) SetEnergy(energy int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stored = energy
	h.capacity = max(h.capacity, energy)
}

// LimitExtraction makes every ExtractEnergy call hand out at most n units,
// as if another consumer drained the buffer concurrently.
func (h *Host) LimitExtraction(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.limit = n
}

// Tags is an in-memory machine.TagStore.
type Tags struct {
	mu sync.Mutex
	m  map[string][]byte
}

// NewTags creates an empty tag store.
func NewTags() *Tags { return &Tags{m: make(map[string][]byte)} }

func (t *Tags) Get(key string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.m[key]
	return v, ok
}

func (t *Tags) Put(key string, value []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[key] = value
}
