// Package computer assembles a machine with the case that houses it: an
// energy buffer, a tag store and a row of device slots that are rescanned
// into the machine's registry.
package computer

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/casevm/casevm/machine"
	"github.com/casevm/casevm/machine/device"
)

// Case defaults.
const (
	DefaultScanInterval   = 20
	DefaultSlotCount      = 8
	DefaultEnergyCapacity = 10000
)

// energyTag is the tag key holding the buffered energy.
const energyTag = "energy"

// Config describes a computer case and the machine inside it.
type Config struct {
	Address        string         `yaml:"address"`
	Slots          int            `yaml:"slots"`
	EnergyCapacity int            `yaml:"energy_capacity"`
	ScanInterval   int            `yaml:"scan_interval"`
	Machine        machine.Config `yaml:"machine"`
}

func (c Config) withDefaults() Config {
	if c.Slots == 0 {
		c.Slots = DefaultSlotCount
	}
	if c.EnergyCapacity == 0 {
		c.EnergyCapacity = DefaultEnergyCapacity
	}
	if c.ScanInterval == 0 {
		c.ScanInterval = DefaultScanInterval
	}
	return c
}

// Validate checks the case settings and the embedded machine config.
func (c Config) Validate() error {
	if c.Slots < 0 {
		return fmt.Errorf("slots must be >= 0, got %d", c.Slots)
	}
	if c.EnergyCapacity < 0 {
		return fmt.Errorf("energy_capacity must be >= 0, got %d", c.EnergyCapacity)
	}
	if c.ScanInterval < 0 {
		return fmt.Errorf("scan_interval must be >= 0, got %d", c.ScanInterval)
	}
	return c.Machine.Validate()
}

var (
	_ machine.Host            = (*Computer)(nil)
	_ machine.DeviceDirectory = (*Slots)(nil)
	_ machine.TagStore        = (*TagStore)(nil)
)

// signalSource is a device that reports events through a signal sink.
type signalSource interface {
	Attach(sink device.SignalSink)
}

// Computer is a machine.Host: it owns the energy, tags and devices the
// machine sees.
type Computer struct {
	cfg     Config
	address string
	energy  *EnergyBuffer
	tags    *TagStore
	slots   *Slots
	machine *machine.Machine
	log     *logrus.Entry

	sinceScan   int
	seenVersion uint64
	scanned     bool
}

// New builds a computer with empty slots and an empty energy buffer.
// tags may be nil for a fresh store.
func New(cfg Config, tags *TagStore, opts ...machine.Option) (*Computer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if tags == nil {
		tags = NewTagStore()
	}
	c := &Computer{
		cfg:     cfg,
		address: cfg.Address,
		energy:  NewEnergyBuffer(cfg.EnergyCapacity),
		tags:    tags,
		slots:   NewSlots(cfg.Slots),
	}
	if c.address == "" {
		c.address = uuid.NewString()
	}
	c.log = logrus.WithField("computer", c.address)
	m, err := machine.NewMachine(cfg.Machine, c, opts...)
	if err != nil {
		return nil, err
	}
	c.machine = m
	return c, nil
}

// EnergyStored implements machine.Host.
func (c *Computer) EnergyStored() int { return c.energy.Stored() }

// MaxEnergy implements machine.Host.
func (c *Computer) MaxEnergy() int { return c.energy.Capacity() }

// ExtractEnergy implements machine.Host.
func (c *Computer) ExtractEnergy(amount int) int { return c.energy.Extract(amount) }

// Identity implements machine.Host.
func (c *Computer) Identity() string { return c.address }

// Tag implements machine.Host.
func (c *Computer) Tag() machine.TagStore { return c.tags }

// Machine returns the machine inside the case.
func (c *Computer) Machine() *machine.Machine { return c.machine }

// Energy returns the energy buffer, for charging.
func (c *Computer) Energy() *EnergyBuffer { return c.energy }

// Slots returns the device bays.
func (c *Computer) Slots() *Slots { return c.slots }

// Tags returns the tag store.
func (c *Computer) Tags() *TagStore { return c.tags }

// Start rescans the slots and boots the machine.
func (c *Computer) Start() error {
	c.Rescan()
	return c.machine.Start()
}

// Stop halts the machine.
func (c *Computer) Stop() { c.machine.Stop() }

// Tick advances the case by one step: a rescan when due, then one machine tick.
func (c *Computer) Tick() {
	c.sinceScan++
	if !c.scanned || c.slots.Version() != c.seenVersion || c.sinceScan >= c.cfg.ScanInterval {
		c.Rescan()
	}
	c.machine.Tick()
}

// Rescan synchronizes the registry with the slots and reports the
// difference to the machine. It returns the applied diff.
func (c *Computer) Rescan() machine.Diff {
	c.sinceScan = 0
	c.scanned = true
	c.seenVersion = c.slots.Version()

	registry := c.machine.Components()
	diff := registry.Sync(c.slots.Scan())
	for _, ref := range diff.Added {
		if dev, ok := registry.Get(ref.Address); ok {
			if src, ok := dev.(signalSource); ok {
				src.Attach(c.machine)
			}
		}
	}
	if !diff.Empty() {
		c.log.Debugf("device set changed: %d added, %d removed", len(diff.Added), len(diff.Removed))
		c.machine.OnDeviceSetChanged(diff)
	}
	return diff
}

// Save writes the buffered energy and the machine state to the tag store.
func (c *Computer) Save() error {
	c.tags.Put(energyTag, []byte(strconv.Itoa(c.energy.Stored())))
	return c.machine.Save()
}

// Load restores what Save wrote. Missing entries are left at their defaults.
func (c *Computer) Load() error {
	if blob, ok := c.tags.Get(energyTag); ok {
		stored, err := strconv.Atoi(string(blob))
		if err != nil {
			return fmt.Errorf("decoding %s tag: %w", energyTag, err)
		}
		c.energy.set(stored)
	}
	if err := c.machine.Load(); err != nil {
		return fmt.Errorf("restoring computer %s: %w", c.address, err)
	}
	return nil
}
