package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/casevm/casevm/machine"
	"github.com/casevm/casevm/machine/computer"
	"github.com/casevm/casevm/machine/device"
)

// ComputerFile is the YAML description of a computer run by the CLI.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type ComputerFile struct {
	Computer      computer.Config `yaml:"computer"`
	Firmware      string          `yaml:"firmware"` // TOML image path, relative to the file
	ChargePerTick int             `yaml:"charge_per_tick"`
	Devices       []DeviceSpec    `yaml:"devices"`
	Events        []EventSpec     `yaml:"events"`

	dir string
}

// DeviceSpec describes one device inserted into the next free slot.
type DeviceSpec struct {
	Type    string      `yaml:"type"` // screen, gpu or robot
	Address string      `yaml:"address"`
	Tier    int         `yaml:"tier"`
	Name    string      `yaml:"name"`   // robot only
	Blocks  []BlockSpec `yaml:"blocks"` // robot only: the world around it
}

// BlockSpec places a block in a robot's world.
type BlockSpec struct {
	X    int    `yaml:"x"`
	Y    int    `yaml:"y"`
	Z    int    `yaml:"z"`
	Kind string `yaml:"kind"`
}

// EventSpec is a signal pushed into the machine before a given tick.
type EventSpec struct {
	Tick int64  `yaml:"tick"`
	Name string `yaml:"name"`
	Args []any  `yaml:"args"`
}

// validDeviceTypes lists the device types a ComputerFile may declare.
var validDeviceTypes = map[string]bool{
	"screen": true,
	"gpu":    true,
	"robot":  true,
}

// loadComputerFile parses a computer description with strict field checking.
func loadComputerFile(path string) (*ComputerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading computer file: %w", err)
	}
	var cf ComputerFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cf); err != nil {
		return nil, fmt.Errorf("parsing computer file %s: %w", path, err)
	}
	cf.dir = filepath.Dir(path)
	if err := cf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid computer file %s: %w", path, err)
	}
	return &cf, nil
}

// Validate checks the file beyond what strict decoding enforces.
func (cf *ComputerFile) Validate() error {
	if err := cf.Computer.Validate(); err != nil {
		return err
	}
	if cf.Firmware == "" {
		return fmt.Errorf("firmware image path is required")
	}
	if cf.ChargePerTick < 0 {
		return fmt.Errorf("charge_per_tick must be non-negative, got %d", cf.ChargePerTick)
	}
	for i, d := range cf.Devices {
		if !validDeviceTypes[d.Type] {
			return fmt.Errorf("device %d: unknown type %q", i, d.Type)
		}
	}
	for i, e := range cf.Events {
		if e.Name == "" {
			return fmt.Errorf("event %d: name is required", i)
		}
		if e.Tick < 0 {
			return fmt.Errorf("event %d: tick must be non-negative, got %d", i, e.Tick)
		}
	}
	return nil
}

// FirmwarePath resolves the firmware image relative to the computer file.
func (cf *ComputerFile) FirmwarePath() string {
	if filepath.IsAbs(cf.Firmware) {
		return cf.Firmware
	}
	return filepath.Join(cf.dir, cf.Firmware)
}

// assembly is a built computer plus handles on its devices.
type assembly struct {
	computer *computer.Computer
	eeprom   *device.EEPROM
	screens  []*device.Screen
	rovers   []*device.Rover
}

// build creates the computer, flashes the firmware into slot 0 and inserts
// the declared devices into the following slots.
func (cf *ComputerFile) build(tags *computer.TagStore, opts ...machine.Option) (*assembly, error) {
	img, err := device.LoadImage(cf.FirmwarePath())
	if err != nil {
		return nil, err
	}
	eeprom, err := img.EEPROM()
	if err != nil {
		return nil, fmt.Errorf("flashing %s: %w", cf.FirmwarePath(), err)
	}

	cfg := cf.Computer
	if need := len(cf.Devices) + 1; cfg.Slots > 0 && cfg.Slots < need {
		return nil, fmt.Errorf("computer has %d slots, %d devices declared", cfg.Slots, need)
	} else if cfg.Slots == 0 {
		cfg.Slots = max(need, computer.DefaultSlotCount)
	}
	c, err := computer.New(cfg, tags, opts...)
	if err != nil {
		return nil, err
	}

	a := &assembly{computer: c, eeprom: eeprom}
	if err := c.Slots().Insert(0, eeprom); err != nil {
		return nil, err
	}
	screens := device.RegistryScreens{Registry: c.Machine().Components()}
	for i, d := range cf.Devices {
		var dev machine.Component
		switch d.Type {
		case "screen":
			s := device.NewScreen(d.Address, d.Tier)
			a.screens = append(a.screens, s)
			dev = s
		case "gpu":
			dev = device.NewGPU(d.Address, d.Tier, screens)
		case "robot":
			world := device.NewWorld()
			for _, b := range d.Blocks {
				world.SetBlock(device.Pos{X: b.X, Y: b.Y, Z: b.Z}, b.Kind)
			}
			name := d.Name
			if name == "" {
				name = "Robot"
			}
			rover := device.NewRover(name, world, device.Pos{})
			a.rovers = append(a.rovers, rover)
			dev = device.NewRobot(d.Address, rover)
		}
		if err := c.Slots().Insert(i+1, dev); err != nil {
			return nil, err
		}
	}
	return a, nil
}
