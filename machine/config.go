package machine

import (
	"fmt"
	"time"

	"github.com/casevm/casevm/machine/trace"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultEnergyPerTick   = 10
	DefaultFirmwareType    = "eeprom"
	DefaultRuntime         = "lua"
	DefaultMaxStringLength = 1 << 20
)

// OSVersion is the version stamp published to guests as _OSVERSION.
const OSVersion = "casevm 1.0"

// Config groups the execution parameters of one machine.
type Config struct {
	Runtime         string        `yaml:"runtime"`           // registered runtime name (default "lua")
	FirmwareType    string        `yaml:"firmware_type"`     // component type holding boot code (default "eeprom")
	MaxInstructions int           `yaml:"max_instructions"`  // per-tick instruction budget (default 100000)
	TimeLimit       time.Duration `yaml:"time_limit"`        // per-tick wall-clock budget (default 5s)
	EnergyPerTick   int           `yaml:"energy_per_tick"`   // energy quantum drawn each running tick (default 10)
	SignalCapacity  int           `yaml:"signal_capacity"`   // signal queue bound (default 256)
	MaxStringLength int           `yaml:"max_string_length"` // longest string a guest may build in one call (default 1 MiB)
	Trace           TraceSettings `yaml:"trace"`
}

// TraceSettings selects lifecycle tracing.
type TraceSettings struct {
	Level      string `yaml:"level"`       // "none" (default) or "lifecycle"
	MaxRecords int    `yaml:"max_records"` // per record kind; 0 keeps everything
}

// DefaultConfig returns a Config with every field at its default.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

// withDefaults fills zero-valued fields.
func (c Config) withDefaults() Config {
	if c.Runtime == "" {
		c.Runtime = DefaultRuntime
	}
	if c.FirmwareType == "" {
		c.FirmwareType = DefaultFirmwareType
	}
	if c.MaxInstructions == 0 {
		c.MaxInstructions = DefaultMaxInstructions
	}
	if c.TimeLimit == 0 {
		c.TimeLimit = DefaultTimeLimit
	}
	if c.EnergyPerTick == 0 {
		c.EnergyPerTick = DefaultEnergyPerTick
	}
	if c.SignalCapacity == 0 {
		c.SignalCapacity = DefaultSignalCapacity
	}
	if c.MaxStringLength == 0 {
		c.MaxStringLength = DefaultMaxStringLength
	}
	return c
}

// Validate checks parameter ranges and names. Zero values are accepted and
// replaced by defaults when the machine is built.
func (c Config) Validate() error {
	if c.Runtime != "" && !IsValidRuntime(c.Runtime) {
		return fmt.Errorf("unknown runtime %q; valid options: %v", c.Runtime, RuntimeNames())
	}
	if c.MaxInstructions < 0 {
		return fmt.Errorf("max_instructions must be non-negative, got %d", c.MaxInstructions)
	}
	if c.TimeLimit < 0 {
		return fmt.Errorf("time_limit must be non-negative, got %v", c.TimeLimit)
	}
	if c.EnergyPerTick < 0 {
		return fmt.Errorf("energy_per_tick must be non-negative, got %d", c.EnergyPerTick)
	}
	if c.SignalCapacity < 0 {
		return fmt.Errorf("signal_capacity must be non-negative, got %d", c.SignalCapacity)
	}
	if c.MaxStringLength < 0 {
		return fmt.Errorf("max_string_length must be non-negative, got %d", c.MaxStringLength)
	}
	if !trace.IsValidTraceLevel(c.Trace.Level) {
		return fmt.Errorf("unknown trace level %q", c.Trace.Level)
	}
	if c.Trace.MaxRecords < 0 {
		return fmt.Errorf("trace max_records must be non-negative, got %d", c.Trace.MaxRecords)
	}
	return nil
}
