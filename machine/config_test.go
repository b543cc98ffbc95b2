package machine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultRuntime, cfg.Runtime)
	assert.Equal(t, DefaultFirmwareType, cfg.FirmwareType)
	assert.Equal(t, DefaultMaxInstructions, cfg.MaxInstructions)
	assert.Equal(t, DefaultTimeLimit, cfg.TimeLimit)
	assert.Equal(t, DefaultEnergyPerTick, cfg.EnergyPerTick)
	assert.Equal(t, DefaultSignalCapacity, cfg.SignalCapacity)
	assert.Equal(t, DefaultMaxStringLength, cfg.MaxStringLength)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"zero config", Config{}, false},
		{"explicit limits", Config{MaxInstructions: 10, TimeLimit: time.Second}, false},
		{"negative instructions", Config{MaxInstructions: -1}, true},
		{"negative time limit", Config{TimeLimit: -time.Second}, true},
		{"negative energy", Config{EnergyPerTick: -5}, true},
		{"negative capacity", Config{SignalCapacity: -1}, true},
		{"unknown runtime", Config{Runtime: "cobol"}, true},
		{"unknown trace level", Config{Trace: TraceSettings{Level: "verbose"}}, true},
		{"lifecycle trace", Config{Trace: TraceSettings{Level: "lifecycle"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClampBeep(t *testing.T) {
	f, d := ClampBeep(5, 100)
	assert.Equal(t, MinBeepFrequency, f)
	assert.Equal(t, MaxBeepDuration, d)

	f, d = ClampBeep(440, 0.5)
	assert.Equal(t, 440.0, f)
	assert.Equal(t, 0.5, d)
}
