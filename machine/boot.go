package machine

import (
	"context"
	"fmt"
	"strings"
)

// BootSequencer locates the firmware component, loads its code into a fresh
// guest environment and runs the first unit of work.
type BootSequencer struct {
	registry     *Registry
	runtime      Runtime
	firmwareType string
}

// NewBootSequencer creates a sequencer that boots from the primary
// component of firmwareType.
func NewBootSequencer(registry *Registry, runtime Runtime, firmwareType string) *BootSequencer {
	return &BootSequencer{registry: registry, runtime: runtime, firmwareType: firmwareType}
}

// Firmware returns the address of the firmware component, if any.
func (b *BootSequencer) Firmware() (string, bool) {
	address, ok := b.registry.Primary(b.firmwareType)
	if !ok {
		return "", false
	}
	if c, found := b.registry.Get(address); !found || !c.Valid() {
		return "", false
	}
	return address, true
}

// Boot compiles the firmware code and runs it until it first yields.
// Every failure after the firmware was read wraps ErrBootExecutionFailed,
// including a budget overrun during the first unit of work.
func (b *BootSequencer) Boot(ctx context.Context, api *API) (Program, Step, error) {
	address, ok := b.Firmware()
	if !ok {
		return nil, Step{}, ErrNoFirmware
	}
	results, err := b.registry.Invoke(address, "get", nil)
	if err != nil {
		return nil, Step{}, fmt.Errorf("%w: %w", ErrNoFirmware, err)
	}
	code, _ := first(results).(string)
	if strings.TrimSpace(code) == "" {
		return nil, Step{}, ErrEmptyFirmware
	}

	program, err := b.runtime.Load(api, b.firmwareType, code)
	if err != nil {
		return nil, Step{}, fmt.Errorf("%w: %w", ErrBootExecutionFailed, err)
	}
	step, err := program.Resume(ctx, Wake{})
	if cause := ctx.Err(); cause != nil {
		err = cause
	}
	if err != nil {
		program.Close()
		return nil, Step{}, fmt.Errorf("%w: %w", ErrBootExecutionFailed, err)
	}
	return program, step, nil
}

// BootAddress reads the preferred boot device address stored in the
// firmware's data area.
func (b *BootSequencer) BootAddress() (string, bool) {
	address, ok := b.Firmware()
	if !ok {
		return "", false
	}
	results, err := b.registry.Invoke(address, "getData", nil)
	if err != nil {
		return "", false
	}
	data, ok := first(results).(string)
	return data, ok
}

// SetBootAddress stores the preferred boot device address. It returns false
// when there is no firmware or the firmware refuses the write.
func (b *BootSequencer) SetBootAddress(addr string) bool {
	address, ok := b.Firmware()
	if !ok {
		return false
	}
	_, err := b.registry.Invoke(address, "setData", Args{addr})
	return err == nil
}

func first(results []any) any {
	if len(results) == 0 {
		return nil
	}
	return results[0]
}
