package testutil

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/casevm/casevm/machine"
)

// Firmware is a minimal firmware component exposing get, getData and setData.
type Firmware struct {
	machine.Base
	mu       sync.Mutex
	code     string
	data     string
	readOnly bool
}

// NewFirmware creates an "eeprom" component holding code.
func NewFirmware(code string) *Firmware {
	f := &Firmware{code: code}
	f.Base = machine.NewBase(uuid.NewString(), "eeprom", machine.NewMethodTable(
		machine.Method{Name: "get", Doc: "function():string", Call: func(machine.Args) ([]any, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			return []any{f.code}, nil
		}},
		machine.Method{Name: "getData", Doc: "function():string", Call: func(machine.Args) ([]any, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			return []any{f.data}, nil
		}},
		machine.Method{Name: "setData", Doc: "function(data:string)", Call: func(args machine.Args) ([]any, error) {
			data, err := args.CheckString(0)
			if err != nil {
				return nil, err
			}
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.readOnly {
				return nil, machine.MethodFailed("storage is readonly")
			}
			f.data = data
			return nil, nil
		}},
	))
	return f
}

func (f *Firmware) Valid() bool { return true }

// SetReadOnly locks the data area.
func (f *Firmware) SetReadOnly(readOnly bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readOnly = readOnly
}

// Data returns the stored data string.
func (f *Firmware) Data() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data
}

// ErrProbe is returned by the probe's "fail" method.
var ErrProbe = errors.New("probe failure")

// Probe is a component of configurable type used to exercise dispatch.
// Methods: echo returns its arguments, fail returns a plain error, panic
// panics, bad rejects its first argument.
type Probe struct {
	machine.Base
	valid        atomic.Bool
	Connects     atomic.Int32
	Disconnects  atomic.Int32
	FailHooks    bool
	PanicOnHooks bool
}

// NewProbe creates a valid probe of the given type.
func NewProbe(kind string) *Probe {
	p := &Probe{}
	p.valid.Store(true)
	p.Base = machine.NewBase(uuid.NewString(), kind, machine.NewMethodTable(
		machine.Method{Name: "echo", Doc: "function(...):...", Call: func(args machine.Args) ([]any, error) {
			return []any(args), nil
		}},
		machine.Method{Name: "fail", Call: func(machine.Args) ([]any, error) {
			return nil, ErrProbe
		}},
		machine.Method{Name: "panic", Call: func(machine.Args) ([]any, error) {
			panic("probe panic")
		}},
		machine.Method{Name: "bad", Call: func(args machine.Args) ([]any, error) {
			_, err := args.CheckString(0)
			return nil, err
		}},
	))
	return p
}

func (p *Probe) Valid() bool { return p.valid.Load() }

// SetValid marks the probe's device as present or gone.
func (p *Probe) SetValid(valid bool) { p.valid.Store(valid) }

func (p *Probe) OnConnect() error {
	p.Connects.Add(1)
	return p.hook()
}

func (p *Probe) OnDisconnect() error {
	p.Disconnects.Add(1)
	return p.hook()
}

func (p *Probe) hook() error {
	if p.PanicOnHooks {
		panic("probe hook panic")
	}
	if p.FailHooks {
		return ErrProbe
	}
	return nil
}
