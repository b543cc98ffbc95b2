package device

import (
	"encoding/hex"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"lukechampine.com/blake3"

	"github.com/casevm/casevm/machine"
)

// EEPROM capacities and defaults.
const (
	EEPROMCodeSize  = 4096
	EEPROMDataSize  = 256
	EEPROMLabelSize = 24
	DefaultLabel    = "EEPROM"
)

// EEPROM is the firmware chip: boot code, a small data area holding the
// boot address, a label and a read-only latch.
type EEPROM struct {
	machine.Base
	mu       sync.Mutex
	code     string
	data     string
	label    string
	readOnly bool
	ejected  atomic.Bool
}

// NewEEPROM creates an empty EEPROM. An empty address is replaced by a
// random one.
func NewEEPROM(address string) *EEPROM {
	if address == "" {
		address = uuid.NewString()
	}
	e := &EEPROM{label: DefaultLabel}
	e.Base = machine.NewBase(address, "eeprom", machine.NewMethodTable(
		machine.Method{Name: "get", Doc: "function():string -- Get the currently stored code.", Call: e.get},
		machine.Method{Name: "set", Doc: "function(data:string) -- Overwrite the currently stored code.", Call: e.set},
		machine.Method{Name: "getLabel", Doc: "function():string -- Get the label of the EEPROM.", Call: e.getLabel},
		machine.Method{Name: "setLabel", Doc: "function(data:string):string -- Set the label of the EEPROM.", Call: e.setLabel},
		machine.Method{Name: "getData", Doc: "function():string -- Get the currently stored data.", Call: e.getData},
		machine.Method{Name: "setData", Doc: "function(data:string) -- Overwrite the currently stored data.", Call: e.setData},
		machine.Method{Name: "makeReadonly", Doc: "function(checksum:string):boolean -- Make the EEPROM read-only if the checksum matches.", Call: e.makeReadonly},
		machine.Method{Name: "getSize", Doc: "function():number -- Get the storage capacity of the EEPROM.", Call: constant(EEPROMCodeSize)},
		machine.Method{Name: "getDataSize", Doc: "function():number -- Get the storage capacity of the data area.", Call: constant(EEPROMDataSize)},
		machine.Method{Name: "getChecksum", Doc: "function():string -- Get the checksum of the code, data and label.", Call: e.getChecksum},
	))
	return e
}

// Valid reports whether the chip is still installed.
func (e *EEPROM) Valid() bool { return !e.ejected.Load() }

// Eject marks the chip as removed; further calls fail with ErrInvalidComponent.
func (e *EEPROM) Eject() { e.ejected.Store(true) }

// Code returns the stored boot code.
func (e *EEPROM) Code() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.code
}

// Data returns the data area.
func (e *EEPROM) Data() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data
}

// Label returns the label.
func (e *EEPROM) Label() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.label
}

// ReadOnly reports whether the chip was locked.
func (e *EEPROM) ReadOnly() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readOnly
}

// Checksum returns the digest over code, data and label.
func (e *EEPROM) Checksum() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checksumLocked()
}

// Flash writes code, data and label directly, bypassing the read-only latch.
// It is the programming-station path, not reachable from guests.
func (e *EEPROM) Flash(code, data, label string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.code, e.data, e.label = code, data, label
}

func (e *EEPROM) checksumLocked() string {
	sum := blake3.Sum256([]byte(e.code + e.data + e.label))
	return hex.EncodeToString(sum[:8])
}

func (e *EEPROM) get(machine.Args) ([]any, error) {
	return []any{e.Code()}, nil
}

func (e *EEPROM) set(args machine.Args) ([]any, error) {
	code, err := args.OptString(0, "")
	if err != nil {
		return nil, err
	}
	if len(code) > EEPROMCodeSize {
		return nil, machine.BadArgument(1, "not enough space")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.readOnly {
		return nil, machine.MethodFailed("storage is readonly")
	}
	e.code = code
	return nil, nil
}

func (e *EEPROM) getLabel(machine.Args) ([]any, error) {
	return []any{e.Label()}, nil
}

func (e *EEPROM) setLabel(args machine.Args) ([]any, error) {
	label, err := args.OptString(0, "")
	if err != nil {
		return nil, err
	}
	if len(label) > EEPROMLabelSize {
		label = label[:EEPROMLabelSize]
	}
	if label == "" {
		label = DefaultLabel
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.readOnly {
		return nil, machine.MethodFailed("storage is readonly")
	}
	e.label = label
	return []any{label}, nil
}

func (e *EEPROM) getData(machine.Args) ([]any, error) {
	return []any{e.Data()}, nil
}

func (e *EEPROM) setData(args machine.Args) ([]any, error) {
	data, err := args.OptString(0, "")
	if err != nil {
		return nil, err
	}
	if len(data) > EEPROMDataSize {
		return nil, machine.BadArgument(1, "not enough space")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.readOnly {
		return nil, machine.MethodFailed("storage is readonly")
	}
	e.data = data
	return nil, nil
}

func (e *EEPROM) makeReadonly(args machine.Args) ([]any, error) {
	checksum, err := args.CheckString(0)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if checksum != e.checksumLocked() {
		return nil, machine.MethodFailed("incorrect checksum")
	}
	e.readOnly = true
	return []any{true}, nil
}

func (e *EEPROM) getChecksum(machine.Args) ([]any, error) {
	return []any{e.Checksum()}, nil
}

func constant(v any) func(machine.Args) ([]any, error) {
	return func(machine.Args) ([]any, error) { return []any{v}, nil }
}
