package machine

import (
	"fmt"
	"time"
)

// Standard signal names delivered to guest programs.
const (
	SignalComponentAdded       = "component_added"
	SignalComponentRemoved     = "component_removed"
	SignalComponentChanged     = "component_changed"
	SignalComponentAvailable   = "component_available"
	SignalComponentUnavailable = "component_unavailable"
	SignalInterrupted          = "interrupted"
	SignalKeyDown              = "key_down"
	SignalKeyUp                = "key_up"
	SignalTouch                = "touch"
	SignalDrag                 = "drag"
	SignalDrop                 = "drop"
	SignalScroll               = "scroll"
	SignalRedstoneChanged      = "redstone_changed"
	SignalModemMessage         = "modem_message"
	SignalInventoryChanged     = "inventory_changed"
)

// Signal is an immutable named event with an ordered scalar payload.
type Signal struct {
	name     string
	args     []any
	enqueued time.Time
}

// NewSignal builds a signal, normalizing every payload value to one of
// nil, bool, int64, float64 or string.
func NewSignal(name string, args ...any) Signal {
	payload := make([]any, len(args))
	for i, a := range args {
		payload[i] = NormalizeScalar(a)
	}
	return Signal{name: name, args: payload, enqueued: time.Now()}
}

// Name returns the signal name.
func (s Signal) Name() string { return s.name }

// Args returns a copy of the payload.
func (s Signal) Args() []any {
	out := make([]any, len(s.args))
	copy(out, s.args)
	return out
}

// EnqueuedAt returns the time the signal was created.
func (s Signal) EnqueuedAt() time.Time { return s.enqueued }

func (s Signal) String() string {
	return fmt.Sprintf("Signal: (Name: %s, Args: %v)", s.name, s.args)
}

// NormalizeScalar maps a Go value to the signal payload domain. Values
// outside it are stringified.
func NormalizeScalar(v any) any {
	switch x := v.(type) {
	case nil, bool, int64, float64, string:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
