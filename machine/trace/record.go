// Package trace provides lifecycle-trace recording for a single machine.
// This package has no dependencies on machine/ — it stores pure data types.
package trace

// TransitionRecord captures one machine state change.
type TransitionRecord struct {
	Tick   int64
	From   string
	To     string
	Reason string
}

// FaultRecord captures a guest failure that interrupted execution.
type FaultRecord struct {
	Tick    int64
	Kind    string // "budget", "runtime" or "energy"
	Message string
	Steps   int // instructions executed in the failing slice
}

// BootRecord captures one boot attempt.
type BootRecord struct {
	Tick     int64
	Firmware string // address of the firmware component, "" when none was found
	OK       bool
	Error    string
}
