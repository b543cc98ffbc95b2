package machine

import (
	"errors"
	"fmt"
)

// Component-layer failures. These always reach the caller; the registry only
// absorbs errors raised by connect/disconnect hooks.
var (
	ErrNoSuchComponent  = errors.New("no such component")
	ErrInvalidComponent = errors.New("component is invalid")
	ErrUnknownMethod    = errors.New("unknown method")
	ErrBadArgument      = errors.New("bad argument")
	ErrMethodFailed     = errors.New("method failed")
)

// Boot-layer failures. All of them leave the machine Stopped.
var (
	ErrNoFirmware          = errors.New("no firmware found")
	ErrEmptyFirmware       = errors.New("firmware contains no boot code")
	ErrBootExecutionFailed = errors.New("boot execution failed")
)

// Execution-layer conditions.
var (
	// ErrBudgetExceeded is raised when a guest overruns the instruction or
	// wall-clock budget of a tick. It forces a restart and is never returned
	// to external callers.
	ErrBudgetExceeded = errors.New("too long without yielding")

	// ErrInsufficientEnergy makes a running machine stop. It is steady-state
	// behavior, not a failure reported to the caller.
	ErrInsufficientEnergy = errors.New("not enough energy")

	// ErrStopped is the cancellation cause used when Stop interrupts an
	// in-flight guest execution.
	ErrStopped = errors.New("machine stopped")
)

// componentKinds lists the failure kinds that pass through Registry.Invoke unchanged.
var componentKinds = []error{ErrNoSuchComponent, ErrInvalidComponent, ErrUnknownMethod, ErrBadArgument, ErrMethodFailed}

// hasComponentKind reports whether err already carries one of the component failure kinds.
func hasComponentKind(err error) bool {
	for _, kind := range componentKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// BadArgument builds an ErrBadArgument error for the 1-based argument n.
func BadArgument(n int, format string, args ...any) error {
	return fmt.Errorf("%w #%d (%s)", ErrBadArgument, n, fmt.Sprintf(format, args...))
}

// MethodFailed builds an ErrMethodFailed error with a guest-readable message.
func MethodFailed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMethodFailed, fmt.Sprintf(format, args...))
}
