package machine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Default per-tick execution limits.
const (
	DefaultMaxInstructions = 100000
	DefaultTimeLimit       = 5 * time.Second
)

var _ context.Context = (*Budget)(nil)

// Budget bounds one slice of guest execution. It implements context.Context:
// the interpreter consults Done() before every instruction, so each call
// counts one instruction. The budget trips when the count or the wall-clock
// deadline is exceeded, or when Cancel is called from another goroutine.
//
// Done must only be called from the goroutine running the guest; Cancel,
// Err and Tripped are safe from any goroutine.
type Budget struct {
	maxSteps int
	steps    int
	deadline time.Time
	timer    *time.Timer

	mu   sync.Mutex
	err  error
	done chan struct{}
}

// NewBudget starts a budget of maxSteps instructions (<= 0 means unlimited)
// and a wall-clock limit measured from now (<= 0 means none).
func NewBudget(maxSteps int, limit time.Duration) *Budget {
	b := &Budget{
		maxSteps: maxSteps,
		done:     make(chan struct{}),
	}
	if limit > 0 {
		b.deadline = time.Now().Add(limit)
		b.timer = time.AfterFunc(limit, func() {
			b.trip(fmt.Errorf("%w: exceeded %v wall-clock budget", ErrBudgetExceeded, limit))
		})
	}
	return b
}

// Deadline implements context.Context.
func (b *Budget) Deadline() (time.Time, bool) {
	return b.deadline, !b.deadline.IsZero()
}

// Done implements context.Context and counts one instruction per call.
func (b *Budget) Done() <-chan struct{} {
	b.steps++
	if b.maxSteps > 0 && b.steps > b.maxSteps {
		b.trip(fmt.Errorf("%w: exceeded %d instructions", ErrBudgetExceeded, b.maxSteps))
	}
	return b.done
}

// Err implements context.Context.
func (b *Budget) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Value implements context.Context.
func (b *Budget) Value(any) any { return nil }

// Steps returns the number of instructions counted so far.
func (b *Budget) Steps() int { return b.steps }

// Cancel trips the budget with cause, interrupting the guest at its next instruction.
func (b *Budget) Cancel(cause error) { b.trip(cause) }

// Tripped reports whether the budget has been exhausted or cancelled.
func (b *Budget) Tripped() bool { return b.Err() != nil }

// Release stops the wall-clock timer. The budget must not be used afterwards.
func (b *Budget) Release() {
	if b.timer != nil {
		b.timer.Stop()
	}
}

func (b *Budget) trip(cause error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return
	}
	b.err = cause
	close(b.done)
}
