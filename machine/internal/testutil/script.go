package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/casevm/casevm/machine"
)

// ScriptRuntime is the name of the scripted runtime registered by this package.
const ScriptRuntime = "script"

func init() {
	machine.RegisterRuntime(ScriptRuntime, func() machine.Runtime { return scriptRuntime{} })
}

// StepFunc is one unit of scripted guest work, run by one Resume.
type StepFunc func(ctx context.Context, api *machine.API, wake machine.Wake) (machine.Step, error)

var scripts sync.Map // code → []StepFunc

// Script registers a scripted program under code and returns code, so it
// can be stored as firmware. Once the steps are used up the program finishes.
func Script(code string, steps ...StepFunc) string {
	scripts.Store(code, steps)
	return code
}

// Wait yields waiting d for a signal; negative waits forever.
func Wait(d time.Duration) StepFunc {
	return func(context.Context, *machine.API, machine.Wake) (machine.Step, error) {
		return machine.Step{Wait: d}, nil
	}
}

// Forever yields waiting for a signal without timeout.
func Forever() StepFunc { return Wait(-1) }

// Fail returns err from the program.
func Fail(err error) StepFunc {
	return func(context.Context, *machine.API, machine.Wake) (machine.Step, error) {
		return machine.Step{}, err
	}
}

// Spin never yields: it consumes instructions until the budget trips.
func Spin() StepFunc {
	return func(ctx context.Context, _ *machine.API, _ machine.Wake) (machine.Step, error) {
		for {
			select {
			case <-ctx.Done():
				return machine.Step{}, ctx.Err()
			default:
			}
		}
	}
}

// Record wraps step and appends every wake it receives to wakes.
func Record(wakes *[]machine.Wake, step StepFunc) StepFunc {
	return func(ctx context.Context, api *machine.API, wake machine.Wake) (machine.Step, error) {
		*wakes = append(*wakes, wake)
		return step(ctx, api, wake)
	}
}

// Repeat returns n copies of step.
func Repeat(n int, step StepFunc) []StepFunc {
	steps := make([]StepFunc, n)
	for i := range steps {
		steps[i] = step
	}
	return steps
}

type scriptRuntime struct{}

func (scriptRuntime) Name() string { return ScriptRuntime }

func (scriptRuntime) Load(api *machine.API, chunk, code string) (machine.Program, error) {
	v, ok := scripts.Load(code)
	if !ok {
		return nil, fmt.Errorf("%s: unknown script %q", chunk, code)
	}
	return &scriptProgram{api: api, steps: v.([]StepFunc)}, nil
}

type scriptProgram struct {
	api    *machine.API
	steps  []StepFunc
	next   int
	closed bool
}

func (p *scriptProgram) Resume(ctx context.Context, wake machine.Wake) (machine.Step, error) {
	if p.closed {
		return machine.Step{}, fmt.Errorf("program is closed")
	}
	if p.next >= len(p.steps) {
		return machine.Step{Finished: true}, nil
	}
	step := p.steps[p.next]
	p.next++
	return step(ctx, p.api, wake)
}

func (p *scriptProgram) Close() { p.closed = true }
