// Package luavm runs guest programs on gopher-lua. Each program lives in its
// own interpreter state and executes inside a single coroutine that yields
// to the host whenever it waits for a signal.
package luavm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/casevm/casevm/machine"
)

// Name is the runtime name registered with the machine package.
const Name = "lua"

func init() {
	machine.RegisterRuntime(Name, func() machine.Runtime { return &Runtime{} })
}

var errClosed = errors.New("program is closed")

// Runtime compiles Lua source into programs.
type Runtime struct{}

// Name implements machine.Runtime.
func (r *Runtime) Name() string { return Name }

// Load creates a sandboxed interpreter bound to api and compiles code.
func (r *Runtime) Load(api *machine.API, chunk, code string) (machine.Program, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:  true,
		CallStackSize: 256,
	})
	p := &Program{L: L, api: api, wait: -1}
	if err := openSandbox(L, api); err != nil {
		L.Close()
		return nil, err
	}
	p.registerComputer()
	p.registerComponent()

	fn, err := L.Load(strings.NewReader(code), "="+chunk)
	if err != nil {
		L.Close()
		return nil, err
	}
	p.fn = fn
	p.co, _ = L.NewThread()
	return p, nil
}

// Program is a compiled guest program and its interpreter state.
type Program struct {
	L   *lua.LState
	co  *lua.LState
	fn  *lua.LFunction
	api *machine.API

	wait    time.Duration // timeout of the pending pullSignal
	started bool
	closed  bool
}

// Resume implements machine.Program. Interpreter panics, such as a yield
// across a Go call boundary, are returned as errors.
func (p *Program) Resume(ctx context.Context, wake machine.Wake) (step machine.Step, err error) {
	if p.closed {
		return machine.Step{}, errClosed
	}
	p.co.SetContext(ctx)

	var args []lua.LValue
	if s := wake.Signal; s != nil {
		args = append(args, lua.LString(s.Name()))
		for _, a := range s.Args() {
			args = append(args, toLua(p.L, a))
		}
	} else if p.started {
		// timed out pull
		args = append(args, lua.LNil)
	}
	p.started = true

	defer func() {
		if rec := recover(); rec != nil {
			step, err = machine.Step{}, fmt.Errorf("lua: %v", rec)
		}
	}()
	p.wait = -1
	state, err, _ := p.L.Resume(p.co, p.fn, args...)
	switch state {
	case lua.ResumeOK:
		return machine.Step{Finished: true}, nil
	case lua.ResumeYield:
		return machine.Step{Wait: p.wait}, nil
	default:
		return machine.Step{}, err
	}
}

// Close implements machine.Program.
func (p *Program) Close() {
	if p.closed {
		return
	}
	p.closed = true
	p.L.Close()
}
