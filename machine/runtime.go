package machine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Wake is what a suspended program receives when it is resumed.
type Wake struct {
	// Signal is the delivered signal, or nil on the first resume and when a
	// pull timed out.
	Signal *Signal
}

// Step describes how a program gave control back to the host.
type Step struct {
	// Finished is set when the program returned normally.
	Finished bool
	// Wait is the pull timeout requested when the program yielded. A
	// negative value waits until a signal arrives; zero gives up at the
	// next tick that finds the queue empty. Guest pulls with a
	// non-positive timeout map to a negative Wait.
	Wait time.Duration
}

// Program is a compiled guest program suspended between units of work.
type Program interface {
	// Resume runs the program until it yields, returns or fails. ctx is the
	// execution budget; interpreters must stop once it is done.
	Resume(ctx context.Context, wake Wake) (Step, error)
	// Close releases the interpreter state. It is safe to call twice.
	Close()
}

// Runtime compiles guest code into a Program bound to a machine's API.
type Runtime interface {
	// Name identifies the runtime, e.g. "lua".
	Name() string
	// Load prepares a fresh sandboxed environment and compiles code in it.
	// Syntax errors are returned as plain errors.
	Load(api *API, chunk, code string) (Program, error)
}

var (
	runtimesMu sync.RWMutex
	runtimes   = map[string]func() Runtime{}
)

// RegisterRuntime makes a runtime available by name. It is called from the
// init() of runtime packages, so importing machine/luavm is enough to enable it.
// Registering a name twice panics.
func RegisterRuntime(name string, factory func() Runtime) {
	runtimesMu.Lock()
	defer runtimesMu.Unlock()
	if _, dup := runtimes[name]; dup {
		panic(fmt.Sprintf("RegisterRuntime: runtime %q registered twice", name))
	}
	runtimes[name] = factory
}

// NewRuntime creates the runtime registered under name.
func NewRuntime(name string) (Runtime, error) {
	runtimesMu.RLock()
	factory, ok := runtimes[name]
	runtimesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown runtime %q; valid options: %v", name, RuntimeNames())
	}
	return factory(), nil
}

// IsValidRuntime returns true if name is a registered runtime.
func IsValidRuntime(name string) bool {
	runtimesMu.RLock()
	defer runtimesMu.RUnlock()
	_, ok := runtimes[name]
	return ok
}

// RuntimeNames returns the registered runtime names, sorted.
func RuntimeNames() []string {
	runtimesMu.RLock()
	defer runtimesMu.RUnlock()
	names := make([]string, 0, len(runtimes))
	for name := range runtimes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
