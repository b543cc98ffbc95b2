package machine

import (
	"fmt"
	"math"
)

// Component is an addressable capability exposed to guest programs.
// The registry holds components without owning them; a component whose
// underlying device disappears reports Valid() == false.
type Component interface {
	// Address is the stable identifier assigned when the component was created.
	Address() string
	// Type classifies behavior, e.g. "gpu", "eeprom", "robot".
	Type() string
	// Methods returns the method names in declaration order.
	Methods() []string
	// Doc returns the documentation string of a method, or "" if unknown.
	Doc(method string) string
	// Invoke calls a method. Failures should wrap one of ErrUnknownMethod,
	// ErrBadArgument or ErrMethodFailed.
	Invoke(method string, args Args) ([]any, error)
	// Valid reports whether the underlying device still exists.
	Valid() bool
}

// Connector is implemented by components that want to observe registry membership.
type Connector interface {
	OnConnect() error
	OnDisconnect() error
}

// Method describes one named operation of a component.
type Method struct {
	Name string
	Doc  string
	Call func(args Args) ([]any, error)
}

// MethodTable is the data-driven dispatch table behind a component's method set.
type MethodTable struct {
	methods []Method
	byName  map[string]int
}

// NewMethodTable builds a table preserving declaration order.
// Duplicate names panic: method sets are fixed at construction time.
func NewMethodTable(methods ...Method) *MethodTable {
	t := &MethodTable{
		methods: methods,
		byName:  make(map[string]int, len(methods)),
	}
	for i, m := range methods {
		if _, dup := t.byName[m.Name]; dup {
			panic(fmt.Sprintf("NewMethodTable: duplicate method %q", m.Name))
		}
		if m.Call == nil {
			panic(fmt.Sprintf("NewMethodTable: method %q has no handler", m.Name))
		}
		t.byName[m.Name] = i
	}
	return t
}

// Names returns the method names in declaration order.
func (t *MethodTable) Names() []string {
	names := make([]string, len(t.methods))
	for i, m := range t.methods {
		names[i] = m.Name
	}
	return names
}

// Doc returns the documentation of a method.
func (t *MethodTable) Doc(name string) (string, bool) {
	i, ok := t.byName[name]
	if !ok {
		return "", false
	}
	return t.methods[i].Doc, true
}

// Call dispatches name to its handler.
func (t *MethodTable) Call(name string, args Args) ([]any, error) {
	i, ok := t.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, name)
	}
	return t.methods[i].Call(args)
}

// Base carries the address, type and method table shared by every component.
// Concrete components embed it and add Valid.
type Base struct {
	addr  string
	kind  string
	table *MethodTable
}

// NewBase returns a Base for a component of the given type.
func NewBase(address, kind string, table *MethodTable) Base {
	return Base{addr: address, kind: kind, table: table}
}

// Address implements Component.
func (b *Base) Address() string { return b.addr }

// Type implements Component.
func (b *Base) Type() string { return b.kind }

// Methods implements Component.
func (b *Base) Methods() []string { return b.table.Names() }

// Doc implements Component.
func (b *Base) Doc(method string) string {
	doc, _ := b.table.Doc(method)
	return doc
}

// Invoke implements Component by dispatching through the method table.
func (b *Base) Invoke(method string, args Args) ([]any, error) {
	return b.table.Call(method, args)
}

// Args is the ordered argument list of a component call. Values are
// normalized scalars (nil, bool, int64, float64, string) or map[any]any for
// guest tables.
type Args []any

// Len returns the number of arguments.
func (a Args) Len() int { return len(a) }

// Get returns argument i (0-based) or nil when absent.
func (a Args) Get(i int) any {
	if i < 0 || i >= len(a) {
		return nil
	}
	return a[i]
}

// IsNil reports whether argument i is absent or nil.
func (a Args) IsNil(i int) bool { return a.Get(i) == nil }

// CheckNumber returns argument i as a float64.
func (a Args) CheckNumber(i int) (float64, error) {
	switch v := a.Get(i).(type) {
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, BadArgument(i+1, "number expected, got %s", typeName(v))
	}
}

// CheckInt returns argument i as an int. Floats must be integral.
func (a Args) CheckInt(i int) (int, error) {
	switch v := a.Get(i).(type) {
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, BadArgument(i+1, "integer expected, got %v", v)
		}
		return int(v), nil
	default:
		return 0, BadArgument(i+1, "number expected, got %s", typeName(v))
	}
}

// OptInt returns argument i as an int, or def when it is nil.
func (a Args) OptInt(i, def int) (int, error) {
	if a.IsNil(i) {
		return def, nil
	}
	return a.CheckInt(i)
}

// CheckString returns argument i as a string.
func (a Args) CheckString(i int) (string, error) {
	v, ok := a.Get(i).(string)
	if !ok {
		return "", BadArgument(i+1, "string expected, got %s", typeName(a.Get(i)))
	}
	return v, nil
}

// OptString returns argument i as a string, or def when it is nil.
func (a Args) OptString(i int, def string) (string, error) {
	if a.IsNil(i) {
		return def, nil
	}
	return a.CheckString(i)
}

// OptBool returns argument i as a bool, or def when it is nil.
func (a Args) OptBool(i int, def bool) (bool, error) {
	if a.IsNil(i) {
		return def, nil
	}
	v, ok := a.Get(i).(bool)
	if !ok {
		return false, BadArgument(i+1, "boolean expected, got %s", typeName(a.Get(i)))
	}
	return v, nil
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "nil"
	case bool:
		return "boolean"
	case int64, float64:
		return "number"
	case string:
		return "string"
	case map[any]any:
		return "table"
	default:
		return fmt.Sprintf("%T", v)
	}
}
