package machine

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// registryIndex is one immutable snapshot of the registry. The three views
// are always published together, so a reader never sees them disagree.
type registryIndex struct {
	byAddress map[string]Component
	byType    map[string][]string // addresses in registration order
	primary   map[string]string
}

func emptyIndex() *registryIndex {
	return &registryIndex{
		byAddress: make(map[string]Component),
		byType:    make(map[string][]string),
		primary:   make(map[string]string),
	}
}

func (ix *registryIndex) clone() *registryIndex {
	next := &registryIndex{
		byAddress: make(map[string]Component, len(ix.byAddress)+1),
		byType:    make(map[string][]string, len(ix.byType)+1),
		primary:   make(map[string]string, len(ix.primary)+1),
	}
	for k, v := range ix.byAddress {
		next.byAddress[k] = v
	}
	for k, v := range ix.byType {
		next.byType[k] = slices.Clone(v)
	}
	for k, v := range ix.primary {
		next.primary[k] = v
	}
	return next
}

// evict removes address from the type views and fixes up the primary.
func (ix *registryIndex) evict(address, kind string) {
	members := slices.DeleteFunc(ix.byType[kind], func(a string) bool { return a == address })
	if len(members) == 0 {
		delete(ix.byType, kind)
		delete(ix.primary, kind)
		return
	}
	ix.byType[kind] = members
	if ix.primary[kind] == address {
		ix.primary[kind] = members[0]
	}
}

// Registry is the address/type indexed directory of components visible to a
// machine. Readers load an immutable snapshot; writers serialize on a mutex
// and publish a modified copy.
type Registry struct {
	mu    sync.Mutex
	index atomic.Pointer[registryIndex]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.index.Store(emptyIndex())
	return r
}

func (r *Registry) snapshot() *registryIndex {
	return r.index.Load()
}

// Add inserts or replaces a component by address. The first component of a
// type becomes its primary. The connect hook runs after the new index is
// published; its failures are logged and ignored.
func (r *Registry) Add(c Component) {
	if c == nil || c.Address() == "" {
		return
	}
	address, kind := c.Address(), c.Type()

	r.mu.Lock()
	next := r.snapshot().clone()
	if prev, ok := next.byAddress[address]; ok && prev.Type() != kind {
		next.evict(address, prev.Type())
	}
	next.byAddress[address] = c
	if !slices.Contains(next.byType[kind], address) {
		next.byType[kind] = append(next.byType[kind], address)
	}
	if _, ok := next.primary[kind]; !ok {
		next.primary[kind] = address
	}
	r.index.Store(next)
	r.mu.Unlock()

	notify(c, "connect", connectHook)
}

// Remove evicts a component from every view and reports whether it was present.
func (r *Registry) Remove(address string) bool {
	r.mu.Lock()
	c, ok := r.snapshot().byAddress[address]
	if !ok {
		r.mu.Unlock()
		return false
	}
	next := r.snapshot().clone()
	delete(next.byAddress, address)
	next.evict(address, c.Type())
	r.index.Store(next)
	r.mu.Unlock()

	notify(c, "disconnect", disconnectHook)
	return true
}

// Clear forgets every component in one swap, then notifies each of them.
// Addresses held by guests become invalid at once: Invoke, Methods and Doc
// report ErrNoSuchComponent for them. Whether the device itself is still
// usable is up to its owner, which learns of the removal via OnDisconnect.
func (r *Registry) Clear() {
	r.mu.Lock()
	prev := r.snapshot()
	r.index.Store(emptyIndex())
	r.mu.Unlock()

	for _, c := range prev.byAddress {
		notify(c, "disconnect", disconnectHook)
	}
}

// ComponentRef identifies a component by address and type.
type ComponentRef struct {
	Address string
	Type    string
}

// Diff lists the membership changes applied by Sync.
type Diff struct {
	Added   []ComponentRef
	Removed []ComponentRef
}

// Empty reports whether the diff carries no changes.
func (d Diff) Empty() bool { return len(d.Added) == 0 && len(d.Removed) == 0 }

// Sync makes the registry contain exactly the given components. Components
// already registered under the same address and identity are left alone, so
// a rescan of an unchanged device set is a no-op.
func (r *Registry) Sync(components []Component) Diff {
	want := make(map[string]Component, len(components))
	for _, c := range components {
		if c != nil && c.Address() != "" {
			want[c.Address()] = c
		}
	}

	var diff Diff
	current := r.snapshot()
	for _, address := range sortedAddresses(current.byAddress) {
		c := current.byAddress[address]
		if w, ok := want[address]; !ok || !sameComponent(w, c) {
			if r.Remove(address) {
				diff.Removed = append(diff.Removed, ComponentRef{Address: address, Type: c.Type()})
			}
		}
	}
	for _, c := range components {
		if c == nil || c.Address() == "" {
			continue
		}
		if existing, ok := r.Get(c.Address()); ok && sameComponent(existing, c) {
			continue
		}
		r.Add(c)
		diff.Added = append(diff.Added, ComponentRef{Address: c.Address(), Type: c.Type()})
	}
	return diff
}

// Get returns the component registered under address.
func (r *Registry) Get(address string) (Component, bool) {
	c, ok := r.snapshot().byAddress[address]
	return c, ok
}

// Exists reports whether address is registered, valid or not.
func (r *Registry) Exists(address string) bool {
	_, ok := r.Get(address)
	return ok
}

// TypeOf returns the type of the component at address.
func (r *Registry) TypeOf(address string) (string, bool) {
	c, ok := r.Get(address)
	if !ok {
		return "", false
	}
	return c.Type(), true
}

// ListByType returns the addresses registered for kind in registration order.
func (r *Registry) ListByType(kind string) []string {
	return slices.Clone(r.snapshot().byType[kind])
}

// Primary returns the default component address of a type.
func (r *Registry) Primary(kind string) (string, bool) {
	address, ok := r.snapshot().primary[kind]
	return address, ok
}

// SetPrimary makes address the primary of kind. It fails when address is
// not registered or has a different type.
func (r *Registry) SetPrimary(kind, address string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.snapshot().byAddress[address]
	if !ok || c.Type() != kind {
		return false
	}
	next := r.snapshot().clone()
	next.primary[kind] = address
	r.index.Store(next)
	return true
}

// List returns address → type for every valid component, optionally
// restricted to one type ("" matches all).
func (r *Registry) List(filter string) map[string]string {
	out := make(map[string]string)
	for address, c := range r.snapshot().byAddress {
		if filter != "" && c.Type() != filter {
			continue
		}
		if !c.Valid() {
			continue
		}
		out[address] = c.Type()
	}
	return out
}

// Types returns the registered component types, sorted.
func (r *Registry) Types() []string {
	ix := r.snapshot()
	out := make([]string, 0, len(ix.byType))
	for kind := range ix.byType {
		out = append(out, kind)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of components of a type.
func (r *Registry) Count(kind string) int {
	return len(r.snapshot().byType[kind])
}

// Len returns the number of registered components.
func (r *Registry) Len() int {
	return len(r.snapshot().byAddress)
}

// Invoke calls method on the component at address.
func (r *Registry) Invoke(address, method string, args Args) (results []any, err error) {
	c, ok := r.Get(address)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchComponent, address)
	}
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidComponent, address)
	}

	defer func() {
		if rec := recover(); rec != nil {
			results, err = nil, MethodFailed("%s.%s: %v", c.Type(), method, rec)
		}
	}()
	results, err = c.Invoke(method, args)
	if err != nil && !hasComponentKind(err) {
		err = fmt.Errorf("%w: %w", ErrMethodFailed, err)
	}
	return results, err
}

// Methods returns the method names of the component at address.
func (r *Registry) Methods(address string) ([]string, error) {
	c, ok := r.Get(address)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchComponent, address)
	}
	return c.Methods(), nil
}

// Doc returns the documentation of a component method.
func (r *Registry) Doc(address, method string) (string, error) {
	c, ok := r.Get(address)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoSuchComponent, address)
	}
	return c.Doc(method), nil
}

func sortedAddresses(m map[string]Component) []string {
	out := make([]string, 0, len(m))
	for address := range m {
		out = append(out, address)
	}
	sort.Strings(out)
	return out
}

// sameComponent compares identities; non-comparable component values are
// never considered the same.
func sameComponent(a, b Component) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

func connectHook(c Connector) error    { return c.OnConnect() }
func disconnectHook(c Connector) error { return c.OnDisconnect() }

// notify runs a membership hook. A misbehaving component must not block
// registry mutation, so errors and panics are only logged.
func notify(c Component, name string, hook func(Connector) error) {
	conn, ok := c.(Connector)
	if !ok {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			logrus.Debugf("component %s: %s hook panicked: %v", c.Address(), name, rec)
		}
	}()
	if err := hook(conn); err != nil {
		logrus.Debugf("component %s: %s hook failed: %v", c.Address(), name, err)
	}
}
