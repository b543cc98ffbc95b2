package luavm

import (
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/casevm/casevm/machine"
)

func (p *Program) registerComponent() {
	api := p.api
	component := p.L.SetFuncs(p.L.NewTable(), map[string]lua.LGFunction{
		"list": func(L *lua.LState) int {
			L.Push(p.listTable(api.List(L.OptString(1, ""))))
			return 1
		},
		"type": func(L *lua.LState) int {
			kind, err := api.Type(L.CheckString(1))
			if err != nil {
				return fail(L, err)
			}
			L.Push(lua.LString(kind))
			return 1
		},
		"methods": func(L *lua.LState) int {
			names, err := api.Methods(L.CheckString(1))
			if err != nil {
				return fail(L, err)
			}
			t := L.CreateTable(0, len(names))
			for _, name := range names {
				t.RawSetString(name, lua.LTrue)
			}
			L.Push(t)
			return 1
		},
		"doc": func(L *lua.LState) int {
			doc, err := api.Doc(L.CheckString(1), L.CheckString(2))
			if err != nil {
				return fail(L, err)
			}
			if doc == "" {
				L.Push(lua.LNil)
				return 1
			}
			L.Push(lua.LString(doc))
			return 1
		},
		"invoke": func(L *lua.LState) int {
			return p.invoke(L, L.CheckString(1), L.CheckString(2), 3)
		},
		"proxy": func(L *lua.LState) int {
			proxy, err := p.proxy(L.CheckString(1))
			if err != nil {
				return fail(L, err)
			}
			L.Push(proxy)
			return 1
		},
		"getPrimary": func(L *lua.LState) int {
			kind := L.CheckString(1)
			address, ok := api.Primary(kind)
			if !ok {
				L.RaiseError("no primary '%s' available", kind)
				return 0
			}
			proxy, err := p.proxy(address)
			if err != nil {
				L.RaiseError("%s", err.Error())
				return 0
			}
			L.Push(proxy)
			return 1
		},
		"isAvailable": func(L *lua.LState) int {
			_, ok := api.Primary(L.CheckString(1))
			L.Push(lua.LBool(ok))
			return 1
		},
	})
	p.L.SetGlobal("component", component)
}

// invoke calls a component method with the guest arguments starting at
// stack index from. Component failures become guest errors.
func (p *Program) invoke(L *lua.LState, address, method string, from int) int {
	args := make(machine.Args, 0, max(L.GetTop()-from+1, 0))
	for i := from; i <= L.GetTop(); i++ {
		args = append(args, toGo(L.Get(i)))
	}
	results, err := p.api.Invoke(address, method, args)
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	return pushAll(L, results)
}

// proxy builds a table with the component's address, type and one function
// per method.
func (p *Program) proxy(address string) (*lua.LTable, error) {
	kind, err := p.api.Type(address)
	if err != nil {
		return nil, err
	}
	methods, err := p.api.Methods(address)
	if err != nil {
		return nil, err
	}
	t := p.L.CreateTable(0, len(methods)+2)
	for _, name := range methods {
		method := name
		t.RawSetString(method, p.L.NewFunction(func(L *lua.LState) int {
			return p.invoke(L, address, method, 1)
		}))
	}
	t.RawSetString("address", lua.LString(address))
	t.RawSetString("type", lua.LString(kind))
	return t, nil
}

// listTable returns address → type. Calling the table iterates it in
// address order, so component.list("gpu")() yields the first match.
func (p *Program) listTable(entries map[string]string) *lua.LTable {
	t := toLua(p.L, entries).(*lua.LTable)
	addresses := make([]string, 0, len(entries))
	for address := range entries {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)

	next := 0
	mt := p.L.NewTable()
	mt.RawSetString("__call", p.L.NewFunction(func(L *lua.LState) int {
		if next >= len(addresses) {
			L.Push(lua.LNil)
			return 1
		}
		address := addresses[next]
		next++
		L.Push(lua.LString(address))
		L.Push(lua.LString(entries[address]))
		return 2
	}))
	p.L.SetMetatable(t, mt)
	return t
}

// fail returns nil plus an error message, the guest convention for
// recoverable lookups.
func fail(L *lua.LState, err error) int {
	L.Push(lua.LNil)
	L.Push(lua.LString(err.Error()))
	return 2
}
