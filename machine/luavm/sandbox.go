package luavm

import (
	"errors"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/casevm/casevm/machine"
)

// Globals removed after the base library is opened.
var removedGlobals = []string{
	"dofile", "loadfile", "require", "module", "collectgarbage", "_printregs",
}

// osAllowed lists the os functions guests may keep.
var osAllowed = []string{"clock", "date", "difftime", "time"}

type library struct {
	name string
	open lua.LGFunction
}

var libraries = []library{
	{lua.BaseLibName, lua.OpenBase},
	{lua.TabLibName, lua.OpenTable},
	{lua.StringLibName, lua.OpenString},
	{lua.MathLibName, lua.OpenMath},
	{lua.OsLibName, lua.OpenOs},
}

// openSandbox opens the safe standard libraries and strips everything that
// reaches the host filesystem, process or environment.
func openSandbox(L *lua.LState, api *machine.API) error {
	for _, lib := range libraries {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			return err
		}
	}

	for _, name := range removedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	if err := openProtectedCalls(L); err != nil {
		return err
	}

	if full, ok := L.GetGlobal(lua.OsLibName).(*lua.LTable); ok {
		os := L.NewTable()
		for _, name := range osAllowed {
			os.RawSetString(name, full.RawGetString(name))
		}
		L.SetGlobal(lua.OsLibName, os)
	}

	if str, ok := L.GetGlobal(lua.StringLibName).(*lua.LTable); ok {
		str.RawSetString("rep", L.NewFunction(stringRep(api.MaxStringLength())))
	}

	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, L.GetTop())
		for i := range parts {
			parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
		}
		api.Print(strings.Join(parts, "\t"))
		return 0
	}))
	L.SetGlobal("_OSVERSION", lua.LString(api.OSVersion()))
	return nil
}

// stringRep is string.rep with the result size capped at limit bytes.
func stringRep(limit int) lua.LGFunction {
	return func(L *lua.LState) int {
		s := L.CheckString(1)
		n := L.CheckInt(2)
		if n <= 0 || s == "" {
			L.Push(lua.LString(""))
			return 1
		}
		if n > limit/len(s) {
			L.RaiseError("resulting string too large")
			return 0
		}
		L.Push(lua.LString(strings.Repeat(s, n)))
		return 1
	}
}

// protectedCalls replaces pcall and xpcall with versions that run the callee
// in a private coroutine and forward its yields to the program coroutine, so
// pullSignal and shutdown work inside them. The handler of xpcall runs after
// the stack has unwound.
const protectedCalls = `
local create, resume, status, yield, select, unpack = ...
local function pack(...) return {n = select("#", ...), ...} end
pcall = function(f, ...)
  local co = create(function(...) return f(...) end)
  local r = pack(resume(co, ...))
  while status(co) ~= "dead" do
    r = pack(resume(co, yield(unpack(r, 2, r.n))))
  end
  return unpack(r, 1, r.n)
end
xpcall = function(f, handler)
  local r = pack(pcall(f))
  if not r[1] then
    return false, handler(r[2])
  end
  return unpack(r, 1, r.n)
end
`

// openProtectedCalls installs the yield-aware pcall and xpcall. The
// coroutine library is only reachable from them.
func openProtectedCalls(L *lua.LState) error {
	if err := L.CallByParam(lua.P{
		Fn:      L.NewFunction(lua.OpenCoroutine),
		NRet:    0,
		Protect: true,
	}, lua.LString(lua.CoroutineLibName)); err != nil {
		return err
	}
	co, ok := L.GetGlobal(lua.CoroutineLibName).(*lua.LTable)
	L.SetGlobal(lua.CoroutineLibName, lua.LNil)
	if !ok {
		return errors.New("coroutine library unavailable")
	}
	create, okCreate := co.RawGetString("create").(*lua.LFunction)
	resume, okResume := co.RawGetString("resume").(*lua.LFunction)
	if !okCreate || !okResume {
		return errors.New("coroutine library incomplete")
	}

	fn, err := L.LoadString(protectedCalls)
	if err != nil {
		return err
	}
	return L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true},
		// Threads are created without a context and get the caller's
		// budget on every resume, so instruction counting stays exact.
		L.NewFunction(func(L *lua.LState) int {
			if ctx := L.RemoveContext(); ctx != nil {
				defer L.SetContext(ctx)
			}
			return create.GFunction(L)
		}),
		L.NewFunction(func(L *lua.LState) int {
			if th, ok := L.Get(1).(*lua.LState); ok {
				if ctx := L.Context(); ctx != nil {
					th.SetContext(ctx)
				}
			}
			return resume.GFunction(L)
		}),
		co.RawGetString("status"),
		co.RawGetString("yield"),
		L.GetGlobal("select"),
		L.GetGlobal("unpack"),
	)
}
