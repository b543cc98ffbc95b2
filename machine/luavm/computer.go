package luavm

import (
	"time"

	lua "github.com/yuin/gopher-lua"
)

// Default beep parameters when the guest omits them.
const (
	defaultBeepFrequency = 1000
	defaultBeepDuration  = 0.1
)

func (p *Program) registerComputer() {
	api := p.api
	computer := p.L.SetFuncs(p.L.NewTable(), map[string]lua.LGFunction{
		"realTime": func(L *lua.LState) int {
			L.Push(lua.LNumber(api.RealTime()))
			return 1
		},
		"uptime": func(L *lua.LState) int {
			L.Push(lua.LNumber(api.Uptime()))
			return 1
		},
		"energy": func(L *lua.LState) int {
			L.Push(lua.LNumber(api.Energy()))
			return 1
		},
		"maxEnergy": func(L *lua.LState) int {
			L.Push(lua.LNumber(api.MaxEnergy()))
			return 1
		},
		"address": func(L *lua.LState) int {
			L.Push(lua.LString(api.Address()))
			return 1
		},
		"beep": func(L *lua.LState) int {
			api.Beep(float64(L.OptNumber(1, defaultBeepFrequency)), float64(L.OptNumber(2, defaultBeepDuration)))
			return 0
		},
		"getBootAddress": func(L *lua.LState) int {
			addr, ok := api.BootAddress()
			if !ok || addr == "" {
				L.Push(lua.LNil)
				return 1
			}
			L.Push(lua.LString(addr))
			return 1
		},
		"setBootAddress": func(L *lua.LState) int {
			L.Push(lua.LBool(api.SetBootAddress(L.OptString(1, ""))))
			return 1
		},
		"pushSignal": func(L *lua.LState) int {
			name := L.CheckString(1)
			args := make([]any, 0, L.GetTop()-1)
			for i := 2; i <= L.GetTop(); i++ {
				args = append(args, toGo(L.Get(i)))
			}
			L.Push(lua.LBool(api.PushSignal(name, args...)))
			return 1
		},
		"pullSignal": p.pullSignal,
		"shutdown": func(L *lua.LState) int {
			api.Shutdown(lua.LVAsBool(L.Get(1)))
			return L.Yield()
		},
	})
	p.L.SetGlobal("computer", computer)
}

// pullSignal suspends the program until the host delivers a signal or the
// timeout elapses. The host resumes it with the signal name and payload, or
// with nil on timeout. A missing or non-positive timeout waits forever.
func (p *Program) pullSignal(L *lua.LState) int {
	p.wait = -1
	if L.GetTop() >= 1 && L.Get(1) != lua.LNil {
		if seconds := float64(L.CheckNumber(1)); seconds > 0 {
			p.wait = time.Duration(seconds * float64(time.Second))
		}
	}
	return L.Yield()
}
