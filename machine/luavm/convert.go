package luavm

import (
	"fmt"
	"math"
	"sort"

	lua "github.com/yuin/gopher-lua"
)

// maxTableDepth bounds the conversion of nested guest tables.
const maxTableDepth = 16

// toGo converts a guest value to the component argument domain.
// Integral numbers become int64, tables become map[any]any, and anything
// without a scalar form is passed as its string representation.
func toGo(lv lua.LValue) any {
	return toGoDepth(lv, 0)
}

func toGoDepth(lv lua.LValue, depth int) any {
	switch v := lv.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if depth >= maxTableDepth {
			return nil
		}
		out := make(map[any]any)
		v.ForEach(func(k, val lua.LValue) {
			key := toGoDepth(k, depth+1)
			if key == nil {
				return
			}
			out[key] = toGoDepth(val, depth+1)
		})
		return out
	default:
		return lv.String()
	}
}

// toLua converts a component result to a guest value.
func toLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return x
	case bool:
		return lua.LBool(x)
	case int:
		return lua.LNumber(x)
	case int32:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case uint8:
		return lua.LNumber(x)
	case uint32:
		return lua.LNumber(x)
	case float32:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case string:
		return lua.LString(x)
	case []byte:
		return lua.LString(x)
	case error:
		return lua.LString(x.Error())
	case []string:
		t := L.CreateTable(len(x), 0)
		for _, s := range x {
			t.Append(lua.LString(s))
		}
		return t
	case []any:
		t := L.CreateTable(len(x), 0)
		for i, e := range x {
			t.RawSetInt(i+1, toLua(L, e))
		}
		return t
	case map[string]string:
		t := L.CreateTable(0, len(x))
		for _, k := range sortedKeys(x) {
			t.RawSetString(k, lua.LString(x[k]))
		}
		return t
	case map[string]any:
		t := L.CreateTable(0, len(x))
		for k, e := range x {
			t.RawSetString(k, toLua(L, e))
		}
		return t
	case map[any]any:
		t := L.CreateTable(0, len(x))
		for k, e := range x {
			if k == nil {
				continue
			}
			t.RawSet(toLua(L, k), toLua(L, e))
		}
		return t
	case fmt.Stringer:
		return lua.LString(x.String())
	default:
		return lua.LString(fmt.Sprint(x))
	}
}

// pushAll pushes every value and returns the count, as LGFunctions do.
func pushAll(L *lua.LState, values []any) int {
	for _, v := range values {
		L.Push(toLua(L, v))
	}
	return len(values)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
