package lua

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// Filter evaluates a keep(key) function defined by a script. It is not
// safe for concurrent use.
type Filter struct {
	state *lua.LState
	keep  *lua.LFunction
}

// NewFilter compiles script, which must define a global function keep
func NewFilter(script string) (*Filter, error) {
	L := newState()

	if err := L.DoString(script); err != nil {
		L.Close()
		return nil, fmt.Errorf("load filter script: %w", err)
	}

	fn, ok := L.GetGlobal("keep").(*lua.LFunction)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("filter script must define function keep(key)")
	}

	return &Filter{state: L, keep: fn}, nil
}

// Keep calls keep(key) and reports the truthiness of its result
func (f *Filter) Keep(key []byte) (bool, error) {
	if err := f.state.CallByParam(lua.P{
		Fn:      f.keep,
		NRet:    1,
		Protect: true,
	}, lua.LString(key)); err != nil {
		return false, fmt.Errorf("keep(%q): %w", key, err)
	}

	ret := f.state.Get(-1)
	f.state.Pop(1)
	return lua.LVAsBool(ret), nil
}

// Close releases the interpreter
func (f *Filter) Close() {
	f.state.Close()
}
