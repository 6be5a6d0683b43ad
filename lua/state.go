package lua

import lua "github.com/yuin/gopher-lua"

// fileLoaders are base library functions that read from the host filesystem
var fileLoaders = []string{"dofile", "loadfile"}

// newState returns an interpreter with only the side-effect free standard
// libraries loaded. Scripts get no io, os or package access, and the base
// library loaders that read files are removed.
func newState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.StringLibName, lua.OpenString},
		{lua.TabLibName, lua.OpenTable},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range fileLoaders {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}
