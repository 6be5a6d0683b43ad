package lua

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/raniellyferreira/redis-injector/storage"
)

// ErrNoScript is returned by EvalSHA for an unknown digest
var ErrNoScript = fmt.Errorf("NOSCRIPT No matching script. Please use EVAL")

// Engine runs EVAL scripts against a store. Every call gets a fresh
// interpreter, so scripts cannot leak globals into each other.
type Engine struct {
	store   storage.Storage
	scripts sync.Map // digest -> source
}

// NewEngine creates an engine over store
func NewEngine(store storage.Storage) *Engine {
	return &Engine{store: store}
}

// Eval runs script with KEYS and ARGV bound
func (e *Engine) Eval(script string, keys, args []string) (interface{}, error) {
	L := newState()
	defer L.Close()

	L.SetGlobal("KEYS", stringTable(L, keys))
	L.SetGlobal("ARGV", stringTable(L, args))

	redis := L.NewTable()
	L.SetFuncs(redis, map[string]lua.LGFunction{
		"call":  e.call,
		"pcall": e.pcall,
	})
	L.SetGlobal("redis", redis)

	top := L.GetTop()
	if err := L.DoString(script); err != nil {
		return nil, fmt.Errorf("script execution error: %w", err)
	}
	if L.GetTop() == top {
		return nil, nil
	}
	res := fromLua(L.Get(-1))
	if err, ok := res.(error); ok {
		return nil, err
	}
	return res, nil
}

// EvalSHA runs a script previously registered with LoadScript
func (e *Engine) EvalSHA(digest string, keys, args []string) (interface{}, error) {
	script, ok := e.scripts.Load(strings.ToLower(digest))
	if !ok {
		return nil, ErrNoScript
	}
	return e.Eval(script.(string), keys, args)
}

// LoadScript caches script and returns its SHA1 digest
func (e *Engine) LoadScript(script string) string {
	sum := sha1.Sum([]byte(script))
	digest := hex.EncodeToString(sum[:])
	e.scripts.Store(digest, script)
	return digest
}

// ScriptExists reports which digests are cached
func (e *Engine) ScriptExists(digests ...string) []bool {
	found := make([]bool, len(digests))
	for i, d := range digests {
		_, found[i] = e.scripts.Load(strings.ToLower(d))
	}
	return found
}

// ScriptFlush drops all cached scripts
func (e *Engine) ScriptFlush() {
	e.scripts.Range(func(k, _ interface{}) bool {
		e.scripts.Delete(k)
		return true
	})
}

func (e *Engine) call(L *lua.LState) int {
	res, err := e.dispatch(L)
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(toLua(L, res))
	return 1
}

// pcall returns errors as {err = msg} tables instead of raising
func (e *Engine) pcall(L *lua.LState) int {
	res, err := e.dispatch(L)
	if err != nil {
		t := L.NewTable()
		t.RawSetString("err", lua.LString(err.Error()))
		L.Push(t)
		return 1
	}
	L.Push(toLua(L, res))
	return 1
}

func (e *Engine) dispatch(L *lua.LState) (interface{}, error) {
	n := L.GetTop()
	if n == 0 {
		return nil, fmt.Errorf("please specify at least one argument for redis.call()")
	}
	args := make([]string, n-1)
	for i := 2; i <= n; i++ {
		args[i-2] = L.ToString(i)
	}
	return e.command(L.ToString(1), args)
}

func (e *Engine) command(name string, args []string) (interface{}, error) {
	switch strings.ToUpper(name) {
	case "GET":
		if len(args) != 1 {
			return nil, arityError(name)
		}
		v, ok := e.store.Get(args[0])
		if !ok {
			return nil, nil
		}
		return string(v), nil

	case "SET":
		if len(args) != 2 && len(args) != 4 {
			return nil, arityError(name)
		}
		var expiry *time.Time
		if len(args) == 4 {
			if !strings.EqualFold(args[2], "EX") {
				return nil, fmt.Errorf("ERR syntax error")
			}
			secs, err := strconv.ParseInt(args[3], 10, 64)
			if err != nil || secs <= 0 {
				return nil, fmt.Errorf("ERR invalid expire time in 'set' command")
			}
			at := time.Now().Add(time.Duration(secs) * time.Second)
			expiry = &at
		}
		if err := e.store.Set(args[0], []byte(args[1]), expiry); err != nil {
			return nil, err
		}
		return "OK", nil

	case "DEL":
		if len(args) == 0 {
			return nil, arityError(name)
		}
		return e.store.Del(args...), nil

	case "EXISTS":
		if len(args) == 0 {
			return nil, arityError(name)
		}
		return e.store.Exists(args...), nil

	case "TTL":
		if len(args) != 1 {
			return nil, arityError(name)
		}
		return TTLSeconds(e.store.TTL(args[0])), nil
	}
	return nil, fmt.Errorf("ERR unknown command '%s' called from script", name)
}

func arityError(name string) error {
	return fmt.Errorf("ERR wrong number of arguments for '%s' command", strings.ToLower(name))
}

// TTLSeconds converts a storage TTL into the integer TTL reply, keeping
// the -1 and -2 markers and rounding remaining time to the nearest second
func TTLSeconds(ttl time.Duration) int64 {
	if ttl < 0 {
		return int64(ttl / time.Second)
	}
	return int64((ttl + 500*time.Millisecond) / time.Second)
}

func stringTable(L *lua.LState, items []string) *lua.LTable {
	t := L.CreateTable(len(items), 0)
	for i, s := range items {
		t.RawSetInt(i+1, lua.LString(s))
	}
	return t
}

// toLua maps a command reply to Lua. A nil reply becomes false, as in Redis.
func toLua(L *lua.LState, v interface{}) lua.LValue {
	switch v := v.(type) {
	case nil:
		return lua.LFalse
	case string:
		return lua.LString(v)
	case int64:
		return lua.LNumber(v)
	case int:
		return lua.LNumber(v)
	case bool:
		return lua.LBool(v)
	case []interface{}:
		t := L.CreateTable(len(v), 0)
		for i, item := range v {
			t.RawSetInt(i+1, toLua(L, item))
		}
		return t
	}
	return lua.LString(fmt.Sprint(v))
}

// fromLua maps a script result to Go. Numbers are truncated to integers and
// tables keep only their array part, following Redis conversion rules.
func fromLua(lv lua.LValue) interface{} {
	switch v := lv.(type) {
	case lua.LBool:
		if v {
			return int64(1)
		}
		return nil
	case lua.LString:
		return string(v)
	case lua.LNumber:
		return int64(v)
	case *lua.LTable:
		if msg, ok := v.RawGetString("err").(lua.LString); ok {
			return fmt.Errorf("%s", string(msg))
		}
		if ok, isStatus := v.RawGetString("ok").(lua.LString); isStatus {
			return string(ok)
		}
		out := make([]interface{}, 0, v.Len())
		for i := 1; i <= v.Len(); i++ {
			item := v.RawGetInt(i)
			if item == lua.LNil {
				break
			}
			out = append(out, fromLua(item))
		}
		return out
	}
	return nil
}
