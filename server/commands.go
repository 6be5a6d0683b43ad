package server

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/raniellyferreira/redis-injector/lua"
	"github.com/raniellyferreira/redis-injector/protocol"
)

type handler func(c *client, args [][]byte)

// commandSpec holds a handler and its arity. A negative arity is a minimum.
type commandSpec struct {
	fn    handler
	arity int
}

var commandTable map[string]commandSpec

func init() {
	commandTable = map[string]commandSpec{
		"PING":     {handlePing, -1},
		"ECHO":     {handleEcho, 2},
		"AUTH":     {handleAuth, 2},
		"SELECT":   {handleSelect, 2},
		"CLIENT":   {handleClient, -2},
		"GET":      {handleGet, 2},
		"SET":      {handleSet, -3},
		"DEL":      {handleDel, -2},
		"EXISTS":   {handleExists, -2},
		"TTL":      {handleTTL, 2},
		"PTTL":     {handlePTTL, 2},
		"DBSIZE":   {handleDBSize, 1},
		"FLUSHALL": {handleFlushAll, -1},
		"FLUSHDB":  {handleFlushAll, -1},
		"INFO":     {handleInfo, -1},
		"EVAL":     {handleEval, -3},
		"EVALSHA":  {handleEvalSHA, -3},
		"SCRIPT":   {handleScript, -2},
		"QUIT":     {handleQuit, 1},
	}
}

func (c *client) dispatch(cmd *protocol.Command) {
	name := cmd.Name

	if !c.authenticated && name != "AUTH" && name != "QUIT" {
		c.writeError("NOAUTH Authentication required.")
		return
	}

	spec, ok := commandTable[name]
	if !ok {
		c.writeError(fmt.Sprintf("ERR unknown command '%s'", strings.ToLower(name)))
		return
	}

	argc := len(cmd.Args) + 1
	if (spec.arity > 0 && argc != spec.arity) || (spec.arity < 0 && argc < -spec.arity) {
		c.writeError(fmt.Sprintf("ERR wrong number of arguments for '%s' command", strings.ToLower(name)))
		return
	}

	spec.fn(c, cmd.Args)
}

func handlePing(c *client, args [][]byte) {
	switch len(args) {
	case 0:
		c.writer.WriteSimpleString("PONG")
	case 1:
		c.writer.WriteBulkString(args[0])
	default:
		c.writeError("ERR wrong number of arguments for 'ping' command")
	}
}

func handleEcho(c *client, args [][]byte) {
	c.writer.WriteBulkString(args[0])
}

func handleAuth(c *client, args [][]byte) {
	if c.server.password == "" {
		c.writeError("ERR AUTH <password> called without any password configured for the default user.")
		return
	}
	if string(args[0]) != c.server.password {
		c.writeError("WRONGPASS invalid username-password pair or user is disabled.")
		return
	}
	c.authenticated = true
	c.writer.WriteSimpleString("OK")
}

// handleSelect accepts only database 0
func handleSelect(c *client, args [][]byte) {
	db, err := strconv.Atoi(string(args[0]))
	if err != nil {
		c.writeError("ERR value is not an integer or out of range")
		return
	}
	if db != 0 {
		c.writeError("ERR DB index is out of range")
		return
	}
	c.writer.WriteSimpleString("OK")
}

// handleClient acknowledges CLIENT SETNAME/SETINFO sent by client libraries
func handleClient(c *client, args [][]byte) {
	switch strings.ToUpper(string(args[0])) {
	case "SETNAME", "SETINFO":
		c.writer.WriteSimpleString("OK")
	default:
		c.writeError(fmt.Sprintf("ERR unknown subcommand '%s'", args[0]))
	}
}

func handleGet(c *client, args [][]byte) {
	value, ok := c.server.store.Get(string(args[0]))
	if !ok {
		c.writer.WriteNullBulkString()
		return
	}
	c.writer.WriteBulkString(value)
}

// handleSet supports SET key value [EX seconds | PX milliseconds]
func handleSet(c *client, args [][]byte) {
	var expiry *time.Time

	opts := args[2:]
	for i := 0; i < len(opts); i++ {
		opt := strings.ToUpper(string(opts[i]))
		if (opt != "EX" && opt != "PX") || expiry != nil || i+1 >= len(opts) {
			c.writeError("ERR syntax error")
			return
		}
		n, err := strconv.ParseInt(string(opts[i+1]), 10, 64)
		if err != nil {
			c.writeError("ERR value is not an integer or out of range")
			return
		}
		if n <= 0 {
			c.writeError("ERR invalid expire time in 'set' command")
			return
		}
		unit := time.Second
		if opt == "PX" {
			unit = time.Millisecond
		}
		at := time.Now().Add(time.Duration(n) * unit)
		expiry = &at
		i++
	}

	if err := c.server.store.Set(string(args[0]), args[1], expiry); err != nil {
		c.writeError("ERR " + err.Error())
		return
	}
	c.writer.WriteSimpleString("OK")
}

func handleDel(c *client, args [][]byte) {
	c.writer.WriteInteger(c.server.store.Del(keyStrings(args)...))
}

func handleExists(c *client, args [][]byte) {
	c.writer.WriteInteger(c.server.store.Exists(keyStrings(args)...))
}

func handleTTL(c *client, args [][]byte) {
	c.writer.WriteInteger(lua.TTLSeconds(c.server.store.TTL(string(args[0]))))
}

func handlePTTL(c *client, args [][]byte) {
	ttl := c.server.store.TTL(string(args[0]))
	if ttl < 0 {
		c.writer.WriteInteger(int64(ttl / time.Second))
		return
	}
	c.writer.WriteInteger(ttl.Milliseconds())
}

func handleDBSize(c *client, _ [][]byte) {
	c.writer.WriteInteger(c.server.store.KeyCount())
}

func handleFlushAll(c *client, _ [][]byte) {
	if err := c.server.store.FlushAll(); err != nil {
		c.writeError("ERR " + err.Error())
		return
	}
	c.writer.WriteSimpleString("OK")
}

// handleInfo renders the server, stats and keyspace sections
func handleInfo(c *client, args [][]byte) {
	section := "all"
	if len(args) > 0 {
		section = strings.ToLower(string(args[0]))
	}

	var b strings.Builder
	want := func(name string) bool {
		return section == "all" || section == "default" || section == "everything" || section == name
	}

	if want("server") {
		b.WriteString("# Server\r\n")
		b.WriteString("redis_mode:sink\r\n")
		fmt.Fprintf(&b, "tcp_port:%s\r\n", portOf(c.server.Addr()))
		b.WriteString("\r\n")
	}

	if want("stats") {
		stats := c.server.Stats()
		info := c.server.store.Info()
		b.WriteString("# Stats\r\n")
		fmt.Fprintf(&b, "total_connections_received:%v\r\n", stats["total_connections"])
		fmt.Fprintf(&b, "total_commands_processed:%v\r\n", stats["total_commands"])
		fmt.Fprintf(&b, "expired_keys:%v\r\n", info["expired_keys"])
		b.WriteString("\r\n")
	}

	if want("keyspace") {
		b.WriteString("# Keyspace\r\n")
		info := c.server.store.Info()
		keys, _ := info["keys"].(int64)
		expires, _ := info["expires"].(int64)
		if keys > 0 {
			fmt.Fprintf(&b, "db0:keys=%d,expires=%d,avg_ttl=0\r\n", keys, expires)
		}
	}

	c.writer.WriteBulkString([]byte(b.String()))
}

func handleEval(c *client, args [][]byte) {
	keys, argv, ok := c.scriptArgs(args)
	if !ok {
		return
	}
	result, err := c.server.lua.Eval(string(args[0]), keys, argv)
	c.writeScriptResult(result, err)
}

func handleEvalSHA(c *client, args [][]byte) {
	keys, argv, ok := c.scriptArgs(args)
	if !ok {
		return
	}
	result, err := c.server.lua.EvalSHA(string(args[0]), keys, argv)
	c.writeScriptResult(result, err)
}

func handleScript(c *client, args [][]byte) {
	sub := strings.ToUpper(string(args[0]))
	switch sub {
	case "LOAD":
		if len(args) != 2 {
			c.writeError("ERR wrong number of arguments for 'script|load' command")
			return
		}
		c.writer.WriteBulkString([]byte(c.server.lua.LoadScript(string(args[1]))))

	case "EXISTS":
		if len(args) < 2 {
			c.writeError("ERR wrong number of arguments for 'script|exists' command")
			return
		}
		found := c.server.lua.ScriptExists(keyStrings(args[1:])...)
		values := make([]protocol.Value, len(found))
		for i, ok := range found {
			values[i] = protocol.Value{Type: protocol.TypeInteger}
			if ok {
				values[i].Integer = 1
			}
		}
		c.writer.WriteArray(values)

	case "FLUSH":
		c.server.lua.ScriptFlush()
		c.writer.WriteSimpleString("OK")

	default:
		c.writeError(fmt.Sprintf("ERR unknown subcommand '%s'", strings.ToLower(sub)))
	}
}

func handleQuit(c *client, _ [][]byte) {
	c.writer.WriteSimpleString("OK")
	c.quit = true
}

// scriptArgs splits EVAL/EVALSHA arguments into KEYS and ARGV
func (c *client) scriptArgs(args [][]byte) (keys, argv []string, ok bool) {
	numKeys, err := strconv.Atoi(string(args[1]))
	if err != nil {
		c.writeError("ERR value is not an integer or out of range")
		return nil, nil, false
	}
	if numKeys < 0 {
		c.writeError("ERR Number of keys can't be negative")
		return nil, nil, false
	}
	if numKeys > len(args)-2 {
		c.writeError("ERR Number of keys can't be greater than number of args")
		return nil, nil, false
	}
	return keyStrings(args[2 : 2+numKeys]), keyStrings(args[2+numKeys:]), true
}

func (c *client) writeScriptResult(result interface{}, err error) {
	if err != nil {
		if err == lua.ErrNoScript {
			c.writeError(err.Error())
			return
		}
		c.writeError("ERR " + err.Error())
		return
	}
	c.writer.WriteValue(toValue(result))
}

// writeError writes an error reply on a single line
func (c *client) writeError(msg string) {
	c.server.errors.Add(1)
	msg = strings.NewReplacer("\r", " ", "\n", " ").Replace(msg)
	c.writer.WriteError(msg)
}

// toValue maps a script result to a RESP value
func toValue(v interface{}) protocol.Value {
	switch v := v.(type) {
	case nil:
		return protocol.Value{Type: protocol.TypeBulkString, IsNull: true}
	case string:
		return protocol.Value{Type: protocol.TypeBulkString, Data: []byte(v)}
	case int64:
		return protocol.Value{Type: protocol.TypeInteger, Integer: v}
	case error:
		return protocol.Value{Type: protocol.TypeError, Data: []byte(v.Error())}
	case []interface{}:
		items := make([]protocol.Value, len(v))
		for i, item := range v {
			items[i] = toValue(item)
		}
		return protocol.Value{Type: protocol.TypeArray, Array: items}
	}
	return protocol.Value{Type: protocol.TypeBulkString, Data: []byte(fmt.Sprint(v))}
}

func keyStrings(args [][]byte) []string {
	keys := make([]string, len(args))
	for i, a := range args {
		keys[i] = string(a)
	}
	return keys
}

func portOf(addr string) string {
	if i := strings.LastIndexByte(addr, ':'); i >= 0 {
		return addr[i+1:]
	}
	return addr
}
