package stream

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raniellyferreira/redis-injector/protocol"
)

// encode writes each command as a RESP array of bulk strings
func encode(t testing.TB, cmds ...[]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := protocol.NewWriter(&buf)
	for _, cmd := range cmds {
		args := make([][]byte, len(cmd)-1)
		for i, a := range cmd[1:] {
			args[i] = []byte(a)
		}
		require.NoError(t, w.WriteCommand(cmd[0], args...))
	}
	require.NoError(t, w.Flush())
	return buf.Bytes()
}

func setCmd(key, value string) Command {
	return Command{Kind: KindSet, Name: "SET", Key: []byte(key), Value: []byte(value)}
}

func expireCmd(key, at string) Command {
	return Command{Kind: KindExpireAt, Name: "EXPIREAT", Key: []byte(key), At: []byte(at)}
}
