package redisinjector

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raniellyferreira/redis-injector/protocol"
	"github.com/raniellyferreira/redis-injector/storage"
	"github.com/raniellyferreira/redis-injector/target"
)

// streamBuilder writes replication style input
type streamBuilder struct {
	t   *testing.T
	buf bytes.Buffer
	w   *protocol.Writer
}

func newStream(t *testing.T) *streamBuilder {
	s := &streamBuilder{t: t}
	s.w = protocol.NewWriter(&s.buf)
	return s
}

func (s *streamBuilder) cmd(name string, args ...string) *streamBuilder {
	s.t.Helper()
	raw := make([][]byte, len(args))
	for i, a := range args {
		raw[i] = []byte(a)
	}
	require.NoError(s.t, s.w.WriteCommand(name, raw...))
	return s
}

func (s *streamBuilder) set(key, value string) *streamBuilder {
	return s.cmd("SET", key, value)
}

func (s *streamBuilder) expireAt(key string, at int64) *streamBuilder {
	return s.cmd("EXPIREAT", key, strconv.FormatInt(at, 10))
}

func (s *streamBuilder) bytes() []byte {
	s.t.Helper()
	require.NoError(s.t, s.w.Flush())
	return s.buf.Bytes()
}

func (s *streamBuilder) reader() *bytes.Reader {
	return bytes.NewReader(s.bytes())
}

func newMemoryTarget(t *testing.T) *target.Memory {
	t.Helper()
	store := storage.NewMemory()
	t.Cleanup(func() { store.Close() })
	return target.NewMemory(store)
}

// flakyDialer fails the first execFailures pipelines, or every pipeline
// when failAll is set
type flakyDialer struct {
	*target.Memory
	mu           sync.Mutex
	execFailures int
	failAll      bool
	execs        int
}

func (d *flakyDialer) Dial(ctx context.Context) (target.Conn, error) {
	conn, err := d.Memory.Dial(ctx)
	if err != nil {
		return nil, err
	}
	return &flakyConn{Conn: conn, d: d}, nil
}

type flakyConn struct {
	target.Conn
	d *flakyDialer
}

func (c *flakyConn) Exec(ctx context.Context, ops []target.Op) error {
	c.d.mu.Lock()
	c.d.execs++
	fail := c.d.failAll || c.d.execFailures > 0
	if c.d.execFailures > 0 {
		c.d.execFailures--
	}
	c.d.mu.Unlock()
	if fail {
		return errors.New("connection reset by peer")
	}
	return c.Conn.Exec(ctx, ops)
}

// recordingLogger keeps every message
type recordingLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordingLogger) add(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func (l *recordingLogger) Debug(msg string, _ ...Field) { l.add(msg) }
func (l *recordingLogger) Info(msg string, _ ...Field)  { l.add(msg) }
func (l *recordingLogger) Warn(msg string, _ ...Field)  { l.add(msg) }
func (l *recordingLogger) Error(msg string, _ ...Field) { l.add(msg) }

func (l *recordingLogger) has(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if m == msg {
			return true
		}
	}
	return false
}

var testNow = time.Unix(1_760_000_000, 0)

func clockAt(now time.Time) Option {
	return withClock(func() time.Time { return now })
}
