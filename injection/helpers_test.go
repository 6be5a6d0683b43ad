package injection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/raniellyferreira/redis-injector/storage"
	"github.com/raniellyferreira/redis-injector/stream"
	"github.com/raniellyferreira/redis-injector/target"
)

var (
	errDial = errors.New("dial refused")
	errExec = errors.New("connection reset")
)

// fakeDialer writes into a storage.Memory and injects dial and exec faults
type fakeDialer struct {
	mu           sync.Mutex
	mem          *target.Memory
	dialFailures int
	execFailures int
	failDial     map[int]bool // 1-based dial numbers that fail
	dials        int
	execs        int
	lastOps      []target.Op
}

func newFakeDialer(t *testing.T) *fakeDialer {
	t.Helper()
	store := storage.NewMemory()
	t.Cleanup(func() { store.Close() })
	return &fakeDialer{mem: target.NewMemory(store), failDial: map[int]bool{}}
}

func (d *fakeDialer) Addr() string { return "fake://" }

func (d *fakeDialer) Dial(ctx context.Context) (target.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	if d.failDial[d.dials] {
		return nil, errDial
	}
	if d.dialFailures > 0 {
		d.dialFailures--
		return nil, errDial
	}
	inner, err := d.mem.Dial(ctx)
	if err != nil {
		return nil, err
	}
	return &fakeConn{dialer: d, inner: inner}, nil
}

func (d *fakeDialer) store() storage.Storage { return d.mem.Store() }

func (d *fakeDialer) counts() (dials, execs int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials, d.execs
}

type fakeConn struct {
	dialer *fakeDialer
	inner  target.Conn
	closed bool
}

// Exec applies the first half of ops before an injected failure, like a
// connection dropped mid-pipeline
func (c *fakeConn) Exec(ctx context.Context, ops []target.Op) error {
	d := c.dialer
	d.mu.Lock()
	d.execs++
	d.lastOps = append([]target.Op(nil), ops...)
	fail := d.execFailures > 0
	if fail {
		d.execFailures--
	}
	d.mu.Unlock()

	if c.closed {
		return errors.New("use of closed connection")
	}
	if fail {
		if err := c.inner.Exec(ctx, ops[:len(ops)/2]); err != nil {
			return err
		}
		return errExec
	}
	return c.inner.Exec(ctx, ops)
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func record(key, value string, expireAt int64) stream.Record {
	return stream.Record{Key: []byte(key), Value: []byte(value), ExpireAt: expireAt}
}

func fastConfig(now time.Time) WorkerConfig {
	return WorkerConfig{
		RetryInterval: 5 * time.Millisecond,
		Now:           fixedClock(now),
	}
}
