package injection

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/raniellyferreira/redis-injector/stream"
	"github.com/raniellyferreira/redis-injector/target"
)

// LeftoverPolicy selects how keys that never received an expiry are written
type LeftoverPolicy int

const (
	// LeftoverPersist writes leftovers without a TTL
	LeftoverPersist LeftoverPolicy = iota
	// LeftoverDefaultTTL writes leftovers with a fixed TTL
	LeftoverDefaultTTL
)

func (p LeftoverPolicy) String() string {
	switch p {
	case LeftoverPersist:
		return "persist"
	case LeftoverDefaultTTL:
		return "default-ttl"
	}
	return fmt.Sprintf("LeftoverPolicy(%d)", int(p))
}

// ParseLeftoverPolicy accepts "persist" or "default-ttl"
func ParseLeftoverPolicy(s string) (LeftoverPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "persist", "":
		return LeftoverPersist, nil
	case "default-ttl":
		return LeftoverDefaultTTL, nil
	}
	return 0, fmt.Errorf("unknown leftover policy %q", s)
}

// FlushLeftovers writes entries in a single pipeline on a fresh connection.
// There is no retry; any failure is returned. On success every entry is
// counted as without TTL, whichever policy wrote it.
func FlushLeftovers(ctx context.Context, dialer target.Dialer, entries []stream.Entry, policy LeftoverPolicy, ttl time.Duration, counters *Counters, metrics MetricsCollector) error {
	if len(entries) == 0 {
		return nil
	}
	if policy == LeftoverDefaultTTL && ttl < time.Second {
		return fmt.Errorf("leftover policy %s needs a TTL of at least 1s, got %s", policy, ttl)
	}

	opTTL := time.Duration(0)
	if policy == LeftoverDefaultTTL {
		opTTL = ttl.Truncate(time.Second)
	}

	ops := make([]target.Op, len(entries))
	for i, e := range entries {
		ops[i] = target.Op{Key: e.Key, Value: e.Value, TTL: opTTL}
	}

	conn, err := dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", dialer.Addr(), err)
	}
	defer conn.Close()

	if err := conn.Exec(ctx, ops); err != nil {
		return err
	}

	counters.withoutTTL.Add(int64(len(ops)))
	if metrics != nil {
		metrics.RecordLeftovers(int64(len(ops)))
	}
	return nil
}
