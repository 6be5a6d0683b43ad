package stream

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strconv"
)

// ErrDuplicateKey indicates a SET arrived for a key that already has a
// pending SET. The source stream is inconsistent and correlation cannot
// continue safely.
var ErrDuplicateKey = errors.New("duplicate pending SET")

// DuplicateKeyError carries the offending key
type DuplicateKeyError struct {
	Key []byte
}

// Error implements the error interface
func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%v for key %q", ErrDuplicateKey, e.Key)
}

// Is reports whether target is ErrDuplicateKey
func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrDuplicateKey
}

// Record is a SET matched with its EXPIREAT. ExpireAt is in unix seconds.
type Record struct {
	Key      []byte
	Value    []byte
	ExpireAt int64
}

// Entry is a SET that never received an expiration
type Entry struct {
	Key   []byte
	Value []byte
}

// KeyFilter decides whether a SET should be replayed at all
type KeyFilter interface {
	Keep(key []byte) (bool, error)
}

// Stats counts what the correlator has seen. Sets counts accepted SETs
// only: filtered keys are reported separately.
type Stats struct {
	Sets           int64
	ExpireAts      int64
	Others         int64
	Matched        int64
	Orphans        int64
	InvalidExpires int64
	Filtered       int64
}

// Correlator pairs each SET with the later EXPIREAT for the same key
type Correlator struct {
	pending map[string][]byte
	filter  KeyFilter
	logger  Logger
	stats   Stats
}

// NewCorrelator creates an empty correlator
func NewCorrelator(logger Logger) *Correlator {
	return &Correlator{
		pending: make(map[string][]byte),
		logger:  orNop(logger),
	}
}

// SetFilter installs a key filter applied to every SET
func (c *Correlator) SetFilter(filter KeyFilter) {
	c.filter = filter
}

// Apply feeds one command to the correlator. It returns a record and true
// when cmd is an EXPIREAT matching a pending SET. A SET for a key that is
// already pending returns *DuplicateKeyError; the pending value is left
// untouched.
func (c *Correlator) Apply(cmd Command) (Record, bool, error) {
	switch cmd.Kind {
	case KindSet:
		return Record{}, false, c.set(cmd.Key, cmd.Value)
	case KindExpireAt:
		rec, ok := c.expireAt(cmd.Key, cmd.At)
		return rec, ok, nil
	default:
		c.stats.Others++
		c.logger.Debug("Ignored command", "command", cmd.Name)
		return Record{}, false, nil
	}
}

func (c *Correlator) set(key, value []byte) error {
	if c.filter != nil {
		keep, err := c.filter.Keep(key)
		if err != nil {
			return fmt.Errorf("key filter: %w", err)
		}
		if !keep {
			c.stats.Filtered++
			return nil
		}
	}

	if _, exists := c.pending[string(key)]; exists {
		return &DuplicateKeyError{Key: bytes.Clone(key)}
	}

	c.pending[string(key)] = value
	c.stats.Sets++
	return nil
}

func (c *Correlator) expireAt(key, at []byte) (Record, bool) {
	c.stats.ExpireAts++

	expireAt, err := strconv.ParseInt(string(at), 10, 64)
	if err != nil {
		c.stats.InvalidExpires++
		c.logger.Warn("Invalid EXPIREAT timestamp, key stays pending", "key", string(key), "at", string(at))
		return Record{}, false
	}

	value, exists := c.pending[string(key)]
	if !exists {
		c.stats.Orphans++
		c.logger.Warn("Orphan EXPIREAT, no pending SET", "key", string(key))
		return Record{}, false
	}
	delete(c.pending, string(key))

	c.stats.Matched++
	return Record{Key: key, Value: value, ExpireAt: expireAt}, true
}

// Pending returns the number of SETs still waiting for an expiration
func (c *Correlator) Pending() int {
	return len(c.pending)
}

// Leftovers hands over every pending SET, sorted by key, and empties the
// pending set
func (c *Correlator) Leftovers() []Entry {
	entries := make([]Entry, 0, len(c.pending))
	for key, value := range c.pending {
		entries = append(entries, Entry{Key: []byte(key), Value: value})
	}
	c.pending = make(map[string][]byte)

	slices.SortFunc(entries, func(a, b Entry) int {
		return bytes.Compare(a.Key, b.Key)
	})
	return entries
}

// Stats returns a copy of the counters
func (c *Correlator) Stats() Stats {
	return c.stats
}
