package storage

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// shard represents a single shard of data with its own lock
type shard struct {
	mu   sync.RWMutex
	data map[string]*entry
}

// Memory implements an in-memory storage engine sharded by key hash
type Memory struct {
	shards    []shard
	shardMask uint64

	cleanup     CleanupConfig
	cleanupStop chan struct{}
	cleanupDone chan struct{}
	closeOnce   sync.Once

	writes  atomic.Int64
	expired atomic.Int64
}

// MemoryOption is a function that configures a Memory instance
type MemoryOption func(*Memory)

// WithShardCount sets the number of shards for the storage. The number is
// rounded up to the next power of 2.
func WithShardCount(count int) MemoryOption {
	return func(s *Memory) {
		if count > 0 {
			n := nextPowerOf2(count)
			s.shards = make([]shard, n)
			s.shardMask = uint64(n - 1)
		}
	}
}

// WithCleanupConfig overrides the background expiry sweep settings
func WithCleanupConfig(config CleanupConfig) MemoryOption {
	return func(s *Memory) {
		if config.Interval > 0 && config.SampleSize > 0 && config.MaxRounds > 0 {
			s.cleanup = config
		}
	}
}

// NewMemory creates a new in-memory storage instance with 64 shards by
// default and starts its expiry sweep
func NewMemory(opts ...MemoryOption) *Memory {
	s := &Memory{
		shards:      make([]shard, 64),
		shardMask:   63,
		cleanup:     CleanupConfigDefault,
		cleanupStop: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	for i := range s.shards {
		s.shards[i].data = make(map[string]*entry)
	}

	go s.cleanupExpiredKeys()

	return s
}

// nextPowerOf2 returns the next power of 2 >= n
func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (s *Memory) shardFor(key string) *shard {
	return &s.shards[xxhash.Sum64String(key)&s.shardMask]
}

// Get retrieves a value by key
func (s *Memory) Get(key string) ([]byte, bool) {
	sh := s.shardFor(key)

	sh.mu.RLock()
	e, exists := sh.data[key]
	if !exists || e.expiredAt(time.Now()) {
		sh.mu.RUnlock()
		return nil, false
	}
	result := append([]byte(nil), e.data...)
	sh.mu.RUnlock()

	return result, true
}

// Set stores a value with optional expiration. An expiry in the past
// removes the key, as SET with a non-positive TTL would never be issued.
func (s *Memory) Set(key string, value []byte, expiry *time.Time) error {
	e := &entry{data: append([]byte(nil), value...)}
	if expiry != nil {
		e.expiry = *expiry
	}

	sh := s.shardFor(key)
	sh.mu.Lock()
	if e.expiredAt(time.Now()) {
		delete(sh.data, key)
	} else {
		sh.data[key] = e
	}
	sh.mu.Unlock()

	s.writes.Add(1)
	return nil
}

// Del deletes one or more keys
func (s *Memory) Del(keys ...string) int64 {
	now := time.Now()
	deleted := int64(0)

	for _, key := range keys {
		sh := s.shardFor(key)
		sh.mu.Lock()
		if e, exists := sh.data[key]; exists {
			delete(sh.data, key)
			if !e.expiredAt(now) {
				deleted++
			}
		}
		sh.mu.Unlock()
	}

	return deleted
}

// Exists counts how many of the given keys exist
func (s *Memory) Exists(keys ...string) int64 {
	now := time.Now()
	count := int64(0)

	for _, key := range keys {
		sh := s.shardFor(key)
		sh.mu.RLock()
		if e, exists := sh.data[key]; exists && !e.expiredAt(now) {
			count++
		}
		sh.mu.RUnlock()
	}

	return count
}

// TTL returns the time to live for a key
func (s *Memory) TTL(key string) time.Duration {
	sh := s.shardFor(key)

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	now := time.Now()
	e, exists := sh.data[key]
	if !exists || e.expiredAt(now) {
		return -2 * time.Second
	}
	if e.expiry.IsZero() {
		return -1 * time.Second
	}
	return e.expiry.Sub(now)
}

// KeyCount returns the number of live keys
func (s *Memory) KeyCount() int64 {
	now := time.Now()
	count := int64(0)

	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for _, e := range sh.data {
			if !e.expiredAt(now) {
				count++
			}
		}
		sh.mu.RUnlock()
	}

	return count
}

// FlushAll removes every key
func (s *Memory) FlushAll() error {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		sh.data = make(map[string]*entry)
		sh.mu.Unlock()
	}
	return nil
}

// Info returns storage statistics
func (s *Memory) Info() map[string]interface{} {
	now := time.Now()
	var keys, expires, bytes int64

	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for key, e := range sh.data {
			if e.expiredAt(now) {
				continue
			}
			keys++
			if !e.expiry.IsZero() {
				expires++
			}
			bytes += int64(len(key) + len(e.data))
		}
		sh.mu.RUnlock()
	}

	return map[string]interface{}{
		"keys":         keys,
		"expires":      expires,
		"memory_usage": bytes,
		"writes":       s.writes.Load(),
		"expired_keys": s.expired.Load(),
		"shards":       len(s.shards),
	}
}

// Close stops the background sweep
func (s *Memory) Close() error {
	s.closeOnce.Do(func() {
		close(s.cleanupStop)
		<-s.cleanupDone
	})
	return nil
}

// cleanupExpiredKeys runs in background to clean up expired keys
func (s *Memory) cleanupExpiredKeys() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanup.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.cleanupStop:
			return
		case <-ticker.C:
			for i := range s.shards {
				s.cleanupShard(&s.shards[i])
			}
		}
	}
}

// cleanupShard samples keys in a shard and deletes the expired ones,
// repeating while the expired ratio stays above the threshold
func (s *Memory) cleanupShard(sh *shard) {
	for round := 0; round < s.cleanup.MaxRounds; round++ {
		now := time.Now()
		sampled, removed := 0, 0

		sh.mu.Lock()
		// map iteration order is randomized, which makes this a sample
		for key, e := range sh.data {
			if sampled == s.cleanup.SampleSize {
				break
			}
			sampled++
			if e.expiredAt(now) {
				delete(sh.data, key)
				removed++
			}
		}
		sh.mu.Unlock()

		s.expired.Add(int64(removed))
		if sampled == 0 || float64(removed)/float64(sampled) < s.cleanup.ExpiredThreshold {
			return
		}
	}
}
