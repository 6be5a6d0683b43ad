package storage

import "time"

// Storage defines the operations the injector targets and the sink server
// need from a key/value store
type Storage interface {
	// String operations
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, expiry *time.Time) error
	Del(keys ...string) int64
	Exists(keys ...string) int64

	// Expiration operations. TTL returns -2s for a missing key and -1s for
	// a key without expiry, mirroring the Redis reply convention.
	TTL(key string) time.Duration

	// Key operations
	KeyCount() int64
	FlushAll() error

	// Info and stats
	Info() map[string]interface{}

	// Shutdown
	Close() error
}

// CleanupConfig holds configuration for the background expiry sweep
type CleanupConfig struct {
	// Interval between sweeps
	Interval time.Duration
	// SampleSize is the number of keys examined per shard per round
	SampleSize int
	// MaxRounds bounds the rounds spent on a shard in one sweep
	MaxRounds int
	// ExpiredThreshold continues sweeping a shard while this fraction of
	// sampled keys was expired
	ExpiredThreshold float64
}

// CleanupConfigDefault is similar to the Redis active expiry cycle
var CleanupConfigDefault = CleanupConfig{
	Interval:         time.Second,
	SampleSize:       20,
	MaxRounds:        4,
	ExpiredThreshold: 0.25,
}
