package redisinjector

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/raniellyferreira/redis-injector/injection"
	"github.com/raniellyferreira/redis-injector/stream"
	"github.com/raniellyferreira/redis-injector/target"
)

// config holds the configuration for an Injector
type config struct {
	// Target connection settings
	targetAddr  string
	dialer      target.Dialer
	dialTimeout time.Duration
	execTimeout time.Duration

	// Pipeline sizing
	workers   int
	batchSize int
	queueSize int

	// Worker behavior
	retryInterval  time.Duration
	reconnectEvery int
	progressEvery  int

	// Leftovers
	leftoverPolicy injection.LeftoverPolicy
	leftoverTTL    time.Duration

	keyFilter stream.KeyFilter

	// Observability
	logger  Logger
	metrics MetricsCollector

	now func() time.Time
}

// defaultConfig returns a configuration with sensible defaults
func defaultConfig() *config {
	return &config{
		dialTimeout:    5 * time.Second,
		execTimeout:    30 * time.Second,
		workers:        injection.DefaultWorkers,
		batchSize:      200,
		queueSize:      injection.DefaultQueueSize,
		retryInterval:  injection.DefaultRetryInterval,
		reconnectEvery: injection.DefaultReconnectEvery,
		progressEvery:  1,
		leftoverPolicy: injection.LeftoverPersist,
		logger:         NewSlogLogger(nil, slog.LevelInfo),
		metrics:        nopMetrics{},
		now:            time.Now,
	}
}

// Option represents a configuration option for an Injector
type Option func(*config) error

// WithTarget sets the target store address: host:port, a redis:// or
// rediss:// URL, or "memory://" for an in-process store
//
// Example:
//
//	WithTarget("localhost:6379")
//	WithTarget("redis://:secret@cache.internal:6379/2")
func WithTarget(addr string) Option {
	return func(c *config) error {
		if addr == "" {
			return &ConnectionError{Addr: addr, Err: ErrMissingTarget}
		}
		c.targetAddr = addr
		return nil
	}
}

// WithDialer supplies the target connection factory directly, overriding
// WithTarget
func WithDialer(dialer target.Dialer) Option {
	return func(c *config) error {
		if dialer == nil {
			return fmt.Errorf("%w: nil dialer", ErrInvalidConfig)
		}
		c.dialer = dialer
		return nil
	}
}

// WithWorkers sets the number of concurrent target connections
//
// Example:
//
//	WithWorkers(64)
func WithWorkers(n int) Option {
	return func(c *config) error {
		if n < 1 {
			return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, n)
		}
		c.workers = n
		return nil
	}
}

// WithBatchSize sets the number of records per pipeline
func WithBatchSize(n int) Option {
	return func(c *config) error {
		if n < 1 {
			return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, n)
		}
		c.batchSize = n
		return nil
	}
}

// WithQueueSize sets how many batches may wait for a worker before the
// reader blocks
func WithQueueSize(n int) Option {
	return func(c *config) error {
		if n < 1 {
			return fmt.Errorf("%w: queue size must be positive, got %d", ErrInvalidConfig, n)
		}
		c.queueSize = n
		return nil
	}
}

// WithRetryInterval sets the pause before a failed pipeline is retried on a
// new connection
func WithRetryInterval(d time.Duration) Option {
	return func(c *config) error {
		if d <= 0 {
			return fmt.Errorf("%w: retry interval must be positive", ErrInvalidConfig)
		}
		c.retryInterval = d
		return nil
	}
}

// WithReconnectEvery makes each worker reopen its connection after n
// batches. Zero disables proactive reconnects.
func WithReconnectEvery(n int) Option {
	return func(c *config) error {
		if n < 0 {
			return fmt.Errorf("%w: reconnect interval must not be negative", ErrInvalidConfig)
		}
		c.reconnectEvery = n
		return nil
	}
}

// WithProgressEvery logs worker totals every n batches. Zero disables
// progress lines.
func WithProgressEvery(n int) Option {
	return func(c *config) error {
		if n < 0 {
			return fmt.Errorf("%w: progress interval must not be negative", ErrInvalidConfig)
		}
		c.progressEvery = n
		return nil
	}
}

// WithTimeouts sets the dial and per-pipeline timeouts
//
// Example:
//
//	WithTimeouts(2*time.Second, time.Minute)
func WithTimeouts(dial, exec time.Duration) Option {
	return func(c *config) error {
		if dial <= 0 || exec <= 0 {
			return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
		}
		c.dialTimeout = dial
		c.execTimeout = exec
		return nil
	}
}

// WithLeftoverPolicy chooses how keys that never saw an EXPIREAT are
// written. ttl is required for LeftoverDefaultTTL and ignored otherwise.
//
// Example:
//
//	WithLeftoverPolicy(injection.LeftoverPersist, 0)
//	WithLeftoverPolicy(injection.LeftoverDefaultTTL, 24*time.Hour)
func WithLeftoverPolicy(policy injection.LeftoverPolicy, ttl time.Duration) Option {
	return func(c *config) error {
		switch policy {
		case injection.LeftoverPersist:
		case injection.LeftoverDefaultTTL:
			if ttl < time.Second {
				return fmt.Errorf("%w: leftover TTL must be at least 1s, got %s", ErrInvalidConfig, ttl)
			}
		default:
			return fmt.Errorf("%w: unknown leftover policy %d", ErrInvalidConfig, policy)
		}
		c.leftoverPolicy = policy
		c.leftoverTTL = ttl
		return nil
	}
}

// WithKeyFilter drops every SET whose key the filter rejects
//
// Example:
//
//	f, _ := lua.NewFilter(`function keep(k) return k:sub(1, 5) == "user:" end`)
//	WithKeyFilter(f)
func WithKeyFilter(filter stream.KeyFilter) Option {
	return func(c *config) error {
		c.keyFilter = filter
		return nil
	}
}

// WithLogger sets a custom logger for the injector
func WithLogger(logger Logger) Option {
	return func(c *config) error {
		if logger == nil {
			return ErrInvalidConfig
		}
		c.logger = logger
		return nil
	}
}

// WithMetrics enables metrics collection with the provided collector
func WithMetrics(collector MetricsCollector) Option {
	return func(c *config) error {
		if collector == nil {
			collector = nopMetrics{}
		}
		c.metrics = collector
		return nil
	}
}

// withClock overrides the clock used for TTL computation in tests
func withClock(now func() time.Time) Option {
	return func(c *config) error {
		c.now = now
		return nil
	}
}
