package injection

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/raniellyferreira/redis-injector/stream"
	"github.com/raniellyferreira/redis-injector/target"
)

const (
	// DefaultRetryInterval is the pause before a failed pipeline is retried
	DefaultRetryInterval = 2 * time.Second
	// DefaultReconnectEvery is the number of batches between proactive
	// reconnects
	DefaultReconnectEvery = 100

	maxTTLSeconds = int64(math.MaxInt64 / int64(time.Second))
)

// WorkerConfig holds the settings shared by every worker of a pool
type WorkerConfig struct {
	RetryInterval time.Duration
	// ReconnectEvery reopens the connection after this many successful
	// batches. Zero disables it.
	ReconnectEvery int
	// ProgressEvery logs totals after this many batches. Zero disables it.
	ProgressEvery int
	// Now is the clock used for TTL computation
	Now func() time.Time
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.ReconnectEvery < 0 {
		c.ReconnectEvery = 0
	}
	if c.ProgressEvery < 0 {
		c.ProgressEvery = 0
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// WorkerStats are the running totals of one worker
type WorkerStats struct {
	ID               int
	Batches          int64
	Inserted         int64
	ExpiredOnArrival int64
	Retries          int64
	Reconnects       int64
}

// Worker owns one target connection and processes batches sequentially
type Worker struct {
	id       int
	dialer   target.Dialer
	conn     target.Conn
	cfg      WorkerConfig
	counters *Counters
	logger   Logger
	metrics  MetricsCollector

	stats WorkerStats
	ops   []target.Op
}

// NewWorker creates a worker. The connection is opened on first use.
func NewWorker(id int, dialer target.Dialer, counters *Counters, cfg WorkerConfig, logger Logger, metrics MetricsCollector) *Worker {
	if logger == nil {
		logger = nopLogger{}
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Worker{
		id:       id,
		dialer:   dialer,
		cfg:      cfg.withDefaults(),
		counters: counters,
		logger:   logger,
		metrics:  metrics,
		stats:    WorkerStats{ID: id},
	}
}

// Run processes batches until q is closed and drained. It returns nil at the
// end of the stream and ctx.Err() when cancelled.
func (w *Worker) Run(ctx context.Context, q *Queue) error {
	defer w.dropConn()

	for {
		batch, ok := q.Pop(ctx)
		if !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			w.logger.Debug("Worker finished", "worker", w.id, "batches", w.stats.Batches)
			return nil
		}
		if err := w.Process(ctx, batch); err != nil {
			return err
		}
	}
}

// Process writes one batch. Records whose expiry is not in the future are
// counted as expired on arrival and left out of the pipeline. The pipeline
// is retried until it succeeds, so the only error is ctx's.
func (w *Worker) Process(ctx context.Context, batch stream.Batch) error {
	now := w.cfg.Now().Unix()

	ops := w.ops[:0]
	var expired int64
	for _, rec := range batch {
		if rec.ExpireAt <= now {
			expired++
			continue
		}
		// capped so the Duration cannot overflow for far future timestamps
		ttl := min(rec.ExpireAt-now, maxTTLSeconds)
		ops = append(ops, target.Op{
			Key:   rec.Key,
			Value: rec.Value,
			TTL:   time.Duration(ttl) * time.Second,
		})
	}
	w.ops = ops

	start := time.Now()
	if len(ops) > 0 {
		if err := w.execute(ctx, ops); err != nil {
			return err
		}
	}
	inserted := int64(len(ops))

	w.stats.Batches++
	w.stats.Inserted += inserted
	w.stats.ExpiredOnArrival += expired
	w.counters.addBatch(inserted, expired)
	w.metrics.RecordBatch(inserted, expired, time.Since(start))

	if every := int64(w.cfg.ProgressEvery); every > 0 && w.stats.Batches%every == 0 {
		totals := w.counters.Snapshot()
		w.logger.Info("Batch injected",
			"worker", w.id,
			"batches", w.stats.Batches,
			"inserted", w.stats.Inserted,
			"expired_on_arrival", w.stats.ExpiredOnArrival,
			"total_inserted", totals.Inserted,
			"total_expired_on_arrival", totals.ExpiredOnArrival)
	}

	if every := int64(w.cfg.ReconnectEvery); every > 0 && w.stats.Batches%every == 0 {
		w.reconnect(ctx)
	}
	return nil
}

// Stats returns the worker totals. Call it after Run has returned.
func (w *Worker) Stats() WorkerStats {
	return w.stats
}

// execute sends ops, reopening the connection and retrying after every
// failure. Writes are full overwrites, so resending the same pipeline is
// safe.
func (w *Worker) execute(ctx context.Context, ops []target.Op) error {
	attempt := func() error {
		if w.conn == nil {
			conn, err := w.dialer.Dial(ctx)
			if err != nil {
				return fmt.Errorf("connect to %s: %w", w.dialer.Addr(), err)
			}
			w.conn = conn
		}
		if err := w.conn.Exec(ctx, ops); err != nil {
			w.dropConn()
			return err
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		w.stats.Retries++
		w.counters.retries.Add(1)
		w.metrics.RecordRetry()
		w.logger.Warn("Pipeline failed, reconnecting",
			"worker", w.id,
			"ops", len(ops),
			"retry_in", wait,
			"error", err)
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(w.cfg.RetryInterval), ctx)
	return backoff.RetryNotify(attempt, b, notify)
}

// reconnect replaces the connection. A failed dial leaves the worker
// without a connection and the next batch dials through the retry path.
func (w *Worker) reconnect(ctx context.Context) {
	w.dropConn()

	conn, err := w.dialer.Dial(ctx)
	if err != nil {
		w.logger.Warn("Periodic reconnect failed", "worker", w.id, "error", err)
		return
	}
	w.conn = conn
	w.stats.Reconnects++
	w.counters.reconnects.Add(1)
	w.metrics.RecordReconnection()
	w.logger.Debug("Periodic reconnect", "worker", w.id, "batches", w.stats.Batches)
}

func (w *Worker) dropConn() {
	if w.conn == nil {
		return
	}
	if err := w.conn.Close(); err != nil {
		w.logger.Debug("Close connection failed", "worker", w.id, "error", err)
	}
	w.conn = nil
}
