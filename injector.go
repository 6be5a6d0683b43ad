package redisinjector

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/raniellyferreira/redis-injector/injection"
	"github.com/raniellyferreira/redis-injector/stream"
	"github.com/raniellyferreira/redis-injector/target"
)

// Report summarizes a run
type Report struct {
	// Frames is the number of RESP frames read from the input
	Frames int64
	// Commands breaks the frames down by command and correlation outcome
	Commands stream.Stats

	Inserted         int64
	ExpiredOnArrival int64
	WithoutTTL       int64
	Retries          int64
	Reconnects       int64

	Workers []injection.WorkerStats
	// Leftovers is the number of keys written by the leftover flush
	Leftovers int
	Duration  time.Duration

	// TargetKeys is the live key count of a memory:// target, -1 otherwise
	TargetKeys int64
}

// Accounted is Inserted + ExpiredOnArrival + WithoutTTL. After a successful
// run it equals Commands.Sets.
func (r Report) Accounted() int64 {
	return r.Inserted + r.ExpiredOnArrival + r.WithoutTTL
}

// Batches is the number of batches the workers wrote
func (r Report) Batches() int64 {
	var n int64
	for _, w := range r.Workers {
		n += w.Batches
	}
	return n
}

// Injector replays one command stream into a target
type Injector struct {
	cfg    *config
	dialer target.Dialer
	kv     KVLogger
	used   atomic.Bool
}

// New creates an injector. A target is required, through WithTarget or
// WithDialer.
func New(opts ...Option) (*Injector, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	dialer := cfg.dialer
	if dialer == nil {
		if cfg.targetAddr == "" {
			return nil, ErrMissingTarget
		}
		d, err := target.New(cfg.targetAddr, target.Config{
			DialTimeout: cfg.dialTimeout,
			ExecTimeout: cfg.execTimeout,
		})
		if err != nil {
			return nil, &ConnectionError{Addr: cfg.targetAddr, Err: err}
		}
		dialer = d
	}

	return &Injector{
		cfg:    cfg,
		dialer: dialer,
		kv:     NewKVLogger(cfg.logger),
	}, nil
}

// Target returns the dialer writes go through
func (inj *Injector) Target() target.Dialer {
	return inj.dialer
}

// Run reads commands from r until the end of the stream, writes every
// correlated record through the worker pool, then flushes the leftovers.
// A truncated or malformed stream ends the input early without an error.
//
// On a read failure or a duplicate pending SET the workers are stopped,
// the leftover flush is skipped and the error is returned along with the
// partial report. An Injector runs once.
func (inj *Injector) Run(ctx context.Context, r io.Reader) (Report, error) {
	if !inj.used.CompareAndSwap(false, true) {
		return Report{}, ErrClosed
	}

	cfg := inj.cfg
	start := time.Now()
	metrics := &metricsAdapter{metrics: cfg.metrics}

	counters := &injection.Counters{}
	queue := injection.NewQueue(cfg.queueSize)
	pool, err := injection.NewPool(cfg.workers, queue, inj.dialer, counters, injection.WorkerConfig{
		RetryInterval:  cfg.retryInterval,
		ReconnectEvery: cfg.reconnectEvery,
		ProgressEvery:  cfg.progressEvery,
		Now:            cfg.now,
	}, inj.kv, metrics)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	cfg.logger.Info("Injection started",
		Field{Key: "target", Value: inj.dialer.Addr()},
		Field{Key: "workers", Value: cfg.workers},
		Field{Key: "batch_size", Value: cfg.batchSize},
		Field{Key: "queue_size", Value: cfg.queueSize},
		Field{Key: "leftover_policy", Value: cfg.leftoverPolicy.String()})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	pool.Start(runCtx)

	decoder := stream.NewDecoder(r, inj.kv)
	correlator := stream.NewCorrelator(inj.kv)
	if cfg.keyFilter != nil {
		correlator.SetFilter(cfg.keyFilter)
	}

	produceErr := inj.produce(runCtx, decoder, correlator, queue)
	queue.Close()
	if produceErr != nil {
		cancel()
	}
	poolErr := pool.Wait()

	report := Report{
		Frames:     decoder.Frames(),
		Commands:   correlator.Stats(),
		Workers:    pool.Stats(),
		TargetKeys: -1,
	}
	finish := func() {
		totals := counters.Snapshot()
		report.Inserted = totals.Inserted
		report.ExpiredOnArrival = totals.ExpiredOnArrival
		report.WithoutTTL = totals.WithoutTTL
		report.Retries = totals.Retries
		report.Reconnects = totals.Reconnects
		report.Duration = time.Since(start)
		if mem, ok := inj.dialer.(*target.Memory); ok {
			report.TargetKeys = mem.Store().KeyCount()
		}
	}

	if produceErr != nil {
		finish()
		cfg.logger.Error("Injection aborted", Field{Key: "error", Value: produceErr})
		return report, produceErr
	}
	if poolErr != nil {
		finish()
		return report, poolErr
	}

	leftovers := correlator.Leftovers()
	report.Leftovers = len(leftovers)
	if err := injection.FlushLeftovers(ctx, inj.dialer, leftovers, cfg.leftoverPolicy, cfg.leftoverTTL, counters, metrics); err != nil {
		finish()
		return report, &FlushError{Entries: len(leftovers), Err: err}
	}
	if len(leftovers) > 0 {
		cfg.logger.Info("Leftovers flushed",
			Field{Key: "keys", Value: len(leftovers)},
			Field{Key: "policy", Value: cfg.leftoverPolicy.String()})
	}

	finish()
	cfg.logger.Info("Injection complete",
		Field{Key: "frames", Value: report.Frames},
		Field{Key: "sets", Value: report.Commands.Sets},
		Field{Key: "inserted", Value: report.Inserted},
		Field{Key: "expired_on_arrival", Value: report.ExpiredOnArrival},
		Field{Key: "without_ttl", Value: report.WithoutTTL},
		Field{Key: "orphans", Value: report.Commands.Orphans},
		Field{Key: "retries", Value: report.Retries},
		Field{Key: "duration", Value: report.Duration})
	return report, nil
}

// produce runs decoding, correlation and batching on the calling goroutine
func (inj *Injector) produce(ctx context.Context, decoder *stream.Decoder, correlator *stream.Correlator, queue *injection.Queue) error {
	metrics := inj.cfg.metrics
	batcher := stream.NewBatcher(inj.cfg.batchSize)

	push := func(batch stream.Batch) error {
		if err := queue.Push(ctx, batch); err != nil {
			return err
		}
		metrics.RecordQueueDepth(queue.Len())
		return nil
	}

	for {
		cmd, err := decoder.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		metrics.RecordCommand(strings.ToLower(cmd.Kind.String()))

		var orphans int64
		if cmd.Kind == stream.KindExpireAt {
			orphans = correlator.Stats().Orphans
		}

		rec, ok, err := correlator.Apply(cmd)
		if err != nil {
			return err
		}
		if !ok {
			if cmd.Kind == stream.KindExpireAt && correlator.Stats().Orphans > orphans {
				metrics.RecordOrphan()
			}
			continue
		}

		if batch, full := batcher.Add(rec); full {
			if err := push(batch); err != nil {
				return err
			}
		}
	}

	if batch, ok := batcher.Flush(); ok {
		return push(batch)
	}
	return nil
}
