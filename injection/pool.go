package injection

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/raniellyferreira/redis-injector/target"
)

// DefaultWorkers is the default pool size
const DefaultWorkers = 50

// Pool runs workers over a shared queue
type Pool struct {
	workers []*Worker
	queue   *Queue
	group   *errgroup.Group
}

// NewPool creates size workers that will consume q
func NewPool(size int, q *Queue, dialer target.Dialer, counters *Counters, cfg WorkerConfig, logger Logger, metrics MetricsCollector) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size must be positive, got %d", size)
	}
	p := &Pool{
		workers: make([]*Worker, size),
		queue:   q,
	}
	for i := range p.workers {
		p.workers[i] = NewWorker(i, dialer, counters, cfg, logger, metrics)
	}
	return p, nil
}

// Start launches every worker
func (p *Pool) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		g.Go(func() error {
			return w.Run(gctx, p.queue)
		})
	}
	p.group = g
}

// Wait blocks until every worker has returned
func (p *Pool) Wait() error {
	if p.group == nil {
		return nil
	}
	return p.group.Wait()
}

// Size returns the number of workers
func (p *Pool) Size() int {
	return len(p.workers)
}

// Stats returns per-worker totals. Call it after Wait.
func (p *Pool) Stats() []WorkerStats {
	stats := make([]WorkerStats, len(p.workers))
	for i, w := range p.workers {
		stats[i] = w.Stats()
	}
	return stats
}
