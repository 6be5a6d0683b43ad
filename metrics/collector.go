package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "redis_injector"

// Label constants for metrics.
const (
	LabelOutcome = "outcome"
	LabelKind    = "kind"
)

// Outcome label values for records.
const (
	OutcomeInserted         = "inserted"
	OutcomeExpiredOnArrival = "expired_on_arrival"
	OutcomeWithoutTTL       = "without_ttl"
)

// Collector implements the injector's MetricsCollector on Prometheus
type Collector struct {
	records     *prometheus.CounterVec
	commands    *prometheus.CounterVec
	batches     prometheus.Counter
	retries     prometheus.Counter
	reconnects  prometheus.Counter
	orphans     prometheus.Counter
	queueDepth  prometheus.Gauge
	pipelineDur prometheus.Histogram
}

// NewCollector creates the metrics and registers them with registry.
// A nil registry leaves them unregistered.
func NewCollector(registry prometheus.Registerer) *Collector {
	c := &Collector{
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_total",
				Help:      "Correlated records by final outcome",
			},
			[]string{LabelOutcome},
		),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Decoded stream commands by kind",
			},
			[]string{LabelKind},
		),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Batches written by workers",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Failed pipeline attempts that were retried",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Proactive worker reconnections",
		}),
		orphans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphan_expires_total",
			Help:      "EXPIREAT commands without a pending SET",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Batches waiting for a worker",
		}),
		pipelineDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Time to write one batch, retries included",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
	}

	if registry != nil {
		registry.MustRegister(
			c.records,
			c.commands,
			c.batches,
			c.retries,
			c.reconnects,
			c.orphans,
			c.queueDepth,
			c.pipelineDur,
		)
	}
	return c
}

// RecordBatch records one written batch
func (c *Collector) RecordBatch(inserted, expired int64, duration time.Duration) {
	c.batches.Inc()
	c.records.WithLabelValues(OutcomeInserted).Add(float64(inserted))
	c.records.WithLabelValues(OutcomeExpiredOnArrival).Add(float64(expired))
	c.pipelineDur.Observe(duration.Seconds())
}

// RecordRetry records a failed pipeline attempt
func (c *Collector) RecordRetry() {
	c.retries.Inc()
}

// RecordReconnection records a proactive reconnect
func (c *Collector) RecordReconnection() {
	c.reconnects.Inc()
}

// RecordLeftovers records keys written by the leftover flush
func (c *Collector) RecordLeftovers(count int64) {
	c.records.WithLabelValues(OutcomeWithoutTTL).Add(float64(count))
}

// RecordCommand records one decoded command
func (c *Collector) RecordCommand(kind string) {
	c.commands.WithLabelValues(kind).Inc()
}

// RecordOrphan records an orphan EXPIREAT
func (c *Collector) RecordOrphan() {
	c.orphans.Inc()
}

// RecordQueueDepth records the number of queued batches
func (c *Collector) RecordQueueDepth(depth int) {
	c.queueDepth.Set(float64(depth))
}

// Serve exposes gatherer on addr at /metrics until ctx is done
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
