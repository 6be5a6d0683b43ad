package redisinjector

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raniellyferreira/redis-injector/injection"
	"github.com/raniellyferreira/redis-injector/metrics"
	"github.com/raniellyferreira/redis-injector/server"
	"github.com/raniellyferreira/redis-injector/storage"
)

func startSink(t *testing.T, opts ...server.Option) (*server.Server, storage.Storage) {
	t.Helper()
	store := storage.NewMemory()
	srv := server.NewServer("127.0.0.1:0", store, opts...)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		srv.Stop()
		store.Close()
	})
	return srv, store
}

func TestEndToEndRedisTarget(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end test in short mode")
	}

	srv, store := startSink(t, server.WithPassword("s3cret"))

	var logs bytes.Buffer
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	now := time.Now()
	inj, err := New(
		WithTarget(fmt.Sprintf("redis://:s3cret@%s/0", srv.Addr())),
		WithTimeouts(time.Second, time.Second),
		WithWorkers(4),
		WithBatchSize(10),
		WithReconnectEvery(3),
		WithLogger(NewSlogLogger(&logs, slog.LevelDebug)),
		WithMetrics(collector),
		WithLeftoverPolicy(injection.LeftoverDefaultTTL, 10*time.Minute),
		clockAt(now),
	)
	require.NoError(t, err)

	s := newStream(t)
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("session:%03d", i)
		s.set(key, strings.Repeat("x", i))
		if i%10 != 0 {
			s.expireAt(key, now.Unix()+600)
		}
	}
	s.cmd("PING")

	report, err := inj.Run(context.Background(), s.reader())
	require.NoError(t, err)

	assert.Equal(t, int64(100), report.Commands.Sets)
	assert.Equal(t, int64(90), report.Inserted)
	assert.Equal(t, int64(10), report.WithoutTTL)
	assert.Equal(t, 10, report.Leftovers)
	assert.Equal(t, int64(9), report.Batches())
	assert.Equal(t, int64(-1), report.TargetKeys)
	assert.Equal(t, int64(100), store.KeyCount())

	client := redis.NewClient(&redis.Options{Addr: srv.Addr(), Password: "s3cret", Protocol: 2, DisableIdentity: true})
	defer client.Close()
	ctx := context.Background()

	v, err := client.Get(ctx, "session:005").Result()
	require.NoError(t, err)
	assert.Equal(t, "xxxxx", v)

	ttl, err := client.TTL(ctx, "session:005").Result()
	require.NoError(t, err)
	assert.InDelta(t, 600, ttl.Seconds(), 2)

	ttl, err = client.TTL(ctx, "session:010").Result()
	require.NoError(t, err)
	assert.InDelta(t, 600, ttl.Seconds(), 2, "leftovers get the default ttl")

	expected := `
# HELP redis_injector_records_total Correlated records by final outcome
# TYPE redis_injector_records_total counter
redis_injector_records_total{outcome="expired_on_arrival"} 0
redis_injector_records_total{outcome="inserted"} 90
redis_injector_records_total{outcome="without_ttl"} 10
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "redis_injector_records_total"))
	assert.Contains(t, logs.String(), "Injection complete")
}

func TestEndToEndUnreachableTargetRetries(t *testing.T) {
	srv, _ := startSink(t)
	addr := srv.Addr()
	require.NoError(t, srv.Stop())

	inj, err := New(
		WithTarget(addr),
		WithTimeouts(100*time.Millisecond, 100*time.Millisecond),
		WithWorkers(1),
		WithRetryInterval(10*time.Millisecond),
		WithLogger(&recordingLogger{}),
		clockAt(time.Now()),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	input := newStream(t).set("a", "1").expireAt("a", time.Now().Unix()+60).reader()
	report, err := inj.Run(ctx, input)
	require.Error(t, err)
	assert.Positive(t, report.Retries)
	assert.Zero(t, report.Inserted)
}
