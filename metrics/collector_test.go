package metrics

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecords(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewCollector(registry)

	c.RecordBatch(5, 2, 10*time.Millisecond)
	c.RecordBatch(3, 0, 20*time.Millisecond)
	c.RecordLeftovers(4)
	c.RecordRetry()
	c.RecordRetry()
	c.RecordReconnection()
	c.RecordCommand("set")
	c.RecordCommand("set")
	c.RecordCommand("other")
	c.RecordOrphan()
	c.RecordQueueDepth(7)

	assert.Equal(t, 8.0, testutil.ToFloat64(c.records.WithLabelValues(OutcomeInserted)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.records.WithLabelValues(OutcomeExpiredOnArrival)))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.records.WithLabelValues(OutcomeWithoutTTL)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.batches))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.retries))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reconnects))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.commands.WithLabelValues("set")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.orphans))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.queueDepth))

	count, err := testutil.GatherAndCount(registry, "redis_injector_pipeline_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCollectorUnregistered(t *testing.T) {
	c := NewCollector(nil)
	c.RecordBatch(1, 0, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.batches))
}

func TestServe(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewCollector(registry)
	c.RecordRetry()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr, registry) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/metrics", addr))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.True(t, strings.Contains(body, "redis_injector_retries_total 1"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
