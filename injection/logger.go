package injection

import "time"

// Logger interface for injection logging
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// MetricsCollector receives worker events
type MetricsCollector interface {
	RecordBatch(inserted, expired int64, duration time.Duration)
	RecordRetry()
	RecordReconnection()
	RecordLeftovers(count int64)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type nopMetrics struct{}

func (nopMetrics) RecordBatch(int64, int64, time.Duration) {}
func (nopMetrics) RecordRetry()                            {}
func (nopMetrics) RecordReconnection()                     {}
func (nopMetrics) RecordLeftovers(int64)                   {}
