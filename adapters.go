package redisinjector

import (
	"time"
)

// loggerAdapter adapts our Logger interface to the key/value loggers of the
// stream, injection and server packages
type loggerAdapter struct {
	logger Logger
}

func (la *loggerAdapter) Debug(msg string, fields ...interface{}) {
	la.logger.Debug(msg, convertFields(fields...)...)
}

func (la *loggerAdapter) Info(msg string, fields ...interface{}) {
	la.logger.Info(msg, convertFields(fields...)...)
}

func (la *loggerAdapter) Warn(msg string, fields ...interface{}) {
	la.logger.Warn(msg, convertFields(fields...)...)
}

func (la *loggerAdapter) Error(msg string, fields ...interface{}) {
	la.logger.Error(msg, convertFields(fields...)...)
}

func convertFields(fields ...interface{}) []Field {
	result := make([]Field, 0, len(fields)/2)
	for i := 0; i < len(fields)-1; i += 2 {
		if key, ok := fields[i].(string); ok {
			result = append(result, Field{
				Key:   key,
				Value: fields[i+1],
			})
		}
	}
	return result
}

// NewKVLogger exposes logger to packages that log with key/value pairs
func NewKVLogger(logger Logger) KVLogger {
	return &loggerAdapter{logger: logger}
}

// metricsAdapter adapts our MetricsCollector to injection.MetricsCollector
type metricsAdapter struct {
	metrics MetricsCollector
}

func (ma *metricsAdapter) RecordBatch(inserted, expired int64, duration time.Duration) {
	ma.metrics.RecordBatch(inserted, expired, duration)
}

func (ma *metricsAdapter) RecordRetry() {
	ma.metrics.RecordRetry()
}

func (ma *metricsAdapter) RecordReconnection() {
	ma.metrics.RecordReconnection()
}

func (ma *metricsAdapter) RecordLeftovers(count int64) {
	ma.metrics.RecordLeftovers(count)
}

// nopMetrics is used when no collector is configured
type nopMetrics struct{}

func (nopMetrics) RecordBatch(int64, int64, time.Duration) {}
func (nopMetrics) RecordRetry()                            {}
func (nopMetrics) RecordReconnection()                     {}
func (nopMetrics) RecordLeftovers(int64)                   {}
func (nopMetrics) RecordCommand(string)                    {}
func (nopMetrics) RecordOrphan()                           {}
func (nopMetrics) RecordQueueDepth(int)                    {}
