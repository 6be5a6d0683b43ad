package redisinjector

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Field represents a structured log field
type Field struct {
	Key   string
	Value interface{}
}

// Logger interface for custom logging implementations
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Warn logs a warning with optional fields
	Warn(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// KVLogger is the logger shape used by the stream, injection and server
// packages: alternating key and value arguments after the message
type KVLogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// MetricsCollector interface for metrics collection
type MetricsCollector interface {
	// RecordBatch records a written batch and how long the pipeline took,
	// retries included
	RecordBatch(inserted, expired int64, duration time.Duration)

	// RecordRetry records a failed pipeline attempt
	RecordRetry()

	// RecordReconnection records a proactive worker reconnect
	RecordReconnection()

	// RecordLeftovers records keys written by the leftover flush
	RecordLeftovers(count int64)

	// RecordCommand records a decoded command by kind
	RecordCommand(kind string)

	// RecordOrphan records an EXPIREAT without a pending SET
	RecordOrphan()

	// RecordQueueDepth records the number of batches waiting for a worker
	RecordQueueDepth(depth int)
}

// slogLogger is the default Logger, writing text records through log/slog
type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger returns a Logger writing text records at level or above to w
func NewSlogLogger(w io.Writer, level slog.Level) Logger {
	if w == nil {
		w = os.Stderr
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return &slogLogger{l: slog.New(h)}
}

func (s *slogLogger) Debug(msg string, fields ...Field) {
	s.log(slog.LevelDebug, msg, fields)
}

func (s *slogLogger) Info(msg string, fields ...Field) {
	s.log(slog.LevelInfo, msg, fields)
}

func (s *slogLogger) Warn(msg string, fields ...Field) {
	s.log(slog.LevelWarn, msg, fields)
}

func (s *slogLogger) Error(msg string, fields ...Field) {
	s.log(slog.LevelError, msg, fields)
}

func (s *slogLogger) log(level slog.Level, msg string, fields []Field) {
	ctx := context.Background()
	if !s.l.Enabled(ctx, level) {
		return
	}
	attrs := make([]slog.Attr, len(fields))
	for i, f := range fields {
		if err, ok := f.Value.(error); ok {
			attrs[i] = slog.String(f.Key, err.Error())
			continue
		}
		attrs[i] = slog.Any(f.Key, f.Value)
	}
	s.l.LogAttrs(ctx, level, msg, attrs...)
}
