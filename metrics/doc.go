// Package metrics exports injector progress as Prometheus metrics.
package metrics
