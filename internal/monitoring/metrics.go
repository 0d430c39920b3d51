// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - requests/successes:   Total and successful request counts
//   - admission_rejected:   Requests turned away by admission control
//   - fetch_retries:        Upstream attempts beyond the first
//   - streams/stream_timeouts: Streaming sessions opened and timed out
//   - records_normalized:   Delta records rewritten before forwarding
//
// For production, export these to Prometheus or similar.
package monitoring

import (
	"sync/atomic"
	"time"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	startedAt time.Time

	requests          atomic.Int64
	successes         atomic.Int64
	admissionRejected atomic.Int64

	fetchRetries atomic.Int64

	streams           atomic.Int64
	streamTimeouts    atomic.Int64
	recordsNormalized atomic.Int64

	modelsCacheHits   atomic.Int64
	modelsCacheMisses atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		startedAt: time.Now(),
	}
}

// RecordRequest records a request.
func (mc *MetricsCollector) RecordRequest(success bool) {
	mc.requests.Add(1)
	if success {
		mc.successes.Add(1)
	}
}

// RecordAdmissionRejected records a request rejected by admission control.
func (mc *MetricsCollector) RecordAdmissionRejected() { mc.admissionRejected.Add(1) }

// RecordFetchRetries records upstream attempts beyond the first.
func (mc *MetricsCollector) RecordFetchRetries(attempts int) {
	if attempts > 1 {
		mc.fetchRetries.Add(int64(attempts - 1))
	}
}

// RecordStream records an opened streaming session.
func (mc *MetricsCollector) RecordStream() { mc.streams.Add(1) }

// RecordStreamTimeout records a streaming session ended by the idle timeout.
func (mc *MetricsCollector) RecordStreamTimeout() { mc.streamTimeouts.Add(1) }

// RecordRecordsNormalized records delta records rewritten in a session.
func (mc *MetricsCollector) RecordRecordsNormalized(n int) {
	mc.recordsNormalized.Add(int64(n))
}

// RecordModelsCacheHit records a model-list cache hit.
func (mc *MetricsCollector) RecordModelsCacheHit() { mc.modelsCacheHits.Add(1) }

// RecordModelsCacheMiss records a model-list cache miss.
func (mc *MetricsCollector) RecordModelsCacheMiss() { mc.modelsCacheMisses.Add(1) }

// StartedAt returns when the metrics collector was created.
func (mc *MetricsCollector) StartedAt() time.Time { return mc.startedAt }

// Stats returns current metrics as a flat map.
func (mc *MetricsCollector) Stats() map[string]int64 {
	return map[string]int64{
		"requests":            mc.requests.Load(),
		"successes":           mc.successes.Load(),
		"admission_rejected":  mc.admissionRejected.Load(),
		"fetch_retries":       mc.fetchRetries.Load(),
		"streams":             mc.streams.Load(),
		"stream_timeouts":     mc.streamTimeouts.Load(),
		"records_normalized":  mc.recordsNormalized.Load(),
		"models_cache_hits":   mc.modelsCacheHits.Load(),
		"models_cache_misses": mc.modelsCacheMisses.Load(),
	}
}
