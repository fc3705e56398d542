// Package metrics implements MetricsRegistry: the counters, histograms
// and gauges the pipeline exposes, plus an in-process summary used by
// the broadcast hub and admin endpoints. Grounded on the teacher's
// internal/transport/http/middleware (promauto counters/histograms
// registered at package scope) and the original's
// backend/src/monitoring/metrics.py (bounded-sample percentile
// computation, periodic throughput/uptime gauge updates).
//
// Unlike the teacher, which registers its promauto metrics against the
// global default registry (fine for a single process-wide middleware),
// this Registry takes its own *prometheus.Registry so that more than one
// instance can coexist in tests without a duplicate-registration panic.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// reservoirCapacity bounds the number of latency samples retained for
// percentile computation; older samples are evicted once full.
const reservoirCapacity = 10_000

// Targets echoes the static configuration the summary reports back
// alongside live numbers.
type Targets struct {
	ThroughputTarget   int
	LatencyTargetP95Ms int
}

// Summary is the on-demand snapshot returned by Registry.Summary and
// broadcast periodically by the broadcast hub.
type Summary struct {
	EventsPerSecond    float64 `json:"events_per_second"`
	AvgLatencyMs       float64 `json:"avg_latency"`
	P95LatencyMs       float64 `json:"p95_latency"`
	P99LatencyMs       float64 `json:"p99_latency"`
	Anomalies          int64   `json:"anomalies"`
	UptimeSeconds      float64 `json:"uptime"`
	ThroughputTarget   int     `json:"throughput_target"`
	LatencyTargetP95Ms int     `json:"latency_target"`
	ActiveConnections  int64   `json:"active_connections"`
}

// reservoir is a fixed-capacity ring buffer of float64 samples, safe for
// concurrent append from many workers and concurrent percentile reads
// from the metrics updater / summary callers.
type reservoir struct {
	mu     sync.Mutex
	values []float64
	head   int
	filled bool
}

func newReservoir(capacity int) *reservoir {
	return &reservoir{values: make([]float64, capacity)}
}

func (r *reservoir) add(v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[r.head] = v
	r.head = (r.head + 1) % len(r.values)
	if r.head == 0 {
		r.filled = true
	}
}

func (r *reservoir) percentile(p float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.head
	if r.filled {
		n = len(r.values)
	}
	if n == 0 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, r.values[:n])
	sort.Float64s(sorted)

	idx := int(p/100*float64(n)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

// Registry collects counters, histograms and gauges and computes the
// on-demand summary.
type Registry struct {
	targets   Targets
	startTime time.Time

	eventsIngested    prometheus.Counter
	eventsProcessed   prometheus.Counter
	anomaliesDetected prometheus.Counter
	dlqPromotions     prometheus.Counter

	ingestionLatency  prometheus.Histogram
	processingLatency prometheus.Histogram

	throughputGauge        prometheus.Gauge
	latencyP95Gauge        prometheus.Gauge
	uptimeGauge            prometheus.Gauge
	activeConnectionsGauge prometheus.Gauge

	processingReservoir *reservoir

	anomalyCount      int64
	activeConnections int64

	succeededTotal int64
	failedTotal    int64
	dlqTotal       int64

	lastThroughputAt      time.Time
	lastProcessedForDelta int64
	processedTotal        int64
}

// New constructs a Registry, registering its Prometheus collectors
// against reg.
func New(reg *prometheus.Registry, targets Targets) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		targets:   targets,
		startTime: time.Now(),

		eventsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "streampulse_events_ingested_total",
			Help: "Total events ingested.",
		}),
		eventsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "streampulse_events_processed_total",
			Help: "Total events processed.",
		}),
		anomaliesDetected: factory.NewCounter(prometheus.CounterOpts{
			Name: "streampulse_anomalies_detected_total",
			Help: "Total anomalies detected.",
		}),
		dlqPromotions: factory.NewCounter(prometheus.CounterOpts{
			Name: "streampulse_dlq_promotions_total",
			Help: "Total events promoted to the dead-letter log.",
		}),
		ingestionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "streampulse_ingestion_latency_seconds",
			Help:    "Event ingestion latency.",
			Buckets: prometheus.DefBuckets,
		}),
		processingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "streampulse_processing_latency_seconds",
			Help:    "Event processing latency.",
			Buckets: prometheus.DefBuckets,
		}),
		throughputGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "streampulse_throughput_events_per_second",
			Help: "Current throughput (events/sec).",
		}),
		latencyP95Gauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "streampulse_latency_p95_ms",
			Help: "95th percentile processing latency (ms).",
		}),
		uptimeGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "streampulse_uptime_seconds",
			Help: "Process uptime.",
		}),
		activeConnectionsGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "streampulse_active_connections",
			Help: "Active broadcast subscriber connections.",
		}),

		processingReservoir: newReservoir(reservoirCapacity),
	}
}

// RecordIngestionStart returns a start timestamp for a later call to
// RecordIngestionEnd.
func (r *Registry) RecordIngestionStart() time.Time {
	return time.Now()
}

// RecordIngestionEnd observes ingestion latency and increments the
// ingested-events counter by count.
func (r *Registry) RecordIngestionEnd(start time.Time, count int) {
	r.ingestionLatency.Observe(time.Since(start).Seconds())
	r.eventsIngested.Add(float64(count))
}

// RecordProcessingStart returns a start timestamp for a later call to
// RecordProcessingEnd.
func (r *Registry) RecordProcessingStart() time.Time {
	return time.Now()
}

// RecordProcessingEnd observes processing latency whether or not
// processing succeeded, increments the processed counter, and — when
// anomalyDetected is true — the anomaly counter.
func (r *Registry) RecordProcessingEnd(start time.Time, anomalyDetected bool) {
	d := time.Since(start)
	r.processingLatency.Observe(d.Seconds())
	r.processingReservoir.add(float64(d.Milliseconds()))
	r.eventsProcessed.Inc()
	atomic.AddInt64(&r.processedTotal, 1)

	if anomalyDetected {
		r.anomaliesDetected.Inc()
		atomic.AddInt64(&r.anomalyCount, 1)
	}
}

// RecordDLQPromotion increments the DLQ promotion counter.
func (r *Registry) RecordDLQPromotion() {
	r.dlqPromotions.Inc()
	atomic.AddInt64(&r.dlqTotal, 1)
}

// RecordWorkerSuccess marks one event as having landed in the processed
// log, for the worker_stats success_rate computation.
func (r *Registry) RecordWorkerSuccess() {
	atomic.AddInt64(&r.succeededTotal, 1)
}

// RecordWorkerFailure marks one event as having failed processing and
// been handed off to the retry/DLQ pipeline, for worker_stats.
func (r *Registry) RecordWorkerFailure() {
	atomic.AddInt64(&r.failedTotal, 1)
}

// WorkerStats reports the counters behind the worker_stats admin
// endpoint: processed and failed event counts, the number of DLQ
// promotions recorded by this process (a cumulative count, not lowered
// when an admin retry removes an entry from the DLQ), and the success
// rate over all attempts observed so far.
func (r *Registry) WorkerStats() (processed, failed, dlq int64, successRate float64) {
	processed = atomic.LoadInt64(&r.succeededTotal)
	failed = atomic.LoadInt64(&r.failedTotal)
	dlq = atomic.LoadInt64(&r.dlqTotal)

	total := processed + failed
	if total == 0 {
		return processed, failed, dlq, 1.0
	}
	return processed, failed, dlq, float64(processed) / float64(total)
}

// UpdateThroughput is called periodically by the app's metrics updater
// task and computes the processed-event delta over the last interval; on
// the very first call the delta is zero since there is no prior sample.
func (r *Registry) UpdateThroughput() float64 {
	now := time.Now()
	processed := atomic.LoadInt64(&r.processedTotal)

	var throughput float64
	if !r.lastThroughputAt.IsZero() {
		elapsed := now.Sub(r.lastThroughputAt).Seconds()
		if elapsed > 0 {
			throughput = float64(processed-r.lastProcessedForDelta) / elapsed
		}
	}

	r.lastThroughputAt = now
	r.lastProcessedForDelta = processed
	r.throughputGauge.Set(throughput)
	return throughput
}

// UpdateLatencyP95 recomputes the P95 processing-latency gauge from the
// bounded reservoir.
func (r *Registry) UpdateLatencyP95() {
	r.latencyP95Gauge.Set(r.processingReservoir.percentile(95))
}

// UpdateUptime refreshes the uptime gauge.
func (r *Registry) UpdateUptime() {
	r.uptimeGauge.Set(time.Since(r.startTime).Seconds())
}

// SetActiveConnections updates the active-connections gauge and internal
// counter the summary reports.
func (r *Registry) SetActiveConnections(n int) {
	atomic.StoreInt64(&r.activeConnections, int64(n))
	r.activeConnectionsGauge.Set(float64(n))
}

// Summary computes the on-demand snapshot. events_per_second is
// processed-count divided by uptime, floored at 1 second to avoid a
// startup division spike.
func (r *Registry) Summary() Summary {
	uptime := time.Since(r.startTime).Seconds()
	denom := uptime
	if denom < 1 {
		denom = 1
	}

	processed := atomic.LoadInt64(&r.processedTotal)

	return Summary{
		EventsPerSecond:    float64(processed) / denom,
		AvgLatencyMs:       r.processingReservoir.percentile(50),
		P95LatencyMs:       r.processingReservoir.percentile(95),
		P99LatencyMs:       r.processingReservoir.percentile(99),
		Anomalies:          atomic.LoadInt64(&r.anomalyCount),
		UptimeSeconds:      uptime,
		ThroughputTarget:   r.targets.ThroughputTarget,
		LatencyTargetP95Ms: r.targets.LatencyTargetP95Ms,
		ActiveConnections:  atomic.LoadInt64(&r.activeConnections),
	}
}

// ThroughputBelowTarget reports whether current is under 80% of the
// configured throughput target, the trigger for a throughput_warning
// broadcast.
func (r *Registry) ThroughputBelowTarget(current float64) (below bool, threshold, ratio float64) {
	target := float64(r.targets.ThroughputTarget)
	if target <= 0 {
		return false, 0, 0
	}
	threshold = target * 0.8
	ratio = current / target
	return current < threshold, threshold, ratio
}
