package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(prometheus.NewRegistry(), Targets{ThroughputTarget: 100, LatencyTargetP95Ms: 50})
}

func TestRegistry_SummaryReflectsProcessedEvents(t *testing.T) {
	r := newTestRegistry(t)

	start := r.RecordProcessingStart()
	r.RecordProcessingEnd(start, false)
	r.RecordProcessingEnd(start, true)

	summary := r.Summary()
	require.EqualValues(t, 1, summary.Anomalies)
	assert.EqualValues(t, 100, summary.ThroughputTarget)
	assert.EqualValues(t, 50, summary.LatencyTargetP95Ms)
}

func TestRegistry_PercentilesFromReservoir(t *testing.T) {
	r := newTestRegistry(t)

	// Seed the reservoir with a known distribution of latencies by
	// recording processing spans of increasing duration.
	for i := 1; i <= 100; i++ {
		start := time.Now().Add(-time.Duration(i) * time.Millisecond)
		r.RecordProcessingEnd(start, false)
	}

	r.UpdateLatencyP95()
	summary := r.Summary()
	assert.Greater(t, summary.P95LatencyMs, summary.AvgLatencyMs)
	assert.GreaterOrEqual(t, summary.P99LatencyMs, summary.P95LatencyMs)
}

func TestRegistry_ThroughputBelowTarget(t *testing.T) {
	r := newTestRegistry(t)

	below, threshold, ratio := r.ThroughputBelowTarget(50)
	assert.True(t, below)
	assert.InDelta(t, 80, threshold, 0.001)
	assert.InDelta(t, 0.5, ratio, 0.001)

	below, _, _ = r.ThroughputBelowTarget(95)
	assert.False(t, below)
}

func TestRegistry_ActiveConnections(t *testing.T) {
	r := newTestRegistry(t)

	r.SetActiveConnections(3)
	assert.EqualValues(t, 3, r.Summary().ActiveConnections)
}
