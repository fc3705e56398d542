package workers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dimasergei/streampulse/internal/core/domain/stream"
	"github.com/dimasergei/streampulse/internal/core/services/metrics"
)

// memLog is an in-memory stream.LogClient sufficient to exercise the
// worker pool and retry scheduler end to end without a real Redis
// instance.
type memLog struct {
	mu      sync.Mutex
	streams map[stream.Name][]stream.Entry
	nextID  int
	groups  map[string]map[string]bool // streamKey -> group -> created
	pending map[string][]stream.Entry  // group -> undelivered entries
}

func newMemLog() *memLog {
	return &memLog{
		streams: make(map[stream.Name][]stream.Entry),
		groups:  make(map[string]map[string]bool),
		pending: make(map[string][]stream.Entry),
	}
}

func (m *memLog) Append(ctx context.Context, name stream.Name, fields map[string]string, cap int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fieldsID(m.nextID)
	entry := stream.Entry{ID: id, Fields: fields}
	m.streams[name] = append(m.streams[name], entry)
	for g := range m.groups[string(name)] {
		m.pending[g] = append(m.pending[g], entry)
	}
	return id, nil
}

func fieldsID(n int) string {
	return time.Unix(int64(n), 0).Format("20060102150405") + "-0"
}

func (m *memLog) ReadTail(ctx context.Context, name stream.Name, fromID string, blockMs time.Duration, maxCount int64) ([]stream.Entry, error) {
	return nil, nil
}

func (m *memLog) EnsureGroup(ctx context.Context, name stream.Name, group string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.groups[string(name)] == nil {
		m.groups[string(name)] = make(map[string]bool)
	}
	m.groups[string(name)][group] = true
	return nil
}

func (m *memLog) ReadGroup(ctx context.Context, name stream.Name, group, consumer string, blockMs time.Duration, maxCount int64) ([]stream.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending := m.pending[group]
	if len(pending) == 0 {
		return nil, nil
	}
	n := int64(len(pending))
	if n > maxCount {
		n = maxCount
	}
	out := pending[:n]
	m.pending[group] = pending[n:]
	return out, nil
}

func (m *memLog) Ack(ctx context.Context, name stream.Name, group string, ids ...string) error {
	return nil
}

func (m *memLog) ReadRange(ctx context.Context, name stream.Name, minID, maxID string, reverse bool, count int64) ([]stream.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.streams[name]
	if minID != "-" && minID != "+" {
		var filtered []stream.Entry
		for _, e := range entries {
			if e.ID == minID {
				filtered = append(filtered, e)
			}
		}
		return filtered, nil
	}
	return entries, nil
}

func (m *memLog) Delete(ctx context.Context, name stream.Name, entryID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.streams[name]
	for i, e := range entries {
		if e.ID == entryID {
			m.streams[name] = append(entries[:i], entries[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *memLog) StreamInfo(ctx context.Context, name stream.Name) (*stream.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &stream.Info{Length: int64(len(m.streams[name]))}, nil
}

var _ stream.LogClient = (*memLog)(nil)

func newTestLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func newTestRegistry() *metrics.Registry {
	return metrics.New(prometheus.NewRegistry(), metrics.Targets{ThroughputTarget: 100, LatencyTargetP95Ms: 50})
}

type noopNotifier struct{}

func (noopNotifier) NotifyAnomaly(ctx context.Context, eventID string, value, zScore float64, timestamp time.Time) {
}

func TestPool_ProcessesValidEntry(t *testing.T) {
	log := newMemLog()
	registry := newTestRegistry()
	logger := newTestLogger()
	retry := NewRetryScheduler(log, registry, logger, 3, 2.0, true)
	pool := NewPool(log, registry, retry, noopNotifier{}, logger, Config{WorkerCount: 1, BlockDuration: 10 * time.Millisecond})

	require.NoError(t, log.EnsureGroup(context.Background(), stream.Events, consumerGroup))
	_, err := log.Append(context.Background(), stream.Events, map[string]string{
		"timestamp": "2024-01-30T10:45:00Z", "type": "t", "value": "42.5", "processed": "false",
	}, stream.EventsCap)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, pool.Start(ctx))
	defer func() {
		cancel()
		pool.Stop()
	}()

	assert.Eventually(t, func() bool {
		log.mu.Lock()
		defer log.mu.Unlock()
		return len(log.streams[stream.Processed]) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPool_InvalidEntryGoesThroughRetryPath(t *testing.T) {
	log := newMemLog()
	registry := newTestRegistry()
	logger := newTestLogger()
	retry := NewRetryScheduler(log, registry, logger, 0, 2.0, true) // maxRetries=0 -> immediate DLQ
	pool := NewPool(log, registry, retry, noopNotifier{}, logger, Config{WorkerCount: 1, BlockDuration: 10 * time.Millisecond})

	require.NoError(t, log.EnsureGroup(context.Background(), stream.Events, consumerGroup))
	_, err := log.Append(context.Background(), stream.Events, map[string]string{
		"type": "t", "value": "1",
	}, stream.EventsCap) // missing timestamp -> parse failure
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, pool.Start(ctx))
	defer func() {
		cancel()
		pool.Stop()
	}()

	assert.Eventually(t, func() bool {
		log.mu.Lock()
		defer log.mu.Unlock()
		return len(log.streams[stream.DLQ]) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPool_StartIsNoOpWhenAlreadyRunning(t *testing.T) {
	log := newMemLog()
	registry := newTestRegistry()
	logger := newTestLogger()
	retry := NewRetryScheduler(log, registry, logger, 3, 2.0, true)
	pool := NewPool(log, registry, retry, noopNotifier{}, logger, Config{WorkerCount: 1, BlockDuration: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, pool.Start(ctx))
	assert.True(t, pool.IsRunning())
	require.NoError(t, pool.Start(ctx)) // second Start is a no-op, not an error

	pool.Stop()
	assert.False(t, pool.IsRunning())
	pool.Stop() // second Stop is also a no-op
}

func TestDLQAdmin_RetryMovesEntryBackToEvents(t *testing.T) {
	log := newMemLog()
	logger := newTestLogger()
	admin := NewDLQAdmin(log, logger)

	id, err := log.Append(context.Background(), stream.DLQ, map[string]string{
		"timestamp": "2024-01-30T10:45:00Z", "type": "t", "value": "1",
		"retry_count": "4", "last_error": "boom", "failed_at": "x",
		"original_event_id": "1-1", "dlq_reason": "boom", "dlq_timestamp": "x", "final_retry_count": "4",
	}, stream.DLQCap)
	require.NoError(t, err)

	ok, err := admin.Retry(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, log.streams[stream.Events], 1)
	assert.Empty(t, log.streams[stream.DLQ])

	fields := log.streams[stream.Events][0].Fields
	_, hasRetryCount := fields["retry_count"]
	assert.False(t, hasRetryCount)
}

func TestDLQAdmin_RetryUnknownEntryReturnsFalse(t *testing.T) {
	log := newMemLog()
	admin := NewDLQAdmin(log, newTestLogger())

	ok, err := admin.Retry(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.False(t, ok)
}
