package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dimasergei/streampulse/internal/core/domain/stream"
)

func TestRetryScheduler_SchedulesReAppendWithIncrementedCount(t *testing.T) {
	log := newMemLog()
	// Tiny backoff base so the scheduled re-append lands within the test.
	s := NewRetryScheduler(log, newTestRegistry(), newTestLogger(), 3, 0.001, true)

	fields := map[string]string{
		"timestamp": "2024-01-30T10:45:00Z", "type": "t", "value": "1",
	}
	ack := s.HandleFailure(context.Background(), "1-1", fields, errors.New("boom"))
	assert.True(t, ack)

	assert.Eventually(t, func() bool {
		log.mu.Lock()
		defer log.mu.Unlock()
		return len(log.streams[stream.Events]) == 1
	}, 2*time.Second, 5*time.Millisecond)

	log.mu.Lock()
	defer log.mu.Unlock()
	got := log.streams[stream.Events][0].Fields
	assert.Equal(t, "1", got["retry_count"])
	assert.Equal(t, "boom", got["last_error"])
	assert.NotEmpty(t, got["failed_at"])
	assert.Empty(t, log.streams[stream.DLQ])
}

func TestRetryScheduler_ExhaustedBudgetPromotesWithFinalCount(t *testing.T) {
	log := newMemLog()
	s := NewRetryScheduler(log, newTestRegistry(), newTestLogger(), 3, 2.0, true)

	fields := map[string]string{
		"timestamp": "2024-01-30T10:45:00Z", "type": "t", "value": "1",
		"retry_count": "3", "last_error": "boom", "failed_at": "2024-01-30T10:46:00Z",
	}
	ack := s.HandleFailure(context.Background(), "1-1", fields, errors.New("still failing"))
	require.True(t, ack)

	log.mu.Lock()
	defer log.mu.Unlock()
	require.Len(t, log.streams[stream.DLQ], 1)
	got := log.streams[stream.DLQ][0].Fields
	assert.Equal(t, "3", got["final_retry_count"])
	assert.Equal(t, "3", got["retry_count"])
	assert.Equal(t, "1-1", got["original_event_id"])
	assert.Equal(t, "still failing", got["dlq_reason"])
	assert.NotEmpty(t, got["dlq_timestamp"])
	assert.Empty(t, log.streams[stream.Events])
}

func TestRetryScheduler_DLQDisabledDropsExhaustedEvent(t *testing.T) {
	log := newMemLog()
	s := NewRetryScheduler(log, newTestRegistry(), newTestLogger(), 0, 2.0, false)

	fields := map[string]string{
		"timestamp": "2024-01-30T10:45:00Z", "type": "t", "value": "1",
	}
	ack := s.HandleFailure(context.Background(), "1-1", fields, errors.New("boom"))

	// The drop is deliberate, so the originating entry is still acked.
	assert.True(t, ack)
	log.mu.Lock()
	defer log.mu.Unlock()
	assert.Empty(t, log.streams[stream.DLQ])
	assert.Empty(t, log.streams[stream.Events])
}
