package workers

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dimasergei/streampulse/internal/core/domain/stream"
	"github.com/dimasergei/streampulse/internal/core/services/metrics"
)

// RetryScheduler implements §4.6: bounded exponential-backoff retry with
// promotion to the dead-letter log once the retry budget is exhausted.
// Scheduled retries run as detached, self-terminating goroutines so a
// failing event never blocks the worker that observed the failure —
// matching the teacher's own framing that stopping the pool must not
// wait on in-flight retry tasks.
type RetryScheduler struct {
	log         stream.LogClient
	registry    *metrics.Registry
	logger      *logrus.Logger
	maxRetries  int
	backoffBase float64
	dlqEnabled  bool
}

// NewRetryScheduler constructs a RetryScheduler.
func NewRetryScheduler(log stream.LogClient, registry *metrics.Registry, logger *logrus.Logger, maxRetries int, backoffBase float64, dlqEnabled bool) *RetryScheduler {
	if maxRetries < 0 {
		maxRetries = 3
	}
	if backoffBase <= 0 {
		backoffBase = 2.0
	}
	return &RetryScheduler{
		log:         log,
		registry:    registry,
		logger:      logger,
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		dlqEnabled:  dlqEnabled,
	}
}

// HandleFailure records the failure in fields and either schedules a
// delayed re-append to the events log or promotes the event straight to
// the dead-letter log. It returns whether the originating entry should
// be acknowledged: true once a retry is scheduled (the retry and its
// field snapshot are held in memory until the delay elapses), and
// otherwise promoteToDLQ's result, which is false only when the DLQ
// append fails.
func (s *RetryScheduler) HandleFailure(ctx context.Context, originalEntryID string, fields map[string]string, procErr error) bool {
	retryFields := make(map[string]string, len(fields)+3)
	for k, v := range fields {
		retryFields[k] = v
	}

	attempted := parseRetryCount(fields)
	retryFields["last_error"] = procErr.Error()
	retryFields["failed_at"] = time.Now().UTC().Format(time.RFC3339)

	if next := attempted + 1; next <= s.maxRetries {
		retryFields["retry_count"] = strconv.Itoa(next)
		delay := time.Duration(math.Pow(s.backoffBase, float64(next)) * float64(time.Second))
		go s.scheduleRetry(originalEntryID, retryFields, delay, next)
		return true
	}

	// Budget exhausted: the retry count stays at its final value rather
	// than counting the attempt that can no longer be retried.
	retryFields["retry_count"] = strconv.Itoa(attempted)
	return s.promoteToDLQ(context.Background(), originalEntryID, retryFields, procErr, attempted)
}

// scheduleRetry is the transient retry-delay task: it sleeps delay then
// re-appends to events. If the re-append itself fails, the event is
// promoted to DLQ instead.
func (s *RetryScheduler) scheduleRetry(originalEntryID string, fields map[string]string, delay time.Duration, retryCount int) {
	time.Sleep(delay)

	ctx := context.Background()
	if _, err := s.log.Append(ctx, stream.Events, fields, stream.EventsCap); err != nil {
		s.logger.WithFields(logrus.Fields{
			"entry_id": originalEntryID,
			"error":    err.Error(),
		}).Error("retry re-append failed, promoting to DLQ")
		s.promoteToDLQ(ctx, originalEntryID, fields, err, retryCount)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"entry_id":    originalEntryID,
		"retry_count": retryCount,
		"delay":       delay,
	}).Info("retry re-appended to events")
}

// promoteToDLQ appends a DLQ entry and reports whether the event's
// fate was durably recorded somewhere: true on a successful DLQ
// append, or when the DLQ is disabled (a deliberate drop, not a
// failure to persist); false only when the DLQ append itself errors,
// in which case the caller should leave the originating entry pending.
func (s *RetryScheduler) promoteToDLQ(ctx context.Context, originalEntryID string, fields map[string]string, procErr error, retryCount int) bool {
	if !s.dlqEnabled {
		s.logger.WithFields(logrus.Fields{"entry_id": originalEntryID}).
			Warn("DLQ disabled, dropping exhausted event")
		return true
	}

	dlqFields := make(map[string]string, len(fields)+4)
	for k, v := range fields {
		dlqFields[k] = v
	}
	dlqFields["original_event_id"] = originalEntryID
	dlqFields["dlq_reason"] = procErr.Error()
	dlqFields["dlq_timestamp"] = time.Now().UTC().Format(time.RFC3339)
	dlqFields["final_retry_count"] = strconv.Itoa(retryCount)

	if _, err := s.log.Append(ctx, stream.DLQ, dlqFields, stream.DLQCap); err != nil {
		s.logger.WithFields(logrus.Fields{
			"entry_id": originalEntryID,
			"error":    err.Error(),
		}).Error("failed to append to dead-letter log")
		return false
	}

	s.registry.RecordDLQPromotion()
	s.logger.WithFields(logrus.Fields{
		"entry_id":    originalEntryID,
		"retry_count": retryCount,
	}).Warn(fmt.Sprintf("event promoted to dead-letter log: %s", procErr.Error()))
	return true
}
