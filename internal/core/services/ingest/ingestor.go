// Package ingest implements StreamIngestor: validates, enriches and
// appends batches of ingress events to the events log. Grounded on the
// teacher's service-layer batch handlers (validate-then-append, one
// append per valid item, partial success rather than all-or-nothing)
// and on the domain Event/Record split in
// internal/core/domain/stream.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dimasergei/streampulse/internal/core/domain/stream"
	"github.com/dimasergei/streampulse/internal/core/services/metrics"
	"github.com/dimasergei/streampulse/pkg/ulid"
)

// Result is the outcome of one IngestBatch call.
type Result struct {
	Success          bool
	Ingested         int
	Total            int
	ProcessingTimeMs float64
	BatchID          string
}

// dayStats holds one UTC day's running ingest counters.
type dayStats struct {
	total    int64
	ingested int64
	failed   int64
}

// retainedDays bounds the in-memory daily stats map, matching the
// original's update_ingestion_stats which only ever needed a rolling
// week for its dashboard.
const retainedDays = 7

// Ingestor is StreamIngestor.
type Ingestor struct {
	log          stream.LogClient
	registry     *metrics.Registry
	logger       *logrus.Logger
	maxBatchSize int

	statsMu sync.Mutex
	stats   map[string]*dayStats
	days    []string // insertion order, oldest first
}

// New constructs an Ingestor. maxBatchSize <= 0 falls back to 1000, the
// spec default. registry may be nil in tests that don't care about the
// ingestion_latency_seconds histogram or events_ingested counter.
func New(log stream.LogClient, registry *metrics.Registry, logger *logrus.Logger, maxBatchSize int) *Ingestor {
	if maxBatchSize <= 0 {
		maxBatchSize = 1000
	}
	return &Ingestor{
		log:          log,
		registry:     registry,
		logger:       logger,
		maxBatchSize: maxBatchSize,
		stats:        make(map[string]*dayStats),
	}
}

// recordDailyStats accumulates a batch's outcome under today's UTC day,
// evicting the oldest tracked day once more than retainedDays are held.
func (ing *Ingestor) recordDailyStats(now time.Time, total, ingested int) {
	day := now.UTC().Format("2006-01-02")

	ing.statsMu.Lock()
	defer ing.statsMu.Unlock()

	s, ok := ing.stats[day]
	if !ok {
		s = &dayStats{}
		ing.stats[day] = s
		ing.days = append(ing.days, day)
	}
	s.total += int64(total)
	s.ingested += int64(ingested)
	s.failed += int64(total - ingested)

	for len(ing.days) > retainedDays {
		oldest := ing.days[0]
		ing.days = ing.days[1:]
		delete(ing.stats, oldest)
	}
}

// DailyStats reports the running ingest/success/failure counters for
// the given UTC day ("2006-01-02"). A day with no tracked stats yet
// reports all zeros.
func (ing *Ingestor) DailyStats(day string) (total, ingested, failed int64) {
	ing.statsMu.Lock()
	defer ing.statsMu.Unlock()

	s, ok := ing.stats[day]
	if !ok {
		return 0, 0, 0
	}
	return s.total, s.ingested, s.failed
}

// IngestBatch validates, enriches and appends events to the events log.
//
// An oversize batch is rejected in full before any append. Within an
// accepted batch, an individual invalid event is skipped and logged —
// it does not fail the batch — so ingested may be less than total.
// Appends are issued one at a time, not pipelined, and are not atomic
// across the batch: a log failure partway
// through yields a partial ingested count rather than rolling back
// earlier appends.
func (ing *Ingestor) IngestBatch(ctx context.Context, events []stream.Event) (Result, error) {
	total := len(events)
	if total > ing.maxBatchSize {
		return Result{}, fmt.Errorf("%w: batch of %d exceeds max %d", stream.ErrBatchTooLarge, total, ing.maxBatchSize)
	}

	batchID := ulid.New().String()
	start := time.Now()
	ingested := 0

	var metricsStart time.Time
	if ing.registry != nil {
		metricsStart = ing.registry.RecordIngestionStart()
	}

	for _, e := range events {
		if err := e.Validate(); err != nil {
			ing.logger.WithFields(logrus.Fields{
				"batch_id": batchID,
				"error":    err.Error(),
			}).Warn("skipping invalid event")
			continue
		}

		record := stream.Enrich(e, time.Now())
		if _, err := ing.log.Append(ctx, stream.Events, record.ToFields(), stream.EventsCap); err != nil {
			ing.logger.WithFields(logrus.Fields{
				"batch_id": batchID,
				"error":    err.Error(),
			}).Error("append to events log failed")
			if errors.Is(ctx.Err(), context.Canceled) {
				break
			}
			continue
		}
		ingested++
	}

	ing.recordDailyStats(start, total, ingested)
	if ing.registry != nil {
		ing.registry.RecordIngestionEnd(metricsStart, ingested)
	}

	return Result{
		Success:          true,
		Ingested:         ingested,
		Total:            total,
		ProcessingTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
		BatchID:          batchID,
	}, nil
}
