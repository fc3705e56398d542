// Package workers implements EventWorkerPool and RetryScheduler: the
// concurrent consumers that turn raw entries on the events log into
// either processed entries, scheduled retries, or dead-letter
// promotions. Grounded on the teacher's
// internal/workers/telemetry_stream_consumer.go — the consumer-group
// read loop, per-message ack-or-leave-pending decision, and DLQ
// promotion on exhausted retries all follow that file's shape,
// generalized from ClickHouse-bound telemetry batches to the anomaly
// pipeline's single-entry records.
package workers

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dimasergei/streampulse/internal/core/domain/stream"
	"github.com/dimasergei/streampulse/internal/core/services/anomaly"
	"github.com/dimasergei/streampulse/internal/core/services/metrics"
)

// consumerGroup is the single shared consumer group all workers read
// through. Each entry is dispatched to exactly one worker, resolving
// the ordering open question in favor of a shared position rather than
// N independent "$" cursors.
const consumerGroup = "streampulse-workers"

// AnomalyNotifier is the narrow surface EventWorkerPool uses to tell the
// broadcast hub about an anomaly without importing it directly.
type AnomalyNotifier interface {
	NotifyAnomaly(ctx context.Context, eventID string, value, zScore float64, timestamp time.Time)
}

// Config configures the pool. Zero values fall back to spec defaults.
type Config struct {
	WorkerCount   int
	MaxBatch      int64
	BlockDuration time.Duration
	WindowSize    int
	Threshold     float64
}

func (c Config) withDefaults() Config {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 3
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = 1000
	}
	if c.BlockDuration <= 0 {
		c.BlockDuration = time.Second
	}
	return c
}

// Pool is EventWorkerPool.
type Pool struct {
	log      stream.LogClient
	registry *metrics.Registry
	retry    *RetryScheduler
	notifier AnomalyNotifier
	logger   *logrus.Logger
	cfg      Config

	running int32
	wg      sync.WaitGroup
}

// NewPool constructs a Pool. retry must be non-nil; callers typically
// build it with NewRetryScheduler sharing the same log client.
func NewPool(log stream.LogClient, registry *metrics.Registry, retry *RetryScheduler, notifier AnomalyNotifier, logger *logrus.Logger, cfg Config) *Pool {
	return &Pool{
		log:      log,
		registry: registry,
		retry:    retry,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg.withDefaults(),
	}
}

// Start ensures the shared consumer group exists and launches
// cfg.WorkerCount worker goroutines. It returns once the group is
// ready; workers run until ctx is done or Stop is called. Calling
// Start on an already-running pool is a no-op, matching the original's
// "if not event_worker.running" guard.
func (p *Pool) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return nil
	}

	if err := p.log.EnsureGroup(ctx, stream.Events, consumerGroup); err != nil {
		atomic.StoreInt32(&p.running, 0)
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	for i := 0; i < p.cfg.WorkerCount; i++ {
		consumerID := fmt.Sprintf("worker-%d", i)
		p.wg.Add(1)
		go p.runWorker(ctx, consumerID)
	}

	p.logger.WithFields(logrus.Fields{
		"worker_count": p.cfg.WorkerCount,
		"max_batch":    p.cfg.MaxBatch,
	}).Info("event worker pool started")

	return nil
}

// IsRunning reports whether the pool currently has workers active.
func (p *Pool) IsRunning() bool {
	return atomic.LoadInt32(&p.running) == 1
}

// Stop clears the running flag; each worker finishes its current batch
// before observing the flag at the top of its loop, then the call
// blocks until all workers have returned.
func (p *Pool) Stop() {
	if !atomic.CompareAndSwapInt32(&p.running, 1, 0) {
		return
	}
	p.wg.Wait()
	p.logger.Info("event worker pool stopped")
}

func (p *Pool) runWorker(ctx context.Context, consumerID string) {
	defer p.wg.Done()

	detector := anomaly.New(p.cfg.WindowSize, p.cfg.Threshold)

	for atomic.LoadInt32(&p.running) == 1 {
		select {
		case <-ctx.Done():
			return
		default:
		}

		entries, err := p.log.ReadGroup(ctx, stream.Events, consumerGroup, consumerID, p.cfg.BlockDuration, p.cfg.MaxBatch)
		if err != nil {
			p.logger.WithFields(logrus.Fields{"consumer_id": consumerID, "error": err.Error()}).
				Error("read group failed, backing off")
			time.Sleep(time.Second)
			continue
		}

		if len(entries) == 0 {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for _, entry := range entries {
			ack := p.processSingle(ctx, detector, consumerID, entry)
			if ack {
				if err := p.log.Ack(ctx, stream.Events, consumerGroup, entry.ID); err != nil {
					p.logger.WithFields(logrus.Fields{"entry_id": entry.ID, "error": err.Error()}).
						Warn("failed to ack entry")
				}
			}
		}
	}
}

// processSingle implements §4.5 process_single. It returns whether the
// entry should be acknowledged: true when the event reached the
// processed log, a retry was scheduled, or the DLQ step recorded (or
// deliberately dropped) it; false only when the DLQ append failed,
// leaving the entry unacknowledged in the group's pending list. No
// worker re-reads or reclaims pending entries.
func (p *Pool) processSingle(ctx context.Context, detector *anomaly.Detector, workerID string, entry stream.Entry) bool {
	start := p.registry.RecordProcessingStart()

	record, err := stream.RecordFromFields(entry.Fields)
	if err != nil {
		return p.handleFailure(ctx, start, entry, fmt.Errorf("parse entry: %w", err))
	}

	isAnomaly, zScore := detector.Detect(record.Value)

	now := time.Now().UTC()
	record.ProcessedAt = now.Format(time.RFC3339)
	record.WorkerID = workerID
	record.AnomalyDetected = isAnomaly
	record.ZScore = zScore
	record.ProcessingTime = strconv.FormatFloat(time.Since(start).Seconds(), 'f', -1, 64)

	if _, err := p.log.Append(ctx, stream.Processed, record.ToFields(), stream.ProcessedCap); err != nil {
		return p.handleFailure(ctx, start, entry, fmt.Errorf("append processed: %w", err))
	}

	p.registry.RecordProcessingEnd(start, isAnomaly)
	p.registry.RecordWorkerSuccess()

	if isAnomaly && p.notifier != nil {
		go p.notifier.NotifyAnomaly(context.Background(), entry.ID, record.Value, zScore, now)
	}

	return true
}

func (p *Pool) handleFailure(ctx context.Context, start time.Time, entry stream.Entry, procErr error) bool {
	p.registry.RecordProcessingEnd(start, false)
	p.registry.RecordWorkerFailure()
	p.logger.WithFields(logrus.Fields{"entry_id": entry.ID, "error": procErr.Error()}).
		Warn("processing failed, handing off to retry scheduler")
	return p.retry.HandleFailure(ctx, entry.ID, entry.Fields, procErr)
}

func parseRetryCount(fields map[string]string) int {
	n, _ := strconv.Atoi(fields["retry_count"])
	return n
}
