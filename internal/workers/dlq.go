package workers

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/dimasergei/streampulse/internal/core/domain/stream"
)

// DLQAdmin implements the admin-facing list_dlq / retry_dlq_event
// operations of §4.6. It is independent of Pool so the HTTP admin
// handler can use it without holding a reference to the running
// worker pool.
type DLQAdmin struct {
	log    stream.LogClient
	logger *logrus.Logger
}

// NewDLQAdmin constructs a DLQAdmin.
func NewDLQAdmin(log stream.LogClient, logger *logrus.Logger) *DLQAdmin {
	return &DLQAdmin{log: log, logger: logger}
}

// List returns up to count of the most recent dead-letter entries.
func (a *DLQAdmin) List(ctx context.Context, count int64) ([]stream.Entry, error) {
	return a.log.ReadRange(ctx, stream.DLQ, "-", "+", true, count)
}

// Retry implements retry_dlq_event: it moves a single dead-letter entry
// back onto the events log, stripping prior retry/failure/DLQ
// bookkeeping first. Not atomic across the two log operations — a crash
// between the append and the delete can leave a duplicate, which is
// acceptable under the pipeline's at-least-once contract.
func (a *DLQAdmin) Retry(ctx context.Context, entryID string) (bool, error) {
	entries, err := a.log.ReadRange(ctx, stream.DLQ, entryID, entryID, false, 1)
	if err != nil {
		return false, err
	}
	if len(entries) == 0 {
		return false, nil
	}

	cleaned := stream.CleanRetryFields(entries[0].Fields)
	if _, err := a.log.Append(ctx, stream.Events, cleaned, stream.EventsCap); err != nil {
		return false, err
	}

	if _, err := a.log.Delete(ctx, stream.DLQ, entryID); err != nil {
		a.logger.WithFields(logrus.Fields{"entry_id": entryID, "error": err.Error()}).
			Warn("re-appended DLQ entry but failed to delete original")
		return true, err
	}

	return true, nil
}
