package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dimasergei/streampulse/internal/core/domain/stream"
)

// fakeLog is a minimal in-memory stream.LogClient used to exercise
// Ingestor without a real Redis instance.
type fakeLog struct {
	appended map[stream.Name][]map[string]string
}

func newFakeLog() *fakeLog {
	return &fakeLog{appended: make(map[stream.Name][]map[string]string)}
}

func (f *fakeLog) Append(ctx context.Context, name stream.Name, fields map[string]string, cap int64) (string, error) {
	f.appended[name] = append(f.appended[name], fields)
	return "1-1", nil
}

func (f *fakeLog) ReadTail(ctx context.Context, name stream.Name, fromID string, blockMs time.Duration, maxCount int64) ([]stream.Entry, error) {
	return nil, nil
}

func (f *fakeLog) EnsureGroup(ctx context.Context, name stream.Name, group string) error {
	return nil
}

func (f *fakeLog) ReadGroup(ctx context.Context, name stream.Name, group, consumer string, blockMs time.Duration, maxCount int64) ([]stream.Entry, error) {
	return nil, nil
}

func (f *fakeLog) Ack(ctx context.Context, name stream.Name, group string, ids ...string) error {
	return nil
}

func (f *fakeLog) ReadRange(ctx context.Context, name stream.Name, minID, maxID string, reverse bool, count int64) ([]stream.Entry, error) {
	return nil, nil
}

func (f *fakeLog) Delete(ctx context.Context, name stream.Name, entryID string) (bool, error) {
	return false, nil
}

func (f *fakeLog) StreamInfo(ctx context.Context, name stream.Name) (*stream.Info, error) {
	return &stream.Info{}, nil
}

var _ stream.LogClient = (*fakeLog)(nil)

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func TestIngestor_HappyPath(t *testing.T) {
	log := newFakeLog()
	ing := New(log, nil, newLogger(), 1000)

	result, err := ing.IngestBatch(context.Background(), []stream.Event{
		{Timestamp: "2024-01-30T10:45:00Z", Type: "t", Value: 42.5},
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Ingested)
	assert.Equal(t, 1, result.Total)
	assert.NotEmpty(t, result.BatchID)
	assert.Len(t, log.appended[stream.Events], 1)
}

func TestIngestor_OversizeBatchRejected(t *testing.T) {
	log := newFakeLog()
	ing := New(log, nil, newLogger(), 2)

	events := make([]stream.Event, 3)
	for i := range events {
		events[i] = stream.Event{Timestamp: "2024-01-30T10:45:00Z", Type: "t", Value: float64(i)}
	}

	_, err := ing.IngestBatch(context.Background(), events)
	require.Error(t, err)
	assert.Empty(t, log.appended[stream.Events])
}

func TestIngestor_InvalidEventSkippedNotFailed(t *testing.T) {
	log := newFakeLog()
	ing := New(log, nil, newLogger(), 1000)

	result, err := ing.IngestBatch(context.Background(), []stream.Event{
		{Type: "t", Value: 1}, // missing timestamp
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.Ingested)
	assert.Empty(t, log.appended[stream.Events])
}

func TestIngestor_DailyStatsAccumulatesAcrossBatches(t *testing.T) {
	log := newFakeLog()
	ing := New(log, nil, newLogger(), 1000)

	_, err := ing.IngestBatch(context.Background(), []stream.Event{
		{Timestamp: "2024-01-30T10:45:00Z", Type: "t", Value: 1},
		{Type: "t", Value: 2}, // invalid, missing timestamp
	})
	require.NoError(t, err)

	_, err = ing.IngestBatch(context.Background(), []stream.Event{
		{Timestamp: "2024-01-30T10:46:00Z", Type: "t", Value: 3},
	})
	require.NoError(t, err)

	today := time.Now().UTC().Format("2006-01-02")
	total, ingested, failed := ing.DailyStats(today)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, int64(2), ingested)
	assert.Equal(t, int64(1), failed)
}

func TestIngestor_DailyStatsUnknownDayIsZero(t *testing.T) {
	ing := New(newFakeLog(), nil, newLogger(), 1000)
	total, ingested, failed := ing.DailyStats("2000-01-01")
	assert.Zero(t, total)
	assert.Zero(t, ingested)
	assert.Zero(t, failed)
}
