package logstream

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/dimasergei/streampulse/internal/core/domain/stream"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return New(rdb, logger)
}

func TestClient_AppendAndReadTail(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	id, err := c.Append(ctx, stream.Events, map[string]string{"type": "temperature", "value": "42.0"}, 1000)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	entries, err := c.ReadTail(ctx, stream.Events, "0", 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "temperature", entries[0].Fields["type"])
}

func TestClient_ConsumerGroupDeliversOnceAndAcks(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.EnsureGroup(ctx, stream.Events, "workers"))
	// EnsureGroup must be idempotent against BUSYGROUP.
	require.NoError(t, c.EnsureGroup(ctx, stream.Events, "workers"))

	_, err := c.Append(ctx, stream.Events, map[string]string{"type": "cpu"}, 1000)
	require.NoError(t, err)

	entries, err := c.ReadGroup(ctx, stream.Events, "workers", "worker-1", 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// A second consumer in the same group gets nothing new to deliver.
	more, err := c.ReadGroup(ctx, stream.Events, "workers", "worker-2", 10*time.Millisecond, 10)
	require.NoError(t, err)
	require.Empty(t, more)

	require.NoError(t, c.Ack(ctx, stream.Events, "workers", entries[0].ID))
}

func TestClient_ReadRangeReverseAndDelete(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	var lastID string
	for i := 0; i < 3; i++ {
		id, err := c.Append(ctx, stream.Processed, map[string]string{"seq": string(rune('a' + i))}, 1000)
		require.NoError(t, err)
		lastID = id
	}

	recent, err := c.ReadRange(ctx, stream.Processed, "-", "+", true, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, lastID, recent[0].ID)

	deleted, err := c.Delete(ctx, stream.Processed, lastID)
	require.NoError(t, err)
	require.True(t, deleted)

	deletedAgain, err := c.Delete(ctx, stream.Processed, lastID)
	require.NoError(t, err)
	require.False(t, deletedAgain)
}

func TestClient_StreamInfoReportsLengthAndBoundEntries(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	empty, err := c.StreamInfo(ctx, stream.DLQ)
	require.NoError(t, err)
	require.Equal(t, int64(0), empty.Length)

	_, err = c.Append(ctx, stream.DLQ, map[string]string{"reason": "max retries exceeded"}, 1000)
	require.NoError(t, err)

	info, err := c.StreamInfo(ctx, stream.DLQ)
	require.NoError(t, err)
	require.Equal(t, int64(1), info.Length)
	require.NotNil(t, info.FirstEntry)
	require.NotNil(t, info.LastEntry)
	require.Equal(t, info.FirstEntry.ID, info.LastEntry.ID)
}
