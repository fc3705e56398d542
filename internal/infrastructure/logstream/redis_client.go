// Package logstream provides the Redis Streams-backed implementation of
// the stream.LogClient port. It is grounded on the teacher's
// internal/infrastructure/streams (XAdd+MaxLen producer) and
// internal/workers/telemetry_stream_consumer.go (consumer-group reads,
// XAck, XRange-based DLQ inspection).
package logstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/dimasergei/streampulse/internal/core/domain/stream"
)

// key maps a logical stream name to its Redis key, matching the
// external log layout of spec section 6 exactly: "events:stream",
// "processed:stream", "dlq:stream".
func key(name stream.Name) string {
	return fmt.Sprintf("%s:stream", name)
}

// Client is a stream.LogClient backed by a single Redis instance.
type Client struct {
	redis  redis.UniversalClient
	logger *logrus.Logger
}

// New wraps an already-configured Redis client.
func New(rdb redis.UniversalClient, logger *logrus.Logger) *Client {
	return &Client{redis: rdb, logger: logger}
}

var _ stream.LogClient = (*Client)(nil)

func toValues(fields map[string]string) map[string]interface{} {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	return values
}

func fromMessage(msg redis.XMessage) stream.Entry {
	fields := make(map[string]string, len(msg.Values))
	for k, v := range msg.Values {
		if s, ok := v.(string); ok {
			fields[k] = s
		} else {
			fields[k] = fmt.Sprintf("%v", v)
		}
	}
	return stream.Entry{ID: msg.ID, Fields: fields}
}

// Append writes one entry, trimming the stream to cap with an exact
// MaxLen trim (no "~" modifier), so the stream never holds more than cap
// entries.
func (c *Client) Append(ctx context.Context, name stream.Name, fields map[string]string, cap int64) (string, error) {
	id, err := c.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: key(name),
		MaxLen: cap,
		Approx: false,
		Values: toValues(fields),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", name, err)
	}
	return id, nil
}

// ReadTail performs a bare (non-group) blocking read, honoring the "$"
// convention of "only entries appended after this call started".
func (c *Client) ReadTail(ctx context.Context, name stream.Name, fromID string, blockMs time.Duration, maxCount int64) ([]stream.Entry, error) {
	res, err := c.redis.XRead(ctx, &redis.XReadArgs{
		Streams: []string{key(name), fromID},
		Block:   blockMs,
		Count:   maxCount,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read tail %s: %w", name, err)
	}
	return entriesFromStreams(res), nil
}

// EnsureGroup is idempotent: BUSYGROUP ("group already exists") is
// swallowed exactly as the teacher's ensureConsumerGroups does.
func (c *Client) EnsureGroup(ctx context.Context, name stream.Name, group string) error {
	err := c.redis.XGroupCreateMkStream(ctx, key(name), group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("ensure group %s/%s: %w", name, group, err)
	}
	return nil
}

// ReadGroup reads new (">" ) entries for consumer within group. Each
// entry is delivered to exactly one consumer in the group, which is how
// this client resolves the gap-free delivery open question in favor of
// consumer groups over a per-worker "$" cursor. Unacknowledged entries
// stay in the group's pending list; this client only reads new entries
// and does not re-read or claim pending ones.
func (c *Client) ReadGroup(ctx context.Context, name stream.Name, group, consumer string, blockMs time.Duration, maxCount int64) ([]stream.Entry, error) {
	res, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{key(name), ">"},
		Block:    blockMs,
		Count:    maxCount,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read group %s/%s: %w", name, group, err)
	}
	return entriesFromStreams(res), nil
}

func entriesFromStreams(res []redis.XStream) []stream.Entry {
	var entries []stream.Entry
	for _, s := range res {
		for _, msg := range s.Messages {
			entries = append(entries, fromMessage(msg))
		}
	}
	return entries
}

// Ack acknowledges entries within a consumer group.
func (c *Client) Ack(ctx context.Context, name stream.Name, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.redis.XAck(ctx, key(name), group, ids...).Err(); err != nil {
		return fmt.Errorf("ack %s/%s: %w", name, group, err)
	}
	return nil
}

// ReadRange supports both admin browsing and the reverse, most-recent-N
// read the broadcast loop uses to sample the processed log.
func (c *Client) ReadRange(ctx context.Context, name stream.Name, minID, maxID string, reverse bool, count int64) ([]stream.Entry, error) {
	var (
		msgs []redis.XMessage
		err  error
	)
	if reverse {
		msgs, err = c.redis.XRevRangeN(ctx, key(name), maxID, minID, count).Result()
	} else {
		msgs, err = c.redis.XRangeN(ctx, key(name), minID, maxID, count).Result()
	}
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read range %s: %w", name, err)
	}

	entries := make([]stream.Entry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, fromMessage(m))
	}
	return entries, nil
}

// Delete removes a single entry, reporting whether it existed.
func (c *Client) Delete(ctx context.Context, name stream.Name, entryID string) (bool, error) {
	n, err := c.redis.XDel(ctx, key(name), entryID).Result()
	if err != nil {
		return false, fmt.Errorf("delete %s/%s: %w", name, entryID, err)
	}
	return n > 0, nil
}

// StreamInfo reports length, group count and first/last entries for
// health and admin reporting. A stream that doesn't exist yet reports a
// zero-value Info rather than an error, since "no traffic yet" is a
// normal startup state.
func (c *Client) StreamInfo(ctx context.Context, name stream.Name) (*stream.Info, error) {
	k := key(name)

	length, err := c.redis.XLen(ctx, k).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &stream.Info{}, nil
		}
		return nil, fmt.Errorf("stream info %s: %w", name, err)
	}

	info := &stream.Info{Length: length}

	if groups, err := c.redis.XInfoGroups(ctx, k).Result(); err == nil {
		info.Groups = int64(len(groups))
	}

	if first, err := c.redis.XRangeN(ctx, k, "-", "+", 1).Result(); err == nil && len(first) == 1 {
		e := fromMessage(first[0])
		info.FirstEntry = &e
	}
	if last, err := c.redis.XRevRangeN(ctx, k, "+", "-", 1).Result(); err == nil && len(last) == 1 {
		e := fromMessage(last[0])
		info.LastEntry = &e
	}

	return info, nil
}
