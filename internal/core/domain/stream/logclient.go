package stream

import (
	"context"
	"time"
)

// LogClient abstracts the append-only log service the whole pipeline is
// built against. The Redis Streams implementation lives in
// internal/infrastructure/logstream; every other component depends only
// on this interface so it can be exercised against a fake in tests.
//
// ReadTail and ReadGroup both satisfy the "read entries newer than a
// point" requirement of spec section 4.1, but resolve the open question
// on cursor semantics differently: ReadTail is the literal "$"-style bare
// tail read (used for ad hoc/health-check tailing), while ReadGroup
// assigns each entry to exactly one named consumer within a group and is
// what EventWorkerPool uses so that entries arriving between poll
// iterations are never missed and are never double-delivered within the
// group.
type LogClient interface {
	// Append writes one entry to stream, trimming the log so it holds at
	// most cap entries, and returns the assigned entry id.
	Append(ctx context.Context, name Name, fields map[string]string, cap int64) (string, error)

	// ReadTail blocks up to blockMs for at least one entry with an id
	// greater than fromID ("$" means "only entries appended after this
	// call started"), returning up to maxCount entries. An empty result
	// on timeout is not an error.
	ReadTail(ctx context.Context, name Name, fromID string, blockMs time.Duration, maxCount int64) ([]Entry, error)

	// EnsureGroup idempotently creates a consumer group positioned at the
	// start of the stream, creating the stream itself if necessary.
	EnsureGroup(ctx context.Context, name Name, group string) error

	// ReadGroup reads up to maxCount undelivered entries for consumer
	// within group, blocking up to blockMs.
	ReadGroup(ctx context.Context, name Name, group, consumer string, blockMs time.Duration, maxCount int64) ([]Entry, error)

	// Ack acknowledges one or more entries within a consumer group.
	Ack(ctx context.Context, name Name, group string, ids ...string) error

	// ReadRange returns entries with id in [minID, maxID], inclusive,
	// optionally reversed, bounded to count entries. "+"/"-" denote the
	// newest/oldest id respectively, matching Redis Streams range syntax.
	ReadRange(ctx context.Context, name Name, minID, maxID string, reverse bool, count int64) ([]Entry, error)

	// Delete removes a single entry by id, returning whether it existed.
	Delete(ctx context.Context, name Name, entryID string) (bool, error)

	// StreamInfo reports length/group count/first+last entry for health
	// and admin reporting.
	StreamInfo(ctx context.Context, name Name) (*Info, error)
}
