// Package stream defines the domain types shared by the ingestion,
// worker, retry and broadcast layers of the event processing core.
package stream

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Name identifies one of the three append-only logs the pipeline uses.
type Name string

const (
	Events    Name = "events"
	Processed Name = "processed"
	DLQ       Name = "dlq"
)

// Caps on log length; oldest entries are evicted once a stream exceeds
// its cap.
const (
	EventsCap    int64 = 1_000_000
	ProcessedCap int64 = 1_000_000
	DLQCap       int64 = 100_000
)

// Event is the ingress shape accepted by StreamIngestor.
type Event struct {
	Timestamp string
	Type      string
	Value     float64
	Metadata  map[string]interface{}
}

// Validate checks the required attributes of an ingress event. A missing
// timestamp or type, or a NaN or infinite value, is rejected before the
// event is enriched. Value is a plain float64, so an absent value cannot
// be told apart from 0 here and is accepted as 0.
func (e Event) Validate() error {
	if strings.TrimSpace(e.Timestamp) == "" {
		return fmt.Errorf("%w: timestamp", ErrMissingField)
	}
	if strings.TrimSpace(e.Type) == "" {
		return fmt.Errorf("%w: type", ErrMissingField)
	}
	if math.IsNaN(e.Value) || math.IsInf(e.Value, 0) {
		return fmt.Errorf("%w: value", ErrInvalidValue)
	}
	return nil
}

// Record is the internal, typed representation of an event as it moves
// through the pipeline. It is the "tagged record with typed fields plus an
// extras map" the design favors over raw string maps everywhere except at
// the log-boundary adapter (ToFields/RecordFromFields).
type Record struct {
	Event

	IngestedAt string
	Processed  bool

	ProcessedAt     string
	WorkerID        string
	AnomalyDetected bool
	ZScore          float64
	ProcessingTime  string

	RetryCount int
	LastError  string
	FailedAt   string

	OriginalEventID string
	DLQReason       string
	DLQTimestamp    string
	FinalRetryCount int

	// Extras preserves any field present at the log boundary that this
	// struct doesn't model explicitly, so a round trip through ToFields
	// and RecordFromFields never silently drops data.
	Extras map[string]string
}

// Enrich stamps an ingress event with the fields StreamIngestor adds
// before appending it to the events log.
func Enrich(e Event, now time.Time) Record {
	return Record{
		Event:      e,
		IngestedAt: now.UTC().Format(time.RFC3339),
		Processed:  false,
	}
}

// ToFields renders the record as the string-to-string map the log
// service stores. Numeric values are decimal strings, booleans are
// "true"/"false", timestamps are ISO-8601 with a Z suffix.
func (r Record) ToFields() map[string]string {
	f := make(map[string]string, 16+len(r.Extras))
	for k, v := range r.Extras {
		f[k] = v
	}
	f["timestamp"] = r.Timestamp
	f["type"] = r.Type
	f["value"] = strconv.FormatFloat(r.Value, 'f', -1, 64)
	if r.IngestedAt != "" {
		f["ingested_at"] = r.IngestedAt
	}
	f["processed"] = strconv.FormatBool(r.Processed)

	if r.ProcessedAt != "" {
		f["processed_at"] = r.ProcessedAt
		f["worker_id"] = r.WorkerID
		f["anomaly_detected"] = strconv.FormatBool(r.AnomalyDetected)
		f["z_score"] = strconv.FormatFloat(r.ZScore, 'f', -1, 64)
		f["processing_time"] = r.ProcessingTime
	}

	if r.RetryCount > 0 {
		f["retry_count"] = strconv.Itoa(r.RetryCount)
		f["last_error"] = r.LastError
		f["failed_at"] = r.FailedAt
	}

	if r.OriginalEventID != "" {
		f["original_event_id"] = r.OriginalEventID
		f["dlq_reason"] = r.DLQReason
		f["dlq_timestamp"] = r.DLQTimestamp
		f["final_retry_count"] = strconv.Itoa(r.FinalRetryCount)
	}

	if len(r.Metadata) > 0 {
		f["metadata"] = encodeMetadata(r.Metadata)
	}

	return f
}

// RecordFromFields parses the log-boundary string map back into a typed
// Record. Keys this type doesn't model are kept in Extras.
func RecordFromFields(fields map[string]string) (Record, error) {
	var r Record
	r.Extras = make(map[string]string)

	ts, ok := fields["timestamp"]
	if !ok {
		return Record{}, fmt.Errorf("%w: timestamp", ErrMissingField)
	}
	r.Timestamp = ts

	typ, ok := fields["type"]
	if !ok {
		return Record{}, fmt.Errorf("%w: type", ErrMissingField)
	}
	r.Type = typ

	rawValue, ok := fields["value"]
	if !ok {
		return Record{}, fmt.Errorf("%w: value", ErrMissingField)
	}
	v, err := strconv.ParseFloat(rawValue, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: value", ErrInvalidValue)
	}
	r.Value = v

	for k, v := range fields {
		switch k {
		case "timestamp", "type", "value":
			// already consumed
		case "ingested_at":
			r.IngestedAt = v
		case "processed":
			r.Processed = v == "true"
		case "processed_at":
			r.ProcessedAt = v
		case "worker_id":
			r.WorkerID = v
		case "anomaly_detected":
			r.AnomalyDetected = v == "true"
		case "z_score":
			r.ZScore, _ = strconv.ParseFloat(v, 64)
		case "processing_time":
			r.ProcessingTime = v
		case "retry_count":
			r.RetryCount, _ = strconv.Atoi(v)
		case "last_error":
			r.LastError = v
		case "failed_at":
			r.FailedAt = v
		case "original_event_id":
			r.OriginalEventID = v
		case "dlq_reason":
			r.DLQReason = v
		case "dlq_timestamp":
			r.DLQTimestamp = v
		case "final_retry_count":
			r.FinalRetryCount, _ = strconv.Atoi(v)
		case "metadata":
			r.Metadata = decodeMetadata(v)
		default:
			r.Extras[k] = v
		}
	}

	return r, nil
}

// retryStrippedPrefixes are the field-name prefixes an admin DLQ retry
// removes before re-appending a cleaned copy to the events log.
var retryStrippedPrefixes = []string{"retry_count", "last_error", "failed_at", "dlq_"}

// CleanRetryFields strips retry/failure/DLQ bookkeeping from a raw field
// map, used by the admin retry_dlq_event operation.
func CleanRetryFields(fields map[string]string) map[string]string {
	cleaned := make(map[string]string, len(fields))
	for k, v := range fields {
		stripped := false
		for _, prefix := range retryStrippedPrefixes {
			if strings.HasPrefix(k, prefix) {
				stripped = true
				break
			}
		}
		if !stripped {
			cleaned[k] = v
		}
	}
	return cleaned
}

// Entry is one immutable record read back from a log, identified by its
// monotonically ordered, opaque entry id.
type Entry struct {
	ID     string
	Fields map[string]string
}

// Info summarizes a stream for health reporting.
type Info struct {
	Length     int64
	Groups     int64
	FirstEntry *Entry
	LastEntry  *Entry
}
