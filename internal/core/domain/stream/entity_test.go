package stream

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventValidate(t *testing.T) {
	valid := Event{Timestamp: "2024-01-30T10:45:00Z", Type: "t", Value: 42.5}
	assert.NoError(t, valid.Validate())

	assert.ErrorIs(t, Event{Type: "t", Value: 1}.Validate(), ErrMissingField)
	assert.ErrorIs(t, Event{Timestamp: "2024-01-30T10:45:00Z", Value: 1}.Validate(), ErrMissingField)
	assert.ErrorIs(t, Event{Timestamp: "2024-01-30T10:45:00Z", Type: "t", Value: math.NaN()}.Validate(), ErrInvalidValue)
	assert.ErrorIs(t, Event{Timestamp: "2024-01-30T10:45:00Z", Type: "t", Value: math.Inf(1)}.Validate(), ErrInvalidValue)
}

func TestEnrichStampsIngestionFields(t *testing.T) {
	now := time.Date(2024, 1, 30, 10, 45, 0, 0, time.UTC)
	r := Enrich(Event{Timestamp: "2024-01-30T10:44:00Z", Type: "t", Value: 1}, now)

	fields := r.ToFields()
	assert.Equal(t, "2024-01-30T10:45:00Z", fields["ingested_at"])
	assert.Equal(t, "false", fields["processed"])
	assert.Equal(t, "1", fields["value"])
}

func TestRecordFromFieldsPreservesUnknownKeys(t *testing.T) {
	r, err := RecordFromFields(map[string]string{
		"timestamp": "2024-01-30T10:45:00Z",
		"type":      "t",
		"value":     "42.5",
		"source":    "sensor-7",
	})
	require.NoError(t, err)
	assert.Equal(t, 42.5, r.Value)
	assert.Equal(t, "sensor-7", r.Extras["source"])
	assert.Equal(t, "sensor-7", r.ToFields()["source"])
}

func TestRecordFromFieldsRejectsMissingOrBadValue(t *testing.T) {
	_, err := RecordFromFields(map[string]string{"type": "t", "value": "1"})
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = RecordFromFields(map[string]string{"timestamp": "x", "type": "t", "value": "not-a-number"})
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestCleanRetryFields(t *testing.T) {
	cleaned := CleanRetryFields(map[string]string{
		"timestamp":         "2024-01-30T10:45:00Z",
		"type":              "t",
		"value":             "1",
		"retry_count":       "4",
		"last_error":        "boom",
		"failed_at":         "2024-01-30T10:46:00Z",
		"dlq_reason":        "boom",
		"dlq_timestamp":     "2024-01-30T10:47:00Z",
		"original_event_id": "1-1",
		"final_retry_count": "4",
	})

	assert.Equal(t, "t", cleaned["type"])
	for _, k := range []string{"retry_count", "last_error", "failed_at", "dlq_reason", "dlq_timestamp"} {
		_, ok := cleaned[k]
		assert.False(t, ok, k)
	}
	// Keys outside the stripped prefixes survive the cleaning.
	assert.Equal(t, "1-1", cleaned["original_event_id"])
	assert.Equal(t, "4", cleaned["final_retry_count"])
}
