package stream

import "errors"

var (
	// ErrMissingField is returned when an ingress event is missing a
	// required attribute.
	ErrMissingField = errors.New("missing required field")

	// ErrInvalidValue is returned when an event's value is not a finite
	// number.
	ErrInvalidValue = errors.New("invalid numeric value")

	// ErrBatchTooLarge is returned when a batch exceeds MaxBatchSize.
	ErrBatchTooLarge = errors.New("batch exceeds maximum size")

	// ErrRetryExhausted marks a FailedEvent that has used its retry
	// budget and must be promoted to the DLQ.
	ErrRetryExhausted = errors.New("retry budget exhausted")

	// ErrNotFound is returned when an admin lookup (e.g. a DLQ entry id)
	// does not resolve to an entry.
	ErrNotFound = errors.New("entry not found")
)
