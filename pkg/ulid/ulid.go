// Package ulid adapts the teacher's pkg/ulid wrapper for a repo with no
// database layer: batch and synthetic event identifiers only need
// generation, parsing and JSON (de)serialization, so the sql.Scanner and
// driver.Valuer implementations are dropped.
package ulid

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// ULID is a lexicographically sortable, time-prefixed identifier used
// for batch_id and synthetic event ids.
type ULID struct {
	ulid.ULID
}

// New generates a ULID stamped with the current time.
func New() ULID {
	return ULID{ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader)}
}

// NewFromTime generates a ULID stamped with t.
func NewFromTime(t time.Time) ULID {
	return ULID{ulid.MustNew(ulid.Timestamp(t), rand.Reader)}
}

// Parse parses a ULID string.
func Parse(s string) (ULID, error) {
	parsed, err := ulid.Parse(s)
	if err != nil {
		return ULID{}, err
	}
	return ULID{parsed}, nil
}

func (u ULID) String() string {
	return u.ULID.String()
}

// IsZero reports whether u is the zero-value ULID.
func (u ULID) IsZero() bool {
	return u.ULID == ulid.ULID{}
}

// MarshalJSON implements json.Marshaler.
func (u ULID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + u.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *ULID) UnmarshalJSON(data []byte) error {
	if len(data) < 2 {
		return fmt.Errorf("invalid JSON for ULID: %s", string(data))
	}
	str := string(data[1 : len(data)-1])
	if str == "null" || str == "" {
		*u = ULID{}
		return nil
	}
	parsed, err := Parse(str)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
