package model

import (
	"fmt"
	"time"
)

// BeginningOfTime is the timestamp cursor value of an entity type that has never been imported.
var BeginningOfTime = time.Unix(0, 0).UTC()

// Cursor is the ordering key of one upstream record. Engine records only carry a Timestamp; zeebe records carry a
// Position and, on newer brokers, a Sequence.
type Cursor struct {
	Timestamp time.Time
	Position  int64
	Sequence  int64
}

func (c Cursor) String() string {
	if c.Position > 0 || c.Sequence > 0 {
		return fmt.Sprintf("position=%d sequence=%d", c.Position, c.Sequence)
	}
	return fmt.Sprintf("timestamp=%s", c.Timestamp.Format(time.RFC3339Nano))
}

// Record is implemented by every raw record a fetcher returns.
type Record interface {
	// RecordId identifies the record within its data source and entity type.
	RecordId() string
	Cursor() Cursor
}
