package index

import (
	"fmt"
	"time"
)

type CursorKind int

const (
	CursorTimestamp CursorKind = iota
	CursorPosition
)

func (k CursorKind) String() string {
	if k == CursorPosition {
		return "position"
	}
	return "timestamp"
}

// OrderingKey is the record field a position-based page is filtered and sorted by.
type OrderingKey string

const (
	OrderByPosition OrderingKey = "position"
	OrderBySequence OrderingKey = "sequence"
)

// Page describes the next page of records a fetcher should return.
//
// Timestamp pages select records whose cursor timestamp is >= TimestampFrom, i.e. the last imported timestamp is a
// closed boundary. Position pages select records of PartitionId whose OrderBy field is > After. In both cases records
// must be sorted ascending and at most Limit records returned.
type Page struct {
	Kind          CursorKind
	DataSourceId  string
	EntityTypeId  string
	PartitionId   int32
	TimestampFrom time.Time
	OrderBy       OrderingKey
	After         int64
	Limit         int
}

func (p Page) String() string {
	if p.Kind == CursorPosition {
		return fmt.Sprintf("partition=%d %s>%d limit=%d", p.PartitionId, p.OrderBy, p.After, p.Limit)
	}
	return fmt.Sprintf("timestamp>=%s limit=%d", p.TimestampFrom.Format(time.RFC3339Nano), p.Limit)
}
