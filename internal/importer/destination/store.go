package destination

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/flowlens/flowlens/internal/common/database"
	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
	"github.com/flowlens/flowlens/internal/importer/configuration"
)

const DefaultRetryOnConflict = 3

// ErrNoChange is returned by a MergeFunc that leaves the stored document as it is.
var ErrNoChange = errors.New("document unchanged")

// ErrVersionConflict is returned when a document changed between being read and written back.
var ErrVersionConflict = errors.New("version conflict")

// Document is one stored document. Version is incremented on every write.
type Document struct {
	Index   string
	Id      string
	Source  json.RawMessage
	Version int64
}

type OpType int

const (
	// OpIndex replaces the document, creating it if needed.
	OpIndex OpType = iota
	// OpUpdate reads the document, merges into it and writes it back if it has not changed in the meantime.
	OpUpdate
)

// MergeFunc computes the new source of a document from its current source, which is nil if the document does not
// exist. It must be safe to call more than once.
type MergeFunc func(existing json.RawMessage) (json.RawMessage, error)

type Operation struct {
	Type   OpType
	Index  string
	Id     string
	Source json.RawMessage
	Merge  MergeFunc
	// Number of times an OpUpdate is retried after losing a race with a concurrent writer
	RetryOnConflict uint
	// Positions, within the written batch, of the records this operation was built from
	Records []int
}

func (op *Operation) String() string {
	return fmt.Sprintf("%s/%s", op.Index, op.Id)
}

// BulkResult holds the failures of individual operations of a bulk request, keyed by the operation's position in the
// request.
type BulkResult struct {
	Failures map[int]error
}

func newBulkResult() *BulkResult {
	return &BulkResult{Failures: map[int]error{}}
}

func (r *BulkResult) HasFailures() bool {
	return len(r.Failures) > 0
}

// Store is the document store imported data is written to.
//
// Bulk applies every operation independently. Failures of single operations are reported in the result; an error is
// only returned if the store could not be reached at all, in which case any subset of operations may have been
// applied.
type Store interface {
	Bulk(ctx *flowlenscontext.Context, ops []*Operation) (*BulkResult, error)
	// Get returns the document or nil if it does not exist.
	Get(ctx *flowlenscontext.Context, index string, id string) (*Document, error)
	// Search returns every document of an index.
	Search(ctx *flowlenscontext.Context, index string) ([]*Document, error)
	Close() error
}

func NewStore(ctx *flowlenscontext.Context, config configuration.DestinationConfiguration) (Store, error) {
	switch config.Type {
	case configuration.StorePostgres:
		db, err := database.OpenPgxPool(ctx, config.Postgres)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(ctx, db)
	case configuration.StoreMemory, "":
		return NewMemoryStore()
	}
	return nil, errors.Errorf("unknown destination store type %s", config.Type)
}

// apply computes the source to store for op given the current document, which may be nil. ok is false if nothing
// needs to be written.
func apply(op *Operation, current *Document) (source json.RawMessage, ok bool, err error) {
	switch op.Type {
	case OpIndex:
		return op.Source, true, nil
	case OpUpdate:
		var existing json.RawMessage
		if current != nil {
			existing = current.Source
		}
		merged, err := op.Merge(existing)
		if errors.Is(err, ErrNoChange) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, errors.WithMessagef(err, "merging into %s", op)
		}
		return merged, true, nil
	}
	return nil, false, errors.Errorf("unknown operation type %d", op.Type)
}
