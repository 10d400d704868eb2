package writer

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
	"github.com/flowlens/flowlens/internal/importer/destination"
	"github.com/flowlens/flowlens/internal/importer/model"
)

// Writer turns a batch of records into destination operations. Operations must be idempotent: the same batch may be
// written again after a restart.
//
// Records that cannot be turned into an operation are left out and reported as *RecordError values inside a
// *multierror.Error; the operations for all other records are still returned.
type Writer[R model.Record] interface {
	Write(ctx *flowlenscontext.Context, records []R) ([]*destination.Operation, error)
}

// RecordError is a record that could not be written.
type RecordError struct {
	// Position of the record in the batch
	Position int
	RecordId string
	Err      error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %s: %s", e.RecordId, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// SkippedRecords returns the batch positions of the records err reports as unwritable.
func SkippedRecords(err error) map[int]error {
	skipped := map[int]error{}
	if err == nil {
		return skipped
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		for _, e := range merr.Errors {
			var recordErr *RecordError
			if errors.As(e, &recordErr) {
				skipped[recordErr.Position] = recordErr.Err
			}
		}
		return skipped
	}
	var recordErr *RecordError
	if errors.As(err, &recordErr) {
		skipped[recordErr.Position] = recordErr.Err
	}
	return skipped
}

type recordErrors struct {
	result *multierror.Error
}

func (r *recordErrors) add(position int, record model.Record, err error) {
	r.result = multierror.Append(r.result, &RecordError{Position: position, RecordId: record.RecordId(), Err: err})
}

func (r *recordErrors) err() error {
	return r.result.ErrorOrNil()
}

// mergeDocument returns a merge that decodes the stored document into a D (the zero value if there is none), applies
// mutate and encodes the result.
func mergeDocument[D any](mutate func(doc *D, exists bool) error) destination.MergeFunc {
	return func(existing json.RawMessage) (json.RawMessage, error) {
		var doc D
		if existing != nil {
			if err := json.Unmarshal(existing, &doc); err != nil {
				return nil, errors.Wrap(err, "decoding stored document")
			}
		}
		if err := mutate(&doc, existing != nil); err != nil {
			return nil, err
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return data, nil
	}
}

// unionById merges incoming into existing. Items with an id already present are replaced in place; new items are
// appended in the order they arrive.
func unionById[T any](existing []T, incoming []T, id func(T) string) []T {
	positions := make(map[string]int, len(existing)+len(incoming))
	result := make([]T, 0, len(existing)+len(incoming))
	for _, item := range existing {
		if i, ok := positions[id(item)]; ok {
			result[i] = item
			continue
		}
		positions[id(item)] = len(result)
		result = append(result, item)
	}
	for _, item := range incoming {
		if i, ok := positions[id(item)]; ok {
			result[i] = item
			continue
		}
		positions[id(item)] = len(result)
		result = append(result, item)
	}
	return result
}

// MergeIncidents returns the union of existing and incoming incidents, incoming ones replacing stored ones with the
// same id.
func MergeIncidents(existing []model.IncidentDocument, incoming []model.IncidentDocument) []model.IncidentDocument {
	return unionById(existing, incoming, func(i model.IncidentDocument) string { return i.Id })
}

// MergeVariables returns the union of existing and incoming variables, incoming ones replacing stored ones with the
// same id.
func MergeVariables(existing []model.VariableDocument, incoming []model.VariableDocument) []model.VariableDocument {
	return unionById(existing, incoming, func(v model.VariableDocument) string { return v.Id })
}

func encode(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return data, nil
}

// grouped collects records targeting the same document, in order of first appearance.
type grouped[T any] struct {
	order []string
	items map[string][]T
	pos   map[string][]int
}

func newGrouped[T any]() *grouped[T] {
	return &grouped[T]{items: map[string][]T{}, pos: map[string][]int{}}
}

func (g *grouped[T]) add(key string, position int, item T) {
	if _, ok := g.items[key]; !ok {
		g.order = append(g.order, key)
	}
	g.items[key] = append(g.items[key], item)
	g.pos[key] = append(g.pos[key], position)
}
