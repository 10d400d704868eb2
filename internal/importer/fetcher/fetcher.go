package fetcher

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
	"github.com/flowlens/flowlens/internal/common/flowlenserrors"
	"github.com/flowlens/flowlens/internal/importer/index"
	"github.com/flowlens/flowlens/internal/importer/model"
)

// Fetcher reads one page of records from an upstream source.
//
// Records must be returned sorted ascending by the cursor field the page is filtered on, at most page.Limit of them.
// If the collection the page would be read from does not exist yet, Fetch returns an *flowlenserrors.ErrSourceNotFound
// and callers treat this as "no data yet". Any other error is a failure to be retried.
type Fetcher[R model.Record] interface {
	Fetch(ctx *flowlenscontext.Context, page index.Page) ([]R, error)
}

// MemorySource is an in-process source of records. It serves pages the way the real sources do, which makes it
// useful for exercising mediators without an engine or a broker.
type MemorySource[R model.Record] struct {
	dataSourceId string
	records      []R
	missing      bool
	errs         []error
	fetches      int
	mu           sync.Mutex
}

func NewMemorySource[R model.Record](dataSourceId string, records ...R) *MemorySource[R] {
	return &MemorySource[R]{dataSourceId: dataSourceId, records: records}
}

// Add makes records available to subsequent fetches.
func (s *MemorySource[R]) Add(records ...R) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
}

// SetMissing makes Fetch report that the source does not exist yet.
func (s *MemorySource[R]) SetMissing(missing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missing = missing
}

// FailNext makes the next len(errs) fetches fail with the given errors, in order.
func (s *MemorySource[R]) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, errs...)
}

// Fetches returns the number of times Fetch has been called.
func (s *MemorySource[R]) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func (s *MemorySource[R]) Fetch(_ *flowlenscontext.Context, page index.Page) ([]R, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	if s.missing {
		return nil, errors.WithStack(&flowlenserrors.ErrSourceNotFound{DataSource: s.dataSourceId, Source: page.EntityTypeId})
	}

	var selected []R
	switch {
	case page.Kind == index.CursorTimestamp:
		for _, r := range s.records {
			if !r.Cursor().Timestamp.Before(page.TimestampFrom) {
				selected = append(selected, r)
			}
		}
		sort.SliceStable(selected, func(i, j int) bool {
			return selected[i].Cursor().Timestamp.Before(selected[j].Cursor().Timestamp)
		})
	default:
		key := func(r R) int64 { return r.Cursor().Position }
		if page.OrderBy == index.OrderBySequence {
			key = func(r R) int64 { return r.Cursor().Sequence }
		}
		for _, r := range s.records {
			if key(r) > page.After {
				selected = append(selected, r)
			}
		}
		sort.SliceStable(selected, func(i, j int) bool { return key(selected[i]) < key(selected[j]) })
	}
	if page.Limit > 0 && len(selected) > page.Limit {
		selected = selected[:page.Limit]
	}
	return selected, nil
}
