package index

import (
	"time"

	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
	"github.com/flowlens/flowlens/internal/importer/model"
)

const DefaultMaxBoundaryRefetches = 5

// TimestampStrategy imports records ordered by a timestamp that is neither unique nor strictly monotonic.
//
// The timestamp of the last persisted record is a closed boundary: every page starts at it again so that records
// sharing that timestamp but arriving late are still picked up. Ids already written at the boundary are remembered
// and filtered out. The boundary moves as soon as a strictly later timestamp has been written.
//
// If full pages keep coming back without a single record beyond the boundary, the page size is too small to ever
// get past it. After maxBoundaryRefetches such pages the boundary is forced one millisecond forward.
type TimestampStrategy struct {
	maxBoundaryRefetches int
	seenAtBoundary       map[string]struct{}
	boundaryRefetches    int
}

func NewTimestampStrategy(maxBoundaryRefetches int) *TimestampStrategy {
	if maxBoundaryRefetches <= 0 {
		maxBoundaryRefetches = DefaultMaxBoundaryRefetches
	}
	return &TimestampStrategy{
		maxBoundaryRefetches: maxBoundaryRefetches,
		seenAtBoundary:       map[string]struct{}{},
	}
}

func (s *TimestampStrategy) Kind() CursorKind {
	return CursorTimestamp
}

func (s *TimestampStrategy) nextPage(ctx *flowlenscontext.Context, state *model.IndexState, page *Page) {
	if s.boundaryRefetches >= s.maxBoundaryRefetches {
		forced := state.TimestampOfLastPersistedEntity.Add(time.Millisecond)
		ctx.Log.Warnf(
			"Import of %s fetched %d full pages at timestamp %s without getting past it; moving on to %s",
			state.Key(),
			s.boundaryRefetches,
			state.TimestampOfLastPersistedEntity.Format(time.RFC3339Nano),
			forced.Format(time.RFC3339Nano),
		)
		state.TimestampOfLastPersistedEntity = forced
		s.seenAtBoundary = map[string]struct{}{}
		s.boundaryRefetches = 0
	}
	page.TimestampFrom = state.TimestampOfLastPersistedEntity
}

func (s *TimestampStrategy) newFilter(_ *flowlenscontext.Context, _ *model.IndexState, page Page) recordFilter {
	return &timestampFilter{strategy: s, boundary: page.TimestampFrom, limit: page.Limit, onlyBoundary: true}
}

func (s *TimestampStrategy) confirm(state *model.IndexState, confirmed []entry) {
	for _, e := range confirmed {
		ts := e.cursor.Timestamp
		if ts.After(state.TimestampOfLastPersistedEntity) {
			state.TimestampOfLastPersistedEntity = ts
			s.seenAtBoundary = map[string]struct{}{}
		}
		if ts.Equal(state.TimestampOfLastPersistedEntity) {
			s.seenAtBoundary[e.id] = struct{}{}
		}
	}
}

// Timestamp cursors have no pending fields; the boundary only moves on confirmation.
func (s *TimestampStrategy) discardPending(*model.IndexState) {}

func (s *TimestampStrategy) load(*model.IndexState) {
	s.seenAtBoundary = map[string]struct{}{}
	s.boundaryRefetches = 0
}

type timestampFilter struct {
	strategy     *TimestampStrategy
	boundary     time.Time
	limit        int
	onlyBoundary bool
}

func (f *timestampFilter) accept(e entry) bool {
	ts := e.cursor.Timestamp
	if ts.Before(f.boundary) {
		return false
	}
	if ts.After(f.boundary) {
		f.onlyBoundary = false
		return true
	}
	_, seen := f.strategy.seenAtBoundary[e.id]
	return !seen
}

func (f *timestampFilter) done(total int) {
	if f.limit > 0 && total >= f.limit && f.onlyBoundary {
		f.strategy.boundaryRefetches++
	} else {
		f.strategy.boundaryRefetches = 0
	}
}
