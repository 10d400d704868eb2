package index

import (
	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
	"github.com/flowlens/flowlens/internal/importer/model"
)

// PositionStrategy imports records of one partition ordered by their position, or by their sequence once the source
// has been seen to write one. Positions that do not strictly increase are skipped rather than moving the cursor
// backwards.
type PositionStrategy struct{}

func NewPositionStrategy() *PositionStrategy {
	return &PositionStrategy{}
}

func (s *PositionStrategy) Kind() CursorKind {
	return CursorPosition
}

func (s *PositionStrategy) nextPage(_ *flowlenscontext.Context, state *model.IndexState, page *Page) {
	if state.HasSeenSequenceField {
		page.OrderBy = OrderBySequence
		page.After = state.PendingSequence
	} else {
		page.OrderBy = OrderByPosition
		page.After = state.PendingPosition
	}
}

func (s *PositionStrategy) newFilter(ctx *flowlenscontext.Context, state *model.IndexState, page Page) recordFilter {
	return &positionFilter{ctx: ctx, state: state, orderBy: page.OrderBy, last: page.After}
}

func (s *PositionStrategy) confirm(state *model.IndexState, confirmed []entry) {
	for _, e := range confirmed {
		state.PersistedPosition = max(state.PersistedPosition, e.cursor.Position)
		state.PersistedSequence = max(state.PersistedSequence, e.cursor.Sequence)
		if e.cursor.Timestamp.After(state.TimestampOfLastPersistedEntity) {
			state.TimestampOfLastPersistedEntity = e.cursor.Timestamp
		}
	}
}

func (s *PositionStrategy) discardPending(state *model.IndexState) {
	state.PendingPosition = state.PersistedPosition
	state.PendingSequence = state.PersistedSequence
}

func (s *PositionStrategy) load(state *model.IndexState) {
	s.discardPending(state)
}

type positionFilter struct {
	ctx     *flowlenscontext.Context
	state   *model.IndexState
	orderBy OrderingKey
	last    int64
}

func (f *positionFilter) accept(e entry) bool {
	if e.cursor.Sequence > 0 && !f.state.HasSeenSequenceField {
		f.state.HasSeenSequenceField = true
		f.ctx.Log.Infof(
			"Source of %s started writing sequence numbers at position %d; records will be ordered by sequence from now on",
			f.state.Key(), e.cursor.Position)
	}
	key := e.cursor.Position
	if f.orderBy == OrderBySequence {
		key = e.cursor.Sequence
	}
	if key <= f.last {
		f.ctx.Log.Warnf("Skipping record %s of %s: %s %d does not follow %d", e.id, f.state.Key(), f.orderBy, key, f.last)
		return false
	}
	f.last = key
	updatePending(f.state, e.cursor)
	return true
}

func (f *positionFilter) done(int) {}
