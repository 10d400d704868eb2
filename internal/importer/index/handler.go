package index

import (
	"sync"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
	"github.com/flowlens/flowlens/internal/importer/model"
)

// CheckpointReader is the part of the checkpoint store a handler needs to initialise itself.
type CheckpointReader interface {
	Get(ctx *flowlenscontext.Context, entityTypeId string, dataSourceId string) (*model.IndexState, error)
}

// CursorStrategy is the cursor state machine of a handler. The two implementations are TimestampStrategy and
// PositionStrategy; they share the model.IndexState shape and differ in how pages are described and records filtered.
type CursorStrategy interface {
	Kind() CursorKind
	nextPage(ctx *flowlenscontext.Context, state *model.IndexState, page *Page)
	newFilter(ctx *flowlenscontext.Context, state *model.IndexState, page Page) recordFilter
	confirm(state *model.IndexState, confirmed []entry)
	discardPending(state *model.IndexState)
	// load drops everything the strategy remembers about a previous state
	load(state *model.IndexState)
}

type recordFilter interface {
	accept(e entry) bool
	// done is called once every record of the page has been offered
	done(total int)
}

type entry struct {
	id     string
	cursor model.Cursor
}

// Handler owns the import cursor of one (data source, entity type) pair. It is used by exactly one mediator; other
// goroutines only ever see copies of its state obtained through IndexState.
type Handler struct {
	state       model.IndexState
	strategy    CursorStrategy
	partitionId int32
	pageSize    int
	clock       clock.PassiveClock
	initialised bool
	mu          sync.Mutex
}

func NewHandler(
	dataSourceType model.DataSourceType,
	dataSourceId string,
	entityTypeId string,
	partitionId int32,
	pageSize int,
	strategy CursorStrategy,
	clock clock.PassiveClock,
) *Handler {
	return &Handler{
		state:       model.NewIndexState(dataSourceType, dataSourceId, entityTypeId),
		strategy:    strategy,
		partitionId: partitionId,
		pageSize:    pageSize,
		clock:       clock,
	}
}

// Init loads the persisted checkpoint. If none exists the defaults ("beginning of time", position zero) apply.
// Pending values always restart from the persisted ones so that nothing fetched but unwritten before a restart is
// skipped.
func (h *Handler) Init(ctx *flowlenscontext.Context, store CheckpointReader) error {
	stored, err := store.Get(ctx, h.state.EntityTypeId, h.state.DataSourceId)
	if err != nil {
		return errors.WithMessagef(err, "loading import index %s", h.state.Key())
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	hasSeenSequence := h.state.HasSeenSequenceField
	if stored != nil {
		h.state = *stored
		ctx.Log.Infof("Resuming import of %s from %s", h.state.Key(), h.persistedCursor())
	} else {
		h.state = model.NewIndexState(h.state.DataSourceType, h.state.DataSourceId, h.state.EntityTypeId)
		ctx.Log.Infof("No import index found for %s; importing from the beginning", h.state.Key())
	}
	// once seen, never forgotten
	h.state.HasSeenSequenceField = h.state.HasSeenSequenceField || hasSeenSequence
	h.strategy.load(&h.state)
	h.initialised = true
	return nil
}

func (h *Handler) IsInitialised() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.initialised
}

// NextPage describes the page that follows everything fetched so far.
func (h *Handler) NextPage(ctx *flowlenscontext.Context) Page {
	h.mu.Lock()
	defer h.mu.Unlock()
	page := Page{
		Kind:         h.strategy.Kind(),
		DataSourceId: h.state.DataSourceId,
		EntityTypeId: h.state.EntityTypeId,
		PartitionId:  h.partitionId,
		Limit:        h.pageSize,
	}
	h.strategy.nextPage(ctx, &h.state, &page)
	return page
}

// UpdateFromFetchedEntity moves the pending cursor to the given cursor of a record that has been fetched.
func (h *Handler) UpdateFromFetchedEntity(cursor model.Cursor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	updatePending(&h.state, cursor)
}

func updatePending(state *model.IndexState, cursor model.Cursor) {
	state.PendingPosition = max(state.PendingPosition, cursor.Position)
	state.PendingSequence = max(state.PendingSequence, cursor.Sequence)
}

// Rollback forgets everything fetched since the last confirmation so that the same page is fetched again.
func (h *Handler) Rollback() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.strategy.discardPending(&h.state)
}

// IndexState returns a copy of the current checkpoint, suitable for persisting.
func (h *Handler) IndexState() model.IndexState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// ResetImportIndex returns every cursor field to its default so that the entity type is imported again from the
// beginning. Documents that have already been written are left alone.
func (h *Handler) ResetImportIndex() {
	h.mu.Lock()
	defer h.mu.Unlock()
	hasSeenSequence := h.state.HasSeenSequenceField
	h.state = model.NewIndexState(h.state.DataSourceType, h.state.DataSourceId, h.state.EntityTypeId)
	h.state.HasSeenSequenceField = hasSeenSequence
	h.strategy.load(&h.state)
}

func (h *Handler) DataSourceId() string {
	return h.state.DataSourceId
}

func (h *Handler) EntityTypeId() string {
	return h.state.EntityTypeId
}

func (h *Handler) Key() string {
	return h.state.Key()
}

func (h *Handler) persistedCursor() model.Cursor {
	return model.Cursor{
		Timestamp: h.state.TimestampOfLastPersistedEntity,
		Position:  h.state.PersistedPosition,
		Sequence:  h.state.PersistedSequence,
	}
}

// FilterNew returns the records of a fetched page that have not been imported yet, in order, and moves the pending
// cursor to the last of them. Records that would move the cursor backwards are dropped.
func FilterNew[R model.Record](ctx *flowlenscontext.Context, h *Handler, page Page, records []R) []R {
	h.mu.Lock()
	defer h.mu.Unlock()
	filter := h.strategy.newFilter(ctx, &h.state, page)
	accepted := make([]R, 0, len(records))
	for _, record := range records {
		if filter.accept(entry{id: record.RecordId(), cursor: record.Cursor()}) {
			accepted = append(accepted, record)
		}
	}
	filter.done(len(records))
	return accepted
}

// Confirm records that the given records, a prefix of what FilterNew returned, have been written. The persisted
// cursor moves to the last of them and pending values are reset to the persisted ones.
func Confirm[R model.Record](h *Handler, written []R) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries := make([]entry, len(written))
	for i, record := range written {
		entries[i] = entry{id: record.RecordId(), cursor: record.Cursor()}
	}
	if len(entries) > 0 {
		h.strategy.confirm(&h.state, entries)
		h.state.LastImportExecutionTimestamp = h.clock.Now().UTC()
	}
	h.strategy.discardPending(&h.state)
}
