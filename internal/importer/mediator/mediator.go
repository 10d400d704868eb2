package mediator

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
	"github.com/flowlens/flowlens/internal/common/flowlenserrors"
	"github.com/flowlens/flowlens/internal/common/logging"
	"github.com/flowlens/flowlens/internal/importer/backoff"
	"github.com/flowlens/flowlens/internal/importer/destination"
	"github.com/flowlens/flowlens/internal/importer/fetcher"
	"github.com/flowlens/flowlens/internal/importer/index"
	"github.com/flowlens/flowlens/internal/importer/metrics"
	"github.com/flowlens/flowlens/internal/importer/model"
	"github.com/flowlens/flowlens/internal/importer/toggle"
	"github.com/flowlens/flowlens/internal/importer/writer"
)

var (
	ErrImportPending = errors.New("previous import cycle has not completed")
	ErrShutdown      = errors.New("mediator is shut down")
)

type State int

const (
	StateIdle State = iota
	StateFetching
	StateWriting
	StateAdvancing
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateWriting:
		return "writing"
	case StateAdvancing:
		return "advancing"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ActivityReporter is told about the import activity of a data source.
type ActivityReporter interface {
	JobStarted(dataSourceId string)
	JobFinished(dataSourceId string)
	Advanced(dataSourceId string, at time.Time)
}

type noopReporter struct{}

func (noopReporter) JobStarted(string)          {}
func (noopReporter) JobFinished(string)         {}
func (noopReporter) Advanced(string, time.Time) {}

// ImportMediator imports one entity type from one data source. Each cycle fetches the page following the cursor of
// its index handler, writes it to the destination and advances the cursor over what has been written. Cycles never
// overlap.
type ImportMediator[R model.Record] struct {
	handler     *index.Handler
	checkpoints index.CheckpointReader
	fetcher     fetcher.Fetcher[R]
	writer      writer.Writer[R]
	destination destination.Store
	backoff     *backoff.Calculator
	rank        model.MediatorRank
	reporter    ActivityReporter
	clock       clock.PassiveClock

	state        State
	pending      bool
	shutdown     bool
	lastAdvanced time.Time
	inflight     sync.WaitGroup
	mu           sync.Mutex
}

type Option[R model.Record] func(m *ImportMediator[R])

func WithReporter[R model.Record](reporter ActivityReporter) Option[R] {
	return func(m *ImportMediator[R]) {
		m.reporter = reporter
	}
}

// New creates a mediator ranked by the entity type of its handler.
func New[R model.Record](
	handler *index.Handler,
	checkpoints index.CheckpointReader,
	fetcher fetcher.Fetcher[R],
	writer writer.Writer[R],
	destination destination.Store,
	backoff *backoff.Calculator,
	clock clock.PassiveClock,
	opts ...Option[R],
) *ImportMediator[R] {
	m := &ImportMediator[R]{
		handler:     handler,
		checkpoints: checkpoints,
		fetcher:     fetcher,
		writer:      writer,
		destination: destination,
		backoff:     backoff,
		rank:        model.RankOf(handler.EntityTypeId()),
		reporter:    noopReporter{},
		clock:       clock,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *ImportMediator[R]) Name() string {
	return m.handler.Key()
}

func (m *ImportMediator[R]) DataSourceId() string {
	return m.handler.DataSourceId()
}

func (m *ImportMediator[R]) Rank() model.MediatorRank {
	return m.rank
}

func (m *ImportMediator[R]) IndexHandler() *index.Handler {
	return m.handler
}

func (m *ImportMediator[R]) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastAdvanced returns when the cursor last moved, zero if it has not moved since start.
func (m *ImportMediator[R]) LastAdvanced() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAdvanced
}

// CanImport returns false while the data source is disabled, the mediator is backing off or shut down.
func (m *ImportMediator[R]) CanImport(ctx *flowlenscontext.Context) bool {
	m.mu.Lock()
	shutdown := m.shutdown
	m.mu.Unlock()
	return !shutdown && toggle.Enabled(ctx, m.DataSourceId()) && m.backoff.IsReadyToImport()
}

// HasPendingImportJobs returns true while a cycle started by RunImport has not completed.
func (m *ImportMediator[R]) HasPendingImportJobs() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// RunImport starts one import cycle in the background. The returned channel receives the outcome of the cycle and is
// then closed. Cancelling ctx interrupts fetching but not a write that has already started.
func (m *ImportMediator[R]) RunImport(ctx *flowlenscontext.Context) <-chan error {
	done := make(chan error, 1)
	m.mu.Lock()
	if m.shutdown || m.pending {
		err := ErrImportPending
		if m.shutdown {
			err = ErrShutdown
		}
		m.mu.Unlock()
		done <- err
		close(done)
		return done
	}
	m.pending = true
	m.inflight.Add(1)
	m.mu.Unlock()

	dataSourceId := m.DataSourceId()
	m.reporter.JobStarted(dataSourceId)
	metrics.Get().JobStarted()
	go func() {
		start := m.clock.Now()
		err := m.runCycle(flowlenscontext.ForImport(ctx, dataSourceId, m.handler.EntityTypeId()))
		metrics.Get().RecordCycle(dataSourceId, m.handler.EntityTypeId(), m.clock.Since(start))
		metrics.Get().JobFinished()
		m.reporter.JobFinished(dataSourceId)
		m.mu.Lock()
		m.pending = false
		m.mu.Unlock()
		m.inflight.Done()
		done <- err
		close(done)
	}()
	return done
}

// Shutdown stops the mediator from starting new cycles and waits for an in-flight cycle to complete.
func (m *ImportMediator[R]) Shutdown(ctx *flowlenscontext.Context) error {
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()
	finished := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "waiting for import of %s to complete", m.Name())
	}
}

func (m *ImportMediator[R]) runCycle(ctx *flowlenscontext.Context) error {
	if !m.handler.IsInitialised() {
		if err := m.handler.Init(ctx, m.checkpoints); err != nil {
			return m.fail(ctx, err)
		}
	}

	m.setState(StateFetching)
	page := m.handler.NextPage(ctx)
	records, err := m.fetcher.Fetch(ctx, page)
	if err != nil {
		if flowlenserrors.IsSourceNotFound(err) {
			ctx.Log.Debugf("Nothing to import for %s yet: %s", page, err)
			metrics.Get().RecordFetchError(page.DataSourceId, page.EntityTypeId, metrics.FetchErrorSourceNotFound)
			m.idle(ctx)
			return nil
		}
		kind := metrics.FetchErrorOther
		if flowlenserrors.IsNetworkError(err) {
			kind = metrics.FetchErrorNetwork
		}
		metrics.Get().RecordFetchError(page.DataSourceId, page.EntityTypeId, kind)
		return m.fail(ctx, errors.WithMessagef(err, "fetching %s", page))
	}

	accepted := index.FilterNew(ctx, m.handler, page, records)
	if len(accepted) == 0 {
		index.Confirm[R](m.handler, nil)
		m.idle(ctx)
		return nil
	}
	batch := model.NewImportBatch(page.DataSourceId, page.PartitionId, accepted)
	ctx = flowlenscontext.WithLogField(ctx, "batch", batch.Id)

	// From here on the batch is written to completion even if ctx is cancelled.
	writeCtx := flowlenscontext.WithoutCancel(ctx)
	m.setState(StateWriting)
	written, err := m.write(writeCtx, batch)
	if err != nil {
		return m.fail(ctx, err)
	}

	m.setState(StateAdvancing)
	confirmed := batch.Records[:written.confirmed]
	index.Confirm(m.handler, confirmed)
	if len(confirmed) > 0 {
		now := m.clock.Now()
		m.mu.Lock()
		m.lastAdvanced = now
		m.mu.Unlock()
		m.reporter.Advanced(page.DataSourceId, now)
		ctx.Log.Debugf("Imported %d records; cursor at %s", len(confirmed), confirmed[len(confirmed)-1].Cursor())
	}
	metrics.Get().RecordImported(page.DataSourceId, page.EntityTypeId, written.imported)
	if written.failed > 0 {
		return m.fail(ctx, errors.Errorf(
			"%d operations of batch %s failed; cursor held at record %d of %d",
			written.failed, batch.Id, written.confirmed, len(batch.Records)))
	}
	m.backoff.ResetBackoff()
	metrics.Get().SetBackoff(page.DataSourceId, page.EntityTypeId, 0)
	m.setState(StateIdle)
	return nil
}

type writeOutcome struct {
	// Length of the prefix of the batch that is fully written or skipped.
	confirmed int
	imported  int
	failed    int
}

// write applies the batch to the destination. Records the writer could not convert are skipped; records whose
// operation failed in the store hold the cursor back.
func (m *ImportMediator[R]) write(ctx *flowlenscontext.Context, batch *model.ImportBatch[R]) (writeOutcome, error) {
	dataSourceId, entityTypeId := batch.DataSourceId, m.handler.EntityTypeId()
	ops, err := m.writer.Write(ctx, batch.Records)
	skipped := writer.SkippedRecords(err)
	if err != nil && len(skipped) == 0 {
		return writeOutcome{}, errors.WithMessagef(err, "writing batch %s", batch.Id)
	}
	for position, recordErr := range skipped {
		ctx.Log.Warnf("Skipping record %s: %s", batch.Records[position].RecordId(), recordErr)
	}
	metrics.Get().RecordSkipped(dataSourceId, entityTypeId, len(skipped))

	result, err := m.destination.Bulk(ctx, ops)
	if err != nil {
		return writeOutcome{}, errors.WithMessagef(err, "writing batch %s", batch.Id)
	}

	outcome := writeOutcome{confirmed: len(batch.Records)}
	failedRecords := map[int]bool{}
	for i, opErr := range result.Failures {
		ctx.Log.Warnf("Writing %s failed: %s", ops[i], opErr)
		for _, position := range ops[i].Records {
			failedRecords[position] = true
			outcome.confirmed = min(outcome.confirmed, position)
		}
	}
	outcome.failed = len(result.Failures)
	metrics.Get().RecordWriteErrors(dataSourceId, entityTypeId, outcome.failed)
	for position := 0; position < outcome.confirmed; position++ {
		if _, ok := skipped[position]; !ok && !failedRecords[position] {
			outcome.imported++
		}
	}
	return outcome, nil
}

func (m *ImportMediator[R]) idle(ctx *flowlenscontext.Context) {
	sleep := m.backoff.ScheduleNextAttempt()
	metrics.Get().SetBackoff(m.DataSourceId(), m.handler.EntityTypeId(), sleep)
	ctx.Log.Debugf("No new data; backing off for %s", sleep)
	m.setState(StateIdle)
}

// fail discards whatever was fetched in the cycle, so that the same page is fetched again once the backoff has
// elapsed.
func (m *ImportMediator[R]) fail(ctx *flowlenscontext.Context, err error) error {
	m.setState(StateError)
	m.handler.Rollback()
	sleep := m.backoff.ScheduleNextAttempt()
	metrics.Get().SetBackoff(m.DataSourceId(), m.handler.EntityTypeId(), sleep)
	logging.WithStacktrace(ctx.Log, err).Errorf("Import cycle failed; retrying in %s", sleep)
	m.setState(StateIdle)
	return err
}

func (m *ImportMediator[R]) setState(state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}
