package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
	"github.com/flowlens/flowlens/internal/importer/backoff"
	"github.com/flowlens/flowlens/internal/importer/checkpoint"
	"github.com/flowlens/flowlens/internal/importer/configuration"
	"github.com/flowlens/flowlens/internal/importer/destination"
	"github.com/flowlens/flowlens/internal/importer/fetcher"
	"github.com/flowlens/flowlens/internal/importer/index"
	"github.com/flowlens/flowlens/internal/importer/mediator"
	"github.com/flowlens/flowlens/internal/importer/model"
	"github.com/flowlens/flowlens/internal/importer/toggle"
	"github.com/flowlens/flowlens/internal/importer/writer"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// cycles holds the cycles started on fake mediators until the test completes them.
type cycles struct {
	done []chan error
	mu   sync.Mutex
}

func (c *cycles) start() <-chan error {
	c.mu.Lock()
	defer c.mu.Unlock()
	done := make(chan error, 1)
	c.done = append(c.done, done)
	return done
}

func (c *cycles) completeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, done := range c.done {
		done <- nil
		close(done)
	}
	c.done = nil
}

type fakeMediator struct {
	name     string
	rank     model.MediatorRank
	runnable bool
	pending  bool
	runs     int
	cycles   *cycles
	mu       sync.Mutex
}

func (f *fakeMediator) Name() string                            { return f.name }
func (f *fakeMediator) DataSourceId() string                    { return "engine-1" }
func (f *fakeMediator) Rank() model.MediatorRank                { return f.rank }
func (f *fakeMediator) Shutdown(*flowlenscontext.Context) error { return nil }

func (f *fakeMediator) CanImport(ctx *flowlenscontext.Context) bool {
	return f.runnable && toggle.Enabled(ctx, f.DataSourceId())
}

func (f *fakeMediator) HasPendingImportJobs() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

func (f *fakeMediator) RunImport(*flowlenscontext.Context) <-chan error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return f.cycles.start()
}

func (f *fakeMediator) Runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func newFake(c *cycles, name string, rank model.MediatorRank, runnable bool) *fakeMediator {
	return &fakeMediator{name: name, rank: rank, runnable: runnable, cycles: c}
}

func newTestScheduler(workers int64, fairnessCycles int, groups ...Group) *Scheduler {
	return NewScheduler(
		configuration.SchedulerConfiguration{
			Interval:             time.Second,
			MaxConcurrentImports: workers,
			FairnessCycles:       fairnessCycles,
		},
		groups, nil, nil, clocktesting.NewFakeClock(baseTime))
}

// dispatchRound runs one scheduling round, completes the cycles it started and waits for their workers to be
// released.
func dispatchRound(t *testing.T, s *Scheduler, c *cycles, group Group, skipped map[string]int, workers int64) {
	s.dispatch(flowlenscontext.Background(), group, skipped)
	c.completeAll()
	require.Eventually(t, func() bool {
		if s.workers.TryAcquire(workers) {
			s.workers.Release(workers)
			return true
		}
		return false
	}, 5*time.Second, time.Millisecond)
}

func TestDispatch_PrefersLowerRank(t *testing.T) {
	c := &cycles{}
	instances := newFake(c, "instances", model.RankInstance, true)
	definitions := newFake(c, "definitions", model.RankDefinition, true)
	group := Group{Name: "engine-1", Mediators: []Mediator{instances, definitions}}
	s := newTestScheduler(1, 10, group)

	dispatchRound(t, s, c, group, map[string]int{}, 1)
	assert.Equal(t, 1, definitions.Runs())
	assert.Equal(t, 0, instances.Runs())
}

func TestDispatch_RunsEveryRunnableMediatorWhenWorkersAreFree(t *testing.T) {
	c := &cycles{}
	instances := newFake(c, "instances", model.RankInstance, true)
	definitions := newFake(c, "definitions", model.RankDefinition, true)
	group := Group{Name: "engine-1", Mediators: []Mediator{instances, definitions}}
	s := newTestScheduler(2, 10, group)

	dispatchRound(t, s, c, group, map[string]int{}, 2)
	assert.Equal(t, 1, definitions.Runs())
	assert.Equal(t, 1, instances.Runs())
}

func TestDispatch_PassedOverMediatorIsEventuallyRun(t *testing.T) {
	c := &cycles{}
	identities := newFake(c, "identities", model.RankIdentity, true)
	definitions := newFake(c, "definitions", model.RankDefinition, true)
	group := Group{Name: "engine-1", Mediators: []Mediator{identities, definitions}}
	s := newTestScheduler(1, 2, group)
	skipped := map[string]int{}

	dispatchRound(t, s, c, group, skipped, 1)
	dispatchRound(t, s, c, group, skipped, 1)
	assert.Equal(t, 2, definitions.Runs())
	assert.Equal(t, 0, identities.Runs())

	dispatchRound(t, s, c, group, skipped, 1)
	assert.Equal(t, 2, definitions.Runs())
	assert.Equal(t, 1, identities.Runs())

	dispatchRound(t, s, c, group, skipped, 1)
	assert.Equal(t, 3, definitions.Runs())
}

func TestDispatch_SkipsMediatorsThatCannotRun(t *testing.T) {
	c := &cycles{}
	backingOff := newFake(c, "backing-off", model.RankDefinition, false)
	busy := newFake(c, "busy", model.RankDefinition, true)
	busy.pending = true
	group := Group{Name: "engine-1", Mediators: []Mediator{backingOff, busy}}
	s := newTestScheduler(2, 10, group)

	dispatchRound(t, s, c, group, map[string]int{}, 2)
	assert.Equal(t, 0, backingOff.Runs())
	assert.Equal(t, 0, busy.Runs())
}

type pipeline struct {
	clock       *clocktesting.FakeClock
	source      *fetcher.MemorySource[*model.ProcessDefinition]
	checkpoints *checkpoint.MemoryStore
	mediator    *mediator.ImportMediator[*model.ProcessDefinition]
	progress    *mediator.StoreProgressMediator
}

func newPipeline(t *testing.T) *pipeline {
	fakeClock := clocktesting.NewFakeClock(baseTime.Add(time.Hour))
	checkpoints, err := checkpoint.NewMemoryStore()
	require.NoError(t, err)
	dest, err := destination.NewMemoryStore()
	require.NoError(t, err)
	source := fetcher.NewMemorySource[*model.ProcessDefinition]("engine-1")
	registry := index.NewRegistry()
	handler := registry.GetOrCreate(model.EntityProcessDefinition, "engine-1", func() *index.Handler {
		return index.NewHandler(
			model.DataSourceEngine, "engine-1", model.EntityProcessDefinition, 0, 10,
			index.NewTimestampStrategy(0), fakeClock)
	})
	return &pipeline{
		clock:       fakeClock,
		source:      source,
		checkpoints: checkpoints,
		mediator: mediator.New[*model.ProcessDefinition](
			handler, checkpoints, source, writer.NewProcessDefinitionWriter("engine-1"), dest,
			backoff.NewCalculator(time.Second, time.Minute, 2, fakeClock), fakeClock),
		progress: mediator.NewStoreProgressMediator(registry, checkpoints, time.Hour, fakeClock),
	}
}

func definition(id string, offset time.Duration) *model.ProcessDefinition {
	d := &model.ProcessDefinition{Id: id, Key: "invoice", Version: 1, DeploymentTime: baseTime.Add(offset)}
	d.SetCursorTimestamp(d.DeploymentTime)
	return d
}

func TestDispatch_GloballyDisabledSourceDoesNotImport(t *testing.T) {
	p := newPipeline(t)
	p.source.Add(definition("d1", time.Second))
	group := Group{Name: "engine-1", Mediators: []Mediator{p.mediator}}
	toggles := toggle.New("engine-1")
	s := NewScheduler(
		configuration.SchedulerConfiguration{Interval: time.Second, MaxConcurrentImports: 1, FairnessCycles: 1},
		[]Group{group}, p.progress, toggles, p.clock)
	ctx := flowlenscontext.New(toggle.NewContext(flowlenscontext.Background(), toggles), flowlenscontext.Background().Log)
	before := p.mediator.IndexHandler().IndexState()

	for i := 0; i < 3; i++ {
		s.dispatch(ctx, group, map[string]int{})
	}
	assert.Equal(t, 0, p.source.Fetches())
	assert.Equal(t, before, p.mediator.IndexHandler().IndexState())

	toggles.Enable("engine-1")
	s.dispatch(ctx, group, map[string]int{})
	assert.Eventually(t, func() bool {
		return p.mediator.IndexHandler().IndexState().TimestampOfLastPersistedEntity.Equal(baseTime.Add(time.Second))
	}, 5*time.Second, time.Millisecond)
}

func TestRun_StoresProgressOnShutdown(t *testing.T) {
	p := newPipeline(t)
	p.source.Add(definition("d1", time.Second), definition("d2", 2*time.Second))
	s := NewScheduler(
		configuration.SchedulerConfiguration{Interval: time.Second, MaxConcurrentImports: 4, FairnessCycles: 3},
		[]Group{{Name: "engine-1", Mediators: []Mediator{p.mediator}}}, p.progress, nil, p.clock)

	ctx, cancel := flowlenscontext.WithCancel(flowlenscontext.Background())
	finished := make(chan error, 1)
	go func() {
		finished <- s.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		p.clock.Step(time.Second)
		return p.mediator.IndexHandler().IndexState().TimestampOfLastPersistedEntity.Equal(baseTime.Add(2 * time.Second))
	}, 5*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-finished:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	stored, err := p.checkpoints.Get(flowlenscontext.Background(), model.EntityProcessDefinition, "engine-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, baseTime.Add(2*time.Second), stored.TimestampOfLastPersistedEntity)
	assert.False(t, p.mediator.CanImport(flowlenscontext.Background()))
}
