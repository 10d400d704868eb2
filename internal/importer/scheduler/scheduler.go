package scheduler

import (
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/semaphore"
	"k8s.io/utils/clock"

	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
	"github.com/flowlens/flowlens/internal/common/logging"
	"github.com/flowlens/flowlens/internal/importer/configuration"
	"github.com/flowlens/flowlens/internal/importer/mediator"
	"github.com/flowlens/flowlens/internal/importer/model"
	"github.com/flowlens/flowlens/internal/importer/toggle"
)

const DefaultShutdownTimeout = 30 * time.Second

// Mediator is an import mediator as seen by the scheduler.
type Mediator interface {
	Name() string
	DataSourceId() string
	Rank() model.MediatorRank
	CanImport(ctx *flowlenscontext.Context) bool
	HasPendingImportJobs() bool
	RunImport(ctx *flowlenscontext.Context) <-chan error
	Shutdown(ctx *flowlenscontext.Context) error
}

// ProgressStore persists the progress of all mediators.
type ProgressStore interface {
	Run(ctx *flowlenscontext.Context) error
	StoreProgress(ctx *flowlenscontext.Context) error
}

// Group is a set of mediators scheduled by one goroutine, typically all mediators of one engine or zeebe broker.
type Group struct {
	Name      string
	Mediators []Mediator
}

type Scheduler struct {
	groups []Group
	// Persists progress on its own cadence, and once more on shutdown.
	progress ProgressStore
	// Data sources with import disabled. Threaded through the context of every mediator call.
	toggles *toggle.Toggles
	// Bounds the number of import cycles in flight across all groups.
	workers *semaphore.Weighted
	// Minimum duration between scheduling rounds.
	cyclePeriod time.Duration
	// Number of rounds a runnable mediator may be passed over before it is preferred regardless of rank.
	fairnessCycles int
	// Time given to in-flight cycles to complete on shutdown.
	shutdownTimeout time.Duration
	// Used for all timing decisions. Injected here so that we can mock out for testing.
	clock clock.WithTicker
}

func NewScheduler(
	config configuration.SchedulerConfiguration,
	groups []Group,
	progress ProgressStore,
	toggles *toggle.Toggles,
	clock clock.WithTicker,
) *Scheduler {
	shutdownTimeout := config.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	if toggles == nil {
		toggles = toggle.New()
	}
	return &Scheduler{
		groups:          groups,
		progress:        progress,
		toggles:         toggles,
		workers:         semaphore.NewWeighted(max(config.MaxConcurrentImports, 1)),
		cyclePeriod:     config.Interval,
		fairnessCycles:  max(config.FairnessCycles, 1),
		shutdownTimeout: shutdownTimeout,
		clock:           clock,
	}
}

// Run schedules mediators until ctx is cancelled. It then shuts every mediator down, waiting for in-flight cycles to
// complete, and stores progress one final time.
func (s *Scheduler) Run(ctx *flowlenscontext.Context) error {
	ctx = flowlenscontext.New(toggle.NewContext(ctx, s.toggles), ctx.Log)
	g, groupCtx := flowlenscontext.ErrGroup(ctx)
	for _, group := range s.groups {
		group := group
		g.Go(func() error {
			return s.runGroup(flowlenscontext.WithLogField(groupCtx, "group", group.Name), group)
		})
	}
	g.Go(func() error {
		return s.progress.Run(groupCtx)
	})
	runErr := g.Wait()

	shutdownCtx, cancel := flowlenscontext.WithTimeout(flowlenscontext.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	var result *multierror.Error
	if runErr != nil {
		result = multierror.Append(result, runErr)
	}
	if err := s.shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.progress.StoreProgress(shutdownCtx); err != nil {
		result = multierror.Append(result, errors.WithMessage(err, "storing progress on shutdown"))
	} else {
		ctx.Log.Info("Stored import progress on shutdown")
	}
	return result.ErrorOrNil()
}

func (s *Scheduler) shutdown(ctx *flowlenscontext.Context) error {
	var result *multierror.Error
	for _, group := range s.groups {
		for _, m := range group.Mediators {
			if err := m.Shutdown(ctx); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	return result.ErrorOrNil()
}

func (s *Scheduler) runGroup(ctx *flowlenscontext.Context, group Group) error {
	ctx.Log.Infof("Scheduling %d import mediators", len(group.Mediators))
	skipped := map[string]int{}
	ticker := s.clock.NewTicker(s.cyclePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			s.dispatch(ctx, group, skipped)
		}
	}
}

// dispatch starts a cycle for every runnable mediator of the group for which a worker is free. Mediators are offered
// workers by rank, except that mediators passed over for fairnessCycles rounds go first.
func (s *Scheduler) dispatch(ctx *flowlenscontext.Context, group Group, skipped map[string]int) {
	var runnable []Mediator
	for _, m := range group.Mediators {
		if !m.HasPendingImportJobs() && m.CanImport(ctx) {
			runnable = append(runnable, m)
		}
	}
	slices.SortStableFunc(runnable, func(a, b Mediator) int {
		aStarving, bStarving := skipped[a.Name()] >= s.fairnessCycles, skipped[b.Name()] >= s.fairnessCycles
		switch {
		case aStarving != bStarving:
			if aStarving {
				return -1
			}
			return 1
		case a.Rank() != b.Rank():
			return int(a.Rank()) - int(b.Rank())
		}
		return skipped[b.Name()] - skipped[a.Name()]
	})

	for _, m := range runnable {
		if !s.workers.TryAcquire(1) {
			skipped[m.Name()]++
			continue
		}
		skipped[m.Name()] = 0
		done := m.RunImport(ctx)
		go func(m Mediator) {
			defer s.workers.Release(1)
			if err := <-done; errors.Is(err, mediator.ErrImportPending) || errors.Is(err, mediator.ErrShutdown) {
				ctx.Log.Debugf("Import of %s not started: %s", m.Name(), err)
			} else if err != nil {
				logging.WithStacktrace(ctx.Log, err).Debugf("Import cycle of %s failed", m.Name())
			}
		}(m)
	}
}
