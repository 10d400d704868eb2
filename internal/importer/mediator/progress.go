package mediator

import (
	"time"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
	"github.com/flowlens/flowlens/internal/common/logging"
	"github.com/flowlens/flowlens/internal/importer/index"
	"github.com/flowlens/flowlens/internal/importer/metrics"
	"github.com/flowlens/flowlens/internal/importer/model"
)

const DefaultStoreProgressInterval = 10 * time.Second

// CheckpointWriter is the part of the checkpoint store used to persist progress.
type CheckpointWriter interface {
	Put(ctx *flowlenscontext.Context, states ...model.IndexState) error
}

// StoreProgressMediator periodically persists the state of every initialised index handler. It runs independently of
// the import mediators: progress made since the last run is imported again after a crash.
type StoreProgressMediator struct {
	registry *index.Registry
	store    CheckpointWriter
	interval time.Duration
	clock    clock.WithTicker
}

func NewStoreProgressMediator(registry *index.Registry, store CheckpointWriter, interval time.Duration, clock clock.WithTicker) *StoreProgressMediator {
	if interval <= 0 {
		interval = DefaultStoreProgressInterval
	}
	return &StoreProgressMediator{registry: registry, store: store, interval: interval, clock: clock}
}

// Run stores progress every interval until ctx is cancelled. Failures are logged and retried on the next tick.
func (m *StoreProgressMediator) Run(ctx *flowlenscontext.Context) error {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			if err := m.StoreProgress(ctx); err != nil {
				logging.WithStacktrace(ctx.Log, err).Error("Failed to store import progress")
			}
		}
	}
}

// StoreProgress persists the current state of every initialised handler.
func (m *StoreProgressMediator) StoreProgress(ctx *flowlenscontext.Context) error {
	handlers := m.registry.All()
	states := make([]model.IndexState, 0, len(handlers))
	for _, h := range handlers {
		if h.IsInitialised() {
			states = append(states, h.IndexState())
		}
	}
	if len(states) == 0 {
		return nil
	}
	if err := m.store.Put(ctx, states...); err != nil {
		metrics.Get().RecordCheckpointError()
		return errors.WithMessagef(err, "storing %d import indexes", len(states))
	}
	ctx.Log.Debugf("Stored %d import indexes", len(states))
	return nil
}
