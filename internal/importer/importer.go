package importer

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
	"k8s.io/utils/clock"

	"github.com/flowlens/flowlens/internal/common/database"
	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
	"github.com/flowlens/flowlens/internal/common/flowlenserrors"
	"github.com/flowlens/flowlens/internal/importer/backoff"
	"github.com/flowlens/flowlens/internal/importer/checkpoint"
	"github.com/flowlens/flowlens/internal/importer/configuration"
	"github.com/flowlens/flowlens/internal/importer/destination"
	"github.com/flowlens/flowlens/internal/importer/fetcher"
	"github.com/flowlens/flowlens/internal/importer/fetcher/engine"
	"github.com/flowlens/flowlens/internal/importer/fetcher/zeebe"
	"github.com/flowlens/flowlens/internal/importer/index"
	"github.com/flowlens/flowlens/internal/importer/mediator"
	"github.com/flowlens/flowlens/internal/importer/model"
	"github.com/flowlens/flowlens/internal/importer/scheduler"
	"github.com/flowlens/flowlens/internal/importer/status"
	"github.com/flowlens/flowlens/internal/importer/toggle"
	"github.com/flowlens/flowlens/internal/importer/writer"
)

// Importer imports from every configured engine and zeebe partition into the destination store.
type Importer struct {
	config      configuration.ImporterConfiguration
	checkpoints checkpoint.Store
	destination destination.Store
	registry    *index.Registry
	tracker     *status.Tracker
	toggles     *toggle.Toggles
	scheduler   *scheduler.Scheduler
	clock       clock.WithTicker
	zeebeDb     *pgxpool.Pool
}

// New opens the configured stores and builds the importer.
func New(ctx *flowlenscontext.Context, config configuration.ImporterConfiguration, clock clock.WithTicker) (*Importer, error) {
	checkpoints, err := checkpoint.NewStore(ctx, config.Checkpoint)
	if err != nil {
		return nil, errors.WithMessage(err, "opening checkpoint store")
	}
	dest, err := destination.NewStore(ctx, config.Destination)
	if err != nil {
		_ = checkpoints.Close()
		return nil, errors.WithMessage(err, "opening destination store")
	}
	i, err := NewWithStores(ctx, config, checkpoints, dest, clock)
	if err != nil {
		_ = checkpoints.Close()
		_ = dest.Close()
		return nil, err
	}
	return i, nil
}

// NewWithStores builds the importer on top of already opened stores, which it takes ownership of.
func NewWithStores(
	ctx *flowlenscontext.Context,
	config configuration.ImporterConfiguration,
	checkpoints checkpoint.Store,
	dest destination.Store,
	clock clock.WithTicker,
) (*Importer, error) {
	i := &Importer{
		config:      config,
		checkpoints: checkpoints,
		destination: dest,
		registry:    index.NewRegistry(),
		toggles:     toggle.New(),
		clock:       clock,
	}

	identities, err := writer.NewIdentityCache(config.IdentityCacheSize)
	if err != nil {
		return nil, err
	}
	i.tracker = status.NewTracker(config.Scheduler.ActivityWindow, clock, DataSourceIds(config)...)

	var groups []scheduler.Group
	for priority, engineConfig := range config.Engines {
		group, err := i.engineGroup(engineConfig, priority, identities)
		if err != nil {
			return nil, err
		}
		if !engineConfig.Enabled {
			ctx.Log.Infof("Import from engine %s is disabled", engineConfig.Alias)
			i.toggles.Disable(engineConfig.Alias)
		}
		groups = append(groups, group)
	}
	if config.Zeebe.Enabled {
		db, err := database.OpenPgxPool(ctx, config.Zeebe.Postgres)
		if err != nil {
			return nil, errors.WithMessagef(err, "connecting to the record database of zeebe %s", config.Zeebe.Name)
		}
		i.zeebeDb = db
		for partitionId := int32(1); partitionId <= config.Zeebe.PartitionCount; partitionId++ {
			groups = append(groups, i.zeebeGroup(db, partitionId))
		}
	}

	progress := mediator.NewStoreProgressMediator(i.registry, checkpoints, config.Scheduler.StoreProgressInterval, clock)
	i.scheduler = scheduler.NewScheduler(config.Scheduler, groups, progress, i.toggles, clock)
	return i, nil
}

// DataSourceIds returns the checkpoint data source ids of every configured engine and zeebe partition.
func DataSourceIds(config configuration.ImporterConfiguration) []string {
	var ids []string
	for _, engineConfig := range config.Engines {
		ids = append(ids, engineConfig.Alias)
	}
	if config.Zeebe.Enabled {
		for partitionId := int32(1); partitionId <= config.Zeebe.PartitionCount; partitionId++ {
			ids = append(ids, model.ZeebeDataSourceId(config.Zeebe.Name, partitionId))
		}
	}
	return ids
}

func (i *Importer) engineGroup(config configuration.EngineConfiguration, priority int, identities *writer.IdentityCache) (scheduler.Group, error) {
	client, err := engine.NewClient(config)
	if err != nil {
		return scheduler.Group{}, err
	}
	alias, retries := config.Alias, i.config.Destination.RetryOnConflict
	return scheduler.Group{
		Name: alias,
		Mediators: []scheduler.Mediator{
			engineMediator[*model.ProcessDefinition](i, config, engine.NewFetcher(client, engine.ProcessDefinitions()),
				writer.NewProcessDefinitionWriter(alias)),
			engineMediator[*model.ProcessInstance](i, config, engine.NewFetcher(client, engine.RunningProcessInstances()),
				writer.NewProcessInstanceWriter(alias, retries)),
			engineMediator[*model.ProcessInstance](i, config, engine.NewFetcher(client, engine.CompletedProcessInstances()),
				writer.NewProcessInstanceWriter(alias, retries)),
			engineMediator[*model.Incident](i, config, engine.NewFetcher(client, engine.OpenIncidents()),
				writer.NewIncidentWriter(alias, retries)),
			engineMediator[*model.Incident](i, config, engine.NewFetcher(client, engine.ResolvedIncidents()),
				writer.NewIncidentWriter(alias, retries)),
			engineMediator[*model.User](i, config, engine.NewFetcher(client, engine.Users()),
				writer.NewIdentityWriter(alias, priority, retries, identities)),
		},
	}, nil
}

func (i *Importer) zeebeGroup(db zeebe.Querier, partitionId int32) scheduler.Group {
	name, prefix, retries := i.config.Zeebe.Name, i.config.Zeebe.RecordTablePrefix, i.config.Destination.RetryOnConflict
	dataSourceId := model.ZeebeDataSourceId(name, partitionId)
	zeebeMediator := func(entityType string, valueType string, w writer.Writer[*model.ZeebeRecord]) scheduler.Mediator {
		return newMediator[*model.ZeebeRecord](
			i, model.DataSourceZeebe, dataSourceId, entityType, partitionId, i.config.Zeebe.PageSize,
			index.NewPositionStrategy(), zeebe.NewFetcher(db, dataSourceId, prefix, valueType), w)
	}
	return scheduler.Group{
		Name: dataSourceId,
		Mediators: []scheduler.Mediator{
			zeebeMediator(model.EntityZeebeProcess, model.ValueTypeProcess, writer.NewZeebeProcessWriter(name)),
			zeebeMediator(model.EntityZeebeProcessInstance, model.ValueTypeProcessInstance,
				writer.NewZeebeProcessInstanceWriter(name, retries)),
			zeebeMediator(model.EntityZeebeIncident, model.ValueTypeIncident, writer.NewZeebeIncidentWriter(name, retries)),
			zeebeMediator(model.EntityZeebeVariable, model.ValueTypeVariable, writer.NewZeebeVariableWriter(name, retries)),
		},
	}
}

func engineMediator[R model.EngineRecord](
	i *Importer,
	config configuration.EngineConfiguration,
	f *engine.Fetcher[R],
	w writer.Writer[R],
) scheduler.Mediator {
	return newMediator[R](
		i, model.DataSourceEngine, config.Alias, f.EntityType(), 0, config.PageSize,
		index.NewTimestampStrategy(i.config.MaxBoundaryRefetches), f, w)
}

func newMediator[R model.Record](
	i *Importer,
	dataSourceType model.DataSourceType,
	dataSourceId string,
	entityType string,
	partitionId int32,
	pageSize int,
	strategy index.CursorStrategy,
	f fetcher.Fetcher[R],
	w writer.Writer[R],
) scheduler.Mediator {
	handler := i.registry.GetOrCreate(entityType, dataSourceId, func() *index.Handler {
		return index.NewHandler(dataSourceType, dataSourceId, entityType, partitionId, pageSize, strategy, i.clock)
	})
	return mediator.New[R](
		handler, i.checkpoints, f, w, i.destination,
		backoff.NewCalculator(i.config.Backoff.Min, i.config.Backoff.Max, i.config.Backoff.Multiplier, i.clock),
		i.clock,
		mediator.WithReporter[R](i.tracker),
	)
}

// Run imports until ctx is cancelled, then stores progress and returns.
func (i *Importer) Run(ctx *flowlenscontext.Context) error {
	g, groupCtx := flowlenscontext.ErrGroup(ctx)
	trackerCtx, stopTracker := flowlenscontext.WithCancel(flowlenscontext.WithoutCancel(groupCtx))
	g.Go(func() error {
		return i.tracker.Run(trackerCtx)
	})
	g.Go(func() error {
		// the tracker outlives the scheduler so that mediators can report activity while shutting down
		defer stopTracker()
		return i.scheduler.Run(groupCtx)
	})
	return g.Wait()
}

// Status tracks whether each data source is still importing.
func (i *Importer) Status() *status.Tracker {
	return i.tracker
}

// Toggles enable or disable import per data source while the importer runs.
func (i *Importer) Toggles() *toggle.Toggles {
	return i.toggles
}

func (i *Importer) Close() error {
	if i.zeebeDb != nil {
		i.zeebeDb.Close()
	}
	destErr := i.destination.Close()
	if err := i.checkpoints.Close(); err != nil {
		return err
	}
	return destErr
}

// ResetIndex resets the import cursor of one entity type of one data source to its defaults so that it is imported
// again from the beginning the next time the importer starts. Documents already imported are kept. The importer must
// not be running, as it would store its own progress over the reset.
func ResetIndex(ctx *flowlenscontext.Context, store checkpoint.Store, entityType string, dataSourceId string) error {
	var handler *index.Handler
	switch {
	case slices.Contains(model.EngineEntityTypes, entityType):
		handler = index.NewHandler(
			model.DataSourceEngine, dataSourceId, entityType, 0, 0, index.NewTimestampStrategy(0), clock.RealClock{})
	case slices.Contains(model.ZeebeEntityTypes, entityType):
		handler = index.NewHandler(
			model.DataSourceZeebe, dataSourceId, entityType, 0, 0, index.NewPositionStrategy(), clock.RealClock{})
	default:
		return errors.WithStack(&flowlenserrors.ErrInvalidArgument{
			Name:    "entityType",
			Value:   entityType,
			Message: "not an entity type that is imported",
		})
	}
	if err := handler.Init(ctx, store); err != nil {
		return err
	}
	before := handler.IndexState()
	handler.ResetImportIndex()
	if err := store.Delete(ctx, entityType, dataSourceId); err != nil {
		return errors.WithMessagef(err, "deleting import index %s", handler.Key())
	}
	// the reset state keeps whether the source writes sequence numbers
	if err := store.Put(ctx, handler.IndexState()); err != nil {
		return errors.WithMessagef(err, "storing reset import index %s", handler.Key())
	}
	ctx.Log.Infof("Reset import index %s; it was at timestamp %s, position %d",
		handler.Key(), before.TimestampOfLastPersistedEntity, before.PersistedPosition)
	return nil
}
