package configuration

import (
	"time"

	"github.com/flowlens/flowlens/internal/common/config"
	"github.com/flowlens/flowlens/internal/common/database"
)

const (
	StorePostgres config.StoreTypeName = "postgres"
	StoreRedis    config.StoreTypeName = "redis"
	StorePebble   config.StoreTypeName = "pebble"
	StoreMemory   config.StoreTypeName = "memory"
)

type ImporterConfiguration struct {
	// Engines to import from. The order is the source priority: when the same identity is found in several engines,
	// the copy from the engine listed first is kept.
	Engines []EngineConfiguration `validate:"dive"`
	Zeebe   ZeebeConfiguration
	// Scheduling of import cycles
	Scheduler SchedulerConfiguration
	// Idle polling backoff of mediators that found nothing to import
	Backoff BackoffConfiguration
	// Where import progress is stored
	Checkpoint CheckpointConfiguration
	// Where imported documents are written
	Destination DestinationConfiguration
	// Number of full pages at one timestamp after which the timestamp is skipped
	MaxBoundaryRefetches int `validate:"gte=0"`
	// Size of the cache used to skip identities already imported from a higher priority engine
	IdentityCacheSize int `validate:"gte=0"`
	MetricsPort       uint16
}

type EngineConfiguration struct {
	// Name identifying the engine in checkpoints and documents
	Alias   string `validate:"required"`
	Url     string `validate:"required,url"`
	Enabled bool
	// Maximum number of records requested per page
	PageSize int `validate:"required,gt=0"`
	// Rate at which requests are sent to the engine. Zero disables limiting.
	RequestsPerSecond float64 `validate:"gte=0"`
	Burst             int     `validate:"gte=0"`
	// Timeout of a single request
	Timeout time.Duration
}

type ZeebeConfiguration struct {
	Enabled bool
	// Name identifying the broker in checkpoints and documents
	Name           string `validate:"required_if=Enabled true"`
	PartitionCount int32  `validate:"required_if=Enabled true,gte=0"`
	PageSize       int    `validate:"required_if=Enabled true,gte=0"`
	// Database the exporter writes records to
	Postgres database.PostgresConfig
	// Records of value type X are read from table <RecordTablePrefix>_x
	RecordTablePrefix string
}

type SchedulerConfiguration struct {
	// How often the scheduler looks for mediators that can run
	Interval time.Duration `validate:"required"`
	// How often import progress is checkpointed
	StoreProgressInterval time.Duration `validate:"required"`
	// Maximum number of import cycles running at any one time, across all data sources
	MaxConcurrentImports int64 `validate:"required,gt=0"`
	// Number of consecutive scheduling rounds a runnable mediator may be passed over before it is run regardless of rank
	FairnessCycles int `validate:"required,gt=0"`
	// Time given to in-flight cycles to complete on shutdown
	ShutdownTimeout time.Duration
	// A data source counts as importing for this long after its cursor last moved
	ActivityWindow time.Duration
}

type BackoffConfiguration struct {
	Min        time.Duration `validate:"required"`
	Max        time.Duration `validate:"required,gtefield=Min"`
	Multiplier float64       `validate:"gte=1"`
}

type CheckpointConfiguration struct {
	Type     config.StoreTypeName `validate:"oneof=postgres redis pebble memory"`
	Postgres database.PostgresConfig
	Redis    config.RedisConfig
	// Directory of the pebble database
	PebblePath string `validate:"required_if=Type pebble"`
	// Name of the postgres table checkpoints are kept in
	TableName string
}

type DestinationConfiguration struct {
	Type     config.StoreTypeName `validate:"oneof=postgres memory"`
	Postgres database.PostgresConfig
	// Number of times a scripted update is retried after losing a concurrent modification race
	RetryOnConflict uint `validate:"gte=0"`
}
