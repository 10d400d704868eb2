package checkpoint

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/flowlens/flowlens/internal/common/database"
	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
	"github.com/flowlens/flowlens/internal/importer/configuration"
	"github.com/flowlens/flowlens/internal/importer/model"
)

const DefaultTableName = "import_index"

// Store persists import checkpoints.
//
// Put never moves a stored checkpoint backwards: a state that does not advance on the stored one is skipped and
// logged. Resetting a checkpoint therefore goes through Delete.
type Store interface {
	// Get returns the stored checkpoint or nil if there is none.
	Get(ctx *flowlenscontext.Context, entityTypeId string, dataSourceId string) (*model.IndexState, error)
	Put(ctx *flowlenscontext.Context, states ...model.IndexState) error
	Delete(ctx *flowlenscontext.Context, entityTypeId string, dataSourceId string) error
	// List returns every stored checkpoint.
	List(ctx *flowlenscontext.Context) ([]model.IndexState, error)
	Close() error
}

// NewStore creates the store configured by config.
func NewStore(ctx *flowlenscontext.Context, config configuration.CheckpointConfiguration) (Store, error) {
	switch config.Type {
	case configuration.StorePostgres:
		db, err := database.OpenPgxPool(ctx, config.Postgres)
		if err != nil {
			return nil, err
		}
		tableName := config.TableName
		if tableName == "" {
			tableName = DefaultTableName
		}
		return NewPostgresStore(ctx, db, tableName)
	case configuration.StoreRedis:
		return NewRedisStore(config.Redis.AsUniversalOptions()), nil
	case configuration.StorePebble:
		return OpenPebbleStore(ctx, config.PebblePath)
	case configuration.StoreMemory, "":
		return NewMemoryStore()
	}
	return nil, errors.Errorf("unknown checkpoint store type %s", config.Type)
}

// advances reports whether incoming may replace stored.
func advances(ctx *flowlenscontext.Context, stored *model.IndexState, incoming model.IndexState) bool {
	if stored == nil || stored.Precedes(incoming) {
		return true
	}
	ctx.Log.Warnf(
		"Not storing checkpoint of %s as it would move backwards from %s to %s",
		incoming.Key(), persistedCursor(*stored), persistedCursor(incoming))
	return false
}

func persistedCursor(s model.IndexState) model.Cursor {
	return model.Cursor{
		Timestamp: s.TimestampOfLastPersistedEntity,
		Position:  s.PersistedPosition,
		Sequence:  s.PersistedSequence,
	}
}

func encode(state model.IndexState) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return data, nil
}

func decode(data []byte) (*model.IndexState, error) {
	state := &model.IndexState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, errors.Wrap(err, "decoding stored checkpoint")
	}
	return state, nil
}
