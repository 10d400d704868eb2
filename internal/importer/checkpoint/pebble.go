package checkpoint

import (
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
	"github.com/flowlens/flowlens/internal/importer/model"
)

const pebbleKeyPrefix = "import-index/"

// PebbleStore keeps checkpoints in an embedded pebble database, for single node deployments without postgres or
// redis.
type PebbleStore struct {
	db *pebble.DB
	// serialises compare-and-set in Put
	mu sync.Mutex
}

func OpenPebbleStore(ctx *flowlenscontext.Context, path string) (*PebbleStore, error) {
	ctx.Log.Infof("Opening checkpoint database at %s", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "opening pebble database at %s", path)
	}
	return &PebbleStore{db: db}, nil
}

func pebbleKey(entityTypeId string, dataSourceId string) []byte {
	return []byte(pebbleKeyPrefix + model.IndexKey(entityTypeId, dataSourceId))
}

func (s *PebbleStore) Get(_ *flowlenscontext.Context, entityTypeId string, dataSourceId string) (*model.IndexState, error) {
	value, closer, err := s.db.Get(pebbleKey(entityTypeId, dataSourceId))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer closer.Close()
	return decode(value)
}

func (s *PebbleStore) Put(ctx *flowlenscontext.Context, states ...model.IndexState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.db.NewBatch()
	defer batch.Close()
	for _, state := range states {
		stored, err := s.Get(ctx, state.EntityTypeId, state.DataSourceId)
		if err != nil {
			return err
		}
		if !advances(ctx, stored, state) {
			continue
		}
		data, err := encode(state)
		if err != nil {
			return err
		}
		if err := batch.Set(pebbleKey(state.EntityTypeId, state.DataSourceId), data, nil); err != nil {
			return errors.WithStack(err)
		}
	}
	return errors.WithStack(batch.Commit(pebble.Sync))
}

func (s *PebbleStore) Delete(_ *flowlenscontext.Context, entityTypeId string, dataSourceId string) error {
	return errors.WithStack(s.db.Delete(pebbleKey(entityTypeId, dataSourceId), pebble.Sync))
}

func (s *PebbleStore) List(_ *flowlenscontext.Context) ([]model.IndexState, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(pebbleKeyPrefix),
		UpperBound: prefixUpperBound([]byte(pebbleKeyPrefix)),
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer iter.Close()
	var states []model.IndexState
	for iter.First(); iter.Valid(); iter.Next() {
		state, err := decode(iter.Value())
		if err != nil {
			return nil, err
		}
		states = append(states, *state)
	}
	return states, errors.WithStack(iter.Error())
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
