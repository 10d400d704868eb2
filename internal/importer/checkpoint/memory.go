package checkpoint

import (
	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"

	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
	"github.com/flowlens/flowlens/internal/importer/model"
)

const (
	checkpointTable = "checkpoint"
	idIndex         = "id"
)

type storedState struct {
	Key   string
	State model.IndexState
}

// MemoryStore keeps checkpoints in an in-process go-memdb database. Progress is lost on restart, so it is only
// suitable for tests and throwaway imports.
type MemoryStore struct {
	db *memdb.MemDB
}

func NewMemoryStore() (*MemoryStore, error) {
	db, err := memdb.NewMemDB(&memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			checkpointTable: {
				Name: checkpointTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Key"},
					},
				},
			},
		},
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &MemoryStore{db: db}, nil
}

func (s *MemoryStore) Get(_ *flowlenscontext.Context, entityTypeId string, dataSourceId string) (*model.IndexState, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	return get(txn, model.IndexKey(entityTypeId, dataSourceId))
}

func get(txn *memdb.Txn, key string) (*model.IndexState, error) {
	obj, err := txn.First(checkpointTable, idIndex, key)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if obj == nil {
		return nil, nil
	}
	state := obj.(*storedState).State
	return &state, nil
}

func (s *MemoryStore) Put(ctx *flowlenscontext.Context, states ...model.IndexState) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	for _, state := range states {
		stored, err := get(txn, state.Key())
		if err != nil {
			return err
		}
		if !advances(ctx, stored, state) {
			continue
		}
		if err := txn.Insert(checkpointTable, &storedState{Key: state.Key(), State: state}); err != nil {
			return errors.WithStack(err)
		}
	}
	txn.Commit()
	return nil
}

func (s *MemoryStore) Delete(_ *flowlenscontext.Context, entityTypeId string, dataSourceId string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if _, err := txn.DeleteAll(checkpointTable, idIndex, model.IndexKey(entityTypeId, dataSourceId)); err != nil {
		return errors.WithStack(err)
	}
	txn.Commit()
	return nil
}

func (s *MemoryStore) List(_ *flowlenscontext.Context) ([]model.IndexState, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	iter, err := txn.Get(checkpointTable, idIndex)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var states []model.IndexState
	for obj := iter.Next(); obj != nil; obj = iter.Next() {
		states = append(states, obj.(*storedState).State)
	}
	return states, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
