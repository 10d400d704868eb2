package destination

import (
	"sync"

	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"

	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
)

const (
	documentTable = "document"
	idIndex       = "id"
	indexIndex    = "index"
)

// MemoryStore is a go-memdb backed document store. Write transactions are serialised by go-memdb, so updates never
// conflict.
type MemoryStore struct {
	db *memdb.MemDB
	// test hooks
	unavailable error
	failOp      func(op *Operation) error
	mu          sync.Mutex
}

func NewMemoryStore() (*MemoryStore, error) {
	db, err := memdb.NewMemDB(&memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			documentTable: {
				Name: documentTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:   idIndex,
						Unique: true,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "Index"},
								&memdb.StringFieldIndex{Field: "Id"},
							},
						},
					},
					indexIndex: {
						Name:    indexIndex,
						Indexer: &memdb.StringFieldIndex{Field: "Index"},
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

// SetUnavailable makes Bulk fail with err as if the store could not be reached. Passing nil restores it.
func (s *MemoryStore) SetUnavailable(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = err
}

// FailOperations makes every operation for which f returns an error fail with that error.
func (s *MemoryStore) FailOperations(f func(op *Operation) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOp = f
}

func (s *MemoryStore) Bulk(_ *flowlenscontext.Context, ops []*Operation) (*BulkResult, error) {
	s.mu.Lock()
	unavailable, failOp := s.unavailable, s.failOp
	s.mu.Unlock()
	if unavailable != nil {
		return nil, unavailable
	}
	result := newBulkResult()
	for i, op := range ops {
		if failOp != nil {
			if err := failOp(op); err != nil {
				result.Failures[i] = err
				continue
			}
		}
		if err := s.write(op); err != nil {
			result.Failures[i] = err
		}
	}
	return result, nil
}

func (s *MemoryStore) write(op *Operation) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	current, err := get(txn, op.Index, op.Id)
	if err != nil {
		return err
	}
	source, ok, err := apply(op, current)
	if err != nil || !ok {
		return err
	}
	doc := &Document{Index: op.Index, Id: op.Id, Source: source, Version: 1}
	if current != nil {
		doc.Version = current.Version + 1
	}
	if err := txn.Insert(documentTable, doc); err != nil {
		return errors.WithStack(err)
	}
	txn.Commit()
	return nil
}

func get(txn *memdb.Txn, index string, id string) (*Document, error) {
	obj, err := txn.First(documentTable, idIndex, index, id)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if obj == nil {
		return nil, nil
	}
	return obj.(*Document), nil
}

func (s *MemoryStore) Get(_ *flowlenscontext.Context, index string, id string) (*Document, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	return get(txn, index, id)
}

func (s *MemoryStore) Search(_ *flowlenscontext.Context, index string) ([]*Document, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	iter, err := txn.Get(documentTable, indexIndex, index)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var docs []*Document
	for obj := iter.Next(); obj != nil; obj = iter.Next() {
		docs = append(docs, obj.(*Document))
	}
	return docs, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
