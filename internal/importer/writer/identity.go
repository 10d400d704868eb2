package writer

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
	"github.com/flowlens/flowlens/internal/importer/destination"
	"github.com/flowlens/flowlens/internal/importer/model"
)

const DefaultIdentityCacheSize = 10000

// IdentityCache remembers, per identity, the priority of the engine whose copy is stored. It is shared by the identity
// writers of all engines so that an identity already imported from a higher priority engine is skipped without a
// round trip to the store.
type IdentityCache struct {
	cache *lru.Cache
}

func NewIdentityCache(size int) (*IdentityCache, error) {
	if size <= 0 {
		size = DefaultIdentityCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &IdentityCache{cache: cache}, nil
}

func (c *IdentityCache) storedPriority(id string) (int, bool) {
	if v, ok := c.cache.Get(id); ok {
		return v.(int), true
	}
	return 0, false
}

func (c *IdentityCache) stored(id string, priority int) {
	c.cache.Add(id, priority)
}

// IdentityWriter imports users of one engine. When the same user exists in several engines, the copy of the engine
// configured first (the lowest priority value) is kept and copies from other engines are ignored.
type IdentityWriter struct {
	dataSource      string
	priority        int
	retryOnConflict uint
	cache           *IdentityCache
}

func NewIdentityWriter(dataSource string, priority int, retryOnConflict uint, cache *IdentityCache) *IdentityWriter {
	return &IdentityWriter{dataSource: dataSource, priority: priority, retryOnConflict: retryOnConflict, cache: cache}
}

func (w *IdentityWriter) Write(ctx *flowlenscontext.Context, records []*model.User) ([]*destination.Operation, error) {
	ops := make([]*destination.Operation, 0, len(records))
	errs := recordErrors{}
	for i, u := range records {
		if u.Id == "" {
			errs.add(i, u, errors.New("user without id"))
			continue
		}
		if stored, ok := w.cache.storedPriority(u.Id); ok && stored < w.priority {
			ctx.Log.Debugf("Skipping user %s of %s: already imported from a higher priority engine", u.Id, w.dataSource)
			continue
		}
		identity := model.IdentityDocument{
			Id:             u.Id,
			FirstName:      u.FirstName,
			LastName:       u.LastName,
			Email:          u.Email,
			DataSource:     w.dataSource,
			SourcePriority: w.priority,
		}
		ops = append(ops, &destination.Operation{
			Type:            destination.OpUpdate,
			Index:           model.IndexIdentity,
			Id:              u.Id,
			RetryOnConflict: w.retryOnConflict,
			Records:         []int{i},
			Merge:           w.merge(identity),
		})
	}
	return ops, errs.err()
}

func (w *IdentityWriter) merge(incoming model.IdentityDocument) destination.MergeFunc {
	return mergeDocument(func(doc *model.IdentityDocument, exists bool) error {
		if exists && doc.SourcePriority < incoming.SourcePriority {
			w.cache.stored(doc.Id, doc.SourcePriority)
			return destination.ErrNoChange
		}
		*doc = incoming
		w.cache.stored(incoming.Id, incoming.SourcePriority)
		return nil
	})
}
