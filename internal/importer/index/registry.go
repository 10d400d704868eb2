package index

import (
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/flowlens/flowlens/internal/importer/model"
)

// Registry holds one handler per (entity type, data source). Handlers are created on first use by the factory passed
// to GetOrCreate.
type Registry struct {
	handlers map[string]*Handler
	mu       sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]*Handler{}}
}

func (r *Registry) GetOrCreate(entityTypeId string, dataSourceId string, create func() *Handler) *Handler {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := model.IndexKey(entityTypeId, dataSourceId)
	if h, ok := r.handlers[key]; ok {
		return h
	}
	h := create()
	r.handlers[key] = h
	return h
}

func (r *Registry) Get(entityTypeId string, dataSourceId string) (*Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handlers[model.IndexKey(entityTypeId, dataSourceId)]
	return h, ok
}

// All returns every registered handler, sorted by key.
func (r *Registry) All() []*Handler {
	r.mu.Lock()
	keys := maps.Keys(r.handlers)
	slices.Sort(keys)
	handlers := make([]*Handler, len(keys))
	for i, key := range keys {
		handlers[i] = r.handlers[key]
	}
	r.mu.Unlock()
	return handlers
}

func (r *Registry) ForDataSource(dataSourceId string) []*Handler {
	var handlers []*Handler
	for _, h := range r.All() {
		if h.DataSourceId() == dataSourceId {
			handlers = append(handlers, h)
		}
	}
	return handlers
}
