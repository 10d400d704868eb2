package toggle

import (
	"context"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type toggleKey struct{}

// Toggles records which data sources have import disabled. Disabling a source stops its mediators from importing but
// leaves their cursors untouched, so that re-enabling it resumes where it left off.
type Toggles struct {
	disabled map[string]bool
	mu       sync.RWMutex
}

func New(disabled ...string) *Toggles {
	t := &Toggles{disabled: map[string]bool{}}
	for _, dataSourceId := range disabled {
		t.disabled[dataSourceId] = true
	}
	return t
}

func (t *Toggles) Disable(dataSourceId string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disabled[dataSourceId] = true
}

func (t *Toggles) Enable(dataSourceId string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.disabled, dataSourceId)
}

func (t *Toggles) IsEnabled(dataSourceId string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return !t.disabled[dataSourceId]
}

// Disabled returns the disabled data sources, sorted.
func (t *Toggles) Disabled() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	disabled := maps.Keys(t.disabled)
	slices.Sort(disabled)
	return disabled
}

// NewContext returns a copy of parent carrying t.
func NewContext(parent context.Context, t *Toggles) context.Context {
	return context.WithValue(parent, toggleKey{}, t)
}

// FromContext returns the toggles carried by ctx, if any.
func FromContext(ctx context.Context) (*Toggles, bool) {
	t, ok := ctx.Value(toggleKey{}).(*Toggles)
	return t, ok
}

// Enabled returns false if ctx carries toggles that disable dataSourceId. Without toggles every source is enabled.
func Enabled(ctx context.Context, dataSourceId string) bool {
	t, ok := FromContext(ctx)
	if !ok {
		return true
	}
	return t.IsEnabled(dataSourceId)
}
