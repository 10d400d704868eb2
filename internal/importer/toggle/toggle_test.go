package toggle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
)

func TestEnabled(t *testing.T) {
	toggles := New("engine-2")
	ctx := NewContext(context.Background(), toggles)

	assert.True(t, Enabled(ctx, "engine-1"))
	assert.False(t, Enabled(ctx, "engine-2"))

	toggles.Disable("engine-1")
	assert.False(t, Enabled(ctx, "engine-1"))
	assert.Equal(t, []string{"engine-1", "engine-2"}, toggles.Disabled())

	toggles.Enable("engine-2")
	assert.True(t, Enabled(ctx, "engine-2"))
}

func TestEnabled_WithoutToggles(t *testing.T) {
	assert.True(t, Enabled(context.Background(), "engine-1"))
}

func TestEnabled_ThroughFlowlensContext(t *testing.T) {
	ctx := flowlenscontext.WithValue(flowlenscontext.Background(), toggleKey{}, New("zeebe-partition-1"))
	assert.False(t, Enabled(ctx, "zeebe-partition-1"))
	assert.True(t, Enabled(ctx, "zeebe-partition-2"))
}
