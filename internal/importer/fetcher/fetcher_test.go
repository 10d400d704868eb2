package fetcher

import (
	"strconv"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
	"github.com/flowlens/flowlens/internal/common/flowlenserrors"
	"github.com/flowlens/flowlens/internal/importer/index"
	"github.com/flowlens/flowlens/internal/importer/model"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func zeebeRecord(position int64, sequence int64) *model.ZeebeRecord {
	return &model.ZeebeRecord{PartitionId: 1, Position: position, Sequence: sequence, Timestamp: baseTime}
}

func definition(id string, deployed time.Duration) *model.ProcessDefinition {
	d := &model.ProcessDefinition{Id: id, DeploymentTime: baseTime.Add(deployed)}
	d.SetCursorTimestamp(d.DeploymentTime)
	return d
}

func positions(records []*model.ZeebeRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = strconv.FormatInt(r.Position, 10)
	}
	return out
}

func TestMemorySource_PositionPage(t *testing.T) {
	source := NewMemorySource("zeebe-partition-1", zeebeRecord(30, 0), zeebeRecord(10, 0), zeebeRecord(20, 0))
	page := index.Page{Kind: index.CursorPosition, OrderBy: index.OrderByPosition, After: 10, Limit: 1}

	records, err := source.Fetch(flowlenscontext.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, []string{"20"}, positions(records))

	page.Limit = 10
	records, err = source.Fetch(flowlenscontext.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, []string{"20", "30"}, positions(records))
	assert.Equal(t, 2, source.Fetches())
}

func TestMemorySource_SequencePage(t *testing.T) {
	source := NewMemorySource("zeebe-partition-1", zeebeRecord(1, 5), zeebeRecord(2, 3), zeebeRecord(3, 4))
	page := index.Page{Kind: index.CursorPosition, OrderBy: index.OrderBySequence, After: 3, Limit: 10}

	records, err := source.Fetch(flowlenscontext.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "1"}, positions(records))
}

func TestMemorySource_TimestampPageIncludesBoundary(t *testing.T) {
	source := NewMemorySource[*model.ProcessDefinition]("engine-1")
	source.Add(definition("b", time.Second), definition("a", 0), definition("old", -time.Second))
	page := index.Page{Kind: index.CursorTimestamp, TimestampFrom: baseTime, Limit: 10}

	records, err := source.Fetch(flowlenscontext.Background(), page)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].Id)
	assert.Equal(t, "b", records[1].Id)
}

func TestMemorySource_Errors(t *testing.T) {
	source := NewMemorySource("zeebe-partition-1", zeebeRecord(1, 0))
	page := index.Page{Kind: index.CursorPosition, OrderBy: index.OrderByPosition, Limit: 10}

	source.FailNext(errors.New("connection reset"))
	_, err := source.Fetch(flowlenscontext.Background(), page)
	assert.Error(t, err)
	assert.False(t, flowlenserrors.IsSourceNotFound(err))

	source.SetMissing(true)
	_, err = source.Fetch(flowlenscontext.Background(), page)
	assert.True(t, flowlenserrors.IsSourceNotFound(err))

	source.SetMissing(false)
	records, err := source.Fetch(flowlenscontext.Background(), page)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
