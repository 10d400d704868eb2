package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewIndexState_Defaults(t *testing.T) {
	state := NewIndexState(DataSourceEngine, "camunda-bpm", EntityOpenIncident)
	assert.Equal(t, BeginningOfTime, state.TimestampOfLastPersistedEntity)
	assert.Equal(t, BeginningOfTime, state.LastImportExecutionTimestamp)
	assert.Equal(t, int64(0), state.PersistedPosition)
	assert.False(t, state.HasSeenSequenceField)
	assert.Equal(t, "open-incident/camunda-bpm", state.Key())
}

func TestIndexState_Precedes(t *testing.T) {
	older := NewIndexState(DataSourceZeebe, "zeebe-1", EntityZeebeIncident)
	older.PersistedPosition = 10
	newer := older
	newer.PersistedPosition = 20

	assert.True(t, older.Precedes(newer))
	assert.True(t, older.Precedes(older))
	assert.False(t, newer.Precedes(older))

	later := NewIndexState(DataSourceEngine, "e", EntityUser)
	later.TimestampOfLastPersistedEntity = BeginningOfTime.Add(time.Hour)
	assert.False(t, later.Precedes(NewIndexState(DataSourceEngine, "e", EntityUser)))
}

func TestNewImportBatch(t *testing.T) {
	records := []*ZeebeRecord{{Position: 5}, {Position: 12, Sequence: 3}}
	batch := NewImportBatch("zeebe", 1, records)
	assert.Equal(t, Cursor{Position: 12, Sequence: 3}, batch.LastRecordCursor)
	assert.False(t, batch.IsEmpty())
	assert.True(t, NewImportBatch[*ZeebeRecord]("zeebe", 1, nil).IsEmpty())
}

func TestRankOf(t *testing.T) {
	assert.Equal(t, RankDefinition, RankOf(EntityProcessDefinition))
	assert.Equal(t, RankDefinition, RankOf(EntityZeebeProcess))
	assert.Equal(t, RankInstance, RankOf(EntityCompletedProcessInstance))
	assert.Equal(t, RankInstanceDetail, RankOf(EntityZeebeVariable))
	assert.Equal(t, RankIdentity, RankOf(EntityUser))
	assert.True(t, RankDefinition < RankInstance)
}
