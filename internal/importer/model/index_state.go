package model

import (
	"fmt"
	"time"
)

type DataSourceType string

const (
	DataSourceEngine DataSourceType = "engine"
	DataSourceZeebe  DataSourceType = "zeebe"
)

// IndexState is the durable checkpoint of one (data source, entity type) pair. Timestamp fields are used by engine
// imports, position fields by zeebe imports; both shapes share one document so that they can live in one store.
type IndexState struct {
	DataSourceId   string         `json:"dataSourceId"`
	DataSourceType DataSourceType `json:"dataSourceType"`
	EntityTypeId   string         `json:"entityTypeId"`

	LastImportExecutionTimestamp   time.Time `json:"lastImportExecutionTimestamp"`
	TimestampOfLastPersistedEntity time.Time `json:"timestampOfLastPersistedEntity"`

	PersistedPosition    int64 `json:"persistedPosition"`
	PersistedSequence    int64 `json:"persistedSequence"`
	PendingPosition      int64 `json:"pendingPosition"`
	PendingSequence      int64 `json:"pendingSequence"`
	HasSeenSequenceField bool  `json:"hasSeenSequenceField"`
}

// NewIndexState returns the default checkpoint: nothing imported yet.
func NewIndexState(dataSourceType DataSourceType, dataSourceId string, entityTypeId string) IndexState {
	return IndexState{
		DataSourceId:                   dataSourceId,
		DataSourceType:                 dataSourceType,
		EntityTypeId:                   entityTypeId,
		LastImportExecutionTimestamp:   BeginningOfTime,
		TimestampOfLastPersistedEntity: BeginningOfTime,
	}
}

// Key uniquely identifies the checkpoint in a store.
func (s IndexState) Key() string {
	return IndexKey(s.EntityTypeId, s.DataSourceId)
}

func IndexKey(entityTypeId string, dataSourceId string) string {
	return fmt.Sprintf("%s/%s", entityTypeId, dataSourceId)
}

// Precedes returns true if other is at least as far along as s, i.e. replacing s by other never moves the checkpoint
// backwards.
func (s IndexState) Precedes(other IndexState) bool {
	return !other.TimestampOfLastPersistedEntity.Before(s.TimestampOfLastPersistedEntity) &&
		other.PersistedPosition >= s.PersistedPosition &&
		other.PersistedSequence >= s.PersistedSequence
}
