package model

import (
	"github.com/google/uuid"
)

// ImportBatch is one page of records fetched from a single data source (and partition), sorted ascending by cursor.
type ImportBatch[R Record] struct {
	Id           uuid.UUID
	DataSourceId string
	PartitionId  int32
	Records      []R
	// Cursor of the final record.
	LastRecordCursor Cursor
}

func NewImportBatch[R Record](dataSourceId string, partitionId int32, records []R) *ImportBatch[R] {
	batch := &ImportBatch[R]{
		Id:           uuid.New(),
		DataSourceId: dataSourceId,
		PartitionId:  partitionId,
		Records:      records,
	}
	if len(records) > 0 {
		batch.LastRecordCursor = records[len(records)-1].Cursor()
	}
	return batch
}

func (b *ImportBatch[R]) IsEmpty() bool {
	return len(b.Records) == 0
}
