package writer

import (
	"github.com/pkg/errors"

	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
	"github.com/flowlens/flowlens/internal/importer/destination"
	"github.com/flowlens/flowlens/internal/importer/model"
)

// ProcessDefinitionWriter indexes engine process definitions. Definitions are immutable, so the document is replaced.
type ProcessDefinitionWriter struct {
	dataSource string
}

func NewProcessDefinitionWriter(dataSource string) *ProcessDefinitionWriter {
	return &ProcessDefinitionWriter{dataSource: dataSource}
}

func (w *ProcessDefinitionWriter) Write(_ *flowlenscontext.Context, records []*model.ProcessDefinition) ([]*destination.Operation, error) {
	ops := make([]*destination.Operation, 0, len(records))
	errs := recordErrors{}
	for i, d := range records {
		if d.Id == "" || d.Key == "" {
			errs.add(i, d, errors.New("process definition without id or key"))
			continue
		}
		source, err := encode(model.ProcessDefinitionDocument{
			Id:             d.Id,
			Key:            d.Key,
			Version:        d.Version,
			Name:           d.Name,
			TenantId:       d.TenantId,
			DataSource:     w.dataSource,
			DeploymentTime: d.DeploymentTime,
			Deleted:        d.Deleted,
		})
		if err != nil {
			errs.add(i, d, err)
			continue
		}
		ops = append(ops, &destination.Operation{
			Type:    destination.OpIndex,
			Index:   model.IndexProcessDefinition,
			Id:      d.Id,
			Source:  source,
			Records: []int{i},
		})
	}
	return ops, errs.err()
}
