package writer

import (
	"time"

	"github.com/pkg/errors"

	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
	"github.com/flowlens/flowlens/internal/importer/destination"
	"github.com/flowlens/flowlens/internal/importer/model"
)

// ProcessInstanceWriter merges engine process instances into process instance documents. Instance documents are
// shared with the incident and variable streams, so only instance fields are touched.
type ProcessInstanceWriter struct {
	dataSource      string
	retryOnConflict uint
}

func NewProcessInstanceWriter(dataSource string, retryOnConflict uint) *ProcessInstanceWriter {
	return &ProcessInstanceWriter{dataSource: dataSource, retryOnConflict: retryOnConflict}
}

func (w *ProcessInstanceWriter) Write(_ *flowlenscontext.Context, records []*model.ProcessInstance) ([]*destination.Operation, error) {
	ops := make([]*destination.Operation, 0, len(records))
	errs := recordErrors{}
	for i, p := range records {
		if p.Id == "" {
			errs.add(i, p, errors.New("process instance without id"))
			continue
		}
		instance := *p
		ops = append(ops, &destination.Operation{
			Type:            destination.OpUpdate,
			Index:           model.IndexProcessInstance,
			Id:              p.Id,
			RetryOnConflict: w.retryOnConflict,
			Records:         []int{i},
			Merge: mergeDocument(func(doc *model.ProcessInstanceDocument, _ bool) error {
				w.apply(doc, &instance)
				return nil
			}),
		})
	}
	return ops, errs.err()
}

func (w *ProcessInstanceWriter) apply(doc *model.ProcessInstanceDocument, p *model.ProcessInstance) {
	initInstance(doc, p.Id, w.dataSource)
	doc.ProcessDefinitionId = p.ProcessDefinitionId
	doc.ProcessDefinitionKey = p.ProcessDefinitionKey
	doc.ProcessDefinitionVersion = p.ProcessDefinitionVersion
	doc.BusinessKey = p.BusinessKey
	doc.TenantId = p.TenantId
	start := p.StartTime
	doc.StartDate = &start
	if p.EndTime != nil {
		end := *p.EndTime
		doc.EndDate = &end
	}
	doc.State = mergeState(doc.State, engineState(p.State))
}

func initInstance(doc *model.ProcessInstanceDocument, id string, dataSource string) {
	doc.ProcessInstanceId = id
	doc.DataSource = dataSource
	if doc.Incidents == nil {
		doc.Incidents = []model.IncidentDocument{}
	}
	if doc.Variables == nil {
		doc.Variables = []model.VariableDocument{}
	}
}

func engineState(state string) string {
	switch state {
	case "COMPLETED":
		return model.StateCompleted
	case "EXTERNALLY_TERMINATED", "INTERNALLY_TERMINATED":
		return model.StateCanceled
	case "":
		return ""
	}
	return model.StateActive
}

// mergeState never moves a finished instance back to active; records of one instance may be imported out of order by
// different streams.
func mergeState(stored string, incoming string) string {
	if incoming == "" {
		return stored
	}
	if incoming == model.StateActive && stored != "" && stored != model.StateActive {
		return stored
	}
	return incoming
}

// IncidentWriter attaches engine incidents to their process instance documents.
type IncidentWriter struct {
	dataSource      string
	retryOnConflict uint
}

func NewIncidentWriter(dataSource string, retryOnConflict uint) *IncidentWriter {
	return &IncidentWriter{dataSource: dataSource, retryOnConflict: retryOnConflict}
}

func (w *IncidentWriter) Write(_ *flowlenscontext.Context, records []*model.Incident) ([]*destination.Operation, error) {
	byInstance := newGrouped[model.IncidentDocument]()
	errs := recordErrors{}
	for i, incident := range records {
		if incident.Id == "" || incident.ProcessInstanceId == "" {
			errs.add(i, incident, errors.New("incident without id or process instance"))
			continue
		}
		byInstance.add(incident.ProcessInstanceId, i, engineIncident(incident))
	}
	return incidentOps(byInstance, w.dataSource, w.retryOnConflict), errs.err()
}

func engineIncident(incident *model.Incident) model.IncidentDocument {
	doc := model.IncidentDocument{
		Id:           incident.Id,
		ActivityId:   incident.ActivityId,
		IncidentType: incident.IncidentType,
		Message:      incident.IncidentMessage,
		CreateTime:   timePtr(incident.CreateTime),
		Status:       model.IncidentOpen,
	}
	if incident.EndTime != nil {
		doc.EndTime = timePtr(*incident.EndTime)
	}
	switch {
	case incident.Deleted:
		doc.Status = model.IncidentDeleted
	case incident.Resolved || incident.EndTime != nil:
		doc.Status = model.IncidentResolved
	}
	return doc
}

func incidentOps(byInstance *grouped[model.IncidentDocument], dataSource string, retryOnConflict uint) []*destination.Operation {
	ops := make([]*destination.Operation, 0, len(byInstance.order))
	for _, instanceId := range byInstance.order {
		instanceId := instanceId
		incoming := byInstance.items[instanceId]
		ops = append(ops, &destination.Operation{
			Type:            destination.OpUpdate,
			Index:           model.IndexProcessInstance,
			Id:              instanceId,
			RetryOnConflict: retryOnConflict,
			Records:         byInstance.pos[instanceId],
			Merge: mergeDocument(func(doc *model.ProcessInstanceDocument, _ bool) error {
				initInstance(doc, instanceId, dataSource)
				doc.Incidents = MergeIncidents(doc.Incidents, keepCreateTime(doc.Incidents, incoming))
				return nil
			}),
		})
	}
	return ops
}

// keepCreateTime copies the creation time of stored or earlier incoming incidents to incoming ones that do not carry
// it, e.g. an incident only seen when it was resolved.
func keepCreateTime(stored []model.IncidentDocument, incoming []model.IncidentDocument) []model.IncidentDocument {
	created := make(map[string]*time.Time, len(stored))
	for _, i := range stored {
		created[i.Id] = i.CreateTime
	}
	result := make([]model.IncidentDocument, len(incoming))
	for i, incident := range incoming {
		if incident.CreateTime == nil {
			incident.CreateTime = created[incident.Id]
		} else {
			created[incident.Id] = incident.CreateTime
		}
		result[i] = incident
	}
	return result
}

func timePtr(t time.Time) *time.Time {
	return &t
}
