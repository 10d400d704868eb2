package writer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
	"github.com/flowlens/flowlens/internal/importer/destination"
	"github.com/flowlens/flowlens/internal/importer/model"
)

// Zeebe records of a value type the writer does not handle, or with an intent it does not care about, are ignored
// without error.

func decodeValue[V any](r *model.ZeebeRecord) (*V, error) {
	var v V
	if err := json.Unmarshal(r.Value, &v); err != nil {
		return nil, errors.Wrapf(err, "decoding %s record value", r.ValueType)
	}
	return &v, nil
}

// ZeebeProcessWriter indexes deployed processes as process definitions.
type ZeebeProcessWriter struct {
	dataSource string
}

func NewZeebeProcessWriter(dataSource string) *ZeebeProcessWriter {
	return &ZeebeProcessWriter{dataSource: dataSource}
}

func (w *ZeebeProcessWriter) Write(_ *flowlenscontext.Context, records []*model.ZeebeRecord) ([]*destination.Operation, error) {
	var ops []*destination.Operation
	errs := recordErrors{}
	for i, r := range records {
		if r.ValueType != model.ValueTypeProcess || r.Intent != model.IntentCreated {
			continue
		}
		value, err := decodeValue[model.ZeebeProcessValue](r)
		if err != nil {
			errs.add(i, r, err)
			continue
		}
		id := strconv.FormatInt(value.ProcessDefinitionKey, 10)
		source, err := encode(model.ProcessDefinitionDocument{
			Id:             id,
			Key:            value.BpmnProcessId,
			Version:        value.Version,
			Name:           value.ResourceName,
			TenantId:       value.TenantId,
			DataSource:     w.dataSource,
			DeploymentTime: r.Timestamp,
		})
		if err != nil {
			errs.add(i, r, err)
			continue
		}
		ops = append(ops, &destination.Operation{
			Type:    destination.OpIndex,
			Index:   model.IndexProcessDefinition,
			Id:      id,
			Source:  source,
			Records: []int{i},
		})
	}
	return ops, errs.err()
}

type instanceEvent struct {
	intent    string
	timestamp time.Time
	value     *model.ZeebeProcessInstanceValue
}

// ZeebeProcessInstanceWriter folds the lifecycle events of process elements into process instance documents.
type ZeebeProcessInstanceWriter struct {
	dataSource      string
	retryOnConflict uint
}

func NewZeebeProcessInstanceWriter(dataSource string, retryOnConflict uint) *ZeebeProcessInstanceWriter {
	return &ZeebeProcessInstanceWriter{dataSource: dataSource, retryOnConflict: retryOnConflict}
}

func (w *ZeebeProcessInstanceWriter) Write(_ *flowlenscontext.Context, records []*model.ZeebeRecord) ([]*destination.Operation, error) {
	byInstance := newGrouped[instanceEvent]()
	errs := recordErrors{}
	for i, r := range records {
		if r.ValueType != model.ValueTypeProcessInstance {
			continue
		}
		switch r.Intent {
		case model.IntentElementActivating, model.IntentElementCompleted, model.IntentElementTerminated:
		default:
			continue
		}
		value, err := decodeValue[model.ZeebeProcessInstanceValue](r)
		if err != nil {
			errs.add(i, r, err)
			continue
		}
		if value.BpmnElementType != model.BpmnElementTypeProcess {
			continue
		}
		byInstance.add(strconv.FormatInt(value.ProcessInstanceKey, 10), i, instanceEvent{
			intent:    r.Intent,
			timestamp: r.Timestamp,
			value:     value,
		})
	}

	ops := make([]*destination.Operation, 0, len(byInstance.order))
	for _, instanceId := range byInstance.order {
		instanceId := instanceId
		events := byInstance.items[instanceId]
		ops = append(ops, &destination.Operation{
			Type:            destination.OpUpdate,
			Index:           model.IndexProcessInstance,
			Id:              instanceId,
			RetryOnConflict: w.retryOnConflict,
			Records:         byInstance.pos[instanceId],
			Merge: mergeDocument(func(doc *model.ProcessInstanceDocument, _ bool) error {
				initInstance(doc, instanceId, w.dataSource)
				for _, e := range events {
					applyInstanceEvent(doc, e)
				}
				return nil
			}),
		})
	}
	return ops, errs.err()
}

func applyInstanceEvent(doc *model.ProcessInstanceDocument, e instanceEvent) {
	doc.ProcessDefinitionKey = e.value.BpmnProcessId
	doc.ProcessDefinitionId = strconv.FormatInt(e.value.ProcessDefinitionKey, 10)
	doc.ProcessDefinitionVersion = e.value.Version
	doc.TenantId = e.value.TenantId
	switch e.intent {
	case model.IntentElementActivating:
		if doc.StartDate == nil || e.timestamp.Before(*doc.StartDate) {
			doc.StartDate = timePtr(e.timestamp)
		}
		doc.State = mergeState(doc.State, model.StateActive)
	case model.IntentElementCompleted:
		doc.EndDate = timePtr(e.timestamp)
		doc.State = model.StateCompleted
	case model.IntentElementTerminated:
		doc.EndDate = timePtr(e.timestamp)
		doc.State = model.StateCanceled
	}
}

// ZeebeIncidentWriter attaches incidents to their process instance documents.
type ZeebeIncidentWriter struct {
	dataSource      string
	retryOnConflict uint
}

func NewZeebeIncidentWriter(dataSource string, retryOnConflict uint) *ZeebeIncidentWriter {
	return &ZeebeIncidentWriter{dataSource: dataSource, retryOnConflict: retryOnConflict}
}

func (w *ZeebeIncidentWriter) Write(_ *flowlenscontext.Context, records []*model.ZeebeRecord) ([]*destination.Operation, error) {
	byInstance := newGrouped[model.IncidentDocument]()
	errs := recordErrors{}
	for i, r := range records {
		if r.ValueType != model.ValueTypeIncident || (r.Intent != model.IntentCreated && r.Intent != model.IntentResolved) {
			continue
		}
		value, err := decodeValue[model.ZeebeIncidentValue](r)
		if err != nil {
			errs.add(i, r, err)
			continue
		}
		incident := model.IncidentDocument{
			Id:           strconv.FormatInt(r.Key, 10),
			ActivityId:   value.ElementId,
			IncidentType: value.ErrorType,
			Message:      value.ErrorMessage,
			Status:       model.IncidentOpen,
		}
		if r.Intent == model.IntentCreated {
			incident.CreateTime = timePtr(r.Timestamp)
		} else {
			incident.EndTime = timePtr(r.Timestamp)
			incident.Status = model.IncidentResolved
		}
		byInstance.add(strconv.FormatInt(value.ProcessInstanceKey, 10), i, incident)
	}
	return incidentOps(byInstance, w.dataSource, w.retryOnConflict), errs.err()
}

// ZeebeVariableWriter attaches variables to their process instance documents. A variable is identified by its scope
// and name; its latest value wins.
type ZeebeVariableWriter struct {
	dataSource      string
	retryOnConflict uint
}

func NewZeebeVariableWriter(dataSource string, retryOnConflict uint) *ZeebeVariableWriter {
	return &ZeebeVariableWriter{dataSource: dataSource, retryOnConflict: retryOnConflict}
}

func (w *ZeebeVariableWriter) Write(_ *flowlenscontext.Context, records []*model.ZeebeRecord) ([]*destination.Operation, error) {
	byInstance := newGrouped[model.VariableDocument]()
	errs := recordErrors{}
	for i, r := range records {
		if r.ValueType != model.ValueTypeVariable || (r.Intent != model.IntentCreated && r.Intent != model.IntentUpdated) {
			continue
		}
		value, err := decodeValue[model.ZeebeVariableValue](r)
		if err != nil {
			errs.add(i, r, err)
			continue
		}
		byInstance.add(strconv.FormatInt(value.ProcessInstanceKey, 10), i, model.VariableDocument{
			Id:      fmt.Sprintf("%d-%s", value.ScopeKey, value.Name),
			Name:    value.Name,
			Value:   value.Value,
			Version: r.Position,
		})
	}

	ops := make([]*destination.Operation, 0, len(byInstance.order))
	for _, instanceId := range byInstance.order {
		instanceId := instanceId
		incoming := byInstance.items[instanceId]
		ops = append(ops, &destination.Operation{
			Type:            destination.OpUpdate,
			Index:           model.IndexProcessInstance,
			Id:              instanceId,
			RetryOnConflict: w.retryOnConflict,
			Records:         byInstance.pos[instanceId],
			Merge: mergeDocument(func(doc *model.ProcessInstanceDocument, _ bool) error {
				initInstance(doc, instanceId, w.dataSource)
				doc.Variables = MergeVariables(doc.Variables, incoming)
				return nil
			}),
		})
	}
	return ops, errs.err()
}
