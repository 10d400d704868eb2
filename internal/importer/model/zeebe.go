package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Zeebe value types as written by the exporter.
const (
	ValueTypeProcess         = "PROCESS"
	ValueTypeProcessInstance = "PROCESS_INSTANCE"
	ValueTypeIncident        = "INCIDENT"
	ValueTypeVariable        = "VARIABLE"
)

// ZeebeRecord is one exported broker record. Position is strictly increasing within a partition; Sequence is only
// written by newer exporters and is zero otherwise.
type ZeebeRecord struct {
	PartitionId int32           `json:"partitionId"`
	Position    int64           `json:"position"`
	Sequence    int64           `json:"sequence,omitempty"`
	Key         int64           `json:"key"`
	Intent      string          `json:"intent"`
	ValueType   string          `json:"valueType"`
	Timestamp   time.Time       `json:"timestamp"`
	Value       json.RawMessage `json:"value"`
}

func (r *ZeebeRecord) RecordId() string {
	return strconv.FormatInt(r.Position, 10)
}

func (r *ZeebeRecord) Cursor() Cursor {
	return Cursor{Timestamp: r.Timestamp, Position: r.Position, Sequence: r.Sequence}
}

// ZeebeDataSourceId is the checkpoint data source id of one partition of a zeebe broker.
func ZeebeDataSourceId(name string, partitionId int32) string {
	return fmt.Sprintf("%s-partition-%d", name, partitionId)
}

type ZeebeProcessValue struct {
	BpmnProcessId        string `json:"bpmnProcessId"`
	Version              int32  `json:"version"`
	ProcessDefinitionKey int64  `json:"processDefinitionKey"`
	ResourceName         string `json:"resourceName"`
	TenantId             string `json:"tenantId,omitempty"`
}

type ZeebeProcessInstanceValue struct {
	BpmnProcessId            string `json:"bpmnProcessId"`
	Version                  int32  `json:"version"`
	ProcessDefinitionKey     int64  `json:"processDefinitionKey"`
	ProcessInstanceKey       int64  `json:"processInstanceKey"`
	ElementId                string `json:"elementId"`
	BpmnElementType          string `json:"bpmnElementType"`
	ParentProcessInstanceKey int64  `json:"parentProcessInstanceKey"`
	TenantId                 string `json:"tenantId,omitempty"`
}

type ZeebeIncidentValue struct {
	ErrorType            string `json:"errorType"`
	ErrorMessage         string `json:"errorMessage"`
	BpmnProcessId        string `json:"bpmnProcessId"`
	ProcessDefinitionKey int64  `json:"processDefinitionKey"`
	ProcessInstanceKey   int64  `json:"processInstanceKey"`
	ElementId            string `json:"elementId"`
	ElementInstanceKey   int64  `json:"elementInstanceKey"`
	TenantId             string `json:"tenantId,omitempty"`
}

type ZeebeVariableValue struct {
	Name                 string `json:"name"`
	Value                string `json:"value"`
	ScopeKey             int64  `json:"scopeKey"`
	ProcessInstanceKey   int64  `json:"processInstanceKey"`
	ProcessDefinitionKey int64  `json:"processDefinitionKey"`
	BpmnProcessId        string `json:"bpmnProcessId"`
	TenantId             string `json:"tenantId,omitempty"`
}

// Zeebe intents the writers react to.
const (
	IntentCreated           = "CREATED"
	IntentElementActivating = "ELEMENT_ACTIVATING"
	IntentElementCompleted  = "ELEMENT_COMPLETED"
	IntentElementTerminated = "ELEMENT_TERMINATED"
	IntentResolved          = "RESOLVED"
	IntentUpdated           = "UPDATED"
	BpmnElementTypeProcess  = "PROCESS"
)
