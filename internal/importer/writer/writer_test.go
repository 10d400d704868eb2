package writer

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
	"github.com/flowlens/flowlens/internal/importer/destination"
	"github.com/flowlens/flowlens/internal/importer/model"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *destination.MemoryStore {
	store, err := destination.NewMemoryStore()
	require.NoError(t, err)
	return store
}

func apply(t *testing.T, store destination.Store, ops []*destination.Operation) {
	result, err := store.Bulk(flowlenscontext.Background(), ops)
	require.NoError(t, err)
	require.False(t, result.HasFailures(), "%v", result.Failures)
}

func getDoc[D any](t *testing.T, store destination.Store, index string, id string) D {
	doc, err := store.Get(flowlenscontext.Background(), index, id)
	require.NoError(t, err)
	require.NotNil(t, doc, "%s/%s not found", index, id)
	var d D
	require.NoError(t, json.Unmarshal(doc.Source, &d))
	return d
}

func zeebeRecord(t *testing.T, position int64, valueType string, intent string, key int64, value any) *model.ZeebeRecord {
	data, err := json.Marshal(value)
	require.NoError(t, err)
	return &model.ZeebeRecord{
		PartitionId: 1,
		Position:    position,
		Key:         key,
		Intent:      intent,
		ValueType:   valueType,
		Timestamp:   baseTime.Add(time.Duration(position) * time.Second),
		Value:       data,
	}
}

func TestMergeIncidents_IncomingWinsById(t *testing.T) {
	existing := []model.IncidentDocument{
		{Id: "1", Status: model.IncidentOpen, Message: "a"},
		{Id: "2", Status: model.IncidentOpen},
	}
	incoming := []model.IncidentDocument{
		{Id: "2", Status: model.IncidentResolved},
		{Id: "3", Status: model.IncidentOpen},
	}
	assert.Equal(t, []model.IncidentDocument{
		{Id: "1", Status: model.IncidentOpen, Message: "a"},
		{Id: "2", Status: model.IncidentResolved},
		{Id: "3", Status: model.IncidentOpen},
	}, MergeIncidents(existing, incoming))
}

func TestMergeVariables_IncomingWinsById(t *testing.T) {
	merged := MergeVariables(
		[]model.VariableDocument{{Id: "1-x", Value: "1"}},
		[]model.VariableDocument{{Id: "1-x", Value: "2"}, {Id: "1-y", Value: "3"}, {Id: "1-x", Value: "4"}},
	)
	assert.Equal(t, []model.VariableDocument{{Id: "1-x", Value: "4"}, {Id: "1-y", Value: "3"}}, merged)
}

func TestMergeState(t *testing.T) {
	assert.Equal(t, model.StateActive, mergeState("", model.StateActive))
	assert.Equal(t, model.StateCompleted, mergeState(model.StateActive, model.StateCompleted))
	assert.Equal(t, model.StateCompleted, mergeState(model.StateCompleted, model.StateActive))
	assert.Equal(t, model.StateCanceled, mergeState(model.StateCanceled, ""))
}

func TestProcessDefinitionWriter(t *testing.T) {
	store := newStore(t)
	w := NewProcessDefinitionWriter("engine-1")
	records := []*model.ProcessDefinition{
		{Id: "invoice:1", Key: "invoice", Version: 1, DeploymentTime: baseTime},
		{Id: "", Key: "broken"},
		{Id: "invoice:2", Key: "invoice", Version: 2, DeploymentTime: baseTime},
	}

	ops, err := w.Write(flowlenscontext.Background(), records)
	require.Error(t, err)
	assert.Equal(t, []int{1}, keys(SkippedRecords(err)))
	require.Len(t, ops, 2)
	assert.Equal(t, []int{0}, ops[0].Records)
	assert.Equal(t, []int{2}, ops[1].Records)

	apply(t, store, ops)
	doc := getDoc[model.ProcessDefinitionDocument](t, store, model.IndexProcessDefinition, "invoice:2")
	assert.Equal(t, int32(2), doc.Version)
	assert.Equal(t, "engine-1", doc.DataSource)
}

func TestProcessInstanceWriter_RunningThenCompleted(t *testing.T) {
	store := newStore(t)
	w := NewProcessInstanceWriter("engine-1", 3)
	end := baseTime.Add(time.Hour)

	completed := []*model.ProcessInstance{{Id: "pi-1", StartTime: baseTime, EndTime: &end, State: "COMPLETED"}}
	running := []*model.ProcessInstance{{Id: "pi-1", StartTime: baseTime, State: "ACTIVE", BusinessKey: "order-7"}}

	// the completed stream overtakes the running stream
	for _, batch := range [][]*model.ProcessInstance{completed, running} {
		ops, err := w.Write(flowlenscontext.Background(), batch)
		require.NoError(t, err)
		apply(t, store, ops)
	}

	doc := getDoc[model.ProcessInstanceDocument](t, store, model.IndexProcessInstance, "pi-1")
	assert.Equal(t, model.StateCompleted, doc.State)
	require.NotNil(t, doc.EndDate)
	assert.True(t, end.Equal(*doc.EndDate))
	assert.Equal(t, "order-7", doc.BusinessKey)
	assert.NotNil(t, doc.Incidents)
}

func TestIncidentWriter_UnionWithStoredIncidents(t *testing.T) {
	store := newStore(t)
	ctx := flowlenscontext.Background()
	instances := NewProcessInstanceWriter("engine-1", 3)
	incidents := NewIncidentWriter("engine-1", 3)

	ops, err := instances.Write(ctx, []*model.ProcessInstance{{Id: "pi-1", StartTime: baseTime, State: "ACTIVE"}})
	require.NoError(t, err)
	apply(t, store, ops)

	ops, err = incidents.Write(ctx, []*model.Incident{
		{Id: "inc-1", ProcessInstanceId: "pi-1", CreateTime: baseTime, IncidentMessage: "boom"},
		{Id: "inc-2", ProcessInstanceId: "pi-1", CreateTime: baseTime},
		{Id: "inc-3", ProcessInstanceId: "pi-2", CreateTime: baseTime},
	})
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, []int{0, 1}, ops[0].Records)
	apply(t, store, ops)

	end := baseTime.Add(time.Minute)
	ops, err = incidents.Write(ctx, []*model.Incident{
		{Id: "inc-1", ProcessInstanceId: "pi-1", CreateTime: baseTime, EndTime: &end, Resolved: true, IncidentMessage: "boom"},
	})
	require.NoError(t, err)
	apply(t, store, ops)
	apply(t, store, ops)

	doc := getDoc[model.ProcessInstanceDocument](t, store, model.IndexProcessInstance, "pi-1")
	require.Len(t, doc.Incidents, 2)
	assert.Equal(t, "inc-1", doc.Incidents[0].Id)
	assert.Equal(t, model.IncidentResolved, doc.Incidents[0].Status)
	assert.Equal(t, model.IncidentOpen, doc.Incidents[1].Status)
	assert.Equal(t, model.StateActive, doc.State)

	other := getDoc[model.ProcessInstanceDocument](t, store, model.IndexProcessInstance, "pi-2")
	assert.Len(t, other.Incidents, 1)
}

func TestIdentityWriter_FirstConfiguredSourceWins(t *testing.T) {
	for name, order := range map[string][]int{"higher priority first": {0, 1}, "lower priority first": {1, 0}} {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			cache, err := NewIdentityCache(10)
			require.NoError(t, err)
			writers := []*IdentityWriter{
				NewIdentityWriter("s1", 0, 3, cache),
				NewIdentityWriter("s2", 1, 3, cache),
			}
			emails := []string{"e1", "e2"}
			for _, source := range order {
				ops, err := writers[source].Write(flowlenscontext.Background(), []*model.User{{Id: "U", Email: emails[source]}})
				require.NoError(t, err)
				apply(t, store, ops)
			}

			doc := getDoc[model.IdentityDocument](t, store, model.IndexIdentity, "U")
			assert.Equal(t, "e1", doc.Email)
			assert.Equal(t, "s1", doc.DataSource)
		})
	}
}

func TestIdentityWriter_CacheSkipsLowerPrioritySource(t *testing.T) {
	store := newStore(t)
	cache, err := NewIdentityCache(10)
	require.NoError(t, err)
	s1 := NewIdentityWriter("s1", 0, 3, cache)
	s2 := NewIdentityWriter("s2", 1, 3, cache)

	ops, err := s1.Write(flowlenscontext.Background(), []*model.User{{Id: "U", Email: "e1"}})
	require.NoError(t, err)
	apply(t, store, ops)

	ops, err = s2.Write(flowlenscontext.Background(), []*model.User{{Id: "U", Email: "e2"}, {Id: "V", Email: "v2"}})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "V", ops[0].Id)

	// the same source updating its own copy is applied
	ops, err = s1.Write(flowlenscontext.Background(), []*model.User{{Id: "U", Email: "e1-new"}})
	require.NoError(t, err)
	apply(t, store, ops)
	assert.Equal(t, "e1-new", getDoc[model.IdentityDocument](t, store, model.IndexIdentity, "U").Email)
}

func TestZeebeProcessWriter(t *testing.T) {
	store := newStore(t)
	records := []*model.ZeebeRecord{
		zeebeRecord(t, 1, model.ValueTypeProcess, model.IntentCreated, 10,
			model.ZeebeProcessValue{BpmnProcessId: "invoice", Version: 3, ProcessDefinitionKey: 2251799813685249}),
		zeebeRecord(t, 2, model.ValueTypeProcess, "DELETED", 10, model.ZeebeProcessValue{}),
	}

	ops, err := NewZeebeProcessWriter("zeebe").Write(flowlenscontext.Background(), records)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	apply(t, store, ops)

	doc := getDoc[model.ProcessDefinitionDocument](t, store, model.IndexProcessDefinition, "2251799813685249")
	assert.Equal(t, "invoice", doc.Key)
	assert.Equal(t, int32(3), doc.Version)
}

func TestZeebeProcessInstanceWriter_Lifecycle(t *testing.T) {
	store := newStore(t)
	w := NewZeebeProcessInstanceWriter("zeebe", 3)
	value := func(elementType string) model.ZeebeProcessInstanceValue {
		return model.ZeebeProcessInstanceValue{
			BpmnProcessId:        "invoice",
			ProcessDefinitionKey: 1,
			ProcessInstanceKey:   100,
			BpmnElementType:      elementType,
		}
	}
	records := []*model.ZeebeRecord{
		zeebeRecord(t, 1, model.ValueTypeProcessInstance, model.IntentElementActivating, 100, value(model.BpmnElementTypeProcess)),
		zeebeRecord(t, 2, model.ValueTypeProcessInstance, model.IntentElementActivating, 101, value("SERVICE_TASK")),
		zeebeRecord(t, 3, model.ValueTypeProcessInstance, model.IntentElementCompleted, 100, value(model.BpmnElementTypeProcess)),
	}

	ops, err := w.Write(flowlenscontext.Background(), records)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, []int{0, 2}, ops[0].Records)
	apply(t, store, ops)
	apply(t, store, ops)

	doc := getDoc[model.ProcessInstanceDocument](t, store, model.IndexProcessInstance, "100")
	assert.Equal(t, model.StateCompleted, doc.State)
	assert.True(t, baseTime.Add(time.Second).Equal(*doc.StartDate))
	assert.True(t, baseTime.Add(3*time.Second).Equal(*doc.EndDate))
	assert.Equal(t, "invoice", doc.ProcessDefinitionKey)
}

func TestZeebeIncidentWriter_ResolvedKeepsCreateTime(t *testing.T) {
	store := newStore(t)
	w := NewZeebeIncidentWriter("zeebe", 3)
	value := model.ZeebeIncidentValue{ErrorType: "IO_MAPPING_ERROR", ErrorMessage: "no var", ProcessInstanceKey: 100}

	ops, err := w.Write(flowlenscontext.Background(), []*model.ZeebeRecord{
		zeebeRecord(t, 1, model.ValueTypeIncident, model.IntentCreated, 55, value),
	})
	require.NoError(t, err)
	apply(t, store, ops)

	ops, err = w.Write(flowlenscontext.Background(), []*model.ZeebeRecord{
		zeebeRecord(t, 5, model.ValueTypeIncident, model.IntentResolved, 55, value),
	})
	require.NoError(t, err)
	apply(t, store, ops)

	doc := getDoc[model.ProcessInstanceDocument](t, store, model.IndexProcessInstance, "100")
	require.Len(t, doc.Incidents, 1)
	incident := doc.Incidents[0]
	assert.Equal(t, "55", incident.Id)
	assert.Equal(t, model.IncidentResolved, incident.Status)
	require.NotNil(t, incident.CreateTime)
	assert.True(t, baseTime.Add(time.Second).Equal(*incident.CreateTime))
	assert.True(t, baseTime.Add(5*time.Second).Equal(*incident.EndTime))
}

func TestZeebeVariableWriter(t *testing.T) {
	store := newStore(t)
	w := NewZeebeVariableWriter("zeebe", 3)
	variable := func(name string, value string) model.ZeebeVariableValue {
		return model.ZeebeVariableValue{Name: name, Value: value, ScopeKey: 100, ProcessInstanceKey: 100}
	}

	ops, err := w.Write(flowlenscontext.Background(), []*model.ZeebeRecord{
		zeebeRecord(t, 1, model.ValueTypeVariable, model.IntentCreated, 1, variable("amount", "10")),
		zeebeRecord(t, 2, model.ValueTypeVariable, model.IntentCreated, 2, variable("currency", `"EUR"`)),
		zeebeRecord(t, 3, model.ValueTypeVariable, model.IntentUpdated, 1, variable("amount", "12")),
	})
	require.NoError(t, err)
	apply(t, store, ops)

	doc := getDoc[model.ProcessInstanceDocument](t, store, model.IndexProcessInstance, "100")
	require.Len(t, doc.Variables, 2)
	assert.Equal(t, "12", doc.Variables[0].Value)
	assert.Equal(t, int64(3), doc.Variables[0].Version)
}

func TestZeebeWriters_PoisonRecordIsSkipped(t *testing.T) {
	good := zeebeRecord(t, 2, model.ValueTypeVariable, model.IntentCreated, 1,
		model.ZeebeVariableValue{Name: "x", Value: "1", ScopeKey: 9, ProcessInstanceKey: 9})
	poison := &model.ZeebeRecord{Position: 1, ValueType: model.ValueTypeVariable, Intent: model.IntentCreated, Value: json.RawMessage(`{`)}

	ops, err := NewZeebeVariableWriter("zeebe", 3).Write(flowlenscontext.Background(), []*model.ZeebeRecord{poison, good})
	require.Error(t, err)
	skipped := SkippedRecords(err)
	assert.Equal(t, []int{0}, keys(skipped))
	require.Len(t, ops, 1)
	assert.Equal(t, []int{1}, ops[0].Records)
	assert.Equal(t, strconv.Itoa(9), ops[0].Id)
}

func keys(m map[int]error) []int {
	var out []int
	for k := range m {
		out = append(out, k)
	}
	return out
}
