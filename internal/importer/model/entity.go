package model

// Engine entity types, all imported with timestamp cursors.
const (
	EntityProcessDefinition        = "process-definition"
	EntityRunningProcessInstance   = "running-process-instance"
	EntityCompletedProcessInstance = "completed-process-instance"
	EntityOpenIncident             = "open-incident"
	EntityResolvedIncident         = "resolved-incident"
	EntityUser                     = "user"
)

// Zeebe entity types, all imported with position cursors, one per partition.
const (
	EntityZeebeProcess         = "zeebe-process"
	EntityZeebeProcessInstance = "zeebe-process-instance"
	EntityZeebeIncident        = "zeebe-incident"
	EntityZeebeVariable        = "zeebe-variable"
)

// Destination index names.
const (
	IndexProcessDefinition = "process-definition"
	IndexProcessInstance   = "process-instance"
	IndexIdentity          = "identity"
)

var EngineEntityTypes = []string{
	EntityProcessDefinition,
	EntityRunningProcessInstance,
	EntityCompletedProcessInstance,
	EntityOpenIncident,
	EntityResolvedIncident,
	EntityUser,
}

var ZeebeEntityTypes = []string{
	EntityZeebeProcess,
	EntityZeebeProcessInstance,
	EntityZeebeIncident,
	EntityZeebeVariable,
}

// RankOf returns the scheduling rank of an entity type.
func RankOf(entityType string) MediatorRank {
	switch entityType {
	case EntityProcessDefinition, EntityZeebeProcess:
		return RankDefinition
	case EntityRunningProcessInstance, EntityCompletedProcessInstance, EntityZeebeProcessInstance:
		return RankInstance
	case EntityUser:
		return RankIdentity
	}
	return RankInstanceDetail
}
