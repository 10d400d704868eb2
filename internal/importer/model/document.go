package model

import (
	"time"
)

// Process instance states as stored in the destination index.
const (
	StateActive    = "ACTIVE"
	StateCompleted = "COMPLETED"
	StateCanceled  = "CANCELED"
)

// Incident statuses as stored in the destination index.
const (
	IncidentOpen     = "open"
	IncidentResolved = "resolved"
	IncidentDeleted  = "deleted"
)

type ProcessDefinitionDocument struct {
	Id             string    `json:"id"`
	Key            string    `json:"key"`
	Version        int32     `json:"version"`
	Name           string    `json:"name,omitempty"`
	TenantId       string    `json:"tenantId,omitempty"`
	DataSource     string    `json:"dataSource"`
	DeploymentTime time.Time `json:"deploymentTime"`
	Deleted        bool      `json:"deleted"`
}

type ProcessInstanceDocument struct {
	ProcessInstanceId        string             `json:"processInstanceId"`
	ProcessDefinitionKey     string             `json:"processDefinitionKey,omitempty"`
	ProcessDefinitionId      string             `json:"processDefinitionId,omitempty"`
	ProcessDefinitionVersion int32              `json:"processDefinitionVersion,omitempty"`
	BusinessKey              string             `json:"businessKey,omitempty"`
	StartDate                *time.Time         `json:"startDate,omitempty"`
	EndDate                  *time.Time         `json:"endDate,omitempty"`
	State                    string             `json:"state,omitempty"`
	TenantId                 string             `json:"tenantId,omitempty"`
	DataSource               string             `json:"dataSource"`
	Incidents                []IncidentDocument `json:"incidents"`
	Variables                []VariableDocument `json:"variables"`
}

type IncidentDocument struct {
	Id           string     `json:"id"`
	ActivityId   string     `json:"activityId,omitempty"`
	IncidentType string     `json:"incidentType,omitempty"`
	Message      string     `json:"message,omitempty"`
	CreateTime   *time.Time `json:"createTime,omitempty"`
	EndTime      *time.Time `json:"endTime,omitempty"`
	Status       string     `json:"status"`
}

type VariableDocument struct {
	Id      string `json:"id"`
	Name    string `json:"name"`
	Value   string `json:"value"`
	Version int64  `json:"version"`
}

// IdentityDocument is a user as imported from one of possibly several engines. SourcePriority is the position of
// the engine in configuration; lower values take precedence.
type IdentityDocument struct {
	Id             string `json:"id"`
	FirstName      string `json:"firstName,omitempty"`
	LastName       string `json:"lastName,omitempty"`
	Email          string `json:"email,omitempty"`
	DataSource     string `json:"dataSource"`
	SourcePriority int    `json:"sourcePriority"`
}
