package model

import (
	"time"
)

// EngineRecord is a record fetched from an engine REST API. The fetcher stamps every record with the value of the
// timestamp field its entity type is imported by, since e.g. a process instance is ordered by start time when
// imported as running and by end time when imported as completed.
type EngineRecord interface {
	Record
	SetCursorTimestamp(t time.Time)
}

type ProcessDefinition struct {
	Id             string    `json:"id"`
	Key            string    `json:"key"`
	Version        int32     `json:"version"`
	Name           string    `json:"name"`
	TenantId       string    `json:"tenantId,omitempty"`
	DeploymentTime time.Time `json:"deploymentTime"`
	Deleted        bool      `json:"deleted,omitempty"`

	cursorTimestamp time.Time
}

func (p *ProcessDefinition) RecordId() string { return p.Id }

func (p *ProcessDefinition) Cursor() Cursor { return Cursor{Timestamp: p.cursorTimestamp} }

func (p *ProcessDefinition) SetCursorTimestamp(t time.Time) { p.cursorTimestamp = t }

type ProcessInstance struct {
	Id                       string     `json:"id"`
	ProcessDefinitionId      string     `json:"processDefinitionId"`
	ProcessDefinitionKey     string     `json:"processDefinitionKey"`
	ProcessDefinitionVersion int32      `json:"processDefinitionVersion"`
	BusinessKey              string     `json:"businessKey,omitempty"`
	StartTime                time.Time  `json:"startTime"`
	EndTime                  *time.Time `json:"endTime,omitempty"`
	State                    string     `json:"state"`
	TenantId                 string     `json:"tenantId,omitempty"`

	cursorTimestamp time.Time
}

func (p *ProcessInstance) RecordId() string { return p.Id }

func (p *ProcessInstance) Cursor() Cursor { return Cursor{Timestamp: p.cursorTimestamp} }

func (p *ProcessInstance) SetCursorTimestamp(t time.Time) { p.cursorTimestamp = t }

type Incident struct {
	Id                   string     `json:"id"`
	ProcessInstanceId    string     `json:"processInstanceId"`
	ProcessDefinitionKey string     `json:"processDefinitionKey"`
	ActivityId           string     `json:"activityId"`
	IncidentType         string     `json:"incidentType"`
	IncidentMessage      string     `json:"incidentMessage,omitempty"`
	CreateTime           time.Time  `json:"createTime"`
	EndTime              *time.Time `json:"endTime,omitempty"`
	Resolved             bool       `json:"resolved,omitempty"`
	Deleted              bool       `json:"deleted,omitempty"`

	cursorTimestamp time.Time
}

func (i *Incident) RecordId() string { return i.Id }

func (i *Incident) Cursor() Cursor { return Cursor{Timestamp: i.cursorTimestamp} }

func (i *Incident) SetCursorTimestamp(t time.Time) { i.cursorTimestamp = t }

type User struct {
	Id           string    `json:"id"`
	FirstName    string    `json:"firstName,omitempty"`
	LastName     string    `json:"lastName,omitempty"`
	Email        string    `json:"email,omitempty"`
	LastModified time.Time `json:"lastModified"`

	cursorTimestamp time.Time
}

func (u *User) RecordId() string { return u.Id }

func (u *User) Cursor() Cursor { return Cursor{Timestamp: u.cursorTimestamp} }

func (u *User) SetCursorTimestamp(t time.Time) { u.cursorTimestamp = t }
