package engine

import (
	"net/url"
	"strconv"
	"time"

	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
	"github.com/flowlens/flowlens/internal/importer/index"
	"github.com/flowlens/flowlens/internal/importer/model"
)

// Endpoint describes how records of one entity type are read from the engine: which resource, which "after"
// parameter and sort field the timestamp cursor maps to, and any fixed filters.
type Endpoint[R model.EngineRecord] struct {
	EntityType string
	Path       string
	AfterParam string
	SortBy     string
	Filter     url.Values
	// CursorOf returns the timestamp the entity type is imported by.
	CursorOf func(R) time.Time
}

// Fetcher reads pages of one entity type from one engine.
type Fetcher[R model.EngineRecord] struct {
	client   *Client
	endpoint Endpoint[R]
}

func NewFetcher[R model.EngineRecord](client *Client, endpoint Endpoint[R]) *Fetcher[R] {
	return &Fetcher[R]{client: client, endpoint: endpoint}
}

func (f *Fetcher[R]) EntityType() string {
	return f.endpoint.EntityType
}

// Fetch returns records whose cursor timestamp is at or after page.TimestampFrom. The engine's "after" filters are
// exclusive, so the boundary is requested one millisecond early.
func (f *Fetcher[R]) Fetch(ctx *flowlenscontext.Context, page index.Page) ([]R, error) {
	var records []R
	if err := f.client.getJson(ctx, f.endpoint.Path, f.query(page), &records); err != nil {
		return nil, err
	}
	for _, r := range records {
		r.SetCursorTimestamp(f.endpoint.CursorOf(r))
	}
	return records, nil
}

func (f *Fetcher[R]) query(page index.Page) url.Values {
	query := url.Values{}
	for k, v := range f.endpoint.Filter {
		query[k] = v
	}
	if page.TimestampFrom.After(model.BeginningOfTime) {
		query.Set(f.endpoint.AfterParam, page.TimestampFrom.Add(-time.Millisecond).Format(DateFormat))
	}
	query.Set("sortBy", f.endpoint.SortBy)
	query.Set("sortOrder", "asc")
	query.Set("maxResults", strconv.Itoa(page.Limit))
	return query
}

func ProcessDefinitions() Endpoint[*model.ProcessDefinition] {
	return Endpoint[*model.ProcessDefinition]{
		EntityType: model.EntityProcessDefinition,
		Path:       "/process-definition",
		AfterParam: "deployedAfter",
		SortBy:     "deploymentTime",
		CursorOf:   func(d *model.ProcessDefinition) time.Time { return d.DeploymentTime },
	}
}

func RunningProcessInstances() Endpoint[*model.ProcessInstance] {
	return Endpoint[*model.ProcessInstance]{
		EntityType: model.EntityRunningProcessInstance,
		Path:       "/history/process-instance",
		AfterParam: "startedAfter",
		SortBy:     "startTime",
		Filter:     url.Values{"unfinished": {"true"}},
		CursorOf:   func(p *model.ProcessInstance) time.Time { return p.StartTime },
	}
}

func CompletedProcessInstances() Endpoint[*model.ProcessInstance] {
	return Endpoint[*model.ProcessInstance]{
		EntityType: model.EntityCompletedProcessInstance,
		Path:       "/history/process-instance",
		AfterParam: "finishedAfter",
		SortBy:     "endTime",
		Filter:     url.Values{"finished": {"true"}},
		CursorOf:   func(p *model.ProcessInstance) time.Time { return endTimeOr(p.EndTime, p.StartTime) },
	}
}

func OpenIncidents() Endpoint[*model.Incident] {
	return Endpoint[*model.Incident]{
		EntityType: model.EntityOpenIncident,
		Path:       "/history/incident",
		AfterParam: "createTimeAfter",
		SortBy:     "createTime",
		Filter:     url.Values{"open": {"true"}},
		CursorOf:   func(i *model.Incident) time.Time { return i.CreateTime },
	}
}

func ResolvedIncidents() Endpoint[*model.Incident] {
	return Endpoint[*model.Incident]{
		EntityType: model.EntityResolvedIncident,
		Path:       "/history/incident",
		AfterParam: "endTimeAfter",
		SortBy:     "endTime",
		Filter:     url.Values{"resolved": {"true"}},
		CursorOf:   func(i *model.Incident) time.Time { return endTimeOr(i.EndTime, i.CreateTime) },
	}
}

func Users() Endpoint[*model.User] {
	return Endpoint[*model.User]{
		EntityType: model.EntityUser,
		Path:       "/user",
		AfterParam: "modifiedAfter",
		SortBy:     "lastModified",
		CursorOf:   func(u *model.User) time.Time { return u.LastModified },
	}
}

func endTimeOr(end *time.Time, fallback time.Time) time.Time {
	if end != nil {
		return *end
	}
	return fallback
}
