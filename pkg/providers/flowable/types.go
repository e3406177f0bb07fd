package flowable

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/procflow/procflow/pkg/engine"
)

// page is the envelope of Flowable list responses.
type page[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
	Start int `json:"start"`
	Size  int `json:"size"`
}

type definitionResponse struct {
	ID           string `json:"id"`
	Key          string `json:"key"`
	Name         string `json:"name"`
	Version      int    `json:"version"`
	DeploymentID string `json:"deploymentId"`
}

type deploymentResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	DeploymentTime Timestamp `json:"deploymentTime"`
}

type resourceResponse struct {
	ID        string `json:"id"`
	MediaType string `json:"mediaType"`
	Type      string `json:"type"`
}

type instanceResponse struct {
	ID                  string    `json:"id"`
	ProcessDefinitionID string    `json:"processDefinitionId"`
	BusinessKey         string    `json:"businessKey"`
	Ended               bool      `json:"ended"`
	Completed           bool      `json:"completed"`
	StartTime           Timestamp `json:"startTime"`
}

type taskResponse struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Assignee            string     `json:"assignee"`
	ProcessInstanceID   string     `json:"processInstanceId"`
	ProcessDefinitionID string     `json:"processDefinitionId"`
	CreateTime          Timestamp  `json:"createTime"`
	DueDate             *Timestamp `json:"dueDate"`
	Priority            int        `json:"priority"`
}

type historicInstanceResponse struct {
	ID                  string     `json:"id"`
	ProcessDefinitionID string     `json:"processDefinitionId"`
	BusinessKey         string     `json:"businessKey"`
	StartTime           Timestamp  `json:"startTime"`
	EndTime             *Timestamp `json:"endTime"`
	DurationInMillis    int64      `json:"durationInMillis"`
	DeleteReason        string     `json:"deleteReason"`
}

type historicVariableResponse struct {
	Variable restVariable `json:"variable"`
}

// restVariable is the Flowable REST representation of a variable.
type restVariable struct {
	Name  string      `json:"name"`
	Type  string      `json:"type,omitempty"`
	Value interface{} `json:"value"`
	Scope string      `json:"scope,omitempty"`
}

type startRequest struct {
	ProcessDefinitionKey string         `json:"processDefinitionKey"`
	BusinessKey          string         `json:"businessKey,omitempty"`
	Variables            []restVariable `json:"variables"`
}

type taskActionRequest struct {
	Action    string         `json:"action"`
	Variables []restVariable `json:"variables"`
}

// toRestVariables converts variables into the list form Flowable expects,
// ordered by name.
func toRestVariables(vars engine.ProcessVariables) []restVariable {
	out := make([]restVariable, 0, len(vars))
	for _, name := range vars.Names() {
		out = append(out, restVariable{Name: name, Value: vars[name]})
	}
	return out
}

func fromRestVariables(vars []restVariable) engine.ProcessVariables {
	out := make(engine.ProcessVariables, len(vars))
	for _, v := range vars {
		out[v.Name] = v.Value
	}
	return out
}

// Flowable serialises dates with a numeric zone offset and no colon.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	time.RFC3339Nano,
}

// Timestamp decodes the date formats produced by the Flowable REST API.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}

func timePtr(t *Timestamp) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

func (d definitionResponse) toDefinition() engine.ProcessDefinition {
	return engine.ProcessDefinition{
		ID:           d.ID,
		Key:          d.Key,
		Name:         d.Name,
		Version:      d.Version,
		DeploymentID: d.DeploymentID,
	}
}

func (d deploymentResponse) toInfo() engine.DeploymentInfo {
	return engine.DeploymentInfo{ID: d.ID, Name: d.Name, DeploymentTime: d.DeploymentTime.Time}
}

func (i instanceResponse) toInstance() engine.ProcessInstance {
	status := engine.ProcessStatusActive
	if i.Ended || i.Completed {
		status = engine.ProcessStatusCompleted
	}
	return engine.ProcessInstance{
		ID:           i.ID,
		DefinitionID: i.ProcessDefinitionID,
		BusinessKey:  i.BusinessKey,
		Status:       status,
		StartTime:    i.StartTime.Time,
	}
}

func (t taskResponse) toTask() engine.TaskInfo {
	return engine.TaskInfo{
		ID:                  t.ID,
		Name:                t.Name,
		Assignee:            t.Assignee,
		ProcessInstanceID:   t.ProcessInstanceID,
		ProcessDefinitionID: t.ProcessDefinitionID,
		CreateTime:          t.CreateTime.Time,
		DueDate:             timePtr(t.DueDate),
		Priority:            t.Priority,
	}
}

// outcome classifies a finished historic instance. Flowable records a
// delete reason only for instances removed before reaching an end event.
func (h historicInstanceResponse) outcome() engine.ProcessOutcome {
	if h.DeleteReason != "" {
		return engine.OutcomeTerminated
	}
	return engine.OutcomeCompleted
}

func (h historicInstanceResponse) finished() bool {
	return h.EndTime != nil && !h.EndTime.IsZero()
}

func (h historicInstanceResponse) toHistoric() engine.HistoricProcessInstance {
	hist := engine.HistoricProcessInstance{
		ID:           h.ID,
		DefinitionID: h.ProcessDefinitionID,
		BusinessKey:  h.BusinessKey,
		StartTime:    h.StartTime.Time,
		Duration:     time.Duration(h.DurationInMillis) * time.Millisecond,
		Outcome:      h.outcome(),
		Reason:       h.DeleteReason,
	}
	if h.EndTime != nil {
		hist.EndTime = h.EndTime.Time
	}
	return hist
}
