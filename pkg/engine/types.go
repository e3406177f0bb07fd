package engine

import (
	"errors"
	"sort"
	"time"
)

// ProcessDefinition is a named, versioned process template owned by a
// deployment. It is immutable once read from the engine.
type ProcessDefinition struct {
	// ID is the engine-assigned identifier of this definition version.
	ID string `json:"id"`

	// Key is the stable process key shared by all versions.
	Key string `json:"key"`

	// Name is the human-readable process name.
	Name string `json:"name"`

	// Version increases each time a definition with the same key is deployed.
	Version int `json:"version"`

	// DeploymentID is the deployment that owns this definition.
	DeploymentID string `json:"deployment_id"`
}

// ProcessInstance is one execution of a process definition.
type ProcessInstance struct {
	ID           string        `json:"id"`
	DefinitionID string        `json:"definition_id"`
	BusinessKey  string        `json:"business_key,omitempty"`
	Status       ProcessStatus `json:"status"`
	StartTime    time.Time     `json:"start_time"`
}

// TaskInfo is a unit of pending work within a process instance.
type TaskInfo struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Assignee            string     `json:"assignee,omitempty"`
	ProcessInstanceID   string     `json:"process_instance_id"`
	ProcessDefinitionID string     `json:"process_definition_id"`
	CreateTime          time.Time  `json:"create_time"`
	DueDate             *time.Time `json:"due_date,omitempty"`
	Priority            int        `json:"priority"`
}

// ErrEmptyVariableName is returned when a variable mapping contains the
// empty name.
var ErrEmptyVariableName = errors.New("process variable name must not be empty")

// ProcessVariables maps variable names to arbitrary values.
type ProcessVariables map[string]interface{}

// Validate checks that no variable has an empty name.
func (v ProcessVariables) Validate() error {
	if _, ok := v[""]; ok {
		return ErrEmptyVariableName
	}
	return nil
}

// Clone returns a shallow copy. The clone of a nil mapping is empty, not nil.
func (v ProcessVariables) Clone() ProcessVariables {
	out := make(ProcessVariables, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Merge returns a copy of v overlaid with other.
func (v ProcessVariables) Merge(other ProcessVariables) ProcessVariables {
	out := v.Clone()
	for k, val := range other {
		out[k] = val
	}
	return out
}

// Names returns the variable names in sorted order.
func (v ProcessVariables) Names() []string {
	names := make([]string, 0, len(v))
	for k := range v {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// DeploymentInfo describes one uploaded deployment.
type DeploymentInfo struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	DeploymentTime time.Time `json:"deployment_time"`
}

// DeploymentResult is the outcome of a deployment upload.
type DeploymentResult struct {
	DeploymentInfo

	// Success reports whether the engine accepted the deployment.
	Success bool `json:"success"`

	// Errors lists human-readable failures in the order they were found.
	// It is never empty when Success is false.
	Errors []string `json:"errors,omitempty"`
}

// NewDeploymentSuccess creates a successful deployment result.
func NewDeploymentSuccess(info DeploymentInfo) *DeploymentResult {
	return &DeploymentResult{DeploymentInfo: info, Success: true, Errors: []string{}}
}

// NewDeploymentFailure creates a failed deployment result. A failure always
// carries at least one error.
func NewDeploymentFailure(name string, errs ...string) *DeploymentResult {
	if len(errs) == 0 {
		errs = []string{"deployment rejected by engine"}
	}
	return &DeploymentResult{
		DeploymentInfo: DeploymentInfo{Name: name, DeploymentTime: time.Now().UTC()},
		Success:        false,
		Errors:         errs,
	}
}

// HistoricProcessInstance is the write-once record of a finished instance.
type HistoricProcessInstance struct {
	ID           string         `json:"id"`
	DefinitionID string         `json:"definition_id"`
	BusinessKey  string         `json:"business_key,omitempty"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      time.Time      `json:"end_time"`
	Duration     time.Duration  `json:"duration"`
	Outcome      ProcessOutcome `json:"outcome"`
	Reason       string         `json:"reason,omitempty"`
}

// ProcessHistory is the historic record of an instance together with the
// variables it finished with.
type ProcessHistory struct {
	Instance  HistoricProcessInstance `json:"instance"`
	Variables ProcessVariables        `json:"variables"`
}

// CompletionStatus reports whether an instance has finished and how.
type CompletionStatus struct {
	ProcessInstanceID string         `json:"process_instance_id"`
	Completed         bool           `json:"completed"`
	Outcome           ProcessOutcome `json:"outcome,omitempty"`
}
