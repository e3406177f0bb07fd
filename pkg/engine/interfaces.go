package engine

import (
	"context"
)

// Engine is the capability set every process-execution backend implements.
//
// Collection results are never nil; an empty slice or map is returned when
// there is nothing to report. Failures are *faults.Fault values of kind
// engine (or validation for malformed arguments).
type Engine interface {
	// Type returns the engine-type tag the backend was registered under.
	Type() string

	// ListProcessDefinitions lists every deployed definition version.
	ListProcessDefinitions(ctx context.Context) ([]ProcessDefinition, error)

	// Deploy uploads a process artifact. A rejected artifact is reported
	// through DeploymentResult.Success rather than an error.
	Deploy(ctx context.Context, name string, content []byte) (*DeploymentResult, error)

	// DeleteDeployment removes a deployment. With cascade the instances and
	// history of its definitions go too.
	DeleteDeployment(ctx context.Context, deploymentID string, cascade bool) error

	// ListDeployments lists every deployment.
	ListDeployments(ctx context.Context) ([]DeploymentInfo, error)

	// ListDeploymentResources lists the resource names inside a deployment.
	ListDeploymentResources(ctx context.Context, deploymentID string) ([]string, error)

	// GetDeploymentResource returns the raw bytes of one deployment resource.
	GetDeploymentResource(ctx context.Context, deploymentID, resourceName string) ([]byte, error)

	// StartProcess starts the latest version of the definition with the key.
	StartProcess(ctx context.Context, processKey, businessKey string, vars ProcessVariables) (*ProcessInstance, error)

	// ListProcessInstances lists active instances, optionally filtered by
	// definition key.
	ListProcessInstances(ctx context.Context, processKey string) ([]ProcessInstance, error)

	// GetProcessVariables returns the variables of an active instance.
	GetProcessVariables(ctx context.Context, processInstanceID string) (ProcessVariables, error)

	// CompleteTask completes a pending task, merging vars into its instance.
	CompleteTask(ctx context.Context, taskID string, vars ProcessVariables) error

	// ListTasks lists pending tasks, optionally filtered by instance.
	ListTasks(ctx context.Context, processInstanceID string) ([]TaskInfo, error)

	// GetTaskVariables returns the variables visible to a pending task.
	GetTaskVariables(ctx context.Context, taskID string) (ProcessVariables, error)

	// ListHistoricInstances lists finished instances, optionally filtered by
	// definition key.
	ListHistoricInstances(ctx context.Context, processKey string) ([]HistoricProcessInstance, error)

	// GetProcessHistory returns the historic record of a finished instance.
	GetProcessHistory(ctx context.Context, processInstanceID string) (*ProcessHistory, error)

	// GetProcessStatus returns the current status of an instance.
	GetProcessStatus(ctx context.Context, processInstanceID string) (ProcessStatus, error)

	// GetCompletionStatus reports whether an instance has finished.
	GetCompletionStatus(ctx context.Context, processInstanceID string) (*CompletionStatus, error)

	// TerminateProcess stops an active instance.
	TerminateProcess(ctx context.Context, processInstanceID, reason string) error

	// Close releases resources held by the backend.
	Close() error
}
