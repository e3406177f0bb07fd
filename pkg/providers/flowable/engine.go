// Package flowable is a process engine backend that drives a Flowable
// server through its REST API.
package flowable

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/procflow/procflow/pkg/engine"
	"github.com/procflow/procflow/pkg/faults"
)

// Type is the engine-type tag of this backend.
const Type = "FLOWABLE"

// Engine is the Flowable REST backend.
type Engine struct {
	api *client
}

var _ engine.Engine = (*Engine)(nil)

// Config configures the backend. It is read from the engine.flowable
// section.
type Config struct {
	BaseURL  string `yaml:"base_url" env:"BASE_URL" validate:"required,url"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
}

// Factory constructs the backend from its configuration section.
func Factory(_ context.Context, cfg engine.BackendConfig) (engine.Engine, error) {
	var c Config
	if err := cfg.Decode(&c); err != nil {
		return nil, err
	}
	return New(c, nil)
}

// New creates a backend. A nil hc uses a client with a 60s timeout.
func New(cfg Config, hc *http.Client) (*Engine, error) {
	api, err := newClient(cfg.BaseURL, cfg.Username, cfg.Password, hc)
	if err != nil {
		return nil, err
	}
	return &Engine{api: api}, nil
}

// Type implements engine.Engine.
func (e *Engine) Type() string { return Type }

// Close implements engine.Engine.
func (e *Engine) Close() error {
	e.api.http.CloseIdleConnections()
	return nil
}

// ListProcessDefinitions implements engine.Engine.
func (e *Engine) ListProcessDefinitions(ctx context.Context) ([]engine.ProcessDefinition, error) {
	var resp page[definitionResponse]
	q := url.Values{"size": {listSize}, "sort": {"key"}}
	if err := e.api.doJSON(ctx, http.MethodGet, "repository/process-definitions", q, nil, &resp); err != nil {
		return nil, mapErr(err, faults.CodeDefinitionNotFound, "list process definitions", "")
	}
	out := make([]engine.ProcessDefinition, 0, len(resp.Data))
	for _, d := range resp.Data {
		out = append(out, d.toDefinition())
	}
	return out, nil
}

// Deploy implements engine.Engine. A 400 answer means the engine rejected
// the artifact and is reported as a failed result.
func (e *Engine) Deploy(ctx context.Context, name string, content []byte) (*engine.DeploymentResult, error) {
	var resp deploymentResponse
	err := e.api.upload(ctx, "repository/deployments", name, content, &resp)
	var he *httpError
	if errors.As(err, &he) && he.Status == http.StatusBadRequest {
		msg := he.Body
		if msg == "" {
			msg = "deployment rejected by engine"
		}
		return engine.NewDeploymentFailure(name, msg), nil
	}
	if err != nil {
		return nil, mapErr(err, faults.CodeEngineInternal, "deploy", name)
	}
	if resp.Name == "" {
		resp.Name = name
	}
	return engine.NewDeploymentSuccess(resp.toInfo()), nil
}

// DeleteDeployment implements engine.Engine.
func (e *Engine) DeleteDeployment(ctx context.Context, deploymentID string, cascade bool) error {
	q := url.Values{"cascade": {strconv.FormatBool(cascade)}}
	err := e.api.doJSON(ctx, http.MethodDelete, "repository/deployments/"+url.PathEscape(deploymentID), q, nil, nil)
	if err != nil {
		return mapErr(err, faults.CodeDeploymentNotFound, "delete deployment", deploymentID)
	}
	return nil
}

// ListDeployments implements engine.Engine.
func (e *Engine) ListDeployments(ctx context.Context) ([]engine.DeploymentInfo, error) {
	var resp page[deploymentResponse]
	q := url.Values{"size": {listSize}}
	if err := e.api.doJSON(ctx, http.MethodGet, "repository/deployments", q, nil, &resp); err != nil {
		return nil, mapErr(err, faults.CodeDeploymentNotFound, "list deployments", "")
	}
	out := make([]engine.DeploymentInfo, 0, len(resp.Data))
	for _, d := range resp.Data {
		out = append(out, d.toInfo())
	}
	return out, nil
}

// ListDeploymentResources implements engine.Engine.
func (e *Engine) ListDeploymentResources(ctx context.Context, deploymentID string) ([]string, error) {
	var resp []resourceResponse
	path := "repository/deployments/" + url.PathEscape(deploymentID) + "/resources"
	if err := e.api.doJSON(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, mapErr(err, faults.CodeDeploymentNotFound, "list deployment resources", deploymentID)
	}
	out := make([]string, 0, len(resp))
	for _, r := range resp {
		out = append(out, r.ID)
	}
	return out, nil
}

// GetDeploymentResource implements engine.Engine.
func (e *Engine) GetDeploymentResource(ctx context.Context, deploymentID, resourceName string) ([]byte, error) {
	path := "repository/deployments/" + url.PathEscape(deploymentID) + "/resourcedata/" + url.PathEscape(resourceName)
	data, err := e.api.doRaw(ctx, path)
	if err != nil {
		return nil, mapErr(err, faults.CodeDeploymentNotFound, "get deployment resource", deploymentID+"/"+resourceName)
	}
	return data, nil
}

// StartProcess implements engine.Engine.
func (e *Engine) StartProcess(ctx context.Context, processKey, businessKey string, vars engine.ProcessVariables) (*engine.ProcessInstance, error) {
	if err := vars.Validate(); err != nil {
		return nil, faults.Validation(err.Error())
	}
	body := startRequest{
		ProcessDefinitionKey: processKey,
		BusinessKey:          businessKey,
		Variables:            toRestVariables(vars),
	}
	var resp instanceResponse
	if err := e.api.doJSON(ctx, http.MethodPost, "runtime/process-instances", nil, body, &resp); err != nil {
		return nil, mapErr(err, faults.CodeDefinitionNotFound, "start process", processKey)
	}
	inst := resp.toInstance()
	return &inst, nil
}

// ListProcessInstances implements engine.Engine.
func (e *Engine) ListProcessInstances(ctx context.Context, processKey string) ([]engine.ProcessInstance, error) {
	q := url.Values{"size": {listSize}}
	if processKey != "" {
		q.Set("processDefinitionKey", processKey)
	}
	var resp page[instanceResponse]
	if err := e.api.doJSON(ctx, http.MethodGet, "runtime/process-instances", q, nil, &resp); err != nil {
		return nil, mapErr(err, faults.CodeDefinitionNotFound, "list process instances", processKey)
	}
	out := make([]engine.ProcessInstance, 0, len(resp.Data))
	for _, i := range resp.Data {
		out = append(out, i.toInstance())
	}
	return out, nil
}

// GetProcessVariables implements engine.Engine.
func (e *Engine) GetProcessVariables(ctx context.Context, processInstanceID string) (engine.ProcessVariables, error) {
	var resp []restVariable
	path := "runtime/process-instances/" + url.PathEscape(processInstanceID) + "/variables"
	if err := e.api.doJSON(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, processErr(err, "get process variables", processInstanceID)
	}
	return fromRestVariables(resp), nil
}

// CompleteTask implements engine.Engine.
func (e *Engine) CompleteTask(ctx context.Context, taskID string, vars engine.ProcessVariables) error {
	if err := vars.Validate(); err != nil {
		return faults.Validation(err.Error())
	}
	body := taskActionRequest{Action: "complete", Variables: toRestVariables(vars)}
	if err := e.api.doJSON(ctx, http.MethodPost, "runtime/tasks/"+url.PathEscape(taskID), nil, body, nil); err != nil {
		return taskErr(err, "complete task", taskID)
	}
	return nil
}

// ListTasks implements engine.Engine.
func (e *Engine) ListTasks(ctx context.Context, processInstanceID string) ([]engine.TaskInfo, error) {
	q := url.Values{"size": {listSize}}
	if processInstanceID != "" {
		q.Set("processInstanceId", processInstanceID)
	}
	var resp page[taskResponse]
	if err := e.api.doJSON(ctx, http.MethodGet, "runtime/tasks", q, nil, &resp); err != nil {
		return nil, processErr(err, "list tasks", processInstanceID)
	}
	out := make([]engine.TaskInfo, 0, len(resp.Data))
	for _, t := range resp.Data {
		out = append(out, t.toTask())
	}
	return out, nil
}

// GetTaskVariables implements engine.Engine.
func (e *Engine) GetTaskVariables(ctx context.Context, taskID string) (engine.ProcessVariables, error) {
	var resp []restVariable
	path := "runtime/tasks/" + url.PathEscape(taskID) + "/variables"
	if err := e.api.doJSON(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, taskErr(err, "get task variables", taskID)
	}
	return fromRestVariables(resp), nil
}

// ListHistoricInstances implements engine.Engine.
func (e *Engine) ListHistoricInstances(ctx context.Context, processKey string) ([]engine.HistoricProcessInstance, error) {
	q := url.Values{"size": {listSize}, "finished": {"true"}}
	if processKey != "" {
		q.Set("processDefinitionKey", processKey)
	}
	var resp page[historicInstanceResponse]
	if err := e.api.doJSON(ctx, http.MethodGet, "history/historic-process-instances", q, nil, &resp); err != nil {
		return nil, mapErr(err, faults.CodeDefinitionNotFound, "list historic instances", processKey)
	}
	out := make([]engine.HistoricProcessInstance, 0, len(resp.Data))
	for _, h := range resp.Data {
		out = append(out, h.toHistoric())
	}
	return out, nil
}

// GetProcessHistory implements engine.Engine.
func (e *Engine) GetProcessHistory(ctx context.Context, processInstanceID string) (*engine.ProcessHistory, error) {
	h, err := e.historicInstance(ctx, processInstanceID)
	if err != nil {
		return nil, err
	}
	if !h.finished() {
		return nil, faults.Engine(faults.CodeInvalidProcessState,
			fmt.Sprintf("process instance %s has not finished", processInstanceID), nil).
			WithProcess(processInstanceID)
	}

	var resp page[historicVariableResponse]
	q := url.Values{"processInstanceId": {processInstanceID}, "size": {listSize}}
	if err := e.api.doJSON(ctx, http.MethodGet, "history/historic-variable-instances", q, nil, &resp); err != nil {
		return nil, processErr(err, "get historic variables", processInstanceID)
	}
	vars := make(engine.ProcessVariables, len(resp.Data))
	for _, v := range resp.Data {
		vars[v.Variable.Name] = v.Variable.Value
	}

	return &engine.ProcessHistory{Instance: h.toHistoric(), Variables: vars}, nil
}

func (e *Engine) historicInstance(ctx context.Context, processInstanceID string) (*historicInstanceResponse, error) {
	var resp historicInstanceResponse
	path := "history/historic-process-instances/" + url.PathEscape(processInstanceID)
	if err := e.api.doJSON(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, processErr(err, "get historic instance", processInstanceID)
	}
	return &resp, nil
}

// GetProcessStatus implements engine.Engine. Running instances are found
// in the runtime API; finished ones only in history.
func (e *Engine) GetProcessStatus(ctx context.Context, processInstanceID string) (engine.ProcessStatus, error) {
	var resp instanceResponse
	path := "runtime/process-instances/" + url.PathEscape(processInstanceID)
	err := e.api.doJSON(ctx, http.MethodGet, path, nil, nil, &resp)
	if err == nil {
		return engine.ProcessStatusActive, nil
	}
	var he *httpError
	if !errors.As(err, &he) || he.Status != http.StatusNotFound {
		return "", processErr(err, "get process status", processInstanceID)
	}

	h, err := e.historicInstance(ctx, processInstanceID)
	if err != nil {
		return "", err
	}
	if !h.finished() {
		return engine.ProcessStatusActive, nil
	}
	return h.outcome().Status(), nil
}

// GetCompletionStatus implements engine.Engine.
func (e *Engine) GetCompletionStatus(ctx context.Context, processInstanceID string) (*engine.CompletionStatus, error) {
	status, err := e.GetProcessStatus(ctx, processInstanceID)
	if err != nil {
		return nil, err
	}
	cs := &engine.CompletionStatus{ProcessInstanceID: processInstanceID}
	if status.IsTerminal() {
		cs.Completed = true
		cs.Outcome = engine.OutcomeCompleted
		if status == engine.ProcessStatusTerminated {
			cs.Outcome = engine.OutcomeTerminated
		}
	}
	return cs, nil
}

// TerminateProcess implements engine.Engine.
func (e *Engine) TerminateProcess(ctx context.Context, processInstanceID, reason string) error {
	if reason == "" {
		reason = "terminated"
	}
	q := url.Values{"deleteReason": {reason}}
	path := "runtime/process-instances/" + url.PathEscape(processInstanceID)
	if err := e.api.doJSON(ctx, http.MethodDelete, path, q, nil, nil); err != nil {
		var he *httpError
		if errors.As(err, &he) && he.Status == http.StatusNotFound {
			// A finished instance is gone from runtime but still in history.
			if h, herr := e.historicInstance(ctx, processInstanceID); herr == nil && h.finished() {
				return faults.Engine(faults.CodeInvalidProcessState,
					fmt.Sprintf("process instance %s is already %s", processInstanceID, h.outcome().Status()), nil).
					WithProcess(processInstanceID)
			}
		}
		return processErr(err, "terminate process", processInstanceID)
	}
	return nil
}

func processErr(err error, action, processID string) error {
	f := mapErr(err, faults.CodeProcessNotFound, action, processID)
	var fault *faults.Fault
	if errors.As(f, &fault) && fault.ProcessID == "" {
		fault.WithProcess(processID)
	}
	return f
}

func taskErr(err error, action, taskID string) error {
	f := mapErr(err, faults.CodeTaskNotFound, action, taskID)
	var fault *faults.Fault
	if errors.As(f, &fault) {
		if fault.Code == faults.CodeInvalidProcessState {
			fault.Code = faults.CodeInvalidTaskState
		}
		if fault.TaskID == "" {
			fault.WithTask(taskID)
		}
	}
	return f
}

// mapErr translates transport failures into engine faults: 404 becomes
// notFound, 409 an invalid state and anything else an internal error.
func mapErr(err error, notFound faults.EngineCode, action, resourceID string) error {
	var fault *faults.Fault
	if errors.As(err, &fault) {
		return err
	}

	var he *httpError
	if errors.As(err, &he) {
		switch he.Status {
		case http.StatusNotFound:
			return faults.Engine(notFound, fmt.Sprintf("failed to %s: %s not found", action, resourceID), err).
				WithResource(resourceID)
		case http.StatusConflict:
			return faults.Engine(faults.CodeInvalidProcessState, fmt.Sprintf("failed to %s: %s", action, he.Body), err).
				WithResource(resourceID)
		}
	}

	return faults.Engine(faults.CodeEngineInternal, "failed to "+action, err).WithResource(resourceID)
}
