// Package embedded is an in-process process engine persisted in SQLite. It
// runs BPMN processes as a linear sequence of user tasks.
package embedded

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/procflow/procflow/pkg/engine"
	"github.com/procflow/procflow/pkg/faults"
	"github.com/procflow/procflow/pkg/stores"
)

// Type is the engine-type tag of this backend.
const Type = "EMBEDDED"

// DefaultPath is used when no database path is configured.
const DefaultPath = ":memory:"

// Engine is the embedded backend.
type Engine struct {
	store *stores.SQLiteStore
	now   func() time.Time
	newID func() string
}

var _ engine.Engine = (*Engine)(nil)

// Config configures the backend. It is read from the engine.embedded
// section.
type Config struct {
	// Path is the SQLite database path. Empty or ":memory:" keeps state in
	// process.
	Path string `yaml:"path" env:"PATH"`
}

// Factory constructs the backend from its configuration section.
func Factory(ctx context.Context, cfg engine.BackendConfig) (engine.Engine, error) {
	var c Config
	if err := cfg.Decode(&c); err != nil {
		return nil, err
	}
	return New(ctx, c)
}

// New opens (and migrates) the backing store.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	path := cfg.Path
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	store, err := stores.Open(ctx, stores.Config{Path: path})
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded engine store: %w", err)
	}
	return &Engine{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.New().String() },
	}, nil
}

// Type implements engine.Engine.
func (e *Engine) Type() string { return Type }

// Close implements engine.Engine.
func (e *Engine) Close() error {
	return e.store.Close()
}

// ListProcessDefinitions implements engine.Engine.
func (e *Engine) ListProcessDefinitions(ctx context.Context) ([]engine.ProcessDefinition, error) {
	defs, err := e.store.ListDefinitions(ctx)
	if err != nil {
		return nil, internal("list process definitions", err)
	}
	out := make([]engine.ProcessDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, toDefinition(d))
	}
	return out, nil
}

// Deploy implements engine.Engine. Every process in the document becomes a
// new definition version.
func (e *Engine) Deploy(ctx context.Context, name string, content []byte) (*engine.DeploymentResult, error) {
	processes, errs := ParseBPMN(content)
	if len(errs) > 0 {
		return engine.NewDeploymentFailure(name, errs...), nil
	}

	dep := &stores.Deployment{ID: e.newID(), Name: name, DeployedAt: e.now()}
	err := e.store.WithTx(ctx, func(q *stores.Queries) error {
		if err := q.CreateDeployment(ctx, dep); err != nil {
			return err
		}
		if err := q.AddResource(ctx, &stores.DeploymentResource{DeploymentID: dep.ID, Name: name, Content: content}); err != nil {
			return err
		}
		for _, p := range processes {
			version, err := q.MaxDefinitionVersion(ctx, p.Key)
			if err != nil {
				return err
			}
			steps, err := json.Marshal(p.Steps)
			if err != nil {
				return err
			}
			def := &stores.Definition{
				ID:           fmt.Sprintf("%s:%d:%s", p.Key, version+1, dep.ID),
				Key:          p.Key,
				Name:         p.Name,
				Version:      version + 1,
				DeploymentID: dep.ID,
				ResourceName: name,
				Steps:        string(steps),
			}
			if err := q.CreateDefinition(ctx, def); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, internal("deploy "+name, err)
	}

	return engine.NewDeploymentSuccess(engine.DeploymentInfo{
		ID:             dep.ID,
		Name:           dep.Name,
		DeploymentTime: dep.DeployedAt,
	}), nil
}

// DeleteDeployment implements engine.Engine. Without cascade a deployment
// that still has active instances is refused and the history of its
// finished instances is kept. With cascade that history is removed too.
func (e *Engine) DeleteDeployment(ctx context.Context, deploymentID string, cascade bool) error {
	return e.store.WithTx(ctx, func(q *stores.Queries) error {
		if _, err := q.GetDeployment(ctx, deploymentID); err != nil {
			return mapStoreErr(err, faults.CodeDeploymentNotFound, "deployment", deploymentID)
		}
		if cascade {
			if _, err := q.DeleteHistoryByDeployment(ctx, deploymentID); err != nil {
				return internal("delete history", err)
			}
		} else {
			active, err := q.CountActiveInstancesByDeployment(ctx, deploymentID)
			if err != nil {
				return internal("count active instances", err)
			}
			if active > 0 {
				return faults.Engine(faults.CodeInvalidProcessState,
					fmt.Sprintf("deployment %s has %d active process instances", deploymentID, active), nil).
					WithResource(deploymentID)
			}
		}
		if err := q.DeleteDeployment(ctx, deploymentID); err != nil {
			return mapStoreErr(err, faults.CodeDeploymentNotFound, "deployment", deploymentID)
		}
		return nil
	})
}

// ListDeployments implements engine.Engine.
func (e *Engine) ListDeployments(ctx context.Context) ([]engine.DeploymentInfo, error) {
	deps, err := e.store.ListDeployments(ctx)
	if err != nil {
		return nil, internal("list deployments", err)
	}
	out := make([]engine.DeploymentInfo, 0, len(deps))
	for _, d := range deps {
		out = append(out, engine.DeploymentInfo{ID: d.ID, Name: d.Name, DeploymentTime: d.DeployedAt})
	}
	return out, nil
}

// ListDeploymentResources implements engine.Engine.
func (e *Engine) ListDeploymentResources(ctx context.Context, deploymentID string) ([]string, error) {
	if _, err := e.store.GetDeployment(ctx, deploymentID); err != nil {
		return nil, mapStoreErr(err, faults.CodeDeploymentNotFound, "deployment", deploymentID)
	}
	names, err := e.store.ListResourceNames(ctx, deploymentID)
	if err != nil {
		return nil, internal("list deployment resources", err)
	}
	return names, nil
}

// GetDeploymentResource implements engine.Engine.
func (e *Engine) GetDeploymentResource(ctx context.Context, deploymentID, resourceName string) ([]byte, error) {
	res, err := e.store.GetResource(ctx, deploymentID, resourceName)
	if err != nil {
		return nil, mapStoreErr(err, faults.CodeDeploymentNotFound, "deployment resource", deploymentID+"/"+resourceName)
	}
	return res.Content, nil
}

// StartProcess implements engine.Engine.
func (e *Engine) StartProcess(ctx context.Context, processKey, businessKey string, vars engine.ProcessVariables) (*engine.ProcessInstance, error) {
	encoded, err := encodeVariables(vars)
	if err != nil {
		return nil, err
	}

	var inst *stores.Instance
	err = e.store.WithTx(ctx, func(q *stores.Queries) error {
		def, err := q.LatestDefinition(ctx, processKey)
		if err != nil {
			return mapStoreErr(err, faults.CodeDefinitionNotFound, "process definition", processKey)
		}
		steps, err := decodeSteps(def)
		if err != nil {
			return err
		}

		inst = &stores.Instance{
			ID:            e.newID(),
			DefinitionID:  def.ID,
			DefinitionKey: def.Key,
			BusinessKey:   businessKey,
			Status:        stores.InstanceStatusActive,
			StartedAt:     e.now(),
		}
		if err := q.CreateInstance(ctx, inst); err != nil {
			return internal("create instance", err)
		}
		if err := q.SetVariables(ctx, inst.ID, encoded); err != nil {
			return internal("store variables", err)
		}
		return e.advance(ctx, q, inst, steps, 0)
	})
	if err != nil {
		return nil, err
	}

	return toInstance(inst), nil
}

// advance moves inst to step, creating its task, or finishes the instance
// when no step is left.
func (e *Engine) advance(ctx context.Context, q *stores.Queries, inst *stores.Instance, steps []Step, step int) error {
	inst.CurrentStep = step
	if step >= len(steps) {
		return e.finish(ctx, q, inst, stores.InstanceStatusCompleted, "")
	}

	s := steps[step]
	task := &stores.Task{
		ID:           e.newID(),
		InstanceID:   inst.ID,
		DefinitionID: inst.DefinitionID,
		ElementID:    s.ID,
		Name:         s.Name,
		Assignee:     s.Assignee,
		Priority:     s.Priority,
		CreatedAt:    e.now(),
	}
	if err := q.CreateTask(ctx, task); err != nil {
		return internal("create task", err)
	}
	if err := q.UpdateInstance(ctx, inst); err != nil {
		return internal("update instance", err)
	}
	return nil
}

// finish moves inst to a terminal status and writes its history record.
func (e *Engine) finish(ctx context.Context, q *stores.Queries, inst *stores.Instance, status, reason string) error {
	end := e.now()
	inst.Status = status
	inst.EndedAt = &end
	inst.Reason = reason
	if err := q.UpdateInstance(ctx, inst); err != nil {
		return internal("update instance", err)
	}
	err := q.CreateHistory(ctx, &stores.HistoricInstance{
		ID:            inst.ID,
		DefinitionID:  inst.DefinitionID,
		DefinitionKey: inst.DefinitionKey,
		BusinessKey:   inst.BusinessKey,
		StartedAt:     inst.StartedAt,
		EndedAt:       end,
		Outcome:       status,
		Reason:        reason,
	})
	if err != nil {
		return internal("write history", err)
	}
	if err := q.SnapshotVariables(ctx, inst.ID); err != nil {
		return internal("write history variables", err)
	}
	return nil
}

// ListProcessInstances implements engine.Engine.
func (e *Engine) ListProcessInstances(ctx context.Context, processKey string) ([]engine.ProcessInstance, error) {
	insts, err := e.store.ListActiveInstances(ctx, processKey)
	if err != nil {
		return nil, internal("list instances", err)
	}
	out := make([]engine.ProcessInstance, 0, len(insts))
	for _, inst := range insts {
		out = append(out, *toInstance(inst))
	}
	return out, nil
}

// GetProcessVariables implements engine.Engine.
func (e *Engine) GetProcessVariables(ctx context.Context, processInstanceID string) (engine.ProcessVariables, error) {
	inst, err := e.store.GetInstance(ctx, processInstanceID)
	if err != nil {
		return nil, mapStoreErr(err, faults.CodeProcessNotFound, "process instance", processInstanceID)
	}
	if inst.Status != stores.InstanceStatusActive {
		return nil, faults.Engine(faults.CodeProcessNotFound,
			fmt.Sprintf("process instance %s is not running", processInstanceID), nil).
			WithProcess(processInstanceID)
	}
	return e.variables(ctx, e.store.Queries, processInstanceID)
}

func (e *Engine) variables(ctx context.Context, q *stores.Queries, instanceID string) (engine.ProcessVariables, error) {
	raw, err := q.GetVariables(ctx, instanceID)
	if err != nil {
		return nil, internal("read variables", err)
	}
	return decodeVariables(raw)
}

// CompleteTask implements engine.Engine.
func (e *Engine) CompleteTask(ctx context.Context, taskID string, vars engine.ProcessVariables) error {
	encoded, err := encodeVariables(vars)
	if err != nil {
		return err
	}

	return e.store.WithTx(ctx, func(q *stores.Queries) error {
		task, err := q.GetTask(ctx, taskID)
		if err != nil {
			return mapStoreErr(err, faults.CodeTaskNotFound, "task", taskID)
		}
		if task.CompletedAt != nil {
			return faults.Engine(faults.CodeInvalidTaskState,
				fmt.Sprintf("task %s is already completed", taskID), nil).WithTask(taskID)
		}

		inst, err := q.GetInstance(ctx, task.InstanceID)
		if err != nil {
			return mapStoreErr(err, faults.CodeProcessNotFound, "process instance", task.InstanceID)
		}
		if inst.Status != stores.InstanceStatusActive {
			return faults.Engine(faults.CodeInvalidProcessState,
				fmt.Sprintf("process instance %s is %s", inst.ID, inst.Status), nil).
				WithProcess(inst.ID).WithTask(taskID)
		}

		def, err := q.GetDefinition(ctx, inst.DefinitionID)
		if err != nil {
			return mapStoreErr(err, faults.CodeDefinitionNotFound, "process definition", inst.DefinitionID)
		}
		steps, err := decodeSteps(def)
		if err != nil {
			return err
		}

		if err := q.SetVariables(ctx, inst.ID, encoded); err != nil {
			return internal("store variables", err)
		}
		if err := q.MarkTaskCompleted(ctx, taskID, e.now()); err != nil {
			return mapStoreErr(err, faults.CodeInvalidTaskState, "task", taskID)
		}
		return e.advance(ctx, q, inst, steps, inst.CurrentStep+1)
	})
}

// ListTasks implements engine.Engine.
func (e *Engine) ListTasks(ctx context.Context, processInstanceID string) ([]engine.TaskInfo, error) {
	tasks, err := e.store.ListOpenTasks(ctx, processInstanceID)
	if err != nil {
		return nil, internal("list tasks", err)
	}
	out := make([]engine.TaskInfo, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, engine.TaskInfo{
			ID:                  t.ID,
			Name:                t.Name,
			Assignee:            t.Assignee,
			ProcessInstanceID:   t.InstanceID,
			ProcessDefinitionID: t.DefinitionID,
			CreateTime:          t.CreatedAt,
			DueDate:             t.DueAt,
			Priority:            t.Priority,
		})
	}
	return out, nil
}

// GetTaskVariables implements engine.Engine. A task sees the variables of
// its process instance.
func (e *Engine) GetTaskVariables(ctx context.Context, taskID string) (engine.ProcessVariables, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, mapStoreErr(err, faults.CodeTaskNotFound, "task", taskID)
	}
	if task.CompletedAt != nil {
		return nil, faults.Engine(faults.CodeTaskNotFound,
			fmt.Sprintf("task %s is no longer pending", taskID), nil).WithTask(taskID)
	}
	return e.variables(ctx, e.store.Queries, task.InstanceID)
}

// ListHistoricInstances implements engine.Engine.
func (e *Engine) ListHistoricInstances(ctx context.Context, processKey string) ([]engine.HistoricProcessInstance, error) {
	hist, err := e.store.ListHistory(ctx, processKey)
	if err != nil {
		return nil, internal("list history", err)
	}
	out := make([]engine.HistoricProcessInstance, 0, len(hist))
	for _, h := range hist {
		out = append(out, toHistoric(h))
	}
	return out, nil
}

// GetProcessHistory implements engine.Engine.
func (e *Engine) GetProcessHistory(ctx context.Context, processInstanceID string) (*engine.ProcessHistory, error) {
	h, err := e.store.GetHistory(ctx, processInstanceID)
	if errors.Is(err, stores.ErrNotFound) {
		if _, ierr := e.store.GetInstance(ctx, processInstanceID); ierr == nil {
			return nil, faults.Engine(faults.CodeInvalidProcessState,
				fmt.Sprintf("process instance %s has not finished", processInstanceID), nil).
				WithProcess(processInstanceID)
		}
		return nil, mapStoreErr(err, faults.CodeProcessNotFound, "process instance", processInstanceID)
	}
	if err != nil {
		return nil, internal("read history", err)
	}

	raw, err := e.store.GetHistoricVariables(ctx, processInstanceID)
	if err != nil {
		return nil, internal("read history variables", err)
	}
	vars, err := decodeVariables(raw)
	if err != nil {
		return nil, err
	}
	return &engine.ProcessHistory{Instance: toHistoric(h), Variables: vars}, nil
}

// GetProcessStatus implements engine.Engine.
func (e *Engine) GetProcessStatus(ctx context.Context, processInstanceID string) (engine.ProcessStatus, error) {
	inst, err := e.store.GetInstance(ctx, processInstanceID)
	if err != nil {
		return "", mapStoreErr(err, faults.CodeProcessNotFound, "process instance", processInstanceID)
	}
	return engine.ProcessStatus(inst.Status), nil
}

// GetCompletionStatus implements engine.Engine.
func (e *Engine) GetCompletionStatus(ctx context.Context, processInstanceID string) (*engine.CompletionStatus, error) {
	inst, err := e.store.GetInstance(ctx, processInstanceID)
	if err != nil {
		return nil, mapStoreErr(err, faults.CodeProcessNotFound, "process instance", processInstanceID)
	}
	cs := &engine.CompletionStatus{ProcessInstanceID: inst.ID}
	if inst.Status != stores.InstanceStatusActive {
		cs.Completed = true
		cs.Outcome = engine.ProcessOutcome(inst.Status)
	}
	return cs, nil
}

// TerminateProcess implements engine.Engine.
func (e *Engine) TerminateProcess(ctx context.Context, processInstanceID, reason string) error {
	return e.store.WithTx(ctx, func(q *stores.Queries) error {
		inst, err := q.GetInstance(ctx, processInstanceID)
		if err != nil {
			return mapStoreErr(err, faults.CodeProcessNotFound, "process instance", processInstanceID)
		}
		if inst.Status != stores.InstanceStatusActive {
			return faults.Engine(faults.CodeInvalidProcessState,
				fmt.Sprintf("process instance %s is already %s", processInstanceID, inst.Status), nil).
				WithProcess(processInstanceID)
		}
		if err := q.DeleteOpenTasks(ctx, inst.ID); err != nil {
			return internal("delete tasks", err)
		}
		return e.finish(ctx, q, inst, stores.InstanceStatusTerminated, reason)
	})
}

func toDefinition(d *stores.Definition) engine.ProcessDefinition {
	return engine.ProcessDefinition{
		ID:           d.ID,
		Key:          d.Key,
		Name:         d.Name,
		Version:      d.Version,
		DeploymentID: d.DeploymentID,
	}
}

func toInstance(inst *stores.Instance) *engine.ProcessInstance {
	return &engine.ProcessInstance{
		ID:           inst.ID,
		DefinitionID: inst.DefinitionID,
		BusinessKey:  inst.BusinessKey,
		Status:       engine.ProcessStatus(inst.Status),
		StartTime:    inst.StartedAt,
	}
}

func toHistoric(h *stores.HistoricInstance) engine.HistoricProcessInstance {
	return engine.HistoricProcessInstance{
		ID:           h.ID,
		DefinitionID: h.DefinitionID,
		BusinessKey:  h.BusinessKey,
		StartTime:    h.StartedAt,
		EndTime:      h.EndedAt,
		Duration:     h.EndedAt.Sub(h.StartedAt),
		Outcome:      engine.ProcessOutcome(h.Outcome),
		Reason:       h.Reason,
	}
}

func decodeSteps(def *stores.Definition) ([]Step, error) {
	var steps []Step
	if err := json.Unmarshal([]byte(def.Steps), &steps); err != nil {
		return nil, faults.Engine(faults.CodeEngineInternal,
			fmt.Sprintf("definition %s has corrupt step data", def.ID), err)
	}
	return steps, nil
}

func encodeVariables(vars engine.ProcessVariables) (map[string]string, error) {
	if err := vars.Validate(); err != nil {
		return nil, faults.Validation(err.Error())
	}
	out := make(map[string]string, len(vars))
	for name, v := range vars {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, faults.Validationf("variable %s cannot be stored: %v", name, err)
		}
		out[name] = string(data)
	}
	return out, nil
}

func decodeVariables(raw map[string]string) (engine.ProcessVariables, error) {
	out := make(engine.ProcessVariables, len(raw))
	for name, data := range raw {
		var v interface{}
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, faults.Engine(faults.CodeEngineInternal,
				fmt.Sprintf("variable %s has corrupt data", name), err)
		}
		out[name] = v
	}
	return out, nil
}

// mapStoreErr turns a store not-found into the engine code for what was
// looked up. Faults pass through; anything else is internal.
func mapStoreErr(err error, code faults.EngineCode, what, id string) error {
	var f *faults.Fault
	if errors.As(err, &f) {
		return err
	}
	if errors.Is(err, stores.ErrNotFound) {
		return faults.Engine(code, fmt.Sprintf("%s %s not found", what, id), err).WithResource(id)
	}
	return internal(what+" "+id, err)
}

func internal(action string, err error) error {
	var f *faults.Fault
	if errors.As(err, &f) {
		return err
	}
	return faults.Engine(faults.CodeEngineInternal, "failed to "+action, err)
}
