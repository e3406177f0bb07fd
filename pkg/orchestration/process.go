package orchestration

import (
	"context"

	"github.com/procflow/procflow/pkg/engine"
	"github.com/procflow/procflow/pkg/faults"
)

// Operation names of the engine operations.
const (
	OpListProcessDefinitions  = "LIST_PROCESS_DEFINITIONS"
	OpDeploy                  = "DEPLOY"
	OpDeleteDeployment        = "DELETE_DEPLOYMENT"
	OpListDeployments         = "LIST_DEPLOYMENTS"
	OpListDeploymentResources = "LIST_DEPLOYMENT_RESOURCES"
	OpGetDeploymentResource   = "GET_DEPLOYMENT_RESOURCE"
	OpStartProcess            = "START_PROCESS"
	OpListProcessInstances    = "LIST_PROCESS_INSTANCES"
	OpGetProcessVariables     = "GET_PROCESS_VARIABLES"
	OpCompleteTask            = "COMPLETE_TASK"
	OpListTasks               = "LIST_TASKS"
	OpGetTaskVariables        = "GET_TASK_VARIABLES"
	OpListHistoricInstances   = "LIST_HISTORIC_INSTANCES"
	OpGetProcessHistory       = "GET_PROCESS_HISTORY"
	OpGetProcessStatus        = "GET_PROCESS_STATUS"
	OpGetCompletionStatus     = "GET_COMPLETION_STATUS"
	OpTerminateProcess        = "TERMINATE_PROCESS"
)

// ListProcessDefinitions lists every deployed definition version.
func (s *Service) ListProcessDefinitions(ctx context.Context) ([]engine.ProcessDefinition, error) {
	return invokeEngine(ctx, s, OpListProcessDefinitions, "", func(ctx context.Context) ([]engine.ProcessDefinition, error) {
		return s.engine.ListProcessDefinitions(ctx)
	})
}

// Deploy uploads a process artifact. A rejected artifact is not an error;
// it comes back as a result with Success false.
func (s *Service) Deploy(ctx context.Context, name string, content []byte) (*engine.DeploymentResult, error) {
	return invokeEngine(ctx, s, OpDeploy, name, func(ctx context.Context) (*engine.DeploymentResult, error) {
		if err := s.requireID("deployment name", name); err != nil {
			return nil, err
		}
		if len(content) == 0 {
			return nil, faults.Validation("deployment content is empty")
		}

		res, err := s.engine.Deploy(ctx, name, content)
		if err != nil {
			return nil, err
		}
		s.tel.Metrics.RecordDeployment(s.engine.Type(), res.Success)
		_ = s.tel.Events.PublishDeployment(res.ID, name, res.Success, res.Errors)
		if !res.Success {
			s.logger.WithResourceID(name).WithField("errors", res.Errors).Warn("deployment rejected")
		}
		return res, nil
	})
}

// DeleteDeployment removes a deployment, with its instances and history
// when cascade is set.
func (s *Service) DeleteDeployment(ctx context.Context, deploymentID string, cascade bool) error {
	return execEngine(ctx, s, OpDeleteDeployment, deploymentID, func(ctx context.Context) error {
		if err := s.requireID("deployment id", deploymentID); err != nil {
			return err
		}
		if err := s.engine.DeleteDeployment(ctx, deploymentID, cascade); err != nil {
			return err
		}
		_ = s.tel.Events.PublishDeploymentDeleted(deploymentID, cascade)
		return nil
	})
}

// ListDeployments lists every deployment.
func (s *Service) ListDeployments(ctx context.Context) ([]engine.DeploymentInfo, error) {
	return invokeEngine(ctx, s, OpListDeployments, "", func(ctx context.Context) ([]engine.DeploymentInfo, error) {
		return s.engine.ListDeployments(ctx)
	})
}

// ListDeploymentResources lists the resource names inside a deployment.
func (s *Service) ListDeploymentResources(ctx context.Context, deploymentID string) ([]string, error) {
	return invokeEngine(ctx, s, OpListDeploymentResources, deploymentID, func(ctx context.Context) ([]string, error) {
		if err := s.requireID("deployment id", deploymentID); err != nil {
			return nil, err
		}
		return s.engine.ListDeploymentResources(ctx, deploymentID)
	})
}

// GetDeploymentResource returns the raw bytes of one deployment resource.
func (s *Service) GetDeploymentResource(ctx context.Context, deploymentID, resourceName string) ([]byte, error) {
	return invokeEngine(ctx, s, OpGetDeploymentResource, deploymentID, func(ctx context.Context) ([]byte, error) {
		if err := s.requireID("deployment id", deploymentID); err != nil {
			return nil, err
		}
		if err := s.requireID("resource name", resourceName); err != nil {
			return nil, err
		}
		return s.engine.GetDeploymentResource(ctx, deploymentID, resourceName)
	})
}

// StartProcess starts the latest version of the definition with the key.
func (s *Service) StartProcess(ctx context.Context, processKey, businessKey string, vars engine.ProcessVariables) (*engine.ProcessInstance, error) {
	return invokeEngine(ctx, s, OpStartProcess, processKey, func(ctx context.Context) (*engine.ProcessInstance, error) {
		if err := s.requireID("process key", processKey); err != nil {
			return nil, err
		}
		if err := checkVariables(vars); err != nil {
			return nil, err
		}

		inst, err := s.engine.StartProcess(ctx, processKey, businessKey, vars.Clone())
		if err != nil {
			return nil, err
		}
		s.tel.Metrics.RecordProcessStarted(s.engine.Type(), processKey)
		_ = s.tel.Events.PublishProcessStarted(inst.ID, processKey, businessKey)
		s.logger.WithProcessID(inst.ID).WithEngine(s.engine.Type()).WithField("process_key", processKey).Info("process started")
		if inst.Status.IsTerminal() {
			s.tel.Metrics.RecordProcessFinished(s.engine.Type(), string(inst.Status))
		}
		return inst, nil
	})
}

// ListProcessInstances lists active instances, optionally for one
// definition key.
func (s *Service) ListProcessInstances(ctx context.Context, processKey string) ([]engine.ProcessInstance, error) {
	return invokeEngine(ctx, s, OpListProcessInstances, processKey, func(ctx context.Context) ([]engine.ProcessInstance, error) {
		return s.engine.ListProcessInstances(ctx, processKey)
	})
}

// GetProcessVariables returns the variables of an active instance.
func (s *Service) GetProcessVariables(ctx context.Context, processInstanceID string) (engine.ProcessVariables, error) {
	return invokeEngine(ctx, s, OpGetProcessVariables, processInstanceID, func(ctx context.Context) (engine.ProcessVariables, error) {
		if err := s.requireID("process instance id", processInstanceID); err != nil {
			return nil, err
		}
		return s.engine.GetProcessVariables(ctx, processInstanceID)
	})
}

// CompleteTask completes a pending task, merging vars into its instance.
func (s *Service) CompleteTask(ctx context.Context, taskID string, vars engine.ProcessVariables) error {
	return execEngine(ctx, s, OpCompleteTask, taskID, func(ctx context.Context) error {
		if err := s.requireID("task id", taskID); err != nil {
			return err
		}
		if err := checkVariables(vars); err != nil {
			return err
		}
		if err := s.engine.CompleteTask(ctx, taskID, vars.Clone()); err != nil {
			return err
		}
		s.tel.Metrics.RecordTaskCompleted(s.engine.Type())
		_ = s.tel.Events.PublishTaskCompleted(taskID)
		s.logger.WithTaskID(taskID).WithField("variables", len(vars)).Info("task completed")
		return nil
	})
}

// ListTasks lists pending tasks, optionally for one instance.
func (s *Service) ListTasks(ctx context.Context, processInstanceID string) ([]engine.TaskInfo, error) {
	return invokeEngine(ctx, s, OpListTasks, processInstanceID, func(ctx context.Context) ([]engine.TaskInfo, error) {
		return s.engine.ListTasks(ctx, processInstanceID)
	})
}

// GetTaskVariables returns the variables visible to a pending task.
func (s *Service) GetTaskVariables(ctx context.Context, taskID string) (engine.ProcessVariables, error) {
	return invokeEngine(ctx, s, OpGetTaskVariables, taskID, func(ctx context.Context) (engine.ProcessVariables, error) {
		if err := s.requireID("task id", taskID); err != nil {
			return nil, err
		}
		vars, err := s.engine.GetTaskVariables(ctx, taskID)
		if err != nil {
			return nil, err
		}
		s.logger.WithTaskID(taskID).WithField("variables", len(vars)).Debug("task variables read")
		return vars, nil
	})
}

// ListHistoricInstances lists finished instances, optionally for one
// definition key.
func (s *Service) ListHistoricInstances(ctx context.Context, processKey string) ([]engine.HistoricProcessInstance, error) {
	return invokeEngine(ctx, s, OpListHistoricInstances, processKey, func(ctx context.Context) ([]engine.HistoricProcessInstance, error) {
		return s.engine.ListHistoricInstances(ctx, processKey)
	})
}

// GetProcessHistory returns the historic record of a finished instance.
func (s *Service) GetProcessHistory(ctx context.Context, processInstanceID string) (*engine.ProcessHistory, error) {
	return invokeEngine(ctx, s, OpGetProcessHistory, processInstanceID, func(ctx context.Context) (*engine.ProcessHistory, error) {
		if err := s.requireID("process instance id", processInstanceID); err != nil {
			return nil, err
		}
		return s.engine.GetProcessHistory(ctx, processInstanceID)
	})
}

// GetProcessStatus returns the current status of an instance.
func (s *Service) GetProcessStatus(ctx context.Context, processInstanceID string) (engine.ProcessStatus, error) {
	return invokeEngine(ctx, s, OpGetProcessStatus, processInstanceID, func(ctx context.Context) (engine.ProcessStatus, error) {
		if err := s.requireID("process instance id", processInstanceID); err != nil {
			return "", err
		}
		return s.engine.GetProcessStatus(ctx, processInstanceID)
	})
}

// GetCompletionStatus reports whether an instance has finished and how.
func (s *Service) GetCompletionStatus(ctx context.Context, processInstanceID string) (*engine.CompletionStatus, error) {
	return invokeEngine(ctx, s, OpGetCompletionStatus, processInstanceID, func(ctx context.Context) (*engine.CompletionStatus, error) {
		if err := s.requireID("process instance id", processInstanceID); err != nil {
			return nil, err
		}
		return s.engine.GetCompletionStatus(ctx, processInstanceID)
	})
}

// TerminateProcess stops an active instance.
func (s *Service) TerminateProcess(ctx context.Context, processInstanceID, reason string) error {
	return execEngine(ctx, s, OpTerminateProcess, processInstanceID, func(ctx context.Context) error {
		if err := s.requireID("process instance id", processInstanceID); err != nil {
			return err
		}
		if err := s.engine.TerminateProcess(ctx, processInstanceID, reason); err != nil {
			return err
		}
		s.tel.Metrics.RecordProcessFinished(s.engine.Type(), string(engine.OutcomeTerminated))
		_ = s.tel.Events.PublishProcessTerminated(processInstanceID, reason)
		s.logger.WithProcessID(processInstanceID).WithField("reason", reason).Info("process terminated")
		return nil
	})
}
