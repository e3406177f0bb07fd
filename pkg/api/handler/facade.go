package handler

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/procflow/procflow/pkg/api/middleware"
	"github.com/procflow/procflow/pkg/auth"
	"github.com/procflow/procflow/pkg/banking"
	"github.com/procflow/procflow/pkg/engine"
	"github.com/procflow/procflow/pkg/faults"
	"github.com/procflow/procflow/pkg/orchestration"
)

// Facade is the orchestration surface the handlers drive.
type Facade interface {
	EngineType() string
	Authenticated() bool
	CheckAccess(op string) error

	Login(ctx context.Context, creds banking.Credentials) (*auth.Credential, error)
	Logout(ctx context.Context)

	ListProcessDefinitions(ctx context.Context) ([]engine.ProcessDefinition, error)
	Deploy(ctx context.Context, name string, content []byte) (*engine.DeploymentResult, error)
	DeleteDeployment(ctx context.Context, deploymentID string, cascade bool) error
	ListDeployments(ctx context.Context) ([]engine.DeploymentInfo, error)
	ListDeploymentResources(ctx context.Context, deploymentID string) ([]string, error)
	GetDeploymentResource(ctx context.Context, deploymentID, resourceName string) ([]byte, error)
	StartProcess(ctx context.Context, processKey, businessKey string, vars engine.ProcessVariables) (*engine.ProcessInstance, error)
	ListProcessInstances(ctx context.Context, processKey string) ([]engine.ProcessInstance, error)
	GetProcessVariables(ctx context.Context, processInstanceID string) (engine.ProcessVariables, error)
	CompleteTask(ctx context.Context, taskID string, vars engine.ProcessVariables) error
	ListTasks(ctx context.Context, processInstanceID string) ([]engine.TaskInfo, error)
	GetTaskVariables(ctx context.Context, taskID string) (engine.ProcessVariables, error)
	ListHistoricInstances(ctx context.Context, processKey string) ([]engine.HistoricProcessInstance, error)
	GetProcessHistory(ctx context.Context, processInstanceID string) (*engine.ProcessHistory, error)
	GetProcessStatus(ctx context.Context, processInstanceID string) (engine.ProcessStatus, error)
	GetCompletionStatus(ctx context.Context, processInstanceID string) (*engine.CompletionStatus, error)
	TerminateProcess(ctx context.Context, processInstanceID, reason string) error

	CreateClient(ctx context.Context, req banking.CreateClientRequest) (*banking.CommandResult, error)
	GetClient(ctx context.Context, id int64) (*banking.ClientAccount, error)
	GetClientByExternalID(ctx context.Context, externalID string) (*banking.ClientAccount, error)
	UpdateClient(ctx context.Context, id int64, req banking.UpdateClientRequest) (*banking.CommandResult, error)
	ActivateClient(ctx context.Context, id int64, req banking.ActivateClientRequest) (*banking.CommandResult, error)
	CreateLoan(ctx context.Context, req banking.CreateLoanRequest) (*banking.CommandResult, error)
	GetLoan(ctx context.Context, id int64) (*banking.LoanAccount, error)
	GetLoanByExternalID(ctx context.Context, externalID string) (*banking.LoanAccount, error)
	UpdateLoan(ctx context.Context, id int64, req banking.UpdateLoanRequest) (*banking.CommandResult, error)
	ApproveLoan(ctx context.Context, id int64, cmd banking.LoanCommand) (*banking.CommandResult, error)
	DisburseLoan(ctx context.Context, id int64, cmd banking.LoanCommand) (*banking.CommandResult, error)
	RejectLoan(ctx context.Context, id int64, cmd banking.LoanCommand) (*banking.CommandResult, error)
}

var _ Facade = (*orchestration.Service)(nil)

// admit runs the authentication gate of op before the handler reads its
// input, so an unauthenticated caller gets 401 whatever the request holds.
func admit(c *gin.Context, facade Facade, op string) bool {
	if err := facade.CheckAccess(op); err != nil {
		middleware.AbortWithProblem(c, err)
		return false
	}
	return true
}

// bindJSON decodes the request body into dst. A malformed body is a
// validation fault. An empty body leaves dst untouched.
func bindJSON(c *gin.Context, op string, dst interface{}) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return faults.Validationf("malformed request body: %v", err).WithOperation(op)
	}
	return nil
}

// int64Param reads a numeric path parameter.
func int64Param(c *gin.Context, op, name string) (int64, error) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, faults.Validationf("%s must be numeric, got %q", name, raw).WithOperation(op).WithResource(raw)
	}
	return id, nil
}

// boolQuery reads an optional boolean query parameter.
func boolQuery(c *gin.Context, op, name string) (bool, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, faults.Validationf("%s must be a boolean, got %q", name, raw).WithOperation(op)
	}
	return v, nil
}
