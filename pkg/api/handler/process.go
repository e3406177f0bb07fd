package handler

import (
	"io"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/procflow/procflow/pkg/api/middleware"
	"github.com/procflow/procflow/pkg/engine"
	"github.com/procflow/procflow/pkg/faults"
	"github.com/procflow/procflow/pkg/orchestration"
)

// maxArtifactSize caps an uploaded process artifact.
const maxArtifactSize = 10 << 20

// StartProcessRequest is the body of a start call.
type StartProcessRequest struct {
	ProcessKey  string                  `json:"processKey"`
	BusinessKey string                  `json:"businessKey,omitempty"`
	Variables   engine.ProcessVariables `json:"variables,omitempty"`
}

// CompleteTaskRequest is the body of a task completion.
type CompleteTaskRequest struct {
	Variables engine.ProcessVariables `json:"variables,omitempty"`
}

// TerminateRequest is the body of a termination.
type TerminateRequest struct {
	Reason string `json:"reason,omitempty"`
}

// StatusResponse wraps a process status.
type StatusResponse struct {
	ProcessInstanceID string               `json:"processInstanceId"`
	Status            engine.ProcessStatus `json:"status"`
}

// ProcessHandler serves the process engine operations.
type ProcessHandler struct {
	facade Facade
}

// NewProcessHandler creates a ProcessHandler.
func NewProcessHandler(facade Facade) *ProcessHandler {
	return &ProcessHandler{facade: facade}
}

// ListDefinitions lists every deployed definition version.
// GET /api/v1/definitions
func (h *ProcessHandler) ListDefinitions(c *gin.Context) {
	defs, err := h.facade.ListProcessDefinitions(c.Request.Context())
	if err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	c.JSON(http.StatusOK, defs)
}

// Deploy uploads a process artifact from the multipart field "file". The
// optional form field "name" overrides the file name.
// POST /api/v1/deployments
func (h *ProcessHandler) Deploy(c *gin.Context) {
	if !admit(c, h.facade, orchestration.OpDeploy) {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		middleware.AbortWithProblem(c, faults.Validationf("multipart field \"file\" is required: %v", err).WithOperation(orchestration.OpDeploy))
		return
	}
	if fh.Size > maxArtifactSize {
		middleware.AbortWithProblem(c, faults.Validationf("artifact exceeds %d bytes", maxArtifactSize).WithOperation(orchestration.OpDeploy))
		return
	}

	f, err := fh.Open()
	if err != nil {
		middleware.AbortWithProblem(c, faults.Validationf("cannot read upload: %v", err).WithOperation(orchestration.OpDeploy))
		return
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		middleware.AbortWithProblem(c, faults.Validationf("cannot read upload: %v", err).WithOperation(orchestration.OpDeploy))
		return
	}

	name := c.PostForm("name")
	if name == "" {
		name = filepath.Base(fh.Filename)
	}

	res, err := h.facade.Deploy(c.Request.Context(), name, content)
	if err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	if !res.Success {
		c.JSON(http.StatusUnprocessableEntity, res)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// ListDeployments lists every deployment.
// GET /api/v1/deployments
func (h *ProcessHandler) ListDeployments(c *gin.Context) {
	deps, err := h.facade.ListDeployments(c.Request.Context())
	if err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	c.JSON(http.StatusOK, deps)
}

// DeleteDeployment removes a deployment.
// DELETE /api/v1/deployments/:id?cascade=true
func (h *ProcessHandler) DeleteDeployment(c *gin.Context) {
	if !admit(c, h.facade, orchestration.OpDeleteDeployment) {
		return
	}
	cascade, err := boolQuery(c, orchestration.OpDeleteDeployment, "cascade")
	if err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	if err := h.facade.DeleteDeployment(c.Request.Context(), c.Param("id"), cascade); err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListResources lists the resource names of a deployment.
// GET /api/v1/deployments/:id/resources
func (h *ProcessHandler) ListResources(c *gin.Context) {
	names, err := h.facade.ListDeploymentResources(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	c.JSON(http.StatusOK, names)
}

// GetResource returns the raw bytes of one deployment resource.
// GET /api/v1/deployments/:id/resources/:name
func (h *ProcessHandler) GetResource(c *gin.Context) {
	data, err := h.facade.GetDeploymentResource(c.Request.Context(), c.Param("id"), c.Param("name"))
	if err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	c.Data(http.StatusOK, "application/xml", data)
}

// Start starts a process instance.
// POST /api/v1/process-instances
func (h *ProcessHandler) Start(c *gin.Context) {
	if !admit(c, h.facade, orchestration.OpStartProcess) {
		return
	}
	var req StartProcessRequest
	if err := bindJSON(c, orchestration.OpStartProcess, &req); err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	inst, err := h.facade.StartProcess(c.Request.Context(), req.ProcessKey, req.BusinessKey, req.Variables)
	if err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	c.JSON(http.StatusCreated, inst)
}

// ListInstances lists active instances.
// GET /api/v1/process-instances?processKey=
func (h *ProcessHandler) ListInstances(c *gin.Context) {
	insts, err := h.facade.ListProcessInstances(c.Request.Context(), c.Query("processKey"))
	if err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	c.JSON(http.StatusOK, insts)
}

// Variables returns the variables of an active instance.
// GET /api/v1/process-instances/:id/variables
func (h *ProcessHandler) Variables(c *gin.Context) {
	vars, err := h.facade.GetProcessVariables(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	c.JSON(http.StatusOK, vars)
}

// Status returns the status of an instance.
// GET /api/v1/process-instances/:id/status
func (h *ProcessHandler) Status(c *gin.Context) {
	id := c.Param("id")
	status, err := h.facade.GetProcessStatus(c.Request.Context(), id)
	if err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	c.JSON(http.StatusOK, StatusResponse{ProcessInstanceID: id, Status: status})
}

// Completion reports whether an instance has finished.
// GET /api/v1/process-instances/:id/completion
func (h *ProcessHandler) Completion(c *gin.Context) {
	cs, err := h.facade.GetCompletionStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	c.JSON(http.StatusOK, cs)
}

// Terminate stops an active instance.
// POST /api/v1/process-instances/:id/terminate
func (h *ProcessHandler) Terminate(c *gin.Context) {
	if !admit(c, h.facade, orchestration.OpTerminateProcess) {
		return
	}
	var req TerminateRequest
	if err := bindJSON(c, orchestration.OpTerminateProcess, &req); err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	if err := h.facade.TerminateProcess(c.Request.Context(), c.Param("id"), req.Reason); err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListTasks lists pending tasks.
// GET /api/v1/tasks?processInstanceId=
func (h *ProcessHandler) ListTasks(c *gin.Context) {
	tasks, err := h.facade.ListTasks(c.Request.Context(), c.Query("processInstanceId"))
	if err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// CompleteTask completes a pending task.
// POST /api/v1/tasks/:id/complete
func (h *ProcessHandler) CompleteTask(c *gin.Context) {
	if !admit(c, h.facade, orchestration.OpCompleteTask) {
		return
	}
	var req CompleteTaskRequest
	if err := bindJSON(c, orchestration.OpCompleteTask, &req); err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	if err := h.facade.CompleteTask(c.Request.Context(), c.Param("id"), req.Variables); err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// TaskVariables returns the variables visible to a pending task.
// GET /api/v1/tasks/:id/variables
func (h *ProcessHandler) TaskVariables(c *gin.Context) {
	vars, err := h.facade.GetTaskVariables(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	c.JSON(http.StatusOK, vars)
}

// ListHistory lists finished instances.
// GET /api/v1/history?processKey=
func (h *ProcessHandler) ListHistory(c *gin.Context) {
	hist, err := h.facade.ListHistoricInstances(c.Request.Context(), c.Query("processKey"))
	if err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	c.JSON(http.StatusOK, hist)
}

// History returns the historic record of a finished instance.
// GET /api/v1/history/:id
func (h *ProcessHandler) History(c *gin.Context) {
	hist, err := h.facade.GetProcessHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	c.JSON(http.StatusOK, hist)
}
