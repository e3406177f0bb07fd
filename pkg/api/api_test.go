package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procflow/procflow/pkg/api"
	"github.com/procflow/procflow/pkg/api/handler"
	"github.com/procflow/procflow/pkg/api/middleware"
	"github.com/procflow/procflow/pkg/auth"
	"github.com/procflow/procflow/pkg/banking"
	"github.com/procflow/procflow/pkg/engine"
	"github.com/procflow/procflow/pkg/faults"
	"github.com/procflow/procflow/pkg/orchestration"
	"github.com/procflow/procflow/pkg/providers/embedded"
	"github.com/procflow/procflow/pkg/telemetry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	router *gin.Engine
	tel    *telemetry.Telemetry
}

type fixtureOptions struct {
	bankHandler  http.HandlerFunc
	authRequired bool
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()

	eng, err := embedded.New(context.Background(), embedded.Config{Path: embedded.DefaultPath})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: true, Namespace: "procflow"})
	require.NoError(t, err)
	tel := telemetry.NewNopTelemetry()
	tel.Metrics = metrics

	tokens := auth.NewTokenHolder()
	svcOpts := orchestration.Options{
		Engine:       eng,
		Tokens:       tokens,
		AuthRequired: opts.authRequired,
		Telemetry:    tel,
	}
	if opts.bankHandler != nil {
		srv := httptest.NewServer(opts.bankHandler)
		t.Cleanup(srv.Close)
		client, err := banking.NewClient(banking.Config{BaseURL: srv.URL, Tokens: tokens})
		require.NoError(t, err)
		svcOpts.Banking = client
	}

	svc, err := orchestration.New(svcOpts)
	require.NoError(t, err)

	return &fixture{router: api.SetupRouter(svc, tel, "1.0.0-test"), tel: tel}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) deploy(t *testing.T, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/deployments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) faults.Problem {
	t.Helper()
	assert.Equal(t, faults.ContentType, w.Header().Get("Content-Type"))
	var p faults.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return p
}

func loanFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("../providers/embedded/testdata/loan-v1.bpmn")
	require.NoError(t, err)
	return data
}

func TestHealth(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	w := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp handler.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.0.0-test", resp.Version)
	assert.Equal(t, embedded.Type, resp.Engine)
	assert.False(t, resp.Authenticated)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(middleware.RequestIDHeader))
}

func TestDeployThenListDefinitions(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	w := f.deploy(t, "loan-v1.bpmn", loanFixture(t))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var res engine.DeploymentResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "loan-v1.bpmn", res.Name)
	assert.NotEmpty(t, res.ID)

	w = f.do(t, http.MethodGet, "/api/v1/definitions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var defs []engine.ProcessDefinition
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &defs))
	require.Len(t, defs, 1)
	assert.Equal(t, "loanApproval", defs[0].Key)
	assert.Equal(t, 1, defs[0].Version)
	assert.Equal(t, res.ID, defs[0].DeploymentID)

	w = f.do(t, http.MethodGet, "/api/v1/deployments/"+res.ID+"/resources", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var names []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &names))
	assert.Equal(t, []string{"loan-v1.bpmn"}, names)

	w = f.do(t, http.MethodGet, "/api/v1/deployments/"+res.ID+"/resources/loan-v1.bpmn", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, loanFixture(t), w.Body.Bytes())

	body, err := testutilGather(f.tel)
	require.NoError(t, err)
	assert.Contains(t, body, `procflow_deployments_total`)
}

func TestDeployRejectedArtifact(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	w := f.deploy(t, "broken.bpmn", []byte("<definitions><process/></definitions>"))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var res engine.DeploymentResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Errors)
}

func TestDeployWithoutFile(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	w := f.do(t, http.MethodPost, "/api/v1/deployments", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	p := decodeProblem(t, w)
	assert.Equal(t, faults.ProblemTypeBase+string(faults.KindValidation), p.Type)
}

func TestProcessLifecycle(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	require.Equal(t, http.StatusCreated, f.deploy(t, "loan-v1.bpmn", loanFixture(t)).Code)

	w := f.do(t, http.MethodPost, "/api/v1/process-instances", handler.StartProcessRequest{
		ProcessKey:  "loanApproval",
		BusinessKey: "loan-7",
		Variables:   engine.ProcessVariables{"amount": 5000},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var inst engine.ProcessInstance
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &inst))
	assert.Equal(t, engine.ProcessStatusActive, inst.Status)
	assert.Equal(t, "loan-7", inst.BusinessKey)

	w = f.do(t, http.MethodGet, "/api/v1/process-instances/"+inst.ID+"/variables", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var vars map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &vars))
	assert.Equal(t, float64(5000), vars["amount"])

	for _, step := range []string{"Review Application", "Approve Loan"} {
		w = f.do(t, http.MethodGet, "/api/v1/tasks?processInstanceId="+inst.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var tasks []engine.TaskInfo
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tasks))
		require.Len(t, tasks, 1)
		assert.Equal(t, step, tasks[0].Name)

		w = f.do(t, http.MethodPost, "/api/v1/tasks/"+tasks[0].ID+"/complete", handler.CompleteTaskRequest{
			Variables: engine.ProcessVariables{"approved": true},
		})
		require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodGet, "/api/v1/process-instances/"+inst.ID+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status handler.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, engine.ProcessStatusCompleted, status.Status)

	w = f.do(t, http.MethodGet, "/api/v1/process-instances/"+inst.ID+"/completion", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cs engine.CompletionStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cs))
	assert.True(t, cs.Completed)
	assert.Equal(t, engine.OutcomeCompleted, cs.Outcome)

	w = f.do(t, http.MethodGet, "/api/v1/history/"+inst.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var hist engine.ProcessHistory
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hist))
	assert.Equal(t, true, hist.Variables["approved"])

	w = f.do(t, http.MethodGet, "/api/v1/history?processKey=loanApproval", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var finished []engine.HistoricProcessInstance
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &finished))
	assert.Len(t, finished, 1)
}

func TestTerminateThenTerminateAgain(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	require.Equal(t, http.StatusCreated, f.deploy(t, "loan-v1.bpmn", loanFixture(t)).Code)

	w := f.do(t, http.MethodPost, "/api/v1/process-instances", handler.StartProcessRequest{ProcessKey: "loanApproval"})
	require.Equal(t, http.StatusCreated, w.Code)
	var inst engine.ProcessInstance
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &inst))

	w = f.do(t, http.MethodPost, "/api/v1/process-instances/"+inst.ID+"/terminate", handler.TerminateRequest{Reason: "customer withdrew"})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/v1/process-instances/"+inst.ID+"/terminate", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	p := decodeProblem(t, w)
	assert.Equal(t, string(faults.CodeInvalidProcessState), p.Properties["errorCode"])
	assert.Equal(t, orchestration.OpTerminateProcess, p.Properties["operation"])
}

func TestEngineFaultsRenderAsProblems(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	tests := []struct {
		name     string
		method   string
		path     string
		body     interface{}
		status   int
		kind     faults.Kind
		code     faults.EngineCode
		resource string
	}{
		{
			name:     "unknown definition",
			method:   http.MethodPost,
			path:     "/api/v1/process-instances",
			body:     handler.StartProcessRequest{ProcessKey: "nope"},
			status:   http.StatusNotFound,
			kind:     faults.KindEngine,
			code:     faults.CodeDefinitionNotFound,
			resource: "nope",
		},
		{
			name:   "missing process key",
			method: http.MethodPost,
			path:   "/api/v1/process-instances",
			body:   handler.StartProcessRequest{},
			status: http.StatusBadRequest,
			kind:   faults.KindValidation,
		},
		{
			name:   "empty variable name",
			method: http.MethodPost,
			path:   "/api/v1/process-instances",
			body:   map[string]interface{}{"processKey": "loanApproval", "variables": map[string]interface{}{"": 1}},
			status: http.StatusBadRequest,
			kind:   faults.KindValidation,
		},
		{
			name:     "unknown task",
			method:   http.MethodPost,
			path:     "/api/v1/tasks/t-404/complete",
			status:   http.StatusNotFound,
			kind:     faults.KindEngine,
			code:     faults.CodeTaskNotFound,
			resource: "t-404",
		},
		{
			name:     "unknown deployment",
			method:   http.MethodDelete,
			path:     "/api/v1/deployments/d-404",
			status:   http.StatusNotFound,
			kind:     faults.KindEngine,
			code:     faults.CodeDeploymentNotFound,
			resource: "d-404",
		},
		{
			name:   "bad cascade flag",
			method: http.MethodDelete,
			path:   "/api/v1/deployments/d-1?cascade=maybe",
			status: http.StatusBadRequest,
			kind:   faults.KindValidation,
		},
		{
			name:     "unknown instance history",
			method:   http.MethodGet,
			path:     "/api/v1/history/p-404",
			status:   http.StatusNotFound,
			kind:     faults.KindEngine,
			code:     faults.CodeProcessNotFound,
			resource: "p-404",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())

			p := decodeProblem(t, w)
			assert.Equal(t, tt.status, p.Status)
			assert.Equal(t, faults.ProblemTypeBase+string(tt.kind), p.Type)
			if tt.code != "" {
				assert.Equal(t, string(tt.code), p.Properties["errorCode"])
			}
			if tt.resource != "" {
				assert.Equal(t, tt.resource, p.Properties["resourceId"])
			}
			assert.NotEmpty(t, p.Properties["timestamp"])
		})
	}
}

func TestGetClientNotFound(t *testing.T) {
	f := newFixture(t, fixtureOptions{bankHandler: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("Not Found"))
	}})

	w := f.do(t, http.MethodGet, "/api/v1/clients/123", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	p := decodeProblem(t, w)
	assert.Equal(t, faults.ProblemTypeBase+string(faults.KindRemoteAPI), p.Type)
	assert.Equal(t, banking.OpGetClient, p.Properties["operation"])
	assert.Equal(t, "123", p.Properties["resourceId"])
	assert.Equal(t, float64(404), p.Properties["remoteStatus"])
	assert.Equal(t, "Not Found", p.Properties["errorBody"])
}

func TestClientIDMustBeNumeric(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	w := f.do(t, http.MethodGet, "/api/v1/clients/abc", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	p := decodeProblem(t, w)
	assert.Equal(t, banking.OpGetClient, p.Properties["operation"])
}

func TestBankingNotConfigured(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	w := f.do(t, http.MethodGet, "/api/v1/loans/5", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	p := decodeProblem(t, w)
	assert.Equal(t, faults.ProblemTypeBase+string(faults.KindConfiguration), p.Type)
	assert.NotContains(t, p.Detail, "core-banking client")
}

func TestAuthGateOverHTTP(t *testing.T) {
	var authHeader string
	f := newFixture(t, fixtureOptions{
		authRequired: true,
		bankHandler: func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.URL.Path == "/authentication":
				_, _ = w.Write([]byte(`{"username":"mifos","base64EncodedAuthenticationKey":"a2V5","authenticated":true}`))
			case strings.HasPrefix(r.URL.Path, "/loans/"):
				authHeader = r.Header.Get("Authorization")
				_, _ = w.Write([]byte(`{"id":5,"accountNo":"000000005","principal":1000}`))
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		},
	})

	w := f.do(t, http.MethodGet, "/api/v1/definitions", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	p := decodeProblem(t, w)
	assert.Equal(t, faults.ProblemTypeBase+string(faults.KindAuthenticationRequired), p.Type)
	assert.Equal(t, orchestration.OpListProcessDefinitions, p.Properties["operation"])

	w = f.do(t, http.MethodPost, "/api/v1/auth/login", banking.Credentials{Username: "mifos", Password: "password"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login handler.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	assert.Equal(t, "mifos", login.Username)
	assert.NotContains(t, w.Body.String(), "a2V5")

	w = f.do(t, http.MethodGet, "/api/v1/loans/5", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var loan banking.LoanAccount
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loan))
	assert.Equal(t, int64(5), loan.ID)
	assert.Equal(t, "Bearer a2V5", authHeader)

	w = f.do(t, http.MethodPost, "/api/v1/auth/logout", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/loans/5", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthGateBeforeInputParsing(t *testing.T) {
	f := newFixture(t, fixtureOptions{authRequired: true, bankHandler: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}})

	tests := []struct {
		name        string
		method      string
		path        string
		contentType string
		body        string
		op          string
	}{
		{name: "deploy without file", method: http.MethodPost, path: "/api/v1/deployments", op: orchestration.OpDeploy},
		{name: "bad cascade flag", method: http.MethodDelete, path: "/api/v1/deployments/d1?cascade=maybe", op: orchestration.OpDeleteDeployment},
		{name: "malformed start body", method: http.MethodPost, path: "/api/v1/process-instances", contentType: "application/json", body: "{", op: orchestration.OpStartProcess},
		{name: "malformed complete body", method: http.MethodPost, path: "/api/v1/tasks/t1/complete", contentType: "application/json", body: "[", op: orchestration.OpCompleteTask},
		{name: "non numeric client id", method: http.MethodGet, path: "/api/v1/clients/abc", op: banking.OpGetClient},
		{name: "non numeric loan id", method: http.MethodPost, path: "/api/v1/loans/abc/approve", contentType: "application/json", body: "{}", op: banking.OpApproveLoan},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			f.router.ServeHTTP(w, req)

			require.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())
			p := decodeProblem(t, w)
			assert.Equal(t, faults.ProblemTypeBase+string(faults.KindAuthenticationRequired), p.Type)
			assert.Equal(t, tt.op, p.Properties["operation"])
		})
	}
}

func TestLoginValidation(t *testing.T) {
	f := newFixture(t, fixtureOptions{bankHandler: func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected remote call %s", r.URL.Path)
	}})

	w := f.do(t, http.MethodPost, "/api/v1/auth/login", banking.Credentials{Username: "mifos"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	p := decodeProblem(t, w)
	assert.Equal(t, faults.ProblemTypeBase+string(faults.KindValidation), p.Type)
}

func TestMalformedBody(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/process-instances", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	p := decodeProblem(t, w)
	assert.Equal(t, orchestration.OpStartProcess, p.Properties["operation"])
}

func TestNoRoute(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	w := f.do(t, http.MethodGet, "/api/v1/nothing-here", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	p := decodeProblem(t, w)
	assert.Equal(t, http.StatusNotFound, p.Status)
}

func TestRecoveryRendersUnclassified(t *testing.T) {
	router := gin.New()
	router.Use(middleware.Recovery(telemetry.NewNopLogger()))
	router.GET("/panic", func(c *gin.Context) {
		panic("database handle is nil")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	p := decodeProblem(t, w)
	assert.Equal(t, faults.ProblemTypeBase+string(faults.KindUnclassified), p.Type)
	assert.NotContains(t, p.Detail, "database handle")
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.do(t, http.MethodGet, "/api/v1/definitions", nil)

	w := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "procflow_operations_total")
}

// testutilGather renders the metrics endpoint body.
func testutilGather(tel *telemetry.Telemetry) (string, error) {
	w := httptest.NewRecorder()
	tel.Metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		return "", faults.Unclassified(nil)
	}
	return w.Body.String(), nil
}
