package flowable

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/procflow/procflow/pkg/engine"
	"github.com/procflow/procflow/pkg/faults"
)

func newTestEngine(t *testing.T, h http.HandlerFunc) *Engine {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	e, err := New(Config{
		BaseURL:  srv.URL + "/flowable-rest/service/",
		Username: "rest-admin",
		Password: "test",
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestFactory_RequiresBaseURL(t *testing.T) {
	_, err := Factory(context.Background(), engine.NoConfig)
	if !faults.IsKind(err, faults.KindConfiguration) {
		t.Fatalf("expected configuration fault, got %v", err)
	}
}

func TestListProcessDefinitions(t *testing.T) {
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/flowable-rest/service/repository/process-definitions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "rest-admin" || pass != "test" {
			t.Errorf("missing basic auth")
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"loan:1:7","key":"loan","name":"Loan","version":1,"deploymentId":"7"}],"total":1}`))
	})

	defs, err := e.ListProcessDefinitions(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := engine.ProcessDefinition{ID: "loan:1:7", Key: "loan", Name: "Loan", Version: 1, DeploymentID: "7"}
	if len(defs) != 1 || defs[0] != want {
		t.Errorf("got %+v, want %+v", defs, want)
	}
}

func TestDeploy(t *testing.T) {
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/flowable-rest/service/repository/deployments" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		data, _ := io.ReadAll(file)
		if header.Filename != "loan-v1.bpmn" || string(data) != "<definitions/>" {
			t.Errorf("unexpected upload %s %q", header.Filename, data)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"10","name":"loan-v1.bpmn","deploymentTime":"2026-03-01T10:17:43.902+0000"}`))
	})

	res, err := e.Deploy(context.Background(), "loan-v1.bpmn", []byte("<definitions/>"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.ID != "10" {
		t.Errorf("unexpected result %+v", res)
	}
	want := time.Date(2026, 3, 1, 10, 17, 43, 902000000, time.UTC)
	if !res.DeploymentTime.Equal(want) {
		t.Errorf("deployment time = %v, want %v", res.DeploymentTime, want)
	}
}

func TestDeploy_Rejected(t *testing.T) {
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Bad request","exception":"Errors while parsing"}`))
	})

	res, err := e.Deploy(context.Background(), "broken.bpmn", []byte("<nope"))
	if err != nil {
		t.Fatalf("rejection must not be an error: %v", err)
	}
	if res.Success || len(res.Errors) != 1 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestStartProcess(t *testing.T) {
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		var body startRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.ProcessDefinitionKey != "loan" || body.BusinessKey != "LOAN-1" {
			t.Errorf("unexpected body %+v", body)
		}
		if len(body.Variables) != 2 || body.Variables[0].Name != "amount" || body.Variables[1].Name != "applicant" {
			t.Errorf("variables not sorted by name: %+v", body.Variables)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"42","processDefinitionId":"loan:1:7","businessKey":"LOAN-1","ended":false,"startTime":"2026-03-01T10:00:00.000+0000"}`))
	})

	inst, err := e.StartProcess(context.Background(), "loan", "LOAN-1",
		engine.ProcessVariables{"applicant": "ada", "amount": 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inst.ID != "42" || inst.Status != engine.ProcessStatusActive {
		t.Errorf("unexpected instance %+v", inst)
	}
}

func TestStartProcess_EmptyVariableName(t *testing.T) {
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("engine must not be called")
	})

	_, err := e.StartProcess(context.Background(), "loan", "", engine.ProcessVariables{"": 1})
	if !faults.IsKind(err, faults.KindValidation) {
		t.Fatalf("expected validation fault, got %v", err)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		call   func(e *Engine) error
		code   faults.EngineCode
	}{
		{"unknown definition", http.StatusNotFound, func(e *Engine) error {
			_, err := e.StartProcess(context.Background(), "missing", "", nil)
			return err
		}, faults.CodeDefinitionNotFound},
		{"unknown task", http.StatusNotFound, func(e *Engine) error {
			return e.CompleteTask(context.Background(), "t1", nil)
		}, faults.CodeTaskNotFound},
		{"task conflict", http.StatusConflict, func(e *Engine) error {
			return e.CompleteTask(context.Background(), "t1", nil)
		}, faults.CodeInvalidTaskState},
		{"unknown deployment", http.StatusNotFound, func(e *Engine) error {
			return e.DeleteDeployment(context.Background(), "d1", true)
		}, faults.CodeDeploymentNotFound},
		{"unknown instance variables", http.StatusNotFound, func(e *Engine) error {
			_, err := e.GetProcessVariables(context.Background(), "p1")
			return err
		}, faults.CodeProcessNotFound},
		{"server failure", http.StatusInternalServerError, func(e *Engine) error {
			_, err := e.ListDeployments(context.Background())
			return err
		}, faults.CodeEngineInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			err := tt.call(e)
			if !faults.HasCode(err, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestGetProcessStatus(t *testing.T) {
	tests := []struct {
		name     string
		runtime  int
		history  string
		want     engine.ProcessStatus
		wantCode faults.EngineCode
	}{
		{"running", http.StatusOK, "", engine.ProcessStatusActive, ""},
		{"completed", http.StatusNotFound, `{"id":"p1","endTime":"2026-03-01T11:00:00.000+0000"}`, engine.ProcessStatusCompleted, ""},
		{"terminated", http.StatusNotFound, `{"id":"p1","endTime":"2026-03-01T11:00:00.000+0000","deleteReason":"withdrawn"}`, engine.ProcessStatusTerminated, ""},
		{"unknown", http.StatusNotFound, "", "", faults.CodeProcessNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/flowable-rest/service/runtime/process-instances/p1":
					w.WriteHeader(tt.runtime)
					if tt.runtime == http.StatusOK {
						_, _ = w.Write([]byte(`{"id":"p1"}`))
					}
				case "/flowable-rest/service/history/historic-process-instances/p1":
					if tt.history == "" {
						w.WriteHeader(http.StatusNotFound)
						return
					}
					_, _ = w.Write([]byte(tt.history))
				default:
					t.Errorf("unexpected path %s", r.URL.Path)
				}
			})

			got, err := e.GetProcessStatus(context.Background(), "p1")
			if tt.wantCode != "" {
				if !faults.HasCode(err, tt.wantCode) {
					t.Fatalf("expected %s, got %v", tt.wantCode, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("status = %s, %v; want %s", got, err, tt.want)
			}
		})
	}
}

func TestGetProcessHistory(t *testing.T) {
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/flowable-rest/service/history/historic-process-instances/p1":
			_, _ = w.Write([]byte(`{"id":"p1","processDefinitionId":"loan:1:7","startTime":"2026-03-01T10:00:00.000+0000","endTime":"2026-03-01T10:00:05.000+0000","durationInMillis":5000}`))
		case "/flowable-rest/service/history/historic-variable-instances":
			if r.URL.Query().Get("processInstanceId") != "p1" {
				t.Errorf("missing instance filter")
			}
			_, _ = w.Write([]byte(`{"data":[{"variable":{"name":"approved","type":"boolean","value":true}}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	h, err := e.GetProcessHistory(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Instance.Outcome != engine.OutcomeCompleted || h.Instance.Duration != 5*time.Second {
		t.Errorf("unexpected instance %+v", h.Instance)
	}
	if h.Variables["approved"] != true {
		t.Errorf("unexpected variables %v", h.Variables)
	}
}

func TestTerminateProcess(t *testing.T) {
	var reason string
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("unexpected method %s", r.Method)
		}
		reason = r.URL.Query().Get("deleteReason")
		w.WriteHeader(http.StatusNoContent)
	})

	if err := e.TerminateProcess(context.Background(), "p1", "customer withdrew"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reason != "customer withdrew" {
		t.Errorf("deleteReason = %q", reason)
	}
}

func TestTerminateProcess_AlreadyFinished(t *testing.T) {
	e := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"id":"p1","endTime":"2026-03-01T11:00:00.000+0000"}`))
	})

	err := e.TerminateProcess(context.Background(), "p1", "")
	if !faults.HasCode(err, faults.CodeInvalidProcessState) {
		t.Fatalf("expected invalid process state, got %v", err)
	}
}

func TestTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{`"2026-03-01T10:17:43.902+0000"`, time.Date(2026, 3, 1, 10, 17, 43, 902000000, time.UTC)},
		{`"2026-03-01T12:17:43+0200"`, time.Date(2026, 3, 1, 10, 17, 43, 0, time.UTC)},
		{`"2026-03-01T10:17:43Z"`, time.Date(2026, 3, 1, 10, 17, 43, 0, time.UTC)},
		{`null`, time.Time{}},
	}
	for _, tt := range tests {
		var ts Timestamp
		if err := json.Unmarshal([]byte(tt.in), &ts); err != nil {
			t.Errorf("%s: %v", tt.in, err)
			continue
		}
		if !ts.Equal(tt.want) {
			t.Errorf("%s: got %v, want %v", tt.in, ts.Time, tt.want)
		}
	}

	var ts Timestamp
	if err := json.Unmarshal([]byte(`"yesterday"`), &ts); err == nil {
		t.Error("expected error for garbage timestamp")
	}
}
