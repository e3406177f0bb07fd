package banking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/procflow/procflow/pkg/bridge"
	"github.com/procflow/procflow/pkg/faults"
)

type staticToken string

func (s staticToken) Token() (string, bool) { return string(s), s != "" }

func newTestClient(t *testing.T, h http.Handler, tokens TokenSource) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL + "/fineract-provider/api/v1", TenantID: "default", Tokens: tokens})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{})
	if !faults.IsKind(err, faults.KindConfiguration) {
		t.Fatalf("expected configuration fault, got %v", err)
	}
}

func TestGetClient_NotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fineract-provider/api/v1/clients/123" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("Not Found"))
	}), staticToken("tok"))

	_, err := bridge.Await(context.Background(), bridge.New(), c.GetClient(123), OpGetClient, "123")
	f := faults.From(err)
	if f.Kind != faults.KindRemoteAPI {
		t.Fatalf("expected remote API fault, got %v", err)
	}
	if f.StatusCode != 404 || f.Operation != OpGetClient || f.ResourceID != "123" || f.Body != "Not Found" {
		t.Errorf("unexpected fault %+v", f)
	}
	if faults.StatusOf(err) != faults.StatusNotFound {
		t.Errorf("expected not found status")
	}
}

func TestGetClient_SendsTenantAndBearer(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get(TenantHeader); got != "default" {
			t.Errorf("tenant header = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization header = %q", got)
		}
		_ = json.NewEncoder(w).Encode(ClientAccount{ID: 7, DisplayName: "Ada Lovelace", Active: true})
	}), staticToken("tok"))

	got, err := bridge.Await(context.Background(), bridge.New(), c.GetClient(7), OpGetClient, "7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != 7 || got.DisplayName != "Ada Lovelace" || !got.Active {
		t.Errorf("unexpected client %+v", got)
	}
}

func TestAuthenticate_NoBearer(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/fineract-provider/api/v1/authentication" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("authentication must not send a bearer token")
		}
		var creds Credentials
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds.Username != "mifos" || creds.Password != "password" {
			t.Errorf("unexpected credentials %+v", creds)
		}
		_, _ = w.Write([]byte(`{"username":"mifos","base64EncodedAuthenticationKey":"bWlmb3M6cGFzc3dvcmQ=","authenticated":true}`))
	}), staticToken("stale"))

	res, err := bridge.Await(context.Background(), bridge.New(),
		c.Authenticate(Credentials{Username: "mifos", Password: "password"}), OpAuthenticate, "mifos")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Authenticated || res.Key != "bWlmb3M6cGFzc3dvcmQ=" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestLoanCommands(t *testing.T) {
	tests := []struct {
		name      string
		run       func(c *Client) bridge.Single[*CommandResult]
		command   string
		dateField string
	}{
		{"approve", func(c *Client) bridge.Single[*CommandResult] {
			return c.ApproveLoan(5, LoanCommand{Date: "2026-01-02", Amount: 1000})
		}, "approve", "approvedOnDate"},
		{"disburse", func(c *Client) bridge.Single[*CommandResult] {
			return c.DisburseLoan(5, LoanCommand{Date: "2026-01-03"})
		}, "disburse", "actualDisbursementDate"},
		{"reject", func(c *Client) bridge.Single[*CommandResult] {
			return c.RejectLoan(5, LoanCommand{Date: "2026-01-04", Note: "insufficient income"})
		}, "reject", "rejectedOnDate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/fineract-provider/api/v1/loans/5" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				if got := r.URL.Query().Get("command"); got != tt.command {
					t.Errorf("command = %q, want %q", got, tt.command)
				}
				var body map[string]interface{}
				_ = json.NewDecoder(r.Body).Decode(&body)
				if body[tt.dateField] == nil || body["dateFormat"] != DefaultDateFormat || body["locale"] != DefaultLocale {
					t.Errorf("unexpected body %v", body)
				}
				_, _ = w.Write([]byte(`{"loanId":5,"resourceId":5}`))
			}), staticToken("tok"))

			res, err := bridge.Await(context.Background(), bridge.New(), tt.run(c), "LOAN", "5")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.ResourceID != 5 {
				t.Errorf("unexpected result %+v", res)
			}
		})
	}
}

func TestCreateLoan_Defaults(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["loanType"] != "individual" || body["locale"] != "en" {
			t.Errorf("defaults missing in %v", body)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"clientId":1,"loanId":9,"resourceId":9}`))
	}), staticToken("tok"))

	res, err := bridge.Await(context.Background(), bridge.New(), c.CreateLoan(CreateLoanRequest{
		ClientID: 1, ProductID: 1, Principal: 1000, LoanTermFrequency: 12, NumberOfRepayments: 12,
		RepaymentEvery: 1, RepaymentFrequencyType: 2, ExpectedDisbursementDate: "2026-01-01",
		SubmittedOnDate: "2026-01-01",
	}), OpCreateLoan, "")
	if err != nil || res.LoanID != 9 {
		t.Fatalf("unexpected %+v %v", res, err)
	}
}

func TestTimeoutCancelsRequest(t *testing.T) {
	cancelled := make(chan struct{})
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		close(cancelled)
	}), staticToken("tok"))

	_, err := bridge.AwaitWithin(context.Background(), bridge.New(), c.GetLoan(1), OpGetLoan, "1", 30*time.Millisecond)
	if !faults.IsKind(err, faults.KindTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("pending request was not aborted")
	}
}

func TestRequestValidation_Empty(t *testing.T) {
	if !(UpdateClientRequest{}).IsEmpty() {
		t.Error("zero update should be empty")
	}
	if !(UpdateLoanRequest{Locale: "en"}).IsEmpty() {
		t.Error("formatting fields alone do not make an update")
	}
	if (UpdateLoanRequest{Principal: 10}).IsEmpty() {
		t.Error("principal change is not empty")
	}
}
