// Package banking is a client for a Fineract-style core-banking REST API.
// Every call is returned as a bridge.Single so callers decide how long to
// wait for it.
package banking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/procflow/procflow/pkg/bridge"
	"github.com/procflow/procflow/pkg/faults"
	"github.com/procflow/procflow/pkg/telemetry"
)

// TenantHeader carries the tenant identifier on every request.
const TenantHeader = "Fineract-Platform-TenantId"

// maxErrorBody bounds how much of an error response is kept on a fault.
const maxErrorBody = 4096

// TokenSource yields the bearer token for authenticated calls.
// *auth.TokenHolder satisfies it.
type TokenSource interface {
	Token() (string, bool)
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	TenantID   string
	HTTPClient *http.Client
	Tokens     TokenSource
}

// Client talks to the core-banking API.
type Client struct {
	baseURL  *url.URL
	tenantID string
	http     *http.Client
	tokens   TokenSource
}

// NewClient creates a Client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, faults.Configuration("banking base URL is required")
	}
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, faults.Configuration(fmt.Sprintf("invalid banking base URL %q: %v", cfg.BaseURL, err))
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	tenant := cfg.TenantID
	if tenant == "" {
		tenant = "default"
	}
	return &Client{baseURL: u, tenantID: tenant, http: hc, tokens: cfg.Tokens}, nil
}

// TenantID returns the tenant the client sends on every request.
func (c *Client) TenantID() string {
	return c.tenantID
}

// Authenticate exchanges credentials for a session key.
func (c *Client) Authenticate(creds Credentials) bridge.Single[*AuthResult] {
	return call[AuthResult](c, OpAuthenticate, creds.Username, http.MethodPost, "authentication", nil, creds, false)
}

// CreateClient opens a client.
func (c *Client) CreateClient(req CreateClientRequest) bridge.Single[*CommandResult] {
	req.DateFormat, req.Locale = withDateDefaults(req.DateFormat, req.Locale)
	return call[CommandResult](c, OpCreateClient, req.ExternalID, http.MethodPost, "clients", nil, req, true)
}

// GetClient fetches a client by id.
func (c *Client) GetClient(id int64) bridge.Single[*ClientAccount] {
	rid := strconv.FormatInt(id, 10)
	return call[ClientAccount](c, OpGetClient, rid, http.MethodGet, "clients/"+rid, nil, nil, true)
}

// GetClientByExternalID fetches a client by external id.
func (c *Client) GetClientByExternalID(externalID string) bridge.Single[*ClientAccount] {
	return call[ClientAccount](c, OpGetClientByExternalID, externalID, http.MethodGet,
		"clients/external-id/"+url.PathEscape(externalID), nil, nil, true)
}

// UpdateClient changes client fields.
func (c *Client) UpdateClient(id int64, req UpdateClientRequest) bridge.Single[*CommandResult] {
	rid := strconv.FormatInt(id, 10)
	return call[CommandResult](c, OpUpdateClient, rid, http.MethodPut, "clients/"+rid, nil, req, true)
}

// ActivateClient activates a pending client.
func (c *Client) ActivateClient(id int64, req ActivateClientRequest) bridge.Single[*CommandResult] {
	req.DateFormat, req.Locale = withDateDefaults(req.DateFormat, req.Locale)
	rid := strconv.FormatInt(id, 10)
	return call[CommandResult](c, OpActivateClient, rid, http.MethodPost, "clients/"+rid,
		url.Values{"command": {"activate"}}, req, true)
}

// CreateLoan submits a loan application.
func (c *Client) CreateLoan(req CreateLoanRequest) bridge.Single[*CommandResult] {
	req.DateFormat, req.Locale = withDateDefaults(req.DateFormat, req.Locale)
	if req.LoanType == "" {
		req.LoanType = "individual"
	}
	return call[CommandResult](c, OpCreateLoan, req.ExternalID, http.MethodPost, "loans", nil, req, true)
}

// GetLoan fetches a loan by id.
func (c *Client) GetLoan(id int64) bridge.Single[*LoanAccount] {
	rid := strconv.FormatInt(id, 10)
	return call[LoanAccount](c, OpGetLoan, rid, http.MethodGet, "loans/"+rid, nil, nil, true)
}

// GetLoanByExternalID fetches a loan by external id.
func (c *Client) GetLoanByExternalID(externalID string) bridge.Single[*LoanAccount] {
	return call[LoanAccount](c, OpGetLoanByExternalID, externalID, http.MethodGet,
		"loans/external-id/"+url.PathEscape(externalID), nil, nil, true)
}

// UpdateLoan modifies a pending loan application.
func (c *Client) UpdateLoan(id int64, req UpdateLoanRequest) bridge.Single[*CommandResult] {
	req.DateFormat, req.Locale = withDateDefaults(req.DateFormat, req.Locale)
	rid := strconv.FormatInt(id, 10)
	return call[CommandResult](c, OpUpdateLoan, rid, http.MethodPut, "loans/"+rid, nil, req, true)
}

// ApproveLoan approves a pending loan.
func (c *Client) ApproveLoan(id int64, cmd LoanCommand) bridge.Single[*CommandResult] {
	body := loanCommandBody(cmd, "approvedOnDate", "approvedLoanAmount")
	return c.loanCommand(OpApproveLoan, id, "approve", body)
}

// DisburseLoan disburses an approved loan.
func (c *Client) DisburseLoan(id int64, cmd LoanCommand) bridge.Single[*CommandResult] {
	body := loanCommandBody(cmd, "actualDisbursementDate", "transactionAmount")
	return c.loanCommand(OpDisburseLoan, id, "disburse", body)
}

// RejectLoan rejects a pending loan.
func (c *Client) RejectLoan(id int64, cmd LoanCommand) bridge.Single[*CommandResult] {
	body := loanCommandBody(cmd, "rejectedOnDate", "")
	return c.loanCommand(OpRejectLoan, id, "reject", body)
}

func (c *Client) loanCommand(op string, id int64, command string, body map[string]interface{}) bridge.Single[*CommandResult] {
	rid := strconv.FormatInt(id, 10)
	return call[CommandResult](c, op, rid, http.MethodPost, "loans/"+rid,
		url.Values{"command": {command}}, body, true)
}

func loanCommandBody(cmd LoanCommand, dateField, amountField string) map[string]interface{} {
	dateFormat, locale := withDateDefaults(cmd.DateFormat, cmd.Locale)
	body := map[string]interface{}{
		dateField:    cmd.Date,
		"dateFormat": dateFormat,
		"locale":     locale,
	}
	if amountField != "" && cmd.Amount > 0 {
		body[amountField] = cmd.Amount
	}
	if cmd.Note != "" {
		body["note"] = cmd.Note
	}
	return body
}

func withDateDefaults(dateFormat, locale string) (string, string) {
	if dateFormat == "" {
		dateFormat = DefaultDateFormat
	}
	if locale == "" {
		locale = DefaultLocale
	}
	return dateFormat, locale
}

// call builds a Single that performs one HTTP exchange when subscribed.
// Disposing the subscription cancels the request.
func call[T any](c *Client, op, resourceID, method, path string, query url.Values, body interface{}, authenticated bool) bridge.Single[*T] {
	return bridge.FromFunc(func(ctx context.Context) (*T, error) {
		var out *T
		err := telemetry.RecordRemoteCall(ctx, op, resourceID, func(ctx context.Context) error {
			var err error
			out, err = do[T](ctx, c, op, resourceID, method, path, query, body, authenticated)
			return err
		})
		return out, err
	})
}

func do[T any](ctx context.Context, c *Client, op, resourceID, method, path string, query url.Values, body interface{}, authenticated bool) (*T, error) {
	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, faults.Validation(fmt.Sprintf("encode %s request: %v", op, err)).
				WithOperation(op).WithResource(resourceID)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, faults.RemoteAPI(0, op, resourceID, "", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(TenantHeader, c.tenantID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated && c.tokens != nil {
		if token, ok := c.tokens.Token(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, faults.RemoteAPI(0, op, resourceID, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, faults.RemoteAPI(resp.StatusCode, op, resourceID, string(raw), nil)
	}

	out := new(T)
	if resp.StatusCode == http.StatusNoContent {
		return out, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return nil, faults.RemoteAPI(resp.StatusCode, op, resourceID, "",
			fmt.Errorf("decode %s response: %w", op, err))
	}
	return out, nil
}
