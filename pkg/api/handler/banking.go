package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/procflow/procflow/pkg/api/middleware"
	"github.com/procflow/procflow/pkg/banking"
)

// LoginResponse is returned after a successful login. The session key
// itself is never echoed back.
type LoginResponse struct {
	Username  string `json:"username"`
	TenantID  string `json:"tenantId,omitempty"`
	IssuedAt  string `json:"issuedAt"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

// LoanCommandRequest is the body of approve, disburse and reject calls.
type LoanCommandRequest struct {
	Date       string  `json:"date"`
	Amount     float64 `json:"amount,omitempty"`
	Note       string  `json:"note,omitempty"`
	DateFormat string  `json:"dateFormat,omitempty"`
	Locale     string  `json:"locale,omitempty"`
}

func (r LoanCommandRequest) command() banking.LoanCommand {
	return banking.LoanCommand{
		Date:       r.Date,
		Amount:     r.Amount,
		Note:       r.Note,
		DateFormat: r.DateFormat,
		Locale:     r.Locale,
	}
}

// BankingHandler serves authentication and the core-banking operations.
type BankingHandler struct {
	facade Facade
}

// NewBankingHandler creates a BankingHandler.
func NewBankingHandler(facade Facade) *BankingHandler {
	return &BankingHandler{facade: facade}
}

// Login exchanges credentials for a session.
// POST /api/v1/auth/login
func (h *BankingHandler) Login(c *gin.Context) {
	var creds banking.Credentials
	if err := bindJSON(c, banking.OpAuthenticate, &creds); err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	cred, err := h.facade.Login(c.Request.Context(), creds)
	if err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}

	resp := LoginResponse{
		Username: cred.Username,
		TenantID: cred.TenantID,
		IssuedAt: cred.IssuedAt.Format(timeLayout),
	}
	if !cred.ExpiresAt.IsZero() {
		resp.ExpiresAt = cred.ExpiresAt.Format(timeLayout)
	}
	c.JSON(http.StatusOK, resp)
}

// Logout drops the session.
// POST /api/v1/auth/logout
func (h *BankingHandler) Logout(c *gin.Context) {
	h.facade.Logout(c.Request.Context())
	c.Status(http.StatusNoContent)
}

// CreateClient registers a client.
// POST /api/v1/clients
func (h *BankingHandler) CreateClient(c *gin.Context) {
	if !admit(c, h.facade, banking.OpCreateClient) {
		return
	}
	var req banking.CreateClientRequest
	if err := bindJSON(c, banking.OpCreateClient, &req); err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	res, err := h.facade.CreateClient(c.Request.Context(), req)
	respond(c, http.StatusCreated, res, err)
}

// GetClient fetches a client by id.
// GET /api/v1/clients/:id
func (h *BankingHandler) GetClient(c *gin.Context) {
	if !admit(c, h.facade, banking.OpGetClient) {
		return
	}
	id, err := int64Param(c, banking.OpGetClient, "id")
	if err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	acct, err := h.facade.GetClient(c.Request.Context(), id)
	respond(c, http.StatusOK, acct, err)
}

// FindClient fetches a client by external id.
// GET /api/v1/clients?externalId=
func (h *BankingHandler) FindClient(c *gin.Context) {
	acct, err := h.facade.GetClientByExternalID(c.Request.Context(), externalID(c))
	respond(c, http.StatusOK, acct, err)
}

// UpdateClient changes client fields.
// PUT /api/v1/clients/:id
func (h *BankingHandler) UpdateClient(c *gin.Context) {
	if !admit(c, h.facade, banking.OpUpdateClient) {
		return
	}
	id, err := int64Param(c, banking.OpUpdateClient, "id")
	if err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	var req banking.UpdateClientRequest
	if err := bindJSON(c, banking.OpUpdateClient, &req); err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	res, err := h.facade.UpdateClient(c.Request.Context(), id, req)
	respond(c, http.StatusOK, res, err)
}

// ActivateClient activates a pending client.
// POST /api/v1/clients/:id/activate
func (h *BankingHandler) ActivateClient(c *gin.Context) {
	if !admit(c, h.facade, banking.OpActivateClient) {
		return
	}
	id, err := int64Param(c, banking.OpActivateClient, "id")
	if err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	var req banking.ActivateClientRequest
	if err := bindJSON(c, banking.OpActivateClient, &req); err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	res, err := h.facade.ActivateClient(c.Request.Context(), id, req)
	respond(c, http.StatusOK, res, err)
}

// CreateLoan submits a loan application.
// POST /api/v1/loans
func (h *BankingHandler) CreateLoan(c *gin.Context) {
	if !admit(c, h.facade, banking.OpCreateLoan) {
		return
	}
	var req banking.CreateLoanRequest
	if err := bindJSON(c, banking.OpCreateLoan, &req); err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	res, err := h.facade.CreateLoan(c.Request.Context(), req)
	respond(c, http.StatusCreated, res, err)
}

// GetLoan fetches a loan by id.
// GET /api/v1/loans/:id
func (h *BankingHandler) GetLoan(c *gin.Context) {
	if !admit(c, h.facade, banking.OpGetLoan) {
		return
	}
	id, err := int64Param(c, banking.OpGetLoan, "id")
	if err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	loan, err := h.facade.GetLoan(c.Request.Context(), id)
	respond(c, http.StatusOK, loan, err)
}

// FindLoan fetches a loan by external id.
// GET /api/v1/loans?externalId=
func (h *BankingHandler) FindLoan(c *gin.Context) {
	loan, err := h.facade.GetLoanByExternalID(c.Request.Context(), externalID(c))
	respond(c, http.StatusOK, loan, err)
}

// UpdateLoan modifies a pending loan application.
// PUT /api/v1/loans/:id
func (h *BankingHandler) UpdateLoan(c *gin.Context) {
	if !admit(c, h.facade, banking.OpUpdateLoan) {
		return
	}
	id, err := int64Param(c, banking.OpUpdateLoan, "id")
	if err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	var req banking.UpdateLoanRequest
	if err := bindJSON(c, banking.OpUpdateLoan, &req); err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	res, err := h.facade.UpdateLoan(c.Request.Context(), id, req)
	respond(c, http.StatusOK, res, err)
}

// LoanCommand returns a handler applying one loan state change.
// POST /api/v1/loans/:id/{approve,disburse,reject}
func (h *BankingHandler) LoanCommand(op string) gin.HandlerFunc {
	var apply func(*gin.Context, int64, banking.LoanCommand) (*banking.CommandResult, error)
	switch op {
	case banking.OpApproveLoan:
		apply = func(c *gin.Context, id int64, cmd banking.LoanCommand) (*banking.CommandResult, error) {
			return h.facade.ApproveLoan(c.Request.Context(), id, cmd)
		}
	case banking.OpDisburseLoan:
		apply = func(c *gin.Context, id int64, cmd banking.LoanCommand) (*banking.CommandResult, error) {
			return h.facade.DisburseLoan(c.Request.Context(), id, cmd)
		}
	case banking.OpRejectLoan:
		apply = func(c *gin.Context, id int64, cmd banking.LoanCommand) (*banking.CommandResult, error) {
			return h.facade.RejectLoan(c.Request.Context(), id, cmd)
		}
	default:
		panic("handler: unknown loan command " + op)
	}

	return func(c *gin.Context) {
		if !admit(c, h.facade, op) {
			return
		}
		id, err := int64Param(c, op, "id")
		if err != nil {
			middleware.AbortWithProblem(c, err)
			return
		}
		var req LoanCommandRequest
		if err := bindJSON(c, op, &req); err != nil {
			middleware.AbortWithProblem(c, err)
			return
		}
		res, err := apply(c, id, req.command())
		respond(c, http.StatusOK, res, err)
	}
}

const timeLayout = time.RFC3339

func externalID(c *gin.Context) string {
	return strings.TrimSpace(c.Query("externalId"))
}

func respond(c *gin.Context, status int, body interface{}, err error) {
	if err != nil {
		middleware.AbortWithProblem(c, err)
		return
	}
	c.JSON(status, body)
}
