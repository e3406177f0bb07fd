package orchestration

import (
	"context"
	"strconv"
	"time"

	"github.com/procflow/procflow/pkg/auth"
	"github.com/procflow/procflow/pkg/banking"
	"github.com/procflow/procflow/pkg/bridge"
	"github.com/procflow/procflow/pkg/faults"
	"github.com/procflow/procflow/pkg/telemetry"
)

// OpLogout drops the held credential.
const OpLogout = "LOGOUT"

// Login exchanges credentials with the core-banking API and stores the
// resulting credential. Login is never gated.
func (s *Service) Login(ctx context.Context, creds banking.Credentials) (*auth.Credential, error) {
	ic := s.startUngated(ctx, banking.OpAuthenticate, creds.Username)

	cred, err := func() (*auth.Credential, error) {
		if err := s.checkStruct(creds); err != nil {
			return nil, err
		}
		bank, err := s.bank()
		if err != nil {
			return nil, err
		}
		res, err := bridge.Await(ic.Ctx, s.bridge, bank.Authenticate(creds), banking.OpAuthenticate, creds.Username)
		if err != nil {
			return nil, err
		}
		if !res.Authenticated || res.Key == "" {
			return nil, faults.AuthenticationRequired(banking.OpAuthenticate).WithResource(creds.Username)
		}

		username := res.Username
		if username == "" {
			username = creds.Username
		}
		cred := auth.NewCredential(res.Key, username, bank.TenantID(), time.Now().UTC())
		s.tokens.Store(cred)
		return cred, nil
	}()
	if err != nil {
		err = withContext(err, banking.OpAuthenticate, creds.Username)
		s.recordFault(ic.Logger, banking.OpAuthenticate, creds.Username, err)
	} else {
		ic.Logger.WithField("username", cred.Username).Info("authenticated")
	}
	ic.End(err)
	return cred, err
}

// Logout drops the held credential.
func (s *Service) Logout(ctx context.Context) {
	ic := s.startUngated(ctx, OpLogout, "")
	s.tokens.Clear()
	ic.Logger.Info("credential cleared")
	ic.End(nil)
}

// CreateClient registers a client with the core-banking API.
func (s *Service) CreateClient(ctx context.Context, req banking.CreateClientRequest) (*banking.CommandResult, error) {
	return invoke(ctx, s, banking.OpCreateClient, req.ExternalID, func(ctx context.Context) (*banking.CommandResult, error) {
		if err := s.checkStruct(req); err != nil {
			return nil, err
		}
		return awaitBank(ctx, s, banking.OpCreateClient, req.ExternalID, func(b BankingClient) bridge.Single[*banking.CommandResult] {
			return b.CreateClient(req)
		})
	})
}

// GetClient fetches a client by id.
func (s *Service) GetClient(ctx context.Context, id int64) (*banking.ClientAccount, error) {
	rid := idString(id)
	return invoke(ctx, s, banking.OpGetClient, rid, func(ctx context.Context) (*banking.ClientAccount, error) {
		if err := s.requirePositive("client id", id); err != nil {
			return nil, err
		}
		return awaitBank(ctx, s, banking.OpGetClient, rid, func(b BankingClient) bridge.Single[*banking.ClientAccount] {
			return b.GetClient(id)
		})
	})
}

// GetClientByExternalID fetches a client by its external id.
func (s *Service) GetClientByExternalID(ctx context.Context, externalID string) (*banking.ClientAccount, error) {
	return invoke(ctx, s, banking.OpGetClientByExternalID, externalID, func(ctx context.Context) (*banking.ClientAccount, error) {
		if err := s.requireID("external id", externalID); err != nil {
			return nil, err
		}
		return awaitBank(ctx, s, banking.OpGetClientByExternalID, externalID, func(b BankingClient) bridge.Single[*banking.ClientAccount] {
			return b.GetClientByExternalID(externalID)
		})
	})
}

// UpdateClient changes client fields. An update without changes is rejected.
func (s *Service) UpdateClient(ctx context.Context, id int64, req banking.UpdateClientRequest) (*banking.CommandResult, error) {
	rid := idString(id)
	return invoke(ctx, s, banking.OpUpdateClient, rid, func(ctx context.Context) (*banking.CommandResult, error) {
		if err := s.requirePositive("client id", id); err != nil {
			return nil, err
		}
		if req.IsEmpty() {
			return nil, faults.Validation("client update contains no changes")
		}
		if err := s.checkStruct(req); err != nil {
			return nil, err
		}
		return awaitBank(ctx, s, banking.OpUpdateClient, rid, func(b BankingClient) bridge.Single[*banking.CommandResult] {
			return b.UpdateClient(id, req)
		})
	})
}

// ActivateClient activates a pending client.
func (s *Service) ActivateClient(ctx context.Context, id int64, req banking.ActivateClientRequest) (*banking.CommandResult, error) {
	rid := idString(id)
	return invoke(ctx, s, banking.OpActivateClient, rid, func(ctx context.Context) (*banking.CommandResult, error) {
		if err := s.requirePositive("client id", id); err != nil {
			return nil, err
		}
		if err := s.checkStruct(req); err != nil {
			return nil, err
		}
		return awaitBank(ctx, s, banking.OpActivateClient, rid, func(b BankingClient) bridge.Single[*banking.CommandResult] {
			return b.ActivateClient(id, req)
		})
	})
}

// CreateLoan submits a loan application.
func (s *Service) CreateLoan(ctx context.Context, req banking.CreateLoanRequest) (*banking.CommandResult, error) {
	rid := req.ExternalID
	return invoke(ctx, s, banking.OpCreateLoan, rid, func(ctx context.Context) (*banking.CommandResult, error) {
		if err := s.checkStruct(req); err != nil {
			return nil, err
		}
		return awaitBank(ctx, s, banking.OpCreateLoan, rid, func(b BankingClient) bridge.Single[*banking.CommandResult] {
			return b.CreateLoan(req)
		})
	})
}

// GetLoan fetches a loan by id.
func (s *Service) GetLoan(ctx context.Context, id int64) (*banking.LoanAccount, error) {
	rid := idString(id)
	return invoke(ctx, s, banking.OpGetLoan, rid, func(ctx context.Context) (*banking.LoanAccount, error) {
		if err := s.requirePositive("loan id", id); err != nil {
			return nil, err
		}
		return awaitBank(ctx, s, banking.OpGetLoan, rid, func(b BankingClient) bridge.Single[*banking.LoanAccount] {
			return b.GetLoan(id)
		})
	})
}

// GetLoanByExternalID fetches a loan by its external id.
func (s *Service) GetLoanByExternalID(ctx context.Context, externalID string) (*banking.LoanAccount, error) {
	return invoke(ctx, s, banking.OpGetLoanByExternalID, externalID, func(ctx context.Context) (*banking.LoanAccount, error) {
		if err := s.requireID("external id", externalID); err != nil {
			return nil, err
		}
		return awaitBank(ctx, s, banking.OpGetLoanByExternalID, externalID, func(b BankingClient) bridge.Single[*banking.LoanAccount] {
			return b.GetLoanByExternalID(externalID)
		})
	})
}

// UpdateLoan modifies a loan application. An update without changes is
// rejected.
func (s *Service) UpdateLoan(ctx context.Context, id int64, req banking.UpdateLoanRequest) (*banking.CommandResult, error) {
	rid := idString(id)
	return invoke(ctx, s, banking.OpUpdateLoan, rid, func(ctx context.Context) (*banking.CommandResult, error) {
		if err := s.requirePositive("loan id", id); err != nil {
			return nil, err
		}
		if req.IsEmpty() {
			return nil, faults.Validation("loan update contains no changes")
		}
		if err := s.checkStruct(req); err != nil {
			return nil, err
		}
		return awaitBank(ctx, s, banking.OpUpdateLoan, rid, func(b BankingClient) bridge.Single[*banking.CommandResult] {
			return b.UpdateLoan(id, req)
		})
	})
}

// ApproveLoan approves a submitted loan.
func (s *Service) ApproveLoan(ctx context.Context, id int64, cmd banking.LoanCommand) (*banking.CommandResult, error) {
	return s.loanCommand(ctx, banking.OpApproveLoan, id, cmd, func(b BankingClient) bridge.Single[*banking.CommandResult] {
		return b.ApproveLoan(id, cmd)
	})
}

// DisburseLoan disburses an approved loan.
func (s *Service) DisburseLoan(ctx context.Context, id int64, cmd banking.LoanCommand) (*banking.CommandResult, error) {
	return s.loanCommand(ctx, banking.OpDisburseLoan, id, cmd, func(b BankingClient) bridge.Single[*banking.CommandResult] {
		return b.DisburseLoan(id, cmd)
	})
}

// RejectLoan rejects a submitted loan.
func (s *Service) RejectLoan(ctx context.Context, id int64, cmd banking.LoanCommand) (*banking.CommandResult, error) {
	return s.loanCommand(ctx, banking.OpRejectLoan, id, cmd, func(b BankingClient) bridge.Single[*banking.CommandResult] {
		return b.RejectLoan(id, cmd)
	})
}

func (s *Service) loanCommand(ctx context.Context, op string, id int64, cmd banking.LoanCommand, call func(BankingClient) bridge.Single[*banking.CommandResult]) (*banking.CommandResult, error) {
	rid := idString(id)
	return invoke(ctx, s, op, rid, func(ctx context.Context) (*banking.CommandResult, error) {
		if err := s.requirePositive("loan id", id); err != nil {
			return nil, err
		}
		if err := s.checkStruct(cmd); err != nil {
			return nil, err
		}
		return awaitBank(ctx, s, op, rid, call)
	})
}

// awaitBank bridges one core-banking call.
func awaitBank[T any](ctx context.Context, s *Service, op, resourceID string, call func(BankingClient) bridge.Single[T]) (T, error) {
	var zero T
	bank, err := s.bank()
	if err != nil {
		return zero, err
	}
	return bridge.Await(ctx, s.bridge, call(bank), op, resourceID)
}

// startUngated opens an instrumented operation without the auth gate.
func (s *Service) startUngated(ctx context.Context, op, resourceID string) *telemetry.InstrumentedContext {
	return telemetry.StartOperation(s.tel.WithContext(ctx), op, telemetry.AttrResourceID.String(resourceID))
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
