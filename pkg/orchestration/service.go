// Package orchestration is the single entry point callers use to run
// business processes. Every operation passes the authentication gate, then
// its precondition check, and only then reaches the process engine or the
// core-banking API.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"

	"github.com/procflow/procflow/pkg/auth"
	"github.com/procflow/procflow/pkg/banking"
	"github.com/procflow/procflow/pkg/bridge"
	"github.com/procflow/procflow/pkg/engine"
	"github.com/procflow/procflow/pkg/faults"
	"github.com/procflow/procflow/pkg/telemetry"
)

// BankingClient is the core-banking API as seen by the facade.
// *banking.Client satisfies it.
type BankingClient interface {
	TenantID() string
	Authenticate(creds banking.Credentials) bridge.Single[*banking.AuthResult]
	CreateClient(req banking.CreateClientRequest) bridge.Single[*banking.CommandResult]
	GetClient(id int64) bridge.Single[*banking.ClientAccount]
	GetClientByExternalID(externalID string) bridge.Single[*banking.ClientAccount]
	UpdateClient(id int64, req banking.UpdateClientRequest) bridge.Single[*banking.CommandResult]
	ActivateClient(id int64, req banking.ActivateClientRequest) bridge.Single[*banking.CommandResult]
	CreateLoan(req banking.CreateLoanRequest) bridge.Single[*banking.CommandResult]
	GetLoan(id int64) bridge.Single[*banking.LoanAccount]
	GetLoanByExternalID(externalID string) bridge.Single[*banking.LoanAccount]
	UpdateLoan(id int64, req banking.UpdateLoanRequest) bridge.Single[*banking.CommandResult]
	ApproveLoan(id int64, cmd banking.LoanCommand) bridge.Single[*banking.CommandResult]
	DisburseLoan(id int64, cmd banking.LoanCommand) bridge.Single[*banking.CommandResult]
	RejectLoan(id int64, cmd banking.LoanCommand) bridge.Single[*banking.CommandResult]
}

var _ BankingClient = (*banking.Client)(nil)

// Options configures a Service.
type Options struct {
	// Engine is the selected process engine. Required.
	Engine engine.Engine

	// Banking is the core-banking client. Banking operations fail with a
	// configuration fault when it is nil.
	Banking BankingClient

	// Tokens holds the current credential. A fresh holder is used when nil.
	Tokens *auth.TokenHolder

	// AuthRequired gates every operation except Login and Logout on a valid
	// credential.
	AuthRequired bool

	// Bridge bounds the wait on banking calls. bridge.New() when nil.
	Bridge *bridge.Bridge

	// Telemetry instruments every operation. A no-op instance when nil.
	Telemetry *telemetry.Telemetry
}

// Service is the orchestration facade. It is safe for concurrent use.
type Service struct {
	engine       engine.Engine
	banking      BankingClient
	tokens       *auth.TokenHolder
	authRequired bool
	bridge       *bridge.Bridge
	tel          *telemetry.Telemetry
	validate     *validator.Validate
	logger       *telemetry.Logger
}

// New creates a Service.
func New(opts Options) (*Service, error) {
	if opts.Engine == nil {
		return nil, faults.Configuration("orchestration requires a process engine")
	}
	if opts.Tokens == nil {
		opts.Tokens = auth.NewTokenHolder()
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.NewNopTelemetry()
	}
	if opts.Bridge == nil {
		opts.Bridge = bridge.New(
			bridge.WithObserver(opts.Telemetry.Metrics),
			bridge.WithLogger(opts.Telemetry.Logger.NewComponentLogger("bridge")),
		)
	}

	return &Service{
		engine:       opts.Engine,
		banking:      opts.Banking,
		tokens:       opts.Tokens,
		authRequired: opts.AuthRequired,
		bridge:       opts.Bridge,
		tel:          opts.Telemetry,
		validate:     validator.New(),
		logger:       opts.Telemetry.Logger.NewComponentLogger("orchestration"),
	}, nil
}

// EngineType returns the type tag of the engine in use.
func (s *Service) EngineType() string {
	return s.engine.Type()
}

// Authenticated reports whether a valid credential is currently held.
func (s *Service) Authenticated() bool {
	return s.tokens.Valid()
}

// CheckAccess applies the authentication gate of op on its own, for
// callers that parse input before invoking the operation. A refusal is
// recorded like any other failed call.
func (s *Service) CheckAccess(op string) error {
	if err := s.guard(op); err != nil {
		s.recordFault(s.logger, op, "", err)
		return err
	}
	return nil
}

// guard rejects the call when authentication is required and no valid
// credential is held.
func (s *Service) guard(op string) error {
	if s.authRequired && !s.tokens.Valid() {
		return faults.AuthenticationRequired(op)
	}
	return nil
}

// invoke runs fn as operation op: gate first, then instrumentation around
// fn, which performs the precondition check and the delegation.
func invoke[T any](ctx context.Context, s *Service, op, resourceID string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := s.guard(op); err != nil {
		s.recordFault(s.logger, op, resourceID, err)
		return zero, err
	}

	ic := telemetry.StartOperation(s.tel.WithContext(ctx), op,
		telemetry.AttrResourceID.String(resourceID),
		telemetry.AttrEngineType.String(s.engine.Type()),
	)

	v, err := fn(ic.Ctx)
	if err != nil {
		err = withContext(err, op, resourceID)
		s.recordFault(ic.Logger, op, resourceID, err)
		if ic.Span != nil {
			ic.Span.SetAttributes(faultAttrs(err)...)
		}
		ic.End(err)
		return zero, err
	}

	ic.End(nil)
	ic.Logger.WithResourceID(resourceID).Debug("operation completed")
	return v, nil
}

// invokeEngine is invoke for operations delegated to the process engine.
// fn runs inside an engine span tagged with the engine type.
func invokeEngine[T any](ctx context.Context, s *Service, op, resourceID string, fn func(ctx context.Context) (T, error)) (T, error) {
	return invoke(ctx, s, op, resourceID, func(ctx context.Context) (T, error) {
		ctx, span := s.tel.Tracer.StartEngineSpan(ctx, s.engine.Type(), op)
		defer span.End()

		v, err := fn(ctx)
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.RecordSuccess(span)
		}
		return v, err
	})
}

// execEngine is invokeEngine for operations without a result.
func execEngine(ctx context.Context, s *Service, op, resourceID string, fn func(ctx context.Context) error) error {
	_, err := invokeEngine(ctx, s, op, resourceID, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// withContext fills operation and resource context on err. Faults keep
// their kind and code; other errors become unclassified faults.
func withContext(err error, op, resourceID string) error {
	return faults.From(err).WithContext(op, resourceID)
}

func faultAttrs(err error) []attribute.KeyValue {
	f := faults.From(err)
	attrs := []attribute.KeyValue{
		telemetry.AttrFaultKind.String(string(f.Kind)),
		telemetry.AttrFaultStatus.String(string(faults.StatusOf(err))),
	}
	if f.Code != "" {
		attrs = append(attrs, telemetry.AttrFaultCode.String(string(f.Code)))
	}
	return attrs
}

func (s *Service) recordFault(logger *telemetry.Logger, op, resourceID string, err error) {
	f := faults.From(err)
	s.tel.Metrics.RecordFault(string(f.Kind), string(f.Code))
	_ = s.tel.Events.PublishFault(op, string(f.Kind), resourceID, f.Message)

	l := logger.WithOperation(op).WithResourceID(resourceID).WithError(err)
	if f.Kind == faults.KindUnclassified || faults.StatusOf(err) == faults.StatusInternalError {
		l.Error("operation failed")
		return
	}
	l.Warn("operation failed")
}

// requireID checks that an identifier argument is present.
func (s *Service) requireID(name, value string) error {
	if err := s.validate.Var(strings.TrimSpace(value), "required"); err != nil {
		return faults.Validationf("%s is required", name)
	}
	return nil
}

// requirePositive checks that a numeric identifier is positive.
func (s *Service) requirePositive(name string, value int64) error {
	if err := s.validate.Var(value, "gt=0"); err != nil {
		return faults.Validationf("%s must be positive, got %d", name, value)
	}
	return nil
}

// checkStruct validates a request against its struct tags.
func (s *Service) checkStruct(req interface{}) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return faults.Validation(err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
		if fe.Tag() == "required" {
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %q constraint", fe.Field(), fe.Tag()))
	}
	return faults.Validation(strings.Join(msgs, "; ")).WithDetail("fields", fields)
}

func checkVariables(vars engine.ProcessVariables) error {
	if err := vars.Validate(); err != nil {
		return faults.Validation(err.Error())
	}
	return nil
}

func (s *Service) bank() (BankingClient, error) {
	if s.banking == nil {
		return nil, faults.Configuration("core-banking client is not configured")
	}
	return s.banking, nil
}
