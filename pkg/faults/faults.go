// Package faults provides the unified failure taxonomy shared by the engine
// backends, the synchronous call bridge and the orchestration facade.
package faults

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a fault by its origin.
type Kind string

const (
	// KindValidation indicates malformed or missing caller input detected
	// before any remote or engine call was made.
	KindValidation Kind = "validation"

	// KindAuthenticationRequired indicates that no cached credential was
	// present when one was required.
	KindAuthenticationRequired Kind = "authentication_required"

	// KindRemoteAPI indicates a failed call to the core-banking API.
	KindRemoteAPI Kind = "remote_api"

	// KindEngine indicates a failure reported by the process engine.
	KindEngine Kind = "engine"

	// KindTimeout indicates that a bridged remote call did not signal within
	// its bound. Only the call bridge produces it.
	KindTimeout Kind = "timeout"

	// KindConfiguration indicates an unusable startup configuration.
	KindConfiguration Kind = "configuration"

	// KindUnclassified is the catch-all for anything else.
	KindUnclassified Kind = "unclassified"
)

// Kinds lists every defined fault kind.
var Kinds = []Kind{
	KindValidation,
	KindAuthenticationRequired,
	KindRemoteAPI,
	KindEngine,
	KindTimeout,
	KindConfiguration,
	KindUnclassified,
}

// Validate checks if the kind is one of the defined kinds.
func (k Kind) Validate() error {
	for _, known := range Kinds {
		if k == known {
			return nil
		}
	}
	return fmt.Errorf("invalid fault kind: %s", k)
}

// EngineCode is the closed set of codes carried by engine faults.
type EngineCode string

const (
	CodeProcessNotFound     EngineCode = "PROCESS_NOT_FOUND"
	CodeTaskNotFound        EngineCode = "TASK_NOT_FOUND"
	CodeDefinitionNotFound  EngineCode = "DEFINITION_NOT_FOUND"
	CodeDeploymentNotFound  EngineCode = "DEPLOYMENT_NOT_FOUND"
	CodeInvalidProcessState EngineCode = "INVALID_PROCESS_STATE"
	CodeInvalidTaskState    EngineCode = "INVALID_TASK_STATE"
	CodeEngineInternal      EngineCode = "ENGINE_INTERNAL_ERROR"
	CodeExecution           EngineCode = "EXECUTION_ERROR"
)

// EngineCodes lists every defined engine code.
var EngineCodes = []EngineCode{
	CodeProcessNotFound,
	CodeTaskNotFound,
	CodeDefinitionNotFound,
	CodeDeploymentNotFound,
	CodeInvalidProcessState,
	CodeInvalidTaskState,
	CodeEngineInternal,
	CodeExecution,
}

// IsNotFound returns true for the not-found codes.
func (c EngineCode) IsNotFound() bool {
	switch c {
	case CodeProcessNotFound, CodeTaskNotFound, CodeDefinitionNotFound, CodeDeploymentNotFound:
		return true
	}
	return false
}

// IsInvalidState returns true for the invalid-state codes.
func (c EngineCode) IsInvalidState() bool {
	return c == CodeInvalidProcessState || c == CodeInvalidTaskState
}

// Fault is a classified failure carrying enough context to be logged and
// translated into an externally visible status.
type Fault struct {
	// Kind is the fault classification.
	Kind Kind `json:"kind"`

	// Message is the human-readable fault message.
	Message string `json:"message"`

	// Code is the engine code; set only for engine faults.
	Code EngineCode `json:"code,omitempty"`

	// StatusCode is the HTTP-like status returned by the remote API; set
	// only for remote API faults. Zero means no response was received.
	StatusCode int `json:"status_code,omitempty"`

	// Operation is the operation being performed when the fault occurred.
	Operation string `json:"operation,omitempty"`

	// ResourceID is the identifier of the resource involved, if any.
	ResourceID string `json:"resource_id,omitempty"`

	// ProcessID is the process instance involved, if any.
	ProcessID string `json:"process_id,omitempty"`

	// TaskID is the task involved, if any.
	TaskID string `json:"task_id,omitempty"`

	// Body is the raw error body returned by the remote API.
	Body string `json:"body,omitempty"`

	// Timestamp is when the fault was constructed.
	Timestamp time.Time `json:"timestamp"`

	// Err is the underlying cause.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

func newFault(kind Kind, message string, err error) *Fault {
	return &Fault{
		Kind:      kind,
		Message:   message,
		Err:       err,
		Timestamp: time.Now().UTC(),
	}
}

// Error implements the error interface.
func (f *Fault) Error() string {
	msg := fmt.Sprintf("[%s] %s", f.Kind, f.Message)
	if f.Code != "" {
		msg = fmt.Sprintf("[%s/%s] %s", f.Kind, f.Code, f.Message)
	}
	if f.StatusCode != 0 {
		msg += fmt.Sprintf(" (status=%d)", f.StatusCode)
	}
	if f.Operation != "" && f.ResourceID != "" {
		msg += fmt.Sprintf(" (operation=%s, resource=%s)", f.Operation, f.ResourceID)
	} else if f.Operation != "" {
		msg += fmt.Sprintf(" (operation=%s)", f.Operation)
	} else if f.ResourceID != "" {
		msg += fmt.Sprintf(" (resource=%s)", f.ResourceID)
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (f *Fault) Unwrap() error {
	return f.Err
}

// Is implements equality checking for errors.Is. Two faults match when kind
// and code agree.
func (f *Fault) Is(target error) bool {
	t, ok := target.(*Fault)
	if !ok {
		return false
	}
	return f.Kind == t.Kind && f.Code == t.Code
}

// WithOperation adds operation context to a fault.
func (f *Fault) WithOperation(operation string) *Fault {
	f.Operation = operation
	return f
}

// WithResource adds resource context to a fault.
func (f *Fault) WithResource(resourceID string) *Fault {
	f.ResourceID = resourceID
	return f
}

// WithContext returns a copy of the fault with operation and resource filled
// in where they are still empty. The receiver is left untouched, so a fault
// value shared between calls never picks up the context of one of them.
func (f *Fault) WithContext(operation, resourceID string) *Fault {
	c := *f
	if c.Operation == "" {
		c.Operation = operation
	}
	if c.ResourceID == "" {
		c.ResourceID = resourceID
	}
	if f.Details != nil {
		c.Details = make(map[string]interface{}, len(f.Details))
		for k, v := range f.Details {
			c.Details[k] = v
		}
	}
	return &c
}

// WithProcess adds the process instance id to a fault.
func (f *Fault) WithProcess(processID string) *Fault {
	f.ProcessID = processID
	return f
}

// WithTask adds the task id to a fault.
func (f *Fault) WithTask(taskID string) *Fault {
	f.TaskID = taskID
	return f
}

// WithDetail adds a detail field to the fault context.
func (f *Fault) WithDetail(key string, value interface{}) *Fault {
	if f.Details == nil {
		f.Details = make(map[string]interface{})
	}
	f.Details[key] = value
	return f
}

// IsClientError reports whether a remote API fault was caused by the caller
// (4xx).
func (f *Fault) IsClientError() bool {
	return f.Kind == KindRemoteAPI && f.StatusCode >= 400 && f.StatusCode < 500
}

// IsServerError reports whether a remote API fault was caused by the server
// (5xx).
func (f *Fault) IsServerError() bool {
	return f.Kind == KindRemoteAPI && f.StatusCode >= 500 && f.StatusCode < 600
}

// Validation creates a validation fault.
func Validation(message string) *Fault {
	return newFault(KindValidation, message, nil)
}

// Validationf creates a validation fault with a formatted message.
func Validationf(format string, args ...interface{}) *Fault {
	return newFault(KindValidation, fmt.Sprintf(format, args...), nil)
}

// AuthenticationRequired creates an authentication-required fault for the
// given operation.
func AuthenticationRequired(operation string) *Fault {
	return newFault(KindAuthenticationRequired, "authentication required", nil).WithOperation(operation)
}

// RemoteAPI creates a remote API fault.
func RemoteAPI(statusCode int, operation, resourceID, body string, err error) *Fault {
	f := newFault(KindRemoteAPI, "remote API call failed", err)
	f.StatusCode = statusCode
	f.Operation = operation
	f.ResourceID = resourceID
	f.Body = body
	return f
}

// Engine creates an engine fault. Unknown codes are recorded as
// ENGINE_INTERNAL_ERROR.
func Engine(code EngineCode, message string, err error) *Fault {
	if !validCode(code) {
		code = CodeEngineInternal
	}
	f := newFault(KindEngine, message, err)
	f.Code = code
	return f
}

// Timeout creates a timeout fault.
func Timeout(operation, resourceID string, after time.Duration) *Fault {
	f := newFault(KindTimeout, fmt.Sprintf("no response within %s", after), nil)
	f.Operation = operation
	f.ResourceID = resourceID
	return f
}

// Configuration creates a configuration fault.
func Configuration(message string) *Fault {
	return newFault(KindConfiguration, message, nil)
}

// Unclassified wraps an error that matches no other kind.
func Unclassified(err error) *Fault {
	msg := "unexpected failure"
	if err == nil {
		err = errors.New(msg)
	}
	return newFault(KindUnclassified, msg, err)
}

// From classifies err. A fault anywhere in the chain is returned as is,
// anything else is reduced to an unclassified fault. From(nil) is nil.
func From(err error) *Fault {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return Unclassified(err)
}

// KindOf returns the kind of err, or KindUnclassified when err carries no
// fault.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindUnclassified
}

// IsKind reports whether err carries a fault of the given kind.
func IsKind(err error, kind Kind) bool {
	var f *Fault
	return errors.As(err, &f) && f.Kind == kind
}

// HasCode reports whether err carries an engine fault with the given code.
func HasCode(err error, code EngineCode) bool {
	var f *Fault
	return errors.As(err, &f) && f.Kind == KindEngine && f.Code == code
}

func validCode(code EngineCode) bool {
	for _, c := range EngineCodes {
		if c == code {
			return true
		}
	}
	return false
}
