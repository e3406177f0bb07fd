package engine

import (
	"encoding/json"
	"fmt"
)

// ProcessStatus represents the lifecycle status of a process instance.
type ProcessStatus string

const (
	// ProcessStatusActive indicates the instance is still running.
	ProcessStatusActive ProcessStatus = "active"

	// ProcessStatusCompleted indicates the instance reached its end event.
	ProcessStatusCompleted ProcessStatus = "completed"

	// ProcessStatusTerminated indicates the instance was stopped before completion.
	ProcessStatusTerminated ProcessStatus = "terminated"
)

// IsTerminal returns true if the status represents a final state.
func (s ProcessStatus) IsTerminal() bool {
	return s == ProcessStatusCompleted || s == ProcessStatusTerminated
}

// Validate checks if the process status is valid.
func (s ProcessStatus) Validate() error {
	switch s {
	case ProcessStatusActive, ProcessStatusCompleted, ProcessStatusTerminated:
		return nil
	default:
		return fmt.Errorf("invalid process status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s ProcessStatus) MarshalJSON() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *ProcessStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ProcessStatus(str)
	return s.Validate()
}

// ProcessOutcome is how a finished process instance ended.
type ProcessOutcome string

const (
	// OutcomeCompleted indicates the instance reached its end event.
	OutcomeCompleted ProcessOutcome = "completed"

	// OutcomeTerminated indicates the instance was terminated.
	OutcomeTerminated ProcessOutcome = "terminated"
)

// Validate checks if the outcome is valid.
func (o ProcessOutcome) Validate() error {
	switch o {
	case OutcomeCompleted, OutcomeTerminated:
		return nil
	default:
		return fmt.Errorf("invalid process outcome: %s", o)
	}
}

// Status returns the terminal process status matching the outcome.
func (o ProcessOutcome) Status() ProcessStatus {
	if o == OutcomeTerminated {
		return ProcessStatusTerminated
	}
	return ProcessStatusCompleted
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (o ProcessOutcome) MarshalJSON() ([]byte, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(string(o))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (o *ProcessOutcome) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*o = ProcessOutcome(str)
	return o.Validate()
}
