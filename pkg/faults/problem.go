package faults

import (
	"fmt"
	"time"
)

// ProblemTypeBase prefixes every problem type identifier.
const ProblemTypeBase = "urn:procflow:problem:"

// Problem is the structured failure body returned to HTTP callers.
type Problem struct {
	Type       string                 `json:"type"`
	Title      string                 `json:"title"`
	Status     int                    `json:"status"`
	Detail     string                 `json:"detail"`
	Properties map[string]interface{} `json:"properties"`
}

// ContentType is the media type for problem responses.
const ContentType = "application/problem+json"

// NewProblem builds the problem body for err. Unclassified faults get a fixed
// detail so internal diagnostics never reach the caller.
func NewProblem(err error) Problem {
	f := From(err)
	if f == nil {
		f = Unclassified(nil)
	}
	status := StatusOf(f)

	p := Problem{
		Type:   ProblemTypeBase + string(f.Kind),
		Title:  status.Title(),
		Status: status.HTTPCode(),
		Detail: detail(f),
		Properties: map[string]interface{}{
			"timestamp": f.Timestamp.Format(time.RFC3339Nano),
			"operation": f.Operation,
		},
	}

	if f.ResourceID != "" {
		p.Properties["resourceId"] = f.ResourceID
	}
	if f.Code != "" {
		p.Properties["errorCode"] = string(f.Code)
	}
	if f.ProcessID != "" {
		p.Properties["processId"] = f.ProcessID
	}
	if f.TaskID != "" {
		p.Properties["taskId"] = f.TaskID
	}
	if f.Kind == KindRemoteAPI {
		if f.StatusCode != 0 {
			p.Properties["remoteStatus"] = f.StatusCode
		}
		if f.Body != "" {
			p.Properties["errorBody"] = f.Body
		}
	}

	return p
}

func detail(f *Fault) string {
	switch f.Kind {
	case KindUnclassified, KindConfiguration:
		return "An unexpected error occurred while processing the request."
	case KindRemoteAPI:
		if f.StatusCode == 0 {
			return fmt.Sprintf("Core banking call %s did not complete.", f.Operation)
		}
		return fmt.Sprintf("Core banking call %s failed with status %d.", f.Operation, f.StatusCode)
	case KindTimeout:
		return fmt.Sprintf("Core banking call %s timed out.", f.Operation)
	default:
		return f.Message
	}
}
