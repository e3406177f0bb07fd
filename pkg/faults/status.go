package faults

import "net/http"

// Status is the externally visible outcome of a fault.
type Status string

const (
	StatusBadRequest    Status = "bad_request"
	StatusUnauthorized  Status = "unauthorized"
	StatusNotFound      Status = "not_found"
	StatusConflict      Status = "conflict"
	StatusInternalError Status = "internal_error"
)

// HTTPCode returns the HTTP status code for the status.
func (s Status) HTTPCode() int {
	switch s {
	case StatusBadRequest:
		return http.StatusBadRequest
	case StatusUnauthorized:
		return http.StatusUnauthorized
	case StatusNotFound:
		return http.StatusNotFound
	case StatusConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Title returns the short human title for the status.
func (s Status) Title() string {
	switch s {
	case StatusBadRequest:
		return "Bad Request"
	case StatusUnauthorized:
		return "Unauthorized"
	case StatusNotFound:
		return "Not Found"
	case StatusConflict:
		return "Conflict"
	default:
		return "Internal Server Error"
	}
}

// kindStatus maps kinds that do not depend on an embedded code.
var kindStatus = map[Kind]Status{
	KindValidation:             StatusBadRequest,
	KindAuthenticationRequired: StatusUnauthorized,
	KindTimeout:                StatusInternalError,
	KindConfiguration:          StatusInternalError,
	KindUnclassified:           StatusInternalError,
}

// StatusOf maps err to its externally visible status. The mapping is total:
// nil, unknown kinds and unknown codes all yield StatusInternalError, never a
// success.
func StatusOf(err error) Status {
	f := From(err)
	if f == nil {
		return StatusInternalError
	}

	switch f.Kind {
	case KindEngine:
		return engineStatus(f.Code)
	case KindRemoteAPI:
		return remoteStatus(f.StatusCode)
	}

	if s, ok := kindStatus[f.Kind]; ok {
		return s
	}
	return StatusInternalError
}

func engineStatus(code EngineCode) Status {
	switch {
	case code.IsNotFound():
		return StatusNotFound
	case code.IsInvalidState():
		return StatusConflict
	default:
		return StatusInternalError
	}
}

func remoteStatus(code int) Status {
	switch code {
	case http.StatusNotFound:
		return StatusNotFound
	case http.StatusConflict:
		return StatusConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return StatusBadRequest
	case http.StatusUnauthorized:
		return StatusUnauthorized
	default:
		return StatusInternalError
	}
}
