package app

import "errors"

// ErrMissingParameter and related errors classify query failures.
var (
	ErrMissingParameter      = errors.New("missing parameter")
	ErrConflictingParameters = errors.New("conflicting parameters")
	ErrInvalidDateFormat     = errors.New("invalid date format")
	ErrNoMatchingPrincipal   = errors.New("no matching principal")
	ErrNoMatchingProject     = errors.New("no matching project")
	ErrSearchFailure         = errors.New("search failure")
	ErrStorageFailure        = errors.New("storage failure")
)

// QueryError carries the caller-facing message for one failed query.
type QueryError struct {
	Kind    error
	Message string
	Err     error
}

// Error returns the caller-facing message.
func (e *QueryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Kind != nil {
		return e.Kind.Error()
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "query failed"
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *QueryError) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func queryError(kind error, cause error, message string) *QueryError {
	return &QueryError{Kind: kind, Message: message, Err: cause}
}
