// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"

	"github.com/hylla/timelog/internal/app"
)

// ErrInvalidRequest reports malformed transport input such as a non-integer page bound.
var ErrInvalidRequest = errors.New("invalid request")

// ErrUnauthorized reports a caller identity that could not be established.
var ErrUnauthorized = errors.New("unauthorized")

// ErrServiceUnavailable reports an adapter built without a backing service.
var ErrServiceUnavailable = errors.New("service unavailable")

// Query error classes surfaced to HTTP and MCP callers.
var (
	ErrMissingParameter      = errors.New("missing parameter")
	ErrConflictingParameters = errors.New("conflicting parameters")
	ErrInvalidDate           = errors.New("invalid date")
	ErrNoMatchingPrincipal   = errors.New("no matching principal")
	ErrNoMatchingProject     = errors.New("no matching project")
	ErrSearchFailed          = errors.New("search failed")
	ErrStorageFailed         = errors.New("storage failed")
)

// Wire codes for the error envelope and MCP tool errors.
const (
	CodeInvalidRequest        = "invalid_request"
	CodeUnauthorized          = "unauthorized"
	CodeNotFound              = "not_found"
	CodeMissingParameter      = "missing_parameter"
	CodeConflictingParameters = "conflicting_parameters"
	CodeInvalidDate           = "invalid_date"
	CodeNoMatchingPrincipal   = "no_matching_principal"
	CodeNoMatchingProject     = "no_matching_project"
	CodeSearchFailed          = "search_failed"
	CodeStorageFailed         = "storage_failed"
	CodeServiceUnavailable    = "service_unavailable"
	CodeInternal              = "internal_error"
)

// FindWorklogsRequest carries range-mode query parameters.
type FindWorklogsRequest struct {
	Caller    string
	StartDate string
	EndDate   string
	User      string
	Group     string
	Project   string
	Fields    []string
}

// FindWorklogsByIssuesRequest carries aggregate-mode query parameters.
// Nil page bounds fall back to the service defaults.
type FindWorklogsByIssuesRequest struct {
	Caller     string
	StartDate  string
	EndDate    string
	User       string
	Group      string
	JQL        string
	StartAt    *int
	MaxResults *int
	Fields     []string
}

// WorklogQueryService exposes the three worklog queries to transports.
type WorklogQueryService interface {
	FindWorklogs(context.Context, FindWorklogsRequest) ([]app.WorklogRecord, error)
	FindUpdatedWorklogs(context.Context, FindWorklogsRequest) ([]app.WorklogRecord, error)
	FindWorklogsByIssues(context.Context, FindWorklogsByIssuesRequest) (app.IssueSearchPage, error)
}

// errorCodes lists sentinel-to-code pairs in match priority order.
var errorCodes = []struct {
	err  error
	code string
}{
	{ErrUnauthorized, CodeUnauthorized},
	{ErrInvalidRequest, CodeInvalidRequest},
	{ErrMissingParameter, CodeMissingParameter},
	{ErrConflictingParameters, CodeConflictingParameters},
	{ErrInvalidDate, CodeInvalidDate},
	{ErrNoMatchingPrincipal, CodeNoMatchingPrincipal},
	{ErrNoMatchingProject, CodeNoMatchingProject},
	{ErrSearchFailed, CodeSearchFailed},
	{ErrStorageFailed, CodeStorageFailed},
	{ErrServiceUnavailable, CodeServiceUnavailable},
}

// InvalidRequest reports malformed transport input with one caller-facing message.
func InvalidRequest(message string) error {
	return &app.QueryError{Kind: ErrInvalidRequest, Message: message}
}

// ErrorCode classifies err into one wire code.
func ErrorCode(err error) string {
	for _, candidate := range errorCodes {
		if errors.Is(err, candidate.err) {
			return candidate.code
		}
	}
	return CodeInternal
}

// ErrorMessage returns the caller-facing message carried by err.
// Query errors keep their exact message; other errors render as-is.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var qe *app.QueryError
	if errors.As(err, &qe) {
		return qe.Error()
	}
	return err.Error()
}
