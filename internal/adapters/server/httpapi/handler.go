// Package httpapi provides the REST HTTP adapter for the worklog query surfaces.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hylla/timelog/internal/adapters/server/common"
)

// Handler serves the query routes mounted under the API endpoint.
type Handler struct {
	queries common.WorklogQueryService
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter over the worklog query service.
func NewHandler(queries common.WorklogQueryService) *Handler {
	return &Handler{queries: queries}
}

// ServeHTTP routes one API request to the matching query.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var serve func(http.ResponseWriter, *http.Request)
	switch normalizePath(r.URL.Path) {
	case "find/worklogs":
		serve = h.handleFindWorklogs
	case "find/updatedWorklogs":
		serve = h.handleFindUpdatedWorklogs
	case "find/worklogsByIssues":
		serve = h.handleFindWorklogsByIssues
	default:
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    common.CodeNotFound,
			Message: "endpoint not found",
		})
		return
	}
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	if h.queries == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    common.CodeServiceUnavailable,
			Message: "worklog query service is not configured",
		})
		return
	}
	serve(w, r)
}

// handleFindWorklogs serves GET `/find/worklogs`.
func (h *Handler) handleFindWorklogs(w http.ResponseWriter, r *http.Request) {
	records, err := h.queries.FindWorklogs(r.Context(), worklogsRequest(r))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleFindUpdatedWorklogs serves GET `/find/updatedWorklogs`.
func (h *Handler) handleFindUpdatedWorklogs(w http.ResponseWriter, r *http.Request) {
	records, err := h.queries.FindUpdatedWorklogs(r.Context(), worklogsRequest(r))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleFindWorklogsByIssues serves GET `/find/worklogsByIssues`.
func (h *Handler) handleFindWorklogsByIssues(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := common.FindWorklogsByIssuesRequest{
		Caller:    common.CallerFromContext(r.Context()),
		StartDate: query.Get("startDate"),
		EndDate:   query.Get("endDate"),
		User:      query.Get("user"),
		Group:     query.Get("group"),
		JQL:       query.Get("jql"),
		Fields:    query["fields"],
	}
	var err error
	if req.StartAt, req.MaxResults, err = pageBounds(query); err != nil {
		// Missing or conflicting parameters are reported ahead of malformed bounds.
		if reqErr := common.CheckByIssuesRequest(req); reqErr != nil {
			err = reqErr
		}
		writeErrorFrom(w, err)
		return
	}
	page, err := h.queries.FindWorklogsByIssues(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// worklogsRequest reads the range-mode parameters from one request.
func worklogsRequest(r *http.Request) common.FindWorklogsRequest {
	query := r.URL.Query()
	return common.FindWorklogsRequest{
		Caller:    common.CallerFromContext(r.Context()),
		StartDate: query.Get("startDate"),
		EndDate:   query.Get("endDate"),
		User:      query.Get("user"),
		Group:     query.Get("group"),
		Project:   query.Get("project"),
		Fields:    query["fields"],
	}
}

// pageBounds parses the optional startAt and maxResults parameters.
func pageBounds(query url.Values) (startAt, maxResults *int, err error) {
	if startAt, err = optionalInt(query, "startAt"); err != nil {
		return nil, nil, err
	}
	if maxResults, err = optionalInt(query, "maxResults"); err != nil {
		return nil, nil, err
	}
	return startAt, maxResults, nil
}

// optionalInt parses one optional integer query parameter. Absent or blank values yield nil.
func optionalInt(query url.Values, name string) (*int, error) {
	raw := strings.TrimSpace(query.Get(name))
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return nil, common.InvalidRequest(fmt.Sprintf("Cannot parse the '%s' parameter: %s", name, raw))
	}
	return &value, nil
}

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// statusFor maps one wire code onto its HTTP status.
func statusFor(code string) int {
	switch code {
	case common.CodeInvalidRequest,
		common.CodeMissingParameter,
		common.CodeConflictingParameters,
		common.CodeInvalidDate,
		common.CodeNoMatchingPrincipal,
		common.CodeNoMatchingProject:
		return http.StatusBadRequest
	case common.CodeUnauthorized:
		return http.StatusUnauthorized
	case common.CodeNotFound:
		return http.StatusNotFound
	case common.CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	if err == nil {
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    common.CodeInternal,
			Message: "unknown error",
		})
		return
	}
	code := common.ErrorCode(err)
	apiErr := APIError{Code: code, Message: common.ErrorMessage(err)}
	switch {
	case errors.Is(err, common.ErrConflictingParameters):
		apiErr.Hint = "Pass either 'user' or 'group', not both."
	case errors.Is(err, common.ErrInvalidDate):
		apiErr.Hint = "Dates use the YYYY-MM-DD format."
	}
	writeJSONError(w, statusFor(code), apiErr)
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}
