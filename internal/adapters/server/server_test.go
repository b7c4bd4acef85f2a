package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hylla/timelog/internal/adapters/server/common"
	"github.com/hylla/timelog/internal/adapters/server/httpapi"
	"github.com/hylla/timelog/internal/adapters/storage/jirasql"
	"github.com/hylla/timelog/internal/adapters/storage/sqlite"
	"github.com/hylla/timelog/internal/app"
	"github.com/mark3labs/mcp-go/mcp"
)

// newReferenceQueries builds the query service over a seeded in-memory database.
func newReferenceQueries(t *testing.T) *common.AppServiceAdapter {
	t.Helper()
	repo, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	if err := repo.SeedReferenceData(context.Background()); err != nil {
		t.Fatalf("SeedReferenceData() error = %v", err)
	}
	loc := time.FixedZone("+0100", 3600)
	svc := app.NewService(app.Collaborators{
		Worklogs:   repo,
		Directory:  repo,
		Authorizer: repo,
		Searcher:   repo,
		Fields:     jirasql.NewFieldRenderer(loc),
	}, func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, loc) }, app.ServiceConfig{
		Location: loc,
		BaseURL:  "http://localhost:2990/jira",
	})
	return common.NewAppServiceAdapter(svc)
}

func newTestHandler(t *testing.T, cfg Config, logs *bytes.Buffer) http.Handler {
	t.Helper()
	var logger Logger
	if logs != nil {
		logger = log.NewWithOptions(logs, log.Options{Formatter: log.LogfmtFormatter})
	}
	handler, _, err := NewHandler(cfg, Dependencies{Queries: newReferenceQueries(t), Logger: logger})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	return handler
}

func TestNewHandlerReferenceScenario(t *testing.T) {
	handler := newTestHandler(t, Config{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/rest/jttp-rest/1/find/worklogsByIssues?startDate=2016-02-24&endDate=2016-03-12&user=test-user@everit.biz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var page app.IssueSearchPage
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if page.Total != 3 || page.MaxResults != 25 || len(page.Issues) != 3 {
		t.Fatalf("page = %+v", page)
	}
	if page.Issues[2].Key != "SAM-4" || page.Issues[2].Timespent != 22080 {
		t.Fatalf("third issue = %+v", page.Issues[2])
	}

	req = httptest.NewRequest(http.MethodGet, "/rest/jttp-rest/1/find/worklogs?startDate=2016-02-24&endDate=2016-03-12&user=test-user@everit.biz&fields=comment", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var records []map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&records); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(records) != 3 || records[0]["comment"] != "asdfasf" || records[0]["startDate"] != "2016-03-07T08:00:00.000+0100" {
		t.Fatalf("records = %#v", records)
	}
}

func TestNewHandlerValidationErrors(t *testing.T) {
	handler := newTestHandler(t, Config{}, nil)
	cases := []struct {
		name    string
		query   string
		status  int
		code    string
		message string
	}{
		{
			name:    "missing end date in aggregate mode",
			query:   "find/worklogsByIssues?startDate=2016-02-24&user=u",
			status:  http.StatusBadRequest,
			code:    "missing_parameter",
			message: "The 'endDate' parameter is missing!",
		},
		{
			name:    "missing principal",
			query:   "find/worklogs?startDate=2016-02-24",
			status:  http.StatusBadRequest,
			code:    "missing_parameter",
			message: "The 'user' or the 'group' parameter is missing!",
		},
		{
			name:    "bad end date",
			query:   "find/updatedWorklogs?startDate=2016-02-24&endDate=tomorrow&user=u",
			status:  http.StatusBadRequest,
			code:    "invalid_date",
			message: "Cannot parse the 'endDate' parameter: tomorrow",
		},
		{
			name:    "invalid jql",
			query:   "find/worklogsByIssues?startDate=2016-02-24&endDate=2016-03-12&user=test-user@everit.biz&jql=what%20ever",
			status:  http.StatusInternalServerError,
			code:    "search_failed",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/rest/jttp-rest/1/"+tc.query, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			var envelope httpapi.ErrorEnvelope
			if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if envelope.Error.Code != tc.code {
				t.Fatalf("code = %q, want %q", envelope.Error.Code, tc.code)
			}
			if tc.message != "" && envelope.Error.Message != tc.message {
				t.Fatalf("message = %q, want %q", envelope.Error.Message, tc.message)
			}
			if !strings.HasPrefix(envelope.Error.Message, "Error running search") && tc.code == "search_failed" {
				t.Fatalf("message = %q, want search prefix", envelope.Error.Message)
			}
		})
	}
}

func TestRequestIDAndLogging(t *testing.T) {
	var logs bytes.Buffer
	handler := newTestHandler(t, Config{}, &logs)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	generated := rec.Header().Get(RequestIDHeader)
	if len(generated) != 36 {
		t.Fatalf("generated request id = %q, want uuid", generated)
	}
	if body := rec.Body.String(); body != "{\"status\":\"ok\"}\n" {
		t.Fatalf("health body = %q", body)
	}

	req = httptest.NewRequest(http.MethodPost, "/rest/jttp-rest/1/find/worklogs", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "req-42" {
		t.Fatalf("request id = %q, want req-42", got)
	}
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != http.MethodGet {
		t.Fatalf("status = %d allow = %q", rec.Code, rec.Header().Get("Allow"))
	}

	out := logs.String()
	for _, want := range []string{"request_id=req-42", "status=405", "method=POST", "path=/rest/jttp-rest/1/find/worklogs", "status=200"} {
		if !strings.Contains(out, want) {
			t.Fatalf("logs missing %q:\n%s", want, out)
		}
	}
}

func TestReadinessProbe(t *testing.T) {
	handler, _, err := NewHandler(Config{}, Dependencies{
		Queries: newReferenceQueries(t),
		Ready:   func(context.Context) error { return errors.New("db down") },
	})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestJWTIdentityGuardsAPIAndMCP(t *testing.T) {
	handler := newTestHandler(t, Config{Identity: httpapi.IdentityConfig{Mode: "jwt", JWTSecret: "s3cret"}}, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rest/jttp-rest/1/find/worklogs?startDate=2016-02-24&user=test-user@everit.biz", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("api status = %d, want 401", rec.Code)
	}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("mcp status = %d, want 401", rec.Code)
	}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", rec.Code)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "ops-lead"}).SignedString([]byte("s3cret"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/rest/jttp-rest/1/find/worklogs?startDate=2016-02-24&endDate=2016-03-12&group=ops-team&project=OPS", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authorized status = %d: %s", rec.Code, rec.Body.String())
	}
	var records []app.WorklogRecord
	if err := json.NewDecoder(rec.Body).Decode(&records); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(records) != 1 || records[0].IssueKey != "OPS-1" {
		t.Fatalf("records = %#v", records)
	}
}

func TestMCPRouteServesTools(t *testing.T) {
	server := httptest.NewServer(newTestHandler(t, Config{}, nil))
	defer server.Close()

	post := func(payload map[string]any) map[string]any {
		t.Helper()
		body, _ := json.Marshal(payload)
		resp, err := server.Client().Post(server.URL+"/mcp", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("Post() error = %v", err)
		}
		defer resp.Body.Close()
		var decoded struct {
			Result map[string]any `json:"result"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		return decoded.Result
	}
	post(map[string]any{
		"jsonrpc": "2.0", "id": 1, "method": "initialize",
		"params": map[string]any{
			"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
			"clientInfo":      map[string]any{"name": "timelog-test", "version": "1.0.0"},
		},
	})
	result := post(map[string]any{
		"jsonrpc": "2.0", "id": 2, "method": "tools/call",
		"params": map[string]any{
			"name": "timelog.find_worklogs_by_issues",
			"arguments": map[string]any{
				"start_date":  "2016-02-24",
				"end_date":    "2016-03-12",
				"user":        "test-user@everit.biz",
				"max_results": 1,
			},
		},
	})
	structured, ok := result["structuredContent"].(map[string]any)
	if !ok {
		t.Fatalf("structuredContent missing: %#v", result)
	}
	if total, _ := structured["total"].(float64); total != 3 {
		t.Fatalf("total = %v, want 3", structured["total"])
	}
	if issues, _ := structured["issues"].([]any); len(issues) != 1 {
		t.Fatalf("issues = %#v, want one", structured["issues"])
	}
}

func TestNormalizeConfig(t *testing.T) {
	cfg, err := normalizeConfig(Config{})
	if err != nil {
		t.Fatalf("normalizeConfig() error = %v", err)
	}
	if cfg.HTTPBind != defaultBindAddress || cfg.APIEndpoint != "/rest/jttp-rest/1" || cfg.MCPEndpoint != "/mcp" || cfg.ServerName != "timelog" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if _, err := normalizeConfig(Config{APIEndpoint: "/x/", MCPEndpoint: "x"}); err == nil {
		t.Fatal("colliding endpoints should fail")
	}
	if _, err := normalizeConfig(Config{Identity: httpapi.IdentityConfig{Mode: "jwt"}}); err == nil {
		t.Fatal("jwt without secret should fail")
	}
	if got := normalizeEndpoint(" / ", "/fallback"); got != "/fallback" {
		t.Fatalf("normalizeEndpoint(/) = %q", got)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{HTTPBind: "127.0.0.1:0"}, Dependencies{Queries: newReferenceQueries(t)})
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
