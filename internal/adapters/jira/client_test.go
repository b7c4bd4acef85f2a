package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hylla/timelog/internal/domain"
)

// fakeJira serves a fixed issue list with server-side paging.
type fakeJira struct {
	total      int
	pageSize   int
	searches   atomic.Int32
	issueGets  atomic.Int32
	lastAuth   atomic.Value
	badRequest bool
}

func (f *fakeJira) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.lastAuth.Store(r.Header.Get("Authorization"))
	switch {
	case r.URL.Path == "/rest/api/2/search":
		f.searches.Add(1)
		if f.badRequest {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"errorMessages":["Field 'foo' does not exist or you do not have permission to view it."],"errors":{}}`))
			return
		}
		start, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		var issues []map[string]any
		for i := start; i < f.total && i < start+f.pageSize; i++ {
			issues = append(issues, map[string]any{
				"id":  strconv.Itoa(10000 + i),
				"key": fmt.Sprintf("SAM-%d", i+1),
				"fields": map[string]any{
					"project":  map[string]any{"id": "10000", "key": "SAM"},
					"summary":  fmt.Sprintf("Issue %d", i+1),
					"status":   map[string]any{"name": "Open"},
					"assignee": map[string]any{"key": "JIRAUSER1", "name": "alice"},
					"created":  "2016-03-11T10:46:46.277+0100",
				},
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"startAt": start, "maxResults": f.pageSize, "total": f.total, "issues": issues,
		})
	case r.URL.Path == "/rest/api/2/field":
		_, _ = w.Write([]byte(`[{"id":"summary","navigable":true},{"id":"comment","navigable":false},{"id":"status","navigable":true}]`))
	case strings.HasPrefix(r.URL.Path, "/rest/api/2/issue/"):
		f.issueGets.Add(1)
		_, _ = w.Write([]byte(`{"id":"10000","fields":{"summary":"Issue 1","status":{"name":"Open"},"duedate":null}}`))
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, fake *fakeJira, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL + "/"
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty base url")
	}
}

func TestSearchIssuesPagesConcurrently(t *testing.T) {
	fake := &fakeJira{total: 23, pageSize: 5}
	c := newTestClient(t, fake, Config{Token: "pat", PageSize: 5, Concurrency: 2})

	issues, err := c.SearchIssues(context.Background(), "alice", "project = SAM")
	if err != nil {
		t.Fatalf("SearchIssues() error = %v", err)
	}
	if len(issues) != 23 {
		t.Fatalf("issues = %d, want 23", len(issues))
	}
	for i, issue := range issues {
		if issue.ID != int64(10000+i) {
			t.Fatalf("issue[%d].ID = %d, want search order", i, issue.ID)
		}
	}
	if got := fake.searches.Load(); got != 5 {
		t.Fatalf("search requests = %d, want 5", got)
	}
	first := issues[0]
	if first.Key != "SAM-1" || first.Number != 1 || first.ProjectID != 10000 || first.Status != "Open" || first.Assignee != "JIRAUSER1" {
		t.Fatalf("decoded issue = %#v", first)
	}
	if first.Created.IsZero() {
		t.Fatal("expected created timestamp to decode")
	}
	if got := fake.lastAuth.Load(); got != "Bearer pat" {
		t.Fatalf("authorization = %v, want bearer token", got)
	}
}

func TestSearchIssuesSinglePage(t *testing.T) {
	fake := &fakeJira{total: 3, pageSize: 50}
	c := newTestClient(t, fake, Config{Username: "svc", Password: "secret", PageSize: 50})
	issues, err := c.SearchIssues(context.Background(), "", "")
	if err != nil {
		t.Fatalf("SearchIssues() error = %v", err)
	}
	if len(issues) != 3 || fake.searches.Load() != 1 {
		t.Fatalf("issues=%d searches=%d", len(issues), fake.searches.Load())
	}
	if auth, _ := fake.lastAuth.Load().(string); !strings.HasPrefix(auth, "Basic ") {
		t.Fatalf("authorization = %q, want basic", auth)
	}
}

func TestSearchIssuesSurfacesJQLErrors(t *testing.T) {
	fake := &fakeJira{badRequest: true}
	c := newTestClient(t, fake, Config{})
	_, err := c.SearchIssues(context.Background(), "", "foo = bar")
	if err == nil || !strings.Contains(err.Error(), "Field 'foo' does not exist") {
		t.Fatalf("SearchIssues() error = %v, want jira error message", err)
	}
}

func TestSearchIssuesUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := c.SearchIssues(context.Background(), "", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("SearchIssues() error = %v, want ErrUnauthorized", err)
	}
}

func TestFieldsAreRenderedFromOneIssueFetch(t *testing.T) {
	fake := &fakeJira{}
	c := newTestClient(t, fake, Config{})
	ctx := context.Background()

	navigable, err := c.NavigableFields(ctx, "")
	if err != nil {
		t.Fatalf("NavigableFields() error = %v", err)
	}
	if strings.Join(navigable, ",") != "summary,status" {
		t.Fatalf("NavigableFields() = %v", navigable)
	}

	issue := domain.Issue{ID: 10000, Key: "SAM-1"}
	summary, err := c.RenderField(ctx, "", issue, "summary")
	if err != nil || summary != "Issue 1" {
		t.Fatalf("RenderField(summary) = %#v, %v", summary, err)
	}
	status, err := c.RenderField(ctx, "", issue, "status")
	if err != nil || status.(map[string]any)["name"] != "Open" {
		t.Fatalf("RenderField(status) = %#v, %v", status, err)
	}
	if due, err := c.RenderField(ctx, "", issue, "duedate"); err != nil || due != nil {
		t.Fatalf("RenderField(duedate) = %#v, %v, want nil", due, err)
	}
	if got := fake.issueGets.Load(); got != 1 {
		t.Fatalf("issue fetches = %d, want 1", got)
	}
}
