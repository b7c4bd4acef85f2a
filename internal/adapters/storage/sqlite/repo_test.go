package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/hylla/timelog/internal/adapters/storage/jirasql"
	"github.com/hylla/timelog/internal/app"
	"github.com/hylla/timelog/internal/domain"
)

func openSeeded(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "timelog.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	if err := repo.SeedReferenceData(context.Background()); err != nil {
		t.Fatalf("SeedReferenceData() error = %v", err)
	}
	return repo
}

func newService(repo *Repository) *app.Service {
	now := func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, referenceZone) }
	return app.NewService(app.Collaborators{
		Worklogs:   repo,
		Directory:  repo,
		Authorizer: repo,
		Searcher:   repo,
		Fields:     jirasql.NewFieldRenderer(referenceZone),
	}, now, app.ServiceConfig{Location: referenceZone, BaseURL: "http://localhost:2990/jira"})
}

func TestSeedIsIdempotent(t *testing.T) {
	repo := openSeeded(t)
	if err := repo.SeedReferenceData(context.Background()); err != nil {
		t.Fatalf("second SeedReferenceData() error = %v", err)
	}
	var grants int
	if err := repo.db.QueryRow(`SELECT COUNT(*) FROM schemepermissions`).Scan(&grants); err != nil {
		t.Fatalf("count grants error = %v", err)
	}
	if grants != 2 {
		t.Fatalf("grants = %d, want 2", grants)
	}
}

func TestDirectoryLookups(t *testing.T) {
	repo := openSeeded(t)
	ctx := context.Background()

	key, ok, err := repo.UserKeyByName(ctx, "OPS-LEAD")
	if err != nil || !ok || key != "JIRAUSER10100" {
		t.Fatalf("UserKeyByName() = %q, %v, %v", key, ok, err)
	}
	if _, ok, err := repo.UserKeyByName(ctx, "ghost"); err != nil || ok {
		t.Fatalf("UserKeyByName(ghost) = %v, %v, want not found", ok, err)
	}
	keys, err := repo.GroupMemberKeys(ctx, "jira-software-users")
	if err != nil {
		t.Fatalf("GroupMemberKeys() error = %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"JIRAUSER10100", ReferenceUser}) {
		t.Fatalf("GroupMemberKeys() = %v", keys)
	}
}

func TestBrowsableProjectsFollowsPermissionScheme(t *testing.T) {
	repo := openSeeded(t)
	ctx := context.Background()
	cases := []struct {
		caller string
		want   []string
	}{
		{caller: "", want: []string{"SAM"}},
		{caller: ReferenceUser, want: []string{"SAM"}},
		{caller: "ops-lead", want: []string{"SAM", "OPS"}},
	}
	for _, tc := range cases {
		projects, err := repo.BrowsableProjects(ctx, tc.caller)
		if err != nil {
			t.Fatalf("BrowsableProjects(%q) error = %v", tc.caller, err)
		}
		var got []string
		for _, p := range projects {
			got = append(got, p.Key)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("BrowsableProjects(%q) = %v, want %v", tc.caller, got, tc.want)
		}
	}

	if err := repo.GrantBrowse(ctx, 10100, 10100, GrantUser, ReferenceUser); err != nil {
		t.Fatalf("GrantBrowse() error = %v", err)
	}
	projects, err := repo.BrowsableProjects(ctx, ReferenceUser)
	if err != nil || len(projects) != 2 {
		t.Fatalf("BrowsableProjects after user grant = %v, %v", projects, err)
	}
}

func TestSearchIssuesLocalJQL(t *testing.T) {
	repo := openSeeded(t)
	ctx := context.Background()

	all, err := repo.SearchIssues(ctx, "", "")
	if err != nil {
		t.Fatalf("SearchIssues() error = %v", err)
	}
	if len(all) != 5 || all[0].Key != "SAM-1" || all[4].Key != "SAM-5" {
		t.Fatalf("SearchIssues() = %#v", all)
	}

	some, err := repo.SearchIssues(ctx, "ops-lead", `key in (SAM-2, OPS-1) ORDER BY id DESC`)
	if err != nil {
		t.Fatalf("SearchIssues(keys) error = %v", err)
	}
	if len(some) != 2 || some[0].Key != "OPS-1" || some[1].Key != "SAM-2" {
		t.Fatalf("SearchIssues(keys) = %#v", some)
	}
	if some[0].Status != "In Progress" || some[0].Priority != "Critical" {
		t.Fatalf("unexpected joined columns %#v", some[0])
	}

	hidden, err := repo.SearchIssues(ctx, ReferenceUser, "project = OPS")
	if err != nil || len(hidden) != 0 {
		t.Fatalf("SearchIssues(hidden) = %#v, %v", hidden, err)
	}

	if _, err := repo.SearchIssues(ctx, "", "nonsense here"); !errors.Is(err, jirasql.ErrInvalidJQL) {
		t.Fatalf("SearchIssues(invalid) error = %v, want ErrInvalidJQL", err)
	}
}

func TestFindWorklogsByIssuesReferenceScenario(t *testing.T) {
	svc := newService(openSeeded(t))
	page, err := svc.FindWorklogsByIssues(context.Background(), app.FindWorklogsByIssuesInput{
		StartDate:  "2016-02-24",
		EndDate:    "2016-03-12",
		User:       ReferenceUser,
		MaxResults: app.DefaultMaxResults,
	})
	if err != nil {
		t.Fatalf("FindWorklogsByIssues() error = %v", err)
	}
	if page.Total != 3 {
		t.Fatalf("total = %d, want 3", page.Total)
	}
	want := []struct {
		id, key string
		spent   int64
	}{
		{"10000", "SAM-1", 22020},
		{"10001", "SAM-2", 22020},
		{"10003", "SAM-4", 22080},
	}
	for i, w := range want {
		got := page.Issues[i]
		if got.ID != w.id || got.Key != w.key || got.Timespent != w.spent {
			t.Fatalf("issue[%d] = %#v, want %+v", i, got, w)
		}
	}
	if page.Issues[0].Self != "http://localhost:2990/jira/rest/api/2/issue/10000" {
		t.Fatalf("self = %q", page.Issues[0].Self)
	}

	enriched, err := svc.FindWorklogsByIssues(context.Background(), app.FindWorklogsByIssuesInput{
		StartDate: "2016-02-24", EndDate: "2016-03-12", User: ReferenceUser,
		JQL: "key = SAM-4", MaxResults: 5, Fields: []string{"summary,status"},
	})
	if err != nil {
		t.Fatalf("FindWorklogsByIssues(enriched) error = %v", err)
	}
	if enriched.Total != 1 || enriched.Issues[0].Fields["summary"] != "Fix the report export" {
		t.Fatalf("enriched page = %#v", enriched)
	}
}

func TestFindWorklogsRangeModes(t *testing.T) {
	svc := newService(openSeeded(t))
	ctx := context.Background()

	started, err := svc.FindWorklogs(ctx, app.FindWorklogsInput{
		StartDate: "2016-02-24", EndDate: "2016-03-12", User: ReferenceUser, Fields: []string{"comment"},
	})
	if err != nil {
		t.Fatalf("FindWorklogs() error = %v", err)
	}
	var ids []int64
	for _, rec := range started {
		ids = append(ids, rec.ID)
	}
	if !reflect.DeepEqual(ids, []int64{10000, 10001, 10002}) {
		t.Fatalf("ids = %v", ids)
	}
	first := started[0]
	if first.StartDate != "2016-03-07T08:00:00.000+0100" || first.IssueKey != "SAM-1" || first.UserID != ReferenceUser || first.Duration != 22020 {
		t.Fatalf("first record = %#v", first)
	}
	if first.Comment == nil || *first.Comment != "asdfasf" || first.Updated != nil {
		t.Fatalf("optional fields = %#v", first)
	}

	updated, err := svc.FindUpdatedWorklogs(ctx, app.FindWorklogsInput{
		StartDate: "2016-03-08", EndDate: "2016-03-11", User: ReferenceUser, Fields: []string{"updated"},
	})
	if err != nil {
		t.Fatalf("FindUpdatedWorklogs() error = %v", err)
	}
	if len(updated) != 1 || updated[0].ID != 10000 || *updated[0].Updated != "2016-03-11T10:46:46.277+0100" {
		t.Fatalf("updated records = %#v", updated)
	}

	_, err = svc.FindWorklogs(ctx, app.FindWorklogsInput{StartDate: "2016-02-24", User: ReferenceUser, Project: "UNKNOWNKEY"})
	if !errors.Is(err, app.ErrNoMatchingProject) {
		t.Fatalf("unknown project error = %v", err)
	}
	_, err = svc.FindWorklogs(ctx, app.FindWorklogsInput{StartDate: "2016-02-24", User: "ops-lead", Project: "OPS"})
	if !errors.Is(err, app.ErrNoMatchingProject) {
		t.Fatalf("anonymous caller should not see OPS, got %v", err)
	}
	ops, err := svc.FindWorklogs(ctx, app.FindWorklogsInput{Caller: "ops-lead", StartDate: "2016-02-24", EndDate: "2016-03-12", Group: "ops-team", Project: "OPS"})
	if err != nil || len(ops) != 1 || ops[0].IssueKey != "OPS-1" || ops[0].UserID != "ops-lead" {
		t.Fatalf("ops records = %#v, %v", ops, err)
	}
}

func TestSumTimeWorkedRoundTrip(t *testing.T) {
	repo := openSeeded(t)
	ctx := context.Background()
	start := time.Date(2020, 5, 4, 23, 30, 0, 0, referenceZone)
	w, err := domain.NewWorklog(domain.WorklogInput{ID: 20000, IssueID: 10002, Author: ReferenceUser, StartDate: start, TimeWorkedSeconds: 1234})
	if err != nil {
		t.Fatalf("NewWorklog() error = %v", err)
	}
	if err := repo.SaveWorklog(ctx, w); err != nil {
		t.Fatalf("SaveWorklog() error = %v", err)
	}

	inside, _ := domain.NormalizeWindow("2020-05-04", "2020-05-04", start, referenceZone)
	sums, err := repo.SumTimeWorked(ctx, app.TimeSumQuery{Window: inside, AuthorKeys: []string{ReferenceUser}, IssueIDs: []int64{10002}})
	if err != nil {
		t.Fatalf("SumTimeWorked() error = %v", err)
	}
	if sums[10002] != 1234 {
		t.Fatalf("in-window sum = %d, want 1234", sums[10002])
	}

	disjoint, _ := domain.NormalizeWindow("2020-05-05", "2020-05-06", start, referenceZone)
	sums, err = repo.SumTimeWorked(ctx, app.TimeSumQuery{Window: disjoint, AuthorKeys: []string{ReferenceUser}, IssueIDs: []int64{10002}})
	if err != nil {
		t.Fatalf("SumTimeWorked(disjoint) error = %v", err)
	}
	if sums[10002] != 0 {
		t.Fatalf("disjoint sum = %d, want 0", sums[10002])
	}
}

func TestOpenInMemoryMigrates(t *testing.T) {
	repo, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	if err := repo.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	projects, err := repo.BrowsableProjects(context.Background(), "")
	if err != nil {
		t.Fatalf("BrowsableProjects() error = %v", err)
	}
	if len(projects) != 0 {
		t.Fatalf("expected empty database, got %#v", projects)
	}

	if err := repo.SeedReferenceData(context.Background()); err != nil {
		t.Fatalf("SeedReferenceData() error = %v", err)
	}
	other, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory(second) error = %v", err)
	}
	t.Cleanup(func() {
		_ = other.Close()
	})
	projects, err = other.BrowsableProjects(context.Background(), "")
	if err != nil {
		t.Fatalf("BrowsableProjects(second) error = %v", err)
	}
	if len(projects) != 0 {
		t.Fatalf("second in-memory repository sees seeded data: %#v", projects)
	}
	if a, b := memoryDSN("a"), memoryDSN("b"); a == b || !strings.Contains(a, "mode=memory") {
		t.Fatalf("memoryDSN() = %q, %q", a, b)
	}
}
