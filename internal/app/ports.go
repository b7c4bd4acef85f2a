package app

import (
	"context"

	"github.com/hylla/timelog/internal/domain"
)

// WorklogQuery selects range-mode worklogs.
type WorklogQuery struct {
	Window     domain.QueryWindow
	AuthorKeys []string
	ProjectIDs []int64
}

// TimeSumQuery selects per-issue time sums for aggregate mode.
type TimeSumQuery struct {
	Window     domain.QueryWindow
	AuthorKeys []string
	IssueIDs   []int64
}

// WorklogStore reads worklogs from the backing Jira database.
type WorklogStore interface {
	FindWorklogs(context.Context, WorklogQuery) ([]domain.Worklog, error)
	SumTimeWorked(context.Context, TimeSumQuery) (map[int64]int64, error)
}

// Directory resolves users and groups to user keys.
type Directory interface {
	UserKeyByName(ctx context.Context, name string) (string, bool, error)
	GroupMemberKeys(ctx context.Context, group string) ([]string, error)
}

// Authorizer lists the projects a caller may browse.
type Authorizer interface {
	BrowsableProjects(ctx context.Context, caller string) ([]domain.Project, error)
}

// IssueSearcher runs a free-text issue query on behalf of a caller.
// The service re-checks results against Authorizer and orders them by id.
type IssueSearcher interface {
	SearchIssues(ctx context.Context, caller, jql string) ([]domain.Issue, error)
}

// FieldRenderer exposes field metadata and per-field values for enrichment.
type FieldRenderer interface {
	NavigableFields(ctx context.Context, caller string) ([]string, error)
	RenderField(ctx context.Context, caller string, issue domain.Issue, field string) (any, error)
}

// Collaborators groups the ports the service depends on.
type Collaborators struct {
	Worklogs   WorklogStore
	Directory  Directory
	Authorizer Authorizer
	Searcher   IssueSearcher
	Fields     FieldRenderer
}
