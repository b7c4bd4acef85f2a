// Package postgres reads worklogs from a live Jira PostgreSQL database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/timelog/internal/adapters/storage/jirasql"
	"github.com/hylla/timelog/internal/app"
	"github.com/hylla/timelog/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pingTimeout bounds the connectivity check on open.
const pingTimeout = 10 * time.Second

// Store serves worklog queries from an existing Jira schema. It never writes.
type Store struct {
	pool    *pgxpool.Pool
	dialect jirasql.Dialect
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool, dialect: jirasql.Postgres}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// FindWorklogs lists range-mode worklogs ordered by id.
func (s *Store) FindWorklogs(ctx context.Context, q app.WorklogQuery) ([]domain.Worklog, error) {
	if len(q.AuthorKeys) == 0 || len(q.ProjectIDs) == 0 {
		return []domain.Worklog{}, nil
	}
	stmt := jirasql.WorklogRange(s.dialect, q.Window, q.AuthorKeys, q.ProjectIDs)
	rows, err := s.pool.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("query worklogs: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanWorklog)
	if err != nil {
		return nil, fmt.Errorf("scan worklogs: %w", err)
	}
	return out, nil
}

// SumTimeWorked sums in-window time per issue, one statement per id chunk.
func (s *Store) SumTimeWorked(ctx context.Context, q app.TimeSumQuery) (map[int64]int64, error) {
	out := map[int64]int64{}
	if len(q.AuthorKeys) == 0 || len(q.IssueIDs) == 0 {
		return out, nil
	}
	for _, stmt := range jirasql.TimeSums(s.dialect, q.Window, q.AuthorKeys, q.IssueIDs) {
		rows, err := s.pool.Query(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return nil, fmt.Errorf("sum worklogs: %w", err)
		}
		var (
			issueID int64
			total   *int64
		)
		_, err = pgx.ForEachRow(rows, []any{&issueID, &total}, func() error {
			if total != nil {
				out[issueID] += *total
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan worklog sums: %w", err)
		}
	}
	return out, nil
}

// UserKeyByName resolves a login name to its user key.
func (s *Store) UserKeyByName(ctx context.Context, name string) (string, bool, error) {
	stmt := jirasql.UserKeyByName(s.dialect, name)
	var key string
	if err := s.pool.QueryRow(ctx, stmt.SQL, stmt.Args...).Scan(&key); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("look up user: %w", err)
	}
	return key, true, nil
}

// GroupMemberKeys lists the user keys of direct group members.
func (s *Store) GroupMemberKeys(ctx context.Context, group string) ([]string, error) {
	stmt := jirasql.GroupMemberKeys(s.dialect, group)
	rows, err := s.pool.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan group members: %w", err)
	}
	return keys, nil
}

// BrowsableProjects lists projects the caller may browse.
func (s *Store) BrowsableProjects(ctx context.Context, caller string) ([]domain.Project, error) {
	stmt := jirasql.BrowsableProjects(s.dialect, caller)
	rows, err := s.pool.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("list browsable projects: %w", err)
	}
	projects, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Project, error) {
		var p domain.Project
		err := row.Scan(&p.ID, &p.Key, &p.Name)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan browsable projects: %w", err)
	}
	return projects, nil
}

// SearchIssues runs a local JQL subset query over the caller's browsable projects.
func (s *Store) SearchIssues(ctx context.Context, caller, jql string) ([]domain.Issue, error) {
	if _, err := jirasql.ParseJQL(jql); err != nil {
		return nil, err
	}
	projects, err := s.BrowsableProjects(ctx, caller)
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return []domain.Issue{}, nil
	}
	stmt, err := jirasql.SearchIssues(s.dialect, jql, domain.ProjectIDs(projects))
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("search issues: %w", err)
	}
	issues, err := pgx.CollectRows(rows, scanIssue)
	if err != nil {
		return nil, fmt.Errorf("scan issues: %w", err)
	}
	return issues, nil
}

// scanWorklog decodes one jirasql.WorklogRange row.
func scanWorklog(row pgx.CollectableRow) (domain.Worklog, error) {
	var (
		w          domain.Worklog
		projectKey string
		issueNum   int64
		start      *time.Time
		updated    *time.Time
	)
	if err := row.Scan(&w.ID, &w.IssueID, &projectKey, &issueNum, &w.Author, &w.AuthorName,
		&start, &updated, &w.TimeWorkedSeconds, &w.Body); err != nil {
		return domain.Worklog{}, err
	}
	w.IssueKey = domain.IssueKey(projectKey, issueNum)
	w.StartDate = deref(start)
	w.Updated = deref(updated)
	return w, nil
}

// scanIssue decodes one jirasql.SearchIssues row.
func scanIssue(row pgx.CollectableRow) (domain.Issue, error) {
	var (
		issue      domain.Issue
		projectKey string
		created    *time.Time
		updated    *time.Time
	)
	if err := row.Scan(&issue.ID, &projectKey, &issue.Number, &issue.ProjectID, &issue.Summary,
		&issue.Status, &issue.Priority, &issue.Assignee, &issue.Reporter, &created, &updated); err != nil {
		return domain.Issue{}, err
	}
	issue.Key = domain.IssueKey(projectKey, issue.Number)
	issue.Created = deref(created)
	issue.Updated = deref(updated)
	return issue, nil
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
