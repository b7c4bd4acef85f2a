package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hylla/timelog/internal/adapters/storage/jirasql"
	"github.com/hylla/timelog/internal/app"
	"github.com/hylla/timelog/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// Repository serves worklog queries from a local Jira-shaped SQLite database.
type Repository struct {
	db      *sql.DB
	dialect jirasql.Dialect
}

// Open opens the requested operation.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db, dialect: jirasql.SQLite}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens a private in-memory database.
// Connections of one repository share it; separate repositories never do.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, memoryDSN(uuid.NewString()))
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	repo := &Repository{db: db, dialect: jirasql.SQLite}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func memoryDSN(name string) string {
	return "file:" + name + "?mode=memory&cache=shared"
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping verifies the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate creates the Jira table subset the queries read.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS project (
			id INTEGER PRIMARY KEY,
			pname TEXT,
			pkey TEXT NOT NULL UNIQUE,
			lead TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS issuestatus (
			id TEXT PRIMARY KEY,
			pname TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS priority (
			id TEXT PRIMARY KEY,
			pname TEXT NOT NULL,
			sequence INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS jiraissue (
			id INTEGER PRIMARY KEY,
			issuenum INTEGER NOT NULL,
			project INTEGER NOT NULL,
			reporter TEXT,
			assignee TEXT,
			summary TEXT,
			priority TEXT,
			issuestatus TEXT,
			created TEXT,
			updated TEXT,
			UNIQUE(project, issuenum)
		);`,
		`CREATE TABLE IF NOT EXISTS worklog (
			id INTEGER PRIMARY KEY,
			issueid INTEGER NOT NULL,
			author TEXT,
			grouplevel TEXT,
			rolelevel INTEGER,
			worklogbody TEXT,
			created TEXT,
			updateauthor TEXT,
			updated TEXT,
			startdate TEXT,
			timeworked INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS app_user (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_key TEXT NOT NULL UNIQUE,
			lower_user_name TEXT NOT NULL UNIQUE
		);`,
		`CREATE TABLE IF NOT EXISTS cwd_user (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			directory_id INTEGER NOT NULL DEFAULT 1,
			user_name TEXT NOT NULL,
			lower_user_name TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			UNIQUE(directory_id, lower_user_name)
		);`,
		`CREATE TABLE IF NOT EXISTS cwd_membership (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			parent_name TEXT NOT NULL,
			lower_parent_name TEXT NOT NULL,
			child_name TEXT NOT NULL,
			lower_child_name TEXT NOT NULL,
			membership_type TEXT NOT NULL DEFAULT 'GROUP_USER',
			directory_id INTEGER NOT NULL DEFAULT 1,
			UNIQUE(lower_parent_name, lower_child_name, membership_type, directory_id)
		);`,
		`CREATE TABLE IF NOT EXISTS nodeassociation (
			source_node_id INTEGER NOT NULL,
			source_node_entity TEXT NOT NULL,
			sink_node_id INTEGER NOT NULL,
			sink_node_entity TEXT NOT NULL,
			association_type TEXT NOT NULL,
			sequence INTEGER,
			PRIMARY KEY(source_node_id, source_node_entity, sink_node_id, sink_node_entity, association_type)
		);`,
		`CREATE TABLE IF NOT EXISTS schemepermissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			scheme INTEGER NOT NULL,
			permission INTEGER,
			perm_type TEXT NOT NULL,
			perm_parameter TEXT,
			permission_key TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_worklog_author_startdate ON worklog(author, startdate);`,
		`CREATE INDEX IF NOT EXISTS idx_worklog_author_updated ON worklog(author, updated);`,
		`CREATE INDEX IF NOT EXISTS idx_worklog_issue ON worklog(issueid);`,
		`CREATE INDEX IF NOT EXISTS idx_jiraissue_project ON jiraissue(project);`,
		`CREATE INDEX IF NOT EXISTS idx_membership_child ON cwd_membership(lower_child_name);`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// FindWorklogs lists range-mode worklogs ordered by id.
func (r *Repository) FindWorklogs(ctx context.Context, q app.WorklogQuery) ([]domain.Worklog, error) {
	if len(q.AuthorKeys) == 0 || len(q.ProjectIDs) == 0 {
		return []domain.Worklog{}, nil
	}
	stmt := jirasql.WorklogRange(r.dialect, q.Window, q.AuthorKeys, q.ProjectIDs)
	rows, err := r.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("query worklogs: %w", err)
	}
	defer rows.Close()

	out := []domain.Worklog{}
	for rows.Next() {
		w, err := scanWorklog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// SumTimeWorked sums in-window time per issue.
func (r *Repository) SumTimeWorked(ctx context.Context, q app.TimeSumQuery) (map[int64]int64, error) {
	out := map[int64]int64{}
	if len(q.AuthorKeys) == 0 || len(q.IssueIDs) == 0 {
		return out, nil
	}
	for _, stmt := range jirasql.TimeSums(r.dialect, q.Window, q.AuthorKeys, q.IssueIDs) {
		if err := r.sumInto(ctx, stmt, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repository) sumInto(ctx context.Context, stmt jirasql.Statement, out map[int64]int64) error {
	rows, err := r.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return fmt.Errorf("sum worklogs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			issueID int64
			total   sql.NullInt64
		)
		if err := rows.Scan(&issueID, &total); err != nil {
			return err
		}
		out[issueID] += total.Int64
	}
	return rows.Err()
}

// UserKeyByName resolves a login name to its user key.
func (r *Repository) UserKeyByName(ctx context.Context, name string) (string, bool, error) {
	stmt := jirasql.UserKeyByName(r.dialect, name)
	var key string
	if err := r.db.QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(&key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("look up user: %w", err)
	}
	return key, true, nil
}

// GroupMemberKeys lists the user keys of direct group members.
func (r *Repository) GroupMemberKeys(ctx context.Context, group string) ([]string, error) {
	stmt := jirasql.GroupMemberKeys(r.dialect, group)
	rows, err := r.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		out = append(out, key)
	}
	return out, rows.Err()
}

// BrowsableProjects lists projects the caller may browse.
func (r *Repository) BrowsableProjects(ctx context.Context, caller string) ([]domain.Project, error) {
	stmt := jirasql.BrowsableProjects(r.dialect, caller)
	rows, err := r.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("list browsable projects: %w", err)
	}
	defer rows.Close()
	out := []domain.Project{}
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Key, &p.Name); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SearchIssues runs a local JQL subset query over the caller's browsable projects.
func (r *Repository) SearchIssues(ctx context.Context, caller, jql string) ([]domain.Issue, error) {
	if _, err := jirasql.ParseJQL(jql); err != nil {
		return nil, err
	}
	projects, err := r.BrowsableProjects(ctx, caller)
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return []domain.Issue{}, nil
	}
	stmt, err := jirasql.SearchIssues(r.dialect, jql, domain.ProjectIDs(projects))
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("search issues: %w", err)
	}
	defer rows.Close()
	out := []domain.Issue{}
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, issue)
	}
	return out, rows.Err()
}

// scanner abstracts row scanning for shared decode helpers.
type scanner interface {
	Scan(dest ...any) error
}

// scanWorklog decodes one jirasql.WorklogRange row.
func scanWorklog(s scanner) (domain.Worklog, error) {
	var (
		w          domain.Worklog
		projectKey string
		issueNum   int64
		startRaw   sql.NullString
		updatedRaw sql.NullString
	)
	if err := s.Scan(&w.ID, &w.IssueID, &projectKey, &issueNum, &w.Author, &w.AuthorName,
		&startRaw, &updatedRaw, &w.TimeWorkedSeconds, &w.Body); err != nil {
		return domain.Worklog{}, err
	}
	w.IssueKey = domain.IssueKey(projectKey, issueNum)
	w.StartDate = jirasql.DecodeSQLiteTime(startRaw.String)
	w.Updated = jirasql.DecodeSQLiteTime(updatedRaw.String)
	return w, nil
}

// scanIssue decodes one jirasql.SearchIssues row.
func scanIssue(s scanner) (domain.Issue, error) {
	var (
		issue      domain.Issue
		projectKey string
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := s.Scan(&issue.ID, &projectKey, &issue.Number, &issue.ProjectID, &issue.Summary,
		&issue.Status, &issue.Priority, &issue.Assignee, &issue.Reporter, &createdRaw, &updatedRaw); err != nil {
		return domain.Issue{}, err
	}
	issue.Key = domain.IssueKey(projectKey, issue.Number)
	issue.Created = jirasql.DecodeSQLiteTime(createdRaw.String)
	issue.Updated = jirasql.DecodeSQLiteTime(updatedRaw.String)
	return issue, nil
}

// ts handles ts.
func ts(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return jirasql.EncodeSQLiteTime(t)
}
