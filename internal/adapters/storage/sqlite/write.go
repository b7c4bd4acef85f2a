package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/hylla/timelog/internal/domain"
)

// Permission grant types understood by the browse check.
const (
	GrantAnyone          = "anyone"
	GrantGroup           = "group"
	GrantUser            = "user"
	GrantApplicationRole = "applicationRole"
)

// SaveProject inserts or replaces one project.
func (r *Repository) SaveProject(ctx context.Context, p domain.Project) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO project(id, pname, pkey)
		VALUES (?, ?, ?)
	`, p.ID, p.Name, p.Key)
	if err != nil {
		return fmt.Errorf("save project %s: %w", p.Key, err)
	}
	return nil
}

// SaveIssue inserts or replaces one issue, creating status and priority rows on demand.
func (r *Repository) SaveIssue(ctx context.Context, issue domain.Issue) error {
	if issue.Status != "" {
		if _, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO issuestatus(id, pname) VALUES (?, ?)`, issue.Status, issue.Status); err != nil {
			return fmt.Errorf("save issue status: %w", err)
		}
	}
	if issue.Priority != "" {
		if _, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO priority(id, pname) VALUES (?, ?)`, issue.Priority, issue.Priority); err != nil {
			return fmt.Errorf("save issue priority: %w", err)
		}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO jiraissue(id, issuenum, project, reporter, assignee, summary, priority, issuestatus, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, issue.ID, issue.Number, issue.ProjectID, nullable(issue.Reporter), nullable(issue.Assignee), issue.Summary,
		nullable(issue.Priority), nullable(issue.Status), ts(issue.Created), ts(issue.Updated))
	if err != nil {
		return fmt.Errorf("save issue %d: %w", issue.ID, err)
	}
	return nil
}

// SaveUser registers one user in both the key mapping and the directory.
func (r *Repository) SaveUser(ctx context.Context, u domain.User) error {
	name := strings.TrimSpace(u.Name)
	key := strings.TrimSpace(u.Key)
	if name == "" || key == "" {
		return domain.ErrInvalidName
	}
	lower := strings.ToLower(name)
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO app_user(user_key, lower_user_name) VALUES (?, ?)
		ON CONFLICT(user_key) DO UPDATE SET lower_user_name = excluded.lower_user_name
	`, key, lower); err != nil {
		return fmt.Errorf("save app_user %s: %w", key, err)
	}
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO cwd_user(directory_id, user_name, lower_user_name) VALUES (1, ?, ?)
		ON CONFLICT(directory_id, lower_user_name) DO UPDATE SET user_name = excluded.user_name
	`, name, lower); err != nil {
		return fmt.Errorf("save cwd_user %s: %w", name, err)
	}
	return nil
}

// AddGroupMember adds userName to group.
func (r *Repository) AddGroupMember(ctx context.Context, group, userName string) error {
	group = strings.TrimSpace(group)
	userName = strings.TrimSpace(userName)
	if group == "" || userName == "" {
		return domain.ErrInvalidName
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO cwd_membership(parent_name, lower_parent_name, child_name, lower_child_name, membership_type)
		VALUES (?, ?, ?, ?, 'GROUP_USER')
	`, group, strings.ToLower(group), userName, strings.ToLower(userName))
	if err != nil {
		return fmt.Errorf("add %s to %s: %w", userName, group, err)
	}
	return nil
}

// GrantBrowse attaches permission scheme to projectID and grants browse through it.
// grantType is one of the Grant constants; parameter names the group or user key.
func (r *Repository) GrantBrowse(ctx context.Context, projectID, scheme int64, grantType, parameter string) error {
	if _, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO nodeassociation(source_node_id, source_node_entity, sink_node_id, sink_node_entity, association_type)
		VALUES (?, 'Project', ?, 'PermissionScheme', 'ProjectScheme')
	`, projectID, scheme); err != nil {
		return fmt.Errorf("attach permission scheme: %w", err)
	}
	var param any = parameter
	switch grantType {
	case GrantAnyone:
		grantType, param = GrantGroup, nil
	case GrantGroup, GrantUser, GrantApplicationRole:
	default:
		return fmt.Errorf("unknown grant type %q: %w", grantType, domain.ErrInvalidName)
	}
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO schemepermissions(scheme, permission, perm_type, perm_parameter, permission_key)
		SELECT ?, 10, ?, ?, 'BROWSE_PROJECTS'
		WHERE NOT EXISTS (
			SELECT 1 FROM schemepermissions
			WHERE scheme = ? AND perm_type = ? AND perm_parameter IS ? AND permission_key = 'BROWSE_PROJECTS'
		)
	`, scheme, grantType, param, scheme, grantType, param); err != nil {
		return fmt.Errorf("grant browse: %w", err)
	}
	return nil
}

// SaveWorklog inserts or replaces one worklog.
func (r *Repository) SaveWorklog(ctx context.Context, w domain.Worklog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO worklog(id, issueid, author, worklogbody, created, updateauthor, updated, startdate, timeworked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, w.ID, w.IssueID, w.Author, w.Body, ts(w.StartDate), w.Author, ts(w.Updated), ts(w.StartDate), w.TimeWorkedSeconds)
	if err != nil {
		return fmt.Errorf("save worklog %d: %w", w.ID, err)
	}
	return nil
}

func nullable(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
