package jirasql

import (
	"strings"

	"github.com/hylla/timelog/internal/domain"
)

// MaxBindParams caps the issue ids bound into one sum statement.
const MaxBindParams = 500

// Legacy numeric id of the browse permission on old permission schemes.
const legacyBrowsePermission = 10

// WorklogRange selects range-mode worklog rows ordered by worklog id.
// Columns: id, issueid, pkey, issuenum, author, user_name, startdate, updated, timeworked, worklogbody.
func WorklogRange(d Dialect, window domain.QueryWindow, authors []string, projectIDs []int64) Statement {
	column := "w.startdate"
	if window.UseUpdated {
		column = "w.updated"
	}
	b := newBuilder(d)
	b.write(`SELECT w.id, w.issueid, p.pkey, i.issuenum, w.author, cu.user_name,
	w.startdate, w.updated, w.timeworked, COALESCE(w.worklogbody, '')
FROM worklog w
JOIN jiraissue i ON i.id = w.issueid
JOIN project p ON p.id = i.project
JOIN app_user au ON au.user_key = w.author
JOIN cwd_user cu ON cu.lower_user_name = au.lower_user_name
WHERE `)
	b.write(column, " >= ", b.bindTime(window.Start))
	b.write(" AND ", column, " < ", b.bindTime(window.Until()))
	b.write(" AND w.author IN ", list(b, authors))
	b.write(" AND i.project IN ", list(b, projectIDs))
	b.write(" ORDER BY w.id ASC")
	return b.statement()
}

// TimeSums returns one grouped SUM statement per chunk of at most MaxBindParams issue ids.
// Columns: issueid, total.
func TimeSums(d Dialect, window domain.QueryWindow, authors []string, issueIDs []int64) []Statement {
	out := make([]Statement, 0, len(issueIDs)/MaxBindParams+1)
	for start := 0; start < len(issueIDs); start += MaxBindParams {
		end := min(start+MaxBindParams, len(issueIDs))
		b := newBuilder(d)
		b.write(`SELECT w.issueid, CAST(SUM(w.timeworked) AS BIGINT)
FROM worklog w
WHERE w.startdate >= `, b.bindTime(window.Start))
		b.write(" AND w.startdate < ", b.bindTime(window.Until()))
		b.write(" AND w.author IN ", list(b, authors))
		b.write(" AND w.issueid IN ", list(b, issueIDs[start:end]))
		b.write(" GROUP BY w.issueid")
		out = append(out, b.statement())
	}
	return out
}

// UserKeyByName resolves a login name to its user key.
func UserKeyByName(d Dialect, name string) Statement {
	b := newBuilder(d)
	b.write(`SELECT au.user_key FROM app_user au WHERE au.lower_user_name = `, b.bind(strings.ToLower(strings.TrimSpace(name))))
	return b.statement()
}

// GroupMemberKeys lists the user keys of direct group members.
func GroupMemberKeys(d Dialect, group string) Statement {
	b := newBuilder(d)
	b.write(`SELECT au.user_key
FROM cwd_membership m
JOIN app_user au ON au.lower_user_name = m.lower_child_name
WHERE m.membership_type = 'GROUP_USER' AND m.lower_parent_name = `, b.bind(strings.ToLower(strings.TrimSpace(group))))
	b.write(" ORDER BY au.user_key ASC")
	return b.statement()
}

// BrowsableProjects lists projects whose permission scheme grants browse to caller.
// An empty caller is anonymous. Columns: id, pkey, pname.
func BrowsableProjects(d Dialect, caller string) Statement {
	caller = strings.ToLower(strings.TrimSpace(caller))
	b := newBuilder(d)
	b.write(`SELECT p.id, p.pkey, COALESCE(p.pname, p.pkey)
FROM project p
WHERE EXISTS (
	SELECT 1
	FROM nodeassociation na
	JOIN schemepermissions sp ON sp.scheme = na.sink_node_id
	WHERE na.source_node_id = p.id
		AND na.source_node_entity = 'Project'
		AND na.sink_node_entity = 'PermissionScheme'
		AND (sp.permission_key = 'BROWSE_PROJECTS' OR sp.permission = `, b.bind(legacyBrowsePermission), `)
		AND (
			(sp.perm_type = 'group' AND (sp.perm_parameter IS NULL OR sp.perm_parameter = ''))`)
	if caller != "" {
		b.write(`
			OR (sp.perm_type = 'group' AND LOWER(sp.perm_parameter) IN (
				SELECT m.lower_parent_name FROM cwd_membership m
				WHERE m.membership_type = 'GROUP_USER' AND m.lower_child_name = `, b.bind(caller), `))
			OR (sp.perm_type = 'user' AND sp.perm_parameter IN (
				SELECT au.user_key FROM app_user au WHERE au.lower_user_name = `, b.bind(caller), `))
			OR sp.perm_type = 'applicationRole'`)
	}
	b.write(`
		)
)
ORDER BY p.id ASC`)
	return b.statement()
}

// issueColumns selects one domain.Issue row.
const issueColumns = `SELECT i.id, p.pkey, i.issuenum, i.project, COALESCE(i.summary, ''),
	COALESCE(s.pname, ''), COALESCE(pr.pname, ''), COALESCE(i.assignee, ''), COALESCE(i.reporter, ''),
	i.created, i.updated
FROM jiraissue i
JOIN project p ON p.id = i.project
LEFT JOIN issuestatus s ON s.id = i.issuestatus
LEFT JOIN priority pr ON pr.id = i.priority`

// SearchIssues compiles jql against the issues of projectIDs.
// Columns: id, pkey, issuenum, project, summary, status, priority, assignee, reporter, created, updated.
func SearchIssues(d Dialect, jql string, projectIDs []int64) (Statement, error) {
	q, err := ParseJQL(jql)
	if err != nil {
		return Statement{}, err
	}
	b := newBuilder(d)
	b.write(issueColumns, "\nWHERE i.project IN ", list(b, projectIDs))
	for _, c := range q.Clauses {
		b.write(" AND ")
		if err := c.compile(b); err != nil {
			return Statement{}, err
		}
	}
	b.write(" ORDER BY ", q.orderSQL())
	return b.statement(), nil
}
