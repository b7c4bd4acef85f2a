package jirasql

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/hylla/timelog/internal/domain"
)

// navigableFields lists the field ids the database adapters can render.
var navigableFields = []string{"summary", "project", "status", "priority", "assignee", "reporter", "created", "updated"}

// FieldRenderer renders issue fields from the columns already loaded by SearchIssues.
type FieldRenderer struct {
	loc *time.Location
}

// NewFieldRenderer constructs a renderer that formats dates in loc.
func NewFieldRenderer(loc *time.Location) *FieldRenderer {
	if loc == nil {
		loc = time.Local
	}
	return &FieldRenderer{loc: loc}
}

// NavigableFields returns the renderable field ids.
func (r *FieldRenderer) NavigableFields(context.Context, string) ([]string, error) {
	return append([]string(nil), navigableFields...), nil
}

// RenderField renders one field; empty values render as nil.
func (r *FieldRenderer) RenderField(_ context.Context, _ string, issue domain.Issue, field string) (any, error) {
	switch field {
	case "summary":
		return nonEmpty(issue.Summary), nil
	case "project":
		return map[string]any{"id": strconv.FormatInt(issue.ProjectID, 10), "key": projectKeyOf(issue.Key)}, nil
	case "status":
		return named(issue.Status), nil
	case "priority":
		return named(issue.Priority), nil
	case "assignee":
		return userRef(issue.Assignee), nil
	case "reporter":
		return userRef(issue.Reporter), nil
	case "created":
		return r.timestamp(issue.Created), nil
	case "updated":
		return r.timestamp(issue.Updated), nil
	}
	return nil, fmt.Errorf("field %q is not renderable", field)
}

func (r *FieldRenderer) timestamp(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return domain.FormatTimestamp(t, r.loc)
}

func nonEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func named(v string) any {
	if v == "" {
		return nil
	}
	return map[string]any{"name": v}
}

func userRef(key string) any {
	if key == "" {
		return nil
	}
	return map[string]any{"key": key, "name": key}
}

func projectKeyOf(issueKey string) string {
	for i := len(issueKey) - 1; i >= 0; i-- {
		if issueKey[i] == '-' {
			return issueKey[:i]
		}
	}
	return issueKey
}
