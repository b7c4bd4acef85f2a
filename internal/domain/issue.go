package domain

import (
	"strconv"
	"strings"
	"time"
)

// Issue represents one read-only issue row joined with its project key.
type Issue struct {
	ID        int64
	Key       string
	ProjectID int64
	Number    int64
	Summary   string
	Status    string
	Priority  string
	Assignee  string
	Reporter  string
	Created   time.Time
	Updated   time.Time
}

// IssueKey builds the human issue key from a project key and sequence number.
func IssueKey(projectKey string, number int64) string {
	return strings.TrimSpace(projectKey) + "-" + strconv.FormatInt(number, 10)
}

// IssueIDs returns the identifiers of the given issues in input order.
func IssueIDs(issues []Issue) []int64 {
	out := make([]int64, 0, len(issues))
	for _, issue := range issues {
		out = append(out, issue.ID)
	}
	return out
}
