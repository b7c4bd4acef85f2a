package app

import (
	"strconv"
	"strings"
	"time"

	"github.com/hylla/timelog/internal/domain"
)

// WorklogRecord is one range-mode result row.
type WorklogRecord struct {
	ID        int64   `json:"id"`
	StartDate string  `json:"startDate"`
	IssueKey  string  `json:"issueKey"`
	UserID    string  `json:"userId"`
	Duration  int64   `json:"duration"`
	Comment   *string `json:"comment,omitempty"`
	Updated   *string `json:"updated,omitempty"`
}

// IssueTimespent is one aggregate-mode issue with its summed time.
type IssueTimespent struct {
	ID        string         `json:"id"`
	Key       string         `json:"key"`
	Self      string         `json:"self"`
	Timespent int64          `json:"timespent"`
	Fields    map[string]any `json:"fields,omitempty"`
	issue     domain.Issue
}

// Issue returns the underlying issue.
func (i IssueTimespent) Issue() domain.Issue {
	return i.issue
}

// IssueSearchPage is one page of aggregate-mode results.
type IssueSearchPage struct {
	StartAt    int              `json:"startAt"`
	MaxResults int              `json:"maxResults"`
	Total      int              `json:"total"`
	Issues     []IssueTimespent `json:"issues"`
}

func assembleWorklogRecords(worklogs []domain.Worklog, sel FieldSelection, loc *time.Location) []WorklogRecord {
	withComment := sel.Contains("comment")
	withUpdated := sel.Contains("updated")
	out := make([]WorklogRecord, 0, len(worklogs))
	for _, w := range worklogs {
		rec := WorklogRecord{
			ID:        w.ID,
			StartDate: domain.FormatTimestamp(w.StartDate, loc),
			IssueKey:  w.IssueKey,
			UserID:    w.AuthorName,
			Duration:  w.TimeWorkedSeconds,
		}
		if withComment {
			body := w.Body
			rec.Comment = &body
		}
		if withUpdated {
			updated := domain.FormatTimestamp(w.Updated, loc)
			rec.Updated = &updated
		}
		out = append(out, rec)
	}
	return out
}

// collectTimespent walks issues in order and keeps the ones with time logged.
func collectTimespent(issues []domain.Issue, sums map[int64]int64, baseURL string) []IssueTimespent {
	baseURL = strings.TrimRight(baseURL, "/")
	out := make([]IssueTimespent, 0, len(sums))
	for _, issue := range issues {
		spent := sums[issue.ID]
		if spent <= 0 {
			continue
		}
		id := strconv.FormatInt(issue.ID, 10)
		out = append(out, IssueTimespent{
			ID:        id,
			Key:       issue.Key,
			Self:      baseURL + "/rest/api/2/issue/" + id,
			Timespent: spent,
			issue:     issue,
		})
	}
	return out
}

// paginate returns the [startAt, startAt+maxResults) slice of items.
func paginate[T any](items []T, startAt, maxResults int) []T {
	if startAt >= len(items) || maxResults <= 0 {
		return []T{}
	}
	end := startAt + maxResults
	if end > len(items) || end < startAt {
		end = len(items)
	}
	return items[startAt:end]
}
