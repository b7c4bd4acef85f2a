package domain

import (
	"strings"
	"time"
)

// User identifies one directory user by stable key and login name.
type User struct {
	Key  string
	Name string
}

// Worklog represents one recorded unit of time spent on an issue.
type Worklog struct {
	ID                int64
	IssueID           int64
	IssueKey          string
	Author            string
	AuthorName        string
	StartDate         time.Time
	Updated           time.Time
	TimeWorkedSeconds int64
	Body              string
}

// WorklogInput holds input values for worklog construction.
type WorklogInput struct {
	ID                int64
	IssueID           int64
	Author            string
	StartDate         time.Time
	Updated           time.Time
	TimeWorkedSeconds int64
	Body              string
}

// NewWorklog validates input and constructs one worklog.
func NewWorklog(in WorklogInput) (Worklog, error) {
	in.Author = strings.TrimSpace(in.Author)
	if in.ID <= 0 || in.IssueID <= 0 {
		return Worklog{}, ErrInvalidID
	}
	if in.Author == "" {
		return Worklog{}, ErrInvalidKey
	}
	if in.TimeWorkedSeconds < 0 {
		return Worklog{}, ErrInvalidDuration
	}
	if in.StartDate.IsZero() {
		return Worklog{}, ErrInvalidDate
	}
	updated := in.Updated
	if updated.IsZero() {
		updated = in.StartDate
	}
	return Worklog{
		ID:                in.ID,
		IssueID:           in.IssueID,
		Author:            in.Author,
		StartDate:         in.StartDate,
		Updated:           updated,
		TimeWorkedSeconds: in.TimeWorkedSeconds,
		Body:              in.Body,
	}, nil
}
