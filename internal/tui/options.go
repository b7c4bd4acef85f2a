package tui

import (
	"strings"

	"github.com/atotto/clipboard"
	"github.com/hylla/timelog/internal/app"
)

// Query selects the worklogs the browser loads.
type Query struct {
	Caller    string
	StartDate string
	EndDate   string
	User      string
	Group     string
	Project   string
	// Updated starts the browser in updated-mode.
	Updated bool
}

func (q Query) input() app.FindWorklogsInput {
	return app.FindWorklogsInput{
		Caller:    q.Caller,
		StartDate: q.StartDate,
		EndDate:   q.EndDate,
		User:      q.User,
		Group:     q.Group,
		Project:   q.Project,
		Fields:    []string{"comment", "updated"},
	}
}

// principal names the user or group being browsed.
func (q Query) principal() string {
	if u := strings.TrimSpace(q.User); u != "" {
		return "user " + u
	}
	return "group " + strings.TrimSpace(q.Group)
}

type Option func(*Model)

// WithQuery sets the initial query.
func WithQuery(q Query) Option {
	return func(m *Model) {
		m.query = q
		m.updatedMode = q.Updated
	}
}

// WithClipboard replaces the system clipboard writer.
func WithClipboard(write func(string) error) Option {
	return func(m *Model) {
		if write != nil {
			m.copyText = write
		}
	}
}

func systemClipboard(text string) error {
	return clipboard.WriteAll(text)
}
