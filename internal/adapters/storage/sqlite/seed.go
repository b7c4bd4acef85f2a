package sqlite

import (
	"context"
	"time"

	"github.com/hylla/timelog/internal/domain"
)

// ReferenceUser is the login name that owns the reference worklogs.
const ReferenceUser = "test-user@everit.biz"

// referenceZone is the offset the reference instants were recorded in.
var referenceZone = time.FixedZone("+0100", 3600)

func at(y int, m time.Month, d, hh, mm, ss, ms int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, ms*int(time.Millisecond), referenceZone)
}

// SeedReferenceData loads the sample project, issues, users, and worklogs.
// Re-running it leaves the database unchanged.
func (r *Repository) SeedReferenceData(ctx context.Context) error {
	sam, err := domain.NewProject(10000, "SAM", "Sample")
	if err != nil {
		return err
	}
	ops, err := domain.NewProject(10100, "OPS", "Operations")
	if err != nil {
		return err
	}
	for _, p := range []domain.Project{sam, ops} {
		if err := r.SaveProject(ctx, p); err != nil {
			return err
		}
	}

	users := []domain.User{
		{Key: ReferenceUser, Name: ReferenceUser},
		{Key: "JIRAUSER10100", Name: "ops-lead"},
	}
	for _, u := range users {
		if err := r.SaveUser(ctx, u); err != nil {
			return err
		}
	}
	memberships := [][2]string{
		{"jira-software-users", ReferenceUser},
		{"jira-software-users", "ops-lead"},
		{"ops-team", "ops-lead"},
	}
	for _, m := range memberships {
		if err := r.AddGroupMember(ctx, m[0], m[1]); err != nil {
			return err
		}
	}
	if err := r.GrantBrowse(ctx, sam.ID, 0, GrantAnyone, ""); err != nil {
		return err
	}
	if err := r.GrantBrowse(ctx, ops.ID, 10100, GrantGroup, "ops-team"); err != nil {
		return err
	}

	created := at(2016, time.February, 20, 9, 0, 0, 0)
	summaries := []string{"Set up the build", "Write the importer", "Review the schema", "Fix the report export", "Plan the next sprint"}
	for i, summary := range summaries {
		issue := domain.Issue{
			ID:        10000 + int64(i),
			Number:    int64(i + 1),
			ProjectID: sam.ID,
			Summary:   summary,
			Status:    "Open",
			Priority:  "Major",
			Reporter:  ReferenceUser,
			Assignee:  ReferenceUser,
			Created:   created,
			Updated:   created,
		}
		if err := r.SaveIssue(ctx, issue); err != nil {
			return err
		}
	}
	if err := r.SaveIssue(ctx, domain.Issue{
		ID: 10100, Number: 1, ProjectID: ops.ID, Summary: "Rotate certificates",
		Status: "In Progress", Priority: "Critical", Reporter: "JIRAUSER10100", Assignee: "JIRAUSER10100",
		Created: created, Updated: created,
	}); err != nil {
		return err
	}

	worklogs := []domain.WorklogInput{
		{ID: 10000, IssueID: 10000, Author: ReferenceUser, StartDate: at(2016, time.March, 7, 8, 0, 0, 0), Updated: at(2016, time.March, 11, 10, 46, 46, 277), TimeWorkedSeconds: 22020, Body: "asdfasf"},
		{ID: 10001, IssueID: 10001, Author: ReferenceUser, StartDate: at(2016, time.March, 1, 8, 0, 0, 0), Updated: at(2016, time.March, 7, 14, 8, 8, 967), TimeWorkedSeconds: 22020},
		{ID: 10002, IssueID: 10003, Author: ReferenceUser, StartDate: at(2016, time.February, 24, 8, 0, 0, 0), Updated: at(2016, time.March, 7, 14, 8, 24, 536), TimeWorkedSeconds: 22080},
		{ID: 10003, IssueID: 10004, Author: ReferenceUser, StartDate: at(2016, time.February, 23, 8, 0, 0, 0), Updated: at(2016, time.March, 7, 0, 0, 0, 0), TimeWorkedSeconds: 22080},
		{ID: 10100, IssueID: 10100, Author: "JIRAUSER10100", StartDate: at(2016, time.March, 2, 9, 30, 0, 0), Updated: at(2016, time.March, 2, 17, 0, 0, 0), TimeWorkedSeconds: 3600, Body: "Renewed the **edge** certificates."},
	}
	for _, in := range worklogs {
		w, err := domain.NewWorklog(in)
		if err != nil {
			return err
		}
		if err := r.SaveWorklog(ctx, w); err != nil {
			return err
		}
	}
	return nil
}
