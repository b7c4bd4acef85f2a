package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/timelog/internal/domain"
)

// DefaultMaxResults is the page size used when none or a negative one is given.
const DefaultMaxResults = 25

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	Location          *time.Location
	BaseURL           string
	DefaultMaxResults int
}

// Clock returns the current time.
type Clock func() time.Time

// Service answers worklog queries over the injected collaborators.
type Service struct {
	worklogs   WorklogStore
	directory  Directory
	authorizer Authorizer
	searcher   IssueSearcher
	fields     FieldRenderer
	clock      Clock
	loc        *time.Location
	baseURL    string
	defaultMax int
}

// NewService constructs a new value for this package.
func NewService(deps Collaborators, clock Clock, cfg ServiceConfig) *Service {
	if clock == nil {
		clock = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.DefaultMaxResults <= 0 {
		cfg.DefaultMaxResults = DefaultMaxResults
	}
	return &Service{
		worklogs:   deps.Worklogs,
		directory:  deps.Directory,
		authorizer: deps.Authorizer,
		searcher:   deps.Searcher,
		fields:     deps.Fields,
		clock:      clock,
		loc:        cfg.Location,
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		defaultMax: cfg.DefaultMaxResults,
	}
}

// Location returns the zone dates are interpreted and rendered in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// DefaultPageSize returns the configured default page size.
func (s *Service) DefaultPageSize() int {
	return s.defaultMax
}

// FindWorklogsInput holds input values for range-mode queries.
type FindWorklogsInput struct {
	Caller    string
	StartDate string
	EndDate   string
	User      string
	Group     string
	Project   string
	Fields    []string
}

// FindWorklogsByIssuesInput holds input values for aggregate-mode queries.
type FindWorklogsByIssuesInput struct {
	Caller     string
	StartDate  string
	EndDate    string
	User       string
	Group      string
	JQL        string
	StartAt    int
	MaxResults int
	Fields     []string
}

// FindWorklogs lists worklogs started inside the window.
func (s *Service) FindWorklogs(ctx context.Context, in FindWorklogsInput) ([]WorklogRecord, error) {
	return s.findWorklogs(ctx, in, false)
}

// FindUpdatedWorklogs lists worklogs updated inside the window.
func (s *Service) FindUpdatedWorklogs(ctx context.Context, in FindWorklogsInput) ([]WorklogRecord, error) {
	return s.findWorklogs(ctx, in, true)
}

func (s *Service) findWorklogs(ctx context.Context, in FindWorklogsInput, useUpdated bool) ([]WorklogRecord, error) {
	if isBlank(in.StartDate) {
		return nil, missingParameter("startDate")
	}
	if err := checkPrincipalParams(in.User, in.Group); err != nil {
		return nil, err
	}
	window, err := s.window(in.StartDate, in.EndDate)
	if err != nil {
		return nil, err
	}
	window.UseUpdated = useUpdated

	authors, err := s.resolvePrincipals(ctx, in.User, in.Group)
	if err != nil {
		return nil, storageFailure(err)
	}
	if len(authors) == 0 {
		return nil, noMatchingPrincipal()
	}

	projectIDs, err := s.browsableProjectIDs(ctx, in.Caller, in.Project)
	if err != nil {
		return nil, storageFailure(err)
	}
	if len(projectIDs) == 0 {
		if !isBlank(in.Project) {
			return nil, queryError(ErrNoMatchingProject, nil,
				"Error running search: There is no project matching the given 'project' parameter: "+strings.TrimSpace(in.Project))
		}
		return []WorklogRecord{}, nil
	}
	if window.Empty() {
		return []WorklogRecord{}, nil
	}

	worklogs, err := s.worklogs.FindWorklogs(ctx, WorklogQuery{
		Window:     window,
		AuthorKeys: authors,
		ProjectIDs: projectIDs,
	})
	if err != nil {
		return nil, storageFailure(err)
	}
	return assembleWorklogRecords(worklogs, ParseFieldSelection(in.Fields), s.loc), nil
}

// FindWorklogsByIssues sums in-window time per issue over the search result.
func (s *Service) FindWorklogsByIssues(ctx context.Context, in FindWorklogsByIssuesInput) (IssueSearchPage, error) {
	if err := CheckByIssuesParams(in); err != nil {
		return IssueSearchPage{}, err
	}
	window, err := s.window(in.StartDate, in.EndDate)
	if err != nil {
		return IssueSearchPage{}, err
	}

	startAt := in.StartAt
	if startAt < 0 {
		startAt = 0
	}
	maxResults := in.MaxResults
	if maxResults < 0 {
		maxResults = s.defaultMax
	}
	page := IssueSearchPage{StartAt: startAt, MaxResults: maxResults, Issues: []IssueTimespent{}}

	authors, err := s.resolvePrincipals(ctx, in.User, in.Group)
	if err != nil {
		return IssueSearchPage{}, storageFailure(err)
	}
	if len(authors) == 0 {
		return IssueSearchPage{}, noMatchingPrincipal()
	}

	issues, err := s.searcher.SearchIssues(ctx, in.Caller, strings.TrimSpace(in.JQL))
	if err != nil {
		return IssueSearchPage{}, queryError(ErrSearchFailure, err, "Error running search: "+err.Error())
	}
	if len(issues) > 0 {
		projectIDs, err := s.browsableProjectIDs(ctx, in.Caller, "")
		if err != nil {
			return IssueSearchPage{}, storageFailure(err)
		}
		issues = browsableIssuesByID(issues, projectIDs)
	}
	if len(issues) == 0 || window.Empty() {
		return page, nil
	}

	sums, err := s.worklogs.SumTimeWorked(ctx, TimeSumQuery{
		Window:     window,
		AuthorKeys: authors,
		IssueIDs:   domain.IssueIDs(issues),
	})
	if err != nil {
		return IssueSearchPage{}, storageFailure(err)
	}

	matching := collectTimespent(issues, sums, s.baseURL)
	page.Total = len(matching)
	page.Issues = paginate(matching, startAt, maxResults)

	sel := ParseFieldSelection(in.Fields)
	if sel.Empty() {
		sel = ParseFieldSelection([]string{EmptyFieldValue})
	}
	if sel.Suppressed() || s.fields == nil || len(page.Issues) == 0 {
		return page, nil
	}
	navigable, err := s.fields.NavigableFields(ctx, in.Caller)
	if err != nil {
		return page, nil
	}
	selected := sel.Resolve(navigable)
	for i := range page.Issues {
		page.Issues[i].Fields = s.renderFields(ctx, in.Caller, page.Issues[i].issue, selected)
	}
	return page, nil
}

// CheckByIssuesParams reports the first missing or conflicting aggregate-mode parameter.
func CheckByIssuesParams(in FindWorklogsByIssuesInput) error {
	if isBlank(in.StartDate) {
		return missingParameter("startDate")
	}
	if isBlank(in.EndDate) {
		return missingParameter("endDate")
	}
	return checkPrincipalParams(in.User, in.Group)
}

// window parses both dates, reporting the first one that fails.
func (s *Service) window(startDate, endDate string) (domain.QueryWindow, error) {
	window, err := domain.NormalizeWindow(startDate, endDate, s.clock(), s.loc)
	if err != nil {
		var de *domain.DateError
		if errors.As(err, &de) {
			return domain.QueryWindow{}, queryError(ErrInvalidDateFormat, err,
				fmt.Sprintf("Cannot parse the '%s' parameter: %s", de.Param, de.Value))
		}
		return domain.QueryWindow{}, queryError(ErrInvalidDateFormat, err, err.Error())
	}
	return window, nil
}

func checkPrincipalParams(user, group string) error {
	hasUser, hasGroup := !isBlank(user), !isBlank(group)
	switch {
	case !hasUser && !hasGroup:
		return queryError(ErrMissingParameter, nil, "The 'user' or the 'group' parameter is missing!")
	case hasUser && hasGroup:
		return queryError(ErrConflictingParameters, nil,
			"The 'user' and the 'group' parameters cannot be present at the same time.")
	}
	return nil
}

func missingParameter(name string) error {
	return queryError(ErrMissingParameter, nil, fmt.Sprintf("The '%s' parameter is missing!", name))
}

func noMatchingPrincipal() error {
	return queryError(ErrNoMatchingPrincipal, nil,
		"Error running search: There is no group or user matching the given parameters.")
}

func storageFailure(err error) error {
	var qe *QueryError
	if errors.As(err, &qe) {
		return err
	}
	return queryError(ErrStorageFailure, err, "Error when querying worklogs: "+err.Error())
}

func isBlank(v string) bool {
	return strings.TrimSpace(v) == ""
}
