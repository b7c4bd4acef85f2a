package common

import (
	"context"
	"errors"
	"fmt"

	"github.com/hylla/timelog/internal/app"
)

// AppServiceAdapter maps transport contracts onto app.Service query APIs.
type AppServiceAdapter struct {
	service *app.Service
}

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
func NewAppServiceAdapter(service *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{service: service}
}

// FindWorklogs runs one range-mode query filtered by start date.
func (a *AppServiceAdapter) FindWorklogs(ctx context.Context, in FindWorklogsRequest) ([]app.WorklogRecord, error) {
	if a == nil || a.service == nil {
		return nil, fmt.Errorf("find worklogs: %w", ErrServiceUnavailable)
	}
	records, err := a.service.FindWorklogs(ctx, worklogsInput(in))
	if err != nil {
		return nil, mapAppError("find worklogs", err)
	}
	return records, nil
}

// FindUpdatedWorklogs runs one range-mode query filtered by update time.
func (a *AppServiceAdapter) FindUpdatedWorklogs(ctx context.Context, in FindWorklogsRequest) ([]app.WorklogRecord, error) {
	if a == nil || a.service == nil {
		return nil, fmt.Errorf("find updated worklogs: %w", ErrServiceUnavailable)
	}
	records, err := a.service.FindUpdatedWorklogs(ctx, worklogsInput(in))
	if err != nil {
		return nil, mapAppError("find updated worklogs", err)
	}
	return records, nil
}

// FindWorklogsByIssues runs one aggregate-mode query and returns the requested page.
func (a *AppServiceAdapter) FindWorklogsByIssues(ctx context.Context, in FindWorklogsByIssuesRequest) (app.IssueSearchPage, error) {
	if a == nil || a.service == nil {
		return app.IssueSearchPage{}, fmt.Errorf("find worklogs by issues: %w", ErrServiceUnavailable)
	}
	startAt := 0
	if in.StartAt != nil {
		startAt = *in.StartAt
	}
	maxResults := a.service.DefaultPageSize()
	if in.MaxResults != nil {
		maxResults = *in.MaxResults
	}
	page, err := a.service.FindWorklogsByIssues(ctx, app.FindWorklogsByIssuesInput{
		Caller:     in.Caller,
		StartDate:  in.StartDate,
		EndDate:    in.EndDate,
		User:       in.User,
		Group:      in.Group,
		JQL:        in.JQL,
		StartAt:    startAt,
		MaxResults: maxResults,
		Fields:     append([]string(nil), in.Fields...),
	})
	if err != nil {
		return app.IssueSearchPage{}, mapAppError("find worklogs by issues", err)
	}
	return page, nil
}

// CheckByIssuesRequest runs the required-parameter checks of an aggregate query
// without calling the service.
func CheckByIssuesRequest(in FindWorklogsByIssuesRequest) error {
	return mapAppError("find worklogs by issues", app.CheckByIssuesParams(app.FindWorklogsByIssuesInput{
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		User:      in.User,
		Group:     in.Group,
	}))
}

func worklogsInput(in FindWorklogsRequest) app.FindWorklogsInput {
	return app.FindWorklogsInput{
		Caller:    in.Caller,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		User:      in.User,
		Group:     in.Group,
		Project:   in.Project,
		Fields:    append([]string(nil), in.Fields...),
	}
}

// mapAppError joins app failures with the matching transport sentinel.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, app.ErrMissingParameter):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrMissingParameter, err))
	case errors.Is(err, app.ErrConflictingParameters):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrConflictingParameters, err))
	case errors.Is(err, app.ErrInvalidDateFormat):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidDate, err))
	case errors.Is(err, app.ErrNoMatchingPrincipal):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNoMatchingPrincipal, err))
	case errors.Is(err, app.ErrNoMatchingProject):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNoMatchingProject, err))
	case errors.Is(err, app.ErrSearchFailure):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrSearchFailed, err))
	case errors.Is(err, app.ErrStorageFailure):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrStorageFailed, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
