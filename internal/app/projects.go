package app

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hylla/timelog/internal/domain"
)

// browsableProjectIDs returns the ids of projects the caller may browse,
// narrowed to one key when projectKey is set.
func (s *Service) browsableProjectIDs(ctx context.Context, caller, projectKey string) ([]int64, error) {
	projects, err := s.authorizer.BrowsableProjects(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("list browsable projects: %w", err)
	}
	projectKey = strings.TrimSpace(projectKey)
	if projectKey == "" {
		return domain.ProjectIDs(projects), nil
	}
	kept := make([]domain.Project, 0, 1)
	for _, p := range projects {
		if p.Key == projectKey {
			kept = append(kept, p)
		}
	}
	return domain.ProjectIDs(kept), nil
}

// browsableIssuesByID drops issues outside projectIDs and orders the rest by id.
func browsableIssuesByID(issues []domain.Issue, projectIDs []int64) []domain.Issue {
	kept := make([]domain.Issue, 0, len(issues))
	for _, issue := range issues {
		if slices.Contains(projectIDs, issue.ProjectID) {
			kept = append(kept, issue)
		}
	}
	slices.SortStableFunc(kept, func(a, b domain.Issue) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return kept
}
