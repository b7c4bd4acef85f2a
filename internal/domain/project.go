package domain

import (
	"strings"
)

// Project represents project data used by this package.
type Project struct {
	ID   int64
	Key  string
	Name string
}

// NewProject constructs a new value for this package.
func NewProject(id int64, key, name string) (Project, error) {
	key = strings.TrimSpace(key)
	name = strings.TrimSpace(name)
	if id <= 0 {
		return Project{}, ErrInvalidID
	}
	if key == "" || strings.ContainsAny(key, " -") {
		return Project{}, ErrInvalidKey
	}
	if name == "" {
		name = key
	}
	return Project{
		ID:   id,
		Key:  key,
		Name: name,
	}, nil
}

// ProjectIDs returns the identifiers of the given projects in input order.
func ProjectIDs(projects []Project) []int64 {
	out := make([]int64, 0, len(projects))
	for _, project := range projects {
		out = append(out, project.ID)
	}
	return out
}
