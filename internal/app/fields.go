package app

import (
	"context"
	"slices"
	"strings"

	"github.com/hylla/timelog/internal/domain"
)

// Field selection tokens understood in the fields parameter.
const (
	EmptyFieldValue = "emptyFieldValue"
	AllFields       = "*all"
	NavigableFields = "*navigable"
)

// FieldSelection is one parsed fields parameter.
type FieldSelection struct {
	suppress bool
	all      bool
	include  []string
	exclude  map[string]struct{}
	tokens   map[string]struct{}
}

// ParseFieldSelection splits repeated or comma-joined field values.
func ParseFieldSelection(values []string) FieldSelection {
	sel := FieldSelection{
		exclude: map[string]struct{}{},
		tokens:  map[string]struct{}{},
	}
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			name := strings.TrimSpace(part)
			if name == "" {
				continue
			}
			sel.tokens[name] = struct{}{}
			switch {
			case name == EmptyFieldValue:
				sel.suppress = true
			case name == AllFields || name == NavigableFields:
				sel.all = true
			case strings.HasPrefix(name, "-"):
				if excluded := strings.TrimSpace(name[1:]); excluded != "" {
					sel.exclude[excluded] = struct{}{}
				}
			default:
				if !slices.Contains(sel.include, name) {
					sel.include = append(sel.include, name)
				}
			}
		}
	}
	return sel
}

// Contains reports whether name was requested verbatim.
func (s FieldSelection) Contains(name string) bool {
	_, ok := s.tokens[name]
	return ok
}

// Suppressed reports whether enrichment is disabled.
func (s FieldSelection) Suppressed() bool {
	return s.suppress
}

// Empty reports whether no token was given.
func (s FieldSelection) Empty() bool {
	return len(s.tokens) == 0
}

// Resolve returns the field ids to render, given the navigable set.
func (s FieldSelection) Resolve(navigable []string) []string {
	if s.suppress {
		return nil
	}
	known := make(map[string]struct{}, len(navigable))
	for _, id := range navigable {
		known[id] = struct{}{}
	}

	var candidates []string
	if s.all || len(s.include) == 0 {
		candidates = append(candidates, navigable...)
	}
	for _, name := range s.include {
		if _, ok := known[name]; ok && !slices.Contains(candidates, name) {
			candidates = append(candidates, name)
		}
	}

	out := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if _, drop := s.exclude[name]; drop {
			continue
		}
		out = append(out, name)
	}
	return out
}

// renderFields renders each field independently; failures and nil values are omitted.
func (s *Service) renderFields(ctx context.Context, caller string, issue domain.Issue, fields []string) map[string]any {
	if s.fields == nil || len(fields) == 0 {
		return nil
	}
	out := make(map[string]any, len(fields))
	for _, field := range fields {
		value, err := s.fields.RenderField(ctx, caller, issue, field)
		if err != nil || value == nil {
			continue
		}
		out[field] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
