package app

import (
	"context"
	"fmt"
	"strings"
)

// resolvePrincipals maps a user or group name to the user keys stored on worklogs.
// An unknown user or an empty group yields an empty set.
func (s *Service) resolvePrincipals(ctx context.Context, user, group string) ([]string, error) {
	group = strings.TrimSpace(group)
	if group != "" {
		keys, err := s.directory.GroupMemberKeys(ctx, group)
		if err != nil {
			return nil, fmt.Errorf("list members of %q: %w", group, err)
		}
		return uniqueNonEmpty(keys), nil
	}

	user = strings.TrimSpace(user)
	if user == "" {
		return nil, nil
	}
	key, ok, err := s.directory.UserKeyByName(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("look up user %q: %w", user, err)
	}
	if !ok || strings.TrimSpace(key) == "" {
		return nil, nil
	}
	return []string{key}, nil
}

// uniqueNonEmpty drops blanks and repeats, keeping first-seen order.
func uniqueNonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, raw := range in {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
