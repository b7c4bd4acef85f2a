package tui

import (
	"testing"

	"charm.land/bubbles/v2/key"
)

// TestKeyMapHelpCoversBindings verifies every binding is reachable from full help.
func TestKeyMapHelpCoversBindings(t *testing.T) {
	k := newKeyMap()
	seen := map[string]bool{}
	for _, group := range k.FullHelp() {
		for _, b := range group {
			seen[b.Help().Key] = true
		}
	}
	for _, b := range []key.Binding{k.quit, k.reload, k.toggleHelp, k.toggleUpdated, k.copyIssueKey, k.moveUp, k.moveDown, k.top, k.bottom} {
		if !seen[b.Help().Key] {
			t.Fatalf("binding %q missing from full help", b.Help().Key)
		}
	}
}

// TestKeyMapMatches verifies the browser keys resolve to their bindings.
func TestKeyMapMatches(t *testing.T) {
	k := newKeyMap()
	cases := []struct {
		r    rune
		want key.Binding
	}{
		{r: 'q', want: k.quit},
		{r: 'r', want: k.reload},
		{r: 'u', want: k.toggleUpdated},
		{r: 'y', want: k.copyIssueKey},
		{r: 'j', want: k.moveDown},
		{r: 'k', want: k.moveUp},
	}
	for _, tc := range cases {
		if !key.Matches(keyRune(tc.r), tc.want) {
			t.Fatalf("key %q does not match %q", tc.r, tc.want.Help().Desc)
		}
	}
	if len(k.ShortHelp()) == 0 {
		t.Fatal("expected short help bindings")
	}
}
