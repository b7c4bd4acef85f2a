package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// minCommentWrap keeps narrow panes readable.
const minCommentWrap = 24

// commentRenderer renders worklog comments as markdown and rebuilds the glamour renderer on width changes.
type commentRenderer struct {
	width    int
	renderer *glamour.TermRenderer
}

// render returns the styled comment, or the raw text when glamour fails.
func (r *commentRenderer) render(comment string, width int) string {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return ""
	}
	width = max(width, minCommentWrap)
	if r.renderer == nil || r.width != width {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return comment
		}
		r.renderer = renderer
		r.width = width
	}
	out, err := r.renderer.Render(comment)
	if err != nil {
		return comment
	}
	return strings.Trim(out, "\n")
}
