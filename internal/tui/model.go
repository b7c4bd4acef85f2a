// Package tui implements the interactive worklog browser.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/hylla/timelog/internal/app"
)

// Service is the query surface the browser reads from.
type Service interface {
	FindWorklogs(context.Context, app.FindWorklogsInput) ([]app.WorklogRecord, error)
	FindUpdatedWorklogs(context.Context, app.FindWorklogsInput) ([]app.WorklogRecord, error)
}

// table column widths; the issue column takes the rest.
const (
	colIDWidth       = 8
	colDateWidth     = 29
	colUserWidth     = 22
	colDurationWidth = 9
	minIssueWidth    = 10
	detailMinHeight  = 6
)

var (
	accentColor = lipgloss.Color("62")
	mutedColor  = lipgloss.Color("241")
	dimColor    = lipgloss.Color("239")
)

// loadedMsg carries one query result.
type loadedMsg struct {
	records []app.WorklogRecord
	updated bool
	err     error
}

// copiedMsg reports the clipboard result.
type copiedMsg struct {
	issueKey string
	err      error
}

// Model is the bubbletea model for the worklog browser.
type Model struct {
	svc      Service
	query    Query
	copyText func(string) error

	updatedMode bool
	records     []app.WorklogRecord
	selected    int
	loading     bool
	err         error
	status      string

	ready  bool
	width  int
	height int

	help     help.Model
	keys     keyMap
	comments *commentRenderer
}

// NewModel constructs the browser over svc.
func NewModel(svc Service, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	m := Model{
		svc:      svc,
		copyText: systemClipboard,
		status:   "loading...",
		loading:  true,
		help:     h,
		keys:     newKeyMap(),
		comments: &commentRenderer{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	return m
}

// Init loads the first result set.
func (m Model) Init() tea.Cmd {
	return m.loadData
}

// Update applies one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case loadedMsg:
		if msg.updated != m.updatedMode {
			// stale result from before a mode toggle
			return m, nil
		}
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			m.status = "query failed"
			return m, nil
		}
		m.err = nil
		m.records = msg.records
		m.selected = clamp(m.selected, 0, len(m.records)-1)
		m.status = fmt.Sprintf("%d worklogs %s", len(m.records), m.modeLabel())
		return m, nil

	case copiedMsg:
		if msg.err != nil {
			m.status = "copy failed: " + msg.err.Error()
			return m, nil
		}
		m.status = "copied " + msg.issueKey
		return m, nil

	case tea.KeyPressMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.reload):
		m.loading = true
		m.status = "reloading..."
		return m, m.loadData
	case key.Matches(msg, m.keys.toggleUpdated):
		m.updatedMode = !m.updatedMode
		m.loading = true
		m.selected = 0
		m.status = "loading " + m.modeLabel() + "..."
		return m, m.loadData
	case key.Matches(msg, m.keys.copyIssueKey):
		rec, ok := m.selectedRecord()
		if !ok {
			m.status = "nothing to copy"
			return m, nil
		}
		return m, m.copyIssueKey(rec.IssueKey)
	case key.Matches(msg, m.keys.moveDown):
		m.selected = clamp(m.selected+1, 0, len(m.records)-1)
	case key.Matches(msg, m.keys.moveUp):
		m.selected = clamp(m.selected-1, 0, len(m.records)-1)
	case key.Matches(msg, m.keys.top):
		m.selected = 0
	case key.Matches(msg, m.keys.bottom):
		m.selected = max(0, len(m.records)-1)
	}
	return m, nil
}

// loadData runs the query for the current mode.
func (m Model) loadData() tea.Msg {
	if m.svc == nil {
		return loadedMsg{updated: m.updatedMode, err: fmt.Errorf("worklog service is not configured")}
	}
	var (
		records []app.WorklogRecord
		err     error
	)
	if m.updatedMode {
		records, err = m.svc.FindUpdatedWorklogs(context.Background(), m.query.input())
	} else {
		records, err = m.svc.FindWorklogs(context.Background(), m.query.input())
	}
	return loadedMsg{records: records, updated: m.updatedMode, err: err}
}

func (m Model) copyIssueKey(issueKey string) tea.Cmd {
	write := m.copyText
	return func() tea.Msg {
		return copiedMsg{issueKey: issueKey, err: write(issueKey)}
	}
}

func (m Model) selectedRecord() (app.WorklogRecord, bool) {
	if len(m.records) == 0 {
		return app.WorklogRecord{}, false
	}
	return m.records[clamp(m.selected, 0, len(m.records)-1)], true
}

func (m Model) modeLabel() string {
	if m.updatedMode {
		return "updated"
	}
	return "started"
}

// View renders the browser in the alternate screen.
func (m Model) View() tea.View {
	v := tea.NewView(m.render())
	v.AltScreen = true
	return v
}

// render lays out the header, the worklog table, the detail pane, and the help footer.
func (m Model) render() string {
	if !m.ready {
		return "loading..."
	}

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	statusStyle := lipgloss.NewStyle().Foreground(dimColor)
	header := titleStyle.Render("timelog") + "  " +
		lipgloss.NewStyle().Foreground(mutedColor).Render(fmt.Sprintf(
			"%s %s..%s · %s",
			m.query.principal(), m.query.StartDate, m.query.EndDate, m.modeLabel(),
		))
	if p := strings.TrimSpace(m.query.Project); p != "" {
		header += lipgloss.NewStyle().Foreground(mutedColor).Render(" · project " + p)
	}

	helpBubble := m.help
	helpBubble.SetWidth(max(0, m.width-2))
	footer := lipgloss.NewStyle().
		Foreground(mutedColor).
		BorderTop(true).
		BorderForeground(dimColor).
		Padding(0, 1).
		Width(max(0, m.width)).
		Render(statusStyle.Render(m.status) + "\n" + helpBubble.View(m.keys))

	bodyHeight := max(1, m.height-lipgloss.Height(header)-lipgloss.Height(footer))
	var body string
	switch {
	case m.err != nil:
		body = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Render("error: "+m.err.Error()) +
			"\n\npress r to retry · q quit"
	case len(m.records) == 0 && !m.loading:
		body = "No worklogs in this window."
	default:
		detail := m.renderDetail(max(minIssueWidth, m.width-4))
		tableHeight := max(3, bodyHeight-lipgloss.Height(detail))
		body = m.renderTable(tableHeight) + "\n" + detail
	}
	return header + "\n" + fitLines(body, bodyHeight) + "\n" + footer
}

// renderTable renders the visible window of rows around the selection.
func (m Model) renderTable(height int) string {
	issueWidth := max(minIssueWidth, m.width-colIDWidth-colDateWidth-colUserWidth-colDurationWidth-4)
	headStyle := lipgloss.NewStyle().Bold(true).Foreground(mutedColor)
	rowStyle := lipgloss.NewStyle()
	selStyle := lipgloss.NewStyle().Bold(true).Foreground(accentColor)

	dateTitle := "Start"
	if m.updatedMode {
		dateTitle = "Updated"
	}
	lines := []string{headStyle.Render(formatRow(issueWidth, "ID", dateTitle, "Issue", "User", "Time"))}
	start, end := windowBounds(len(m.records), m.selected, max(1, height-1))
	for idx := start; idx < end; idx++ {
		rec := m.records[idx]
		line := formatRow(
			issueWidth,
			strconv.FormatInt(rec.ID, 10),
			m.rowDate(rec),
			rec.IssueKey,
			rec.UserID,
			formatDuration(rec.Duration),
		)
		style := rowStyle
		prefix := "  "
		if idx == m.selected {
			style = selStyle
			prefix = "> "
		}
		lines = append(lines, style.Render(prefix+line))
	}
	lines[0] = "  " + lines[0]
	return strings.Join(lines, "\n")
}

func (m Model) rowDate(rec app.WorklogRecord) string {
	if m.updatedMode && rec.Updated != nil {
		return *rec.Updated
	}
	return rec.StartDate
}

// renderDetail renders the selected worklog with its comment as markdown.
func (m Model) renderDetail(width int) string {
	rec, ok := m.selectedRecord()
	if !ok {
		return ""
	}
	labelStyle := lipgloss.NewStyle().Foreground(mutedColor)
	lines := []string{
		lipgloss.NewStyle().Bold(true).Foreground(accentColor).Render(rec.IssueKey) +
			labelStyle.Render(fmt.Sprintf("  worklog %d · %s", rec.ID, formatDuration(rec.Duration))),
		labelStyle.Render("started ") + rec.StartDate,
	}
	if rec.Updated != nil {
		lines = append(lines, labelStyle.Render("updated ")+*rec.Updated)
	}
	comment := ""
	if rec.Comment != nil {
		comment = m.comments.render(*rec.Comment, width)
	}
	if comment == "" {
		comment = labelStyle.Render("(no comment)")
	}
	lines = append(lines, "", comment)
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(dimColor).
		Padding(0, 1).
		Width(max(minIssueWidth, width+2))
	return box.Render(fitLines(strings.Join(lines, "\n"), max(detailMinHeight, lipgloss.Height(strings.Join(lines, "\n")))))
}

func formatRow(issueWidth int, id, date, issue, user, duration string) string {
	return pad(id, colIDWidth) + pad(date, colDateWidth) + pad(issue, issueWidth) + pad(user, colUserWidth) + duration
}

// pad truncates or right-pads s to width cells.
func pad(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		runes := []rune(s)
		if width <= 1 || len(runes) < width {
			return s + " "
		}
		return string(runes[:width-2]) + "… "
	}
	return s + strings.Repeat(" ", width-w)
}

// formatDuration renders seconds the way Jira shows time spent.
func formatDuration(seconds int64) string {
	if seconds <= 0 {
		return "0m"
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	switch {
	case hours > 0 && minutes > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh", hours)
	case minutes > 0:
		return fmt.Sprintf("%dm", minutes)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// windowBounds returns an inclusive-exclusive list window that keeps selected visible.
func windowBounds(total, selected, windowSize int) (int, int) {
	if total <= 0 || windowSize <= 0 {
		return 0, 0
	}
	if total <= windowSize {
		return 0, total
	}
	selected = clamp(selected, 0, total-1)
	start := max(0, selected-windowSize/2)
	end := start + windowSize
	if end > total {
		end = total
		start = max(0, end-windowSize)
	}
	return start, end
}

func clamp(v, minV, maxV int) int {
	if maxV < minV {
		return minV
	}
	return min(max(v, minV), maxV)
}

// fitLines truncates or pads content to exactly maxLines lines.
func fitLines(content string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.Split(content, "\n")
	switch {
	case len(lines) > maxLines:
		if maxLines == 1 {
			lines = []string{"…"}
		} else {
			lines = append(lines[:maxLines-1], "…")
		}
	case len(lines) < maxLines:
		lines = append(lines, make([]string, maxLines-len(lines))...)
	}
	return strings.Join(lines, "\n")
}
