package model

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/devstroop/console-mcp/pkg/core"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	matchStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	stderrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	doneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// View renders the TUI.
func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "loading..."
	}

	title := titleStyle.Render(" "+a.title+" ") + dimStyle.Render(a.filterLabel())
	if a.paused {
		title += " " + dimStyle.Render("[PAUSED]")
	}

	body := a.viewport.View()
	if len(a.lines) == 0 {
		body = dimStyle.Render("waiting for log output...")
	}

	footer := a.renderStatusBar()
	if a.mode == ModeFilter {
		footer = a.filter.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, body, footer)
}

func (a App) renderLines(lines []core.LogLine) string {
	var b strings.Builder
	w := a.width
	if w <= 0 {
		w = 1 << 16
	}
	for _, l := range lines {
		text := truncate(l.Line, w)
		switch {
		case a.highlight != nil && a.highlight.Matches(l.Line):
			text = matchStyle.Render(text)
		case l.Diagnostic():
			text = stderrStyle.Render(text)
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}
	return b.String()
}

func (a App) renderStatusBar() string {
	left := a.statusMsg
	switch {
	case a.runErr != nil:
		left = failStyle.Render(left)
	case a.result != nil:
		left = doneStyle.Render(left)
	}
	right := "/:filter space:pause c:copy g/G:top/bottom q:quit"

	gap := a.width - lipgloss.Width(left) - len(right)
	if gap < 1 {
		gap = 1
	}
	return left + helpStyle.Render(strings.Repeat(" ", gap)+right)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
