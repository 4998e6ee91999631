package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/devstroop/console-mcp/pkg/capture"
	"github.com/devstroop/console-mcp/pkg/core"
)

// Mode identifies the current interaction mode.
type Mode int

const (
	ModeNormal Mode = iota
	ModeFilter
)

// maxBuffered bounds the lines kept for display.
const maxBuffered = 5000

// RunFunc performs the acquisition the viewer displays. It must report
// every line to observe and return when the acquisition ends or ctx is done.
type RunFunc func(ctx context.Context, observe func(core.LogLine)) (capture.Result, error)

// Options configure the viewer.
type Options struct {
	Title string
	// Highlight marks lines matching a watch pattern.
	Highlight *capture.Matcher
	// Copy writes text to the clipboard; defaults to the system clipboard.
	Copy func(string) error
}

// App is the root Bubble Tea model of the live log viewer.
type App struct {
	title     string
	run       RunFunc
	highlight *capture.Matcher
	copy      func(string) error

	ctx    context.Context
	cancel context.CancelFunc
	lineCh chan core.LogLine

	lines     []core.LogLine
	lastMatch string
	paused    bool
	follow    bool
	result    *capture.Result
	runErr    error

	mode     Mode
	filter   textinput.Model
	matcher  *capture.Matcher
	viewport viewport.Model
	width    int
	height   int

	statusMsg string
}

// New creates a viewer for run.
func New(run RunFunc, opts Options) App {
	fi := textinput.New()
	fi.Placeholder = "filter..."
	fi.CharLimit = 128

	ctx, cancel := context.WithCancel(context.Background())
	cp := opts.Copy
	if cp == nil {
		cp = clipboard.WriteAll
	}
	return App{
		title:     opts.Title,
		run:       run,
		highlight: opts.Highlight,
		copy:      cp,
		ctx:       ctx,
		cancel:    cancel,
		lineCh:    make(chan core.LogLine, 1024),
		follow:    true,
		filter:    fi,
		viewport:  viewport.New(0, 0),
		mode:      ModeNormal,
		statusMsg: "capturing",
	}
}

// Init starts the acquisition.
func (a App) Init() tea.Cmd {
	return tea.Batch(
		runCmd(a.ctx, a.run, a.lineCh),
		waitLineCmd(a.ctx, a.lineCh),
		tea.SetWindowTitle("console-mcp: "+a.title),
	)
}

// lineMsg carries one captured line.
type lineMsg core.LogLine

// doneMsg carries the acquisition outcome.
type doneMsg struct {
	res capture.Result
	err error
}

// copiedMsg reports a clipboard write.
type copiedMsg struct{ err error }

func runCmd(ctx context.Context, run RunFunc, ch chan core.LogLine) tea.Cmd {
	return func() tea.Msg {
		res, err := run(ctx, func(l core.LogLine) {
			select {
			case ch <- l:
			default:
			}
		})
		return doneMsg{res: res, err: err}
	}
}

func waitLineCmd(ctx context.Context, ch chan core.LogLine) tea.Cmd {
	return func() tea.Msg {
		select {
		case l := <-ch:
			return lineMsg(l)
		case <-ctx.Done():
			return nil
		}
	}
}

func copyCmd(write func(string) error, text string) tea.Cmd {
	return func() tea.Msg {
		return copiedMsg{err: write(text)}
	}
}

// Update handles messages.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.viewport.Width = msg.Width
		a.viewport.Height = max(msg.Height-3, 1)
		a.refresh()
		return a, nil

	case lineMsg:
		a.addLine(core.LogLine(msg))
		return a, waitLineCmd(a.ctx, a.lineCh)

	case doneMsg:
		for drained := false; !drained; {
			select {
			case l := <-a.lineCh:
				a.addLine(l)
			default:
				drained = true
			}
		}
		a.result = &msg.res
		a.runErr = msg.err
		a.statusMsg = a.summary()
		a.cancel()
		return a, nil

	case copiedMsg:
		if msg.err != nil {
			a.statusMsg = "copy failed: " + msg.err.Error()
		} else {
			a.statusMsg = "copied to clipboard"
		}
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.mode == ModeFilter {
		switch msg.String() {
		case "esc":
			a.mode = ModeNormal
			a.filter.SetValue("")
			a.filter.Blur()
			a.applyFilter()
			return a, nil
		case "enter":
			a.mode = ModeNormal
			a.filter.Blur()
			return a, nil
		default:
			var cmd tea.Cmd
			a.filter, cmd = a.filter.Update(msg)
			a.applyFilter()
			return a, cmd
		}
	}

	switch msg.String() {
	case "q", "ctrl+c":
		a.cancel()
		return a, tea.Quit

	case "/":
		a.mode = ModeFilter
		a.filter.Focus()
		return a, textinput.Blink

	case " ", "p":
		a.paused = !a.paused
		if !a.paused {
			a.refresh()
		}

	case "c":
		text := a.lastMatch
		if text == "" && len(a.lines) > 0 {
			text = a.lines[len(a.lines)-1].Line
		}
		if text == "" {
			a.statusMsg = "nothing to copy"
			return a, nil
		}
		return a, copyCmd(a.copy, text)

	case "G", "end":
		a.follow = true
		a.viewport.GotoBottom()

	case "g", "home":
		a.follow = false
		a.viewport.GotoTop()

	default:
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(msg)
		a.follow = a.viewport.AtBottom()
		return a, cmd
	}
	return a, nil
}

func (a *App) addLine(l core.LogLine) {
	a.lines = append(a.lines, l)
	if len(a.lines) > maxBuffered {
		a.lines = a.lines[len(a.lines)-maxBuffered:]
	}
	if a.highlight != nil && a.highlight.Matches(l.Line) {
		a.lastMatch = l.Line
	}
	if !a.paused {
		a.refresh()
	}
}

func (a *App) applyFilter() {
	a.matcher = nil
	if v := a.filter.Value(); v != "" {
		if m, err := capture.NewMatcher(capture.Plain(v)); err == nil {
			a.matcher = m
		}
	}
	a.refresh()
}

// Visible returns the buffered lines that pass the live filter.
func (a App) Visible() []core.LogLine {
	if a.matcher == nil {
		return a.lines
	}
	var out []core.LogLine
	for _, l := range a.lines {
		if a.matcher.Matches(l.Line) {
			out = append(out, l)
		}
	}
	return out
}

func (a *App) refresh() {
	a.viewport.SetContent(a.renderLines(a.Visible()))
	if a.follow {
		a.viewport.GotoBottom()
	}
}

// Result returns the acquisition outcome once it has finished.
func (a App) Result() (*capture.Result, error) {
	return a.result, a.runErr
}

// LastMatch returns the most recent line matching the highlight pattern.
func (a App) LastMatch() string { return a.lastMatch }

func (a App) summary() string {
	if a.runErr != nil {
		return "error: " + a.runErr.Error()
	}
	r := a.result
	switch r.Kind {
	case capture.KindMatchFound:
		return "match found: " + r.MatchedLine
	case capture.KindProcessError:
		return "error: " + r.Message
	case capture.KindTimedOut:
		return fmt.Sprintf("timed out after %s", r.Elapsed.Round(100*time.Millisecond))
	default:
		return fmt.Sprintf("%s: %d lines in %s", r.Kind, r.Lines, r.Elapsed.Round(100*time.Millisecond))
	}
}

func (a App) filterLabel() string {
	if v := strings.TrimSpace(a.filter.Value()); v != "" {
		return fmt.Sprintf(" [filter: %s]", v)
	}
	return ""
}
