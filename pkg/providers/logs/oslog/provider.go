// Package oslog builds targets for the macOS unified log (`log show` and
// `log stream`). The simulator provider reuses Args to run the same tool
// inside a simulator.
package oslog

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/devstroop/console-mcp/pkg/core"
)

// DefaultLast is the history window used when a query gives none.
const DefaultLast = 5 * time.Minute

// Provider serves the local macOS system log.
type Provider struct {
	goos string
}

// New creates an oslog provider.
func New() *Provider {
	return &Provider{goos: runtime.GOOS}
}

func (p *Provider) Name() string   { return "oslog" }
func (p *Provider) Kind() core.Kind { return core.KindSystem }

func (p *Provider) List(_ context.Context) ([]core.Source, error) {
	state := core.StateAvailable
	if p.goos != "darwin" {
		state = core.StateUnavailable
	}
	return []core.Source{{
		ID:    core.SourceID(core.KindSystem, p.Name(), "local"),
		Kind:  core.KindSystem,
		Name:  "macOS unified log",
		State: state,
	}}, nil
}

func (p *Provider) Target(_ context.Context, q core.Query) (core.LogTarget, error) {
	if p.goos != "darwin" {
		return core.LogTarget{}, fmt.Errorf("oslog: unified log is only available on macOS")
	}
	args, filter, err := Args(q)
	if err != nil {
		return core.LogTarget{}, err
	}
	return core.NewLogTarget("log", args, filter).WithLabel("system log"), nil
}

// Args returns the `log` arguments for q and the predicate embedded in them.
func Args(q core.Query) ([]string, string, error) {
	level, levelPred, err := mapLevel(q.Level)
	if err != nil {
		return nil, "", err
	}
	pred := Predicate(q, levelPred)

	var args []string
	if q.Follow {
		args = []string{"stream", "--style", "syslog"}
		if level != "" {
			args = append(args, "--level", level)
		}
	} else {
		args = []string{"show", "--style", "syslog", "--last", FormatLast(q.LastOr(DefaultLast))}
		if level != "" {
			args = append(args, "--"+level)
		}
	}
	if pred != "" {
		args = append(args, "--predicate", pred)
	}
	return args, pred, nil
}

// Predicate combines the process, subsystem and level clauses of q with any
// caller-supplied predicate, which is passed through verbatim.
func Predicate(q core.Query, levelClause string) string {
	var clauses []string
	if q.Process != "" {
		clauses = append(clauses, fmt.Sprintf("process == %s", quote(q.Process)))
	}
	if q.Subsystem != "" {
		clauses = append(clauses, fmt.Sprintf("subsystem == %s", quote(q.Subsystem)))
	}
	if levelClause != "" {
		clauses = append(clauses, levelClause)
	}
	if q.Predicate != "" {
		if len(clauses) > 0 {
			clauses = append(clauses, "("+q.Predicate+")")
		} else {
			clauses = append(clauses, q.Predicate)
		}
	}
	return strings.Join(clauses, " AND ")
}

// mapLevel turns a level name into either a `log` level flag (info, debug)
// or a messageType predicate clause (error, fault).
func mapLevel(level string) (flag, clause string, err error) {
	switch strings.ToLower(level) {
	case "", "default", "notice":
		return "", "", nil
	case "info":
		return "info", "", nil
	case "debug":
		return "debug", "", nil
	case "error":
		return "", "messageType == error", nil
	case "fault":
		return "", "messageType == fault", nil
	default:
		return "", "", fmt.Errorf("oslog: unknown level %q (want default, info, debug, error or fault)", level)
	}
}

// FormatLast renders d for `log show --last`, which takes whole minutes,
// hours or days. Sub-minute windows round up to one minute.
func FormatLast(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	default:
		m := (d + time.Minute - 1) / time.Minute
		if m < 1 {
			m = 1
		}
		return fmt.Sprintf("%dm", m)
	}
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
