package journald

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/devstroop/console-mcp/pkg/core"
)

// DefaultLast is the history window used when a query gives none.
const DefaultLast = 5 * time.Minute

// Provider serves the local systemd journal through journalctl.
type Provider struct {
	lookPath func(string) (string, error)
}

// New creates a journald provider.
func New() *Provider {
	return &Provider{lookPath: exec.LookPath}
}

func (p *Provider) Name() string   { return "journald" }
func (p *Provider) Kind() core.Kind { return core.KindSystem }

func (p *Provider) List(_ context.Context) ([]core.Source, error) {
	src := core.Source{
		ID:    core.SourceID(core.KindSystem, p.Name(), "local"),
		Kind:  core.KindSystem,
		Name:  "systemd journal",
		State: core.StateAvailable,
	}
	if path, err := p.lookPath("journalctl"); err != nil {
		src.State = core.StateUnavailable
	} else {
		src.Details = map[string]string{"path": path}
	}
	return []core.Source{src}, nil
}

func (p *Provider) Target(_ context.Context, q core.Query) (core.LogTarget, error) {
	if _, err := p.lookPath("journalctl"); err != nil {
		return core.LogTarget{}, fmt.Errorf("journald: journalctl not found: %w", err)
	}
	args, err := Args(q)
	if err != nil {
		return core.LogTarget{}, err
	}
	label := "system journal"
	if q.Unit != "" {
		label = q.Unit
	}
	return core.NewLogTarget("journalctl", args, q.Predicate).WithLabel(label), nil
}

// Args returns the journalctl arguments for q. Predicate is passed to --grep.
func Args(q core.Query) ([]string, error) {
	args := []string{"--no-pager", "-o", "short-iso"}
	if q.Follow {
		args = append(args, "-f")
		if q.Last > 0 {
			args = append(args, fmt.Sprintf("--since=-%ds", int(q.Last.Seconds())))
		} else {
			args = append(args, "-n", "0")
		}
	} else {
		args = append(args, fmt.Sprintf("--since=-%ds", int(q.LastOr(DefaultLast).Seconds())))
	}
	if q.Unit != "" {
		args = append(args, "-u", q.Unit)
	}
	if q.Level != "" {
		prio, err := priority(q.Level)
		if err != nil {
			return nil, err
		}
		args = append(args, "-p", prio)
	}
	if q.Subsystem != "" {
		args = append(args, "-t", q.Subsystem)
	}
	if q.Predicate != "" {
		args = append(args, "--grep", q.Predicate)
	}
	if q.Process != "" {
		args = append(args, "_COMM="+q.Process)
	}
	return args, nil
}

func priority(level string) (string, error) {
	switch strings.ToLower(level) {
	case "debug":
		return "debug", nil
	case "info":
		return "info", nil
	case "default", "notice":
		return "notice", nil
	case "warning", "warn":
		return "warning", nil
	case "error":
		return "err", nil
	case "fault", "critical":
		return "crit", nil
	default:
		return "", fmt.Errorf("journald: unknown level %q", level)
	}
}
