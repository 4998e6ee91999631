package systemd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"

	"github.com/devstroop/console-mcp/pkg/core"
)

// DefaultPatterns selects the units listed when none are configured.
var DefaultPatterns = []string{"*.service"}

// Journal builds the journalctl target for a unit query.
type Journal interface {
	Target(ctx context.Context, q core.Query) (core.LogTarget, error)
}

// Provider enumerates systemd units via D-Bus and reads their logs from the journal.
type Provider struct {
	patterns []string // unit name patterns to enumerate (from config)
	journal  Journal
	logger   *slog.Logger
}

// New creates a systemd provider for the given unit name patterns.
func New(patterns []string, journal Journal, logger *slog.Logger) *Provider {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	return &Provider{patterns: patterns, journal: journal, logger: logger}
}

func (p *Provider) Name() string   { return "systemd" }
func (p *Provider) Kind() core.Kind { return core.KindUnit }

func (p *Provider) List(ctx context.Context) ([]core.Source, error) {
	conn, err := dbus.NewWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("dbus connect: %w", err)
	}
	defer conn.Close()

	units, err := conn.ListUnitsByPatternsContext(ctx, nil, p.patterns)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}

	sources := make([]core.Source, 0, len(units))
	for _, u := range units {
		src := UnitSource(u)
		if u.ActiveState == "active" && strings.HasSuffix(u.Name, ".service") {
			props, err := conn.GetUnitTypePropertiesContext(ctx, u.Name, "Service")
			if err != nil {
				p.logger.Debug("unit properties", "unit", u.Name, "err", err)
			} else if pid, ok := props["MainPID"].(uint32); ok && pid > 0 {
				src.Details["pid"] = fmt.Sprint(pid)
			}
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// Target reads the unit's journal. The unit comes from the source ID or,
// for a bare "unit" source, from Query.Unit.
func (p *Provider) Target(ctx context.Context, q core.Query) (core.LogTarget, error) {
	unit := q.NativeID()
	if unit == "" {
		unit = q.Unit
	}
	if unit == "" {
		return core.LogTarget{}, fmt.Errorf("systemd: no unit given")
	}
	q.Unit = unit
	return p.journal.Target(ctx, q)
}

// UnitSource converts a D-Bus unit status into a source.
func UnitSource(u dbus.UnitStatus) core.Source {
	return core.Source{
		ID:    core.SourceID(core.KindUnit, "systemd", u.Name),
		Kind:  core.KindUnit,
		Name:  strings.TrimSuffix(u.Name, ".service"),
		State: mapState(u.ActiveState),
		Details: map[string]string{
			"unit":        u.Name,
			"description": u.Description,
			"activeState": u.ActiveState,
			"subState":    u.SubState,
			"loadState":   u.LoadState,
		},
	}
}

func mapState(active string) core.State {
	switch active {
	case "active", "reloading", "activating":
		return core.StateAvailable
	case "inactive", "deactivating":
		return core.StateShutdown
	case "failed":
		return core.StateUnavailable
	default:
		return core.StateUnknown
	}
}
