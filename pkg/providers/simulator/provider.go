// Package simulator enumerates iOS simulators with `xcrun simctl` and runs the
// unified log tool inside one of them.
package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/devstroop/console-mcp/pkg/core"
	"github.com/devstroop/console-mcp/pkg/providers/logs/oslog"
)

// Booted is the simctl alias for the booted simulator.
const Booted = "booted"

// Provider serves simulator logs.
type Provider struct {
	run core.Runner
}

// New creates a simulator provider. A nil runner uses core.ExecRunner.
func New(run core.Runner) *Provider {
	if run == nil {
		run = core.ExecRunner
	}
	return &Provider{run: run}
}

func (p *Provider) Name() string   { return "simctl" }
func (p *Provider) Kind() core.Kind { return core.KindSimulator }

type deviceList struct {
	Devices map[string][]struct {
		UDID        string `json:"udid"`
		Name        string `json:"name"`
		State       string `json:"state"`
		IsAvailable bool   `json:"isAvailable"`
	} `json:"devices"`
}

// List returns the available simulators, booted ones first.
func (p *Provider) List(ctx context.Context) ([]core.Source, error) {
	out, err := p.run(ctx, "xcrun", "simctl", "list", "devices", "--json")
	if err != nil {
		return nil, fmt.Errorf("simctl list: %w", err)
	}
	var dl deviceList
	if err := json.Unmarshal(out, &dl); err != nil {
		return nil, fmt.Errorf("parse simctl list: %w", err)
	}

	var sources []core.Source
	for runtime, devices := range dl.Devices {
		for _, d := range devices {
			if !d.IsAvailable {
				continue
			}
			sources = append(sources, core.Source{
				ID:    core.SourceID(core.KindSimulator, p.Name(), d.UDID),
				Kind:  core.KindSimulator,
				Name:  d.Name,
				State: mapState(d.State),
				Details: map[string]string{
					"runtime": runtimeName(runtime),
					"udid":    d.UDID,
				},
			})
		}
	}
	sort.Slice(sources, func(i, j int) bool {
		bi, bj := sources[i].State == core.StateBooted, sources[j].State == core.StateBooted
		if bi != bj {
			return bi
		}
		if sources[i].Name != sources[j].Name {
			return sources[i].Name < sources[j].Name
		}
		return sources[i].ID < sources[j].ID
	})
	return sources, nil
}

// Target runs `log` inside the simulator named by the query's source ID, or
// the booted simulator when only the kind was given.
func (p *Provider) Target(_ context.Context, q core.Query) (core.LogTarget, error) {
	udid := q.NativeID()
	if udid == "" {
		udid = Booted
	}
	logArgs, filter, err := oslog.Args(q)
	if err != nil {
		return core.LogTarget{}, err
	}
	args := append([]string{"simctl", "spawn", udid, "log"}, logArgs...)
	return core.NewLogTarget("xcrun", args, filter).WithLabel("simulator " + udid), nil
}

func mapState(s string) core.State {
	switch strings.ToLower(s) {
	case "booted":
		return core.StateBooted
	case "shutdown":
		return core.StateShutdown
	default:
		return core.StateUnknown
	}
}

// runtimeName turns "com.apple.CoreSimulator.SimRuntime.iOS-17-2" into "iOS 17.2".
func runtimeName(id string) string {
	name := id[strings.LastIndex(id, ".")+1:]
	if i := strings.Index(name, "-"); i > 0 {
		return name[:i] + " " + strings.ReplaceAll(name[i+1:], "-", ".")
	}
	return name
}
