// Package device reads the syslog of attached iOS devices through
// libimobiledevice (idevice_id, ideviceinfo, idevicesyslog).
package device

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/devstroop/console-mcp/pkg/core"
)

// Provider serves attached-device logs.
type Provider struct {
	run core.Runner
}

// New creates a device provider. A nil runner uses core.ExecRunner.
func New(run core.Runner) *Provider {
	if run == nil {
		run = core.ExecRunner
	}
	return &Provider{run: run}
}

func (p *Provider) Name() string   { return "idevice" }
func (p *Provider) Kind() core.Kind { return core.KindDevice }

// List returns one source per attached device. A failing name lookup leaves
// the UDID as the name.
func (p *Provider) List(ctx context.Context) ([]core.Source, error) {
	udids, err := p.udids(ctx)
	if err != nil {
		return nil, err
	}
	sources := make([]core.Source, 0, len(udids))
	for _, udid := range udids {
		name := udid
		if out, err := p.run(ctx, "ideviceinfo", "-u", udid, "-k", "DeviceName"); err == nil {
			if n := strings.TrimSpace(string(out)); n != "" {
				name = n
			}
		}
		sources = append(sources, core.Source{
			ID:      core.SourceID(core.KindDevice, p.Name(), udid),
			Kind:    core.KindDevice,
			Name:    name,
			State:   core.StateAvailable,
			Details: map[string]string{"udid": udid},
		})
	}
	return sources, nil
}

// Target streams the device syslog. Without a UDID in the query the first
// attached device is used. idevicesyslog has no history, so Last is ignored.
func (p *Provider) Target(ctx context.Context, q core.Query) (core.LogTarget, error) {
	udid := q.NativeID()
	if udid == "" {
		udids, err := p.udids(ctx)
		if err != nil {
			return core.LogTarget{}, err
		}
		if len(udids) == 0 {
			return core.LogTarget{}, fmt.Errorf("device: no device attached")
		}
		udid = udids[0]
	}

	args := []string{"-u", udid, "--no-colors"}
	if q.Process != "" {
		args = append(args, "-p", q.Process)
	}
	if q.Predicate != "" {
		args = append(args, "-m", q.Predicate)
	}
	return core.NewLogTarget("idevicesyslog", args, q.Predicate).WithLabel("device " + udid), nil
}

func (p *Provider) udids(ctx context.Context) ([]string, error) {
	out, err := p.run(ctx, "idevice_id", "-l")
	if err != nil {
		return nil, fmt.Errorf("idevice_id: %w", err)
	}
	var udids []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			udids = append(udids, line)
		}
	}
	return udids, sc.Err()
}
