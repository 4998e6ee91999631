package docker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/moby/moby/api/types/container"

	"github.com/devstroop/console-mcp/pkg/core"
)

// Provider reads container logs through the docker CLI.
type Provider struct {
	run      core.Runner
	composed []composeService
	logger   *slog.Logger
}

// New creates a docker provider. A nil runner uses core.ExecRunner.
func New(run core.Runner, logger *slog.Logger) *Provider {
	if run == nil {
		run = core.ExecRunner
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{run: run, logger: logger}
}

// AddComposeFile lists the file's services as sources even while their
// containers do not exist. An empty project is derived from the file.
// Services resolving to a container already known are skipped.
func (p *Provider) AddComposeFile(path, project string) error {
	services, err := loadCompose(path, project)
	if err != nil {
		return err
	}
	added := 0
	for _, svc := range services {
		if _, dup := p.composeService(svc.Container); dup {
			continue
		}
		p.composed = append(p.composed, svc)
		added++
	}
	p.logger.Debug("compose file imported", "path", path, "services", len(services), "added", added)
	return nil
}

func (p *Provider) composeService(container string) (composeService, bool) {
	for _, svc := range p.composed {
		if svc.Container == container {
			return svc, true
		}
	}
	return composeService{}, false
}

func (p *Provider) Name() string   { return "docker" }
func (p *Provider) Kind() core.Kind { return core.KindContainer }

// psEntry is one line of `docker ps --format '{{json .}}'`.
type psEntry struct {
	ID     string                   `json:"ID"`
	Names  string                   `json:"Names"`
	Image  string                   `json:"Image"`
	State  container.ContainerState `json:"State"`
	Status string                   `json:"Status"`
	Labels string                   `json:"Labels"`
}

// List returns every container docker knows about plus compose services
// that have no container yet.
func (p *Provider) List(ctx context.Context) ([]core.Source, error) {
	entries, err := p.ps(ctx)
	if err != nil && len(p.composed) == 0 {
		return nil, err
	}
	if err != nil {
		p.logger.Warn("docker ps failed, listing compose services only", "err", err)
	}

	seen := make(map[string]bool, len(entries))
	sources := make([]core.Source, 0, len(entries)+len(p.composed))
	for _, e := range entries {
		name := strings.Split(e.Names, ",")[0]
		seen[name] = true
		details := map[string]string{
			"id":     e.ID,
			"image":  e.Image,
			"status": e.Status,
		}
		if project, service := composeLabels(e.Labels); service != "" {
			details["project"] = project
			details["service"] = service
		}
		sources = append(sources, core.Source{
			ID:      core.SourceID(core.KindContainer, p.Name(), name),
			Kind:    core.KindContainer,
			Name:    name,
			State:   mapContainerState(e.State),
			Details: details,
		})
	}
	for _, svc := range p.composed {
		if !seen[svc.Container] {
			sources = append(sources, svc.source(p.Name()))
		}
	}
	return sources, nil
}

// Target reads `docker logs` for the container in the source ID. Without
// one the first running container is used. A compose service whose logging
// driver keeps nothing cannot be read.
func (p *Provider) Target(ctx context.Context, q core.Query) (core.LogTarget, error) {
	name := q.NativeID()
	if name == "" {
		entries, err := p.ps(ctx)
		if err != nil {
			return core.LogTarget{}, err
		}
		for _, e := range entries {
			if e.State == container.StateRunning {
				name = strings.Split(e.Names, ",")[0]
				break
			}
		}
		if name == "" {
			return core.LogTarget{}, fmt.Errorf("docker: no running container")
		}
	}
	label := "container " + name
	if svc, ok := p.composeService(name); ok {
		if !svc.readable() {
			return core.LogTarget{}, fmt.Errorf("container %s: logging driver %q keeps no logs", name, svc.Driver)
		}
		label = svc.label()
	}
	return core.NewLogTarget("docker", Args(q, name), q.Predicate).WithLabel(label), nil
}

// Args builds the docker logs argument list. History defaults to the last
// five minutes; a follow without a window starts at the end.
func Args(q core.Query, name string) []string {
	args := []string{"logs", "--timestamps"}
	switch {
	case q.Last > 0:
		secs := int(q.Last.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		args = append(args, "--since", strconv.Itoa(secs)+"s")
	case q.Follow:
		args = append(args, "--tail", "0")
	default:
		args = append(args, "--since", "5m")
	}
	if q.Follow {
		args = append(args, "--follow")
	}
	return append(args, name)
}

func (p *Provider) ps(ctx context.Context) ([]psEntry, error) {
	out, err := p.run(ctx, "docker", "ps", "--all", "--no-trunc", "--format", "{{json .}}")
	if err != nil {
		return nil, fmt.Errorf("docker ps: %w", err)
	}
	var entries []psEntry
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var e psEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("docker ps: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, sc.Err()
}

func mapContainerState(s container.ContainerState) core.State {
	switch s {
	case container.StateRunning, container.StateRestarting:
		return core.StateAvailable
	case container.StateExited, container.StateDead, container.StateCreated:
		return core.StateShutdown
	case container.StatePaused:
		return core.StateUnavailable
	default:
		return core.StateUnknown
	}
}
