package exec

import (
	"context"
	"fmt"
	"os/exec"
	"sort"

	"github.com/devstroop/console-mcp/pkg/core"
)

// Spec is a configured custom log command.
type Spec struct {
	Command     string
	Args        []string
	Description string
}

// Provider serves custom sources declared in configuration. Their command
// runs verbatim; query filters other than Source are not applied.
type Provider struct {
	specs    map[string]Spec
	names    []string // registered source names, sorted
	lookPath func(string) (string, error)
}

// New creates an exec provider.
func New() *Provider {
	return &Provider{specs: make(map[string]Spec), lookPath: exec.LookPath}
}

// Add registers a custom source.
func (p *Provider) Add(name string, spec Spec) {
	if _, ok := p.specs[name]; !ok {
		p.names = append(p.names, name)
		sort.Strings(p.names)
	}
	p.specs[name] = spec
}

func (p *Provider) Name() string   { return "exec" }
func (p *Provider) Kind() core.Kind { return core.KindCustom }

func (p *Provider) List(_ context.Context) ([]core.Source, error) {
	sources := make([]core.Source, 0, len(p.names))
	for _, name := range p.names {
		spec := p.specs[name]
		state := core.StateAvailable
		if _, err := p.lookPath(spec.Command); err != nil {
			state = core.StateUnavailable
		}
		sources = append(sources, core.Source{
			ID:    core.SourceID(core.KindCustom, p.Name(), name),
			Kind:  core.KindCustom,
			Name:  name,
			State: state,
			Details: map[string]string{
				"command":     core.NewLogTarget(spec.Command, spec.Args, "").String(),
				"description": spec.Description,
			},
		})
	}
	return sources, nil
}

func (p *Provider) Target(_ context.Context, q core.Query) (core.LogTarget, error) {
	name := q.NativeID()
	if name == "" {
		if len(p.names) != 1 {
			return core.LogTarget{}, fmt.Errorf("exec: %d custom sources configured, name one", len(p.names))
		}
		name = p.names[0]
	}
	spec, ok := p.specs[name]
	if !ok {
		return core.LogTarget{}, fmt.Errorf("exec: unknown custom source %q", name)
	}
	return core.NewLogTarget(spec.Command, spec.Args, "").WithLabel(name), nil
}
