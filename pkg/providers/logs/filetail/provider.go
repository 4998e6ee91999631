package filetail

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/devstroop/console-mcp/pkg/core"
)

// DefaultLines is how much history a read starts with.
const DefaultLines = 200

// Provider tails plain log files declared by name.
type Provider struct {
	files map[string]string
}

// New creates a file tail provider.
func New() *Provider {
	return &Provider{files: make(map[string]string)}
}

// Add registers a file under name.
func (p *Provider) Add(name, path string) {
	p.files[name] = path
}

func (p *Provider) Name() string   { return "file" }
func (p *Provider) Kind() core.Kind { return core.KindCustom }

// List reports each file, unavailable when it cannot be opened.
func (p *Provider) List(_ context.Context) ([]core.Source, error) {
	names := make([]string, 0, len(p.files))
	for name := range p.files {
		names = append(names, name)
	}
	sort.Strings(names)

	sources := make([]core.Source, 0, len(names))
	for _, name := range names {
		path := p.files[name]
		state := core.StateAvailable
		details := map[string]string{"path": path}
		if info, err := os.Stat(path); err != nil {
			state = core.StateUnavailable
		} else {
			details["size"] = strconv.FormatInt(info.Size(), 10)
		}
		sources = append(sources, core.Source{
			ID:      core.SourceID(core.KindCustom, p.Name(), name),
			Kind:    core.KindCustom,
			Name:    name,
			State:   state,
			Details: details,
		})
	}
	return sources, nil
}

// Target reads the file with tail. A follow uses -F so rotation and
// truncation are picked up. A bare kind works when one file is configured.
func (p *Provider) Target(_ context.Context, q core.Query) (core.LogTarget, error) {
	name := q.NativeID()
	if name == "" && len(p.files) == 1 {
		for only := range p.files {
			name = only
		}
	}
	path, ok := p.files[name]
	if !ok {
		return core.LogTarget{}, fmt.Errorf("resolve: unknown source %q", q.Source)
	}
	if _, err := os.Stat(path); err != nil {
		return core.LogTarget{}, fmt.Errorf("file %s: %w", name, err)
	}
	return core.NewLogTarget("tail", Args(path, q.Follow), q.Predicate).WithLabel(path), nil
}

// Args builds the tail argument list for path.
func Args(path string, follow bool) []string {
	lines := DefaultLines
	if follow {
		lines = 0
	}
	args := []string{"-n", strconv.Itoa(lines)}
	if follow {
		args = append(args, "-F")
	}
	return append(args, path)
}
