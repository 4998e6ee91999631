package providers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/devstroop/console-mcp/pkg/core"
)

type fakeProvider struct {
	name    string
	kind    core.Kind
	state   core.State
	listErr error
	lastQ   core.Query
}

func (f *fakeProvider) Name() string   { return f.name }
func (f *fakeProvider) Kind() core.Kind { return f.kind }

func (f *fakeProvider) List(context.Context) ([]core.Source, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return []core.Source{{ID: core.SourceID(f.kind, f.name, "local"), Kind: f.kind, Name: f.name, State: f.state}}, nil
}

func (f *fakeProvider) Target(_ context.Context, q core.Query) (core.LogTarget, error) {
	f.lastQ = q
	return core.NewLogTarget(f.name, []string{q.NativeID()}, ""), nil
}

func newRegistry(ps ...core.SourceProvider) *Registry {
	r := NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	for _, p := range ps {
		r.Add(p)
	}
	return r
}

func TestResolveDefaultsToSystem(t *testing.T) {
	oslog := &fakeProvider{name: "oslog", kind: core.KindSystem, state: core.StateUnavailable}
	journald := &fakeProvider{name: "journald", kind: core.KindSystem, state: core.StateAvailable}
	r := newRegistry(oslog, journald)

	target, p, err := r.Resolve(context.Background(), core.Query{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Name() != "journald" || target.Command != "journald" {
		t.Errorf("got provider %q, want journald", p.Name())
	}
	if journald.lastQ.Source != "system" {
		t.Errorf("query source: got %q, want system", journald.lastQ.Source)
	}
}

func TestResolveFullID(t *testing.T) {
	sim := &fakeProvider{name: "simctl", kind: core.KindSimulator}
	r := newRegistry(sim)

	target, _, err := r.Resolve(context.Background(), core.Query{Source: "simulator:simctl:ABCD"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if target.String() != "simctl ABCD" {
		t.Errorf("target: got %q", target.String())
	}
}

func TestResolveUnknown(t *testing.T) {
	r := newRegistry(&fakeProvider{name: "oslog", kind: core.KindSystem})
	tests := []string{"bogus", "device", "simulator:simctl:X", "system:other:local"}
	for _, src := range tests {
		_, _, err := r.Resolve(context.Background(), core.Query{Source: src})
		if err == nil {
			t.Errorf("Resolve(%q): expected error", src)
			continue
		}
		if !strings.HasPrefix(err.Error(), "resolve:") {
			t.Errorf("Resolve(%q): got %q", src, err)
		}
	}
}

func TestListSkipsFailingProvider(t *testing.T) {
	r := newRegistry(
		&fakeProvider{name: "idevice", kind: core.KindDevice, listErr: errors.New("idevice_id: not found")},
		&fakeProvider{name: "oslog", kind: core.KindSystem},
	)
	all := r.List(context.Background(), "")
	if len(all) != 1 || all[0].Name != "oslog" {
		t.Errorf("got %+v", all)
	}
	if got := r.List(context.Background(), core.KindDevice); len(got) != 0 {
		t.Errorf("device filter: got %+v", got)
	}
}
