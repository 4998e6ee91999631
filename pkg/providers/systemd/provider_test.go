package systemd

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/coreos/go-systemd/v22/dbus"

	"github.com/devstroop/console-mcp/pkg/core"
)

type fakeJournal struct {
	got core.Query
}

func (f *fakeJournal) Target(_ context.Context, q core.Query) (core.LogTarget, error) {
	f.got = q
	return core.NewLogTarget("journalctl", []string{"-u", q.Unit}, ""), nil
}

func TestUnitSource(t *testing.T) {
	src := UnitSource(dbus.UnitStatus{
		Name:        "nginx.service",
		Description: "A high performance web server",
		ActiveState: "active",
		SubState:    "running",
		LoadState:   "loaded",
	})
	if src.ID != "unit:systemd:nginx.service" {
		t.Errorf("id: got %q", src.ID)
	}
	if src.Name != "nginx" {
		t.Errorf("name: got %q", src.Name)
	}
	if src.State != core.StateAvailable {
		t.Errorf("state: got %q", src.State)
	}
}

func TestMapState(t *testing.T) {
	tests := []struct {
		active string
		want   core.State
	}{
		{"active", core.StateAvailable},
		{"inactive", core.StateShutdown},
		{"failed", core.StateUnavailable},
		{"maintenance", core.StateUnknown},
	}
	for _, tt := range tests {
		if got := mapState(tt.active); got != tt.want {
			t.Errorf("mapState(%q): got %q, want %q", tt.active, got, tt.want)
		}
	}
}

func TestTargetDelegatesToJournal(t *testing.T) {
	j := &fakeJournal{}
	p := New(nil, j, slog.New(slog.NewTextHandler(io.Discard, nil)))

	target, err := p.Target(context.Background(), core.Query{Source: "unit:systemd:cron.service", Follow: true})
	if err != nil {
		t.Fatalf("Target: %v", err)
	}
	if j.got.Unit != "cron.service" || !j.got.Follow {
		t.Errorf("journal query: got %+v", j.got)
	}
	if target.String() != "journalctl -u cron.service" {
		t.Errorf("target: got %q", target.String())
	}

	if _, err := p.Target(context.Background(), core.Query{Source: "unit"}); err == nil {
		t.Error("expected error without unit")
	}
	if _, err := p.Target(context.Background(), core.Query{Source: "unit", Unit: "ssh.service"}); err != nil {
		t.Errorf("bare kind with Unit: %v", err)
	}
}
