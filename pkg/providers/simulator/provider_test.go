package simulator

import (
	"context"
	"errors"
	"testing"

	"github.com/devstroop/console-mcp/pkg/core"
)

const listJSON = `{
  "devices": {
    "com.apple.CoreSimulator.SimRuntime.iOS-17-2": [
      {"udid": "AAAA-1111", "name": "iPhone 15", "state": "Shutdown", "isAvailable": true},
      {"udid": "BBBB-2222", "name": "iPhone 15 Pro", "state": "Booted", "isAvailable": true},
      {"udid": "CCCC-3333", "name": "iPhone X", "state": "Shutdown", "isAvailable": false}
    ]
  }
}`

func fakeRunner(out string, err error) core.Runner {
	return func(_ context.Context, name string, args ...string) ([]byte, error) {
		return []byte(out), err
	}
}

func TestList(t *testing.T) {
	p := New(fakeRunner(listJSON, nil))
	srcs, err := p.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(srcs) != 2 {
		t.Fatalf("got %d sources, want 2", len(srcs))
	}
	if srcs[0].ID != "simulator:simctl:BBBB-2222" || srcs[0].State != core.StateBooted {
		t.Errorf("first: got %+v, want booted BBBB-2222", srcs[0])
	}
	if srcs[1].State != core.StateShutdown {
		t.Errorf("second state: got %q", srcs[1].State)
	}
	if srcs[0].Details["runtime"] != "iOS 17.2" {
		t.Errorf("runtime: got %q", srcs[0].Details["runtime"])
	}
}

func TestListErrors(t *testing.T) {
	if _, err := New(fakeRunner("", errors.New("xcrun: not found"))).List(context.Background()); err == nil {
		t.Error("expected runner error")
	}
	if _, err := New(fakeRunner("not json", nil)).List(context.Background()); err == nil {
		t.Error("expected parse error")
	}
}

func TestTarget(t *testing.T) {
	p := New(fakeRunner("", nil))

	target, err := p.Target(context.Background(), core.Query{Source: "simulator", Follow: true, Process: "MyApp"})
	if err != nil {
		t.Fatalf("Target: %v", err)
	}
	want := `xcrun simctl spawn booted log stream --style syslog --predicate 'process == "MyApp"'`
	if got := target.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	target, err = p.Target(context.Background(), core.Query{Source: "simulator:simctl:BBBB-2222"})
	if err != nil {
		t.Fatalf("Target: %v", err)
	}
	if args := target.Argv(); args[2] != "BBBB-2222" {
		t.Errorf("udid arg: got %q", args[2])
	}
}
