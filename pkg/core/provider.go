package core

import (
	"context"
	"os/exec"
)

// SourceProvider is the interface all log source providers must implement.
type SourceProvider interface {
	// Name returns the provider's identifier (e.g., "oslog", "simctl", "systemd").
	Name() string

	// Kind returns the source kind this provider serves.
	Kind() Kind

	// List returns all sources this provider can currently reach.
	List(ctx context.Context) ([]Source, error)

	// Target turns a query into the command that produces its log stream.
	Target(ctx context.Context, q Query) (LogTarget, error)
}

// Runner executes a short-lived command and returns its standard output.
// Providers use it for enumeration so tests can substitute canned output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command on the host.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}
