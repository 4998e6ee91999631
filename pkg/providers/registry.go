// Package providers resolves log queries to the source provider that can
// serve them.
package providers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/devstroop/console-mcp/pkg/core"
)

// DefaultSource is used when a query names no source.
const DefaultSource = string(core.KindSystem)

// Registry holds providers in preference order.
type Registry struct {
	mu        sync.RWMutex
	providers []core.SourceProvider
	logger    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Add registers a provider. Earlier providers win when a query names only a kind.
func (r *Registry) Add(p core.SourceProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
}

// Providers returns the registered providers.
func (r *Registry) Providers() []core.SourceProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]core.SourceProvider(nil), r.providers...)
}

// List collects sources from every provider whose kind matches kind (all
// kinds when empty). A failing provider is logged and skipped so one missing
// tool does not hide the other sources.
func (r *Registry) List(ctx context.Context, kind core.Kind) []core.Source {
	var out []core.Source
	for _, p := range r.Providers() {
		if kind != "" && p.Kind() != kind {
			continue
		}
		srcs, err := p.List(ctx)
		if err != nil {
			r.logger.Warn("list sources", "provider", p.Name(), "err", err)
			continue
		}
		out = append(out, srcs...)
	}
	return out
}

// Resolve finds the provider for q.Source and builds its log target. Source
// is either a full ID (kind:provider:native_id) or a bare kind. An empty
// source means the system log.
func (r *Registry) Resolve(ctx context.Context, q core.Query) (core.LogTarget, core.SourceProvider, error) {
	if strings.TrimSpace(q.Source) == "" {
		q.Source = DefaultSource
	}
	p, err := r.lookup(ctx, q.Source)
	if err != nil {
		return core.LogTarget{}, nil, err
	}
	target, err := p.Target(ctx, q)
	if err != nil {
		return core.LogTarget{}, p, fmt.Errorf("resolve %q: %w", q.Source, err)
	}
	r.logger.Debug("resolved source", "source", q.Source, "provider", p.Name(), "target", target.String())
	return target, p, nil
}

func (r *Registry) lookup(ctx context.Context, source string) (core.SourceProvider, error) {
	providers := r.Providers()

	if kind, name, _, err := core.ParseSourceID(source); err == nil {
		for _, p := range providers {
			if p.Kind() == kind && p.Name() == name {
				return p, nil
			}
		}
		return nil, fmt.Errorf("resolve: unknown source %q", source)
	}

	kind, err := core.ParseKind(source)
	if err != nil {
		return nil, fmt.Errorf("resolve: unknown source %q", source)
	}
	var candidates []core.SourceProvider
	for _, p := range providers {
		if p.Kind() == kind {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("resolve: no provider for %q", kind)
	}
	// Prefer a provider whose single source is reachable, e.g. journald over
	// oslog on Linux.
	if len(candidates) > 1 {
		for _, p := range candidates {
			srcs, err := p.List(ctx)
			if err == nil && len(srcs) > 0 && srcs[0].State != core.StateUnavailable {
				return p, nil
			}
		}
	}
	return candidates[0], nil
}
