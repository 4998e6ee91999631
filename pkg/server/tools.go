package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/devstroop/console-mcp/pkg/capture"
	"github.com/devstroop/console-mcp/pkg/core"
)

type tool struct {
	def Tool
	run func(ctx context.Context, a Args, cc callContext) (string, error)
}

type callContext struct {
	logger   *slog.Logger
	progress func(line string)
}

// Tool names.
const (
	ToolListSources      = "list_sources"
	ToolShowLogs         = "show_logs"
	ToolStreamLogs       = "stream_logs"
	ToolSearchLogs       = "search_logs"
	ToolWatchLogs        = "watch_logs"
	ToolListCrashReports = "list_crash_reports"
	ToolExportLogs       = "export_logs"
)

// Tools returns the tool definitions sorted by name.
func (s *Server) Tools() []Tool {
	out := make([]Tool, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t.def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Server) toolSet() map[string]tool {
	set := []tool{
		{
			def: Tool{
				Name:        ToolListSources,
				Description: "List log sources: the system log, attached devices, simulators, systemd units, containers, log files and configured commands.",
				InputSchema: schema(nil, prop("kind", "string", "Only list sources of this kind: system, device, simulator, unit, container or custom")),
			},
			run: s.listSources,
		},
		{
			def: Tool{
				Name:        ToolShowLogs,
				Description: "Show recent log history from a source, up to a line cap.",
				InputSchema: schema(nil, append(queryProps(),
					prop("last", "string", "History window, e.g. \"5m\" or seconds"),
					prop("lines", "integer", "Maximum lines to return"),
					prop("filter", "string", "Only keep lines containing this text (or matching it in regex mode)"),
					prop("mode", "string", "Filter mode: plain or regex"),
					prop("case_sensitive", "boolean", "Match case exactly"),
					prop("timeout", "string", "Upper bound on how long to read"),
				)...),
			},
			run: s.showLogs,
		},
		{
			def: Tool{
				Name:        ToolStreamLogs,
				Description: fmt.Sprintf("Capture live log output for a fixed duration (at most %s).", s.engine.Limits().MaxStreamDuration),
				InputSchema: schema(nil, append(queryProps(),
					prop("duration", "string", "How long to capture, e.g. \"10s\" or seconds"),
					prop("lines", "integer", "Maximum lines to keep"),
					prop("filter", "string", "Only keep lines containing this text (or matching it in regex mode)"),
					prop("mode", "string", "Filter mode: plain or regex"),
					prop("case_sensitive", "boolean", "Match case exactly"),
				)...),
			},
			run: s.streamLogs,
		},
		{
			def: Tool{
				Name:        ToolSearchLogs,
				Description: "Search log history (or live output with follow) for lines matching a pattern.",
				InputSchema: schema([]string{"pattern"}, append(queryProps(),
					prop("pattern", "string", "Text or regular expression to search for"),
					prop("mode", "string", "plain (default) or regex"),
					prop("case_sensitive", "boolean", "Match case exactly"),
					prop("last", "string", "History window, e.g. \"1h\""),
					prop("lines", "integer", "Maximum matching lines"),
					prop("follow", "boolean", "Search live output instead of history"),
					prop("timeout", "string", "Upper bound on how long to search"),
				)...),
			},
			run: s.searchLogs,
		},
		{
			def: Tool{
				Name:        ToolWatchLogs,
				Description: fmt.Sprintf("Watch live log output until a line matches a pattern or the timeout (at most %s) expires.", s.engine.Limits().MaxWatchDuration),
				InputSchema: schema([]string{"pattern"}, append(queryProps(),
					prop("pattern", "string", "Text or regular expression to wait for"),
					prop("mode", "string", "plain (default) or regex"),
					prop("case_sensitive", "boolean", "Match case exactly"),
					prop("timeout", "string", "How long to wait, e.g. \"30s\" or seconds"),
				)...),
			},
			run: s.watchLogs,
		},
		{
			def: Tool{
				Name:        ToolListCrashReports,
				Description: "List crash reports, newest first.",
				InputSchema: schema(nil,
					prop("filter", "string", "Only reports whose name contains this text"),
					prop("limit", "integer", "Maximum reports to list"),
				),
			},
			run: s.listCrashReports,
		},
		{
			def: Tool{
				Name:        ToolExportLogs,
				Description: "Fetch log history and write it to a file; .gz and .zst paths are compressed.",
				InputSchema: schema([]string{"path"}, append(queryProps(),
					prop("path", "string", "Destination file; relative paths go under the export directory"),
					prop("last", "string", "History window, e.g. \"1h\""),
					prop("lines", "integer", "Maximum lines to export"),
					prop("filter", "string", "Only export lines containing this text (or matching it in regex mode)"),
					prop("mode", "string", "Filter mode: plain or regex"),
				)...),
			},
			run: s.exportLogs,
		},
	}

	m := make(map[string]tool, len(set))
	for _, t := range set {
		m[t.def.Name] = t
	}
	return m
}

type property struct {
	name string
	body map[string]any
}

func prop(name, typ, desc string) property {
	return property{name: name, body: map[string]any{"type": typ, "description": desc}}
}

func queryProps() []property {
	return []property{
		prop("source", "string", "Source ID from list_sources, or a kind (system, device, simulator, unit, container, custom). Defaults to system"),
		prop("level", "string", "Minimum level: debug, info, default, error or fault"),
		prop("process", "string", "Only entries from this process"),
		prop("subsystem", "string", "Only entries from this subsystem (journal identifier on Linux)"),
		prop("predicate", "string", "Source-native filter expression passed through verbatim"),
		prop("unit", "string", "systemd unit (Linux)"),
	}
}

func schema(required []string, props ...property) map[string]any {
	p := make(map[string]any, len(props))
	for _, pr := range props {
		p[pr.name] = pr.body
	}
	s := map[string]any{"type": "object", "properties": p}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (s *Server) listSources(ctx context.Context, a Args, _ callContext) (string, error) {
	var kind core.Kind
	if a.Kind != "" {
		k, err := core.ParseKind(a.Kind)
		if err != nil {
			return "", err
		}
		kind = k
	}
	sources := s.registry.List(ctx, kind)
	if len(sources) == 0 {
		return "No log sources found.", nil
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATE")
	for _, src := range sources {
		fmt.Fprintf(w, "%s\t%s\t%s\n", src.ID, src.Name, src.State)
	}
	w.Flush()
	return b.String(), nil
}

func (s *Server) lineBudget(n int) int {
	if n <= 0 {
		return s.cfg.Limits.DefaultLines
	}
	return n
}

// clamp limits d to ceiling and records a note when the caller asked for more.
func clamp(d, ceiling time.Duration, notes *[]string) time.Duration {
	got := capture.ClampDuration(d, ceiling)
	if d > ceiling {
		*notes = append(*notes, fmt.Sprintf("duration clamped from %s to %s", d, ceiling))
	}
	return got
}

func (s *Server) options(cc callContext, targetID string) []capture.Option {
	opts := []capture.Option{capture.WithTargetID(targetID)}
	if cc.progress != nil {
		opts = append(opts, capture.WithLineObserver(func(l core.LogLine) { cc.progress(l.Line) }))
	}
	return opts
}

func (s *Server) showLogs(ctx context.Context, a Args, cc callContext) (string, error) {
	target, err := s.resolve(ctx, a.Query(false))
	if err != nil {
		return "", err
	}
	spec, err := optionalSpec(a, a.Filter)
	if err != nil {
		return "", err
	}
	var notes []string
	budget := capture.Budget{
		MaxLines:    s.lineBudget(a.Lines),
		MaxDuration: clamp(a.Timeout.Std(), s.engine.Limits().MaxFetchDuration, &notes),
	}
	res, err := s.engine.Fetch(ctx, target, spec, budget, s.options(cc, a.Source)...)
	if err != nil {
		return "", err
	}
	return FormatResult(target, res, budget, notes)
}

func (s *Server) streamLogs(ctx context.Context, a Args, cc callContext) (string, error) {
	target, err := s.resolve(ctx, a.Query(true))
	if err != nil {
		return "", err
	}
	spec, err := optionalSpec(a, a.Filter)
	if err != nil {
		return "", err
	}
	var notes []string
	budget := capture.Budget{
		MaxLines:    s.lineBudget(a.Lines),
		MaxDuration: clamp(a.Duration.Std(), s.engine.Limits().MaxStreamDuration, &notes),
	}
	if a.Duration.Std() <= 0 {
		budget.MaxDuration = capture.ClampDuration(10*time.Second, s.engine.Limits().MaxStreamDuration)
	}
	res, err := s.engine.Stream(ctx, target, spec, budget, s.options(cc, a.Source)...)
	if err != nil {
		return "", err
	}
	return FormatResult(target, res, budget, notes)
}

func (s *Server) searchLogs(ctx context.Context, a Args, cc callContext) (string, error) {
	spec, ok, err := a.MatchSpec(a.Pattern)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.New("pattern is required")
	}
	// Compile before resolving so a bad pattern never reaches a provider.
	if _, err := capture.NewMatcher(spec); err != nil {
		return "", err
	}
	target, err := s.resolve(ctx, a.Query(a.Follow))
	if err != nil {
		return "", err
	}
	var notes []string
	ceiling := s.engine.Limits().MaxFetchDuration
	if a.Follow {
		ceiling = s.engine.Limits().MaxStreamDuration
	}
	budget := capture.Budget{
		MaxLines:    s.lineBudget(a.Lines),
		MaxDuration: clamp(a.Timeout.Std(), ceiling, &notes),
	}
	res, err := s.engine.Search(ctx, target, spec, budget, s.options(cc, a.Source)...)
	if err != nil {
		return "", err
	}
	return FormatResult(target, res, budget, notes)
}

func (s *Server) watchLogs(ctx context.Context, a Args, cc callContext) (string, error) {
	spec, ok, err := a.MatchSpec(a.Pattern)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.New("pattern is required")
	}
	if _, err := capture.NewMatcher(spec); err != nil {
		return "", err
	}
	target, err := s.resolve(ctx, a.Query(true))
	if err != nil {
		return "", err
	}
	var notes []string
	budget := capture.Budget{
		MaxLines:    s.lineBudget(a.Lines),
		MaxDuration: clamp(a.Timeout.Std(), s.engine.Limits().MaxWatchDuration, &notes),
	}
	res, err := s.engine.Watch(ctx, target, spec, budget, s.options(cc, a.Source)...)
	if err != nil {
		return "", err
	}
	return FormatResult(target, res, budget, notes)
}

func (s *Server) listCrashReports(_ context.Context, a Args, _ callContext) (string, error) {
	reports, err := ListCrashReports(s.cfg.CrashDirs, a.Filter, a.Limit)
	if err != nil {
		return "", err
	}
	return FormatCrashReports(reports), nil
}

func (s *Server) exportLogs(ctx context.Context, a Args, cc callContext) (string, error) {
	if strings.TrimSpace(a.Path) == "" {
		return "", errors.New("path is required")
	}
	target, err := s.resolve(ctx, a.Query(false))
	if err != nil {
		return "", err
	}
	spec, err := optionalSpec(a, a.Filter)
	if err != nil {
		return "", err
	}
	budget := capture.Budget{
		MaxLines:    s.lineBudget(a.Lines),
		MaxDuration: s.engine.Limits().MaxFetchDuration,
	}
	res, err := s.engine.Fetch(ctx, target, spec, budget, s.options(cc, a.Source)...)
	if err != nil {
		return "", err
	}
	if res.Failed() {
		return "", processFailure(res)
	}

	info, err := Export(ResolveExportPath(s.cfg.ExportDir, a.Path), res.Text)
	if err != nil {
		return "", err
	}
	cc.logger.Info("logs exported", "path", info.Path, "lines", res.Lines, "bytes", info.Bytes)
	return fmt.Sprintf("Exported %d lines from %s to %s (%s)", res.Lines, targetName(target), info.Path, info), nil
}

func (s *Server) resolve(ctx context.Context, q core.Query) (core.LogTarget, error) {
	target, _, err := s.registry.Resolve(ctx, q)
	return target, err
}

func optionalSpec(a Args, pattern string) (*capture.MatchSpec, error) {
	spec, ok, err := a.MatchSpec(pattern)
	if err != nil || !ok {
		return nil, err
	}
	return &spec, nil
}

// describeError renders err for a tool result, prefixed with its code when it has one.
func describeError(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return fmt.Sprintf("%s: %v", coded.Code(), err)
	}
	return err.Error()
}
