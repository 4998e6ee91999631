package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/devstroop/console-mcp/pkg/capture"
	"github.com/devstroop/console-mcp/pkg/config"
	"github.com/devstroop/console-mcp/pkg/providers"
	"github.com/devstroop/console-mcp/pkg/providers/exec"
	"github.com/devstroop/console-mcp/pkg/transport/rpc"
)

func newTestServer(t *testing.T, sources map[string]exec.Spec) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.Default()
	cfg.ExportDir = t.TempDir()
	cfg.CrashDirs = []string{t.TempDir()}
	cfg.Limits.MaxWatch = config.Duration(2 * time.Second)
	cfg.Limits.MaxStream = config.Duration(time.Second)
	cfg.Limits.MaxFetch = config.Duration(2 * time.Second)

	custom := exec.New()
	for name, spec := range sources {
		custom.Add(name, spec)
	}
	reg := providers.NewRegistry(logger)
	reg.Add(custom)

	return New(cfg, reg, capture.New(logger, cfg.EngineLimits()), logger)
}

func sh(script string) exec.Spec {
	return exec.Spec{Command: "sh", Args: []string{"-c", script}}
}

func call(t *testing.T, s *Server, name string, args map[string]any) CallToolResult {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Call(ctx, name, raw, nil)
}

func text(r CallToolResult) string {
	if len(r.Content) == 0 {
		return ""
	}
	return r.Content[0].Text
}

func TestToolsList(t *testing.T) {
	s := newTestServer(t, nil)
	tools := s.Tools()
	want := []string{
		ToolExportLogs, ToolListCrashReports, ToolListSources, ToolSearchLogs,
		ToolShowLogs, ToolStreamLogs, ToolWatchLogs,
	}
	if len(tools) != len(want) {
		t.Fatalf("got %d tools, want %d", len(tools), len(want))
	}
	for i, name := range want {
		if tools[i].Name != name {
			t.Errorf("tool %d: got %q, want %q", i, tools[i].Name, name)
		}
	}
}

func TestShowLogs(t *testing.T) {
	s := newTestServer(t, map[string]exec.Spec{"app": sh("printf 'one\\ntwo\\nthree\\n'")})

	res := call(t, s, ToolShowLogs, map[string]any{"source": "custom:exec:app"})
	if res.IsError {
		t.Fatalf("unexpected error: %s", text(res))
	}
	out := text(res)
	if !strings.HasPrefix(out, "one\ntwo\nthree\n") {
		t.Errorf("output: got %q", out)
	}
	if !strings.Contains(out, "[3 lines from app") {
		t.Errorf("footer missing: %q", out)
	}
}

func TestShowLogsCapped(t *testing.T) {
	s := newTestServer(t, map[string]exec.Spec{"app": sh("i=0; while :; do echo line $i; i=$((i+1)); done")})

	res := call(t, s, ToolShowLogs, map[string]any{"source": "custom", "lines": 5})
	if res.IsError {
		t.Fatalf("unexpected error: %s", text(res))
	}
	if !strings.Contains(text(res), "[line cap of 5 reached") {
		t.Errorf("output: got %q", text(res))
	}
}

func TestShowLogsFilter(t *testing.T) {
	s := newTestServer(t, map[string]exec.Spec{"app": sh("printf 'GET /a\\nPOST /b\\nGET /c\\n'")})

	res := call(t, s, ToolShowLogs, map[string]any{"source": "custom", "filter": "^get", "mode": "regex"})
	if res.IsError {
		t.Fatalf("unexpected error: %s", text(res))
	}
	if !strings.HasPrefix(text(res), "GET /a\nGET /c\n") {
		t.Errorf("output: got %q", text(res))
	}
}

func TestWatchLogsMatch(t *testing.T) {
	s := newTestServer(t, map[string]exec.Spec{"app": sh("echo booting; echo 'connection established'; sleep 5")})

	res := call(t, s, ToolWatchLogs, map[string]any{"source": "custom", "pattern": "Connection Established"})
	if res.IsError {
		t.Fatalf("unexpected error: %s", text(res))
	}
	if !strings.HasPrefix(text(res), "Match found after ") || !strings.Contains(text(res), ": connection established\n") {
		t.Errorf("output: got %q", text(res))
	}
}

func TestWatchLogsTimeoutIsClamped(t *testing.T) {
	s := newTestServer(t, map[string]exec.Spec{"app": sh("while :; do echo tick; sleep 0.1; done")})

	start := time.Now()
	res := call(t, s, ToolWatchLogs, map[string]any{"source": "custom", "pattern": "never", "timeout": 600})
	if res.IsError {
		t.Fatalf("unexpected error: %s", text(res))
	}
	if elapsed := time.Since(start); elapsed > 6*time.Second {
		t.Errorf("watch ran %v, ceiling is 2s", elapsed)
	}
	out := text(res)
	if !strings.HasPrefix(out, "[timed out after 2s") {
		t.Errorf("output: got %q", out)
	}
	if !strings.Contains(out, "duration clamped from 10m0s to 2s") {
		t.Errorf("clamp note missing: %q", out)
	}
}

func TestWatchLogsErrors(t *testing.T) {
	s := newTestServer(t, map[string]exec.Spec{"app": sh("echo hi")})

	tests := []struct {
		name string
		tool string
		args map[string]any
		want string
	}{
		{"invalid regex", ToolWatchLogs, map[string]any{"source": "custom", "pattern": "(", "mode": "regex"}, "INVALID_PATTERN"},
		{"missing pattern", ToolWatchLogs, map[string]any{"source": "custom"}, "pattern is required"},
		{"bad mode", ToolSearchLogs, map[string]any{"pattern": "x", "mode": "glob"}, "unknown match mode"},
		{"unknown source", ToolShowLogs, map[string]any{"source": "custom:exec:nope"}, "unknown custom source"},
		{"unknown kind", ToolShowLogs, map[string]any{"source": "mainframe"}, "resolve: unknown source"},
		{"bad duration", ToolStreamLogs, map[string]any{"duration": "soon"}, "invalid arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := call(t, s, tt.tool, tt.args)
			if !res.IsError {
				t.Fatalf("expected error result, got %q", text(res))
			}
			if !strings.Contains(text(res), tt.want) {
				t.Errorf("got %q, want it to contain %q", text(res), tt.want)
			}
		})
	}
}

func TestMissingCommandIsProcessError(t *testing.T) {
	s := newTestServer(t, map[string]exec.Spec{"gone": {Command: "console-mcp-no-such-binary"}})
	for _, tool := range []string{ToolShowLogs, ToolStreamLogs} {
		res := call(t, s, tool, map[string]any{"source": "custom", "duration": 1})
		if !res.IsError || !strings.HasPrefix(text(res), capture.CodeProcessError) {
			t.Errorf("%s: got %+v", tool, res)
		}
	}
}

func TestStreamLogs(t *testing.T) {
	s := newTestServer(t, map[string]exec.Spec{"app": sh("while :; do echo tick; sleep 0.1; done")})

	res := call(t, s, ToolStreamLogs, map[string]any{"source": "custom", "duration": "500ms"})
	if res.IsError {
		t.Fatalf("unexpected error: %s", text(res))
	}
	if !strings.Contains(text(res), "tick\n") {
		t.Errorf("output: got %q", text(res))
	}
}

func TestSearchLogs(t *testing.T) {
	s := newTestServer(t, map[string]exec.Spec{"app": sh("printf 'ok\\nerror: disk full\\nok\\nERROR: retry\\n'")})

	res := call(t, s, ToolSearchLogs, map[string]any{"source": "custom", "pattern": "error"})
	if res.IsError {
		t.Fatalf("unexpected error: %s", text(res))
	}
	if !strings.HasPrefix(text(res), "error: disk full\nERROR: retry\n") {
		t.Errorf("output: got %q", text(res))
	}
}

func TestListSources(t *testing.T) {
	s := newTestServer(t, map[string]exec.Spec{"app": sh("true")})
	res := call(t, s, ToolListSources, nil)
	if !strings.Contains(text(res), "custom:exec:app") {
		t.Errorf("output: got %q", text(res))
	}
	res = call(t, s, ToolListSources, map[string]any{"kind": "device"})
	if text(res) != "No log sources found." {
		t.Errorf("device filter: got %q", text(res))
	}
}

func TestExportLogsZstd(t *testing.T) {
	s := newTestServer(t, map[string]exec.Spec{"app": sh("printf 'alpha\\nbeta\\n'")})

	res := call(t, s, ToolExportLogs, map[string]any{"source": "custom", "path": "out/app.log.zst"})
	if res.IsError {
		t.Fatalf("unexpected error: %s", text(res))
	}
	path := filepath.Join(s.cfg.ExportDir, "out", "app.log.zst")
	if !strings.Contains(text(res), path) || !strings.Contains(text(res), "zstd") {
		t.Errorf("output: got %q", text(res))
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()
	data, err := io.ReadAll(dec)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(data) != "alpha\nbeta\n" {
		t.Errorf("content: got %q", data)
	}
}

func TestServeStdioHandshake(t *testing.T) {
	s := newTestServer(t, nil)
	in := strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"test","version":"1"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"nope"}}`,
	}, "\n") + "\n")
	var out strings.Builder

	if err := s.ServeStdio(context.Background(), in, &out); err != nil {
		t.Fatalf("serve: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d responses, want 2: %q", len(lines), out.String())
	}
	byID := map[string]rpc.Response{}
	for _, l := range lines {
		var resp rpc.Response
		if err := json.Unmarshal([]byte(l), &resp); err != nil {
			t.Fatalf("unmarshal %q: %v", l, err)
		}
		byID[string(resp.ID)] = resp
	}

	var init InitializeResult
	if err := json.Unmarshal(byID["1"].Result, &init); err != nil {
		t.Fatalf("initialize result: %v", err)
	}
	if init.ProtocolVersion != ProtocolVersion || init.ServerInfo.Name != Name {
		t.Errorf("initialize: got %+v", init)
	}
	if e := byID["2"].Error; e == nil || e.Code != rpc.CodeInvalidParams {
		t.Errorf("unknown tool: got %+v", e)
	}
}
