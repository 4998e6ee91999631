package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/devstroop/console-mcp/pkg/core"
)

const endless = "while :; do echo tick; sleep 0.05; done"

func newTestEngine(limits Limits) *Engine {
	return New(quietLogger(), limits)
}

func TestWatchFindsMatch(t *testing.T) {
	e := newTestEngine(Limits{})
	target := shell("printf 'starting\\nconnection established on port 8080\\nafter\\n'; sleep 5")

	res, err := e.Watch(context.Background(), target, Plain("connection established"), Budget{MaxDuration: 5 * time.Second})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if res.Kind != KindMatchFound {
		t.Fatalf("kind: got %v, want match-found (%s)", res.Kind, res.Message)
	}
	if !res.Found() {
		t.Error("Found() = false")
	}
	if res.MatchedLine != "connection established on port 8080" {
		t.Errorf("matched line: got %q", res.MatchedLine)
	}
	if !strings.HasPrefix(res.Text, "starting\n") {
		t.Errorf("text: got %q, want prefix %q", res.Text, "starting\n")
	}
	if res.Elapsed > 3*time.Second {
		t.Errorf("watch waited %v after the match", res.Elapsed)
	}
}

func TestWatchTimesOut(t *testing.T) {
	e := newTestEngine(Limits{})
	budget := 500 * time.Millisecond

	start := time.Now()
	res, err := e.Watch(context.Background(), shell(endless), Plain("never-appears"), Budget{MaxDuration: budget})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if res.Kind != KindTimedOut {
		t.Fatalf("kind: got %v, want timed-out", res.Kind)
	}
	if elapsed < budget {
		t.Errorf("returned after %v, before the %v budget", elapsed, budget)
	}
	if elapsed > budget+2*time.Second {
		t.Errorf("returned after %v, well past the %v budget", elapsed, budget)
	}
	if !strings.Contains(res.Text, "tick\n") {
		t.Errorf("partial text: got %q", res.Text)
	}
}

func TestWatchProducerExitsFirst(t *testing.T) {
	e := newTestEngine(Limits{})
	res, err := e.Watch(context.Background(), shell("echo a; echo b"), Plain("zzz"), Budget{MaxDuration: 5 * time.Second})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if res.Kind != KindCompleted {
		t.Errorf("kind: got %v, want completed", res.Kind)
	}
	if res.Found() {
		t.Error("Found() = true")
	}
	if res.Text != "a\nb\n" {
		t.Errorf("text: got %q", res.Text)
	}
}

func TestStreamRunsForDuration(t *testing.T) {
	e := newTestEngine(Limits{})
	d := 400 * time.Millisecond

	start := time.Now()
	res, err := e.Stream(context.Background(), shell(endless), nil, Budget{MaxDuration: d, MaxLines: 2})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if res.Kind != KindCompleted {
		t.Fatalf("kind: got %v, want completed", res.Kind)
	}
	if elapsed < d {
		t.Errorf("stream ended after %v, before %v", elapsed, d)
	}
	if res.Lines != 2 {
		t.Errorf("lines: got %d, want 2", res.Lines)
	}
	if res.Dropped == 0 {
		t.Error("expected lines beyond the cap to be dropped")
	}
}

func TestStreamEmptyIsCompleted(t *testing.T) {
	e := newTestEngine(Limits{})
	res, err := e.Stream(context.Background(), shell("sleep 5"), nil, Budget{MaxDuration: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if res.Kind != KindCompleted || !res.Empty() {
		t.Errorf("got %v with %d lines, want empty completed", res.Kind, res.Lines)
	}
}

func TestCallsReturnWhenDetachedProcessHoldsOutput(t *testing.T) {
	needSetsid(t)
	const (
		budget = 300 * time.Millisecond
		grace  = 200 * time.Millisecond
	)
	tests := []struct {
		name   string
		script string
		call   func(*Engine, core.LogTarget) (Result, error)
	}{
		{
			name:   "stream, producer exits first",
			script: "setsid sleep 5 & echo hi",
			call: func(e *Engine, target core.LogTarget) (Result, error) {
				return e.Stream(context.Background(), target, nil, Budget{MaxDuration: budget})
			},
		},
		{
			name:   "stream, producer terminated",
			script: "setsid sleep 5 & echo hi; sleep 5",
			call: func(e *Engine, target core.LogTarget) (Result, error) {
				return e.Stream(context.Background(), target, nil, Budget{MaxDuration: budget})
			},
		},
		{
			name:   "watch times out",
			script: "setsid sleep 5 & echo hi; sleep 5",
			call: func(e *Engine, target core.LogTarget) (Result, error) {
				return e.Watch(context.Background(), target, Plain("never"), Budget{MaxDuration: budget})
			},
		},
		{
			name:   "fetch",
			script: "setsid sleep 5 & echo hi",
			call: func(e *Engine, target core.LogTarget) (Result, error) {
				return e.Fetch(context.Background(), target, nil, Budget{MaxDuration: budget})
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(Limits{KillGrace: grace})
			start := time.Now()
			res, err := tt.call(e, shell(tt.script))
			elapsed := time.Since(start)
			if err != nil {
				t.Fatalf("call: %v", err)
			}
			if limit := budget + grace + defaultDrainIdle + 500*time.Millisecond; elapsed > limit {
				t.Errorf("returned after %v, want under %v", elapsed, limit)
			}
			if res.Kind == KindProcessError {
				t.Errorf("kind: got %v", res.Kind)
			}
			if !strings.Contains(res.Text, "hi") {
				t.Errorf("text: got %q", res.Text)
			}
		})
	}
}

func TestStreamDurationIsClamped(t *testing.T) {
	e := newTestEngine(Limits{MaxStreamDuration: 300 * time.Millisecond})
	start := time.Now()
	if _, err := e.Stream(context.Background(), shell(endless), nil, Budget{MaxDuration: time.Hour}); err != nil {
		t.Fatalf("stream: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("stream ran %v, ceiling not applied", elapsed)
	}
}

func TestFetchCapped(t *testing.T) {
	e := newTestEngine(Limits{})
	target := shell(`i=0; while [ $i -lt 100 ]; do echo "line $i"; i=$((i+1)); done; sleep 5`)

	res, err := e.Fetch(context.Background(), target, nil, Budget{MaxLines: 10, MaxDuration: 5 * time.Second})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Kind != KindCapped {
		t.Fatalf("kind: got %v, want capped", res.Kind)
	}
	if res.Lines != 10 {
		t.Errorf("lines: got %d, want 10", res.Lines)
	}
	if !strings.HasPrefix(res.Text, "line 0\nline 1\n") || !strings.HasSuffix(res.Text, "line 9\n") {
		t.Errorf("text: got %q", res.Text)
	}
}

func TestFetchCompletesOnExit(t *testing.T) {
	e := newTestEngine(Limits{})
	res, err := e.Fetch(context.Background(), shell("printf 'a\\nb\\n'"), nil, Budget{MaxLines: 10})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Kind != KindCompleted || res.Text != "a\nb\n" {
		t.Errorf("got %v %q, want completed \"a\\nb\\n\"", res.Kind, res.Text)
	}
}

func TestFetchTimedOutWhenEmpty(t *testing.T) {
	e := newTestEngine(Limits{})
	res, err := e.Fetch(context.Background(), shell("sleep 5"), nil, Budget{MaxDuration: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Kind != KindTimedOut {
		t.Errorf("kind: got %v, want timed-out", res.Kind)
	}
}

func TestFetchPartialIsCompleted(t *testing.T) {
	e := newTestEngine(Limits{})
	res, err := e.Fetch(context.Background(), shell("echo early; sleep 5"), nil, Budget{MaxDuration: 300 * time.Millisecond})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Kind != KindCompleted || res.Text != "early\n" {
		t.Errorf("got %v %q, want completed \"early\\n\"", res.Kind, res.Text)
	}
}

func TestFetchFailingProducer(t *testing.T) {
	e := newTestEngine(Limits{})
	res, err := e.Fetch(context.Background(), shell("echo 'predicate is invalid' >&2; exit 3"), nil, Budget{MaxDuration: 5 * time.Second})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Kind != KindProcessError {
		t.Fatalf("kind: got %v, want process-error", res.Kind)
	}
	if !strings.Contains(res.Message, "status 3") || !strings.Contains(res.Message, "predicate is invalid") {
		t.Errorf("message: got %q", res.Message)
	}
}

func TestSearchFilters(t *testing.T) {
	e := newTestEngine(Limits{})
	target := shell("printf 'foo 1\\nbar\\nFOO 2\\nbaz\\n'")
	res, err := e.Search(context.Background(), target, Plain("foo"), Budget{MaxLines: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Text != "foo 1\nFOO 2\n" {
		t.Errorf("text: got %q", res.Text)
	}
	if res.Lines != 2 {
		t.Errorf("lines: got %d, want 2", res.Lines)
	}
}

func TestSearchCapCountsOnlyMatches(t *testing.T) {
	e := newTestEngine(Limits{})
	target := shell(`i=0; while [ $i -lt 50 ]; do echo "noise $i"; echo "hit $i"; i=$((i+1)); done; sleep 5`)
	res, err := e.Search(context.Background(), target, Regex(`^hit \d+$`), Budget{MaxLines: 5, MaxDuration: 5 * time.Second})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Kind != KindCapped {
		t.Fatalf("kind: got %v, want capped", res.Kind)
	}
	if strings.Contains(res.Text, "noise") {
		t.Errorf("non-matching line retained: %q", res.Text)
	}
	if res.Text != "hit 0\nhit 1\nhit 2\nhit 3\nhit 4\n" {
		t.Errorf("text: got %q", res.Text)
	}
}

func TestMissingCommandIsProcessErrorForEveryStrategy(t *testing.T) {
	e := newTestEngine(Limits{})
	target := core.NewLogTarget("console-mcp-no-such-binary", []string{"--flag"}, "")
	budget := Budget{MaxDuration: time.Second}
	ctx := context.Background()

	calls := map[string]func() (Result, error){
		"fetch":  func() (Result, error) { return e.Fetch(ctx, target, nil, budget) },
		"stream": func() (Result, error) { return e.Stream(ctx, target, nil, budget) },
		"search": func() (Result, error) { return e.Search(ctx, target, Plain("x"), budget) },
		"watch":  func() (Result, error) { return e.Watch(ctx, target, Plain("x"), budget) },
	}
	for name, call := range calls {
		res, err := call()
		if err != nil {
			t.Errorf("%s: unexpected error %v", name, err)
			continue
		}
		if res.Kind != KindProcessError {
			t.Errorf("%s: kind got %v, want process-error", name, res.Kind)
		}
		if !strings.Contains(res.Message, "console-mcp-no-such-binary") {
			t.Errorf("%s: message got %q", name, res.Message)
		}
	}
}

func TestInvalidPatternDoesNotSpawn(t *testing.T) {
	e := newTestEngine(Limits{})
	marker := filepath.Join(t.TempDir(), "spawned")
	target := shell("touch " + marker)

	_, err := e.Watch(context.Background(), target, Regex("(unclosed"), Budget{MaxDuration: time.Second})
	var ipe *InvalidPatternError
	if !errors.As(err, &ipe) {
		t.Fatalf("watch: got %v, want *InvalidPatternError", err)
	}
	bad := Regex("[")
	if _, err := e.Fetch(context.Background(), target, &bad, Budget{}); !errors.As(err, &ipe) {
		t.Fatalf("fetch: got %v, want *InvalidPatternError", err)
	}

	time.Sleep(200 * time.Millisecond)
	if _, err := os.Stat(marker); err == nil {
		t.Error("producer was started despite an invalid pattern")
	}
}

func TestContextCancelEndsCall(t *testing.T) {
	e := newTestEngine(Limits{})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := e.Watch(ctx, shell(endless), Plain("never"), Budget{MaxDuration: 30 * time.Second})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err: got %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("cancellation took %v", elapsed)
	}
}

func TestSeparateStderr(t *testing.T) {
	e := newTestEngine(Limits{SeparateStderr: true})
	res, err := e.Fetch(context.Background(), shell("echo out; echo warn >&2"), nil, Budget{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Text != "out\n" {
		t.Errorf("text: got %q", res.Text)
	}
	if res.Diagnostics != "warn\n" {
		t.Errorf("diagnostics: got %q", res.Diagnostics)
	}
}

func TestStderrCountsByDefault(t *testing.T) {
	e := newTestEngine(Limits{})
	res, err := e.Fetch(context.Background(), shell("echo out; echo warn >&2"), nil, Budget{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Lines != 2 {
		t.Errorf("lines: got %d, want 2", res.Lines)
	}
}

func TestLineObserverSeesEveryLine(t *testing.T) {
	e := newTestEngine(Limits{})
	var seen atomic.Int32
	res, err := e.Search(context.Background(), shell("printf 'a\\nb\\nc\\n'"), Plain("b"), Budget{},
		WithLineObserver(func(core.LogLine) { seen.Add(1) }),
		WithTargetID("custom:exec:demo"),
	)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if seen.Load() != 3 {
		t.Errorf("observed: got %d, want 3", seen.Load())
	}
	if res.Text != "b\n" {
		t.Errorf("text: got %q", res.Text)
	}
}

func TestClampDuration(t *testing.T) {
	tests := []struct {
		d, ceiling, want time.Duration
	}{
		{0, 30 * time.Second, 30 * time.Second},
		{-time.Second, 30 * time.Second, 30 * time.Second},
		{5 * time.Second, 30 * time.Second, 5 * time.Second},
		{time.Minute, 30 * time.Second, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := ClampDuration(tt.d, tt.ceiling); got != tt.want {
			t.Errorf("ClampDuration(%v, %v): got %v, want %v", tt.d, tt.ceiling, got, tt.want)
		}
	}
}
