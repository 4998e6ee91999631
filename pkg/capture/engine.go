package capture

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"time"

	"github.com/devstroop/console-mcp/pkg/core"
)

// Limits are the engine-wide ceilings applied to every call.
type Limits struct {
	// MaxFetchDuration bounds Fetch and Search; it also applies when the
	// caller gives no duration at all.
	MaxFetchDuration  time.Duration
	MaxStreamDuration time.Duration
	MaxWatchDuration  time.Duration
	// MaxLines caps retained lines when the caller asks for more or for none.
	MaxLines  int
	KillGrace time.Duration
	// SeparateStderr keeps error-stream lines out of the collected text and
	// line counts, reporting them as Result.Diagnostics instead.
	SeparateStderr bool
}

// DefaultLimits returns the ceilings used when no configuration is given.
func DefaultLimits() Limits {
	return Limits{
		MaxFetchDuration:  60 * time.Second,
		MaxStreamDuration: 30 * time.Second,
		MaxWatchDuration:  60 * time.Second,
		MaxLines:          10000,
		KillGrace:         2 * time.Second,
	}
}

// Budget bounds one call. Zero fields are unbounded; the engine still
// applies its Limits so that every call resolves.
type Budget struct {
	MaxLines    int
	MaxDuration time.Duration
}

// ClampDuration returns d limited to (0, ceiling]. A non-positive d yields ceiling.
func ClampDuration(d, ceiling time.Duration) time.Duration {
	if d <= 0 || (ceiling > 0 && d > ceiling) {
		return ceiling
	}
	return d
}

func clampLines(n, ceiling int) int {
	if n <= 0 || (ceiling > 0 && n > ceiling) {
		return ceiling
	}
	return n
}

// Option adjusts a single call.
type Option func(*callOptions)

type callOptions struct {
	observer func(core.LogLine)
	targetID string
}

// WithLineObserver registers fn to see every line the call consumes, in order,
// before filtering. fn runs on the call's goroutine and must not block.
func WithLineObserver(fn func(core.LogLine)) Option {
	return func(o *callOptions) { o.observer = fn }
}

// WithTargetID tags emitted lines with the source ID they were resolved from.
func WithTargetID(id string) Option {
	return func(o *callOptions) { o.targetID = id }
}

// Engine runs acquisition strategies. It keeps no per-call state, so one
// Engine may serve any number of concurrent calls.
type Engine struct {
	limits Limits
	logger *slog.Logger
}

// New creates an engine. Zero-valued limit fields fall back to DefaultLimits.
func New(logger *slog.Logger, limits Limits) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultLimits()
	if limits.MaxFetchDuration <= 0 {
		limits.MaxFetchDuration = def.MaxFetchDuration
	}
	if limits.MaxStreamDuration <= 0 {
		limits.MaxStreamDuration = def.MaxStreamDuration
	}
	if limits.MaxWatchDuration <= 0 {
		limits.MaxWatchDuration = def.MaxWatchDuration
	}
	if limits.MaxLines <= 0 {
		limits.MaxLines = def.MaxLines
	}
	if limits.KillGrace <= 0 {
		limits.KillGrace = def.KillGrace
	}
	return &Engine{limits: limits, logger: logger}
}

// Limits returns the effective ceilings.
func (e *Engine) Limits() Limits { return e.limits }

// Fetch runs target until its duration elapses or it exits, retaining up to
// MaxLines lines (only lines matching spec, when given). Reaching the cap
// ends the call as Capped. When the duration expires first the result is
// TimedOut if nothing was retained and Completed otherwise.
func (e *Engine) Fetch(ctx context.Context, target core.LogTarget, spec *MatchSpec, budget Budget, opts ...Option) (Result, error) {
	m, err := optionalMatcher(spec)
	if err != nil {
		return Result{}, err
	}
	return e.run(ctx, target, plan{
		strategy:  "fetch",
		matcher:   m,
		filter:    m != nil,
		stopOnCap: true,
		onTimeout: timedOutIfEmpty,
		duration:  ClampDuration(budget.MaxDuration, e.limits.MaxFetchDuration),
		maxLines:  clampLines(budget.MaxLines, e.limits.MaxLines),
	}, opts)
}

// Stream runs target for the full duration, clamped to MaxStreamDuration,
// and always terminates it at expiry. The line cap only limits what is
// retained. The outcome is Completed, even with no lines.
func (e *Engine) Stream(ctx context.Context, target core.LogTarget, spec *MatchSpec, budget Budget, opts ...Option) (Result, error) {
	m, err := optionalMatcher(spec)
	if err != nil {
		return Result{}, err
	}
	return e.run(ctx, target, plan{
		strategy:  "stream",
		matcher:   m,
		filter:    m != nil,
		onTimeout: func(int) Kind { return KindCompleted },
		duration:  ClampDuration(budget.MaxDuration, e.limits.MaxStreamDuration),
		maxLines:  clampLines(budget.MaxLines, e.limits.MaxLines),
	}, opts)
}

// Search behaves like Fetch but requires a pattern. Lines that do not match
// are discarded and do not count against the cap.
func (e *Engine) Search(ctx context.Context, target core.LogTarget, spec MatchSpec, budget Budget, opts ...Option) (Result, error) {
	m, err := NewMatcher(spec)
	if err != nil {
		return Result{}, err
	}
	return e.run(ctx, target, plan{
		strategy:  "search",
		matcher:   m,
		filter:    true,
		stopOnCap: true,
		onTimeout: timedOutIfEmpty,
		duration:  ClampDuration(budget.MaxDuration, e.limits.MaxFetchDuration),
		maxLines:  clampLines(budget.MaxLines, e.limits.MaxLines),
	}, opts)
}

// Watch evaluates every line against spec and stops at the first match,
// returning MatchFound with the matched line and all text retained so far.
// If the duration (clamped to MaxWatchDuration) elapses first the result is
// TimedOut with the partial text. If the producer exits first the result is
// Completed without a match.
func (e *Engine) Watch(ctx context.Context, target core.LogTarget, spec MatchSpec, budget Budget, opts ...Option) (Result, error) {
	m, err := NewMatcher(spec)
	if err != nil {
		return Result{}, err
	}
	return e.run(ctx, target, plan{
		strategy:    "watch",
		matcher:     m,
		stopOnMatch: true,
		onTimeout:   func(int) Kind { return KindTimedOut },
		duration:    ClampDuration(budget.MaxDuration, e.limits.MaxWatchDuration),
		maxLines:    clampLines(budget.MaxLines, e.limits.MaxLines),
	}, opts)
}

func optionalMatcher(spec *MatchSpec) (*Matcher, error) {
	if spec == nil || spec.Pattern == "" {
		return nil, nil
	}
	return NewMatcher(*spec)
}

func timedOutIfEmpty(retained int) Kind {
	if retained == 0 {
		return KindTimedOut
	}
	return KindCompleted
}

// plan is the termination policy of one strategy.
type plan struct {
	strategy    string
	matcher     *Matcher
	filter      bool
	stopOnCap   bool
	stopOnMatch bool
	onTimeout   func(retained int) Kind
	duration    time.Duration
	maxLines    int
}

// run drives one session to a result. The select below is the race between
// output (including exit, seen as the closing of Lines), the budget timer and
// cancellation; once a branch decides, the loop returns and no further line
// is consumed. The deferred Close reaps the producer on every path.
func (e *Engine) run(ctx context.Context, target core.LogTarget, p plan, opts []Option) (Result, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	started := time.Now()
	logger := e.logger.With("strategy", p.strategy, "target", target.String())

	sess, err := StartSession(ctx, target, SessionOptions{
		KillGrace: e.limits.KillGrace,
		TargetID:  o.targetID,
		Logger:    e.logger,
	})
	if err != nil {
		logger.Warn("spawn failed", "err", err)
		return Result{Kind: KindProcessError, Message: err.Error(), Elapsed: time.Since(started)}, nil
	}
	defer sess.Close()

	logger = logger.With("session", sess.ID())
	logger.Info("acquisition started", "duration", p.duration, "max_lines", p.maxLines)

	collected := NewCollector(p.maxLines)
	diagnostics := NewCollector(p.maxLines)
	stdoutLines := 0

	finish := func(kind Kind) Result {
		sess.Terminate()
		res := Result{
			Kind:        kind,
			Text:        collected.Snapshot(),
			Lines:       collected.Len(),
			Dropped:     collected.Dropped(),
			Diagnostics: diagnostics.Snapshot(),
			Elapsed:     time.Since(started),
			SessionID:   sess.ID(),
		}
		logger.Info("acquisition finished", "result", kind, "lines", res.Lines, "elapsed", res.Elapsed)
		return res
	}

	timer := time.NewTimer(p.duration)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			res := finish(p.onTimeout(collected.Len()))
			return res, ctx.Err()

		case <-timer.C:
			return finish(p.onTimeout(collected.Len())), nil

		case line, ok := <-sess.Lines():
			if !ok {
				// Cancellation also ends the session; report it as such.
				if err := ctx.Err(); err != nil {
					return finish(p.onTimeout(collected.Len())), err
				}
				return e.exited(sess, finish, stdoutLines), nil
			}
			if o.observer != nil {
				o.observer(line)
			}
			if line.Diagnostic() && e.limits.SeparateStderr {
				diagnostics.Offer(line.Line)
				continue
			}
			if !line.Diagnostic() {
				stdoutLines++
			}

			matched := p.matcher != nil && p.matcher.Matches(line.Line)
			if p.filter && !matched {
				continue
			}
			collected.Offer(line.Line)

			if p.stopOnMatch && matched {
				res := finish(KindMatchFound)
				res.MatchedLine = line.Line
				return res, nil
			}
			if p.stopOnCap && collected.Full() {
				return finish(KindCapped), nil
			}
		}
	}
}

// exited builds the result for a producer that ended on its own. A non-zero
// exit without any standard-output line is a ProcessError carrying whatever
// the producer wrote to stderr.
func (e *Engine) exited(sess *Session, finish func(Kind) Result, stdoutLines int) Result {
	code := sess.ExitCode()
	res := finish(KindCompleted)
	if code == 0 || stdoutLines > 0 {
		return res
	}

	stderr := res.Diagnostics
	if stderr == "" {
		stderr = res.Text
	}
	perr := &ProcessError{Command: sess.Target().Command, ExitCode: code, Stderr: stderr}
	var exitErr *exec.ExitError
	if err := sess.Err(); err != nil && !errors.As(err, &exitErr) {
		perr.Err = err
	}
	res.Kind = KindProcessError
	res.Message = perr.Error()
	return res
}
