package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/devstroop/console-mcp/pkg/core"
)

// State is the lifecycle position of a Session.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateTerminating
	StateExited
	StateTerminated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	case StateExited:
		return "exited"
	case StateTerminated:
		return "terminated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateExited || s == StateTerminated || s == StateFailed
}

const (
	defaultKillGrace  = 2 * time.Second
	defaultLineBuffer = 256
	defaultDrainIdle  = 250 * time.Millisecond
	readChunkSize     = 32 * 1024
)

// SessionOptions tunes a Session.
type SessionOptions struct {
	// KillGrace is how long a producer may ignore SIGTERM before the whole
	// process group is sent SIGKILL.
	KillGrace time.Duration
	// DrainIdle is how long output may stay silent after the producer has
	// been reaped before its pipes are closed. A process that left the
	// group can hold them open indefinitely.
	DrainIdle time.Duration
	// TargetID is copied onto every emitted LogLine.
	TargetID   string
	LineBuffer int
	Logger     *slog.Logger
}

// Session owns one external log-producing process.
type Session struct {
	id     string
	target core.LogTarget
	opts   SessionOptions
	logger *slog.Logger
	cmd    *exec.Cmd

	mu       sync.Mutex
	state    State
	exitCode int
	waitErr  error

	pipes    []*os.File
	activity atomic.Int64
	readers  sync.WaitGroup

	lines    chan core.LogLine
	stopOnce sync.Once
	stopping chan struct{}
	exited   chan struct{}
	done     chan struct{}
}

// StartSession spawns target in its own process group and begins reading its
// output. A spawn failure, including a missing executable, is returned as
// *ProcessError. Cancelling ctx terminates the session.
func StartSession(ctx context.Context, target core.LogTarget, opts SessionOptions) (*Session, error) {
	if opts.KillGrace <= 0 {
		opts.KillGrace = defaultKillGrace
	}
	if opts.DrainIdle <= 0 {
		opts.DrainIdle = defaultDrainIdle
	}
	if opts.LineBuffer <= 0 {
		opts.LineBuffer = defaultLineBuffer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		id:       uuid.NewString(),
		target:   target,
		opts:     opts,
		state:    StateNotStarted,
		exitCode: -1,
		lines:    make(chan core.LogLine, opts.LineBuffer),
		stopping: make(chan struct{}),
		exited:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.logger = logger.With("session", s.id)

	if target.Command == "" {
		s.state = StateFailed
		return nil, &ProcessError{Command: "<empty>", Err: errors.New("empty command")}
	}

	cmd := exec.Command(target.Command, target.Argv()...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// The session owns the read ends and closes them after the reap.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		s.state = StateFailed
		return nil, &ProcessError{Command: target.Command, Err: err}
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		s.state = StateFailed
		return nil, &ProcessError{Command: target.Command, Err: err}
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	err = cmd.Start()
	closeAll(stdoutW, stderrW)
	if err != nil {
		closeAll(stdoutR, stderrR)
		s.state = StateFailed
		return nil, &ProcessError{Command: target.Command, Err: err}
	}
	s.pipes = []*os.File{stdoutR, stderrR}

	s.mu.Lock()
	s.cmd = cmd
	s.state = StateRunning
	s.mu.Unlock()

	s.logger.Debug("producer started", "pid", cmd.Process.Pid, "command", target.String())

	s.readers.Add(2)
	go s.read(stdoutR, core.StreamStdout)
	go s.read(stderrR, core.StreamStderr)
	go s.reap()

	go func() {
		select {
		case <-ctx.Done():
			s.Terminate()
		case <-s.done:
		}
	}()

	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Target returns the target the session was started with.
func (s *Session) Target() core.LogTarget { return s.target }

// Lines delivers output lines in per-stream arrival order. It is closed once
// the process has been reaped and every line read before exit was delivered.
func (s *Session) Lines() <-chan core.LogLine { return s.lines }

// Done is closed after the process has been reaped and its pipes are closed.
// Output still held open by a process outside the group is cut off once it
// has been idle for DrainIdle, or at once when the session is stopping.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ExitCode returns the process exit status, or -1 while running or when the
// process was ended by a signal.
func (s *Session) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

// Err returns the error reported by Wait once the process has been reaped.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitErr
}

// Terminate asks the producer to stop by sending SIGTERM to its process
// group, escalating to SIGKILL after KillGrace. It is safe to call from any
// goroutine, any number of times; after exit it does nothing.
func (s *Session) Terminate() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StateTerminating
	s.halt()
	pid := s.cmd.Process.Pid
	s.mu.Unlock()

	s.logger.Debug("terminating producer", "pid", pid)
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Warn("signal producer", "pid", pid, "err", err)
	}
	go s.escalate(pid)
}

// Close terminates the session and blocks until the process has been reaped
// and both pipes are closed. Lines not yet consumed are discarded.
func (s *Session) Close() {
	s.Terminate()
	s.halt()
	<-s.done
}

// halt stops line delivery.
func (s *Session) halt() {
	s.stopOnce.Do(func() { close(s.stopping) })
}

func (s *Session) halted() bool {
	select {
	case <-s.stopping:
		return true
	default:
		return false
	}
}

func (s *Session) escalate(pid int) {
	timer := time.NewTimer(s.opts.KillGrace)
	defer timer.Stop()

	select {
	case <-s.exited:
	case <-timer.C:
		s.logger.Warn("producer ignored SIGTERM, killing", "pid", pid, "grace", s.opts.KillGrace)
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	}
}

func (s *Session) read(r io.Reader, stream string) {
	defer s.readers.Done()

	var sp Splitter
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.activity.Add(1)
			for _, line := range sp.Feed(buf[:n]) {
				s.deliver(stream, line)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				s.logger.Debug("read output", "stream", stream, "err", err)
			}
			break
		}
	}
	if n := sp.Pending(); n > 0 && s.halted() {
		s.logger.Debug("partial line dropped", "stream", stream, "bytes", n)
		return
	}
	if line, ok := sp.Flush(); ok {
		s.deliver(stream, line)
	}
}

// deliver hands a line to the consumer unless termination was requested.
// Lines arriving after that are drained and dropped so the pipe never blocks
// the producer on its way out.
func (s *Session) deliver(stream, line string) {
	select {
	case <-s.stopping:
		return
	default:
	}

	entry := core.LogLine{
		TargetID: s.opts.TargetID,
		TsUnixMs: time.Now().UnixMilli(),
		Stream:   stream,
		Line:     line,
	}
	select {
	case s.lines <- entry:
		s.activity.Add(1)
	case <-s.stopping:
	}
}

// reap waits for the process, then for its output. Lines still buffered in
// the pipes are delivered before Lines closes.
func (s *Session) reap() {
	err := s.cmd.Wait()
	close(s.exited)

	s.mu.Lock()
	s.waitErr = err
	if s.cmd.ProcessState != nil {
		s.exitCode = s.cmd.ProcessState.ExitCode()
	}
	if s.state == StateTerminating {
		s.state = StateTerminated
	} else {
		s.state = StateExited
	}
	state := s.state
	code := s.exitCode
	s.mu.Unlock()

	s.logger.Debug("producer reaped", "state", state, "exit_code", code, "err", err)
	s.drain()
	close(s.lines)
	close(s.done)
}

// drain waits for both readers to finish. Once the pipes have been silent
// for DrainIdle, or delivery has stopped, the read ends are closed so a
// reader blocked on a pipe inherited by another process returns.
func (s *Session) drain() {
	finished := make(chan struct{})
	go func() {
		s.readers.Wait()
		close(finished)
	}()

	ticker := time.NewTicker(s.opts.DrainIdle)
	defer ticker.Stop()
	last := s.activity.Load()
	for {
		select {
		case <-finished:
			closeAll(s.pipes...)
			return
		case <-s.stopping:
		case <-ticker.C:
			if n := s.activity.Load(); n != last {
				last = n
				continue
			}
			s.logger.Warn("output held open after exit, closing pipes", "idle", s.opts.DrainIdle)
		}
		closeAll(s.pipes...)
		<-finished
		return
	}
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
