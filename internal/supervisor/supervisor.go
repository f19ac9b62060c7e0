//go:build !windows

// Package supervisor implements the Process Supervisor (spec §4.3,
// component C3): spawns an agent executable, owns its stdio, surfaces
// stderr as a structured log-line stream, and guarantees termination
// (graceful SIGTERM, grace period, forceful SIGKILL) with exit status
// reaped exactly once.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sessiond/agentbridge"
	"github.com/sessiond/agentbridge/internal/sigpolicy"
	"go.uber.org/zap"
)

const defaultGracePeriod = 5 * time.Second

// StderrLine is one line read from the child's stderr, spec §4.3's
// "line-oriented log-entry stream."
type StderrLine struct {
	Text      string
	Timestamp time.Time
}

// Options configures a Supervisor.
type Options struct {
	// GracePeriod is how long Stop waits after SIGTERM before SIGKILL.
	GracePeriod time.Duration

	// SuppressSIGPIPE installs a process-wide ignore handler for SIGPIPE
	// (spec §9 open question 2: "treat it as a platform policy knob").
	// Only meaningful once per process; safe to call redundantly.
	SuppressSIGPIPE bool

	// Logger receives internal lifecycle diagnostics (spawn, signal,
	// reap). Never part of the consumer-visible Event contract — that is
	// carried by StderrLine and by the adapter's own Log events.
	Logger *zap.Logger

	Env []string
}

// Supervisor owns exactly one live child process.
type Supervisor struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	logger *zap.Logger

	stderrLines chan StderrLine

	grace time.Duration

	mu       sync.Mutex
	stopping atomic.Bool
	killed   atomic.Bool // set just before Stop escalates to SIGKILL
	stopOnce sync.Once
	cmdDone  chan struct{} // buffered 1; signaled once cmd.Wait returns
	waitErr  error

	pid    int
	binary string
}

var sigpipeOnce sync.Once

// Spawn resolves binary via PATH, starts it with args/cwd/env, and wires
// its stdio. wantStdin controls whether a stdin pipe is created (some
// backends never write to the child, e.g. a pure spawn-per-turn CLI with
// its prompt as an argument).
func Spawn(binary string, args []string, cwd string, wantStdin bool, opts Options) (*Supervisor, error) {
	if opts.SuppressSIGPIPE {
		sigpipeOnce.Do(func() { signalIgnoreSIGPIPE() })
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	resolved, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", agentbridge.ErrSpawnFailed, binary, err)
	}

	cmd := exec.Command(resolved, args...)
	cmd.Dir = cwd
	if opts.Env != nil {
		cmd.Env = opts.Env
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %w", agentbridge.ErrSpawnFailed, err)
	}
	var stdin io.WriteCloser
	if wantStdin {
		stdin, err = cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("%w: stdin pipe: %w", agentbridge.ErrSpawnFailed, err)
		}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr pipe: %w", agentbridge.ErrSpawnFailed, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start: %w", agentbridge.ErrSpawnFailed, err)
	}

	grace := opts.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}

	s := &Supervisor{
		cmd:         cmd,
		stdin:       stdin,
		stdout:      stdout,
		logger:      logger,
		stderrLines: make(chan StderrLine, 64),
		grace:       grace,
		cmdDone:     make(chan struct{}, 1),
		pid:         cmd.Process.Pid,
		binary:      resolved,
	}

	go s.pumpStderr(stderr)
	go s.reap()

	logger.Debug("supervisor: spawned", zap.String("binary", resolved), zap.Int("pid", s.pid))
	return s, nil
}

// PID returns the child's process id.
func (s *Supervisor) PID() int { return s.pid }

// Binary returns the resolved absolute path of the running binary.
func (s *Supervisor) Binary() string { return s.binary }

// Stdin returns the child's stdin pipe, or nil if wantStdin was false.
func (s *Supervisor) Stdin() io.WriteCloser { return s.stdin }

// Stdout returns the child's stdout pipe.
func (s *Supervisor) Stdout() io.Reader { return s.stdout }

// StderrLines returns the stream of stderr lines. The stream is finite
// and closes no later than the child's exit (spec §4.3 invariant).
func (s *Supervisor) StderrLines() <-chan StderrLine { return s.stderrLines }

// Done returns a channel closed once the child has been reaped.
func (s *Supervisor) Done() <-chan struct{} { return s.cmdDone }

// Err returns the terminal wait error once Done is closed: nil on clean
// exit, *agentbridge.ExitError on non-zero exit, agentbridge.ErrTerminated
// if Stop forced termination.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitErr
}

func (s *Supervisor) pumpStderr(r io.Reader) {
	defer close(s.stderrLines)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := StderrLine{Text: scanner.Text(), Timestamp: time.Now()}
		select {
		case s.stderrLines <- line:
		default:
			// Never block the reader on a slow/absent stderr consumer
			// (spec §5): drop and keep pumping.
		}
	}
}

func (s *Supervisor) reap() {
	err := s.cmd.Wait()

	s.mu.Lock()
	switch {
	case s.killed.Load():
		s.waitErr = agentbridge.ErrTerminated
	case err != nil:
		s.waitErr = wrapExitError(err)
	default:
		s.waitErr = nil
	}
	s.mu.Unlock()

	s.logger.Debug("supervisor: reaped", zap.Int("pid", s.pid), zap.Error(s.waitErr))
	s.cmdDone <- struct{}{}
	close(s.cmdDone)
}

// Signal sends sig to the child. os.ErrProcessDone is treated as success
// (the process is already gone, which is the caller's goal).
func (s *Supervisor) Signal(sig os.Signal) error {
	err := s.cmd.Process.Signal(sig)
	if err != nil && errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Stop performs graceful-then-forceful termination: close stdin, send
// SIGTERM, wait up to the configured grace period (or until ctx is
// done), then SIGKILL. Blocks until the child is reaped. Idempotent.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		if s.stdin != nil {
			_ = s.stdin.Close()
		}
		_ = s.Signal(syscall.SIGTERM)

		timer := time.NewTimer(s.grace)
		defer timer.Stop()

		select {
		case <-s.cmdDone:
			return
		case <-timer.C:
		case <-ctx.Done():
		}

		// cmdDone may have fired concurrently with the timer/ctx race;
		// re-check before escalating to avoid signaling a reaped pid.
		select {
		case <-s.cmdDone:
			return
		default:
		}
		s.killed.Store(true)
		_ = s.Signal(syscall.SIGKILL)
		<-s.cmdDone
	})
	<-s.cmdDone
	return nil
}

func wrapExitError(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &agentbridge.ExitError{Code: exitErr.ExitCode(), Err: err}
	}
	return err
}

func signalIgnoreSIGPIPE() {
	// Writes to a subprocess's closed stdin pipe must surface as errors
	// from Write, not terminate this process (spec §4.3 point 4).
	sigpolicy.IgnoreSIGPIPE()
}
