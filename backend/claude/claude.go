// Package claude implements the Claude Code CLI backend adapter (spec
// §4.4.1): a single long-lived `claude --output-format stream-json
// --input-format stream-json --permission-prompt-tool stdio` subprocess
// per session, speaking the {type, id?, session_id?, payload} control
// envelope over line-delimited JSON.
package claude

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sessiond/agentbridge"
	"github.com/sessiond/agentbridge/internal/supervisor"
	"github.com/sessiond/agentbridge/internal/wire"
	"github.com/sessiond/agentbridge/permission"
	"go.uber.org/zap"
)

const defaultBinary = "claude"

// Backend is the Claude Code CLI agentbridge.Engine implementation.
type Backend struct {
	binary          string
	partialMessages bool
	initTimeout     time.Duration
	gracePeriod     time.Duration
	logger          *zap.Logger
}

var _ agentbridge.Engine = (*Backend)(nil)

// Option configures a Backend at construction time.
type Option func(*Backend)

// WithBinary overrides the Claude CLI binary path. Empty values are
// ignored; the default resolution order is env CLAUDE_CODE_PATH, then
// "claude" on PATH.
func WithBinary(path string) Option {
	return func(b *Backend) {
		if path != "" {
			b.binary = path
		}
	}
}

// WithPartialMessages controls whether --include-partial-messages is
// passed, enabling token-level StreamDelta events. Default true.
func WithPartialMessages(enabled bool) Option {
	return func(b *Backend) { b.partialMessages = enabled }
}

// WithInitTimeout overrides the default 60s initialization deadline
// (spec §5).
func WithInitTimeout(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.initTimeout = d
		}
	}
}

// WithGracePeriod overrides the default SIGTERM→SIGKILL grace period.
func WithGracePeriod(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.gracePeriod = d
		}
	}
}

// WithLogger sets the internal diagnostics logger. Defaults to a no-op
// logger; never the consumer-visible Event stream.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates a Claude backend.
func New(opts ...Option) *Backend {
	binary := os.Getenv("CLAUDE_CODE_PATH")
	if binary == "" {
		binary = defaultBinary
	}
	b := &Backend{
		binary:          binary,
		partialMessages: true,
		initTimeout:     defaultInitTimeout,
		gracePeriod:     5 * time.Second,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Validate checks that the configured binary is resolvable.
func (b *Backend) Validate() error {
	if _, err := exec.LookPath(b.binary); err != nil {
		return fmt.Errorf("%w: %s: %w", agentbridge.ErrSpawnFailed, b.binary, err)
	}
	return nil
}

func (b *Backend) Start(ctx context.Context, spec agentbridge.SessionSpec) (agentbridge.Session, error) {
	spec = spec.Clone()
	spec.Backend = agentbridge.BackendClaude

	info, err := os.Stat(spec.CWD)
	if err != nil || !info.IsDir() || !filepath.IsAbs(spec.CWD) {
		return nil, fmt.Errorf("%w: cwd %q must be an absolute existing directory", agentbridge.ErrSpawnFailed, spec.CWD)
	}

	args := b.streamArgs(spec)
	sup, err := supervisor.Spawn(b.binary, args, spec.CWD, true, supervisor.Options{
		GracePeriod:     b.gracePeriod,
		SuppressSIGPIPE: true,
		Logger:          b.logger,
		Env:             mergeEnv(spec.Env),
	})
	if err != nil {
		return nil, err
	}

	s := &session{
		spec:       spec,
		sup:        sup,
		writer:     wire.NewWriter(sup.Stdin()),
		logger:     b.logger,
		events:     make(chan agentbridge.Event, eventBuffer),
		perms:      make(chan agentbridge.PermissionRequest, permissionBuffer),
		dispatcher: permission.New(),
		done:       make(chan struct{}),
	}

	go forwardStderr(sup, s)

	r := wire.NewReader(sup.Stdout(), wire.Options{
		OnParseError: func(line []byte, err error) {
			b.logger.Debug("claude: parse error", zap.Error(err))
		},
	})

	initDone := make(chan error, 1)
	go s.readLoop(r, initDone)

	// Kick off the handshake: a control_request carries no guaranteed
	// response of its own in this dialect (session.created plays that
	// role), so we just send it and wait on initDone for both required
	// signals.
	handshake := envelope{Type: typeControlRequest, ID: uuid.NewString(), Payload: mustRaw(controlRequestPayload{Subtype: "initialize"})}
	if err := s.writeEnvelope(handshake); err != nil {
		_ = sup.Stop(ctx)
		return nil, fmt.Errorf("%w: %w", agentbridge.ErrSpawnFailed, err)
	}

	select {
	case err := <-initDone:
		if err != nil {
			_ = sup.Stop(ctx)
			return nil, err
		}
	case <-time.After(b.initTimeout):
		_ = sup.Stop(ctx)
		return nil, agentbridge.ErrInitTimeout
	case <-ctx.Done():
		_ = sup.Stop(ctx)
		return nil, ctx.Err()
	}

	if spec.InitialPrompt != "" {
		if err := s.SendText(ctx, spec.InitialPrompt); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func mergeEnv(overrides map[string]string) []string {
	if len(overrides) == 0 {
		return nil
	}
	env := os.Environ()
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}

func forwardStderr(sup *supervisor.Supervisor, s *session) {
	for line := range sup.StderrLines() {
		ev := s.nextEvent(agentbridge.EventLog, nil)
		ev.LogLevel = "debug"
		ev.Text = line.Text
		s.pushEvent(ev)
	}
}

