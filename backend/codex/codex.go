// Package codex implements the Codex app-server backend adapter (spec
// §4.4.2): a genuine JSON-RPC 2.0 peer over a single `codex app-server`
// process shared across every session this Backend starts — unlike
// Claude and ACP, which spawn one child per session, Codex's "threads
// are sessions" model multiplexes many threads over one long-lived
// connection (GLOSSARY: "Codex shares a single app-server process
// across sessions").
package codex

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/sessiond/agentbridge"
	"github.com/sessiond/agentbridge/internal/rpc"
	"github.com/sessiond/agentbridge/internal/supervisor"
	"github.com/sessiond/agentbridge/permission"
	"go.uber.org/zap"
)

const defaultBinary = "codex"

// Session option keys specific to the Codex backend.
const (
	// OptionSandbox sets the thread/start sandboxPolicy. Values should be
	// Sandbox constants. Ignored when the cross-cutting OptionMode is set
	// to plan (SPEC_FULL supplement #7: plan mode always forces a
	// read-only sandbox regardless of this option).
	OptionSandbox = "codex.sandbox"

	// OptionProfile selects a named Codex configuration profile.
	OptionProfile = "codex.profile"
)

// Sandbox controls Codex's sandbox policy.
type Sandbox string

const (
	SandboxReadOnly       Sandbox = "read-only"
	SandboxWorkspaceWrite Sandbox = "workspace-write"
	SandboxFullAccess     Sandbox = "danger-full-access"
)

func validSandbox(s Sandbox) bool {
	switch s {
	case SandboxReadOnly, SandboxWorkspaceWrite, SandboxFullAccess:
		return true
	}
	return false
}

// codexEffort maps the cross-cutting Effort values to Codex's
// model_reasoning_effort vocabulary. max maps to "xhigh", a Codex-only
// reasoning tier with no equivalent in the other two backends.
var codexEffort = map[agentbridge.Effort]string{
	agentbridge.EffortLow:    "low",
	agentbridge.EffortMedium: "medium",
	agentbridge.EffortHigh:   "high",
	agentbridge.EffortMax:    "xhigh",
}

// Backend is the Codex app-server agentbridge.Engine implementation.
type Backend struct {
	binary      string
	gracePeriod time.Duration
	initTimeout time.Duration
	logger      *zap.Logger
	auditPath   string

	mu       sync.Mutex
	sup      *supervisor.Supervisor
	conn     *rpc.Conn
	sessions sync.Map // threadID -> *session
	ready    bool
}

var _ agentbridge.Engine = (*Backend)(nil)

// Option configures a Backend at construction time.
type Option func(*Backend)

// WithBinary overrides the Codex binary path.
func WithBinary(path string) Option {
	return func(b *Backend) {
		if path != "" {
			b.binary = path
		}
	}
}

// WithInitTimeout overrides the default 30s app-server handshake
// deadline (spec §5).
func WithInitTimeout(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.initTimeout = d
		}
	}
}

// WithLogger sets the internal diagnostics logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates a Codex backend. The app-server process is not spawned
// until the first Start call.
func New(opts ...Option) *Backend {
	binary := os.Getenv("CODEX_PATH")
	if binary == "" {
		binary = defaultBinary
	}
	b := &Backend{
		binary:      binary,
		gracePeriod: 5 * time.Second,
		initTimeout: 30 * time.Second,
		logger:      zap.NewNop(),
	}
	if p := os.Getenv("CODEX_RPC_LOG_FILE"); p != "" {
		b.auditPath = p
	} else if p := os.Getenv("CC_INSIGHTS_CODEX_RPC_LOG_FILE"); p != "" {
		b.auditPath = p
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Validate() error {
	if _, err := exec.LookPath(b.binary); err != nil {
		return fmt.Errorf("%w: %s: %w", agentbridge.ErrSpawnFailed, b.binary, err)
	}
	return nil
}

// ensureStarted lazily spawns the shared app-server process and performs
// the initialize/initialized/config handshake exactly once.
func (b *Backend) ensureStarted(ctx context.Context) (*rpc.Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ready {
		return b.conn, nil
	}

	sup, err := supervisor.Spawn(b.binary, []string{"app-server"}, "", true, supervisor.Options{
		GracePeriod:     b.gracePeriod,
		SuppressSIGPIPE: true,
		Logger:          b.logger,
	})
	if err != nil {
		return nil, err
	}

	var audit rpc.Audit
	if f, err := openAuditFile(b.auditPath); err == nil && f != nil {
		audit = func(direction string, frame json.RawMessage) {
			_, _ = f.Write(append(append([]byte(direction+" "), frame...), '\n'))
		}
	}

	conn := rpc.New(sup.Stdout(), sup.Stdin(), rpc.Config{
		Audit:  audit,
		Logger: b.logger,
		OnParseError: func(line []byte, err error) {
			b.logger.Debug("codex: parse error", zap.Error(err))
		},
	})
	b.registerNotificationHandlers(conn)
	go conn.ReadLoop()
	go forwardStderr(sup, b)

	initCtx, cancel := context.WithTimeout(ctx, b.initTimeout)
	defer cancel()

	var initResult json.RawMessage
	if err := conn.Call(initCtx, "initialize", map[string]any{
		"clientInfo": map[string]string{"name": "agentbridge", "version": "0.1.0"},
	}, &initResult); err != nil {
		_ = sup.Stop(ctx)
		return nil, fmt.Errorf("%w: initialize: %w", agentbridge.ErrInitTimeout, err)
	}
	if err := conn.Notify("initialized", struct{}{}); err != nil {
		_ = sup.Stop(ctx)
		return nil, err
	}
	// Best-effort reads; a server that doesn't support them yet must not
	// block session creation.
	_ = conn.Call(initCtx, "config/read", nil, nil)
	_ = conn.Call(initCtx, "config/requirementsRead", nil, nil)

	b.sup = sup
	b.conn = conn
	b.ready = true
	return conn, nil
}

func (b *Backend) Start(ctx context.Context, spec agentbridge.SessionSpec) (agentbridge.Session, error) {
	spec = spec.Clone()
	spec.Backend = agentbridge.BackendCodex

	conn, err := b.ensureStarted(ctx)
	if err != nil {
		return nil, err
	}

	method := "thread/start"
	params := map[string]any{"cwd": spec.CWD}
	if spec.Model != "" {
		params["model"] = spec.Model
	}
	if resumeID := spec.Options[agentbridge.OptionResumeID]; resumeID != "" {
		method = "thread/resume"
		params["threadId"] = resumeID
	}
	if sandbox, ok := resolveSandbox(spec.Options); ok {
		params["sandboxPolicy"] = sandbox
	}
	if profile := spec.Options[OptionProfile]; profile != "" {
		params["profile"] = profile
	}

	var result struct {
		ThreadID string `json:"threadId"`
	}
	if err := conn.Call(ctx, method, params, &result); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", agentbridge.ErrProtocol, method, err)
	}
	if result.ThreadID == "" {
		return nil, fmt.Errorf("%w: %s: missing threadId in response", agentbridge.ErrProtocol, method)
	}

	s := &session{
		spec:       spec,
		conn:       conn,
		threadID:   result.ThreadID,
		logger:     b.logger,
		events:     make(chan agentbridge.Event, 256),
		perms:      make(chan agentbridge.PermissionRequest, 32),
		dispatcher: permission.New(),
		items:      make(map[string]*itemState),
		done:       make(chan struct{}),
	}
	s.resolved.ID = result.ThreadID
	s.resolved.Ok = true
	s.remove = func() { b.sessions.Delete(result.ThreadID) }
	b.sessions.Store(result.ThreadID, s)

	s.pushEvent(s.nextEvent(agentbridge.EventSystemInit, nil))

	if spec.InitialPrompt != "" {
		if err := s.SendText(ctx, spec.InitialPrompt); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// resolveSandbox applies SPEC_FULL supplement #7: plan mode always wins
// over the backend-specific sandbox option, forcing a read-only policy
// so a UI-level "plan" toggle can never be defeated by a stale
// codex.sandbox setting from a previous act-mode turn.
func resolveSandbox(opts map[string]string) (string, bool) {
	if agentbridge.Mode(opts[agentbridge.OptionMode]) == agentbridge.ModePlan {
		return string(SandboxReadOnly), true
	}
	if s := Sandbox(opts[OptionSandbox]); s != "" && validSandbox(s) {
		return string(s), true
	}
	return "", false
}

func forwardStderr(sup *supervisor.Supervisor, b *Backend) {
	for line := range sup.StderrLines() {
		b.logger.Debug("codex: stderr", zap.String("line", line.Text))
	}
}

func openAuditFile(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("codex: audit path must be absolute: %q", path)
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

func lookupSession(b *Backend, threadID string) (*session, bool) {
	v, ok := b.sessions.Load(threadID)
	if !ok {
		return nil, false
	}
	return v.(*session), true
}

// valueOrDefault is used by item handlers that accept either a present
// string field or fall back to a kind label.
func valueOrDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
