// Package acp implements the Agent Client Protocol backend adapter (spec
// §4.4.3): a genuine JSON-RPC 2.0 peer, one subprocess per session (unlike
// Codex's shared app-server), that additionally plays the *client* role
// for fs/read_text_file, fs/write_text_file, terminal/*, and
// session/request_permission — methods the agent calls back into us.
package acp

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sessiond/agentbridge"
	"github.com/sessiond/agentbridge/internal/rpc"
	"github.com/sessiond/agentbridge/internal/supervisor"
	"github.com/sessiond/agentbridge/permission"
	"go.uber.org/zap"
)

const defaultBinary = "acp-agent"

// Session option keys specific to the ACP backend.
const (
	// OptionExtraRoots is a comma-separated list of additional directories
	// (beyond the session CWD) the fs/terminal path policy allows.
	OptionExtraRoots = "acp.extra_roots"

	// OptionArgs is a comma-separated list of extra arguments appended to
	// the agent's invocation.
	OptionArgs = "acp.args"
)

// Backend is the ACP agentbridge.Engine implementation.
type Backend struct {
	binary      string
	gracePeriod time.Duration
	handshakeTO time.Duration
	logger      *zap.Logger
}

var _ agentbridge.Engine = (*Backend)(nil)

// Option configures a Backend at construction time.
type Option func(*Backend)

// WithBinary overrides the ACP agent binary path.
func WithBinary(path string) Option {
	return func(b *Backend) {
		if path != "" {
			b.binary = path
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

// WithHandshakeTimeout overrides the default 30s initialize/session
// handshake deadline.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.handshakeTO = d
		}
	}
}

// New creates an ACP backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		binary:      defaultBinary,
		gracePeriod: 5 * time.Second,
		handshakeTO: 30 * time.Second,
		logger:      zap.NewNop(),
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

// Start spawns a fresh subprocess for this session, performs the
// initialize/session handshake, and applies initial mode/model config.
func (b *Backend) Start(ctx context.Context, spec agentbridge.SessionSpec) (agentbridge.Session, error) {
	spec = spec.Clone()
	spec.Backend = agentbridge.BackendACP

	var args []string
	if extra := spec.Options[OptionArgs]; extra != "" {
		args = strings.Split(extra, ",")
	}

	sup, err := supervisor.Spawn(b.binary, args, spec.CWD, true, supervisor.Options{
		GracePeriod:     b.gracePeriod,
		SuppressSIGPIPE: true,
		Logger:          b.logger,
	})
	if err != nil {
		return nil, err
	}

	conn := rpc.New(sup.Stdout(), sup.Stdin(), rpc.Config{
		Logger: b.logger,
		OnParseError: func(line []byte, err error) {
			b.logger.Debug("acp: parse error", zap.Error(err))
		},
	})

	var roots []string
	if extra := spec.Options[OptionExtraRoots]; extra != "" {
		roots = strings.Split(extra, ",")
	}

	s := &session{
		spec:       spec,
		conn:       conn,
		sup:        sup,
		logger:     b.logger,
		events:     make(chan agentbridge.Event, 256),
		perms:      make(chan agentbridge.PermissionRequest, 32),
		dispatcher: permission.New(),
		terminals:  newTerminalRegistry(),
		policy:     newPathPolicy(spec.CWD, roots),
		done:       make(chan struct{}),
	}
	s.registerNotificationHandlers()
	s.registerClientMethods()

	go conn.ReadLoop()
	go forwardStderr(sup, b.logger)
	go s.watchProcessExit()

	hsCtx, cancel := context.WithTimeout(ctx, b.handshakeTO)
	defer cancel()

	if err := s.handshake(hsCtx); err != nil {
		_ = sup.Stop(ctx)
		return nil, err
	}

	s.pushEvent(s.nextEvent(agentbridge.EventSystemInit, nil))

	if spec.InitialPrompt != "" {
		if err := s.SendText(ctx, spec.InitialPrompt); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// handshake performs initialize, then session/new or session/load, then
// applies any mode/model config the caller requested via SessionSpec.
func (s *session) handshake(ctx context.Context) error {
	var initResult initializeResult
	if err := s.conn.Call(ctx, MethodInitialize, initializeParams{
		ProtocolVersion: protocolVersion,
		ClientCapabilities: &clientCapabilities{
			FS:       &fileSystemCapability{ReadTextFile: true, WriteTextFile: true},
			Terminal: true,
		},
		ClientInfo: &implementation{Name: clientName, Version: clientVersion},
	}, &initResult); err != nil {
		return fmt.Errorf("%w: initialize: %w", agentbridge.ErrInitTimeout, err)
	}
	s.agentCaps = initResult.AgentCapabilities

	if resumeID := s.spec.Options[agentbridge.OptionResumeID]; resumeID != "" {
		var res loadSessionResult
		if err := s.conn.Call(ctx, MethodSessionLoad, loadSessionParams{
			SessionID: resumeID,
			CWD:       s.spec.CWD,
		}, &res); err != nil {
			return fmt.Errorf("%w: session/load: %w", agentbridge.ErrProtocol, err)
		}
		s.sessionID = resumeID
		s.modes = res.Modes
		s.models = res.Models
		s.configOptions = res.ConfigOptions
	} else {
		var res newSessionResult
		if err := s.conn.Call(ctx, MethodSessionNew, newSessionParams{CWD: s.spec.CWD}, &res); err != nil {
			return fmt.Errorf("%w: session/new: %w", agentbridge.ErrProtocol, err)
		}
		if res.SessionID == "" {
			return fmt.Errorf("%w: session/new: missing sessionId", agentbridge.ErrProtocol)
		}
		s.sessionID = res.SessionID
		s.modes = res.Modes
		s.models = res.Models
		s.configOptions = res.ConfigOptions
	}
	s.resolved.ID = s.sessionID
	s.resolved.Ok = true

	return s.applySessionConfig(ctx)
}

// applySessionConfig pushes SessionSpec-level mode/model onto a freshly
// opened session. A set_mode failure is treated as fatal — an agent that
// rejects the requested mode must not silently run in a different one,
// since plan-mode is a security-relevant guarantee per spec §4.1's mode
// control surface. A set_config_option failure for model selection is
// logged and otherwise ignored.
func (s *session) applySessionConfig(ctx context.Context) error {
	if mode := agentbridge.Mode(s.spec.Options[agentbridge.OptionMode]); mode.Valid() && s.modes != nil {
		if err := s.conn.Call(ctx, MethodSessionSetMode, setModeParams{
			SessionID: s.sessionID,
			ModeID:    string(mode),
		}, nil); err != nil {
			return fmt.Errorf("%w: session/set_mode: %w", agentbridge.ErrProtocol, err)
		}
	}

	if s.spec.Model != "" {
		if id, ok := s.modelConfigOptionID(); ok {
			if err := s.conn.Call(ctx, MethodSessionSetConfig, setConfigOptionParams{
				SessionID: s.sessionID,
				ConfigID:  id,
				Value:     s.spec.Model,
			}, nil); err != nil {
				s.logger.Warn("acp: set_config_option for model failed", zap.Error(err))
			}
		}
	}
	return nil
}

func (s *session) modelConfigOptionID() (string, bool) {
	for _, opt := range s.configOptions {
		if opt.Category == "model" {
			return opt.ID, true
		}
	}
	return "", false
}

func forwardStderr(sup *supervisor.Supervisor, logger *zap.Logger) {
	for line := range sup.StderrLines() {
		logger.Debug("acp: stderr", zap.String("line", line.Text))
	}
}

func decodeNotification(raw json.RawMessage) map[string]any {
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	return m
}
