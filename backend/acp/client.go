package acp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sessiond/agentbridge"
)

// pathPolicy enforces spec §7's client-implemented safety boundary: every
// fs/* and terminal/create path or cwd must resolve under one of the
// allowed roots (by default, just the session's own CWD). A violation is
// reported as both an RPC error and a PermissionRequest carrying
// BlockedPath, so a consumer can see it in the same stream as tool
// approvals rather than only in a log line.
type pathPolicy struct {
	roots []string
}

func newPathPolicy(cwd string, extraRoots []string) *pathPolicy {
	roots := append([]string{cwd}, extraRoots...)
	return &pathPolicy{roots: roots}
}

func (p *pathPolicy) allowed(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, root := range p.roots {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if abs == rootAbs || strings.HasPrefix(abs, rootAbs+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// registerClientMethods wires the client-side methods ACP agents call
// into the client: fs/read_text_file, fs/write_text_file, and the
// terminal/* family, plus session/request_permission.
func (s *session) registerClientMethods() {
	s.conn.OnMethod(MethodFSReadTextFile, s.handleReadTextFile)
	s.conn.OnMethod(MethodFSWriteTextFile, s.handleWriteTextFile)
	s.conn.OnMethod(MethodTerminalCreate, s.handleTerminalCreate)
	s.conn.OnMethod(MethodTerminalOutput, s.handleTerminalOutput)
	s.conn.OnMethod(MethodTerminalWaitForExit, s.handleTerminalWait)
	s.conn.OnMethod(MethodTerminalKill, s.handleTerminalKill)
	s.conn.OnMethod(MethodTerminalRelease, s.handleTerminalRelease)
	s.conn.OnMethod(MethodRequestPerm, s.handleRequestPermission)
}

func (s *session) handleReadTextFile(ctx context.Context, raw json.RawMessage) (any, error) {
	var p readTextFileParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	if !s.policy.allowed(p.Path) {
		s.raiseBlockedPath(p.Path)
		return nil, agentbridge.ErrPathPolicyViolation
	}
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, err
	}
	content := string(data)
	if p.Line != nil {
		content = sliceLines(content, *p.Line, p.Limit)
	}
	return readTextFileResult{Content: content}, nil
}

func (s *session) handleWriteTextFile(ctx context.Context, raw json.RawMessage) (any, error) {
	var p writeTextFileParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	if !s.policy.allowed(p.Path) {
		s.raiseBlockedPath(p.Path)
		return nil, agentbridge.ErrPathPolicyViolation
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(p.Path, []byte(p.Content), 0o644); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func (s *session) handleTerminalCreate(ctx context.Context, raw json.RawMessage) (any, error) {
	var p terminalCreateParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	cwd := p.Cwd
	if cwd == "" {
		cwd = s.spec.CWD
	}
	if !s.policy.allowed(cwd) {
		s.raiseBlockedPath(cwd)
		return nil, agentbridge.ErrPathPolicyViolation
	}
	var env []string
	if len(p.Env) > 0 {
		env = os.Environ()
		for _, e := range p.Env {
			env = append(env, e.Name+"="+e.Value)
		}
	}
	id, err := s.terminals.create(p.Command, p.Args, cwd, env)
	if err != nil {
		return nil, err
	}
	return terminalCreateResult{TerminalID: id}, nil
}

func (s *session) handleTerminalOutput(ctx context.Context, raw json.RawMessage) (any, error) {
	var p terminalIDParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	ts, ok := s.terminals.get(p.TerminalID)
	if !ok {
		return nil, fmt.Errorf("acp: unknown terminal %q", p.TerminalID)
	}
	output, truncated, status := ts.output()
	return terminalOutputResult{Output: output, Truncated: truncated, ExitStatus: status}, nil
}

func (s *session) handleTerminalWait(ctx context.Context, raw json.RawMessage) (any, error) {
	var p terminalIDParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	ts, ok := s.terminals.get(p.TerminalID)
	if !ok {
		return nil, fmt.Errorf("acp: unknown terminal %q", p.TerminalID)
	}
	status, err := ts.waitForExit(ctx)
	if err != nil {
		return nil, err
	}
	return terminalWaitResult{ExitStatus: status}, nil
}

func (s *session) handleTerminalKill(ctx context.Context, raw json.RawMessage) (any, error) {
	var p terminalIDParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	ts, ok := s.terminals.get(p.TerminalID)
	if !ok {
		return struct{}{}, nil
	}
	_ = ts.kill()
	return struct{}{}, nil
}

func (s *session) handleTerminalRelease(ctx context.Context, raw json.RawMessage) (any, error) {
	var p terminalIDParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	s.terminals.release(p.TerminalID)
	return struct{}{}, nil
}

func (s *session) raiseBlockedPath(path string) {
	req := agentbridge.PermissionRequest{
		RequestID: fmt.Sprintf("pathpolicy-%s", path),
		SessionID: s.spec.ID,
		ToolName:  "fs",
		Backend:   agentbridge.BackendACP,
		State:     agentbridge.PermissionDenied,
		ACP:       &agentbridge.ACPExtras{BlockedPath: path},
	}
	s.pushPermission(req)
}

func sliceLines(content string, line int, limit *int) string {
	lines := strings.Split(content, "\n")
	if line < 1 {
		line = 1
	}
	start := line - 1
	if start >= len(lines) {
		return ""
	}
	end := len(lines)
	if limit != nil && start+*limit < end {
		end = start + *limit
	}
	return strings.Join(lines[start:end], "\n")
}

// handleRequestPermission implements session/request_permission: it
// correlates the wire id to a PermissionRequest (preserving the agent's
// verbatim options array per spec §4.4.3's acp.permissionOptions
// extension) and blocks until RespondPermission resolves it.
func (s *session) handleRequestPermission(ctx context.Context, raw json.RawMessage) (any, error) {
	var p requestPermissionParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return cancelledPermission(), nil
	}

	optionsRaw, _ := json.Marshal(p.Options)
	requestID := p.ToolCall.ToolCallID
	if requestID == "" {
		requestID = fmt.Sprintf("acp-%d", s.seq.Add(1))
	}

	req := agentbridge.PermissionRequest{
		RequestID: requestID,
		SessionID: s.spec.ID,
		ToolName:  toolCallName(p.ToolCall),
		Input:     p.ToolCall.RawInput,
		ToolUseID: p.ToolCall.ToolCallID,
		Backend:   agentbridge.BackendACP,
		State:     agentbridge.PermissionPending,
		ACP:       &agentbridge.ACPExtras{Options: optionsRaw},
	}

	ch := s.dispatcher.Register(requestID)
	s.pushPermission(req)

	select {
	case resp := <-ch:
		return acpDecisionResult(resp, p.Options), nil
	case <-s.done:
		return cancelledPermission(), nil
	}
}

func cancelledPermission() requestPermissionResult {
	return requestPermissionResult{Outcome: requestPermissionOutcome{Outcome: "cancelled"}}
}

func toolCallName(t toolCallUpdate) string {
	if t.Title != "" {
		return t.Title
	}
	return t.Kind
}
