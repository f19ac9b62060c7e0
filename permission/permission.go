// Package permission implements the Permission Dispatcher (spec §4.6,
// component C6): one correlation table and one decision-mapping function
// shared by all three backend adapters, so the allow/deny vocabulary
// translation lives in exactly one place rather than once per adapter.
package permission

import (
	"sync"

	"github.com/sessiond/agentbridge"
)

// Dispatcher correlates outstanding PermissionRequests with their
// eventual Respond. Each backend adapter owns one Dispatcher.
type Dispatcher struct {
	mu      sync.Mutex
	pending map[string]chan agentbridge.Respond
}

// New creates an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{pending: make(map[string]chan agentbridge.Respond)}
}

// Register opens a slot for requestID and returns the channel that will
// receive exactly one Respond. Registering the same requestID twice
// replaces the previous slot — callers must choose their own ids
// carefully (Codex/ACP reuse the wire id; Claude mints a uuid).
func (d *Dispatcher) Register(requestID string) <-chan agentbridge.Respond {
	ch := make(chan agentbridge.Respond, 1)
	d.mu.Lock()
	d.pending[requestID] = ch
	d.mu.Unlock()
	return ch
}

// Resolve delivers resp to the pending slot for resp.RequestID. Returns
// false if no such slot exists (unknown id, already resolved, or
// cancelled) — later or duplicate responses for a RequestID are no-ops
// per spec §4.4.4.
func (d *Dispatcher) Resolve(resp agentbridge.Respond) bool {
	d.mu.Lock()
	ch, ok := d.pending[resp.RequestID]
	if ok {
		delete(d.pending, resp.RequestID)
	}
	d.mu.Unlock()
	if !ok {
		return false
	}
	ch <- resp
	close(ch)
	return true
}

// CancelAll resolves every outstanding request as DecisionCancelTurn,
// the outcome a consumer future should see when the session terminates
// while a permission prompt is still open.
func (d *Dispatcher) CancelAll() {
	d.mu.Lock()
	pending := d.pending
	d.pending = make(map[string]chan agentbridge.Respond)
	d.mu.Unlock()

	for id, ch := range pending {
		ch <- agentbridge.Respond{RequestID: id, Decision: agentbridge.DecisionCancelTurn}
		close(ch)
	}
}

// Pending reports the number of outstanding requests. Intended for tests
// and diagnostics.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// ClaudeBehavior is the two-valued Claude permission-prompt-tool
// callback.response vocabulary.
type ClaudeBehavior string

const (
	ClaudeAllow ClaudeBehavior = "allow"
	ClaudeDeny  ClaudeBehavior = "deny"
)

// ToClaude maps a unified Decision onto Claude's allow/deny vocabulary.
// allow_for_session and allow_always both collapse to allow — Claude's
// callback.response has no persistent-allow concept of its own.
// cancel_turn also collapses to deny: Claude has no tri-state "abort
// turn entirely" reply to a single tool callback.
func ToClaude(d agentbridge.Decision) ClaudeBehavior {
	switch d {
	case agentbridge.DecisionAllowOnce, agentbridge.DecisionAllowForSession, agentbridge.DecisionAllowAlways:
		return ClaudeAllow
	default:
		return ClaudeDeny
	}
}

// CodexDecision is the five-valued Codex approval-response vocabulary.
type CodexDecision string

const (
	CodexAccept                       CodexDecision = "accept"
	CodexAcceptForSession             CodexDecision = "acceptForSession"
	CodexAcceptWithExecpolicyAmendment CodexDecision = "acceptWithExecpolicyAmendment"
	CodexDecline                      CodexDecision = "decline"
	CodexCancel                       CodexDecision = "cancel"
)

// ToCodex maps a unified Decision onto Codex's five-valued vocabulary.
// DecisionAllowAlways maps to acceptWithExecpolicyAmendment only when the
// originating request actually carried a ProposedExecpolicyAmendment
// (spec §4.6); otherwise the backend hasn't indicated persistent-allow is
// available, so it downgrades all the way to accept (Invariant 1), not
// the session-scoped acceptForSession.
func ToCodex(d agentbridge.Decision, hasAmendment bool) CodexDecision {
	switch d {
	case agentbridge.DecisionAllowOnce:
		return CodexAccept
	case agentbridge.DecisionAllowForSession:
		return CodexAcceptForSession
	case agentbridge.DecisionAllowAlways:
		if hasAmendment {
			return CodexAcceptWithExecpolicyAmendment
		}
		return CodexAccept
	case agentbridge.DecisionCancelTurn:
		return CodexCancel
	default:
		return CodexDecline
	}
}

// ACPOptionKind is the four-valued ACP permission-option kind
// vocabulary, used to pick among the agent-supplied options array.
type ACPOptionKind string

const (
	ACPAllowOnce    ACPOptionKind = "allow_once"
	ACPAllowAlways  ACPOptionKind = "allow_always"
	ACPRejectOnce   ACPOptionKind = "reject_once"
	ACPRejectAlways ACPOptionKind = "reject_always"
)

// ToACPOptionKind maps a unified Decision onto the ACP option kind to
// search for in the agent's offered options array. allow_for_session
// shares allow_always's persistent-grant option kind (spec §4.6's table
// gives both the same outcome) rather than downgrading on its own;
// ACPFallbackKinds is what applies Invariant 1's downgrade when the
// agent didn't actually offer that option. cancel_turn has no
// representable option kind; callers should instead send session/cancel
// and never emit a session/request_permission reply.
func ToACPOptionKind(d agentbridge.Decision) ACPOptionKind {
	switch d {
	case agentbridge.DecisionAllowOnce:
		return ACPAllowOnce
	case agentbridge.DecisionAllowForSession, agentbridge.DecisionAllowAlways:
		return ACPAllowAlways
	default:
		return ACPRejectOnce
	}
}

// ACPFallbackKinds returns the option kinds to search for, in preference
// order, for a decision. allow_for_session and allow_always both prefer
// the persistent-grant option but downgrade to allow_once when the agent
// didn't offer one (spec §4.6 Invariant 1); every other decision has
// exactly one kind, so the caller's search loop degrades to a single
// lookup and falls back to cancelling the request when even that kind
// wasn't offered.
func ACPFallbackKinds(d agentbridge.Decision) []ACPOptionKind {
	switch d {
	case agentbridge.DecisionAllowForSession, agentbridge.DecisionAllowAlways:
		return []ACPOptionKind{ACPAllowAlways, ACPAllowOnce}
	default:
		return []ACPOptionKind{ToACPOptionKind(d)}
	}
}
