// Package filter provides composable channel middleware for filtering
// normalized agentbridge event streams. Consumers wrap Session.Events()
// with these functions to select the event granularity they need.
package filter

import (
	"context"
	"strings"

	"github.com/sessiond/agentbridge"
)

// ByType returns a channel that only passes events of the given types.
// Spawns a goroutine that exits when ctx is cancelled or ch is closed.
// The returned channel is closed when the goroutine exits.
func ByType(ctx context.Context, ch <-chan agentbridge.Event, types ...agentbridge.EventType) <-chan agentbridge.Event {
	allowed := make(map[agentbridge.EventType]struct{}, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
	}
	return pipe(ctx, ch, func(ev agentbridge.Event) bool {
		_, ok := allowed[ev.Type]
		return ok
	})
}

// Completed returns a channel that drops streaming deltas, passing only
// complete events.
func Completed(ctx context.Context, ch <-chan agentbridge.Event) <-chan agentbridge.Event {
	return pipe(ctx, ch, func(ev agentbridge.Event) bool {
		return !IsDelta(ev)
	})
}

// TurnResultsOnly returns a channel that passes only EventTurnResult.
func TurnResultsOnly(ctx context.Context, ch <-chan agentbridge.Event) <-chan agentbridge.Event {
	return pipe(ctx, ch, func(ev agentbridge.Event) bool {
		return ev.Type == agentbridge.EventTurnResult
	})
}

// IsDelta reports whether ev is a streaming delta (partial) event: only
// EventStreamDelta carries the DeltaKind discriminator.
func IsDelta(ev agentbridge.Event) bool {
	return ev.Type == agentbridge.EventStreamDelta
}

// logRank maps a log level to its rank for LogsAtLeast, ordering
// debug < info < warning < error; unknown levels rank with debug.
func logRank(level string) int {
	switch strings.ToLower(level) {
	case "error":
		return 3
	case "warning", "warn":
		return 2
	case "info":
		return 1
	default:
		return 0
	}
}

// LogsAtLeast returns a channel that passes only EventLog entries whose
// LogLevel is at or above minLevel, dropping all other event types.
func LogsAtLeast(ctx context.Context, ch <-chan agentbridge.Event, minLevel string) <-chan agentbridge.Event {
	threshold := logRank(minLevel)
	return pipe(ctx, ch, func(ev agentbridge.Event) bool {
		return ev.Type == agentbridge.EventLog && logRank(ev.LogLevel) >= threshold
	})
}

// pipe spawns a goroutine that reads from ch, passes events matching the
// predicate to the returned channel, and closes it when ch closes or ctx
// is cancelled. Callers must either drain the returned channel or cancel
// ctx to avoid goroutine leaks. Events accepted by the predicate may be
// silently dropped if ctx is cancelled mid-send.
func pipe(ctx context.Context, ch <-chan agentbridge.Event, accept func(agentbridge.Event) bool) <-chan agentbridge.Event {
	out := make(chan agentbridge.Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if accept(ev) && !trySend(ctx, out, ev) {
					return
				}
			}
		}
	}()
	return out
}

// trySend sends ev on out, returning true on success. Returns false if
// ctx is cancelled before the send completes.
func trySend(ctx context.Context, out chan<- agentbridge.Event, ev agentbridge.Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
