//go:build !windows

// Package sigpolicy isolates the one piece of platform-specific signal
// policy the supervisor needs: whether writes to a child's closed stdin
// pipe should be allowed to surface as an ordinary error (SIGPIPE
// ignored) rather than risk taking down the whole process. Kept as its
// own package so platform build tags never leak into internal/supervisor
// proper.
package sigpolicy

import (
	"os/signal"
	"syscall"
)

// IgnoreSIGPIPE installs a process-wide ignore handler for SIGPIPE. Safe
// to call more than once; idempotent.
func IgnoreSIGPIPE() {
	signal.Ignore(syscall.SIGPIPE)
}

// Restore reinstates default SIGPIPE handling, undoing IgnoreSIGPIPE.
// Exposed for tests; not used in normal operation.
func Restore() {
	signal.Reset(syscall.SIGPIPE)
}
