package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sessiond/agentbridge"
	"github.com/sessiond/agentbridge/backend/acp"
	"github.com/sessiond/agentbridge/backend/claude"
	"github.com/sessiond/agentbridge/backend/codex"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runFlags struct {
	backend    string
	prompt     string
	cwd        string
	model      string
	mode       string
	effort     string
	resumeID   string
	binary     string
	timeout    time.Duration
	autoAllow  string
	verbose    bool
}

func newRunCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start one session, send one prompt, stream events as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, f)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.backend, "backend", "claude", "backend to use: claude, codex, or acp")
	flags.StringVar(&f.prompt, "prompt", "", "initial prompt to send (required)")
	flags.StringVar(&f.cwd, "cwd", "", "working directory for the agent process (defaults to a temp dir)")
	flags.StringVar(&f.model, "model", "", "model override")
	flags.StringVar(&f.mode, "mode", "", "plan or act")
	flags.StringVar(&f.effort, "effort", "", "reasoning effort: low, medium, high, max")
	flags.StringVar(&f.resumeID, "resume", "", "resume a previously resolved session id")
	flags.StringVar(&f.binary, "binary", "", "override the backend's executable path")
	flags.DurationVar(&f.timeout, "timeout", 2*time.Minute, "overall session timeout")
	flags.StringVar(&f.autoAllow, "auto-allow", "allow_once", "decision auto-sent for every permission request: allow_once, allow_always, deny, cancel_turn, or manual")
	flags.BoolVar(&f.verbose, "verbose", false, "enable internal diagnostics logging to stderr")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

func runSession(cmd *cobra.Command, f *runFlags) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), f.timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := zap.NewNop()
	if f.verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		logger = l
	}

	engine, err := buildEngine(f, logger)
	if err != nil {
		return err
	}
	if err := engine.Validate(); err != nil {
		return fmt.Errorf("backend unavailable: %w", err)
	}

	cwd := f.cwd
	if cwd == "" {
		dir, err := os.MkdirTemp("", "agentbridgectl-*")
		if err != nil {
			return fmt.Errorf("create temp dir: %w", err)
		}
		defer os.RemoveAll(dir)
		cwd = dir
	}

	spec := agentbridge.SessionSpec{
		ID:            fmt.Sprintf("agentbridgectl-%d", time.Now().UnixNano()),
		CWD:           cwd,
		Model:         f.model,
		InitialPrompt: f.prompt,
		Options:       map[string]string{},
	}
	if f.mode != "" {
		spec.Options[agentbridge.OptionMode] = f.mode
	}
	if f.effort != "" {
		spec.Options[agentbridge.OptionEffort] = f.effort
	}
	if f.resumeID != "" {
		spec.Options[agentbridge.OptionResumeID] = f.resumeID
	}

	transport, err := agentbridge.Start(ctx, engine, spec)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer transport.Dispose(context.Background())

	enc := json.NewEncoder(cmd.OutOrStdout())

	decision := agentbridge.Decision(f.autoAllow)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case status, ok := <-transport.Status():
			if ok && status == agentbridge.StatusDisconnected {
				return nil
			}
		case ev, ok := <-transport.Events():
			if !ok {
				return nil
			}
			_ = enc.Encode(ev)
			if ev.Type == agentbridge.EventTurnResult {
				return nil
			}
		case req, ok := <-transport.PermissionRequests():
			if !ok {
				continue
			}
			_ = enc.Encode(req)
			if f.autoAllow == "manual" {
				continue
			}
			cmdErr := transport.Send(ctx, agentbridge.Command{
				Type:       agentbridge.CommandPermissionResponse,
				Permission: agentbridge.Respond{RequestID: req.RequestID, Decision: decision},
			})
			if cmdErr != nil {
				logger.Warn("auto-respond to permission request failed", zap.Error(cmdErr))
			}
		}
	}
}

func buildEngine(f *runFlags, logger *zap.Logger) (agentbridge.Engine, error) {
	switch f.backend {
	case "claude":
		opts := []claude.Option{claude.WithLogger(logger)}
		if f.binary != "" {
			opts = append(opts, claude.WithBinary(f.binary))
		}
		return claude.New(opts...), nil
	case "codex":
		opts := []codex.Option{codex.WithLogger(logger)}
		if f.binary != "" {
			opts = append(opts, codex.WithBinary(f.binary))
		}
		return codex.New(opts...), nil
	case "acp":
		opts := []acp.Option{acp.WithLogger(logger)}
		if f.binary != "" {
			opts = append(opts, acp.WithBinary(f.binary))
		}
		return acp.New(opts...), nil
	default:
		return nil, fmt.Errorf("unknown backend %q: want claude, codex, or acp", f.backend)
	}
}
