// Package agentbridge drives long-running AI coding-agent subprocesses —
// Claude Code, Codex, and ACP-speaking agents — over line-delimited JSON on
// stdio, and projects their three distinct wire protocols onto one uniform
// event/command model.
//
// The package does not implement any agent model itself, does not
// negotiate vendor authentication, and does not render or transform
// content for display — it is a transport and protocol layer. Three
// sibling packages (backend/claude, backend/codex, backend/acp) implement
// the Engine interface defined here; callers pick one, Start a session,
// and drive it through the returned EventTransport.
//
// # Quick start
//
//	eng := claude.New()
//	transport, err := agentbridge.Start(ctx, eng, agentbridge.SessionSpec{
//		ID:  "local-1",
//		CWD: "/workspace/repo",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer transport.Dispose(ctx)
//
//	go func() {
//		for ev := range transport.Events() {
//			fmt.Printf("%s: %+v\n", ev.Type, ev)
//		}
//	}()
//	transport.Send(agentbridge.Command{Type: agentbridge.CommandSendMessage, Text: "hi"})
package agentbridge
