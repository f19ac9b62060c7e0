package agentbridge

// Option configures a SessionSpec before Start. Functional options match
// the teacher's idiom throughout the pack (engine/cli/options.go,
// engine/acp/options.go) rather than a builder struct.
type Option func(*SessionSpec)

// WithModel overrides the session's initial model.
func WithModel(model string) Option {
	return func(s *SessionSpec) { s.Model = model }
}

// WithInitialPrompt sets the prompt sent immediately after the session
// finishes initializing.
func WithInitialPrompt(prompt string) Option {
	return func(s *SessionSpec) { s.InitialPrompt = prompt }
}

// WithOption sets a single cross-cutting or backend-namespaced option.
func WithOption(key, value string) Option {
	return func(s *SessionSpec) {
		if s.Options == nil {
			s.Options = make(map[string]string, 1)
		}
		s.Options[key] = value
	}
}

// WithEnv sets a single environment variable merged over the inherited
// process environment.
func WithEnv(key, value string) Option {
	return func(s *SessionSpec) {
		if s.Env == nil {
			s.Env = make(map[string]string, 1)
		}
		s.Env[key] = value
	}
}

// resolveOptions applies opts over a base spec and returns the resolved
// (cloned) SessionSpec, so callers never alias their own maps with the
// one the engine spawns from.
func resolveOptions(base SessionSpec, opts ...Option) SessionSpec {
	resolved := base.Clone()
	for _, opt := range opts {
		opt(&resolved)
	}
	return resolved
}
