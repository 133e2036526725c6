package adapter

import "time"

// Built-in adapter keys. The router's mapping table and fallback chains
// reference these names.
const (
	KeyCodeFixers        = "code_fixers"
	KeyVSCodeDiagnostics = "vscode_diagnostics"
	KeyPytestRunner      = "pytest_runner"
	KeyGitOps            = "git_ops"
	KeyAIEditor          = "ai_editor"
	KeyAIAnalyst         = "ai_analyst"
)

// BuiltinConfig configures the built-in adapter set.
type BuiltinConfig struct {
	// ArtifactRoot is where deterministic adapters write declared emits
	ArtifactRoot string

	// Completion backs the AI adapters; nil leaves them unavailable
	Completion CompletionFunc

	// Model is recorded on AI results for cost attribution
	Model string
}

// DefaultFactory returns a factory pre-loaded with constructors for the
// built-in adapters. Construction stays lazy: enumerating the registry
// does not build anything.
func DefaultFactory(cfg BuiltinConfig) *Factory {
	f := NewFactory()

	f.WithConstructor(KeyCodeFixers, func() (Adapter, error) {
		return NewDeterministic(KeyCodeFixers,
			"Applies deterministic lint and format fixes",
			Profile{
				ComplexityThreshold: 0.4,
				PreferredFileTypes:  []string{".py", ".go", ".js", ".ts"},
				MaxFiles:            50,
				MaxFileSizeBytes:    1 << 20,
				AvgExecutionTime:    5 * time.Second,
				SuccessRate:         0.95,
				CostEfficiency:      1.0,
				ParallelCapable:     true,
			},
			WithArtifactRoot(cfg.ArtifactRoot),
		), nil
	})

	f.WithConstructor(KeyVSCodeDiagnostics, func() (Adapter, error) {
		return NewDeterministic(KeyVSCodeDiagnostics,
			"Collects language-server diagnostics",
			Profile{
				ComplexityThreshold: 0.4,
				MaxFiles:            100,
				AvgExecutionTime:    3 * time.Second,
				SuccessRate:         0.97,
				CostEfficiency:      1.0,
				ParallelCapable:     true,
			},
			WithArtifactRoot(cfg.ArtifactRoot),
		), nil
	})

	f.WithConstructor(KeyPytestRunner, func() (Adapter, error) {
		return NewDeterministic(KeyPytestRunner,
			"Runs the test suite and reports results",
			Profile{
				ComplexityThreshold: 0.5,
				PreferredFileTypes:  []string{".py"},
				MaxFiles:            200,
				AvgExecutionTime:    30 * time.Second,
				SuccessRate:         0.9,
				CostEfficiency:      1.0,
				ParallelCapable:     false,
			},
			WithArtifactRoot(cfg.ArtifactRoot),
		), nil
	})

	f.WithConstructor(KeyGitOps, func() (Adapter, error) {
		return NewDeterministic(KeyGitOps,
			"Performs git operations (status, diff, commit)",
			Profile{
				ComplexityThreshold: 0.3,
				AvgExecutionTime:    2 * time.Second,
				SuccessRate:         0.98,
				CostEfficiency:      1.0,
				ParallelCapable:     false,
			},
			WithArtifactRoot(cfg.ArtifactRoot),
			WithRequiredParams("operation"),
		), nil
	})

	f.WithConstructor(KeyAIEditor, func() (Adapter, error) {
		return NewAI(KeyAIEditor,
			"LLM-backed code editor for complex edits and refactors",
			Profile{
				ComplexityThreshold: 0.7,
				MaxFiles:            20,
				AvgExecutionTime:    60 * time.Second,
				SuccessRate:         0.85,
				CostEfficiency:      0.6,
				ParallelCapable:     true,
				RequiresNetwork:     true,
				RequiresAPIKey:      true,
			},
			WithCompletion(cfg.Completion),
			WithModel(cfg.Model),
		), nil
	})

	f.WithConstructor(KeyAIAnalyst, func() (Adapter, error) {
		return NewAI(KeyAIAnalyst,
			"LLM-backed analyst for diagnostics and reviews",
			Profile{
				ComplexityThreshold: 0.6,
				MaxFiles:            50,
				AvgExecutionTime:    45 * time.Second,
				SuccessRate:         0.88,
				CostEfficiency:      0.7,
				ParallelCapable:     true,
				RequiresNetwork:     true,
				RequiresAPIKey:      true,
			},
			WithCompletion(cfg.Completion),
			WithModel(cfg.Model),
		), nil
	})

	return f
}
