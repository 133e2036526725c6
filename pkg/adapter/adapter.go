// Package adapter defines the uniform execution contract for
// heterogeneous work units and the registry/factory that resolves them.
//
// An adapter is either deterministic (linters, test runners, git
// operations) or AI-backed (LLM editors and analysts). The router picks
// between them per step; the executor invokes exactly one per step.
package adapter

import (
	"context"
	"time"

	"github.com/tombee/dispatch/pkg/workflow"
)

// Kind classifies an adapter. An adapter resolves to exactly one kind
// for its lifetime.
type Kind string

const (
	// KindDeterministic marks tool-backed adapters with repeatable output.
	KindDeterministic Kind = "deterministic"
	// KindAI marks LLM-backed adapters with token cost.
	KindAI Kind = "ai"
)

// Adapter is the uniform contract every work unit implements.
//
// Execute must not panic past its boundary: internal failures are
// reported as a Result with Success=false and a populated Error. The
// step executor additionally traps panics and returned errors, so a
// misbehaving adapter degrades to a failed step, never a failed run.
type Adapter interface {
	// Name returns the adapter key (e.g., "code_fixers").
	Name() string

	// Kind returns the adapter kind, fixed for the adapter's lifetime.
	Kind() Kind

	// Description returns a human-readable summary of the adapter.
	Description() string

	// Profile returns the adapter's performance profile.
	Profile() Profile

	// Execute performs the step's work. The step definition is
	// immutable; the workflow context carries prior step results; files
	// optionally narrows the file glob the step operates on.
	Execute(ctx context.Context, step *workflow.Step, wc *workflow.Context, files string) (*Result, error)

	// ValidateStep checks required parameters in step.With before
	// execution. A nil return means the step is structurally valid.
	ValidateStep(step *workflow.Step) error

	// EstimateCost returns a conservative upper-bound token estimate for
	// the step. Deterministic adapters return zero.
	EstimateCost(step *workflow.Step) int

	// IsAvailable reports whether the adapter can run right now. It may
	// consult the environment (binaries, API keys) but must be fast and
	// side-effect-free.
	IsAvailable() bool
}

// Result is the outcome of one adapter invocation.
type Result struct {
	// Success reports whether the work completed
	Success bool `json:"success"`

	// TokensUsed is the token spend of the invocation (>= 0)
	TokensUsed int `json:"tokens_used"`

	// Artifacts lists paths the adapter produced
	Artifacts []string `json:"artifacts,omitempty"`

	// Output is the primary text output
	Output string `json:"output,omitempty"`

	// Error holds the failure diagnostic when Success is false
	Error string `json:"error,omitempty"`

	// Metadata carries free-form invocation details
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Failure builds a failed result with the given diagnostic.
func Failure(message string) *Result {
	return &Result{Success: false, Error: message}
}

// Profile describes an adapter's performance characteristics. The
// router uses it to decide when an adapter is a good fit for a step.
type Profile struct {
	// ComplexityThreshold is the score above which this adapter is a
	// poor fit (deterministic) or a good fit (AI)
	ComplexityThreshold float64 `json:"complexity_threshold"`

	// PreferredFileTypes lists file extensions the adapter handles best
	PreferredFileTypes []string `json:"preferred_file_types,omitempty"`

	// MaxFiles is the largest file count the adapter handles well
	MaxFiles int `json:"max_files,omitempty"`

	// MaxFileSizeBytes is the largest single file the adapter handles
	MaxFileSizeBytes int64 `json:"max_file_size_bytes,omitempty"`

	// AvgExecutionTime is the typical invocation duration
	AvgExecutionTime time.Duration `json:"avg_execution_time,omitempty"`

	// SuccessRate is the historical fraction of successful invocations
	SuccessRate float64 `json:"success_rate,omitempty"`

	// CostEfficiency scores output value per token (higher is better)
	CostEfficiency float64 `json:"cost_efficiency,omitempty"`

	// ParallelCapable reports whether concurrent invocations are safe
	ParallelCapable bool `json:"parallel_capable"`

	// RequiresNetwork reports whether the adapter needs network access
	RequiresNetwork bool `json:"requires_network"`

	// RequiresAPIKey reports whether the adapter needs an API credential
	RequiresAPIKey bool `json:"requires_api_key"`
}

// Descriptor is a lightweight view of a registry entry used when
// enumerating adapters without forcing construction.
type Descriptor struct {
	// Name is the adapter key
	Name string `json:"name"`

	// Kind is the adapter kind; lazy entries default to deterministic
	Kind Kind `json:"kind"`

	// Description summarizes the adapter, empty for unconstructed entries
	Description string `json:"description,omitempty"`

	// Available reports IsAvailable for constructed entries and true
	// for lazy ones so the router may still consider them
	Available bool `json:"available"`
}
