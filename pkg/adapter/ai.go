package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/tombee/dispatch/pkg/errors"
	"github.com/tombee/dispatch/pkg/workflow"
)

// CompletionFunc performs one LLM completion. The HTTP transport to the
// provider lives outside the core; tests and embedders inject their own.
type CompletionFunc func(ctx context.Context, prompt string) (output string, tokens int, err error)

// AI is an LLM-backed adapter. Without a completion function it reports
// itself unavailable, which routes steps to deterministic fallbacks.
type AI struct {
	name        string
	description string
	profile     Profile
	model       string
	complete    CompletionFunc
}

// AIOption configures an AI adapter.
type AIOption func(*AI)

// WithCompletion injects the completion function.
func WithCompletion(complete CompletionFunc) AIOption {
	return func(a *AI) { a.complete = complete }
}

// WithModel sets the model identifier recorded on results.
func WithModel(model string) AIOption {
	return func(a *AI) { a.model = model }
}

// NewAI creates an AI adapter.
func NewAI(name, description string, profile Profile, opts ...AIOption) *AI {
	a := &AI{
		name:        name,
		description: description,
		profile:     profile,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements Adapter.
func (a *AI) Name() string { return a.name }

// Kind implements Adapter.
func (a *AI) Kind() Kind { return KindAI }

// Description implements Adapter.
func (a *AI) Description() string { return a.description }

// Profile implements Adapter.
func (a *AI) Profile() Profile { return a.profile }

// Model returns the configured model identifier.
func (a *AI) Model() string { return a.model }

// IsAvailable implements Adapter. An AI adapter is available only when
// a completion function has been injected.
func (a *AI) IsAvailable() bool { return a.complete != nil }

// ValidateStep implements Adapter. AI steps must carry a prompt.
func (a *AI) ValidateStep(step *workflow.Step) error {
	if prompt, _ := step.With["prompt"].(string); prompt == "" {
		return &errors.ValidationError{
			Field:      "with.prompt",
			Message:    fmt.Sprintf("adapter %s requires a prompt", a.name),
			Suggestion: "add a prompt string to the step's with block",
		}
	}
	return nil
}

// EstimateCost implements Adapter. The estimate is a conservative upper
// bound: a base allowance plus the prompt word count scaled for
// tokenization overhead plus twice any declared completion budget.
func (a *AI) EstimateCost(step *workflow.Step) int {
	estimate := 500

	if prompt, _ := step.With["prompt"].(string); prompt != "" {
		words := len(strings.Fields(prompt))
		estimate += int(float64(words) * 1.3)
	}
	if maxTokens, ok := asInt(step.With["max_tokens"]); ok {
		estimate += maxTokens * 2
	}
	return estimate
}

// Execute implements Adapter.
func (a *AI) Execute(ctx context.Context, step *workflow.Step, wc *workflow.Context, files string) (*Result, error) {
	if a.complete == nil {
		return Failure(fmt.Sprintf("adapter %s has no completion function configured", a.name)), nil
	}

	prompt, _ := step.With["prompt"].(string)
	if files != "" {
		prompt = fmt.Sprintf("%s\n\nFiles in scope: %s", prompt, files)
	}

	output, tokens, err := a.complete(ctx, prompt)
	if err != nil {
		return Failure(err.Error()), nil
	}
	if tokens < 0 {
		tokens = 0
	}

	return &Result{
		Success:    true,
		TokensUsed: tokens,
		Output:     output,
		Metadata:   map[string]interface{}{"model": a.model},
	}, nil
}

// asInt coerces YAML/JSON numeric decodings to int.
func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
