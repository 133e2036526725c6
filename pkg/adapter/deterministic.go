package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tombee/dispatch/pkg/errors"
	"github.com/tombee/dispatch/pkg/workflow"
)

// ToolRunner performs the actual tool invocation for a deterministic
// adapter. Adapter internals (linters, pytest, git) live behind this
// hook; the default runner produces structured artifacts so the engine
// is fully exercisable without the real tools.
type ToolRunner func(ctx context.Context, step *workflow.Step, wc *workflow.Context, files string) (*Result, error)

// Deterministic is a tool-backed adapter with zero token cost.
type Deterministic struct {
	name         string
	description  string
	profile      Profile
	requiredWith []string
	artifactRoot string
	run          ToolRunner
	available    func() bool
}

// DeterministicOption configures a Deterministic adapter.
type DeterministicOption func(*Deterministic)

// WithRunner replaces the default tool runner.
func WithRunner(run ToolRunner) DeterministicOption {
	return func(d *Deterministic) { d.run = run }
}

// WithRequiredParams declares `with` keys that must be present.
func WithRequiredParams(keys ...string) DeterministicOption {
	return func(d *Deterministic) { d.requiredWith = keys }
}

// WithArtifactRoot sets the directory declared emits are written under.
func WithArtifactRoot(dir string) DeterministicOption {
	return func(d *Deterministic) { d.artifactRoot = dir }
}

// WithAvailability replaces the availability probe.
func WithAvailability(probe func() bool) DeterministicOption {
	return func(d *Deterministic) { d.available = probe }
}

// NewDeterministic creates a deterministic adapter.
func NewDeterministic(name, description string, profile Profile, opts ...DeterministicOption) *Deterministic {
	d := &Deterministic{
		name:        name,
		description: description,
		profile:     profile,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name implements Adapter.
func (d *Deterministic) Name() string { return d.name }

// Kind implements Adapter.
func (d *Deterministic) Kind() Kind { return KindDeterministic }

// Description implements Adapter.
func (d *Deterministic) Description() string { return d.description }

// Profile implements Adapter.
func (d *Deterministic) Profile() Profile { return d.profile }

// EstimateCost implements Adapter. Deterministic work costs no tokens.
func (d *Deterministic) EstimateCost(step *workflow.Step) int { return 0 }

// IsAvailable implements Adapter.
func (d *Deterministic) IsAvailable() bool {
	if d.available != nil {
		return d.available()
	}
	return true
}

// ValidateStep implements Adapter. It checks the declared required
// `with` parameters are present.
func (d *Deterministic) ValidateStep(step *workflow.Step) error {
	for _, key := range d.requiredWith {
		if _, ok := step.With[key]; !ok {
			return &errors.ValidationError{
				Field:      fmt.Sprintf("with.%s", key),
				Message:    fmt.Sprintf("adapter %s requires parameter %q", d.name, key),
				Suggestion: fmt.Sprintf("add %s to the step's with block", key),
			}
		}
	}
	return nil
}

// Execute implements Adapter. With a custom runner it delegates; the
// default writes each declared emit as a structured JSON artifact and
// reports success.
func (d *Deterministic) Execute(ctx context.Context, step *workflow.Step, wc *workflow.Context, files string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return Failure(err.Error()), nil
	}
	if d.run != nil {
		return d.run(ctx, step, wc, files)
	}

	artifacts := make([]string, 0, len(step.Emits))
	for _, emit := range step.Emits {
		path := emit
		if d.artifactRoot != "" && !filepath.IsAbs(emit) {
			path = filepath.Join(d.artifactRoot, emit)
		}
		if err := writeArtifact(path, d.name); err != nil {
			return Failure(fmt.Sprintf("writing artifact %s: %v", path, err)), nil
		}
		artifacts = append(artifacts, path)
	}

	return &Result{
		Success:   true,
		Output:    fmt.Sprintf("%s completed for %s", d.name, step.ID),
		Artifacts: artifacts,
		Metadata:  map[string]interface{}{"files": files},
	}, nil
}

// writeArtifact writes the minimal adapter result artifact: a JSON
// object with timestamp and type keys.
func writeArtifact(path, adapterName string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	payload := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"type":      adapterName,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
