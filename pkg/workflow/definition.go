// Package workflow provides the declarative workflow document model.
//
// A workflow is a YAML document with a name, optional inputs, a routing
// policy, and an ordered list of steps. Each step names an actor (an
// adapter key) and carries adapter-specific parameters in `with`. The
// document is immutable during execution; the coordinator owns the
// mutable run context.
package workflow

import (
	"fmt"
	"os"

	"github.com/tombee/dispatch/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Definition represents a YAML-based workflow definition.
// It is loaded once per invocation and treated as read-only afterwards.
type Definition struct {
	// Name is the workflow identifier
	Name string `yaml:"name" json:"name"`

	// Description provides human-readable context about the workflow
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Inputs maps input names to values (scalars or lists)
	Inputs map[string]interface{} `yaml:"inputs,omitempty" json:"inputs,omitempty"`

	// Policy influences routing and failure handling
	Policy *Policy `yaml:"policy,omitempty" json:"policy,omitempty"`

	// Steps are the executable units of the workflow, run in declared order
	Steps []Step `yaml:"steps" json:"steps"`

	// Phases optionally group steps for coordinated multi-workflow runs.
	// When present, budget allocation weighs phases and their roles.
	Phases []Phase `yaml:"phases,omitempty" json:"phases,omitempty"`

	// Metadata carries coordination hints (priority, file scope)
	Metadata *Metadata `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Step represents a single step in a workflow.
type Step struct {
	// ID is the unique step identifier within this workflow
	ID string `yaml:"id" json:"id"`

	// Name is a human-readable step name
	Name string `yaml:"name" json:"name"`

	// Actor is the adapter key this step routes to (e.g., "code_fixers")
	Actor string `yaml:"actor" json:"actor"`

	// With holds adapter-specific parameters
	With map[string]interface{} `yaml:"with,omitempty" json:"with,omitempty"`

	// Files is a glob or list of globs naming the files this step touches
	Files FileList `yaml:"files,omitempty" json:"files,omitempty"`

	// Emits lists artifact paths the adapter is expected to produce.
	// The orchestrator does not guarantee they exist; gates verify that.
	Emits []string `yaml:"emits,omitempty" json:"emits,omitempty"`

	// ScopeMode controls file claim semantics (exclusive or shared).
	// Defaults to exclusive.
	ScopeMode ScopeMode `yaml:"scope_mode,omitempty" json:"scope_mode,omitempty"`

	// Retry configures retry behavior for this step
	Retry *RetryDefinition `yaml:"retry,omitempty" json:"retry,omitempty"`

	// When is a condition expression; a false result skips the step
	When string `yaml:"when,omitempty" json:"when,omitempty"`

	// Timeouts holds per-step timing limits
	Timeouts *Timeouts `yaml:"timeouts,omitempty" json:"timeouts,omitempty"`
}

// Phase groups steps under a role for coordinated execution.
type Phase struct {
	// ID is the unique phase identifier within this workflow
	ID string `yaml:"id" json:"id"`

	// Role tags the phase for budget-aware routing (e.g., "ipt")
	Role string `yaml:"role,omitempty" json:"role,omitempty"`

	// Steps are the executable units of this phase
	Steps []Step `yaml:"steps" json:"steps"`
}

// ScopeMode controls how a step's file claim interacts with others.
type ScopeMode string

const (
	// ScopeExclusive conflicts with any overlapping claim.
	ScopeExclusive ScopeMode = "exclusive"
	// ScopeShared conflicts only with overlapping exclusive claims.
	ScopeShared ScopeMode = "shared"
)

// EffectiveScopeMode returns the scope mode, defaulting to exclusive.
func (s *Step) EffectiveScopeMode() ScopeMode {
	if s.ScopeMode == ScopeShared {
		return ScopeShared
	}
	return ScopeExclusive
}

// TimeoutSeconds returns the per-step timeout in seconds, zero when unset.
func (s *Step) TimeoutSeconds() int {
	if s.Timeouts == nil {
		return 0
	}
	return s.Timeouts.PerStepSeconds
}

// Timeouts holds per-step timing limits.
type Timeouts struct {
	// PerStepSeconds is the maximum execution time for the step in seconds
	PerStepSeconds int `yaml:"per_step_seconds" json:"per_step_seconds"`
}

// RetryDefinition configures retry behavior for a step.
type RetryDefinition struct {
	// MaxAttempts is the maximum number of execution attempts
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`

	// BackoffBase is the base duration for exponential backoff (in seconds)
	BackoffBase int `yaml:"backoff_base,omitempty" json:"backoff_base,omitempty"`

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64 `yaml:"backoff_multiplier,omitempty" json:"backoff_multiplier,omitempty"`
}

// Default retry configuration values.
const (
	// DefaultRetryBackoffBase is the base backoff duration in seconds.
	DefaultRetryBackoffBase = 1

	// DefaultRetryBackoffMultiplier is the exponential backoff multiplier.
	DefaultRetryBackoffMultiplier = 2.0
)

// Metadata carries coordination hints attached to a workflow.
type Metadata struct {
	// Coordination configures cross-workflow budget allocation
	Coordination *Coordination `yaml:"coordination,omitempty" json:"coordination,omitempty"`
}

// Coordination configures how a workflow participates in a shared budget.
type Coordination struct {
	// Priority weighs this workflow's budget share (1..5, 3 when unset)
	Priority int `yaml:"priority,omitempty" json:"priority,omitempty"`

	// FileScope lists the file patterns this workflow intends to touch
	FileScope []string `yaml:"file_scope,omitempty" json:"file_scope,omitempty"`
}

// PriorityOrDefault returns the coordination priority clamped to 1..5,
// defaulting to 3 when unset.
func (m *Metadata) PriorityOrDefault() int {
	if m == nil || m.Coordination == nil || m.Coordination.Priority == 0 {
		return 3
	}
	p := m.Coordination.Priority
	if p < 1 {
		return 1
	}
	if p > 5 {
		return 5
	}
	return p
}

// FileScope returns the declared coordination file scope, nil when unset.
func (m *Metadata) FileScopePatterns() []string {
	if m == nil || m.Coordination == nil {
		return nil
	}
	return m.Coordination.FileScope
}

// Policy is the routing and failure-handling policy of a workflow.
// Pointer fields distinguish "unset" from explicit zero values so that
// defaults apply only when the document omits the key.
type Policy struct {
	// MaxTokens caps total token spend for the workflow (0 = unlimited)
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`

	// PreferDeterministic biases routing toward deterministic adapters
	// (default true)
	PreferDeterministic *bool `yaml:"prefer_deterministic,omitempty" json:"prefer_deterministic,omitempty"`

	// ComplexityThreshold is the score above which AI adapters are
	// considered (default 0.7)
	ComplexityThreshold *float64 `yaml:"complexity_threshold,omitempty" json:"complexity_threshold,omitempty"`

	// FailFast stops the run at the first failed step (default true)
	FailFast *bool `yaml:"fail_fast,omitempty" json:"fail_fast,omitempty"`
}

// DefaultComplexityThreshold is applied when the policy omits one.
const DefaultComplexityThreshold = 0.7

// DeterministicPreferred reports whether routing should prefer
// deterministic adapters. Safe on a nil policy.
func (p *Policy) DeterministicPreferred() bool {
	if p == nil || p.PreferDeterministic == nil {
		return true
	}
	return *p.PreferDeterministic
}

// Threshold returns the complexity threshold, defaulting to 0.7.
// Safe on a nil policy.
func (p *Policy) Threshold() float64 {
	if p == nil || p.ComplexityThreshold == nil {
		return DefaultComplexityThreshold
	}
	return *p.ComplexityThreshold
}

// FailFastEnabled reports whether the run stops at the first failed
// step. Safe on a nil policy.
func (p *Policy) FailFastEnabled() bool {
	if p == nil || p.FailFast == nil {
		return true
	}
	return *p.FailFast
}

// TokenBudget returns the workflow token cap, zero meaning unlimited.
// Safe on a nil policy.
func (p *Policy) TokenBudget() int {
	if p == nil {
		return 0
	}
	return p.MaxTokens
}

// FileList is a file pattern set that unmarshals from either a single
// YAML scalar or a sequence of scalars.
type FileList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (f *FileList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*f = FileList{s}
		return nil
	case yaml.SequenceNode:
		var patterns []string
		if err := value.Decode(&patterns); err != nil {
			return err
		}
		*f = FileList(patterns)
		return nil
	default:
		return &errors.ValidationError{
			Field:      "files",
			Message:    "must be a glob string or a list of globs",
			Suggestion: "use files: \"src/**/*.py\" or a YAML list",
		}
	}
}

// AllSteps returns every step of the workflow, flattening phases when
// present. Top-level steps come first, in declared order.
func (d *Definition) AllSteps() []Step {
	if len(d.Phases) == 0 {
		return d.Steps
	}
	steps := make([]Step, 0, len(d.Steps))
	steps = append(steps, d.Steps...)
	for _, phase := range d.Phases {
		steps = append(steps, phase.Steps...)
	}
	return steps
}

// SchemaValidator validates a raw workflow document against a schema.
// Implementations are optional; structural checks always run.
type SchemaValidator interface {
	Validate(doc []byte) error
}

// Load reads and parses a workflow definition from a YAML file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading workflow %s", path)
	}
	return Parse(data)
}

// Parse parses a workflow definition from YAML bytes and runs the
// structural checks described in Validate.
func Parse(data []byte) (*Definition, error) {
	// Probe the document shape first so a scalar or mapping in place of
	// the steps list yields a clear diagnostic instead of a yaml type
	// error.
	var probe struct {
		Steps yaml.Node `yaml:"steps"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, errors.Wrap(err, "parsing workflow document")
	}
	if probe.Steps.Kind != 0 && probe.Steps.Kind != yaml.SequenceNode {
		return nil, &errors.ValidationError{
			Field:      "steps",
			Message:    "steps must be a list",
			Suggestion: "declare steps as a YAML sequence of step mappings",
		}
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, errors.Wrap(err, "parsing workflow document")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate runs structural validation on the definition: a name, a
// non-empty step list, unique step ids, and per-step required fields.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return &errors.ValidationError{
			Field:      "name",
			Message:    "workflow name is required",
			Suggestion: "add a top-level name field",
		}
	}

	steps := d.AllSteps()
	if len(steps) == 0 {
		return &errors.ValidationError{
			Field:      "steps",
			Message:    "workflow must declare at least one step",
			Suggestion: "add a steps list with id, name, and actor per step",
		}
	}

	seen := make(map[string]bool, len(steps))
	for i, step := range steps {
		if step.ID == "" {
			return &errors.ValidationError{
				Field:   fmt.Sprintf("steps[%d].id", i),
				Message: "step id is required",
			}
		}
		if seen[step.ID] {
			return &errors.ValidationError{
				Field:      fmt.Sprintf("steps[%d].id", i),
				Message:    fmt.Sprintf("duplicate step id %q", step.ID),
				Suggestion: "step ids must be unique within a workflow",
			}
		}
		seen[step.ID] = true

		if step.Actor == "" {
			return &errors.ValidationError{
				Field:   fmt.Sprintf("steps[%d].actor", i),
				Message: fmt.Sprintf("step %q must name an actor", step.ID),
			}
		}
		if step.ScopeMode != "" && step.ScopeMode != ScopeExclusive && step.ScopeMode != ScopeShared {
			return &errors.ValidationError{
				Field:      fmt.Sprintf("steps[%d].scope_mode", i),
				Message:    fmt.Sprintf("invalid scope_mode %q", step.ScopeMode),
				Suggestion: "use exclusive or shared",
			}
		}
		if step.Retry != nil && step.Retry.MaxAttempts < 1 {
			return &errors.ValidationError{
				Field:   fmt.Sprintf("steps[%d].retry.max_attempts", i),
				Message: "max_attempts must be at least 1",
			}
		}
	}

	if p := d.Policy; p != nil && p.ComplexityThreshold != nil {
		if *p.ComplexityThreshold < 0 || *p.ComplexityThreshold > 1 {
			return &errors.ValidationError{
				Field:   "policy.complexity_threshold",
				Message: "complexity_threshold must be between 0 and 1",
			}
		}
	}

	return nil
}
