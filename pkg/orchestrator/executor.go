// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package orchestrator runs workflows: the executor handles one step
// (validation, dry-run, timing, retries, cost accounting) and the
// coordinator owns the top-level loop and result aggregation.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/expr-lang/expr"

	intlog "github.com/tombee/dispatch/internal/log"
	"github.com/tombee/dispatch/pkg/adapter"
	"github.com/tombee/dispatch/pkg/cost"
	"github.com/tombee/dispatch/pkg/observability"
	"github.com/tombee/dispatch/pkg/routing"
	"github.com/tombee/dispatch/pkg/workflow"
)

// Executor runs single steps through routed adapters.
type Executor struct {
	router  *routing.Router
	tracker *cost.Tracker
	logger  *slog.Logger
	dryRun  bool
}

// NewExecutor creates an executor over a router. The cost tracker is
// optional; without one, token usage is not recorded.
func NewExecutor(router *routing.Router) *Executor {
	return &Executor{
		router: router,
		logger: slog.Default(),
	}
}

// WithCostTracker attaches a cost tracker.
func (e *Executor) WithCostTracker(tracker *cost.Tracker) *Executor {
	e.tracker = tracker
	return e
}

// WithLogger sets a custom logger.
func (e *Executor) WithLogger(logger *slog.Logger) *Executor {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// WithDryRun toggles dry-run mode: steps short-circuit to a synthetic
// success without invoking any adapter.
func (e *Executor) WithDryRun(dryRun bool) *Executor {
	e.dryRun = dryRun
	return e
}

// failResult builds a failed step result with timing from start.
func failResult(step *workflow.Step, start time.Time, message string) *workflow.StepResult {
	return &workflow.StepResult{
		StepID:        step.ID,
		Success:       false,
		Error:         message,
		ExecutionTime: time.Since(start),
	}
}

// ExecuteStep runs one step. Adapter panics and errors are converted
// into failed results; the method itself never returns an error state
// other than through the result.
func (e *Executor) ExecuteStep(ctx context.Context, step *workflow.Step, wc *workflow.Context, files string) *workflow.StepResult {
	start := time.Now()

	if step.ID == "" || step.Name == "" || step.Actor == "" {
		return failResult(step, start, "step requires id, name, and actor")
	}

	if step.When != "" {
		matched, err := evaluateCondition(step.When, wc)
		if err != nil {
			return failResult(step, start, fmt.Sprintf("evaluating when condition: %v", err))
		}
		if !matched {
			return &workflow.StepResult{
				StepID:        step.ID,
				Success:       true,
				Output:        fmt.Sprintf("skipped: when condition %q not met", step.When),
				ExecutionTime: time.Since(start),
				Metadata:      map[string]interface{}{"skipped": true},
			}
		}
	}

	if e.dryRun {
		return &workflow.StepResult{
			StepID:        step.ID,
			Success:       true,
			Output:        fmt.Sprintf("[DRY RUN] Would execute %s", step.Actor),
			Artifacts:     append([]string(nil), step.Emits...),
			ExecutionTime: time.Since(start),
			Metadata:      map[string]interface{}{"dry_run": true},
		}
	}

	decision := e.router.Route(step, wc.Policy)
	a, err := e.router.Registry().Available(decision.AdapterName)
	if err != nil {
		return failResult(step, start, fmt.Sprintf("adapter %s unavailable: %v", decision.AdapterName, err))
	}
	if err := a.ValidateStep(step); err != nil {
		return failResult(step, start, fmt.Sprintf("step validation failed: %v", err))
	}

	logger := intlog.WithStepContext(e.logger, wc.RunID, step.ID).With("adapter", a.Name())
	if decision.AdapterName != step.Actor {
		logger.Info("rerouted step", "requested", step.Actor, "reasoning", decision.Reasoning)
	}

	adapterResult, execErr := e.executeWithRetry(ctx, a, step, wc, files)
	elapsed := time.Since(start)

	result := &workflow.StepResult{
		StepID:        step.ID,
		ExecutionTime: elapsed,
		Metadata:      map[string]interface{}{"adapter": a.Name()},
	}
	if wc.RunID != "" {
		result.Metadata["run_id"] = wc.RunID
	}
	switch {
	case execErr != nil:
		result.Error = execErr.Error()
	case adapterResult == nil:
		result.Error = "adapter returned no result"
	default:
		result.Success = adapterResult.Success
		result.Output = adapterResult.Output
		result.Artifacts = adapterResult.Artifacts
		result.TokensUsed = adapterResult.TokensUsed
		result.Error = adapterResult.Error
		for k, v := range adapterResult.Metadata {
			result.Metadata[k] = v
		}
	}

	e.router.History().Record(a.Name(), result.Success, elapsed, result.TokensUsed)
	observability.RecordStep(a.Name(), string(a.Kind()), result.Success, elapsed, result.TokensUsed)

	if e.tracker != nil && result.TokensUsed > 0 {
		model, _ := result.Metadata["model"].(string)
		if _, err := e.tracker.Record(ctx, cost.Usage{
			Operation:   step.Actor,
			Tokens:      result.TokensUsed,
			Model:       model,
			Success:     result.Success,
			RunID:       wc.RunID,
			WorkflowID:  wc.WorkflowName,
			AdapterName: a.Name(),
		}); err != nil {
			logger.Warn("recording cost failed", "error", err)
		}
	}

	logger.Debug("step finished",
		"success", result.Success,
		"duration_ms", elapsed.Milliseconds(),
		"tokens", result.TokensUsed)
	return result
}

// executeWithRetry invokes the adapter under the step's timeout and
// retry configuration, trapping panics.
func (e *Executor) executeWithRetry(ctx context.Context, a adapter.Adapter, step *workflow.Step, wc *workflow.Context, files string) (*adapter.Result, error) {
	retry := step.Retry
	if retry == nil {
		retry = &workflow.RetryDefinition{MaxAttempts: 1}
	}
	backoffBase := retry.BackoffBase
	if backoffBase <= 0 {
		backoffBase = workflow.DefaultRetryBackoffBase
	}
	multiplier := retry.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = workflow.DefaultRetryBackoffMultiplier
	}

	var lastErr error
	backoff := time.Duration(backoffBase) * time.Second

	for attempt := 1; attempt <= retry.MaxAttempts; attempt++ {
		result, err := e.executeOnce(ctx, a, step, wc, files)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == retry.MaxAttempts {
			break
		}
		e.logger.Warn("step attempt failed, retrying",
			"step_id", step.ID, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
			backoff = time.Duration(float64(backoff) * multiplier)
		}
	}
	if retry.MaxAttempts > 1 {
		return nil, fmt.Errorf("step failed after %d attempts: %w", retry.MaxAttempts, lastErr)
	}
	return nil, lastErr
}

// executeOnce runs the adapter one time with timeout and panic capture.
func (e *Executor) executeOnce(ctx context.Context, a adapter.Adapter, step *workflow.Step, wc *workflow.Context, files string) (result *adapter.Result, err error) {
	if seconds := step.TimeoutSeconds(); seconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(seconds)*time.Second)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("adapter %s panicked: %v", a.Name(), r)
		}
	}()

	result, err = a.Execute(ctx, step, wc, files)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("timeout")
	}
	return result, err
}

// ExecuteBatch runs steps in order, writing each result into the
// context so later steps can reference earlier outputs. It does not
// stop on failure; fail-fast is the coordinator's policy.
func (e *Executor) ExecuteBatch(ctx context.Context, steps []*workflow.Step, wc *workflow.Context, files string) []*workflow.StepResult {
	results := make([]*workflow.StepResult, 0, len(steps))
	for _, step := range steps {
		result := e.ExecuteStep(ctx, step, wc, files)
		wc.SetStepResult(step.ID, result)
		results = append(results, result)
	}
	return results
}

// EstimateStepCost returns the routed token estimate without executing.
func (e *Executor) EstimateStepCost(step *workflow.Step, policy *workflow.Policy) int {
	return e.router.EstimateStepCost(step, policy)
}

// ValidationReport is the outcome of a validation-only pass.
type ValidationReport struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ValidateSteps checks required fields and adapter availability
// without executing anything.
func (e *Executor) ValidateSteps(steps []*workflow.Step) ValidationReport {
	report := ValidationReport{Valid: true}
	registry := e.router.Registry()

	for _, step := range steps {
		if step.ID == "" || step.Name == "" || step.Actor == "" {
			report.Errors = append(report.Errors,
				fmt.Sprintf("step %q missing required fields (id, name, actor)", step.ID))
			continue
		}
		if !registry.Has(step.Actor) {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("step %s: actor %q is not registered; routing will fall back", step.ID, step.Actor))
			continue
		}
		a, err := registry.Available(step.Actor)
		if err != nil {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("step %s: actor %q unavailable: %v", step.ID, step.Actor, err))
			continue
		}
		if err := a.ValidateStep(step); err != nil {
			report.Errors = append(report.Errors,
				fmt.Sprintf("step %s: %v", step.ID, err))
		}
	}
	report.Valid = len(report.Errors) == 0
	return report
}

// evaluateCondition evaluates a when expression against the workflow
// context. The expression must yield a boolean.
func evaluateCondition(condition string, wc *workflow.Context) (bool, error) {
	out, err := expr.Eval(condition, wc.ExpressionEnv())
	if err != nil {
		return false, err
	}
	matched, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q yielded %T, want bool", condition, out)
	}
	return matched, nil
}
