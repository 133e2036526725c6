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

package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	intlog "github.com/tombee/dispatch/internal/log"
	"github.com/tombee/dispatch/pkg/workflow"
)

// Coordinator owns the top-level workflow loop. Load errors and schema
// violations become failed results; nothing raises past this boundary.
type Coordinator struct {
	executor  *Executor
	validator workflow.SchemaValidator
	logger    *slog.Logger
}

// NewCoordinator creates a coordinator over an executor.
func NewCoordinator(executor *Executor) *Coordinator {
	return &Coordinator{
		executor: executor,
		logger:   slog.Default(),
	}
}

// WithSchemaValidator attaches an optional document schema validator.
// Without one only the structural checks run.
func (c *Coordinator) WithSchemaValidator(v workflow.SchemaValidator) *Coordinator {
	c.validator = v
	return c
}

// WithLogger sets a custom logger.
func (c *Coordinator) WithLogger(logger *slog.Logger) *Coordinator {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// RunFile loads a workflow document, validates it against the schema
// when a validator is configured, and runs it.
func (c *Coordinator) RunFile(ctx context.Context, path, files string, extra map[string]interface{}) *workflow.Result {
	data, err := os.ReadFile(path)
	if err != nil {
		return workflow.Failed(path, err)
	}
	if c.validator != nil {
		if err := c.validator.Validate(data); err != nil {
			return workflow.Failed(path, err)
		}
	}
	def, err := workflow.Parse(data)
	if err != nil {
		return workflow.Failed(path, err)
	}
	return c.Run(ctx, def, files, extra)
}

// Run executes a workflow definition: validate, build context, run
// steps in declared order honoring fail-fast, aggregate. Every run is
// assigned a fresh id, threaded through log entries, step metadata,
// and cost records.
func (c *Coordinator) Run(ctx context.Context, def *workflow.Definition, files string, extra map[string]interface{}) *workflow.Result {
	start := time.Now()

	if err := def.Validate(); err != nil {
		return workflow.Failed(def.Name, err)
	}

	wc := workflow.NewContext(def, extra)
	wc.RunID = uuid.New().String()
	logger := intlog.WithRunContext(c.logger, wc.RunID, def.Name)
	logger.Info("workflow started", "steps", len(def.AllSteps()))

	steps := def.AllSteps()
	results := make([]*workflow.StepResult, 0, len(steps))
	for i := range steps {
		step := &steps[i]
		result := c.executor.ExecuteStep(ctx, step, wc, files)
		wc.SetStepResult(step.ID, result)
		results = append(results, result)

		if !result.Success && def.Policy.FailFastEnabled() {
			logger.Warn("step failed, halting run", "step_id", step.ID, "error", result.Error)
			break
		}
	}

	result := workflow.Aggregate(def.Name, results, time.Since(start))
	result.RunID = wc.RunID
	logger.Info("workflow finished",
		"success", result.Success,
		"steps_executed", result.StepsExecuted,
		"tokens", result.TotalTokens,
		"duration_ms", result.TotalTime.Milliseconds())
	return result
}

// EstimateCost sums the routed token estimates of every step without
// executing anything.
func (c *Coordinator) EstimateCost(def *workflow.Definition) int {
	total := 0
	steps := def.AllSteps()
	for i := range steps {
		total += c.executor.EstimateStepCost(&steps[i], def.Policy)
	}
	return total
}

// Validate structurally validates a definition and checks every step
// against its adapter without executing.
func (c *Coordinator) Validate(def *workflow.Definition) ValidationReport {
	if err := def.Validate(); err != nil {
		return ValidationReport{Errors: []string{err.Error()}}
	}
	steps := def.AllSteps()
	refs := make([]*workflow.Step, len(steps))
	for i := range steps {
		refs[i] = &steps[i]
	}
	return c.executor.ValidateSteps(refs)
}
