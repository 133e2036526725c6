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

package gate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tombee/dispatch/internal/jq"
	"github.com/tombee/dispatch/pkg/observability"
	"github.com/tombee/dispatch/pkg/workflow"
)

// Handler evaluates a custom gate against the artifacts and workflow
// context.
type Handler func(ctx context.Context, spec Spec, artifacts []string, wc *workflow.Context) Result

// Engine evaluates gate specs. Paths in gate parameters resolve
// relative to the engine root.
type Engine struct {
	root     string
	handlers map[string]Handler
	jq       *jq.Runner
	logger   *slog.Logger
}

// NewEngine creates an engine rooted at the given directory.
func NewEngine(root string) *Engine {
	return &Engine{
		root:     root,
		handlers: make(map[string]Handler),
		jq:       jq.NewRunner(0),
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// RegisterHandler installs a custom gate handler under a name.
func (e *Engine) RegisterHandler(name string, handler Handler) {
	e.handlers[name] = handler
}

// Evaluate runs every gate and aggregates the outcomes. A panic or
// error inside one gate fails that gate only.
func (e *Engine) Evaluate(ctx context.Context, specs []Spec, artifacts []string, wc *workflow.Context) Summary {
	summary := Summary{
		TotalGates: len(specs),
		Results:    make([]Result, 0, len(specs)),
	}
	for _, spec := range specs {
		result := e.evaluateOne(ctx, spec, artifacts, wc)
		observability.RecordGate(result.Gate, result.Passed)
		if result.Passed {
			summary.Passed++
		} else {
			summary.Failed++
			e.logger.Warn("gate failed", "gate", result.Gate, "message", result.Message)
		}
		summary.Results = append(summary.Results, result)
	}
	summary.OverallSuccess = summary.Failed == 0
	return summary
}

func (e *Engine) evaluateOne(ctx context.Context, spec Spec, artifacts []string, wc *workflow.Context) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = fail(spec.Label(), fmt.Sprintf("gate panicked: %v", r), nil)
		}
	}()

	switch spec.Type {
	case TypeTestsPass:
		return e.testsPass(spec)
	case TypeDiffLimits:
		return e.diffLimits(spec)
	case TypeSchemaValid:
		return e.schemaValid(spec, artifacts)
	case TypeYAMLSchemaValid:
		return e.yamlSchemaValid(spec)
	case TypeArtifactGate:
		return e.artifactGate(ctx, spec)
	case TypeCustom:
		return e.custom(ctx, spec, artifacts, wc)
	default:
		return fail(spec.Label(), fmt.Sprintf("unknown gate type %q", spec.Type), nil)
	}
}

func (e *Engine) custom(ctx context.Context, spec Spec, artifacts []string, wc *workflow.Context) Result {
	name := stringParam(spec.Params, "handler", spec.Name)
	handler, ok := e.handlers[name]
	if !ok {
		return fail(spec.Label(), fmt.Sprintf("no custom handler registered as %q", name), nil)
	}
	return handler(ctx, spec, artifacts, wc)
}

// stringParam reads a string parameter with a default.
func stringParam(params map[string]interface{}, key, fallback string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

// intParam reads an integer parameter, coercing the numeric types
// YAML and JSON produce.
func intParam(params map[string]interface{}, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}
