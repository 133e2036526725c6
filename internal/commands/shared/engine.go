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

package shared

import (
	"log/slog"
	"os"
	"path/filepath"

	intlog "github.com/tombee/dispatch/internal/log"
	"github.com/tombee/dispatch/pkg/adapter"
	"github.com/tombee/dispatch/pkg/cost"
	"github.com/tombee/dispatch/pkg/errors"
	"github.com/tombee/dispatch/pkg/orchestrator"
	"github.com/tombee/dispatch/pkg/routing"
	"github.com/tombee/dispatch/pkg/scope"
	"github.com/tombee/dispatch/schemas"
)

// StateDirName holds routing history, usage logs, and pricing overrides
// under the working root.
const StateDirName = ".dispatch"

// EngineOptions configures the command-line engine assembly.
type EngineOptions struct {
	// Root is the working root for file globbing and artifacts
	Root string

	// DryRun short-circuits step execution
	DryRun bool

	// PricingPath optionally points at a pricing registry YAML file
	PricingPath string

	// Logger overrides the environment-derived default
	Logger *slog.Logger
}

// Engine bundles the wired components behind the CLI commands.
type Engine struct {
	Registry    *adapter.Registry
	Router      *routing.Router
	Executor    *orchestrator.Executor
	Coordinator *orchestrator.Coordinator
	Tracker     *cost.Tracker
	Calculator  *cost.Calculator
	Logger      *slog.Logger
}

// BuildEngine assembles registry, router, executor, coordinator, and
// cost tracker for CLI use. Routing history and usage records persist
// under <root>/.dispatch/.
func BuildEngine(opts EngineOptions) (*Engine, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}
	logger := opts.Logger
	if logger == nil {
		logger = intlog.New(intlog.FromEnv())
	}
	stateDir := filepath.Join(root, StateDirName)

	registry, err := adapter.DefaultFactory(adapter.BuiltinConfig{
		ArtifactRoot: root,
	}).Build()
	if err != nil {
		return nil, errors.Wrap(err, "building adapter registry")
	}

	analyzer := routing.NewAnalyzer(os.DirFS(root))
	history := routing.NewHistory(
		routing.NewFileHistoryStore(filepath.Join(stateDir, "history.json")),
		intlog.WithComponent(logger, "routing"))
	router := routing.NewRouter(registry, analyzer, scope.NewManager(root)).
		WithHistory(history).
		WithLogger(intlog.WithComponent(logger, "routing"))

	var pricing *cost.Pricing
	if opts.PricingPath != "" {
		pricing, err = cost.LoadPricing(opts.PricingPath)
		if err != nil {
			return nil, errors.Wrapf(err, "loading pricing registry %s", opts.PricingPath)
		}
	}
	store := cost.NewFileStore(filepath.Join(stateDir, "usage.jsonl"))
	calc := cost.NewCalculator(pricing)
	tracker := cost.NewTracker(store, calc).WithLogger(intlog.WithComponent(logger, "cost"))

	executor := orchestrator.NewExecutor(router).
		WithCostTracker(tracker).
		WithLogger(logger).
		WithDryRun(opts.DryRun)

	validator, err := schemas.NewWorkflowValidator()
	if err != nil {
		return nil, err
	}

	return &Engine{
		Registry:    registry,
		Router:      router,
		Executor:    executor,
		Coordinator: orchestrator.NewCoordinator(executor).
			WithSchemaValidator(validator).
			WithLogger(logger),
		Tracker:     tracker,
		Calculator:  calc,
		Logger:      logger,
	}, nil
}
