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

// Package workflow provides the `dispatch workflow` subcommands for
// inspecting workflow files without executing them.
package workflow

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tombee/dispatch/internal/commands/shared"
	"github.com/tombee/dispatch/pkg/workflow"
)

// NewCommand creates the workflow command group
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Inspect workflow files",
	}
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newCostCommand())
	return cmd
}

func newValidateCommand() *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "validate <workflow>",
		Short: "Validate a workflow without executing it",
		Long: `Validate checks the workflow document structurally (name, steps,
unique ids, actors) and verifies each step against its adapter.
Unknown actors are warnings, not errors: routing falls back to a
registered adapter at run time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := shared.BuildEngine(shared.EngineOptions{Root: root})
			if err != nil {
				return shared.NewExecutionError("initializing engine", err)
			}

			def, err := workflow.Load(args[0])
			if err != nil {
				return shared.NewInvalidWorkflowError(fmt.Sprintf("workflow %s", args[0]), err)
			}

			report := engine.Coordinator.Validate(def)

			if shared.GetJSON() {
				if err := shared.PrintJSON(cmd.OutOrStdout(), report); err != nil {
					return shared.NewExecutionError("encoding report", err)
				}
			} else {
				out := cmd.OutOrStdout()
				for _, e := range report.Errors {
					fmt.Fprintf(out, "error: %s\n", e)
				}
				for _, w := range report.Warnings {
					fmt.Fprintf(out, "warning: %s\n", w)
				}
				if report.Valid {
					fmt.Fprintf(out, "%s is valid (%d steps)\n", def.Name, len(def.AllSteps()))
				}
			}

			if !report.Valid {
				return shared.NewInvalidWorkflowError(
					fmt.Sprintf("workflow %s has %d validation errors", def.Name, len(report.Errors)), nil)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", ".", "Working root for file resolution")
	return cmd
}

// costEstimate is the JSON shape of the cost subcommand output.
type costEstimate struct {
	Workflow        string         `json:"workflow"`
	Steps           []stepEstimate `json:"steps"`
	EstimatedTokens int            `json:"estimated_tokens"`
	EstimatedUSD    float64        `json:"estimated_usd"`
}

// stepEstimate is the per-step row of the cost breakdown.
type stepEstimate struct {
	ID              string `json:"id"`
	Adapter         string `json:"adapter"`
	AdapterKind     string `json:"adapter_kind"`
	EstimatedTokens int    `json:"estimated_tokens"`
}

func newCostCommand() *cobra.Command {
	var (
		root        string
		pricingPath string
	)

	cmd := &cobra.Command{
		Use:   "cost <workflow>",
		Short: "Estimate a workflow's token cost without executing it",
		Long: `Cost routes every step as the executor would and sums the estimated
token spend. Steps that route to deterministic adapters cost zero.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := shared.BuildEngine(shared.EngineOptions{
				Root:        root,
				PricingPath: pricingPath,
			})
			if err != nil {
				return shared.NewExecutionError("initializing engine", err)
			}

			def, err := workflow.Load(args[0])
			if err != nil {
				return shared.NewInvalidWorkflowError(fmt.Sprintf("workflow %s", args[0]), err)
			}

			steps := def.AllSteps()
			estimate := costEstimate{Workflow: def.Name}
			for i := range steps {
				decision := engine.Router.Route(&steps[i], def.Policy)
				estimate.Steps = append(estimate.Steps, stepEstimate{
					ID:              steps[i].ID,
					Adapter:         decision.AdapterName,
					AdapterKind:     string(decision.AdapterKind),
					EstimatedTokens: decision.EstimatedTokens,
				})
				estimate.EstimatedTokens += decision.EstimatedTokens
			}
			estimate.EstimatedUSD = engine.Calculator.Cost("", estimate.EstimatedTokens)

			if shared.GetJSON() {
				return shared.PrintJSON(cmd.OutOrStdout(), estimate)
			}
			out := cmd.OutOrStdout()
			for _, s := range estimate.Steps {
				fmt.Fprintf(out, "  %s -> %s (%s), ~%d tokens\n",
					s.ID, s.Adapter, s.AdapterKind, s.EstimatedTokens)
			}
			fmt.Fprintf(out, "%s: %d steps, ~%d tokens (~$%.4f)\n",
				estimate.Workflow, len(estimate.Steps), estimate.EstimatedTokens, estimate.EstimatedUSD)
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", ".", "Working root for file resolution")
	cmd.Flags().StringVar(&pricingPath, "pricing", "", "Pricing registry YAML for USD conversion")
	return cmd
}
