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

package run

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/dispatch/internal/commands/shared"
	"github.com/tombee/dispatch/pkg/workflow"
)

// NewCommand creates the run command
func NewCommand() *cobra.Command {
	var (
		inputs      []string
		files       string
		root        string
		pricingPath string
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Execute a workflow",
		Long: `Run executes a workflow file step by step.

Each step is routed to an adapter based on its complexity: simple
operations go to deterministic tools at zero token cost, complex ones
to AI adapters when the policy allows. A failed step halts the run
unless the workflow sets policy.fail_fast: false.

Exit codes:
  0  all executed steps succeeded
  1  a step failed or execution could not start
  2  the workflow document is invalid`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, args[0], inputs, files, root, pricingPath, dryRun)
		},
	}

	cmd.Flags().StringSliceVarP(&inputs, "input", "i", nil, "Workflow input in key=value format")
	cmd.Flags().StringVar(&files, "files", "", "File scope passed to adapters (glob)")
	cmd.Flags().StringVar(&root, "root", ".", "Working root for file resolution and artifacts")
	cmd.Flags().StringVar(&pricingPath, "pricing", "", "Pricing registry YAML for cost attribution")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would execute without running adapters")

	return cmd
}

func runWorkflow(cmd *cobra.Command, path string, inputs []string, files, root, pricingPath string, dryRun bool) error {
	extra, err := parseInputs(inputs)
	if err != nil {
		return shared.NewInvalidWorkflowError("invalid --input", err)
	}

	engine, err := shared.BuildEngine(shared.EngineOptions{
		Root:        root,
		DryRun:      dryRun,
		PricingPath: pricingPath,
	})
	if err != nil {
		return shared.NewExecutionError("initializing engine", err)
	}

	if _, err := os.Stat(path); err != nil {
		return shared.NewInvalidWorkflowError(fmt.Sprintf("workflow %s", path), err)
	}

	result := engine.Coordinator.RunFile(cmd.Context(), path, files, extra)

	if shared.GetJSON() {
		if err := shared.PrintJSON(cmd.OutOrStdout(), result); err != nil {
			return shared.NewExecutionError("encoding result", err)
		}
	} else if !shared.GetQuiet() {
		printResult(cmd, result)
	}

	if !result.Success {
		if result.StepsExecuted == 0 {
			return shared.NewInvalidWorkflowError(result.Error, nil)
		}
		return shared.NewExecutionError(
			fmt.Sprintf("workflow %s failed (%d/%d steps succeeded)",
				result.WorkflowName, result.StepsSucceeded, result.StepsExecuted), nil)
	}
	return nil
}

// parseInputs converts key=value pairs into a context extras map.
func parseInputs(pairs []string) (map[string]interface{}, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	extra := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("input %q is not key=value", pair)
		}
		extra[key] = value
	}
	return extra, nil
}

// timeRound keeps durations readable in the summary line.
const timeRound = time.Millisecond

func printResult(cmd *cobra.Command, result *workflow.Result) {
	out := cmd.OutOrStdout()
	for _, sr := range result.StepResults {
		status := "ok"
		if !sr.Success {
			status = "FAILED"
		}
		fmt.Fprintf(out, "  [%s] %s", status, sr.StepID)
		if sr.TokensUsed > 0 {
			fmt.Fprintf(out, " (%d tokens)", sr.TokensUsed)
		}
		if sr.Error != "" {
			fmt.Fprintf(out, ": %s", sr.Error)
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "%s: %d/%d steps succeeded, %d tokens, %s\n",
		result.WorkflowName, result.StepsSucceeded, result.StepsExecuted,
		result.TotalTokens, result.TotalTime.Round(timeRound))
}
