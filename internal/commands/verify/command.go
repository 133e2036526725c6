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

// Package verify provides the `dispatch verify` subcommands for
// evaluating gates against workflow artifacts.
package verify

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tombee/dispatch/internal/commands/shared"
	"github.com/tombee/dispatch/pkg/gate"
)

// NewCommand creates the verify command group
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Evaluate verification gates against artifacts",
	}
	cmd.AddCommand(newGatesCommand())
	cmd.AddCommand(newArtifactCommand())
	return cmd
}

func newGatesCommand() *cobra.Command {
	var (
		root         string
		gatesFile    string
		artifactsDir string
	)

	cmd := &cobra.Command{
		Use:   "gates",
		Short: "Evaluate a gate file",
		Long: `Gates evaluates every gate declared in the gate file and reports an
aggregate summary. A failing gate never aborts the pass; all gates
run and the exit code reflects the overall outcome. Artifacts found
under --artifacts are passed to gates that check artifact sets.

Exit codes:
  0  all gates passed
  3  one or more gates failed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := gate.LoadSpecs(gatesFile)
			if err != nil {
				return shared.NewInvalidWorkflowError(fmt.Sprintf("gate file %s", gatesFile), err)
			}

			var artifacts []string
			if artifactsDir != "" {
				artifacts, err = collectArtifacts(artifactsDir)
				if err != nil {
					return shared.NewExecutionError(
						fmt.Sprintf("listing artifacts in %s", artifactsDir), err)
				}
			}

			engine := gate.NewEngine(root)
			summary := engine.Evaluate(cmd.Context(), specs, artifacts, nil)

			if shared.GetJSON() {
				if err := shared.PrintJSON(cmd.OutOrStdout(), summary); err != nil {
					return shared.NewExecutionError("encoding summary", err)
				}
			} else if !shared.GetQuiet() {
				printSummary(cmd, summary)
			}

			if !summary.OverallSuccess {
				return shared.NewGatesFailedError(
					fmt.Sprintf("%d of %d gates failed", summary.Failed, summary.TotalGates))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", ".", "Root directory for relative artifact paths")
	cmd.Flags().StringVar(&gatesFile, "gates", "gates.yaml", "Gate file to evaluate")
	cmd.Flags().StringVar(&artifactsDir, "artifacts", "", "Directory of artifacts to check")
	return cmd
}

// collectArtifacts lists regular files under dir, non-recursively.
// Gates resolve the returned paths themselves.
func collectArtifacts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var artifacts []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			artifacts = append(artifacts, filepath.Join(dir, entry.Name()))
		}
	}
	return artifacts, nil
}

func newArtifactCommand() *cobra.Command {
	var (
		root   string
		schema string
		query  string
	)

	cmd := &cobra.Command{
		Use:   "artifact <path>",
		Short: "Check a single artifact",
		Long: `Artifact checks that one artifact exists, optionally validates it
against a JSON schema, and optionally asserts a jq query evaluates to
a truthy value against its content.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]interface{}{"artifact": args[0]}
			if schema != "" {
				params["schema"] = schema
			}
			if query != "" {
				params["query"] = query
			}
			spec := gate.Spec{
				Name:   args[0],
				Type:   gate.TypeArtifactGate,
				Params: params,
			}

			engine := gate.NewEngine(root)
			summary := engine.Evaluate(cmd.Context(), []gate.Spec{spec}, nil, nil)

			if shared.GetJSON() {
				if err := shared.PrintJSON(cmd.OutOrStdout(), summary.Results[0]); err != nil {
					return shared.NewExecutionError("encoding result", err)
				}
			} else if !shared.GetQuiet() {
				printSummary(cmd, summary)
			}

			if !summary.OverallSuccess {
				return shared.NewGatesFailedError(summary.Results[0].Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", ".", "Root directory for relative artifact paths")
	cmd.Flags().StringVar(&schema, "schema", "", "JSON schema to validate the artifact against")
	cmd.Flags().StringVar(&query, "query", "", "jq expression that must evaluate truthy")
	return cmd
}

func printSummary(cmd *cobra.Command, summary gate.Summary) {
	out := cmd.OutOrStdout()
	for _, result := range summary.Results {
		status := "pass"
		if !result.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(out, "  [%s] %s: %s\n", status, result.Gate, result.Message)
	}
	fmt.Fprintf(out, "%d/%d gates passed\n", summary.Passed, summary.TotalGates)
}
