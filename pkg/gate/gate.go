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

// Package gate evaluates declarative post-conditions against workflow
// artifacts and context.
//
// Gates never halt the engine: every failure mode, including panics in
// custom handlers, is converted into a failed GateResult.
package gate

// Gate types understood by the engine.
const (
	TypeTestsPass       = "tests_pass"
	TypeDiffLimits      = "diff_limits"
	TypeSchemaValid     = "schema_valid"
	TypeYAMLSchemaValid = "yaml_schema_valid"
	TypeArtifactGate    = "artifact_gate"
	TypeCustom          = "custom"
)

// Spec declares one verification gate.
type Spec struct {
	// Name identifies the gate in results; defaults to the type
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Type selects the built-in evaluator or "custom"
	Type string `yaml:"type" json:"type"`

	// Params carries type-specific parameters
	Params map[string]interface{} `yaml:"params,omitempty" json:"params,omitempty"`
}

// Label returns the gate's display name.
func (s Spec) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Type
}

// Result is the outcome of evaluating one gate.
type Result struct {
	// Gate is the gate's display name
	Gate string `json:"gate"`

	// Passed reports whether the post-condition held
	Passed bool `json:"passed"`

	// Message explains the outcome
	Message string `json:"message"`

	// Details carries gate-specific figures (counts, paths)
	Details map[string]interface{} `json:"details,omitempty"`
}

// Summary aggregates the results of one evaluation pass.
type Summary struct {
	TotalGates     int      `json:"total_gates"`
	Passed         int      `json:"passed"`
	Failed         int      `json:"failed"`
	OverallSuccess bool     `json:"overall_success"`
	Results        []Result `json:"results"`
}

func pass(name, message string, details map[string]interface{}) Result {
	return Result{Gate: name, Passed: true, Message: message, Details: details}
}

func fail(name, message string, details map[string]interface{}) Result {
	return Result{Gate: name, Passed: false, Message: message, Details: details}
}
