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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Default artifact locations for the built-in gates.
const (
	DefaultTestReport = "artifacts/test_results.json"
	DefaultDiffFile   = "changes.diff"
)

// resolve anchors a relative path at the engine root.
func (e *Engine) resolve(path string) string {
	if filepath.IsAbs(path) || e.root == "" {
		return path
	}
	return filepath.Join(e.root, path)
}

// testReport is the JSON shape the tests_pass gate reads.
type testReport struct {
	TestsPassed int `json:"tests_passed"`
	TestsFailed int `json:"tests_failed"`
	TotalTests  int `json:"total_tests"`
}

// testsPass reads a JSON test report and passes when no tests failed.
func (e *Engine) testsPass(spec Spec) Result {
	path := e.resolve(stringParam(spec.Params, "report", DefaultTestReport))

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fail(spec.Label(), fmt.Sprintf("report not found: %s", path), nil)
		}
		return fail(spec.Label(), fmt.Sprintf("reading report: %v", err), nil)
	}

	var report testReport
	if err := json.Unmarshal(data, &report); err != nil {
		return fail(spec.Label(), fmt.Sprintf("parsing report: %v", err), nil)
	}

	details := map[string]interface{}{
		"tests_passed": report.TestsPassed,
		"tests_failed": report.TestsFailed,
		"total_tests":  report.TotalTests,
	}
	if report.TestsFailed != 0 {
		return fail(spec.Label(), fmt.Sprintf("%d tests failed", report.TestsFailed), details)
	}
	return pass(spec.Label(), fmt.Sprintf("%d tests passed", report.TestsPassed), details)
}

// diffLimits counts the lines of a unified diff and passes while the
// count stays within max_lines. A missing diff passes outright.
func (e *Engine) diffLimits(spec Spec) Result {
	path := e.resolve(stringParam(spec.Params, "diff", DefaultDiffFile))
	maxLines := intParam(spec.Params, "max_lines", 0)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return pass(spec.Label(), "no diff", nil)
		}
		return fail(spec.Label(), fmt.Sprintf("reading diff: %v", err), nil)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		lines++
	}
	if err := scanner.Err(); err != nil {
		return fail(spec.Label(), fmt.Sprintf("reading diff: %v", err), nil)
	}

	details := map[string]interface{}{"line_count": lines, "max_lines": maxLines}
	if maxLines > 0 && lines > maxLines {
		return fail(spec.Label(), fmt.Sprintf("diff has %d lines, limit is %d", lines, maxLines), details)
	}
	return pass(spec.Label(), fmt.Sprintf("diff within limits (%d lines)", lines), details)
}

// schemaValid validates each artifact against a schema: explicit map
// first, then the schemas/<name>.schema.json convention, finally a
// basic structural check.
func (e *Engine) schemaValid(spec Spec, artifacts []string) Result {
	targets := artifactList(spec.Params, artifacts)
	if len(targets) == 0 {
		return pass(spec.Label(), "no artifacts to validate", nil)
	}

	schemaMap := map[string]string{}
	if raw, ok := spec.Params["schemas"].(map[string]interface{}); ok {
		for artifact, schema := range raw {
			if s, ok := schema.(string); ok {
				schemaMap[artifact] = s
			}
		}
	}

	var failures []string
	for _, artifact := range targets {
		if err := e.validateArtifact(artifact, schemaMap[artifact]); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", artifact, err))
		}
	}

	details := map[string]interface{}{"artifacts": len(targets), "failures": len(failures)}
	if len(failures) > 0 {
		return fail(spec.Label(), strings.Join(failures, "; "), details)
	}
	return pass(spec.Label(), fmt.Sprintf("%d artifacts valid", len(targets)), details)
}

// artifactList reads the gate's artifact paths, defaulting to the
// artifacts passed to Evaluate.
func artifactList(params map[string]interface{}, fallback []string) []string {
	raw, ok := params["artifacts"]
	if !ok {
		return fallback
	}
	var out []string
	if items, ok := raw.([]interface{}); ok {
		for _, item := range items {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// validateArtifact checks one artifact against its schema, falling
// back to the basic timestamp/type shape check when no schema exists.
func (e *Engine) validateArtifact(artifact, schemaPath string) error {
	data, err := os.ReadFile(e.resolve(artifact))
	if err != nil {
		return fmt.Errorf("not readable: %w", err)
	}

	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("not valid JSON: %w", err)
	}

	if schemaPath == "" {
		conventional := e.resolve(filepath.Join("schemas",
			strings.TrimSuffix(filepath.Base(artifact), filepath.Ext(artifact))+".schema.json"))
		if _, err := os.Stat(conventional); err == nil {
			schemaPath = conventional
		}
	} else {
		schemaPath = e.resolve(schemaPath)
	}

	if schemaPath != "" {
		schema, err := jsonschema.Compile(schemaPath)
		if err != nil {
			return fmt.Errorf("loading schema %s: %w", schemaPath, err)
		}
		if err := schema.Validate(value); err != nil {
			return fmt.Errorf("schema violation: %w", err)
		}
		return nil
	}

	obj, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("not a JSON object")
	}
	for _, key := range []string{"timestamp", "type"} {
		if _, ok := obj[key]; !ok {
			return fmt.Errorf("missing %q key", key)
		}
	}
	return nil
}

// yamlSchemaValid validates a YAML document against a JSON schema.
func (e *Engine) yamlSchemaValid(spec Spec) Result {
	path := stringParam(spec.Params, "file", "")
	schemaPath := stringParam(spec.Params, "schema", "")
	if path == "" || schemaPath == "" {
		return fail(spec.Label(), "yaml_schema_valid requires file and schema parameters", nil)
	}

	data, err := os.ReadFile(e.resolve(path))
	if err != nil {
		return fail(spec.Label(), fmt.Sprintf("reading %s: %v", path, err), nil)
	}
	var value interface{}
	if err := yaml.Unmarshal(data, &value); err != nil {
		return fail(spec.Label(), fmt.Sprintf("parsing %s: %v", path, err), nil)
	}

	schema, err := jsonschema.Compile(e.resolve(schemaPath))
	if err != nil {
		return fail(spec.Label(), fmt.Sprintf("loading schema: %v", err), nil)
	}
	if err := schema.Validate(normalizeYAML(value)); err != nil {
		return fail(spec.Label(), fmt.Sprintf("schema violation: %v", err), nil)
	}
	return pass(spec.Label(), fmt.Sprintf("%s matches schema", path), nil)
}

// normalizeYAML converts YAML-decoded values into the shapes the JSON
// schema validator expects.
func normalizeYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalizeYAML(val)
		}
		return out
	case int:
		return float64(t)
	default:
		return v
	}
}

// artifactGate confirms an artifact exists, optionally validating it
// against a schema and a jq query that must yield a truthy result.
func (e *Engine) artifactGate(ctx context.Context, spec Spec) Result {
	artifact := stringParam(spec.Params, "artifact", "")
	if artifact == "" {
		return fail(spec.Label(), "artifact_gate requires an artifact parameter", nil)
	}
	path := e.resolve(artifact)
	if _, err := os.Stat(path); err != nil {
		return fail(spec.Label(), fmt.Sprintf("artifact missing: %s", artifact), nil)
	}

	if schemaPath := stringParam(spec.Params, "schema", ""); schemaPath != "" {
		if err := e.validateArtifact(artifact, schemaPath); err != nil {
			return fail(spec.Label(), err.Error(), nil)
		}
	}

	if query := stringParam(spec.Params, "query", ""); query != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fail(spec.Label(), fmt.Sprintf("reading artifact: %v", err), nil)
		}
		var value interface{}
		if err := json.Unmarshal(data, &value); err != nil {
			return fail(spec.Label(), fmt.Sprintf("artifact is not JSON: %v", err), nil)
		}
		got, err := e.jq.Query(ctx, query, value)
		if err != nil {
			return fail(spec.Label(), fmt.Sprintf("query failed: %v", err), nil)
		}
		if !truthy(got) {
			return fail(spec.Label(), fmt.Sprintf("query %q yielded %v", query, got),
				map[string]interface{}{"result": got})
		}
	}

	return pass(spec.Label(), fmt.Sprintf("artifact present: %s", artifact), nil)
}

// truthy follows jq semantics: false and null are falsy, everything
// else is truthy.
func truthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}
