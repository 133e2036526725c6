package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/dispatch/pkg/adapter"
	"github.com/tombee/dispatch/pkg/workflow"
)

// rejectAll is a schema validator that fails every document.
type rejectAll struct{}

func (rejectAll) Validate(doc []byte) error {
	return fmt.Errorf("document does not match schema")
}

func writeWorkflowFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunFileExecutesWorkflow(t *testing.T) {
	h := newHarness(t)
	path := writeWorkflowFile(t, `
name: tidy-up
steps:
  - id: "1"
    name: tidy sources
    actor: code_fixers
  - id: "2"
    name: check diagnostics
    actor: vscode_diagnostics
`)

	result := h.coordinator.RunFile(context.Background(), path, "", nil)

	assert.True(t, result.Success)
	assert.Equal(t, "tidy-up", result.WorkflowName)
	assert.Equal(t, 2, result.StepsExecuted)
	assert.Equal(t, 2, result.StepsSucceeded)
}

func TestRunFileMissingFile(t *testing.T) {
	h := newHarness(t)

	result := h.coordinator.RunFile(context.Background(),
		filepath.Join(t.TempDir(), "nope.yaml"), "", nil)

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, 0, result.StepsExecuted)
}

func TestRunFileMalformedDocument(t *testing.T) {
	h := newHarness(t)
	path := writeWorkflowFile(t, "name: broken\nsteps: not-a-list\n")

	result := h.coordinator.RunFile(context.Background(), path, "", nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "steps must be a list")
	assert.Equal(t, int64(0), h.invocations.Load())
}

func TestRunFileSchemaRejection(t *testing.T) {
	h := newHarness(t)
	h.coordinator.WithSchemaValidator(rejectAll{})
	path := writeWorkflowFile(t, `
name: tidy-up
steps:
  - id: "1"
    name: tidy sources
    actor: code_fixers
`)

	result := h.coordinator.RunFile(context.Background(), path, "", nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "does not match schema")
	assert.Equal(t, int64(0), h.invocations.Load())
}

func TestRunInvalidDefinitionFails(t *testing.T) {
	h := newHarness(t)

	def := &workflow.Definition{Name: "demo"}
	result := h.coordinator.Run(context.Background(), def, "", nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "at least one step")
}

func TestRunFlattensPhases(t *testing.T) {
	h := newHarness(t)

	def := &workflow.Definition{
		Name: "phased",
		Steps: []workflow.Step{
			{ID: "setup", Name: "prepare", Actor: adapter.KeyCodeFixers},
		},
		Phases: []workflow.Phase{
			{ID: "p1", Steps: []workflow.Step{
				{ID: "p1.1", Name: "first", Actor: adapter.KeyCodeFixers},
				{ID: "p1.2", Name: "second", Actor: adapter.KeyCodeFixers},
			}},
		},
	}

	result := h.coordinator.Run(context.Background(), def, "", nil)

	require.True(t, result.Success)
	assert.Equal(t, 3, result.StepsExecuted)
	assert.Equal(t, 1, h.attemptsFor("setup"))
	assert.Equal(t, 1, h.attemptsFor("p1.2"))
}

func TestCoordinatorValidate(t *testing.T) {
	h := newHarness(t)

	good := &workflow.Definition{
		Name: "ok",
		Steps: []workflow.Step{
			{ID: "1", Name: "a", Actor: adapter.KeyCodeFixers},
		},
	}
	report := h.coordinator.Validate(good)
	assert.True(t, report.Valid)
	assert.Empty(t, report.Errors)

	dup := &workflow.Definition{
		Name: "dup",
		Steps: []workflow.Step{
			{ID: "1", Name: "a", Actor: adapter.KeyCodeFixers},
			{ID: "1", Name: "b", Actor: adapter.KeyCodeFixers},
		},
	}
	report = h.coordinator.Validate(dup)
	assert.False(t, report.Valid)
	require.NotEmpty(t, report.Errors)
	assert.Contains(t, report.Errors[0], "duplicate step id")
}
