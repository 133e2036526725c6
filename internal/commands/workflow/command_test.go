package workflow

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/dispatch/internal/commands/shared"
)

func writeWorkflow(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkflow(t, dir, `
name: tidy
steps:
  - id: "1"
    name: tidy sources
    actor: code_fixers
`)

	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"validate", path, "--root", dir})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "tidy is valid (1 steps)")
}

func TestValidateCommandRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkflow(t, dir, "name: broken\nsteps: []\n")

	cmd := NewCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{"validate", path, "--root", dir})

	err := cmd.Execute()
	require.Error(t, err)
	var exitErr *shared.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, shared.ExitInvalidWorkflow, exitErr.Code)
}

func TestCostCommandDeterministicIsFree(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkflow(t, dir, `
name: tidy
steps:
  - id: "1"
    name: tidy sources
    actor: code_fixers
`)

	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"cost", path, "--root", dir})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "1 -> code_fixers (deterministic), ~0 tokens")
	assert.Contains(t, out.String(), "tidy: 1 steps, ~0 tokens")
}
