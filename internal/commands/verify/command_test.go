package verify

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/dispatch/internal/commands/shared"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestGatesCommandAllPass(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "report.json", `{"ok": true}`)
	gates := writeFile(t, dir, "gates.yaml", `
gates:
  - name: report exists
    type: artifact_gate
    params:
      artifact: report.json
      query: ".ok"
`)

	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"gates", "--gates", gates, "--root", dir})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "1/1 gates passed")
}

func TestGatesCommandFailureExitCode(t *testing.T) {
	dir := t.TempDir()
	gates := writeFile(t, dir, "gates.yaml", `
gates:
  - name: report exists
    type: artifact_gate
    params:
      artifact: missing.json
`)

	cmd := NewCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{"gates", "--gates", gates, "--root", dir})

	err := cmd.Execute()
	require.Error(t, err)
	var exitErr *shared.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, shared.ExitGatesFailed, exitErr.Code)
}

func TestGatesCommandRejectsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	gates := writeFile(t, dir, "gates.yaml", "gates: []\n")

	cmd := NewCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{"gates", "--gates", gates, "--root", dir})

	err := cmd.Execute()
	require.Error(t, err)
	var exitErr *shared.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, shared.ExitInvalidWorkflow, exitErr.Code)
}

func TestArtifactCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "out.json", `{"count": 3}`)

	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"artifact", "out.json", "--root", dir, "--query", ".count > 0"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "1/1 gates passed")
}
