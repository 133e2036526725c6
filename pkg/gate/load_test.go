package gate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSpecs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
gates:
  - name: unit tests
    type: tests_pass
    params:
      report: artifacts/test_results.json
  - type: diff_limits
    params:
      max_lines: 500
`), 0o644))

	specs, err := LoadSpecs(path)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "unit tests", specs[0].Label())
	assert.Equal(t, TypeTestsPass, specs[0].Type)
	assert.Equal(t, "diff_limits", specs[1].Label())
	assert.Equal(t, 500, specs[1].Params["max_lines"])
}

func TestParseSpecsRejectsMissingType(t *testing.T) {
	_, err := ParseSpecs([]byte("gates:\n  - name: unnamed\n"))
	assert.Error(t, err)

	_, err = ParseSpecs([]byte("gates: []\n"))
	assert.Error(t, err)
}
