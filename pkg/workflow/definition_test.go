package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	pkgerrors "github.com/tombee/dispatch/pkg/errors"
)

func TestFileListUnmarshalScalar(t *testing.T) {
	var doc struct {
		Files FileList `yaml:"files"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(`files: "src/**/*.py"`), &doc))
	assert.Equal(t, FileList{"src/**/*.py"}, doc.Files)
}

func TestFileListUnmarshalSequence(t *testing.T) {
	var doc struct {
		Files FileList `yaml:"files"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("files:\n  - a.py\n  - b.py\n"), &doc))
	assert.Equal(t, FileList{"a.py", "b.py"}, doc.Files)
}

func TestFileListUnmarshalRejectsMapping(t *testing.T) {
	var doc struct {
		Files FileList `yaml:"files"`
	}
	err := yaml.Unmarshal([]byte("files:\n  nested: true\n"), &doc)

	var ve *pkgerrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "files", ve.Field)
}

func TestParseValidDocument(t *testing.T) {
	def, err := Parse([]byte(`
name: tidy
policy:
  prefer_deterministic: true
steps:
  - id: "1"
    name: tidy sources
    actor: code_fixers
    files: "src/**/*.py"
  - id: "2"
    name: run tests
    actor: pytest_runner
    files:
      - tests/**
      - src/**
`))
	require.NoError(t, err)
	assert.Equal(t, "tidy", def.Name)
	require.Len(t, def.Steps, 2)
	assert.Equal(t, FileList{"src/**/*.py"}, def.Steps[0].Files)
	assert.Equal(t, FileList{"tests/**", "src/**"}, def.Steps[1].Files)
	assert.True(t, def.Policy.DeterministicPreferred())
}

func TestParseRejectsNonListSteps(t *testing.T) {
	for _, doc := range []string{
		"name: demo\nsteps: not-a-list\n",
		"name: demo\nsteps:\n  key: value\n",
	} {
		_, err := Parse([]byte(doc))
		var ve *pkgerrors.ValidationError
		require.ErrorAs(t, err, &ve, doc)
		assert.Contains(t, err.Error(), "steps must be a list")
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("name: [unclosed\n"))
	require.Error(t, err)
}

func TestValidateDuplicateStepID(t *testing.T) {
	def := &Definition{
		Name: "demo",
		Steps: []Step{
			{ID: "1", Name: "a", Actor: "code_fixers"},
			{ID: "1", Name: "b", Actor: "code_fixers"},
		},
	}

	err := def.Validate()

	var ve *pkgerrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Message, `duplicate step id "1"`)
}

func TestValidateDuplicateAcrossPhases(t *testing.T) {
	def := &Definition{
		Name:  "demo",
		Steps: []Step{{ID: "1", Name: "a", Actor: "code_fixers"}},
		Phases: []Phase{
			{ID: "p1", Steps: []Step{{ID: "1", Name: "b", Actor: "code_fixers"}}},
		},
	}

	err := def.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate step id")
}

func TestValidateRequiredFields(t *testing.T) {
	cases := []struct {
		name string
		def  *Definition
		want string
	}{
		{"missing name", &Definition{Steps: []Step{{ID: "1", Name: "a", Actor: "x"}}}, "name is required"},
		{"no steps", &Definition{Name: "demo"}, "at least one step"},
		{"missing id", &Definition{Name: "demo", Steps: []Step{{Name: "a", Actor: "x"}}}, "id is required"},
		{"missing actor", &Definition{Name: "demo", Steps: []Step{{ID: "1", Name: "a"}}}, "must name an actor"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.def.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateScopeModeAndRetry(t *testing.T) {
	bad := &Definition{
		Name:  "demo",
		Steps: []Step{{ID: "1", Name: "a", Actor: "x", ScopeMode: "global"}},
	}
	require.ErrorContains(t, bad.Validate(), "invalid scope_mode")

	retry := &Definition{
		Name: "demo",
		Steps: []Step{{ID: "1", Name: "a", Actor: "x",
			Retry: &RetryDefinition{MaxAttempts: 0}}},
	}
	require.ErrorContains(t, retry.Validate(), "max_attempts")
}

func TestValidateThresholdRange(t *testing.T) {
	over := 1.5
	def := &Definition{
		Name:   "demo",
		Policy: &Policy{ComplexityThreshold: &over},
		Steps:  []Step{{ID: "1", Name: "a", Actor: "x"}},
	}
	require.ErrorContains(t, def.Validate(), "between 0 and 1")
}

func TestAllStepsFlattensPhases(t *testing.T) {
	def := &Definition{
		Name:  "demo",
		Steps: []Step{{ID: "top", Name: "t", Actor: "x"}},
		Phases: []Phase{
			{ID: "p1", Steps: []Step{{ID: "a", Name: "a", Actor: "x"}}},
			{ID: "p2", Steps: []Step{{ID: "b", Name: "b", Actor: "x"}}},
		},
	}

	steps := def.AllSteps()
	require.Len(t, steps, 3)
	assert.Equal(t, "top", steps[0].ID)
	assert.Equal(t, "a", steps[1].ID)
	assert.Equal(t, "b", steps[2].ID)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: tidy
steps:
  - id: "1"
    name: tidy sources
    actor: code_fixers
`), 0o644))

	def, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tidy", def.Name)
}
