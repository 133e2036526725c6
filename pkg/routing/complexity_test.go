package routing

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/tombee/dispatch/pkg/workflow"
)

func TestAnalyzeBoundsAndFactors(t *testing.T) {
	a := NewAnalyzer(nil)

	steps := []*workflow.Step{
		{ID: "1", Name: "read settings", Actor: "code_fixers"},
		{ID: "2", Name: "refactor everything", Actor: "ai_editor",
			With: map[string]interface{}{"nested": map[string]interface{}{"k": "v"}},
			When: "inputs.go", Retry: &workflow.RetryDefinition{MaxAttempts: 3}},
	}
	for _, step := range steps {
		got := a.Analyze(step)
		assert.GreaterOrEqual(t, got.Score, 0.0, step.ID)
		assert.LessOrEqual(t, got.Score, 1.0, step.ID)
		assert.GreaterOrEqual(t, got.DeterministicConfidence, 0.0, step.ID)
		assert.LessOrEqual(t, got.DeterministicConfidence, 1.0, step.ID)
	}
}

func TestAnalyzeOperationTypes(t *testing.T) {
	a := NewAnalyzer(nil)

	tests := []struct {
		name   string
		actor  string
		op     string
		factor float64
	}{
		{"read settings", "custom", "read", 0.1},
		{"format imports", "custom", "format", 0.1},
		{"lint sources", "custom", "lint", 0.15},
		{"run tests", "custom", "test", 0.2},
		{"fix warnings", "custom", "edit", 0.25},
		{"review changes", "custom", "analyze", 0.25},
		{"refactor layout", "custom", "refactor", 0.3},
		{"generate stubs", "custom", "generate", 0.3},
		{"do things", "custom", "general", 0.2},
		// Name keywords win over actor keywords.
		{"format imports", "ai_editor", "format", 0.1},
		// Actor keywords apply when the name has none.
		{"step one", "pytest_runner", "test", 0.2},
	}
	for _, tt := range tests {
		got := a.Analyze(&workflow.Step{ID: "x", Name: tt.name, Actor: tt.actor})
		assert.Equal(t, tt.op, got.OperationType, "%s/%s", tt.actor, tt.name)
		assert.InDelta(t, tt.factor, got.Factors.OperationType, 1e-9, "%s/%s", tt.actor, tt.name)
	}
}

func TestAnalyzeResolvesFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"src/a.py":     {Data: make([]byte, 2*1024)},
		"src/b.py":     {Data: make([]byte, 2*1024)},
		"src/sub/c.py": {Data: make([]byte, 2*1024)},
		"docs/readme":  {Data: make([]byte, 100)},
	}
	a := NewAnalyzer(fsys)

	got := a.Analyze(&workflow.Step{
		ID: "1", Name: "lint sources", Actor: "code_fixers",
		Files: workflow.FileList{"src/**/*.py"},
	})

	assert.Equal(t, 3, got.FileCount)
	assert.Equal(t, int64(6*1024), got.EstimatedBytes)
	assert.InDelta(t, 0.2, got.Factors.FileCount, 1e-9)
	assert.InDelta(t, 0.1, got.Factors.FileSize, 1e-9)
}

func TestAnalyzeMonotoneInFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"a.py": {Data: make([]byte, 1024)},
		"b.py": {Data: make([]byte, 1024)},
		"c.py": {Data: make([]byte, 1024)},
		"d.py": {Data: make([]byte, 1024)},
	}
	a := NewAnalyzer(fsys)

	few := a.Analyze(&workflow.Step{ID: "1", Name: "x", Actor: "y",
		Files: workflow.FileList{"a.py"}})
	many := a.Analyze(&workflow.Step{ID: "1", Name: "x", Actor: "y",
		Files: workflow.FileList{"*.py"}})

	assert.GreaterOrEqual(t, many.Factors.FileCount, few.Factors.FileCount)
	assert.GreaterOrEqual(t, many.EstimatedBytes, few.EstimatedBytes)
}

func TestAnalyzeConfidenceBoosts(t *testing.T) {
	a := NewAnalyzer(nil)

	read := a.Analyze(&workflow.Step{ID: "1", Name: "read settings", Actor: "custom"})
	edit := a.Analyze(&workflow.Step{ID: "2", Name: "fix warnings", Actor: "custom"})

	assert.Greater(t, read.DeterministicConfidence, edit.DeterministicConfidence)
}

func TestAnalyzeConfigurationFactor(t *testing.T) {
	a := NewAnalyzer(nil)

	empty := a.Analyze(&workflow.Step{ID: "1", Name: "x", Actor: "y"})
	assert.InDelta(t, 0.05, empty.Factors.Configuration, 1e-9)

	nested := a.Analyze(&workflow.Step{ID: "1", Name: "x", Actor: "y",
		With: map[string]interface{}{"rules": []interface{}{"a"}}})
	assert.InDelta(t, 0.2, nested.Factors.Configuration, 1e-9)

	flat := a.Analyze(&workflow.Step{ID: "1", Name: "x", Actor: "y",
		With: map[string]interface{}{"a": 1, "b": 2, "c": 3, "d": 4}})
	assert.InDelta(t, 0.15, flat.Factors.Configuration, 1e-9)
}
