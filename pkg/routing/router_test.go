package routing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/dispatch/pkg/adapter"
	"github.com/tombee/dispatch/pkg/scope"
	"github.com/tombee/dispatch/pkg/workflow"
)

func stubCompletion(ctx context.Context, prompt string) (string, int, error) {
	return "ok", 100, nil
}

func testRegistry(t *testing.T) *adapter.Registry {
	t.Helper()
	registry, err := adapter.DefaultFactory(adapter.BuiltinConfig{
		ArtifactRoot: t.TempDir(),
		Completion:   stubCompletion,
		Model:        "test-model",
	}).Build()
	require.NoError(t, err)
	return registry
}

func testRouter(t *testing.T) *Router {
	t.Helper()
	return NewRouter(testRegistry(t), NewAnalyzer(nil), scope.NewManager(""))
}

func boolPtr(b bool) *bool { return &b }

func TestRouteDowngradePreferDeterministic(t *testing.T) {
	r := testRouter(t)
	step := &workflow.Step{
		ID:    "1.001",
		Name:  "format imports",
		Actor: adapter.KeyAIEditor,
	}
	policy := &workflow.Policy{PreferDeterministic: boolPtr(true)}

	d := r.Route(step, policy)

	assert.Equal(t, adapter.KeyCodeFixers, d.AdapterName)
	assert.Equal(t, adapter.KindDeterministic, d.AdapterKind)
	assert.Equal(t, 0, d.EstimatedTokens)
	assert.Contains(t, d.Reasoning, "Prefer deterministic")
	assert.LessOrEqual(t, d.ComplexityScore, 0.7)
}

func TestRouteUpgradeOnComplexity(t *testing.T) {
	r := testRouter(t)
	step := &workflow.Step{
		ID:    "1.002",
		Name:  "refactor module layout",
		Actor: adapter.KeyCodeFixers,
		With: map[string]interface{}{
			"rules": []interface{}{"a", "b"},
		},
		When:  "inputs.enabled",
		Retry: &workflow.RetryDefinition{MaxAttempts: 2},
	}

	d := r.Route(step, nil)

	assert.Equal(t, adapter.KeyAIEditor, d.AdapterName)
	assert.Equal(t, adapter.KindAI, d.AdapterKind)
	assert.Greater(t, d.EstimatedTokens, 0)
	assert.Greater(t, d.ComplexityScore, 0.7)
}

func TestRouteKeepsRequestedActor(t *testing.T) {
	r := testRouter(t)

	det := r.Route(&workflow.Step{ID: "a", Name: "lint sources", Actor: adapter.KeyCodeFixers}, nil)
	assert.Equal(t, adapter.KeyCodeFixers, det.AdapterName)
	assert.Equal(t, 0, det.EstimatedTokens)

	// Without prefer_deterministic the AI actor is kept even for a
	// simple step.
	prefer := boolPtr(false)
	ai := r.Route(&workflow.Step{ID: "b", Name: "format imports", Actor: adapter.KeyAIEditor},
		&workflow.Policy{PreferDeterministic: prefer})
	assert.Equal(t, adapter.KeyAIEditor, ai.AdapterName)
	assert.Greater(t, ai.EstimatedTokens, 0)
}

func TestRouteFallbackUnknownActor(t *testing.T) {
	r := testRouter(t)

	// Simple unknown actor lands on the deterministic chain.
	simple := r.Route(&workflow.Step{ID: "a", Name: "read settings", Actor: "missing_actor"}, nil)
	assert.Equal(t, adapter.KeyCodeFixers, simple.AdapterName)
	assert.Equal(t, adapter.KindDeterministic, simple.AdapterKind)
	assert.Equal(t, 0, simple.EstimatedTokens)
	assert.InDelta(t, 0.6, simple.Confidence, 1e-9)

	// Complex unknown actor lands on the AI fallback.
	complexStep := &workflow.Step{
		ID:    "b",
		Name:  "refactor service boundaries",
		Actor: "missing_actor",
		With: map[string]interface{}{
			"targets": []interface{}{"x"},
		},
		When: "inputs.enabled",
	}
	hard := r.Route(complexStep, nil)
	assert.Equal(t, DefaultAIFallback, hard.AdapterName)
	assert.Equal(t, adapter.KindAI, hard.AdapterKind)
	assert.Greater(t, hard.EstimatedTokens, 500)
	assert.InDelta(t, 0.7, hard.Confidence, 1e-9)
}

func TestRouteIsDeterministic(t *testing.T) {
	r := testRouter(t)
	step := &workflow.Step{ID: "a", Name: "analyze failures", Actor: adapter.KeyAIAnalyst}

	first := r.Route(step, nil)
	second := r.Route(step, nil)
	assert.Equal(t, first, second)
}

func TestRouteBlendsHistoryIntoEstimate(t *testing.T) {
	r := testRouter(t)
	prefer := boolPtr(false)
	policy := &workflow.Policy{PreferDeterministic: prefer}
	step := &workflow.Step{ID: "a", Name: "edit handlers", Actor: adapter.KeyAIEditor}

	before := r.Route(step, policy)

	for i := 0; i < 5; i++ {
		r.History().Record(adapter.KeyAIEditor, true, 10*time.Second, 9000)
	}
	after := r.Route(step, policy)

	assert.Greater(t, after.EstimatedTokens, before.EstimatedTokens)
	assert.NotEmpty(t, after.PerformanceHint)
}

func TestRouteWithBudget(t *testing.T) {
	r := testRouter(t)
	step := &workflow.Step{
		ID:    "a",
		Name:  "analyze failures",
		Actor: adapter.KeyAIAnalyst,
		With:  map[string]interface{}{"prompt": "why does the build fail"},
	}

	// Generous budget with the analyst role keeps the AI analyst.
	ipt := r.RouteWithBudget(step, "ipt", 1_000_000)
	assert.Equal(t, adapter.KeyAIAnalyst, ipt.AdapterName)

	// Exhausted budget falls through to the cheapest deterministic
	// adapter, whose estimate is zero.
	broke := r.RouteWithBudget(step, "ipt", 100)
	assert.Equal(t, adapter.KindDeterministic, broke.AdapterKind)
	assert.Equal(t, 0, broke.EstimatedTokens)

	// Non-ipt roles prefer the deterministic trio outright.
	det := r.RouteWithBudget(step, "cleanup", 1_000_000)
	assert.Equal(t, adapter.KeyCodeFixers, det.AdapterName)
}
