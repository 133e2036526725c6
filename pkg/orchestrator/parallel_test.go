package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/dispatch/pkg/adapter"
	"github.com/tombee/dispatch/pkg/workflow"
)

func stepRefs(steps []workflow.Step) []*workflow.Step {
	refs := make([]*workflow.Step, len(steps))
	for i := range steps {
		refs[i] = &steps[i]
	}
	return refs
}

func TestExecuteGroupsRunsAllSteps(t *testing.T) {
	h := newHarness(t)

	steps := stepRefs([]workflow.Step{
		{ID: "1", Name: "a", Actor: adapter.KeyCodeFixers, Files: workflow.FileList{"a/**"}},
		{ID: "2", Name: "b", Actor: adapter.KeyCodeFixers, Files: workflow.FileList{"b/**"}},
		{ID: "3", Name: "c", Actor: adapter.KeyCodeFixers, Files: workflow.FileList{"c/**"}},
	})
	def := &workflow.Definition{Name: "demo"}
	wc := workflow.NewContext(def, nil)

	plan := h.executor.router.PlanParallel(steps, nil)
	require.Empty(t, plan.Conflicts)

	results := h.executor.ExecuteGroups(context.Background(), plan, steps, wc, "")

	require.Len(t, results, 3)
	for i, result := range results {
		require.NotNil(t, result, "missing result for step %d", i)
		assert.True(t, result.Success)
		assert.Equal(t, steps[i].ID, result.StepID)
	}
	assert.Equal(t, int64(3), h.invocations.Load())

	// Results are visible in the shared context after the run.
	for _, step := range steps {
		assert.NotNil(t, wc.StepResultFor(step.ID))
	}
}

func TestExecuteGroupsIsolatesConflicts(t *testing.T) {
	h := newHarness(t)

	steps := stepRefs([]workflow.Step{
		{ID: "1", Name: "a", Actor: adapter.KeyCodeFixers, Files: workflow.FileList{"src/**/*.py"}},
		{ID: "2", Name: "b", Actor: adapter.KeyCodeFixers, Files: workflow.FileList{"src/app/main.py"}},
	})
	def := &workflow.Definition{Name: "demo"}
	wc := workflow.NewContext(def, nil)

	plan := h.executor.router.PlanParallel(steps, nil)
	require.NotEmpty(t, plan.Conflicts)
	require.Equal(t, [][]int{{0}, {1}}, plan.Groups)

	results := h.executor.ExecuteGroups(context.Background(), plan, steps, wc, "")

	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.True(t, results[1].Success)
}

func TestExecuteGroupsPropagatesFailures(t *testing.T) {
	h := newHarness(t)
	h.failStep = "2"

	steps := stepRefs([]workflow.Step{
		{ID: "1", Name: "a", Actor: adapter.KeyCodeFixers},
		{ID: "2", Name: "b", Actor: adapter.KeyCodeFixers},
	})
	def := &workflow.Definition{Name: "demo"}
	wc := workflow.NewContext(def, nil)

	plan := h.executor.router.PlanParallel(steps, nil)
	results := h.executor.ExecuteGroups(context.Background(), plan, steps, wc, "")

	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Error, "simulated tool failure")
}

func TestExecuteGroupsMixedKinds(t *testing.T) {
	h := newHarness(t)
	prefer := false
	policy := &workflow.Policy{PreferDeterministic: &prefer}

	steps := stepRefs([]workflow.Step{
		{ID: "1", Name: "a", Actor: adapter.KeyCodeFixers},
		{ID: "2", Name: "edit b", Actor: adapter.KeyAIEditor,
			With: map[string]interface{}{"prompt": "fix b"}},
		{ID: "3", Name: "edit c", Actor: adapter.KeyAIEditor,
			With: map[string]interface{}{"prompt": "fix c"}},
	})
	def := &workflow.Definition{Name: "demo", Policy: policy}
	wc := workflow.NewContext(def, nil)

	plan := h.executor.router.PlanParallel(steps, policy)
	// One deterministic group, one AI group.
	require.Len(t, plan.Groups, 2)

	results := h.executor.ExecuteGroups(context.Background(), plan, steps, wc, "")

	require.Len(t, results, 3)
	tokens := 0
	for _, result := range results {
		require.True(t, result.Success)
		tokens += result.TokensUsed
	}
	assert.Equal(t, 200, tokens)
}
