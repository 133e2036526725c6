package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/tombee/dispatch/pkg/adapter"
	"github.com/tombee/dispatch/pkg/routing"
	"github.com/tombee/dispatch/pkg/workflow"
)

// maxAIConcurrency caps concurrent AI adapter executions within one
// group to respect external API rate limits.
const maxAIConcurrency = 3

// ExecuteGroups runs a parallel plan: groups run sequentially, the
// steps inside one group run concurrently. Results land in the shared
// context only after the whole group has finished, since the context
// is not safe for concurrent writes. Returns per-step results in the
// original step order.
func (e *Executor) ExecuteGroups(ctx context.Context, plan *routing.Plan, steps []*workflow.Step, wc *workflow.Context, files string) []*workflow.StepResult {
	results := make([]*workflow.StepResult, len(steps))

	for _, group := range plan.Groups {
		g, groupCtx := errgroup.WithContext(ctx)
		if groupHasAI(plan, group) {
			g.SetLimit(maxAIConcurrency)
		}

		for _, index := range group {
			step := steps[index]
			i := index
			g.Go(func() error {
				results[i] = e.ExecuteStep(groupCtx, step, wc, files)
				return nil
			})
		}
		// Workers never return errors; Wait is a barrier.
		_ = g.Wait()

		for _, index := range group {
			if results[index] != nil {
				wc.SetStepResult(steps[index].ID, results[index])
			}
		}
	}
	return results
}

// groupHasAI reports whether any step in the group routed to an AI
// adapter.
func groupHasAI(plan *routing.Plan, group []int) bool {
	for _, index := range group {
		if index < len(plan.Decisions) && plan.Decisions[index].AdapterKind == adapter.KindAI {
			return true
		}
	}
	return false
}
