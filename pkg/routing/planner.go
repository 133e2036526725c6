package routing

import (
	"github.com/tombee/dispatch/pkg/adapter"
	"github.com/tombee/dispatch/pkg/scope"
	"github.com/tombee/dispatch/pkg/workflow"
)

// aiGroupSize caps AI steps per parallel group to respect external API
// rate limits.
const aiGroupSize = 3

// Plan schedules a set of steps into parallel execution groups. Group
// indices refer to positions in the input step slice. Groups run
// sequentially; members of one group may run concurrently.
type Plan struct {
	// Decisions holds the routing decision for each step, by index
	Decisions []*Decision `json:"decisions"`

	// Groups are ordered sets of step indices safe to run concurrently
	Groups [][]int `json:"groups"`

	// Conflicts lists the file-scope conflicts that shaped the groups
	Conflicts []scope.Conflict `json:"conflicts,omitempty"`

	// ResourceAllocation maps adapter name to the step indices it serves
	ResourceAllocation map[string][]int `json:"resource_allocation"`

	// TotalEstimatedCost sums the estimated tokens across all steps
	TotalEstimatedCost int `json:"total_estimated_cost"`

	// Metadata carries informational figures such as group counts
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// PlanParallel routes every step and arranges them into execution
// groups. Steps whose file claims conflict are isolated into singleton
// groups; the rest run together, with AI steps chunked to limit
// concurrent API calls.
func (r *Router) PlanParallel(steps []*workflow.Step, policy *workflow.Policy) *Plan {
	plan := &Plan{
		Decisions:          make([]*Decision, len(steps)),
		ResourceAllocation: make(map[string][]int),
	}

	claims := make([]scope.Claim, 0, len(steps))
	for i, step := range steps {
		decision := r.Route(step, policy)
		plan.Decisions[i] = decision
		plan.TotalEstimatedCost += decision.EstimatedTokens
		plan.ResourceAllocation[decision.AdapterName] = append(
			plan.ResourceAllocation[decision.AdapterName], i)

		if patterns := claimPatterns(step); len(patterns) > 0 {
			claims = append(claims, scope.Claim{
				Owner:    step.ID,
				Patterns: patterns,
				Mode:     step.EffectiveScopeMode(),
			})
		}
	}

	plan.Conflicts = r.scopes.DetectConflicts(claims)

	if len(plan.Conflicts) == 0 {
		plan.Groups = r.groupByKind(plan.Decisions)
	} else {
		plan.Groups = r.groupAroundConflicts(steps, plan.Conflicts)
	}

	plan.Metadata = map[string]interface{}{
		"group_count": len(plan.Groups),
		"step_count":  len(steps),
	}
	return plan
}

// claimPatterns merges the step's files with any file_scope parameter.
func claimPatterns(step *workflow.Step) []string {
	patterns := append([]string(nil), step.Files...)
	raw, ok := step.With["file_scope"]
	if !ok {
		return patterns
	}
	switch v := raw.(type) {
	case string:
		patterns = append(patterns, v)
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				patterns = append(patterns, s)
			}
		}
	case []string:
		patterns = append(patterns, v...)
	}
	return patterns
}

// groupByKind builds conflict-free groups: all deterministic steps
// together, AI steps chunked.
func (r *Router) groupByKind(decisions []*Decision) [][]int {
	var deterministic, ai []int
	for i, d := range decisions {
		if d.AdapterKind == adapter.KindAI {
			ai = append(ai, i)
		} else {
			deterministic = append(deterministic, i)
		}
	}

	var groups [][]int
	if len(deterministic) > 0 {
		groups = append(groups, deterministic)
	}
	for start := 0; start < len(ai); start += aiGroupSize {
		end := start + aiGroupSize
		if end > len(ai) {
			end = len(ai)
		}
		groups = append(groups, ai[start:end])
	}
	return groups
}

// groupAroundConflicts isolates every conflicted step into its own
// group and runs the remainder as one parallel group.
func (r *Router) groupAroundConflicts(steps []*workflow.Step, conflicts []scope.Conflict) [][]int {
	conflicted := make(map[string]bool)
	for _, c := range conflicts {
		for _, owner := range c.Owners {
			conflicted[owner] = true
		}
	}

	var groups [][]int
	var rest []int
	for i, step := range steps {
		if conflicted[step.ID] {
			groups = append(groups, []int{i})
		} else {
			rest = append(rest, i)
		}
	}
	if len(rest) > 0 {
		groups = append(groups, rest)
	}
	return groups
}
