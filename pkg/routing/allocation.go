package routing

import (
	"sort"

	"github.com/tombee/dispatch/pkg/workflow"
)

// usdPerKiloToken converts routed token estimates to USD for
// cross-workflow planning.
const usdPerKiloToken = 0.0005

// WorkflowEstimate is the routed cost projection for one workflow.
type WorkflowEstimate struct {
	// Name is the workflow name
	Name string `json:"name"`

	// Priority is the workflow's coordination priority, 1..5
	Priority int `json:"priority"`

	// Steps is the number of routed units
	Steps int `json:"steps"`

	// EstimatedTokens sums the per-step routed estimates
	EstimatedTokens int `json:"estimated_tokens"`

	// EstimatedUSD converts the token total at the fixed planning rate
	EstimatedUSD float64 `json:"estimated_usd"`
}

// AllocationPlan projects routed cost across several workflows and
// orders them for execution by priority.
type AllocationPlan struct {
	// Workflows holds the per-workflow estimates, keyed by name
	Workflows map[string]*WorkflowEstimate `json:"workflows"`

	// TotalTokens sums tokens across all workflows
	TotalTokens int `json:"total_tokens"`

	// TotalUSD sums the USD conversion across all workflows
	TotalUSD float64 `json:"total_usd"`

	// BudgetUSD echoes the optional planning budget, 0 when unset
	BudgetUSD float64 `json:"budget_usd,omitempty"`

	// WithinBudget reports whether the projection fits the budget;
	// always true when no budget was given
	WithinBudget bool `json:"within_budget"`

	// PriorityGroups lists workflow names grouped by priority, highest
	// priority first; workflows in one group may run concurrently
	PriorityGroups [][]string `json:"priority_groups"`
}

// PlanAllocation routes every step of every workflow, totals the
// projected spend, and groups workflows by priority. budgetUSD of 0
// means unbudgeted.
func (r *Router) PlanAllocation(workflows []*workflow.Definition, budgetUSD float64) *AllocationPlan {
	plan := &AllocationPlan{
		Workflows: make(map[string]*WorkflowEstimate, len(workflows)),
		BudgetUSD: budgetUSD,
	}

	byPriority := make(map[int][]string)
	for _, def := range workflows {
		est := &WorkflowEstimate{
			Name:     def.Name,
			Priority: def.Metadata.PriorityOrDefault(),
		}
		steps := def.AllSteps()
		for i := range steps {
			decision := r.Route(&steps[i], def.Policy)
			est.EstimatedTokens += decision.EstimatedTokens
			est.Steps++
		}
		est.EstimatedUSD = float64(est.EstimatedTokens) * usdPerKiloToken / 1000

		plan.Workflows[def.Name] = est
		plan.TotalTokens += est.EstimatedTokens
		plan.TotalUSD += est.EstimatedUSD
		byPriority[est.Priority] = append(byPriority[est.Priority], def.Name)
	}

	priorities := make([]int, 0, len(byPriority))
	for p := range byPriority {
		priorities = append(priorities, p)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(priorities)))
	for _, p := range priorities {
		names := byPriority[p]
		sort.Strings(names)
		plan.PriorityGroups = append(plan.PriorityGroups, names)
	}

	plan.WithinBudget = budgetUSD <= 0 || plan.TotalUSD <= budgetUSD
	return plan
}
