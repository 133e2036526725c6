// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cost

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/dispatch/pkg/workflow"
)

// Usage is the input to one recording call.
type Usage struct {
	// Operation names what consumed the tokens
	Operation string

	// Tokens is the token count to record
	Tokens int

	// Model is the model identifier, empty for deterministic work
	Model string

	// Success records whether the operation succeeded
	Success bool

	// Attribution fields, all optional
	RunID          string
	WorkflowID     string
	CoordinationID string
	PhaseID        string
	AdapterName    string
}

// Tracker records token usage through a storage port and answers
// budget questions. Safe for concurrent use when the store is.
type Tracker struct {
	store  Store
	calc   *Calculator
	logger *slog.Logger
	now    func() time.Time
}

// NewTracker creates a tracker. A nil calculator gets a default one
// with no pricing registry.
func NewTracker(store Store, calc *Calculator) *Tracker {
	if calc == nil {
		calc = NewCalculator(nil)
	}
	return &Tracker{
		store:  store,
		calc:   calc,
		logger: slog.Default(),
		now:    time.Now,
	}
}

// WithLogger sets a custom logger.
func (t *Tracker) WithLogger(logger *slog.Logger) *Tracker {
	if logger != nil {
		t.logger = logger
	}
	return t
}

// WithClock replaces the time source. Tests pin it.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	if now != nil {
		t.now = now
	}
	return t
}

// Record appends one usage record, pricing it via the calculator.
func (t *Tracker) Record(ctx context.Context, usage Usage) (Record, error) {
	record := Record{
		ID:             uuid.New().String(),
		Timestamp:      t.now(),
		Operation:      usage.Operation,
		TokensUsed:     usage.Tokens,
		EstimatedCost:  t.calc.Cost(usage.Model, usage.Tokens),
		Model:          usage.Model,
		Success:        usage.Success,
		RunID:          usage.RunID,
		WorkflowID:     usage.WorkflowID,
		CoordinationID: usage.CoordinationID,
		PhaseID:        usage.PhaseID,
		AdapterName:    usage.AdapterName,
	}
	if err := t.store.Save(ctx, record); err != nil {
		return Record{}, err
	}
	return record, nil
}

// DailyUsage sums tokens and cost over the records of one date
// (YYYY-MM-DD).
func (t *Tracker) DailyUsage(ctx context.Context, date string) (DailyUsage, error) {
	records, err := t.store.IterByDate(ctx, date)
	if err != nil {
		return DailyUsage{}, err
	}
	usage := DailyUsage{Date: date, Operations: make(map[string]int)}
	for _, r := range records {
		usage.TotalTokens += r.TokensUsed
		usage.TotalCost += r.EstimatedCost
		usage.Operations[r.Operation]++
	}
	return usage, nil
}

// CheckBudget projects spending tokens against the limit. workflowID
// scopes the per-workflow check; empty means that check passes.
func (t *Tracker) CheckBudget(ctx context.Context, limit BudgetLimit, tokens int, model, workflowID string) (BudgetCheck, error) {
	today, err := t.DailyUsage(ctx, t.now().UTC().Format("2006-01-02"))
	if err != nil {
		return BudgetCheck{}, err
	}

	projectedTokens := today.TotalTokens + tokens
	projectedCost := today.TotalCost + t.calc.Cost(model, tokens)

	check := BudgetCheck{
		WithinDailyTokenLimit: limit.DailyTokenLimit <= 0 || projectedTokens <= limit.DailyTokenLimit,
		WithinDailyCostLimit:  limit.DailyCostLimit <= 0 || projectedCost <= limit.DailyCostLimit,
		WithinWorkflowLimit:   true,
		ProjectedTokens:       projectedTokens,
		ProjectedCost:         projectedCost,
	}
	if limit.DailyCostLimit > 0 {
		check.WarnIfOver = projectedCost >= limit.DailyCostLimit*limit.WarnFraction()
	}

	if limit.PerWorkflowLimit > 0 && workflowID != "" {
		all, err := t.store.IterAll(ctx)
		if err != nil {
			return BudgetCheck{}, err
		}
		workflowTokens := tokens
		for _, r := range all {
			if r.WorkflowID == workflowID {
				workflowTokens += r.TokensUsed
			}
		}
		check.WithinWorkflowLimit = workflowTokens <= limit.PerWorkflowLimit
	}
	return check, nil
}

// complexityFactor scores how much budget a workflow deserves beyond
// its priority.
func complexityFactor(def *workflow.Definition) float64 {
	factor := 1.0
	factor += 0.2 * float64(len(def.Phases))

	ipt := false
	for _, phase := range def.Phases {
		if phase.Role == "ipt" {
			ipt = true
			break
		}
	}
	if ipt {
		factor += 0.5
	}

	steps := def.AllSteps()
	if len(def.Phases) == 0 {
		factor += 0.1 * float64(len(steps))
	}
	for i := range steps {
		if strings.HasPrefix(steps[i].Actor, "ai_") {
			factor += 0.3
		}
	}
	if len(def.Metadata.FileScopePatterns()) > 10 {
		factor += 0.4
	}
	return factor
}

// AllocateCoordinationBudget splits a shared budget across workflows
// proportionally to priority weight times complexity factor. Each
// allocation is capped at per_workflow_budget and the sum never
// exceeds total_budget minus emergency_reserve. When every score is
// zero the pool splits evenly.
func (t *Tracker) AllocateCoordinationBudget(workflows []*workflow.Definition, budget CoordinationBudget) map[string]float64 {
	pool := budget.Allocatable()
	allocations := make(map[string]float64, len(workflows))
	if len(workflows) == 0 || pool <= 0 {
		return allocations
	}

	scores := make(map[string]float64, len(workflows))
	total := 0.0
	for _, def := range workflows {
		score := budget.MultiplierFor(def.Metadata.PriorityOrDefault()) * complexityFactor(def)
		scores[def.Name] = score
		total += score
	}

	for _, def := range workflows {
		var share float64
		if total > 0 {
			share = pool * scores[def.Name] / total
		} else {
			share = pool / float64(len(workflows))
		}
		if pinned, ok := budget.Allocations[def.Name]; ok {
			share = pinned
		}
		if budget.PerWorkflowBudget > 0 && share > budget.PerWorkflowBudget {
			share = budget.PerWorkflowBudget
		}
		allocations[def.Name] = share
	}

	// Pinned amounts may push the sum past the pool; scale back down.
	sum := 0.0
	for _, a := range allocations {
		sum += a
	}
	if sum > pool {
		scale := pool / sum
		for name := range allocations {
			allocations[name] *= scale
		}
	}
	return allocations
}

// PhaseBreakdown totals usage within one phase.
type PhaseBreakdown struct {
	Tokens     int     `json:"tokens"`
	Cost       float64 `json:"cost"`
	Operations int     `json:"operations"`
}

// WorkflowTotals aggregates one workflow's usage.
type WorkflowTotals struct {
	Tokens     int                       `json:"tokens"`
	Cost       float64                   `json:"cost"`
	Operations map[string]int            `json:"operations"`
	Phases     map[string]PhaseBreakdown `json:"phases,omitempty"`
}

// CoordinationSummary aggregates usage across a coordinated run.
type CoordinationSummary struct {
	CoordinationID string                     `json:"coordination_id"`
	TotalTokens    int                        `json:"total_tokens"`
	TotalCost      float64                    `json:"total_cost"`
	Workflows      map[string]*WorkflowTotals `json:"workflows"`
}

// Summarize aggregates the records of one coordination id, grouped by
// workflow and phase.
func (t *Tracker) Summarize(ctx context.Context, coordinationID string) (*CoordinationSummary, error) {
	records, err := t.store.IterByCoordination(ctx, coordinationID)
	if err != nil {
		return nil, err
	}
	summary := &CoordinationSummary{
		CoordinationID: coordinationID,
		Workflows:      make(map[string]*WorkflowTotals),
	}
	for _, r := range records {
		summary.TotalTokens += r.TokensUsed
		summary.TotalCost += r.EstimatedCost

		totals, ok := summary.Workflows[r.WorkflowID]
		if !ok {
			totals = &WorkflowTotals{
				Operations: make(map[string]int),
				Phases:     make(map[string]PhaseBreakdown),
			}
			summary.Workflows[r.WorkflowID] = totals
		}
		totals.Tokens += r.TokensUsed
		totals.Cost += r.EstimatedCost
		totals.Operations[r.Operation]++
		if r.PhaseID != "" {
			phase := totals.Phases[r.PhaseID]
			phase.Tokens += r.TokensUsed
			phase.Cost += r.EstimatedCost
			phase.Operations++
			totals.Phases[r.PhaseID] = phase
		}
	}
	return summary, nil
}

// WorkflowSummary reports one workflow's usage, optionally scoped to a
// coordination, with its remaining allocation.
type WorkflowSummary struct {
	WorkflowID          string                    `json:"workflow_id"`
	TotalTokens         int                       `json:"total_tokens"`
	TotalCost           float64                   `json:"total_cost"`
	Operations          map[string]int            `json:"operations"`
	SuccessRate         float64                   `json:"success_rate"`
	Phases              map[string]PhaseBreakdown `json:"phases,omitempty"`
	Allocation          float64                   `json:"allocation,omitempty"`
	RemainingAllocation float64                   `json:"remaining_allocation,omitempty"`
}

// SummarizeWorkflow aggregates a workflow's records. coordinationID
// may be empty; allocation of 0 means unallocated.
func (t *Tracker) SummarizeWorkflow(ctx context.Context, workflowID, coordinationID string, allocation float64) (*WorkflowSummary, error) {
	var records []Record
	var err error
	if coordinationID != "" {
		records, err = t.store.IterByCoordination(ctx, coordinationID)
	} else {
		records, err = t.store.IterAll(ctx)
	}
	if err != nil {
		return nil, err
	}

	summary := &WorkflowSummary{
		WorkflowID: workflowID,
		Operations: make(map[string]int),
		Phases:     make(map[string]PhaseBreakdown),
		Allocation: allocation,
	}
	succeeded := 0
	matched := 0
	for _, r := range records {
		if r.WorkflowID != workflowID {
			continue
		}
		matched++
		if r.Success {
			succeeded++
		}
		summary.TotalTokens += r.TokensUsed
		summary.TotalCost += r.EstimatedCost
		summary.Operations[r.Operation]++
		if r.PhaseID != "" {
			phase := summary.Phases[r.PhaseID]
			phase.Tokens += r.TokensUsed
			phase.Cost += r.EstimatedCost
			phase.Operations++
			summary.Phases[r.PhaseID] = phase
		}
	}
	if matched > 0 {
		summary.SuccessRate = float64(succeeded) / float64(matched)
	}
	if allocation > 0 {
		summary.RemainingAllocation = allocation - summary.TotalCost
		if summary.RemainingAllocation < 0 {
			summary.RemainingAllocation = 0
		}
	}
	return summary, nil
}

// OptimizeRemaining splits the unconsumed budget of a coordinated run
// evenly across the workflows still to run, capped per workflow.
func (t *Tracker) OptimizeRemaining(ctx context.Context, budget CoordinationBudget, coordinationID string, pending []string) (map[string]float64, error) {
	allocations := make(map[string]float64, len(pending))
	if len(pending) == 0 {
		return allocations, nil
	}

	records, err := t.store.IterByCoordination(ctx, coordinationID)
	if err != nil {
		return nil, err
	}
	consumed := 0.0
	for _, r := range records {
		consumed += r.EstimatedCost
	}

	remaining := budget.Allocatable() - consumed
	if remaining <= 0 {
		for _, name := range pending {
			allocations[name] = 0
		}
		return allocations, nil
	}

	share := remaining / float64(len(pending))
	if budget.PerWorkflowBudget > 0 && share > budget.PerWorkflowBudget {
		share = budget.PerWorkflowBudget
	}
	for _, name := range pending {
		allocations[name] = share
	}
	return allocations, nil
}
