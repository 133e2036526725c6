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

// Package cost records token usage and evaluates budgets.
//
// The tracker appends one usage record per operation through a storage
// port, converts tokens to USD via the calculator, and answers budget
// questions for single workflows and coordinated multi-workflow runs.
package cost

import "time"

// Record is one append-only token usage entry.
type Record struct {
	// ID uniquely identifies the record
	ID string `json:"id"`

	// Timestamp is when the usage was recorded
	Timestamp time.Time `json:"timestamp"`

	// Operation names what consumed the tokens (usually the step actor)
	Operation string `json:"operation"`

	// TokensUsed is the token count, never negative
	TokensUsed int `json:"tokens_used"`

	// EstimatedCost is the USD conversion at recording time
	EstimatedCost float64 `json:"estimated_cost"`

	// Model is the model identifier, empty for deterministic work
	Model string `json:"model,omitempty"`

	// Success records whether the operation succeeded
	Success bool `json:"success"`

	// RunID attributes the usage to one workflow run
	RunID string `json:"run_id,omitempty"`

	// WorkflowID attributes the usage to a workflow
	WorkflowID string `json:"workflow_id,omitempty"`

	// CoordinationID attributes the usage to a coordinated run
	CoordinationID string `json:"coordination_id,omitempty"`

	// PhaseID attributes the usage to a phase within the workflow
	PhaseID string `json:"phase_id,omitempty"`

	// AdapterName is the adapter that performed the operation
	AdapterName string `json:"adapter_name,omitempty"`
}

// Date returns the record's UTC date in YYYY-MM-DD form. Daily
// bucketing is UTC across every store, matching the timestamps the
// SQLite store persists.
func (r Record) Date() string {
	return r.Timestamp.UTC().Format("2006-01-02")
}

// BudgetLimit configures daily and per-workflow spending caps. Zero
// values mean unlimited.
type BudgetLimit struct {
	// DailyTokenLimit caps tokens spent per calendar day
	DailyTokenLimit int `yaml:"daily_token_limit" json:"daily_token_limit"`

	// DailyCostLimit caps USD spent per calendar day
	DailyCostLimit float64 `yaml:"daily_cost_limit" json:"daily_cost_limit"`

	// PerWorkflowLimit caps tokens spent by a single workflow
	PerWorkflowLimit int `yaml:"per_workflow_limit" json:"per_workflow_limit"`

	// WarnThreshold is the fraction of the daily cost limit at which a
	// warning fires (default 0.8)
	WarnThreshold float64 `yaml:"warn_threshold" json:"warn_threshold"`
}

// WarnFraction returns the warn threshold, defaulting to 0.8.
func (b BudgetLimit) WarnFraction() float64 {
	if b.WarnThreshold <= 0 {
		return 0.8
	}
	return b.WarnThreshold
}

// BudgetCheck is the outcome of projecting a spend against a limit.
type BudgetCheck struct {
	WithinDailyTokenLimit bool `json:"within_daily_token_limit"`
	WithinDailyCostLimit  bool `json:"within_daily_cost_limit"`
	WithinWorkflowLimit   bool `json:"within_workflow_limit"`
	WarnIfOver            bool `json:"warn_if_over"`

	// ProjectedTokens is today's tokens plus the proposed spend
	ProjectedTokens int `json:"projected_tokens"`

	// ProjectedCost is today's cost plus the proposed spend in USD
	ProjectedCost float64 `json:"projected_cost"`
}

// Allowed reports whether all limits hold.
func (c BudgetCheck) Allowed() bool {
	return c.WithinDailyTokenLimit && c.WithinDailyCostLimit && c.WithinWorkflowLimit
}

// CoordinationBudget caps a coordinated multi-workflow run.
type CoordinationBudget struct {
	// TotalBudget is the shared token pool for the whole run
	TotalBudget float64 `yaml:"total_budget" json:"total_budget"`

	// PerWorkflowBudget caps any single workflow's allocation
	PerWorkflowBudget float64 `yaml:"per_workflow_budget" json:"per_workflow_budget"`

	// EmergencyReserve is withheld from allocation entirely
	EmergencyReserve float64 `yaml:"emergency_reserve" json:"emergency_reserve"`

	// Allocations optionally pins specific workflows to fixed amounts
	Allocations map[string]float64 `yaml:"allocations,omitempty" json:"allocations,omitempty"`

	// PriorityMultipliers maps workflow priority (1..5) to a budget
	// weight; missing entries use the defaults
	PriorityMultipliers map[int]float64 `yaml:"priority_multipliers,omitempty" json:"priority_multipliers,omitempty"`
}

// defaultPriorityMultipliers weight priorities 1..5.
var defaultPriorityMultipliers = map[int]float64{
	1: 0.5,
	2: 0.8,
	3: 1.0,
	4: 1.5,
	5: 2.0,
}

// MultiplierFor returns the budget weight for a priority.
func (b CoordinationBudget) MultiplierFor(priority int) float64 {
	if m, ok := b.PriorityMultipliers[priority]; ok {
		return m
	}
	if m, ok := defaultPriorityMultipliers[priority]; ok {
		return m
	}
	return 1.0
}

// Allocatable returns the pool available for allocation.
func (b CoordinationBudget) Allocatable() float64 {
	pool := b.TotalBudget - b.EmergencyReserve
	if pool < 0 {
		return 0
	}
	return pool
}

// DailyUsage summarizes one calendar day.
type DailyUsage struct {
	// Date is the day in YYYY-MM-DD form
	Date string `json:"date"`

	// TotalTokens sums tokens_used across the day's records
	TotalTokens int `json:"total_tokens"`

	// TotalCost sums estimated_cost across the day's records
	TotalCost float64 `json:"total_cost"`

	// Operations counts records per operation name
	Operations map[string]int `json:"operations"`
}
