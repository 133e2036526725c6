package workflow

import "time"

// StepResult is the immutable record of one step execution.
type StepResult struct {
	// StepID is the id of the executed step
	StepID string `json:"step_id"`

	// Success reports whether the step completed successfully
	Success bool `json:"success"`

	// Output is the step's primary text output
	Output string `json:"output,omitempty"`

	// Artifacts lists the paths the adapter reported producing
	Artifacts []string `json:"artifacts,omitempty"`

	// TokensUsed is the token spend reported by the adapter
	TokensUsed int `json:"tokens_used"`

	// ExecutionTime is the wall-clock duration of the step
	ExecutionTime time.Duration `json:"execution_time"`

	// Error holds the failure diagnostic when Success is false
	Error string `json:"error,omitempty"`

	// Metadata carries free-form execution details (dry_run, attempts,
	// routed adapter, skip reasons)
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Result aggregates one workflow run.
type Result struct {
	// RunID identifies the run, empty when the run never started
	RunID string `json:"run_id,omitempty"`

	// WorkflowName identifies the executed workflow
	WorkflowName string `json:"workflow_name"`

	// Success is true iff no executed step failed
	Success bool `json:"success"`

	// StepsExecuted counts steps that ran (including failures)
	StepsExecuted int `json:"steps_executed"`

	// StepsSucceeded counts steps that reported success
	StepsSucceeded int `json:"steps_succeeded"`

	// StepsFailed counts steps that reported failure
	StepsFailed int `json:"steps_failed"`

	// TotalTokens is the sum of per-step token usage
	TotalTokens int `json:"total_tokens"`

	// TotalTime is the wall-clock duration of the run
	TotalTime time.Duration `json:"total_time"`

	// StepResults holds per-step results in execution order
	StepResults []*StepResult `json:"step_results,omitempty"`

	// Artifacts concatenates step artifacts in execution order
	Artifacts []string `json:"artifacts,omitempty"`

	// Error holds a run-level failure (load or schema errors)
	Error string `json:"error,omitempty"`
}

// Aggregate builds a workflow result from per-step results.
// Success is true iff every executed step succeeded, independent of
// the fail-fast policy.
func Aggregate(name string, results []*StepResult, elapsed time.Duration) *Result {
	r := &Result{
		WorkflowName:  name,
		StepsExecuted: len(results),
		TotalTime:     elapsed,
		StepResults:   results,
	}
	for _, sr := range results {
		if sr.Success {
			r.StepsSucceeded++
		} else {
			r.StepsFailed++
		}
		r.TotalTokens += sr.TokensUsed
		r.Artifacts = append(r.Artifacts, sr.Artifacts...)
	}
	r.Success = r.StepsFailed == 0
	return r
}

// Failed builds a run-level failure result with zero counters.
// Used for document-load and schema errors, which never raise past the
// coordinator boundary.
func Failed(name string, err error) *Result {
	return &Result{
		WorkflowName: name,
		Success:      false,
		Error:        err.Error(),
	}
}
