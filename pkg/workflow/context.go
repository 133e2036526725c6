package workflow

// Context carries shared state through one workflow run: the inputs and
// policy of the workflow plus the results of already-executed steps.
// Methods are safe for concurrent reads but NOT safe for concurrent
// writes. The coordinator serializes mutations; parallel group runners
// must collect results and write them after the group completes.
type Context struct {
	// RunID uniquely identifies this run, assigned by the coordinator
	RunID string

	// WorkflowName identifies the owning workflow
	WorkflowName string

	// Inputs are the workflow's declared inputs
	Inputs map[string]interface{}

	// Policy is the workflow policy in effect
	Policy *Policy

	// StepResults maps step id to the result of that step, populated as
	// steps complete so later steps can reference prior outputs
	StepResults map[string]*StepResult

	// Extra holds caller-supplied context merged in at run start
	Extra map[string]interface{}
}

// NewContext creates a run context for the given definition, merging in
// any extra caller-supplied values.
func NewContext(def *Definition, extra map[string]interface{}) *Context {
	inputs := def.Inputs
	if inputs == nil {
		inputs = make(map[string]interface{})
	}
	c := &Context{
		WorkflowName: def.Name,
		Inputs:       inputs,
		Policy:       def.Policy,
		StepResults:  make(map[string]*StepResult),
		Extra:        make(map[string]interface{}, len(extra)),
	}
	for k, v := range extra {
		c.Extra[k] = v
	}
	return c
}

// SetStepResult records a step result. Not safe for concurrent writes.
func (c *Context) SetStepResult(stepID string, result *StepResult) {
	c.StepResults[stepID] = result
}

// StepResultFor returns the recorded result for a step id, nil when the
// step has not run.
func (c *Context) StepResultFor(stepID string) *StepResult {
	return c.StepResults[stepID]
}

// ExpressionEnv builds the environment exposed to `when` condition
// expressions: workflow inputs, prior step results keyed by id, and the
// workflow name.
func (c *Context) ExpressionEnv() map[string]interface{} {
	steps := make(map[string]interface{}, len(c.StepResults))
	for id, r := range c.StepResults {
		steps[id] = map[string]interface{}{
			"success":   r.Success,
			"output":    r.Output,
			"artifacts": r.Artifacts,
			"tokens":    r.TokensUsed,
			"error":     r.Error,
		}
	}
	env := map[string]interface{}{
		"workflow": c.WorkflowName,
		"inputs":   c.Inputs,
		"steps":    steps,
	}
	for k, v := range c.Extra {
		if _, reserved := env[k]; !reserved {
			env[k] = v
		}
	}
	return env
}
