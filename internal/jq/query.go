// Package jq evaluates jq expressions against artifact data for
// verification gates.
package jq

import (
	"context"
	"fmt"
	"time"

	"github.com/itchyny/gojq"
)

// DefaultTimeout bounds one query evaluation.
const DefaultTimeout = 1 * time.Second

// Runner compiles and runs jq expressions with a per-query timeout.
type Runner struct {
	timeout time.Duration
}

// NewRunner creates a runner. A zero timeout uses the default.
func NewRunner(timeout time.Duration) *Runner {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Runner{timeout: timeout}
}

// Query runs an expression against data. An empty expression returns
// the data unchanged. A single result is returned directly, multiple
// results as a slice, no results as nil.
func (r *Runner) Query(ctx context.Context, expression string, data interface{}) (interface{}, error) {
	if expression == "" {
		return data, nil
	}
	code, err := compile(expression)
	if err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	iter := code.RunWithContext(queryCtx, data)
	var results []interface{}
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("jq query failed: %w", err)
		}
		results = append(results, v)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// Validate checks an expression compiles. Used when gates are loaded
// so syntax errors surface before execution.
func (r *Runner) Validate(expression string) error {
	if expression == "" {
		return nil
	}
	_, err := compile(expression)
	return err
}

func compile(expression string) (*gojq.Code, error) {
	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression: %w", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("jq compilation failed: %w", err)
	}
	return code, nil
}
