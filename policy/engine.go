// Package policy evaluates handoff-transition policy with OPA. The
// dispatcher consults it on every control transfer, independent of the
// topology adjacency check.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.handoff_policy.decision"),
		rego.Module("handoff_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}
	return &Engine{query: query}, nil
}

// HandoffInput is the evaluation input for one proposed transition.
type HandoffInput struct {
	From             string `json:"from"`
	FromCategory     string `json:"from_category"`
	To               string `json:"to"`
	ToCategory       string `json:"to_category"`
	ToExecutionCount int    `json:"to_execution_count"`
	ToTurnLimit      int    `json:"to_turn_limit"`
}

// Evaluate checks one handoff. Returns the decision string: allow or deny.
func (e *Engine) Evaluate(ctx context.Context, input HandoffInput) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return "allow", nil
	}
	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return "allow", nil
}

// DefaultPolicy enforces the coordinator-hub invariants: specialists may
// only hand control back to a coordinator, and nobody exceeds their
// turn limit.
const DefaultPolicy = `
package handoff_policy

default decision := "allow"

decision := "deny" if {
	input.from_category == "specialist"
	input.to_category == "specialist"
}

decision := "deny" if {
	input.to_execution_count >= input.to_turn_limit
}
`
