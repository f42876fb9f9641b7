package engine

import (
	"context"
	"time"
)

// LogicSuggester proposes logic for constraints that have none.
// Suggestions are only used when a caller opts in.
type LogicSuggester interface {
	// Suggest returns logic for as many of the given ordinals as it can.
	// Ordinals it cannot handle are left out of the mapping.
	Suggest(ctx context.Context, model *FeatureModel, ordinals []int) (LogicMapping, error)

	// Name identifies the suggester in logs and responses.
	Name() string
}

// PolicyEngine evaluates product policies against configurations.
// Policies annotate results; they never change validity.
type PolicyEngine interface {
	// EvaluateConfigurations evaluates all enabled policies against each
	// configuration that operation produced from model. There is one
	// result per configuration, in order.
	EvaluateConfigurations(ctx context.Context, model *FeatureModel, operation string, cfgs []Configuration) ([]*PolicyResult, error)

	// LoadPolicies loads policy files from the given paths.
	LoadPolicies(ctx context.Context, paths []string) error
}

// PolicyViolation represents a policy violation.
type PolicyViolation struct {
	Policy        string `json:"policy"`
	Configuration string `json:"configuration"`
	Message       string `json:"message"`
	Severity      string `json:"severity"`
	Remediation   string `json:"remediation,omitempty"`
}

// PolicyResult is the outcome of evaluating policies against one configuration.
type PolicyResult struct {
	// Allowed is false when any violation has error or critical severity.
	Allowed     bool              `json:"allowed"`
	Violations  []PolicyViolation `json:"violations,omitempty"`
	Warnings    []string          `json:"warnings,omitempty"`
	EvaluatedAt time.Time         `json:"evaluated_at"`
}
