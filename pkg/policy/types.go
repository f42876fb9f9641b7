package policy

import (
	"time"

	"github.com/openfroyo/mwpkit/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for products that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError marks a product as not allowed.
	SeverityError Severity = "error"

	// SeverityCritical marks a product as not allowed and must be addressed first.
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// Blocking reports whether a violation of this severity disallows a product.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. Violations are the members of
	// the package's deny set.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Builtin marks policies shipped with mwpkit. Reloads keep them.
	Builtin bool `json:"builtin"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// PolicyInput is the Rego input document.
type PolicyInput struct {
	// Configuration lists the selected feature identifiers, sorted.
	Configuration []string `json:"configuration"`

	// Model describes the feature model the configuration belongs to.
	Model *ModelInput `json:"model"`

	// Params are the user-supplied policy parameters.
	Params map[string]interface{} `json:"params"`

	// Context provides additional evaluation context.
	Context *PolicyContext `json:"context"`
}

// ModelInput is the model part of the Rego input.
type ModelInput struct {
	ID          string         `json:"id"`
	Root        string         `json:"root"`
	Features    []FeatureInput `json:"features"`
	Constraints int            `json:"constraints"`
}

// FeatureInput describes one feature of the model.
type FeatureInput struct {
	ID     string `json:"id"`
	Parent string `json:"parent,omitempty"`
	Kind   string `json:"kind"`
	Depth  int    `json:"depth"`
}

// PolicyContext provides context information for policy evaluation.
type PolicyContext struct {
	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	// Operation names what produced the configuration: "translate" or
	// "mwp" for enumerated products, "validate" for a caller's selection.
	Operation string `json:"operation,omitempty"`
}

// newModelInput summarises model for policy input.
func newModelInput(model *engine.FeatureModel) *ModelInput {
	ids := model.Tree.IDs()
	features := make([]FeatureInput, 0, len(ids))
	for _, id := range ids {
		f, _ := model.Tree.Feature(id)
		features = append(features, FeatureInput{
			ID:     f.ID,
			Parent: f.Parent,
			Kind:   string(f.Kind),
			Depth:  f.Depth,
		})
	}
	return &ModelInput{
		ID:          model.ID,
		Root:        model.Tree.Root().ID,
		Features:    features,
		Constraints: len(model.Constraints),
	}
}
