package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies. Both are inert until
// their parameter is set.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		maxFeaturesPolicy(),
		forbiddenFeaturesPolicy(),
	}
}

// maxFeaturesPolicy warns about products larger than params.max_features.
func maxFeaturesPolicy() Policy {
	return Policy{
		Name:        "max-features",
		Description: "Warns when a product selects more features than params.max_features",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"size"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package mwpkit.policies.size

import rego.v1

deny contains violation if {
	limit := input.params.max_features
	n := count(input.configuration)
	n > limit
	violation := {
		"message": sprintf("product selects %v features, more than the limit of %v", [n, limit]),
		"severity": "warning",
		"remediation": "drop optional features or raise params.max_features",
	}
}
`,
	}
}

// forbiddenFeaturesPolicy rejects products containing any of params.forbidden.
func forbiddenFeaturesPolicy() Policy {
	return Policy{
		Name:        "forbidden-features",
		Description: "Rejects products that select a feature listed in params.forbidden",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"compliance"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package mwpkit.policies.forbidden

import rego.v1

deny contains violation if {
	some id in input.configuration
	id in input.params.forbidden
	violation := {
		"message": sprintf("feature %s is forbidden", [id]),
		"severity": "error",
		"remediation": sprintf("deselect %s", [id]),
	}
}
`,
	}
}
