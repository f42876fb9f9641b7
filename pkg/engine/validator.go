package engine

import (
	"fmt"
	"strings"
)

// Violation describes one broken rule.
type Violation struct {
	// Rule is the kind of rule that failed.
	Rule Rule `json:"rule"`

	// RuleID identifies the concrete rule, e.g. "constraint:1".
	RuleID string `json:"ruleId"`

	// Feature is the feature the rule is about, empty for cross-tree constraints.
	Feature string `json:"feature,omitempty"`

	// Ordinal is the constraint ordinal for cross-tree violations, otherwise NoOrdinal.
	Ordinal int `json:"ordinal"`

	// Message is a human-readable explanation.
	Message string `json:"message"`
}

// ValidationResult is the outcome of validating one configuration.
type ValidationResult struct {
	Valid     bool       `json:"valid"`
	Violation *Violation `json:"violation,omitempty"`
}

// Reason returns the violation message, or an empty string when valid.
func (r ValidationResult) Reason() string {
	if r.Violation == nil {
		return ""
	}
	return r.Violation.Message
}

// Validate checks cfg against the structural rules and every cross-tree
// constraint of model, in this order: unknown identifiers, mandatory
// features, parent presence, group cardinality, constraints by ordinal.
// It stops at the first violation.
func Validate(model *FeatureModel, cfg Configuration) (ValidationResult, error) {
	if err := model.requireTranslated(); err != nil {
		return ValidationResult{}, err
	}
	var first *Violation
	check(model, cfg, func(v Violation) bool {
		first = &v
		return false
	})
	if first == nil {
		return ValidationResult{Valid: true}, nil
	}
	return ValidationResult{Valid: false, Violation: first}, nil
}

// ValidateAll returns every violation of cfg in the same order Validate
// uses, for diagnostics.
func ValidateAll(model *FeatureModel, cfg Configuration) ([]Violation, error) {
	if err := model.requireTranslated(); err != nil {
		return nil, err
	}
	var all []Violation
	check(model, cfg, func(v Violation) bool {
		all = append(all, v)
		return true
	})
	return all, nil
}

// check reports violations to report until it returns false.
func check(model *FeatureModel, cfg Configuration, report func(Violation) bool) {
	tree := model.Tree

	for _, id := range cfg.Features() {
		if !tree.Has(id) {
			if !report(Violation{
				Rule:    RuleUnknownFeature,
				RuleID:  RuleID(RuleUnknownFeature, id),
				Feature: id,
				Ordinal: NoOrdinal,
				Message: fmt.Sprintf("feature %q does not exist in the model", id),
			}) {
				return
			}
		}
	}

	order := tree.IDs()

	for _, id := range order {
		f, _ := tree.Feature(id)
		if f.IsRoot() {
			if !cfg.Has(id) && !report(Violation{
				Rule:    RuleMandatory,
				RuleID:  RuleID(RuleMandatory, id),
				Feature: id,
				Ordinal: NoOrdinal,
				Message: fmt.Sprintf("root feature %q must be selected", id),
			}) {
				return
			}
			continue
		}
		if f.Kind == KindMandatory && cfg.Has(f.Parent) && !cfg.Has(id) {
			if !report(Violation{
				Rule:    RuleMandatory,
				RuleID:  RuleID(RuleMandatory, id),
				Feature: id,
				Ordinal: NoOrdinal,
				Message: fmt.Sprintf("mandatory feature %q is missing although its parent %q is selected", id, f.Parent),
			}) {
				return
			}
		}
	}

	for _, id := range order {
		f, _ := tree.Feature(id)
		if !f.IsRoot() && cfg.Has(id) && !cfg.Has(f.Parent) {
			if !report(Violation{
				Rule:    RuleParent,
				RuleID:  RuleID(RuleParent, id),
				Feature: id,
				Ordinal: NoOrdinal,
				Message: fmt.Sprintf("feature %q is selected but its parent %q is not", id, f.Parent),
			}) {
				return
			}
		}
	}

	for _, g := range tree.AllGroups() {
		if !cfg.Has(g.Parent) {
			continue
		}
		var selected []string
		for _, m := range g.Members {
			if cfg.Has(m) {
				selected = append(selected, m)
			}
		}
		var v *Violation
		switch {
		case g.Kind == KindOr && len(selected) == 0:
			v = &Violation{
				Rule:    RuleOrGroup,
				Message: fmt.Sprintf("or-group under %q requires at least one of [%s]", g.Parent, strings.Join(g.Members, ", ")),
			}
		case g.Kind == KindAlternative && len(selected) != 1:
			msg := fmt.Sprintf("alternative-group under %q requires exactly one of [%s]", g.Parent, strings.Join(g.Members, ", "))
			if len(selected) > 1 {
				msg += fmt.Sprintf(", found [%s]", strings.Join(selected, ", "))
			}
			v = &Violation{Rule: RuleAlternativeGroup, Message: msg}
		}
		if v != nil {
			v.RuleID = RuleID(v.Rule, g.Name())
			v.Feature = g.Parent
			v.Ordinal = NoOrdinal
			if !report(*v) {
				return
			}
		}
	}

	for _, c := range model.Constraints {
		if !Evaluate(c.formula, cfg) {
			if !report(Violation{
				Rule:    RuleConstraint,
				RuleID:  RuleID(RuleConstraint, fmt.Sprint(c.Ordinal)),
				Ordinal: c.Ordinal,
				Message: fmt.Sprintf("constraint %d violated: %q (%s)", c.Ordinal, c.EnglishStatement, c.formula.Source()),
			}) {
				return
			}
		}
	}
}
