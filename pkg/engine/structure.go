package engine

import (
	"fmt"
	"strings"
)

// Rule names the kind of rule a configuration can violate.
type Rule string

const (
	RuleUnknownFeature   Rule = "unknown-feature"
	RuleRoot             Rule = "root"
	RuleMandatory        Rule = "mandatory"
	RuleParent           Rule = "parent"
	RuleOrGroup          Rule = "or-group"
	RuleAlternativeGroup Rule = "alternative-group"
	RuleConstraint       Rule = "constraint"
)

// RuleID builds the identifier of a concrete rule, such as "mandatory:Engine".
func RuleID(rule Rule, subject string) string {
	return string(rule) + ":" + subject
}

// StructuralRule is one structural constraint of the feature tree written
// as a propositional formula.
type StructuralRule struct {
	RuleID  string   `json:"rule"`
	Rule    Rule     `json:"kind"`
	Formula *Formula `json:"-"`
}

// Logic returns the canonical text of the rule's formula.
func (r StructuralRule) Logic() string {
	return r.Formula.String()
}

// StructuralRules renders the tree as propositional formulas, in pre-order:
// the root is selected, every child implies its parent, a selected parent
// implies its mandatory children and at least one member of each group,
// and alternative members exclude each other pairwise.
func StructuralRules(tree *FeatureTree) []StructuralRule {
	var rules []StructuralRule
	add := func(rule Rule, subject, text string) {
		rules = append(rules, StructuralRule{
			RuleID:  RuleID(rule, subject),
			Rule:    rule,
			Formula: MustParseFormula(text),
		})
	}

	root := tree.Root()
	add(RuleRoot, root.ID, root.ID)

	for _, id := range tree.IDs() {
		f, _ := tree.Feature(id)
		if !f.IsRoot() {
			add(RuleParent, f.ID, fmt.Sprintf("%s -> %s", f.ID, f.Parent))
		}
		for _, c := range tree.Children(id) {
			if c.Kind == KindMandatory {
				add(RuleMandatory, c.ID, fmt.Sprintf("%s -> %s", id, c.ID))
			}
		}
		for _, g := range tree.Groups(id) {
			rule := RuleOrGroup
			if g.Kind == KindAlternative {
				rule = RuleAlternativeGroup
			}
			add(rule, g.Name(), fmt.Sprintf("%s -> (%s)", id, strings.Join(g.Members, " | ")))
			if g.Kind == KindAlternative {
				for i := 0; i < len(g.Members); i++ {
					for j := i + 1; j < len(g.Members); j++ {
						add(rule, g.Name(), fmt.Sprintf("!(%s & %s)", g.Members[i], g.Members[j]))
					}
				}
			}
		}
	}
	return rules
}

// PropositionalLogic returns the canonical text of every structural rule.
func PropositionalLogic(tree *FeatureTree) []string {
	rules := StructuralRules(tree)
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.Logic()
	}
	return out
}
