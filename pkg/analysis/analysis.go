// Package analysis answers whole-model questions about a translated feature
// model with a SAT solver: whether any product exists, which rules conflict,
// which features are core or dead, and whether a partial selection can be
// completed.
package analysis

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/go-air/gini"
	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/z"
	"github.com/rs/zerolog"

	"github.com/openfroyo/mwpkit/pkg/engine"
)

const (
	satisfiable   = 1
	unsatisfiable = -1
)

// Report summarises a model.
type Report struct {
	ModelID      string   `json:"modelId"`
	Void         bool     `json:"void"`
	Conflicts    []string `json:"conflicts,omitempty"`
	CoreFeatures []string `json:"coreFeatures"`
	DeadFeatures []string `json:"deadFeatures"`
}

// Explanation is the answer to whether a partial selection can be completed.
type Explanation struct {
	// Satisfiable is true when a valid configuration contains every
	// selected feature and none of the excluded ones.
	Satisfiable bool `json:"satisfiable"`

	// Completion is one such configuration.
	Completion *engine.Configuration `json:"completion,omitempty"`

	// Conflicts lists the rules that cannot hold together with the selection.
	Conflicts []string `json:"conflicts,omitempty"`

	// Blocking lists the selected or excluded features involved in the conflict.
	Blocking []string `json:"blocking,omitempty"`
}

// guard ties an assumption literal to the rule it enables.
type guard struct {
	lit  z.Lit
	rule string
}

// Analyzer holds the circuit encoding of one model. Every structural rule
// and cross-tree constraint is enabled by its own guard literal, so an
// unsatisfiable core can be read back as rule identifiers.
type Analyzer struct {
	model  *engine.FeatureModel
	ids    []string
	lits   map[string]z.Lit
	guards []guard
	rules  map[z.Lit]string
	c      *logic.C
	roots  []z.Lit
	logger zerolog.Logger
}

// New encodes model. The model must be translated.
func New(model *engine.FeatureModel, logger zerolog.Logger) (*Analyzer, error) {
	if missing := model.Untranslated(); len(missing) > 0 {
		return nil, engine.NewMissingLogicError(missing[0])
	}

	ids := model.Tree.IDs()
	a := &Analyzer{
		model:  model,
		ids:    ids,
		lits:   make(map[string]z.Lit, len(ids)),
		rules:  make(map[z.Lit]string),
		c:      logic.NewCCap(4 * len(ids)),
		logger: logger.With().Str("component", "analysis").Str("model_id", model.ID).Logger(),
	}
	for _, id := range ids {
		a.lits[id] = a.c.Lit()
	}

	for _, r := range engine.StructuralRules(model.Tree) {
		a.addRule(r.RuleID, r.Formula)
	}
	for _, ct := range model.Constraints {
		a.addRule(engine.RuleID(engine.RuleConstraint, fmt.Sprint(ct.Ordinal)), ct.Formula())
	}

	a.logger.Debug().
		Int("features", len(ids)).
		Int("rules", len(a.guards)).
		Int("gates", a.c.Len()).
		Msg("Encoded feature model")
	return a, nil
}

func (a *Analyzer) addRule(ruleID string, f *engine.Formula) {
	m := a.encode(f)
	g := a.c.Lit()
	a.guards = append(a.guards, guard{lit: g, rule: ruleID})
	a.rules[g] = ruleID
	a.roots = append(a.roots, a.c.Implies(g, m))
}

// encode turns a formula into a circuit literal.
func (a *Analyzer) encode(f *engine.Formula) z.Lit {
	return engine.Fold(f,
		func(id string) z.Lit { return a.lits[id] },
		func(v bool) z.Lit {
			if v {
				return a.c.T
			}
			return a.c.F
		},
		func(m z.Lit) z.Lit { return m.Not() },
		func(op engine.Op, l, r z.Lit) z.Lit {
			switch op {
			case engine.OpAnd:
				return a.c.And(l, r)
			case engine.OpOr:
				return a.c.Or(l, r)
			case engine.OpImplies:
				return a.c.Implies(l, r)
			default:
				return a.c.Xor(l, r).Not()
			}
		},
	)
}

// solver builds a fresh solver with every guarded rule asserted.
func (a *Analyzer) solver() *gini.Gini {
	g := gini.New()
	a.c.ToCnf(g)
	for _, m := range a.roots {
		g.Add(m)
		g.Add(z.LitNull)
	}
	return g
}

// solve runs one query under the guards plus extra assumptions.
func (a *Analyzer) solve(ctx context.Context, g *gini.Gini, extra ...z.Lit) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	for _, gd := range a.guards {
		g.Assume(gd.lit)
	}
	g.Assume(extra...)

	if deadline, ok := ctx.Deadline(); ok {
		res := g.Try(time.Until(deadline))
		if res != satisfiable && res != unsatisfiable {
			return 0, engine.NewEnumerationTimeoutError("solver deadline exceeded", 0, context.DeadlineExceeded)
		}
		return res, nil
	}
	return g.Solve(), nil
}

// completion reads the current model of g as a configuration.
func (a *Analyzer) completion(g *gini.Gini) engine.Configuration {
	var selected []string
	for _, id := range a.ids {
		if g.Value(a.lits[id]) {
			selected = append(selected, id)
		}
	}
	return engine.NewConfiguration(selected...)
}

// conflicts maps the failed assumptions of g back to rule identifiers in
// rule order, followed by the involved feature literals.
func (a *Analyzer) conflicts(g *gini.Gini) (rules []string, features []string) {
	why := g.Why(nil)
	seen := make(map[string]bool)
	for _, gd := range a.guards {
		if slices.Contains(why, gd.lit) && !seen[gd.rule] {
			seen[gd.rule] = true
			rules = append(rules, gd.rule)
		}
	}
	for _, id := range a.ids {
		m := a.lits[id]
		if slices.Contains(why, m) || slices.Contains(why, m.Not()) {
			features = append(features, id)
		}
	}
	return rules, features
}

// Void reports whether the model admits no configuration at all. When it
// does not, the rules of an unsatisfiable core are returned.
func (a *Analyzer) Void(ctx context.Context) (bool, []string, error) {
	g := a.solver()
	res, err := a.solve(ctx, g)
	if err != nil {
		return false, nil, err
	}
	if res == satisfiable {
		return false, nil, nil
	}
	rules, _ := a.conflicts(g)
	return true, rules, nil
}

// CoreFeatures returns the features selected in every valid configuration,
// in tree order. A void model has none.
func (a *Analyzer) CoreFeatures(ctx context.Context) ([]string, error) {
	return a.forced(ctx, true)
}

// DeadFeatures returns the features selected in no valid configuration,
// in tree order. Every feature of a void model is dead.
func (a *Analyzer) DeadFeatures(ctx context.Context) ([]string, error) {
	return a.forced(ctx, false)
}

// forced finds the features whose value is the same in every model.
// Only features that take the value in a first model are candidates.
func (a *Analyzer) forced(ctx context.Context, value bool) ([]string, error) {
	g := a.solver()
	res, err := a.solve(ctx, g)
	if err != nil {
		return nil, err
	}
	if res != satisfiable {
		if value {
			return nil, nil
		}
		return slices.Clone(a.ids), nil
	}

	var candidates []string
	for _, id := range a.ids {
		if g.Value(a.lits[id]) == value {
			candidates = append(candidates, id)
		}
	}

	var out []string
	for _, id := range candidates {
		m := a.lits[id]
		if value {
			m = m.Not()
		}
		res, err := a.solve(ctx, g, m)
		if err != nil {
			return nil, err
		}
		if res == unsatisfiable {
			out = append(out, id)
		}
	}
	return out, nil
}

// Explain checks whether a configuration containing every feature of
// selected and none of excluded exists.
func (a *Analyzer) Explain(ctx context.Context, selected, excluded []string) (*Explanation, error) {
	var assumptions []z.Lit
	for _, group := range []struct {
		ids []string
		neg bool
	}{{selected, false}, {excluded, true}} {
		for _, id := range group.ids {
			m, ok := a.lits[id]
			if !ok {
				return nil, engine.NewUnknownFeatureError(engine.NoOrdinal, id)
			}
			if group.neg {
				m = m.Not()
			}
			assumptions = append(assumptions, m)
		}
	}

	g := a.solver()
	res, err := a.solve(ctx, g, assumptions...)
	if err != nil {
		return nil, err
	}
	if res == satisfiable {
		cfg := a.completion(g)
		return &Explanation{Satisfiable: true, Completion: &cfg}, nil
	}
	rules, features := a.conflicts(g)
	return &Explanation{Satisfiable: false, Conflicts: rules, Blocking: features}, nil
}

// Analyze runs every whole-model query.
func (a *Analyzer) Analyze(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{ModelID: a.model.ID}

	void, conflicts, err := a.Void(ctx)
	if err != nil {
		return nil, err
	}
	report.Void = void
	report.Conflicts = conflicts

	if report.CoreFeatures, err = a.CoreFeatures(ctx); err != nil {
		return nil, err
	}
	if report.DeadFeatures, err = a.DeadFeatures(ctx); err != nil {
		return nil, err
	}
	if report.CoreFeatures == nil {
		report.CoreFeatures = []string{}
	}
	if report.DeadFeatures == nil {
		report.DeadFeatures = []string{}
	}

	a.logger.Info().
		Bool("void", void).
		Int("core", len(report.CoreFeatures)).
		Int("dead", len(report.DeadFeatures)).
		Dur("duration", time.Since(start)).
		Msg("Analysed feature model")
	return report, nil
}
