package engine

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Minimality selects which valid configurations count as minimal working products.
type Minimality string

const (
	// MinimalityChoice keeps every valid configuration reached through a
	// distinct sequence of choices, except those where an or-group carries a
	// member that can be dropped (with its subtree) without breaking any rule.
	MinimalityChoice Minimality = "choice"

	// MinimalityStrict keeps only configurations with no valid strict subset.
	MinimalityStrict Minimality = "strict"
)

// EnumerationOptions bounds and tunes an enumeration.
type EnumerationOptions struct {
	// MaxNodes caps the number of search decisions, including those spent
	// checking strict minimality. Zero means unlimited.
	MaxNodes int

	// Timeout caps wall-clock time. Zero means no timeout beyond the context.
	Timeout time.Duration

	// MaxResults stops the enumeration after this many configurations.
	// Zero means unlimited. Stopping early is not an error.
	MaxResults int

	// Minimality selects the minimality criterion.
	Minimality Minimality

	// Logger receives debug output. Nil disables logging.
	Logger *zerolog.Logger
}

// DefaultEnumerationOptions returns the default bounds.
func DefaultEnumerationOptions() EnumerationOptions {
	return EnumerationOptions{
		MaxNodes:   1_000_000,
		Timeout:    30 * time.Second,
		Minimality: MinimalityChoice,
	}
}

// EnumerationStats describes the work done by a finished enumeration.
type EnumerationStats struct {
	Nodes     int           `json:"nodes"`
	Pruned    int           `json:"pruned"`
	Rejected  int           `json:"rejected"`
	Found     int           `json:"found"`
	Truncated bool          `json:"truncated"`
	Duration  time.Duration `json:"duration"`
}

// Enumeration is a lazy, single-use sequence of minimal configurations.
type Enumeration struct {
	// ctx is kept because the sequence runs when it is ranged over.
	ctx    context.Context
	opts   EnumerationOptions
	plan   *searchPlan
	logger zerolog.Logger

	unsatisfiable bool
	consumed      atomic.Bool

	mu    sync.Mutex
	stats EnumerationStats
}

// Enumerate prepares an enumeration of the minimal working products of a
// translated model. Nothing is searched until the sequence is consumed.
//
// Decisions follow a pre-order walk of the tree with children sorted by
// identifier. Optional features are first left out, group members are
// first taken in, so configurations come out smallest-choice first. After
// each decision every constraint mentioning the decided feature is
// evaluated three-valued and the branch is pruned as soon as one is false.
func Enumerate(ctx context.Context, model *FeatureModel, opts EnumerationOptions) (*Enumeration, error) {
	if err := model.requireTranslated(); err != nil {
		return nil, err
	}
	if opts.Minimality == "" {
		opts.Minimality = MinimalityChoice
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "enumerator").Str("model_id", model.ID).Logger()
	}

	plan := newSearchPlan(model)
	e := &Enumeration{
		ctx:    ctx,
		opts:   opts,
		plan:   plan,
		logger: logger,
	}
	for _, f := range plan.constants {
		if !EvaluateWith(f, func(string) bool { return false }) {
			e.unsatisfiable = true
		}
	}
	return e, nil
}

// All returns the sequence of configurations. An error, if any, is the
// last element yielded. The sequence can be ranged over only once; later
// attempts yield a single ErrEnumerationConsumed error.
func (e *Enumeration) All() iter.Seq2[Configuration, error] {
	return func(yield func(Configuration, error) bool) {
		if !e.consumed.CompareAndSwap(false, true) {
			yield(Configuration{}, &EngineError{
				Class:   ErrorClassInput,
				Code:    ErrCodeEnumerationConsumed,
				Message: "enumeration has already been consumed",
				Ordinal: NoOrdinal,
			})
			return
		}

		start := time.Now()
		ctx, cancel := e.ctx, context.CancelFunc(func() {})
		if e.opts.Timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		}
		defer cancel()

		b := &budget{ctx: ctx, max: e.opts.MaxNodes}
		var stats EnumerationStats

		if !e.unsatisfiable {
			s := newSearch(e.plan, b, nil)
			s.emit = func(assign []Truth) bool {
				ok := e.minimal(assign, b)
				if b.err != nil {
					return false
				}
				if !ok {
					stats.Rejected++
					return true
				}
				stats.Found++
				if !yield(e.plan.configuration(assign), nil) {
					return false
				}
				if e.opts.MaxResults > 0 && stats.Found >= e.opts.MaxResults {
					stats.Truncated = true
					return false
				}
				return true
			}
			s.dfs(0)
			stats.Pruned = s.pruned
		}

		stats.Nodes = b.nodes
		stats.Duration = time.Since(start)
		e.mu.Lock()
		e.stats = stats
		e.mu.Unlock()

		if b.err != nil {
			e.logger.Warn().Err(b.err).Int("nodes", stats.Nodes).Int("found", stats.Found).Msg("Enumeration aborted")
			yield(Configuration{}, b.err)
			return
		}
		e.logger.Debug().
			Int("nodes", stats.Nodes).
			Int("pruned", stats.Pruned).
			Int("rejected", stats.Rejected).
			Int("found", stats.Found).
			Bool("truncated", stats.Truncated).
			Dur("duration", stats.Duration).
			Msg("Enumeration completed")
	}
}

// Collect drains the sequence. On error it returns the configurations
// produced so far together with the error.
func (e *Enumeration) Collect() ([]Configuration, error) {
	var out []Configuration
	for cfg, err := range e.All() {
		if err != nil {
			return out, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// Stats returns the statistics of the finished enumeration.
func (e *Enumeration) Stats() EnumerationStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// EnumerateAll is a convenience wrapper around Enumerate and Collect.
func EnumerateAll(ctx context.Context, model *FeatureModel, opts EnumerationOptions) ([]Configuration, error) {
	e, err := Enumerate(ctx, model, opts)
	if err != nil {
		return nil, err
	}
	return e.Collect()
}

// minimal decides whether a structurally and constraint-valid leaf is a
// minimal working product.
func (e *Enumeration) minimal(assign []Truth, b *budget) bool {
	p := e.plan
	selected := make([]bool, len(assign))
	for i, v := range assign {
		selected[i] = v == TruthTrue
	}

	// A surplus or-group member whose removal keeps every constraint true
	// makes the configuration non-minimal under both criteria.
	for _, g := range p.groups {
		if g.kind != KindOr || g.parent < 0 || !selected[g.parent] {
			continue
		}
		count := 0
		for _, m := range g.members {
			if selected[m] {
				count++
			}
		}
		if count < 2 {
			continue
		}
		for _, m := range g.members {
			if !selected[m] {
				continue
			}
			reduced := slices.Clone(selected)
			for i := m; i < p.end[m]; i++ {
				reduced[i] = false
			}
			if p.satisfies(reduced) {
				return false
			}
		}
	}

	if e.opts.Minimality != MinimalityStrict {
		return true
	}

	// Look for any valid configuration using only the selected features.
	total := 0
	for _, s := range selected {
		if s {
			total++
		}
	}
	found := false
	sub := newSearch(p, b, selected)
	sub.emit = func(a []Truth) bool {
		n := 0
		for _, v := range a {
			if v == TruthTrue {
				n++
			}
		}
		if n < total {
			found = true
			return false
		}
		return true
	}
	sub.dfs(0)
	return !found
}

// searchPlan is the model compiled into decision order.
type searchPlan struct {
	ids      []string
	index    map[string]int
	parent   []int
	kind     []GroupKind
	group    []int
	groups   []planGroup
	end      []int
	watch    [][]int
	formulas []*Formula

	// constants are formulas without variables; they never get watched.
	constants []*Formula
}

type planGroup struct {
	kind    GroupKind
	parent  int
	members []int
	last    int
}

func newSearchPlan(model *FeatureModel) *searchPlan {
	tree := model.Tree
	p := &searchPlan{index: make(map[string]int, tree.Len())}

	var visit func(id string, parent int)
	visit = func(id string, parent int) {
		pos := len(p.ids)
		f, _ := tree.Feature(id)
		p.ids = append(p.ids, id)
		p.index[id] = pos
		p.parent = append(p.parent, parent)
		p.kind = append(p.kind, f.Kind)
		p.group = append(p.group, -1)
		p.end = append(p.end, 0)

		children := slices.Clone(f.Children)
		slices.Sort(children)
		for _, c := range children {
			visit(c, pos)
		}
		p.end[pos] = len(p.ids)
	}
	visit(tree.Root().ID, -1)

	for _, g := range tree.AllGroups() {
		pg := planGroup{kind: g.Kind, parent: p.index[g.Parent], last: -1}
		for _, m := range g.Members {
			pg.members = append(pg.members, p.index[m])
		}
		slices.Sort(pg.members)
		pg.last = pg.members[len(pg.members)-1]
		for _, m := range pg.members {
			p.group[m] = len(p.groups)
		}
		p.groups = append(p.groups, pg)
	}

	p.watch = make([][]int, len(p.ids))
	for _, c := range model.Constraints {
		ci := len(p.formulas)
		p.formulas = append(p.formulas, c.formula)
		vars := c.formula.Variables()
		if len(vars) == 0 {
			p.constants = append(p.constants, c.formula)
		}
		for _, v := range vars {
			p.watch[p.index[v]] = append(p.watch[p.index[v]], ci)
		}
	}
	return p
}

// satisfies reports whether every constraint holds for a full selection.
func (p *searchPlan) satisfies(selected []bool) bool {
	value := func(id string) bool { return selected[p.index[id]] }
	for _, f := range p.formulas {
		if !EvaluateWith(f, value) {
			return false
		}
	}
	return true
}

func (p *searchPlan) configuration(assign []Truth) Configuration {
	ids := make([]string, 0, len(assign))
	for i, v := range assign {
		if v == TruthTrue {
			ids = append(ids, p.ids[i])
		}
	}
	return NewConfiguration(ids...)
}

// budget counts decisions across a search and its minimality sub-searches.
type budget struct {
	ctx   context.Context
	max   int
	nodes int
	err   error
}

func (b *budget) spend() bool {
	if b.err != nil {
		return false
	}
	if b.max > 0 && b.nodes >= b.max {
		b.err = NewEnumerationTimeoutError("node budget exhausted", b.nodes, nil)
		return false
	}
	if b.nodes&255 == 0 {
		if err := b.ctx.Err(); err != nil {
			reason := "cancelled"
			if errors.Is(err, context.DeadlineExceeded) {
				reason = "deadline exceeded"
			}
			b.err = NewEnumerationTimeoutError(reason, b.nodes, err)
			return false
		}
	}
	b.nodes++
	return true
}

var (
	forcedTrue   = []Truth{TruthTrue}
	forcedFalse  = []Truth{TruthFalse}
	excludeFirst = []Truth{TruthFalse, TruthTrue}
	includeFirst = []Truth{TruthTrue, TruthFalse}
)

// search is one depth-first walk over the decision order.
type search struct {
	plan    *searchPlan
	budget  *budget
	allowed []bool // nil, or the only features that may be selected
	assign  []Truth
	lookup  func(string) Truth
	emit    func([]Truth) bool
	pruned  int
}

func newSearch(p *searchPlan, b *budget, allowed []bool) *search {
	s := &search{
		plan:    p,
		budget:  b,
		allowed: allowed,
		assign:  make([]Truth, len(p.ids)),
	}
	s.lookup = func(id string) Truth { return s.assign[p.index[id]] }
	return s
}

// choices returns the values to try for the feature at position i, in order.
func (s *search) choices(i int) []Truth {
	opts := s.structuralChoices(i)
	if s.allowed == nil || s.allowed[i] {
		return opts
	}
	if slices.Contains(opts, TruthFalse) {
		return forcedFalse
	}
	return nil
}

func (s *search) structuralChoices(i int) []Truth {
	p := s.plan
	parent := p.parent[i]
	if parent < 0 {
		return forcedTrue
	}
	if s.assign[parent] != TruthTrue {
		return forcedFalse
	}
	switch p.kind[i] {
	case KindMandatory:
		return forcedTrue
	case KindOptional:
		return excludeFirst
	}

	g := p.groups[p.group[i]]
	chosen := false
	for _, m := range g.members {
		if m < i && s.assign[m] == TruthTrue {
			chosen = true
			break
		}
	}
	switch {
	case g.kind == KindAlternative && chosen:
		return forcedFalse
	case chosen:
		return excludeFirst
	case i == g.last:
		return forcedTrue
	default:
		return includeFirst
	}
}

// consistent reports whether no constraint watching position i is already false.
func (s *search) consistent(i int) bool {
	for _, ci := range s.plan.watch[i] {
		if EvaluatePartial(s.plan.formulas[ci], s.lookup) == TruthFalse {
			return false
		}
	}
	return true
}

// dfs decides position pos and everything after it. It returns false when
// the walk must stop.
func (s *search) dfs(pos int) bool {
	if pos == len(s.assign) {
		return s.emit(s.assign)
	}
	for _, v := range s.choices(pos) {
		if !s.budget.spend() {
			return false
		}
		s.assign[pos] = v
		if !s.consistent(pos) {
			s.pruned++
			s.assign[pos] = TruthUnknown
			continue
		}
		if !s.dfs(pos + 1) {
			s.assign[pos] = TruthUnknown
			return false
		}
		s.assign[pos] = TruthUnknown
	}
	return true
}
