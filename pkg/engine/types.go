package engine

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// GroupKind describes how a feature relates to its parent and siblings.
type GroupKind string

const (
	// KindMandatory features are always selected together with their parent.
	KindMandatory GroupKind = "mandatory"

	// KindOptional features may be selected when their parent is selected.
	KindOptional GroupKind = "optional"

	// KindOr features belong to a group of which at least one member is
	// selected whenever the parent is selected.
	KindOr GroupKind = "or-group"

	// KindAlternative features belong to a group of which exactly one member
	// is selected whenever the parent is selected.
	KindAlternative GroupKind = "alternative-group"
)

// IsGroup reports whether the kind denotes membership in a sibling group.
func (k GroupKind) IsGroup() bool {
	return k == KindOr || k == KindAlternative
}

// Feature is a node of the feature tree.
type Feature struct {
	// ID is the unique identifier of the feature.
	ID string `json:"id"`

	// Parent is the identifier of the parent feature, empty for the root.
	Parent string `json:"parent,omitempty"`

	// Kind is the relation of the feature to its parent.
	Kind GroupKind `json:"kind"`

	// Group is the 1-based index of the sibling group the feature belongs to
	// under its parent, or 0 when the feature is not grouped.
	Group int `json:"group,omitempty"`

	// Children are the identifiers of the child features in document order.
	Children []string `json:"children,omitempty"`

	// Depth is the distance from the root.
	Depth int `json:"depth"`
}

// IsRoot reports whether the feature is the root of its tree.
func (f *Feature) IsRoot() bool {
	return f.Parent == ""
}

// Group is a set of sibling features sharing an or/alternative relation.
type Group struct {
	Parent  string    `json:"parent"`
	Index   int       `json:"index"`
	Kind    GroupKind `json:"kind"`
	Members []string  `json:"members"`
}

// Name identifies the group in rule identifiers. The first group under a
// parent is named after the parent; later ones get a numeric suffix.
func (g Group) Name() string {
	if g.Index <= 1 {
		return g.Parent
	}
	return g.Parent + "#" + strconv.Itoa(g.Index)
}

// FeatureTree owns all features of a model. It is immutable once built.
type FeatureTree struct {
	root     string
	features map[string]*Feature
	order    []string
	groups   map[string][]Group
}

// Root returns the root feature.
func (t *FeatureTree) Root() *Feature {
	return t.features[t.root]
}

// Feature returns the feature with the given identifier.
func (t *FeatureTree) Feature(id string) (*Feature, bool) {
	f, ok := t.features[id]
	return f, ok
}

// Has reports whether the tree contains id.
func (t *FeatureTree) Has(id string) bool {
	_, ok := t.features[id]
	return ok
}

// Len returns the number of features.
func (t *FeatureTree) Len() int {
	return len(t.order)
}

// IDs returns all feature identifiers in pre-order, document order.
func (t *FeatureTree) IDs() []string {
	return slices.Clone(t.order)
}

// Children returns the child features of id in document order.
func (t *FeatureTree) Children(id string) []*Feature {
	f, ok := t.features[id]
	if !ok {
		return nil
	}
	out := make([]*Feature, 0, len(f.Children))
	for _, c := range f.Children {
		out = append(out, t.features[c])
	}
	return out
}

// Groups returns the or/alternative groups directly under id.
func (t *FeatureTree) Groups(id string) []Group {
	return t.groups[id]
}

// GroupOf returns the group a feature belongs to.
func (t *FeatureTree) GroupOf(id string) (Group, bool) {
	f, ok := t.features[id]
	if !ok || f.Group == 0 {
		return Group{}, false
	}
	return t.groups[f.Parent][f.Group-1], true
}

// AllGroups returns every group in pre-order of their parents.
func (t *FeatureTree) AllGroups() []Group {
	var out []Group
	for _, id := range t.order {
		out = append(out, t.groups[id]...)
	}
	return out
}

// Subtree returns id and all its descendants in pre-order.
func (t *FeatureTree) Subtree(id string) []string {
	var out []string
	var walk func(string)
	walk = func(cur string) {
		out = append(out, cur)
		for _, c := range t.features[cur].Children {
			walk(c)
		}
	}
	if t.Has(id) {
		walk(id)
	}
	return out
}

// reservedWords cannot be used as feature identifiers because the formula
// grammar treats them as operators or constants.
var reservedWords = map[string]bool{
	"not": true, "NOT": true,
	"and": true, "AND": true,
	"or": true, "OR": true,
	"implies": true, "IMPLIES": true,
	"iff": true, "IFF": true,
	"true": true, "TRUE": true,
	"false": true, "FALSE": true,
}

// ValidIdentifier reports whether s can be used as a feature identifier.
func ValidIdentifier(s string) bool {
	if s == "" || reservedWords[s] {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// TreeBuilder assembles a FeatureTree and enforces identifier rules.
// The first error sticks and is returned by Build.
type TreeBuilder struct {
	tree *FeatureTree
	err  error
}

// NewTreeBuilder starts a tree with the given root. The root is mandatory.
func NewTreeBuilder(root string) *TreeBuilder {
	b := &TreeBuilder{
		tree: &FeatureTree{
			root:     root,
			features: make(map[string]*Feature),
			groups:   make(map[string][]Group),
		},
	}
	if !ValidIdentifier(root) {
		b.err = NewMalformedFeatureError(root, fmt.Sprintf("invalid feature identifier %q", root))
		return b
	}
	b.tree.features[root] = &Feature{ID: root, Kind: KindMandatory}
	return b
}

// Add attaches an ungrouped child. kind must be KindMandatory or KindOptional.
func (b *TreeBuilder) Add(parent, id string, kind GroupKind) *TreeBuilder {
	if b.err != nil {
		return b
	}
	if kind != KindMandatory && kind != KindOptional {
		b.err = NewMalformedFeatureError(id, fmt.Sprintf("ungrouped feature cannot have kind %q", kind))
		return b
	}
	b.attach(parent, id, kind, 0)
	return b
}

// AddGroup attaches a new or/alternative group of children to parent.
func (b *TreeBuilder) AddGroup(parent string, kind GroupKind, ids ...string) *TreeBuilder {
	if b.err != nil {
		return b
	}
	if !kind.IsGroup() {
		b.err = NewMalformedFeatureError(parent, fmt.Sprintf("group under %q cannot have kind %q", parent, kind))
		return b
	}
	if len(ids) == 0 {
		b.err = NewMalformedFeatureError(parent, fmt.Sprintf("empty %s under %q", kind, parent))
		return b
	}
	index := len(b.tree.groups[parent]) + 1
	for _, id := range ids {
		b.attach(parent, id, kind, index)
		if b.err != nil {
			return b
		}
	}
	b.tree.groups[parent] = append(b.tree.groups[parent], Group{
		Parent:  parent,
		Index:   index,
		Kind:    kind,
		Members: slices.Clone(ids),
	})
	return b
}

func (b *TreeBuilder) attach(parent, id string, kind GroupKind, group int) {
	p, ok := b.tree.features[parent]
	if !ok {
		b.err = NewMalformedFeatureError(id, fmt.Sprintf("parent %q of feature %q does not exist", parent, id))
		return
	}
	if !ValidIdentifier(id) {
		b.err = NewMalformedFeatureError(id, fmt.Sprintf("invalid feature identifier %q", id))
		return
	}
	if _, dup := b.tree.features[id]; dup {
		b.err = NewDuplicateFeatureError(id)
		return
	}
	b.tree.features[id] = &Feature{
		ID:     id,
		Parent: parent,
		Kind:   kind,
		Group:  group,
		Depth:  p.Depth + 1,
	}
	p.Children = append(p.Children, id)
}

// Build finalizes the tree.
func (b *TreeBuilder) Build() (*FeatureTree, error) {
	if b.err != nil {
		return nil, b.err
	}
	t := b.tree
	t.order = t.order[:0]
	var walk func(string)
	walk = func(id string) {
		t.order = append(t.order, id)
		for _, c := range t.features[id].Children {
			walk(c)
		}
	}
	walk(t.root)
	b.err = fmt.Errorf("tree builder already used")
	return t, nil
}

// CrossTreeConstraint is a natural-language rule with an optional bound formula.
type CrossTreeConstraint struct {
	// Ordinal is the 0-based position of the constraint in the document.
	Ordinal int `json:"ordinal"`

	// EnglishStatement is the free-text statement.
	EnglishStatement string `json:"englishStatement"`

	// Annotation is logic text supplied in the document itself, if any.
	Annotation string `json:"annotation,omitempty"`

	formula *Formula
}

// Formula returns the bound formula, or nil before translation.
func (c *CrossTreeConstraint) Formula() *Formula {
	return c.formula
}

// FeatureModel is a loaded feature tree with its cross-tree constraints.
type FeatureModel struct {
	// ID is a stable identifier derived from the document content.
	ID string

	// Tree is the feature tree.
	Tree *FeatureTree

	// Constraints are ordered by ordinal.
	Constraints []*CrossTreeConstraint
}

// Constraint returns the constraint with the given ordinal.
func (m *FeatureModel) Constraint(ordinal int) (*CrossTreeConstraint, bool) {
	if ordinal < 0 || ordinal >= len(m.Constraints) {
		return nil, false
	}
	return m.Constraints[ordinal], true
}

// Formula returns the formula bound to the given ordinal.
func (m *FeatureModel) Formula(ordinal int) (*Formula, bool) {
	c, ok := m.Constraint(ordinal)
	if !ok || c.formula == nil {
		return nil, false
	}
	return c.formula, true
}

// Untranslated returns the ordinals that have no formula yet.
func (m *FeatureModel) Untranslated() []int {
	var out []int
	for _, c := range m.Constraints {
		if c.formula == nil {
			out = append(out, c.Ordinal)
		}
	}
	return out
}

// Translated reports whether every constraint has a formula.
func (m *FeatureModel) Translated() bool {
	return len(m.Untranslated()) == 0
}

// Annotations returns the document-supplied logic keyed by ordinal.
func (m *FeatureModel) Annotations() LogicMapping {
	out := make(LogicMapping)
	for _, c := range m.Constraints {
		if strings.TrimSpace(c.Annotation) != "" {
			out[c.Ordinal] = c.Annotation
		}
	}
	return out
}

// requireTranslated returns a MissingLogicError for the lowest untranslated ordinal.
func (m *FeatureModel) requireTranslated() error {
	if missing := m.Untranslated(); len(missing) > 0 {
		return NewMissingLogicError(missing[0])
	}
	return nil
}
