package engine

import (
	"fmt"
	"strings"
)

// ToDOT renders the feature tree and its cross-tree constraints in Graphviz
// DOT format. Features at the same depth share a rank. Constraints with a
// bound formula are drawn as notes linked to the features they mention.
func ToDOT(model *FeatureModel) string {
	var sb strings.Builder
	tree := model.Tree

	sb.WriteString("digraph FeatureModel {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	// Group nodes by depth for a layered layout
	var levels [][]string
	for _, id := range tree.IDs() {
		f, _ := tree.Feature(id)
		for len(levels) <= f.Depth {
			levels = append(levels, nil)
		}
		levels[f.Depth] = append(levels[f.Depth], id)
	}
	for depth, ids := range levels {
		fmt.Fprintf(&sb, "  { rank=same; /* depth %d */\n", depth)
		for _, id := range ids {
			f, _ := tree.Feature(id)
			fmt.Fprintf(&sb, "    %q [fillcolor=%q, style=\"filled,rounded\"];\n", id, kindColor(f.Kind))
		}
		sb.WriteString("  }\n")
	}
	sb.WriteString("\n")

	for _, id := range tree.IDs() {
		for _, child := range tree.Children(id) {
			label := ""
			if child.Kind.IsGroup() {
				g, _ := tree.GroupOf(child.ID)
				label = fmt.Sprintf(", label=%q", g.Name())
			}
			fmt.Fprintf(&sb, "  %q -> %q [%s%s];\n", id, child.ID, edgeStyle(child.Kind), label)
		}
	}

	for _, c := range model.Constraints {
		node := fmt.Sprintf("constraint:%d", c.Ordinal)
		fmt.Fprintf(&sb, "\n  %q [shape=note, label=%q];\n", node, c.EnglishStatement)
		if c.formula == nil {
			continue
		}
		for _, v := range c.formula.Variables() {
			fmt.Fprintf(&sb, "  %q -> %q [style=dotted, arrowhead=none, color=gray];\n", node, v)
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// kindColor returns a fill color for a feature kind.
func kindColor(kind GroupKind) string {
	switch kind {
	case KindMandatory:
		return "lightblue"
	case KindOptional:
		return "white"
	case KindOr:
		return "lightgreen"
	case KindAlternative:
		return "lightyellow"
	default:
		return "white"
	}
}

// edgeStyle returns a DOT style string for the relation to a parent.
func edgeStyle(kind GroupKind) string {
	switch kind {
	case KindMandatory:
		return "style=solid, arrowhead=dot"
	case KindOptional:
		return "style=solid, arrowhead=odot"
	case KindOr:
		return "style=bold, color=darkgreen"
	case KindAlternative:
		return "style=dashed, color=darkgoldenrod"
	default:
		return "style=solid"
	}
}
