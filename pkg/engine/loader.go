package engine

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
)

// modelNamespace seeds the content-derived model identifiers.
var modelNamespace = uuid.MustParse("6f1c8f0e-5a0b-4c52-9d0c-7d1f3b0a9e21")

// xmlNode is a generic element so that document order and unknown
// elements are both visible to the loader.
type xmlNode struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Nodes   []xmlNode  `xml:",any"`
	Text    string     `xml:",chardata"`
}

// LoadFile reads and loads a feature model document from path.
func LoadFile(path string) (*FeatureModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feature model %s: %w", path, err)
	}
	return LoadBytes(data)
}

// Load reads a feature model document from r.
func Load(r io.Reader) (*FeatureModel, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, NewParseError("failed to read document", 0, err)
	}
	return LoadBytes(data)
}

// LoadBytes parses a feature model document:
//
//	<featureModel>
//	  <feature name="Root">
//	    <feature name="A" mandatory="true"/>
//	    <group type="xor"><feature name="X"/><feature name="Y"/></group>
//	  </feature>
//	  <constraints>
//	    <constraint><englishStatement>A requires X</englishStatement></constraint>
//	  </constraints>
//	</featureModel>
//
// On failure no partial model is returned.
func LoadBytes(data []byte) (*FeatureModel, error) {
	root, err := decodeDocument(data)
	if err != nil {
		return nil, err
	}
	if root.XMLName.Local != "featureModel" {
		return nil, NewParseError(fmt.Sprintf("root element must be <featureModel>, found <%s>", root.XMLName.Local), 0, nil)
	}
	if err := checkAttrs(root, ""); err != nil {
		return nil, err
	}
	if err := checkText(root); err != nil {
		return nil, err
	}

	var features, constraintBlocks []xmlNode
	for _, n := range root.Nodes {
		switch n.XMLName.Local {
		case "feature":
			features = append(features, n)
		case "constraints":
			constraintBlocks = append(constraintBlocks, n)
		default:
			return nil, NewParseError(fmt.Sprintf("unexpected element <%s> in <featureModel>", n.XMLName.Local), 0, nil)
		}
	}
	if len(features) != 1 {
		return nil, NewParseError(fmt.Sprintf("expected exactly one root <feature>, found %d", len(features)), 0, nil)
	}
	if len(constraintBlocks) > 1 {
		return nil, NewParseError("more than one <constraints> element", 0, nil)
	}

	tree, err := buildTree(features[0])
	if err != nil {
		return nil, err
	}

	var constraints []*CrossTreeConstraint
	if len(constraintBlocks) == 1 {
		constraints, err = loadConstraints(constraintBlocks[0])
		if err != nil {
			return nil, err
		}
	}

	return &FeatureModel{
		ID:          uuid.NewSHA1(modelNamespace, data).String(),
		Tree:        tree,
		Constraints: constraints,
	}, nil
}

func decodeDocument(data []byte) (xmlNode, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return xmlNode{}, NewParseError("empty document", 0, nil)
	}
	dec := xml.NewDecoder(bytes.NewReader(data))

	var root xmlNode
	if err := dec.Decode(&root); err != nil {
		return xmlNode{}, NewParseError("malformed XML", syntaxLine(err), err)
	}
	if err := checkNamespaces(root); err != nil {
		return xmlNode{}, err
	}

	// Anything but whitespace, comments or processing instructions after the
	// root element is rejected.
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return xmlNode{}, NewParseError("malformed XML after root element", syntaxLine(err), err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return xmlNode{}, NewParseError(fmt.Sprintf("unexpected element <%s> after root element", t.Name.Local), 0, nil)
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return xmlNode{}, NewParseError("unexpected text after root element", 0, nil)
			}
		}
	}
	return root, nil
}

// checkNamespaces rejects namespaced elements anywhere in the document.
// The element switches match local names only, so <x:feature> would
// otherwise pass as <feature>.
func checkNamespaces(n xmlNode) error {
	if n.XMLName.Space != "" {
		return NewParseError(fmt.Sprintf("unexpected element <%s> in namespace %q", n.XMLName.Local, n.XMLName.Space), 0, nil)
	}
	for _, c := range n.Nodes {
		if err := checkNamespaces(c); err != nil {
			return err
		}
	}
	return nil
}

func syntaxLine(err error) int {
	var se *xml.SyntaxError
	if errors.As(err, &se) {
		return se.Line
	}
	return 0
}

func attr(n xmlNode, name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == name && a.Name.Space == "" {
			return a.Value, true
		}
	}
	return "", false
}

// checkAttrs rejects attributes other than the allowed ones. Namespace
// declarations are always accepted.
func checkAttrs(n xmlNode, feature string, allowed ...string) error {
	for _, a := range n.Attrs {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}
		ok := false
		for _, name := range allowed {
			if a.Name.Local == name && a.Name.Space == "" {
				ok = true
				break
			}
		}
		if !ok {
			if feature != "" {
				return NewMalformedFeatureError(feature,
					fmt.Sprintf("unexpected attribute %q on <%s>", a.Name.Local, n.XMLName.Local))
			}
			return NewParseError(fmt.Sprintf("unexpected attribute %q on <%s>", a.Name.Local, n.XMLName.Local), 0, nil)
		}
	}
	return nil
}

func checkText(n xmlNode) error {
	if strings.TrimSpace(n.Text) != "" {
		return NewParseError(fmt.Sprintf("unexpected text inside <%s>", n.XMLName.Local), 0, nil)
	}
	return nil
}

func featureName(n xmlNode) (string, error) {
	name, ok := attr(n, "name")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", NewMalformedFeatureError("", "feature without a name attribute")
	}
	if !ValidIdentifier(name) {
		return "", NewMalformedFeatureError(name,
			fmt.Sprintf("feature name %q is not a valid identifier (letters, digits and '_' only; operator words are reserved)", name))
	}
	return name, nil
}

// mandatoryFlag reads the mandatory attribute. Absent means optional.
func mandatoryFlag(n xmlNode, feature string) (bool, error) {
	v, ok := attr(n, "mandatory")
	if !ok {
		return false, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, NewMalformedFeatureError(feature,
			fmt.Sprintf("feature %q has invalid mandatory value %q", feature, v))
	}
}

func groupKind(n xmlNode, parent string) (GroupKind, error) {
	v, ok := attr(n, "type")
	if !ok {
		return "", NewMalformedFeatureError(parent, fmt.Sprintf("group under %q has no type", parent))
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "xor", "alternative", "alt":
		return KindAlternative, nil
	case "or":
		return KindOr, nil
	default:
		return "", NewMalformedFeatureError(parent,
			fmt.Sprintf("group under %q has unknown type %q", parent, v))
	}
}

func buildTree(rootNode xmlNode) (*FeatureTree, error) {
	rootName, err := featureName(rootNode)
	if err != nil {
		return nil, err
	}
	mandatory, err := mandatoryFlag(rootNode, rootName)
	if err != nil {
		return nil, err
	}
	if _, declared := attr(rootNode, "mandatory"); declared && !mandatory {
		return nil, NewMalformedFeatureError(rootName,
			fmt.Sprintf("root feature %q cannot be optional", rootName))
	}
	b := NewTreeBuilder(rootName)
	if err := addChildren(b, rootNode, rootName); err != nil {
		return nil, err
	}
	return b.Build()
}

func addChildren(b *TreeBuilder, parentNode xmlNode, parent string) error {
	if err := checkAttrs(parentNode, parent, "name", "mandatory"); err != nil {
		return err
	}
	if err := checkText(parentNode); err != nil {
		return err
	}
	for _, n := range parentNode.Nodes {
		switch n.XMLName.Local {
		case "feature":
			name, err := featureName(n)
			if err != nil {
				return err
			}
			mandatory, err := mandatoryFlag(n, name)
			if err != nil {
				return err
			}
			kind := KindOptional
			if mandatory {
				kind = KindMandatory
			}
			b.Add(parent, name, kind)
			if b.err != nil {
				return b.err
			}
			if err := addChildren(b, n, name); err != nil {
				return err
			}

		case "group":
			if err := checkAttrs(n, parent, "type"); err != nil {
				return err
			}
			if err := checkText(n); err != nil {
				return err
			}
			kind, err := groupKind(n, parent)
			if err != nil {
				return err
			}
			var members []string
			var memberNodes []xmlNode
			for _, m := range n.Nodes {
				if m.XMLName.Local != "feature" {
					return NewParseError(fmt.Sprintf("unexpected element <%s> in <group>", m.XMLName.Local), 0, nil)
				}
				name, err := featureName(m)
				if err != nil {
					return err
				}
				mandatory, err := mandatoryFlag(m, name)
				if err != nil {
					return err
				}
				if mandatory {
					return NewMalformedFeatureError(name,
						fmt.Sprintf("feature %q is both mandatory and a member of an %s", name, kind))
				}
				members = append(members, name)
				memberNodes = append(memberNodes, m)
			}
			b.AddGroup(parent, kind, members...)
			if b.err != nil {
				return b.err
			}
			for i, m := range memberNodes {
				if err := addChildren(b, m, members[i]); err != nil {
					return err
				}
			}

		default:
			return NewParseError(fmt.Sprintf("unexpected element <%s> in feature %q", n.XMLName.Local, parent), 0, nil)
		}
	}
	return nil
}

func loadConstraints(block xmlNode) ([]*CrossTreeConstraint, error) {
	if err := checkAttrs(block, ""); err != nil {
		return nil, err
	}
	if err := checkText(block); err != nil {
		return nil, err
	}
	var out []*CrossTreeConstraint
	for _, n := range block.Nodes {
		if n.XMLName.Local != "constraint" {
			return nil, NewParseError(fmt.Sprintf("unexpected element <%s> in <constraints>", n.XMLName.Local), 0, nil)
		}
		if err := checkAttrs(n, ""); err != nil {
			return nil, err
		}
		if err := checkText(n); err != nil {
			return nil, err
		}
		ordinal := len(out)
		c := &CrossTreeConstraint{Ordinal: ordinal}
		seenStatement, seenLogic := false, false
		for _, field := range n.Nodes {
			if len(field.Nodes) > 0 {
				return nil, NewParseError(fmt.Sprintf("unexpected markup inside <%s>", field.XMLName.Local), 0, nil)
			}
			switch field.XMLName.Local {
			case "englishStatement":
				if seenStatement {
					return nil, NewParseError(fmt.Sprintf("constraint %d has more than one <englishStatement>", ordinal), 0, nil)
				}
				seenStatement = true
				c.EnglishStatement = strings.TrimSpace(field.Text)
			case "logic":
				if seenLogic {
					return nil, NewParseError(fmt.Sprintf("constraint %d has more than one <logic>", ordinal), 0, nil)
				}
				seenLogic = true
				c.Annotation = strings.TrimSpace(field.Text)
			default:
				return nil, NewParseError(fmt.Sprintf("unexpected element <%s> in <constraint>", field.XMLName.Local), 0, nil)
			}
		}
		if c.EnglishStatement == "" {
			err := NewMalformedFeatureError("", fmt.Sprintf("constraint %d has no englishStatement", ordinal))
			return nil, err.withOrdinal(ordinal)
		}
		out = append(out, c)
	}
	return out, nil
}
