package engine

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Op is the operator at a formula node.
type Op int

const (
	OpVar Op = iota
	OpConst
	OpNot
	OpAnd
	OpOr
	OpImplies
	OpIff
)

// String returns the canonical operator symbol.
func (o Op) String() string {
	switch o {
	case OpNot:
		return "!"
	case OpAnd:
		return "&"
	case OpOr:
		return "|"
	case OpImplies:
		return "->"
	case OpIff:
		return "<->"
	case OpConst:
		return "const"
	default:
		return "var"
	}
}

// precedence orders operators from loosest (IFF) to tightest (atoms).
func (o Op) precedence() int {
	switch o {
	case OpIff:
		return 1
	case OpImplies:
		return 2
	case OpOr:
		return 3
	case OpAnd:
		return 4
	case OpNot:
		return 5
	default:
		return 6
	}
}

type node struct {
	op    Op
	name  string
	value bool
	left  *node
	right *node
}

// Formula is an immutable propositional formula over feature identifiers.
type Formula struct {
	source string
	root   *node
	vars   []string // first-appearance order
}

// Source returns the exact text the formula was parsed from.
func (f *Formula) Source() string {
	return f.source
}

// Variables returns the distinct identifiers referenced, sorted.
func (f *Formula) Variables() []string {
	out := slices.Clone(f.vars)
	slices.Sort(out)
	return out
}

// References reports whether the formula mentions id.
func (f *Formula) References(id string) bool {
	return slices.Contains(f.vars, id)
}

// String renders the formula canonically with minimal parentheses.
func (f *Formula) String() string {
	var b strings.Builder
	render(&b, f.root)
	return b.String()
}

func render(b *strings.Builder, n *node) {
	switch n.op {
	case OpVar:
		b.WriteString(n.name)
	case OpConst:
		if n.value {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case OpNot:
		b.WriteString("!")
		renderChild(b, n.left, n.left.op.precedence() < OpNot.precedence())
	default:
		p := n.op.precedence()
		lp, rp := n.left.op.precedence(), n.right.op.precedence()
		// IMPLIES groups to the right, the others to the left.
		leftParens := lp < p || (lp == p && n.op == OpImplies)
		rightParens := rp < p || (rp == p && n.op != OpImplies)
		renderChild(b, n.left, leftParens)
		b.WriteString(" " + n.op.String() + " ")
		renderChild(b, n.right, rightParens)
	}
}

func renderChild(b *strings.Builder, n *node, parens bool) {
	if parens {
		b.WriteString("(")
		render(b, n)
		b.WriteString(")")
		return
	}
	render(b, n)
}

// Fold reduces a formula bottom-up. It lets other packages translate
// formulas into their own representation without access to the AST.
func Fold[T any](f *Formula, variable func(id string) T, constant func(bool) T, not func(T) T, binary func(op Op, l, r T) T) T {
	var walk func(*node) T
	walk = func(n *node) T {
		switch n.op {
		case OpVar:
			return variable(n.name)
		case OpConst:
			return constant(n.value)
		case OpNot:
			return not(walk(n.left))
		default:
			return binary(n.op, walk(n.left), walk(n.right))
		}
	}
	return walk(f.root)
}

// ParseFormula parses text into a Formula. It checks syntax only; use
// Translate to also resolve identifiers against a feature tree.
//
// Grammar, loosest first:
//
//	iff     = implies { ("<->" | "<=>" | "↔" | "iff") implies }
//	implies = or [ ("->" | "=>" | "→" | "implies") implies ]
//	or      = and { ("|" | "||" | "∨" | "or") and }
//	and     = unary { ("&" | "&&" | "∧" | "and") unary }
//	unary   = ("!" | "~" | "¬" | "not") unary | primary
//	primary = identifier | "true" | "false" | "(" iff ")"
//
// Word operators are accepted in lower and upper case.
func ParseFormula(text string) (*Formula, error) {
	tokens, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	if p.peek().kind == tokEOF {
		return nil, NewLogicSyntaxError(1, "empty formula")
	}
	root, err := p.parseIff()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		if tok.kind == tokRParen {
			return nil, NewLogicSyntaxError(tok.col, "unbalanced parentheses: unexpected ')'")
		}
		return nil, NewLogicSyntaxError(tok.col, fmt.Sprintf("unexpected %s", tok))
	}
	return &Formula{source: text, root: root, vars: p.vars}, nil
}

// MustParseFormula is like ParseFormula but panics on error.
func MustParseFormula(text string) *Formula {
	f, err := ParseFormula(text)
	if err != nil {
		panic(err)
	}
	return f
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokTrue
	tokFalse
	tokLParen
	tokRParen
	tokNot
	tokAnd
	tokOr
	tokImplies
	tokIff
)

type token struct {
	kind tokenKind
	text string
	col  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of formula"
	}
	return fmt.Sprintf("%q", t.text)
}

var wordTokens = map[string]tokenKind{
	"not": tokNot, "NOT": tokNot,
	"and": tokAnd, "AND": tokAnd,
	"or": tokOr, "OR": tokOr,
	"implies": tokImplies, "IMPLIES": tokImplies,
	"iff": tokIff, "IFF": tokIff,
	"true": tokTrue, "TRUE": tokTrue,
	"false": tokFalse, "FALSE": tokFalse,
}

// symbolTokens is ordered so that longer spellings win.
var symbolTokens = []struct {
	text string
	kind tokenKind
}{
	{"<->", tokIff}, {"<=>", tokIff}, {"↔", tokIff},
	{"->", tokImplies}, {"=>", tokImplies}, {"→", tokImplies},
	{"&&", tokAnd}, {"&", tokAnd}, {"∧", tokAnd},
	{"||", tokOr}, {"|", tokOr}, {"∨", tokOr},
	{"!", tokNot}, {"~", tokNot}, {"¬", tokNot},
	{"(", tokLParen}, {")", tokRParen},
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}

// lex splits text into tokens. Columns are 1-based and count runes.
func lex(text string) ([]token, error) {
	var tokens []token
	col := 1
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			i += size
			col++
			continue
		}
		if isIdentStart(r) {
			start, startCol := i, col
			for i < len(text) {
				r, size = utf8.DecodeRuneInString(text[i:])
				if !isIdentPart(r) {
					break
				}
				i += size
				col++
			}
			word := text[start:i]
			kind, ok := wordTokens[word]
			if !ok {
				kind = tokIdent
			}
			tokens = append(tokens, token{kind: kind, text: word, col: startCol})
			continue
		}
		matched := false
		for _, sym := range symbolTokens {
			if strings.HasPrefix(text[i:], sym.text) {
				tokens = append(tokens, token{kind: sym.kind, text: sym.text, col: col})
				i += len(sym.text)
				col += utf8.RuneCountInString(sym.text)
				matched = true
				break
			}
		}
		if !matched {
			return nil, NewLogicSyntaxError(col, fmt.Sprintf("unknown operator %q", r))
		}
	}
	return append(tokens, token{kind: tokEOF, col: col}), nil
}

type parser struct {
	tokens []token
	pos    int
	vars   []string
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) parseIff() (*node, error) {
	left, err := p.parseImplies()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokIff {
		p.next()
		right, err := p.parseImplies()
		if err != nil {
			return nil, err
		}
		left = &node{op: OpIff, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseImplies() (*node, error) {
	left, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokImplies {
		return left, nil
	}
	p.next()
	right, err := p.parseImplies()
	if err != nil {
		return nil, err
	}
	return &node{op: OpImplies, left: left, right: right}, nil
}

func (p *parser) parseOr() (*node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &node{op: OpOr, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (*node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &node{op: OpAnd, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (*node, error) {
	if p.peek().kind == tokNot {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &node{op: OpNot, left: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (*node, error) {
	tok := p.next()
	switch tok.kind {
	case tokIdent:
		if !slices.Contains(p.vars, tok.text) {
			p.vars = append(p.vars, tok.text)
		}
		return &node{op: OpVar, name: tok.text}, nil
	case tokTrue:
		return &node{op: OpConst, value: true}, nil
	case tokFalse:
		return &node{op: OpConst, value: false}, nil
	case tokLParen:
		inner, err := p.parseIff()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, NewLogicSyntaxError(tok.col,
				fmt.Sprintf("unbalanced parentheses: '(' at column %d is not closed before %s", tok.col, closing))
		}
		return inner, nil
	case tokRParen:
		return nil, NewLogicSyntaxError(tok.col, "unbalanced parentheses: unexpected ')'")
	default:
		return nil, NewLogicSyntaxError(tok.col, fmt.Sprintf("expected feature or '(' but found %s", tok))
	}
}
