// Package suggest proposes propositional logic for cross-tree constraints
// from their English statements. Suggestions are hints: callers opt in, and
// every suggestion is parsed and resolved before it is returned.
package suggest

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openfroyo/mwpkit/pkg/engine"
)

const ident = `([A-Za-z_][A-Za-z0-9_]*)`

// phrase is one recognised sentence shape.
type phrase struct {
	re     *regexp.Regexp
	format string
}

func newPhrase(pattern, format string) phrase {
	// Optional articles and the word "feature" around identifiers are ignored.
	x := `(?:the\s+)?` + ident + `(?:\s+feature)?`
	return phrase{
		re:     regexp.MustCompile(`(?i)^\s*` + strings.ReplaceAll(pattern, "X", x) + `\s*[.!]?\s*$`),
		format: format,
	}
}

// phrases are tried in order; the first match wins.
var phrases = []phrase{
	newPhrase(`X\s+and\s+X\s+are\s+mutually\s+exclusive`, "!(%s & %s)"),
	newPhrase(`X\s+(?:if\s+and\s+only\s+if|iff)\s+X`, "%s <-> %s"),
	newPhrase(`if\s+X(?:\s+is\s+selected)?\s*,?\s*then\s+X(?:\s+(?:is|must\s+be)\s+selected)?`, "%s -> %s"),
	newPhrase(`X\s+(?:requires|needs|depends\s+on)\s+X`, "%s -> %s"),
	newPhrase(`X\s+implies\s+X`, "%s -> %s"),
	newPhrase(`X\s+(?:excludes|is\s+incompatible\s+with|conflicts\s+with)\s+X`, "!(%s & %s)"),
}

// PatternSuggester recognises a fixed set of English sentence shapes whose
// operands name features of the model.
type PatternSuggester struct {
	logger zerolog.Logger
}

// NewPatternSuggester creates a pattern suggester.
func NewPatternSuggester(logger zerolog.Logger) *PatternSuggester {
	return &PatternSuggester{
		logger: logger.With().Str("component", "suggest.pattern").Logger(),
	}
}

// Name implements engine.LogicSuggester.
func (p *PatternSuggester) Name() string {
	return "pattern"
}

// Suggest implements engine.LogicSuggester.
func (p *PatternSuggester) Suggest(ctx context.Context, model *engine.FeatureModel, ordinals []int) (engine.LogicMapping, error) {
	byFold := make(map[string]string, model.Tree.Len())
	for _, id := range model.Tree.IDs() {
		byFold[strings.ToLower(id)] = id
	}

	out := make(engine.LogicMapping)
	for _, ordinal := range ordinals {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, ok := model.Constraint(ordinal)
		if !ok {
			continue
		}
		if text, ok := match(c.EnglishStatement, byFold); ok {
			out[ordinal] = text
		}
	}

	p.logger.Debug().
		Int("requested", len(ordinals)).
		Int("suggested", len(out)).
		Msg("Pattern suggestions computed")
	return keepValid(model, out, p.logger), nil
}

func match(statement string, byFold map[string]string) (string, bool) {
	for _, ph := range phrases {
		m := ph.re.FindStringSubmatch(statement)
		if m == nil {
			continue
		}
		a, okA := byFold[strings.ToLower(m[1])]
		b, okB := byFold[strings.ToLower(m[2])]
		if !okA || !okB {
			continue
		}
		return fmt.Sprintf(ph.format, a, b), true
	}
	return "", false
}

// keepValid drops suggestions that do not parse or name unknown features.
func keepValid(model *engine.FeatureModel, m engine.LogicMapping, logger zerolog.Logger) engine.LogicMapping {
	out := make(engine.LogicMapping, len(m))
	for _, ordinal := range m.Ordinals() {
		f, err := engine.ParseFormula(m[ordinal])
		if err != nil {
			logger.Warn().Err(err).Int("ordinal", ordinal).Msg("Discarding unparsable suggestion")
			continue
		}
		valid := true
		for _, id := range f.Variables() {
			if !model.Tree.Has(id) {
				logger.Warn().Int("ordinal", ordinal).Str("feature", id).Msg("Discarding suggestion with unknown feature")
				valid = false
				break
			}
		}
		if valid {
			out[ordinal] = m[ordinal]
		}
	}
	return out
}
