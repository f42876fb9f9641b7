package suggest

import (
	"context"
	"fmt"
	"slices"

	"github.com/openfroyo/mwpkit/pkg/engine"
)

// Chain asks each suggester in turn for the ordinals still lacking logic.
// The first suggestion for an ordinal wins.
type Chain []engine.LogicSuggester

// Name implements engine.LogicSuggester.
func (c Chain) Name() string {
	return "chain"
}

// Suggest implements engine.LogicSuggester.
func (c Chain) Suggest(ctx context.Context, model *engine.FeatureModel, ordinals []int) (engine.LogicMapping, error) {
	out := make(engine.LogicMapping)
	pending := slices.Clone(ordinals)
	for _, s := range c {
		if len(pending) == 0 {
			break
		}
		got, err := s.Suggest(ctx, model, pending)
		if err != nil {
			return nil, fmt.Errorf("%s suggester: %w", s.Name(), err)
		}
		pending = slices.DeleteFunc(pending, func(ordinal int) bool {
			text, ok := got[ordinal]
			if ok {
				out[ordinal] = text
			}
			return ok
		})
	}
	return out, nil
}

// Complete fills the constraints of model that lack logic, combining base
// with suggestions for the remaining ordinals. base wins over suggestions.
func Complete(ctx context.Context, s engine.LogicSuggester, model *engine.FeatureModel, base engine.LogicMapping) (engine.LogicMapping, error) {
	out := make(engine.LogicMapping, len(model.Constraints))
	var missing []int
	for _, c := range model.Constraints {
		if text, ok := base[c.Ordinal]; ok && text != "" {
			out[c.Ordinal] = text
			continue
		}
		missing = append(missing, c.Ordinal)
	}
	if len(missing) == 0 || s == nil {
		return out, nil
	}
	got, err := s.Suggest(ctx, model, missing)
	if err != nil {
		return nil, err
	}
	for _, ordinal := range missing {
		if text, ok := got[ordinal]; ok {
			out[ordinal] = text
		}
	}
	return out, nil
}
