package engine

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// LogicMapping maps constraint ordinals to propositional-logic text.
type LogicMapping map[int]string

// logicKeyPrefix is the wire prefix for ordinal keys, as in "constraint-2".
const logicKeyPrefix = "constraint-"

// Keyed renders the mapping with wire keys of the form "constraint-<ordinal>".
func (m LogicMapping) Keyed() map[string]string {
	out := make(map[string]string, len(m))
	for ordinal, text := range m {
		out[logicKeyPrefix+strconv.Itoa(ordinal)] = text
	}
	return out
}

// Ordinals returns the mapped ordinals in ascending order.
func (m LogicMapping) Ordinals() []int {
	out := make([]int, 0, len(m))
	for ordinal := range m {
		out = append(out, ordinal)
	}
	slices.Sort(out)
	return out
}

// ParseLogicKey converts a wire key ("constraint-2", "logic-2" or "2") to an ordinal.
func ParseLogicKey(key string) (int, error) {
	raw := strings.TrimSpace(key)
	for _, prefix := range []string{logicKeyPrefix, "logic-"} {
		raw = strings.TrimPrefix(raw, prefix)
	}
	ordinal, err := strconv.Atoi(raw)
	if err != nil || ordinal < 0 {
		return 0, &EngineError{
			Class:   ErrorClassTranslation,
			Code:    ErrCodeUnknownOrdinal,
			Message: fmt.Sprintf("invalid logic key %q", key),
			Ordinal: NoOrdinal,
			Err:     err,
		}
	}
	return ordinal, nil
}

// LogicMappingFromKeys builds a LogicMapping from wire keys.
func LogicMappingFromKeys(keyed map[string]string) (LogicMapping, error) {
	out := make(LogicMapping, len(keyed))
	keys := make([]string, 0, len(keyed))
	for k := range keyed {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		ordinal, err := ParseLogicKey(k)
		if err != nil {
			return nil, err
		}
		if _, dup := out[ordinal]; dup {
			return nil, &EngineError{
				Class:   ErrorClassTranslation,
				Code:    ErrCodeUnknownOrdinal,
				Message: fmt.Sprintf("logic supplied twice for constraint %d", ordinal),
				Ordinal: ordinal,
			}
		}
		out[ordinal] = keyed[k]
	}
	return out, nil
}

// Translate binds one formula to every constraint of model.
//
// Every ordinal must be present with non-blank text; the lowest missing one
// is reported with a MissingLogicError. Keys naming no constraint are
// rejected. Formulas are parsed and their identifiers resolved against the
// tree; nothing is attached unless all of them succeed.
func Translate(model *FeatureModel, logic LogicMapping) error {
	for ordinal := range model.Constraints {
		if text, ok := logic[ordinal]; !ok || strings.TrimSpace(text) == "" {
			return NewMissingLogicError(ordinal)
		}
	}
	for _, ordinal := range logic.Ordinals() {
		if ordinal < 0 || ordinal >= len(model.Constraints) {
			return NewUnknownOrdinalError(ordinal, len(model.Constraints))
		}
	}

	formulas := make([]*Formula, len(model.Constraints))
	for ordinal := range model.Constraints {
		f, err := ParseFormula(logic[ordinal])
		if err != nil {
			var ee *EngineError
			if errors.As(err, &ee) {
				return ee.withOrdinal(ordinal)
			}
			return err
		}
		for _, id := range f.vars {
			if !model.Tree.Has(id) {
				return NewUnknownFeatureError(ordinal, id)
			}
		}
		formulas[ordinal] = f
	}

	for ordinal, c := range model.Constraints {
		c.formula = formulas[ordinal]
	}
	return nil
}

// TranslationOf returns the logic text currently bound to each constraint.
func TranslationOf(model *FeatureModel) LogicMapping {
	out := make(LogicMapping)
	for _, c := range model.Constraints {
		if c.formula != nil {
			out[c.Ordinal] = c.formula.Source()
		}
	}
	return out
}
