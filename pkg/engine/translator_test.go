package engine

import (
	"errors"
	"fmt"
	"testing"
)

// threeConstraintXML has constraints at ordinals 0, 1 and 2.
const threeConstraintXML = `<featureModel>
  <feature name="Root">
    <feature name="A"/>
    <feature name="B"/>
    <feature name="C"/>
  </feature>
  <constraints>
    <constraint><englishStatement>A requires B</englishStatement></constraint>
    <constraint><englishStatement>B excludes C</englishStatement></constraint>
    <constraint><englishStatement>C requires A</englishStatement></constraint>
  </constraints>
</featureModel>`

func TestTranslateMissingOrdinal(t *testing.T) {
	model := mustLoad(t, threeConstraintXML)

	err := Translate(model, LogicMapping{0: "A -> B", 1: "!(B & C)"})
	if !errors.Is(err, ErrMissingLogic) {
		t.Fatalf("Translate() error = %v, want MissingLogicError", err)
	}
	var ee *EngineError
	errors.As(err, &ee)
	if ee.Ordinal != 2 {
		t.Errorf("ordinal = %d, want 2", ee.Ordinal)
	}
	if KindOf(err) != "MissingLogicError" {
		t.Errorf("KindOf() = %s", KindOf(err))
	}
	if len(model.Untranslated()) != 3 {
		t.Error("formulas attached after a failed translation")
	}

	// The enumerator refuses an untranslated model before searching.
	if _, err := Enumerate(t.Context(), model, DefaultEnumerationOptions()); !errors.Is(err, ErrMissingLogic) {
		t.Errorf("Enumerate() error = %v, want MissingLogicError", err)
	}
	if _, err := Validate(model, NewConfiguration("Root")); !errors.Is(err, ErrMissingLogic) {
		t.Errorf("Validate() error = %v, want MissingLogicError", err)
	}
}

func TestTranslateErrors(t *testing.T) {
	tests := []struct {
		name    string
		logic   LogicMapping
		want    error
		ordinal int
		feature string
	}{
		{
			name:    "blank logic counts as missing",
			logic:   LogicMapping{0: "A -> B", 1: "  ", 2: "C -> A"},
			want:    ErrMissingLogic,
			ordinal: 1,
		},
		{
			name:    "lowest missing ordinal is reported",
			logic:   LogicMapping{2: "C -> A"},
			want:    ErrMissingLogic,
			ordinal: 0,
		},
		{
			name:    "extra ordinal",
			logic:   LogicMapping{0: "A", 1: "B", 2: "C", 5: "A"},
			want:    ErrUnknownOrdinal,
			ordinal: 5,
		},
		{
			name:    "syntax error carries ordinal",
			logic:   LogicMapping{0: "A -> B", 1: "B &", 2: "C -> A"},
			want:    ErrLogicSyntax,
			ordinal: 1,
		},
		{
			name:    "unknown feature",
			logic:   LogicMapping{0: "A -> B", 1: "!(B & C)", 2: "C -> Zed | Why"},
			want:    ErrUnknownFeature,
			ordinal: 2,
			feature: "Zed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := mustLoad(t, threeConstraintXML)
			err := Translate(model, tt.logic)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Translate() error = %v, want %v", err, tt.want)
			}
			var ee *EngineError
			errors.As(err, &ee)
			if ee.Ordinal != tt.ordinal {
				t.Errorf("ordinal = %d, want %d", ee.Ordinal, tt.ordinal)
			}
			if tt.feature != "" && ee.Feature != tt.feature {
				t.Errorf("feature = %q, want %q", ee.Feature, tt.feature)
			}
			if model.Translated() {
				t.Error("model translated despite error")
			}
		})
	}
}

func TestTranslateRoundTrip(t *testing.T) {
	logic := LogicMapping{0: "A -> B", 1: "not (B and C)", 2: "C => A"}
	model := mustTranslate(t, threeConstraintXML, logic)

	got := TranslationOf(model)
	for ordinal, text := range logic {
		if got[ordinal] != text {
			t.Errorf("TranslationOf()[%d] = %q, want %q", ordinal, got[ordinal], text)
		}
		f, ok := model.Formula(ordinal)
		if !ok {
			t.Fatalf("formula %d missing", ordinal)
		}
		if f.String() != MustParseFormula(text).String() {
			t.Errorf("formula %d = %s", ordinal, f)
		}
	}

	// Translating the recovered mapping binds equivalent formulas.
	again := mustTranslate(t, threeConstraintXML, got)
	for ordinal := range logic {
		a, _ := model.Formula(ordinal)
		b, _ := again.Formula(ordinal)
		if a.String() != b.String() {
			t.Errorf("round trip changed ordinal %d: %s != %s", ordinal, a, b)
		}
	}
}

func TestLogicKeys(t *testing.T) {
	m := LogicMapping{0: "A", 2: "B"}
	keyed := m.Keyed()
	if keyed["constraint-0"] != "A" || keyed["constraint-2"] != "B" {
		t.Errorf("Keyed() = %v", keyed)
	}

	back, err := LogicMappingFromKeys(map[string]string{"constraint-0": "A", "logic-1": "B", "2": "C"})
	if err != nil {
		t.Fatalf("LogicMappingFromKeys() error = %v", err)
	}
	if fmt.Sprint(back.Ordinals()) != "[0 1 2]" {
		t.Errorf("Ordinals() = %v", back.Ordinals())
	}

	if _, err := LogicMappingFromKeys(map[string]string{"constraint-1": "A", "logic-1": "B"}); err == nil {
		t.Error("duplicate ordinal accepted")
	}
	if _, err := ParseLogicKey("constraint-x"); !errors.Is(err, ErrUnknownOrdinal) {
		t.Errorf("ParseLogicKey() error = %v", err)
	}
}
