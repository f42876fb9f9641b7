package engine

import (
	"errors"
	"slices"
	"testing"
)

func TestParseFormulaCanonical(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"A", "A"},
		{"A -> B", "A -> B"},
		{"A => B", "A -> B"},
		{"A implies B", "A -> B"},
		{"A → B", "A -> B"},
		{"!A", "!A"},
		{"~A", "!A"},
		{"NOT A", "!A"},
		{"¬A", "!A"},
		{"A && B", "A & B"},
		{"A AND B", "A & B"},
		{"A || B", "A | B"},
		{"A or B", "A | B"},
		{"A <=> B", "A <-> B"},
		{"A iff B", "A <-> B"},
		{"A | B & C", "A | B & C"},
		{"(A | B) & C", "(A | B) & C"},
		{"!A & B", "!A & B"},
		{"!(A & B)", "!(A & B)"},
		{"A -> B -> C", "A -> B -> C"},
		{"(A -> B) -> C", "(A -> B) -> C"},
		{"A <-> B -> C", "A <-> B -> C"},
		{"A & B -> C | D", "A & B -> C | D"},
		{"((A))", "A"},
		{"true & !false", "true & !false"},
		{"A | (B | C)", "A | (B | C)"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			f, err := ParseFormula(tt.in)
			if err != nil {
				t.Fatalf("ParseFormula(%q) error = %v", tt.in, err)
			}
			if got := f.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if f.Source() != tt.in {
				t.Errorf("Source() = %q", f.Source())
			}
			again, err := ParseFormula(f.String())
			if err != nil {
				t.Fatalf("reparse error = %v", err)
			}
			if again.String() != f.String() {
				t.Errorf("reparse String() = %q, want %q", again.String(), f.String())
			}
		})
	}
}

func TestParseFormulaErrors(t *testing.T) {
	tests := []struct {
		in     string
		column int
	}{
		{"", 1},
		{"   ", 1},
		{"A &", 4},
		{"A B", 3},
		{"(A | B", 1},
		{"A | B)", 6},
		{")", 1},
		{"A # B", 3},
		{"A & (B | ", 10},
		{"->", 1},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParseFormula(tt.in)
			if !errors.Is(err, ErrLogicSyntax) {
				t.Fatalf("ParseFormula(%q) error = %v, want LogicSyntaxError", tt.in, err)
			}
			var ee *EngineError
			errors.As(err, &ee)
			if ee.Column != tt.column {
				t.Errorf("column = %d, want %d (%v)", ee.Column, tt.column, err)
			}
			if !IsTranslation(err) {
				t.Error("syntax errors belong to the translation class")
			}
		})
	}
}

func TestFormulaVariables(t *testing.T) {
	f := MustParseFormula("C -> (B | A) & !C")
	if got := f.Variables(); !slices.Equal(got, []string{"A", "B", "C"}) {
		t.Errorf("Variables() = %v", got)
	}
	if !f.References("B") || f.References("D") {
		t.Error("References() mismatch")
	}
	if got := MustParseFormula("true").Variables(); len(got) != 0 {
		t.Errorf("constant formula variables = %v", got)
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		formula string
		cfg     Configuration
		want    bool
	}{
		{"A -> B", NewConfiguration("Root"), true},
		{"A -> B", NewConfiguration("Root", "A"), false},
		{"A -> B", NewConfiguration("Root", "A", "B"), true},
		{"!(A & B)", NewConfiguration("A", "B"), false},
		{"A <-> B", NewConfiguration(), true},
		{"A <-> B", NewConfiguration("B"), false},
		{"A | B & C", NewConfiguration("A"), true},
		{"(A | B) & C", NewConfiguration("A"), false},
		{"A -> B -> C", NewConfiguration("A", "B"), false},
		{"A -> B -> C", NewConfiguration("A"), true},
		{"true", NewConfiguration(), true},
		{"false | X", NewConfiguration("X"), true},
		{"Unknown", NewConfiguration("A"), false},
	}
	for _, tt := range tests {
		f := MustParseFormula(tt.formula)
		if got := Evaluate(f, tt.cfg); got != tt.want {
			t.Errorf("Evaluate(%q, %s) = %v, want %v", tt.formula, tt.cfg, got, tt.want)
		}
		// Evaluation is pure: a second call agrees with the first.
		if f.Eval(tt.cfg) != Evaluate(f, tt.cfg) {
			t.Errorf("Eval(%q) is not idempotent", tt.formula)
		}
	}
}

func TestEvaluatePartial(t *testing.T) {
	assign := func(values map[string]Truth) func(string) Truth {
		return func(id string) Truth { return values[id] }
	}
	tests := []struct {
		formula string
		values  map[string]Truth
		want    Truth
	}{
		{"A -> B", map[string]Truth{}, TruthUnknown},
		{"A -> B", map[string]Truth{"A": TruthFalse}, TruthTrue},
		{"A -> B", map[string]Truth{"B": TruthTrue}, TruthTrue},
		{"A -> B", map[string]Truth{"A": TruthTrue}, TruthUnknown},
		{"A -> B", map[string]Truth{"A": TruthTrue, "B": TruthFalse}, TruthFalse},
		{"A & B", map[string]Truth{"B": TruthFalse}, TruthFalse},
		{"A | B", map[string]Truth{"B": TruthTrue}, TruthTrue},
		{"!A", map[string]Truth{}, TruthUnknown},
		{"A <-> B", map[string]Truth{"A": TruthTrue}, TruthUnknown},
		{"A <-> B", map[string]Truth{"A": TruthTrue, "B": TruthTrue}, TruthTrue},
		{"!(A & B)", map[string]Truth{"A": TruthTrue, "B": TruthTrue}, TruthFalse},
	}
	for _, tt := range tests {
		got := EvaluatePartial(MustParseFormula(tt.formula), assign(tt.values))
		if got != tt.want {
			t.Errorf("EvaluatePartial(%q, %v) = %s, want %s", tt.formula, tt.values, got, tt.want)
		}
	}
}

func TestFold(t *testing.T) {
	f := MustParseFormula("A -> !(B | C)")
	depth := Fold(f,
		func(string) int { return 1 },
		func(bool) int { return 1 },
		func(d int) int { return d + 1 },
		func(_ Op, l, r int) int { return max(l, r) + 1 },
	)
	if depth != 4 {
		t.Errorf("depth = %d, want 4", depth)
	}
}
