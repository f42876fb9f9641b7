package suggest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/mwpkit/pkg/engine"
)

const modelXML = `<featureModel>
  <feature name="Shop">
    <feature name="Catalog" mandatory="true"/>
    <feature name="Search"/>
    <feature name="Location"/>
    <feature name="GPS"/>
    <feature name="Cash"/>
    <feature name="Card"/>
  </feature>
  <constraints>
    <constraint><englishStatement>Search requires Catalog</englishStatement></constraint>
    <constraint><englishStatement>The Cash feature excludes the Card feature.</englishStatement></constraint>
    <constraint><englishStatement>If location is selected then GPS must be selected</englishStatement></constraint>
    <constraint><englishStatement>Cash and Card are mutually exclusive</englishStatement></constraint>
    <constraint><englishStatement>GPS iff Location</englishStatement></constraint>
    <constraint><englishStatement>Search implies Location</englishStatement></constraint>
    <constraint><englishStatement>Checkout requires Payment</englishStatement></constraint>
    <constraint><englishStatement>Customers like fast pages</englishStatement></constraint>
  </constraints>
</featureModel>`

var quiet = zerolog.New(nil).Level(zerolog.Disabled)

func loadModel(t *testing.T) *engine.FeatureModel {
	t.Helper()
	model, err := engine.LoadBytes([]byte(modelXML))
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	return model
}

func allOrdinals(model *engine.FeatureModel) []int {
	out := make([]int, len(model.Constraints))
	for i := range out {
		out[i] = i
	}
	return out
}

func TestPatternSuggester(t *testing.T) {
	model := loadModel(t)
	got, err := NewPatternSuggester(quiet).Suggest(t.Context(), model, allOrdinals(model))
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}

	want := engine.LogicMapping{
		0: "Search -> Catalog",
		1: "!(Cash & Card)",
		2: "Location -> GPS",
		3: "!(Cash & Card)",
		4: "GPS <-> Location",
		5: "Search -> Location",
	}
	if len(got) != len(want) {
		t.Errorf("suggested %d, want %d: %v", len(got), len(want), got)
	}
	for ordinal, text := range want {
		if got[ordinal] != text {
			t.Errorf("ordinal %d = %q, want %q", ordinal, got[ordinal], text)
		}
	}
	for _, ordinal := range []int{6, 7} {
		if _, ok := got[ordinal]; ok {
			t.Errorf("ordinal %d should not be suggested", ordinal)
		}
	}
}

func TestScriptSuggester(t *testing.T) {
	model := loadModel(t)
	script := `
def translate(c):
    words = c.statement.split(" ")
    if len(words) == 3 and words[1] == "requires" and words[0] in features and words[2] in features:
        return words[0] + " -> " + words[2]
    return ""

logic = {c.ordinal: translate(c) for c in constraints}
logic["constraint-5"] = "Search -> Nowhere"
`
	s := NewScriptSuggester("requires.star", script, time.Second, quiet)
	got, err := s.Suggest(t.Context(), model, []int{0, 5, 6})
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if len(got) != 1 || got[0] != "Search -> Catalog" {
		t.Errorf("Suggest() = %v", got)
	}
}

func TestScriptSuggesterErrors(t *testing.T) {
	model := loadModel(t)
	tests := []struct {
		name   string
		script string
		want   error
	}{
		{"syntax error", "logic = {", nil},
		{"wrong type", `logic = ["A -> B"]`, nil},
		{"runaway", "def spin():\n    for i in range(100000000):\n        pass\nspin()\n", ErrScriptTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScriptSuggester(tt.name, tt.script, 50*time.Millisecond, quiet)
			_, err := s.Suggest(t.Context(), model, []int{0})
			if err == nil {
				t.Fatal("Suggest() error = nil")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

type fixed struct {
	name  string
	logic engine.LogicMapping
	calls *[][]int
}

func (f fixed) Name() string { return f.name }

func (f fixed) Suggest(_ context.Context, _ *engine.FeatureModel, ordinals []int) (engine.LogicMapping, error) {
	*f.calls = append(*f.calls, ordinals)
	out := engine.LogicMapping{}
	for _, o := range ordinals {
		if text, ok := f.logic[o]; ok {
			out[o] = text
		}
	}
	return out, nil
}

func TestChainAndComplete(t *testing.T) {
	model := loadModel(t)
	var calls [][]int
	chain := Chain{
		fixed{name: "first", logic: engine.LogicMapping{1: "Cash -> Card"}, calls: &calls},
		fixed{name: "second", logic: engine.LogicMapping{1: "Card", 2: "GPS"}, calls: &calls},
	}

	got, err := Complete(t.Context(), chain, model, engine.LogicMapping{0: "Search", 3: "Cash"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	want := engine.LogicMapping{0: "Search", 1: "Cash -> Card", 2: "GPS", 3: "Cash"}
	if len(got) != len(want) {
		t.Fatalf("Complete() = %v", got)
	}
	for ordinal, text := range want {
		if got[ordinal] != text {
			t.Errorf("ordinal %d = %q, want %q", ordinal, got[ordinal], text)
		}
	}
	if len(calls) != 2 || len(calls[0]) != 6 || len(calls[1]) != 5 {
		t.Errorf("calls = %v", calls)
	}
}

func TestPatternSuggestionsTranslate(t *testing.T) {
	model := loadModel(t)
	logic, err := Complete(t.Context(), NewPatternSuggester(quiet), model, engine.LogicMapping{6: "true", 7: "true"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if err := engine.Translate(model, logic); err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
}
