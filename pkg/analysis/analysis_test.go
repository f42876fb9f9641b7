package analysis

import (
	"errors"
	"slices"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/mwpkit/pkg/engine"
)

const carXML = `<featureModel>
  <feature name="Car">
    <feature name="Engine" mandatory="true">
      <group type="xor">
        <feature name="Petrol"/>
        <feature name="Electric"/>
      </group>
    </feature>
    <feature name="Extras">
      <group type="or">
        <feature name="Radio"/>
        <feature name="Navigation"/>
      </group>
    </feature>
  </feature>
  <constraints>
    <constraint><englishStatement>Navigation requires Electric</englishStatement></constraint>
    <constraint><englishStatement>Electric is not offered</englishStatement></constraint>
  </constraints>
</featureModel>`

func newAnalyzer(t *testing.T, logic engine.LogicMapping) (*Analyzer, *engine.FeatureModel) {
	t.Helper()
	model, err := engine.LoadBytes([]byte(carXML))
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	if err := engine.Translate(model, logic); err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	a, err := New(model, zerolog.New(nil).Level(zerolog.Disabled))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a, model
}

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name  string
		logic engine.LogicMapping
		void  bool
		core  []string
		dead  []string
	}{
		{
			name:  "open model",
			logic: engine.LogicMapping{0: "Navigation -> Electric", 1: "true"},
			core:  []string{"Car", "Engine"},
			dead:  []string{},
		},
		{
			name:  "electric removed",
			logic: engine.LogicMapping{0: "Navigation -> Electric", 1: "!Electric"},
			core:  []string{"Car", "Engine", "Petrol"},
			dead:  []string{"Electric", "Navigation"},
		},
		{
			name:  "contradiction",
			logic: engine.LogicMapping{0: "Car -> Electric", 1: "!Electric"},
			void:  true,
			core:  []string{},
			dead:  []string{"Car", "Engine", "Petrol", "Electric", "Extras", "Radio", "Navigation"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newAnalyzer(t, tt.logic)
			report, err := a.Analyze(t.Context())
			if err != nil {
				t.Fatalf("Analyze() error = %v", err)
			}
			if report.Void != tt.void {
				t.Errorf("Void = %v, want %v", report.Void, tt.void)
			}
			if !slices.Equal(report.CoreFeatures, tt.core) {
				t.Errorf("CoreFeatures = %v, want %v", report.CoreFeatures, tt.core)
			}
			if !slices.Equal(report.DeadFeatures, tt.dead) {
				t.Errorf("DeadFeatures = %v, want %v", report.DeadFeatures, tt.dead)
			}
		})
	}
}

func TestVoidConflicts(t *testing.T) {
	a, _ := newAnalyzer(t, engine.LogicMapping{0: "Car -> Electric", 1: "!Electric"})
	void, conflicts, err := a.Void(t.Context())
	if err != nil {
		t.Fatalf("Void() error = %v", err)
	}
	if !void {
		t.Fatal("model should be void")
	}
	for _, want := range []string{"root:Car", "constraint:0", "constraint:1"} {
		if !slices.Contains(conflicts, want) {
			t.Errorf("conflicts %v missing %s", conflicts, want)
		}
	}
}

func TestExplain(t *testing.T) {
	a, model := newAnalyzer(t, engine.LogicMapping{0: "Navigation -> Electric", 1: "!Electric"})

	ex, err := a.Explain(t.Context(), []string{"Radio"}, nil)
	if err != nil {
		t.Fatalf("Explain() error = %v", err)
	}
	if !ex.Satisfiable || ex.Completion == nil {
		t.Fatalf("Explain(Radio) = %+v", ex)
	}
	if !ex.Completion.Has("Radio") {
		t.Errorf("completion %s misses Radio", ex.Completion)
	}
	res, err := engine.Validate(model, *ex.Completion)
	if err != nil || !res.Valid {
		t.Errorf("completion %s is invalid: %s", ex.Completion, res.Reason())
	}

	ex, err = a.Explain(t.Context(), []string{"Navigation"}, nil)
	if err != nil {
		t.Fatalf("Explain() error = %v", err)
	}
	if ex.Satisfiable {
		t.Fatal("Navigation cannot be completed")
	}
	if !slices.Contains(ex.Conflicts, "constraint:0") || !slices.Contains(ex.Blocking, "Navigation") {
		t.Errorf("explanation = %+v", ex)
	}

	ex, err = a.Explain(t.Context(), nil, []string{"Petrol"})
	if err != nil {
		t.Fatalf("Explain() error = %v", err)
	}
	if ex.Satisfiable {
		t.Error("excluding Petrol leaves no engine")
	}

	if _, err := a.Explain(t.Context(), []string{"Turbo"}, nil); !errors.Is(err, engine.ErrUnknownFeature) {
		t.Errorf("unknown feature error = %v", err)
	}
}

func TestNewRequiresTranslation(t *testing.T) {
	model, err := engine.LoadBytes([]byte(carXML))
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	if _, err := New(model, zerolog.Nop()); !errors.Is(err, engine.ErrMissingLogic) {
		t.Errorf("New() error = %v", err)
	}
}

// Analysis and enumeration describe the same set of products.
func TestAnalysisAgreesWithEnumeration(t *testing.T) {
	a, model := newAnalyzer(t, engine.LogicMapping{0: "Navigation -> Electric", 1: "Radio -> Petrol"})
	report, err := a.Analyze(t.Context())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	configs, err := engine.EnumerateAll(t.Context(), model, engine.DefaultEnumerationOptions())
	if err != nil {
		t.Fatalf("EnumerateAll() error = %v", err)
	}
	if len(configs) == 0 {
		t.Fatal("no configurations")
	}
	for _, cfg := range configs {
		for _, id := range report.CoreFeatures {
			if !cfg.Has(id) {
				t.Errorf("core feature %s missing from %s", id, cfg)
			}
		}
		for _, id := range report.DeadFeatures {
			if cfg.Has(id) {
				t.Errorf("dead feature %s present in %s", id, cfg)
			}
		}
	}
}
