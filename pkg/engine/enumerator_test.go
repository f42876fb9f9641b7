package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"
	"time"
)

const alternativeXML = `<featureModel>
  <feature name="Root">
    <group type="xor">
      <feature name="X"/>
      <feature name="Y"/>
    </group>
  </feature>
</featureModel>`

const orGroupXML = `<featureModel>
  <feature name="Root">
    <group type="or">
      <feature name="P"/>
      <feature name="Q"/>
    </group>
  </feature>
  <constraints>
    <constraint><englishStatement>P requires Q</englishStatement></constraint>
  </constraints>
</featureModel>`

func labelsOf(t *testing.T, model *FeatureModel, opts EnumerationOptions) ([]string, EnumerationStats) {
	t.Helper()
	e, err := Enumerate(t.Context(), model, opts)
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	configs, err := e.Collect()
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	return Labels(configs), e.Stats()
}

func TestEnumerateOptionalPair(t *testing.T) {
	model := mustTranslate(t, optionalPairXML, LogicMapping{0: "A -> B"})

	got, stats := labelsOf(t, model, DefaultEnumerationOptions())
	want := []string{"Root", "B, Root", "A, B, Root"}
	if !slices.Equal(got, want) {
		t.Errorf("configurations = %q, want %q", got, want)
	}
	if slices.Contains(got, "A, Root") {
		t.Error("{Root, A} violates A -> B")
	}
	if stats.Pruned != 1 || stats.Found != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestEnumerateAlternativeGroup(t *testing.T) {
	model := mustTranslate(t, alternativeXML, nil)

	got, _ := labelsOf(t, model, DefaultEnumerationOptions())
	want := []string{"Root, X", "Root, Y"}
	if !slices.Equal(got, want) {
		t.Errorf("configurations = %q, want %q", got, want)
	}
}

func TestEnumerateOrGroupSurplus(t *testing.T) {
	plain := mustTranslate(t, alternativeXMLAsOr(), nil)
	got, stats := labelsOf(t, plain, DefaultEnumerationOptions())
	if want := []string{"Root, X", "Root, Y"}; !slices.Equal(got, want) {
		t.Errorf("configurations = %q, want %q", got, want)
	}
	if stats.Rejected != 1 {
		t.Errorf("rejected = %d, want 1", stats.Rejected)
	}

	constrained := mustTranslate(t, orGroupXML, LogicMapping{0: "P -> Q"})
	got, _ = labelsOf(t, constrained, DefaultEnumerationOptions())
	if want := []string{"Q, Root"}; !slices.Equal(got, want) {
		t.Errorf("configurations = %q, want %q", got, want)
	}
}

func alternativeXMLAsOr() string {
	return strings.Replace(alternativeXML, `type="xor"`, `type="or"`, 1)
}

func TestEnumerateCarModel(t *testing.T) {
	logic := LogicMapping{0: "Navigation -> Electric", 1: "!(Radio & Petrol)"}

	tests := []struct {
		minimality Minimality
		want       []string
	}{
		{
			minimality: MinimalityChoice,
			want: []string{
				"Car, Electric, Engine",
				"Car, Electric, Engine, Extras, Navigation",
				"Car, Electric, Engine, Extras, Radio",
				"Car, Engine, Petrol",
			},
		},
		{
			minimality: MinimalityStrict,
			want: []string{
				"Car, Electric, Engine",
				"Car, Engine, Petrol",
			},
		},
	}
	for _, tt := range tests {
		t.Run(string(tt.minimality), func(t *testing.T) {
			model := mustTranslate(t, carXML, logic)
			opts := DefaultEnumerationOptions()
			opts.Minimality = tt.minimality
			got, _ := labelsOf(t, model, opts)
			if !slices.Equal(got, tt.want) {
				t.Errorf("configurations =\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(tt.want, "\n"))
			}
		})
	}
}

func TestEnumerateStrictSingleRemoval(t *testing.T) {
	model := mustTranslate(t, optionalPairXML, LogicMapping{0: "A -> B"})
	opts := DefaultEnumerationOptions()
	opts.Minimality = MinimalityStrict

	configs, err := EnumerateAll(t.Context(), model, opts)
	if err != nil {
		t.Fatalf("EnumerateAll() error = %v", err)
	}
	if got := Labels(configs); !slices.Equal(got, []string{"Root"}) {
		t.Errorf("configurations = %q, want [Root]", got)
	}
	for _, cfg := range configs {
		for _, id := range cfg.Features() {
			r, _ := Validate(model, cfg.Without(id))
			if r.Valid {
				t.Errorf("%s stays valid without %s", cfg, id)
			}
		}
	}
}

func TestEnumerateDeterministic(t *testing.T) {
	logic := LogicMapping{0: "Navigation -> Electric", 1: "!(Radio & Petrol)"}
	first, _ := labelsOf(t, mustTranslate(t, carXML, logic), DefaultEnumerationOptions())
	second, _ := labelsOf(t, mustTranslate(t, carXML, logic), DefaultEnumerationOptions())
	if !slices.Equal(first, second) {
		t.Errorf("runs differ: %q vs %q", first, second)
	}
}

func TestEnumerateUnsatisfiable(t *testing.T) {
	tests := []struct {
		name  string
		logic LogicMapping
	}{
		{"constant false", LogicMapping{0: "false"}},
		{"contradiction", LogicMapping{0: "A & !A"}},
		{"root excluded", LogicMapping{0: "!Root"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := mustTranslate(t, optionalPairXML, tt.logic)
			configs, err := EnumerateAll(t.Context(), model, DefaultEnumerationOptions())
			if err != nil {
				t.Fatalf("EnumerateAll() error = %v", err)
			}
			if len(configs) != 0 {
				t.Errorf("configurations = %v, want none", Labels(configs))
			}
		})
	}
}

func TestEnumerateBounds(t *testing.T) {
	logic := LogicMapping{0: "Navigation -> Electric", 1: "!(Radio & Petrol)"}

	t.Run("node budget", func(t *testing.T) {
		model := mustTranslate(t, carXML, logic)
		e, _ := Enumerate(t.Context(), model, EnumerationOptions{MaxNodes: 5})
		configs, err := e.Collect()
		if !errors.Is(err, ErrEnumerationTimeout) {
			t.Fatalf("Collect() error = %v, want EnumerationTimeoutError", err)
		}
		if !IsRetryable(err) {
			t.Error("budget exhaustion should be retryable")
		}
		if len(configs) > 1 {
			t.Errorf("too many configurations before the budget ran out: %v", Labels(configs))
		}
		if e.Stats().Nodes != 5 {
			t.Errorf("nodes = %d, want 5", e.Stats().Nodes)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		model := mustTranslate(t, carXML, logic)
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		_, err := EnumerateAll(ctx, model, DefaultEnumerationOptions())
		if !errors.Is(err, ErrEnumerationTimeout) || !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("deadline", func(t *testing.T) {
		model := mustTranslate(t, carXML, logic)
		ctx, cancel := context.WithDeadline(t.Context(), time.Now().Add(-time.Second))
		defer cancel()
		_, err := EnumerateAll(ctx, model, DefaultEnumerationOptions())
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("error = %v", err)
		}
		if KindOf(err) != "EnumerationTimeoutError" {
			t.Errorf("KindOf() = %s", KindOf(err))
		}
	})

	t.Run("max results", func(t *testing.T) {
		model := mustTranslate(t, carXML, logic)
		opts := DefaultEnumerationOptions()
		opts.MaxResults = 2
		got, stats := labelsOf(t, model, opts)
		if len(got) != 2 || !stats.Truncated {
			t.Errorf("got %q, stats %+v", got, stats)
		}
	})

	t.Run("consumer stops early", func(t *testing.T) {
		model := mustTranslate(t, carXML, logic)
		e, _ := Enumerate(t.Context(), model, DefaultEnumerationOptions())
		n := 0
		for _, err := range e.All() {
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			n++
			break
		}
		if n != 1 {
			t.Errorf("consumed %d", n)
		}
	})
}

func TestEnumerationSingleUse(t *testing.T) {
	model := mustTranslate(t, alternativeXML, nil)
	e, err := Enumerate(t.Context(), model, DefaultEnumerationOptions())
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if _, err := e.Collect(); err != nil {
		t.Fatalf("first Collect() error = %v", err)
	}
	configs, err := e.Collect()
	if !errors.Is(err, ErrEnumerationConsumed) {
		t.Errorf("second Collect() error = %v", err)
	}
	if len(configs) != 0 {
		t.Errorf("second Collect() returned %v", Labels(configs))
	}
}

// randomModel builds a small random feature model with cross-tree constraints.
func randomModel(t *testing.T, r *rand.Rand) *FeatureModel {
	t.Helper()
	b := NewTreeBuilder("F0")
	ids := []string{"F0"}
	next := 1
	for next < 9 {
		parent := ids[r.IntN(len(ids))]
		switch r.IntN(4) {
		case 0:
			id := fmt.Sprintf("F%d", next)
			b.Add(parent, id, KindMandatory)
			ids = append(ids, id)
			next++
		case 1:
			id := fmt.Sprintf("F%d", next)
			b.Add(parent, id, KindOptional)
			ids = append(ids, id)
			next++
		default:
			kind := KindOr
			if r.IntN(2) == 0 {
				kind = KindAlternative
			}
			size := 2 + r.IntN(2)
			var members []string
			for range size {
				members = append(members, fmt.Sprintf("F%d", next))
				next++
			}
			b.AddGroup(parent, kind, members...)
			ids = append(ids, members...)
		}
	}
	tree, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	model := &FeatureModel{ID: "random", Tree: tree}
	logic := LogicMapping{}
	shapes := []string{"%s -> %s", "!(%s & %s)", "%s | %s", "%s <-> %s"}
	for i := range 1 + r.IntN(3) {
		a, c := ids[r.IntN(len(ids))], ids[r.IntN(len(ids))]
		model.Constraints = append(model.Constraints, &CrossTreeConstraint{
			Ordinal:          i,
			EnglishStatement: fmt.Sprintf("random rule %d", i),
		})
		logic[i] = fmt.Sprintf(shapes[r.IntN(len(shapes))], a, c)
	}
	if err := Translate(model, logic); err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	return model
}

// validConfigurations brute-forces every valid configuration of model.
func validConfigurations(t *testing.T, model *FeatureModel) []Configuration {
	t.Helper()
	ids := model.Tree.IDs()
	var out []Configuration
	for mask := 0; mask < 1<<len(ids); mask++ {
		var selected []string
		for i, id := range ids {
			if mask&(1<<i) != 0 {
				selected = append(selected, id)
			}
		}
		cfg := NewConfiguration(selected...)
		r, err := Validate(model, cfg)
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if r.Valid {
			out = append(out, cfg)
		}
	}
	return out
}

// removableOrMember reports whether cfg carries an or-group member whose
// subtree can be dropped with the result still valid.
func removableOrMember(t *testing.T, model *FeatureModel, cfg Configuration) bool {
	t.Helper()
	for _, g := range model.Tree.AllGroups() {
		if g.Kind != KindOr || !cfg.Has(g.Parent) {
			continue
		}
		var selected []string
		for _, m := range g.Members {
			if cfg.Has(m) {
				selected = append(selected, m)
			}
		}
		if len(selected) < 2 {
			continue
		}
		for _, m := range selected {
			r, _ := Validate(model, cfg.Without(model.Tree.Subtree(m)...))
			if r.Valid {
				return true
			}
		}
	}
	return false
}

func sortedLabels(configs []Configuration) []string {
	out := Labels(configs)
	slices.Sort(out)
	return out
}

func TestEnumerationAgreesWithValidation(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for i := range 40 {
		model := randomModel(t, r)
		valid := validConfigurations(t, model)

		var wantChoice, wantStrict []Configuration
		for _, cfg := range valid {
			if !removableOrMember(t, model, cfg) {
				wantChoice = append(wantChoice, cfg)
			}
			minimal := true
			for _, other := range valid {
				if other.Len() < cfg.Len() && other.IsSubsetOf(cfg) {
					minimal = false
					break
				}
			}
			if minimal {
				wantStrict = append(wantStrict, cfg)
			}
		}

		for _, mode := range []struct {
			minimality Minimality
			want       []Configuration
		}{
			{MinimalityChoice, wantChoice},
			{MinimalityStrict, wantStrict},
		} {
			opts := DefaultEnumerationOptions()
			opts.Minimality = mode.minimality
			got, err := EnumerateAll(t.Context(), model, opts)
			if err != nil {
				t.Fatalf("model %d: EnumerateAll() error = %v", i, err)
			}
			for _, cfg := range got {
				if res, _ := Validate(model, cfg); !res.Valid {
					t.Errorf("model %d (%s): enumerated %s fails validation: %s", i, mode.minimality, cfg, res.Reason())
				}
			}
			if g, w := sortedLabels(got), sortedLabels(mode.want); !slices.Equal(g, w) {
				t.Errorf("model %d (%s): enumerated %q, want %q\nlogic %v", i, mode.minimality, g, w, TranslationOf(model))
			}
			if mode.minimality == MinimalityStrict {
				for _, cfg := range got {
					for _, id := range cfg.Features() {
						if res, _ := Validate(model, cfg.Without(id)); res.Valid {
							t.Errorf("model %d: %s stays valid without %s", i, cfg, id)
						}
					}
				}
			}
		}
	}
}
