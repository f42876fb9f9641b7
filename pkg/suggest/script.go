package suggest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/openfroyo/mwpkit/pkg/engine"
)

// DefaultScriptTimeout bounds a script run when no timeout is configured.
const DefaultScriptTimeout = 5 * time.Second

// ErrScriptTimeout is returned when a script does not finish in time.
var ErrScriptTimeout = errors.New("suggestion script timed out")

// ScriptSuggester runs a Starlark script to propose logic. The script sees
//
//	constraints  list of struct(ordinal, statement) still lacking logic
//	features     list of feature identifiers in tree order
//
// and must assign a dict to the global logic, keyed by ordinal:
//
//	logic = {c.ordinal: c.statement.replace(" requires ", " -> ") for c in constraints}
type ScriptSuggester struct {
	name    string
	script  string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewScriptSuggester creates a suggester from script source. name is used
// as the file name in Starlark error messages.
func NewScriptSuggester(name, script string, timeout time.Duration, logger zerolog.Logger) *ScriptSuggester {
	if timeout <= 0 {
		timeout = DefaultScriptTimeout
	}
	return &ScriptSuggester{
		name:    name,
		script:  script,
		timeout: timeout,
		logger:  logger.With().Str("component", "suggest.script").Str("script", name).Logger(),
	}
}

// LoadScriptSuggester reads a script from path.
func LoadScriptSuggester(path string, timeout time.Duration, logger zerolog.Logger) (*ScriptSuggester, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suggestion script %s: %w", path, err)
	}
	return NewScriptSuggester(path, string(data), timeout, logger), nil
}

// Name implements engine.LogicSuggester.
func (s *ScriptSuggester) Name() string {
	return "script"
}

// Suggest implements engine.LogicSuggester.
func (s *ScriptSuggester) Suggest(ctx context.Context, model *engine.FeatureModel, ordinals []int) (engine.LogicMapping, error) {
	startTime := time.Now()

	evalCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name: "mwpkit-suggest",
		Print: func(_ *starlark.Thread, msg string) {
			s.logger.Debug().Str("output", msg).Msg("Script output")
		},
	}

	type outcome struct {
		logic engine.LogicMapping
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		logic, err := s.run(thread, model, ordinals)
		done <- outcome{logic, err}
	}()

	select {
	case <-evalCtx.Done():
		thread.Cancel("timeout")
		s.logger.Warn().Dur("timeout", s.timeout).Msg("Suggestion script timed out")
		if errors.Is(evalCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %v", ErrScriptTimeout, s.timeout)
		}
		return nil, evalCtx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		s.logger.Debug().
			Int("suggested", len(res.logic)).
			Dur("duration", time.Since(startTime)).
			Msg("Script suggestions computed")
		return keepValid(model, res.logic, s.logger), nil
	}
}

func (s *ScriptSuggester) run(thread *starlark.Thread, model *engine.FeatureModel, ordinals []int) (engine.LogicMapping, error) {
	wanted := make(map[int]bool, len(ordinals))
	constraints := make([]starlark.Value, 0, len(ordinals))
	for _, ordinal := range ordinals {
		c, ok := model.Constraint(ordinal)
		if !ok {
			continue
		}
		wanted[ordinal] = true
		constraints = append(constraints, starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
			"ordinal":   starlark.MakeInt(c.Ordinal),
			"statement": starlark.String(c.EnglishStatement),
		}))
	}

	ids := model.Tree.IDs()
	features := make([]starlark.Value, len(ids))
	for i, id := range ids {
		features[i] = starlark.String(id)
	}

	predeclared := starlark.StringDict{
		"struct":      starlarkstruct.Default,
		"constraints": starlark.NewList(constraints),
		"features":    starlark.NewList(features),
	}

	globals, err := starlark.ExecFile(thread, s.name, s.script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("suggestion script failed: %w", err)
	}

	value, ok := globals["logic"]
	if !ok {
		return engine.LogicMapping{}, nil
	}
	dict, ok := value.(*starlark.Dict)
	if !ok {
		return nil, fmt.Errorf("suggestion script: logic must be a dict, got %s", value.Type())
	}

	out := make(engine.LogicMapping, dict.Len())
	for _, item := range dict.Items() {
		ordinal, err := ordinalOf(item[0])
		if err != nil {
			return nil, err
		}
		text, ok := starlark.AsString(item[1])
		if !ok {
			return nil, fmt.Errorf("suggestion script: logic for %d must be a string, got %s", ordinal, item[1].Type())
		}
		if wanted[ordinal] && text != "" {
			out[ordinal] = text
		}
	}
	return out, nil
}

// ordinalOf accepts int keys and the string forms engine.ParseLogicKey knows.
func ordinalOf(v starlark.Value) (int, error) {
	switch k := v.(type) {
	case starlark.Int:
		i, ok := k.Int64()
		if !ok {
			return 0, fmt.Errorf("suggestion script: ordinal %s out of range", k)
		}
		return int(i), nil
	case starlark.String:
		return engine.ParseLogicKey(string(k))
	default:
		return 0, fmt.Errorf("suggestion script: logic key must be an int or string, got %s", v.Type())
	}
}
