package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/openfroyo/mwpkit/pkg/engine"
)

// Engine implements engine.PolicyEngine with Rego policies.
type Engine struct {
	mu              sync.RWMutex
	policies        map[string]*compiledPolicy
	params          map[string]interface{}
	logger          zerolog.Logger
	loader          *Loader
	builtinPolicies []Policy
}

var _ engine.PolicyEngine = (*Engine)(nil)

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates a new policy engine with the built-in policies. params
// is handed to every policy as input.params. The parameters read by the
// built-in policies are type checked here so that a typo fails at startup
// instead of silently disabling a policy.
func NewEngine(logger zerolog.Logger, params map[string]interface{}) (*Engine, error) {
	if params == nil {
		params = map[string]interface{}{}
	}
	if err := checkParams(params); err != nil {
		return nil, err
	}
	e := &Engine{
		policies:        make(map[string]*compiledPolicy),
		params:          params,
		logger:          logger.With().Str("component", "policy-engine").Logger(),
		loader:          NewLoader(logger),
		builtinPolicies: GetBuiltinPolicies(),
	}

	if err := e.loadBuiltinPolicies(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load built-in policies: %w", err)
	}

	return e, nil
}

// builtinParams are the input.params keys the built-in policies read.
type builtinParams struct {
	MaxFeatures *int     `json:"max_features" validate:"omitempty,gte=0"`
	Forbidden   []string `json:"forbidden" validate:"dive,required"`
}

var paramsValidator = validator.New()

// checkParams rejects built-in parameters of the wrong shape. Other keys
// belong to custom policies and pass through unchecked.
func checkParams(params map[string]interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("invalid policy params: %w", err)
	}
	var bp builtinParams
	if err := json.Unmarshal(data, &bp); err != nil {
		return fmt.Errorf("invalid policy params: max_features must be an integer and forbidden a list of feature names: %w", err)
	}
	if err := paramsValidator.Struct(bp); err != nil {
		return fmt.Errorf("invalid policy params: %w", err)
	}
	return nil
}

// EvaluateConfigurations evaluates every enabled policy against each of
// cfgs, which operation produced from model. Results follow cfgs order.
// Policies that fail to evaluate are reported as warnings.
func (e *Engine) EvaluateConfigurations(ctx context.Context, model *engine.FeatureModel, operation string, cfgs []engine.Configuration) ([]*engine.PolicyResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	modelInput := newModelInput(model)
	results := make([]*engine.PolicyResult, 0, len(cfgs))
	for _, cfg := range cfgs {
		input := &PolicyInput{
			Configuration: cfg.Features(),
			Model:         modelInput,
			Params:        e.params,
			Context: &PolicyContext{
				Timestamp: time.Now(),
				Operation: operation,
			},
		}
		result, err := e.evaluateConfiguration(ctx, input, cfg)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// evaluateConfiguration runs the enabled policies over one input. Callers
// hold e.mu.
func (e *Engine) evaluateConfiguration(ctx context.Context, input *PolicyInput, cfg engine.Configuration) (*engine.PolicyResult, error) {
	startTime := input.Context.Timestamp

	var allViolations []engine.PolicyViolation
	var warnings []string

	for _, name := range slices.Sorted(maps.Keys(e.policies)) {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}

		violations, err := e.evaluatePolicy(ctx, cp, input, cfg)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Error().Err(err).
				Str("policy", cp.policy.Name).
				Str("configuration", cfg.Label()).
				Msg("Policy evaluation failed")
			warnings = append(warnings, fmt.Sprintf("Policy %s evaluation failed: %v", cp.policy.Name, err))
			continue
		}

		allViolations = append(allViolations, violations...)
	}

	allowed := true
	for i := range allViolations {
		if Severity(allViolations[i].Severity).Blocking() {
			allowed = false
			break
		}
	}

	e.logger.Debug().
		Str("configuration", cfg.Label()).
		Str("operation", input.Context.Operation).
		Int("violations", len(allViolations)).
		Dur("duration", time.Since(startTime)).
		Msg("Configuration policy evaluation completed")

	return &engine.PolicyResult{
		Allowed:     allowed,
		Violations:  allViolations,
		Warnings:    warnings,
		EvaluatedAt: time.Now(),
	}, nil
}

// LoadPolicies loads policy files and directories, replacing any policy
// with the same name.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := e.loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range policies {
		if err := e.compileAndStorePolicy(ctx, &policies[i]); err != nil {
			e.logger.Error().Err(err).
				Str("policy", policies[i].Name).
				Msg("Failed to compile policy")
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.Info().
		Int("count", len(policies)).
		Msg("Policies loaded successfully")

	return nil
}

// ReplacePolicies swaps every loaded policy for policies, keeping the
// built-in ones. Nothing changes if any policy fails to compile.
func (e *Engine) ReplacePolicies(ctx context.Context, policies []Policy) error {
	next := make(map[string]*compiledPolicy, len(policies)+len(e.builtinPolicies))
	for i := range policies {
		cp, err := compilePolicy(ctx, &policies[i])
		if err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
		next[policies[i].Name] = cp
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for name, cp := range e.policies {
		if _, replaced := next[name]; !replaced && cp.policy.Builtin {
			next[name] = cp
		}
	}
	e.policies = next
	return nil
}

// Watch reloads policies from paths whenever a policy file changes, until
// ctx is done.
func (e *Engine) Watch(ctx context.Context, paths []string) error {
	return e.loader.Watch(ctx, paths, func(policies []Policy) error {
		return e.ReplacePolicies(ctx, policies)
	})
}

// evaluatePolicy evaluates a single compiled policy.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *PolicyInput, cfg engine.Configuration) ([]engine.PolicyViolation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []engine.PolicyViolation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, createViolation(cp.policy, d, cfg))
		}
	}

	// Set iteration order is not guaranteed.
	slices.SortFunc(violations, func(a, b engine.PolicyViolation) int {
		return strings.Compare(a.Message, b.Message)
	})
	return violations, nil
}

// packageName returns the Rego package path without the data prefix.
func packageName(module *ast.Module) string {
	return strings.TrimPrefix(module.Package.Path.String(), "data.")
}

// createViolation creates a PolicyViolation from one deny set member.
func createViolation(policy *Policy, result interface{}, cfg engine.Configuration) engine.PolicyViolation {
	violation := engine.PolicyViolation{
		Policy:        policy.Name,
		Configuration: cfg.Label(),
		Severity:      string(policy.Severity),
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = sev
		}
		if rem, ok := v["remediation"].(string); ok {
			violation.Remediation = rem
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// compilePolicy parses a policy and prepares its deny query.
func compilePolicy(ctx context.Context, policy *Policy) (*compiledPolicy, error) {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}

	r := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Query(fmt.Sprintf("data.%s.deny", packageName(module))),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}

	return &compiledPolicy{
		policy:   policy,
		module:   module,
		query:    query,
		compiled: time.Now(),
	}, nil
}

// compileAndStorePolicy compiles a policy and stores it. Callers hold e.mu.
func (e *Engine) compileAndStorePolicy(ctx context.Context, policy *Policy) error {
	cp, err := compilePolicy(ctx, policy)
	if err != nil {
		return err
	}
	e.policies[policy.Name] = cp

	e.logger.Debug().
		Str("policy", policy.Name).
		Str("package", packageName(cp.module)).
		Msg("Policy compiled successfully")

	return nil
}

// loadBuiltinPolicies loads the built-in policies.
func (e *Engine) loadBuiltinPolicies(ctx context.Context) error {
	for i := range e.builtinPolicies {
		if err := e.compileAndStorePolicy(ctx, &e.builtinPolicies[i]); err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", e.builtinPolicies[i].Name, err)
		}
	}

	e.logger.Debug().
		Int("count", len(e.builtinPolicies)).
		Msg("Built-in policies loaded")

	return nil
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}

	return cp.policy, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range slices.Sorted(maps.Keys(e.policies)) {
		policies = append(policies, *e.policies[name].policy)
	}

	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}

	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy state changed")

	return nil
}
