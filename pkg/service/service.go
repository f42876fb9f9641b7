// Package service exposes the feature-model engine as request/response
// operations: Parse, TranslateAndEnumerate, CalculateMWP and Validate, plus
// batch validation and analysis. Every operation is request scoped. The
// service holds configuration and collaborators only, never models.
package service

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/mwpkit/pkg/analysis"
	"github.com/openfroyo/mwpkit/pkg/config"
	"github.com/openfroyo/mwpkit/pkg/engine"
	"github.com/openfroyo/mwpkit/pkg/policy"
	"github.com/openfroyo/mwpkit/pkg/suggest"
	"github.com/openfroyo/mwpkit/pkg/telemetry"
)

// ErrInvalidRequest wraps request validation failures.
var ErrInvalidRequest = errors.New("invalid request")

// Service runs engine operations with the configured limits, suggesters and
// policies. It is safe for concurrent use.
type Service struct {
	settings  *config.Settings
	suggester engine.LogicSuggester
	policies  engine.PolicyEngine
	validate  *validator.Validate
}

// Option configures a Service.
type Option func(*Service)

// WithSuggester sets the suggester used when a request opts in.
func WithSuggester(s engine.LogicSuggester) Option {
	return func(svc *Service) { svc.suggester = s }
}

// WithPolicyEngine sets the policy engine that annotates results.
func WithPolicyEngine(p engine.PolicyEngine) Option {
	return func(svc *Service) { svc.policies = p }
}

// New creates a service. A nil settings uses config.DefaultSettings.
func New(settings *config.Settings, opts ...Option) *Service {
	if settings == nil {
		settings = config.DefaultSettings()
	}
	s := &Service{
		settings: settings,
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FromSettings builds a service with the suggesters and policy engine the
// settings describe. Policies are loaded from settings.Policy.Dirs, and
// watched until ctx is done when settings.Policy.Watch is set.
func FromSettings(ctx context.Context, settings *config.Settings, logger zerolog.Logger) (*Service, *policy.Engine, error) {
	chain := suggest.Chain{suggest.NewPatternSuggester(logger)}
	if settings.Suggest.Script != "" {
		script, err := suggest.LoadScriptSuggester(settings.Suggest.Script, settings.Suggest.Timeout.Std(), logger)
		if err != nil {
			return nil, nil, err
		}
		chain = append(chain, script)
	}

	pe, err := policy.NewEngine(logger, settings.Policy.Params)
	if err != nil {
		return nil, nil, err
	}
	if len(settings.Policy.Dirs) > 0 {
		if err := pe.LoadPolicies(ctx, settings.Policy.Dirs); err != nil {
			return nil, nil, err
		}
		if settings.Policy.Watch {
			if err := pe.Watch(ctx, settings.Policy.Dirs); err != nil {
				return nil, nil, err
			}
		}
	}

	return New(settings, WithSuggester(chain), WithPolicyEngine(pe)), pe, nil
}

// Settings returns the service settings.
func (s *Service) Settings() *config.Settings {
	return s.settings
}

// Parse loads a document and describes its tree and constraints.
func (s *Service) Parse(ctx context.Context, req ParseRequest) (resp *ParseResponse, err error) {
	ic, requestID := s.start(ctx, "service.parse")
	defer func() { s.finish(ic, "service.parse", requestID, err) }()

	if err := s.check(req); err != nil {
		return nil, err
	}
	model, err := s.load(ic, requestID, req.Document)
	if err != nil {
		return nil, err
	}

	constraints := make([]ConstraintView, len(model.Constraints))
	for i, c := range model.Constraints {
		constraints[i] = ConstraintView{
			Ordinal:          c.Ordinal,
			EnglishStatement: c.EnglishStatement,
			Annotation:       c.Annotation,
		}
	}

	resp = &ParseResponse{
		ModelID:     model.ID,
		Features:    model.Tree.IDs(),
		Tree:        treeShape(model.Tree, model.Tree.Root().ID),
		Constraints: constraints,
	}
	if req.DOT {
		// Document logic, when complete and valid, links constraints to
		// their features in the drawing.
		if err := engine.Translate(model, model.Annotations()); err != nil {
			ic.Logger.WithError(err).Debug("Drawing constraints without logic")
		}
		resp.DOT = engine.ToDOT(model)
	}
	return resp, nil
}

// TranslateAndEnumerate binds the supplied logic to every constraint, then
// enumerates minimal working products. A translation failure aborts before
// enumeration.
func (s *Service) TranslateAndEnumerate(ctx context.Context, req TranslateRequest) (resp *TranslateResponse, err error) {
	ic, requestID := s.start(ctx, "service.translate_and_enumerate")
	defer func() { s.finish(ic, "service.translate_and_enumerate", requestID, err) }()

	if err := s.check(req); err != nil {
		return nil, err
	}
	logic, err := mergeLogic(req.Logic, req.LogicData)
	if err != nil {
		return nil, err
	}
	model, err := s.load(ic, requestID, req.Document)
	if err != nil {
		return nil, err
	}
	if err := s.translate(ic, requestID, model, logic); err != nil {
		return nil, err
	}

	configs, stats, err := s.enumerate(ic, requestID, model, req.EnumerationOverrides)
	if err != nil {
		return nil, err
	}
	violations, err := s.evaluatePolicies(ic, requestID, model, policyOpTranslate, configs)
	if err != nil {
		return nil, err
	}

	statements := make([]string, len(model.Constraints))
	for i, c := range model.Constraints {
		statements[i] = c.EnglishStatement
	}

	return &TranslateResponse{
		LogicMapping:       engine.TranslationOf(model).Keyed(),
		PropositionalLogic: statements,
		StructuralLogic:    engine.PropositionalLogic(model.Tree),
		MWPConfigurations:  engine.Labels(configs),
		Count:              len(configs),
		Stats:              stats,
		PolicyViolations:   violations,
	}, nil
}

// CalculateMWP enumerates minimal working products using the logic the
// document carries, filling gaps from suggestions when requested.
func (s *Service) CalculateMWP(ctx context.Context, req CalculateRequest) (resp *CalculateResponse, err error) {
	ic, requestID := s.start(ctx, "service.calculate_mwp")
	defer func() { s.finish(ic, "service.calculate_mwp", requestID, err) }()

	if err := s.check(req); err != nil {
		return nil, err
	}
	model, err := s.load(ic, requestID, req.Document)
	if err != nil {
		return nil, err
	}
	logic, suggested, err := s.resolveLogic(ic, model, nil, req.Suggest || s.settings.Suggest.Enabled)
	if err != nil {
		return nil, err
	}
	if err := s.translate(ic, requestID, model, logic); err != nil {
		return nil, err
	}

	configs, stats, err := s.enumerate(ic, requestID, model, req.EnumerationOverrides)
	if err != nil {
		return nil, err
	}
	violations, err := s.evaluatePolicies(ic, requestID, model, policyOpMWP, configs)
	if err != nil {
		return nil, err
	}

	resp = &CalculateResponse{
		MWPConfigurations: engine.Labels(configs),
		Count:             len(configs),
		Stats:             stats,
		PolicyViolations:  violations,
	}
	if len(suggested) > 0 {
		resp.Suggested = suggested.Keyed()
	}
	return resp, nil
}

// Validate checks a selection against the model's structure and constraints.
func (s *Service) Validate(ctx context.Context, req ValidateRequest) (resp *ValidateResponse, err error) {
	ic, requestID := s.start(ctx, "service.validate")
	defer func() { s.finish(ic, "service.validate", requestID, err) }()

	if err := s.check(req); err != nil {
		return nil, err
	}
	model, err := s.load(ic, requestID, req.Document)
	if err != nil {
		return nil, err
	}
	logic, _, err := s.resolveLogic(ic, model, req.Logic, false)
	if err != nil {
		return nil, err
	}
	if err := s.translate(ic, requestID, model, logic); err != nil {
		return nil, err
	}

	cfg := engine.NewConfiguration(req.SelectedFeatures...)
	result, err := engine.Validate(model, cfg)
	if err != nil {
		return nil, err
	}

	s.recordValidation(ic, requestID, model, result)

	resp = &ValidateResponse{Valid: result.Valid, PolicyAllowed: true}
	if v := result.Violation; v != nil {
		resp.Reason = v.Message
		resp.Rule = v.RuleID
		if req.All {
			if resp.Violations, err = engine.ValidateAll(model, cfg); err != nil {
				return nil, err
			}
		}
	}

	if resp.PolicyViolations, err = s.evaluatePolicies(ic, requestID, model, policyOpValidate, []engine.Configuration{cfg}); err != nil {
		return nil, err
	}
	for _, v := range resp.PolicyViolations {
		if policy.Severity(v.Severity).Blocking() {
			resp.PolicyAllowed = false
		}
	}

	ic.Logger.WithFields(map[string]interface{}{
		"configuration": cfg.Label(),
		"valid":         resp.Valid,
	}).Debug("Configuration validated")
	return resp, nil
}

// ValidateBatch checks many selections concurrently, keeping request order.
func (s *Service) ValidateBatch(ctx context.Context, req BatchValidateRequest) (resp *BatchValidateResponse, err error) {
	ic, requestID := s.start(ctx, "service.validate_batch")
	defer func() { s.finish(ic, "service.validate_batch", requestID, err) }()

	if err := s.check(req); err != nil {
		return nil, err
	}
	model, err := s.load(ic, requestID, req.Document)
	if err != nil {
		return nil, err
	}
	logic, _, err := s.resolveLogic(ic, model, req.Logic, false)
	if err != nil {
		return nil, err
	}
	if err := s.translate(ic, requestID, model, logic); err != nil {
		return nil, err
	}

	results, err := engine.ValidateBatch(ic.Ctx, model, req.Configurations, s.settings.Batch.Parallelism)
	if err != nil {
		return nil, err
	}

	resp = &BatchValidateResponse{Results: make([]BatchResult, len(results))}
	for i, r := range results {
		resp.Results[i] = BatchResult{
			Configuration: req.Configurations[i].Label(),
			Valid:         r.Valid,
			Reason:        r.Reason(),
		}
		if r.Violation != nil {
			resp.Results[i].Rule = r.Violation.RuleID
			resp.Invalid++
		} else {
			resp.Valid++
		}
		s.recordValidation(ic, requestID, model, r)
	}
	return resp, nil
}

// Analyze reports void models, core and dead features, and explains a
// partial selection when one is given.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) (resp *AnalyzeResponse, err error) {
	ic, requestID := s.start(ctx, "service.analyze")
	defer func() { s.finish(ic, "service.analyze", requestID, err) }()

	if err := s.check(req); err != nil {
		return nil, err
	}
	model, err := s.load(ic, requestID, req.Document)
	if err != nil {
		return nil, err
	}
	logic, _, err := s.resolveLogic(ic, model, req.Logic, req.Suggest)
	if err != nil {
		return nil, err
	}
	if err := s.translate(ic, requestID, model, logic); err != nil {
		return nil, err
	}

	analyzer, err := analysis.New(model, ic.Logger.Zerolog())
	if err != nil {
		return nil, err
	}
	report, err := analyzer.Analyze(ic.Ctx)
	if err != nil {
		return nil, err
	}
	resp = &AnalyzeResponse{Report: report}

	if len(req.Selected) > 0 || len(req.Excluded) > 0 {
		if resp.Explanation, err = analyzer.Explain(ic.Ctx, req.Selected, req.Excluded); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// start opens the telemetry operation and assigns a request ID.
func (s *Service) start(ctx context.Context, operation string) (*telemetry.InstrumentedContext, string) {
	requestID := uuid.NewString()
	ic := telemetry.StartOperation(ctx, operation, telemetry.AttrOperation.String(operation))
	ic.Logger = ic.Logger.WithRequestID(requestID)
	ic.Ctx = ic.Logger.WithContext(ic.Ctx)
	return ic, requestID
}

// finish closes the operation, publishing an error event on failure.
func (s *Service) finish(ic *telemetry.InstrumentedContext, operation, requestID string, err error) {
	if err != nil {
		ic.Logger.WithError(err).WithField("kind", engine.KindOf(err)).Debug("Operation failed")
		if tel := telemetry.FromTelemetryContext(ic.Ctx); tel != nil {
			_ = tel.Events.PublishError(requestID, operation, err)
		}
	}
	ic.End(err)
}

// check validates a request's struct tags.
func (s *Service) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

func (s *Service) load(ic *telemetry.InstrumentedContext, requestID string, document []byte) (*engine.FeatureModel, error) {
	model, err := engine.LoadBytes(document)
	if err != nil {
		return nil, err
	}
	ic.Logger.WithModelID(model.ID).WithFields(map[string]interface{}{
		"features":    model.Tree.Len(),
		"constraints": len(model.Constraints),
	}).Debug("Feature model loaded")
	if ic.Span != nil {
		ic.Span.SetAttributes(
			telemetry.AttrModelID.String(model.ID),
			telemetry.AttrFeatureCount.Int(model.Tree.Len()),
			telemetry.AttrConstraintCount.Int(len(model.Constraints)),
		)
	}
	if tel := telemetry.FromTelemetryContext(ic.Ctx); tel != nil {
		_ = tel.Events.PublishModelLoaded(requestID, model.ID, model.Tree.Len(), len(model.Constraints))
	}
	return model, nil
}

func (s *Service) translate(ic *telemetry.InstrumentedContext, requestID string, model *engine.FeatureModel, logic engine.LogicMapping) error {
	if err := engine.Translate(model, logic); err != nil {
		return err
	}
	if tel := telemetry.FromTelemetryContext(ic.Ctx); tel != nil {
		_ = tel.Events.PublishLogicTranslated(requestID, model.ID, len(model.Constraints))
	}
	return nil
}

// resolveLogic overlays explicit logic on the document's annotations and,
// when asked, fills the remaining gaps from the suggester. It returns the
// merged mapping and the part that came from suggestions.
func (s *Service) resolveLogic(ic *telemetry.InstrumentedContext, model *engine.FeatureModel, explicit engine.LogicMapping, useSuggestions bool) (engine.LogicMapping, engine.LogicMapping, error) {
	base := model.Annotations()
	maps.Copy(base, explicit)
	if !useSuggestions || s.suggester == nil {
		return base, nil, nil
	}

	logic, err := suggest.Complete(ic.Ctx, s.suggester, model, base)
	if err != nil {
		return nil, nil, err
	}
	suggested := make(engine.LogicMapping)
	for ordinal, text := range logic {
		if _, given := base[ordinal]; !given {
			suggested[ordinal] = text
		}
	}
	ic.Logger.WithFields(map[string]interface{}{
		"suggester": s.suggester.Name(),
		"suggested": len(suggested),
		"missing":   len(model.Constraints) - len(logic),
	}).Debug("Logic suggestions applied")
	return logic, suggested, nil
}

// enumerate collects the minimal working products under the service limits.
func (s *Service) enumerate(ic *telemetry.InstrumentedContext, requestID string, model *engine.FeatureModel, o EnumerationOverrides) ([]engine.Configuration, engine.EnumerationStats, error) {
	opts := s.settings.EnumerationOptions()
	if o.Minimality != "" {
		opts.Minimality = engine.Minimality(o.Minimality)
	}
	if o.MaxResults > 0 {
		opts.MaxResults = o.MaxResults
	}
	zl := ic.Logger.Zerolog()
	opts.Logger = &zl

	ctx := ic.Ctx
	tel := telemetry.FromTelemetryContext(ctx)
	var span trace.Span
	if tel != nil {
		ctx, span = tel.Tracer.StartEnumerationSpan(ctx, model.ID, model.Tree.Len(), len(model.Constraints))
		defer span.End()
	}

	en, err := engine.Enumerate(ctx, model, opts)
	if err != nil {
		return nil, engine.EnumerationStats{}, err
	}
	configs, err := en.Collect()
	stats := en.Stats()

	if tel != nil {
		tel.Metrics.RecordEnumeration(stats.Nodes, stats.Found)
	}
	if err != nil {
		reason := abortReason(err)
		ic.Logger.WithFields(map[string]interface{}{
			"reason": reason,
			"nodes":  stats.Nodes,
		}).Warn("Enumeration aborted")
		if tel != nil {
			telemetry.RecordError(span, err)
			tel.Metrics.RecordEnumerationAborted(reason)
			_ = tel.Events.PublishEnumerationAborted(requestID, model.ID, reason)
		}
		return nil, stats, err
	}
	if span != nil {
		span.SetAttributes(telemetry.AttrResultCount.Int(len(configs)))
		telemetry.RecordSuccess(span)
	}

	if ic.Span != nil {
		ic.Span.SetAttributes(telemetry.AttrResultCount.Int(len(configs)))
	}
	if tel != nil {
		_ = tel.Events.PublishEnumerationCompleted(requestID, model.ID, len(configs), stats.Nodes, stats.Duration)
	}
	ic.Logger.WithFields(map[string]interface{}{
		"count":      len(configs),
		"nodes":      stats.Nodes,
		"minimality": string(opts.Minimality),
		"duration":   stats.Duration.String(),
	}).Info("Minimal working products enumerated")
	return configs, stats, nil
}

// Operation names seen by policies as input.context.operation.
const (
	policyOpTranslate = "translate"
	policyOpMWP       = "mwp"
	policyOpValidate  = "validate"
)

// evaluatePolicies runs the policy engine over configs and publishes every
// violation. Without a policy engine it returns nothing.
func (s *Service) evaluatePolicies(ic *telemetry.InstrumentedContext, requestID string, model *engine.FeatureModel, operation string, configs []engine.Configuration) ([]engine.PolicyViolation, error) {
	if s.policies == nil || len(configs) == 0 {
		return nil, nil
	}
	tel := telemetry.FromTelemetryContext(ic.Ctx)

	results, err := s.policies.EvaluateConfigurations(ic.Ctx, model, operation, configs)
	if err != nil {
		return nil, err
	}

	var out []engine.PolicyViolation
	for _, result := range results {
		for _, w := range result.Warnings {
			ic.Logger.Warn(w)
		}
		for _, v := range result.Violations {
			if tel != nil {
				tel.Metrics.RecordPolicyViolation(v.Policy, v.Severity)
				_ = tel.Events.PublishPolicyViolation(requestID, v.Policy, v.Configuration, v.Message)
			}
		}
		out = append(out, result.Violations...)
	}
	return out, nil
}

func (s *Service) recordValidation(ic *telemetry.InstrumentedContext, requestID string, model *engine.FeatureModel, r engine.ValidationResult) {
	tel := telemetry.FromTelemetryContext(ic.Ctx)
	if tel == nil {
		return
	}
	if r.Violation == nil {
		tel.Metrics.RecordValidation(true, "")
		return
	}
	tel.Metrics.RecordValidation(false, string(r.Violation.Rule))
	_ = tel.Events.PublishValidationFailed(requestID, model.ID, r.Violation.RuleID, r.Violation.Message)
}

// mergeLogic combines the map and list forms of request logic.
func mergeLogic(logic engine.LogicMapping, entries []LogicEntry) (engine.LogicMapping, error) {
	out := maps.Clone(logic)
	if out == nil {
		out = make(engine.LogicMapping, len(entries))
	}
	for _, e := range entries {
		if _, dup := out[e.ConstraintIndex]; dup {
			return nil, fmt.Errorf("%w: logic supplied twice for constraint %d", ErrInvalidRequest, e.ConstraintIndex)
		}
		out[e.ConstraintIndex] = e.Logic
	}
	return out, nil
}

func abortReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline"
	case errors.Is(err, engine.ErrEnumerationTimeout):
		return "budget"
	default:
		return "error"
	}
}

func treeShape(tree *engine.FeatureTree, id string) *TreeNode {
	f, _ := tree.Feature(id)
	node := &TreeNode{ID: f.ID, Kind: f.Kind, Group: f.Group}
	for _, child := range f.Children {
		node.Children = append(node.Children, treeShape(tree, child))
	}
	return node
}
