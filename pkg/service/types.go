package service

import (
	"github.com/openfroyo/mwpkit/pkg/analysis"
	"github.com/openfroyo/mwpkit/pkg/engine"
)

// LogicEntry is one constraint translation in list form, as sent by form
// based clients.
type LogicEntry struct {
	ConstraintIndex int    `json:"constraintIndex" validate:"gte=0"`
	Logic           string `json:"logic" validate:"required"`
}

// ParseRequest asks for the structure of a feature model document.
type ParseRequest struct {
	Document []byte `json:"document" validate:"required"`

	// DOT adds a Graphviz rendering of the model to the response.
	DOT bool `json:"dot,omitempty"`
}

// ConstraintView is a cross-tree constraint as returned to callers.
type ConstraintView struct {
	Ordinal          int    `json:"ordinal"`
	EnglishStatement string `json:"englishStatement"`
	Annotation       string `json:"annotation,omitempty"`
}

// TreeNode is the nested shape of the feature tree.
type TreeNode struct {
	ID       string           `json:"id"`
	Kind     engine.GroupKind `json:"kind"`
	Group    int              `json:"group,omitempty"`
	Children []*TreeNode      `json:"children,omitempty"`
}

// ParseResponse describes a loaded model.
type ParseResponse struct {
	ModelID     string           `json:"modelId"`
	Features    []string         `json:"features"`
	Tree        *TreeNode        `json:"tree"`
	Constraints []ConstraintView `json:"constraints"`
	DOT         string           `json:"dot,omitempty"`
}

// EnumerationOverrides tune one enumeration on top of the service settings.
type EnumerationOverrides struct {
	// Minimality overrides the configured criterion when set.
	Minimality string `json:"minimality,omitempty" validate:"omitempty,oneof=choice strict"`

	// MaxResults overrides the configured result cap when positive.
	MaxResults int `json:"maxResults,omitempty" validate:"gte=0"`
}

// TranslateRequest binds logic to every constraint and enumerates products.
// Logic and LogicData are merged; an ordinal may appear in only one of them.
type TranslateRequest struct {
	Document  []byte              `json:"document" validate:"required"`
	Logic     engine.LogicMapping `json:"logic,omitempty"`
	LogicData []LogicEntry        `json:"logicData,omitempty" validate:"dive"`
	EnumerationOverrides
}

// TranslateResponse carries the bound logic and the minimal working products.
type TranslateResponse struct {
	LogicMapping       map[string]string        `json:"logicMapping"`
	PropositionalLogic []string                 `json:"propositionalLogic"`
	StructuralLogic    []string                 `json:"structuralLogic"`
	MWPConfigurations  []string                 `json:"mwpConfigurations"`
	Count              int                      `json:"count"`
	Stats              engine.EnumerationStats  `json:"stats"`
	PolicyViolations   []engine.PolicyViolation `json:"policyViolations,omitempty"`
}

// CalculateRequest enumerates products of a document whose constraints
// carry their own logic.
type CalculateRequest struct {
	Document []byte `json:"document" validate:"required"`

	// Suggest fills constraints without logic from the configured suggesters.
	Suggest bool `json:"suggest,omitempty"`
	EnumerationOverrides
}

// CalculateResponse lists the minimal working products.
type CalculateResponse struct {
	MWPConfigurations []string                 `json:"mwp_configurations"`
	Count             int                      `json:"count"`
	Suggested         map[string]string        `json:"suggested,omitempty"`
	Stats             engine.EnumerationStats  `json:"stats"`
	PolicyViolations  []engine.PolicyViolation `json:"policyViolations,omitempty"`
}

// ValidateRequest checks one selection. Logic overrides the document's own
// annotations per ordinal.
type ValidateRequest struct {
	SelectedFeatures []string            `json:"selectedFeatures" validate:"dive,required"`
	Document         []byte              `json:"document" validate:"required"`
	Logic            engine.LogicMapping `json:"logic,omitempty"`

	// All reports every violated rule instead of only the first.
	All bool `json:"all,omitempty"`
}

// ValidateResponse is the verdict for one selection.
type ValidateResponse struct {
	Valid            bool                     `json:"valid"`
	Reason           string                   `json:"reason,omitempty"`
	Rule             string                   `json:"rule,omitempty"`
	Violations       []engine.Violation       `json:"violations,omitempty"`
	PolicyAllowed    bool                     `json:"policyAllowed"`
	PolicyViolations []engine.PolicyViolation `json:"policyViolations,omitempty"`
}

// BatchValidateRequest checks many selections against one model.
type BatchValidateRequest struct {
	Document       []byte                 `json:"document" validate:"required"`
	Logic          engine.LogicMapping    `json:"logic,omitempty"`
	Configurations []engine.Configuration `json:"configurations" validate:"required"`
}

// BatchResult is the verdict for one selection of a batch.
type BatchResult struct {
	Configuration string `json:"configuration"`
	Valid         bool   `json:"valid"`
	Reason        string `json:"reason,omitempty"`
	Rule          string `json:"rule,omitempty"`
}

// BatchValidateResponse lists verdicts in request order.
type BatchValidateResponse struct {
	Results []BatchResult `json:"results"`
	Valid   int           `json:"valid"`
	Invalid int           `json:"invalid"`
}

// AnalyzeRequest asks for satisfiability facts about a model, and
// optionally whether a partial selection can be completed.
type AnalyzeRequest struct {
	Document []byte              `json:"document" validate:"required"`
	Logic    engine.LogicMapping `json:"logic,omitempty"`
	Suggest  bool                `json:"suggest,omitempty"`
	Selected []string            `json:"selected,omitempty" validate:"dive,required"`
	Excluded []string            `json:"excluded,omitempty" validate:"dive,required"`
}

// AnalyzeResponse carries the analysis report.
type AnalyzeResponse struct {
	Report      *analysis.Report      `json:"report"`
	Explanation *analysis.Explanation `json:"explanation,omitempty"`
}
