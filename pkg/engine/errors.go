package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of an error for recovery logic.
type ErrorClass string

const (
	// ErrorClassInput indicates a malformed feature model document.
	// The caller must supply corrected input; never retried.
	ErrorClassInput ErrorClass = "input"

	// ErrorClassTranslation indicates a problem with the logic supplied for
	// a cross-tree constraint. A one-shot correction is expected.
	ErrorClassTranslation ErrorClass = "translation"

	// ErrorClassResource indicates an exhausted search budget or deadline.
	// Retryable with a smaller model or a larger budget.
	ErrorClassResource ErrorClass = "resource"
)

// Error codes for programmatic handling.
const (
	ErrCodeParse               = "PARSE_ERROR"
	ErrCodeMalformedFeature    = "MALFORMED_FEATURE"
	ErrCodeDuplicateFeature    = "DUPLICATE_FEATURE"
	ErrCodeMissingLogic        = "MISSING_LOGIC"
	ErrCodeUnknownOrdinal      = "UNKNOWN_ORDINAL"
	ErrCodeLogicSyntax         = "LOGIC_SYNTAX"
	ErrCodeUnknownFeature      = "UNKNOWN_FEATURE"
	ErrCodeEnumerationTimeout  = "ENUMERATION_TIMEOUT"
	ErrCodeEnumerationConsumed = "ENUMERATION_CONSUMED"
)

// NoOrdinal marks an error that is not tied to a cross-tree constraint.
const NoOrdinal = -1

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Code identifies the concrete error kind.
	Code string `json:"code"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Feature is the feature identifier involved, if any.
	Feature string `json:"feature,omitempty"`

	// Ordinal is the constraint ordinal involved, or NoOrdinal.
	Ordinal int `json:"ordinal"`

	// Line is the 1-based document line for parse errors, 0 if unknown.
	Line int `json:"line,omitempty"`

	// Column is the 1-based column inside a formula for syntax errors, 0 if unknown.
	Column int `json:"column,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Class, e.Message)

	var ctx []string
	if e.Ordinal != NoOrdinal {
		ctx = append(ctx, fmt.Sprintf("ordinal=%d", e.Ordinal))
	}
	if e.Feature != "" {
		ctx = append(ctx, "feature="+e.Feature)
	}
	if e.Line > 0 {
		ctx = append(ctx, fmt.Sprintf("line=%d", e.Line))
	}
	if e.Column > 0 {
		ctx = append(ctx, fmt.Sprintf("column=%d", e.Column))
	}
	if len(ctx) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ctx, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is matches errors with the same class and code, so the sentinel values
// below can be used with errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// ErrorClass returns the class as a string for metrics labelling.
func (e *EngineError) ErrorClass() string {
	return string(e.Class)
}

// ErrorCode returns the code for metrics labelling.
func (e *EngineError) ErrorCode() string {
	return e.Code
}

// Kind returns the name of the error kind as reported to callers,
// for example "ParseError" or "MissingLogicError".
func (e *EngineError) Kind() string {
	switch e.Code {
	case ErrCodeParse:
		return "ParseError"
	case ErrCodeMalformedFeature:
		return "MalformedFeatureError"
	case ErrCodeDuplicateFeature:
		return "DuplicateFeatureError"
	case ErrCodeMissingLogic, ErrCodeUnknownOrdinal:
		return "MissingLogicError"
	case ErrCodeLogicSyntax:
		return "LogicSyntaxError"
	case ErrCodeUnknownFeature:
		return "UnknownFeatureError"
	case ErrCodeEnumerationTimeout:
		return "EnumerationTimeoutError"
	default:
		return "EngineError"
	}
}

// withOrdinal sets the ordinal the error refers to.
func (e *EngineError) withOrdinal(ordinal int) *EngineError {
	e.Ordinal = ordinal
	return e
}

// Sentinel errors for errors.Is checks.
var (
	ErrParse               = &EngineError{Class: ErrorClassInput, Code: ErrCodeParse}
	ErrMalformedFeature    = &EngineError{Class: ErrorClassInput, Code: ErrCodeMalformedFeature}
	ErrDuplicateFeature    = &EngineError{Class: ErrorClassInput, Code: ErrCodeDuplicateFeature}
	ErrMissingLogic        = &EngineError{Class: ErrorClassTranslation, Code: ErrCodeMissingLogic}
	ErrUnknownOrdinal      = &EngineError{Class: ErrorClassTranslation, Code: ErrCodeUnknownOrdinal}
	ErrLogicSyntax         = &EngineError{Class: ErrorClassTranslation, Code: ErrCodeLogicSyntax}
	ErrUnknownFeature      = &EngineError{Class: ErrorClassTranslation, Code: ErrCodeUnknownFeature}
	ErrEnumerationTimeout  = &EngineError{Class: ErrorClassResource, Code: ErrCodeEnumerationTimeout}
	ErrEnumerationConsumed = &EngineError{Class: ErrorClassInput, Code: ErrCodeEnumerationConsumed}
)

// NewParseError creates an error for a document that is not a well-formed feature model.
func NewParseError(message string, line int, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassInput,
		Code:    ErrCodeParse,
		Message: message,
		Ordinal: NoOrdinal,
		Line:    line,
		Err:     err,
	}
}

// NewMalformedFeatureError creates an error for a feature node whose kind
// cannot be resolved or whose attributes are invalid.
func NewMalformedFeatureError(feature, message string) *EngineError {
	return &EngineError{
		Class:   ErrorClassInput,
		Code:    ErrCodeMalformedFeature,
		Message: message,
		Feature: feature,
		Ordinal: NoOrdinal,
	}
}

// NewDuplicateFeatureError creates an error for a repeated feature identifier.
func NewDuplicateFeatureError(feature string) *EngineError {
	return &EngineError{
		Class:   ErrorClassInput,
		Code:    ErrCodeDuplicateFeature,
		Message: fmt.Sprintf("feature %q is declared more than once", feature),
		Feature: feature,
		Ordinal: NoOrdinal,
	}
}

// NewMissingLogicError creates an error for a constraint without a formula.
func NewMissingLogicError(ordinal int) *EngineError {
	return &EngineError{
		Class:   ErrorClassTranslation,
		Code:    ErrCodeMissingLogic,
		Message: fmt.Sprintf("no logic supplied for constraint %d", ordinal),
		Ordinal: ordinal,
	}
}

// NewUnknownOrdinalError creates an error for logic keyed by an ordinal
// that names no constraint.
func NewUnknownOrdinalError(ordinal int, constraints int) *EngineError {
	return &EngineError{
		Class:   ErrorClassTranslation,
		Code:    ErrCodeUnknownOrdinal,
		Message: fmt.Sprintf("logic supplied for constraint %d but the model has %d constraints", ordinal, constraints),
		Ordinal: ordinal,
	}
}

// NewLogicSyntaxError creates an error for a formula that does not parse.
func NewLogicSyntaxError(column int, message string) *EngineError {
	return &EngineError{
		Class:   ErrorClassTranslation,
		Code:    ErrCodeLogicSyntax,
		Message: message,
		Ordinal: NoOrdinal,
		Column:  column,
	}
}

// NewUnknownFeatureError creates an error for a formula that references a
// feature missing from the tree.
func NewUnknownFeatureError(ordinal int, feature string) *EngineError {
	return &EngineError{
		Class:   ErrorClassTranslation,
		Code:    ErrCodeUnknownFeature,
		Message: fmt.Sprintf("formula references unknown feature %q", feature),
		Feature: feature,
		Ordinal: ordinal,
	}
}

// NewEnumerationTimeoutError creates an error for an enumeration that ran out
// of budget or time.
func NewEnumerationTimeoutError(reason string, nodes int, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassResource,
		Code:    ErrCodeEnumerationTimeout,
		Message: fmt.Sprintf("enumeration stopped after %d decisions: %s", nodes, reason),
		Ordinal: NoOrdinal,
		Err:     err,
	}
}

// IsInput returns true if the error is caused by a malformed document.
func IsInput(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassInput
	}
	return false
}

// IsTranslation returns true if the error is caused by supplied logic.
func IsTranslation(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTranslation
	}
	return false
}

// IsRetryable returns true if the error can be retried with a different budget.
// Only resource errors are retryable; everything else is deterministic.
func IsRetryable(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassResource
	}
	return false
}

// KindOf returns the reported kind of err, or "Error" for unclassified errors.
func KindOf(err error) string {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Kind()
	}
	return "Error"
}
