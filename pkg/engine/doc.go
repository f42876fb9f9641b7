// Package engine provides the feature-model constraint engine used by mwpkit.
//
// # Overview
//
// A feature model describes a product line as a tree of features plus a set
// of cross-tree constraints. The engine works in four steps:
//
//  1. Load - Parse an XML feature model into a FeatureTree and its constraints
//  2. Translate - Attach a propositional formula to every constraint ordinal
//  3. Enumerate - Produce the minimal working products (MWPs) lazily
//  4. Validate - Check a candidate configuration and report the first violation
//
// # Core Domain Types
//
//   - FeatureTree: The immutable feature hierarchy with groups
//   - CrossTreeConstraint: An English statement with an optional formula
//   - FeatureModel: A tree, its constraints and a content-derived ID
//   - Formula: A parsed propositional formula over feature identifiers
//   - Configuration: A sorted set of selected feature identifiers
//   - Enumeration: A single-use, bounded sequence of configurations
//
// # Logic Syntax
//
// Formulas accept symbolic and word operators:
//
//	!  ~  NOT  not          negation
//	&  &&  AND  and         conjunction
//	|  ||  OR  or           disjunction
//	->  =>  IMPLIES         implication (right associative)
//	<->  <=>  IFF           equivalence
//
// Precedence from tightest: NOT, AND, OR, IMPLIES, IFF.
//
// # Error Classification
//
// Errors are EngineError values carrying a class and a code:
//
//   - input: malformed XML, bad features, missing logic
//   - translation: logic syntax errors and unknown identifiers
//   - resource: enumeration budgets and deadlines; retryable
//
// Match them with errors.Is against the sentinels:
//
//	if errors.Is(err, engine.ErrMissingLogic) {
//	    // ask for the missing ordinal
//	}
//
// # Example Usage
//
//	model, err := engine.LoadFile("model.xml")
//	err = engine.Translate(model, engine.LogicMapping{0: "A -> B"})
//	e, err := engine.Enumerate(ctx, model, engine.DefaultEnumerationOptions())
//	for cfg, err := range e.All() {
//	    // ...
//	}
//	result, err := engine.Validate(model, engine.NewConfiguration("Root", "A", "B"))
//
// # Thread Safety
//
// A translated FeatureModel is read-only and safe for concurrent validation.
// An Enumeration must be consumed by a single goroutine.
package engine
