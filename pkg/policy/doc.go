// Package policy provides Open Policy Agent (OPA) integration for mwpkit.
//
// Policies are organisational rules about products that the feature model
// itself does not express: size limits, features a customer may not buy.
// They annotate validation and enumeration results. A policy violation
// never makes a structurally valid configuration invalid.
//
// # Architecture
//
//  1. Engine - Compiles Rego policies and evaluates them per configuration
//  2. Loader - Loads .rego and .json policy files, checks each module defines
//     deny, reads METADATA annotations, and watches for changes
//  3. Built-in Policies - max-features and forbidden-features
//
// # Usage
//
//	pe, err := policy.NewEngine(logger, map[string]interface{}{
//	    "max_features": 6,
//	    "forbidden":    []string{"Legacy"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	results, err := pe.EvaluateConfigurations(ctx, model, "validate", []engine.Configuration{cfg})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, v := range results[0].Violations {
//	    fmt.Printf("%s: %s\n", v.Policy, v.Message)
//	}
//
// # Writing Policies
//
// A policy is a Rego module whose deny set holds violations. Members are
// either strings or objects with message, severity and remediation keys:
//
//	package custom.policies.navigation
//
//	import rego.v1
//
//	deny contains violation if {
//	    "Navigation" in input.configuration
//	    not "Radio" in input.configuration
//	    violation := {
//	        "message": "Navigation is only sold together with Radio",
//	        "severity": "warning",
//	    }
//	}
//
// The input document is
//
//	{
//	    "configuration": ["Car", "Engine", ...],
//	    "model": {"id": ..., "root": ..., "features": [{"id", "parent", "kind", "depth"}], "constraints": n},
//	    "params": {...},
//	    "context": {"timestamp": ..., "operation": ...}
//	}
//
// A package METADATA annotation may carry the description, and custom
// severity and tags keys. Without one the first comment block is the
// description.
//
// # Severity Levels
//
//   - info and warning: reported, product stays allowed
//   - error and critical: product is not allowed by policy
//
// # Hot Reload
//
// Engine.Watch reloads policy paths on change. Built-in policies survive
// reloads; a reload that fails to load or compile leaves the previous set
// active.
package policy
