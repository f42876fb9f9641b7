// Package config loads mwpkit settings, logic mappings and batch
// configuration files.
//
// # Overview
//
// Settings files may be written in CUE, JSON or YAML. Every file is turned
// into a CUE value, unified with a built-in schema that supplies defaults
// and range checks, decoded into Go types and finally checked with struct
// tags. Errors carry the file, line and settings path where CUE can tell.
//
// # Components
//
// Loader: Reads settings (LoadSettings) and logic mappings
// (LoadLogicMapping). Owns a SchemaRegistry and a validator.
//
// SchemaRegistry: Compiles and stores CUE schema definitions. The built-in
// schemas are "settings" (#Settings) and "logic" (#Logic).
//
// LoadConfigurations: Reads a YAML list of configurations for batch
// validation.
//
// # Settings File
//
// Every field is optional:
//
//	enumeration: {
//	    max_nodes:   200000
//	    timeout:     "10s"
//	    max_results: 0
//	    minimality:  "strict"
//	}
//	batch: parallelism: 4
//	policy: {
//	    dirs: ["policies"]
//	    params: {max_features: 12, forbidden: ["Legacy"]}
//	}
//	suggest: {
//	    enabled: true
//	    script:  "suggest.star"
//	}
//	telemetry: {
//	    log_level: "debug"
//	    tracing:   "stdout"
//	}
//
// # Logic Mapping File
//
// A flat mapping from ordinal to logic string, in any of the formats:
//
//	"0": "Navigation -> Electric"
//	constraint-1: "!(Radio & Petrol)"
//
// # Thread Safety
//
// A Loader shares one CUE context across its calls and must not be used
// from several goroutines at once. Create one Loader per goroutine.
package config
