package config

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Built-in schema names.
const (
	SchemaSettings = "settings"
	SchemaLogic    = "logic"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	// Built-in schemas are constants; a compile failure is a programming error.
	if err := sr.register(SchemaSettings, "#Settings", builtinSettingsSchema); err != nil {
		panic(err)
	}
	if err := sr.register(SchemaLogic, "#Logic", builtinLogicSchema); err != nil {
		panic(err)
	}

	return sr
}

// Context returns the CUE context schemas are compiled in. Values unified
// with a registered schema must come from this context.
func (sr *SchemaRegistry) Context() *cue.Context {
	return sr.ctx
}

// register compiles source and registers the definition at path
// (e.g. "#Settings") under name.
func (sr *SchemaRegistry) register(name, path, source string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(source, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	def := val.LookupPath(cue.ParsePath(path))
	if !def.Exists() {
		return fmt.Errorf("schema %s has no definition %s", name, path)
	}

	sr.schemas[name] = def
	return nil
}

// lookup retrieves a schema by name.
func (sr *SchemaRegistry) lookup(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Unify unifies val with the named schema and checks the result is concrete.
// Defaults declared by the schema fill fields val leaves out.
func (sr *SchemaRegistry) Unify(name string, val cue.Value) (cue.Value, error) {
	schema, ok := sr.lookup(name)
	if !ok {
		return cue.Value{}, fmt.Errorf("schema %s not found", name)
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, err
	}
	return unified, nil
}

// Built-in schema definitions

const builtinSettingsSchema = `
#Duration: string & =~"^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$"

#Settings: {
	enumeration: {
		// Search decisions before giving up; 0 means unlimited.
		max_nodes: int & >=0 | *1000000

		// Wall-clock bound; "0s" means unlimited.
		timeout: #Duration | *"30s"

		// Stop after this many products; 0 means unlimited.
		max_results: int & >=0 | *0

		minimality: *"choice" | "strict"
	}

	batch: {
		parallelism: int & >=1 & <=1024 | *8
	}

	policy: {
		dirs: [...string] | *[]
		watch: bool | *false
		params: {...} | *{}
	}

	suggest: {
		enabled: bool | *false
		script: string | *""
		timeout: #Duration | *"5s"
	}

	telemetry: {
		log_level: *"info" | "trace" | "debug" | "warn" | "error" | "fatal" | "disabled"
		log_format: *"console" | "json"
		tracing: *"none" | "stdout" | "otlp"
		otlp_endpoint: string | *""
		sampling_rate: number & >=0 & <=1 | *1.0
		metrics_address: string | *""
	}
}
`

const builtinLogicSchema = `
// Keys are ordinals ("0") or their wire form ("constraint-0", "logic-0").
#Logic: {
	[=~"^((constraint|logic)-)?[0-9]+$"]: string & !=""
}
`
