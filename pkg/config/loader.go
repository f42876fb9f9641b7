package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/mwpkit/pkg/engine"
)

// Loader reads settings, logic mapping and configuration files. Settings
// and logic files may be CUE, JSON or YAML; they are unified with the
// built-in schemas before they are decoded.
type Loader struct {
	schemas   *SchemaRegistry
	validator *validator.Validate
}

// NewLoader creates a loader with the built-in schemas.
func NewLoader() *Loader {
	return &Loader{
		schemas:   NewSchemaRegistry(),
		validator: validator.New(),
	}
}

// LoadSettings reads settings from path. An empty path yields DefaultSettings.
func (l *Loader) LoadSettings(path string) (*Settings, error) {
	if path == "" {
		return DefaultSettings(), nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	return l.ParseSettings(path, content)
}

// ParseSettings decodes settings content. name selects the format by its
// extension and is used in error positions.
func (l *Loader) ParseSettings(name string, content []byte) (*Settings, error) {
	val, err := l.compile(name, content)
	if err != nil {
		return nil, err
	}

	unified, err := l.schemas.Unify(SchemaSettings, val)
	if err != nil {
		return nil, convertCUEErrors(name, err)
	}

	var s Settings
	if err := unified.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings %s: %w", name, err)
	}
	if s.Policy.Dirs == nil {
		s.Policy.Dirs = []string{}
	}
	if s.Policy.Params == nil {
		s.Policy.Params = map[string]any{}
	}

	if err := l.validator.Struct(&s); err != nil {
		return nil, convertValidatorErrors(name, err)
	}

	return &s, nil
}

// LoadLogicMapping reads a logic mapping file. Keys are ordinals ("0") or
// their constraint form ("constraint-0"); values are logic strings.
func (l *Loader) LoadLogicMapping(path string) (engine.LogicMapping, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read logic mapping: %w", err)
	}
	return l.ParseLogicMapping(path, content)
}

// ParseLogicMapping decodes logic mapping content.
func (l *Loader) ParseLogicMapping(name string, content []byte) (engine.LogicMapping, error) {
	val, err := l.compile(name, content)
	if err != nil {
		return nil, err
	}

	unified, err := l.schemas.Unify(SchemaLogic, val)
	if err != nil {
		return nil, convertCUEErrors(name, err)
	}

	var keyed map[string]string
	if err := unified.Decode(&keyed); err != nil {
		return nil, fmt.Errorf("failed to decode logic mapping %s: %w", name, err)
	}

	logic, err := engine.LogicMappingFromKeys(keyed)
	if err != nil {
		return nil, fmt.Errorf("logic mapping %s: %w", name, err)
	}
	return logic, nil
}

// LoadConfigurations reads a batch file of configurations. The file is a
// YAML (or JSON) list whose items are either lists of feature identifiers
// or comma-separated labels:
//
//	- [Car, Engine, Petrol]
//	- "Car, Engine, Electric"
func LoadConfigurations(path string) ([]engine.Configuration, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configurations: %w", err)
	}
	return ParseConfigurations(path, content)
}

// ParseConfigurations decodes batch file content.
func ParseConfigurations(name string, content []byte) ([]engine.Configuration, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse configurations %s: %w", name, err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	list := doc.Content[0]
	if list.Kind != yaml.SequenceNode {
		return nil, ValidationError{File: name, Line: list.Line, Column: list.Column, Message: "expected a list of configurations"}
	}

	configs := make([]engine.Configuration, 0, len(list.Content))
	for i, item := range list.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			configs = append(configs, engine.ParseConfiguration(item.Value))
		case yaml.SequenceNode:
			var ids []string
			if err := item.Decode(&ids); err != nil {
				return nil, ValidationError{File: name, Line: item.Line, Column: item.Column, Path: fmt.Sprintf("[%d]", i), Message: err.Error()}
			}
			configs = append(configs, engine.NewConfiguration(ids...))
		default:
			return nil, ValidationError{
				File:    name,
				Line:    item.Line,
				Column:  item.Column,
				Path:    fmt.Sprintf("[%d]", i),
				Message: "configuration must be a list of features or a label",
			}
		}
	}
	return configs, nil
}

// compile turns file content into a CUE value. JSON is valid CUE; YAML is
// decoded first and encoded into the registry's context.
func (l *Loader) compile(name string, content []byte) (cue.Value, error) {
	ctx := l.schemas.Context()

	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		var data map[string]any
		if err := yaml.Unmarshal(content, &data); err != nil {
			return cue.Value{}, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		if data == nil {
			data = map[string]any{}
		}
		val := ctx.Encode(data)
		if err := val.Err(); err != nil {
			return cue.Value{}, fmt.Errorf("failed to encode %s: %w", name, err)
		}
		return val, nil
	case ".cue", ".json", "":
		val := ctx.CompileBytes(content, cue.Filename(name))
		if err := val.Err(); err != nil {
			return cue.Value{}, convertCUEErrors(name, err)
		}
		return val, nil
	default:
		return cue.Value{}, fmt.Errorf("unsupported file type %q (want .cue, .json, .yaml or .yml)", filepath.Ext(name))
	}
}

// convertCUEErrors converts CUE errors to ValidationErrors.
func convertCUEErrors(name string, err error) ValidationErrors {
	var out ValidationErrors
	for _, e := range errors.Errors(err) {
		ve := ValidationError{
			File:    name,
			Path:    strings.Join(e.Path(), "."),
			Message: errors.Details(e, nil),
		}
		for _, pos := range errors.Positions(e) {
			if pos.Filename() == name {
				ve.Line = pos.Line()
				ve.Column = pos.Column()
				break
			}
		}
		out = append(out, ve)
	}
	if len(out) == 0 {
		out = append(out, ValidationError{File: name, Message: err.Error()})
	}
	return out
}

// convertValidatorErrors converts validator field errors to ValidationErrors.
func convertValidatorErrors(name string, err error) error {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("settings %s: %w", name, err)
	}
	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := fmt.Sprintf("failed %q check", fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("failed %q check (%s)", fe.Tag(), fe.Param())
		}
		out = append(out, ValidationError{
			File:    name,
			Path:    fieldPath(fe.Namespace()),
			Message: msg,
		})
	}
	return out
}

// fieldPath turns "Settings.Enumeration.MaxNodes" into "Enumeration.MaxNodes".
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}
