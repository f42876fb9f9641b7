package config

import (
	"fmt"
	"time"

	"github.com/openfroyo/mwpkit/pkg/engine"
	"github.com/openfroyo/mwpkit/pkg/telemetry"
)

// Duration is a time.Duration written as a Go duration string ("30s",
// "1m30s") in settings files.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Settings is the mwpkit configuration file.
type Settings struct {
	// Enumeration bounds minimal working product searches.
	Enumeration EnumerationSettings `json:"enumeration" yaml:"enumeration"`

	// Batch tunes batch validation.
	Batch BatchSettings `json:"batch" yaml:"batch"`

	// Policy configures product policies.
	Policy PolicySettings `json:"policy" yaml:"policy"`

	// Suggest configures logic suggestion for constraints without logic.
	Suggest SuggestSettings `json:"suggest" yaml:"suggest"`

	// Telemetry configures logging, tracing and metrics.
	Telemetry TelemetrySettings `json:"telemetry" yaml:"telemetry"`
}

// EnumerationSettings maps onto engine.EnumerationOptions.
type EnumerationSettings struct {
	// MaxNodes caps search decisions. Zero means unlimited.
	MaxNodes int `json:"max_nodes" yaml:"max_nodes" validate:"gte=0"`

	// Timeout caps wall-clock time. Zero means unlimited.
	Timeout Duration `json:"timeout" yaml:"timeout" validate:"gte=0"`

	// MaxResults stops after this many products. Zero means unlimited.
	MaxResults int `json:"max_results" yaml:"max_results" validate:"gte=0"`

	// Minimality is "choice" or "strict".
	Minimality string `json:"minimality" yaml:"minimality" validate:"required,oneof=choice strict"`
}

// BatchSettings tunes engine.ValidateBatch.
type BatchSettings struct {
	Parallelism int `json:"parallelism" yaml:"parallelism" validate:"gte=1,lte=1024"`
}

// PolicySettings configures the Rego policy engine.
type PolicySettings struct {
	// Dirs lists directories and files of .rego policies.
	Dirs []string `json:"dirs" yaml:"dirs" validate:"dive,required"`

	// Watch reloads policies when files under Dirs change.
	Watch bool `json:"watch" yaml:"watch"`

	// Params is passed to every policy as input.params.
	Params map[string]any `json:"params" yaml:"params"`
}

// SuggestSettings configures logic suggesters.
type SuggestSettings struct {
	// Enabled lets CalculateMWP fill missing logic from suggestions.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Script is an optional Starlark suggestion script, tried after the
	// built-in patterns.
	Script string `json:"script" yaml:"script"`

	// Timeout bounds one script run.
	Timeout Duration `json:"timeout" yaml:"timeout" validate:"gte=0"`
}

// TelemetrySettings is the file form of telemetry.Config.
type TelemetrySettings struct {
	LogLevel       string  `json:"log_level" yaml:"log_level" validate:"oneof=trace debug info warn error fatal disabled"`
	LogFormat      string  `json:"log_format" yaml:"log_format" validate:"oneof=console json"`
	Tracing        string  `json:"tracing" yaml:"tracing" validate:"oneof=none stdout otlp"`
	OTLPEndpoint   string  `json:"otlp_endpoint" yaml:"otlp_endpoint" validate:"required_if=Tracing otlp"`
	SamplingRate   float64 `json:"sampling_rate" yaml:"sampling_rate" validate:"gte=0,lte=1"`
	MetricsAddress string  `json:"metrics_address" yaml:"metrics_address" validate:"omitempty,hostname_port"`
}

// DefaultSettings returns the settings used when no file is given.
func DefaultSettings() *Settings {
	opts := engine.DefaultEnumerationOptions()
	return &Settings{
		Enumeration: EnumerationSettings{
			MaxNodes:   opts.MaxNodes,
			Timeout:    Duration(opts.Timeout),
			MaxResults: opts.MaxResults,
			Minimality: string(opts.Minimality),
		},
		Batch: BatchSettings{
			Parallelism: engine.DefaultParallelism,
		},
		Policy: PolicySettings{
			Dirs:   []string{},
			Params: map[string]any{},
		},
		Suggest: SuggestSettings{
			Timeout: Duration(5 * time.Second),
		},
		Telemetry: TelemetrySettings{
			LogLevel:     "info",
			LogFormat:    "console",
			Tracing:      "none",
			SamplingRate: 1.0,
		},
	}
}

// EnumerationOptions converts the enumeration settings.
func (s *Settings) EnumerationOptions() engine.EnumerationOptions {
	return engine.EnumerationOptions{
		MaxNodes:   s.Enumeration.MaxNodes,
		Timeout:    s.Enumeration.Timeout.Std(),
		MaxResults: s.Enumeration.MaxResults,
		Minimality: engine.Minimality(s.Enumeration.Minimality),
	}
}

// TelemetryConfig overlays the telemetry settings on base. A nil base
// starts from telemetry.DefaultConfig.
func (s *Settings) TelemetryConfig(base *telemetry.Config) *telemetry.Config {
	if base == nil {
		base = telemetry.DefaultConfig()
	}
	cfg := *base
	t := s.Telemetry
	cfg.Logging.Level = t.LogLevel
	cfg.Logging.Format = t.LogFormat
	cfg.Tracing.Enabled = t.Tracing != "none"
	cfg.Tracing.Exporter = t.Tracing
	cfg.Tracing.Endpoint = t.OTLPEndpoint
	cfg.Tracing.SamplingRate = t.SamplingRate
	cfg.Metrics.ListenAddress = t.MetricsAddress
	return &cfg
}

// ValidationError is a settings problem with its source position.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the settings path of the field (e.g., "enumeration.minimality").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	loc := e.File
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", e.File, e.Line, e.Column)
	}
	switch {
	case loc != "" && e.Path != "":
		return fmt.Sprintf("%s: %s: %s", loc, e.Path, e.Message)
	case loc != "":
		return fmt.Sprintf("%s: %s", loc, e.Message)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors collects every problem found in a settings file.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	if len(es) == 1 {
		return es[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", es[0].Error(), len(es)-1)
}
