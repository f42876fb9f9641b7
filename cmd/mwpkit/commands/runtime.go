package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openfroyo/mwpkit/pkg/config"
	"github.com/openfroyo/mwpkit/pkg/engine"
	"github.com/openfroyo/mwpkit/pkg/policy"
	"github.com/openfroyo/mwpkit/pkg/service"
	"github.com/openfroyo/mwpkit/pkg/telemetry"
)

// runtime holds what one command invocation needs.
type runtime struct {
	ctx      context.Context
	loader   *config.Loader
	settings *config.Settings
	tel      *telemetry.Telemetry
	svc      *service.Service
	policies *policy.Engine
}

// newRuntime loads settings, applies overrides, and starts telemetry and
// the service. Callers must call close.
func newRuntime(cmd *cobra.Command, override func(*config.Settings)) (*runtime, error) {
	loader := config.NewLoader()
	settings, err := loader.LoadSettings(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if override != nil {
		override(settings)
	}
	if verbose {
		settings.Telemetry.LogLevel = "debug"
	}

	tcfg := settings.TelemetryConfig(nil)
	tcfg.ServiceVersion = buildVersion
	tel, err := telemetry.NewTelemetry(tcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start telemetry: %w", err)
	}
	if err := tel.Metrics.StartMetricsServer(); err != nil {
		_ = tel.Shutdown(context.Background())
		return nil, err
	}

	ctx := tel.WithContext(cmd.Context())
	svc, pe, err := service.FromSettings(ctx, settings, tel.Logger.Zerolog())
	if err != nil {
		_ = tel.Shutdown(context.Background())
		return nil, err
	}

	return &runtime{
		ctx:      ctx,
		loader:   loader,
		settings: settings,
		tel:      tel,
		svc:      svc,
		policies: pe,
	}, nil
}

func (r *runtime) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.tel.Shutdown(ctx); err != nil {
		r.logger().Warn().Err(err).Msg("Telemetry shutdown failed")
	}
}

func (r *runtime) logger() *zerolog.Logger {
	zl := r.tel.Logger.Zerolog()
	return &zl
}

// logicFrom loads a logic mapping file, or returns nil for an empty path.
func (r *runtime) logicFrom(path string) (engine.LogicMapping, error) {
	if path == "" {
		return nil, nil
	}
	return r.loader.LoadLogicMapping(path)
}

func readDocument(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	return data, nil
}

// render writes v as indented JSON with --json, otherwise calls text.
func render(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		// Formulas use -> and &, which must stay readable.
		enc.SetEscapeHTML(false)
		return enc.Encode(v)
	}
	text(out)
	return nil
}

func printPolicyViolations(w io.Writer, violations []engine.PolicyViolation) {
	if len(violations) == 0 {
		return
	}
	fmt.Fprintf(w, "\nPolicy violations (%d):\n", len(violations))
	for _, v := range violations {
		fmt.Fprintf(w, "  [%s] %s: {%s} %s\n", v.Severity, v.Policy, v.Configuration, v.Message)
		if v.Remediation != "" {
			fmt.Fprintf(w, "      remediation: %s\n", v.Remediation)
		}
	}
}
