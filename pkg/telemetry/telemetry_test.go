package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

type fakeClassified struct{}

func (fakeClassified) Error() string      { return "boom" }
func (fakeClassified) ErrorClass() string { return "input" }
func (fakeClassified) ErrorCode() string  { return "PARSE_ERROR" }

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"missing service name", func(c *Config) { c.ServiceName = "" }, true},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "jaeger" }, true},
		{"bad sampling", func(c *Config) { c.Tracing.SamplingRate = 2 }, true},
		{"async without buffer", func(c *Config) { c.Events.EnableAsync = true; c.Events.BufferSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, "debug").NewComponentLogger("enumerator").WithModelID("m-1").WithOrdinal(2)
	logger.Info("pruned")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON log line, got: %q (%v)", buf.String(), err)
	}
	if entry["component"] != "enumerator" {
		t.Errorf("Expected component=enumerator, got: %v", entry["component"])
	}
	if entry["model_id"] != "m-1" {
		t.Errorf("Expected model_id=m-1, got: %v", entry["model_id"])
	}
	if entry["ordinal"] != float64(2) {
		t.Errorf("Expected ordinal=2, got: %v", entry["ordinal"])
	}
}

func TestFromContextWithoutLogger(t *testing.T) {
	logger := FromContext(context.Background())
	if logger == nil {
		t.Fatal("Expected a non-nil fallback logger")
	}
	logger.Info("discarded")
}

func TestStartOperationRecordsMetrics(t *testing.T) {
	tel, err := NewTelemetry(TestConfig())
	if err != nil {
		t.Fatalf("NewTelemetry failed: %v", err)
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	op := StartOperation(ctx, "service.parse")
	op.End(nil)

	op = StartOperation(ctx, "service.parse")
	op.End(fakeClassified{})

	op = StartOperation(ctx, "service.parse")
	op.End(errors.New("plain"))

	if got := counterValue(t, tel.Metrics.operations.WithLabelValues("service.parse", "success")); got != 1 {
		t.Errorf("Expected 1 successful operation, got: %v", got)
	}
	if got := counterValue(t, tel.Metrics.operations.WithLabelValues("service.parse", "error")); got != 2 {
		t.Errorf("Expected 2 failed operations, got: %v", got)
	}
	if got := counterValue(t, tel.Metrics.errorsByCode.WithLabelValues("PARSE_ERROR")); got != 1 {
		t.Errorf("Expected 1 PARSE_ERROR, got: %v", got)
	}
	if got := counterValue(t, tel.Metrics.errorsByClass.WithLabelValues("internal")); got != 1 {
		t.Errorf("Expected 1 internal error, got: %v", got)
	}
}

func TestStartOperationWithoutTelemetry(t *testing.T) {
	op := StartOperation(context.Background(), "service.validate")
	if op.Ctx == nil || op.Logger == nil || op.Timer == nil {
		t.Fatal("Expected usable instrumented context without telemetry")
	}
	op.End(nil)
}

func TestDisabledMetricsAreNoOps(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	m.RecordOperation("x", "success", 0)
	m.RecordEnumeration(10, 1)
	m.RecordValidation(false, "mandatory")
	m.RecordPolicyViolation("p", "error")
	m.RecordError("input", "PARSE_ERROR")
	if m.Registry() != nil {
		t.Error("Expected nil registry when metrics are disabled")
	}
}

func TestValidationMetrics(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	m.RecordValidation(true, "")
	m.RecordValidation(false, "constraint")
	m.RecordValidation(false, "constraint")

	if got := counterValue(t, m.validationFailures.WithLabelValues("constraint")); got != 2 {
		t.Errorf("Expected 2 constraint failures, got: %v", got)
	}
	if got := counterValue(t, m.validations.WithLabelValues("true")); got != 1 {
		t.Errorf("Expected 1 valid result, got: %v", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	cfg := DefaultConfig().Metrics
	cfg.Namespace = "mwpkit_test"
	m, err := NewMetrics(cfg)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	m.RecordValidation(false, "mandatory")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, `mwpkit_test_validation_failures_total{rule="mandatory"} 1`) {
		t.Errorf("scrape lacks the validation failure:\n%s", body)
	}

	disabled, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}
	rec = httptest.NewRecorder()
	disabled.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("disabled status = %d, want 404", rec.Code)
	}
}

func TestEventPublisherSync(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true})
	if err != nil {
		t.Fatalf("NewEventPublisher failed: %v", err)
	}
	defer ep.Shutdown(context.Background())

	var all, warnings []Event
	ep.Subscribe(func(e Event) { all = append(all, e) }, nil)
	ep.Subscribe(func(e Event) { warnings = append(warnings, e) }, FilterByLevel(EventLevelWarning))

	if err := ep.PublishModelLoaded("req-1", "m-1", 3, 1); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := ep.PublishValidationFailed("req-1", "m-1", "constraint:0", "constraint 0 violated"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if len(all) != 2 {
		t.Fatalf("Expected 2 events, got: %d", len(all))
	}
	if len(warnings) != 1 || warnings[0].Type != EventTypeValidationFailed {
		t.Fatalf("Expected only the validation failure to pass the level filter, got: %+v", warnings)
	}
	if all[0].ID == "" || all[0].Timestamp.IsZero() {
		t.Error("Expected ID and timestamp to be populated")
	}
}

func TestEventPublisherAsyncDrainsOnShutdown(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, EnableAsync: true, BufferSize: 8})
	if err != nil {
		t.Fatalf("NewEventPublisher failed: %v", err)
	}

	received := make(chan Event, 8)
	ep.Subscribe(func(e Event) { received <- e }, FilterByType(EventTypeEnumerationCompleted))

	_ = ep.PublishEnumerationCompleted("req-2", "m-2", 3, 40, 0)
	_ = ep.PublishError("req-2", "service.parse", errors.New("ignored by filter"))

	if err := ep.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	close(received)

	var got []Event
	for e := range received {
		got = append(got, e)
	}
	if len(got) != 1 || !strings.Contains(got[0].Message, "3 configurations") {
		t.Fatalf("Expected one enumeration event, got: %+v", got)
	}
}

func TestDisabledEventPublisher(t *testing.T) {
	ep, _ := NewEventPublisher(EventsConfig{Enabled: false})
	called := false
	ep.Subscribe(func(Event) { called = true }, nil)
	if err := ep.PublishError("r", "op", errors.New("x")); err != nil {
		t.Fatalf("Expected nil error from disabled publisher, got: %v", err)
	}
	if called {
		t.Error("Expected no delivery from disabled publisher")
	}
	if err := ep.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}
