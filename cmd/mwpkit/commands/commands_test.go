package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const carXML = `<featureModel>
  <feature name="Car">
    <feature name="Engine" mandatory="true">
      <group type="xor">
        <feature name="Petrol"/>
        <feature name="Electric"/>
      </group>
    </feature>
    <feature name="Radio"/>
    <feature name="Navigation"/>
  </feature>
  <constraints>
    <constraint>
      <englishStatement>Navigation requires Radio</englishStatement>
      <logic>Navigation -> Radio</logic>
    </constraint>
  </constraints>
</featureModel>`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// run executes the CLI with quiet logging and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	settings := writeTemp(t, "settings.yaml", "telemetry:\n  log_level: disabled\n")

	configPath, verbose, jsonOutput = "", false, false
	cmd := newRootCommand("test", "none", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", settings}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseCommand(t *testing.T) {
	model := writeTemp(t, "car.xml", carXML)
	out, err := run(t, "parse", model, "--json")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var resp struct {
		Features []string `json:"features"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if len(resp.Features) != 6 {
		t.Errorf("features = %v", resp.Features)
	}
}

func TestMWPCommand(t *testing.T) {
	model := writeTemp(t, "car.xml", carXML)
	out, err := run(t, "mwp", model)
	if err != nil {
		t.Fatalf("mwp: %v", err)
	}
	for _, want := range []string{"{Car, Engine, Petrol}", "{Car, Electric, Engine}"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %s:\n%s", want, out)
		}
	}
}

func TestTranslateCommand(t *testing.T) {
	model := writeTemp(t, "car.xml", carXML)
	logic := writeTemp(t, "logic.yaml", "constraint-0: Radio -> Navigation\n")
	out, err := run(t, "translate", model, "--logic", logic, "--json")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if !strings.Contains(out, `"Radio -> Navigation"`) {
		t.Errorf("output lacks the bound logic:\n%s", out)
	}
	if strings.Contains(out, `\u00`) {
		t.Errorf("operators were escaped:\n%s", out)
	}
}

func TestValidateCommand(t *testing.T) {
	model := writeTemp(t, "car.xml", carXML)

	if _, err := run(t, "validate", model, "--select", "Car,Engine,Petrol"); err != nil {
		t.Errorf("valid selection: %v", err)
	}

	out, err := run(t, "validate", model, "--select", "Car,Engine,Petrol,Navigation")
	if !errors.Is(err, errInvalidSelection) {
		t.Errorf("error = %v, want invalid selection", err)
	}
	if !strings.Contains(out, "constraint:0") {
		t.Errorf("output lacks the broken rule:\n%s", out)
	}

	batch := writeTemp(t, "products.yaml", "- [Car, Engine, Petrol]\n- Car, Engine\n")
	out, err = run(t, "validate", model, "--batch", batch)
	if !errors.Is(err, errInvalidSelection) {
		t.Errorf("batch error = %v", err)
	}
	if !strings.Contains(out, "1 valid, 1 invalid") {
		t.Errorf("batch output:\n%s", out)
	}
}

func TestLogicSuggestCommand(t *testing.T) {
	model := writeTemp(t, "car.xml", strings.Replace(carXML, "<logic>Navigation -> Radio</logic>", "", 1))
	out, err := run(t, "logic", "suggest", model)
	if err != nil {
		t.Fatalf("logic suggest: %v", err)
	}
	if !strings.Contains(out, "# Navigation requires Radio") || !strings.Contains(out, "constraint-0: Navigation -> Radio") {
		t.Errorf("output:\n%s", out)
	}
}

func TestPolicyListCommand(t *testing.T) {
	out, err := run(t, "policy", "list")
	if err != nil {
		t.Fatalf("policy list: %v", err)
	}
	if !strings.Contains(out, "forbidden-features") || !strings.Contains(out, "max-features") {
		t.Errorf("output:\n%s", out)
	}
}

func TestMissingModel(t *testing.T) {
	if _, err := run(t, "mwp", filepath.Join(t.TempDir(), "missing.xml")); err == nil {
		t.Error("expected an error")
	}
}
