package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// syncBuffer is a bytes.Buffer shared between a running command and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatchLoop(t *testing.T) {
	dir := t.TempDir()
	logic := filepath.Join(dir, "logic.yaml")
	mustWrite(t, logic, "constraint-0: A -> B\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := make(chan struct{}, 16)
	done := make(chan error, 1)
	go func() {
		done <- watchLoop(ctx, zerolog.Nop(), []string{logic}, 100*time.Millisecond, func() {
			runs <- struct{}{}
		})
	}()

	expectRun := func(after string) {
		t.Helper()
		select {
		case <-runs:
		case <-time.After(5 * time.Second):
			t.Fatalf("no run after %s", after)
		}
	}
	expectQuiet := func(after string) {
		t.Helper()
		select {
		case <-runs:
			t.Fatalf("unexpected run after %s", after)
		case <-time.After(400 * time.Millisecond):
		}
	}

	expectRun("start")

	mustWrite(t, filepath.Join(dir, "notes.txt"), "unrelated")
	expectQuiet("writing an unwatched file")

	for _, rule := range []string{"A -> C", "A -> D", "!A"} {
		mustWrite(t, logic, "constraint-0: \""+rule+"\"\n")
	}
	expectRun("rewriting the logic file")
	expectQuiet("a burst of writes")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("watchLoop() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watchLoop did not stop after cancel")
	}
}

func TestWatchCommand(t *testing.T) {
	settings := writeTemp(t, "settings.yaml", "telemetry:\n  log_level: disabled\n")
	model := writeTemp(t, "car.xml", carXML)
	logic := writeTemp(t, "logic.yaml", "constraint-0: Navigation -> Radio\n")

	configPath, verbose, jsonOutput = "", false, false
	cmd := newRootCommand("test", "none", "today")
	var out syncBuffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--config", settings, "watch", model, "--logic", logic})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	if !waitFor(5*time.Second, func() bool { return strings.Contains(out.String(), "{Car, Engine, Navigation, Petrol, Radio}") }) {
		t.Fatalf("first run missing:\n%s", out.String())
	}

	mustWrite(t, logic, "constraint-0: \"!Navigation\"\n")

	var rerun string
	ok := waitFor(5*time.Second, func() bool {
		s := out.String()
		i := strings.LastIndex(s, "---\n")
		if i < 0 {
			return false
		}
		rerun = s[i:]
		return strings.Contains(rerun, "decisions")
	})
	if !ok {
		t.Fatalf("no second run after the logic changed:\n%s", out.String())
	}
	if strings.Contains(rerun, "Navigation") {
		t.Errorf("second run ignored the new logic:\n%s", rerun)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("watch returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
