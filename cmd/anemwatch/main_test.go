package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/anemwatch/config"
	"github.com/aluiziolira/anemwatch/models"
	"github.com/aluiziolira/anemwatch/notify"
)

func TestPrintSummary(t *testing.T) {
	start := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	result := &models.RunResult{
		StartTime:     start,
		EndTime:       start.Add(90 * time.Second),
		Reason:        models.StopSlotsFound,
		Attempts:      4,
		Retries:       3,
		OutcomeCounts: map[models.Outcome]int{models.OutcomeFailed: 3, models.OutcomeSlotsAvailable: 1},
		ErrorsByType:  map[string]int{"navigation": 3},
		Last:          &models.Attempt{Outcome: models.OutcomeSlotsAvailable, URL: "https://minha.anem.dz/rendezvous"},
	}

	var buf bytes.Buffer
	printSummary(&buf, result)
	out := buf.String()

	for _, want := range []string{
		"Slots may be available",
		"Stop reason:   slots_found",
		"Attempts:      4",
		"Retries:       3",
		"navigation:3",
		"Last URL:      https://minha.anem.dz/rendezvous",
		"Duration:      1m30s",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestRootCmdRegistersFlags(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"config", config.KeyN1, config.KeyWatch, config.KeyMaxAttempts, config.KeyMetricsAddr, config.KeyVerbose} {
		if cmd.Flags().Lookup(name) == nil {
			t.Fatalf("flag %q not registered", name)
		}
	}
}

func TestRunFailsFastWithoutCredentials(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.N1 = ""
	cfg.N2 = ""

	var out bytes.Buffer
	err := run(context.Background(), cfg, &out)
	if err == nil {
		t.Fatalf("expected an error for missing credentials")
	}
	if !strings.Contains(err.Error(), "missing_credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWaitForEnter(t *testing.T) {
	var out bytes.Buffer
	waitForEnter(&out, strings.NewReader("\n"))
	if !strings.Contains(out.String(), "Press Enter") {
		t.Fatalf("prompt not written: %q", out.String())
	}
}

func TestRootCmdWaitsOnExitAfterConfigError(t *testing.T) {
	settings := filepath.Join(t.TempDir(), "settings.env")
	if err := os.WriteFile(settings, []byte("N1=320600000120\nN2=1234567890\n"), 0o600); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader("\n"))
	cmd.SetArgs([]string{"--config", settings, "--max-attempts=-1", "--wait-on-exit"})

	err := cmd.Execute()
	if err == nil {
		t.Fatalf("expected a configuration error")
	}
	var reported reportedError
	if !errors.As(err, &reported) {
		t.Fatalf("error should be marked as reported, got %T", err)
	}
	if !strings.Contains(errOut.String(), "invalid configuration") {
		t.Fatalf("validation error not shown before the prompt: %q", errOut.String())
	}
	if !strings.Contains(out.String(), "Press Enter") {
		t.Fatalf("wait-on-exit prompt not shown: %q", out.String())
	}
}

func TestRootCmdNoPromptByDefault(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--max-attempts=-1"})

	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected a configuration error")
	}
	if strings.Contains(out.String(), "Press Enter") {
		t.Fatalf("unexpected prompt: %q", out.String())
	}
}

func TestNewReportWriterCopiesToFile(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ReportFormat = "text"
	cfg.ReportFile = filepath.Join(t.TempDir(), "attempts.jsonl")

	var out bytes.Buffer
	w, err := newReportWriter(cfg, &out, false)
	if err != nil {
		t.Fatalf("new report writer: %v", err)
	}
	attempt := models.Attempt{Number: 1, Outcome: models.OutcomeNoSlots, StartedAt: time.Now()}
	if err := w.Write(attempt); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if !strings.Contains(out.String(), "attempt #1 no_slots") {
		t.Fatalf("console line missing: %q", out.String())
	}
	data, err := os.ReadFile(cfg.ReportFile)
	if err != nil {
		t.Fatalf("read report file: %v", err)
	}
	if !strings.Contains(string(data), `"outcome":"no_slots"`) {
		t.Fatalf("report file missing record: %q", data)
	}
}

func TestNewReportWriterConsoleOnly(t *testing.T) {
	cfg := config.DefaultConfig()
	w, err := newReportWriter(cfg, &bytes.Buffer{}, false)
	if err != nil {
		t.Fatalf("new report writer: %v", err)
	}
	if _, ok := w.(*notify.MultiWriter); ok {
		t.Fatalf("no report file configured, got a MultiWriter")
	}
}
