package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hcnn/internal/config"
	"hcnn/internal/faults"
	"hcnn/internal/logging"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(t.TempDir(), "logs")

	logger, err := logging.NewFromConfig(&cfg, "")
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello from test")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, logging.LogFileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "hello from test") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestLevelOverrideWins(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "error"
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg, "debug")
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Debug("visible at debug")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, logging.LogFileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "visible at debug") {
		t.Fatalf("expected debug output, got %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message without caller")
	if strings.Contains(buf.String(), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", buf.String())
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message with caller")
	if !strings.Contains(buf.String(), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", buf.String())
	}
}

func TestConsoleHeaderCarriesExperimentAndStage(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := logging.WithExperiment(context.Background(), "cqt-baseline")
	ctx = logging.WithStage(ctx, "train")
	ctx = logging.WithRunID(ctx, "run-1")
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "pipeline")).Info("stage started", logging.Epoch(3))

	line := buf.String()
	for _, want := range []string{"INFO pipeline: [cqt-baseline/train] stage started", " epoch=3"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
	if strings.Contains(line, "run-1") {
		t.Fatalf("run id should be hidden at info level: %q", line)
	}
}

func TestJSONLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	cause := fmt.Errorf("%w: corrupt header", faults.ErrIO)
	logging.WarnWithContext(logger, "note skipped", "feature_extraction_failed", logging.NoteID("n1"), logging.Error(cause))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, buf.String())
	}
	checks := map[string]string{
		"level":      "warn",
		"msg":        "note skipped",
		"event_type": "feature_extraction_failed",
		"note_id":    "n1",
		"error_kind": "io",
		"impact":     "operation completed with warnings",
	}
	for key, want := range checks {
		if got, _ := record[key].(string); got != want {
			t.Fatalf("%s = %q, want %q (record %v)", key, got, want, record)
		}
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts field, got %v", record)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestParseLevel(t *testing.T) {
	if logging.ParseLevel("nonsense") != logging.ParseLevel("info") {
		t.Fatal("unknown levels should map to info")
	}
	if logging.ParseLevel("WARN") <= logging.ParseLevel("info") {
		t.Fatal("warn should be above info")
	}
}

func TestErrorWithContextKeepsExplicitHint(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.ErrorWithContext(logger, "stage failed", "stage_failure",
		logging.String(logging.FieldErrorHint, "run hcnn check"),
		logging.Error(errors.New("boom")),
	)
	if strings.Count(buf.String(), "error_hint") != 1 || !strings.Contains(buf.String(), "run hcnn check") {
		t.Fatalf("unexpected hint handling: %q", buf.String())
	}
}
