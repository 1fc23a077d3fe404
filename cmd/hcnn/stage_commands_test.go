package main

import (
	"errors"
	"testing"

	"hcnn/internal/experiment"
	"hcnn/internal/testsupport"
)

func TestStageCommandsEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithValue("training.max_iterations", 10))
	testsupport.WriteTinyDataset(t, cfg)
	configPath := testsupport.ConfigPath(cfg)

	out, _, err := runCLI(t, []string{"extract-features"}, configPath)
	if err != nil {
		t.Fatalf("extract-features: %v", err)
	}
	if got := fieldValue(t, out, "Notes"); got != "24" {
		t.Fatalf("notes = %q, want 24", got)
	}
	if got := fieldValue(t, out, "Failed"); got != "0" {
		t.Fatalf("failed = %q, want 0", got)
	}

	out, _, err = runCLI(t, []string{"train", "exp", "-p", "rwc"}, configPath)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if got := fieldValue(t, out, "State"); got != "iteration_limit_reached" {
		t.Fatalf("state = %q", got)
	}
	if got := fieldValue(t, out, "Iterations"); got != "0 -> 10" {
		t.Fatalf("iterations = %q", got)
	}
	if got := fieldValue(t, out, "Snapshots"); got != "2" {
		t.Fatalf("snapshots = %q, want 2", got)
	}

	if _, _, err := runCLI(t, []string{"train", "exp"}, configPath); !errors.Is(err, experiment.ErrExists) {
		t.Fatalf("expected ErrExists for a second fresh train, got %v", err)
	}

	out, _, err = runCLI(t, []string{"model_selection", "exp"}, configPath)
	if err != nil {
		t.Fatalf("model_selection: %v", err)
	}
	requireContains(t, out, "Best epoch:")
	requireContains(t, out, "best.snap")

	out, _, err = runCLI(t, []string{"model-selection", "exp"}, configPath)
	if err != nil {
		t.Fatalf("model-selection rerun: %v", err)
	}
	requireContains(t, out, "Reused the previous validation log")

	out, _, err = runCLI(t, []string{"predict", "exp"}, configPath)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if got := fieldValue(t, out, "Snapshot"); got != "best" {
		t.Fatalf("snapshot = %q, want best", got)
	}
	requireContains(t, out, "model_best_predictions.csv")

	if _, _, err := runCLI(t, []string{"predict", "exp"}, configPath); !errors.Is(err, experiment.ErrArtifactExists) {
		t.Fatalf("expected ErrArtifactExists, got %v", err)
	}

	out, _, err = runCLI(t, []string{"predict", "exp", "-s", "5"}, configPath)
	if err != nil {
		t.Fatalf("predict -s 5: %v", err)
	}
	requireContains(t, out, "Predictions:")

	if _, _, err := runCLI(t, []string{"predict", "exp", "-s", "7"}, configPath); !errors.Is(err, experiment.ErrSnapshotMissing) {
		t.Fatalf("expected ErrSnapshotMissing, got %v", err)
	}

	out, _, err = runCLI(t, []string{"analyze", "exp"}, configPath)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	requireContains(t, out, "Precision")
	requireContains(t, out, "weighted")
	requireContains(t, out, "model_best_analysis.yaml")

	out, _, err = runCLI(t, []string{"status", "exp"}, configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if got := fieldValue(t, out, "Locked"); got != "no" {
		t.Fatalf("locked = %q", got)
	}
	if got := fieldValue(t, out, "Snapshots"); got != "2 (latest epoch 10)" {
		t.Fatalf("snapshots = %q", got)
	}
	requireContains(t, out, "iteration_limit_reached")
	requireContains(t, out, "predictions")
}

func TestStatusUnknownExperiment(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteTinyDataset(t, cfg)
	_, _, err := runCLI(t, []string{"status", "missing"}, testsupport.ConfigPath(cfg))
	if !errors.Is(err, experiment.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestStatsAndCheck(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := testsupport.ConfigPath(cfg)

	out, _, err := runCLI(t, []string{"check"}, configPath)
	if err == nil {
		t.Fatal("expected check to fail before the dataset exists")
	}
	requireContains(t, out, "[ERROR]")

	testsupport.WriteTinyDataset(t, cfg)
	out, _, err = runCLI(t, []string{"check"}, configPath)
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	requireContains(t, out, "[OK]")
	requireContains(t, out, "[WARN] not extracted")
	requireContains(t, out, "Preflight checks passed")

	out, _, err = runCLI(t, []string{"stats"}, configPath)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	requireContains(t, out, "Profile: tiny")
	requireContains(t, out, "rwc")
	requireContains(t, out, "uiowa")
	requireContains(t, out, "24")
}
