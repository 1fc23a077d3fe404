package faults_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"hcnn/internal/faults"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := faults.Wrap(faults.ErrIO, "extract_features", "write", "feature file", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, faults.ErrIO) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"extract_features", "write", "feature file"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapWithoutStageContext(t *testing.T) {
	err := faults.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, faults.ErrIO) {
		t.Fatalf("expected default io marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "pipeline failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestKindClassifiesDerivedErrors(t *testing.T) {
	derived := fmt.Errorf("%w: no snapshots found", faults.ErrSnapshot)
	wrapped := fmt.Errorf("model_selection: %w", derived)

	cases := map[string]error{
		"config":           fmt.Errorf("%w: missing key", faults.ErrConfig),
		"dataset":          faults.Wrap(faults.ErrDataset, "train", "resolve", "", nil),
		"experiment_state": faults.ErrExperimentState,
		"snapshot":         wrapped,
		"io":               faults.ErrIO,
		"internal":         errors.New("other"),
	}
	for want, err := range cases {
		if got := faults.Kind(err); got != want {
			t.Fatalf("Kind(%v) = %q, want %q", err, got, want)
		}
		if faults.Hint(err) == "" {
			t.Fatalf("expected hint for %q", want)
		}
	}
	if faults.Kind(nil) != "" {
		t.Fatal("expected empty kind for nil error")
	}
}
