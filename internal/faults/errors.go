package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfig          = errors.New("configuration error")
	ErrDataset         = errors.New("dataset error")
	ErrExperimentState = errors.New("experiment state error")
	ErrSnapshot        = errors.New("snapshot error")
	ErrIO              = errors.New("io error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrIO
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns a short classification label for err, suitable for log fields.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfig):
		return "config"
	case errors.Is(err, ErrDataset):
		return "dataset"
	case errors.Is(err, ErrExperimentState):
		return "experiment_state"
	case errors.Is(err, ErrSnapshot):
		return "snapshot"
	case errors.Is(err, ErrIO):
		return "io"
	default:
		return "internal"
	}
}

// Hint returns an operator-facing next step for the error family.
func Hint(err error) string {
	switch Kind(err) {
	case "config":
		return "fix the configuration file and re-run"
	case "dataset":
		return "check the selected dataset profile and its index/partition files"
	case "experiment_state":
		return "check the experiment name or pass --resume/--overwrite"
	case "snapshot":
		return "run train and model_selection first, or pick an existing epoch"
	case "io":
		return "check filesystem permissions and free space"
	default:
		return "check logs for details"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
