package experiment

import (
	"fmt"

	"hcnn/internal/faults"
)

var (
	// ErrExists reports an experiment directory that already exists.
	ErrExists = fmt.Errorf("%w: experiment already exists", faults.ErrExperimentState)
	// ErrNotExist reports a missing experiment directory.
	ErrNotExist = fmt.Errorf("%w: experiment does not exist", faults.ErrExperimentState)
	// ErrBusy reports an experiment locked by another process.
	ErrBusy = fmt.Errorf("%w: experiment is locked by another process", faults.ErrExperimentState)
	// ErrRunInProgress reports a training run that has not finished.
	ErrRunInProgress = fmt.Errorf("%w: training run in progress", faults.ErrExperimentState)
	// ErrArtifactExists reports an artifact that would be overwritten.
	ErrArtifactExists = fmt.Errorf("%w: artifact already exists", faults.ErrExperimentState)
	// ErrInvalidName reports an experiment name that is not a single path element.
	ErrInvalidName = fmt.Errorf("%w: invalid experiment name", faults.ErrExperimentState)

	// ErrNoSnapshots reports an experiment with an empty params directory.
	ErrNoSnapshots = fmt.Errorf("%w: no snapshots found", faults.ErrSnapshot)
	// ErrSnapshotMissing reports a requested snapshot that does not exist.
	ErrSnapshotMissing = fmt.Errorf("%w: snapshot not found", faults.ErrSnapshot)
)
