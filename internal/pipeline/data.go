package pipeline

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"hcnn/internal/dataset"
	"hcnn/internal/features"
	"hcnn/internal/logging"
	"hcnn/internal/stream"
)

const extractLockName = ".extract.lock"

func (d *Driver) extractLockPath() string {
	return filepath.Join(d.cfg.Paths.FeatureDir, extractLockName)
}

// loadSplits checks the partition against the full notes index, then splits
// the notes that have feature archives.
func (d *Driver) loadSplits(partition string) (dataset.Splits, error) {
	notes, err := dataset.LoadIndex(d.profile.NotesIndex, d.profile.Root)
	if err != nil {
		return dataset.Splits{}, err
	}
	path, err := d.profile.PartitionFile(partition)
	if err != nil {
		return dataset.Splits{}, err
	}
	assignment, err := dataset.LoadPartition(path)
	if err != nil {
		return dataset.Splits{}, err
	}
	if _, err := dataset.Split(notes, assignment); err != nil {
		return dataset.Splits{}, fmt.Errorf("partition %s: %w", partition, err)
	}

	extracted, err := features.LoadIndex(d.cfg.Paths.FeatureDir, d.profile.NotesIndex)
	if err != nil {
		return dataset.Splits{}, err
	}
	extracted = extracted.Filter(func(o dataset.Observation) bool {
		_, ok := assignment[o.Index]
		return ok
	})
	covered := make(dataset.Assignment, len(extracted))
	for _, obs := range extracted {
		covered[obs.Index] = assignment[obs.Index]
	}
	return dataset.Split(extracted, covered)
}

// items maps observations to labelled feature items and logs what is dropped.
func (d *Driver) items(logger *slog.Logger, split string, index dataset.Index) ([]stream.Item, error) {
	items, dropped := stream.Items(index, d.classes)
	for _, obs := range dropped {
		logger.Debug("note dropped",
			logging.NoteID(obs.Index),
			logging.String("instrument", obs.Instrument),
			logging.String("split", split),
		)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %s split is empty", dataset.ErrNoFeatures, split)
	}
	return items, nil
}

func (d *Driver) inputDim() int {
	return d.cfg.Training.TLen * d.cfg.Features.CQT.NBins
}
