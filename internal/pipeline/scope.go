package pipeline

import (
	"errors"
	"fmt"
	"log/slog"

	"hcnn/internal/config"
	"hcnn/internal/experiment"
	"hcnn/internal/logging"
	"hcnn/internal/model"
)

// experimentDriver opens experiment name and returns a driver whose
// experiment-scoped settings come from the configuration saved when the
// experiment was trained: file templates, the training section, and the CQT
// shape. Paths, the dataset profile, and worker counts stay with the invoking
// configuration.
func (d *Driver) experimentDriver(logger *slog.Logger, name string) (*Driver, experiment.Layout, error) {
	layout, err := experiment.Open(d.cfg, name)
	if err != nil {
		return nil, experiment.Layout{}, err
	}
	saved, err := config.Load(layout.ConfigPath())
	if errors.Is(err, config.ErrNotFound) {
		logger.Warn("experiment has no saved configuration; using the current one",
			logging.String("path", layout.ConfigPath()),
			logging.String(logging.FieldEventType, "config_snapshot_missing"),
			logging.String(logging.FieldImpact, "snapshot names and model shape follow the current configuration"),
		)
		return d, layout, nil
	}
	if err != nil {
		return nil, experiment.Layout{}, fmt.Errorf("experiment %s configuration: %w", name, err)
	}

	scoped := *d.cfg
	scoped.Experiment = saved.Experiment
	cacheSize := scoped.Training.FeatureCacheSize
	scoped.Training = saved.Training
	scoped.Training.FeatureCacheSize = cacheSize
	numCPUs, skip := scoped.Features.CQT.NumCPUs, scoped.Features.CQT.SkipExisting
	scoped.Features.CQT = saved.Features.CQT
	scoped.Features.CQT.NumCPUs, scoped.Features.CQT.SkipExisting = numCPUs, skip

	if scoped.Training.NTargets != d.classes.Size() {
		return nil, experiment.Layout{}, fmt.Errorf("%w: experiment %s was trained for %d classes but the class map has %d",
			config.ErrSchema, name, scoped.Training.NTargets, d.classes.Size())
	}
	if !knownModel(scoped.Training.Model) {
		return nil, experiment.Layout{}, fmt.Errorf("%w: experiment %s uses %q", model.ErrUnknownModel, name, scoped.Training.Model)
	}
	if layout, err = experiment.Open(&scoped, name); err != nil {
		return nil, experiment.Layout{}, err
	}

	nd := *d
	nd.cfg = &scoped
	return &nd, layout, nil
}
