package config

import (
	"fmt"
	"math"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateData(); err != nil {
		return err
	}
	if err := c.validateCQT(); err != nil {
		return err
	}
	if err := c.validateExperiment(); err != nil {
		return err
	}
	if err := c.validateTraining(); err != nil {
		return err
	}
	return nil
}

func schemaErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchema, fmt.Sprintf(format, args...))
}

func (c *Config) validatePaths() error {
	if c.Paths.ModelDir == "" {
		return schemaErrorf("paths.model_dir must be set")
	}
	if c.Paths.FeatureDir == "" {
		return schemaErrorf("paths.feature_dir must be set")
	}
	return nil
}

func (c *Config) validateData() error {
	if c.Data.Selected == "" {
		return schemaErrorf("data.selected must name a dataset profile")
	}
	for name, profile := range c.Data.Profiles {
		if profile.Root == "" {
			return schemaErrorf("data.%s.root must be set", name)
		}
		if profile.NotesIndex == "" {
			return schemaErrorf("data.%s.notes_index must be set", name)
		}
	}
	return nil
}

func (c *Config) validateCQT() error {
	cqt := c.Features.CQT
	switch {
	case cqt.SampleRate <= 0:
		return schemaErrorf("features.cqt.samplerate must be positive")
	case cqt.HopLength <= 0:
		return schemaErrorf("features.cqt.hop_length must be positive")
	case cqt.FMin <= 0:
		return schemaErrorf("features.cqt.fmin must be positive")
	case cqt.NBins <= 0:
		return schemaErrorf("features.cqt.n_bins must be positive")
	case cqt.BinsPerOctave <= 0:
		return schemaErrorf("features.cqt.bins_per_octave must be positive")
	case cqt.FilterScale <= 0:
		return schemaErrorf("features.cqt.filter_scale must be positive")
	}
	top := cqt.FMin * math.Pow(2, float64(cqt.NBins-1)/float64(cqt.BinsPerOctave))
	if top >= cqt.SampleRate/2 {
		return schemaErrorf("features.cqt: highest bin %.1f Hz exceeds the Nyquist frequency %.1f Hz", top, cqt.SampleRate/2)
	}
	return nil
}

func (c *Config) validateExperiment() error {
	e := c.Experiment
	if !strings.Contains(e.ParamsFormat, epochPlaceholder) {
		return schemaErrorf("experiment.params_format must contain %s", epochPlaceholder)
	}
	if !strings.Contains(e.PredictionsFormat, idPlaceholder) {
		return schemaErrorf("experiment.predictions_format must contain %s", idPlaceholder)
	}
	if !strings.Contains(e.AnalysisFormat, idPlaceholder) {
		return schemaErrorf("experiment.analysis_format must contain %s", idPlaceholder)
	}
	names := map[string]string{
		"experiment.config_path":        e.ConfigPath,
		"experiment.params_dir":         e.ParamsDir,
		"experiment.params_format":      e.ParamsFormat,
		"experiment.best_params":        e.BestParams,
		"experiment.training_loss":      e.TrainingLoss,
		"experiment.validation_loss":    e.ValidationLoss,
		"experiment.predictions_format": e.PredictionsFormat,
		"experiment.analysis_format":    e.AnalysisFormat,
		"experiment.ledger":             e.Ledger,
	}
	for key, value := range names {
		if strings.ContainsAny(value, `/\`) || value == "." || value == ".." {
			return schemaErrorf("%s must be a plain file name, got %q", key, value)
		}
	}
	return nil
}

func (c *Config) validateTraining() error {
	t := c.Training
	switch {
	case t.TLen <= 0:
		return schemaErrorf("training.t_len must be positive")
	case t.MaxIterations <= 0:
		return schemaErrorf("training.max_iterations must be positive")
	case t.MaxTime <= 0:
		return schemaErrorf("training.max_time must be positive")
	case t.BatchSize <= 0:
		return schemaErrorf("training.batch_size must be positive")
	case t.NTargets <= 0:
		return schemaErrorf("training.n_targets must be positive")
	case t.IterationPrintFrequency < 0:
		return schemaErrorf("training.iteration_print_frequency must not be negative")
	case t.IterationWriteFrequency < 0:
		return schemaErrorf("training.iteration_write_frequency must not be negative")
	case t.MaxFilesPerClass != nil && *t.MaxFilesPerClass <= 0:
		return schemaErrorf("training.max_files_per_class must be positive when set")
	case t.ConvergenceLoss < 0:
		return schemaErrorf("training.convergence_loss must not be negative")
	case t.Hyperparams.LearningRate <= 0:
		return schemaErrorf("training.hyperparams.learning_rate must be positive")
	case t.Hyperparams.Momentum < 0 || t.Hyperparams.Momentum >= 1:
		return schemaErrorf("training.hyperparams.momentum must be in [0, 1)")
	}
	return nil
}
