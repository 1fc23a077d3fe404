package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeData(); err != nil {
		return err
	}
	c.normalizeExperiment()
	c.normalizeTraining()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.ModelDir, err = expandPath(strings.TrimSpace(c.Paths.ModelDir)); err != nil {
		return fmt.Errorf("%w: paths.model_dir: %w", ErrSchema, err)
	}
	if c.Paths.FeatureDir, err = expandPath(strings.TrimSpace(c.Paths.FeatureDir)); err != nil {
		return fmt.Errorf("%w: paths.feature_dir: %w", ErrSchema, err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("%w: paths.log_dir: %w", ErrSchema, err)
	}
	return nil
}

// normalizeData expands every profile path eagerly so that downstream stages
// only ever observe absolute paths, whichever profile is selected.
func (c *Config) normalizeData() error {
	c.Data.Selected = strings.TrimSpace(c.Data.Selected)
	for name, profile := range c.Data.Profiles {
		var err error
		if profile.Root, err = expandPath(strings.TrimSpace(profile.Root)); err != nil {
			return fmt.Errorf("%w: data.%s.root: %w", ErrSchema, name, err)
		}
		if profile.NotesIndex, err = expandPath(strings.TrimSpace(profile.NotesIndex)); err != nil {
			return fmt.Errorf("%w: data.%s.notes_index: %w", ErrSchema, name, err)
		}
		for corpus, path := range profile.Partitions {
			expanded, err := expandPath(strings.TrimSpace(path))
			if err != nil {
				return fmt.Errorf("%w: data.%s.partitions.%s: %w", ErrSchema, name, corpus, err)
			}
			profile.Partitions[corpus] = expanded
		}
		c.Data.Profiles[name] = profile
	}
	return nil
}

func (c *Config) normalizeExperiment() {
	e := &c.Experiment
	defaults := Default().Experiment
	fill := func(value *string, fallback string) {
		*value = strings.TrimSpace(*value)
		if *value == "" {
			*value = fallback
		}
	}
	fill(&e.ConfigPath, defaults.ConfigPath)
	fill(&e.ParamsDir, defaults.ParamsDir)
	fill(&e.ParamsFormat, defaults.ParamsFormat)
	fill(&e.BestParams, defaults.BestParams)
	fill(&e.TrainingLoss, defaults.TrainingLoss)
	fill(&e.ValidationLoss, defaults.ValidationLoss)
	fill(&e.PredictionsFormat, defaults.PredictionsFormat)
	fill(&e.AnalysisFormat, defaults.AnalysisFormat)
	fill(&e.Ledger, defaults.Ledger)
}

func (c *Config) normalizeTraining() {
	c.Training.Model = strings.ToLower(strings.TrimSpace(c.Training.Model))
	if c.Training.Model == "" {
		c.Training.Model = defaultModel
	}
	c.Training.Partition = strings.TrimSpace(c.Training.Partition)
	if c.Training.Partition == "" {
		c.Training.Partition = defaultPartition
	}
	if c.Training.FeatureCacheSize <= 0 {
		c.Training.FeatureCacheSize = defaultFeatureCacheSize
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
