package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"hcnn/internal/config"
	"hcnn/internal/dataset"
	"hcnn/internal/faults"
	"hcnn/internal/logging"
	"hcnn/internal/model"
)

// Stage names.
const (
	StageExtractFeatures = "extract_features"
	StageTrain           = "train"
	StageModelSelection  = "model_selection"
	StagePredict         = "predict"
	StageAnalyze         = "analyze"
	StageFitAndPredict   = "fit_and_predict"
)

// Driver runs pipeline stages against one configuration.
type Driver struct {
	cfg      *config.Config
	profile  dataset.Profile
	classes  *dataset.ClassMap
	logger   *slog.Logger
	progress Progress
	clock    func() time.Time
}

// Option customizes a Driver.
type Option func(*Driver)

// WithProgress reports long-running loops to p.
func WithProgress(p Progress) Option {
	return func(d *Driver) {
		if p != nil {
			d.progress = p
		}
	}
}

// WithClock replaces the wall clock used by the training loop.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		if now != nil {
			d.clock = now
		}
	}
}

// New resolves the selected dataset profile and checks that the class map and
// model agree with the training section.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Driver, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: configuration is required", faults.ErrConfig)
	}
	profile, err := dataset.Resolve(cfg)
	if err != nil {
		return nil, err
	}
	classes := dataset.DefaultClassMap()
	if cfg.Training.NTargets != classes.Size() {
		return nil, fmt.Errorf("%w: training.n_targets is %d but the class map has %d classes",
			config.ErrSchema, cfg.Training.NTargets, classes.Size())
	}
	if !knownModel(cfg.Training.Model) {
		return nil, fmt.Errorf("%w: %q (available: %v)", model.ErrUnknownModel, cfg.Training.Model, model.Names())
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Driver{
		cfg:      cfg,
		profile:  profile,
		classes:  classes,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
		progress: nopProgress{},
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Config returns the driver configuration.
func (d *Driver) Config() *config.Config { return d.cfg }

// Profile returns the selected dataset profile.
func (d *Driver) Profile() dataset.Profile { return d.profile }

// Classes returns the instrument class map.
func (d *Driver) Classes() *dataset.ClassMap { return d.classes }

func knownModel(name string) bool {
	for _, n := range model.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// runStage tags ctx with the stage, experiment, and a fresh run id, and logs
// the start and outcome of fn.
func (d *Driver) runStage(ctx context.Context, stage, experimentName string, fn func(ctx context.Context, logger *slog.Logger) error) error {
	ctx = logging.WithStage(ctx, stage)
	ctx = logging.WithRunID(ctx, uuid.NewString())
	if experimentName != "" {
		ctx = logging.WithExperiment(ctx, experimentName)
	}
	logger := logging.WithContext(ctx, d.logger)

	started := time.Now()
	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))
	if err := fn(ctx, logger); err != nil {
		logging.ErrorWithContext(logger, "stage failed", "stage_failure",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, faults.Hint(err)),
			logging.Duration("stage_duration", time.Since(started)),
		)
		return err
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(started)),
	)
	return nil
}
