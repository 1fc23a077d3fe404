package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hcnn/internal/dataset"
	"hcnn/internal/experiment"
	"hcnn/internal/ledger"
	"hcnn/internal/logging"
	"hcnn/internal/model"
	"hcnn/internal/stream"
	"hcnn/internal/train"
)

// TrainOptions selects the partition and whether to continue an experiment.
type TrainOptions struct {
	// Partition names the partition file; empty uses training.partition, or
	// the partition of the previous run when resuming.
	Partition string
	Resume    bool
}

// TrainResult summarizes a training run.
type TrainResult struct {
	Experiment     string
	RunID          string
	Partition      string
	State          train.State
	StartIteration int
	Iteration      int
	Completed      int
	FinalLoss      float64
	Elapsed        time.Duration
	Snapshots      int
}

// Train runs the training loop for experiment name. A fresh run requires a
// new experiment; Resume continues from the latest snapshot, or from scratch
// when the experiment has none.
func (d *Driver) Train(ctx context.Context, name string, opts TrainOptions) (TrainResult, error) {
	result := TrainResult{Experiment: name}
	err := d.runStage(ctx, StageTrain, name, func(ctx context.Context, logger *slog.Logger) error {
		// A fresh run checks its data before creating the experiment so a bad
		// partition does not leave an empty experiment behind.
		var (
			partition string
			items     []stream.Item
			err       error
		)
		if !opts.Resume {
			if err := d.checkFresh(name); err != nil {
				return err
			}
			partition = opts.Partition
			if partition == "" {
				partition = d.cfg.Training.Partition
			}
			if items, err = d.trainItems(logger, partition); err != nil {
				return err
			}
		}

		layout, err := d.trainLayout(name, opts.Resume)
		if err != nil {
			return err
		}
		lock, err := layout.Lock()
		if err != nil {
			return err
		}
		defer lock.Unlock()

		store, err := ledger.Open(layout.LedgerPath())
		if err != nil {
			return err
		}
		defer store.Close()
		if n, err := store.MarkInterrupted(ctx); err != nil {
			return err
		} else if n > 0 {
			logger.Warn("previous run ended without a terminal state; marked interrupted",
				logging.Int64("runs", n),
				logging.String(logging.FieldEventType, "run_interrupted"),
				logging.String(logging.FieldErrorHint, "resume with --resume to continue from the latest snapshot"),
				logging.String(logging.FieldImpact, "iterations after the last snapshot were lost"),
			)
		}

		if opts.Resume {
			if partition, err = d.resumePartition(ctx, store, opts.Partition); err != nil {
				return err
			}
			if items, err = d.trainItems(logger, partition); err != nil {
				return err
			}
		}
		result.Partition = partition
		if err := d.cfg.Save(layout.ConfigPath()); err != nil {
			return err
		}

		m, err := d.newModel()
		if err != nil {
			return err
		}
		start := 0
		if opts.Resume {
			start, err = resumeFrom(logger, layout, m)
			if err != nil {
				return err
			}
		}
		result.StartIteration = start

		cache, err := stream.NewCache(d.cfg.Training.FeatureCacheSize)
		if err != nil {
			return err
		}
		sampler, err := stream.NewSampler(items, stream.Options{
			TLen:      d.cfg.Training.TLen,
			Bins:      d.cfg.Features.CQT.NBins,
			BatchSize: d.cfg.Training.BatchSize,
			Seed:      d.cfg.Training.Seed + int64(start),
			Cache:     cache,
		})
		if err != nil {
			return err
		}

		runID, _ := logging.RunIDFromContext(ctx)
		run, err := store.StartRun(ctx, ledger.Run{
			ID:             runID,
			Experiment:     name,
			Partition:      partition,
			Model:          m.Name(),
			StartIteration: start,
		})
		if err != nil {
			return err
		}
		result.RunID = run.ID

		lossLog, err := train.OpenLossLog(layout.TrainingLossPath(), start)
		if err != nil {
			return err
		}
		defer lossLog.Close()

		logger.Info("training started",
			logging.String("partition", partition),
			logging.String("model", m.Name()),
			logging.Int("train_notes", len(items)),
			logging.Int("start_iteration", start),
			logging.Int("max_iterations", d.cfg.Training.MaxIterations),
		)

		res, loopErr := train.Run(ctx, m, sampler, d.loopOptions(start), train.Hooks{
			OnIteration: func(it int, loss float64, elapsed time.Duration) error {
				return lossLog.Append(train.LossRow{Iteration: it, Loss: loss, Elapsed: elapsed.Seconds()})
			},
			OnPrint: func(p train.Progress) {
				logger.Info("training progress",
					logging.Epoch(p.Iteration),
					logging.Float64("loss", p.Loss),
					logging.Float64("mean_loss", p.MeanLoss),
					logging.Duration("elapsed", p.Elapsed),
				)
			},
			OnWrite: func(it int, loss float64) error {
				path := layout.ParamsPath(it)
				if err := m.Save(path); err != nil {
					return err
				}
				result.Snapshots++
				logger.Debug("snapshot written", logging.Epoch(it), logging.String("path", path))
				l := loss
				return store.RecordSnapshot(context.WithoutCancel(ctx), ledger.Snapshot{
					Epoch: it, RunID: run.ID, Path: path, TrainLoss: &l,
				})
			},
		})

		result.State = res.State
		result.Iteration = res.Iteration
		result.Completed = res.Completed
		result.FinalLoss = res.FinalLoss
		result.Elapsed = res.Elapsed

		finish := ledger.RunResult{
			State:      ledger.RunState(res.State),
			Iterations: res.Iteration,
			Elapsed:    res.Elapsed,
		}
		if res.HasLoss {
			l := res.FinalLoss
			finish.FinalLoss = &l
		}
		if loopErr != nil {
			finish.ErrorMessage = loopErr.Error()
		}
		if err := store.FinishRun(context.WithoutCancel(ctx), run.ID, finish); err != nil {
			return errors.Join(loopErr, err)
		}
		if loopErr != nil {
			return loopErr
		}

		logger.Info("training finished",
			logging.String(logging.FieldEventType, "training_complete"),
			logging.String("state", string(res.State)),
			logging.Epoch(res.Iteration),
			logging.Float64("final_loss", res.FinalLoss),
			logging.Duration("elapsed", res.Elapsed),
		)
		return nil
	})
	return result, err
}

func (d *Driver) checkFresh(name string) error {
	layout, err := experiment.NewLayout(d.cfg, name)
	if err != nil {
		return err
	}
	exists, err := layout.Exists()
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s (pass --resume to continue it)", experiment.ErrExists, layout.Dir)
	}
	return nil
}

func (d *Driver) trainLayout(name string, resume bool) (experiment.Layout, error) {
	if resume {
		return experiment.Open(d.cfg, name)
	}
	return experiment.Create(d.cfg, name)
}

// resumePartition picks the explicit partition, else the previous run's, else
// the configured default.
func (d *Driver) resumePartition(ctx context.Context, store *ledger.Store, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	last, err := store.LatestRun(ctx)
	if err != nil {
		return "", err
	}
	if last != nil && last.Partition != "" {
		return last.Partition, nil
	}
	return d.cfg.Training.Partition, nil
}

func (d *Driver) trainItems(logger *slog.Logger, partition string) ([]stream.Item, error) {
	splits, err := d.loadSplits(partition)
	if err != nil {
		return nil, err
	}
	index := splits.Train
	if limit := d.cfg.Training.MaxFilesPerClass; limit != nil {
		index = dataset.LimitPerClass(index, d.classes, *limit, d.cfg.Training.Seed)
	}
	return d.items(logger, dataset.PartitionTrain, index)
}

// resumeFrom loads the latest snapshot into m and returns its epoch. An
// experiment whose first run stopped before writing a snapshot starts over
// from iteration 0 with fresh weights.
func resumeFrom(logger *slog.Logger, layout experiment.Layout, m model.Model) (int, error) {
	latest, err := layout.LatestSnapshot()
	if errors.Is(err, experiment.ErrNoSnapshots) {
		logger.Warn("no snapshot to resume from; starting from iteration 0",
			logging.String(logging.FieldEventType, "resume_without_snapshot"),
			logging.String(logging.FieldImpact, "earlier iterations of this experiment are discarded"),
		)
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	path, err := layout.SnapshotPath(latest)
	if err != nil {
		return 0, err
	}
	if err := m.Load(path); err != nil {
		return 0, err
	}
	return latest, nil
}

func (d *Driver) newModel() (model.Model, error) {
	hp := d.cfg.Training.Hyperparams
	return model.New(d.cfg.Training.Model, model.Options{
		InputDim:     d.inputDim(),
		Classes:      d.classes.Size(),
		LearningRate: hp.LearningRate,
		Momentum:     hp.Momentum,
	})
}

func (d *Driver) loopOptions(start int) train.Options {
	t := d.cfg.Training
	return train.Options{
		MaxIterations:   t.MaxIterations,
		MaxTime:         time.Duration(t.MaxTime * float64(time.Second)),
		PrintEvery:      t.IterationPrintFrequency,
		WriteEvery:      t.IterationWriteFrequency,
		ConvergenceLoss: t.ConvergenceLoss,
		StartIteration:  start,
		Clock:           d.clock,
	}
}

// loadSnapshot builds a model and loads the snapshot at path.
func (d *Driver) loadSnapshot(path string) (model.Model, error) {
	m, err := d.newModel()
	if err != nil {
		return nil, err
	}
	if err := m.Load(path); err != nil {
		return nil, err
	}
	return m, nil
}
