package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"hcnn/internal/archive"
	"hcnn/internal/dataset"
	"hcnn/internal/evaluate"
	"hcnn/internal/experiment"
	"hcnn/internal/ledger"
	"hcnn/internal/logging"
	"hcnn/internal/parallel"
	"hcnn/internal/stream"
)

// SelectOptions controls model selection.
type SelectOptions struct {
	// Overwrite re-evaluates every snapshot even when a validation log exists.
	Overwrite bool
}

// SelectionResult is the outcome of model selection.
type SelectionResult struct {
	Experiment string
	Partition  string
	Best       evaluate.Candidate
	Candidates []evaluate.Candidate
	BestPath   string
	// Reloaded is true when the previous validation log was reused.
	Reloaded bool
}

// ModelSelection scores every snapshot of an experiment on the validation
// split and copies the best one to the best-params path.
func (d *Driver) ModelSelection(ctx context.Context, name string, opts SelectOptions) (SelectionResult, error) {
	result := SelectionResult{Experiment: name}
	err := d.runStage(ctx, StageModelSelection, name, func(ctx context.Context, logger *slog.Logger) error {
		d, layout, err := d.experimentDriver(logger, name)
		if err != nil {
			return err
		}
		store, err := ledger.Open(layout.LedgerPath())
		if err != nil {
			return err
		}
		defer store.Close()

		lock, err := d.lockIdle(ctx, layout, store)
		if err != nil {
			return err
		}
		defer lock.Unlock()
		result.BestPath = layout.BestPath()

		partition, err := d.runPartition(ctx, store)
		if err != nil {
			return err
		}
		result.Partition = partition

		if !opts.Overwrite {
			previous, ok, err := evaluate.ReadCandidates(layout.ValidationLossPath())
			if err != nil {
				return err
			}
			if ok && len(previous) > 0 {
				best, err := evaluate.Select(previous)
				if err != nil {
					return err
				}
				if !archive.Exists(layout.BestPath()) {
					if err := d.publishBest(ctx, layout, store, best, len(previous)); err != nil {
						return err
					}
				}
				result.Best, result.Candidates, result.Reloaded = best, previous, true
				logger.Info("reusing previous validation results; pass --overwrite to re-evaluate",
					logging.String("validation_log", layout.ValidationLossPath()),
					logging.Epoch(best.Epoch),
				)
				return nil
			}
		}

		epochs, err := layout.Snapshots()
		if err != nil {
			return err
		}
		if len(epochs) == 0 {
			return fmt.Errorf("%w: %s", experiment.ErrNoSnapshots, layout.ParamsDir())
		}

		splits, err := d.loadSplits(partition)
		if err != nil {
			return err
		}
		items, err := d.items(logger, dataset.PartitionValid, splits.Valid)
		if err != nil {
			return err
		}
		cache, err := stream.NewCache(d.cfg.Training.FeatureCacheSize)
		if err != nil {
			return err
		}

		tracker := d.progress.Start("evaluating snapshots", len(epochs))
		candidates := make([]evaluate.Candidate, 0, len(epochs))
		for i, epoch := range epochs {
			candidate, err := d.scoreSnapshot(ctx, layout, epoch, items, cache)
			if err != nil {
				tracker.Finish()
				return err
			}
			candidates = append(candidates, candidate)
			tracker.Set(i + 1)
			logger.Debug("snapshot scored",
				logging.Epoch(epoch),
				logging.Float64("mean_loss", candidate.MeanLoss),
				logging.Float64("accuracy", candidate.Accuracy),
			)
		}
		tracker.Finish()

		if err := evaluate.WriteCandidates(layout.ValidationLossPath(), candidates); err != nil {
			return err
		}
		best, err := evaluate.Select(candidates)
		if err != nil {
			return err
		}
		if err := d.publishBest(ctx, layout, store, best, len(candidates)); err != nil {
			return err
		}
		result.Best, result.Candidates = best, candidates
		logger.Info("best snapshot selected",
			logging.String(logging.FieldEventType, "model_selected"),
			logging.Epoch(best.Epoch),
			logging.Float64("mean_loss", best.MeanLoss),
			logging.Float64("accuracy", best.Accuracy),
			logging.Int("candidates", len(candidates)),
		)
		return nil
	})
	return result, err
}

func (d *Driver) scoreSnapshot(ctx context.Context, layout experiment.Layout, epoch int, items []stream.Item, cache *stream.Cache) (evaluate.Candidate, error) {
	path, err := layout.SnapshotPath(epoch)
	if err != nil {
		return evaluate.Candidate{}, err
	}
	m, err := d.loadSnapshot(path)
	if err != nil {
		return evaluate.Candidate{}, err
	}
	results, err := evaluate.Evaluate(ctx, m, items, d.evalOptions(cache))
	if err != nil {
		return evaluate.Candidate{}, err
	}
	loss, accuracy := evaluate.Score(results)
	return evaluate.Candidate{Epoch: epoch, MeanLoss: loss, Accuracy: accuracy}, nil
}

// publishBest copies the selected snapshot to the best-params path and
// records the selection.
func (d *Driver) publishBest(ctx context.Context, layout experiment.Layout, store *ledger.Store, best evaluate.Candidate, candidates int) error {
	src, err := layout.SnapshotPath(best.Epoch)
	if err != nil {
		return err
	}
	if err := archive.Copy(src, layout.BestPath()); err != nil {
		return err
	}
	_, err = store.RecordSelection(ctx, ledger.Selection{
		Epoch:              best.Epoch,
		Criterion:          evaluate.Criterion,
		ValidationLoss:     best.MeanLoss,
		ValidationAccuracy: best.Accuracy,
		Candidates:         candidates,
	})
	return err
}

// lockIdle takes the experiment lock, failing with ErrRunInProgress while a
// training run holds it. Runs left running by a dead process are marked
// interrupted.
func (d *Driver) lockIdle(ctx context.Context, layout experiment.Layout, store *ledger.Store) (*experiment.Lock, error) {
	lock, err := layout.Lock()
	if err != nil {
		if errors.Is(err, experiment.ErrBusy) {
			if last, lerr := store.LatestRun(ctx); lerr == nil && last != nil && last.State == ledger.StateRunning {
				return nil, fmt.Errorf("%w: run %s of %s is still training", experiment.ErrRunInProgress, last.ID, layout.Name)
			}
		}
		return nil, err
	}
	if _, err := store.MarkInterrupted(ctx); err != nil {
		lock.Unlock()
		return nil, err
	}
	return lock, nil
}

// runPartition returns the partition of the latest run, or the configured
// default when the ledger has none.
func (d *Driver) runPartition(ctx context.Context, store *ledger.Store) (string, error) {
	last, err := store.LatestRun(ctx)
	if err != nil {
		return "", err
	}
	if last != nil && last.Partition != "" {
		return last.Partition, nil
	}
	return d.cfg.Training.Partition, nil
}

func (d *Driver) evalOptions(cache *stream.Cache) evaluate.Options {
	return evaluate.Options{
		TLen:    d.cfg.Training.TLen,
		Workers: parallel.Workers(d.cfg.Features.CQT.NumCPUs),
		Cache:   cache,
	}
}
