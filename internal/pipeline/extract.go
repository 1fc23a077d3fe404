package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"hcnn/internal/dataset"
	"hcnn/internal/experiment"
	"hcnn/internal/features"
	"hcnn/internal/logging"
)

// ExtractFeatures computes a CQT archive for every note in the notes index.
// Only one extraction may run per feature directory.
func (d *Driver) ExtractFeatures(ctx context.Context) (features.Summary, error) {
	var summary features.Summary
	err := d.runStage(ctx, StageExtractFeatures, "", func(ctx context.Context, logger *slog.Logger) error {
		if err := d.cfg.EnsureDirectories(); err != nil {
			return err
		}
		lock, err := experiment.LockPath(d.extractLockPath())
		if err != nil {
			if errors.Is(err, experiment.ErrBusy) {
				return fmt.Errorf("%w: another extraction is writing to %s", experiment.ErrBusy, d.cfg.Paths.FeatureDir)
			}
			return err
		}
		defer lock.Unlock()

		notes, err := dataset.LoadIndex(d.profile.NotesIndex, d.profile.Root)
		if err != nil {
			return err
		}
		extractor, err := features.NewExtractor(d.cfg, logger)
		if err != nil {
			return err
		}
		tracker := d.progress.Start("extracting features", len(notes))
		extractor.OnProgress(func(done, _ int) { tracker.Set(done) })
		logger.Info("extracting features",
			logging.Int("notes", len(notes)),
			logging.Int("workers", extractor.Workers()),
			logging.Bool("skip_existing", d.cfg.Features.CQT.SkipExisting),
		)

		summary, err = extractor.Run(ctx, notes, d.profile.NotesIndex)
		tracker.Finish()
		if err != nil {
			return err
		}
		logger.Info("feature extraction summary",
			logging.String(logging.FieldEventType, "extract_summary"),
			logging.Int("total", summary.Total),
			logging.Int("extracted", summary.Extracted),
			logging.Int("skipped", summary.Skipped),
			logging.Int("failed", summary.Failed),
			logging.String("features_index", summary.IndexPath),
		)
		return nil
	})
	return summary, err
}
