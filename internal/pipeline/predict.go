package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"hcnn/internal/archive"
	"hcnn/internal/config"
	"hcnn/internal/dataset"
	"hcnn/internal/evaluate"
	"hcnn/internal/experiment"
	"hcnn/internal/faults"
	"hcnn/internal/ledger"
	"hcnn/internal/logging"
	"hcnn/internal/stream"
)

// PredictOptions picks the snapshot to predict with.
type PredictOptions struct {
	// Epoch selects a snapshot; nil uses the best snapshot.
	Epoch     *int
	Overwrite bool
}

// PredictResult summarizes a predictions artifact.
type PredictResult struct {
	Experiment string
	SnapshotID string
	Path       string
	Notes      int
	MeanLoss   float64
	Accuracy   float64
}

// Predict runs a snapshot over the test split and writes the predictions
// artifact. Nothing is written when the snapshot does not exist.
func (d *Driver) Predict(ctx context.Context, name string, opts PredictOptions) (PredictResult, error) {
	result := PredictResult{Experiment: name}
	err := d.runStage(ctx, StagePredict, name, func(ctx context.Context, logger *slog.Logger) error {
		d, layout, err := d.experimentDriver(logger, name)
		if err != nil {
			return err
		}
		id, snapshot, err := resolveSnapshot(layout, opts.Epoch)
		if err != nil {
			return err
		}
		result.SnapshotID = id
		result.Path = layout.PredictionsPath(id)
		if err := refuseOverwrite(result.Path, opts.Overwrite); err != nil {
			return err
		}

		store, err := ledger.Open(layout.LedgerPath())
		if err != nil {
			return err
		}
		defer store.Close()
		partition, err := d.runPartition(ctx, store)
		if err != nil {
			return err
		}
		splits, err := d.loadSplits(partition)
		if err != nil {
			return err
		}
		items, err := d.items(logger, dataset.PartitionTest, splits.Test)
		if err != nil {
			return err
		}

		m, err := d.loadSnapshot(snapshot)
		if err != nil {
			return err
		}
		cache, err := stream.NewCache(d.cfg.Training.FeatureCacheSize)
		if err != nil {
			return err
		}
		results, err := evaluate.Evaluate(ctx, m, items, d.evalOptions(cache))
		if err != nil {
			return err
		}
		predictions, err := evaluate.Predictions(results, splits.Test, d.classes)
		if err != nil {
			return err
		}
		if err := evaluate.WritePredictions(result.Path, predictions); err != nil {
			return err
		}
		if err := store.RecordArtifact(ctx, ledger.Artifact{Kind: ledger.ArtifactPredictions, SnapshotID: id, Path: result.Path}); err != nil {
			return err
		}

		result.Notes = len(predictions)
		result.MeanLoss, result.Accuracy = evaluate.Score(results)
		logger.Info("predictions written",
			logging.String(logging.FieldEventType, "predictions_written"),
			logging.String("snapshot", id),
			logging.String("partition", partition),
			logging.Int("notes", result.Notes),
			logging.Float64("accuracy", result.Accuracy),
			logging.String("path", result.Path),
		)
		return nil
	})
	return result, err
}

// AnalyzeOptions picks the predictions to analyze.
type AnalyzeOptions struct {
	// Epoch selects the predictions of a snapshot; nil uses the best.
	Epoch     *int
	Overwrite bool
	// Corpus restricts the analysis to notes from one corpus.
	Corpus string
}

// AnalyzeResult is a written analysis report.
type AnalyzeResult struct {
	Experiment string
	SnapshotID string
	Path       string
	Analysis   evaluate.Analysis
}

// Analyze summarizes a predictions artifact into an analysis report.
func (d *Driver) Analyze(ctx context.Context, name string, opts AnalyzeOptions) (AnalyzeResult, error) {
	result := AnalyzeResult{Experiment: name}
	err := d.runStage(ctx, StageAnalyze, name, func(ctx context.Context, logger *slog.Logger) error {
		d, layout, err := d.experimentDriver(logger, name)
		if err != nil {
			return err
		}
		id := config.BestID
		if opts.Epoch != nil {
			id = layout.SnapshotID(*opts.Epoch)
		}
		result.SnapshotID = id
		reportID, err := analysisID(id, opts.Corpus)
		if err != nil {
			return err
		}
		result.Path = layout.AnalysisPath(reportID)

		predictions, err := evaluate.ReadPredictions(layout.PredictionsPath(id))
		if err != nil {
			if errors.Is(err, evaluate.ErrNoPredictions) {
				return fmt.Errorf("%w: no predictions for snapshot %s (run predict first): %w", experiment.ErrSnapshotMissing, id, err)
			}
			return err
		}
		if err := refuseOverwrite(result.Path, opts.Overwrite); err != nil {
			return err
		}

		analysis, err := evaluate.Analyze(predictions, d.classes, opts.Corpus)
		if err != nil {
			return err
		}
		analysis.SnapshotID = id
		if err := analysis.Save(result.Path); err != nil {
			return err
		}
		result.Analysis = analysis

		store, err := ledger.Open(layout.LedgerPath())
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.RecordArtifact(ctx, ledger.Artifact{Kind: ledger.ArtifactAnalysis, SnapshotID: reportID, Path: result.Path}); err != nil {
			return err
		}
		logger.Info("analysis written",
			logging.String(logging.FieldEventType, "analysis_written"),
			logging.String("snapshot", id),
			logging.String("corpus", opts.Corpus),
			logging.Int("notes", analysis.Notes),
			logging.Float64("accuracy", analysis.Accuracy),
			logging.Float64("f1score", analysis.Summary.F1),
			logging.String("path", result.Path),
		)
		return nil
	})
	return result, err
}

// analysisID keys a corpus-restricted report apart from the full analysis of
// the same snapshot.
func analysisID(id, corpus string) (string, error) {
	if corpus == "" {
		return id, nil
	}
	if corpus == "." || corpus == ".." || strings.ContainsAny(corpus, `/\`) {
		return "", faults.Wrap(faults.ErrConfig, StageAnalyze, "corpus", fmt.Sprintf("%q cannot name an analysis file", corpus), nil)
	}
	return id + "_" + corpus, nil
}

// resolveSnapshot maps an optional epoch to its artifact id and snapshot path.
func resolveSnapshot(layout experiment.Layout, epoch *int) (id, path string, err error) {
	if epoch == nil {
		if !archive.Exists(layout.BestPath()) {
			return "", "", fmt.Errorf("%w: %s has no best snapshot (run model_selection first)", experiment.ErrSnapshotMissing, layout.Name)
		}
		return config.BestID, layout.BestPath(), nil
	}
	path, err = layout.SnapshotPath(*epoch)
	if err != nil {
		return "", "", err
	}
	return layout.SnapshotID(*epoch), path, nil
}

func refuseOverwrite(path string, overwrite bool) error {
	if overwrite {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s (pass --overwrite to replace it)", experiment.ErrArtifactExists, path)
	}
	return nil
}
