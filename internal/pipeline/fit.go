package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"hcnn/internal/logging"
)

// CorpusResult is the outcome of one fit-and-predict pass.
type CorpusResult struct {
	Corpus     string
	Experiment string
	Train      TrainResult
	Selection  SelectionResult
	Predict    PredictResult
	Analysis   AnalyzeResult
	Err        error
}

// FitAndPredict trains, selects, predicts, and analyzes one experiment per
// partition, named <name>-<partition>. Every partition is attempted; the
// returned error joins the failures.
func (d *Driver) FitAndPredict(ctx context.Context, name string, partitions []string) ([]CorpusResult, error) {
	if len(partitions) == 0 {
		partitions = d.profile.Corpora()
	}
	var results []CorpusResult
	err := d.runStage(ctx, StageFitAndPredict, name, func(ctx context.Context, logger *slog.Logger) error {
		var errs []error
		for _, partition := range partitions {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				break
			}
			res := d.fitOne(ctx, fmt.Sprintf("%s-%s", name, partition), partition)
			results = append(results, res)
			if res.Err != nil {
				errs = append(errs, fmt.Errorf("partition %s: %w", partition, res.Err))
				continue
			}
			logger.Info("partition complete",
				logging.String("partition", partition),
				logging.String("child_experiment", res.Experiment),
				logging.Epoch(res.Selection.Best.Epoch),
				logging.Float64("accuracy", res.Analysis.Analysis.Accuracy),
			)
		}
		return errors.Join(errs...)
	})
	return results, err
}

func (d *Driver) fitOne(ctx context.Context, experimentName, partition string) CorpusResult {
	res := CorpusResult{Corpus: partition, Experiment: experimentName}
	if res.Train, res.Err = d.Train(ctx, experimentName, TrainOptions{Partition: partition}); res.Err != nil {
		return res
	}
	if res.Selection, res.Err = d.ModelSelection(ctx, experimentName, SelectOptions{}); res.Err != nil {
		return res
	}
	if res.Predict, res.Err = d.Predict(ctx, experimentName, PredictOptions{}); res.Err != nil {
		return res
	}
	res.Analysis, res.Err = d.Analyze(ctx, experimentName, AnalyzeOptions{})
	return res
}
