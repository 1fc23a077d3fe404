package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"hcnn/internal/evaluate"
	"hcnn/internal/pipeline"
)

func newExtractFeaturesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "extract_features",
		Aliases: []string{"extract-features"},
		Short:   "Compute constant-Q features for every note of the selected profile",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, err := ctx.driver(cmd)
			if err != nil {
				return err
			}
			summary, err := driver.ExtractFeatures(cmd.Context())
			if err != nil {
				return err
			}
			printFields(cmd.OutOrStdout(),
				field{"Notes", strconv.Itoa(summary.Total)},
				field{"Extracted", strconv.Itoa(summary.Extracted)},
				field{"Skipped", strconv.Itoa(summary.Skipped)},
				field{"Failed", strconv.Itoa(summary.Failed)},
				field{"Features index", summary.IndexPath},
				field{"Elapsed", summary.Elapsed.Round(time.Millisecond).String()},
			)
			return nil
		},
	}
}

func newTrainCommand(ctx *commandContext) *cobra.Command {
	var partition string
	var resume bool

	cmd := &cobra.Command{
		Use:   "train <experiment>",
		Short: "Train a model and write periodic parameter snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, err := ctx.driver(cmd)
			if err != nil {
				return err
			}
			res, err := driver.Train(cmd.Context(), args[0], pipeline.TrainOptions{
				Partition: strings.TrimSpace(partition),
				Resume:    resume,
			})
			if res.State != "" {
				printTrainResult(cmd, res)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&partition, "partition", "p", "", "Partition (corpus) to train on; defaults to training.partition")
	cmd.Flags().BoolVar(&resume, "resume", false, "Continue the experiment from its latest snapshot")
	return cmd
}

func printTrainResult(cmd *cobra.Command, res pipeline.TrainResult) {
	loss := "n/a"
	if res.Completed > 0 {
		loss = formatFloat(res.FinalLoss)
	}
	printFields(cmd.OutOrStdout(),
		field{"Experiment", res.Experiment},
		field{"Run", res.RunID},
		field{"Partition", res.Partition},
		field{"State", string(res.State)},
		field{"Iterations", fmt.Sprintf("%d -> %d", res.StartIteration, res.Iteration)},
		field{"Final loss", loss},
		field{"Snapshots", strconv.Itoa(res.Snapshots)},
		field{"Elapsed", res.Elapsed.Round(time.Millisecond).String()},
	)
}

func newModelSelectionCommand(ctx *commandContext) *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:     "model_selection <experiment>",
		Aliases: []string{"model-selection"},
		Short:   "Score every snapshot on the validation split and keep the best",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, err := ctx.driver(cmd)
			if err != nil {
				return err
			}
			res, err := driver.ModelSelection(cmd.Context(), args[0], pipeline.SelectOptions{Overwrite: overwrite})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(res.Candidates))
			for _, c := range res.Candidates {
				marker := ""
				if c.Epoch == res.Best.Epoch {
					marker = "*"
				}
				rows = append(rows, []string{strconv.Itoa(c.Epoch), formatFloat(c.MeanLoss), formatPercent(c.Accuracy), marker})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Epoch", "Mean loss", "Accuracy", "Best"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignRight, alignLeft},
			))
			if res.Reloaded {
				fmt.Fprintln(out, "Reused the previous validation log (pass --overwrite to re-evaluate)")
			}
			printFields(out,
				field{"Partition", res.Partition},
				field{"Best epoch", strconv.Itoa(res.Best.Epoch)},
				field{"Best params", res.BestPath},
			)
			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Re-evaluate every snapshot even if a validation log exists")
	return cmd
}

func snapshotFlag(cmd *cobra.Command, value int) *int {
	if !cmd.Flags().Changed("snapshot") {
		return nil
	}
	return &value
}

func newPredictCommand(ctx *commandContext) *cobra.Command {
	var epoch int
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "predict <experiment>",
		Short: "Predict the test split with the best or a chosen snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, err := ctx.driver(cmd)
			if err != nil {
				return err
			}
			res, err := driver.Predict(cmd.Context(), args[0], pipeline.PredictOptions{
				Epoch:     snapshotFlag(cmd, epoch),
				Overwrite: overwrite,
			})
			if err != nil {
				return err
			}
			printFields(cmd.OutOrStdout(),
				field{"Snapshot", res.SnapshotID},
				field{"Notes", strconv.Itoa(res.Notes)},
				field{"Accuracy", formatPercent(res.Accuracy)},
				field{"Mean loss", formatFloat(res.MeanLoss)},
				field{"Predictions", res.Path},
			)
			return nil
		},
	}

	cmd.Flags().IntVarP(&epoch, "snapshot", "s", 0, "Snapshot epoch to use instead of the best parameters")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing predictions file")
	return cmd
}

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var epoch int
	var overwrite bool
	var corpus string

	cmd := &cobra.Command{
		Use:   "analyze <experiment>",
		Short: "Summarize predictions into per-class scores and a confusion matrix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, err := ctx.driver(cmd)
			if err != nil {
				return err
			}
			res, err := driver.Analyze(cmd.Context(), args[0], pipeline.AnalyzeOptions{
				Epoch:     snapshotFlag(cmd, epoch),
				Overwrite: overwrite,
				Corpus:    strings.TrimSpace(corpus),
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderAnalysis(res.Analysis))
			printFields(out,
				field{"Snapshot", res.SnapshotID},
				field{"Notes", strconv.Itoa(res.Analysis.Notes)},
				field{"Accuracy", formatPercent(res.Analysis.Accuracy)},
				field{"Analysis", res.Path},
			)
			return nil
		},
	}

	cmd.Flags().IntVarP(&epoch, "snapshot", "s", 0, "Snapshot epoch whose predictions to analyze")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing analysis file")
	cmd.Flags().StringVar(&corpus, "corpus", "", "Only analyze notes from this corpus")
	return cmd
}

func renderAnalysis(a evaluate.Analysis) string {
	rows := make([][]string, 0, len(a.PerClass)+1)
	for _, score := range a.PerClass {
		rows = append(rows, []string{
			score.Class,
			formatFloat(score.Precision),
			formatFloat(score.Recall),
			formatFloat(score.F1),
			strconv.Itoa(score.Support),
		})
	}
	rows = append(rows, []string{
		"weighted",
		formatFloat(a.Summary.Precision),
		formatFloat(a.Summary.Recall),
		formatFloat(a.Summary.F1),
		strconv.Itoa(a.Notes),
	})
	return renderTable(
		[]string{"Class", "Precision", "Recall", "F1", "Support"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
	)
}

func newFitAndPredictCommand(ctx *commandContext) *cobra.Command {
	var partitions []string

	cmd := &cobra.Command{
		Use:     "fit_and_predict <experiment>",
		Aliases: []string{"fit-and-predict"},
		Short:   "Train, select, predict, and analyze one experiment per partition",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, err := ctx.driver(cmd)
			if err != nil {
				return err
			}
			results, runErr := driver.FitAndPredict(cmd.Context(), args[0], partitions)
			rows := make([][]string, 0, len(results))
			for _, res := range results {
				row := []string{res.Corpus, res.Experiment, string(res.Train.State), "", "", ""}
				if res.Err != nil {
					row[5] = res.Err.Error()
				} else {
					row[3] = strconv.Itoa(res.Selection.Best.Epoch)
					row[4] = formatPercent(res.Analysis.Analysis.Accuracy)
				}
				rows = append(rows, row)
			}
			if len(rows) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Partition", "Experiment", "State", "Best", "Accuracy", "Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
			}
			return runErr
		},
	}

	cmd.Flags().StringArrayVarP(&partitions, "partition", "p", nil, "Partition to run; repeat for several (default: every partition of the profile)")
	return cmd
}
