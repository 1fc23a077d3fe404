package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"hcnn/internal/ledger"
	"hcnn/internal/pipeline"
	"hcnn/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <experiment>",
		Short: "Show runs, snapshots, selection, and artifacts of an experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, err := ctx.driver(cmd)
			if err != nil {
				return err
			}
			status, err := driver.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			renderStatus(cmd, status, time.Now())
			return nil
		},
	}
}

func renderStatus(cmd *cobra.Command, status pipeline.Status, now time.Time) {
	out := cmd.OutOrStdout()

	best := "none (run model_selection)"
	if status.Best != nil {
		best = fmt.Sprintf("epoch %d (mean loss %s, accuracy %s)",
			status.Best.Epoch, formatFloat(status.Best.ValidationLoss), formatPercent(status.Best.ValidationAccuracy))
	}
	snapshots := "none"
	if n := len(status.Epochs); n > 0 {
		snapshots = fmt.Sprintf("%d (latest epoch %d)", n, status.Epochs[n-1])
	}
	printFields(out,
		field{"Experiment", status.Experiment},
		field{"Directory", status.Dir},
		field{"Disk usage", humanize.Bytes(uint64(status.DiskUsage))},
		field{"Locked", yesNo(status.Locked)},
		field{"Snapshots", snapshots},
		field{"Best", best},
	)

	if len(status.Runs) > 0 {
		rows := make([][]string, 0, len(status.Runs))
		for _, run := range status.Runs {
			rows = append(rows, runRow(run, now))
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable(
			[]string{"Run", "Partition", "State", "Iterations", "Final loss", "Started", "Elapsed"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignRight},
		))
	}

	if len(status.Artifacts) > 0 {
		rows := make([][]string, 0, len(status.Artifacts))
		for _, art := range status.Artifacts {
			rows = append(rows, []string{art.Kind, art.SnapshotID, art.Path})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable([]string{"Artifact", "Snapshot", "Path"}, rows, nil))
	}
}

func runRow(run ledger.Run, now time.Time) []string {
	id := run.ID
	if len(id) > 8 {
		id = id[:8]
	}
	loss := "-"
	if run.FinalLoss != nil {
		loss = formatFloat(*run.FinalLoss)
	}
	return []string{
		id,
		run.Partition,
		string(run.State),
		fmt.Sprintf("%d -> %d", run.StartIteration, run.Iterations),
		loss,
		humanize.RelTime(run.StartedAt, now, "ago", "from now"),
		run.Elapsed.Round(time.Second).String(),
	}
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count notes per corpus and instrument class in the selected profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, err := ctx.driver(cmd)
			if err != nil {
				return err
			}
			summary, err := driver.Stats()
			if err != nil {
				return err
			}

			corpora := make([]string, 0, len(summary.PerCorpus))
			for corpus := range summary.PerCorpus {
				corpora = append(corpora, corpus)
			}
			sort.Strings(corpora)

			counts := map[string]map[string]int{}
			var classes []string
			for _, c := range summary.PerClass {
				if counts[c.Class] == nil {
					counts[c.Class] = map[string]int{}
					classes = append(classes, c.Class)
				}
				counts[c.Class][c.Corpus] = c.Count
			}

			headers := append([]string{"Class"}, corpora...)
			headers = append(headers, "Total")
			aligns := []columnAlignment{alignLeft}
			for range corpora {
				aligns = append(aligns, alignRight)
			}
			aligns = append(aligns, alignRight)

			rows := make([][]string, 0, len(classes)+1)
			for _, class := range classes {
				row := []string{class}
				total := 0
				for _, corpus := range corpora {
					n := counts[class][corpus]
					total += n
					row = append(row, humanize.Comma(int64(n)))
				}
				rows = append(rows, append(row, humanize.Comma(int64(total))))
			}
			totals := []string{"all"}
			for _, corpus := range corpora {
				totals = append(totals, humanize.Comma(int64(summary.PerCorpus[corpus])))
			}
			rows = append(rows, append(totals, humanize.Comma(int64(summary.Total))))

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Profile: %s\n", driver.Profile().Name)
			fmt.Fprintln(out, renderTable(headers, rows, aligns))
			if summary.Unmapped > 0 {
				fmt.Fprintf(out, "%s notes have an instrument outside the class map\n", humanize.Comma(int64(summary.Unmapped)))
			}
			return nil
		},
	}
}

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify directories and dataset files for the selected profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			out := cmd.OutOrStdout()
			colorize := isTerminal(out)
			for _, r := range results {
				kind := statusOK
				switch {
				case r.Passed:
				case r.Optional:
					kind = statusWarn
				default:
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}
			if preflight.Failed(results) {
				var failed []string
				for _, r := range results {
					if !r.Passed && !r.Optional {
						failed = append(failed, r.Name)
					}
				}
				return fmt.Errorf("preflight checks failed: %s", strings.Join(failed, ", "))
			}
			fmt.Fprintln(out, "Preflight checks passed")
			return nil
		},
	}
}
