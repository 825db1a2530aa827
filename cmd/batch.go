package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crossborder-kde/internal/aggregate"
	"github.com/sells-group/crossborder-kde/internal/batch"
	"github.com/sells-group/crossborder-kde/internal/config"
	"github.com/sells-group/crossborder-kde/internal/model"
	"github.com/sells-group/crossborder-kde/internal/store"
)

var (
	batchPairs       []string
	batchRoster      string
	batchConcurrency int
	batchRetry       bool
	batchAggregate   string
	batchBandwidth   float64
	batchKernel      string
	batchMetric      string
	batchKeepBands   bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Compute the merged density bands of every pair in a roster",
	Long:  "Runs every pair of the roster concurrently. A failing pair is recorded in the failed-pair report and never stops the others; pairs already listed there are skipped unless --retry-failed is set.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyOverrides(batchBandwidth, batchKernel, batchMetric)
		if batchConcurrency > 0 {
			cfg.Batch.Concurrency = batchConcurrency
		}
		if batchKeepBands {
			cfg.Output.KeepBands = true
		}

		env, err := initEnv(ctx, config.ModeBatch)
		if err != nil {
			return err
		}

		rosterFile := batchRoster
		if rosterFile == "" {
			rosterFile = cfg.Batch.RosterFile
		}
		roster, err := resolveRoster(batchPairs, rosterFile, func() ([]string, error) {
			return env.Borders.Pairs(), nil
		})
		if err != nil {
			return err
		}

		ledger, err := initLedger(ctx)
		if err != nil {
			return err
		}
		defer ledger.Close() //nolint:errcheck

		opts := batchOptions{
			Concurrency: cfg.Batch.Concurrency,
			Retry:       batchRetry,
			SumArea:     cfg.Aggregate.SumArea,
		}
		if batchAggregate != "" {
			mode, err := aggregate.ParseMode(batchAggregate)
			if err != nil {
				return err
			}
			opts.Aggregate = mode
		}

		rep, err := executeBatch(ctx, env, ledger, roster, opts)
		if rep != nil {
			formatReport(os.Stdout, rep)
		}
		return err
	},
}

func init() {
	batchCmd.Flags().StringSliceVar(&batchPairs, "pairs", nil, "pair ids to run, e.g. FR_MC,AD_ES (default: roster file, then every pair in the border file)")
	batchCmd.Flags().StringVar(&batchRoster, "roster", "", "YAML roster of pair ids (default from config)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "pairs processed at once (default from config)")
	batchCmd.Flags().BoolVar(&batchRetry, "retry-failed", false, "also run pairs listed in the failed-pair report")
	batchCmd.Flags().StringVar(&batchAggregate, "aggregate", "", "aggregate the roster afterwards in this mode: fine or coarse")
	batchCmd.Flags().Float64Var(&batchBandwidth, "bandwidth", 0, "kernel bandwidth in metres (default from config)")
	batchCmd.Flags().StringVar(&batchKernel, "kernel", "", "kernel: gaussian, epanechnikov (default from config)")
	batchCmd.Flags().StringVar(&batchMetric, "metric", "", "distance metric: euclidean, haversine, none (default from config)")
	batchCmd.Flags().BoolVar(&batchKeepBands, "keep-bands", false, "also write the unclipped bands of each country")
	rootCmd.AddCommand(batchCmd)
}

// batchOptions tune one batch run.
type batchOptions struct {
	Concurrency int
	Retry       bool
	Aggregate   aggregate.Mode // empty = no aggregation
	SumArea     bool
}

// executeBatch runs roster through env's pipeline, records every outcome in
// ledger and writes the diagnostics workbook and the failed-pair report.
// With opts.Aggregate set, the stored layers are aggregated afterwards.
func executeBatch(ctx context.Context, env *kdeEnv, ledger store.Ledger, roster []string, opts batchOptions) (*batch.Report, error) {
	var knownFailed []string
	if !opts.Retry {
		prev, err := env.Files.LoadFailed(env.Params)
		if err != nil {
			return nil, err
		}
		knownFailed = prev.Pairs()
	}

	run, err := ledger.CreateRun(ctx, env.Params, len(roster))
	if err != nil {
		return nil, eris.Wrap(err, "batch: create run")
	}
	log := zap.L().With(zap.String("run_id", run.ID))

	runner := batch.Runner{
		Pipeline:    env.Pipeline.RunPair,
		Concurrency: opts.Concurrency,
		RunID:       run.ID,
	}
	rep, runErr := runner.Run(ctx, roster, knownFailed)

	// Outcomes are recorded even for an aborted run so the completed pairs
	// are not lost. ctx may be cancelled already.
	wctx := context.WithoutCancel(ctx)
	outcomes := rep.Outcomes()
	for _, o := range outcomes {
		if err := ledger.RecordPair(wctx, o); err != nil {
			log.Warn("batch: record pair outcome", zap.String("pair", o.Pair), zap.Error(err))
		}
	}
	if path, err := env.Files.SaveDiagnostics(env.Params, outcomes, rep.Succeeded); err != nil {
		log.Warn("batch: save diagnostics", zap.Error(err))
	} else {
		log.Info("batch: diagnostics saved", zap.String("path", path))
	}

	if runErr != nil {
		_ = ledger.UpdateRunStatus(wctx, run.ID, model.RunStatusFailed)
		return rep, runErr
	}

	// An aborted run leaves the previous failed-pair report in place.
	path, err := env.Files.SaveFailed(env.Params, rep.FailedReport())
	if err != nil {
		_ = ledger.UpdateRunStatus(ctx, run.ID, model.RunStatusFailed)
		return rep, err
	}
	log.Info("batch: failed-pair report saved", zap.String("path", path))

	if opts.Aggregate != "" {
		if err := ledger.UpdateRunStatus(ctx, run.ID, model.RunStatusAggregating); err != nil {
			return rep, err
		}
		agg := aggregate.Aggregator{SumArea: opts.SumArea}
		if _, _, err := batch.AggregateFiles(ctx, env.Files, env.Params, roster, opts.Aggregate, agg); err != nil {
			_ = ledger.UpdateRunStatus(wctx, run.ID, model.RunStatusFailed)
			return rep, eris.Wrap(err, "batch: aggregate")
		}
	}

	if err := ledger.UpdateRunStatus(ctx, run.ID, model.RunStatusComplete); err != nil {
		return rep, err
	}
	return rep, nil
}

// formatReport writes one line per pair outcome and a totals line to w.
func formatReport(out io.Writer, rep *batch.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PAIR\tSTATUS\tRECORDS\tAREA_KM2\tREASON")
	_, _ = fmt.Fprintln(w, "----\t------\t-------\t--------\t------")
	for _, o := range rep.Outcomes() {
		reason := o.Reason
		if len(reason) > 60 {
			reason = reason[:57] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%.1f\t%s\n", o.Pair, o.Status, o.Records, o.Area/1e6, reason)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\nrun %s: %d succeeded, %d failed, %d skipped\n",
		truncateID(rep.RunID), len(rep.Succeeded), len(rep.Failed), len(rep.Skipped))
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
