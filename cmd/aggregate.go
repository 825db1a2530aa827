package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crossborder-kde/internal/aggregate"
	"github.com/sells-group/crossborder-kde/internal/batch"
	"github.com/sells-group/crossborder-kde/internal/config"
	"github.com/sells-group/crossborder-kde/internal/store"
)

var (
	aggMode      string
	aggPairs     []string
	aggRoster    string
	aggSumArea   bool
	aggBandwidth float64
	aggKernel    string
	aggMetric    string
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Aggregate the merged layers of a roster into one continental layer",
	Long:  "Loads the merged layer of every roster pair written under the configured parameters, drops the pairs listed in the failed-pair report and dissolves the rest per level. Coarse mode re-buckets the result into ten cumulative levels.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		applyOverrides(aggBandwidth, aggKernel, aggMetric)
		if aggMode != "" {
			cfg.Aggregate.Mode = aggMode
		}
		if aggSumArea {
			cfg.Aggregate.SumArea = true
		}
		if err := cfg.Validate(config.ModeAggregate); err != nil {
			return err
		}
		mode, err := aggregate.ParseMode(cfg.Aggregate.Mode)
		if err != nil {
			return err
		}
		params := cfg.Params()
		catalog, err := cfg.Catalog()
		if err != nil {
			return err
		}

		files, err := store.NewFiles(cfg.Output.Dir, cfg.Output.Format)
		if err != nil {
			return err
		}

		rosterFile := aggRoster
		if rosterFile == "" {
			rosterFile = cfg.Batch.RosterFile
		}
		roster, err := resolveRoster(aggPairs, rosterFile, func() ([]string, error) {
			return files.StoredPairs(params)
		})
		if err != nil {
			return err
		}

		l, path, err := batch.AggregateFiles(ctx, files, params, roster, mode, aggregate.Aggregator{SumArea: cfg.Aggregate.SumArea})
		if err != nil {
			return err
		}

		zap.L().Info("aggregate complete",
			zap.String("mode", string(mode)),
			zap.String("path", path),
			zap.Int("records", l.Len()),
		)
		formatLayerSummary(os.Stdout, l, catalog)
		return nil
	},
}

func init() {
	aggregateCmd.Flags().StringVar(&aggMode, "mode", "", "aggregation mode: fine (20) or coarse (10) (default from config)")
	aggregateCmd.Flags().StringSliceVar(&aggPairs, "pairs", nil, "pair ids to aggregate (default: roster file, then every stored merged layer)")
	aggregateCmd.Flags().StringVar(&aggRoster, "roster", "", "YAML roster of pair ids (default from config)")
	aggregateCmd.Flags().BoolVar(&aggSumArea, "sum-area", false, "report the summed record area instead of the dissolved area")
	aggregateCmd.Flags().Float64Var(&aggBandwidth, "bandwidth", 0, "kernel bandwidth in metres (default from config)")
	aggregateCmd.Flags().StringVar(&aggKernel, "kernel", "", "kernel: gaussian, epanechnikov (default from config)")
	aggregateCmd.Flags().StringVar(&aggMetric, "metric", "", "distance metric: euclidean, haversine, none (default from config)")
	rootCmd.AddCommand(aggregateCmd)
}
