package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crossborder-kde/internal/model"
	"github.com/sells-group/crossborder-kde/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect batch run history",
	Long:  "Commands for listing batch runs and the per-pair outcomes they recorded.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List batch runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		ledger, err := initLedger(ctx)
		if err != nil {
			return err
		}
		defer ledger.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		signature, _ := cmd.Flags().GetString("signature")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := ledger.ListRuns(ctx, store.RunFilter{
			Status:    model.RunStatus(status),
			Signature: signature,
			Limit:     limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run and its pair outcomes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ledger, err := initLedger(ctx)
		if err != nil {
			return err
		}
		defer ledger.Close() //nolint:errcheck

		run, err := ledger.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		pairs, err := ledger.ListPairs(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"run": run, "pairs": pairs})
		}
		formatRunsList(os.Stdout, []model.Run{*run})
		fmt.Fprintln(os.Stdout)
		formatPairOutcomes(os.Stdout, pairs)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, aggregating, complete, failed)")
	runsListCmd.Flags().String("signature", "", "filter by parameter signature, e.g. 25000BW_nomovelimit_gaussian_euclidean")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsShowCmd.Flags().Bool("json", false, "print the run as JSON")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSIGNATURE\tSTATUS\tPAIRS\tOK\tFAILED\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t---------\t------\t-----\t--\t------\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			truncateID(r.ID),
			r.Signature,
			r.Status,
			r.Pairs,
			r.Succeeded,
			r.Failed,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatPairOutcomes writes one line per pair outcome to w.
func formatPairOutcomes(out io.Writer, pairs []model.PairOutcome) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PAIR\tSTATUS\tKIND\tRECORDS\tAREA_KM2")
	for _, p := range pairs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.1f\n", p.Pair, p.Status, p.Kind, p.Records, p.Area/1e6)
	}
	_ = w.Flush()
}
