package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/crossborder-kde/internal/levels"
)

var levelsCount int

var levelsCmd = &cobra.Command{
	Use:   "levels",
	Short: "Print the density level legend",
	RunE: func(cmd *cobra.Command, args []string) error {
		n := levelsCount
		if n == 0 {
			n = cfg.KDE.Levels
		}
		catalog, err := levels.New(n)
		if err != nil {
			return err
		}
		formatLegend(os.Stdout, catalog)
		return nil
	},
}

func init() {
	levelsCmd.Flags().IntVar(&levelsCount, "n", 0, "legend size: 20 (fine) or 10 (coarse) (default from config)")
	rootCmd.AddCommand(levelsCmd)
}

// formatLegend writes the legend to w, densest level first.
func formatLegend(out io.Writer, c levels.Catalog) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "LEVEL\tLABEL")
	for _, e := range c.Legend() {
		_, _ = fmt.Fprintf(w, "%.2f\t%s\n", e.Level, e.Label)
	}
	_ = w.Flush()
}
