package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crossborder-kde/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "cbkde",
	Short: "Cross-border mobility density bands",
	Long:  "Estimates kernel densities of cross-border movements per country pair, contours them into nested density bands, clips the bands to each side's border region and aggregates every pair into a continental layer.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
