package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crossborder-kde/internal/config"
	"github.com/sells-group/crossborder-kde/internal/server"
	"github.com/sells-group/crossborder-kde/internal/store"
)

var (
	servePort    int
	serveNoRuns  bool
	shutdownWait = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored layers as GeoJSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate(config.ModeServe); err != nil {
			return err
		}
		catalog, err := cfg.Catalog()
		if err != nil {
			return err
		}
		files, err := store.NewFiles(cfg.Output.Dir, cfg.Output.Format)
		if err != nil {
			return err
		}

		opts := []server.Option{server.WithAllowedOrigins(cfg.Server.AllowedOrigins)}
		if !serveNoRuns {
			ledger, err := initLedger(ctx)
			if err != nil {
				return err
			}
			defer ledger.Close() //nolint:errcheck
			opts = append(opts, server.WithLedger(ledger))
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           server.New(files, cfg.Params(), catalog, opts...).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			sctx, cancel := context.WithTimeout(context.Background(), shutdownWait)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()

		zap.L().Info("starting server",
			zap.Int("port", cfg.Server.Port),
			zap.String("dir", files.Dir),
			zap.String("signature", cfg.Params().Signature()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoRuns, "no-runs", false, "do not open the run ledger or serve /runs")
	rootCmd.AddCommand(serveCmd)
}
