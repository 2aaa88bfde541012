package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/http"
	"github.com/custodia-labs/sercha-rag/internal/config"
	"github.com/custodia-labs/sercha-rag/internal/worker"
)

var serveMode string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the task worker, or both",
	Long: `Runs in one of three modes:
  api     HTTP server only
  worker  task processing only
  all     both in one process (default)`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveMode, "mode", "", "run mode: api, worker or all (overrides RUN_MODE)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	mode := cfg.Mode
	if serveMode != "" {
		mode = serveMode
	}
	switch mode {
	case config.ModeAPI, config.ModeWorker, config.ModeAll:
	default:
		return fmt.Errorf("unknown mode: %s (use: api, worker, or all)", mode)
	}

	ctx := cmd.Context()
	logger.Info("sercha-rag starting", "version", version, "mode", mode)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	g, ctx := errgroup.WithContext(ctx)

	if mode == config.ModeWorker || mode == config.ModeAll {
		w := worker.NewWorker(worker.WorkerConfig{
			TaskQueue:      a.queue,
			Runner:         a.ingest,
			Metrics:        a.metrics,
			Logger:         logger,
			Concurrency:    cfg.Worker.Concurrency,
			DequeueTimeout: cfg.Worker.DequeueTimeout,
			PurgeInterval:  cfg.Worker.PurgeInterval,
			Retention:      cfg.Worker.Retention,
		})
		g.Go(func() error {
			if err := w.Start(ctx); err != nil {
				return fmt.Errorf("start worker: %w", err)
			}
			<-ctx.Done()
			logger.Info("stopping worker")
			w.Stop()
			return nil
		})
	}

	if mode == config.ModeAPI || mode == config.ModeAll {
		server := http.NewServer(http.Config{
			Host:           cfg.Server.Host,
			Port:           cfg.Server.Port,
			Version:        version,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RateLimit:      cfg.Server.RateLimit,
			RateBurst:      cfg.Server.RateBurst,
			Logger:         logger,
			Metrics:        a.metrics,
		}, a.ingest, a.answer, a.pages, a.db, a.queue)

		g.Go(func() error {
			return server.Start(ctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("sercha-rag stopped")
	return nil
}
