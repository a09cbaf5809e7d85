package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Criminal-Justice-Comps/Fairness/internal/api"
	"github.com/Criminal-Justice-Comps/Fairness/internal/config"
	"github.com/Criminal-Justice-Comps/Fairness/internal/db"
	"github.com/Criminal-Justice-Comps/Fairness/internal/evaluation"
	"github.com/Criminal-Justice-Comps/Fairness/internal/inbox"
	"github.com/Criminal-Justice-Comps/Fairness/internal/scanner"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, result stream and inbox poller",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg config.Config) error {
	slog.Info("starting fairness service", "version", version, "comparisons", len(cfg.Comparisons))

	// Persistence is optional: without a database the run routes answer 503.
	var runStore api.RunStore
	var saver scanner.RunSaver
	if cfg.Database.DSN != "" {
		store, err := db.Connect(ctx, cfg.Database.DSN)
		if err != nil {
			slog.Warn("failed to connect to PostgreSQL, continuing without persisting runs", "error", err)
		} else {
			defer store.Close()
			if err := store.InitSchema(ctx); err != nil {
				slog.Warn("schema init failed", "error", err)
			}
			runStore, saver = store, store
		}
	}

	wsHub := api.NewHub()
	go wsHub.Run()

	runner := evaluation.NewRunner(cfg.Comparisons, cfg.Classifiers, evaluation.Options{
		Workers:         cfg.Evaluation.Workers,
		Shards:          cfg.Evaluation.Shards,
		ContinueOnError: cfg.Evaluation.ContinueOnError,
	})

	// Batch runs stream every evaluation; the evaluate route adds its own observer.
	datasetScanner := scanner.New(runner.WithObserver(api.NewStreamObserver(wsHub)), saver, cfg.OutputDir,
		api.BroadcastDisparityAlert(wsHub))

	if cfg.Inbox.Dir != "" {
		poller := inbox.NewPoller(cfg.Inbox.Dir, cfg.Inbox.Interval, datasetScanner, wsHub)
		go poller.Run(ctx)
	}

	router := api.SetupRouter(runner, runStore, wsHub, datasetScanner, api.Options{
		AuthToken:      cfg.Server.AuthToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RatePerMinute:  cfg.Server.RatePerMinute,
		Burst:          cfg.Server.Burst,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
