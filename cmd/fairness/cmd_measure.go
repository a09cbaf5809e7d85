package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Criminal-Justice-Comps/Fairness/internal/config"
	"github.com/Criminal-Justice-Comps/Fairness/internal/dataset"
	"github.com/Criminal-Justice-Comps/Fairness/internal/db"
	"github.com/Criminal-Justice-Comps/Fairness/internal/evaluation"
	"github.com/Criminal-Justice-Comps/Fairness/internal/report"
)

type measureOptions struct {
	dataset         string
	out             string
	dsn             string
	classifiers     []string
	workers         int
	shards          int
	continueOnError bool
	quiet           bool
}

var measureOpts measureOptions

var measureCmd = &cobra.Command{
	Use:   "measure",
	Short: "Evaluate a dataset and write disparate-impact reports",
	Example: `  fairness measure --dataset compas.json
  fairness measure --dataset compas.json --classifier ANN --out ./reports`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyMeasureFlags(&cfg, cmd.Flags(), measureOpts)
		return runMeasure(cmd.Context(), cfg, measureOpts.classifiers, measureOpts.quiet, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	f := measureCmd.Flags()
	f.StringVarP(&measureOpts.dataset, "dataset", "d", "", "dataset JSON file")
	f.StringVarP(&measureOpts.out, "out", "o", "", "report directory")
	f.StringVar(&measureOpts.dsn, "db", "", "PostgreSQL DSN to persist the run")
	f.StringSliceVar(&measureOpts.classifiers, "classifier", nil, "evaluate only these classifiers (repeatable)")
	f.IntVar(&measureOpts.workers, "workers", 1, "classifiers evaluated concurrently")
	f.IntVar(&measureOpts.shards, "shards", 1, "shards per contingency build")
	f.BoolVar(&measureOpts.continueOnError, "continue-on-error", false, "keep evaluating a classifier after a comparison fails")
	f.BoolVarP(&measureOpts.quiet, "quiet", "q", false, "suppress console diagnostics")
}

// applyMeasureFlags overlays explicitly set flags on the loaded config.
func applyMeasureFlags(cfg *config.Config, flags *pflag.FlagSet, opts measureOptions) {
	if flags.Changed("dataset") {
		cfg.Dataset = opts.dataset
	}
	if flags.Changed("out") {
		cfg.OutputDir = opts.out
	}
	if flags.Changed("db") {
		cfg.Database.DSN = opts.dsn
	}
	if flags.Changed("workers") {
		cfg.Evaluation.Workers = opts.workers
	}
	if flags.Changed("shards") {
		cfg.Evaluation.Shards = opts.shards
	}
	if flags.Changed("continue-on-error") {
		cfg.Evaluation.ContinueOnError = opts.continueOnError
	}
}

func runMeasure(ctx context.Context, cfg config.Config, classifiers []string, quiet bool, stdout, stderr io.Writer) error {
	if cfg.Dataset == "" {
		return errors.New("no dataset: pass --dataset or set dataset in the config file")
	}
	ds, err := dataset.LoadFile(cfg.Dataset)
	if err != nil {
		return err
	}

	runner := evaluation.NewRunner(cfg.Comparisons, cfg.Classifiers, evaluation.Options{
		Workers:         cfg.Evaluation.Workers,
		Shards:          cfg.Evaluation.Shards,
		ContinueOnError: cfg.Evaluation.ContinueOnError,
	})
	console := report.NewConsole(stdout)
	if !quiet {
		runner = runner.WithObserver(console)
	}

	res, err := runner.Execute(ctx, ds, classifiers)
	if err != nil {
		return err
	}

	paths, err := report.WriteReports(cfg.OutputDir, res.Rows)
	if err != nil {
		return err
	}

	if cfg.Database.DSN != "" {
		persistRun(ctx, cfg.Database.DSN, res)
	}

	if !quiet {
		console.Summary(res.Rows)
		for _, p := range paths {
			fmt.Fprintln(stdout, "wrote", p)
		}
		fmt.Fprintln(stdout, "run", res.Run.ID)
	}

	if res.Summary.Failed() {
		for _, msg := range res.Summary.FailureMessages() {
			fmt.Fprintln(stderr, "FAILED:", msg)
		}
		return errClassifiersFailed
	}
	return nil
}

// persistRun stores the run; a database problem never fails the measurement.
func persistRun(ctx context.Context, dsn string, res evaluation.Result) {
	store, err := db.Connect(ctx, dsn)
	if err != nil {
		slog.Warn("failed to connect to PostgreSQL, run not persisted", "error", err)
		return
	}
	defer store.Close()

	if err := store.InitSchema(ctx); err != nil {
		slog.Warn("schema init failed", "error", err)
		return
	}
	if err := store.SaveRun(ctx, res.Run, res.Rows); err != nil {
		slog.Warn("failed to persist run", "run", res.Run.ID, "error", err)
		return
	}
	slog.Info("run persisted", "run", res.Run.ID, "rows", len(res.Rows))
}
