package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/Criminal-Justice-Comps/Fairness/internal/dataset"
	"github.com/Criminal-Justice-Comps/Fairness/internal/evaluation"
	"github.com/Criminal-Justice-Comps/Fairness/internal/logging"
	"github.com/Criminal-Justice-Comps/Fairness/internal/report"
	"github.com/Criminal-Justice-Comps/Fairness/pkg/models"
)

// RunSaver persists a finished run. *db.PostgresStore satisfies it.
type RunSaver interface {
	SaveRun(ctx context.Context, run models.Run, rows []models.EvaluationRow) error
}

// Scanner evaluates dataset files, one run per file, writing reports under
// outDir/<dataset>/ and persisting runs when a store is configured.
type Scanner struct {
	runner    *evaluation.Runner
	store     RunSaver
	outDir    string
	alertFunc func(alert DisparityAlert) // Optional broadcast callback
	logger    *slog.Logger

	// Progress tracking (atomic for safe concurrent reads)
	filesTotal    atomic.Int64
	filesScanned  atomic.Int64
	filesFailed   atomic.Int64
	rowsEvaluated atomic.Int64
	disparateRows atomic.Int64
	currentFile   atomic.Pointer[string]
	isRunning     atomic.Bool
}

// DisparityAlert is emitted for every row whose likelihood ratio indicates disparate impact.
type DisparityAlert struct {
	RunID           string  `json:"runId"`
	Dataset         string  `json:"dataset"`
	Classifier      string  `json:"classifier"`
	Feature         string  `json:"feature"`
	MajorityLabel   string  `json:"majorityLabel"`
	MinorityLabel   string  `json:"minorityLabel"`
	LikelihoodRatio float64 `json:"likelihoodRatio"`
	Timestamp       string  `json:"timestamp"`
}

// ScanProgress represents the scanner's current state for the API
type ScanProgress struct {
	IsRunning     bool   `json:"isRunning"`
	CurrentFile   string `json:"currentFile,omitempty"`
	FilesTotal    int64  `json:"filesTotal"`
	FilesScanned  int64  `json:"filesScanned"`
	FilesFailed   int64  `json:"filesFailed"`
	RowsEvaluated int64  `json:"rowsEvaluated"`
	DisparateRows int64  `json:"disparateRows"`
}

// New builds a scanner. store and alertFunc may be nil; an empty outDir skips report files.
func New(runner *evaluation.Runner, store RunSaver, outDir string, alertFunc func(DisparityAlert)) *Scanner {
	return &Scanner{
		runner:    runner,
		store:     store,
		outDir:    outDir,
		alertFunc: alertFunc,
		logger:    logging.Component("scanner"),
	}
}

// GetProgress returns the current scanning progress (thread-safe)
func (s *Scanner) GetProgress() ScanProgress {
	p := ScanProgress{
		IsRunning:     s.isRunning.Load(),
		FilesTotal:    s.filesTotal.Load(),
		FilesScanned:  s.filesScanned.Load(),
		FilesFailed:   s.filesFailed.Load(),
		RowsEvaluated: s.rowsEvaluated.Load(),
		DisparateRows: s.disparateRows.Load(),
	}
	if cur := s.currentFile.Load(); cur != nil {
		p.CurrentFile = *cur
	}
	return p
}

// Alerts lists one alert per disparate row of a run.
func Alerts(run models.Run, rows []models.EvaluationRow) []DisparityAlert {
	var out []DisparityAlert
	now := time.Now().UTC().Format(time.RFC3339)
	for _, r := range rows {
		if !r.HasDisparateImpact {
			continue
		}
		out = append(out, DisparityAlert{
			RunID:           run.ID,
			Dataset:         run.Dataset,
			Classifier:      r.Classifier,
			Feature:         r.Feature,
			MajorityLabel:   r.MajorityLabel,
			MinorityLabel:   r.MinorityLabel,
			LikelihoodRatio: r.LikelihoodRatio,
			Timestamp:       now,
		})
	}
	return out
}

// EvaluateFile loads one dataset, evaluates it, writes its reports, persists
// the run and raises an alert per disparate row. Unit failures inside the run
// are part of the result, not an error.
func (s *Scanner) EvaluateFile(ctx context.Context, path string) (evaluation.Result, error) {
	ds, err := dataset.LoadFile(path)
	if err != nil {
		return evaluation.Result{}, err
	}

	res, err := s.runner.Execute(ctx, ds, nil)
	if err != nil {
		return res, fmt.Errorf("evaluate %s: %w", path, err)
	}
	s.rowsEvaluated.Add(int64(len(res.Rows)))

	if s.outDir != "" {
		if _, err := report.WriteReports(filepath.Join(s.outDir, ds.Name), res.Rows); err != nil {
			return res, err
		}
	}

	if s.store != nil {
		if err := s.store.SaveRun(ctx, res.Run, res.Rows); err != nil {
			s.logger.Warn("failed to persist run", "run", res.Run.ID, "dataset", ds.Name, "error", err)
		}
	}

	for _, alert := range Alerts(res.Run, res.Rows) {
		s.disparateRows.Add(1)
		if s.alertFunc != nil {
			s.alertFunc(alert)
		}
	}
	return res, nil
}

// ScanDir evaluates every *.json file of dir asynchronously, in name order.
// It returns false when a scan is already running.
func (s *Scanner) ScanDir(ctx context.Context, dir string) (bool, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return false, fmt.Errorf("list %s: %w", dir, err)
	}
	sort.Strings(files)

	if !s.isRunning.CompareAndSwap(false, true) {
		s.logger.Info("scan already in progress, ignoring duplicate request")
		return false, nil
	}
	s.filesTotal.Store(int64(len(files)))
	s.filesScanned.Store(0)
	s.filesFailed.Store(0)
	s.rowsEvaluated.Store(0)
	s.disparateRows.Store(0)

	go func() {
		defer s.isRunning.Store(false)
		defer s.currentFile.Store(nil)

		s.logger.Info("starting directory scan", "dir", dir, "files", len(files))
		for _, path := range files {
			select {
			case <-ctx.Done():
				s.logger.Info("scan cancelled", "at", path)
				return
			default:
			}

			s.currentFile.Store(&path)
			if _, err := s.EvaluateFile(ctx, path); err != nil {
				s.filesFailed.Add(1)
				s.logger.Warn("dataset failed", "file", path, "error", err)
			}
			s.filesScanned.Add(1)
		}
		s.logger.Info("scan complete",
			"files", s.filesScanned.Load(),
			"failed", s.filesFailed.Load(),
			"rows", s.rowsEvaluated.Load(),
			"disparate", s.disparateRows.Load())
	}()
	return true, nil
}
