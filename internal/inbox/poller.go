package inbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Criminal-Justice-Comps/Fairness/internal/evaluation"
	"github.com/Criminal-Justice-Comps/Fairness/internal/logging"
)

// maxPerTick bounds how many new files one tick evaluates.
const maxPerTick = 5

// FileEvaluator runs one dataset file end to end. *scanner.Scanner satisfies it.
type FileEvaluator interface {
	EvaluateFile(ctx context.Context, path string) (evaluation.Result, error)
}

// Broadcaster pushes a payload to stream subscribers. *api.Hub satisfies it.
type Broadcaster interface {
	Broadcast(data []byte)
}

// Poller watches a directory and evaluates every dataset dropped into it once.
// A file rewritten in place (new modification time) is evaluated again.
type Poller struct {
	dir       string
	interval  time.Duration
	evaluator FileEvaluator
	hub       Broadcaster
	seen      map[string]time.Time
	logger    *slog.Logger
}

// StreamPayload represents the real-time data sent to stream subscribers
type StreamPayload struct {
	Type           string   `json:"type"`
	File           string   `json:"file"`
	RunID          string   `json:"runId,omitempty"`
	Dataset        string   `json:"dataset,omitempty"`
	Rows           int      `json:"rows"`
	DisparateRows  int      `json:"disparateRows"`
	Failures       []string `json:"failures,omitempty"`
	ProcessingTime float64  `json:"processingTimeMs"`
	Error          string   `json:"error,omitempty"`
}

func NewPoller(dir string, interval time.Duration, evaluator FileEvaluator, hub Broadcaster) *Poller {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Poller{
		dir:       dir,
		interval:  interval,
		evaluator: evaluator,
		hub:       hub,
		seen:      make(map[string]time.Time),
		logger:    logging.Component("inbox"),
	}
}

func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("starting inbox poller", "dir", p.dir, "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("stopping inbox poller")
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll evaluates up to maxPerTick unseen files and returns how many it processed.
func (p *Poller) Poll(ctx context.Context) int {
	files, err := filepath.Glob(filepath.Join(p.dir, "*.json"))
	if err != nil {
		p.logger.Warn("failed to list inbox", "error", err)
		return 0
	}
	sort.Strings(files)

	present := make(map[string]bool, len(files))
	processed := 0
	for _, path := range files {
		present[path] = true
		if processed >= maxPerTick {
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if mod, ok := p.seen[path]; ok && mod.Equal(info.ModTime()) {
			continue
		}
		p.seen[path] = info.ModTime()

		p.publish(p.evaluate(ctx, path))
		processed++
	}

	// Forget files that left the inbox so the map stays bounded.
	for path := range p.seen {
		if !present[path] {
			delete(p.seen, path)
		}
	}
	return processed
}

func (p *Poller) evaluate(ctx context.Context, path string) StreamPayload {
	payload := StreamPayload{Type: "inbox_run", File: filepath.Base(path)}

	start := time.Now()
	res, err := p.evaluator.EvaluateFile(ctx, path)
	payload.ProcessingTime = float64(time.Since(start).Microseconds()) / 1000.0

	if err != nil {
		p.logger.Warn("inbox dataset failed", "file", path, "error", err)
		payload.Error = err.Error()
		return payload
	}

	payload.RunID = res.Run.ID
	payload.Dataset = res.Run.Dataset
	payload.Rows = len(res.Rows)
	payload.Failures = res.Run.Failures
	for _, r := range res.Rows {
		if r.HasDisparateImpact {
			payload.DisparateRows++
		}
	}
	p.logger.Info("inbox dataset evaluated",
		"file", path, "run", res.Run.ID, "rows", payload.Rows, "disparate", payload.DisparateRows)
	return payload
}

func (p *Poller) publish(payload StreamPayload) {
	if p.hub == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	p.hub.Broadcast(b)
}
