package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Criminal-Justice-Comps/Fairness/internal/db"
	"github.com/Criminal-Justice-Comps/Fairness/internal/evaluation"
	"github.com/Criminal-Justice-Comps/Fairness/internal/scanner"
	"github.com/Criminal-Justice-Comps/Fairness/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const token = "s3cret"

const inlineDataset = `{
  "people": [{"sex": "Male"}, {"sex": "Female"}, {"sex": "Male"}, {"sex": "Female"}],
  "random": [1, 0, 1, 0]
}`

var sexSpec = models.ComparisonSpec{
	Feature: "sex", Mode: models.ModeCategorical,
	Majority: models.StringValue("Male"), Minority: models.StringValue("Female"),
}

type memStore struct {
	mu   sync.Mutex
	runs []models.Run
	rows map[string][]models.EvaluationRow
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string][]models.EvaluationRow)}
}

func (m *memStore) SaveRun(_ context.Context, run models.Run, rows []models.EvaluationRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	m.rows[run.ID] = rows
	return nil
}

func (m *memStore) ListRuns(_ context.Context, _, _ int) ([]models.Run, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Run(nil), m.runs...), len(m.runs), nil
}

func (m *memStore) GetRunRows(_ context.Context, id string) ([]models.EvaluationRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.rows[id]
	if !ok {
		return nil, db.ErrRunNotFound
	}
	return rows, nil
}

func (m *memStore) DisparateCount(_ context.Context) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]int{}
	for _, rows := range m.rows {
		for _, r := range rows {
			if r.HasDisparateImpact {
				out[r.Classifier]++
			}
		}
	}
	return out, nil
}

type fixture struct {
	router  *gin.Engine
	store   *memStore
	scanner *scanner.Scanner
}

func newFixture(t *testing.T, opts Options) fixture {
	t.Helper()
	runner := evaluation.NewRunner([]models.ComparisonSpec{sexSpec}, nil, evaluation.Options{})
	store := newMemStore()
	hub := NewHub()
	sc := scanner.New(runner, store, t.TempDir(), BroadcastDisparityAlert(hub))
	return fixture{
		router:  SetupRouter(runner, store, hub, sc, opts),
		store:   store,
		scanner: sc,
	}
}

func do(r http.Handler, method, path, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func evaluateBody(extra string) string {
	return `{"name": "compas", "dataset": ` + inlineDataset + extra + `}`
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Options{})
	w := do(f.router, http.MethodGet, "/api/v1/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "operational", body["status"])
	assert.Equal(t, true, body["dbConnected"])
	assert.EqualValues(t, 1, body["comparisons"])
}

func TestEvaluate(t *testing.T) {
	f := newFixture(t, Options{AuthToken: token})

	w := do(f.router, http.MethodPost, "/api/v1/evaluate", evaluateBody(""), token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		RunID string                 `json:"runId"`
		Rows  []models.EvaluationRow `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "random", resp.Rows[0].Classifier)
	assert.True(t, resp.Rows[0].HasDisparateImpact)

	require.Len(t, f.store.runs, 1)
	assert.Equal(t, "compas", f.store.runs[0].Dataset)
}

func TestEvaluate_Overrides(t *testing.T) {
	f := newFixture(t, Options{})
	extra := `, "comparisons": [
	  {"feature": "sex", "mode": "categorical", "majority": "Male", "minority": "Female"},
	  {"feature": "sex", "mode": "categorical", "majority": "Female", "minority": "Male"}
	], "select": ["random"]`

	w := do(f.router, http.MethodPost, "/api/v1/evaluate", evaluateBody(extra), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Rows []models.EvaluationRow `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "Male", resp.Rows[1].MinorityLabel)
}

func TestEvaluate_BadInput(t *testing.T) {
	f := newFixture(t, Options{})
	cases := map[string]string{
		"not json":               `{`,
		"missing dataset":        `{"name": "x"}`,
		"no people":              `{"dataset": {"random": [1]}}`,
		"bad mode":               evaluateBody(`, "comparisons": [{"feature": "sex", "mode": "fuzzy"}]`),
		"bad reference":          evaluateBody(`, "comparisons": [{"feature": "age", "mode": "numeric", "majority": 30, "minority": "old"}]`),
		"missing reference":      evaluateBody(`, "comparisons": [{"feature": "sex", "mode": "categorical", "majority": "Male"}]`),
		"misspelled key":         evaluateBody(`, "comparisons": [{"feature": "sex", "mode": "categorical", "majority": "Male", "minorty": "Female"}]`),
		"overlapping thresholds": evaluateBody(`, "comparisons": [{"feature": "age", "mode": "numeric", "majority": 30, "minority": 60}]`),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := do(f.router, http.MethodPost, "/api/v1/evaluate", body, "")
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestEvaluate_Auth(t *testing.T) {
	f := newFixture(t, Options{AuthToken: token})

	assert.Equal(t, http.StatusUnauthorized, do(f.router, http.MethodPost, "/api/v1/evaluate", evaluateBody(""), "").Code)
	assert.Equal(t, http.StatusForbidden, do(f.router, http.MethodPost, "/api/v1/evaluate", evaluateBody(""), "wrong").Code)
}

func TestEvaluate_AuthHeaderForms(t *testing.T) {
	f := newFixture(t, Options{AuthToken: token})
	cases := []struct {
		header string
		want   int
	}{
		{"bearer " + token, http.StatusOK},
		{"Basic " + token, http.StatusForbidden},
		{"Bearer", http.StatusForbidden},
		{"Bearer  ", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.header, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", strings.NewReader(evaluateBody("")))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", tc.header)
			w := httptest.NewRecorder()
			f.router.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}

func TestEvaluate_RateLimited(t *testing.T) {
	f := newFixture(t, Options{RatePerMinute: 1, Burst: 1})

	assert.Equal(t, http.StatusOK, do(f.router, http.MethodPost, "/api/v1/evaluate", evaluateBody(""), "").Code)
	w := do(f.router, http.MethodPost, "/api/v1/evaluate", evaluateBody(""), "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRuns(t *testing.T) {
	f := newFixture(t, Options{})
	w := do(f.router, http.MethodPost, "/api/v1/evaluate", evaluateBody(""), "")
	require.Equal(t, http.StatusOK, w.Code)
	runID := f.store.runs[0].ID

	w = do(f.router, http.MethodGet, "/api/v1/runs", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), runID)

	w = do(f.router, http.MethodGet, "/api/v1/runs/"+runID, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"classifier":"random"`)

	w = do(f.router, http.MethodGet, "/api/v1/runs/"+runID+"/report.csv", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "classifier,feature,"))
	assert.Equal(t, "random,sex,Male,Female,2,2,2,0,0,2,0,true", lines[1])

	assert.Equal(t, http.StatusNotFound, do(f.router, http.MethodGet, "/api/v1/runs/unknown", "", "").Code)

	w = do(f.router, http.MethodGet, "/api/v1/stats/disparate", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"random":1`)
}

func TestRuns_NoDatabase(t *testing.T) {
	runner := evaluation.NewRunner([]models.ComparisonSpec{sexSpec}, nil, evaluation.Options{})
	r := SetupRouter(runner, nil, NewHub(), nil, Options{})

	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodGet, "/api/v1/runs", "", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodGet, "/api/v1/runs/x", "", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodPost, "/api/v1/scan", `{"dir": "."}`, "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodGet, "/api/v1/scan/progress", "", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/v1/evaluate", evaluateBody(""), "").Code)
}

func TestScan(t *testing.T) {
	f := newFixture(t, Options{})
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(inlineDataset), 0o644))

	assert.Equal(t, http.StatusBadRequest, do(f.router, http.MethodPost, "/api/v1/scan", `{}`, "").Code)
	assert.Equal(t, http.StatusBadRequest,
		do(f.router, http.MethodPost, "/api/v1/scan", `{"dir": "`+filepath.Join(dir, "missing")+`"}`, "").Code)

	w := do(f.router, http.MethodPost, "/api/v1/scan", `{"dir": "`+dir+`"}`, "")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	require.Eventually(t, func() bool { return !f.scanner.GetProgress().IsRunning }, 5*time.Second, 10*time.Millisecond)

	w = do(f.router, http.MethodGet, "/api/v1/scan/progress", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var p scanner.ScanProgress
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, int64(1), p.FilesScanned)
	assert.Equal(t, int64(1), p.DisparateRows)
	assert.Len(t, f.store.runs, 1)
}

func TestMetricsAndCORS(t *testing.T) {
	f := newFixture(t, Options{AllowedOrigins: []string{"https://dash.example"}})

	w := do(f.router, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/evaluate", nil)
	req.Header.Set("Origin", "https://dash.example")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dash.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStreamObserver(t *testing.T) {
	hub := NewHub()
	obs := NewStreamObserver(hub)
	obs.ClassifierStarted("random")
	obs.Evaluated(models.Evaluation{Classifier: "random", Spec: sexSpec})
	obs.ClassifierFinished("random", nil)

	require.Len(t, hub.broadcast, 3)
	first := <-hub.broadcast
	assert.JSONEq(t, `{"type": "classifier_started", "classifier": "random"}`, string(first))
	second := <-hub.broadcast
	assert.Contains(t, string(second), `"feature":"sex"`)
}
