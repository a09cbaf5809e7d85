package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Criminal-Justice-Comps/Fairness/internal/config"
	"github.com/Criminal-Justice-Comps/Fairness/internal/dataset"
	"github.com/Criminal-Justice-Comps/Fairness/internal/db"
	"github.com/Criminal-Justice-Comps/Fairness/internal/report"
	"github.com/Criminal-Justice-Comps/Fairness/internal/scanner"
	"github.com/Criminal-Justice-Comps/Fairness/pkg/models"
)

// maxDatasetBytes bounds the body of an evaluate request.
const maxDatasetBytes = 64 << 20

type evaluateRequest struct {
	Name        string                    `json:"name"`
	Dataset     json.RawMessage           `json:"dataset" binding:"required"`
	Comparisons json.RawMessage           `json:"comparisons"`
	Classifiers map[string]dataset.Source `json:"classifiers"`
	Select      []string                  `json:"select"`
}

// POST /api/v1/evaluate
// Evaluates an inline dataset document. Rows are streamed to subscribers as they
// are produced and the run is persisted when a database is configured.
func (h *APIHandler) handleEvaluate(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxDatasetBytes)

	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	ds, err := dataset.Parse(req.Dataset)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid dataset", "details": err.Error()})
		return
	}
	ds.Name = req.Name
	if ds.Name == "" {
		ds.Name = "inline"
	}

	runner := h.runner.WithObserver(NewStreamObserver(h.wsHub))
	specs, err := decodeComparisons(req.Comparisons)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid comparisons", "details": err.Error()})
		return
	}
	if len(specs) > 0 {
		runner = runner.WithSpecs(specs)
	}
	if len(req.Classifiers) > 0 {
		runner = runner.WithSources(req.Classifiers)
	}

	res, err := runner.Execute(c.Request.Context(), ds, req.Select)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Evaluation interrupted", "details": err.Error()})
		return
	}

	if h.store != nil {
		if err := h.store.SaveRun(c.Request.Context(), res.Run, res.Rows); err != nil {
			slog.Warn("failed to persist run", "component", "api", "run", res.Run.ID, "error", err)
		}
	}
	alert := BroadcastDisparityAlert(h.wsHub)
	for _, a := range scanner.Alerts(res.Run, res.Rows) {
		alert(a)
	}

	c.JSON(http.StatusOK, gin.H{
		"runId":    res.Run.ID,
		"run":      res.Run,
		"rows":     res.Rows,
		"failures": res.Run.Failures,
	})
}

// decodeComparisons reads the optional comparison override. Unknown keys are
// rejected so a misspelled reference never decodes to an empty group.
func decodeComparisons(raw json.RawMessage) ([]models.ComparisonSpec, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var specs []models.ComparisonSpec
	if err := dec.Decode(&specs); err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, nil
	}
	if err := config.ValidateComparisons(specs); err != nil {
		return nil, err
	}
	return specs, nil
}

// GET /api/v1/runs?page=1&limit=50
func (h *APIHandler) handleListRuns(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database not connected"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	runs, totalCount, err := h.store.ListRuns(c.Request.Context(), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch runs", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       runs,
		"totalCount": totalCount,
		"page":       page,
		"limit":      limit,
	})
}

// GET /api/v1/runs/:id
func (h *APIHandler) handleGetRun(c *gin.Context) {
	rows, ok := h.loadRows(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"runId": c.Param("id"), "rows": rows})
}

// GET /api/v1/runs/:id/report.csv
func (h *APIHandler) handleRunReport(c *gin.Context) {
	rows, ok := h.loadRows(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="`+report.CombinedReportName+`"`)
	c.Status(http.StatusOK)
	if err := report.WriteCSV(c.Writer, rows); err != nil {
		slog.Warn("failed to stream report", "component", "api", "run", c.Param("id"), "error", err)
	}
}

// GET /api/v1/stats/disparate
func (h *APIHandler) handleDisparateStats(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database not connected"})
		return
	}
	counts, err := h.store.DisparateCount(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"disparateRowsByClassifier": counts})
}

func (h *APIHandler) loadRows(c *gin.Context) ([]models.EvaluationRow, bool) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database not connected"})
		return nil, false
	}
	rows, err := h.store.GetRunRows(c.Request.Context(), c.Param("id"))
	if errors.Is(err, db.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch run", "details": err.Error()})
		return nil, false
	}
	return rows, true
}
