package api

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Criminal-Justice-Comps/Fairness/internal/evaluation"
	"github.com/Criminal-Justice-Comps/Fairness/internal/scanner"
	"github.com/Criminal-Justice-Comps/Fairness/pkg/models"
)

// Version is reported by the health endpoint; set at build time.
var Version = "dev"

// RunStore is the persistence the API needs. *db.PostgresStore satisfies it.
type RunStore interface {
	SaveRun(ctx context.Context, run models.Run, rows []models.EvaluationRow) error
	ListRuns(ctx context.Context, page int, limit int) ([]models.Run, int, error)
	GetRunRows(ctx context.Context, runID string) ([]models.EvaluationRow, error)
	DisparateCount(ctx context.Context) (map[string]int, error)
}

type Options struct {
	AuthToken      string
	AllowedOrigins []string
	RatePerMinute  int
	Burst          int
}

type APIHandler struct {
	runner  *evaluation.Runner
	store   RunStore // nil when no database is configured
	wsHub   *Hub
	scanner *scanner.Scanner
}

// SetupRouter wires every route. store and sc may be nil; the routes that need
// them then answer 503.
func SetupRouter(runner *evaluation.Runner, store RunStore, wsHub *Hub, sc *scanner.Scanner, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.Use(corsMiddleware(opts.AllowedOrigins))

	handler := &APIHandler{runner: runner, store: store, wsHub: wsHub, scanner: sc}

	if opts.RatePerMinute <= 0 {
		opts.RatePerMinute = 30
	}
	if opts.Burst <= 0 {
		opts.Burst = 10
	}
	limiter := NewRateLimiter(opts.RatePerMinute, opts.Burst)
	auth := AuthMiddleware(opts.AuthToken)

	api := r.Group("/api/v1")
	{
		api.GET("/health", handler.handleHealth)
		api.GET("/stream", wsHub.Subscribe)
		api.GET("/scan/progress", handler.handleScanProgress)

		api.GET("/runs", handler.handleListRuns)
		api.GET("/runs/:id", handler.handleGetRun)
		api.GET("/runs/:id/report.csv", handler.handleRunReport)
		api.GET("/stats/disparate", handler.handleDisparateStats)

		protected := api.Group("", auth, limiter.Middleware())
		protected.POST("/evaluate", handler.handleEvaluate)
		protected.POST("/scan", handler.handleStartScan)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range allowedOrigins {
				if allowed == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// handleHealth returns service status for discovery and probes.
func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "operational",
		"version":     Version,
		"comparisons": len(h.runner.Specs()),
		"dbConnected": h.store != nil,
		"scanner":     h.scanner != nil,
		"subscribers": h.wsHub.Clients(),
	})
}

// handleStartScan launches a directory scan in the background.
// POST /api/v1/scan { "dir": "/data/inbox" }
func (h *APIHandler) handleStartScan(c *gin.Context) {
	if h.scanner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scanner not initialized"})
		return
	}

	var req struct {
		Dir string `json:"dir" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {dir}"})
		return
	}

	dir := filepath.Clean(req.Dir)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Not a readable directory", "dir": dir})
		return
	}

	// The scan outlives the request.
	started, err := h.scanner.ScanDir(context.Background(), dir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start scan", "details": err.Error()})
		return
	}
	if !started {
		c.JSON(http.StatusConflict, gin.H{"error": "Scan already in progress", "progress": h.scanner.GetProgress()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":   "scan_started",
		"dir":      dir,
		"progress": h.scanner.GetProgress(),
	})
}

// handleScanProgress returns the current progress of the scanner.
func (h *APIHandler) handleScanProgress(c *gin.Context) {
	if h.scanner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scanner not initialized"})
		return
	}
	c.JSON(http.StatusOK, h.scanner.GetProgress())
}
