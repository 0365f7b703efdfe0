package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"digest-relay-go/internal/model"
	"digest-relay-go/internal/service/ingest"
)

// CycleScheduler is the scheduler surface the API drives
type CycleScheduler interface {
	Start() error
	Stop() error
	IsRunning() bool
	RunOnce(ctx context.Context) (ingest.CycleResult, error)
	GetNextRun() time.Time
	GetLastRun() time.Time
	LastResult() (*ingest.CycleResult, error)
}

// CheckpointAdmin lists and resets source checkpoints
type CheckpointAdmin interface {
	List(ctx context.Context) ([]model.SourceCheckpoint, error)
	Delete(ctx context.Context, sourceID string) (bool, error)
}

// FingerprintCounter reports the size of the dedup history
type FingerprintCounter interface {
	Count(ctx context.Context) (int64, error)
}

// Deps are the collaborators of the HTTP handlers
type Deps struct {
	Ping         func() error
	Scheduler    CycleScheduler
	Checkpoints  CheckpointAdmin
	Fingerprints FingerprintCounter
	// Forget drops cached channel info after a source reset; optional
	Forget   func(sourceID string)
	Sources  []string
	Gatherer prometheus.Gatherer
}

// Handlers contains all HTTP handlers
type Handlers struct {
	deps Deps
}

// NewHandlers creates new HTTP handlers
func NewHandlers(deps Deps) *Handlers {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	return &Handlers{deps: deps}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.deps.Gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	{
		api.POST("/cycles", h.RunCycle)
		api.GET("/cycles/last", h.GetLastCycle)

		api.GET("/sources", h.GetSources)
		api.DELETE("/sources/:id", h.ResetSource)

		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.GET("/scheduler/status", h.GetSchedulerStatus)
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Database:  "ok",
		Scheduler: "stopped",
	}

	if h.deps.Ping != nil {
		if err := h.deps.Ping(); err != nil {
			response.Status = "error"
			response.Database = "error"
			logrus.WithError(err).Error("Database health check failed")
		}
	}

	if h.deps.Scheduler.IsRunning() {
		response.Scheduler = "running"
		next := h.deps.Scheduler.GetNextRun()
		response.NextRun = &next
	}
	if last := h.deps.Scheduler.GetLastRun(); !last.IsZero() {
		response.LastRun = &last
	}

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}
