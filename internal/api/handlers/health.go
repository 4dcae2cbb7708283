package handlers

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stocksage/stocksage-go/internal/services"
)

var startTime = time.Now()

// HealthChecker is anything that can report its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheckFunc adapts a plain function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// ResourceReporter samples host load.
type ResourceReporter interface {
	Snapshot(ctx context.Context) services.ResourceSnapshot
}

// CacheStatsReporter exposes content cache hit rates.
type CacheStatsReporter interface {
	GetAllStats() map[string]services.CacheStats
}

// HealthHandler reports dependency and host health.
type HealthHandler struct {
	db          HealthChecker
	redis       HealthChecker
	modelServer HealthChecker
	resources   ResourceReporter
	cacheStats  CacheStatsReporter
}

type HealthResponse struct {
	Status    string                         `json:"status"`
	Timestamp time.Time                      `json:"timestamp"`
	Services  map[string]string              `json:"services"`
	System    *services.ResourceSnapshot     `json:"system,omitempty"`
	Cache     map[string]services.CacheStats `json:"cache,omitempty"`
	Version   string                         `json:"version"`
	Uptime    string                         `json:"uptime"`
}

// NewHealthHandler creates a health handler. Any checker may be nil when
// that dependency is not configured.
func NewHealthHandler(db, redis, modelServer HealthChecker, resources ResourceReporter) *HealthHandler {
	return &HealthHandler{
		db:          db,
		redis:       redis,
		modelServer: modelServer,
		resources:   resources,
	}
}

// WithCacheStats adds content cache hit rates to the response.
func (h *HealthHandler) WithCacheStats(reporter CacheStatsReporter) *HealthHandler {
	h.cacheStats = reporter
	return h
}

// HealthCheck handles GET /health. Database and Redis failures make the
// service unhealthy; the model server is informational only since
// forecasts fall back to the synthetic path without it.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	servicesStatus := map[string]string{
		"database":     check(ctx, h.db),
		"redis":        check(ctx, h.redis),
		"model_server": check(ctx, h.modelServer),
	}

	overallStatus := "healthy"
	for _, name := range []string{"database", "redis"} {
		if status := servicesStatus[name]; status != "healthy" && status != "disabled" {
			overallStatus = "unhealthy"
		}
	}

	response := HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Services:  servicesStatus,
		Version:   os.Getenv("APP_VERSION"),
		Uptime:    time.Since(startTime).String(),
	}
	if h.resources != nil {
		snap := h.resources.Snapshot(ctx)
		response.System = &snap
	}
	if h.cacheStats != nil {
		response.Cache = h.cacheStats.GetAllStats()
	}

	statusCode := http.StatusOK
	if overallStatus != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

func check(ctx context.Context, checker HealthChecker) string {
	if checker == nil {
		return "disabled"
	}
	if err := checker.HealthCheck(ctx); err != nil {
		return "unhealthy: " + err.Error()
	}
	return "healthy"
}
