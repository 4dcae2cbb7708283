package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stocksage/stocksage-go/internal/api"
	"github.com/stocksage/stocksage-go/internal/api/handlers"
	"github.com/stocksage/stocksage-go/internal/config"
	"github.com/stocksage/stocksage-go/internal/forecast"
	"github.com/stocksage/stocksage-go/internal/logging"
	"github.com/stocksage/stocksage-go/internal/models"
	"github.com/stocksage/stocksage-go/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Environment: "test",
		Forecast: config.ForecastConfig{
			ArtifactDir:        t.TempDir(),
			Horizon:            30,
			WindowWidth:        forecast.FeatureWidth,
			FallbackAnchorDate: "2024-12-10",
			RequestTimeout:     "5s",
			ChartHistoryPoints: 100,
			Sectors:            map[string][]string{"commercial bank": {"NABIL"}},
		},
		Telemetry: config.TelemetryConfig{ServiceName: serviceName},
	}
}

func testRoutes(t *testing.T, cfg *config.Config, logger *logrus.Logger) api.Handlers {
	t.Helper()
	store := forecast.NewArtifactStore(cfg.Forecast.ArtifactDir, cfg.Forecast.WindowWidth, nil, nil, logger)
	predictions, err := services.NewPredictionService(cfg.Forecast, store, nil, logger)
	require.NoError(t, err)
	content := services.NewContentService(cfg.Content, cfg.Forecast.Sectors, nil, logger)

	return api.Handlers{
		Health:   handlers.NewHealthHandler(nil, nil, nil, nil),
		Forecast: handlers.NewForecastHandler(predictions, services.NewStockReturnsService(predictions, nil, logger), logger),
		Content:  handlers.NewContentHandler(content, time.Second, logger),
	}
}

func TestNewServer(t *testing.T) {
	handler := http.NewServeMux()
	srv := newServer(8080, handler)

	assert.Equal(t, ":8080", srv.Addr)
	assert.Equal(t, handler, srv.Handler)
	assert.Equal(t, 10*time.Second, srv.ReadTimeout)
	assert.Equal(t, 5*time.Second, srv.ReadHeaderTimeout)
	assert.Equal(t, 60*time.Second, srv.IdleTimeout)
	assert.Zero(t, srv.WriteTimeout)
}

func TestNewRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	cfg := testConfig(t)

	router := newRouter(cfg, logger, testRoutes(t, cfg, logger))

	t.Run("health", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get(logging.RequestIDHeader))
	})

	t.Run("predict falls back to synthetic data", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/predict/NABIL", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var resp models.PredictionResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Predictions, 30)
		assert.True(t, resp.IsMock)
	})
}
