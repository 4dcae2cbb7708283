package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stocksage/stocksage-go/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockHealthChecker mocks a dependency health check
type MockHealthChecker struct {
	mock.Mock
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type fixedResources struct{ snap services.ResourceSnapshot }

func (r fixedResources) Snapshot(context.Context) services.ResourceSnapshot { return r.snap }

type fixedCacheStats map[string]services.CacheStats

func (s fixedCacheStats) GetAllStats() map[string]services.CacheStats { return s }

func healthy() *MockHealthChecker {
	m := &MockHealthChecker{}
	m.On("HealthCheck", mock.Anything).Return(nil)
	return m
}

func runHealthCheck(t *testing.T, handler *HealthHandler) (int, HealthResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	handler.HealthCheck(c)

	var response HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return w.Code, response
}

func TestNewHealthHandler(t *testing.T) {
	db, redis := healthy(), healthy()
	handler := NewHealthHandler(db, redis, nil, nil)

	assert.NotNil(t, handler)
	assert.Equal(t, db, handler.db)
	assert.Equal(t, redis, handler.redis)
	assert.Nil(t, handler.modelServer)
}

func TestHealthHandler_HealthCheck(t *testing.T) {
	t.Run("all services healthy", func(t *testing.T) {
		resources := fixedResources{snap: services.ResourceSnapshot{CPUCores: 4, MaxForecasts: 4}}
		handler := NewHealthHandler(healthy(), healthy(), healthy(), resources).
			WithCacheStats(fixedCacheStats{"news": {Hits: 3, Misses: 1, HitRate: 75}})

		code, response := runHealthCheck(t, handler)

		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "healthy", response.Status)
		assert.Equal(t, "healthy", response.Services["database"])
		assert.Equal(t, "healthy", response.Services["redis"])
		assert.Equal(t, "healthy", response.Services["model_server"])
		require.NotNil(t, response.System)
		assert.Equal(t, 4, response.System.MaxForecasts)
		assert.Equal(t, int64(3), response.Cache["news"].Hits)
		assert.NotEmpty(t, response.Uptime)
	})

	t.Run("database unhealthy", func(t *testing.T) {
		db := &MockHealthChecker{}
		db.On("HealthCheck", mock.Anything).Return(errors.New("connection refused"))

		code, response := runHealthCheck(t, NewHealthHandler(db, healthy(), healthy(), nil))

		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unhealthy", response.Status)
		assert.Equal(t, "unhealthy: connection refused", response.Services["database"])
		db.AssertExpectations(t)
	})

	t.Run("model server down is informational", func(t *testing.T) {
		code, response := runHealthCheck(t, NewHealthHandler(healthy(), healthy(),
			HealthCheckFunc(func(context.Context) error { return errors.New("timeout") }), nil))

		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "healthy", response.Status)
		assert.Equal(t, "unhealthy: timeout", response.Services["model_server"])
	})

	t.Run("unconfigured dependencies are disabled", func(t *testing.T) {
		code, response := runHealthCheck(t, NewHealthHandler(nil, nil, nil, nil))

		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "disabled", response.Services["database"])
		assert.Equal(t, "disabled", response.Services["redis"])
		assert.Nil(t, response.System)
		assert.Empty(t, response.Cache)
	})
}
