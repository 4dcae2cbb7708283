package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		out = append(out, entry)
	}
	return out
}

func TestNewLogger_Formatters(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "info", "production")
	logger.Info("hello")

	entries := jsonLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "hello", entries[0]["msg"])
	assert.Equal(t, "info", entries[0]["level"])

	buf.Reset()
	logger = newLogger(&buf, "info", "development")
	logger.Info("hello")
	assert.Contains(t, buf.String(), `msg=hello`)
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "production")

	logger.Info("dropped")
	logger.Warn("kept")

	entries := jsonLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0]["msg"])
	assert.NotNil(t, NewLogger("debug", "development"))
}

func TestParseLogrusLevel(t *testing.T) {
	tests := map[string]logrus.Level{
		"debug":   logrus.DebugLevel,
		"DEBUG":   logrus.DebugLevel,
		"warn":    logrus.WarnLevel,
		"warning": logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"info":    logrus.InfoLevel,
		"":        logrus.InfoLevel,
		"verbose": logrus.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLogrusLevel(in), in)
	}
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "info", "production")

	WithComponent(logger, "scheduler").Info("tick")
	WithSymbol(logger, "SCB").Info("forecast")
	LogStartup(logger, "stocksage-go", "1.0.0", 5000)
	LogShutdown(logger, "stocksage-go", "signal")

	entries := jsonLines(t, &buf)
	require.Len(t, entries, 4)
	assert.Equal(t, "scheduler", entries[0]["component"])
	assert.Equal(t, "SCB", entries[1]["symbol"])
	assert.Equal(t, "startup", entries[2]["event"])
	assert.Equal(t, float64(5000), entries[2]["port"])
	assert.Equal(t, "signal", entries[3]["reason"])
}

func TestLogAPIRequest_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{status: 200, level: "info"},
		{status: 404, level: "warning"},
		{status: 503, level: "error"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		LogAPIRequest(newLogger(&buf, "info", "production"), "GET", "/predict/:symbol", tt.status, 12, "req-1")

		entries := jsonLines(t, &buf)
		require.Len(t, entries, 1)
		assert.Equal(t, tt.level, entries[0]["level"])
		assert.Equal(t, "req-1", entries[0]["request_id"])
	}
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestLogger(newLogger(&buf, "info", "production")))
	r.GET("/predict/:symbol", func(c *gin.Context) {
		assert.NotEmpty(t, c.GetString(RequestIDKey))
		c.Status(http.StatusOK)
	})

	t.Run("generates a request id", func(t *testing.T) {
		buf.Reset()
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/predict/SCB", nil))

		id := w.Header().Get(RequestIDHeader)
		assert.Len(t, id, 36)
		entries := jsonLines(t, &buf)
		require.Len(t, entries, 1)
		assert.Equal(t, "/predict/:symbol", entries[0]["path"])
		assert.Equal(t, id, entries[0]["request_id"])
	})

	t.Run("propagates an incoming request id", func(t *testing.T) {
		buf.Reset()
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/predict/SCB", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		r.ServeHTTP(w, req)

		assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	})

	t.Run("unmatched route logs the raw path", func(t *testing.T) {
		buf.Reset()
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

		entries := jsonLines(t, &buf)
		require.Len(t, entries, 1)
		assert.Equal(t, "/nowhere", entries[0]["path"])
		assert.Equal(t, float64(404), entries[0]["status"])
	})
}
