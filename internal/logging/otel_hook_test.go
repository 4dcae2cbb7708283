package logging

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

type recordingExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *recordingExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *recordingExporter) Shutdown(context.Context) error   { return nil }
func (e *recordingExporter) ForceFlush(context.Context) error { return nil }

func (e *recordingExporter) all() []sdklog.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]sdklog.Record(nil), e.records...)
}

func hookedLogger(t *testing.T) (*logrus.Logger, *recordingExporter) {
	t.Helper()
	exporter := &recordingExporter{}
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exporter)))
	hook := NewOTLPHook(provider, "stocksage-go")
	t.Cleanup(func() { _ = hook.Shutdown(context.Background()) })

	var buf bytes.Buffer
	logger := newLogger(&buf, "debug", "production")
	logger.AddHook(hook)
	return logger, exporter
}

func attributes(r sdklog.Record) map[string]otellog.Value {
	out := make(map[string]otellog.Value)
	r.WalkAttributes(func(kv otellog.KeyValue) bool {
		out[kv.Key] = kv.Value
		return true
	})
	return out
}

func TestOTLPHook_Fire(t *testing.T) {
	logger, exporter := hookedLogger(t)

	logger.WithFields(logrus.Fields{
		"symbol":      "NABIL",
		"steps":       30,
		"return_pct":  1.25,
		"is_mock":     true,
		"duration":    150 * time.Millisecond,
		"error_cause": errors.New("artifact missing"),
	}).Warn("Falling back to synthetic forecast")

	records := exporter.all()
	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, "Falling back to synthetic forecast", r.Body().AsString())
	assert.Equal(t, otellog.SeverityWarn, r.Severity())
	assert.Equal(t, "warning", r.SeverityText())

	attrs := attributes(r)
	assert.Equal(t, "NABIL", attrs["symbol"].AsString())
	assert.Equal(t, int64(30), attrs["steps"].AsInt64())
	assert.Equal(t, 1.25, attrs["return_pct"].AsFloat64())
	assert.True(t, attrs["is_mock"].AsBool())
	assert.Equal(t, "150ms", attrs["duration"].AsString())
	assert.Equal(t, "artifact missing", attrs["error_cause"].AsString())
}

func TestOTLPHook_RespectsLoggerLevel(t *testing.T) {
	logger, exporter := hookedLogger(t)
	logger.SetLevel(logrus.InfoLevel)

	logger.Debug("dropped")
	logger.Error("kept")

	records := exporter.all()
	require.Len(t, records, 1)
	assert.Equal(t, "kept", records[0].Body().AsString())
	assert.Equal(t, otellog.SeverityError, records[0].Severity())
}

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		level logrus.Level
		want  otellog.Severity
	}{
		{logrus.TraceLevel, otellog.SeverityTrace},
		{logrus.DebugLevel, otellog.SeverityDebug},
		{logrus.InfoLevel, otellog.SeverityInfo},
		{logrus.WarnLevel, otellog.SeverityWarn},
		{logrus.ErrorLevel, otellog.SeverityError},
		{logrus.FatalLevel, otellog.SeverityFatal},
		{logrus.PanicLevel, otellog.SeverityFatal4},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, severityFor(tt.level))
		})
	}
}

func TestAttachOTLP(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		logger := logrus.New()

		shutdown, err := AttachOTLP(context.Background(), logger, OTLPConfig{Endpoint: "http://collector:4318"})

		require.NoError(t, err)
		assert.Empty(t, logger.Hooks)
		assert.NoError(t, shutdown(context.Background()))
	})

	t.Run("enabled without endpoint", func(t *testing.T) {
		logger := logrus.New()

		_, err := AttachOTLP(context.Background(), logger, OTLPConfig{Enabled: true})

		require.NoError(t, err)
		assert.Empty(t, logger.Hooks)
	})

	t.Run("enabled", func(t *testing.T) {
		logger := logrus.New()

		shutdown, err := AttachOTLP(context.Background(), logger, OTLPConfig{
			Enabled:     true,
			Endpoint:    "http://127.0.0.1:4318",
			ServiceName: "stocksage-go",
		})

		require.NoError(t, err)
		assert.Len(t, logger.Hooks[logrus.InfoLevel], 1)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, shutdown(ctx))
	})
}

func TestOTLPLogOptions(t *testing.T) {
	assert.Len(t, otlpLogOptions("http://collector:4318/v1/traces"), 2)
	assert.Len(t, otlpLogOptions("https://collector.example.com"), 1)
	assert.Len(t, otlpLogOptions("collector:4318"), 2)
}
