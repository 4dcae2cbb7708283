package logging

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
)

// OTLPConfig holds configuration for shipping logs over OTLP/HTTP.
type OTLPConfig struct {
	Enabled        bool
	Endpoint       string
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// OTLPHook forwards logrus entries to an OpenTelemetry logger. Entries
// logged with a context carrying a span are correlated with that trace.
type OTLPHook struct {
	logger   otellog.Logger
	provider *sdklog.LoggerProvider
}

// AttachOTLP adds an OTLP hook to logger when cfg is enabled and has an
// endpoint. The returned func flushes and stops the exporter; it is a no-op
// when nothing was attached.
func AttachOTLP(ctx context.Context, logger *logrus.Logger, cfg OTLPConfig) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled || cfg.Endpoint == "" {
		return noop, nil
	}

	exporter, err := otlploghttp.New(ctx, otlpLogOptions(cfg.Endpoint)...)
	if err != nil {
		return noop, fmt.Errorf("failed to create OTLP log exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)
	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
		sdklog.WithResource(res),
	)

	hook := NewOTLPHook(provider, cfg.ServiceName)
	logger.AddHook(hook)
	return hook.Shutdown, nil
}

// NewOTLPHook creates a hook emitting through provider.
func NewOTLPHook(provider *sdklog.LoggerProvider, name string) *OTLPHook {
	return &OTLPHook{
		logger:   provider.Logger(name),
		provider: provider,
	}
}

// Levels implements logrus.Hook.
func (h *OTLPHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook.
func (h *OTLPHook) Fire(entry *logrus.Entry) error {
	ctx := entry.Context
	if ctx == nil {
		ctx = context.Background()
	}

	var record otellog.Record
	record.SetTimestamp(entry.Time)
	record.SetObservedTimestamp(time.Now())
	record.SetSeverity(severityFor(entry.Level))
	record.SetSeverityText(entry.Level.String())
	record.SetBody(otellog.StringValue(entry.Message))

	attrs := make([]otellog.KeyValue, 0, len(entry.Data))
	for key, value := range entry.Data {
		attrs = append(attrs, otellog.KeyValue{Key: key, Value: logValue(value)})
	}
	record.AddAttributes(attrs...)

	h.logger.Emit(ctx, record)
	return nil
}

// Shutdown flushes buffered records and stops the exporter.
func (h *OTLPHook) Shutdown(ctx context.Context) error {
	if h.provider == nil {
		return nil
	}
	return h.provider.Shutdown(ctx)
}

func otlpLogOptions(endpoint string) []otlploghttp.Option {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return []otlploghttp.Option{otlploghttp.WithEndpoint(endpoint), otlploghttp.WithInsecure()}
	}
	// The configured path belongs to traces; logs use the default /v1/logs.
	opts := []otlploghttp.Option{otlploghttp.WithEndpoint(u.Host)}
	if u.Scheme == "http" {
		opts = append(opts, otlploghttp.WithInsecure())
	}
	return opts
}

func severityFor(level logrus.Level) otellog.Severity {
	switch level {
	case logrus.TraceLevel:
		return otellog.SeverityTrace
	case logrus.DebugLevel:
		return otellog.SeverityDebug
	case logrus.InfoLevel:
		return otellog.SeverityInfo
	case logrus.WarnLevel:
		return otellog.SeverityWarn
	case logrus.ErrorLevel:
		return otellog.SeverityError
	case logrus.FatalLevel:
		return otellog.SeverityFatal
	case logrus.PanicLevel:
		return otellog.SeverityFatal4
	default:
		return otellog.SeverityInfo
	}
}

func logValue(v interface{}) otellog.Value {
	switch x := v.(type) {
	case string:
		return otellog.StringValue(x)
	case bool:
		return otellog.BoolValue(x)
	case int:
		return otellog.IntValue(x)
	case int32:
		return otellog.Int64Value(int64(x))
	case int64:
		return otellog.Int64Value(x)
	case float32:
		return otellog.Float64Value(float64(x))
	case float64:
		return otellog.Float64Value(x)
	case error:
		return otellog.StringValue(x.Error())
	case time.Duration:
		return otellog.StringValue(x.String())
	default:
		return otellog.StringValue(fmt.Sprint(x))
	}
}
