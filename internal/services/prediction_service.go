package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stocksage/stocksage-go/internal/config"
	"github.com/stocksage/stocksage-go/internal/forecast"
	"github.com/stocksage/stocksage-go/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// ErrUnsupportedSymbol rejects a request before any work is done.
	ErrUnsupportedSymbol = errors.New("symbol not supported")
	// ErrForecastFailed means every forecasting strategy failed.
	ErrForecastFailed = errors.New("forecast failed")
)

// OutcomeStatus tags the result of one strategy.
type OutcomeStatus int

const (
	OutcomeOK OutcomeStatus = iota
	OutcomeUnavailable
	OutcomeFailed
)

func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeOK:
		return "ok"
	case OutcomeUnavailable:
		return "unavailable"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is what a strategy hands back to the orchestrator.
type Outcome struct {
	Status   OutcomeStatus
	Forecast *forecast.Forecast
	Err      error
}

// Strategy is one way of producing a forecast.
type Strategy interface {
	Name() string
	Run(ctx context.Context, symbol string) Outcome
}

// ArtifactLoader resolves a symbol to its trained artifact.
type ArtifactLoader interface {
	Load(ctx context.Context, symbol string) (*forecast.Artifact, error)
}

// ChartRenderer draws a forecast; an empty string means nothing was drawn.
type ChartRenderer interface {
	Render(in forecast.ChartInput) string
}

// RealModelStrategy runs the trained model iteratively.
type RealModelStrategy struct {
	loader         ArtifactLoader
	horizon        int
	width          int
	fallbackAnchor time.Time
}

func NewRealModelStrategy(loader ArtifactLoader, horizon, width int, fallbackAnchor time.Time) *RealModelStrategy {
	return &RealModelStrategy{
		loader:         loader,
		horizon:        horizon,
		width:          width,
		fallbackAnchor: fallbackAnchor,
	}
}

func (s *RealModelStrategy) Name() string { return "real_model" }

func (s *RealModelStrategy) Run(ctx context.Context, symbol string) Outcome {
	artifact, err := s.loader.Load(ctx, symbol)
	if err != nil {
		if errors.Is(err, forecast.ErrArtifactUnavailable) {
			return Outcome{Status: OutcomeUnavailable, Err: err}
		}
		return Outcome{Status: OutcomeFailed, Err: err}
	}

	f := forecast.NewForecaster(s.horizon, s.width, artifact.CloseIndex)
	predictions, _, err := f.Run(ctx, artifact.Model, artifact.Scaler, artifact.Window)
	if err != nil {
		return Outcome{Status: OutcomeFailed, Err: err}
	}

	history := forecast.CleanHistory(artifact.History)
	anchor := forecast.LastValidDate(history, s.fallbackAnchor)

	return Outcome{
		Status: OutcomeOK,
		Forecast: &forecast.Forecast{
			Symbol:      symbol,
			Predictions: predictions,
			Dates:       forecast.FutureDates(anchor, len(predictions)),
			History:     history,
			Anchor:      anchor,
		},
	}
}

// SyntheticWalkStrategy simulates history and a trend-following forecast.
type SyntheticWalkStrategy struct {
	generator *forecast.SyntheticGenerator
}

func NewSyntheticWalkStrategy(generator *forecast.SyntheticGenerator) *SyntheticWalkStrategy {
	return &SyntheticWalkStrategy{generator: generator}
}

func (s *SyntheticWalkStrategy) Name() string { return "synthetic_walk" }

func (s *SyntheticWalkStrategy) Run(_ context.Context, symbol string) Outcome {
	f, err := s.generator.Walk(symbol)
	if err != nil {
		return Outcome{Status: OutcomeFailed, Err: err}
	}
	return Outcome{Status: OutcomeOK, Forecast: f}
}

// MinimalLinearStrategy is the last resort before total failure.
type MinimalLinearStrategy struct {
	generator *forecast.SyntheticGenerator
}

func NewMinimalLinearStrategy(generator *forecast.SyntheticGenerator) *MinimalLinearStrategy {
	return &MinimalLinearStrategy{generator: generator}
}

func (s *MinimalLinearStrategy) Name() string { return "minimal_linear" }

func (s *MinimalLinearStrategy) Run(_ context.Context, symbol string) Outcome {
	f, err := s.generator.Linear(symbol)
	if err != nil {
		return Outcome{Status: OutcomeFailed, Err: err}
	}
	return Outcome{Status: OutcomeOK, Forecast: f}
}

// PredictionService is the single entry point for forecasts. It walks an
// ordered list of strategies until one produces a valid forecast.
type PredictionService struct {
	sectors        map[string][]string
	symbolSector   map[string]string
	strategies     []Strategy
	renderer       ChartRenderer
	horizon        int
	timeout        time.Duration
	fallbackAnchor time.Time
	logger         *logrus.Logger
	tracer         trace.Tracer
}

// NewPredictionService wires the default strategy chain:
// real model, synthetic walk, minimal linear.
func NewPredictionService(cfg config.ForecastConfig, loader ArtifactLoader, renderer ChartRenderer, logger *logrus.Logger) (*PredictionService, error) {
	anchor, err := cfg.AnchorDate()
	if err != nil {
		return nil, fmt.Errorf("invalid fallback anchor date: %w", err)
	}

	generator := forecast.NewSyntheticGenerator(cfg.Horizon, anchor)
	strategies := []Strategy{
		NewRealModelStrategy(loader, cfg.Horizon, cfg.WindowWidth, anchor),
		NewSyntheticWalkStrategy(generator),
		NewMinimalLinearStrategy(generator),
	}

	return NewPredictionServiceWithStrategies(cfg.Sectors, strategies, renderer, cfg.Horizon, cfg.Timeout(), anchor, logger), nil
}

// NewPredictionServiceWithStrategies builds a service around a custom strategy chain.
func NewPredictionServiceWithStrategies(
	sectors map[string][]string,
	strategies []Strategy,
	renderer ChartRenderer,
	horizon int,
	timeout time.Duration,
	fallbackAnchor time.Time,
	logger *logrus.Logger,
) *PredictionService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if horizon <= 0 {
		horizon = forecast.DefaultHorizon
	}

	normalized := make(map[string][]string, len(sectors))
	symbolSector := make(map[string]string)
	for sector, symbols := range sectors {
		for _, symbol := range symbols {
			s := normalizeSymbol(symbol)
			normalized[sector] = append(normalized[sector], s)
			symbolSector[s] = sector
		}
	}

	return &PredictionService{
		sectors:        normalized,
		symbolSector:   symbolSector,
		strategies:     strategies,
		renderer:       renderer,
		horizon:        horizon,
		timeout:        timeout,
		fallbackAnchor: fallbackAnchor,
		logger:         logger,
		tracer:         otel.Tracer("stocksage-go/services/prediction"),
	}
}

func normalizeSymbol(raw string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(raw))
}

// IsSupported reports whether symbol is on the allow-list.
func (s *PredictionService) IsSupported(symbol string) bool {
	_, ok := s.symbolSector[normalizeSymbol(symbol)]
	return ok
}

// Symbols returns the allow-list in sorted order.
func (s *PredictionService) Symbols() []string {
	out := make([]string, 0, len(s.symbolSector))
	for symbol := range s.symbolSector {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// Sectors returns a copy of the sector to symbols map.
func (s *PredictionService) Sectors() map[string][]string {
	out := make(map[string][]string, len(s.sectors))
	for sector, symbols := range s.sectors {
		out[sector] = append([]string(nil), symbols...)
	}
	return out
}

// Forecast produces a forecast without rendering a chart.
func (s *PredictionService) Forecast(ctx context.Context, rawSymbol string) (*forecast.Forecast, error) {
	symbol := normalizeSymbol(rawSymbol)
	if !s.IsSupported(symbol) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSymbol, rawSymbol)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	log := s.logger.WithField("symbol", symbol)
	var lastErr error
	for _, strategy := range s.strategies {
		start := time.Now()
		out := s.runStrategy(ctx, strategy, symbol)
		fields := logrus.Fields{
			"strategy":    strategy.Name(),
			"status":      out.Status.String(),
			"duration_ms": time.Since(start).Milliseconds(),
		}

		if out.Status == OutcomeOK {
			if err := s.validate(out.Forecast); err != nil {
				out = Outcome{Status: OutcomeFailed, Err: err}
				fields["status"] = out.Status.String()
			} else {
				log.WithFields(fields).Info("Forecast produced")
				return out.Forecast, nil
			}
		}

		lastErr = out.Err
		if out.Err != nil {
			fields["error"] = out.Err.Error()
		}
		if out.Status == OutcomeUnavailable {
			log.WithFields(fields).Info("Forecast strategy unavailable, trying next")
		} else {
			log.WithFields(fields).Warn("Forecast strategy failed, trying next")
		}
	}

	log.WithError(lastErr).Error("All forecast strategies failed")
	return nil, fmt.Errorf("%w for %s: %v", ErrForecastFailed, symbol, lastErr)
}

// Predict produces the full response envelope including the chart. The
// returned error is ErrUnsupportedSymbol or ErrForecastFailed; in both cases
// the envelope is still well-formed with Success false.
func (s *PredictionService) Predict(ctx context.Context, rawSymbol string) (*models.PredictionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "prediction.predict",
		trace.WithAttributes(attribute.String("symbol", rawSymbol)))
	defer span.End()

	f, err := s.Forecast(ctx, rawSymbol)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		msg := "Prediction failed"
		if errors.Is(err, ErrUnsupportedSymbol) {
			msg = fmt.Sprintf("Symbol %s not supported", rawSymbol)
		}
		return &models.PredictionResponse{Success: false, Error: msg}, err
	}

	graph := ""
	if s.renderer != nil {
		graph = s.renderer.Render(forecast.ChartInput{
			Symbol:      f.Symbol,
			History:     f.History,
			FutureDates: f.DateStrings(),
			Predictions: f.Predictions,
			Simulated:   f.IsMock,
			Anchor:      f.Anchor,
		})
	}

	span.SetAttributes(
		attribute.Bool("is_mock", f.IsMock),
		attribute.Bool("is_fallback", f.IsFallback),
		attribute.Bool("has_graph", graph != ""),
	)

	return &models.PredictionResponse{
		Success:     true,
		Symbol:      f.Symbol,
		Predictions: f.Predictions,
		Graph:       graph,
		Dates:       f.DateStrings(),
		IsMock:      f.IsMock,
		IsFallback:  f.IsFallback,
	}, nil
}

func (s *PredictionService) runStrategy(ctx context.Context, strategy Strategy, symbol string) (out Outcome) {
	ctx, span := s.tracer.Start(ctx, "prediction.strategy."+strategy.Name())
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Status: OutcomeFailed, Err: fmt.Errorf("strategy %s panicked: %v", strategy.Name(), r)}
		}
		span.SetAttributes(attribute.String("outcome", out.Status.String()))
		if out.Err != nil && out.Status == OutcomeFailed {
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, out.Err.Error())
		}
		span.End()
	}()

	return strategy.Run(ctx, symbol)
}

func (s *PredictionService) validate(f *forecast.Forecast) error {
	if f == nil {
		return errors.New("strategy returned no forecast")
	}
	if len(f.Predictions) != s.horizon {
		return fmt.Errorf("expected %d predictions, got %d", s.horizon, len(f.Predictions))
	}
	if len(f.Dates) != len(f.Predictions) {
		return fmt.Errorf("expected %d dates, got %d", len(f.Predictions), len(f.Dates))
	}
	return nil
}
