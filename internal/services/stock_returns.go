package services

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stocksage/stocksage-go/internal/forecast"
	"github.com/stocksage/stocksage-go/internal/models"
	"golang.org/x/sync/errgroup"
)

const smaPeriod = 20

// Trend labels used in stock returns.
const (
	TrendBullish = "bullish"
	TrendBearish = "bearish"
	TrendNeutral = "neutral"
)

// Forecaster is the subset of PredictionService stock returns depends on.
type Forecaster interface {
	Symbols() []string
	Forecast(ctx context.Context, symbol string) (*forecast.Forecast, error)
}

// StockReturnsService ranks the supported symbols by expected return over
// the forecast horizon.
type StockReturnsService struct {
	forecaster Forecaster
	sectors    map[string]string
	limit      func() int
	logger     *logrus.Logger
}

// NewStockReturnsService creates a stock returns service. monitor may be nil,
// in which case forecasts run one at a time.
func NewStockReturnsService(predictions *PredictionService, monitor *ResourceMonitor, logger *logrus.Logger) *StockReturnsService {
	sectors := make(map[string]string)
	for sector, symbols := range predictions.Sectors() {
		for _, symbol := range symbols {
			sectors[symbol] = sector
		}
	}
	return newStockReturnsService(predictions, sectors, monitor, logger)
}

func newStockReturnsService(f Forecaster, sectors map[string]string, monitor *ResourceMonitor, logger *logrus.Logger) *StockReturnsService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	limit := func() int { return 1 }
	if monitor != nil {
		limit = monitor.Concurrency
	}
	return &StockReturnsService{
		forecaster: f,
		sectors:    sectors,
		limit:      limit,
		logger:     logger,
	}
}

// StockReturns forecasts every supported symbol and returns them sorted by
// expected return, highest first. Symbols whose forecast fails entirely are
// left out; the call fails only when the context is cancelled.
func (s *StockReturnsService) StockReturns(ctx context.Context) ([]models.StockReturn, error) {
	symbols := s.forecaster.Symbols()

	var mu sync.Mutex
	results := make([]models.StockReturn, 0, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit())
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			f, err := s.forecaster.Forecast(gctx, symbol)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.logger.WithError(err).WithField("symbol", symbol).Warn("Skipping symbol in stock returns")
				return nil
			}

			ret, ok := s.buildReturn(f)
			if !ok {
				return nil
			}

			mu.Lock()
			results = append(results, ret)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(results) == 0 && len(symbols) > 0 {
		return nil, errors.New("no stock returns could be computed")
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].ExpectedReturn.Equal(results[j].ExpectedReturn) {
			return results[i].Symbol < results[j].Symbol
		}
		return results[i].ExpectedReturn.GreaterThan(results[j].ExpectedReturn)
	})
	return results, nil
}

func (s *StockReturnsService) buildReturn(f *forecast.Forecast) (models.StockReturn, bool) {
	if len(f.Predictions) == 0 {
		return models.StockReturn{}, false
	}

	closes := make([]float64, 0, len(f.History))
	for _, p := range f.History {
		closes = append(closes, p.Close)
	}

	current, ok := f.LastClose()
	if !ok {
		// Without history the first forecast step stands in for today.
		current = f.Predictions[0]
		closes = append(closes, current)
	}
	if current <= 0 {
		return models.StockReturn{}, false
	}

	currentPrice := decimal.NewFromFloat(current)
	predictedPrice := decimal.NewFromFloat(f.Predictions[len(f.Predictions)-1])
	expected := predictedPrice.Sub(currentPrice).Div(currentPrice).Mul(decimal.NewFromInt(100))

	sma := simpleMovingAverage(closes, smaPeriod)
	smaValue := decimal.NewFromFloat(sma)

	return models.StockReturn{
		Symbol:         f.Symbol,
		Sector:         s.sectors[f.Symbol],
		CurrentPrice:   currentPrice.Round(2),
		PredictedPrice: predictedPrice.Round(2),
		ExpectedReturn: expected.Round(2),
		SMA20:          smaValue.Round(2),
		Trend:          classifyTrend(currentPrice, smaValue),
		IsMock:         f.IsMock,
	}, true
}

// simpleMovingAverage returns the latest SMA value, or the plain mean when
// there are fewer points than the period.
func simpleMovingAverage(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}
	if len(prices) < period {
		sum := 0.0
		for _, p := range prices {
			sum += p
		}
		return sum / float64(len(prices))
	}

	smaIndicator := trend.NewSmaWithPeriod[float64](period)
	result := helper.ChanToSlice(smaIndicator.Compute(helper.SliceToChan(prices)))
	if len(result) == 0 {
		return prices[len(prices)-1]
	}
	return result[len(result)-1]
}

func classifyTrend(current, sma decimal.Decimal) string {
	switch current.Round(2).Cmp(sma.Round(2)) {
	case 1:
		return TrendBullish
	case -1:
		return TrendBearish
	default:
		return TrendNeutral
	}
}
