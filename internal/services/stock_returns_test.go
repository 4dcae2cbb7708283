package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stocksage/stocksage-go/internal/forecast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubForecaster struct {
	mu        sync.Mutex
	symbols   []string
	forecasts map[string]*forecast.Forecast
	errs      map[string]error
	calls     []string
}

func (f *stubForecaster) Symbols() []string { return f.symbols }

func (f *stubForecaster) Forecast(ctx context.Context, symbol string) (*forecast.Forecast, error) {
	f.mu.Lock()
	f.calls = append(f.calls, symbol)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	return f.forecasts[symbol], nil
}

func flatHistory(n int, price float64) []forecast.HistoricalPoint {
	start := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	points := make([]forecast.HistoricalPoint, n)
	for i := range points {
		points[i] = forecast.HistoricalPoint{Date: start.AddDate(0, 0, i), Close: price}
	}
	return points
}

func linearForecast(symbol string, history []forecast.HistoricalPoint, last float64) *forecast.Forecast {
	predictions := make([]float64, 30)
	for i := range predictions {
		predictions[i] = last
	}
	return &forecast.Forecast{Symbol: symbol, Predictions: predictions, History: history}
}

func TestStockReturns_SortedByExpectedReturn(t *testing.T) {
	f := &stubForecaster{
		symbols: []string{"SCB", "NABIL", "API"},
		forecasts: map[string]*forecast.Forecast{
			"SCB":   linearForecast("SCB", flatHistory(30, 100), 110),
			"NABIL": linearForecast("NABIL", flatHistory(30, 200), 190),
			"API":   linearForecast("API", flatHistory(30, 50), 60),
		},
	}
	sectors := map[string]string{"SCB": "commercial bank", "NABIL": "commercial bank", "API": "hydropower"}
	svc := newStockReturnsService(f, sectors, nil, quietLogger())

	returns, err := svc.StockReturns(context.Background())

	require.NoError(t, err)
	require.Len(t, returns, 3)
	assert.Equal(t, "API", returns[0].Symbol)
	assert.True(t, returns[0].ExpectedReturn.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "hydropower", returns[0].Sector)
	assert.Equal(t, "SCB", returns[1].Symbol)
	assert.True(t, returns[1].ExpectedReturn.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "NABIL", returns[2].Symbol)
	assert.True(t, returns[2].ExpectedReturn.Equal(decimal.NewFromInt(-5)))
}

func TestStockReturns_SkipsFailedSymbols(t *testing.T) {
	f := &stubForecaster{
		symbols: []string{"SCB", "NTC"},
		forecasts: map[string]*forecast.Forecast{
			"SCB": linearForecast("SCB", flatHistory(5, 100), 101),
		},
		errs: map[string]error{"NTC": errors.New("all strategies failed")},
	}
	svc := newStockReturnsService(f, nil, nil, quietLogger())

	returns, err := svc.StockReturns(context.Background())

	require.NoError(t, err)
	require.Len(t, returns, 1)
	assert.Equal(t, "SCB", returns[0].Symbol)
	assert.ElementsMatch(t, []string{"SCB", "NTC"}, f.calls)
}

func TestStockReturns_AllFailed(t *testing.T) {
	f := &stubForecaster{
		symbols: []string{"SCB"},
		errs:    map[string]error{"SCB": errors.New("boom")},
	}
	svc := newStockReturnsService(f, nil, nil, quietLogger())

	_, err := svc.StockReturns(context.Background())

	assert.Error(t, err)
}

func TestStockReturns_CancelledContext(t *testing.T) {
	f := &stubForecaster{
		symbols:   []string{"SCB"},
		forecasts: map[string]*forecast.Forecast{"SCB": linearForecast("SCB", nil, 100)},
	}
	svc := newStockReturnsService(f, nil, nil, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.StockReturns(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestStockReturns_UsesResourceMonitorLimit(t *testing.T) {
	f := &stubForecaster{
		symbols: []string{"SCB", "NABIL"},
		forecasts: map[string]*forecast.Forecast{
			"SCB":   linearForecast("SCB", nil, 100),
			"NABIL": linearForecast("NABIL", nil, 100),
		},
	}
	monitor := NewResourceMonitor(ResourceMonitorConfig{MinWorkers: 2, MaxWorkers: 2}, quietLogger())
	svc := newStockReturnsService(f, nil, monitor, quietLogger())

	assert.Equal(t, 2, svc.limit())
	returns, err := svc.StockReturns(context.Background())
	require.NoError(t, err)
	assert.Len(t, returns, 2)
}

func TestBuildReturn(t *testing.T) {
	svc := newStockReturnsService(&stubForecaster{}, map[string]string{"SCB": "commercial bank"}, nil, quietLogger())

	t.Run("bullish when price is above the average", func(t *testing.T) {
		history := flatHistory(25, 100)
		history[24].Close = 125
		ret, ok := svc.buildReturn(linearForecast("SCB", history, 150))

		require.True(t, ok)
		assert.Equal(t, TrendBullish, ret.Trend)
		assert.True(t, ret.CurrentPrice.Equal(decimal.NewFromInt(125)))
		assert.True(t, ret.PredictedPrice.Equal(decimal.NewFromInt(150)))
		assert.True(t, ret.ExpectedReturn.Equal(decimal.NewFromInt(20)))
		// SMA over the last 20 closes: 19*100 + 125.
		assert.True(t, ret.SMA20.Equal(decimal.RequireFromString("101.25")), ret.SMA20.String())
		assert.Equal(t, "commercial bank", ret.Sector)
	})

	t.Run("bearish when price is below the average", func(t *testing.T) {
		history := flatHistory(10, 100)
		history[9].Close = 90
		ret, ok := svc.buildReturn(linearForecast("SCB", history, 90))

		require.True(t, ok)
		assert.Equal(t, TrendBearish, ret.Trend)
		assert.True(t, ret.SMA20.Equal(decimal.NewFromInt(99)))
	})

	t.Run("neutral for a flat series", func(t *testing.T) {
		ret, ok := svc.buildReturn(linearForecast("SCB", flatHistory(40, 100), 100))

		require.True(t, ok)
		assert.Equal(t, TrendNeutral, ret.Trend)
		assert.True(t, ret.ExpectedReturn.IsZero())
	})

	t.Run("first prediction stands in without history", func(t *testing.T) {
		f := linearForecast("SCB", nil, 100)
		f.Predictions[0] = 80
		f.IsMock = true
		ret, ok := svc.buildReturn(f)

		require.True(t, ok)
		assert.True(t, ret.CurrentPrice.Equal(decimal.NewFromInt(80)))
		assert.True(t, ret.ExpectedReturn.Equal(decimal.NewFromInt(25)))
		assert.True(t, ret.IsMock)
	})

	t.Run("rejects empty predictions", func(t *testing.T) {
		_, ok := svc.buildReturn(&forecast.Forecast{Symbol: "SCB"})
		assert.False(t, ok)
	})

	t.Run("rejects non-positive current price", func(t *testing.T) {
		_, ok := svc.buildReturn(linearForecast("SCB", flatHistory(3, 0), 10))
		assert.False(t, ok)
	})
}

func TestSimpleMovingAverage(t *testing.T) {
	assert.Equal(t, 0.0, simpleMovingAverage(nil, smaPeriod))
	assert.InDelta(t, 2.0, simpleMovingAverage([]float64{1, 2, 3}, smaPeriod), 1e-9)

	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = float64(i + 1)
	}
	// Last 20 values are 11..30.
	assert.InDelta(t, 20.5, simpleMovingAverage(prices, smaPeriod), 1e-9)
}
