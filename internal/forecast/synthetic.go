package forecast

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"time"
)

// ErrSyntheticGeneration is returned when a synthetic series cannot be produced.
var ErrSyntheticGeneration = errors.New("synthetic generation failed")

const (
	syntheticHistoryDays = 100
	syntheticVolatility  = 0.02
	trendLookback        = 10
	defaultBasePrice     = 1000.0
)

// DefaultBasePrices are the reference prices used to centre simulated series.
var DefaultBasePrices = map[string]float64{
	"NABIL": 1200,
	"SCB":   500,
	"API":   300,
	"JBBL":  400,
	"GBBL":  350,
	"NTC":   900,
}

// SyntheticGenerator produces deterministic stand-in forecasts for symbols
// without a usable trained artifact. Output depends only on the symbol and the
// configured anchor date, never on wall-clock time.
type SyntheticGenerator struct {
	Horizon     int
	Anchor      time.Time
	HistoryDays int
	Volatility  float64
	BasePrices  map[string]float64
	DefaultBase float64
}

// NewSyntheticGenerator creates a generator anchored at anchor.
func NewSyntheticGenerator(horizon int, anchor time.Time) *SyntheticGenerator {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return &SyntheticGenerator{
		Horizon:     horizon,
		Anchor:      truncateDay(anchor),
		HistoryDays: syntheticHistoryDays,
		Volatility:  syntheticVolatility,
		BasePrices:  DefaultBasePrices,
		DefaultBase: defaultBasePrice,
	}
}

// BasePrice resolves the reference price for symbol.
func (g *SyntheticGenerator) BasePrice(symbol string) float64 {
	if p, ok := g.BasePrices[strings.ToUpper(symbol)]; ok {
		return p
	}
	return g.DefaultBase
}

// Walk simulates 100 days of history ending at the anchor and a trend-following
// random walk over the horizon.
func (g *SyntheticGenerator) Walk(symbol string) (*Forecast, error) {
	base := g.BasePrice(symbol)
	if !validPrice(base) {
		return nil, fmt.Errorf("%w: invalid base price %v for %s", ErrSyntheticGeneration, base, symbol)
	}
	if g.HistoryDays < trendLookback {
		return nil, fmt.Errorf("%w: history of %d days is shorter than the %d-day trend lookback", ErrSyntheticGeneration, g.HistoryDays, trendLookback)
	}

	rng := rand.New(rand.NewSource(seedFor(symbol)))

	history := make([]HistoricalPoint, g.HistoryDays)
	price := base
	for i := range history {
		price += rng.NormFloat64() * base * g.Volatility
		if !validPrice(price) {
			return nil, fmt.Errorf("%w: simulated history went non-positive at day %d", ErrSyntheticGeneration, i)
		}
		history[i] = HistoricalPoint{
			Date:  g.Anchor.AddDate(0, 0, i-(g.HistoryDays-1)),
			Close: price,
		}
	}

	last := history[len(history)-1].Close
	ref := history[len(history)-trendLookback].Close
	drift := (last - ref) / ref / trendLookback

	predictions := make([]float64, g.Horizon)
	price = last
	for i := range predictions {
		price *= 1 + drift + rng.NormFloat64()*g.Volatility
		if !validPrice(price) {
			return nil, fmt.Errorf("%w: simulated forecast went non-positive at step %d", ErrSyntheticGeneration, i)
		}
		predictions[i] = price
	}

	return &Forecast{
		Symbol:      symbol,
		Predictions: predictions,
		Dates:       FutureDates(g.Anchor, g.Horizon),
		History:     history,
		Anchor:      g.Anchor,
		IsMock:      true,
	}, nil
}

// Linear is the last-resort series: a gentle ramp from the base price with
// small seeded noise and no history.
func (g *SyntheticGenerator) Linear(symbol string) (*Forecast, error) {
	base := g.BasePrice(symbol)
	if !validPrice(base) {
		return nil, fmt.Errorf("%w: invalid base price %v for %s", ErrSyntheticGeneration, base, symbol)
	}

	rng := rand.New(rand.NewSource(seedFor(symbol) ^ 0x5DEECE66D))
	predictions := make([]float64, g.Horizon)
	for i := range predictions {
		p := base*(1+0.001*float64(i+1)) + rng.NormFloat64()*base*0.002
		if !validPrice(p) {
			return nil, fmt.Errorf("%w: linear fallback produced invalid value at step %d", ErrSyntheticGeneration, i)
		}
		predictions[i] = p
	}

	return &Forecast{
		Symbol:      symbol,
		Predictions: predictions,
		Dates:       FutureDates(g.Anchor, g.Horizon),
		Anchor:      g.Anchor,
		IsMock:      true,
		IsFallback:  true,
	}, nil
}

// seedFor derives a stable seed from the symbol (FNV-1a, 64 bit).
func seedFor(symbol string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToUpper(symbol)))
	return int64(h.Sum64())
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}
