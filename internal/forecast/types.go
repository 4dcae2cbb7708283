package forecast

import (
	"sort"
	"time"
)

// DateLayout is the calendar-day format used in API output.
const DateLayout = "2006-01-02"

// HistoricalPoint is one observed closing price.
type HistoricalPoint struct {
	Date  time.Time
	Close float64
}

// Forecast is the product of one forecasting strategy.
type Forecast struct {
	Symbol      string
	Predictions []float64
	Dates       []time.Time
	History     []HistoricalPoint
	Anchor      time.Time
	IsMock      bool
	IsFallback  bool
}

// DateStrings formats the forecast dates as YYYY-MM-DD.
func (f *Forecast) DateStrings() []string {
	out := make([]string, len(f.Dates))
	for i, d := range f.Dates {
		out[i] = d.Format(DateLayout)
	}
	return out
}

// LastClose returns the most recent historical close, if any.
func (f *Forecast) LastClose() (float64, bool) {
	if len(f.History) == 0 {
		return 0, false
	}
	return f.History[len(f.History)-1].Close, true
}

// FutureDates returns n consecutive calendar days starting the day after anchor.
func FutureDates(anchor time.Time, n int) []time.Time {
	day := truncateDay(anchor)
	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = day.AddDate(0, 0, i+1)
	}
	return dates
}

// CleanHistory drops points with a zero date and returns the rest sorted
// ascending by date. The input slice is not modified.
func CleanHistory(points []HistoricalPoint) []HistoricalPoint {
	out := make([]HistoricalPoint, 0, len(points))
	for _, p := range points {
		if p.Date.IsZero() {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// LastValidDate returns the latest valid date in history, or fallback when
// the series has none.
func LastValidDate(points []HistoricalPoint, fallback time.Time) time.Time {
	clean := CleanHistory(points)
	if len(clean) == 0 {
		return truncateDay(fallback)
	}
	return truncateDay(clean[len(clean)-1].Date)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
