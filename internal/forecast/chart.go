package forecast

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wcharczuk/go-chart/v2"
)

const defaultChartHistoryPoints = 100

// ChartInput is the data plotted for one forecast.
type ChartInput struct {
	Symbol      string
	History     []HistoricalPoint
	FutureDates []string
	Predictions []float64
	Simulated   bool
	// Anchor is used to rebuild FutureDates when they are not a proper
	// ascending date sequence and History has no valid dates.
	Anchor time.Time
}

// Visualizer renders forecasts as base64-encoded PNG charts. Rendering
// failures degrade to a simpler plot and finally to an empty string; they
// are never returned as errors.
type Visualizer struct {
	HistoryPoints int
	Width         int
	Height        int
	logger        *logrus.Logger
}

// NewVisualizer creates a Visualizer plotting at most historyPoints of history.
func NewVisualizer(historyPoints int, logger *logrus.Logger) *Visualizer {
	if historyPoints <= 0 {
		historyPoints = defaultChartHistoryPoints
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Visualizer{
		HistoryPoints: historyPoints,
		Width:         1200,
		Height:        600,
		logger:        logger,
	}
}

// Render draws history and predictions. It returns "" if nothing could be drawn.
func (v *Visualizer) Render(in ChartInput) string {
	img, err := v.safeRender(v.renderFull, in)
	if err == nil {
		return img
	}
	v.logger.WithFields(logrus.Fields{
		"symbol": in.Symbol,
		"error":  err.Error(),
	}).Warn("Chart rendering failed, falling back to index plot")

	img, err = v.safeRender(v.renderIndex, in)
	if err == nil {
		return img
	}
	v.logger.WithFields(logrus.Fields{
		"symbol": in.Symbol,
		"error":  err.Error(),
	}).Error("Index plot rendering failed")
	return ""
}

func (v *Visualizer) safeRender(fn func(ChartInput) (string, error), in ChartInput) (img string, err error) {
	defer func() {
		if r := recover(); r != nil {
			img, err = "", fmt.Errorf("chart renderer panicked: %v", r)
		}
	}()
	return fn(in)
}

func (v *Visualizer) renderFull(in ChartInput) (string, error) {
	if len(in.Predictions) == 0 {
		return "", fmt.Errorf("no predictions to plot")
	}

	history := CleanHistory(in.History)
	if len(history) > v.HistoryPoints {
		history = history[len(history)-v.HistoryPoints:]
	}

	anchor := LastValidDate(history, in.Anchor)
	future := CoerceDates(in.FutureDates, len(in.Predictions), anchor)

	series := make([]chart.Series, 0, 2)
	if len(history) > 0 {
		xs := make([]time.Time, len(history))
		ys := make([]float64, len(history))
		for i, p := range history {
			xs[i] = p.Date
			ys[i] = p.Close
		}
		series = append(series, chart.TimeSeries{
			Name:    "Historical Prices",
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: chart.ColorBlue,
				StrokeWidth: 2,
			},
		})
	}
	series = append(series, chart.TimeSeries{
		Name:    "Predicted Prices",
		XValues: future,
		YValues: append([]float64(nil), in.Predictions...),
		Style: chart.Style{
			StrokeColor:     chart.ColorRed,
			StrokeWidth:     2,
			StrokeDashArray: []float64{5.0, 5.0},
			DotColor:        chart.ColorRed,
			DotWidth:        3,
		},
	})

	graph := chart.Chart{
		Title:  chartTitle(in),
		Width:  v.Width,
		Height: v.Height,
		Background: chart.Style{
			Padding: chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{
			Name:           "Date",
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Price",
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return encodePNG(&graph)
}

// renderIndex plots the predictions alone against their step index.
func (v *Visualizer) renderIndex(in ChartInput) (string, error) {
	if len(in.Predictions) == 0 {
		return "", fmt.Errorf("no predictions to plot")
	}
	xs := make([]float64, len(in.Predictions))
	for i := range xs {
		xs[i] = float64(i + 1)
	}

	graph := chart.Chart{
		Title:  chartTitle(in),
		Width:  v.Width,
		Height: v.Height,
		XAxis:  chart.XAxis{Name: "Day"},
		YAxis:  chart.YAxis{Name: "Price"},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Predicted Prices",
				XValues: xs,
				YValues: append([]float64(nil), in.Predictions...),
				Style: chart.Style{
					StrokeColor: chart.ColorRed,
					StrokeWidth: 2,
				},
			},
		},
	}
	return encodePNG(&graph)
}

func chartTitle(in ChartInput) string {
	title := fmt.Sprintf("%s Stock Price Prediction", in.Symbol)
	if in.Simulated {
		title += " (Simulated Data)"
	}
	return title
}

func encodePNG(graph *chart.Chart) (string, error) {
	buf := bytes.NewBuffer(nil)
	if err := graph.Render(chart.PNG, buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// CoerceDates turns raw date strings into n ascending calendar days. When the
// input does not parse, has the wrong length, or is not strictly increasing,
// consecutive days after anchor are used instead.
func CoerceDates(raw []string, n int, anchor time.Time) []time.Time {
	if len(raw) == n {
		out := make([]time.Time, 0, n)
		for _, s := range raw {
			d, ok := parseHistoryDate(s)
			if !ok || (len(out) > 0 && !d.After(out[len(out)-1])) {
				out = nil
				break
			}
			out = append(out, d)
		}
		if len(out) == n {
			return out
		}
	}
	return FutureDates(anchor, n)
}
