package forecast

import (
	"context"
	"fmt"
	"math"
)

// DefaultHorizon is the number of future daily steps produced per request.
const DefaultHorizon = 30

// Forecaster runs the iterative multi-step inference loop.
type Forecaster struct {
	Horizon    int
	Width      int
	CloseIndex int
}

// NewForecaster creates a forecaster for the given horizon and feature width.
func NewForecaster(horizon, width, closeIndex int) *Forecaster {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	if width <= 0 {
		width = FeatureWidth
	}
	return &Forecaster{Horizon: horizon, Width: width, CloseIndex: closeIndex}
}

// Run produces exactly f.Horizon descaled predictions. Step k is inferred on
// the window rolled forward with the scaled outputs of steps 0..k-1; the
// returned Window is the state after the last roll. The input window is not
// modified.
func (f *Forecaster) Run(ctx context.Context, model Model, scaler *MinMaxScaler, window Window) ([]float64, Window, error) {
	if window.Width() != f.Width {
		return nil, window, fmt.Errorf("%w: window has %d features, expected %d", ErrInvalidShape, window.Width(), f.Width)
	}
	if f.CloseIndex < 0 || f.CloseIndex >= f.Width {
		return nil, window, fmt.Errorf("%w: close index %d outside width %d", ErrInvalidShape, f.CloseIndex, f.Width)
	}
	if model == nil || scaler == nil {
		return nil, window, fmt.Errorf("forecaster requires a model and a scaler")
	}

	predictions := make([]float64, 0, f.Horizon)
	current := window
	for step := 0; step < f.Horizon; step++ {
		if err := ctx.Err(); err != nil {
			return nil, current, fmt.Errorf("forecast interrupted at step %d: %w", step, err)
		}

		raw, err := model.Predict(ctx, current)
		if err != nil {
			return nil, current, fmt.Errorf("inference failed at step %d: %w", step, err)
		}

		price, err := scaler.InverseClose(raw, f.CloseIndex)
		if err != nil {
			return nil, current, fmt.Errorf("inverse scaling failed at step %d: %w", step, err)
		}
		if math.IsNaN(price) || math.IsInf(price, 0) {
			return nil, current, fmt.Errorf("non-finite prediction at step %d", step)
		}

		predictions = append(predictions, price)
		current = current.Roll(raw, f.CloseIndex)
	}

	return predictions, current, nil
}
