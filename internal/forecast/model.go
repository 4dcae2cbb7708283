package forecast

import (
	"context"
	"fmt"
	"math"

	"github.com/stocksage/stocksage-go/pkg/modelserver"
)

// Model maps one feature window to the scaled close value of the next step.
// Implementations are shared across requests and must not mutate their own
// state during Predict.
type Model interface {
	Predict(ctx context.Context, window Window) (float64, error)
}

// LinearModel is a dense single-output model over the flattened window.
type LinearModel struct {
	Weights [][]float64 `json:"weights"`
	Bias    float64     `json:"bias"`
}

// Predict computes sum(w*x) + b.
func (m *LinearModel) Predict(ctx context.Context, window Window) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(m.Weights) != window.Len() {
		return 0, fmt.Errorf("linear model expects %d steps, window has %d", len(m.Weights), window.Len())
	}

	out := m.Bias
	for i, row := range m.Weights {
		if len(row) != window.Width() {
			return 0, fmt.Errorf("linear model expects %d features at step %d, window has %d", len(row), i, window.Width())
		}
		for j, w := range row {
			out += w * window.At(i, j)
		}
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, fmt.Errorf("linear model produced non-finite output")
	}
	return out, nil
}

// ModelServerClient is the subset of the model server client used for inference.
type ModelServerClient interface {
	Predict(ctx context.Context, req *modelserver.PredictRequest) (*modelserver.PredictResponse, error)
}

// Executor guards outbound calls, e.g. with a circuit breaker.
type Executor interface {
	Execute(ctx context.Context, fn func(context.Context) error) error
}

// RemoteModel delegates inference to the model server.
type RemoteModel struct {
	Name    string
	Symbol  string
	client  ModelServerClient
	breaker Executor
}

// NewRemoteModel creates a RemoteModel. breaker may be nil.
func NewRemoteModel(name, symbol string, client ModelServerClient, breaker Executor) *RemoteModel {
	return &RemoteModel{
		Name:    name,
		Symbol:  symbol,
		client:  client,
		breaker: breaker,
	}
}

// Predict sends the window to the model server.
func (m *RemoteModel) Predict(ctx context.Context, window Window) (float64, error) {
	if m.client == nil {
		return 0, fmt.Errorf("model server client not configured")
	}

	req := &modelserver.PredictRequest{
		Model:  m.Name,
		Symbol: m.Symbol,
		Window: window.Rows(),
	}

	var prediction float64
	call := func(ctx context.Context) error {
		resp, err := m.client.Predict(ctx, req)
		if err != nil {
			return err
		}
		prediction = resp.Prediction
		return nil
	}

	var err error
	if m.breaker != nil {
		err = m.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return 0, fmt.Errorf("remote model %s: %w", m.Name, err)
	}
	if math.IsNaN(prediction) || math.IsInf(prediction, 0) {
		return 0, fmt.Errorf("remote model %s returned non-finite output", m.Name)
	}
	return prediction, nil
}
