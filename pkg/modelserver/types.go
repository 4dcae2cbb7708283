package modelserver

import "time"

// HealthResponse represents the health check response from the model server
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Models    []string  `json:"models,omitempty"`
	Version   string    `json:"version,omitempty"`
}

// ErrorResponse represents an error response from the model server
type ErrorResponse struct {
	Error string `json:"error"`
}

// PredictRequest carries one feature window for single-step inference.
type PredictRequest struct {
	Model  string      `json:"model"`
	Symbol string      `json:"symbol"`
	Window [][]float64 `json:"window"`
}

// PredictResponse holds the scaled next-step close value.
type PredictResponse struct {
	Prediction   float64 `json:"prediction"`
	ModelVersion string  `json:"model_version,omitempty"`
}
