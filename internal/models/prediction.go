package models

import (
	"github.com/shopspring/decimal"
)

// PredictionResponse is the envelope returned by the prediction endpoint.
// The shape is identical for real and simulated forecasts; provenance is
// carried by IsMock and IsFallback only.
type PredictionResponse struct {
	Success     bool      `json:"success"`
	Symbol      string    `json:"symbol,omitempty"`
	Predictions []float64 `json:"predictions,omitempty"`
	Graph       string    `json:"graph,omitempty"`
	Dates       []string  `json:"dates,omitempty"`
	IsMock      bool      `json:"is_mock"`
	IsFallback  bool      `json:"is_fallback,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// StockReturn summarises the expected 30-day return for one symbol.
type StockReturn struct {
	Symbol         string          `json:"symbol"`
	Sector         string          `json:"sector,omitempty"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	PredictedPrice decimal.Decimal `json:"predicted_price"`
	ExpectedReturn decimal.Decimal `json:"expected_return"`
	SMA20          decimal.Decimal `json:"sma_20"`
	Trend          string          `json:"trend"`
	IsMock         bool            `json:"is_mock"`
}
