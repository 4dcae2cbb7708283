package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stocksage/stocksage-go/internal/middleware"
	"github.com/stocksage/stocksage-go/internal/models"
	"github.com/stocksage/stocksage-go/internal/services"
)

// PredictionProvider produces forecasts for the allow-listed symbols.
type PredictionProvider interface {
	Predict(ctx context.Context, symbol string) (*models.PredictionResponse, error)
	Symbols() []string
	Sectors() map[string][]string
}

// StockReturnsProvider ranks symbols by expected return.
type StockReturnsProvider interface {
	StockReturns(ctx context.Context) ([]models.StockReturn, error)
}

// ForecastHandler serves price forecasts and stock returns.
type ForecastHandler struct {
	predictions PredictionProvider
	returns     StockReturnsProvider
	logger      *logrus.Logger
}

// NewForecastHandler creates a forecast handler.
func NewForecastHandler(predictions PredictionProvider, returns StockReturnsProvider, logger *logrus.Logger) *ForecastHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ForecastHandler{
		predictions: predictions,
		returns:     returns,
		logger:      logger,
	}
}

// Predict handles GET /predict/:symbol.
// 200 on success (real or simulated), 400 for an unsupported symbol,
// 500 when every strategy failed.
func (h *ForecastHandler) Predict(c *gin.Context) {
	symbol := c.Param("symbol")
	middleware.AddSpanAttribute(c, "forecast.symbol", symbol)

	resp, err := h.predictions.Predict(c.Request.Context(), symbol)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrUnsupportedSymbol) {
			status = http.StatusBadRequest
		} else {
			middleware.RecordError(c, err, "prediction failed")
			h.logger.WithError(err).WithField("symbol", symbol).Error("Prediction failed")
		}
		if resp == nil {
			resp = &models.PredictionResponse{Success: false, Error: err.Error()}
		}
		c.JSON(status, resp)
		return
	}

	middleware.AddSpanAttribute(c, "forecast.is_mock", resp.IsMock)
	c.JSON(http.StatusOK, resp)
}

// StockReturns handles GET /api/stock-returns.
func (h *ForecastHandler) StockReturns(c *gin.Context) {
	returns, err := h.returns.StockReturns(c.Request.Context())
	if err != nil {
		middleware.RecordError(c, err, "stock returns failed")
		h.logger.WithError(err).Error("Failed to compute stock returns")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to compute stock returns"})
		return
	}
	c.JSON(http.StatusOK, returns)
}

// Symbols handles GET /api/symbols.
func (h *ForecastHandler) Symbols(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"symbols": h.predictions.Symbols(),
		"sectors": h.predictions.Sectors(),
	})
}
