package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stocksage/stocksage-go/internal/models"
	"github.com/stocksage/stocksage-go/internal/services"
	"github.com/stocksage/stocksage-go/internal/utils"
)

var categoryPattern = regexp.MustCompile(`^[a-z_]{1,32}$`)

// ContentProvider serves the scraped dashboard documents.
type ContentProvider interface {
	News(ctx context.Context, category string) ([]models.NewsItem, error)
	MarketSummary(ctx context.Context) (*models.MarketSummary, error)
	Sectors(ctx context.Context) (models.Document, error)
	Companies(ctx context.Context) (models.Document, error)
}

// ContentHandler serves the scraped news and market documents.
type ContentHandler struct {
	content  ContentProvider
	interval time.Duration
	upgrader websocket.Upgrader
	logger   *logrus.Logger
}

// NewContentHandler creates a content handler. interval paces the
// market summary stream.
func NewContentHandler(content ContentProvider, interval time.Duration, logger *logrus.Logger) *ContentHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ContentHandler{
		content:  content,
		interval: interval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// News handles GET /api/news?category=.
func (h *ContentHandler) News(c *gin.Context) {
	category := c.Query("category")
	if err := validateCategory(category); err != nil {
		h.writeContentError(c, "news", err)
		return
	}

	doc, err := h.content.News(c.Request.Context(), category)
	if err != nil {
		h.writeContentError(c, "news", err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// MarketSummary handles GET /api/market-summary.
func (h *ContentHandler) MarketSummary(c *gin.Context) {
	summary, err := h.content.MarketSummary(c.Request.Context())
	if err != nil {
		h.writeContentError(c, "market summary", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Sectors handles GET /api/sectors.
func (h *ContentHandler) Sectors(c *gin.Context) {
	doc, err := h.content.Sectors(c.Request.Context())
	if err != nil {
		h.writeContentError(c, "sectors", err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", doc)
}

// Companies handles GET /api/companies.
func (h *ContentHandler) Companies(c *gin.Context) {
	doc, err := h.content.Companies(c.Request.Context())
	if err != nil {
		h.writeContentError(c, "companies", err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", doc)
}

// StreamMarketSummary handles GET /ws/market-summary. The summary is pushed
// on connect and then every interval while it changes.
func (h *ContentHandler) StreamMarketSummary(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Reader: only control frames are expected; any error ends the stream.
	go func() {
		defer cancel()
		_ = conn.SetReadDeadline(time.Now().Add(3 * h.interval))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(3 * h.interval))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last []byte
	push := func() bool {
		summary, err := h.content.MarketSummary(ctx)
		if err != nil {
			h.logger.WithError(err).Debug("Market summary unavailable for stream")
			return conn.WriteMessage(websocket.PingMessage, nil) == nil
		}
		payload, err := json.Marshal(summary)
		if err != nil {
			return false
		}
		if string(payload) == string(last) {
			return conn.WriteMessage(websocket.PingMessage, nil) == nil
		}
		last = payload
		return conn.WriteMessage(websocket.TextMessage, payload) == nil
	}

	if !push() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !push() {
				return
			}
		}
	}
}

func (h *ContentHandler) writeContentError(c *gin.Context, what string, err error) {
	if utils.IsValidationError(err) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if errors.Is(err, services.ErrContentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
		return
	}
	h.logger.WithError(err).Errorf("Failed to load %s", what)
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to load " + what})
}

func validateCategory(category string) error {
	if category == "" || categoryPattern.MatchString(category) {
		return nil
	}
	return utils.NewValidationErrorf("category", "invalid news category %q", category)
}
