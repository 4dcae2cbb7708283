package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stocksage/stocksage-go/internal/models"
	"github.com/stocksage/stocksage-go/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubContent struct {
	mu        sync.Mutex
	news      []models.NewsCategory
	summary   *models.MarketSummary
	sectors   models.Document
	companies models.Document
	err       error
	lastCat   string
}

func (s *stubContent) News(_ context.Context, category string) ([]models.NewsItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCat = category
	if s.err != nil {
		return nil, s.err
	}
	items := []models.NewsItem{}
	for _, c := range s.news {
		if category == "" || category == services.NewsCategoryAll || c.Name == category {
			items = append(items, c.Items...)
		}
	}
	return items, nil
}

func (s *stubContent) MarketSummary(context.Context) (*models.MarketSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.summary, nil
}

func (s *stubContent) Sectors(context.Context) (models.Document, error) {
	return s.sectors, s.err
}

func (s *stubContent) Companies(context.Context) (models.Document, error) {
	return s.companies, s.err
}

func (s *stubContent) setSummary(summary *models.MarketSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = summary
}

func newStubContent() *stubContent {
	return &stubContent{
		news: []models.NewsCategory{
			{Name: "company", Items: []models.NewsItem{models.NewsItem(`{"title":"NEPSE gains","url":"https://example.com/a"}`)}},
			{Name: "market", Items: []models.NewsItem{models.NewsItem(`{"title":"Turnover up","url":"https://example.com/b","date":"2024-12-01"}`)}},
		},
		summary:   &models.MarketSummary{Heading: "Market Summary", Summary: map[string]string{"Turnover": "1"}},
		sectors:   models.Document(`{"hydropower":["API"]}`),
		companies: models.Document(`[{"symbol":"SCB"}]`),
	}
}

func contentRouter(h *ContentHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/news", h.News)
	r.GET("/api/market-summary", h.MarketSummary)
	r.GET("/api/sectors", h.Sectors)
	r.GET("/api/companies", h.Companies)
	r.GET("/ws/market-summary", h.StreamMarketSummary)
	return r
}

func TestContentHandler_News(t *testing.T) {
	content := newStubContent()
	r := contentRouter(NewContentHandler(content, time.Second, nil))

	t.Run("all categories", func(t *testing.T) {
		w := serve(r, http.MethodGet, "/api/news?category=all")

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[
			{"title":"NEPSE gains","url":"https://example.com/a"},
			{"title":"Turnover up","url":"https://example.com/b","date":"2024-12-01"}
		]`, w.Body.String())
	})

	t.Run("single category", func(t *testing.T) {
		w := serve(r, http.MethodGet, "/api/news?category=market")

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[{"title":"Turnover up","url":"https://example.com/b","date":"2024-12-01"}]`, w.Body.String())
		assert.Equal(t, "market", content.lastCat)
	})

	t.Run("unknown category", func(t *testing.T) {
		w := serve(r, http.MethodGet, "/api/news?category=sports")

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, w.Body.String())
	})

	t.Run("missing news file", func(t *testing.T) {
		missing := newStubContent()
		missing.err = fmt.Errorf("%w: news_links.json", services.ErrContentNotFound)
		w := serve(contentRouter(NewContentHandler(missing, time.Second, nil)), http.MethodGet, "/api/news")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid category", func(t *testing.T) {
		w := serve(r, http.MethodGet, "/api/news?category=DROP%20TABLE")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeBody(t, w)["error"], "invalid news category")
	})
}

func TestContentHandler_Documents(t *testing.T) {
	r := contentRouter(NewContentHandler(newStubContent(), time.Second, nil))

	w := serve(r, http.MethodGet, "/api/market-summary")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"heading":"Market Summary","summary":{"Turnover":"1"}}`, w.Body.String())

	w = serve(r, http.MethodGet, "/api/sectors")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "application/json"))
	assert.JSONEq(t, `{"hydropower":["API"]}`, w.Body.String())

	w = serve(r, http.MethodGet, "/api/companies")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"symbol":"SCB"}]`, w.Body.String())
}

func TestContentHandler_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "missing document", err: fmt.Errorf("%w: companies.json", services.ErrContentNotFound), code: http.StatusNotFound},
		{name: "broken document", err: errors.New("invalid JSON in companies.json"), code: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := newStubContent()
			content.err = tt.err
			r := contentRouter(NewContentHandler(content, time.Second, nil))

			for _, path := range []string{"/api/companies", "/api/sectors", "/api/market-summary"} {
				w := serve(r, http.MethodGet, path)
				assert.Equal(t, tt.code, w.Code, path)
				assert.Equal(t, false, decodeBody(t, w)["success"], path)
			}
		})
	}
}

func TestContentHandler_StreamMarketSummary(t *testing.T) {
	content := newStubContent()
	server := httptest.NewServer(contentRouter(NewContentHandler(content, 50*time.Millisecond, nil)))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/market-summary"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first models.MarketSummary
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "Market Summary", first.Heading)

	// Unchanged summaries are not re-sent; the next data frame reflects the update.
	content.setSummary(&models.MarketSummary{Heading: "Closing Summary"})
	var next models.MarketSummary
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, "Closing Summary", next.Heading)
}

func TestValidateCategory(t *testing.T) {
	assert.NoError(t, validateCategory(""))
	assert.NoError(t, validateCategory("corporate_news"))
	assert.Error(t, validateCategory("Market"))
	assert.Error(t, validateCategory(strings.Repeat("a", 33)))
}
