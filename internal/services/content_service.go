package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/stocksage/stocksage-go/internal/config"
	"github.com/stocksage/stocksage-go/internal/models"
)

// ErrContentNotFound means a content document or news category does not exist.
var ErrContentNotFound = errors.New("content not found")

// Content document names, also used as cache keys.
const (
	DocumentNews          = "news"
	DocumentMarketSummary = "market_summary"
	DocumentSectors       = "sectors"
	DocumentCompanies     = "companies"
)

// ContentCache is the cache the content service reads through.
type ContentCache interface {
	Get(ctx context.Context, name string) (json.RawMessage, bool)
	Set(ctx context.Context, name string, doc json.RawMessage) error
}

// CacheRecorder receives per-document hit and miss events.
type CacheRecorder interface {
	RecordHit(category string)
	RecordMiss(category string)
}

// ContentService serves the scraped JSON documents the dashboard shows
// next to the forecasts.
type ContentService struct {
	files           map[string]string
	cache           ContentCache
	analytics       CacheRecorder
	fallbackSectors map[string][]string
	logger          *logrus.Logger
}

// NewContentService creates a content service. cache may be nil.
func NewContentService(cfg config.ContentConfig, sectors map[string][]string, cache ContentCache, logger *logrus.Logger) *ContentService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ContentService{
		files: map[string]string{
			DocumentNews:          cfg.NewsFile,
			DocumentMarketSummary: cfg.MarketSummaryFile,
			DocumentSectors:       cfg.SectorsFile,
			DocumentCompanies:     cfg.CompaniesFile,
		},
		cache:           cache,
		fallbackSectors: sectors,
		logger:          logger,
	}
}

// WithAnalytics records cache hits and misses on recorder.
func (s *ContentService) WithAnalytics(recorder CacheRecorder) *ContentService {
	s.analytics = recorder
	return s
}

// NewsCategoryAll selects every news category.
const NewsCategoryAll = "all"

// News returns the headlines of category as one list. An empty category or
// "all" concatenates every category in file order; an unknown category
// yields an empty list.
func (s *ContentService) News(ctx context.Context, category string) ([]models.NewsItem, error) {
	raw, err := s.document(ctx, DocumentNews)
	if err != nil {
		return nil, err
	}

	categories, err := decodeNews(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode news: %w", err)
	}

	items := make([]models.NewsItem, 0)
	for _, c := range categories {
		if category == "" || category == NewsCategoryAll || c.Name == category {
			items = append(items, c.Items...)
		}
	}
	return items, nil
}

// decodeNews walks the top-level object by token so categories keep the
// order the scraper wrote them in.
func decodeNews(raw json.RawMessage) ([]models.NewsCategory, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("news document is not an object")
	}

	var categories []models.NewsCategory
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var items []models.NewsItem
		if err := dec.Decode(&items); err != nil {
			return nil, fmt.Errorf("category %q: %w", name, err)
		}
		categories = append(categories, models.NewsCategory{Name: name, Items: items})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return categories, nil
}

// MarketSummary returns the latest market summary table.
func (s *ContentService) MarketSummary(ctx context.Context) (*models.MarketSummary, error) {
	raw, err := s.document(ctx, DocumentMarketSummary)
	if err != nil {
		return nil, err
	}

	var summary models.MarketSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode market summary: %w", err)
	}
	return &summary, nil
}

// Sectors returns the sectors document, falling back to the configured
// sector map when no file is present.
func (s *ContentService) Sectors(ctx context.Context) (models.Document, error) {
	raw, err := s.document(ctx, DocumentSectors)
	if errors.Is(err, ErrContentNotFound) && len(s.fallbackSectors) > 0 {
		return json.Marshal(s.fallbackSectors)
	}
	return raw, err
}

// Companies returns the companies document as-is.
func (s *ContentService) Companies(ctx context.Context) (models.Document, error) {
	return s.document(ctx, DocumentCompanies)
}

// Refresh re-reads every document from disk into the cache. Missing files
// are skipped; the first other error is returned after all are tried.
func (s *ContentService) Refresh(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}

	var firstErr error
	refreshed := 0
	for name := range s.files {
		raw, err := s.readFile(name)
		if err != nil {
			if !errors.Is(err, ErrContentNotFound) && firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := s.cache.Set(ctx, name, raw); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		refreshed++
	}

	s.logger.WithField("documents", refreshed).Debug("Content cache refreshed")
	return firstErr
}

func (s *ContentService) document(ctx context.Context, name string) (json.RawMessage, error) {
	if s.cache != nil {
		if raw, ok := s.cache.Get(ctx, name); ok {
			if s.analytics != nil {
				s.analytics.RecordHit(name)
			}
			return raw, nil
		}
		if s.analytics != nil {
			s.analytics.RecordMiss(name)
		}
	}

	raw, err := s.readFile(name)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, name, raw); err != nil {
			s.logger.WithError(err).WithField("document", name).Warn("Failed to cache content document")
		}
	}
	return raw, nil
}

func (s *ContentService) readFile(name string) (json.RawMessage, error) {
	path := s.files[name]
	if path == "" {
		return nil, fmt.Errorf("%w: %s has no source file", ErrContentNotFound, name)
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrContentNotFound, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("invalid JSON in %s", path)
	}
	return data, nil
}
