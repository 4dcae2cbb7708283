package forecast

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

// ErrArtifactUnavailable signals that no usable trained artifact exists for a
// symbol. It is an expected outcome, not a fault.
var ErrArtifactUnavailable = errors.New("model artifact unavailable")

const manifestFile = "manifest.yaml"

// Manifest describes the files that make up one symbol's artifact.
type Manifest struct {
	Model struct {
		Type string `yaml:"type"`
		Path string `yaml:"path"`
		Name string `yaml:"name"`
	} `yaml:"model"`
	Scaler      string `yaml:"scaler"`
	Window      string `yaml:"window"`
	History     string `yaml:"history"`
	CloseIndex  int    `yaml:"close_index"`
	DateColumn  string `yaml:"date_column"`
	PriceColumn string `yaml:"price_column"`
}

func (m *Manifest) applyDefaults() {
	if m.Model.Type == "" {
		m.Model.Type = "linear"
	}
	if m.Model.Path == "" {
		m.Model.Path = "model.json"
	}
	if m.Scaler == "" {
		m.Scaler = "scaler.json"
	}
	if m.Window == "" {
		m.Window = "window.json"
	}
	if m.History == "" {
		m.History = "history.csv"
	}
	if m.DateColumn == "" {
		m.DateColumn = "Date"
	}
	if m.PriceColumn == "" {
		m.PriceColumn = "Close"
	}
}

// Artifact is everything needed to run the real forecaster for one symbol.
// Artifacts are shared between requests and must be treated as read-only.
type Artifact struct {
	Symbol     string
	Model      Model
	Scaler     *MinMaxScaler
	Window     Window
	History    []HistoricalPoint
	CloseIndex int
	LoadedAt   time.Time
}

// ArtifactStore loads per-symbol artifacts from disk and caches them in
// memory. Concurrent loads of the same symbol are coalesced.
type ArtifactStore struct {
	dir     string
	width   int
	remote  ModelServerClient
	breaker Executor
	logger  *logrus.Logger

	mu    sync.RWMutex
	cache map[string]*Artifact
	group singleflight.Group
}

// NewArtifactStore creates a store rooted at dir. remote and breaker are only
// needed for artifacts whose model type is "remote".
func NewArtifactStore(dir string, width int, remote ModelServerClient, breaker Executor, logger *logrus.Logger) *ArtifactStore {
	if width <= 0 {
		width = FeatureWidth
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ArtifactStore{
		dir:     dir,
		width:   width,
		remote:  remote,
		breaker: breaker,
		logger:  logger,
		cache:   make(map[string]*Artifact),
	}
}

// Load returns the artifact for symbol. Any missing or malformed piece yields
// an error wrapping ErrArtifactUnavailable. Failed loads are not cached.
func (s *ArtifactStore) Load(ctx context.Context, symbol string) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	artifact, ok := s.cache[symbol]
	s.mu.RUnlock()
	if ok {
		return artifact, nil
	}

	v, err, _ := s.group.Do(symbol, func() (interface{}, error) {
		a, err := s.loadFromDisk(symbol)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cache[symbol] = a
		s.mu.Unlock()
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Artifact), nil
}

// Invalidate drops cached artifacts; with no arguments the whole cache is cleared.
func (s *ArtifactStore) Invalidate(symbols ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(symbols) == 0 {
		s.cache = make(map[string]*Artifact)
		return
	}
	for _, symbol := range symbols {
		delete(s.cache, symbol)
	}
}

// Cached lists the symbols currently held in memory.
func (s *ArtifactStore) Cached() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.cache))
	for symbol := range s.cache {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

func (s *ArtifactStore) loadFromDisk(symbol string) (*Artifact, error) {
	if symbol == "" || strings.ContainsAny(symbol, `/\.`) {
		return nil, fmt.Errorf("%w: invalid symbol %q", ErrArtifactUnavailable, symbol)
	}
	root := filepath.Join(s.dir, symbol)

	var manifest Manifest
	if err := readYAML(filepath.Join(root, manifestFile), &manifest); err != nil {
		return nil, unavailable(symbol, "manifest", err)
	}
	manifest.applyDefaults()

	var scaler MinMaxScaler
	if err := readJSON(filepath.Join(root, manifest.Scaler), &scaler); err != nil {
		return nil, unavailable(symbol, "scaler", err)
	}
	if err := scaler.Validate(manifest.CloseIndex); err != nil {
		return nil, unavailable(symbol, "scaler", err)
	}
	if manifest.CloseIndex >= s.width {
		return nil, unavailable(symbol, "manifest", fmt.Errorf("close index %d outside window width %d", manifest.CloseIndex, s.width))
	}

	var rawWindow [][]float64
	if err := readJSON(filepath.Join(root, manifest.Window), &rawWindow); err != nil {
		return nil, unavailable(symbol, "window", err)
	}
	window, err := ReshapeWindow(rawWindow, s.width)
	if err != nil {
		return nil, unavailable(symbol, "window", err)
	}

	history, err := readHistory(filepath.Join(root, manifest.History), manifest.DateColumn, manifest.PriceColumn)
	if err != nil {
		return nil, unavailable(symbol, "history", err)
	}

	model, err := s.buildModel(root, symbol, &manifest)
	if err != nil {
		return nil, unavailable(symbol, "model", err)
	}

	s.logger.WithFields(logrus.Fields{
		"symbol":        symbol,
		"model_type":    manifest.Model.Type,
		"window_steps":  window.Len(),
		"history_count": len(history),
	}).Info("Loaded model artifact")

	return &Artifact{
		Symbol:     symbol,
		Model:      model,
		Scaler:     &scaler,
		Window:     window,
		History:    history,
		CloseIndex: manifest.CloseIndex,
		LoadedAt:   time.Now(),
	}, nil
}

func (s *ArtifactStore) buildModel(root, symbol string, manifest *Manifest) (Model, error) {
	switch manifest.Model.Type {
	case "linear":
		var m LinearModel
		if err := readJSON(filepath.Join(root, manifest.Model.Path), &m); err != nil {
			return nil, err
		}
		if len(m.Weights) == 0 {
			return nil, errors.New("linear model has no weights")
		}
		return &m, nil
	case "remote":
		if s.remote == nil {
			return nil, errors.New("remote model requested but no model server is configured")
		}
		name := manifest.Model.Name
		if name == "" {
			name = strings.ToLower(symbol)
		}
		return NewRemoteModel(name, symbol, s.remote, s.breaker), nil
	default:
		return nil, fmt.Errorf("unknown model type %q", manifest.Model.Type)
	}
}

func unavailable(symbol, part string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", ErrArtifactUnavailable, symbol, part, err)
}

func readYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

func readJSON(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

var historyDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
	"2006/01/02",
}

func parseHistoryDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range historyDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return truncateDay(t), true
		}
	}
	return time.Time{}, false
}

// readHistory parses a CSV price history. Rows with an unparseable date or
// price are skipped; a missing price column is an error.
func readHistory(path, dateColumn, priceColumn string) ([]HistoricalPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	dateIdx, priceIdx := -1, -1
	for i, col := range header {
		name := strings.TrimSpace(col)
		if strings.EqualFold(name, dateColumn) {
			dateIdx = i
		}
		if strings.EqualFold(name, priceColumn) {
			priceIdx = i
		}
	}
	if priceIdx < 0 {
		return nil, fmt.Errorf("price column %q not found", priceColumn)
	}

	var points []HistoricalPoint
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if priceIdx >= len(record) {
			continue
		}
		price, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(record[priceIdx]), ",", ""), 64)
		if err != nil || !validPrice(price) {
			continue
		}
		var date time.Time
		if dateIdx >= 0 && dateIdx < len(record) {
			if d, ok := parseHistoryDate(record[dateIdx]); ok {
				date = d
			}
		}
		points = append(points, HistoricalPoint{Date: date, Close: price})
	}

	if len(points) == 0 {
		return nil, errors.New("history has no usable rows")
	}
	return points, nil
}
