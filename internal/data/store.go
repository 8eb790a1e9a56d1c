// Package data provides file-backed storage and loading of historical
// candle data for backtest and simulation runs.
package data

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/atlas-desktop/trading-core/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store provides file-backed access to historical kline series, one JSON
// file per (symbol, timeframe) pair plus a metadata index.
type Store struct {
	mu       sync.RWMutex
	logger   *zap.Logger
	dataDir  string
	cache    map[string][]types.Kline
	metadata map[string]*SymbolMetadata
	rng      *rand.Rand
}

// SymbolMetadata records what range of candles a symbol's file holds.
type SymbolMetadata struct {
	Symbol    string    `json:"symbol"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	BarCount  int       `json:"barCount"`
	Timeframe string    `json:"timeframe"`
}

// NewStore opens (creating if absent) a kline store rooted at dataDir.
func NewStore(logger *zap.Logger, dataDir string) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	store := &Store{
		logger:   logger,
		dataDir:  dataDir,
		cache:    make(map[string][]types.Kline),
		metadata: make(map[string]*SymbolMetadata),
		rng:      rand.New(rand.NewSource(1)),
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	if err := store.loadMetadata(); err != nil {
		logger.Warn("failed to load symbol metadata", zap.Error(err))
	}

	return store, nil
}

// LoadKlines loads symbol's candle series at timeframe, filtered to
// [start, end]. A symbol with no file on disk gets a deterministic
// synthetic series instead of an error, so a fresh checkout can run a
// backtest immediately without a separate data-seeding step.
func (s *Store) LoadKlines(ctx context.Context, symbol string, timeframe types.Timeframe, start, end time.Time) ([]types.Kline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := cacheKey(symbol, timeframe)
	if cached, ok := s.cache[key]; ok {
		return filterRange(cached, start, end), nil
	}

	filename := filepath.Join(s.dataDir, fmt.Sprintf("%s_%s.json", symbol, timeframe))
	raw, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			synthetic := s.generateSyntheticSeries(symbol, timeframe, start, end)
			s.cache[key] = synthetic
			return filterRange(synthetic, start, end), nil
		}
		return nil, fmt.Errorf("read kline file: %w", err)
	}

	var bars []types.Kline
	if err := json.Unmarshal(raw, &bars); err != nil {
		return nil, fmt.Errorf("parse kline file: %w", err)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].CloseTime.Before(bars[j].CloseTime) })

	s.cache[key] = bars
	return filterRange(bars, start, end), nil
}

// SaveKlines persists bars to disk and refreshes symbol metadata.
func (s *Store) SaveKlines(symbol string, timeframe types.Timeframe, bars []types.Kline) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filename := filepath.Join(s.dataDir, fmt.Sprintf("%s_%s.json", symbol, timeframe))
	raw, err := json.MarshalIndent(bars, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal klines: %w", err)
	}
	if err := os.WriteFile(filename, raw, 0644); err != nil {
		return fmt.Errorf("write kline file: %w", err)
	}

	s.cache[cacheKey(symbol, timeframe)] = bars
	if len(bars) > 0 {
		s.metadata[symbol] = &SymbolMetadata{
			Symbol:    symbol,
			StartDate: bars[0].OpenTime,
			EndDate:   bars[len(bars)-1].CloseTime,
			BarCount:  len(bars),
			Timeframe: string(timeframe),
		}
	}
	return s.saveMetadata()
}

// GetAvailableSymbols returns every symbol with a metadata entry.
func (s *Store) GetAvailableSymbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	symbols := make([]string, 0, len(s.metadata))
	for sym := range s.metadata {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}

// GetDataRange returns the on-disk candle range recorded for symbol.
func (s *Store) GetDataRange(symbol string) (start, end time.Time, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.metadata[symbol]
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("no data available for symbol %s", symbol)
	}
	return meta.StartDate, meta.EndDate, nil
}

// ClearCache drops every in-memory kline series, forcing the next load to
// re-read (or regenerate) from disk.
func (s *Store) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string][]types.Kline)
}

func cacheKey(symbol string, tf types.Timeframe) string {
	return fmt.Sprintf("%s_%s", symbol, tf)
}

func filterRange(bars []types.Kline, start, end time.Time) []types.Kline {
	var out []types.Kline
	for _, b := range bars {
		if !b.CloseTime.Before(start) && !b.CloseTime.After(end) {
			out = append(out, b)
		}
	}
	return out
}

func timeframeInterval(tf types.Timeframe) time.Duration {
	switch tf {
	case types.TimeframeM1:
		return time.Minute
	case types.TimeframeM3:
		return 3 * time.Minute
	case types.TimeframeM5:
		return 5 * time.Minute
	case types.TimeframeM15:
		return 15 * time.Minute
	case types.TimeframeM30:
		return 30 * time.Minute
	case types.TimeframeH1:
		return time.Hour
	case types.TimeframeH2:
		return 2 * time.Hour
	case types.TimeframeH4:
		return 4 * time.Hour
	case types.TimeframeH6:
		return 6 * time.Hour
	case types.TimeframeH8:
		return 8 * time.Hour
	case types.TimeframeH12:
		return 12 * time.Hour
	case types.TimeframeD1:
		return 24 * time.Hour
	case types.TimeframeD3:
		return 3 * 24 * time.Hour
	case types.TimeframeW1:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// generateSyntheticSeries produces a deterministic random-walk candle
// series, seeded once per Store rather than per call, so repeated loads of
// the same never-seeded symbol within one process stay internally
// consistent even though they are not real market data.
func (s *Store) generateSyntheticSeries(symbol string, tf types.Timeframe, start, end time.Time) []types.Kline {
	interval := timeframeInterval(tf)
	price := syntheticStartingPrice(symbol)

	var bars []types.Kline
	for cursor := start; !cursor.After(end); cursor = cursor.Add(interval) {
		open := price
		change := (s.rng.Float64() - 0.5) * 0.02 * price
		price += change
		close := price

		highBase := open
		if close > highBase {
			highBase = close
		}
		lowBase := open
		if close < lowBase {
			lowBase = close
		}
		high := highBase * (1 + s.rng.Float64()*0.005)
		low := lowBase * (1 - s.rng.Float64()*0.005)
		volume := s.rng.Float64() * 1_000_000

		bars = append(bars, types.Kline{
			Ticker:    symbol,
			Timeframe: tf,
			OpenTime:  cursor,
			CloseTime: cursor.Add(interval),
			Open:      decimal.NewFromFloat(open),
			High:      decimal.NewFromFloat(high),
			Low:       decimal.NewFromFloat(low),
			Close:     decimal.NewFromFloat(close),
			Volume:    decimal.NewFromFloat(volume),
		})
	}
	return bars
}

func syntheticStartingPrice(symbol string) float64 {
	switch symbol {
	case "BTCUSDT":
		return 40000
	case "ETHUSDT":
		return 2000
	case "SOLUSDT":
		return 100
	default:
		return 100
	}
}

func (s *Store) loadMetadata() error {
	filename := filepath.Join(s.dataDir, "metadata.json")
	raw, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var metadata map[string]*SymbolMetadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return err
	}
	s.metadata = metadata
	return nil
}

func (s *Store) saveMetadata() error {
	filename := filepath.Join(s.dataDir, "metadata.json")
	raw, err := json.MarshalIndent(s.metadata, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, raw, 0644)
}
