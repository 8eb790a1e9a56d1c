// Package context holds the StrategyContext: the shared, read-mostly state
// hub a candle processor writes to once per candle and strategies read
// from many times per candle. It is grounded on the teacher's
// internal/data/store.go cache-with-RWMutex pattern, generalized from a
// flat symbol cache into the nested symbol -> timeframe -> kline-sequence
// shape the candle processor requires.
package context

import (
	"sort"
	"sync"
	"time"

	"github.com/atlas-desktop/trading-core/internal/indicators"
	"github.com/atlas-desktop/trading-core/internal/screening"
	"github.com/atlas-desktop/trading-core/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StrategyContext is the single source of truth for derived per-symbol
// state used by strategies and the candle processor. A single writer
// (the candle processor, or the screening scheduler) funnels mutations
// through its methods; many readers take RLock.
type StrategyContext struct {
	logger *zap.Logger

	mu                sync.RWMutex
	symbols           []string
	klinesByTimeframe map[string]map[types.Timeframe][]types.Kline
	structuralFeatures map[string]indicators.StructuralFeatures
	routeStates       map[string]types.RouteState
	globalScores      map[string]indicators.GlobalScore
	screeningResults  map[string]screening.Snapshot
	lastAnalyticsSync time.Time
}

// New creates an empty StrategyContext.
func New(logger *zap.Logger) *StrategyContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StrategyContext{
		logger:             logger,
		klinesByTimeframe:  make(map[string]map[types.Timeframe][]types.Kline),
		structuralFeatures: make(map[string]indicators.StructuralFeatures),
		routeStates:        make(map[string]types.RouteState),
		globalScores:       make(map[string]indicators.GlobalScore),
		screeningResults:   make(map[string]screening.Snapshot),
	}
}

// RegisterSymbols pre-allocates per-symbol maps so that later lookups never
// have to branch on "symbol seen before" and so iteration order (via the
// separately retained slice) is stable across a run.
func (c *StrategyContext) RegisterSymbols(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sym := range symbols {
		if _, ok := c.klinesByTimeframe[sym]; ok {
			continue
		}
		c.symbols = append(c.symbols, sym)
		c.klinesByTimeframe[sym] = make(map[types.Timeframe][]types.Kline)
	}
}

// Symbols returns the registered symbols in registration order.
func (c *StrategyContext) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.symbols))
	copy(out, c.symbols)
	return out
}

// UpdateKlines replaces the stored sequence for (symbol, tf). The sequence
// must already be sorted by OpenTime ascending; a defensive sort runs only
// if it is not, since the caller (candle processor) typically hands in an
// already-filtered, already-ordered window and the common case should stay
// O(n) with no extra comparisons.
func (c *StrategyContext) UpdateKlines(symbol string, tf types.Timeframe, seq []types.Kline) {
	ordered := seq
	if !sort.SliceIsSorted(seq, func(i, j int) bool { return seq[i].OpenTime.Before(seq[j].OpenTime) }) {
		ordered = make([]types.Kline, len(seq))
		copy(ordered, seq)
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].OpenTime.Before(ordered[j].OpenTime) })
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.klinesByTimeframe[symbol]; !ok {
		c.klinesByTimeframe[symbol] = make(map[types.Timeframe][]types.Kline)
		c.symbols = append(c.symbols, symbol)
	}
	c.klinesByTimeframe[symbol][tf] = ordered
}

// GetKlines returns a defensive copy of the stored sequence for (symbol, tf).
// A copy is returned, not the backing slice, so that a reader cannot
// observe a later writer's in-place mutation of the same backing array.
func (c *StrategyContext) GetKlines(symbol string, tf types.Timeframe) []types.Kline {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seq := c.klinesByTimeframe[symbol][tf]
	if len(seq) == 0 {
		return nil
	}
	out := make([]types.Kline, len(seq))
	copy(out, seq)
	return out
}

// GetAllTimeframes returns a defensive copy of every timeframe series held
// for symbol, keyed by timeframe.
func (c *StrategyContext) GetAllTimeframes(symbol string) map[types.Timeframe][]types.Kline {
	c.mu.RLock()
	defer c.mu.RUnlock()
	src := c.klinesByTimeframe[symbol]
	out := make(map[types.Timeframe][]types.Kline, len(src))
	for tf, seq := range src {
		cp := make([]types.Kline, len(seq))
		copy(cp, seq)
		out[tf] = cp
	}
	return out
}

// UpdateStructuralFeatures writes the structural feature bundle for symbol.
func (c *StrategyContext) UpdateStructuralFeatures(symbol string, f indicators.StructuralFeatures) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.structuralFeatures[symbol] = f
}

// GetStructuralFeatures reads the structural feature bundle for symbol.
func (c *StrategyContext) GetStructuralFeatures(symbol string) (indicators.StructuralFeatures, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.structuralFeatures[symbol]
	return f, ok
}

// UpdateRouteState writes the route state for symbol.
func (c *StrategyContext) UpdateRouteState(symbol string, state types.RouteState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routeStates[symbol] = state
}

// GetRouteState reads the route state for symbol.
func (c *StrategyContext) GetRouteState(symbol string) (types.RouteState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.routeStates[symbol]
	return s, ok
}

// UpdateGlobalScore writes the global score bundle for symbol.
func (c *StrategyContext) UpdateGlobalScore(symbol string, score indicators.GlobalScore) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.globalScores[symbol] = score
}

// GetGlobalScore reads the global score bundle for symbol.
func (c *StrategyContext) GetGlobalScore(symbol string) (indicators.GlobalScore, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.globalScores[symbol]
	return s, ok
}

// GetGlobalScoreOverall reads just the overall composite score for symbol,
// the subset of GetGlobalScore strategies consume through the
// strategy.ContextReader interface (which must not import internal/indicators).
func (c *StrategyContext) GetGlobalScoreOverall(symbol string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.globalScores[symbol]
	if !ok {
		return decimal.Zero, false
	}
	return s.OverallScore, true
}

// UpdateScreening upserts the screening snapshot for preset and advances
// lastAnalyticsSync to the snapshot's ComputedAt.
func (c *StrategyContext) UpdateScreening(preset string, result screening.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.screeningResults[preset] = result
	if result.ComputedAt.After(c.lastAnalyticsSync) {
		c.lastAnalyticsSync = result.ComputedAt
	}
}

// GetScreening reads the screening snapshot for preset.
func (c *StrategyContext) GetScreening(preset string) (screening.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.screeningResults[preset]
	return s, ok
}

// LastAnalyticsSync returns the timestamp of the most recent screening
// update observed by this context.
func (c *StrategyContext) LastAnalyticsSync() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastAnalyticsSync
}
