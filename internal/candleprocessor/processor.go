// Package candleprocessor implements the unified per-candle procedure
// shared by backtest, simulation, and live engines: update_context ->
// generate_signals -> sync_positions. Grounded directly on
// original_source/crates/trader-analytics/src/backtest/candle_processor.rs,
// adapted from Rust ownership/trait-object idioms to Go interfaces and
// explicit Mode-gated backtest pinning (SPEC_FULL.md §9 Open Question
// resolution).
package candleprocessor

import (
	"context"
	"time"

	"github.com/atlas-desktop/trading-core/internal/indicators"
	"github.com/atlas-desktop/trading-core/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MinCandlesForIndicators is the minimum number of bars a symbol's series
// must hold before structural features, route state, and global score are
// computed for it. Exact port of the original's MIN_CANDLES_FOR_INDICATORS.
const MinCandlesForIndicators = 40

// Mode selects which regime the processor is running under. Only Backtest
// mode pins RouteState to Armed and GlobalScore to 80; Simulation and Live
// always write the real computed values. This is the fix for the spec's
// flagged concern that the pin must not leak outside backtest validation.
type Mode int

const (
	ModeBacktest Mode = iota
	ModeSimulation
	ModeLive
)

// ContextWriter is the subset of *context.StrategyContext the processor
// needs. Declared locally so this package does not import internal/context
// directly, keeping the dependency direction candleprocessor -> context
// explicit.
type ContextWriter interface {
	RegisterSymbols(symbols []string)
	Symbols() []string
	UpdateKlines(symbol string, tf types.Timeframe, seq []types.Kline)
	GetKlines(symbol string, tf types.Timeframe) []types.Kline
	GetAllTimeframes(symbol string) map[types.Timeframe][]types.Kline
	UpdateStructuralFeatures(symbol string, f indicators.StructuralFeatures)
	UpdateRouteState(symbol string, state types.RouteState)
	UpdateGlobalScore(symbol string, score indicators.GlobalScore)
	LastAnalyticsSync() time.Time
}

// Strategy is the subset of internal/strategy.Strategy the processor
// invokes. Declared locally to avoid importing internal/strategy, which
// itself must be free to depend on types only plus context injection.
type Strategy interface {
	MultiTimeframeConfig() *MultiTimeframeConfig
	OnMarketData(data MarketData) []types.Signal
	OnMultiTimeframeData(primary MarketData, secondary map[types.Timeframe][]types.Kline) []types.Signal
	OnPositionUpdate(pos types.Position)
}

// MultiTimeframeConfig declares which secondary timeframes a strategy
// wants aligned and handed to OnMultiTimeframeData.
type MultiTimeframeConfig struct {
	Timeframes []types.Timeframe
}

// MarketData is the message built from a single kline and passed to a
// strategy's market-data hooks.
type MarketData struct {
	Ticker string
	Kline  types.Kline
}

// ScreeningCalculator decides whether a screening refresh is due for this
// candle and, if so, computes it. Matches the original's optional
// screening_calculator parameter to update_context.
type ScreeningCalculator interface {
	ShouldUpdate(idx int, closeTime time.Time, lastUpdate time.Time) bool
	Calculate(ctx context.Context, preset string, windows map[string][]types.Kline) error
}

// ProcessorPosition is the minimal position shape SyncPositions needs.
type ProcessorPosition struct {
	Symbol     string
	Side       types.PositionSide
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	PositionID *string
	GroupID    *string
}

// PartitionedSignals holds the entry/exit partition produced by
// GenerateSignals. Entries are {Entry, AddToPosition, Scale}; exits are
// {Exit, ReducePosition}. Alert signals are excluded from both, since they
// are a no-op at the signal processor and carrying them through either
// bucket only to be silently dropped later is unnecessary plumbing (a
// deliberate, documented divergence from the original's catch-all
// entry/exit partition — see DESIGN.md).
type PartitionedSignals struct {
	EntrySignals []types.Signal
	ExitSignals  []types.Signal
}

// TotalCount returns the combined number of partitioned signals.
func (p PartitionedSignals) TotalCount() int {
	return len(p.EntrySignals) + len(p.ExitSignals)
}

// Processor executes the per-candle pipeline for one primary ticker.
type Processor struct {
	logger        *zap.Logger
	mode          Mode
	currentTime   time.Time
	currentPrices map[string]decimal.Decimal
}

// New builds a Processor running in the given mode.
func New(logger *zap.Logger, mode Mode) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		logger:        logger,
		mode:          mode,
		currentPrices: make(map[string]decimal.Decimal),
	}
}
