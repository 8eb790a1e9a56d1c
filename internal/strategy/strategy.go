// Package strategy defines the Strategy capability-set interface, the
// process-wide registry strategies are looked up by, and a handful of
// built-in strategies. Grounded on the teacher's internal/strategy/strategy.go
// registry/BaseStrategy pattern, generalized from the teacher's narrow
// OnBar/OnTick interface to the capability set SPEC_FULL.md §9 calls for:
// {market-data, multi-timeframe-data, order-filled, position-update,
// lifecycle}.
package strategy

import (
	"context"
	"sync"

	cp "github.com/atlas-desktop/trading-core/internal/candleprocessor"
	"github.com/atlas-desktop/trading-core/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MultiTimeframeConfig re-exports the candle processor's type so strategy
// authors only ever import this package.
type MultiTimeframeConfig = cp.MultiTimeframeConfig

// MarketData re-exports the candle processor's market-data message type.
type MarketData = cp.MarketData

// Strategy is the capability set every strategy implements. A strategy
// that has no use for multi-timeframe data returns nil from
// MultiTimeframeConfig and leaves OnMultiTimeframeData unreachable (the
// candle processor never calls it in that case).
type Strategy interface {
	Name() string
	Initialize(ctx context.Context) error
	SetContext(sc ContextReader)
	MultiTimeframeConfig() *MultiTimeframeConfig
	OnMarketData(data MarketData) []types.Signal
	OnMultiTimeframeData(primary MarketData, secondary map[types.Timeframe][]types.Kline) []types.Signal
	OnOrderFilled(fill types.Execution)
	OnPositionUpdate(pos types.Position)
	HasPosition() bool
	Reset()
}

// ContextReader is the read-only subset of *context.StrategyContext a
// strategy is allowed to see. Strategies hold this via SetContext, set
// once by the engine at startup; the context itself holds no back-pointer
// to any strategy (SPEC_FULL.md §9's cyclic-reference fix).
type ContextReader interface {
	GetKlines(symbol string, tf types.Timeframe) []types.Kline
	GetRouteState(symbol string) (types.RouteState, bool)
	GetGlobalScoreOverall(symbol string) (decimal.Decimal, bool)
}

// Registry is the process-wide strategy lookup table. Strategies register
// themselves by immutable name; lookup returns a fresh owned instance.
type Registry struct {
	logger     *zap.Logger
	mu         sync.RWMutex
	strategies map[string]func(*zap.Logger) Strategy
}

var defaultRegistry = &Registry{strategies: make(map[string]func(*zap.Logger) Strategy)}

// Register adds a strategy factory to the process-wide default registry.
// Built-in strategies call this from an init() in their own file.
func Register(name string, factory func(*zap.Logger) Strategy) {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	defaultRegistry.strategies[name] = factory
}

// NewRegistry returns a new Registry scoped to logger, holding a copy of
// every factory registered in the process-wide default registry at the
// time of the call; factories registered afterwards are not visible
// through it.
func NewRegistry(logger *zap.Logger) *Registry {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	r := &Registry{logger: logger, strategies: make(map[string]func(*zap.Logger) Strategy, len(defaultRegistry.strategies))}
	for name, factory := range defaultRegistry.strategies {
		r.strategies[name] = factory
	}
	return r
}

// Create instantiates a registered strategy by name.
func (r *Registry) Create(name string) (Strategy, bool) {
	r.mu.RLock()
	factory, ok := r.strategies[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return factory(r.logger), true
}

// List returns all registered strategy names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	return names
}

// BaseStrategy provides the lifecycle/context/position plumbing every
// concrete strategy embeds, matching the teacher's BaseStrategy pattern.
type BaseStrategy struct {
	logger      *zap.Logger
	sc          ContextReader
	hasPosition bool
	maxBars     int
	bars        []types.Kline
}

func newBase(logger *zap.Logger, maxBars int) BaseStrategy {
	return BaseStrategy{logger: logger, maxBars: maxBars}
}

func (b *BaseStrategy) SetContext(sc ContextReader) { b.sc = sc }
func (b *BaseStrategy) HasPosition() bool            { return b.hasPosition }
func (b *BaseStrategy) Reset() {
	b.hasPosition = false
	b.bars = nil
}

func (b *BaseStrategy) addBar(k types.Kline) {
	b.bars = append(b.bars, k)
	if b.maxBars > 0 && len(b.bars) > b.maxBars {
		b.bars = b.bars[len(b.bars)-b.maxBars:]
	}
}

func (b *BaseStrategy) OnOrderFilled(types.Execution) {}

func (b *BaseStrategy) OnPositionUpdate(pos types.Position) {
	b.hasPosition = pos.Quantity.IsPositive()
}

func (b *BaseStrategy) MultiTimeframeConfig() *MultiTimeframeConfig { return nil }

func (b *BaseStrategy) OnMultiTimeframeData(MarketData, map[types.Timeframe][]types.Kline) []types.Signal {
	return nil
}
