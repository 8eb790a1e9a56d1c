package strategy

import (
	"context"

	"github.com/atlas-desktop/trading-core/internal/indicators"
	"github.com/atlas-desktop/trading-core/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func init() {
	Register("momentum", func(l *zap.Logger) Strategy { return NewMomentumStrategy(l) })
	Register("mean_reversion", func(l *zap.Logger) Strategy { return NewMeanReversionStrategy(l) })
	Register("breakout", func(l *zap.Logger) Strategy { return NewBreakoutStrategy(l) })
}

func newSignal(strategyID, ticker string, side types.OrderSide, sigType types.SignalType, strength float64, at types.Kline) types.Signal {
	return types.Signal{
		ID:         uuid.NewString(),
		StrategyID: strategyID,
		Ticker:     ticker,
		Side:       side,
		Type:       sigType,
		Strength:   strength,
		Timestamp:  at.CloseTime,
	}
}

// MomentumStrategy emits Entry/Exit on moving-average crossover, the
// simplest strategy in the teacher's built-in set, generalized to the new
// Signal shape.
type MomentumStrategy struct {
	BaseStrategy
	fastPeriod, slowPeriod int
}

func NewMomentumStrategy(logger *zap.Logger) *MomentumStrategy {
	return &MomentumStrategy{BaseStrategy: newBase(logger, 200), fastPeriod: 10, slowPeriod: 30}
}

func (s *MomentumStrategy) Name() string                  { return "momentum" }
func (s *MomentumStrategy) Initialize(context.Context) error { return nil }

func (s *MomentumStrategy) OnMarketData(data MarketData) []types.Signal {
	s.addBar(data.Kline)
	if len(s.bars) < s.slowPeriod {
		return nil
	}
	fast := indicators.EMA(s.bars, s.fastPeriod)
	slow := indicators.EMA(s.bars, s.slowPeriod)

	if fast.GreaterThan(slow) && !s.HasPosition() {
		return []types.Signal{newSignal(s.Name(), data.Ticker, types.OrderSideBuy, types.SignalTypeEntry, crossoverStrength(fast, slow), data.Kline)}
	}
	if fast.LessThan(slow) && s.HasPosition() {
		return []types.Signal{newSignal(s.Name(), data.Ticker, types.OrderSideSell, types.SignalTypeExit, 1.0, data.Kline)}
	}
	return nil
}

func crossoverStrength(fast, slow decimal.Decimal) float64 {
	if slow.IsZero() {
		return 0.5
	}
	spread, _ := fast.Sub(slow).Div(slow).Abs().Float64()
	if spread > 1 {
		spread = 1
	}
	if spread < 0.2 {
		spread = 0.2
	}
	return spread
}

// MeanReversionStrategy enters on a close beyond the lower Bollinger band
// and exits on reversion to the midline, matching the teacher's
// MeanReversionStrategy but computed via go-talib's BBands instead of a
// hand-rolled Newton's-method stddev (still used elsewhere in
// internal/indicators for the non-talib StdDev path).
type MeanReversionStrategy struct {
	BaseStrategy
	period int
	stdDev float64
}

func NewMeanReversionStrategy(logger *zap.Logger) *MeanReversionStrategy {
	return &MeanReversionStrategy{BaseStrategy: newBase(logger, 200), period: 20, stdDev: 2.0}
}

func (s *MeanReversionStrategy) Name() string                    { return "mean_reversion" }
func (s *MeanReversionStrategy) Initialize(context.Context) error { return nil }

func (s *MeanReversionStrategy) OnMarketData(data MarketData) []types.Signal {
	s.addBar(data.Kline)
	if len(s.bars) < s.period {
		return nil
	}
	upper, middle, lower := indicators.BollingerBands(s.bars, s.period, s.stdDev)
	close := data.Kline.Close

	if close.LessThan(lower) && !s.HasPosition() {
		return []types.Signal{newSignal(s.Name(), data.Ticker, types.OrderSideBuy, types.SignalTypeEntry, 0.6, data.Kline)}
	}
	if close.GreaterThanOrEqual(middle) && s.HasPosition() {
		return []types.Signal{newSignal(s.Name(), data.Ticker, types.OrderSideSell, types.SignalTypeExit, 1.0, data.Kline)}
	}
	_ = upper
	return nil
}

// BreakoutStrategy enters long on a new N-bar high and exits on a new
// N-bar low, matching the teacher's BreakoutStrategy shape.
type BreakoutStrategy struct {
	BaseStrategy
	lookback int
}

func NewBreakoutStrategy(logger *zap.Logger) *BreakoutStrategy {
	return &BreakoutStrategy{BaseStrategy: newBase(logger, 200), lookback: 20}
}

func (s *BreakoutStrategy) Name() string                    { return "breakout" }
func (s *BreakoutStrategy) Initialize(context.Context) error { return nil }

func (s *BreakoutStrategy) OnMarketData(data MarketData) []types.Signal {
	s.addBar(data.Kline)
	if len(s.bars) < s.lookback+1 {
		return nil
	}
	window := s.bars[len(s.bars)-s.lookback-1 : len(s.bars)-1]
	highest := window[0].High
	lowest := window[0].Low
	for _, k := range window {
		if k.High.GreaterThan(highest) {
			highest = k.High
		}
		if k.Low.LessThan(lowest) {
			lowest = k.Low
		}
	}

	close := data.Kline.Close
	if close.GreaterThan(highest) && !s.HasPosition() {
		return []types.Signal{newSignal(s.Name(), data.Ticker, types.OrderSideBuy, types.SignalTypeEntry, 0.7, data.Kline)}
	}
	if close.LessThan(lowest) && s.HasPosition() {
		return []types.Signal{newSignal(s.Name(), data.Ticker, types.OrderSideSell, types.SignalTypeExit, 1.0, data.Kline)}
	}
	return nil
}

