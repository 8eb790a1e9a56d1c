package candleprocessor

import (
	"context"
	"time"

	"github.com/atlas-desktop/trading-core/internal/indicators"
	"github.com/atlas-desktop/trading-core/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var zeroDecimal = decimal.Zero

// UpdateContext records the candle's time/price, propagates multi-symbol
// kline windows into ctx (with backtest-mode pinning where applicable),
// and — once the primary symbol has enough history — writes its
// structural features, route state, and global score. Exact sequencing
// matches the original's update_context.
func (p *Processor) UpdateContext(
	idx int,
	kline types.Kline,
	historicalWindow []types.Kline,
	ctxWriter ContextWriter,
	primaryTicker string,
	screeningCalc ScreeningCalculator,
) {
	p.currentTime = kline.CloseTime
	p.currentPrices[kline.Ticker] = kline.Close

	p.updateMultiSymbolKlines(ctxWriter, primaryTicker)

	if idx >= MinCandlesForIndicators {
		p.updatePrimaryIndicators(ctxWriter, primaryTicker, historicalWindow)
	}

	if screeningCalc != nil {
		last := ctxWriter.LastAnalyticsSync()
		if screeningCalc.ShouldUpdate(idx, kline.CloseTime, last) {
			windows := make(map[string][]types.Kline)
			for _, sym := range ctxWriter.Symbols() {
				windows[sym] = ctxWriter.GetKlines(sym, types.TimeframeD1)
			}
			if err := screeningCalc.Calculate(context.Background(), "default", windows); err != nil {
				p.logger.Warn("screening calculation failed", zap.Error(err))
			}
		}
	}
}

// updateMultiSymbolKlines handles every registered non-primary symbol:
// filters its daily series to closeTime <= currentTime, and if long enough
// updates the context, pinning RouteState/GlobalScore only in backtest
// mode.
func (p *Processor) updateMultiSymbolKlines(ctxWriter ContextWriter, primaryTicker string) {
	for _, symbol := range ctxWriter.Symbols() {
		if symbol == primaryTicker {
			continue
		}
		daily := ctxWriter.GetKlines(symbol, types.TimeframeD1)
		filtered := filterUpTo(daily, p.currentTime)
		if len(filtered) < MinCandlesForIndicators {
			continue
		}
		ctxWriter.UpdateKlines(symbol, types.TimeframeD1, filtered)

		score := indicators.ComputeGlobalScore(filtered)
		routeState := indicators.ComputeRouteState(score)
		if p.mode == ModeBacktest {
			routeState = types.RouteStateArmed
			score.OverallScore = indicators.BacktestPinnedGlobalScore
		}
		ctxWriter.UpdateRouteState(symbol, routeState)
		ctxWriter.UpdateGlobalScore(symbol, score)
	}
}

// updatePrimaryIndicators computes structural features, route state, and
// global score for the primary ticker and writes the primary's kline
// window, mirroring the original: the intermediate route state is always
// computed, but in backtest mode it (and the score) are overridden before
// being written.
func (p *Processor) updatePrimaryIndicators(ctxWriter ContextWriter, primaryTicker string, historicalWindow []types.Kline) {
	features := indicators.StructuralFeaturesFromCandles(historicalWindow)
	score := indicators.ComputeGlobalScore(historicalWindow)
	routeState := indicators.ComputeRouteState(score)

	if p.mode == ModeBacktest {
		routeState = types.RouteStateArmed
		score.OverallScore = indicators.BacktestPinnedGlobalScore
	}

	ctxWriter.UpdateStructuralFeatures(primaryTicker, features)
	ctxWriter.UpdateRouteState(primaryTicker, routeState)
	ctxWriter.UpdateGlobalScore(primaryTicker, score)
	ctxWriter.UpdateKlines(primaryTicker, types.TimeframeD1, historicalWindow)
}

// GenerateSignals builds market data from the current candle, invokes the
// strategy's single- or multi-timeframe hook for the primary ticker, then
// does the same for every other registered symbol's latest exactly-aligned
// candle, and partitions the combined signals into entry/exit sets.
func (p *Processor) GenerateSignals(
	strategy Strategy,
	kline types.Kline,
	ctxWriter ContextWriter,
	primaryTicker string,
	exchangeName string,
) PartitionedSignals {
	var all []types.Signal

	primaryData := MarketData{Ticker: primaryTicker, Kline: kline}
	if cfg := strategy.MultiTimeframeConfig(); cfg != nil {
		secondary := make(map[types.Timeframe][]types.Kline, len(cfg.Timeframes))
		all2 := ctxWriter.GetAllTimeframes(primaryTicker)
		for _, tf := range cfg.Timeframes {
			secondary[tf] = AlignAtTime(all2[tf], kline.CloseTime)
		}
		all = append(all, strategy.OnMultiTimeframeData(primaryData, secondary)...)
	} else {
		all = append(all, strategy.OnMarketData(primaryData)...)
	}

	for _, symbol := range ctxWriter.Symbols() {
		if symbol == primaryTicker {
			continue
		}
		daily := ctxWriter.GetKlines(symbol, types.TimeframeD1)
		match, ok := findExact(daily, p.currentTime)
		if !ok {
			continue
		}
		all = append(all, strategy.OnMarketData(MarketData{Ticker: symbol, Kline: match})...)
	}

	return partition(all)
}

// SyncPositions reconciles processor positions with the strategy's
// position-update hook. If there are no open positions, it synthesizes a
// single empty-position update for the primary ticker so the strategy's
// has_position() view resets.
func (p *Processor) SyncPositions(
	strategy Strategy,
	positions map[string]ProcessorPosition,
	kline types.Kline,
	exchangeName string,
	primaryTicker string,
) {
	if len(positions) == 0 {
		strategy.OnPositionUpdate(types.Position{
			Symbol:     primaryTicker,
			Side:       types.PositionSideLong,
			Quantity:   zeroDecimal,
			EntryPrice: zeroDecimal,
			CurrentPrice: kline.Close,
		})
		return
	}

	for _, pp := range positions {
		unrealized := types.UnrealizedPnL(pp.EntryPrice, kline.Close, pp.Quantity, pp.Side)
		strategy.OnPositionUpdate(types.Position{
			Symbol:        pp.Symbol,
			Side:          pp.Side,
			Quantity:      pp.Quantity,
			EntryPrice:    pp.EntryPrice,
			CurrentPrice:  kline.Close,
			UnrealizedPnL: unrealized,
			PositionID:    pp.PositionID,
			GroupID:       pp.GroupID,
		})
	}
}

// ProcessCandle is the convenience wrapper: UpdateContext then
// GenerateSignals.
func (p *Processor) ProcessCandle(
	idx int,
	kline types.Kline,
	historicalWindow []types.Kline,
	ctxWriter ContextWriter,
	strategy Strategy,
	primaryTicker, exchangeName string,
	screeningCalc ScreeningCalculator,
) PartitionedSignals {
	p.UpdateContext(idx, kline, historicalWindow, ctxWriter, primaryTicker, screeningCalc)
	return p.GenerateSignals(strategy, kline, ctxWriter, primaryTicker, exchangeName)
}

func partition(signals []types.Signal) PartitionedSignals {
	var out PartitionedSignals
	for _, s := range signals {
		switch s.Type {
		case types.SignalTypeEntry, types.SignalTypeAddToPosition, types.SignalTypeScale:
			out.EntrySignals = append(out.EntrySignals, s)
		case types.SignalTypeExit, types.SignalTypeReducePosition:
			out.ExitSignals = append(out.ExitSignals, s)
		case types.SignalTypeAlert:
			// no-op at the signal processor; excluded from both sets.
		}
	}
	return out
}

func filterUpTo(klines []types.Kline, t time.Time) []types.Kline {
	var out []types.Kline
	for _, k := range klines {
		if !k.CloseTime.After(t) {
			out = append(out, k)
		}
	}
	return out
}

func findExact(klines []types.Kline, t time.Time) (types.Kline, bool) {
	for _, k := range klines {
		if k.CloseTime.Equal(t) {
			return k, true
		}
	}
	return types.Kline{}, false
}
