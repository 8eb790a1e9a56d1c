package engine

import (
	"context"
	"time"

	"github.com/atlas-desktop/trading-core/internal/notify"
	"github.com/atlas-desktop/trading-core/internal/signalprocessor"
	"github.com/atlas-desktop/trading-core/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RunBacktest drives the pipeline once per candle in candles, which must
// already be sorted ascending by CloseTime for the primary ticker. Each
// candle gets its own CandleStepTimeout deadline; a candle that exceeds it
// or errors mid-pipeline is abandoned (logged, counted, skipped) rather
// than corrupting the run — a later candle's context updates are
// unaffected by an earlier candle's failure.
func (d *Driver) RunBacktest(ctx context.Context, candles []types.Kline) (Result, error) {
	var result Result

	for idx, kline := range candles {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		stepCtx, cancel := context.WithTimeout(ctx, CandleStepTimeout)
		err := d.processCandle(stepCtx, idx, kline, candles[:idx+1], &result)
		cancel()

		if err != nil {
			result.CandlesAbandoned++
			d.logger.Error("candle abandoned",
				zap.Int("idx", idx),
				zap.String("ticker", kline.Ticker),
				zap.Time("closeTime", kline.CloseTime),
				zap.Error(err),
			)
			d.notifyEvent(notify.Event{Kind: notify.EventSystemError, Priority: notify.PriorityHigh, Payload: err.Error()})
			continue
		}
		result.CandlesProcessed++
	}

	return result, nil
}

// processCandle runs UpdateContext -> GenerateSignals -> exit execution ->
// entry execution -> bracket check -> SyncPositions for one candle,
// bounded by stepCtx's deadline.
func (d *Driver) processCandle(stepCtx context.Context, idx int, kline types.Kline, window []types.Kline, result *Result) error {
	d.processor.UpdateContext(idx, kline, window, d.ctxWriter, d.primaryTicker, d.screening)

	partitioned := d.processor.GenerateSignals(d.strategy, kline, d.ctxWriter, d.primaryTicker, d.exchangeName)

	// Exit signals execute before entry signals within one candle, so an
	// exit freeing capital or a position slot is visible to that candle's
	// entries.
	for _, sig := range partitioned.ExitSignals {
		if err := stepCtx.Err(); err != nil {
			return err
		}
		if err := d.executeSignal(stepCtx, sig, kline.Close, kline.CloseTime, result); err != nil {
			return err
		}
	}
	for _, sig := range partitioned.EntrySignals {
		if err := stepCtx.Err(); err != nil {
			return err
		}
		if err := d.executeSignal(stepCtx, sig, kline.Close, kline.CloseTime, result); err != nil {
			return err
		}
	}

	prices := map[string]decimal.Decimal{d.primaryTicker: kline.Close}
	if err := d.handleBracketTriggers(stepCtx, prices, kline.CloseTime, result); err != nil {
		return err
	}

	positions := d.openPositions()
	d.processor.SyncPositions(d.strategy, currentPositions(positions), kline, d.exchangeName, d.primaryTicker)

	return nil
}

func (d *Driver) executeSignal(ctx context.Context, sig types.Signal, price decimal.Decimal, ts time.Time, result *Result) error {
	trade, err := d.signals.ProcessSignal(ctx, sig, price, ts)
	if err != nil {
		// A signal the processor itself rejects (short disallowed, max
		// positions, a stale exit with nothing to reduce) is reported and
		// skipped; it does not abandon the whole candle.
		d.logger.Warn("signal rejected", zap.String("ticker", sig.Ticker), zap.String("type", string(sig.Type)), zap.Error(err))
		return nil
	}
	if trade != nil {
		result.Trades = append(result.Trades, *trade)
		d.notifyEvent(notify.Event{Kind: notify.EventOrderFilled, Priority: notify.PriorityNormal, Payload: *trade})
	}
	return nil
}

func (d *Driver) handleBracketTriggers(ctx context.Context, prices map[string]decimal.Decimal, ts time.Time, result *Result) error {
	triggers := d.signals.CheckBracketTriggers(prices)
	if len(triggers) == 0 {
		return nil
	}

	positions := d.openPositions()
	for _, trig := range triggers {
		pos, ok := positions[trig.PositionKey]
		if !ok {
			continue
		}
		side := types.OrderSideSell
		if pos.Side == types.PositionSideShort {
			side = types.OrderSideBuy
		}
		sig := types.Signal{
			Ticker:     pos.Symbol,
			Side:       side,
			Type:       types.SignalTypeExit,
			Strength:   1,
			PositionID: pos.PositionID,
			Metadata:   map[string]any{"reason": trig.Reason},
		}
		if err := d.executeSignal(ctx, sig, prices[pos.Symbol], ts, result); err != nil {
			return err
		}

		kind := notify.EventStopLossTriggered
		if trig.Reason == "take_profit" {
			kind = notify.EventTakeProfitTriggered
		}
		d.notifyEvent(notify.Event{Kind: kind, Priority: notify.PriorityHigh, Payload: trig})
	}
	return nil
}

// openPositions returns the signal processor's current position view when
// the concrete executor exposes one (SimulatedExecutor does;
// LiveExecutor's equivalent requires a network call and is fetched inline
// by the processor itself where needed, so no positions come back here for
// live runs).
func (d *Driver) openPositions() map[string]types.Position {
	if p, ok := d.signals.(positionsProvider); ok {
		return p.Positions()
	}
	return nil
}

// Close force-flattens every open position at the given terminal prices,
// used at the end of a backtest window so the run's final equity reflects
// no dangling open exposure.
func (d *Driver) Close(ctx context.Context, prices map[string]decimal.Decimal, ts time.Time) ([]signalprocessor.TradeResult, error) {
	trades, err := d.signals.CloseAllPositions(ctx, prices, ts)
	if err != nil {
		return nil, err
	}
	for _, trade := range trades {
		d.notifyEvent(notify.Event{Kind: notify.EventPositionClosed, Priority: notify.PriorityNormal, Payload: trade})
	}
	return trades, nil
}
