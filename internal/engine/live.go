package engine

import (
	"context"
	"time"

	"github.com/atlas-desktop/trading-core/internal/marketstream"
	"github.com/atlas-desktop/trading-core/internal/mockprice"
	"github.com/atlas-desktop/trading-core/internal/notify"
	"github.com/atlas-desktop/trading-core/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Tick is the common shape RunStream consumes, regardless of whether it
// originated from a mockprice.PriceGenerator (simulation mode) or a
// marketstream.Client (live mode).
type Tick struct {
	Symbol    string
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Timestamp time.Time
}

// TickFromPriceTick adapts a mockprice tick, used directly since both
// already share decimal price/volume fields.
func TickFromPriceTick(t mockprice.PriceTick) Tick {
	return Tick{Symbol: t.Symbol, Price: t.Price, Volume: t.Volume, Timestamp: t.Timestamp}
}

// TickFromTrade adapts a marketstream trade. The venue wire format carries
// price/volume as float64 (see marketstream.Trade), so this is the one
// place a live feed's floats cross into the decimal-only signal path.
func TickFromTrade(t marketstream.Trade) Tick {
	return Tick{
		Symbol:    t.Symbol,
		Price:     decimal.NewFromFloat(t.Price),
		Volume:    decimal.NewFromInt(t.Volume),
		Timestamp: time.Now(),
	}
}

// candleAggregator folds a tick stream into fixed-width OHLCV candles for
// the primary ticker. Non-primary ticks are ignored; multi-symbol context
// in live/simulation mode is refreshed on each primary candle close using
// whatever the context writer already holds, matching backtest mode's
// reliance on pre-seeded secondary-symbol history rather than a second
// live feed per symbol.
type candleAggregator struct {
	ticker string
	width  time.Duration

	open    bool
	current types.Kline
}

func newCandleAggregator(ticker string, width time.Duration) *candleAggregator {
	return &candleAggregator{ticker: ticker, width: width}
}

// Add folds tick into the in-progress candle, returning the just-closed
// candle and true when tick's timestamp rolls into the next bucket.
func (a *candleAggregator) Add(tick Tick) (types.Kline, bool) {
	if tick.Symbol != a.ticker {
		return types.Kline{}, false
	}

	bucket := tick.Timestamp.Truncate(a.width)

	if !a.open {
		a.start(bucket, tick)
		return types.Kline{}, false
	}

	if bucket.After(a.current.OpenTime) {
		closed := a.current
		a.start(bucket, tick)
		return closed, true
	}

	a.fold(tick)
	return types.Kline{}, false
}

func (a *candleAggregator) start(bucket time.Time, tick Tick) {
	a.current = types.Kline{
		Ticker:    a.ticker,
		OpenTime:  bucket,
		CloseTime: bucket.Add(a.width),
		Open:      tick.Price,
		High:      tick.Price,
		Low:       tick.Price,
		Close:     tick.Price,
		Volume:    tick.Volume,
	}
	a.open = true
}

func (a *candleAggregator) fold(tick Tick) {
	if tick.Price.GreaterThan(a.current.High) {
		a.current.High = tick.Price
	}
	if tick.Price.LessThan(a.current.Low) {
		a.current.Low = tick.Price
	}
	a.current.Close = tick.Price
	a.current.Volume = a.current.Volume.Add(tick.Volume)
}

// RunStream drives the pipeline from a live tick feed (simulation's mock
// price generator or live mode's market stream), folding ticks into
// width-wide candles and running the same UpdateContext/GenerateSignals/
// SyncPositions sequence RunBacktest uses on every candle close. Between
// candle closes, every tick still feeds CheckBracketTriggers directly —
// a stop-loss or take-profit does not wait for the next bar to close — so
// ProcessSignal may be invoked both from this loop's own candle-close path
// and, on the same tick, from a bracket-trigger close; callers relying on
// this concurrently with a second goroutine touching the same
// SignalProcessor must ensure it serializes internally, which both
// signalprocessor executors do.
//
// RunStream blocks until ctx is cancelled or ticks closes. On cancellation
// it stops pulling new ticks and returns once any signal already in flight
// completes; it does not itself enforce ShutdownGracePeriod — callers that
// need a bounded-wait shutdown run this call in a goroutine that closes a
// done channel on return, and hand that channel to Stop.
func (d *Driver) RunStream(ctx context.Context, ticks <-chan Tick, candleWidth time.Duration) (Result, error) {
	var result Result
	agg := newCandleAggregator(d.primaryTicker, candleWidth)
	window := make([]types.Kline, 0, 256)
	idx := 0

	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case tick, ok := <-ticks:
			if !ok {
				return result, nil
			}

			if err := d.handleTick(ctx, tick, &result); err != nil {
				d.logger.Warn("tick-level bracket check failed", zap.String("symbol", tick.Symbol), zap.Error(err))
			}

			closed, rolled := agg.Add(tick)
			if !rolled {
				continue
			}
			window = append(window, closed)

			stepCtx, cancel := context.WithTimeout(ctx, CandleStepTimeout)
			err := d.processCandle(stepCtx, idx, closed, window, &result)
			cancel()
			idx++

			if err != nil {
				result.CandlesAbandoned++
				d.logger.Error("candle abandoned",
					zap.Int("idx", idx),
					zap.String("ticker", closed.Ticker),
					zap.Time("closeTime", closed.CloseTime),
					zap.Error(err),
				)
				d.notifyEvent(notify.Event{Kind: notify.EventSystemError, Priority: notify.PriorityHigh, Payload: err.Error()})
				continue
			}
			result.CandlesProcessed++
		}
	}
}

// handleTick runs a bracket-trigger scan against a single tick price,
// independent of candle boundaries, so a stop-loss/take-profit fires the
// moment the price crosses it rather than waiting for the bar to close.
func (d *Driver) handleTick(ctx context.Context, tick Tick, result *Result) error {
	prices := map[string]decimal.Decimal{tick.Symbol: tick.Price}
	return d.handleBracketTriggers(ctx, prices, tick.Timestamp, result)
}

// Stop cancels run (via the context RunStream/RunBacktest was given) and
// waits up to ShutdownGracePeriod for it to return, force-abandoning
// (logging, not blocking) past that — there is no Go runtime primitive to
// force-terminate a running goroutine, so "force termination" here means
// detach-and-log rather than an actual kill.
func Stop(cancel context.CancelFunc, done <-chan struct{}, logger *zap.Logger) {
	cancel()
	timer := time.NewTimer(ShutdownGracePeriod)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		logger.Warn("shutdown grace period expired, abandoning run goroutine")
	}
}
