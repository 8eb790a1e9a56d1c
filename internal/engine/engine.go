// Package engine wires the candle pipeline, the signal processor, the
// strategy context, and the notification bus into a single per-strategy
// run loop, in the three modes candleprocessor.Mode names: backtest
// (historical window, no wall clock), simulation (mock price generator
// driving the same pipeline on a synthetic clock), and live (exchange
// provider plus market stream).
//
// Grounded on the teacher's Engine in internal/backtester/engine.go: one
// owning goroutine per run, an explicit Run entry point taking a
// context.Context, and state (positions, trades) owned by the run rather
// than shared globally.
package engine

import (
	"context"
	"time"

	"github.com/atlas-desktop/trading-core/internal/candleprocessor"
	"github.com/atlas-desktop/trading-core/internal/notify"
	"github.com/atlas-desktop/trading-core/internal/signalprocessor"
	"github.com/atlas-desktop/trading-core/pkg/types"
	"go.uber.org/zap"
)

// CandleStepTimeout bounds how long a single candle's
// UpdateContext+GenerateSignals+SyncPositions+signal-execution pipeline
// may run before the driver abandons it and moves to the next candle.
const CandleStepTimeout = 30 * time.Second

// ShutdownGracePeriod is how long Stop waits for the run loop to notice
// context cancellation before giving up on it (logged, not blocked on
// indefinitely — Go has no force-kill-goroutine primitive).
const ShutdownGracePeriod = 10 * time.Second

// Driver runs one strategy's candle pipeline against one primary ticker.
// A Driver instance is single-use per Run/RunBacktest call: wire a fresh
// one per strategy, not shared across concurrent runs.
type Driver struct {
	logger *zap.Logger

	processor *candleprocessor.Processor
	strategy  candleprocessor.Strategy
	ctxWriter candleprocessor.ContextWriter
	signals   signalprocessor.SignalProcessor
	notifier  *notify.EventBus
	screening candleprocessor.ScreeningCalculator

	primaryTicker string
	exchangeName  string
}

// Config collects everything a Driver needs to run.
type Config struct {
	Logger        *zap.Logger
	Processor     *candleprocessor.Processor
	Strategy      candleprocessor.Strategy
	Context       candleprocessor.ContextWriter
	Signals       signalprocessor.SignalProcessor
	Notifier      *notify.EventBus
	Screening     candleprocessor.ScreeningCalculator
	PrimaryTicker string
	ExchangeName  string
}

// NewDriver builds a Driver from cfg.
func NewDriver(cfg Config) *Driver {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		logger:        logger,
		processor:     cfg.Processor,
		strategy:      cfg.Strategy,
		ctxWriter:     cfg.Context,
		signals:       cfg.Signals,
		notifier:      cfg.Notifier,
		screening:     cfg.Screening,
		primaryTicker: cfg.PrimaryTicker,
		exchangeName:  cfg.ExchangeName,
	}
}

// Result summarizes a completed run.
type Result struct {
	CandlesProcessed int
	CandlesAbandoned int
	Trades           []signalprocessor.TradeResult
}

// notifyEvent is a small helper absorbing a nil notifier, since wiring a
// bus is optional for a driver used purely in tests.
func (d *Driver) notifyEvent(ev notify.Event) {
	if d.notifier == nil {
		return
	}
	d.notifier.Publish(ev)
}

// currentPositions asks the signal processor for a ProcessorPosition view
// of whatever is currently open, keyed by position key, for SyncPositions.
func currentPositions(positions map[string]types.Position) map[string]candleprocessor.ProcessorPosition {
	out := make(map[string]candleprocessor.ProcessorPosition, len(positions))
	for key, p := range positions {
		if p.Quantity.IsZero() {
			continue
		}
		out[key] = candleprocessor.ProcessorPosition{
			Symbol:     p.Symbol,
			Side:       p.Side,
			Quantity:   p.Quantity,
			EntryPrice: p.EntryPrice,
			PositionID: p.PositionID,
			GroupID:    p.GroupID,
		}
	}
	return out
}

// positionsProvider is implemented by SimulatedExecutor only and is not
// part of the shared interface (SimulatedExecutor exposes a synchronous,
// in-memory view; LiveExecutor has no such method, its positions being a
// network round trip through the provider). Declared locally so the
// driver can use it when available without widening
// signalprocessor.SignalProcessor for every caller.
type positionsProvider interface {
	Positions() map[string]types.Position
}
