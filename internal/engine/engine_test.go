package engine

import (
	"context"
	"testing"
	"time"

	cp "github.com/atlas-desktop/trading-core/internal/candleprocessor"
	strategyctx "github.com/atlas-desktop/trading-core/internal/context"
	"github.com/atlas-desktop/trading-core/internal/notify"
	"github.com/atlas-desktop/trading-core/internal/signalprocessor"
	"github.com/atlas-desktop/trading-core/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// scriptedStrategy emits a fixed signal on a given candle index and nothing
// otherwise, enough to drive the exit-before-entry and bracket-translation
// paths deterministically.
type scriptedStrategy struct {
	emit      map[int][]types.Signal
	idx       int
	positions []types.Position
}

func (s *scriptedStrategy) MultiTimeframeConfig() *cp.MultiTimeframeConfig { return nil }

func (s *scriptedStrategy) OnMarketData(data cp.MarketData) []types.Signal {
	defer func() { s.idx++ }()
	return s.emit[s.idx]
}

func (s *scriptedStrategy) OnMultiTimeframeData(primary cp.MarketData, secondary map[types.Timeframe][]types.Kline) []types.Signal {
	return nil
}

func (s *scriptedStrategy) OnPositionUpdate(pos types.Position) {
	s.positions = append(s.positions, pos)
}

func candleAt(ticker string, t time.Time, open, high, low, close decimal.Decimal) types.Kline {
	return types.Kline{
		Ticker:    ticker,
		OpenTime:  t.Add(-time.Minute),
		CloseTime: t,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    d("100"),
	}
}

func newTestDriver(t *testing.T, strat *scriptedStrategy, execConfig signalprocessor.Config) (*Driver, *signalprocessor.SimulatedExecutor) {
	t.Helper()
	logger := zap.NewNop()
	ctxWriter := strategyctx.New(logger)
	ctxWriter.RegisterSymbols([]string{"AAA"})

	signals := signalprocessor.NewSimulatedExecutor(logger, d("10000"), execConfig)

	driver := NewDriver(Config{
		Logger:        logger,
		Processor:     cp.New(logger, cp.ModeBacktest),
		Strategy:      strat,
		Context:       ctxWriter,
		Signals:       signals,
		PrimaryTicker: "AAA",
		ExchangeName:  "test",
	})
	return driver, signals
}

func TestRunBacktest_ExitSignalsExecuteBeforeEntrySignals(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	// Candle 0 opens a long; candle 1 emits both an exit for the existing
	// position and a fresh entry in the same step, and order matters: the
	// exit's freed balance must be visible before the entry sizes itself.
	entrySignal := types.Signal{Ticker: "AAA", Side: types.OrderSideBuy, Type: types.SignalTypeEntry, Strength: 1}
	exitSignal := types.Signal{Ticker: "AAA", Side: types.OrderSideSell, Type: types.SignalTypeExit, Strength: 1}
	reentrySignal := types.Signal{Ticker: "AAA", Side: types.OrderSideBuy, Type: types.SignalTypeEntry, Strength: 1,
		Metadata: map[string]any{"tag": "reentry"}}

	strat := &scriptedStrategy{emit: map[int][]types.Signal{
		0: {entrySignal},
		1: {reentrySignal, exitSignal},
	}}

	driver, signals := newTestDriver(t, strat, signalprocessor.Config{
		MinStrength:        0,
		MaxPositionSizePct: d("0.1"),
		CommissionRate:     d("0.001"),
		SlippageRate:       d("0"),
		AllowShort:         false,
		MaxOpenPositions:   5,
	})

	candles := make([]types.Kline, 0, 41)
	for i := 0; i < 41; i++ {
		c := start.Add(time.Duration(i) * time.Minute)
		candles = append(candles, candleAt("AAA", c, d("100"), d("101"), d("99"), d("100")))
	}

	result, err := driver.RunBacktest(context.Background(), candles)
	if err != nil {
		t.Fatalf("RunBacktest returned error: %v", err)
	}
	if result.CandlesAbandoned != 0 {
		t.Errorf("expected no abandoned candles, got %d", result.CandlesAbandoned)
	}

	trades := signals.Trades()
	if len(trades) < 2 {
		t.Fatalf("expected at least 2 trades (entry, exit+reentry), got %d", len(trades))
	}
	// The exit must be recorded before the re-entry within candle 1's trades.
	foundExit := false
	for _, tr := range trades {
		if tr.Signal.Type == types.SignalTypeExit {
			foundExit = true
		}
		if tr.Signal.Metadata["tag"] == "reentry" && !foundExit {
			t.Fatalf("entry signal executed before the exit it depends on")
		}
	}
}

func TestRunBacktest_RunsCleanlyWithNoSignals(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	strat := &scriptedStrategy{emit: map[int][]types.Signal{}}

	driver, _ := newTestDriver(t, strat, signalprocessor.Config{
		MaxPositionSizePct: d("0.1"),
		MaxOpenPositions:   5,
	})

	candles := []types.Kline{candleAt("AAA", start, d("100"), d("101"), d("99"), d("100"))}
	result, err := driver.RunBacktest(context.Background(), candles)
	if err != nil {
		t.Fatalf("RunBacktest returned error: %v", err)
	}
	if result.CandlesProcessed != 1 {
		t.Errorf("expected 1 candle processed, got %d", result.CandlesProcessed)
	}
}

func TestRunBacktest_BracketTriggerClosesPositionAsExitSignal(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	entrySignal := types.Signal{Ticker: "AAA", Side: types.OrderSideBuy, Type: types.SignalTypeEntry, Strength: 1}

	strat := &scriptedStrategy{emit: map[int][]types.Signal{0: {entrySignal}}}

	driver, signals := newTestDriver(t, strat, signalprocessor.Config{
		MaxPositionSizePct: d("0.5"),
		MaxOpenPositions:   5,
		BracketEnabled:     true,
		StopLossPct:        d("0.02"),
		TakeProfitPct:      d("0.05"),
	})

	candles := []types.Kline{
		candleAt("AAA", start, d("100"), d("101"), d("99"), d("100")),
		candleAt("AAA", start.Add(time.Minute), d("100"), d("96"), d("95"), d("95")),
	}

	notifier := notify.NewEventBus(zap.NewNop(), notify.DefaultBusConfig())
	defer notifier.Close()
	triggered := make(chan notify.Event, 4)
	notifier.Subscribe(notify.EventStopLossTriggered, func(ev notify.Event) error {
		triggered <- ev
		return nil
	})
	driver.notifier = notifier

	if _, err := driver.RunBacktest(context.Background(), candles); err != nil {
		t.Fatalf("RunBacktest returned error: %v", err)
	}

	positions := signals.Positions()
	if len(positions) != 0 {
		t.Errorf("expected the stop-loss to have flattened the position, got %d open", len(positions))
	}

	select {
	case <-triggered:
	case <-time.After(time.Second):
		t.Fatal("expected a stop_loss_triggered notification, got none")
	}
}
