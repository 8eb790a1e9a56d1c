package candleprocessor

import (
	"testing"
	"time"

	"github.com/atlas-desktop/trading-core/internal/indicators"
	"github.com/atlas-desktop/trading-core/pkg/types"
	"github.com/shopspring/decimal"
)

type fakeContext struct {
	symbols            []string
	klines             map[string]map[types.Timeframe][]types.Kline
	routeStates        map[string]types.RouteState
	globalScores       map[string]indicators.GlobalScore
	structuralFeatures map[string]indicators.StructuralFeatures
	lastSync           time.Time
}

func newFakeContext() *fakeContext {
	return &fakeContext{
		klines:             make(map[string]map[types.Timeframe][]types.Kline),
		routeStates:        make(map[string]types.RouteState),
		globalScores:       make(map[string]indicators.GlobalScore),
		structuralFeatures: make(map[string]indicators.StructuralFeatures),
	}
}

func (f *fakeContext) RegisterSymbols(symbols []string) { f.symbols = append(f.symbols, symbols...) }
func (f *fakeContext) Symbols() []string                { return f.symbols }
func (f *fakeContext) UpdateKlines(symbol string, tf types.Timeframe, seq []types.Kline) {
	if f.klines[symbol] == nil {
		f.klines[symbol] = make(map[types.Timeframe][]types.Kline)
	}
	f.klines[symbol][tf] = seq
}
func (f *fakeContext) GetKlines(symbol string, tf types.Timeframe) []types.Kline {
	return f.klines[symbol][tf]
}
func (f *fakeContext) GetAllTimeframes(symbol string) map[types.Timeframe][]types.Kline {
	return f.klines[symbol]
}
func (f *fakeContext) UpdateStructuralFeatures(symbol string, feat indicators.StructuralFeatures) {
	f.structuralFeatures[symbol] = feat
}
func (f *fakeContext) UpdateRouteState(symbol string, state types.RouteState) {
	f.routeStates[symbol] = state
}
func (f *fakeContext) UpdateGlobalScore(symbol string, score indicators.GlobalScore) {
	f.globalScores[symbol] = score
}
func (f *fakeContext) LastAnalyticsSync() time.Time { return f.lastSync }

type fakeStrategy struct {
	mtfConfig    *MultiTimeframeConfig
	onMarketData func(MarketData) []types.Signal
	positions    []types.Position
}

func (s *fakeStrategy) MultiTimeframeConfig() *MultiTimeframeConfig { return s.mtfConfig }
func (s *fakeStrategy) OnMarketData(data MarketData) []types.Signal {
	if s.onMarketData != nil {
		return s.onMarketData(data)
	}
	return nil
}
func (s *fakeStrategy) OnMultiTimeframeData(primary MarketData, secondary map[types.Timeframe][]types.Kline) []types.Signal {
	return s.OnMarketData(primary)
}
func (s *fakeStrategy) OnPositionUpdate(pos types.Position) { s.positions = append(s.positions, pos) }

func makeWindow(n int, start time.Time) []types.Kline {
	out := make([]types.Kline, n)
	for i := 0; i < n; i++ {
		c := decimal.NewFromInt(int64(100 + i))
		t := start.Add(time.Duration(i) * 24 * time.Hour)
		out[i] = types.Kline{
			Ticker: "PRIMARY", Timeframe: types.TimeframeD1,
			OpenTime: t, CloseTime: t.Add(23 * time.Hour),
			Open: c, High: c.Add(decimal.NewFromInt(1)), Low: c.Sub(decimal.NewFromInt(1)), Close: c,
			Volume: decimal.NewFromInt(1000),
		}
	}
	return out
}

func TestUpdateContext_PinsInBacktestModeOnlyOnceThresholdCrossed(t *testing.T) {
	window := makeWindow(MinCandlesForIndicators, time.Unix(0, 0))
	last := window[len(window)-1]

	p := New(nil, ModeBacktest)
	ctx := newFakeContext()
	ctx.RegisterSymbols([]string{"PRIMARY"})

	p.UpdateContext(MinCandlesForIndicators, last, window, ctx, "PRIMARY", nil)

	if state := ctx.routeStates["PRIMARY"]; state != types.RouteStateArmed {
		t.Errorf("backtest mode route state = %v, want Armed", state)
	}
	score := ctx.globalScores["PRIMARY"]
	if !score.OverallScore.Equal(indicators.BacktestPinnedGlobalScore) {
		t.Errorf("backtest mode overall score = %s, want %s", score.OverallScore, indicators.BacktestPinnedGlobalScore)
	}
}

func TestUpdateContext_DoesNotPinInLiveMode(t *testing.T) {
	window := makeWindow(MinCandlesForIndicators, time.Unix(0, 0))
	last := window[len(window)-1]

	p := New(nil, ModeLive)
	ctx := newFakeContext()
	ctx.RegisterSymbols([]string{"PRIMARY"})

	p.UpdateContext(MinCandlesForIndicators, last, window, ctx, "PRIMARY", nil)

	score := ctx.globalScores["PRIMARY"]
	if score.OverallScore.Equal(indicators.BacktestPinnedGlobalScore) {
		t.Error("live mode must not pin the overall score to the backtest constant")
	}
}

func TestUpdateContext_SkipsIndicatorsBelowThreshold(t *testing.T) {
	window := makeWindow(MinCandlesForIndicators-1, time.Unix(0, 0))
	last := window[len(window)-1]

	p := New(nil, ModeBacktest)
	ctx := newFakeContext()
	ctx.RegisterSymbols([]string{"PRIMARY"})

	p.UpdateContext(MinCandlesForIndicators-1, last, window, ctx, "PRIMARY", nil)

	if _, ok := ctx.routeStates["PRIMARY"]; ok {
		t.Error("expected no route state written before MinCandlesForIndicators is reached")
	}
}

func TestGenerateSignals_PartitionsEntryAndExit(t *testing.T) {
	p := New(nil, ModeLive)
	ctx := newFakeContext()
	ctx.RegisterSymbols([]string{"PRIMARY"})

	kline := types.Kline{Ticker: "PRIMARY", CloseTime: time.Unix(1000, 0), Close: decimal.NewFromInt(100)}
	strat := &fakeStrategy{
		onMarketData: func(data MarketData) []types.Signal {
			return []types.Signal{
				{Ticker: data.Ticker, Type: types.SignalTypeEntry, Timestamp: data.Kline.CloseTime},
				{Ticker: data.Ticker, Type: types.SignalTypeExit, Timestamp: data.Kline.CloseTime},
				{Ticker: data.Ticker, Type: types.SignalTypeAlert, Timestamp: data.Kline.CloseTime},
			}
		},
	}

	partitioned := p.GenerateSignals(strat, kline, ctx, "PRIMARY", "mock")
	if len(partitioned.EntrySignals) != 1 {
		t.Errorf("entry signals = %d, want 1", len(partitioned.EntrySignals))
	}
	if len(partitioned.ExitSignals) != 1 {
		t.Errorf("exit signals = %d, want 1", len(partitioned.ExitSignals))
	}
	if partitioned.TotalCount() != 2 {
		t.Errorf("total count = %d, want 2 (alert excluded)", partitioned.TotalCount())
	}
}

func TestSyncPositions_SynthesizesEmptyPositionWhenNoneOpen(t *testing.T) {
	p := New(nil, ModeLive)
	strat := &fakeStrategy{}
	kline := types.Kline{Close: decimal.NewFromInt(100)}

	p.SyncPositions(strat, nil, kline, "mock", "PRIMARY")

	if len(strat.positions) != 1 {
		t.Fatalf("expected exactly 1 synthesized position update, got %d", len(strat.positions))
	}
	if !strat.positions[0].Quantity.IsZero() {
		t.Errorf("synthesized position quantity = %s, want zero", strat.positions[0].Quantity)
	}
}

func TestSyncPositions_ComputesUnrealizedPnL(t *testing.T) {
	p := New(nil, ModeLive)
	strat := &fakeStrategy{}
	kline := types.Kline{Close: decimal.NewFromInt(110)}

	positions := map[string]ProcessorPosition{
		"PRIMARY": {Symbol: "PRIMARY", Side: types.PositionSideLong, Quantity: decimal.NewFromInt(10), EntryPrice: decimal.NewFromInt(100)},
	}
	p.SyncPositions(strat, positions, kline, "mock", "PRIMARY")

	if len(strat.positions) != 1 {
		t.Fatalf("expected 1 position update, got %d", len(strat.positions))
	}
	want := decimal.NewFromInt(100)
	if !strat.positions[0].UnrealizedPnL.Equal(want) {
		t.Errorf("unrealized pnl = %s, want %s", strat.positions[0].UnrealizedPnL, want)
	}
}

func TestFilterUpTo(t *testing.T) {
	t0 := time.Unix(0, 0)
	klines := []types.Kline{
		{CloseTime: t0.Add(1 * time.Hour)},
		{CloseTime: t0.Add(2 * time.Hour)},
		{CloseTime: t0.Add(3 * time.Hour)},
	}
	got := filterUpTo(klines, t0.Add(2*time.Hour))
	if len(got) != 2 {
		t.Errorf("filterUpTo = %d klines, want 2", len(got))
	}
}

func TestFindExact(t *testing.T) {
	t0 := time.Unix(0, 0)
	klines := []types.Kline{{CloseTime: t0.Add(1 * time.Hour)}, {CloseTime: t0.Add(2 * time.Hour)}}
	if _, ok := findExact(klines, t0.Add(2*time.Hour)); !ok {
		t.Error("expected an exact match at hour 2")
	}
	if _, ok := findExact(klines, t0.Add(90*time.Minute)); ok {
		t.Error("expected no match at hour 1.5")
	}
}
