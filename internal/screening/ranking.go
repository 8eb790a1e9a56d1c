package screening

import (
	"context"
	"sort"
	"time"

	"github.com/atlas-desktop/trading-core/internal/indicators"
	"github.com/atlas-desktop/trading-core/pkg/types"
	"go.uber.org/zap"
)

// KlineSource is the minimal read surface a ranking calculator needs from
// a strategy context: the registered symbol set and each one's kline
// window at a given timeframe.
type KlineSource interface {
	Symbols() []string
	GetKlines(symbol string, tf types.Timeframe) []types.Kline
}

// RankingCalculator ranks every registered symbol by
// indicators.ComputeGlobalScore's OverallScore, descending. It is the one
// concrete screening.Calculator this module ships; a deployment wanting a
// different ranking formula implements Calculator directly.
type RankingCalculator struct {
	logger    *zap.Logger
	source    KlineSource
	timeframe types.Timeframe
	interval  time.Duration
}

// NewRankingCalculator builds a ranking calculator reading symbol windows
// at timeframe from source, refreshing no more often than interval.
func NewRankingCalculator(logger *zap.Logger, source KlineSource, timeframe types.Timeframe, interval time.Duration) *RankingCalculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RankingCalculator{logger: logger, source: source, timeframe: timeframe, interval: interval}
}

// ShouldUpdate reports whether interval has elapsed since lastUpdate.
func (r *RankingCalculator) ShouldUpdate(idx int, closeTime time.Time, lastUpdate time.Time) bool {
	return closeTime.Sub(lastUpdate) >= r.interval
}

// Calculate ranks every symbol source currently tracks.
func (r *RankingCalculator) Calculate(ctx context.Context, preset string) (Snapshot, error) {
	windows := make(map[string][]types.Kline, len(r.source.Symbols()))
	for _, symbol := range r.source.Symbols() {
		windows[symbol] = r.source.GetKlines(symbol, r.timeframe)
	}
	return rankWindows(preset, windows), nil
}

// rankWindows scores each symbol's kline window and sorts descending by
// overall score, assigning 1-based ranks.
func rankWindows(preset string, windows map[string][]types.Kline) Snapshot {
	ranks := make([]Rank, 0, len(windows))
	for symbol, klines := range windows {
		if len(klines) == 0 {
			continue
		}
		score := indicators.ComputeGlobalScore(klines)
		ranks = append(ranks, Rank{Symbol: symbol, Score: score.OverallScore})
	}
	sort.Slice(ranks, func(i, j int) bool { return ranks[i].Score.GreaterThan(ranks[j].Score) })
	for i := range ranks {
		ranks[i].Rank = i + 1
	}
	return Snapshot{Preset: preset, Rankings: ranks, ComputedAt: time.Now()}
}

// CandleDrivenRanking adapts RankingCalculator's scoring formula to
// candleprocessor.ScreeningCalculator's signature, which hands in the
// per-symbol windows the backtest replay loop already holds rather than
// letting the calculator re-fetch them — see DESIGN.md for why this is a
// second type rather than a second method named Calculate on
// RankingCalculator (Go doesn't allow overloading by signature).
type CandleDrivenRanking struct {
	interval time.Duration
	writer   Writer
}

// NewCandleDrivenRanking builds the backtest-path counterpart to
// RankingCalculator, writing straight through writer instead of returning
// a Snapshot.
func NewCandleDrivenRanking(writer Writer, interval time.Duration) *CandleDrivenRanking {
	return &CandleDrivenRanking{interval: interval, writer: writer}
}

// ShouldUpdate mirrors RankingCalculator.ShouldUpdate.
func (c *CandleDrivenRanking) ShouldUpdate(idx int, closeTime time.Time, lastUpdate time.Time) bool {
	return closeTime.Sub(lastUpdate) >= c.interval
}

// Calculate ranks the windows handed in by this candle's caller and writes
// the result straight to the context via Writer.
func (c *CandleDrivenRanking) Calculate(ctx context.Context, preset string, windows map[string][]types.Kline) error {
	c.writer.UpdateScreening(preset, rankWindows(preset, windows))
	return nil
}
