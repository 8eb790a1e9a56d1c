// Package screening implements the periodic cross-symbol ranking pipeline:
// a Calculator produces a Snapshot for a named preset, either driven by the
// candle processor's per-candle ShouldUpdate hook (backtest) or by a
// wall-clock cron schedule (live/sim), per SPEC_FULL.md §4.8.
package screening

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Rank is one symbol's position in a screening preset's ranking.
type Rank struct {
	Symbol string          `json:"symbol"`
	Score  decimal.Decimal `json:"score"`
	Rank   int             `json:"rank"`
}

// Snapshot is a computed screening result for one preset at one point in
// time.
type Snapshot struct {
	Preset     string    `json:"preset"`
	Rankings   []Rank    `json:"rankings"`
	ComputedAt time.Time `json:"computedAt"`
}

// Calculator computes a fresh Snapshot for preset. ShouldUpdate decides
// whether a refresh is due given the candle index, the candle's close
// time, and the last time this preset was updated (used by the
// candle-driven path in backtest mode; the cron-driven path in §4.8 always
// calls Calculate on its own schedule regardless of ShouldUpdate).
type Calculator interface {
	ShouldUpdate(idx int, closeTime time.Time, lastUpdate time.Time) bool
	Calculate(ctx context.Context, preset string) (Snapshot, error)
}

// Writer is the minimal surface the scheduler needs from a strategy
// context. Defined locally (rather than importing internal/context
// directly) to avoid a screening<->context import cycle, since context
// already depends on screening for the Snapshot type.
type Writer interface {
	UpdateScreening(preset string, result Snapshot)
}

// Scheduler wraps a robfig/cron.Cron instance driving periodic screening
// refreshes independent of candle arrival, for live/sim engines where
// candles may arrive irregularly or not at all between refreshes.
type Scheduler struct {
	logger     *zap.Logger
	cron       *cron.Cron
	calc       Calculator
	writer     Writer
	presets    []string
	mu         sync.Mutex
	entryIDs   []cron.EntryID
}

// NewScheduler builds a screening scheduler. The refresh schedule is given
// later, to Start, in the standard five-field cron syntax.
func NewScheduler(logger *zap.Logger, calc Calculator, writer Writer, presets []string) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		logger:  logger,
		cron:    cron.New(),
		calc:    calc,
		writer:  writer,
		presets: presets,
	}
}

// DefaultCronSpec is every 15 minutes, matching SPEC_FULL.md §4.8's stated
// default refresh cadence.
const DefaultCronSpec = "*/15 * * * *"

// Start registers the refresh job on cronSpec and starts the scheduler's
// own goroutine. Calling Start twice is a no-op after the first call.
func (s *Scheduler) Start(ctx context.Context, cronSpec string) error {
	if cronSpec == "" {
		cronSpec = DefaultCronSpec
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entryIDs) > 0 {
		return nil
	}
	id, err := s.cron.AddFunc(cronSpec, func() { s.refreshAll(ctx) })
	if err != nil {
		return err
	}
	s.entryIDs = append(s.entryIDs, id)
	s.cron.Start()
	return nil
}

// Stop halts the cron scheduler and waits for any in-flight job to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}

func (s *Scheduler) refreshAll(ctx context.Context) {
	for _, preset := range s.presets {
		snap, err := s.calc.Calculate(ctx, preset)
		if err != nil {
			s.logger.Warn("screening refresh failed", zap.String("preset", preset), zap.Error(err))
			continue
		}
		s.writer.UpdateScreening(preset, snap)
	}
}
