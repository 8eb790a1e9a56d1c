// Package main provides the entry point for the trading runtime: wiring
// one strategy's candle pipeline, signal processor, and context into a
// backtest, simulation, or live run depending on the -mode flag.
package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	strategyctx "github.com/atlas-desktop/trading-core/internal/context"

	"github.com/atlas-desktop/trading-core/internal/candleprocessor"
	"github.com/atlas-desktop/trading-core/internal/data"
	"github.com/atlas-desktop/trading-core/internal/engine"
	"github.com/atlas-desktop/trading-core/internal/exchange"
	"github.com/atlas-desktop/trading-core/internal/marketstream"
	"github.com/atlas-desktop/trading-core/internal/mockprice"
	"github.com/atlas-desktop/trading-core/internal/notify"
	"github.com/atlas-desktop/trading-core/internal/screening"
	"github.com/atlas-desktop/trading-core/internal/signalprocessor"
	"github.com/atlas-desktop/trading-core/internal/strategy"
	"github.com/atlas-desktop/trading-core/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	mode := flag.String("mode", "backtest", "Run mode: backtest, simulation, or live")
	market := flag.String("market", "crypto", "Market: crypto or korea")
	symbol := flag.String("symbol", "BTCUSDT", "Primary ticker to trade")
	timeframe := flag.String("timeframe", string(types.TimeframeH1), "Candle timeframe")
	strategyName := flag.String("strategy", "momentum", "Registered strategy name")
	dataDir := flag.String("data", "./data", "Historical candle data directory")
	balance := flag.Float64("balance", 10000, "Starting balance for backtest/simulation")
	screeningCron := flag.String("screening-cron", screening.DefaultCronSpec, "Cron schedule for live/simulation screening refresh")
	backtestDays := flag.Int("backtest-days", 90, "Number of days of history to backtest over")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	runMode := parseMode(*mode)
	logger.Info("starting trading runtime",
		zap.String("mode", *mode),
		zap.String("market", *market),
		zap.String("symbol", *symbol),
		zap.String("strategy", *strategyName),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := data.NewStore(logger, *dataDir)
	if err != nil {
		logger.Fatal("failed to initialize data store", zap.Error(err))
	}

	sc := strategyctx.New(logger)
	sc.RegisterSymbols([]string{*symbol})

	registry := strategy.NewRegistry(logger)
	strat, ok := registry.Create(*strategyName)
	if !ok {
		logger.Fatal("unknown strategy", zap.String("strategy", *strategyName), zap.Strings("available", registry.List()))
	}
	strat.SetContext(sc)
	if err := strat.Initialize(ctx); err != nil {
		logger.Fatal("strategy initialization failed", zap.Error(err))
	}

	notifier := notify.NewEventBus(logger, notify.DefaultBusConfig())
	defer notifier.Close()
	notifier.SubscribeAll(func(evt notify.Event) error {
		logger.Info("event", zap.String("kind", string(evt.Kind)), zap.Any("payload", evt.Payload))
		return nil
	})

	tf := types.Timeframe(*timeframe)
	execConfig := signalprocessor.Config{
		MinStrength:        0.5,
		MaxPositionSizePct: decimal.NewFromFloat(0.1),
		CommissionRate:     decimal.NewFromFloat(0.001),
		SlippageRate:       decimal.NewFromFloat(0.0005),
		AllowShort:         true,
		MaxOpenPositions:   5,
		BracketEnabled:     true,
		StopLossPct:        decimal.NewFromFloat(0.02),
		TakeProfitPct:      decimal.NewFromFloat(0.05),
	}

	var signals signalprocessor.SignalProcessor
	if runMode == candleprocessor.ModeLive {
		provider := newProvider(logger, *market)
		signals = signalprocessor.NewLiveExecutor(logger, provider, execConfig)
	} else {
		signals = signalprocessor.NewSimulatedExecutor(logger, decimal.NewFromFloat(*balance), execConfig)
	}

	processor := candleprocessor.New(logger, runMode)

	driverCfg := engine.Config{
		Logger:        logger,
		Processor:     processor,
		Strategy:      strat,
		Context:       sc,
		Signals:       signals,
		Notifier:      notifier,
		PrimaryTicker: *symbol,
		ExchangeName:  *market,
	}

	var sched *screening.Scheduler
	if runMode == candleprocessor.ModeBacktest {
		driverCfg.Screening = screening.NewCandleDrivenRanking(sc, 24*time.Hour)
	} else {
		calc := screening.NewRankingCalculator(logger, sc, tf, 15*time.Minute)
		sched = screening.NewScheduler(logger, calc, sc, []string{"default"})
		if err := sched.Start(ctx, *screeningCron); err != nil {
			logger.Fatal("failed to start screening scheduler", zap.Error(err))
		}
	}

	driver := engine.NewDriver(driverCfg)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	switch runMode {
	case candleprocessor.ModeBacktest:
		runBacktest(ctx, logger, driver, store, *symbol, tf, *backtestDays)
	case candleprocessor.ModeLive:
		runStream(ctx, cancel, logger, driver, true, *symbol, tf, sigChan)
	default:
		runStream(ctx, cancel, logger, driver, false, *symbol, tf, sigChan)
	}

	if sched != nil {
		sched.Stop()
	}
	logger.Info("trading runtime stopped")
}

func runBacktest(ctx context.Context, logger *zap.Logger, driver *engine.Driver, store *data.Store, symbol string, tf types.Timeframe, days int) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)

	klines, err := store.LoadKlines(ctx, symbol, tf, start, end)
	if err != nil {
		logger.Fatal("failed to load historical klines", zap.Error(err))
	}

	result, err := driver.RunBacktest(ctx, klines)
	if err != nil {
		logger.Fatal("backtest run failed", zap.Error(err))
	}

	logger.Info("backtest complete",
		zap.Int("candlesProcessed", result.CandlesProcessed),
		zap.Int("candlesAbandoned", result.CandlesAbandoned),
		zap.Int("trades", len(result.Trades)),
	)
}

func runStream(ctx context.Context, cancel context.CancelFunc, logger *zap.Logger, driver *engine.Driver, live bool, symbol string, tf types.Timeframe, sigChan <-chan os.Signal) {
	ticks := make(chan engine.Tick, 256)
	done := make(chan struct{})

	go func() {
		defer close(done)
		result, err := driver.RunStream(ctx, ticks, timeframeInterval(tf))
		if err != nil {
			logger.Error("stream run failed", zap.Error(err))
			return
		}
		logger.Info("stream run ended",
			zap.Int("candlesProcessed", result.CandlesProcessed),
			zap.Int("candlesAbandoned", result.CandlesAbandoned),
			zap.Int("trades", len(result.Trades)),
		)
	}()

	if live {
		go feedLiveTicks(ctx, logger, symbol, ticks)
	} else {
		go feedSimulatedTicks(ctx, logger, symbol, ticks)
	}

	<-sigChan
	logger.Info("shutdown signal received")
	engine.Stop(cancel, done, logger)
}

func feedSimulatedTicks(ctx context.Context, logger *zap.Logger, symbol string, ticks chan<- engine.Tick) {
	defer close(ticks)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	walk := mockprice.NewRandomWalk(symbol, decimal.NewFromInt(100), decimal.NewFromFloat(0.01),
		mockprice.DefaultATRRatio, mockprice.DefaultMeanReversion, time.Second, time.Now(), rng)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick, _ := walk.Next()
			select {
			case ticks <- engine.TickFromPriceTick(tick):
			case <-ctx.Done():
				return
			}
		}
	}
}

func feedLiveTicks(ctx context.Context, logger *zap.Logger, symbol string, ticks chan<- engine.Tick) {
	defer close(ticks)
	client := marketstream.NewClient(marketstream.Config{
		URL:    getEnvOrDefault("MARKET_STREAM_URL", ""),
		Logger: logger,
	})
	if err := client.Subscribe(ctx, marketstream.TrIDTrade, symbol); err != nil {
		logger.Error("failed to subscribe to market stream", zap.String("symbol", symbol), zap.Error(err))
	}
	go func() {
		if err := client.Run(ctx); err != nil {
			logger.Error("market stream run ended", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-client.Events():
			if !ok {
				return
			}
			if evt.Kind != marketstream.EventTrade {
				continue
			}
			select {
			case ticks <- engine.TickFromTrade(evt.Trade):
			case <-ctx.Done():
				return
			}
		}
	}
}

func newProvider(logger *zap.Logger, market string) exchange.Provider {
	switch market {
	case "korea":
		return exchange.NewKoreaEquityProvider(logger, getEnvOrDefault("KOREA_BROKER_URL", ""), false, 5*time.Minute)
	default:
		return exchange.NewCryptoProvider(logger, getEnvOrDefault("CRYPTO_EXCHANGE_URL", ""), "USDT")
	}
}

func parseMode(mode string) candleprocessor.Mode {
	switch mode {
	case "live":
		return candleprocessor.ModeLive
	case "simulation":
		return candleprocessor.ModeSimulation
	default:
		return candleprocessor.ModeBacktest
	}
}

func timeframeInterval(tf types.Timeframe) time.Duration {
	switch tf {
	case types.TimeframeM1:
		return time.Minute
	case types.TimeframeM3:
		return 3 * time.Minute
	case types.TimeframeM5:
		return 5 * time.Minute
	case types.TimeframeM15:
		return 15 * time.Minute
	case types.TimeframeM30:
		return 30 * time.Minute
	case types.TimeframeH1:
		return time.Hour
	case types.TimeframeH4:
		return 4 * time.Hour
	case types.TimeframeD1:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
