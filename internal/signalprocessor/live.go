package signalprocessor

import (
	"context"
	"sync"
	"time"

	"github.com/atlas-desktop/trading-core/internal/exchange"
	"github.com/atlas-desktop/trading-core/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LiveExecutor implements SignalProcessor by delegating fills to an
// exchange.Provider: position/balance views are the provider's own
// TTL-cached reads, SL/TP are issued as real child orders with OCO
// cancellation (cancel the sibling leg when one fires), and every
// place/cancel/modify implicitly invalidates the provider's cache (the
// provider owns that invalidation, per §4.3.2).
type LiveExecutor struct {
	logger   *zap.Logger
	provider exchange.Provider
	config   Config

	mu       sync.Mutex
	brackets map[string]liveBracket
}

type liveBracket struct {
	stopOrderID   string
	profitOrderID string
}

// NewLiveExecutor builds an executor bound to provider.
func NewLiveExecutor(logger *zap.Logger, provider exchange.Provider, config Config) *LiveExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveExecutor{
		logger:   logger,
		provider: provider,
		config:   config,
		brackets: make(map[string]liveBracket),
	}
}

// ProcessSignal places a market order against the provider for the
// requested side/quantity, sized identically to the simulated executor
// (balance * maxPositionSizePct * strength), and issues bracket child
// orders on entry when enabled.
func (e *LiveExecutor) ProcessSignal(ctx context.Context, signal types.Signal, currentPrice decimal.Decimal, timestamp time.Time) (*TradeResult, error) {
	if signal.Strength < e.config.MinStrength {
		return nil, nil
	}
	if signal.Type == types.SignalTypeAlert {
		return nil, nil
	}
	if signal.Side == types.OrderSideSell && !e.config.AllowShort &&
		!(signal.Type == types.SignalTypeExit || signal.Type == types.SignalTypeReducePosition) {
		return nil, ErrShortNotAllowed
	}

	account, err := e.provider.FetchAccount(ctx)
	if err != nil {
		return nil, err
	}

	var quantity decimal.Decimal
	switch {
	case signal.IsEntry():
		if !currentPrice.IsPositive() {
			return nil, ErrInvalidPrice
		}
		targetAmount := account.AvailableBalance.Mul(e.config.MaxPositionSizePct).Mul(decimal.NewFromFloat(signal.Strength))
		quantity = targetAmount.Div(currentPrice)
	case signal.IsExit():
		positions, err := e.provider.FetchPositions(ctx)
		if err != nil {
			return nil, err
		}
		pos, ok := findPosition(positions, signal.Ticker)
		if !ok {
			return nil, nil
		}
		quantity = reduceQuantity(signal, pos.Quantity)
	default:
		return nil, nil
	}

	if !quantity.IsPositive() {
		return nil, nil
	}

	resp, err := e.provider.PlaceOrder(ctx, exchange.OrderRequest{
		Ticker:   signal.Ticker,
		Side:     signal.Side,
		Type:     types.OrderTypeMarket,
		Quantity: quantity,
	})
	if err != nil {
		return nil, err
	}

	if signal.IsEntry() && e.config.BracketEnabled {
		e.placeBracket(ctx, signal, resp.AvgFillPrice, quantity)
	}
	if signal.IsExit() {
		e.cancelBracket(ctx, signal.PositionKey())
	}

	return &TradeResult{
		Signal:         signal,
		Commission:     decimal.Zero,
		ExecutionPrice: resp.AvgFillPrice,
		Quantity:       resp.FilledQuantity,
		Timestamp:      timestamp,
	}, nil
}

func findPosition(positions []exchange.Position, ticker string) (exchange.Position, bool) {
	for _, p := range positions {
		if p.Ticker == ticker {
			return p, true
		}
	}
	return exchange.Position{}, false
}

func (e *LiveExecutor) placeBracket(ctx context.Context, signal types.Signal, entry, quantity decimal.Decimal) {
	one := decimal.NewFromInt(1)
	var sl, tp decimal.Decimal
	exitSide := types.OrderSideSell
	if signal.Side == types.OrderSideSell {
		exitSide = types.OrderSideBuy
		sl = entry.Mul(one.Add(e.config.StopLossPct))
		tp = entry.Mul(one.Sub(e.config.TakeProfitPct))
	} else {
		sl = entry.Mul(one.Sub(e.config.StopLossPct))
		tp = entry.Mul(one.Add(e.config.TakeProfitPct))
	}
	if signal.StopLoss != nil {
		sl = *signal.StopLoss
	}
	if signal.TakeProfit != nil {
		tp = *signal.TakeProfit
	}

	stopResp, err := e.provider.PlaceOrder(ctx, exchange.OrderRequest{
		Ticker: signal.Ticker, Side: exitSide, Type: types.OrderTypeStopLoss, Quantity: quantity, StopPrice: &sl,
	})
	if err != nil {
		e.logger.Warn("bracket stop-loss placement failed", zap.Error(err))
		return
	}
	profitResp, err := e.provider.PlaceOrder(ctx, exchange.OrderRequest{
		Ticker: signal.Ticker, Side: exitSide, Type: types.OrderTypeTakeProfit, Quantity: quantity, Price: &tp,
	})
	if err != nil {
		e.logger.Warn("bracket take-profit placement failed", zap.Error(err))
		_ = e.provider.CancelOrder(ctx, stopResp.OrderID, signal.Ticker)
		return
	}

	e.mu.Lock()
	e.brackets[signal.PositionKey()] = liveBracket{stopOrderID: stopResp.OrderID, profitOrderID: profitResp.OrderID}
	e.mu.Unlock()
}

func (e *LiveExecutor) cancelBracket(ctx context.Context, key string) {
	e.mu.Lock()
	b, ok := e.brackets[key]
	delete(e.brackets, key)
	e.mu.Unlock()
	if !ok {
		return
	}
	_ = e.provider.CancelOrder(ctx, b.stopOrderID, key)
	_ = e.provider.CancelOrder(ctx, b.profitOrderID, key)
}

// CheckBracketTriggers is a no-op for the live executor: the broker's own
// resting SL/TP orders fire server-side. OnOrderFilled (wired by the
// engine from the provider's fill stream) is what should call
// cancelBracket for the sibling leg, not a client-side price scan.
func (e *LiveExecutor) CheckBracketTriggers(currentPrices map[string]decimal.Decimal) []BracketTrigger {
	return nil
}

// OnOrderFilled cancels the sibling bracket leg when either the stop-loss
// or take-profit order for a position fills, implementing OCO for
// broker-side bracket orders.
func (e *LiveExecutor) OnOrderFilled(ctx context.Context, positionKey, filledOrderID string) {
	e.mu.Lock()
	b, ok := e.brackets[positionKey]
	e.mu.Unlock()
	if !ok {
		return
	}
	if filledOrderID == b.stopOrderID {
		_ = e.provider.CancelOrder(ctx, b.profitOrderID, positionKey)
		e.clearBracket(positionKey)
	} else if filledOrderID == b.profitOrderID {
		_ = e.provider.CancelOrder(ctx, b.stopOrderID, positionKey)
		e.clearBracket(positionKey)
	}
}

func (e *LiveExecutor) clearBracket(key string) {
	e.mu.Lock()
	delete(e.brackets, key)
	e.mu.Unlock()
}

// CloseAllPositions issues a market order to flatten every open position at
// the provider.
func (e *LiveExecutor) CloseAllPositions(ctx context.Context, prices map[string]decimal.Decimal, timestamp time.Time) ([]TradeResult, error) {
	positions, err := e.provider.FetchPositions(ctx)
	if err != nil {
		return nil, err
	}

	var results []TradeResult
	for _, pos := range positions {
		side := types.OrderSideSell
		if pos.Side == types.PositionSideShort {
			side = types.OrderSideBuy
		}
		resp, err := e.provider.PlaceOrder(ctx, exchange.OrderRequest{
			Ticker: pos.Ticker, Side: side, Type: types.OrderTypeMarket, Quantity: pos.Quantity,
		})
		if err != nil {
			e.logger.Warn("forced close order failed", zap.String("ticker", pos.Ticker), zap.Error(err))
			continue
		}
		e.cancelBracket(ctx, pos.Ticker)
		results = append(results, TradeResult{
			Signal:         types.Signal{Ticker: pos.Ticker, Type: types.SignalTypeExit, Timestamp: timestamp},
			ExecutionPrice: resp.AvgFillPrice,
			Quantity:       resp.FilledQuantity,
			Timestamp:      timestamp,
			Metadata:       map[string]any{"reason": "simulation_end"},
		})
	}
	return results, nil
}
