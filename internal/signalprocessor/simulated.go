package signalprocessor

import (
	"context"
	"sync"
	"time"

	"github.com/atlas-desktop/trading-core/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SimulatedExecutor is the backtest/simulation SignalProcessor: it owns the
// simulated balance and open positions directly, with no exchange
// round-trip. Grounded on the teacher's backtester.Portfolio (weighted
// average entry, cash accounting, CloseAll) generalized to the spec's
// Signal-driven dispatch and OCO bracket semantics.
type SimulatedExecutor struct {
	logger *zap.Logger
	config Config

	mu              sync.Mutex
	balance         decimal.Decimal
	positions       map[string]*types.Position
	brackets        map[string]bracket
	totalCommission decimal.Decimal
	trades          []TradeResult
}

// NewSimulatedExecutor creates an executor with the given starting balance.
func NewSimulatedExecutor(logger *zap.Logger, initialBalance decimal.Decimal, config Config) *SimulatedExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulatedExecutor{
		logger:    logger,
		config:    config,
		balance:   initialBalance,
		positions: make(map[string]*types.Position),
		brackets:  make(map[string]bracket),
	}
}

// Balance returns the current simulated cash balance.
func (e *SimulatedExecutor) Balance() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance
}

// TotalCommission returns the running sum of every commission charged.
func (e *SimulatedExecutor) TotalCommission() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalCommission
}

// Positions returns a defensive copy of every open position, keyed by
// position key.
func (e *SimulatedExecutor) Positions() map[string]types.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]types.Position, len(e.positions))
	for k, p := range e.positions {
		out[k] = *p
	}
	return out
}

// Trades returns every TradeResult recorded so far, in execution order.
func (e *SimulatedExecutor) Trades() []TradeResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]TradeResult, len(e.trades))
	copy(out, e.trades)
	return out
}

// ProcessSignal dispatches signal to the appropriate position mutation.
func (e *SimulatedExecutor) ProcessSignal(ctx context.Context, signal types.Signal, currentPrice decimal.Decimal, timestamp time.Time) (*TradeResult, error) {
	if signal.Strength < e.config.MinStrength {
		return nil, nil
	}
	if signal.Side == types.OrderSideSell && !e.config.AllowShort && signal.Type != types.SignalTypeExit && signal.Type != types.SignalTypeReducePosition {
		return nil, ErrShortNotAllowed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	key := signal.PositionKey()
	_, exists := e.positions[key]

	switch signal.Type {
	case types.SignalTypeEntry:
		if exists {
			return nil, nil
		}
		return e.open(signal, key, currentPrice, timestamp)

	case types.SignalTypeAddToPosition:
		if !exists {
			return e.open(signal, key, currentPrice, timestamp)
		}
		return e.addTo(signal, key, currentPrice, timestamp)

	case types.SignalTypeExit, types.SignalTypeReducePosition:
		if !exists {
			return nil, nil
		}
		return e.closeOrReduce(signal, key, currentPrice, timestamp)

	case types.SignalTypeScale:
		if exists {
			return e.closeOrReduce(signal, key, currentPrice, timestamp)
		}
		if signal.Side == types.OrderSideSell && !e.config.AllowShort {
			return nil, ErrShortNotAllowed
		}
		return e.open(signal, key, currentPrice, timestamp)

	case types.SignalTypeAlert:
		return nil, nil

	default:
		return nil, nil
	}
}

func (e *SimulatedExecutor) open(signal types.Signal, key string, price decimal.Decimal, timestamp time.Time) (*TradeResult, error) {
	if e.config.MaxOpenPositions > 0 && len(e.positions) >= e.config.MaxOpenPositions {
		return nil, ErrMaxPositionsExceeded
	}

	fillPrice := executionPrice(price, signal.Side, e.config.SlippageRate)
	if !fillPrice.IsPositive() {
		return nil, ErrInvalidPrice
	}

	targetAmount := e.balance.Mul(e.config.MaxPositionSizePct).Mul(decimal.NewFromFloat(signal.Strength))
	quantity := targetAmount.Div(fillPrice)
	commission := targetAmount.Mul(e.config.CommissionRate)
	if targetAmount.Add(commission).GreaterThan(e.balance) {
		return nil, ErrInsufficientFunds
	}

	side := types.PositionSideLong
	if signal.Side == types.OrderSideSell {
		side = types.PositionSideShort
	}

	e.balance = e.balance.Sub(targetAmount).Sub(commission)
	e.totalCommission = e.totalCommission.Add(commission)

	pos := &types.Position{
		Symbol:          signal.Ticker,
		Side:            side,
		Quantity:        quantity,
		EntryPrice:      fillPrice,
		CurrentPrice:    fillPrice,
		AccumulatedFees: commission,
		OpenedAt:        timestamp,
		PositionID:      signal.PositionID,
		GroupID:         signal.GroupID,
	}
	e.positions[key] = pos
	e.applyBracket(key, pos, signal)

	result := TradeResult{
		Signal:         signal,
		Position:       copyPos(pos),
		Commission:     commission,
		ExecutionPrice: fillPrice,
		Quantity:       quantity,
		Timestamp:      timestamp,
	}
	e.trades = append(e.trades, result)
	return &result, nil
}

func (e *SimulatedExecutor) addTo(signal types.Signal, key string, price decimal.Decimal, timestamp time.Time) (*TradeResult, error) {
	pos := e.positions[key]

	fillPrice := executionPrice(price, signal.Side, e.config.SlippageRate)
	if !fillPrice.IsPositive() {
		return nil, ErrInvalidPrice
	}

	targetAmount := e.balance.Mul(e.config.MaxPositionSizePct).Mul(decimal.NewFromFloat(signal.Strength))
	addQty := targetAmount.Div(fillPrice)
	commission := targetAmount.Mul(e.config.CommissionRate)
	if targetAmount.Add(commission).GreaterThan(e.balance) {
		return nil, ErrInsufficientFunds
	}

	newEntry := pos.Quantity.Mul(pos.EntryPrice).Add(addQty.Mul(fillPrice)).Div(pos.Quantity.Add(addQty))

	e.balance = e.balance.Sub(targetAmount).Sub(commission)
	e.totalCommission = e.totalCommission.Add(commission)

	pos.Quantity = pos.Quantity.Add(addQty)
	pos.EntryPrice = newEntry
	pos.CurrentPrice = fillPrice
	pos.AccumulatedFees = pos.AccumulatedFees.Add(commission)
	e.applyBracket(key, pos, signal)

	result := TradeResult{
		Signal:         signal,
		Position:       copyPos(pos),
		Commission:     commission,
		ExecutionPrice: fillPrice,
		Quantity:       addQty,
		Timestamp:      timestamp,
	}
	e.trades = append(e.trades, result)
	return &result, nil
}

func (e *SimulatedExecutor) closeOrReduce(signal types.Signal, key string, price decimal.Decimal, timestamp time.Time) (*TradeResult, error) {
	pos := e.positions[key]

	exitSide := types.OrderSideSell
	if pos.Side == types.PositionSideShort {
		exitSide = types.OrderSideBuy
	}
	fillPrice := executionPrice(price, exitSide, e.config.SlippageRate)
	if !fillPrice.IsPositive() {
		return nil, ErrInvalidPrice
	}

	closeQty := reduceQuantity(signal, pos.Quantity)
	if closeQty.GreaterThan(pos.Quantity) {
		closeQty = pos.Quantity
	}

	notional := closeQty.Mul(fillPrice)
	commission := notional.Mul(e.config.CommissionRate)
	pnl := realizedPnL(pos.EntryPrice, fillPrice, closeQty, pos.Side, commission)

	e.balance = e.balance.Add(notional).Sub(commission)
	e.totalCommission = e.totalCommission.Add(commission)

	remaining := pos.Quantity.Sub(closeQty)
	var resultPos *types.Position
	if remaining.IsPositive() {
		pos.Quantity = remaining
		pos.CurrentPrice = fillPrice
		pos.AccumulatedFees = pos.AccumulatedFees.Add(commission)
		resultPos = copyPos(pos)
	} else {
		delete(e.positions, key)
		delete(e.brackets, key)
	}

	result := TradeResult{
		Signal:         signal,
		Position:       resultPos,
		RealizedPnL:    pnl,
		Commission:     commission,
		ExecutionPrice: fillPrice,
		Quantity:       closeQty,
		Timestamp:      timestamp,
	}
	e.trades = append(e.trades, result)
	return &result, nil
}

// applyBracket records SL/TP levels for an entry/add signal when bracket
// orders are enabled and the signal didn't already request explicit levels;
// an explicit StopLoss/TakeProfit on the signal always wins.
func (e *SimulatedExecutor) applyBracket(key string, pos *types.Position, signal types.Signal) {
	if !e.config.BracketEnabled {
		return
	}
	b := e.brackets[key]
	one := decimal.NewFromInt(1)
	if signal.StopLoss != nil {
		b.stopLoss = *signal.StopLoss
	} else if pos.Side == types.PositionSideLong {
		b.stopLoss = pos.EntryPrice.Mul(one.Sub(e.config.StopLossPct))
	} else {
		b.stopLoss = pos.EntryPrice.Mul(one.Add(e.config.StopLossPct))
	}
	if signal.TakeProfit != nil {
		b.takeProfit = *signal.TakeProfit
	} else if pos.Side == types.PositionSideLong {
		b.takeProfit = pos.EntryPrice.Mul(one.Add(e.config.TakeProfitPct))
	} else {
		b.takeProfit = pos.EntryPrice.Mul(one.Sub(e.config.TakeProfitPct))
	}
	e.brackets[key] = b
}

// CheckBracketTriggers scans every bracketed position against
// currentPrices, applying OCO semantics: stop-loss is checked first per
// key, and firing it suppresses the take-profit check for that key on this
// call (exact port of the original's continue-after-SL idiom).
func (e *SimulatedExecutor) CheckBracketTriggers(currentPrices map[string]decimal.Decimal) []BracketTrigger {
	e.mu.Lock()
	defer e.mu.Unlock()

	var triggers []BracketTrigger
	for key, b := range e.brackets {
		pos, ok := e.positions[key]
		if !ok {
			continue
		}
		price, ok := currentPrices[pos.Symbol]
		if !ok {
			continue
		}

		if pos.Side == types.PositionSideLong {
			if price.LessThanOrEqual(b.stopLoss) {
				triggers = append(triggers, BracketTrigger{PositionKey: key, Reason: "stop_loss"})
				continue
			}
			if price.GreaterThanOrEqual(b.takeProfit) {
				triggers = append(triggers, BracketTrigger{PositionKey: key, Reason: "take_profit"})
			}
		} else {
			if price.GreaterThanOrEqual(b.stopLoss) {
				triggers = append(triggers, BracketTrigger{PositionKey: key, Reason: "stop_loss"})
				continue
			}
			if price.LessThanOrEqual(b.takeProfit) {
				triggers = append(triggers, BracketTrigger{PositionKey: key, Reason: "take_profit"})
			}
		}
	}
	return triggers
}

// CloseAllPositions force-closes every open position at prices[symbol]
// (falling back to the position's entry price if the symbol is absent),
// recording each as an Exit-type TradeResult tagged "simulation_end".
func (e *SimulatedExecutor) CloseAllPositions(ctx context.Context, prices map[string]decimal.Decimal, timestamp time.Time) ([]TradeResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var results []TradeResult
	for key, pos := range e.positions {
		price, ok := prices[pos.Symbol]
		if !ok {
			price = pos.EntryPrice
		}

		exitSide := types.OrderSideSell
		if pos.Side == types.PositionSideShort {
			exitSide = types.OrderSideBuy
		}
		fillPrice := executionPrice(price, exitSide, e.config.SlippageRate)
		notional := pos.Quantity.Mul(fillPrice)
		commission := notional.Mul(e.config.CommissionRate)
		pnl := realizedPnL(pos.EntryPrice, fillPrice, pos.Quantity, pos.Side, commission)

		e.balance = e.balance.Add(notional).Sub(commission)
		e.totalCommission = e.totalCommission.Add(commission)

		sig := types.Signal{
			Ticker:     pos.Symbol,
			Type:       types.SignalTypeExit,
			PositionID: pos.PositionID,
			Timestamp:  timestamp,
		}
		result := TradeResult{
			Signal:         sig,
			RealizedPnL:    pnl,
			Commission:     commission,
			ExecutionPrice: fillPrice,
			Quantity:       pos.Quantity,
			Timestamp:      timestamp,
			Metadata:       map[string]any{"reason": "simulation_end", "position_id": key},
		}
		results = append(results, result)
		e.trades = append(e.trades, result)

		delete(e.positions, key)
		delete(e.brackets, key)
	}
	return results, nil
}

func copyPos(p *types.Position) *types.Position {
	cp := *p
	return &cp
}
