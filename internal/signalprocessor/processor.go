// Package signalprocessor converts accepted strategy signals into position
// mutations, commissions, and bracket orders. Grounded on the teacher's
// internal/backtester/portfolio.go (position arithmetic) and
// internal/backtester/orders.go (fill/slippage mechanics), generalized from
// the teacher's OrderManager/Portfolio split into a single SignalProcessor
// capability interface with two implementations per SPEC_FULL.md §4.3.
package signalprocessor

import (
	"context"
	"errors"
	"time"

	"github.com/atlas-desktop/trading-core/pkg/types"
	"github.com/shopspring/decimal"
)

// Sentinel errors, matching the original's error taxonomy.
var (
	ErrInvalidPrice         = errors.New("signalprocessor: invalid execution price")
	ErrInsufficientFunds    = errors.New("signalprocessor: insufficient funds")
	ErrMaxPositionsExceeded = errors.New("signalprocessor: max open positions exceeded")
	ErrShortNotAllowed      = errors.New("signalprocessor: short side not allowed")
)

// Config holds the execution parameters a SignalProcessor applies uniformly
// to every signal it processes.
type Config struct {
	MinStrength        float64
	MaxPositionSizePct decimal.Decimal
	CommissionRate     decimal.Decimal
	SlippageRate       decimal.Decimal
	AllowShort         bool
	MaxOpenPositions   int
	BracketEnabled     bool
	StopLossPct        decimal.Decimal
	TakeProfitPct      decimal.Decimal
}

// TradeResult is the outcome of a single ProcessSignal call that mutated a
// position: the fill terms and, for a closing fill, the realized P&L.
type TradeResult struct {
	Signal         types.Signal
	Position       *types.Position
	RealizedPnL    decimal.Decimal
	Commission     decimal.Decimal
	ExecutionPrice decimal.Decimal
	Quantity       decimal.Decimal
	Timestamp      time.Time
	Metadata       map[string]any
}

// BracketTrigger reports that a resting stop-loss or take-profit level has
// been crossed for the position at PositionKey.
type BracketTrigger struct {
	PositionKey string
	Reason      string // "stop_loss" | "take_profit"
}

// SignalProcessor is the capability set both the simulated and live
// executors implement.
type SignalProcessor interface {
	ProcessSignal(ctx context.Context, signal types.Signal, currentPrice decimal.Decimal, timestamp time.Time) (*TradeResult, error)
	CloseAllPositions(ctx context.Context, prices map[string]decimal.Decimal, timestamp time.Time) ([]TradeResult, error)
	CheckBracketTriggers(currentPrices map[string]decimal.Decimal) []BracketTrigger
}

type bracket struct {
	stopLoss   decimal.Decimal
	takeProfit decimal.Decimal
}

// executionPrice applies the configured slippage rate to a requested price:
// buys pay up, sells receive less, matching the original's
// price*(1 +/- rate) model.
func executionPrice(requested decimal.Decimal, side types.OrderSide, slippageRate decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if side == types.OrderSideBuy {
		return requested.Mul(one.Add(slippageRate))
	}
	return requested.Mul(one.Sub(slippageRate))
}

// reduceQuantity resolves how much of a position a ReducePosition/Scale-close
// signal wants closed, per the precedence documented in SPEC_FULL.md §9:
// reduce_quantity (absolute) > reduce_fraction (0 < f <= 1) > full close.
func reduceQuantity(signal types.Signal, positionQty decimal.Decimal) decimal.Decimal {
	if signal.Metadata != nil {
		if raw, ok := signal.Metadata["reduce_quantity"]; ok {
			if q, ok := toDecimal(raw); ok && q.IsPositive() {
				return decimalMin(q, positionQty)
			}
		}
		if raw, ok := signal.Metadata["reduce_fraction"]; ok {
			if f, ok := toDecimal(raw); ok && f.IsPositive() && f.LessThanOrEqual(decimal.NewFromInt(1)) {
				return positionQty.Mul(f)
			}
		}
	}
	return positionQty
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case float64:
		return decimal.NewFromFloat(n), true
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}

func decimalMin(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

func realizedPnL(entry, exit, qty decimal.Decimal, side types.PositionSide, commission decimal.Decimal) decimal.Decimal {
	diff := exit.Sub(entry)
	if side == types.PositionSideShort {
		diff = diff.Neg()
	}
	return diff.Mul(qty).Sub(commission)
}
