// Package types provides shared domain type definitions for the trading
// core: tickers, sides, timeframes, klines, signals, positions, and the
// backtest reporting types the engines produce.
package types

import (
	"time"

	"github.com/atlas-desktop/trading-core/pkg/decimalx"
	"github.com/shopspring/decimal"
)

// OrderSide represents buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType represents the type of order.
type OrderType string

const (
	OrderTypeMarket     OrderType = "market"
	OrderTypeLimit      OrderType = "limit"
	OrderTypeStopLimit  OrderType = "stop_limit"
	OrderTypeStopMarket OrderType = "stop_market"
	OrderTypeStopLoss   OrderType = "stop_loss"
	OrderTypeTakeProfit OrderType = "take_profit"
)

// OrderStatus represents the status of an order.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusOpen           OrderStatus = "open"
	OrderStatusFilled         OrderStatus = "filled"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusRejected       OrderStatus = "rejected"
	OrderStatusExpired        OrderStatus = "expired"
)

// PositionSide represents long or short exposure.
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// SignalType represents the action a strategy is requesting. Entry/Exit
// carry out full position transitions; AddToPosition/ReducePosition are
// partial transitions against an existing position; Scale behaves as
// whichever of the two applies depending on current state; Alert never
// reaches the signal processor's fill logic.
type SignalType string

const (
	SignalTypeEntry          SignalType = "entry"
	SignalTypeExit           SignalType = "exit"
	SignalTypeAlert          SignalType = "alert"
	SignalTypeAddToPosition  SignalType = "add_to_position"
	SignalTypeReducePosition SignalType = "reduce_position"
	SignalTypeScale          SignalType = "scale"
)

// Timeframe represents a discrete candle interval.
type Timeframe string

const (
	TimeframeM1  Timeframe = "M1"
	TimeframeM3  Timeframe = "M3"
	TimeframeM5  Timeframe = "M5"
	TimeframeM15 Timeframe = "M15"
	TimeframeM30 Timeframe = "M30"
	TimeframeH1  Timeframe = "H1"
	TimeframeH2  Timeframe = "H2"
	TimeframeH4  Timeframe = "H4"
	TimeframeH6  Timeframe = "H6"
	TimeframeH8  Timeframe = "H8"
	TimeframeH12 Timeframe = "H12"
	TimeframeD1  Timeframe = "D1"
	TimeframeD3  Timeframe = "D3"
	TimeframeW1  Timeframe = "W1"
	TimeframeMN1 Timeframe = "MN1"
)

// Duration returns the nominal bar length for close-time inference. Weekly
// and monthly bars use calendar approximations (7d, 30d) since exact
// month boundaries are a calendar concern the core does not model.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TimeframeM1:
		return time.Minute
	case TimeframeM3:
		return 3 * time.Minute
	case TimeframeM5:
		return 5 * time.Minute
	case TimeframeM15:
		return 15 * time.Minute
	case TimeframeM30:
		return 30 * time.Minute
	case TimeframeH1:
		return time.Hour
	case TimeframeH2:
		return 2 * time.Hour
	case TimeframeH4:
		return 4 * time.Hour
	case TimeframeH6:
		return 6 * time.Hour
	case TimeframeH8:
		return 8 * time.Hour
	case TimeframeH12:
		return 12 * time.Hour
	case TimeframeD1:
		return 24 * time.Hour
	case TimeframeD3:
		return 3 * 24 * time.Hour
	case TimeframeW1:
		return 7 * 24 * time.Hour
	case TimeframeMN1:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// MarketTag identifies which broker-facing market a ticker belongs to.
// Providers use it to pick a symbol-routing sub-route; the core never
// branches on it directly.
type MarketTag string

const (
	MarketKorea  MarketTag = "kr_equity"
	MarketUS     MarketTag = "us_equity"
	MarketCrypto MarketTag = "crypto"
)

// RouteState is the coarse regime label consumed by strategy filters.
type RouteState string

const (
	RouteStateIdle     RouteState = "idle"
	RouteStateWait     RouteState = "wait"
	RouteStateArmed    RouteState = "armed"
	RouteStateAttack   RouteState = "attack"
	RouteStateOverheat RouteState = "overheat"
)

// Kline is an OHLCV bar for a ticker and timeframe. Identity is
// (Ticker, Timeframe, OpenTime).
type Kline struct {
	Ticker    string          `json:"ticker"`
	Timeframe Timeframe       `json:"timeframe"`
	OpenTime  time.Time       `json:"openTime"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	CloseTime time.Time       `json:"closeTime"`
}

// Valid reports whether the kline satisfies the data-model invariants:
// open_time < close_time and low <= min(open,close) <= max(open,close) <= high.
func (k Kline) Valid() bool {
	if !k.OpenTime.Before(k.CloseTime) {
		return false
	}
	if k.Volume.IsNegative() {
		return false
	}
	lowerBody := decimalx.Min(k.Open, k.Close)
	upperBody := decimalx.Max(k.Open, k.Close)
	if k.Low.GreaterThan(lowerBody) || upperBody.GreaterThan(k.High) {
		return false
	}
	return true
}

// Signal is a strategy's request to act.
type Signal struct {
	ID             string          `json:"id"`
	StrategyID     string          `json:"strategyId"`
	Ticker         string          `json:"ticker"`
	Side           OrderSide       `json:"side"`
	Type           SignalType      `json:"type"`
	Strength       float64         `json:"strength"`
	SuggestedPrice *decimal.Decimal `json:"suggestedPrice,omitempty"`
	StopLoss       *decimal.Decimal `json:"stopLoss,omitempty"`
	TakeProfit     *decimal.Decimal `json:"takeProfit,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	PositionID     *string         `json:"positionId,omitempty"`
	GroupID        *string         `json:"groupId,omitempty"`
}

// PositionKey returns the key the signal processor uses to identify the
// position this signal acts on: PositionID if set, else Ticker.
func (s Signal) PositionKey() string {
	if s.PositionID != nil && *s.PositionID != "" {
		return *s.PositionID
	}
	return s.Ticker
}

// IsEntry reports whether the signal type opens or adds to exposure.
func (s Signal) IsEntry() bool {
	return s.Type == SignalTypeEntry || s.Type == SignalTypeAddToPosition
}

// IsExit reports whether the signal type reduces or closes exposure.
func (s Signal) IsExit() bool {
	return s.Type == SignalTypeExit || s.Type == SignalTypeReducePosition
}

// IsStrong reports whether the signal meets the conventional "strong
// signal" threshold of 0.7.
func (s Signal) IsStrong() bool {
	return s.Strength >= 0.7
}

// Position is a processor-local open exposure.
type Position struct {
	Symbol          string          `json:"symbol"`
	Side            PositionSide    `json:"side"`
	Quantity        decimal.Decimal `json:"quantity"`
	EntryPrice      decimal.Decimal `json:"entryPrice"`
	CurrentPrice    decimal.Decimal `json:"currentPrice"`
	UnrealizedPnL   decimal.Decimal `json:"unrealizedPnl"`
	AccumulatedFees decimal.Decimal `json:"accumulatedFees"`
	OpenedAt        time.Time       `json:"openedAt"`
	PositionID      *string         `json:"positionId,omitempty"`
	GroupID         *string         `json:"groupId,omitempty"`
}

// UnrealizedPnL computes mark-to-market P&L for qty units at currentPrice
// given an entry price and side; sign-inverted for shorts.
func UnrealizedPnL(entryPrice, currentPrice, qty decimal.Decimal, side PositionSide) decimal.Decimal {
	diff := currentPrice.Sub(entryPrice)
	if side == PositionSideShort {
		diff = diff.Neg()
	}
	return diff.Mul(qty)
}

// PendingOrder is a broker-acknowledged but not-yet-fully-filled order.
type PendingOrder struct {
	OrderID        string          `json:"orderId"`
	Ticker         string          `json:"ticker"`
	Side           OrderSide       `json:"side"`
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
	FilledQuantity decimal.Decimal `json:"filledQuantity"`
	Status         OrderStatus     `json:"status"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Execution is a single fill/trade record.
type Execution struct {
	ID              string          `json:"id"`
	OrderID         string          `json:"orderId"`
	Exchange        string          `json:"exchange"`
	ExchangeTradeID string          `json:"exchangeTradeId"`
	Ticker          string          `json:"ticker"`
	Side            OrderSide       `json:"side"`
	Quantity        decimal.Decimal `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	Fee             decimal.Decimal `json:"fee"`
	FeeCurrency     string          `json:"feeCurrency"`
	ExecutedAt      time.Time       `json:"executedAt"`
	IsMaker         bool            `json:"isMaker"`
	RawMetadata     map[string]any  `json:"rawMetadata,omitempty"`
}

// OrderBookLevel is a single price level in a synthesized or real book.
type OrderBookLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// OrderBook is a snapshot of bid/ask depth.
type OrderBook struct {
	Symbol    string           `json:"symbol"`
	Bids      []OrderBookLevel `json:"bids"`
	Asks      []OrderBookLevel `json:"asks"`
	Timestamp time.Time        `json:"timestamp"`
}

// Portfolio is the current portfolio state as reported by an engine.
type Portfolio struct {
	Cash      decimal.Decimal      `json:"cash"`
	Equity    decimal.Decimal      `json:"equity"`
	Positions map[string]*Position `json:"positions"`
	TotalPnL  decimal.Decimal      `json:"totalPnl"`
	DailyPnL  decimal.Decimal      `json:"dailyPnl"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// PerformanceMetrics summarizes a backtest run's return/trade profile.
type PerformanceMetrics struct {
	TotalReturn      decimal.Decimal `json:"totalReturn"`
	AnnualizedReturn decimal.Decimal `json:"annualizedReturn"`
	SharpeRatio      decimal.Decimal `json:"sharpeRatio"`
	SortinoRatio     decimal.Decimal `json:"sortinoRatio"`
	MaxDrawdown      decimal.Decimal `json:"maxDrawdown"`
	MaxDrawdownDate  time.Time       `json:"maxDrawdownDate"`
	WinRate          decimal.Decimal `json:"winRate"`
	ProfitFactor     decimal.Decimal `json:"profitFactor"`
	TotalTrades      int             `json:"totalTrades"`
	WinningTrades    int             `json:"winningTrades"`
	LosingTrades     int             `json:"losingTrades"`
	AvgWin           decimal.Decimal `json:"avgWin"`
	AvgLoss          decimal.Decimal `json:"avgLoss"`
	Expectancy       decimal.Decimal `json:"expectancy"`
}

// EquityCurvePoint is a single point on a backtest's equity curve.
type EquityCurvePoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Equity    decimal.Decimal `json:"equity"`
	Cash      decimal.Decimal `json:"cash"`
	Drawdown  decimal.Decimal `json:"drawdown"`
}

// Trade is a completed fill recorded for a backtest report.
type Trade struct {
	ID         string          `json:"id"`
	OrderID    string          `json:"orderId"`
	Symbol     string          `json:"symbol"`
	Side       OrderSide       `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Commission decimal.Decimal `json:"commission"`
	Slippage   decimal.Decimal `json:"slippage"`
	PnL        decimal.Decimal `json:"pnl"`
	ExecutedAt time.Time       `json:"executedAt"`
}

// RiskMetrics summarizes a backtest run's risk profile.
type RiskMetrics struct {
	VaR95            decimal.Decimal `json:"var95"`
	VaR99            decimal.Decimal `json:"var99"`
	CVaR95           decimal.Decimal `json:"cvar95"`
	DailyVolatility  decimal.Decimal `json:"dailyVolatility"`
	AnnualVolatility decimal.Decimal `json:"annualVolatility"`
	Beta             decimal.Decimal `json:"beta"`
	Alpha            decimal.Decimal `json:"alpha"`
	Correlation      decimal.Decimal `json:"correlation"`
}

// MonteCarloResult summarizes a Monte Carlo resample of a backtest's trade
// sequence (§4.3's ValidationConfig.MonteCarlo).
type MonteCarloResult struct {
	Iterations      int               `json:"iterations"`
	MedianReturn    decimal.Decimal   `json:"medianReturn"`
	P5Return        decimal.Decimal   `json:"p5Return"`
	P95Return       decimal.Decimal   `json:"p95Return"`
	ProbabilityRuin decimal.Decimal   `json:"probabilityRuin"`
	MaxDrawdownP95  decimal.Decimal   `json:"maxDrawdownP95"`
	Distribution    []decimal.Decimal `json:"distribution"`
}

// WalkForwardWindow is a single in-sample/out-sample split of a walk-forward
// validation run.
type WalkForwardWindow struct {
	InSampleStart    time.Time           `json:"inSampleStart"`
	InSampleEnd      time.Time           `json:"inSampleEnd"`
	OutSampleStart   time.Time           `json:"outSampleStart"`
	OutSampleEnd     time.Time           `json:"outSampleEnd"`
	InSampleMetrics  *PerformanceMetrics `json:"inSampleMetrics"`
	OutSampleMetrics *PerformanceMetrics `json:"outSampleMetrics"`
}

// WalkForwardResult is the full set of walk-forward windows plus the
// aggregate robustness score.
type WalkForwardResult struct {
	Windows        []WalkForwardWindow `json:"windows"`
	OverallMetrics *PerformanceMetrics `json:"overallMetrics"`
	Robustness     decimal.Decimal     `json:"robustness"`
}
