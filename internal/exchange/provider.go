// Package exchange provides the uniform facade over heterogeneous broker
// APIs: account/position/order lookups, order placement, and execution
// history, all behind a TTL-cached Provider interface. Grounded on the
// teacher's internal/execution/adapters/binance.go (REST request shape,
// rate limiting) and internal/execution/order_manager.go (order lifecycle),
// generalized from a single-exchange adapter to the multi-market (Korean
// equity / US equity / crypto) facade SPEC_FULL.md §4.4 calls for.
package exchange

import (
	"context"
	"time"

	"github.com/atlas-desktop/trading-core/pkg/types"
	"github.com/shopspring/decimal"
)

// Account is a broker account's balance snapshot.
type Account struct {
	TotalBalance     decimal.Decimal
	AvailableBalance decimal.Decimal
	MarginUsed       decimal.Decimal
	UnrealizedPnL    decimal.Decimal
	Currency         string
}

// Position is a broker-reported open position.
type Position struct {
	Ticker           string
	Side             types.PositionSide
	Quantity         decimal.Decimal
	AvgEntryPrice    decimal.Decimal
	CurrentPrice     decimal.Decimal
	UnrealizedPnL    decimal.Decimal
	UnrealizedPnLPct decimal.Decimal
}

// HistoryRequest parameterizes a FetchExecutionHistory call.
type HistoryRequest struct {
	StartDate time.Time
	EndDate   time.Time
	Cursor    *string
	Side      *types.OrderSide
}

// HistoryResponse is one page of execution history. NextCursor is opaque
// to callers; a nil NextCursor means the page is the last one.
type HistoryResponse struct {
	Trades     []types.Execution
	NextCursor *string
}

// OrderRequest describes a new order to place.
type OrderRequest struct {
	Ticker        string
	Side          types.OrderSide
	Type          types.OrderType
	Quantity      decimal.Decimal
	Price         *decimal.Decimal
	StopPrice     *decimal.Decimal
	ClientOrderID string
}

// OrderResponse is the broker's acknowledgment of an OrderRequest.
type OrderResponse struct {
	OrderID        string
	Status         types.OrderStatus
	FilledQuantity decimal.Decimal
	AvgFillPrice   decimal.Decimal
	CreatedAt      time.Time
}

// Quote is a point-in-time price snapshot for a symbol.
type Quote struct {
	Symbol        string
	CurrentPrice  decimal.Decimal
	PriceChange   decimal.Decimal
	ChangePercent decimal.Decimal
	High          decimal.Decimal
	Low           decimal.Decimal
	Open          decimal.Decimal
	PrevClose     decimal.Decimal
	Volume        decimal.Decimal
	TradingValue  decimal.Decimal
	Timestamp     time.Time
}

// Provider is the uniform facade every broker adapter implements.
type Provider interface {
	FetchAccount(ctx context.Context) (Account, error)
	FetchPositions(ctx context.Context) ([]Position, error)
	FetchPendingOrders(ctx context.Context) ([]types.PendingOrder, error)
	FetchExecutionHistory(ctx context.Context, req HistoryRequest) (HistoryResponse, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResponse, error)
	CancelOrder(ctx context.Context, orderID, ticker string) error
	ModifyOrder(ctx context.Context, orderID, ticker string, quantity, price *decimal.Decimal) error
	GetQuote(ctx context.Context, symbol string) (Quote, error)
}
