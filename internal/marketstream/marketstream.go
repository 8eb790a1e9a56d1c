// Package marketstream implements a reconnect-aware full-duplex market data
// client: a single goroutine owns the socket and the subscription set, a
// bounded command channel lets callers subscribe/unsubscribe while
// connected, and a consumer-owned event channel carries parsed ticks,
// order book updates, connection status changes, and parse errors.
//
// Grounded on the reconnect/subscribe-pacing state machine in
// original_source/connector/kis/websocket_kr.rs, adapted to the teacher's
// gorilla/websocket + zap idiom from internal/api/websocket.go.
package marketstream

import (
	"time"
)

// Tuning constants, per SPEC_FULL.md §4.5.
const (
	MaxReconnectAttempts = 3
	ReconnectDelay       = 5 * time.Second
	PingInterval         = 30 * time.Second
	SubscribeInterval    = 200 * time.Millisecond
	commandChannelSize   = 64
)

// CommandKind distinguishes the two dynamic subscription commands.
type CommandKind int

const (
	CommandSubscribe CommandKind = iota
	CommandUnsubscribe
)

// Command is a dynamic subscribe/unsubscribe request sent over a stream's
// command channel while it is connected (or queued for replay once it is).
type Command struct {
	Kind  CommandKind
	TrID  string
	TrKey string
}

func (c Command) key() subscriptionKey {
	return subscriptionKey{TrID: c.TrID, TrKey: c.TrKey}
}

type subscriptionKey struct {
	TrID  string
	TrKey string
}

// Trade is a single real-time execution tick.
type Trade struct {
	Symbol      string
	Price       float64
	Volume      int64
	AccVolume   int64
	TradeTime   string
	Sign        string
	Change      float64
	ChangeRate  float64
}

// OrderBookUpdate is a real-time quote snapshot.
type OrderBookUpdate struct {
	Symbol        string
	AskPrices     []float64
	AskVolumes    []int64
	BidPrices     []float64
	BidVolumes    []int64
	OrderbookTime string
}

// EventKind tags the payload carried by a StreamEvent.
type EventKind int

const (
	EventTrade EventKind = iota
	EventOrderBook
	EventConnectionStatus
	EventError
)

// StreamEvent is the single type flowing out of a client's event channel.
// Exactly one of the payload fields is meaningful, selected by Kind.
type StreamEvent struct {
	Kind             EventKind
	Trade            Trade
	OrderBook        OrderBookUpdate
	ConnectionStatus bool
	Err              string
}

// State is the client's connection state machine position.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}
