// Package notify defines the tagged notification event this module emits
// and a worker-pool bus to fan events out to transport-specific
// subscribers. Transports (push, webhook, in-app feed, ...) live outside
// this module and register handlers through Subscribe/SubscribeAll; this
// package never renders a message, it only carries structured events.
//
// Adapted from the worker-pool event bus in internal/events/event_bus.go,
// narrowed to the single tagged Event type this runtime needs instead of
// a per-event-kind struct hierarchy.
package notify

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EventKind tags the meaning of an Event's Payload.
type EventKind string

const (
	EventOrderFilled         EventKind = "order_filled"
	EventPositionOpened      EventKind = "position_opened"
	EventPositionClosed      EventKind = "position_closed"
	EventStopLossTriggered   EventKind = "stop_loss_triggered"
	EventTakeProfitTriggered EventKind = "take_profit_triggered"
	EventSignalAlert         EventKind = "signal_alert"
	EventSystemError         EventKind = "system_error"
	EventRiskAlert           EventKind = "risk_alert"
	EventRouteStateChanged   EventKind = "route_state_changed"
	EventMacroAlert          EventKind = "macro_alert"
	EventMarketBreadthAlert  EventKind = "market_breadth_alert"
	EventDailySummary        EventKind = "daily_summary"
	EventStrategyStarted     EventKind = "strategy_started"
	EventStrategyStopped     EventKind = "strategy_stopped"
	EventCustom              EventKind = "custom"
)

// Priority ranks how urgently a transport should surface an Event.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// Event is the single notification type flowing through the bus. Payload
// carries kind-specific data (e.g. a types.Trade for OrderFilled, a
// types.RouteState pair for RouteStateChanged); subscribers type-assert on
// it using Kind as the discriminant.
type Event struct {
	Kind      EventKind
	Priority  Priority
	Timestamp time.Time
	Payload   any
}

// Handler processes one Event. A non-nil return is logged but never stops
// delivery to other subscribers.
type Handler func(Event) error

// Filter can selectively accept or reject an Event before it reaches a
// Handler.
type Filter func(Event) bool

// SubscriptionOptions configures how a Handler is invoked.
type SubscriptionOptions struct {
	Filter Filter
	Async  bool // run the handler on its own goroutine per event
}

// Subscription is a live registration returned by Subscribe/SubscribeAll.
// Passing it to Unsubscribe deactivates it without needing to touch the
// bus's internal maps.
type Subscription struct {
	id       int64
	kind     EventKind
	handler  Handler
	options  SubscriptionOptions
	active   atomic.Bool
}

func (s *Subscription) IsActive() bool { return s.active.Load() }

// Stats is a point-in-time snapshot of bus throughput counters.
type Stats struct {
	Published         int64
	Processed         int64
	Dropped           int64
	HandlerErrors     int64
	ActiveSubscribers int64
}

// BusConfig configures an EventBus's worker pool and buffering.
type BusConfig struct {
	Workers    int
	BufferSize int
}

// DefaultBusConfig sizes the bus for a single-process trading runtime: far
// fewer workers than the teacher's 100K-events/sec design, since this bus
// carries point-in-time trading notifications, not tick-level market data.
func DefaultBusConfig() BusConfig {
	return BusConfig{Workers: 4, BufferSize: 1024}
}

// EventBus fans Events out to type-specific and catch-all subscribers on a
// fixed worker pool. Publish never blocks the caller: a full buffer drops
// the event and increments Dropped.
type EventBus struct {
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers map[EventKind][]*Subscription
	allSubs     []*Subscription

	events chan Event

	published atomic.Int64
	processed atomic.Int64
	dropped   atomic.Int64
	errs      atomic.Int64
	nextSubID atomic.Int64

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewEventBus starts cfg.Workers goroutines draining the event channel.
// Call Close to stop them.
func NewEventBus(logger *zap.Logger, cfg BusConfig) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultBusConfig().Workers
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBusConfig().BufferSize
	}

	eb := &EventBus{
		logger:      logger,
		subscribers: make(map[EventKind][]*Subscription),
		events:      make(chan Event, cfg.BufferSize),
		stop:        make(chan struct{}),
	}

	for i := 0; i < cfg.Workers; i++ {
		eb.wg.Add(1)
		go eb.worker()
	}
	return eb
}

func (eb *EventBus) worker() {
	defer eb.wg.Done()
	for {
		select {
		case <-eb.stop:
			return
		case ev := <-eb.events:
			eb.dispatch(ev)
			eb.processed.Add(1)
		}
	}
}

func (eb *EventBus) dispatch(ev Event) {
	eb.mu.RLock()
	subs := eb.subscribers[ev.Kind]
	all := eb.allSubs
	eb.mu.RUnlock()

	for _, sub := range subs {
		eb.deliver(sub, ev)
	}
	for _, sub := range all {
		eb.deliver(sub, ev)
	}
}

func (eb *EventBus) deliver(sub *Subscription, ev Event) {
	if !sub.active.Load() {
		return
	}
	if sub.options.Filter != nil && !sub.options.Filter(ev) {
		return
	}
	if sub.options.Async {
		go eb.invoke(sub, ev)
	} else {
		eb.invoke(sub, ev)
	}
}

func (eb *EventBus) invoke(sub *Subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.errs.Add(1)
			eb.logger.Error("notify handler panicked", zap.Any("panic", r), zap.String("kind", string(ev.Kind)))
		}
	}()
	if err := sub.handler(ev); err != nil {
		eb.errs.Add(1)
		eb.logger.Warn("notify handler error", zap.Error(err), zap.String("kind", string(ev.Kind)))
	}
}

// Subscribe registers handler for events of the given kind.
func (eb *EventBus) Subscribe(kind EventKind, handler Handler, opts ...SubscriptionOptions) *Subscription {
	options := SubscriptionOptions{Async: true}
	if len(opts) > 0 {
		options = opts[0]
	}
	sub := &Subscription{id: eb.nextSubID.Add(1), kind: kind, handler: handler, options: options}
	sub.active.Store(true)

	eb.mu.Lock()
	eb.subscribers[kind] = append(eb.subscribers[kind], sub)
	eb.mu.Unlock()
	return sub
}

// SubscribeAll registers handler for every event kind published.
func (eb *EventBus) SubscribeAll(handler Handler, opts ...SubscriptionOptions) *Subscription {
	options := SubscriptionOptions{Async: true}
	if len(opts) > 0 {
		options = opts[0]
	}
	sub := &Subscription{id: eb.nextSubID.Add(1), kind: EventCustom, handler: handler, options: options}
	sub.active.Store(true)

	eb.mu.Lock()
	eb.allSubs = append(eb.allSubs, sub)
	eb.mu.Unlock()
	return sub
}

// Unsubscribe deactivates sub; already-queued deliveries still run, but no
// new ones are dispatched to it.
func (eb *EventBus) Unsubscribe(sub *Subscription) {
	sub.active.Store(false)
}

// Publish enqueues ev for dispatch, stamping Timestamp if the caller left
// it zero. Non-blocking: a full buffer drops the event.
func (eb *EventBus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case eb.events <- ev:
		eb.published.Add(1)
	default:
		eb.dropped.Add(1)
		eb.logger.Warn("notify bus full, dropping event", zap.String("kind", string(ev.Kind)))
	}
}

// Stats returns a snapshot of the bus's throughput counters.
func (eb *EventBus) Stats() Stats {
	eb.mu.RLock()
	active := int64(0)
	for _, subs := range eb.subscribers {
		for _, s := range subs {
			if s.IsActive() {
				active++
			}
		}
	}
	for _, s := range eb.allSubs {
		if s.IsActive() {
			active++
		}
	}
	eb.mu.RUnlock()

	return Stats{
		Published:         eb.published.Load(),
		Processed:         eb.processed.Load(),
		Dropped:           eb.dropped.Load(),
		HandlerErrors:     eb.errs.Load(),
		ActiveSubscribers: active,
	}
}

// Close stops the worker pool. Queued events already taken by a worker
// finish; events still sitting in the buffer are discarded.
func (eb *EventBus) Close() {
	close(eb.stop)
	eb.wg.Wait()
}
