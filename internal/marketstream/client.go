package marketstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Conn is the minimal surface this package needs from a WebSocket
// connection. *websocket.Conn satisfies it directly; tests substitute a
// fake to drive the state machine without a real socket.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error) error
	Close() error
}

// Dialer opens a Conn to url. The default implementation wraps
// websocket.DefaultDialer.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type gorillaDialer struct{}

func (gorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// ApprovalFetcher obtains (or refreshes) the session token a venue requires
// before a subscription will be accepted. Venues with no such requirement
// pass a nil ApprovalFetcher to NewClient.
type ApprovalFetcher interface {
	FetchApprovalKey(ctx context.Context) (string, error)
	ClearApprovalKey()
}

// Config configures a Client.
type Config struct {
	URL      string
	CustType string // "P" for individual accounts, matching the venue's default.
	Approval ApprovalFetcher
	Logger   *zap.Logger
	Dialer   Dialer
}

// Client is a single reconnect-aware market data stream. One goroutine
// (Run) owns the socket and the live subscription set; callers interact
// through Subscribe/Unsubscribe and the channel returned by Events.
type Client struct {
	cfg    Config
	logger *zap.Logger
	dialer Dialer

	events chan StreamEvent

	mu            sync.Mutex
	commandCh     chan Command
	subscriptions map[subscriptionKey]bool
	state         State
}

// NewClient builds a Client. cfg.Dialer and cfg.Logger default to a real
// gorilla dialer and a no-op logger when left zero.
func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = gorillaDialer{}
	}
	if cfg.CustType == "" {
		cfg.CustType = "P"
	}
	return &Client{
		cfg:           cfg,
		logger:        logger,
		dialer:        dialer,
		events:        make(chan StreamEvent, 256),
		commandCh:     make(chan Command, commandChannelSize),
		subscriptions: make(map[subscriptionKey]bool),
		state:         StateDisconnected,
	}
}

// Events returns the channel carrying parsed ticks, order book updates,
// connection status changes, and parse/connection errors. Closed once Run
// returns.
func (c *Client) Events() <-chan StreamEvent {
	return c.events
}

// State returns the client's current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe requests a subscription for (trID, trKey). If the client is not
// yet connected, the command is queued and replayed once the socket opens.
func (c *Client) Subscribe(ctx context.Context, trID, trKey string) error {
	return c.sendCommand(ctx, Command{Kind: CommandSubscribe, TrID: trID, TrKey: trKey})
}

// Unsubscribe requests that a previously subscribed (trID, trKey) pair stop
// streaming.
func (c *Client) Unsubscribe(ctx context.Context, trID, trKey string) error {
	return c.sendCommand(ctx, Command{Kind: CommandUnsubscribe, TrID: trID, TrKey: trKey})
}

func (c *Client) sendCommand(ctx context.Context, cmd Command) error {
	select {
	case c.commandCh <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the reconnect loop until ctx is cancelled or the reconnect
// budget is exhausted. It closes the event channel before returning.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)

	attempts := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := c.connectOnce(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		attempts++
		c.logger.Error("market stream disconnected", zap.Error(err), zap.Int("attempt", attempts))

		if attempts > MaxReconnectAttempts {
			c.logger.Error("market stream reconnect budget exhausted", zap.Int("maxAttempts", MaxReconnectAttempts))
			c.emit(StreamEvent{Kind: EventError, Err: fmt.Sprintf("reconnect budget exhausted: %v", err)})
			return err
		}

		if c.cfg.Approval != nil {
			c.cfg.Approval.ClearApprovalKey()
		}

		select {
		case <-time.After(ReconnectDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// connectOnce runs one Connecting-then-Connected cycle and blocks until the
// socket disconnects (for any reason, including a clean server close). It
// never returns nil: cancellation of ctx returns ctx's error, which Run
// passes straight back; any other error is a connection error eligible for
// the reconnect policy in Run.
func (c *Client) connectOnce(ctx context.Context) error {
	c.setState(StateConnecting)

	var approvalKey string
	if c.cfg.Approval != nil {
		key, err := c.cfg.Approval.FetchApprovalKey(ctx)
		if err != nil {
			return fmt.Errorf("fetch approval key: %w", err)
		}
		approvalKey = key
	}

	conn, err := c.dialer.Dial(ctx, c.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	c.setState(StateConnected)
	c.emit(StreamEvent{Kind: EventConnectionStatus, ConnectionStatus: true})
	c.logger.Info("market stream connected", zap.String("url", c.cfg.URL))

	select {
	case <-time.After(SubscribeInterval):
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	replay := make([]subscriptionKey, 0, len(c.subscriptions))
	for k := range c.subscriptions {
		replay = append(replay, k)
	}
	c.mu.Unlock()

	for i, k := range replay {
		if i > 0 {
			select {
			case <-time.After(SubscribeInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := c.send(conn, approvalKey, k.TrID, k.TrKey, true); err != nil {
			return fmt.Errorf("replay subscription %s/%s: %w", k.TrID, k.TrKey, err)
		}
		c.logger.Debug("replayed subscription", zap.String("trId", k.TrID), zap.String("trKey", k.TrKey))
	}

	err = c.pump(ctx, conn, approvalKey)

	c.unsubscribeAllBestEffort(conn, approvalKey)

	c.setState(StateDisconnected)
	c.emit(StreamEvent{Kind: EventConnectionStatus, ConnectionStatus: false})

	if err != nil {
		return err
	}
	return errors.New("market stream disconnected")
}

// pump multiplexes inbound frames, dynamic subscribe/unsubscribe commands,
// and the ping ticker until the socket closes or ctx is cancelled.
func (c *Client) pump(ctx context.Context, conn Conn, approvalKey string) error {
	readTimeout := PingInterval * 2
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	frames := make(chan []byte)
	readErrs := make(chan error, 1)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				readErrs <- err
				return
			}
			frames <- msg
		}
	}()

	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-frames:
			c.handleFrame(msg)

		case err := <-readErrs:
			return err

		case cmd := <-c.commandCh:
			subscribe := cmd.Kind == CommandSubscribe
			if err := c.send(conn, approvalKey, cmd.TrID, cmd.TrKey, subscribe); err != nil {
				c.logger.Error("dynamic subscription command failed", zap.String("trId", cmd.TrID), zap.String("trKey", cmd.TrKey), zap.Bool("subscribe", subscribe), zap.Error(err))
				break
			}
			c.mu.Lock()
			if subscribe {
				c.subscriptions[cmd.key()] = true
			} else {
				delete(c.subscriptions, cmd.key())
			}
			c.mu.Unlock()
			select {
			case <-time.After(SubscribeInterval):
			case <-ctx.Done():
				return ctx.Err()
			}

		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("ping: %w", err)
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// unsubscribeAllBestEffort tries to tell the server about every live
// subscription going away before the socket closes. Failures are logged,
// not propagated: the connection is already going down either way.
func (c *Client) unsubscribeAllBestEffort(conn Conn, approvalKey string) {
	c.mu.Lock()
	keys := make([]subscriptionKey, 0, len(c.subscriptions))
	for k := range c.subscriptions {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	for i, k := range keys {
		if i > 0 {
			time.Sleep(SubscribeInterval)
		}
		if err := c.send(conn, approvalKey, k.TrID, k.TrKey, false); err != nil {
			c.logger.Debug("best-effort unsubscribe failed", zap.String("trId", k.TrID), zap.String("trKey", k.TrKey), zap.Error(err))
		}
	}
}

type wsHeader struct {
	ApprovalKey string `json:"approval_key"`
	CustType    string `json:"custtype"`
	TrType      string `json:"tr_type"`
	ContentType string `json:"content-type"`
}

type wsInput struct {
	TrID  string `json:"tr_id"`
	TrKey string `json:"tr_key"`
}

type wsBody struct {
	Input wsInput `json:"input"`
}

type wsSubscribeRequest struct {
	Header wsHeader `json:"header"`
	Body   wsBody   `json:"body"`
}

func (c *Client) send(conn Conn, approvalKey, trID, trKey string, subscribe bool) error {
	trType := "2"
	if subscribe {
		trType = "1"
	}
	req := wsSubscribeRequest{
		Header: wsHeader{
			ApprovalKey: approvalKey,
			CustType:    c.cfg.CustType,
			TrType:      trType,
			ContentType: "utf-8",
		},
		Body: wsBody{Input: wsInput{TrID: trID, TrKey: trKey}},
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) emit(ev StreamEvent) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("market stream event channel full, dropping event", zap.Int("kind", int(ev.Kind)))
	}
}
