// Package feed maintains the websocket connection to the CLOB market channel
// and reconstructs order book and trade state from the snapshot+delta stream.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/marciob/polywatch/internal/domain"
	"github.com/marciob/polywatch/internal/platform/polymarket"
)

const (
	// keepaliveInterval is how often a PING frame is written while connected.
	keepaliveInterval = 10 * time.Second

	// reconnectDelay is the fixed pause before re-dialing after a transport
	// fault. Deliberately constant, no backoff, to keep observable timing
	// stable.
	reconnectDelay = 5 * time.Second

	writeWait        = 10 * time.Second
	handshakeTimeout = 15 * time.Second

	// tradeCapacity bounds the observed-trade ring (newest first).
	tradeCapacity = 100

	pingFrame    = "PING"
	pongSentinel = "PONG"
)

// State is the connection lifecycle phase of the client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// PublishFunc receives an immutable market snapshot after every applied
// frame and on connectivity transitions. It must not retain live references;
// the update carries deep copies only.
type PublishFunc func(domain.MarketUpdate)

// Client is the market feed state machine: dial, subscribe, keepalive,
// dispatch, reconnect. It is the single writer of the order book and trade
// buffer it owns; consumers only ever see published copies.
type Client struct {
	wsURL   string
	tokenID string
	publish PublishFunc
	logger  *slog.Logger

	// Owned by the run goroutine.
	book      domain.OrderBook
	trades    []domain.Trade
	lastPrice domain.PriceRef

	state atomic.Int32

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient creates a feed client for one outcome token.
//
// wsURL is the market channel endpoint, e.g.
// "wss://ws-subscriptions-clob.polymarket.com/ws/market".
func NewClient(wsURL, tokenID string, publish PublishFunc, logger *slog.Logger) *Client {
	return &Client{
		wsURL:   wsURL,
		tokenID: tokenID,
		publish: publish,
		logger:  logger.With(slog.String("component", "feed")),
		done:    make(chan struct{}),
	}
}

// State returns the current connection phase.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Run connects and processes frames until ctx is cancelled or Close is
// called. Transport faults surface only as a connectivity flag on the
// published updates; the client re-dials after a fixed delay.
func (c *Client) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		default:
		}

		err := c.runConnection(ctx)

		c.state.Store(int32(StateDisconnected))
		c.publishUpdate(false)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-c.done:
			return nil
		default:
		}

		c.logger.Warn("feed disconnected, reconnecting",
			slog.Duration("delay", reconnectDelay),
			slog.String("error", errString(err)),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

// Close shuts the client down. It is idempotent: timers are cancelled once,
// the transport is closed once, and no further reconnects are attempted.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		c.closed = true
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			_ = conn.Close()
		}
	})
	return nil
}

// runConnection performs one connect→subscribe→read cycle. It returns when
// the transport fails or the context ends; the keepalive goroutine it spawns
// never outlives the connection.
func (c *Client) runConnection(ctx context.Context) error {
	c.state.Store(int32(StateConnecting))

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	cmd := polymarket.WSCommand{AssetIDs: []string{c.tokenID}, Type: "market"}
	if err := c.writeJSON(conn, cmd); err != nil {
		return err
	}
	c.state.Store(int32(StateSubscribed))
	c.logger.Info("subscribed", slog.String("token_id", c.tokenID))
	c.publishUpdate(true)

	// Keepalive runs beside the read loop so PINGs keep flowing while a
	// frame is awaited.
	connDone := make(chan struct{})
	defer close(connDone)
	go c.keepalive(conn, connDone)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if string(message) == pongSentinel {
			continue
		}
		if c.handleFrame(message) {
			c.state.Store(int32(StateConnected))
			c.publishUpdate(true)
		}
	}
}

// keepalive writes a PING frame every keepaliveInterval until the connection
// cycle or the client ends.
func (c *Client) keepalive(conn *websocket.Conn, connDone <-chan struct{}) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-connDone:
			return
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.writeText(conn, pingFrame); err != nil {
				return
			}
		}
	}
}

// handleFrame decodes one inbound frame and applies it to the owned state.
// Decode faults are swallowed: the offending frame (or level) is dropped and
// the stream continues. The return reports whether state changed.
func (c *Client) handleFrame(raw []byte) bool {
	frames, err := polymarket.DecodeFrames(raw)
	if err != nil {
		return false
	}

	changed := false
	for _, frame := range frames {
		var env polymarket.WSEnvelope
		if err := json.Unmarshal(frame, &env); err != nil {
			continue
		}

		switch env.EventType {
		case "book":
			var msg polymarket.BookMessage
			if err := json.Unmarshal(frame, &msg); err != nil {
				continue
			}
			if msg.AssetID != c.tokenID {
				continue
			}
			c.book.ApplySnapshot(
				polymarket.Levels(msg.Bids),
				polymarket.Levels(msg.Asks),
				polymarket.ParseTimestamp(msg.Timestamp),
			)
			changed = true

		case "price_change":
			var msg polymarket.PriceChangeMessage
			if err := json.Unmarshal(frame, &msg); err != nil {
				continue
			}
			if msg.AssetID != c.tokenID {
				continue
			}
			if c.applyChanges(msg) {
				changed = true
			}

		case "last_trade_price":
			var msg polymarket.LastTradePriceMessage
			if err := json.Unmarshal(frame, &msg); err != nil {
				continue
			}
			if msg.AssetID != c.tokenID {
				continue
			}
			trade, ok := msg.Trade()
			if !ok {
				continue
			}
			c.trades = append([]domain.Trade{trade}, c.trades...)
			if len(c.trades) > tradeCapacity {
				c.trades = c.trades[:tradeCapacity]
			}
			c.lastPrice = domain.PriceRef{Price: trade.Price, Time: trade.Timestamp, Valid: true}
			changed = true

		case "tick_size_change":
			// Accepted, no state effect.
		}
	}
	return changed
}

// applyChanges applies a price_change frame's deltas in list order. The book
// is only published after the whole frame has been applied, so consumers
// never observe a half-applied group. Malformed numeric fields drop that
// single delta, not the frame.
func (c *Client) applyChanges(msg polymarket.PriceChangeMessage) bool {
	ts := polymarket.ParseTimestamp(msg.Timestamp)
	applied := false
	for _, change := range msg.Changes {
		price, err := decimal.NewFromString(change.Price)
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(change.Size)
		if err != nil {
			continue
		}
		side := domain.SideBuy
		if strings.EqualFold(change.Side, string(domain.SideSell)) {
			side = domain.SideSell
		}
		c.book.ApplyDelta(side, price, size, ts)
		applied = true
	}
	return applied
}

// writeJSON marshals and writes one JSON frame.
func (c *Client) writeJSON(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.writeRaw(conn, data)
}

func (c *Client) writeText(conn *websocket.Conn, s string) error {
	return c.writeRaw(conn, []byte(s))
}

// writeRaw serializes writers; gorilla allows only one concurrent writer.
func (c *Client) writeRaw(conn *websocket.Conn, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// publishUpdate hands a deep-copied snapshot of the owned state downstream.
func (c *Client) publishUpdate(connected bool) {
	if c.publish == nil {
		return
	}
	trades := make([]domain.Trade, len(c.trades))
	copy(trades, c.trades)
	c.publish(domain.MarketUpdate{
		TokenID:   c.tokenID,
		Book:      c.book.Clone(),
		Trades:    trades,
		LastPrice: c.lastPrice,
		Connected: connected,
		Timestamp: time.Now(),
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
