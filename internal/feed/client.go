// Package feed maintains the live market-data connection and decodes raw
// frames into typed market events.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/movescan/movescan/internal/logger"
	"github.com/movescan/movescan/internal/models"
)

const (
	defaultReconnectDelay = 5 * time.Second
	defaultPingInterval   = 20 * time.Second
	defaultBufferSize     = 1024
)

// Config holds feed connection settings.
type Config struct {
	URL            string
	Dataset        string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	BufferSize     int
}

// ConnState reports a feed connection transition to the consumer.
type ConnState struct {
	Connected bool
	Err       error // set when Connected is false
}

// Client streams market events from the feed gateway, reconnecting forever
// with a fixed delay until its context is cancelled.
type Client struct {
	cfg    Config
	conn   *websocket.Conn
	mu     sync.Mutex
	states chan ConnState
}

// NewClient creates a feed client. Zero-valued tuning fields fall back to
// defaults.
func NewClient(cfg Config) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	return &Client{
		cfg:    cfg,
		states: make(chan ConnState, 8),
	}
}

// Stream connects to the feed and delivers events in arrival order on the
// returned channel. The channel is closed when ctx is cancelled. Delivery is
// blocking: a slow consumer backpressures the connection rather than
// reordering or dropping events.
func (c *Client) Stream(ctx context.Context) <-chan models.MarketEvent {
	out := make(chan models.MarketEvent, c.cfg.BufferSize)
	go c.maintainConnection(ctx, out)
	return out
}

// States reports connection losses and recoveries. Notifications are dropped
// if the consumer falls behind; they are advisory only.
func (c *Client) States() <-chan ConnState {
	return c.states
}

func (c *Client) maintainConnection(ctx context.Context, out chan<- models.MarketEvent) {
	defer close(out)

	for {
		if ctx.Err() != nil {
			return
		}

		logger.Info("Connecting to feed: %s", c.cfg.URL)
		if err := c.connectAndListen(ctx, out); err != nil {
			logger.Error("Feed connection lost: %v", err)
			c.notify(ConnState{Err: err})
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

func (c *Client) connectAndListen(ctx context.Context, out chan<- models.MarketEvent) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()
	}()

	if err := c.sendSubscribe(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	logger.Info("Feed connected, subscribed to %s mbp-1 for ALL_SYMBOLS", c.cfg.Dataset)
	c.notify(ConnState{Connected: true})

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.heartbeat(connCtx)
	go func() {
		// Unblocks ReadMessage when the context is cancelled.
		<-connCtx.Done()
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		event, err := decodeFrame(message)
		if err != nil {
			logger.Debug("Skipping malformed frame: %v", err)
			continue
		}
		if event == nil {
			continue
		}

		select {
		case out <- event:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Client) sendSubscribe() error {
	req := map[string]interface{}{
		"op":       "subscribe",
		"dataset":  c.cfg.Dataset,
		"schema":   "mbp-1",
		"stype_in": "raw_symbol",
		"symbols":  "ALL_SYMBOLS",
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(req)
}

func (c *Client) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.conn != nil {
				if err := c.conn.WriteJSON(map[string]string{"op": "ping"}); err != nil {
					logger.Debug("Ping failed: %v", err)
				}
			}
			c.mu.Unlock()
		}
	}
}

func (c *Client) notify(st ConnState) {
	select {
	case c.states <- st:
	default:
	}
}

// decodeFrame converts a raw feed frame into a typed event. Unknown frame
// types return (nil, nil) and are skipped for forward compatibility.
func decodeFrame(raw []byte) (models.MarketEvent, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}

	switch envelope.Type {
	case "symbol_mapping":
		var msg struct {
			InstrumentID uint32 `json:"instrument_id"`
			Symbol       string `json:"symbol"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("invalid symbol mapping: %w", err)
		}
		return models.SymbolMapping{
			InstrumentID: models.InstrumentID(msg.InstrumentID),
			Symbol:       msg.Symbol,
		}, nil

	case "quote":
		var msg struct {
			InstrumentID uint32 `json:"instrument_id"`
			TsEvent      int64  `json:"ts_event"`
			BidPx        int64  `json:"bid_px"`
			AskPx        int64  `json:"ask_px"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("invalid quote: %w", err)
		}
		return models.QuoteUpdate{
			InstrumentID: models.InstrumentID(msg.InstrumentID),
			TsEvent:      msg.TsEvent,
			BidPx:        msg.BidPx,
			AskPx:        msg.AskPx,
		}, nil

	default:
		return nil, nil
	}
}
