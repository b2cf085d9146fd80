package ratesclient

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

var ErrClosed = errors.New("ratesclient: closed")

// Client consumes the rates feed and resubscribes after every reconnect.
type Client struct {
	url               string
	reconnectInterval time.Duration
	dialer            *websocket.Dialer
	logger            *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	handler func(Frame)
}

// NewClient creates a client for a feed URL such as ws://localhost:3000/markets/ws.
func NewClient(url string, reconnectInterval time.Duration, logger *zap.Logger) *Client {
	return &Client{
		url:               url,
		reconnectInterval: reconnectInterval,
		dialer:            websocket.DefaultDialer,
		logger:            logger,
	}
}

// SetFrameHandler sets the function to handle decoded frames.
func (c *Client) SetFrameHandler(h func(Frame)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Connect dials the feed and subscribes to the rates channel. It does not start the listener.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.logger.Error("failed to connect to feed", zap.String("url", c.url), zap.Error(err))
		return err
	}

	if err := conn.WriteJSON(subscribeRequest{Event: "subscribe", Channel: "rates"}); err != nil {
		conn.Close()
		return fmt.Errorf("send subscription: %w", err)
	}

	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	c.logger.Info("feed connected", zap.String("url", c.url))
	return nil
}

// Listen delivers frames until ctx is done. On read errors it waits the
// reconnect interval and reconnects; it returns ErrClosed once ctx is done.
func (c *Client) Listen(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return fmt.Errorf("listen before connect")
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ErrClosed
			}
			c.logger.Warn("feed read error", zap.Error(err))

			if err := c.reconnect(ctx); err != nil {
				return err
			}
			continue
		}

		var f Frame
		if err := json.Unmarshal(msg, &f); err != nil {
			c.logger.Warn("failed to decode frame", zap.Error(err))
			continue
		}

		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()
		if h != nil {
			h(f)
		}
	}
}

// reconnect retries until a new connection is subscribed or ctx is done.
func (c *Client) reconnect(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ErrClosed
		case <-time.After(c.reconnectInterval):
		}

		if err := c.Connect(ctx); err != nil {
			c.logger.Warn("retrying reconnect...")
			continue
		}
		if ctx.Err() != nil {
			c.Close()
			return ErrClosed
		}
		c.logger.Info("reconnected successfully")
		return nil
	}
}

// Close closes the current connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}
