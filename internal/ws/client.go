// Package ws is a reconnecting JSON websocket client. Subscriptions are
// replayed after every reconnect and a heartbeat pings quiet connections.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

var ErrNotConnected = errors.New("ws not connected")

// staleResetWindows is how many silent staleness windows are tolerated
// before the connection is dropped and redialed.
const staleResetWindows = 3

type Client struct {
	url            string
	reconnectDelay time.Duration
	staleAfter     time.Duration
	ping           any
	log            *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	subs []any

	lastRecv atomic.Int64
}

// New returns a client for url. ping is the JSON payload sent when nothing
// has been received for staleAfter; a zero staleAfter disables the heartbeat.
func New(url string, reconnectDelay, staleAfter time.Duration, ping any, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{url: url, reconnectDelay: reconnectDelay, staleAfter: staleAfter, ping: ping, log: log}
}

func (c *Client) Connect(ctx context.Context) error {
	_, err := c.connect(ctx)
	return err
}

func (c *Client) connect(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return false, nil
	}
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return false, err
	}
	conn.SetReadLimit(1 << 22)
	c.conn = conn
	c.lastRecv.Store(time.Now().UnixNano())
	return true, nil
}

// Subscribe records sub and sends it when connected. Recorded subscriptions
// are sent again on every new connection.
func (c *Client) Subscribe(ctx context.Context, sub any) error {
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return writeJSON(ctx, conn, sub)
}

// Run reads frames until ctx is done, reconnecting after read errors.
func (c *Client) Run(ctx context.Context, handler func(json.RawMessage)) error {
	for {
		if err := c.ensureConnected(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("ws connect failed", zap.String("url", c.url), zap.Error(err))
			if !c.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}
		hbCtx, cancel := context.WithCancel(ctx)
		hbDone := make(chan struct{})
		go func() {
			defer close(hbDone)
			c.heartbeatLoop(hbCtx)
		}()
		err := c.readLoop(ctx, handler)
		cancel()
		<-hbDone
		if ctx.Err() != nil {
			c.resetConn()
			return ctx.Err()
		}
		c.logReadLoopError(err)
		c.resetConn()
		if !c.sleep(ctx) {
			return ctx.Err()
		}
	}
}

func (c *Client) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.reconnectDelay):
		return true
	}
}

func (c *Client) ensureConnected(ctx context.Context) error {
	fresh, err := c.connect(ctx)
	if err != nil || !fresh {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	subs := append([]any(nil), c.subs...)
	c.mu.Unlock()
	for _, sub := range subs {
		if err := writeJSON(ctx, conn, sub); err != nil {
			c.resetConn()
			return err
		}
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context, handler func(json.RawMessage)) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		c.lastRecv.Store(time.Now().UnixNano())
		if handler != nil {
			handler(json.RawMessage(data))
		}
	}
}

// heartbeatLoop pings once the connection has been silent for staleAfter and
// closes it once silent for staleResetWindows windows.
func (c *Client) heartbeatLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || c.staleAfter <= 0 {
		return
	}
	tick := c.staleAfter / 2
	if tick <= 0 {
		tick = c.staleAfter
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			silent := time.Since(time.Unix(0, c.lastRecv.Load()))
			if silent >= staleResetWindows*c.staleAfter {
				c.log.Warn("ws stale, resetting", zap.String("url", c.url), zap.Duration("silent", silent))
				_ = conn.Close(websocket.StatusGoingAway, "stale")
				return
			}
			if silent >= c.staleAfter && c.ping != nil {
				if err := writeJSON(ctx, conn, c.ping); err != nil {
					return
				}
			}
		}
	}
}

func (c *Client) logReadLoopError(err error) {
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure {
		var closeErr websocket.CloseError
		if errors.As(err, &closeErr) {
			c.log.Info("ws read loop ended", zap.Int("status", int(closeErr.Code)), zap.String("reason", closeErr.Reason))
			return
		}
		c.log.Info("ws read loop ended", zap.Error(err))
		return
	}
	c.log.Warn("ws read loop ended", zap.String("url", c.url), zap.Error(err))
}

func (c *Client) resetConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "reset")
		c.conn = nil
	}
}

func (c *Client) Close() error {
	c.resetConn()
	return nil
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
