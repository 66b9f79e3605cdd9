package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"mitmlab.org/internal/obs"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Outbound frames buffered per connection.
	sendQueueSize = 256
)

var (
	// ErrSlowConsumer is returned by Deliver when the outbound queue is full.
	// The connection is closed when it is returned.
	ErrSlowConsumer = errors.New("gateway: outbound queue full")
	// ErrClosed is returned by Deliver after the connection closed.
	ErrClosed = errors.New("gateway: connection closed")
)

// Client is one WebSocket connection. It implements session.Conn.
type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	limiter *rate.Limiter

	closeOnce sync.Once
	closeErr  error
}

func newClient(conn *websocket.Conn, limiter *rate.Limiter) *Client {
	return &Client{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan []byte, sendQueueSize),
		done:    make(chan struct{}),
		limiter: limiter,
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Deliver queues a frame without blocking. A full queue closes the connection.
func (c *Client) Deliver(frame []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		_ = c.Close()
		return ErrSlowConsumer
	}
}

// Close tears down the socket. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// readPump reads frames until the peer goes away and hands each one to handle
// in arrival order.
func (c *Client) readPump(ctx context.Context, maxBytes int64, handle func(context.Context, *Client, []byte)) {
	log := obs.Component("gateway")

	c.conn.SetReadLimit(maxBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("conn_id", c.id).Msg("websocket read failed")
			}
			return
		}
		if kind != websocket.TextMessage {
			obs.EventsTotal.WithLabelValues("binary", outcomeInvalid).Inc()
			continue
		}
		if !c.limiter.Allow() {
			obs.EventsTotal.WithLabelValues("any", outcomeRateLimited).Inc()
			log.Warn().Str("conn_id", c.id).Msg("event dropped by rate limit")
			continue
		}
		handle(ctx, c, msg)
	}
}

// writePump drains the outbound queue and keeps the peer alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
