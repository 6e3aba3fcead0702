// Package ws is a small websocket event client. It keeps one connection to a
// realtime endpoint alive, delivers typed events to a channel, and lets the
// owner push JSON frames back.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Event is a typed frame from the realtime endpoint.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

var ErrNotConnected = errors.New("ws: not connected")

type Client struct {
	url    string
	events chan Event

	mu   sync.Mutex
	conn *websocket.Conn

	// writeMu serializes frame writes; the connection supports only one
	// concurrent writer.
	writeMu sync.Mutex
}

func NewClient(url string) *Client {
	return &Client{
		url:    url,
		events: make(chan Event, 16),
	}
}

// Events is the inbound feed. Events are dropped, not queued without bound,
// when the subscriber falls behind.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Send writes a JSON frame on the current connection. Concurrent callers
// are serialized.
func (c *Client) Send(v interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}

// Run dials and reads until ctx is cancelled, reconnecting with backoff.
// A dropped connection is a transient failure: logged, retried, never fatal.
func (c *Client) Run(ctx context.Context) {
	backoff := time.Second
	for ctx.Err() == nil {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			log.WithError(err).WithField("url", c.url).Warn("websocket dial failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		c.setConn(conn)
		c.readLoop(ctx, conn)
		c.setConn(nil)
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-readDone:
		}
	}()

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Warn("websocket read failed, reconnecting")
			}
			return
		}
		select {
		case c.events <- ev:
		default:
			log.WithField("type", ev.Type).Warn("dropping event, subscriber too slow")
		}
	}
}
