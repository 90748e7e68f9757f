package wsobserver

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// Client is one connected websocket subscriber.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan *Event
	logger zerolog.Logger

	id string

	subsMu sync.RWMutex
	runs   map[string]bool
}

// NewClient wraps an already-upgraded connection.
func NewClient(id string, hub *Hub, conn *websocket.Conn, logger zerolog.Logger) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan *Event, sendBufferSize),
		logger: logger,
		id:     id,
		runs:   make(map[string]bool),
	}
}

func (c *Client) addSubscription(runID string) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.runs[runID] = true
}

func (c *Client) removeSubscription(runID string) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	delete(c.runs, runID)
}

func (c *Client) subscribedRuns() map[string]bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	out := make(map[string]bool, len(c.runs))
	for k := range c.runs {
		out[k] = true
	}
	return out
}

// Start registers c with the hub and launches its read/write pumps.
// Both pumps run until the connection closes.
func (c *Client) Start() {
	c.hub.register <- c
	go c.writePump()
	go c.readPump()
}

// writePump flushes queued events to the socket and keeps the
// connection alive with periodic pings, mirroring
// internal/infrastructure/websocket/client.go's writePump timing.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if err := json.NewEncoder(w).Encode(ev); err != nil {
				c.logger.Error().Err(err).Msg("websocket encode failed")
			}
			if err := w.Close(); err != nil {
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

// readPump processes subscribe/unsubscribe commands from the client
// until the connection closes, at which point it unregisters.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.logger.Warn().Err(err).Msg("websocket received malformed command")
			continue
		}
		switch cmd.Action {
		case CmdSubscribe:
			c.hub.Subscribe(c, cmd.RunID)
		case CmdUnsubscribe:
			c.hub.Unsubscribe(c, cmd.RunID)
		default:
			c.logger.Warn().Str("action", cmd.Action).Msg("websocket received unknown command")
		}
	}
}
