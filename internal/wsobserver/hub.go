// Package wsobserver bridges internal/obsv's event bus to websocket
// clients: every Publish on the engine's Bus is fanned out to whichever
// connected clients subscribed to that event's run.
//
// Grounded on smilemakc-mbflow's internal/infrastructure/websocket
// package — Hub's register/unregister/broadcast channel trio and
// userID/workflowID/executionID subscription indexes, generalized down
// to a single runID index since Flowcraft's event taxonomy carries one
// correlation id ("runId") rather than the teacher's separate
// workflow/execution/user axes.
package wsobserver

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Hub tracks connected clients and their run subscriptions, and
// broadcasts events to whichever clients asked for them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	byRun   map[string]map[*Client]bool

	broadcast  chan *Event
	register   chan *Client
	unregister chan *Client

	logger zerolog.Logger
}

// NewHub returns an unstarted Hub; call Run in a goroutine to drive it.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		byRun:      make(map[string]map[*Client]bool),
		broadcast:  make(chan *Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run drives the hub's event loop until ctx's Done channel-equivalent
// is closed — callers stop it by closing the Hub via Close.
func (h *Hub) Run() {
	for {
		select {
		case c, ok := <-h.register:
			if !ok {
				return
			}
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case ev := <-h.broadcast:
			h.deliver(ev)
		}
	}
}

// Close stops Run's loop.
func (h *Hub) Close() { close(h.register) }

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	h.logger.Debug().Str("client_id", c.id).Int("total_clients", len(h.clients)).Msg("websocket client registered")
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	for runID := range c.subscribedRuns() {
		if set, ok := h.byRun[runID]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.byRun, runID)
			}
		}
	}
	h.logger.Debug().Str("client_id", c.id).Msg("websocket client unregistered")
}

// Subscribe registers c as interested in runID's events.
func (h *Hub) Subscribe(c *Client, runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byRun[runID] == nil {
		h.byRun[runID] = make(map[*Client]bool)
	}
	h.byRun[runID][c] = true
	c.addSubscription(runID)
}

// Unsubscribe removes c's interest in runID.
func (h *Hub) Unsubscribe(c *Client, runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.byRun[runID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byRun, runID)
		}
	}
	c.removeSubscription(runID)
}

// Publish satisfies fctx.EventPublisher: it is wired as the run's event
// publisher (directly, or fanned out alongside obsv.Bus) so every
// workflow/node/context event reaches subscribed clients.
func (h *Hub) Publish(eventType string, payload map[string]any) {
	ev := &Event{Type: eventType, Payload: payload, Timestamp: time.Now()}
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn().Str("event_type", eventType).Msg("websocket hub broadcast channel full, dropping event")
	}
}

func (h *Hub) deliver(ev *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	runID, _ := ev.Payload["runId"].(string)

	var targets map[*Client]bool
	if runID != "" {
		targets = h.byRun[runID]
	} else {
		targets = h.clients
	}

	for c := range targets {
		select {
		case c.send <- ev:
		default:
			h.logger.Warn().Str("client_id", c.id).Str("event_type", ev.Type).Msg("client send buffer full, dropping event")
		}
	}
}

// ClientCount reports how many clients are currently connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
