package wsobserver

import "time"

// Event is the wire shape an obsv.Bus event takes once bridged to a
// websocket client: spec.md §6's flat (eventType, payload) pair plus a
// server-stamped timestamp, rather than the teacher's WSEvent's fixed
// per-event-kind field set — Flowcraft's event taxonomy is open-ended
// (new node strategies can publish new event types), so there is no
// fixed struct shape to enumerate fields for.
type Event struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// Command is a client -> server message: subscribe to or unsubscribe
// from a specific run; there is no cancel command. Mirrors
// internal/infrastructure/websocket/message.go's WSCommand shape.
type Command struct {
	Action string `json:"action"`
	RunID  string `json:"runId,omitempty"`
}

const (
	CmdSubscribe   = "subscribe"
	CmdUnsubscribe = "unsubscribe"
)

// Response is the wire shape of a Command acknowledgement. Client's
// readPump does not send one: commands are applied without a reply.
type Response struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
