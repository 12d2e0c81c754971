// Package protocol defines the wire types shared between the live Bus and
// the HTTP/WebSocket gateway: event names, the envelope sent to subscribers,
// and the client -> server control messages used to (un)subscribe.
package protocol

import "encoding/json"

// WebSocket event names pushed from server to client over /ws/live.
const (
	EventSpanCreated   = "span_created"
	EventSpanUpdated   = "span_updated"
	EventTraceCreated  = "trace_created"
	EventTraceUpdated  = "trace_updated"
)

// EventFrame is the envelope every live event is wrapped in before being
// written to a WebSocket connection.
type EventFrame struct {
	Event     string          `json:"event"`
	TraceID   string          `json:"trace_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// ClientMessage is a control message a connected client may send.
type ClientMessage struct {
	Action  string `json:"action"`
	TraceID string `json:"trace_id,omitempty"`
}

// Client action names.
const (
	ActionSubscribeTrace   = "subscribe_trace"
	ActionUnsubscribeTrace = "unsubscribe_trace"
)

// ErrorFrame is returned to a client that sent malformed JSON; the
// connection is not closed.
type ErrorFrame struct {
	Error string `json:"error"`
}
