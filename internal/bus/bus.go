// Package bus fans out live span/trace events to WebSocket subscribers.
// Grounded on the original beacon backend's ws/manager.py protocol and the
// teacher pack's gateway/server.go client-registration pattern.
package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/beaconobs/pkg/protocol"
)

// Session is one live WebSocket connection.
type Session struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes; gorilla connections aren't write-safe from multiple goroutines
}

func (s *Session) send(frame protocol.EventFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(frame)
}

func (s *Session) sendError(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(protocol.ErrorFrame{Error: msg})
}

// secondarySink is the optional fanout the Bus also publishes to, e.g. a
// redis channel, so replicas or external consumers observe the same stream.
// The in-process WS delivery below remains authoritative.
type secondarySink interface {
	Publish(ctx context.Context, frame protocol.EventFrame)
}

// Bus tracks connected sessions and which traces each is subscribed to.
// The zero value is not usable; construct with New.
type Bus struct {
	mu          sync.RWMutex
	unfiltered  map[string]*Session            // sessions with no subscription filter: see every event
	subscribers map[string]map[string]*Session // trace_id -> session_id -> session
	sessions    map[string]*Session            // session_id -> session, for cleanup

	sink secondarySink
}

func New() *Bus {
	return &Bus{
		unfiltered:  map[string]*Session{},
		subscribers: map[string]map[string]*Session{},
		sessions:    map[string]*Session{},
	}
}

// SetSecondarySink wires an optional additional fanout destination.
func (b *Bus) SetSecondarySink(s secondarySink) { b.sink = s }

// Register adds a new connection as unfiltered (sees all events) until it
// sends a subscribe_trace message.
func (b *Bus) Register(conn *websocket.Conn) *Session {
	sess := &Session{id: genSessionID(), conn: conn}
	b.mu.Lock()
	b.unfiltered[sess.id] = sess
	b.sessions[sess.id] = sess
	b.mu.Unlock()
	return sess
}

// Unregister removes a session from every registry. Safe to call more than
// once for the same session.
func (b *Bus) Unregister(sess *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.unfiltered, sess.id)
	delete(b.sessions, sess.id)
	for traceID, subs := range b.subscribers {
		delete(subs, sess.id)
		if len(subs) == 0 {
			delete(b.subscribers, traceID)
		}
	}
}

// HandleClientMessage applies a subscribe_trace/unsubscribe_trace control
// message. Malformed JSON is reported back to the client without closing
// the connection (original beacon ws behavior); unknown actions and a
// subscribe_trace without a trace_id are ignored silently.
func (b *Bus) HandleClientMessage(sess *Session, raw []byte) {
	var msg protocol.ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		if err := sess.sendError("Invalid JSON"); err != nil {
			slog.Warn("bus: failed to send error frame", "session", sess.id, "error", err)
		}
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	switch msg.Action {
	case protocol.ActionSubscribeTrace:
		if msg.TraceID == "" {
			return
		}
		delete(b.unfiltered, sess.id)
		if b.subscribers[msg.TraceID] == nil {
			b.subscribers[msg.TraceID] = map[string]*Session{}
		}
		b.subscribers[msg.TraceID][sess.id] = sess
	case protocol.ActionUnsubscribeTrace:
		if subs := b.subscribers[msg.TraceID]; subs != nil {
			delete(subs, sess.id)
			if len(subs) == 0 {
				delete(b.subscribers, msg.TraceID)
			}
		}
		// A session that unsubscribes from its only trace goes back to
		// seeing nothing until it subscribes again or reconnects; it is
		// NOT re-added to unfiltered, matching the original manager's
		// explicit per-connection subscription state.
	}
}

// targetsFor returns every session that should receive an event scoped to
// traceID: the unfiltered set plus that trace's subscribers.
func (b *Bus) targetsFor(traceID string) []*Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	seen := map[string]*Session{}
	for id, s := range b.unfiltered {
		seen[id] = s
	}
	for id, s := range b.subscribers[traceID] {
		seen[id] = s
	}
	out := make([]*Session, 0, len(seen))
	for _, s := range seen {
		out = append(out, s)
	}
	return out
}

func (b *Bus) broadcastTo(sessions []*Session, frame protocol.EventFrame) {
	for _, s := range sessions {
		if err := s.send(frame); err != nil {
			slog.Warn("bus: send failed, dropping session", "session", s.id, "error", err)
			b.Unregister(s)
		}
	}
}

func (b *Bus) publish(ctx context.Context, traceID, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Error("bus: marshal payload failed", "event", event, "error", err)
		return
	}
	frame := protocol.EventFrame{Event: event, TraceID: traceID, Payload: raw}
	if b.sink != nil {
		b.sink.Publish(ctx, frame)
	}
	b.broadcastTo(b.targetsFor(traceID), frame)
}

// BroadcastTraceCreated notifies only unfiltered sessions — a client must
// already be watching the live firehose (not yet subscribed to a specific
// trace) to learn that a new trace exists.
func (b *Bus) BroadcastTraceCreated(ctx context.Context, traceID string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Error("bus: marshal payload failed", "event", protocol.EventTraceCreated, "error", err)
		return
	}
	frame := protocol.EventFrame{Event: protocol.EventTraceCreated, TraceID: traceID, Payload: raw}
	if b.sink != nil {
		b.sink.Publish(ctx, frame)
	}
	b.mu.RLock()
	targets := make([]*Session, 0, len(b.unfiltered))
	for _, s := range b.unfiltered {
		targets = append(targets, s)
	}
	b.mu.RUnlock()
	b.broadcastTo(targets, frame)
}

func (b *Bus) BroadcastTraceUpdated(ctx context.Context, traceID string, payload any) {
	b.publish(ctx, traceID, protocol.EventTraceUpdated, payload)
}

func (b *Bus) BroadcastSpanCreated(ctx context.Context, traceID string, payload any) {
	b.publish(ctx, traceID, protocol.EventSpanCreated, payload)
}

func (b *Bus) BroadcastSpanUpdated(ctx context.Context, traceID string, payload any) {
	b.publish(ctx, traceID, protocol.EventSpanUpdated, payload)
}

// SessionCount reports the number of connected clients, for /v1/stats.
func (b *Bus) SessionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}
