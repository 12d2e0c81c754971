package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// checkOrigin validates a WebSocket connection's Origin header against the
// allowed-origins whitelist. No configured origins means allow all (dev
// mode); a non-browser client sending no Origin header is always allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return s.originAllowed(origin)
}

// handleWS is the WS /ws/live endpoint: a connection starts unfiltered
// (sees every trace/span event) until it sends a subscribe_trace message,
// per the Bus's own subscription model.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.token != "" {
		token := extractBearerToken(r)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != s.token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("httpapi: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sess := s.bus.Register(conn)
	defer s.bus.Unregister(sess)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.bus.HandleClientMessage(sess, raw)
	}
}
