package server

import (
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"

	"lanfield/internal/protocol"
)

// routes builds the HTTP surface: the WebSocket game transport plus
// monitoring endpoints.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// handleWebSocket upgrades the request and runs a session over it. The
// session speaks the same protocol as the TCP port, one message per binary
// WebSocket message.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // LAN game, any origin
	})
	if err != nil {
		s.log.Warnw("websocket upgrade error", "remote", r.RemoteAddr, "err", err)
		return
	}
	s.runSession(protocol.NewWebSocketConn(ws, r.RemoteAddr))
}

// handleMetrics reports runtime counters.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"name":        s.cfg.Name,
		"players":     s.sessions.Count(),
		"max_players": s.cfg.MaxPlayers,
		"tick":        s.loop.Seq(),
		"metrics":     s.metrics.Snapshot(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// handleState dumps the current snapshot.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.state.Snapshot())
}
