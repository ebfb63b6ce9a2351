// Package server exposes the read-only HTTP surface and the websocket
// subscription endpoint in front of the engine.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Aithusa712/TwitchStonks/internal/engine"
)

// Server routes HTTP traffic to the engine.
type Server struct {
	log            zerolog.Logger
	engine         *engine.Engine
	allowedOrigins map[string]struct{}
	upgrader       websocket.Upgrader
}

// New builds the HTTP layer. allowedOrigins is the browser origin allowlist
// for both CORS and websocket upgrades; an empty list admits any origin,
// which suits local development.
func New(log zerolog.Logger, eng *engine.Engine, allowedOrigins []string) *Server {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origins[origin] = struct{}{}
	}
	s := &Server{log: log, engine: eng, allowedOrigins: origins}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return s.originAllowed(r.Header.Get("Origin"))
		},
	}
	return s
}

func (s *Server) originAllowed(origin string) bool {
	if origin == "" || len(s.allowedOrigins) == 0 {
		return true
	}
	_, ok := s.allowedOrigins[origin]
	return ok
}

// Handler assembles the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("GET /ws", s.handleWS)
	return s.cors(mux)
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	rangeToken := r.URL.Query().Get("range")
	if rangeToken == "" {
		rangeToken = "today"
	}

	series, err := s.engine.History(r.Context(), rangeToken)
	if err != nil {
		if errors.Is(err, engine.ErrUnknownRange) {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":  "invalid range",
				"ranges": engine.Ranges(),
			})
			return
		}
		s.log.Error().Err(err).Str("range", rangeToken).Msg("history query failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.engine.RegisterSubscriber(r.Context(), conn)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
