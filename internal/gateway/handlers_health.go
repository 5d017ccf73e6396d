package gateway

import (
	"context"
	"net/http"
	"time"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleHealthPG(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"pg_ok": false})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.deps.DB.PingContext(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"pg_ok": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pg_ok": true})
}

// handleHealthRedis reports unavailable: the runtime has no Redis
// dependency (the Wizard State Store lives in Postgres or memory), but the
// route is carried for the health-surface shape §6 specifies.
func (s *Server) handleHealthRedis(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusServiceUnavailable, map[string]any{"redis_ok": false})
}

// handleHealthLLM reports whether the LLM Circuit Breaker (C7) has an
// upstream configured at all; it never issues a live probe call, so a
// misbehaving upstream surfaces through circuit_breaker_open events rather
// than this route.
func (s *Server) handleHealthLLM(w http.ResponseWriter, r *http.Request) {
	if !s.deps.LLMEnabled {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"llm_ok": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"llm_ok": true})
}
