// Package api is the local HTTP surface the desktop UI consumes: REST
// routes over the session service plus a WebSocket event stream that keeps
// every view (full panel, embedded mini views) on identical state.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tristo-bit/skhoot-terminal/internal/models"
	"github.com/tristo-bit/skhoot-terminal/internal/service"
	"github.com/tristo-bit/skhoot-terminal/internal/transport"
)

// Server provides the REST and WebSocket handlers.
type Server struct {
	svc *service.Service
	log *slog.Logger
}

// NewServer creates a new API server over the session service.
func NewServer(svc *service.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, log: logger}
}

// Router returns an http.Handler for all routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/sessions", s.listSessions)
	mux.HandleFunc("POST /api/v1/sessions", s.createSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.getSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.closeSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/input", s.writeInput)
	mux.HandleFunc("POST /api/v1/sessions/{id}/resize", s.resizeSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}/output", s.sessionOutput)
	mux.HandleFunc("GET /api/v1/sessions/{id}/history", s.sessionHistory)
	mux.HandleFunc("POST /api/v1/sessions/{id}/focus", s.focusSession)

	mux.HandleFunc("/ws", s.handleWebSocket)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Sessions ---

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.svc.ListSessions(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

type createSessionRequest struct {
	Kind          string `json:"kind"`
	WorkspaceRoot string `json:"workspaceRoot"`
	Cols          int    `json:"cols"`
	Rows          int    `json:"rows"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := s.svc.CreateSession(r.Context(), service.CreateOptions{
		Kind:          models.SessionKind(req.Kind),
		CreatedBy:     models.CreatedByUser,
		WorkspaceRoot: req.WorkspaceRoot,
		Cols:          req.Cols,
		Rows:          req.Rows,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.svc.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// closeSession is idempotent at the HTTP level too: closing an unknown id
// returns 204 so UI cleanup never wedges on a stale id.
func (s *Server) closeSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	_ = s.svc.CloseSession(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

type writeInputRequest struct {
	Data string `json:"data"`
}

func (s *Server) writeInput(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req writeInputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.svc.WriteInput(r.Context(), id, req.Data); err != nil {
		if errors.Is(err, transport.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resizeRequest struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

func (s *Server) resizeSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req resizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Cols <= 0 || req.Rows <= 0 {
		writeError(w, http.StatusBadRequest, "cols and rows must be positive")
		return
	}

	if err := s.svc.Resize(r.Context(), id, req.Cols, req.Rows); err != nil {
		if errors.Is(err, transport.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		// Resize failures are non-fatal; the session keeps its prior
		// geometry. Surface the error and move on.
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sessionOutput(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.svc.Get(id); !ok {
		writeError(w, http.StatusNotFound, "session not found: "+id)
		return
	}
	lines := s.svc.Output(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": id,
		"lines":     lines,
		"count":     len(lines),
	})
}

func (s *Server) sessionHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	insp, err := s.svc.Inspect(r.Context(), id)
	if err != nil {
		if errors.Is(err, transport.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": id,
		"commands":  insp.CommandHistory,
	})
}

func (s *Server) focusSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.svc.Get(id); !ok {
		writeError(w, http.StatusNotFound, "session not found: "+id)
		return
	}
	s.svc.Focus(id)
	w.WriteHeader(http.StatusNoContent)
}
