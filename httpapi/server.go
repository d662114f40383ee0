// Package httpapi exposes the orchestrator over HTTP: a Server-Sent Events
// chat endpoint plus session management and health endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/salesflow/agent/convo"
	"github.com/salesflow/agent/store"
	"github.com/salesflow/agent/stream"
)

type (
	// ChatAgent runs one workflow turn, reporting progress through the sink.
	// *agent.Orchestrator implements it.
	ChatAgent interface {
		Chat(ctx context.Context, userID, sessionID, message string, sink stream.Sink) error
	}

	// SessionStore is the persistence surface the session endpoints need.
	// *store.Store implements it.
	SessionStore interface {
		Load(ctx context.Context, userID, sessionID string) (*convo.Session, error)
		Delete(ctx context.Context, userID, sessionID string) error
		List(ctx context.Context, userID string) ([]store.SessionSummary, error)
	}

	// Pinger is a dependency the health endpoint checks.
	Pinger interface {
		Name() string
		Ping(ctx context.Context) error
	}

	// Options configures New.
	Options struct {
		// Agent handles chat requests. Required.
		Agent ChatAgent
		// Sessions backs the session endpoints. Required.
		Sessions SessionStore
		// DefaultUserID is used when a request names no user.
		DefaultUserID string
		// Pingers are checked by GET /health.
		Pingers []Pinger
		// RequestTimeout bounds the session endpoints. The chat stream is
		// not bounded. Defaults to 60s.
		RequestTimeout time.Duration
	}

	// Server holds the HTTP handlers.
	Server struct {
		agent    ChatAgent
		sessions SessionStore
		userID   string
		pingers  []Pinger
		timeout  time.Duration
	}
)

// New creates a Server.
func New(opts Options) (*Server, error) {
	if opts.Agent == nil {
		return nil, errors.New("httpapi: Agent is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("httpapi: Sessions is required")
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Server{
		agent:    opts.Agent,
		sessions: opts.Sessions,
		userID:   opts.DefaultUserID,
		pingers:  opts.Pingers,
		timeout:  timeout,
	}, nil
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/chat", s.handleChat)
	r.Get("/sessions", s.handleListSessions)
	r.Get("/sessions/{sessionID}/summary", s.handleSessionSummary)
	r.Get("/conversations/{sessionID}", s.handleConversation)
	r.Delete("/session/{sessionID}", s.handleDeleteSession)
	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "AI sales assistant API is running",
		"status":  "healthy",
		"endpoints": map[string]string{
			"chat":            "/chat",
			"sessions":        "/sessions",
			"session_summary": "/sessions/{session_id}/summary",
			"conversation":    "/conversations/{session_id}",
			"clear_session":   "/session/{session_id}",
			"health":          "/health",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(s.pingers))
	for _, p := range s.pingers {
		if err := p.Ping(ctx); err != nil {
			deps[p.Name()] = "unhealthy: " + err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[p.Name()] = "healthy"
	}
	body := map[string]any{"status": "healthy", "dependencies": deps}
	if status != http.StatusOK {
		body["status"] = "unhealthy"
	}
	respondJSON(w, status, body)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	summaries, err := s.sessions.List(ctx, s.resolveUser(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if summaries == nil {
		summaries = []store.SessionSummary{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"sessions":    summaries,
		"total_count": len(summaries),
	})
}

func (s *Server) handleSessionSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	sessionID := chi.URLParam(r, "sessionID")
	sess, err := s.sessions.Load(ctx, s.resolveUser(r), sessionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id":    sessionID,
		"exists":        len(sess.Messages) > 0,
		"title":         sess.Title,
		"message_count": len(sess.Messages),
		"last_updated":  sess.LastUpdated,
	})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	sessionID := chi.URLParam(r, "sessionID")
	sess, err := s.sessions.Load(ctx, s.resolveUser(r), sessionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	sessionID := chi.URLParam(r, "sessionID")
	if err := s.sessions.Delete(ctx, s.resolveUser(r), sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, err)
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message":    "Session " + sessionID + " cleared successfully",
		"session_id": sessionID,
	})
}

// resolveUser picks the user for a request: explicit header first, then the
// configured default.
func (s *Server) resolveUser(r *http.Request) string {
	if u := r.Header.Get("X-User-ID"); u != "" {
		return u
	}
	return s.userID
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf(context.Background(), "encode response failed: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

// newSessionID returns a fresh session identifier for requests that omit one.
func newSessionID() string {
	return uuid.NewString()
}
