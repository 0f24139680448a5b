package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Sghirate/SlackSwarmBot/internal/models"
	"github.com/Sghirate/SlackSwarmBot/internal/relay"
	"github.com/Sghirate/SlackSwarmBot/internal/store"
)

// EventProcessor handles one activity event. Implemented by *relay.Engine.
type EventProcessor interface {
	Process(ctx context.Context, event models.ActivityEvent) relay.Result
}

// Server provides the event intake and inspection REST handlers.
type Server struct {
	store  store.Store
	engine EventProcessor
	logger *slog.Logger
}

// NewServer creates a new API server.
func NewServer(s store.Store, engine EventProcessor, logger *slog.Logger) *Server {
	return &Server{store: s, engine: engine, logger: logger}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/events", s.ingestEvent)
	mux.HandleFunc("GET /api/v1/threads", s.listThreads)
	mux.HandleFunc("GET /api/v1/users", s.listUsers)
	mux.HandleFunc("GET /api/v1/healthz", s.healthz)

	return s.logMiddleware(mux)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
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

// eventResponse is the acknowledgement body for POST /api/v1/events.
type eventResponse struct {
	DeliveryID string `json:"delivery_id"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	ReviewID   int    `json:"review_id,omitempty"`
	ThreadTS   string `json:"thread_ts,omitempty"`
}

// ingestEvent accepts one activity event and runs it through the engine.
// Any well-formed event is acknowledged with 202 regardless of delivery
// outcome; the posting host must never see a delivery failure as its own.
func (s *Server) ingestEvent(w http.ResponseWriter, r *http.Request) {
	var event models.ActivityEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	result := s.engine.Process(r.Context(), event)
	writeJSON(w, http.StatusAccepted, eventResponse{
		DeliveryID: result.DeliveryID,
		Status:     string(result.Status),
		Reason:     result.Reason,
		ReviewID:   result.ReviewID,
		ThreadTS:   result.ThreadTS,
	})
}

func (s *Server) listThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.store.ListThreads(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if threads == nil {
		threads = []*models.ThreadMapping{}
	}
	writeJSON(w, http.StatusOK, threads)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUserMappings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if users == nil {
		users = []*models.UserMapping{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.ListThreads(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
