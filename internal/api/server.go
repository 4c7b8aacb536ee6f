package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/lure/internal/engine"
	"github.com/MikeSquared-Agency/lure/internal/session"
	"github.com/MikeSquared-Agency/lure/internal/store"
)

type Server struct {
	router *chi.Mux
	engine *engine.Engine
	store  store.Store
	apiKey string
	port   int
	logger *slog.Logger
}

func NewServer(port int, apiKey string, eng *engine.Engine, st store.Store, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(requestID)

	s := &Server{
		router: router,
		engine: eng,
		store:  st,
		apiKey: apiKey,
		port:   port,
		logger: logger,
	}

	router.Get("/health", s.health)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Post("/message", s.handleMessage)
		r.Get("/sessions", s.listSessions)
		r.Get("/sessions/{sessionID}", s.getSession)
		r.Get("/sessions/{sessionID}/messages", s.getMessages)
		r.Get("/stats", s.stats)
		r.Delete("/sessions/expired", s.cleanup)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// log returns the server logger tagged with the request id, so every line
// for one request correlates with its X-Request-ID header.
func (s *Server) log(r *http.Request) *slog.Logger {
	return s.logger.With("request_id", RequestID(r.Context()))
}

// requireAPIKey rejects callers whose x-api-key header does not match the
// configured key, before any session lookup happens. With no key configured
// the check is disabled (local development).
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("x-api-key") != s.apiKey {
			s.log(r).Warn("unauthorized request", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type wireMessage struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

type messageRequest struct {
	SessionID string        `json:"sessionId"`
	Message   wireMessage   `json:"message"`
	History   []wireMessage `json:"conversationHistory"`
}

type messageResponse struct {
	Status string `json:"status"`
	Reply  string `json:"reply,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Status: "error", Error: "Invalid JSON body"})
		return
	}
	if req.SessionID == "" || req.Message.Text == "" {
		writeJSON(w, http.StatusBadRequest, messageResponse{Status: "error", Error: "Missing required fields"})
		return
	}

	sender, ok := session.ParseSender(req.Message.Sender)
	if !ok {
		// Unknown senders default to the suspect role rather than being
		// rejected; the turn is still evidence.
		sender = session.SenderSuspect
	}

	turn := engine.Turn{
		SessionID: req.SessionID,
		Sender:    sender,
		Text:      req.Message.Text,
		Timestamp: parseTimestamp(req.Message.Timestamp),
		History:   parseHistory(req.SessionID, req.History),
	}

	reply, err := s.engine.ProcessTurn(r.Context(), turn)
	if errors.Is(err, engine.ErrInvalidTurn) {
		writeJSON(w, http.StatusBadRequest, messageResponse{Status: "error", Error: "Missing required fields"})
		return
	}
	if err != nil {
		s.log(r).Error("turn processing failed", "session_id", req.SessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, messageResponse{Status: "error", Error: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Status: "success", Reply: reply})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.log(r).Error("stats query failed", "error", err)
		stats = &session.Stats{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"metrics":   stats,
	})
}

type sessionView struct {
	SessionID             string  `json:"sessionId"`
	State                 string  `json:"state"`
	ScamDetected          bool    `json:"scamDetected"`
	ScamType              string  `json:"scamType"`
	Confidence            float64 `json:"confidence"`
	MessagesExchanged     int     `json:"messagesExchanged"`
	ConversationComplete  bool    `json:"conversationComplete"`
	ExtractedIntelligence any     `json:"extractedIntelligence"`
	AgentNotes            string  `json:"agentNotes"`
	CreatedAt             string  `json:"createdAt"`
	CallbackSent          bool    `json:"callbackSent"`
	CallbackStatus        int     `json:"callbackStatus"`
}

func viewOf(sess *session.Session) sessionView {
	return sessionView{
		SessionID:             sess.ID,
		State:                 string(sess.State),
		ScamDetected:          sess.ScamDetected,
		ScamType:              sess.ScamType,
		Confidence:            sess.Confidence,
		MessagesExchanged:     sess.Turns,
		ConversationComplete:  sess.IsComplete(),
		ExtractedIntelligence: sess.Intel.Canonical(),
		AgentNotes:            sess.Notes,
		CreatedAt:             sess.CreatedAt.UTC().Format(time.RFC3339),
		CallbackSent:          sess.CallbackSent,
		CallbackStatus:        sess.CallbackStatus,
	}
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	sessions, err := s.store.ListSessions(r.Context(), limit)
	if err != nil {
		s.log(r).Error("list sessions failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	views := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, viewOf(sess))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": views, "count": len(views)})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	sess, err := s.store.GetSession(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Session not found"})
		return
	}
	if err != nil {
		s.log(r).Error("get session failed", "session_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) getMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	msgs, err := s.store.GetMessages(r.Context(), id)
	if err != nil {
		s.log(r).Error("get messages failed", "session_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, wireMessage{
			Sender:    string(m.Sender),
			Text:      m.Text,
			Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": id, "messages": out, "count": len(out)})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.log(r).Error("stats query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// cleanup is the retention sweep: deletes sessions older than ?days
// (default 30). Admin-only by virtue of the API key, never on the hot path.
func (s *Server) cleanup(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}

	deleted, err := s.store.CleanupOlderThan(r.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		s.log(r).Error("cleanup failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	s.log(r).Info("retention sweep done", "deleted", deleted, "days", days)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func parseTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return time.Time{}
}

func parseHistory(sessionID string, wire []wireMessage) []session.Message {
	out := make([]session.Message, 0, len(wire))
	for _, m := range wire {
		sender, ok := session.ParseSender(m.Sender)
		if !ok {
			sender = session.SenderSuspect
		}
		out = append(out, session.Message{
			SessionID: sessionID,
			Sender:    sender,
			Text:      m.Text,
			Timestamp: parseTimestamp(m.Timestamp),
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
