// Package server exposes the HTTP API: chat lifecycle, approvals, bot
// and VM configuration, share links, and the SSE message stream.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/luohy15/y-agent/internal/queue"
	"github.com/luohy15/y-agent/internal/store"
)

// Server wires the handlers to their dependencies.
type Server struct {
	store     *store.Store
	queue     queue.Dispatcher
	jwtSecret []byte
}

// New builds a server.
func New(st *store.Store, q queue.Dispatcher, jwtSecret []byte) *Server {
	return &Server{store: st, queue: q, jwtSecret: jwtSecret}
}

// Handler builds the route tree. Everything except the health check
// and shared-chat reads requires a valid bearer token.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/chat/share", s.handleGetShare)

	r.Group(func(r chi.Router) {
		r.Use(s.auth)

		r.Post("/chat", s.handleCreateChat)
		r.Post("/chat/message", s.handleSendMessage)
		r.Post("/chat/approve", s.handleApprove)
		r.Post("/chat/stop", s.handleStop)
		r.Post("/chat/auto_approve", s.handleAutoApprove)
		r.Get("/chat/list", s.handleListChats)
		r.Get("/chat/detail", s.handleChatDetail)
		r.Get("/chat/messages", s.handleMessages)
		r.Post("/chat/share", s.handleCreateShare)

		r.Get("/bot/list", s.handleListBots)
		r.Post("/bot", s.handleSaveBot)
		r.Delete("/bot", s.handleDeleteBot)

		r.Get("/vm", s.handleGetVM)
		r.Post("/vm", s.handleSaveVM)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
