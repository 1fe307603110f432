package server

import (
	"log"
	"net/http"

	"github.com/luohy15/y-agent/internal/chat"
	"github.com/luohy15/y-agent/internal/queue"
	"github.com/luohy15/y-agent/internal/store"
)

type createChatRequest struct {
	Prompt      string `json:"prompt"`
	BotName     string `json:"bot_name,omitempty"`
	ChatID      string `json:"chat_id,omitempty"`
	AutoApprove bool   `json:"auto_approve,omitempty"`
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if err := decodeJSON(r, &req); err != nil || req.Prompt == "" {
		httpError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	uid := userID(r)

	c := &chat.Chat{
		ID:          req.ChatID,
		Messages:    []chat.Message{chat.NewMessage(chat.RoleUser, req.Prompt)},
		BotName:     req.BotName,
		AutoApprove: req.AutoApprove,
	}
	if err := s.store.CreateChat(r.Context(), uid, c); err != nil {
		httpError(w, http.StatusInternalServerError, "failed to create chat")
		return
	}

	s.dispatch(r, queue.Job{ChatID: c.ID, BotName: req.BotName, UserID: uid})
	writeJSON(w, http.StatusOK, map[string]string{"chat_id": c.ID})
}

type sendMessageRequest struct {
	ChatID  string `json:"chat_id"`
	Prompt  string `json:"prompt"`
	BotName string `json:"bot_name,omitempty"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil || req.ChatID == "" || req.Prompt == "" {
		httpError(w, http.StatusBadRequest, "chat_id and prompt are required")
		return
	}
	uid := userID(r)

	c, err := s.store.GetChat(r.Context(), uid, req.ChatID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to load chat")
		return
	}
	if c == nil {
		httpError(w, http.StatusNotFound, "chat not found")
		return
	}

	// A stopped chat may still hold parked tool calls. Cancel them
	// first so every call has a result before the new user turn.
	if c.Interrupted {
		chat.BackfillToolResults(&c.Messages, chat.BackfillCancelled)
	}

	msg := chat.NewMessage(chat.RoleUser, req.Prompt)
	if last := c.LastMessage(); last != nil {
		msg.ParentID = last.ID
	}
	c.Messages = append(c.Messages, msg)
	// A fresh user turn supersedes any stop request.
	c.Interrupted = false

	if err := s.store.SaveChat(r.Context(), uid, c); err != nil {
		httpError(w, http.StatusInternalServerError, "failed to save chat")
		return
	}

	s.dispatch(r, queue.Job{ChatID: req.ChatID, BotName: req.BotName, UserID: uid})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type approveRequest struct {
	ChatID      string          `json:"chat_id"`
	Decisions   map[string]bool `json:"decisions"`
	UserMessage string          `json:"user_message,omitempty"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decodeJSON(r, &req); err != nil || req.ChatID == "" {
		httpError(w, http.StatusBadRequest, "chat_id is required")
		return
	}

	c, ownerID, err := s.store.GetChatAny(r.Context(), req.ChatID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to load chat")
		return
	}
	if c == nil {
		httpError(w, http.StatusNotFound, "chat not found")
		return
	}

	idx := chat.LastToolCallAssistant(c.Messages)
	if idx < 0 {
		httpError(w, http.StatusBadRequest, "no tool calls to approve")
		return
	}
	calls := c.Messages[idx].ToolCalls

	hasPending := false
	for _, tc := range calls {
		if tc.EffectiveStatus() == chat.StatusPending {
			hasPending = true
			break
		}
	}
	if !hasPending {
		httpError(w, http.StatusBadRequest, "no pending tool calls")
		return
	}

	for i := range calls {
		if calls[i].EffectiveStatus() != chat.StatusPending {
			continue
		}
		approved, decided := req.Decisions[calls[i].ID]
		if !decided {
			continue
		}
		if approved {
			calls[i].Status = chat.StatusApproved
		} else {
			calls[i].Status = chat.StatusRejected
		}
	}

	// Rejections get their synthetic results now, so the transcript is
	// coverage-complete before the worker resumes.
	chat.BackfillToolResults(&c.Messages, chat.BackfillRejected)

	if req.UserMessage != "" {
		msg := chat.NewMessage(chat.RoleUser, req.UserMessage)
		if last := c.LastMessage(); last != nil {
			msg.ParentID = last.ID
		}
		c.Messages = append(c.Messages, msg)
	}

	if err := s.store.SaveChat(r.Context(), ownerID, c); err != nil {
		httpError(w, http.StatusInternalServerError, "failed to save chat")
		return
	}

	stillPending := false
	for _, tc := range calls {
		if tc.EffectiveStatus() == chat.StatusPending {
			stillPending = true
			break
		}
	}
	if !stillPending {
		s.dispatch(r, queue.Job{ChatID: req.ChatID})
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type stopRequest struct {
	ChatID string `json:"chat_id"`
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := decodeJSON(r, &req); err != nil || req.ChatID == "" {
		httpError(w, http.StatusBadRequest, "chat_id is required")
		return
	}

	c, ownerID, err := s.store.GetChatAny(r.Context(), req.ChatID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to load chat")
		return
	}
	if c == nil {
		httpError(w, http.StatusNotFound, "chat not found")
		return
	}

	c.Interrupted = true
	if err := s.store.SaveChat(r.Context(), ownerID, c); err != nil {
		httpError(w, http.StatusInternalServerError, "failed to save chat")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type autoApproveRequest struct {
	ChatID      string `json:"chat_id"`
	AutoApprove bool   `json:"auto_approve"`
}

func (s *Server) handleAutoApprove(w http.ResponseWriter, r *http.Request) {
	var req autoApproveRequest
	if err := decodeJSON(r, &req); err != nil || req.ChatID == "" {
		httpError(w, http.StatusBadRequest, "chat_id is required")
		return
	}

	c, ownerID, err := s.store.GetChatAny(r.Context(), req.ChatID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to load chat")
		return
	}
	if c == nil {
		httpError(w, http.StatusNotFound, "chat not found")
		return
	}

	c.AutoApprove = req.AutoApprove
	if err := s.store.SaveChat(r.Context(), ownerID, c); err != nil {
		httpError(w, http.StatusInternalServerError, "failed to save chat")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "auto_approve": c.AutoApprove})
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	summaries, err := s.store.ListChats(r.Context(), uid, r.URL.Query().Get("query"), 0)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to list chats")
		return
	}
	if summaries == nil {
		summaries = []store.ChatSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleChatDetail(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	chatID := r.URL.Query().Get("chat_id")
	if chatID == "" {
		httpError(w, http.StatusBadRequest, "chat_id is required")
		return
	}
	c, err := s.store.GetChat(r.Context(), uid, chatID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to load chat")
		return
	}
	if c == nil {
		httpError(w, http.StatusNotFound, "chat not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"chat_id":      c.ID,
		"auto_approve": c.AutoApprove,
	})
}

type shareRequest struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id,omitempty"`
}

// handleCreateShare forks the conversation path ending at message_id
// into a new chat owned by the platform user. The share id is that
// chat's id.
func (s *Server) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	var req shareRequest
	if err := decodeJSON(r, &req); err != nil || req.ChatID == "" {
		httpError(w, http.StatusBadRequest, "chat_id is required")
		return
	}
	uid := userID(r)

	c, err := s.store.GetChat(r.Context(), uid, req.ChatID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to load chat")
		return
	}
	if c == nil {
		httpError(w, http.StatusNotFound, "chat not found")
		return
	}

	path := chat.MessagePath(c.Messages, req.MessageID)
	if len(path) == 0 {
		httpError(w, http.StatusBadRequest, "message not found")
		return
	}

	platform, err := s.store.DefaultUser(r.Context())
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to resolve platform user")
		return
	}

	originMessageID := req.MessageID
	if originMessageID == "" {
		originMessageID = path[len(path)-1].ID
	}
	fork := &chat.Chat{
		Messages:        path,
		OriginChatID:    c.ID,
		OriginMessageID: originMessageID,
	}
	if err := s.store.CreateChat(r.Context(), platform.ID, fork); err != nil {
		httpError(w, http.StatusInternalServerError, "failed to create share")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"share_id": fork.ID})
}

// handleGetShare serves a shared chat. No auth: share ids are the only
// capability needed.
func (s *Server) handleGetShare(w http.ResponseWriter, r *http.Request) {
	shareID := r.URL.Query().Get("share_id")
	if shareID == "" {
		httpError(w, http.StatusBadRequest, "share_id is required")
		return
	}
	platform, err := s.store.DefaultUser(r.Context())
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to resolve platform user")
		return
	}
	c, err := s.store.GetChat(r.Context(), platform.ID, shareID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to load chat")
		return
	}
	if c == nil {
		httpError(w, http.StatusNotFound, "shared chat not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"chat_id":           c.ID,
		"messages":          c.Messages,
		"create_time":       c.CreateTime,
		"origin_chat_id":    c.OriginChatID,
		"origin_message_id": c.OriginMessageID,
	})
}

func (s *Server) dispatch(r *http.Request, job queue.Job) {
	if err := s.queue.Enqueue(r.Context(), job); err != nil {
		log.Printf("server: failed to enqueue job for chat %s: %v", job.ChatID, err)
	}
}
