package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/luohy15/y-agent/internal/chat"
)

// ssePollInterval paces the storage polls behind the message stream.
const ssePollInterval = time.Second

// handleMessages streams a chat over Server-Sent Events. Each stored
// message from last_index on becomes a "message" event; a pending
// approval raises one "ask" event until new messages arrive; the
// stream closes with "done" once the run completed or was interrupted.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("chat_id")
	if chatID == "" {
		httpError(w, http.StatusBadRequest, "chat_id is required")
		return
	}
	idx, _ := strconv.Atoi(r.URL.Query().Get("last_index"))
	if idx < 0 {
		idx = 0
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(ssePollInterval)
	defer ticker.Stop()

	asked := false
	for {
		c, _, err := s.store.GetChatAny(r.Context(), chatID)
		if err != nil || c == nil {
			sseEvent(w, flusher, "error", map[string]string{"error": "chat not found"})
			return
		}

		newMessages := false
		for ; idx < len(c.Messages); idx++ {
			sseEvent(w, flusher, "message", map[string]any{
				"index": idx,
				"type":  "message",
				"data":  c.Messages[idx],
			})
			newMessages = true
		}
		if newMessages {
			asked = false
		}

		if c.Interrupted {
			sseEvent(w, flusher, "done", map[string]string{"status": "interrupted"})
			return
		}

		if last := c.LastMessage(); last != nil && last.Role == chat.RoleAssistant {
			if len(last.ToolCalls) > 0 {
				var pending []chat.ToolCall
				for _, tc := range last.ToolCalls {
					if tc.EffectiveStatus() == chat.StatusPending {
						pending = append(pending, tc)
					}
				}
				if len(pending) > 0 && !asked {
					asked = true
					sseEvent(w, flusher, "ask", map[string]any{"tool_calls": pending})
				}
			} else {
				sseEvent(w, flusher, "done", map[string]string{"status": "completed"})
				return
			}
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func sseEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
