// Package chat holds the conversation domain model: chats, messages,
// tool calls and the helpers that keep their persisted form consistent.
package chat

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Tool call approval statuses. An empty status on a stored call is read
// as approved so that conversations written before statuses existed
// keep replaying correctly.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
)

// ToolCallFunction is the function half of a tool call. Arguments is the
// raw JSON string exactly as the model produced it.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a single model-requested tool invocation.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type,omitempty"`
	Function ToolCallFunction `json:"function"`
	Status   string           `json:"status,omitempty"`
}

// EffectiveStatus maps the legacy empty status to approved.
func (tc ToolCall) EffectiveStatus() string {
	if tc.Status == "" {
		return StatusApproved
	}
	return tc.Status
}

// Args decodes the call's JSON arguments. Malformed arguments decode to
// an empty map rather than failing; the tool layer reports the problem.
func (tc ToolCall) Args() map[string]any {
	args := map[string]any{}
	if tc.Function.Arguments == "" {
		return args
	}
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
		return map[string]any{}
	}
	return args
}

// Message is one entry of a conversation. Tool result messages carry
// Tool, Arguments and ToolCallID; assistant messages may carry ToolCalls.
type Message struct {
	Role          string         `json:"role"`
	Content       string         `json:"content"`
	Timestamp     string         `json:"timestamp,omitempty"`
	UnixTimestamp int64          `json:"unix_timestamp,omitempty"`
	ID            string         `json:"id,omitempty"`
	ParentID      string         `json:"parent_id,omitempty"`
	Model         string         `json:"model,omitempty"`
	Provider      string         `json:"provider,omitempty"`
	ToolCalls     []ToolCall     `json:"tool_calls,omitempty"`
	Tool          string         `json:"tool,omitempty"`
	Arguments     map[string]any `json:"arguments,omitempty"`
	ToolCallID    string         `json:"tool_call_id,omitempty"`
}

// Chat is the unit of persistence: an ordered message list plus run state.
type Chat struct {
	ID              string    `json:"id"`
	CreateTime      string    `json:"create_time,omitempty"`
	UpdateTime      string    `json:"update_time,omitempty"`
	Messages        []Message `json:"messages"`
	BotName         string    `json:"bot_name,omitempty"`
	OriginChatID    string    `json:"origin_chat_id,omitempty"`
	OriginMessageID string    `json:"origin_message_id,omitempty"`
	AutoApprove     bool      `json:"auto_approve,omitempty"`
	Interrupted     bool      `json:"interrupted,omitempty"`
}

// NewChatID returns a short chat identifier, six hex characters.
func NewChatID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}

const messageIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewMessageID returns an identifier of the form msg_<unixms>_<8 chars>.
func NewMessageID() string {
	suffix := make([]byte, 8)
	u := uuid.New()
	for i := range suffix {
		suffix[i] = messageIDAlphabet[int(u[i])%len(messageIDAlphabet)]
	}
	return "msg_" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" + string(suffix)
}

// Timestamp returns the current time in ISO 8601 form with a colon in
// the zone offset, e.g. 2025-01-02T15:04:05+00:00.
func Timestamp() string {
	return time.Now().Format("2006-01-02T15:04:05-07:00")
}

// UnixTimestamp returns the current time in milliseconds.
func UnixTimestamp() int64 {
	return time.Now().UnixMilli()
}

// NewMessage builds a message with a fresh id and both timestamp forms.
func NewMessage(role, content string) Message {
	return Message{
		Role:          role,
		Content:       content,
		Timestamp:     Timestamp(),
		UnixTimestamp: UnixTimestamp(),
		ID:            NewMessageID(),
	}
}

// SortMessages orders messages by their unix timestamp, preserving the
// stored order for equal timestamps.
func SortMessages(messages []Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].UnixTimestamp < messages[j].UnixTimestamp
	})
}

// FilterSystem drops system-role messages. Stored chats never carry the
// system prompt; it is reattached per run from configuration.
func FilterSystem(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Title derives the chat title: the first 100 characters of the first
// user message, empty when there is none.
func (c *Chat) Title() string {
	for _, m := range c.Messages {
		if m.Role != RoleUser {
			continue
		}
		r := []rune(m.Content)
		if len(r) > 100 {
			return string(r[:100])
		}
		return m.Content
	}
	return ""
}

// LastMessage returns the final message, or nil for an empty chat.
func (c *Chat) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}
