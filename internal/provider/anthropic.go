package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"github.com/luohy15/y-agent/internal/chat"
)

// anthropicDefaultMaxTokens applies when a bot does not set max_tokens;
// the Messages API requires the field.
const anthropicDefaultMaxTokens = 8192

// AnthropicProvider speaks the native Anthropic Messages dialect.
type AnthropicProvider struct {
	client *anthropic.Client
	cfg    Config
}

// NewAnthropic builds an Anthropic-dialect provider from a bot config.
func NewAnthropic(cfg Config) *AnthropicProvider {
	opts := []anthropic.ClientOption{
		anthropic.WithHTTPClient(&http.Client{Timeout: requestTimeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")))
	}
	return &AnthropicProvider{client: anthropic.NewClient(cfg.APIKey, opts...), cfg: cfg}
}

func (p *AnthropicProvider) Name() string {
	return p.cfg.Name
}

// Chat sends the conversation and returns the next assistant turn.
func (p *AnthropicProvider) Chat(ctx context.Context, messages []chat.Message, system string, tools []ToolSpec) (Response, error) {
	cache := strings.Contains(p.cfg.Model, "claude-3")
	msgs := toAnthropicMessages(messages, cache)

	maxTokens := p.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	req := anthropic.MessagesRequest{
		Model:     anthropic.Model(p.cfg.Model),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
	if system != "" {
		part := anthropic.MessageSystemPart{Type: "text", Text: system}
		if cache {
			part.CacheControl = &anthropic.MessageCacheControl{Type: anthropic.CacheControlTypeEphemeral}
		}
		req.MultiSystem = []anthropic.MessageSystemPart{part}
	}
	for _, ts := range tools {
		req.Tools = append(req.Tools, anthropic.ToolDefinition{
			Name:        ts.Name,
			Description: ts.Description,
			InputSchema: ts.Schema,
		})
	}

	resp, err := p.client.CreateMessages(ctx, req)
	if err != nil {
		return Response{}, classifyAnthropicError(err)
	}

	out := Response{Model: p.cfg.Model, Provider: p.cfg.Name}
	for _, block := range resp.Content {
		switch block.Type {
		case anthropic.MessagesContentTypeText:
			if block.Text != nil {
				out.Content += *block.Text
			}
		case anthropic.MessagesContentTypeToolUse:
			if block.MessageContentToolUse == nil {
				continue
			}
			tu := block.MessageContentToolUse
			args := string(tu.Input)
			if args == "" {
				args = "{}"
			}
			out.ToolCalls = append(out.ToolCalls, chat.ToolCall{
				ID:   tu.ID,
				Type: "function",
				Function: chat.ToolCallFunction{
					Name:      tu.Name,
					Arguments: args,
				},
			})
		}
	}
	return out, nil
}

// toAnthropicMessages rebuilds the transcript in Messages-API shape:
// tool results become user-role tool_result blocks, consecutive
// same-role messages merge because the API requires alternation. With
// cache enabled the last user text block carries an ephemeral
// cache_control marker.
func toAnthropicMessages(messages []chat.Message, cache bool) []anthropic.Message {
	var out []anthropic.Message
	var prevAssistantHadToolCalls bool

	appendMerged := func(role anthropic.ChatRole, content []anthropic.MessageContent) {
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, content...)
			return
		}
		out = append(out, anthropic.Message{Role: role, Content: content})
	}

	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			appendMerged(anthropic.RoleUser, []anthropic.MessageContent{
				anthropic.NewTextMessageContent(msg.Content),
			})
			prevAssistantHadToolCalls = false
		case chat.RoleAssistant:
			var content []anthropic.MessageContent
			if msg.Content != "" && msg.Content != " " {
				content = append(content, anthropic.NewTextMessageContent(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				content = append(content, anthropic.NewToolUseMessageContent(
					tc.ID, tc.Function.Name, json.RawMessage(tc.Function.Arguments)))
			}
			if len(content) == 0 {
				content = append(content, anthropic.NewTextMessageContent(" "))
			}
			appendMerged(anthropic.RoleAssistant, content)
			prevAssistantHadToolCalls = len(msg.ToolCalls) > 0
		case chat.RoleTool:
			if !prevAssistantHadToolCalls {
				continue
			}
			content := msg.Content
			if content == "" {
				content = "{}"
			}
			appendMerged(anthropic.RoleUser, []anthropic.MessageContent{
				anthropic.NewToolResultMessageContent(msg.ToolCallID, content, false),
			})
		}
	}

	if cache {
		markLastUserText(out)
	}
	return out
}

func markLastUserText(msgs []anthropic.Message) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != anthropic.RoleUser {
			continue
		}
		for j := len(msgs[i].Content) - 1; j >= 0; j-- {
			if msgs[i].Content[j].Type == anthropic.MessagesContentTypeText {
				msgs[i].Content[j].CacheControl = &anthropic.MessageCacheControl{
					Type: anthropic.CacheControlTypeEphemeral,
				}
				return
			}
		}
		return
	}
}

func classifyAnthropicError(err error) error {
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) && reqErr.StatusCode >= 400 && reqErr.StatusCode < 500 {
		return &ClientError{StatusCode: reqErr.StatusCode, Err: err}
	}
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Type {
		case "invalid_request_error":
			return &ClientError{StatusCode: http.StatusBadRequest, Err: err}
		case "authentication_error":
			return &ClientError{StatusCode: http.StatusUnauthorized, Err: err}
		case "permission_error":
			return &ClientError{StatusCode: http.StatusForbidden, Err: err}
		case "not_found_error":
			return &ClientError{StatusCode: http.StatusNotFound, Err: err}
		}
	}
	return err
}
