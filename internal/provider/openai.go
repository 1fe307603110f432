package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/luohy15/y-agent/internal/chat"
)

// OpenAIProvider speaks the OpenAI chat-completions dialect, which also
// covers OpenRouter and other compatible gateways.
type OpenAIProvider struct {
	client *openai.Client
	cfg    Config
}

// NewOpenAI builds an OpenAI-dialect provider from a bot config.
func NewOpenAI(cfg Config) *OpenAIProvider {
	conf := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	conf.HTTPClient = &http.Client{
		Timeout: requestTimeout,
		Transport: &gatewayTransport{
			customPath: cfg.CustomAPIPath,
			headers: map[string]string{
				"HTTP-Referer": "https://github.com/luohy15/y-agent",
				"X-Title":      "y-agent",
			},
		},
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(conf), cfg: cfg}
}

func (p *OpenAIProvider) Name() string {
	return p.cfg.Name
}

// Chat sends the conversation and returns the next assistant turn.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []chat.Message, system string, tools []ToolSpec) (Response, error) {
	msgs := toOpenAIMessages(messages)
	if system != "" {
		msgs = append([]openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		}}, msgs...)
	}

	req := openai.ChatCompletionRequest{
		Model:    p.cfg.Model,
		Messages: msgs,
	}
	if p.cfg.MaxTokens > 0 {
		req.MaxTokens = p.cfg.MaxTokens
	}
	if len(tools) > 0 {
		oaTools := make([]openai.Tool, 0, len(tools))
		for _, ts := range tools {
			oaTools = append(oaTools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        ts.Name,
					Description: ts.Description,
					Parameters:  ts.Schema,
				},
			})
		}
		req.Tools = oaTools
		req.ToolChoice = "auto"
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Response{}, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("empty response from %s", p.cfg.Name)
	}

	choice := resp.Choices[0]
	out := Response{
		Content:  choice.Message.Content,
		Model:    resp.Model,
		Provider: p.cfg.Name,
	}
	if out.Model == "" {
		out.Model = p.cfg.Model
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, chat.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: chat.ToolCallFunction{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return out, nil
}

// toOpenAIMessages flattens the stored transcript into the wire shape.
// Tool results must directly follow an assistant message that requested
// them, so orphaned tool messages are skipped.
func toOpenAIMessages(messages []chat.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	var prevAssistantHadToolCalls bool

	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
			prevAssistantHadToolCalls = false
		case chat.RoleAssistant:
			content := msg.Content
			if content == "" {
				// A literal space keeps the SDK from serializing null
				// content, which some gateways reject.
				content = " "
			}
			var toolCalls []openai.ToolCall
			for _, tc := range msg.ToolCalls {
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				Content:   content,
				ToolCalls: toolCalls,
			})
			prevAssistantHadToolCalls = len(msg.ToolCalls) > 0
		case chat.RoleTool:
			if !prevAssistantHadToolCalls {
				continue
			}
			content := msg.Content
			if content == "" {
				content = "{}"
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: msg.ToolCallID,
				Content:    content,
			})
		}
	}
	return out
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 {
		return &ClientError{StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode >= 400 && reqErr.HTTPStatusCode < 500 {
		return &ClientError{StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return err
}

// gatewayTransport injects gateway identification headers and, when a
// bot carries a custom API path, rewrites the default completions path
// to it. The SDK itself has no hook for either.
type gatewayTransport struct {
	customPath string
	headers    map[string]string
}

func (t *gatewayTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range t.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	if t.customPath != "" && strings.HasSuffix(req.URL.Path, "/chat/completions") {
		req.URL.Path = t.customPath
	}
	return http.DefaultTransport.RoundTrip(req)
}
