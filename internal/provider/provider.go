// Package provider adapts the two supported chat-completion dialects,
// OpenAI-style and Anthropic-style, behind one interface the agent loop
// can drive.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/luohy15/y-agent/internal/chat"
)

// requestTimeout bounds a single completion call.
const requestTimeout = 60 * time.Second

// ToolSpec describes one tool in the shape providers expect: a name, a
// description and a decoded JSON schema for the arguments.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Response is a single assistant turn.
type Response struct {
	Content   string
	ToolCalls []chat.ToolCall
	Model     string
	Provider  string
}

// Provider produces one assistant turn from the conversation so far.
type Provider interface {
	Name() string
	Chat(ctx context.Context, messages []chat.Message, system string, tools []ToolSpec) (Response, error)
}

// Config carries the connection settings of one configured bot.
type Config struct {
	Name          string
	BaseURL       string
	APIKey        string
	APIType       string
	Model         string
	MaxTokens     int
	CustomAPIPath string
}

// ClientError marks a 4xx response from the upstream API. The loop does
// not retry these; the request itself is wrong.
type ClientError struct {
	StatusCode int
	Err        error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("client error (status %d): %v", e.StatusCode, e.Err)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// IsClientError reports whether err is (or wraps) a ClientError.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

// New builds a provider from a bot config. Unknown api types fall back
// to the OpenAI dialect, which most compatible gateways speak.
func New(cfg Config) (Provider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("bot %q has no model configured", cfg.Name)
	}
	if cfg.APIType == "anthropic" {
		return NewAnthropic(cfg), nil
	}
	return NewOpenAI(cfg), nil
}
