package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/luohy15/y-agent/internal/chat"
	"github.com/luohy15/y-agent/internal/store"
)

// apiClient talks to the y-agent HTTP API with a bearer token.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL, token string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    &http.Client{},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var detail struct {
			Detail string `json:"detail"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &detail) == nil && detail.Detail != "" {
			return fmt.Errorf("%s %s: %s", method, path, detail.Detail)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) createChat(ctx context.Context, prompt, botName string, autoApprove bool) (string, error) {
	var out struct {
		ChatID string `json:"chat_id"`
	}
	err := c.do(ctx, http.MethodPost, "/chat", map[string]any{
		"prompt":       prompt,
		"bot_name":     botName,
		"auto_approve": autoApprove,
	}, &out)
	return out.ChatID, err
}

func (c *apiClient) sendMessage(ctx context.Context, chatID, prompt string) error {
	return c.do(ctx, http.MethodPost, "/chat/message", map[string]any{
		"chat_id": chatID,
		"prompt":  prompt,
	}, nil)
}

func (c *apiClient) approve(ctx context.Context, chatID string, decisions map[string]bool) error {
	return c.do(ctx, http.MethodPost, "/chat/approve", map[string]any{
		"chat_id":   chatID,
		"decisions": decisions,
	}, nil)
}

func (c *apiClient) listChats(ctx context.Context, query string) ([]store.ChatSummary, error) {
	var out []store.ChatSummary
	path := "/chat/list"
	if query != "" {
		path += "?query=" + url.QueryEscape(query)
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *apiClient) share(ctx context.Context, chatID, messageID string) (string, error) {
	var out struct {
		ShareID string `json:"share_id"`
	}
	err := c.do(ctx, http.MethodPost, "/chat/share", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}, &out)
	return out.ShareID, err
}

func (c *apiClient) listBots(ctx context.Context) ([]store.BotConfig, error) {
	var out []store.BotConfig
	err := c.do(ctx, http.MethodGet, "/bot/list", nil, &out)
	return out, err
}

func (c *apiClient) saveBot(ctx context.Context, bot store.BotConfig) error {
	return c.do(ctx, http.MethodPost, "/bot", bot, nil)
}

func (c *apiClient) deleteBot(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/bot?name="+url.QueryEscape(name), nil, nil)
}

// streamEvent is one decoded SSE frame from /chat/messages.
type streamEvent struct {
	Event string
	Data  []byte
}

type messageEvent struct {
	Index int          `json:"index"`
	Data  chat.Message `json:"data"`
}

type askEvent struct {
	ToolCalls []chat.ToolCall `json:"tool_calls"`
}

type doneEvent struct {
	Status string `json:"status"`
}

// stream follows the chat's SSE feed from lastIndex and hands each event
// to fn. It returns when fn reports it is finished or the stream ends.
func (c *apiClient) stream(ctx context.Context, chatID string, lastIndex int, fn func(streamEvent) (stop bool, err error)) error {
	path := fmt.Sprintf("%s/chat/messages?chat_id=%s&last_index=%d",
		c.baseURL, url.QueryEscape(chatID), lastIndex)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("stream failed with status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var ev streamEvent
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			ev.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.Data = []byte(strings.TrimPrefix(line, "data: "))
		case line == "":
			if ev.Event == "" {
				continue
			}
			stop, err := fn(ev)
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
			ev = streamEvent{}
		}
	}
	return scanner.Err()
}
