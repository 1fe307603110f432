package provider

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/luohy15/y-agent/internal/chat"
)

func TestToOpenAIMessages(t *testing.T) {
	msgs := []chat.Message{
		{Role: chat.RoleUser, Content: "run ls"},
		{Role: chat.RoleAssistant, Content: "", ToolCalls: []chat.ToolCall{
			{ID: "c1", Function: chat.ToolCallFunction{Name: "bash", Arguments: `{"command":"ls"}`}},
		}},
		{Role: chat.RoleTool, Content: "file.txt", ToolCallID: "c1"},
		{Role: chat.RoleAssistant, Content: "there is one file"},
	}

	out := toOpenAIMessages(msgs)
	if len(out) != 4 {
		t.Fatalf("got %d messages", len(out))
	}
	if out[1].Content != " " {
		t.Fatalf("empty assistant content should become a space, got %q", out[1].Content)
	}
	if len(out[1].ToolCalls) != 1 || out[1].ToolCalls[0].ID != "c1" {
		t.Fatalf("tool calls not carried: %+v", out[1])
	}
	if out[2].Role != openai.ChatMessageRoleTool || out[2].ToolCallID != "c1" {
		t.Fatalf("unexpected tool message: %+v", out[2])
	}
}

func TestToOpenAIMessagesSkipsOrphanToolResults(t *testing.T) {
	msgs := []chat.Message{
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleTool, Content: "stray result", ToolCallID: "ghost"},
		{Role: chat.RoleAssistant, Content: "hello"},
	}
	out := toOpenAIMessages(msgs)
	if len(out) != 2 {
		t.Fatalf("orphan tool result should be dropped, got %d messages", len(out))
	}
	for _, m := range out {
		if m.Role == openai.ChatMessageRoleTool {
			t.Fatalf("orphan tool message survived: %+v", m)
		}
	}
}

func TestToOpenAIMessagesEmptyToolResult(t *testing.T) {
	msgs := []chat.Message{
		{Role: chat.RoleAssistant, ToolCalls: []chat.ToolCall{
			{ID: "c1", Function: chat.ToolCallFunction{Name: "bash"}},
		}},
		{Role: chat.RoleTool, Content: "", ToolCallID: "c1"},
	}
	out := toOpenAIMessages(msgs)
	if out[1].Content != "{}" {
		t.Fatalf("empty tool content should become {}, got %q", out[1].Content)
	}
}

func TestClassifyOpenAIError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		client bool
	}{
		{"api 400", &openai.APIError{HTTPStatusCode: 400}, true},
		{"api 429", &openai.APIError{HTTPStatusCode: 429}, true},
		{"api 500", &openai.APIError{HTTPStatusCode: 500}, false},
		{"request 404", &openai.RequestError{HTTPStatusCode: 404}, true},
		{"plain error", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyOpenAIError(tt.err)
			if IsClientError(got) != tt.client {
				t.Fatalf("IsClientError = %v, want %v", IsClientError(got), tt.client)
			}
			if !tt.client && got != tt.err {
				t.Fatalf("non-client errors should pass through unchanged")
			}
		})
	}
}

func TestGatewayTransport(t *testing.T) {
	var gotPath, gotReferer, gotTitle string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotReferer = r.Header.Get("HTTP-Referer")
		gotTitle = r.Header.Get("X-Title")
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	client := &http.Client{Transport: &gatewayTransport{
		customPath: "/api/v2/complete",
		headers: map[string]string{
			"HTTP-Referer": "https://github.com/luohy15/y-agent",
			"X-Title":      "y-agent",
		},
	}}
	resp, err := client.Get(upstream.URL + "/v1/chat/completions")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if gotPath != "/api/v2/complete" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotReferer != "https://github.com/luohy15/y-agent" || gotTitle != "y-agent" {
		t.Fatalf("headers not injected: %q, %q", gotReferer, gotTitle)
	}

	// Other paths are left alone.
	resp, err = client.Get(upstream.URL + "/v1/models")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if gotPath != "/v1/models" {
		t.Fatalf("path = %q", gotPath)
	}
}

func TestNewDispatchesByAPIType(t *testing.T) {
	if _, err := New(Config{Name: "b"}); err == nil {
		t.Fatalf("missing model should be an error")
	}

	p, err := New(Config{Name: "b", Model: "gpt-x"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*OpenAIProvider); !ok {
		t.Fatalf("default dialect should be openai, got %T", p)
	}

	p, err = New(Config{Name: "b", Model: "claude-x", APIType: "anthropic"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*AnthropicProvider); !ok {
		t.Fatalf("got %T", p)
	}
}
