package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/luohy15/y-agent/internal/chat"
	"github.com/luohy15/y-agent/internal/queue"
	"github.com/luohy15/y-agent/internal/store"
)

// recordingQueue captures enqueued jobs instead of spooling them.
type recordingQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
}

func (q *recordingQueue) Enqueue(ctx context.Context, job queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

type apiEnv struct {
	srv    *httptest.Server
	store  *store.Store
	queue  *recordingQueue
	secret []byte
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "agent.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	q := &recordingQueue{}
	secret := []byte("test-secret")
	srv := httptest.NewServer(New(st, q, secret).Handler())
	t.Cleanup(srv.Close)
	return &apiEnv{srv: srv, store: st, queue: q, secret: secret}
}

func (e *apiEnv) token(t *testing.T, email string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email":    email,
		"username": strings.SplitN(email, "@", 2)[0],
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString(e.secret)
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatal(err)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.do(t, http.MethodGet, "/chat/list", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/chat/list", "not-a-jwt", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestAuthTokenQueryParam(t *testing.T) {
	env := newAPIEnv(t)
	tok := env.token(t, "sse@example.com")

	resp := env.do(t, http.MethodGet, "/chat/list?token="+tok, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestHealthIsPublic(t *testing.T) {
	env := newAPIEnv(t)
	resp := env.do(t, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestCreateChatEnqueuesJob(t *testing.T) {
	env := newAPIEnv(t)
	tok := env.token(t, "u@example.com")

	resp := env.do(t, http.MethodPost, "/chat", tok, map[string]any{"prompt": "hello there"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out map[string]string
	decodeBody(t, resp, &out)
	if out["chat_id"] == "" {
		t.Fatalf("missing chat_id: %v", out)
	}
	if env.queue.count() != 1 {
		t.Fatalf("expected one enqueued job, got %d", env.queue.count())
	}
	if env.queue.jobs[0].ChatID != out["chat_id"] {
		t.Fatalf("job references wrong chat: %+v", env.queue.jobs[0])
	}

	resp = env.do(t, http.MethodPost, "/chat", tok, map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty prompt should 400, got %d", resp.StatusCode)
	}
}

func TestSendMessage(t *testing.T) {
	env := newAPIEnv(t)
	tok := env.token(t, "u@example.com")

	var created map[string]string
	decodeBody(t, env.do(t, http.MethodPost, "/chat", tok, map[string]any{"prompt": "first"}), &created)
	chatID := created["chat_id"]

	// Mark the chat interrupted; a new message must clear that.
	resp := env.do(t, http.MethodPost, "/chat/stop", tok, map[string]any{"chat_id": chatID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status = %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/chat/message", tok, map[string]any{
		"chat_id": chatID, "prompt": "second",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	c, _, err := env.store.GetChatAny(context.Background(), chatID)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Messages) != 2 {
		t.Fatalf("got %d messages", len(c.Messages))
	}
	if c.Messages[1].ParentID != c.Messages[0].ID {
		t.Fatalf("new message should chain to the previous one")
	}
	if c.Interrupted {
		t.Fatalf("new message should clear the interrupted flag")
	}

	resp = env.do(t, http.MethodPost, "/chat/message", tok, map[string]any{
		"chat_id": "nope", "prompt": "x",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing chat should 404, got %d", resp.StatusCode)
	}
}

func TestSendMessageCancelsParkedCalls(t *testing.T) {
	env := newAPIEnv(t)
	tok := env.token(t, "stopper@example.com")
	chatID, _ := seedPendingChat(t, env, "stopper@example.com")

	resp := env.do(t, http.MethodPost, "/chat/stop", tok, map[string]any{"chat_id": chatID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status = %d", resp.StatusCode)
	}

	// The follow-up turn must cover the parked calls with cancellation
	// results before its own message lands.
	resp = env.do(t, http.MethodPost, "/chat/message", tok, map[string]any{
		"chat_id": chatID, "prompt": "never mind",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	c, _, err := env.store.GetChatAny(context.Background(), chatID)
	if err != nil {
		t.Fatal(err)
	}
	// user, assistant(tool_calls), two cancellations, new user turn
	if len(c.Messages) != 5 {
		t.Fatalf("got %d messages, want 5", len(c.Messages))
	}
	if c.Messages[2].Content != chat.CancelledResult("bash") || c.Messages[3].Content != chat.CancelledResult("bash") {
		t.Fatalf("cancellation results missing: %+v, %+v", c.Messages[2], c.Messages[3])
	}
	for _, tc := range c.Messages[1].ToolCalls {
		if tc.Status != chat.StatusCancelled {
			t.Fatalf("call %s status = %s, want cancelled", tc.ID, tc.Status)
		}
	}
	last := c.Messages[4]
	if last.Role != chat.RoleUser || last.Content != "never mind" {
		t.Fatalf("unexpected final message: %+v", last)
	}
	if last.ParentID != c.Messages[3].ID {
		t.Fatalf("user turn should chain after the cancellations")
	}
	if c.Interrupted {
		t.Fatalf("new message should clear the interrupted flag")
	}
}

func seedPendingChat(t *testing.T, env *apiEnv, email string) (string, int64) {
	t.Helper()
	ctx := context.Background()
	u, err := env.store.GetOrCreateUser(ctx, email, "u")
	if err != nil {
		t.Fatal(err)
	}
	assistant := chat.NewMessage(chat.RoleAssistant, "")
	assistant.ToolCalls = []chat.ToolCall{
		{ID: "c1", Status: chat.StatusPending, Function: chat.ToolCallFunction{Name: "bash", Arguments: `{"command":"make deploy"}`}},
		{ID: "c2", Status: chat.StatusPending, Function: chat.ToolCallFunction{Name: "bash", Arguments: `{"command":"make clean"}`}},
	}
	c := &chat.Chat{Messages: []chat.Message{
		chat.NewMessage(chat.RoleUser, "ship it"),
		assistant,
	}}
	if err := env.store.CreateChat(ctx, u.ID, c); err != nil {
		t.Fatal(err)
	}
	return c.ID, u.ID
}

func TestApproveFlow(t *testing.T) {
	env := newAPIEnv(t)
	tok := env.token(t, "approve@example.com")
	chatID, uid := seedPendingChat(t, env, "approve@example.com")

	// Approve one call, reject the other.
	resp := env.do(t, http.MethodPost, "/chat/approve", tok, map[string]any{
		"chat_id":   chatID,
		"decisions": map[string]bool{"c1": true, "c2": false},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	c, err := env.store.GetChat(context.Background(), uid, chatID)
	if err != nil {
		t.Fatal(err)
	}
	calls := c.Messages[1].ToolCalls
	if calls[0].Status != chat.StatusApproved || calls[1].Status != chat.StatusRejected {
		t.Fatalf("statuses = %s, %s", calls[0].Status, calls[1].Status)
	}
	// The rejection got its synthetic result immediately.
	last := c.LastMessage()
	if last.Role != chat.RoleTool || last.ToolCallID != "c2" {
		t.Fatalf("expected a rejection result, got %+v", last)
	}
	if !strings.HasPrefix(last.Content, "ERROR: User denied execution of bash") {
		t.Fatalf("got %q", last.Content)
	}
	// No pending calls remain, so the run was re-dispatched.
	if env.queue.count() != 1 {
		t.Fatalf("expected one job, got %d", env.queue.count())
	}
}

func TestApprovePartialDecisionHoldsDispatch(t *testing.T) {
	env := newAPIEnv(t)
	tok := env.token(t, "partial@example.com")
	chatID, _ := seedPendingChat(t, env, "partial@example.com")

	resp := env.do(t, http.MethodPost, "/chat/approve", tok, map[string]any{
		"chat_id":   chatID,
		"decisions": map[string]bool{"c1": true},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	// c2 is still pending; the worker must not resume yet.
	if env.queue.count() != 0 {
		t.Fatalf("undecided calls should hold the dispatch, got %d jobs", env.queue.count())
	}
}

func TestApproveErrors(t *testing.T) {
	env := newAPIEnv(t)
	tok := env.token(t, "errors@example.com")

	resp := env.do(t, http.MethodPost, "/chat/approve", tok, map[string]any{
		"chat_id": "missing", "decisions": map[string]bool{},
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	// A chat with no tool calls has nothing to approve.
	var created map[string]string
	decodeBody(t, env.do(t, http.MethodPost, "/chat", tok, map[string]any{"prompt": "hi"}), &created)
	resp = env.do(t, http.MethodPost, "/chat/approve", tok, map[string]any{
		"chat_id": created["chat_id"], "decisions": map[string]bool{},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestAutoApproveToggle(t *testing.T) {
	env := newAPIEnv(t)
	tok := env.token(t, "auto@example.com")

	var created map[string]string
	decodeBody(t, env.do(t, http.MethodPost, "/chat", tok, map[string]any{"prompt": "hi"}), &created)

	resp := env.do(t, http.MethodPost, "/chat/auto_approve", tok, map[string]any{
		"chat_id": created["chat_id"], "auto_approve": true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out map[string]any
	decodeBody(t, resp, &out)
	if out["auto_approve"] != true {
		t.Fatalf("got %v", out)
	}

	resp = env.do(t, http.MethodGet, "/chat/detail?chat_id="+created["chat_id"], tok, nil)
	var detail map[string]any
	decodeBody(t, resp, &detail)
	if detail["auto_approve"] != true {
		t.Fatalf("detail = %v", detail)
	}
}

func TestListChatsScopedAndSearchable(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.token(t, "alice@example.com")
	bob := env.token(t, "bob@example.com")

	env.do(t, http.MethodPost, "/chat", alice, map[string]any{"prompt": "deploy the frontend"})
	env.do(t, http.MethodPost, "/chat", alice, map[string]any{"prompt": "write some docs"})
	env.do(t, http.MethodPost, "/chat", bob, map[string]any{"prompt": "deploy the backend"})

	var mine []store.ChatSummary
	decodeBody(t, env.do(t, http.MethodGet, "/chat/list", alice, nil), &mine)
	if len(mine) != 2 {
		t.Fatalf("got %d chats", len(mine))
	}

	var found []store.ChatSummary
	decodeBody(t, env.do(t, http.MethodGet, "/chat/list?query=deploy", alice, nil), &found)
	if len(found) != 1 || found[0].Title != "deploy the frontend" {
		t.Fatalf("got %+v", found)
	}

	var none []store.ChatSummary
	decodeBody(t, env.do(t, http.MethodGet, "/chat/list?query=zzz", alice, nil), &none)
	if none == nil || len(none) != 0 {
		t.Fatalf("empty result should be an empty list, got %v", none)
	}
}

func TestShareLifecycle(t *testing.T) {
	env := newAPIEnv(t)
	tok := env.token(t, "share@example.com")

	var created map[string]string
	decodeBody(t, env.do(t, http.MethodPost, "/chat", tok, map[string]any{"prompt": "shareable work"}), &created)
	chatID := created["chat_id"]

	resp := env.do(t, http.MethodPost, "/chat/share", tok, map[string]any{"chat_id": chatID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var share map[string]string
	decodeBody(t, resp, &share)
	if share["share_id"] == "" || share["share_id"] == chatID {
		t.Fatalf("share_id = %q", share["share_id"])
	}

	// Shared chats are public.
	resp = env.do(t, http.MethodGet, "/chat/share?share_id="+share["share_id"], "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var shared map[string]any
	decodeBody(t, resp, &shared)
	if shared["origin_chat_id"] != chatID {
		t.Fatalf("got %v", shared)
	}
	msgs, _ := shared["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("got %d shared messages", len(msgs))
	}

	resp = env.do(t, http.MethodGet, "/chat/share?share_id=unknown", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestBotEndpoints(t *testing.T) {
	env := newAPIEnv(t)
	tok := env.token(t, "bots@example.com")

	resp := env.do(t, http.MethodPost, "/bot", tok, map[string]any{
		"name": "default", "model": "claude-sonnet", "api_type": "anthropic",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var bots []store.BotConfig
	decodeBody(t, env.do(t, http.MethodGet, "/bot/list", tok, nil), &bots)
	if len(bots) != 1 || bots[0].Model != "claude-sonnet" {
		t.Fatalf("got %+v", bots)
	}

	resp = env.do(t, http.MethodDelete, "/bot?name=default", tok, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("default bot delete should 400, got %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodDelete, "/bot?name=ghost", tok, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing bot delete should 404, got %d", resp.StatusCode)
	}
}

func TestVMEndpoints(t *testing.T) {
	env := newAPIEnv(t)
	tok := env.token(t, "vm@example.com")

	resp := env.do(t, http.MethodGet, "/vm", tok, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/vm", tok, map[string]any{"vm_name": "box", "api_token": "t"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var vm store.VMConfig
	decodeBody(t, env.do(t, http.MethodGet, "/vm", tok, nil), &vm)
	if vm.VMName != "box" {
		t.Fatalf("got %+v", vm)
	}
}

func TestMessagesStreamCompleted(t *testing.T) {
	env := newAPIEnv(t)
	tok := env.token(t, "stream@example.com")

	var created map[string]string
	decodeBody(t, env.do(t, http.MethodPost, "/chat", tok, map[string]any{"prompt": "hi"}), &created)
	chatID := created["chat_id"]

	// Settle the chat so the stream finishes on its first pass.
	c, uid, err := env.store.GetChatAny(context.Background(), chatID)
	if err != nil {
		t.Fatal(err)
	}
	c.Messages = append(c.Messages, chat.NewMessage(chat.RoleAssistant, "all done"))
	if err := env.store.SaveChat(context.Background(), uid, c); err != nil {
		t.Fatal(err)
	}

	resp := env.do(t, http.MethodGet, "/chat/messages?chat_id="+chatID, tok, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	body := buf.String()
	if strings.Count(body, "event: message") != 2 {
		t.Fatalf("expected 2 message events, got:\n%s", body)
	}
	if !strings.Contains(body, "event: done") || !strings.Contains(body, `"status":"completed"`) {
		t.Fatalf("missing completion event:\n%s", body)
	}
}

func TestMessagesStreamUnknownChat(t *testing.T) {
	env := newAPIEnv(t)
	tok := env.token(t, "stream2@example.com")

	resp := env.do(t, http.MethodGet, "/chat/messages?chat_id=missing", tok, nil)
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"error":"chat not found"`) {
		t.Fatalf("got:\n%s", buf.String())
	}
}
