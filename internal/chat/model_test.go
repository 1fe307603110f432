package chat

import (
	"strings"
	"testing"
)

func TestNewChatID(t *testing.T) {
	id := NewChatID()
	if len(id) != 6 {
		t.Fatalf("expected 6-char id, got %q", id)
	}
	if id == NewChatID() {
		t.Fatalf("ids should not repeat")
	}
}

func TestNewMessageID(t *testing.T) {
	id := NewMessageID()
	parts := strings.Split(id, "_")
	if len(parts) != 3 || parts[0] != "msg" {
		t.Fatalf("unexpected id format: %q", id)
	}
	if len(parts[2]) != 8 {
		t.Fatalf("expected 8-char suffix, got %q", parts[2])
	}
	for _, r := range parts[2] {
		if !strings.ContainsRune(messageIDAlphabet, r) {
			t.Fatalf("suffix char %q outside alphabet", r)
		}
	}
}

func TestChatTitle(t *testing.T) {
	long := strings.Repeat("x", 150)
	tests := []struct {
		name string
		msgs []Message
		want string
	}{
		{"empty", nil, ""},
		{"first user message", []Message{
			{Role: RoleAssistant, Content: "hi"},
			{Role: RoleUser, Content: "do the thing"},
		}, "do the thing"},
		{"truncated to 100", []Message{{Role: RoleUser, Content: long}}, long[:100]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Chat{Messages: tt.msgs}
			if got := c.Title(); got != tt.want {
				t.Fatalf("Title() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSortMessagesStable(t *testing.T) {
	msgs := []Message{
		{Content: "b", UnixTimestamp: 2},
		{Content: "a", UnixTimestamp: 1},
		{Content: "b2", UnixTimestamp: 2},
	}
	SortMessages(msgs)
	got := msgs[0].Content + msgs[1].Content + msgs[2].Content
	if got != "abb2" {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestFilterSystem(t *testing.T) {
	msgs := []Message{
		{Role: RoleSystem, Content: "prompt"},
		{Role: RoleUser, Content: "hi"},
	}
	out := FilterSystem(msgs)
	if len(out) != 1 || out[0].Role != RoleUser {
		t.Fatalf("system message should be dropped, got %v", out)
	}
}

func TestToolCallEffectiveStatus(t *testing.T) {
	if got := (ToolCall{}).EffectiveStatus(); got != StatusApproved {
		t.Fatalf("legacy empty status should read as approved, got %q", got)
	}
	if got := (ToolCall{Status: StatusPending}).EffectiveStatus(); got != StatusPending {
		t.Fatalf("got %q", got)
	}
}

func TestToolCallArgs(t *testing.T) {
	tc := ToolCall{Function: ToolCallFunction{Arguments: `{"command":"ls"}`}}
	if got := tc.Args()["command"]; got != "ls" {
		t.Fatalf("got %v", got)
	}
	bad := ToolCall{Function: ToolCallFunction{Arguments: `{not json`}}
	if got := bad.Args(); len(got) != 0 {
		t.Fatalf("malformed arguments should decode to empty map, got %v", got)
	}
}

func TestMessagePath(t *testing.T) {
	msgs := []Message{
		{ID: "m1", Role: RoleUser, Content: "root"},
		{ID: "m2", Role: RoleAssistant, ParentID: "m1"},
		{ID: "m3", Role: RoleUser, ParentID: "m2"},
		{ID: "other", Role: RoleUser, ParentID: "m1"},
		{ID: "m4", Role: RoleAssistant, ParentID: "m3"},
	}

	path := MessagePath(msgs, "m4")
	if len(path) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(path))
	}
	for i, want := range []string{"m1", "m2", "m3", "m4"} {
		if path[i].ID != want {
			t.Fatalf("path[%d] = %s, want %s", i, path[i].ID, want)
		}
	}
}

func TestMessagePathDefaultsToLast(t *testing.T) {
	msgs := []Message{
		{ID: "m1", Role: RoleUser},
		{ID: "m2", Role: RoleAssistant, ParentID: "m1"},
	}
	path := MessagePath(msgs, "")
	if len(path) != 2 || path[1].ID != "m2" {
		t.Fatalf("unexpected path: %v", path)
	}
}

func TestMessagePathCycle(t *testing.T) {
	msgs := []Message{
		{ID: "a", ParentID: "b"},
		{ID: "b", ParentID: "a"},
	}
	path := MessagePath(msgs, "a")
	if len(path) != 2 {
		t.Fatalf("cycle should terminate after visiting each node once, got %d", len(path))
	}
}

func TestMessagePathHopCap(t *testing.T) {
	var msgs []Message
	prev := ""
	for i := 0; i < 40; i++ {
		id := string(rune('a'+i%26)) + string(rune('0'+i/26))
		msgs = append(msgs, Message{ID: id, ParentID: prev})
		prev = id
	}
	path := MessagePath(msgs, prev)
	if len(path) != maxPathHops {
		t.Fatalf("expected %d hops, got %d", maxPathHops, len(path))
	}
}
