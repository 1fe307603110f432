package chat

import (
	"strings"
	"testing"
)

func toolCallChat() []Message {
	return []Message{
		{Role: RoleUser, Content: "run it", ID: "u1"},
		{Role: RoleAssistant, ID: "a1", ToolCalls: []ToolCall{
			{ID: "c1", Function: ToolCallFunction{Name: "bash", Arguments: `{"command":"ls"}`}, Status: StatusRejected},
			{ID: "c2", Function: ToolCallFunction{Name: "file_read", Arguments: `{"path":"a.txt"}`}, Status: StatusApproved},
		}},
	}
}

func TestBackfillRejectedOnlyFillsRejected(t *testing.T) {
	msgs := toolCallChat()
	BackfillToolResults(&msgs, BackfillRejected)

	if len(msgs) != 3 {
		t.Fatalf("expected one synthetic result, got %d messages", len(msgs))
	}
	m := msgs[2]
	if m.Role != RoleTool || m.ToolCallID != "c1" {
		t.Fatalf("unexpected synthetic message: %+v", m)
	}
	if m.ParentID != "a1" || m.Tool != "bash" {
		t.Fatalf("synthetic message missing linkage: %+v", m)
	}
	want := DeniedResult("bash", `{"command":"ls"}`)
	if m.Content != want {
		t.Fatalf("content = %q, want %q", m.Content, want)
	}
	if !strings.Contains(m.Content, "NOT executed") {
		t.Fatalf("denial wording missing: %q", m.Content)
	}
}

func TestBackfillCancelledFillsAllAndRewritesStatus(t *testing.T) {
	msgs := toolCallChat()
	BackfillToolResults(&msgs, BackfillCancelled)

	if len(msgs) != 4 {
		t.Fatalf("expected results for both calls, got %d messages", len(msgs))
	}
	for _, tc := range msgs[1].ToolCalls {
		if tc.Status != StatusCancelled {
			t.Fatalf("call %s status = %q, want cancelled", tc.ID, tc.Status)
		}
	}
	if msgs[2].ToolCallID != "c1" || msgs[3].ToolCallID != "c2" {
		t.Fatalf("results out of order: %s, %s", msgs[2].ToolCallID, msgs[3].ToolCallID)
	}
	want := CancelledResult("file_read")
	if msgs[3].Content != want {
		t.Fatalf("content = %q, want %q", msgs[3].Content, want)
	}
}

func TestBackfillSkipsHandledCalls(t *testing.T) {
	msgs := toolCallChat()
	msgs = append(msgs, Message{Role: RoleTool, Content: "ok", ToolCallID: "c1", ParentID: "a1"})

	BackfillToolResults(&msgs, BackfillCancelled)

	if len(msgs) != 4 {
		t.Fatalf("expected a single new result, got %d messages", len(msgs))
	}
	// The new result slots in after the existing tool message.
	if msgs[2].ToolCallID != "c1" || msgs[3].ToolCallID != "c2" {
		t.Fatalf("unexpected order: %s, %s", msgs[2].ToolCallID, msgs[3].ToolCallID)
	}
	if msgs[3].Content != CancelledResult("file_read") {
		t.Fatalf("unexpected content: %q", msgs[3].Content)
	}
}

func TestBackfillInsertsBeforeLaterMessages(t *testing.T) {
	msgs := toolCallChat()
	msgs[1].ToolCalls = msgs[1].ToolCalls[:1]
	msgs = append(msgs, Message{Role: RoleUser, Content: "never mind", ID: "u2"})

	BackfillToolResults(&msgs, BackfillRejected)

	if len(msgs) != 4 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[2].Role != RoleTool || msgs[3].Content != "never mind" {
		t.Fatalf("synthetic result should precede the follow-up message")
	}
}

func TestBackfillIdempotent(t *testing.T) {
	msgs := toolCallChat()
	BackfillToolResults(&msgs, BackfillCancelled)
	n := len(msgs)
	BackfillToolResults(&msgs, BackfillCancelled)
	if len(msgs) != n {
		t.Fatalf("second backfill added messages: %d -> %d", n, len(msgs))
	}
}

func TestBackfillNoToolCalls(t *testing.T) {
	msgs := []Message{{Role: RoleUser, Content: "hello"}}
	BackfillToolResults(&msgs, BackfillRejected)
	if len(msgs) != 1 {
		t.Fatalf("nothing to fill, got %d messages", len(msgs))
	}
}

func TestLastToolCallAssistant(t *testing.T) {
	msgs := toolCallChat()
	if got := LastToolCallAssistant(msgs); got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
	if got := LastToolCallAssistant(msgs[:1]); got != -1 {
		t.Fatalf("got %d, want -1", got)
	}
}
