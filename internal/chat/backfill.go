package chat

import "fmt"

// BackfillMode selects which unhandled tool calls receive synthetic
// results and what those results say.
type BackfillMode string

const (
	// BackfillRejected covers calls the user rejected.
	BackfillRejected BackfillMode = "rejected"
	// BackfillCancelled covers every unhandled call after an interrupt.
	BackfillCancelled BackfillMode = "cancelled"
)

// DeniedResult is the tool result recorded for a rejected call. The
// wording is load-bearing: the model must not assume the command ran.
func DeniedResult(name string, args string) string {
	return fmt.Sprintf("ERROR: User denied execution of %s with args %s. The command was NOT executed. Do NOT proceed as if it succeeded.", name, args)
}

// CancelledResult is the tool result recorded for a call dropped by an
// interruption.
func CancelledResult(name string) string {
	return fmt.Sprintf("ERROR: Execution of %s was cancelled due to interruption. The command was NOT executed.", name)
}

// LastToolCallAssistant finds the most recent assistant message that
// carries tool calls. Returns index -1 when there is none.
func LastToolCallAssistant(messages []Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleAssistant && len(messages[i].ToolCalls) > 0 {
			return i
		}
	}
	return -1
}

// HandledToolCallIDs collects the tool_call_ids already answered by tool
// messages following index from.
func HandledToolCallIDs(messages []Message, from int) map[string]bool {
	handled := map[string]bool{}
	for _, m := range messages[from+1:] {
		if m.Role == RoleTool && m.ToolCallID != "" {
			handled[m.ToolCallID] = true
		}
	}
	return handled
}

// BackfillToolResults inserts synthetic tool results for unhandled calls
// of the last tool-call assistant message, so the transcript reaches a
// state every provider accepts: one result per call.
//
// In rejected mode only calls marked rejected are filled. In cancelled
// mode every unhandled call is filled and its status is rewritten to
// cancelled. Calling it again on the same transcript changes nothing.
func BackfillToolResults(messages *[]Message, mode BackfillMode) {
	msgs := *messages
	idx := LastToolCallAssistant(msgs)
	if idx < 0 {
		return
	}
	assistant := &msgs[idx]
	handled := HandledToolCallIDs(msgs, idx)

	// Synthetic results go right after the results that already exist
	// for this assistant message.
	insert := idx + 1
	for insert < len(msgs) && msgs[insert].Role == RoleTool {
		insert++
	}

	var filled []Message
	for i := range assistant.ToolCalls {
		call := &assistant.ToolCalls[i]
		if handled[call.ID] {
			continue
		}
		var content string
		switch mode {
		case BackfillRejected:
			if call.EffectiveStatus() != StatusRejected {
				continue
			}
			content = DeniedResult(call.Function.Name, call.Function.Arguments)
		case BackfillCancelled:
			call.Status = StatusCancelled
			content = CancelledResult(call.Function.Name)
		default:
			continue
		}
		m := NewMessage(RoleTool, content)
		m.ParentID = assistant.ID
		m.Tool = call.Function.Name
		m.Arguments = call.Args()
		m.ToolCallID = call.ID
		filled = append(filled, m)
	}
	if len(filled) == 0 {
		return
	}

	out := make([]Message, 0, len(msgs)+len(filled))
	out = append(out, msgs[:insert]...)
	out = append(out, filled...)
	out = append(out, msgs[insert:]...)
	*messages = out
}
