// Package agent runs the conversation loop: call the model, execute
// approved tool calls, repeat until the model answers in plain text or
// something stops the run.
package agent

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/luohy15/y-agent/internal/chat"
	"github.com/luohy15/y-agent/internal/permissions"
	"github.com/luohy15/y-agent/internal/provider"
	"github.com/luohy15/y-agent/internal/tools"
)

// DefaultMaxIterations caps model round-trips in one run.
const DefaultMaxIterations = 50

// maxToolResultLen is the per-result truncation threshold. Oversized
// results get cut here, not in the tools, so every runtime behaves the
// same.
const maxToolResultLen = 10000

const truncationMarker = "\n... (truncated)"

// Status describes how a run ended.
type Status string

const (
	StatusCompleted      Status = "completed"
	StatusApprovalNeeded Status = "approval_needed"
	StatusInterrupted    Status = "interrupted"
	StatusMaxIterations  Status = "max_iterations"
	StatusError          Status = "error"
)

// Result is the outcome of one run.
type Result struct {
	Status      Status
	NewMessages []chat.Message
	ToolName    string // set for approval_needed
	Err         error  // set for error
}

// State is the conversation the loop operates on. Messages is mutated
// in place; everything the run appends also lands in Result.NewMessages.
type State struct {
	Messages []chat.Message
}

// Options configures one run. Permissions is required; the callbacks
// are optional.
type Options struct {
	SystemPrompt  string
	MaxIterations int
	Permissions   *permissions.Manager

	// AutoApprove is consulted per status pass; when it returns true
	// the permission check is skipped entirely.
	AutoApprove func() bool

	// OnMessage observes every appended message, typically to persist
	// it incrementally.
	OnMessage func(chat.Message)

	// CheckInterrupted is polled before each model call.
	CheckInterrupted func() bool
}

// Run drives the loop until a terminal condition. Every message it
// produces is appended to st.Messages before the next step, so a crash
// at any point leaves a resumable transcript.
func Run(ctx context.Context, p provider.Provider, st *State, reg tools.Registry, opts Options) Result {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.Permissions == nil {
		opts.Permissions = permissions.NewManager("")
	}

	var appended []chat.Message

	// Resume: a previous run may have stopped mid tool batch, either
	// for approval or by a crash. Settle those calls first.
	if res, done := runToolCalls(ctx, st, &appended, reg, opts); done {
		res.NewMessages = appended
		return res
	}

	for i := 0; i < opts.MaxIterations; i++ {
		if opts.CheckInterrupted != nil && opts.CheckInterrupted() {
			return Result{Status: StatusInterrupted, NewMessages: appended}
		}

		resp, err := p.Chat(ctx, st.Messages, opts.SystemPrompt, reg.Specs())
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return Result{Status: StatusInterrupted, NewMessages: appended}
			}
			var content string
			if provider.IsClientError(err) {
				content = fmt.Sprintf("[agent] API client error (not retrying): %v", err)
			} else {
				content = fmt.Sprintf("[agent] Unexpected error: %v", err)
			}
			msg := chat.NewMessage(chat.RoleAssistant, content)
			msg.ParentID = lastMessageID(st.Messages)
			appendMessage(st, &appended, opts, msg)
			return Result{Status: StatusError, NewMessages: appended, Err: err}
		}

		msg := chat.NewMessage(chat.RoleAssistant, resp.Content)
		msg.ParentID = lastMessageID(st.Messages)
		msg.Model = resp.Model
		msg.Provider = resp.Provider

		if len(resp.ToolCalls) == 0 {
			appendMessage(st, &appended, opts, msg)
			return Result{Status: StatusCompleted, NewMessages: appended}
		}

		msg.ToolCalls = annotateStatuses(resp.ToolCalls, reg, opts)
		appendMessage(st, &appended, opts, msg)

		if res, done := runToolCalls(ctx, st, &appended, reg, opts); done {
			res.NewMessages = appended
			return res
		}
	}

	return Result{Status: StatusMaxIterations, NewMessages: appended}
}

// annotateStatuses marks each call approved or pending before the
// assistant message is persisted. The first call that needs approval
// also holds back every call after it: execution is strictly in order,
// so nothing may run past an undecided call.
func annotateStatuses(calls []chat.ToolCall, reg tools.Registry, opts Options) []chat.ToolCall {
	out := make([]chat.ToolCall, len(calls))
	copy(out, calls)
	for i := range out {
		name := out[i].Function.Name
		auto := opts.AutoApprove != nil && opts.AutoApprove()
		if reg.Has(name) && !auto && !opts.Permissions.IsAllowed(name, out[i].Args()) {
			for j := i; j < len(out); j++ {
				out[j].Status = chat.StatusPending
			}
			break
		}
		out[i].Status = chat.StatusApproved
	}
	return out
}

// runToolCalls settles the unhandled calls of the last tool-call
// assistant message. Returns done=true when the run must stop here,
// i.e. a call is still pending approval.
func runToolCalls(ctx context.Context, st *State, appended *[]chat.Message, reg tools.Registry, opts Options) (Result, bool) {
	idx := chat.LastToolCallAssistant(st.Messages)
	if idx < 0 {
		return Result{}, false
	}
	assistant := st.Messages[idx]
	handled := chat.HandledToolCallIDs(st.Messages, idx)

	var unhandled []chat.ToolCall
	for _, tc := range assistant.ToolCalls {
		if !handled[tc.ID] {
			unhandled = append(unhandled, tc)
		}
	}
	if len(unhandled) == 0 {
		return Result{}, false
	}

	// Any pending call parks the whole run until the user decides.
	for _, tc := range unhandled {
		if tc.EffectiveStatus() == chat.StatusPending {
			return Result{Status: StatusApprovalNeeded, ToolName: tc.Function.Name}, true
		}
	}

	for _, tc := range unhandled {
		name := tc.Function.Name
		args := tc.Args()

		var result string
		switch tc.EffectiveStatus() {
		case chat.StatusRejected:
			result = chat.DeniedResult(name, tc.Function.Arguments)
		case chat.StatusCancelled:
			result = chat.CancelledResult(name)
		default:
			result = reg.Execute(ctx, name, args)
		}
		result = truncateResult(result)

		msg := chat.NewMessage(chat.RoleTool, result)
		msg.ParentID = assistant.ID
		msg.Tool = name
		msg.Arguments = args
		msg.ToolCallID = tc.ID
		appendMessage(st, appended, opts, msg)
	}
	return Result{}, false
}

// truncateResult caps an oversized tool result. The cut backs up to a
// rune boundary so the kept prefix stays valid UTF-8.
func truncateResult(s string) string {
	if len(s) <= maxToolResultLen {
		return s
	}
	cut := maxToolResultLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationMarker
}

func appendMessage(st *State, appended *[]chat.Message, opts Options, msg chat.Message) {
	st.Messages = append(st.Messages, msg)
	*appended = append(*appended, msg)
	if opts.OnMessage != nil {
		opts.OnMessage(msg)
	}
}

func lastMessageID(messages []chat.Message) string {
	if len(messages) == 0 {
		return ""
	}
	return messages[len(messages)-1].ID
}
