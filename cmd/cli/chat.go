package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/luohy15/y-agent/internal/chat"
)

// runChatCommand drives an interactive session: each line becomes a user
// turn, the SSE feed renders the run, and pending approvals prompt
// inline.
func runChatCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	chatID := fs.String("chat", "", "continue an existing chat")
	botName := fs.String("bot", "", "bot config to run with")
	autoApprove := fs.Bool("auto-approve", false, "run tool calls without asking")
	client, err := parseClient(fs, args)
	if err != nil {
		return err
	}

	stdin := bufio.NewScanner(os.Stdin)
	session := &chatSession{
		client: client,
		chatID: *chatID,
		stdin:  stdin,
	}

	for {
		fmt.Print("you> ")
		if !stdin.Scan() {
			break
		}
		line := strings.TrimSpace(stdin.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		var err error
		if session.chatID == "" {
			session.chatID, err = client.createChat(ctx, line, *botName, *autoApprove)
			if err == nil {
				fmt.Printf("chat %s\n", session.chatID)
			}
		} else {
			err = client.sendMessage(ctx, session.chatID, line)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		if err := session.follow(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		fmt.Println()
	}
	return nil
}

type chatSession struct {
	client    *apiClient
	chatID    string
	stdin     *bufio.Scanner
	lastIndex int
}

// follow renders the stream until the run completes, is interrupted, or
// asks for an approval decision. Decisions are posted and the stream is
// reopened until a terminal event arrives.
func (s *chatSession) follow(ctx context.Context) error {
	for {
		askAgain := false
		err := s.client.stream(ctx, s.chatID, s.lastIndex, func(ev streamEvent) (bool, error) {
			switch ev.Event {
			case "message":
				var me messageEvent
				if err := json.Unmarshal(ev.Data, &me); err != nil {
					return false, fmt.Errorf("bad message event: %w", err)
				}
				s.lastIndex = me.Index + 1
				printMessage(me.Data)
				return false, nil
			case "ask":
				var ae askEvent
				if err := json.Unmarshal(ev.Data, &ae); err != nil {
					return false, fmt.Errorf("bad ask event: %w", err)
				}
				if err := s.decide(ctx, ae.ToolCalls); err != nil {
					return false, err
				}
				askAgain = true
				return true, nil
			case "done":
				var de doneEvent
				_ = json.Unmarshal(ev.Data, &de)
				if de.Status == "interrupted" {
					fmt.Println("[interrupted]")
				}
				return true, nil
			case "error":
				return true, fmt.Errorf("server: %s", ev.Data)
			}
			return false, nil
		})
		if err != nil {
			return err
		}
		if !askAgain {
			return nil
		}
	}
}

// decide prompts for each pending call and posts the decisions.
func (s *chatSession) decide(ctx context.Context, calls []chat.ToolCall) error {
	decisions := make(map[string]bool, len(calls))
	for _, tc := range calls {
		fmt.Printf("approve %s %s? [y/N] ", tc.Function.Name, tc.Function.Arguments)
		approved := false
		if s.stdin.Scan() {
			answer := strings.ToLower(strings.TrimSpace(s.stdin.Text()))
			approved = answer == "y" || answer == "yes"
		}
		decisions[tc.ID] = approved
	}
	return s.client.approve(ctx, s.chatID, decisions)
}

func printMessage(m chat.Message) {
	switch m.Role {
	case chat.RoleAssistant:
		if m.Content != "" {
			fmt.Printf("agent> %s\n", m.Content)
		}
		for _, tc := range m.ToolCalls {
			fmt.Printf("tool?  %s %s\n", tc.Function.Name, tc.Function.Arguments)
		}
	case chat.RoleTool:
		out := m.Content
		if len(out) > 400 {
			out = out[:400] + "..."
		}
		fmt.Printf("tool<  %s\n", indent(out))
	}
}

func indent(s string) string {
	return strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n       ")
}
