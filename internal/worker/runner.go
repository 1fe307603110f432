// Package worker consumes run jobs and drives the agent loop for each
// one, persisting every message as it lands.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/luohy15/y-agent/internal/agent"
	"github.com/luohy15/y-agent/internal/chat"
	"github.com/luohy15/y-agent/internal/permissions"
	"github.com/luohy15/y-agent/internal/provider"
	"github.com/luohy15/y-agent/internal/queue"
	"github.com/luohy15/y-agent/internal/store"
	"github.com/luohy15/y-agent/internal/tools"
)

// Runner is the worker daemon: receive a job, run the loop, save, ack.
type Runner struct {
	Store        *store.Store
	Consumer     queue.Consumer
	Permissions  *permissions.Manager
	SystemPrompt string

	// Runtime executes tool commands for users without a VM config.
	Runtime tools.Runtime

	// NewProvider builds the model client for a resolved bot config.
	// Defaults to provider.New.
	NewProvider func(provider.Config) (provider.Provider, error)

	locks chatLocks
}

// Run consumes jobs until ctx is cancelled. Jobs are acked even when
// processing fails: the chat state itself records what went wrong, and
// endless redelivery of a broken job would starve the queue.
func (r *Runner) Run(ctx context.Context) error {
	for {
		d, err := r.Consumer.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("failed to receive job: %w", err)
		}
		if err := r.Process(ctx, d.Job); err != nil {
			log.Printf("worker: chat %s: %v", d.Job.ChatID, err)
		}
		if err := d.Ack(ctx); err != nil {
			log.Printf("worker: failed to ack job for chat %s: %v", d.Job.ChatID, err)
		}
	}
}

// Process runs the agent loop for one job. Safe to call twice with the
// same job: a chat whose last message is a plain assistant reply is
// left untouched.
func (r *Runner) Process(ctx context.Context, job queue.Job) error {
	c, ownerID, err := r.Store.GetChatAny(ctx, job.ChatID)
	if err != nil {
		return err
	}
	if c == nil {
		log.Printf("worker: chat %s not found, skipping", job.ChatID)
		return nil
	}

	lock := r.locks.forChat(job.ChatID)
	lock.Lock()
	defer lock.Unlock()

	// Reload under the lock: a concurrent run may have advanced the
	// chat while we waited.
	c, ownerID, err = r.Store.GetChatAny(ctx, job.ChatID)
	if err != nil {
		return err
	}
	if c == nil {
		return nil
	}
	if last := c.LastMessage(); last != nil && last.Role == chat.RoleAssistant && len(last.ToolCalls) == 0 {
		log.Printf("worker: chat %s already settled, skipping", job.ChatID)
		return nil
	}

	// A stop request may have landed while tool calls were parked for
	// approval. Cancel whatever is still unhandled and skip the run;
	// the flag stays set until the next user turn clears it.
	if c.Interrupted {
		chat.BackfillToolResults(&c.Messages, chat.BackfillCancelled)
		if err := r.Store.SaveChat(ctx, ownerID, c); err != nil {
			return err
		}
		log.Printf("worker: chat %s interrupted, run skipped", job.ChatID)
		return nil
	}

	bot, err := r.resolveBot(ctx, ownerID, job.BotName, c.BotName)
	if err != nil {
		return err
	}
	newProvider := r.NewProvider
	if newProvider == nil {
		newProvider = provider.New
	}
	p, err := newProvider(provider.Config{
		Name:          bot.Name,
		BaseURL:       bot.BaseURL,
		APIKey:        bot.APIKey,
		APIType:       bot.APIType,
		Model:         bot.Model,
		MaxTokens:     bot.MaxTokens,
		CustomAPIPath: bot.CustomAPIPath,
	})
	if err != nil {
		return fmt.Errorf("failed to build provider: %w", err)
	}

	runtime, err := r.runtimeFor(ctx, ownerID)
	if err != nil {
		return err
	}
	registry := tools.NewRegistry(runtime)

	st := &agent.State{Messages: c.Messages}
	opts := agent.Options{
		SystemPrompt: r.SystemPrompt,
		Permissions:  r.Permissions,
		AutoApprove: func() bool {
			if fresh, _, err := r.Store.GetChatAny(ctx, job.ChatID); err == nil && fresh != nil {
				return fresh.AutoApprove
			}
			return c.AutoApprove
		},
		CheckInterrupted: func() bool {
			if fresh, _, err := r.Store.GetChatAny(ctx, job.ChatID); err == nil && fresh != nil {
				return fresh.Interrupted
			}
			return false
		},
		OnMessage: func(msg chat.Message) {
			if err := r.Store.AppendMessage(ctx, ownerID, job.ChatID, msg); err != nil {
				log.Printf("worker: failed to append message to chat %s: %v", job.ChatID, err)
			}
		},
	}

	res := agent.Run(ctx, p, st, registry, opts)
	c.Messages = st.Messages

	if res.Status == agent.StatusInterrupted {
		chat.BackfillToolResults(&c.Messages, chat.BackfillCancelled)
	}

	// Re-read the run flags before the final save; the user may have
	// toggled them while the loop was running.
	if fresh, _, err := r.Store.GetChatAny(ctx, job.ChatID); err == nil && fresh != nil {
		c.AutoApprove = fresh.AutoApprove
		c.Interrupted = fresh.Interrupted
	}
	if err := r.Store.SaveChat(ctx, ownerID, c); err != nil {
		return err
	}

	switch res.Status {
	case agent.StatusError:
		log.Printf("worker: chat %s finished with status %s: %v", job.ChatID, res.Status, res.Err)
	case agent.StatusApprovalNeeded:
		log.Printf("worker: chat %s waiting for approval of %s", job.ChatID, res.ToolName)
	default:
		log.Printf("worker: chat %s finished with status %s", job.ChatID, res.Status)
	}
	return nil
}

// resolveBot picks the bot config for a run: the job's named bot, then
// the chat's, then the user's default, then the platform default.
func (r *Runner) resolveBot(ctx context.Context, ownerID int64, jobBot, chatBot string) (*store.BotConfig, error) {
	name := jobBot
	if name == "" {
		name = chatBot
	}
	if name != "" {
		if bot, err := r.Store.GetBot(ctx, ownerID, name); err != nil {
			return nil, err
		} else if bot != nil {
			return bot, nil
		}
	}
	if bot, err := r.Store.GetBot(ctx, ownerID, store.DefaultBotName); err != nil {
		return nil, err
	} else if bot != nil {
		return bot, nil
	}
	platform, err := r.Store.DefaultUser(ctx)
	if err != nil {
		return nil, err
	}
	bot, err := r.Store.GetBot(ctx, platform.ID, store.DefaultBotName)
	if err != nil {
		return nil, err
	}
	if bot == nil {
		return nil, errors.New("no bot config available")
	}
	return bot, nil
}

// runtimeFor routes tool execution to the user's sprites VM when one
// is configured, otherwise to the shared runtime.
func (r *Runner) runtimeFor(ctx context.Context, userID int64) (tools.Runtime, error) {
	vm, err := r.Store.GetVM(ctx, userID)
	if err != nil {
		return nil, err
	}
	if vm != nil && vm.VMName != "" {
		return tools.NewSpritesRuntime(vm.APIToken, vm.VMName), nil
	}
	if r.Runtime != nil {
		return r.Runtime, nil
	}
	return &tools.LocalRuntime{}, nil
}
