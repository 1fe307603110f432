// Command cli is the interactive terminal client for the y-agent API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/luohy15/y-agent/internal/store"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	cmd := "chat"
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	var err error
	switch cmd {
	case "chat":
		err = runChatCommand(ctx, args)
	case "list":
		err = runListCommand(ctx, args)
	case "share":
		err = runShareCommand(ctx, args)
	case "bot":
		err = runBotCommand(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("command failed: %v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: y-agent <command> [flags]

commands:
  chat    start or continue an interactive chat (default)
  list    list chats, optionally filtered by title terms
  share   fork a chat into a public share link
  bot     manage bot configs: list, add, delete`)
}

// parseClient registers the connection flags, parses the remaining
// arguments and builds the API client. Both flags have env defaults so
// a configured shell needs none of them.
func parseClient(fs *flag.FlagSet, args []string) (*apiClient, error) {
	api := fs.String("api", envOr("Y_AGENT_API", "http://localhost:8787"), "API base URL")
	token := fs.String("token", os.Getenv("Y_AGENT_TOKEN"), "Bearer token")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *token == "" {
		return nil, fmt.Errorf("no token: set Y_AGENT_TOKEN or pass -token")
	}
	return newAPIClient(*api, *token), nil
}

func runListCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	query := fs.String("query", "", "filter chats by title terms")
	client, err := parseClient(fs, args)
	if err != nil {
		return err
	}

	chats, err := client.listChats(ctx, *query)
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		fmt.Println("no chats")
		return nil
	}
	for _, c := range chats {
		fmt.Printf("%s  %s  %s\n", c.ChatID, c.UpdatedAt, c.Title)
	}
	return nil
}

func runShareCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("share", flag.ExitOnError)
	chatID := fs.String("chat", "", "chat id to share")
	messageID := fs.String("message", "", "share the path ending at this message id")
	client, err := parseClient(fs, args)
	if err != nil {
		return err
	}
	if *chatID == "" {
		return fmt.Errorf("-chat is required")
	}

	shareID, err := client.share(ctx, *chatID, *messageID)
	if err != nil {
		return err
	}
	fmt.Printf("share id: %s\n", shareID)
	return nil
}

func runBotCommand(ctx context.Context, args []string) error {
	sub := "list"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		sub = args[0]
		args = args[1:]
	}

	fs := flag.NewFlagSet("bot "+sub, flag.ExitOnError)
	switch sub {
	case "list":
		client, err := parseClient(fs, args)
		if err != nil {
			return err
		}
		bots, err := client.listBots(ctx)
		if err != nil {
			return err
		}
		if len(bots) == 0 {
			fmt.Println("no bots configured")
			return nil
		}
		for _, b := range bots {
			fmt.Printf("%-12s %s (%s)\n", b.Name, b.Model, orDefault(b.APIType, "openai"))
		}
		return nil

	case "add":
		name := fs.String("name", store.DefaultBotName, "bot name")
		baseURL := fs.String("base-url", "", "API base URL")
		apiKey := fs.String("api-key", "", "API key")
		apiType := fs.String("api-type", "", "dialect: openai or anthropic")
		model := fs.String("model", "", "model name")
		maxTokens := fs.Int("max-tokens", 0, "max completion tokens")
		customPath := fs.String("custom-api-path", "", "override completions path")
		client, err := parseClient(fs, args)
		if err != nil {
			return err
		}
		if *model == "" {
			return fmt.Errorf("-model is required")
		}
		return client.saveBot(ctx, store.BotConfig{
			Name:          *name,
			BaseURL:       *baseURL,
			APIKey:        *apiKey,
			APIType:       *apiType,
			Model:         *model,
			MaxTokens:     *maxTokens,
			CustomAPIPath: *customPath,
		})

	case "delete":
		name := fs.String("name", "", "bot name")
		client, err := parseClient(fs, args)
		if err != nil {
			return err
		}
		if *name == "" {
			return fmt.Errorf("-name is required")
		}
		return client.deleteBot(ctx, *name)

	default:
		return fmt.Errorf("unknown bot subcommand %q", sub)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
