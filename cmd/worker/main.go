// Command worker runs the queue-consuming agent worker.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/luohy15/y-agent/internal/config"
	"github.com/luohy15/y-agent/internal/permissions"
	"github.com/luohy15/y-agent/internal/queue"
	"github.com/luohy15/y-agent/internal/store"
	"github.com/luohy15/y-agent/internal/tools"
	"github.com/luohy15/y-agent/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("worker: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}
	defer st.Close()

	var consumer queue.Consumer
	if cfg.SQSQueueURL != "" {
		consumer, err = queue.NewSQSQueue(ctx, cfg.SQSQueueURL, cfg.SQSEndpoint)
		if err != nil {
			log.Fatalf("worker: %v", err)
		}
		log.Printf("worker: consuming from SQS")
	} else {
		consumer, err = queue.NewLocalQueue(cfg.SpoolDir)
		if err != nil {
			log.Fatalf("worker: %v", err)
		}
		log.Printf("worker: consuming from local spool %s", cfg.SpoolDir)
	}

	perms := permissions.NewManager(cfg.PermissionsPath)
	go func() {
		if err := perms.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("worker: permissions watch stopped: %v", err)
		}
	}()

	var runtime tools.Runtime
	if cfg.ToolRuntime == "docker" {
		runtime, err = tools.NewDockerRuntime(tools.DockerConfig{
			Image:   cfg.DockerImage,
			WorkDir: cfg.DockerDir,
		})
		if err != nil {
			log.Fatalf("worker: %v", err)
		}
		log.Printf("worker: tool runtime docker (%s)", cfg.DockerImage)
	} else {
		runtime = &tools.LocalRuntime{}
		log.Printf("worker: tool runtime local")
	}

	runner := &worker.Runner{
		Store:        st,
		Consumer:     consumer,
		Permissions:  perms,
		SystemPrompt: cfg.SystemPrompt,
		Runtime:      runtime,
	}

	concurrency := config.EnvInt("Y_AGENT_WORKERS", 1)
	if concurrency < 1 {
		concurrency = 1
	}
	log.Printf("worker: starting %d consumer(s)", concurrency)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runner.Run(ctx); err != nil {
				log.Printf("worker: consumer stopped: %v", err)
			}
		}()
	}
	wg.Wait()
}
