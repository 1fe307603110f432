// Command server runs the HTTP API daemon.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/luohy15/y-agent/internal/config"
	"github.com/luohy15/y-agent/internal/queue"
	"github.com/luohy15/y-agent/internal/server"
	"github.com/luohy15/y-agent/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		log.Fatalf("server: %v", err)
	}
	defer st.Close()

	var dispatcher queue.Dispatcher
	if cfg.SQSQueueURL != "" {
		dispatcher, err = queue.NewSQSQueue(ctx, cfg.SQSQueueURL, cfg.SQSEndpoint)
		if err != nil {
			log.Fatalf("server: %v", err)
		}
		log.Printf("server: dispatching jobs to SQS")
	} else {
		dispatcher, err = queue.NewLocalQueue(cfg.SpoolDir)
		if err != nil {
			log.Fatalf("server: %v", err)
		}
		log.Printf("server: dispatching jobs to local spool %s", cfg.SpoolDir)
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.New(st, dispatcher, []byte(cfg.JWTSecret)).Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("server: listening on %s", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server: %v", err)
	}
}
