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

	"github.com/qforge/casegen/internal/chat"
	"github.com/qforge/casegen/internal/config"
	"github.com/qforge/casegen/internal/dify"
	"github.com/qforge/casegen/internal/files"
	"github.com/qforge/casegen/internal/generation"
	"github.com/qforge/casegen/internal/httpapi"
	"github.com/qforge/casegen/internal/observability"
	"github.com/qforge/casegen/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	sessions, err := session.NewStore(ctx, session.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.SessionTTL,
	}, cfg.SessionTTL)
	if err != nil {
		log.Printf("redis unavailable, falling back to in-memory sessions: %v", err)
		sessions = session.NewMemoryStore(cfg.SessionTTL)
	}
	defer sessions.Close()

	ai, err := dify.NewClient(dify.Config{
		Mode:       cfg.DifyMode,
		BaseURL:    cfg.DifyBaseURL,
		APIKey:     cfg.DifyAPIKey,
		Timeout:    cfg.DifyTimeout,
		MaxRetries: cfg.DifyMaxRetries,
	})
	if err != nil {
		log.Fatalf("dify client init failed: %v", err)
	}
	if _, isMock := ai.(*dify.MockClient); isMock {
		log.Printf("chat backend: mock (no DIFY_API_KEY configured)")
	} else {
		log.Printf("chat backend: dify at %s", cfg.DifyBaseURL)
	}

	uploads, err := files.NewUploads(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		log.Fatalf("upload dir init failed: %v", err)
	}

	artifacts, err := files.NewArtifactStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("artifact store init failed: %v", err)
	}
	defer artifacts.Close()

	chatSvc := chat.NewService(sessions, ai, metrics)
	genSvc := generation.NewService(sessions, ai, uploads, artifacts, metrics)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	if mem, ok := sessions.(*session.MemoryStore); ok {
		mem.StartJanitor(runCtx, 30*time.Second)
	}

	api := httpapi.New(cfg, sessions, chatSvc, genSvc, ai, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
