package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hliang02/skyops/internal/agents"
	"github.com/hliang02/skyops/internal/config"
	"github.com/hliang02/skyops/internal/eventbus"
	"github.com/hliang02/skyops/internal/llm"
	"github.com/hliang02/skyops/internal/repository"
	"github.com/hliang02/skyops/internal/service"
	transport "github.com/hliang02/skyops/internal/transport/http"
	"github.com/hliang02/skyops/internal/transport/ws"
	"github.com/hliang02/skyops/policy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting skyops orchestrator...")
	log.Printf("External HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Internal HTTP Port: %d", cfg.InternalPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Mode: %s", cfg.Mode)

	store, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer store.Close()

	// One chat client per role, rebuilt after the TTL or an auth failure.
	clients := llm.NewClientCache(cfg.ClientTTL, func(role string) llm.LLMClient {
		return llm.NewLLMClient(cfg.Mode, cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.ExecutionTimeout)
	})

	policyEngine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	bus := eventbus.New(store, cfg.HeartbeatInterval)
	runner := agents.NewRunner(clients, cfg.LLMModel)
	svc := service.New(store, bus, clients, runner, policyEngine, cfg)

	externalServer := transport.NewExternalServer(svc, ws.NewHandler(svc))
	internalServer := transport.NewInternalServer(svc)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := externalServer.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start external server: %v", err)
		}
	}()
	go func() {
		addr := fmt.Sprintf(":%d", cfg.InternalPort)
		if err := internalServer.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start internal server: %v", err)
		}
	}()

	log.Printf("External API started on port %d", cfg.HTTPPort)
	log.Printf("Internal API started on port %d", cfg.InternalPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down orchestrator...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := externalServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown external server gracefully: %v", err)
	}
	if err := internalServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown internal server gracefully: %v", err)
	}

	log.Println("Orchestrator stopped")
}
