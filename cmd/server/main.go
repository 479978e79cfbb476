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

	"collab-engine/internal/api"
	"collab-engine/internal/config"
	"collab-engine/internal/db"
	"collab-engine/internal/pubsub"
	"collab-engine/internal/repository"
	"collab-engine/internal/services"
	"collab-engine/internal/services/collaboration"
	"collab-engine/internal/telemetry"

	"github.com/redis/go-redis/v9"
)

/*
LEARNING: GRACEFUL SHUTDOWN PATTERN WITH OBSERVABILITY

This main function demonstrates:
1. Service initialization and dependency injection
2. Concurrent server and worker pool management
3. Distributed tracing with Jaeger
4. Graceful shutdown handling (listening for SIGINT/SIGTERM)
5. Proper resource cleanup order

Event flow:
  Registry → Fan-out pool → (Redis channel → every node's subscriber →) Hub → WebSocket clients
Without REDIS_ADDR the pool publishes straight to the local hub.
*/

func main() {
	log.Println("🚀 Starting Real-Time Collaboration Engine...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Initialize Jaeger tracing
	// Learning: Do this FIRST so all operations are traced
	jaegerShutdown, err := telemetry.InitJaeger("collab-engine", cfg.JaegerEndpoint, cfg.TraceSampleRatio)
	if err != nil {
		log.Printf("⚠️  Failed to initialize Jaeger: %v (continuing without tracing)", err)
		jaegerShutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			log.Printf("⚠️  Failed to shutdown Jaeger: %v", err)
		}
	}()

	// Initialize GORM database
	database, err := db.NewGorm(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Initialize repositories
	conflictRepo := repository.NewConflictRepository(database.DB)
	participantRepo := repository.NewParticipantRepository(database.DB)
	versionRepo := repository.NewVersionRepository(database.DB)

	// The hub owns every websocket connection on this node
	hub := collaboration.NewHub()
	hub.Start()

	// Pick the fan-out transport
	// Learning: Both satisfy services.Publisher, so the pool doesn't care which
	var publisher services.Publisher = hub
	var rdb *redis.Client
	var subscriber *pubsub.RedisSubscriber
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err = pubsub.NewClient(ctx, cfg.RedisAddr)
		cancel()
		if err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}

		subscriber = pubsub.NewRedisSubscriber(rdb, hub)
		if err := subscriber.Start(context.Background()); err != nil {
			log.Fatalf("❌ Failed to subscribe to Redis: %v", err)
		}
		publisher = pubsub.NewRedisPublisher(rdb)
	} else {
		log.Println("  REDIS_ADDR not set, events stay on this node")
	}

	// Initialize the fan-out worker pool
	// Learning: This creates the worker pool but doesn't start it yet
	fanout := services.NewFanoutService(publisher, cfg.FanoutWorkers, cfg.FanoutQueueSize)
	fanout.Start()

	// Initialize the session registry
	registry := collaboration.NewRegistry(collaboration.Options{
		MaxLag:         cfg.MaxLag,
		ConflictLag:    cfg.ConflictLag,
		LockTimeout:    cfg.LockTimeout,
		SessionTTL:     cfg.SessionTTL,
		ConflictPolicy: collaboration.ConflictPolicy(cfg.ConflictPolicy),
		Recorder:       conflictRepo,
		Auditor:        participantRepo,
		Snapshots:      versionRepo,
		Events:         fanout,
	})
	registry.Start()

	// Initialize WebSocket handler
	wsHandler := collaboration.NewWebSocketHandler(hub, registry, cfg.WSOpsPerSecond, cfg.WSBurst)

	// Initialize handlers with dependency injection
	handler := api.NewHandler(
		registry,
		conflictRepo,
		participantRepo,
		versionRepo,
		http.HandlerFunc(wsHandler.HandleSessionConnection),
		database,
		fanout,
	)

	// Setup routes
	router := api.SetupRoutes(handler)

	// Configure HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in a goroutine
	// Learning: This allows us to handle shutdown signals concurrently
	go func() {
		log.Printf("🌐 Server listening on http://%s", addr)
		log.Printf("📚 API Endpoints:")
		log.Printf("   POST   /api/sessions                     - Create session")
		log.Printf("   GET    /api/sessions/:id                 - Session status")
		log.Printf("   POST   /api/sessions/:id/participants    - Join session")
		log.Printf("   POST   /api/sessions/:id/operations      - Submit operation")
		log.Printf("   GET    /api/sessions/:id/operations      - Operations since version")
		log.Printf("   PUT    /api/sessions/:id/cursors/:user   - Move cursor")
		log.Printf("   GET    /api/sessions/:id/conflicts       - Session conflict log")
		log.Printf("   GET    /api/files/:id/conflicts          - File conflict log")
		log.Printf("   WS     /ws/sessions/:id?user_id=         - Realtime channel")
		log.Printf("   GET    /metrics                          - Prometheus metrics")
		log.Println()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	// Learning: This is the graceful shutdown pattern
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("\n🛑 Shutting down server...")

	// Shutdown HTTP server with timeout
	// Learning: Give the server 30 seconds to finish existing requests
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	// Snapshot open sessions while the fan-out pool can still announce it
	registry.Shutdown(ctx)

	// Learning: This waits for workers to publish what is already queued
	fanout.Shutdown()

	if subscriber != nil {
		subscriber.Shutdown()
	}

	// Closes every WebSocket connection
	hub.Shutdown()

	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Printf("⚠️  Failed to close Redis client: %v", err)
		}
	}

	log.Println("✓ Server shutdown complete")
}
