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

	"collab-sync/internal/api"
	"collab-sync/internal/config"
	"collab-sync/internal/db"
	"collab-sync/internal/repository"
	"collab-sync/internal/services"
	"collab-sync/internal/services/collaboration"
	"collab-sync/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		host      string
		port      string
		heartbeat time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			// Flags win over the environment
			if cmd.Flags().Changed("host") {
				cfg.ServerHost = host
			}
			if cmd.Flags().Changed("port") {
				cfg.ServerPort = port
			}
			if cmd.Flags().Changed("heartbeat") {
				cfg.HeartbeatInterval = heartbeat
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return runServer(cfg)
		},
	}

	cmd.Flags().StringVar(&host, "host", "localhost", "bind host (overrides SERVER_HOST)")
	cmd.Flags().StringVarP(&port, "port", "p", "8080", "bind port (overrides SERVER_PORT)")
	cmd.Flags().DurationVar(&heartbeat, "heartbeat", 30*time.Second, "liveness probe interval (overrides HEARTBEAT_INTERVAL)")

	return cmd
}

func runServer(cfg *config.Config) error {
	log.Println("🚀 Starting collaborative document sync server...")

	// Initialize tracing FIRST so all operations are traced
	jaegerShutdown, err := telemetry.InitJaeger(telemetry.TracingConfig{
		Endpoint: cfg.JaegerEndpoint,
		Version:  version,
	})
	if err != nil {
		log.Printf("⚠️  Failed to initialize Jaeger: %v (continuing without tracing)", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			log.Printf("⚠️  Failed to shutdown Jaeger: %v", err)
		}
	}()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	sessionManager := collaboration.NewSessionManager(collaboration.Options{
		HeartbeatInterval: cfg.HeartbeatInterval,
		WriteTimeout:      cfg.WriteTimeout,
		SendQueueSize:     cfg.SendQueueSize,
		MaxMessageBytes:   cfg.MaxMessageBytes,
		StrictFormatting:  cfg.StrictFormatting,
	}, metrics)

	// Optional presence journal backed by postgres
	var presenceReader api.PresenceReader
	var journal *services.PresenceJournalImpl
	if cfg.DatabaseEnabled {
		database, err := db.OpenJournal(cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()

		presenceRepo := repository.NewPresenceRepository(database.DB)
		journal = services.NewPresenceJournal(presenceRepo, cfg.JournalWorkers, cfg.JournalQueueSize)
		journal.Start()
		telemetry.RegisterJournalBacklog(prometheus.DefaultRegisterer, journal.QueueLength)
		sessionManager.SetPresenceJournal(journal)
		presenceReader = presenceRepo
	}

	sessionManager.Start()

	wsHandler := collaboration.NewWebSocketHandler(sessionManager)
	handler := api.NewHandler(sessionManager, wsHandler, presenceReader)

	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		metricsHandler = promhttp.Handler()
	}
	router := api.SetupRoutes(handler, metricsHandler)

	// No Read/WriteTimeout: they would cut long-lived websocket connections
	addr := cfg.Addr()
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("✅ Server: http://%s", addr)
		log.Printf("📡 WebSocket: ws://%s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		sessionManager.Shutdown()
		if journal != nil {
			journal.Shutdown()
		}
		return fmt.Errorf("server error on %s: %w", addr, err)
	}

	log.Println("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	// Hijacked websocket connections are not tracked by http.Server
	sessionManager.Shutdown()

	if journal != nil {
		journal.Shutdown()
	}

	log.Println("✓ Server shutdown complete")
	return nil
}
