package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Tapedynamics/privacyguard/internal/api"
	"github.com/Tapedynamics/privacyguard/internal/api/ws"
	"github.com/Tapedynamics/privacyguard/internal/config"
	"github.com/Tapedynamics/privacyguard/internal/consent"
	"github.com/Tapedynamics/privacyguard/internal/export"
	"github.com/Tapedynamics/privacyguard/internal/observability"
	"github.com/Tapedynamics/privacyguard/internal/pipeline"
	"github.com/Tapedynamics/privacyguard/internal/provider/deepface"
	"github.com/Tapedynamics/privacyguard/internal/queue"
	"github.com/Tapedynamics/privacyguard/internal/search"
	"github.com/Tapedynamics/privacyguard/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting PrivacyGuard API service", "port", cfg.Server.Port)

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		slog.Error("migrate schema", "error", err)
		os.Exit(1)
	}

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Relay lifecycle events from the workers to connected UI clients.
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create event consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeEvents(ctx, "api-events", func(ctx context.Context, msg jetstream.Msg) error {
		hub.BroadcastRaw(msg.Data())
		return nil
	})
	if err != nil {
		slog.Warn("start event consumer", "error", err)
	}

	faceProvider := deepface.NewProvider(cfg.Provider, db, cfg.Search.Threshold)
	enqueuer := pipeline.NewEnqueuer(db, producer)
	consentSvc := consent.NewService(db, enqueuer, cfg.Pipeline.ReindexOnRename)
	searcher := search.NewSearcher(db, faceProvider, cfg.Search)
	builder := export.NewBuilder(db, minioStore, cfg.Export)

	router := api.NewRouter(api.RouterConfig{
		APIKey:   cfg.Server.APIKey,
		Export:   cfg.Export,
		DB:       db,
		MinIO:    minioStore,
		Producer: producer,
		Hub:      hub,
		Enqueuer: enqueuer,
		Consent:  consentSvc,
		Searcher: searcher,
		Builder:  builder,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // export downloads stream the full archive
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
