package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bingo-rooms/internal/config"
	"github.com/bingo-rooms/internal/domain"
	"github.com/bingo-rooms/internal/handler"
	"github.com/bingo-rooms/internal/kafka"
	"github.com/bingo-rooms/internal/postgres"
	"github.com/bingo-rooms/internal/redis"
	"github.com/bingo-rooms/internal/registry"
	"github.com/bingo-rooms/internal/service"
	"github.com/bingo-rooms/internal/websocket"
	"github.com/bingo-rooms/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}
	level.Set(parseLevel(cfg.Server.LogLevel))

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Room registry and game engine
	rooms := registry.New()
	engine := service.NewEngine(rooms, &cfg.Game, logger)

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(engine, logger)
	engine.SetDeliverer(wsHub)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	var autoDrawer *service.AutoDrawer
	if cfg.Game.DrawMode == string(domain.DrawModeAuto) {
		autoDrawer = service.NewAutoDrawer(engine, cfg.Game.AutoDrawInterval, logger)
		wsHub.SetAutoDrawer(autoDrawer)
		logger.Info("auto draw enabled", "interval", cfg.Game.AutoDrawInterval)
	}

	httpHandler := handler.NewHandler(engine, wsHub, logger)
	var sinks []worker.Sink

	// Initialize Redis
	var redisStore *redis.Store
	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		redisStore, err = redis.NewStore(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("failed to connect to Redis, continuing without all-time leaderboard", "error", err)
		} else {
			defer redisStore.Close()
			sinks = append(sinks, redisStore)
			httpHandler.SetLeaderboard(redisStore)
			httpHandler.AddReadinessCheck(redisStore)
			logger.Info("connected to Redis")
		}
	}

	// Initialize PostgreSQL
	if cfg.Postgres.Enabled {
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		postgresRepo, err := postgres.NewRepository(&cfg.Postgres, logger)
		if err != nil {
			logger.Warn("failed to connect to PostgreSQL, continuing without game history", "error", err)
		} else if err := postgresRepo.RunMigrations(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			postgresRepo.Close()
			os.Exit(1)
		} else {
			defer postgresRepo.Close()
			sinks = append(sinks, postgresRepo)
			httpHandler.SetGameHistory(postgresRepo)
			httpHandler.AddReadinessCheck(postgresRepo)
			logger.Info("connected to PostgreSQL")
		}
	}

	// Initialize Kafka producer for the game event stream
	var kafkaProducer *kafka.Producer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka producer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		kafkaProducer, err = kafka.NewProducer(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create Kafka producer, continuing without Kafka", "error", err)
		} else {
			sinks = append(sinks, kafkaProducer)
		}
	}

	// Initialize archive worker
	archiveWorker := worker.NewArchiveWorker(&cfg.Archive, logger, sinks...)
	if len(sinks) > 0 {
		engine.SetEventSink(archiveWorker)
		if err := archiveWorker.Start(ctx); err != nil {
			logger.Error("failed to start archive worker", "error", err)
			os.Exit(1)
		}
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port, "draw_mode", cfg.Game.DrawMode)
		logger.Info("WebSocket endpoint available at /ws")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	// Stop auto draw loops before the hub they deliver to
	if autoDrawer != nil {
		autoDrawer.Stop()
	}

	// Stop WebSocket hub
	wsHub.Stop()

	// Flush archived events before closing the sinks
	if err := archiveWorker.Stop(); err != nil {
		logger.Error("failed to stop archive worker", "error", err)
	}

	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			logger.Error("failed to close Kafka producer", "error", err)
		}
	}

	logger.Info("server stopped")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
