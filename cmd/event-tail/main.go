package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/bingo-rooms/internal/config"
	"github.com/bingo-rooms/internal/domain"
	"github.com/bingo-rooms/internal/kafka"
	"github.com/bingo-rooms/internal/postgres"
	"github.com/bingo-rooms/internal/redis"
	"github.com/bingo-rooms/internal/worker"
)

// printer writes each event as one JSON line
type printer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newPrinter(w io.Writer) *printer {
	return &printer{enc: json.NewEncoder(w)}
}

func (p *printer) HandleEvents(ctx context.Context, events []domain.GameEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ev := range events {
		if err := p.enc.Encode(ev); err != nil {
			return err
		}
	}
	return nil
}

// replayer prints events and rebuilds the archives from them
type replayer struct {
	printer *printer
	fanout  *worker.Fanout
}

func (r *replayer) HandleEvents(ctx context.Context, events []domain.GameEvent) error {
	if err := r.printer.HandleEvents(ctx, events); err != nil {
		return err
	}
	return r.fanout.HandleEvents(ctx, events)
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	fromBeginning := flag.Bool("from-beginning", false, "Read the topic from the oldest offset")
	replay := flag.Bool("replay", false, "Write consumed events into the enabled Redis and PostgreSQL archives")
	flag.Parse()

	// Logs go to stderr so stdout stays a clean event stream
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}
	if *fromBeginning {
		cfg.Kafka.FromBeginning = true
	}

	out := newPrinter(os.Stdout)
	var eventHandler kafka.EventHandler = out

	if *replay {
		var sinks []worker.Sink
		if cfg.Redis.Enabled {
			store, err := redis.NewStore(&cfg.Redis, logger)
			if err != nil {
				logger.Error("failed to connect to Redis", "error", err)
				os.Exit(1)
			}
			defer store.Close()
			sinks = append(sinks, store)
		}
		if cfg.Postgres.Enabled {
			repo, err := postgres.NewRepository(&cfg.Postgres, logger)
			if err != nil {
				logger.Error("failed to connect to PostgreSQL", "error", err)
				os.Exit(1)
			}
			defer repo.Close()
			if err := repo.RunMigrations(context.Background()); err != nil {
				logger.Error("failed to run migrations", "error", err)
				os.Exit(1)
			}
			sinks = append(sinks, repo)
		}
		if len(sinks) == 0 {
			logger.Warn("replay requested but no archive backend is enabled")
		}
		eventHandler = &replayer{printer: out, fanout: worker.NewFanout(logger, sinks...)}
	}

	consumer, err := kafka.NewConsumer(&cfg.Kafka, eventHandler, logger)
	if err != nil {
		logger.Error("failed to create Kafka consumer", "error", err)
		os.Exit(1)
	}
	if err := consumer.Start(); err != nil {
		logger.Error("failed to start Kafka consumer", "error", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if err := consumer.Stop(); err != nil {
		logger.Error("failed to stop Kafka consumer", "error", err)
	}
	logger.Info("event tail stopped")
}
