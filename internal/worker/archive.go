package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bingo-rooms/internal/config"
	"github.com/bingo-rooms/internal/domain"
)

// Sink is a backend that archives game events
type Sink interface {
	Name() string
	Write(ctx context.Context, events []domain.GameEvent) error
}

// Fanout writes each batch to every sink. A failing sink is logged and
// does not stop the others.
type Fanout struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewFanout creates a fanout over the given sinks
func NewFanout(logger *slog.Logger, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, logger: logger}
}

// Len returns the number of sinks
func (f *Fanout) Len() int {
	return len(f.sinks)
}

// HandleEvents writes the batch to every sink and joins their errors
func (f *Fanout) HandleEvents(ctx context.Context, events []domain.GameEvent) error {
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Write(ctx, events); err != nil {
			f.logger.Error("failed to archive events",
				"sink", sink.Name(),
				"count", len(events),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// ArchiveWorker buffers game events published by the engine and writes them
// to the sinks in batches, off the request path.
type ArchiveWorker struct {
	fanout  *Fanout
	config  *config.ArchiveConfig
	logger  *slog.Logger
	events  chan domain.GameEvent
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
	dropped atomic.Int64
	written atomic.Int64
}

// NewArchiveWorker creates a new archive worker
func NewArchiveWorker(cfg *config.ArchiveConfig, logger *slog.Logger, sinks ...Sink) *ArchiveWorker {
	return &ArchiveWorker{
		fanout: NewFanout(logger, sinks...),
		config: cfg,
		logger: logger,
		events: make(chan domain.GameEvent, cfg.BufferSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Publish queues events without blocking; events are dropped when the
// buffer is full
func (w *ArchiveWorker) Publish(events ...domain.GameEvent) {
	for _, ev := range events {
		select {
		case w.events <- ev:
		default:
			w.dropped.Add(1)
			w.logger.Warn("archive buffer full, dropping event",
				"event_type", ev.Type,
				"room_code", ev.RoomCode,
			)
		}
	}
}

// Start begins the background archive loop
func (w *ArchiveWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("archive worker started",
		"sinks", w.fanout.Len(),
		"batch_size", w.config.BatchSize,
		"flush_interval", w.config.FlushInterval,
	)

	go w.run(ctx)
	return nil
}

// Stop drains queued events, flushes them and stops the loop
func (w *ArchiveWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("archive worker stopped",
		"written", w.written.Load(),
		"dropped", w.dropped.Load(),
	)
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *ArchiveWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Dropped returns how many events were discarded because the buffer was full
func (w *ArchiveWorker) Dropped() int64 {
	return w.dropped.Load()
}

// Written returns how many events were handed to the sinks
func (w *ArchiveWorker) Written() int64 {
	return w.written.Load()
}

// run is the main worker loop
func (w *ArchiveWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]domain.GameEvent, 0, w.config.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = make([]domain.GameEvent, 0, w.config.BatchSize)
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case <-w.stopCh:
			// Drain whatever is already queued
			for {
				select {
				case ev := <-w.events:
					batch = append(batch, ev)
					if len(batch) >= w.config.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}

		case <-ticker.C:
			flush()

		case ev := <-w.events:
			batch = append(batch, ev)
			if len(batch) >= w.config.BatchSize {
				flush()
			}
		}
	}
}

// flush writes one batch to every sink
func (w *ArchiveWorker) flush(batch []domain.GameEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), w.config.WriteTimeout)
	defer cancel()

	startTime := time.Now()
	err := w.fanout.HandleEvents(ctx, batch)
	w.written.Add(int64(len(batch)))

	w.logger.Debug("archive batch flushed",
		"count", len(batch),
		"duration", time.Since(startTime),
		"failed", err != nil,
	)
}
