package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bingo-rooms/internal/domain"
	"github.com/bingo-rooms/internal/registry"
)

// AutoDrawer draws numbers on a fixed interval for rooms in auto draw mode.
// Each room gets one goroutine that stops when the game ends or the room
// disappears. Draws reach connections through the engine's deliverer.
type AutoDrawer struct {
	engine   *Engine
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewAutoDrawer creates an idle auto drawer
func NewAutoDrawer(engine *Engine, interval time.Duration, logger *slog.Logger) *AutoDrawer {
	ctx, cancel := context.WithCancel(context.Background())
	return &AutoDrawer{
		engine:   engine,
		interval: interval,
		logger:   logger,
		running:  make(map[string]context.CancelFunc),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins interval draws for a room; it is a no-op if already running
func (a *AutoDrawer) Start(code string) {
	code = registry.NormalizeCode(code)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ctx.Err() != nil {
		return
	}
	if _, ok := a.running[code]; ok {
		return
	}

	ctx, cancel := context.WithCancel(a.ctx)
	a.running[code] = cancel
	a.wg.Add(1)
	go a.run(ctx, code)

	a.logger.Info("auto draw started", "room_code", code, "interval", a.interval)
}

// Running reports whether a room has an active draw loop
func (a *AutoDrawer) Running(code string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.running[registry.NormalizeCode(code)]
	return ok
}

// Stop cancels every draw loop and waits for them to exit
func (a *AutoDrawer) Stop() {
	a.cancel()
	a.wg.Wait()
}

func (a *AutoDrawer) run(ctx context.Context, code string) {
	defer a.wg.Done()
	defer func() {
		a.mu.Lock()
		delete(a.running, code)
		a.mu.Unlock()
	}()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			out, err := a.engine.DrawNext(code)
			if err != nil {
				if !errors.Is(err, domain.ErrRoomNotFound) {
					a.logger.Debug("auto draw stopped", "room_code", code, "error", err)
				}
				return
			}
			if out.Draw.GameOver {
				return
			}
		}
	}
}
