package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bingo-rooms/internal/domain"
	"github.com/bingo-rooms/internal/service"
	"github.com/bingo-rooms/internal/websocket"
)

var errBackendDisabled = errors.New("backend is not enabled")

// LeaderboardReader reads the all-time leaderboard
type LeaderboardReader interface {
	GetTopN(ctx context.Context, limit int) ([]domain.AllTimeEntry, error)
	GetPlayer(ctx context.Context, username string) (*domain.PlayerStats, error)
	GetStats(ctx context.Context) (map[string]int64, error)
}

// GameHistory reads archived game results
type GameHistory interface {
	ListRecentGames(ctx context.Context, limit int) ([]domain.GameResult, error)
	ListGameClaims(ctx context.Context, gameID string) ([]domain.ClaimRecord, error)
}

// ReadinessCheck is a backend that must answer before the service reports ready
type ReadinessCheck interface {
	Name() string
	Ping(ctx context.Context) error
}

// Handler provides HTTP handlers for room inspection and archives
type Handler struct {
	engine      *service.Engine
	hub         *websocket.Hub
	leaderboard LeaderboardReader
	history     GameHistory
	checks      []ReadinessCheck
	logger      *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(engine *service.Engine, hub *websocket.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		engine: engine,
		hub:    hub,
		logger: logger,
	}
}

// SetLeaderboard enables the all-time leaderboard endpoint
func (h *Handler) SetLeaderboard(lb LeaderboardReader) {
	h.leaderboard = lb
}

// SetGameHistory enables the recent games endpoint
func (h *Handler) SetGameHistory(history GameHistory) {
	h.history = history
}

// AddReadinessCheck registers a backend checked by /ready
func (h *Handler) AddReadinessCheck(check ReadinessCheck) {
	h.checks = append(h.checks, check)
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// RoomDetail is a public room snapshot with its live connection count
type RoomDetail struct {
	domain.Snapshot
	Connections int `json:"connections"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", h.ListRooms)
			r.Get("/{code}", h.GetRoom)
		})

		r.Route("/leaderboard", func(r chi.Router) {
			r.Get("/top", h.GetTopPlayers)
			r.Get("/player/{username}", h.GetPlayer)
		})
		r.Get("/stats", h.GetStats)
		r.Route("/games", func(r chi.Router) {
			r.Get("/recent", h.GetRecentGames)
			r.Get("/{gameID}/claims", h.GetGameClaims)
		})

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
		"active_rooms":      h.engine.Registry().Len(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck pings every registered backend
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			h.logger.Warn("readiness check failed", "backend", check.Name(), "error", err)
			h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
				Success: false,
				Data:    map[string]string{"status": "not ready", "backend": check.Name()},
				Error:   err.Error(),
			})
			return
		}
	}

	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// ListRooms returns a summary of every open room
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, h.engine.Rooms())
}

// GetRoom returns the public snapshot of one room
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	snap, err := h.engine.Snapshot(code, "")
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to get room", "room_code", code, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, RoomDetail{
		Snapshot:    snap,
		Connections: h.hub.GetRoomConnections(snap.Code),
	})
}

// GetTopPlayers returns the all-time top N players
func (h *Handler) GetTopPlayers(w http.ResponseWriter, r *http.Request) {
	if h.leaderboard == nil {
		h.writeError(w, http.StatusServiceUnavailable, errBackendDisabled)
		return
	}

	entries, err := h.leaderboard.GetTopN(r.Context(), parseLimit(r, 10))
	if err != nil {
		h.logger.Error("failed to get top players", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, entries)
}

// GetPlayer returns one player's all-time standing
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	if h.leaderboard == nil {
		h.writeError(w, http.StatusServiceUnavailable, errBackendDisabled)
		return
	}

	username := chi.URLParam(r, "username")
	if username == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	stats, err := h.leaderboard.GetPlayer(r.Context(), username)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to get player", "username", username, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, stats)
}

// GetStats returns the global game counters
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.leaderboard == nil {
		h.writeError(w, http.StatusServiceUnavailable, errBackendDisabled)
		return
	}

	stats, err := h.leaderboard.GetStats(r.Context())
	if err != nil {
		h.logger.Error("failed to get stats", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, stats)
}

// GetRecentGames returns the most recently finished games
func (h *Handler) GetRecentGames(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, http.StatusServiceUnavailable, errBackendDisabled)
		return
	}

	games, err := h.history.ListRecentGames(r.Context(), parseLimit(r, 20))
	if err != nil {
		h.logger.Error("failed to list recent games", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, games)
}

// GetGameClaims returns the claim log of one archived game
func (h *Handler) GetGameClaims(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, http.StatusServiceUnavailable, errBackendDisabled)
		return
	}

	gameID := chi.URLParam(r, "gameID")
	if gameID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	claims, err := h.history.ListGameClaims(r.Context(), gameID)
	if err != nil {
		h.logger.Error("failed to list game claims", "game_id", gameID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, claims)
}

func parseLimit(r *http.Request, def int) int {
	limit := def
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > 100 {
		limit = 100
	}
	return limit
}
