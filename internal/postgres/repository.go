package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bingo-rooms/internal/config"
	"github.com/bingo-rooms/internal/domain"
)

const (
	insertRoomEvent = `
		INSERT INTO room_events (room_code, event_type, game_id, player_count, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	insertGameStarted = `
		INSERT INTO games (game_id, room_code, player_count, started_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (game_id) DO NOTHING
	`
	insertClaim = `
		INSERT INTO claim_events (game_id, room_code, player_id, username, claim_type, points, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	upsertGameFinished = `
		INSERT INTO games (game_id, room_code, player_count, drawn_count, winner, top_score, leaderboard, started_at, finished_at, abandoned)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, $9)
		ON CONFLICT (game_id)
		DO UPDATE SET
			player_count = $3,
			drawn_count = $4,
			winner = $5,
			top_score = $6,
			leaderboard = $7,
			finished_at = $8,
			abandoned = $9
	`
)

// Repository archives game history in PostgreSQL
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Name identifies the repository as an archive sink
func (r *Repository) Name() string {
	return "postgres"
}

// Ping checks the connection pool
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS games (
			game_id VARCHAR(64) PRIMARY KEY,
			room_code VARCHAR(16) NOT NULL,
			player_count INT NOT NULL DEFAULT 0,
			drawn_count INT NOT NULL DEFAULT 0,
			winner VARCHAR(32),
			top_score INT NOT NULL DEFAULT 0,
			leaderboard JSONB,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP,
			abandoned BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`ALTER TABLE games ADD COLUMN IF NOT EXISTS abandoned BOOLEAN NOT NULL DEFAULT FALSE`,
		`CREATE TABLE IF NOT EXISTS claim_events (
			id BIGSERIAL PRIMARY KEY,
			game_id VARCHAR(64) NOT NULL,
			room_code VARCHAR(16) NOT NULL,
			player_id VARCHAR(64) NOT NULL,
			username VARCHAR(32) NOT NULL,
			claim_type VARCHAR(16) NOT NULL,
			points INT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS room_events (
			id BIGSERIAL PRIMARY KEY,
			room_code VARCHAR(16) NOT NULL,
			event_type VARCHAR(20) NOT NULL,
			game_id VARCHAR(64),
			player_count INT NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_games_finished ON games(finished_at DESC) WHERE finished_at IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_claim_events_game ON claim_events(game_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_room_events_room ON room_events(room_code, created_at DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// Write archives a batch of game events in one round trip
func (r *Repository) Write(ctx context.Context, events []domain.GameEvent) error {
	batch, err := buildBatch(events)
	if err != nil {
		return err
	}
	if batch.Len() == 0 {
		return nil
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("archiving game events: %w", err)
		}
	}
	return nil
}

// buildBatch maps events onto archive statements
func buildBatch(events []domain.GameEvent) (*pgx.Batch, error) {
	batch := &pgx.Batch{}

	for _, ev := range events {
		switch ev.Type {
		case domain.EventRoomCreated, domain.EventRoomClosed:
			batch.Queue(insertRoomEvent, ev.RoomCode, string(ev.Type), nullable(ev.GameID), ev.PlayerCount, ev.Timestamp)

		case domain.EventGameStarted:
			batch.Queue(insertRoomEvent, ev.RoomCode, string(ev.Type), nullable(ev.GameID), ev.PlayerCount, ev.Timestamp)
			batch.Queue(insertGameStarted, ev.GameID, ev.RoomCode, ev.PlayerCount, ev.Timestamp)

		case domain.EventClaimAccepted:
			batch.Queue(insertClaim, ev.GameID, ev.RoomCode, ev.PlayerID, ev.Username, string(ev.ClaimType), ev.Points, ev.Timestamp)

		case domain.EventGameFinished:
			res := domain.ResultFromEvent(ev)
			leaderboardJSON, err := json.Marshal(res.Leaderboard)
			if err != nil {
				return nil, fmt.Errorf("marshaling leaderboard: %w", err)
			}
			batch.Queue(upsertGameFinished,
				res.GameID,
				res.RoomCode,
				res.PlayerCount,
				res.DrawnCount,
				nullable(res.Winner),
				res.TopScore,
				leaderboardJSON,
				res.FinishedAt,
				res.Abandoned,
			)
		}
	}
	return batch, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ListRecentGames returns finished games, newest first
func (r *Repository) ListRecentGames(ctx context.Context, limit int) ([]domain.GameResult, error) {
	query := `
		SELECT game_id, room_code, player_count, drawn_count, COALESCE(winner, ''), top_score, leaderboard, abandoned, finished_at
		FROM games
		WHERE finished_at IS NOT NULL
		ORDER BY finished_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent games: %w", err)
	}
	defer rows.Close()

	games := []domain.GameResult{}
	for rows.Next() {
		var (
			game            domain.GameResult
			leaderboardJSON []byte
		)
		err := rows.Scan(
			&game.GameID,
			&game.RoomCode,
			&game.PlayerCount,
			&game.DrawnCount,
			&game.Winner,
			&game.TopScore,
			&leaderboardJSON,
			&game.Abandoned,
			&game.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning game: %w", err)
		}
		if len(leaderboardJSON) > 0 {
			if err := json.Unmarshal(leaderboardJSON, &game.Leaderboard); err != nil {
				return nil, fmt.Errorf("unmarshaling leaderboard: %w", err)
			}
		}
		games = append(games, game)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating games: %w", err)
	}
	return games, nil
}

// ListGameClaims returns the accepted claims of one game in order
func (r *Repository) ListGameClaims(ctx context.Context, gameID string) ([]domain.ClaimRecord, error) {
	query := `
		SELECT game_id, room_code, player_id, username, claim_type, points, created_at
		FROM claim_events
		WHERE game_id = $1
		ORDER BY created_at, id
	`
	rows, err := r.pool.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("listing game claims: %w", err)
	}
	defer rows.Close()

	claims := []domain.ClaimRecord{}
	for rows.Next() {
		var c domain.ClaimRecord
		err := rows.Scan(&c.GameID, &c.RoomCode, &c.PlayerID, &c.Username, &c.ClaimType, &c.Points, &c.ClaimedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning claim: %w", err)
		}
		claims = append(claims, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating claims: %w", err)
	}
	return claims, nil
}
