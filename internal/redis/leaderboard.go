package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/bingo-rooms/internal/config"
	"github.com/bingo-rooms/internal/domain"
)

// Counter fields kept in the stats hash
const (
	StatRoomsCreated   = "rooms_created"
	StatGamesStarted   = "games_started"
	StatGamesFinished  = "games_finished"
	StatGamesAbandoned = "games_abandoned"
	StatClaims         = "claims_accepted"
)

// Store keeps the cross-game leaderboard and counters in Redis. Scores are
// keyed by username since connection ids do not outlive a session.
type Store struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewStore connects to Redis and verifies the connection
func NewStore(cfg *config.RedisConfig, logger *slog.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewStoreWithClient(client, cfg.KeyPrefix, logger), nil
}

// NewStoreWithClient wraps an existing client
func NewStoreWithClient(client *redis.Client, prefix string, logger *slog.Logger) *Store {
	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// Name identifies the store as an archive sink
func (s *Store) Name() string {
	return "redis"
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// leaderboardKey returns the key of the all-time sorted set
func (s *Store) leaderboardKey() string {
	return fmt.Sprintf("%s:leaderboard:alltime", s.prefix)
}

// statsKey returns the key of the counters hash
func (s *Store) statsKey() string {
	return fmt.Sprintf("%s:stats", s.prefix)
}

// playerKey returns the key of a player's counters hash
func (s *Store) playerKey(username string) string {
	return fmt.Sprintf("%s:player:%s", s.prefix, username)
}

// Write applies a batch of game events in one pipeline
func (s *Store) Write(ctx context.Context, events []domain.GameEvent) error {
	pipe := s.client.Pipeline()
	queued := 0

	for _, ev := range events {
		switch ev.Type {
		case domain.EventRoomCreated:
			pipe.HIncrBy(ctx, s.statsKey(), StatRoomsCreated, 1)
		case domain.EventGameStarted:
			pipe.HIncrBy(ctx, s.statsKey(), StatGamesStarted, 1)
		case domain.EventClaimAccepted:
			pipe.ZIncrBy(ctx, s.leaderboardKey(), float64(ev.Points), ev.Username)
			pipe.HIncrBy(ctx, s.statsKey(), StatClaims, 1)
			pipe.HIncrBy(ctx, s.playerKey(ev.Username), "bingos", 1)
		case domain.EventGameFinished:
			if ev.Abandoned {
				pipe.HIncrBy(ctx, s.statsKey(), StatGamesAbandoned, 1)
			} else {
				pipe.HIncrBy(ctx, s.statsKey(), StatGamesFinished, 1)
			}
			for _, entry := range ev.Leaderboard {
				pipe.HIncrBy(ctx, s.playerKey(entry.Username), "games", 1)
			}
			if res := domain.ResultFromEvent(ev); res.Winner != "" {
				pipe.HIncrBy(ctx, s.playerKey(res.Winner), "wins", 1)
			}
		default:
			continue
		}
		queued++
	}

	if queued == 0 {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("writing game events: %w", err)
	}
	return nil
}

// GetTopN returns the top N players across all games (descending order)
func (s *Store) GetTopN(ctx context.Context, n int) ([]domain.AllTimeEntry, error) {
	results, err := s.client.ZRevRangeWithScores(ctx, s.leaderboardKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top n: %w", err)
	}

	entries := make([]domain.AllTimeEntry, len(results))
	for i, result := range results {
		entries[i] = domain.AllTimeEntry{
			Rank:     int64(i + 1),
			Username: result.Member.(string),
			Score:    int64(result.Score),
		}
	}
	return entries, nil
}

// GetPlayer returns a player's all-time rank, score and counters
func (s *Store) GetPlayer(ctx context.Context, username string) (*domain.PlayerStats, error) {
	// Use pipeline to get rank, score and counters together
	pipe := s.client.Pipeline()
	rankCmd := pipe.ZRevRank(ctx, s.leaderboardKey(), username)
	scoreCmd := pipe.ZScore(ctx, s.leaderboardKey(), username)
	countersCmd := pipe.HGetAll(ctx, s.playerKey(username))
	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("getting player: %w", err)
	}

	rank, err := rankCmd.Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("getting rank result: %w", err)
	}

	score, err := scoreCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("getting score result: %w", err)
	}

	counters, err := countersCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("getting player counters: %w", err)
	}
	bingos, _ := strconv.ParseInt(counters["bingos"], 10, 64)
	games, _ := strconv.ParseInt(counters["games"], 10, 64)
	wins, _ := strconv.ParseInt(counters["wins"], 10, 64)

	return &domain.PlayerStats{
		AllTimeEntry: domain.AllTimeEntry{
			Rank:     rank + 1, // Convert 0-indexed to 1-indexed
			Username: username,
			Score:    int64(score),
		},
		Bingos: bingos,
		Games:  games,
		Wins:   wins,
	}, nil
}

// GetStats returns the global counters
func (s *Store) GetStats(ctx context.Context) (map[string]int64, error) {
	result, err := s.client.HGetAll(ctx, s.statsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("getting stats: %w", err)
	}

	stats := map[string]int64{
		StatRoomsCreated:  0,
		StatGamesStarted:  0,
		StatGamesFinished: 0,
		StatClaims:        0,
	}
	for field, raw := range result {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.logger.Warn("skipping malformed counter", "field", field, "value", raw)
			continue
		}
		stats[field] = v
	}
	return stats, nil
}
