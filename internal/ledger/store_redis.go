package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"Go2NetKDD/internal/config"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps the ledger in a redis hash, path -> line.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to redis and checks the connection.
func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return &RedisStore{client: client, key: cfg.Key}, nil
}

// Load reads the hash. Non-numeric values are reported as corruption.
func (s *RedisStore) Load(ctx context.Context) (map[string]int64, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger hash %s: %w", s.key, err)
	}
	positions := make(map[string]int64, len(raw))
	for path, value := range raw {
		line, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt ledger entry %s=%q: %w", path, value, err)
		}
		positions[path] = line
	}
	return positions, nil
}

// Save replaces the whole hash inside a MULTI/EXEC transaction.
func (s *RedisStore) Save(ctx context.Context, positions map[string]int64) error {
	values := make(map[string]interface{}, len(positions))
	for path, line := range positions {
		values[path] = line
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key)
	if len(values) > 0 {
		pipe.HSet(ctx, s.key, values)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write ledger hash %s: %w", s.key, err)
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
