package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Aidin1998/tokenledger/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to the configured redis and checks it responds.
// An empty address returns a nil client: redis is optional.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}
	return client, nil
}
