// Package redis connects to the Redis instance that backs idempotency records.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"eventregistration/internal/retry"
)

// Config holds Redis connection configuration.
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Connect attempts, first one included.
	MaxAttempts   int
	RetryInterval time.Duration
}

// DefaultConfig returns defaults for a local Redis.
func DefaultConfig() Config {
	return Config{
		Addr:          "localhost:6379",
		PoolSize:      20,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   time.Second,
		WriteTimeout:  time.Second,
		MaxAttempts:   3,
		RetryInterval: time.Second,
	}
}

// NewClient opens a client and pings it until it answers or the attempts run out.
func NewClient(ctx context.Context, cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	backoff := retry.Config{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: cfg.RetryInterval,
		MaxInterval:     cfg.RetryInterval,
		Multiplier:      1,
	}
	attempts, err := retry.Do(ctx, backoff, func(error) bool { return true }, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, nil)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s after %d attempts: %w", cfg.Addr, attempts, err)
	}
	return client, nil
}

// HealthCheck pings client and expects PONG.
func HealthCheck(client *goredis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		res, err := client.Ping(ctx).Result()
		if err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		if res != "PONG" {
			return fmt.Errorf("redis ping: unexpected response %q", res)
		}
		return nil
	}
}
