package redisx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/quoteflow-backend/internal/config"
)

// NewClient dials Redis and verifies the connection with a ping.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("missing redis.addr")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Reserver grants short-lived cross-process reservations.
type Reserver interface {
	// Reserve returns true when the caller now holds key.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type redisReserver struct {
	rdb    *goredis.Client
	prefix string
}

func NewReserver(rdb *goredis.Client, prefix string) Reserver {
	if prefix == "" {
		prefix = "quoteflow:reserve:"
	}
	return &redisReserver{rdb: rdb, prefix: prefix}
}

func (r *redisReserver) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, r.prefix+key, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (r *redisReserver) Release(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.prefix+key).Err()
}

// NoopReserver always grants the reservation; the database unique key is
// then the only guard.
type NoopReserver struct{}

func (NoopReserver) Reserve(context.Context, string, time.Duration) (bool, error) { return true, nil }
func (NoopReserver) Release(context.Context, string) error                        { return nil }
