package occurrence

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Redis is an alternative Store backend for deployments that already run
// Redis. Keys are "occ:{instrument}:{detector}"; SET/GET per composite key
// gives the same per-key atomicity as the SQLite backend.
type Redis struct {
	client *goredis.Client
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedis connects and pings the server.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[occurrence] redis store connected to %s", cfg.Addr)
	return &Redis{client: client}, nil
}

func redisKey(instrument, detector string) string {
	return "occ:" + instrument + ":" + detector
}

func (r *Redis) Get(ctx context.Context, instrument, detector string) (string, bool, error) {
	val, err := r.client.Get(ctx, redisKey(instrument, detector)).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("occurrence get: %w", err)
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, instrument, detector, key string) error {
	if err := r.client.Set(ctx, redisKey(instrument, detector), key, 0).Err(); err != nil {
		return fmt.Errorf("occurrence set: %w", err)
	}
	return nil
}

func (r *Redis) Close() error { return r.client.Close() }
