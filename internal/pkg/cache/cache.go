package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	redisstorage "github.com/gofiber/storage/redis"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/ChaletBook/internal/pkg/config"
)

// NewClient connects to the shared Redis/Dragonfly cache. A failed ping is
// returned so callers can fall back to in-process stores.
func NewClient(ctx context.Context, cfg config.App) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.CacheHost, cfg.CachePort),
		Password: cfg.CachePassword,
		DB:       0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	pong, err := client.Ping(pingCtx).Result()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: ping %s: %w", client.Options().Addr, err)
	}
	log.Infof("Successfully connected to cache: %s", pong)
	return client, nil
}

// NewFiberStorage returns a fiber.Storage on the cache, used for idempotent
// request replays. Each consumer gets its own database number.
func NewFiberStorage(cfg config.App, database int) (fiber.Storage, error) {
	port, err := strconv.Atoi(cfg.CachePort)
	if err != nil {
		return nil, fmt.Errorf("cache: CACHE_PORT %q: %w", cfg.CachePort, err)
	}
	return redisstorage.New(redisstorage.Config{
		Host:     cfg.CacheHost,
		Port:     port,
		Password: cfg.CachePassword,
		Database: database,
		Reset:    false,
	}), nil
}
