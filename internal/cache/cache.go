/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache mirrors the controller snapshot into Redis so dashboards
// and sibling services can read state without calling the API.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/openhome/internal/controller"
	"github.com/friendsincode/openhome/internal/runlog"
)

// Default TTL values
const (
	DefaultSnapshotTTL = 30 * time.Second
	DefaultLastRunTTL  = 24 * time.Hour
)

// Key names in Redis
const (
	KeySnapshot = "openhome:cache:snapshot"
	KeyLastRun  = "openhome:cache:last_run"
	KeyStation  = "openhome:cache:station:" // + 1-based station number
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SnapshotTTL time.Duration
	LastRunTTL  time.Duration

	// DisableOnError stops using Redis after the first failed command.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		SnapshotTTL:    DefaultSnapshotTTL,
		LastRunTTL:     DefaultLastRunTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool
	lastRun  time.Time
}

// New creates a new cache instance. An unreachable server yields a
// disabled cache, not an error.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	logger = logger.With().Str("component", "cache").Logger()
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = DefaultSnapshotTTL
	}
	if cfg.LastRunTTL <= 0 {
		cfg.LastRunTTL = DefaultLastRunTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     4,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		_ = client.Close()
		return &Cache{logger: logger, config: cfg, disabled: true}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")
	return &Cache{client: client, logger: logger, config: cfg}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}
	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")
	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}
	return true, nil
}

// StoreSnapshot writes the snapshot, one hash field per station and the
// last run when it changed.
func (c *Cache) StoreSnapshot(ctx context.Context, snap *controller.Snapshot) error {
	if !c.IsAvailable() || snap == nil {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, KeySnapshot, data, c.config.SnapshotTTL)
	for sid := 0; sid < snap.Stations; sid++ {
		key := KeyStation + fmt.Sprint(sid+1)
		pipe.HSet(ctx, key, "on", snap.StationOn(sid))
		pipe.Expire(ctx, key, c.config.SnapshotTTL)
	}
	newRun := false
	c.mu.Lock()
	if !snap.LastRun.EndTime.IsZero() && !snap.LastRun.EndTime.Equal(c.lastRun) {
		c.lastRun = snap.LastRun.EndTime
		newRun = true
	}
	c.mu.Unlock()
	if newRun {
		run, err := json.Marshal(snap.LastRun)
		if err != nil {
			return fmt.Errorf("marshal last run: %w", err)
		}
		pipe.Set(ctx, KeyLastRun, run, c.config.LastRunTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.handleError(err, "store_snapshot")
		return err
	}
	return nil
}

// Snapshot returns the cached snapshot, if any.
func (c *Cache) Snapshot(ctx context.Context) (*controller.Snapshot, bool) {
	var snap controller.Snapshot
	ok, _ := c.get(ctx, KeySnapshot, &snap)
	if !ok {
		return nil, false
	}
	return &snap, true
}

// LastRun returns the cached most recent run.
func (c *Cache) LastRun(ctx context.Context) (runlog.LastRun, bool) {
	var run runlog.LastRun
	ok, _ := c.get(ctx, KeyLastRun, &run)
	return run, ok
}

// Run mirrors snapshots from src every interval until ctx is done.
func (c *Cache) Run(ctx context.Context, src func() *controller.Snapshot, interval time.Duration) {
	if !c.IsAvailable() {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.IsAvailable() {
				return
			}
			if err := c.StoreSnapshot(ctx, src()); err != nil {
				c.logger.Debug().Err(err).Msg("snapshot mirror failed")
			}
		}
	}
}
