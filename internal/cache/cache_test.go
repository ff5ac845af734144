package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/openhome/internal/controller"
)

func TestUnavailableRedisDisablesCache(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RedisAddr = "127.0.0.1:1"
	c, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if c.IsAvailable() {
		t.Fatal("cache should be disabled without a server")
	}
	ctx := context.Background()
	if err := c.StoreSnapshot(ctx, &controller.Snapshot{Stations: 8}); err != nil {
		t.Fatalf("store on disabled cache: %v", err)
	}
	if _, ok := c.Snapshot(ctx); ok {
		t.Fatal("disabled cache returned a snapshot")
	}
	if _, ok := c.LastRun(ctx); ok {
		t.Fatal("disabled cache returned a last run")
	}

	done := make(chan struct{})
	go func() {
		c.Run(ctx, func() *controller.Snapshot { return nil }, time.Millisecond)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return immediately when disabled")
	}
}

func TestNewAppliesDefaultTTLs(t *testing.T) {
	c, err := New(Config{RedisAddr: "127.0.0.1:1"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.config.SnapshotTTL != DefaultSnapshotTTL || c.config.LastRunTTL != DefaultLastRunTTL {
		t.Fatalf("ttls = %v %v", c.config.SnapshotTTL, c.config.LastRunTTL)
	}
}
