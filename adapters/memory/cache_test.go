package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/artpar/pulse/adapters/clock"
	"github.com/artpar/pulse/adapters/memory"
)

var baseTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func TestCache_SetGet(t *testing.T) {
	c := memory.NewCache(clock.NewFake(baseTime))
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := c.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v, %v", got, ok, err)
	}
	if string(got) != "v" {
		t.Errorf("Get() = %s, want v", got)
	}

	_, ok, _ = c.Get(ctx, "missing")
	if ok {
		t.Error("Get(missing) ok = true")
	}
}

func TestCache_Expiry(t *testing.T) {
	clk := clock.NewFake(baseTime)
	c := memory.NewCache(clk)
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("v"), time.Minute)
	clk.Advance(59 * time.Second)
	if _, ok, _ := c.Get(ctx, "k"); !ok {
		t.Error("key expired too early")
	}
	clk.Advance(time.Second)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("key should have expired")
	}
}

func TestCache_IncrBy(t *testing.T) {
	clk := clock.NewFake(baseTime)
	c := memory.NewCache(clk)
	ctx := context.Background()

	n, err := c.IncrBy(ctx, "counter", 5, 2*time.Minute)
	if err != nil || n != 5 {
		t.Fatalf("IncrBy() = %d, %v; want 5", n, err)
	}
	n, _ = c.IncrBy(ctx, "counter", 3, 2*time.Minute)
	if n != 8 {
		t.Errorf("IncrBy() = %d, want 8", n)
	}

	// TTL is set on creation only.
	clk.Advance(time.Minute)
	_, _ = c.IncrBy(ctx, "counter", 1, 2*time.Minute)
	if ttl := c.TTL("counter"); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}

	got, _, _ := c.Get(ctx, "counter")
	if string(got) != "9" {
		t.Errorf("Get(counter) = %s, want 9", got)
	}
}

func TestCache_IncrByNonInteger(t *testing.T) {
	c := memory.NewCache(nil)
	ctx := context.Background()
	_ = c.Set(ctx, "k", []byte("abc"), 0)

	if _, err := c.IncrBy(ctx, "k", 1, 0); err == nil {
		t.Error("expected error incrementing a non-integer")
	}
}

func TestCache_Hash(t *testing.T) {
	c := memory.NewCache(clock.NewFake(baseTime))
	ctx := context.Background()

	_ = c.HIncrBy(ctx, "h", map[string]int64{"a": 1, "b": 2}, time.Hour)
	_ = c.HIncrBy(ctx, "h", map[string]int64{"a": 10}, time.Hour)

	got, err := c.HGetAll(ctx, "h")
	if err != nil {
		t.Fatal(err)
	}
	if got["a"] != 11 || got["b"] != 2 {
		t.Errorf("HGetAll() = %v, want a:11 b:2", got)
	}

	empty, _ := c.HGetAll(ctx, "none")
	if len(empty) != 0 {
		t.Errorf("HGetAll(none) = %v, want empty", empty)
	}

	if _, _, err := c.Get(ctx, "h"); err != nil {
		t.Errorf("Get(hash) error = %v", err)
	}
}

func TestCache_Delete(t *testing.T) {
	c := memory.NewCache(nil)
	ctx := context.Background()
	_ = c.Set(ctx, "a", []byte("1"), 0)
	_ = c.Set(ctx, "b", []byte("2"), 0)

	_ = c.Delete(ctx, "a", "b", "c")

	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestCache_FailWith(t *testing.T) {
	c := memory.NewCache(nil)
	ctx := context.Background()
	down := errors.New("cache down")

	c.FailWith(down)
	if _, _, err := c.Get(ctx, "k"); !errors.Is(err, down) {
		t.Errorf("Get() error = %v, want %v", err, down)
	}
	if err := c.Ping(ctx); !errors.Is(err, down) {
		t.Errorf("Ping() error = %v, want %v", err, down)
	}

	c.FailWith(nil)
	if err := c.Ping(ctx); err != nil {
		t.Errorf("Ping() after restore = %v", err)
	}
}

func TestCache_Sweep(t *testing.T) {
	clk := clock.NewFake(baseTime)
	c := memory.NewCache(clk)
	ctx := context.Background()
	_ = c.Set(ctx, "short", []byte("1"), time.Second)
	_ = c.Set(ctx, "long", []byte("1"), time.Hour)

	clk.Advance(time.Minute)
	c.Sweep()

	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestCache_ConcurrentIncr(t *testing.T) {
	c := memory.NewCache(nil)
	ctx := context.Background()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.IncrBy(ctx, "n", 1, time.Minute)
		}()
	}
	wg.Wait()

	got, _, _ := c.Get(ctx, "n")
	if string(got) != "100" {
		t.Errorf("counter = %s, want 100", got)
	}
}

func TestCache_Close(t *testing.T) {
	c := memory.NewCache(nil)
	c.StartSweeper(time.Millisecond)

	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
