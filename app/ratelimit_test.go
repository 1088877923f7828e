package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/artpar/pulse/adapters/clock"
	"github.com/artpar/pulse/adapters/memory"
	"github.com/artpar/pulse/app"
	"github.com/artpar/pulse/domain/ratelimit"
)

func TestRateLimiter_Boundary(t *testing.T) {
	clk := clock.NewFake(baseTime.Add(10 * time.Second))
	cache := memory.NewCache(clk)
	rl := app.NewRateLimiter(cache, clk, testLogger, 100)
	ctx := context.Background()

	if st := rl.CheckLimit(ctx, "proj-1", 100); st.Exceeded {
		t.Fatalf("CheckLimit(100) exceeded with empty bucket: %+v", st)
	}
	rl.Increment(ctx, "proj-1", 100)

	st := rl.CheckLimit(ctx, "proj-1", 1)
	if !st.Exceeded {
		t.Error("CheckLimit(1) should be exceeded at 100/100")
	}
	if st.Count != 100 || st.Limit != 100 || st.WindowSeconds != 60 {
		t.Errorf("Status = %+v", st)
	}
	if want := baseTime.Add(time.Minute); !st.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", st.ResetAt, want)
	}
	if got := ratelimit.RetryAfter(st, clk.Now()); got != 50*time.Second {
		t.Errorf("RetryAfter = %v, want 50s", got)
	}

	// Other projects use their own bucket.
	if rl.CheckLimit(ctx, "proj-2", 100).Exceeded {
		t.Error("proj-2 should not share proj-1's bucket")
	}

	// The next minute starts a fresh bucket.
	clk.Advance(time.Minute)
	if st := rl.CheckLimit(ctx, "proj-1", 100); st.Exceeded || st.Count != 0 {
		t.Errorf("next minute Status = %+v, want empty bucket", st)
	}
}

func TestRateLimiter_BucketTTL(t *testing.T) {
	clk := clock.NewFake(baseTime)
	cache := memory.NewCache(clk)
	rl := app.NewRateLimiter(cache, clk, testLogger, 100)

	rl.Increment(context.Background(), "proj-1", 5)
	if got := cache.TTL(ratelimit.BucketKey("proj-1", baseTime)); got != ratelimit.BucketTTL {
		t.Errorf("TTL = %v, want %v", got, ratelimit.BucketTTL)
	}
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	clk := clock.NewFake(baseTime)
	cache := memory.NewCache(clk)
	rl := app.NewRateLimiter(cache, clk, testLogger, 10)
	ctx := context.Background()

	rl.Increment(ctx, "proj-1", 10)
	cache.FailWith(errors.New("cache down"))

	st := rl.CheckLimit(ctx, "proj-1", 5)
	if st.Exceeded || st.Count != 0 {
		t.Errorf("Status = %+v, want count 0 and not exceeded", st)
	}
	rl.Increment(ctx, "proj-1", 5)
}

func TestRateLimiter_SetLimit(t *testing.T) {
	clk := clock.NewFake(baseTime)
	rl := app.NewRateLimiter(memory.NewCache(clk), clk, testLogger, 10)
	ctx := context.Background()

	if !rl.CheckLimit(ctx, "proj-1", 11).Exceeded {
		t.Error("11 events should exceed a limit of 10")
	}
	rl.SetLimit(20)
	if rl.Limit() != 20 {
		t.Errorf("Limit() = %d, want 20", rl.Limit())
	}
	if rl.CheckLimit(ctx, "proj-1", 11).Exceeded {
		t.Error("11 events should fit a limit of 20")
	}
	rl.SetLimit(0)
	if rl.CheckLimit(ctx, "proj-1", 1_000_000).Exceeded {
		t.Error("a zero limit disables limiting")
	}
}
