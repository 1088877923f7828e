package app

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/pulse/domain/ratelimit"
	"github.com/artpar/pulse/ports"
)

// RateLimiter enforces a per-project events-per-minute limit on top of the
// shared cache. A check followed by an increment is not atomic: two batches
// checked concurrently may both pass and over-admit by one batch.
type RateLimiter struct {
	cache  ports.Cache
	clock  ports.Clock
	logger zerolog.Logger

	// Hot-reloadable limit in events per minute; <= 0 disables limiting.
	limit atomic.Int64
}

// NewRateLimiter creates a limiter allowing limit events per minute.
func NewRateLimiter(cache ports.Cache, clock ports.Clock, logger zerolog.Logger, limit int) *RateLimiter {
	r := &RateLimiter{
		cache:  cache,
		clock:  clock,
		logger: logger.With().Str("service", "ratelimit").Logger(),
	}
	r.SetLimit(limit)
	return r
}

// SetLimit replaces the per-minute limit.
func (r *RateLimiter) SetLimit(limit int) {
	r.limit.Store(int64(limit))
}

// Limit returns the current per-minute limit.
func (r *RateLimiter) Limit() int {
	return int(r.limit.Load())
}

// CheckLimit reports whether n more events fit in the project's current
// bucket. It does not consume anything. Cache failures count as an empty
// bucket.
func (r *RateLimiter) CheckLimit(ctx context.Context, projectID string, n int) ratelimit.Status {
	now := r.clock.Now()
	return ratelimit.Evaluate(r.current(ctx, projectID, now), n, r.Limit(), now)
}

// Increment adds n to the project's current bucket.
func (r *RateLimiter) Increment(ctx context.Context, projectID string, n int) {
	if n <= 0 {
		return
	}
	key := ratelimit.BucketKey(projectID, r.clock.Now())
	if _, err := r.cache.IncrBy(ctx, key, int64(n), ratelimit.BucketTTL); err != nil {
		r.logger.Warn().Err(err).
			Str("project_id", projectID).
			Int("events", n).
			Msg("rate limit increment failed")
	}
}

func (r *RateLimiter) current(ctx context.Context, projectID string, now time.Time) int {
	raw, ok, err := r.cache.Get(ctx, ratelimit.BucketKey(projectID, now))
	if err != nil {
		r.logger.Warn().Err(err).
			Str("project_id", projectID).
			Msg("rate limit lookup failed, allowing")
		return 0
	}
	if !ok {
		return 0
	}
	count, err := strconv.Atoi(string(raw))
	if err != nil {
		r.logger.Warn().Err(err).
			Str("project_id", projectID).
			Msg("rate limit counter corrupt, allowing")
		return 0
	}
	return count
}
