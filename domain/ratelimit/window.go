// Package ratelimit provides the pure minute-bucket arithmetic behind the
// per-project ingestion limiter.
// All functions are deterministic - same input always produces same output.
package ratelimit

import (
	"strconv"
	"time"
)

const (
	// Window is the bucket width.
	Window = time.Minute

	// BucketTTL is how long a bucket key lives in the cache. It outlives the
	// bucket so a late increment never resurrects a reset counter.
	BucketTTL = 2 * time.Minute

	keyPrefix = "ratelimit"
)

// Status is the outcome of a limit check (value type).
type Status struct {
	Count         int       `json:"count"`
	Limit         int       `json:"limit"`
	WindowSeconds int       `json:"windowSeconds"`
	ResetAt       time.Time `json:"resetAt"`
	Exceeded      bool      `json:"exceeded"`
}

// Remaining returns how many events may still be admitted in the bucket.
func (s Status) Remaining() int {
	if r := s.Limit - s.Count; r > 0 {
		return r
	}
	return 0
}

// BucketStart returns the start of the minute bucket containing now.
// This is a PURE function.
func BucketStart(now time.Time) time.Time {
	return now.UTC().Truncate(Window)
}

// BucketKey returns the cache key of the project's bucket for now.
// Keys follow the metric-kind:scope:identifiers convention.
// This is a PURE function.
func BucketKey(projectID string, now time.Time) string {
	minute := BucketStart(now).Unix() / int64(Window/time.Second)
	return keyPrefix + ":" + projectID + ":" + strconv.FormatInt(minute, 10)
}

// Evaluate decides whether n more events fit in a bucket holding count.
// The batch is exceeded when count + n > limit; a limit of zero or less
// disables limiting.
// This is a PURE function.
func Evaluate(count, n, limit int, now time.Time) Status {
	return Status{
		Count:         count,
		Limit:         limit,
		WindowSeconds: int(Window / time.Second),
		ResetAt:       BucketStart(now).Add(Window),
		Exceeded:      limit > 0 && count+n > limit,
	}
}

// RetryAfter returns how long a rejected client should wait.
// This is a PURE function.
func RetryAfter(s Status, now time.Time) time.Duration {
	if !s.Exceeded {
		return 0
	}
	delay := s.ResetAt.Sub(now)
	if delay < 0 {
		return 0
	}
	return delay
}
