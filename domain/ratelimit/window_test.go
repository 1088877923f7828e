package ratelimit_test

import (
	"testing"
	"time"

	"github.com/artpar/pulse/domain/ratelimit"
)

var baseTime = time.Date(2024, 1, 15, 12, 0, 30, 0, time.UTC)

func TestBucketKey_SameMinute(t *testing.T) {
	a := ratelimit.BucketKey("proj-1", baseTime)
	b := ratelimit.BucketKey("proj-1", baseTime.Add(29*time.Second))

	if a != b {
		t.Errorf("keys differ within one minute: %s vs %s", a, b)
	}
}

func TestBucketKey_NextMinute(t *testing.T) {
	a := ratelimit.BucketKey("proj-1", baseTime)
	b := ratelimit.BucketKey("proj-1", baseTime.Add(30*time.Second))

	if a == b {
		t.Errorf("keys should differ across minutes, both %s", a)
	}
}

func TestBucketKey_ScopedByProject(t *testing.T) {
	if ratelimit.BucketKey("a", baseTime) == ratelimit.BucketKey("b", baseTime) {
		t.Error("keys should differ between projects")
	}
}

func TestEvaluate_Boundary(t *testing.T) {
	tests := []struct {
		name     string
		count, n int
		exceeded bool
	}{
		{"full batch into empty bucket", 0, 100, false},
		{"one more after full", 100, 1, true},
		{"partial", 40, 60, false},
		{"partial over", 41, 60, true},
		{"empty batch at limit", 100, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ratelimit.Evaluate(tt.count, tt.n, 100, baseTime)
			if got.Exceeded != tt.exceeded {
				t.Errorf("Exceeded = %v, want %v", got.Exceeded, tt.exceeded)
			}
		})
	}
}

func TestEvaluate_Metadata(t *testing.T) {
	got := ratelimit.Evaluate(10, 5, 100, baseTime)

	if got.WindowSeconds != 60 {
		t.Errorf("WindowSeconds = %d, want 60", got.WindowSeconds)
	}
	wantReset := time.Date(2024, 1, 15, 12, 1, 0, 0, time.UTC)
	if !got.ResetAt.Equal(wantReset) {
		t.Errorf("ResetAt = %v, want %v", got.ResetAt, wantReset)
	}
	if got.Remaining() != 90 {
		t.Errorf("Remaining() = %d, want 90", got.Remaining())
	}
}

func TestEvaluate_ZeroLimitDisables(t *testing.T) {
	if got := ratelimit.Evaluate(1_000_000, 1000, 0, baseTime); got.Exceeded {
		t.Error("limit 0 should never be exceeded")
	}
}

func TestRetryAfter(t *testing.T) {
	s := ratelimit.Evaluate(100, 1, 100, baseTime)
	if got := ratelimit.RetryAfter(s, baseTime); got != 30*time.Second {
		t.Errorf("RetryAfter() = %v, want 30s", got)
	}

	ok := ratelimit.Evaluate(0, 1, 100, baseTime)
	if got := ratelimit.RetryAfter(ok, baseTime); got != 0 {
		t.Errorf("RetryAfter() = %v, want 0 when allowed", got)
	}
}
