package clock_test

import (
	"testing"
	"time"

	"github.com/artpar/pulse/adapters/clock"
	"github.com/artpar/pulse/ports"
)

var (
	_ ports.Clock = clock.Real{}
	_ ports.Clock = (*clock.Fake)(nil)
)

func TestReal_NowIsUTC(t *testing.T) {
	before := time.Now()
	got := clock.Real{}.Now()
	after := time.Now()

	if got.Location() != time.UTC {
		t.Errorf("Location() = %v, want UTC", got.Location())
	}
	if got.Before(before) || got.After(after) {
		t.Errorf("Now() = %v, want between %v and %v", got, before, after)
	}
}

func TestFake(t *testing.T) {
	start := time.Date(2024, 1, 31, 23, 59, 0, 0, time.UTC)
	c := clock.NewFake(start)

	if !c.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", c.Now(), start)
	}

	c.Advance(2 * time.Minute)
	if want := start.Add(2 * time.Minute); !c.Now().Equal(want) {
		t.Errorf("after Advance: Now() = %v, want %v", c.Now(), want)
	}

	c.AdvanceDays(1)
	if want := time.Date(2024, 2, 2, 0, 1, 0, 0, time.UTC); !c.Now().Equal(want) {
		t.Errorf("after AdvanceDays: Now() = %v, want %v", c.Now(), want)
	}

	c.Set(start)
	if !c.Now().Equal(start) {
		t.Errorf("after Set: Now() = %v, want %v", c.Now(), start)
	}
}
