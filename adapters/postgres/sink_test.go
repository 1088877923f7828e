package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/artpar/pulse/adapters/postgres"
	"github.com/artpar/pulse/domain/event"
)

// Set PULSE_TEST_POSTGRES_DSN to run against a live server.
func openSink(t *testing.T) *postgres.Sink {
	t.Helper()
	dsn := os.Getenv("PULSE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PULSE_TEST_POSTGRES_DSN not set")
	}
	s, err := postgres.Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSink_WriteIsIdempotent(t *testing.T) {
	s := openSink(t)
	ctx := context.Background()

	id := "pg-test-" + time.Now().Format("150405.000000000")
	batch := []event.Event{{
		ID:         id,
		ProjectID:  "pg-test",
		Type:       event.TypeCustom,
		Name:       "tap",
		SessionID:  "s1",
		Timestamp:  time.Now().UTC(),
		Properties: map[string]any{"n": 1},
		Device:     &event.Device{Platform: "ios"},
	}}

	if err := s.WriteEvents(ctx, batch); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.WriteEvents(ctx, batch); err != nil {
		t.Fatalf("duplicate write: %v", err)
	}
	if err := s.HealthCheck(ctx); err != nil {
		t.Errorf("health: %v", err)
	}
}

func TestOpen_BadDSN(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := postgres.Open(ctx, "postgres://nobody@127.0.0.1:1/none?sslmode=disable"); err == nil {
		t.Error("expected error for unreachable server")
	}
}
