package sink_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/pulse/adapters/memory"
	"github.com/artpar/pulse/adapters/sink"
	"github.com/artpar/pulse/domain/event"
)

var batch = []event.Event{{
	ID:        "e1",
	ProjectID: "p1",
	Type:      event.TypeCustom,
	SessionID: "s1",
	Timestamp: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
}}

func TestFanOut_WritesAll(t *testing.T) {
	primary, mirror := memory.NewEventSink(), memory.NewEventSink()
	f := sink.NewFanOut(zerolog.Nop(), sink.Named{Name: "sqlite", Sink: primary}, sink.Named{Name: "postgres", Sink: mirror})

	if err := f.WriteEvents(context.Background(), batch); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(primary.GetAll()) != 1 || len(mirror.GetAll()) != 1 {
		t.Errorf("primary=%d mirror=%d, want 1 each", len(primary.GetAll()), len(mirror.GetAll()))
	}
}

func TestFanOut_MirrorFailure(t *testing.T) {
	primary, mirror := memory.NewEventSink(), memory.NewEventSink()
	down := errors.New("down")
	mirror.FailWith(down)
	f := sink.NewFanOut(zerolog.Nop(), sink.Named{Name: "sqlite", Sink: primary}, sink.Named{Name: "postgres", Sink: mirror})

	if err := f.WriteEvents(context.Background(), batch); !errors.Is(err, down) {
		t.Fatalf("write err = %v, want %v", err, down)
	}
	// The primary still received the batch; a retry deduplicates it.
	if len(primary.GetAll()) != 1 {
		t.Errorf("primary = %d, want 1", len(primary.GetAll()))
	}
	if err := f.HealthCheck(context.Background()); err == nil {
		t.Error("health should report the failing mirror")
	}
}

func TestFanOut_PrimaryFailure(t *testing.T) {
	primary, mirror := memory.NewEventSink(), memory.NewEventSink()
	down := errors.New("disk full")
	primary.FailWith(down)
	f := sink.NewFanOut(zerolog.Nop(), sink.Named{Name: "sqlite", Sink: primary}, sink.Named{Name: "postgres", Sink: mirror})

	if err := f.WriteEvents(context.Background(), batch); !errors.Is(err, down) {
		t.Errorf("write err = %v, want %v", err, down)
	}
}

func TestFanOut_CloseAll(t *testing.T) {
	primary, mirror := memory.NewEventSink(), memory.NewEventSink()
	f := sink.NewFanOut(zerolog.Nop(), sink.Named{Name: "sqlite", Sink: primary}, sink.Named{Name: "postgres", Sink: mirror})

	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !primary.Closed() || !mirror.Closed() {
		t.Error("both sinks should be closed")
	}
}
