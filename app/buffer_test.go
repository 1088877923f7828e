package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/artpar/pulse/adapters/memory"
	"github.com/artpar/pulse/app"
	"github.com/artpar/pulse/domain/event"
)

func testBufferConfig() app.BufferConfig {
	return app.BufferConfig{
		FlushSize:     10,
		MaxBuffered:   25,
		FlushInterval: 10 * time.Millisecond,
		FlushTimeout:  time.Second,
		CloseRetries:  2,
		CloseBackoff:  time.Millisecond,
	}
}

// makeEvents returns n valid events with IDs prefix-0 .. prefix-(n-1). The
// project is left for the batch to fill in.
func makeEvents(prefix string, n int) []event.Event {
	out := make([]event.Event, n)
	for i := range out {
		out[i] = event.Event{
			ID:        fmt.Sprintf("%s-%d", prefix, i),
			Type:      event.TypeCustom,
			SessionID: "s1",
			Timestamp: baseTime,
		}
	}
	return out
}

func TestBufferManager_FlushOnSize(t *testing.T) {
	sink := memory.NewEventSink()
	m := app.NewBufferManager(sink, testBufferConfig(), testLogger, nil)
	ctx := context.Background()

	if err := m.Append(ctx, "proj-1", makeEvents("a", 9)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if sink.Writes() != 0 {
		t.Errorf("Writes() = %d, want 0 below the flush size", sink.Writes())
	}
	if err := m.Append(ctx, "proj-1", makeEvents("b", 1)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if got := len(sink.GetAll()); got != 10 {
		t.Errorf("stored = %d, want 10", got)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

func TestBufferManager_FlushFailureKeepsEvents(t *testing.T) {
	sink := memory.NewEventSink()
	m := app.NewBufferManager(sink, testBufferConfig(), testLogger, nil)
	ctx := context.Background()

	if err := m.Append(ctx, "proj-1", makeEvents("a", 3)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	sink.FailWith(errors.New("db locked"))
	if _, err := m.Flush(ctx, "proj-1"); err == nil {
		t.Fatal("Flush() should fail")
	}
	if err := m.Append(ctx, "proj-1", makeEvents("b", 2)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if got := m.ProjectLen("proj-1"); got != 5 {
		t.Fatalf("ProjectLen() = %d, want 5", got)
	}

	sink.FailWith(nil)
	n, err := m.Flush(ctx, "proj-1")
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if n != 5 {
		t.Errorf("Flush() = %d, want 5", n)
	}
	stored := sink.GetAll()
	if stored[0].ID != "a-0" || stored[3].ID != "b-0" {
		t.Errorf("order = %s, %s; want failed events first", stored[0].ID, stored[3].ID)
	}
}

func TestBufferManager_SizeFlushFailure(t *testing.T) {
	sink := memory.NewEventSink()
	sink.FailWith(errors.New("db locked"))
	m := app.NewBufferManager(sink, testBufferConfig(), testLogger, nil)

	err := m.Append(context.Background(), "proj-1", makeEvents("a", 10))
	if !errors.Is(err, app.ErrFlushFailed) {
		t.Errorf("Append() error = %v, want ErrFlushFailed", err)
	}
	if m.Len() != 10 {
		t.Errorf("Len() = %d, want 10", m.Len())
	}
}

func TestBufferManager_Full(t *testing.T) {
	sink := memory.NewEventSink()
	sink.FailWith(errors.New("db down"))
	m := app.NewBufferManager(sink, testBufferConfig(), testLogger, nil)
	ctx := context.Background()

	_ = m.Append(ctx, "proj-1", makeEvents("a", 10))
	_ = m.Append(ctx, "proj-1", makeEvents("b", 10))

	err := m.Append(ctx, "proj-1", makeEvents("c", 10))
	if !errors.Is(err, app.ErrBufferFull) {
		t.Fatalf("Append() error = %v, want ErrBufferFull", err)
	}
	if got := m.ProjectLen("proj-1"); got != 20 {
		t.Errorf("ProjectLen() = %d, want 20", got)
	}
	// The cap is per project.
	if err := m.Append(ctx, "proj-2", makeEvents("d", 5)); err != nil {
		t.Errorf("Append(proj-2) error = %v", err)
	}
}

func TestBufferManager_ConcurrentAppend(t *testing.T) {
	sink := memory.NewEventSink()
	cfg := testBufferConfig()
	cfg.MaxBuffered = 1000
	m := app.NewBufferManager(sink, cfg, testLogger, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		for w := 0; w < 5; w++ {
			p, w := p, w
			wg.Add(1)
			go func() {
				defer wg.Done()
				project := fmt.Sprintf("proj-%d", p)
				_ = m.Append(ctx, project, makeEvents(fmt.Sprintf("%s-w%d", project, w), 7))
			}()
		}
	}
	wg.Wait()

	if _, err := m.FlushAll(ctx); err != nil {
		t.Fatalf("FlushAll() error = %v", err)
	}
	if got := len(sink.GetAll()); got != 4*5*7 {
		t.Errorf("stored = %d, want %d", got, 4*5*7)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

func TestBufferManager_RunFlushesPeriodically(t *testing.T) {
	sink := memory.NewEventSink()
	m := app.NewBufferManager(sink, testBufferConfig(), testLogger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	if err := m.Append(ctx, "proj-1", makeEvents("a", 3)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(sink.GetAll()) != 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if got := len(sink.GetAll()); got != 3 {
		t.Errorf("stored = %d, want 3", got)
	}
}

func TestBufferManager_Close(t *testing.T) {
	sink := memory.NewEventSink()
	m := app.NewBufferManager(sink, testBufferConfig(), testLogger, nil)
	ctx := context.Background()

	_ = m.Append(ctx, "proj-1", makeEvents("a", 4))
	_ = m.Append(ctx, "proj-2", makeEvents("b", 4))

	if err := m.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := len(sink.GetAll()); got != 8 {
		t.Errorf("stored = %d, want 8", got)
	}
	if !sink.Closed() {
		t.Error("sink should be closed")
	}
	if err := m.Append(ctx, "proj-1", makeEvents("c", 1)); !errors.Is(err, app.ErrBufferClosed) {
		t.Errorf("Append() after Close error = %v, want ErrBufferClosed", err)
	}
	if err := m.Close(ctx); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestBufferManager_CloseReportsLoss(t *testing.T) {
	sink := memory.NewEventSink()
	down := errors.New("db down")
	sink.FailWith(down)
	m := app.NewBufferManager(sink, testBufferConfig(), testLogger, nil)
	ctx := context.Background()

	_ = m.Append(ctx, "proj-1", makeEvents("a", 4))

	err := m.Close(ctx)
	if !errors.Is(err, down) {
		t.Errorf("Close() error = %v, want %v", err, down)
	}
	if m.Len() != 4 {
		t.Errorf("Len() = %d, want 4 unwritten", m.Len())
	}
}
