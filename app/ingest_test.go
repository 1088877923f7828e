package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/artpar/pulse/adapters/clock"
	"github.com/artpar/pulse/adapters/idgen"
	"github.com/artpar/pulse/adapters/memory"
	"github.com/artpar/pulse/app"
	"github.com/artpar/pulse/domain/event"
)

type ingestFixture struct {
	svc     *app.IngestionService
	buffers *app.BufferManager
	limiter *app.RateLimiter
	sink    *memory.EventSink
	clock   *clock.Fake
}

func newIngestFixture(t *testing.T, limit int) *ingestFixture {
	t.Helper()
	clk := clock.NewFake(baseTime)
	cache := memory.NewCache(clk)
	sink := memory.NewEventSink()

	cfg := testBufferConfig()
	cfg.FlushSize = 1000
	cfg.MaxBuffered = 2000
	buffers := app.NewBufferManager(sink, cfg, testLogger, nil)
	limiter := app.NewRateLimiter(cache, clk, testLogger, limit)

	svc := app.NewIngestionService(app.IngestionDeps{
		Limiter:  limiter,
		Enricher: app.NewEnricher(nil, clk, 0, testLogger),
		Buffers:  buffers,
		Clock:    clk,
		IDGen:    idgen.NewSequential("batch"),
		Logger:   testLogger,
	}, event.DefaultRules())
	return &ingestFixture{svc: svc, buffers: buffers, limiter: limiter, sink: sink, clock: clk}
}

func batchOf(n int) event.Batch {
	return event.Batch{ProjectID: "proj-1", Events: makeEvents("e", n), SDKVersion: "1.0.0"}
}

func TestIngestBatch_Accepts(t *testing.T) {
	f := newIngestFixture(t, 100)

	res, err := f.svc.IngestBatch(context.Background(), batchOf(3), app.Source{ClientIP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("IngestBatch() error = %v", err)
	}
	if !res.Success || res.Accepted != 3 || res.Rejected != 0 {
		t.Errorf("result = %+v, want 3 accepted", res)
	}
	if res.BatchID != "batch1" {
		t.Errorf("BatchID = %q, want generated batch1", res.BatchID)
	}
	if res.RateLimit.Count != 3 || res.RateLimit.Exceeded {
		t.Errorf("RateLimit = %+v, want count 3", res.RateLimit)
	}
	if f.buffers.ProjectLen("proj-1") != 3 {
		t.Errorf("buffered = %d, want 3", f.buffers.ProjectLen("proj-1"))
	}

	if _, err := f.buffers.FlushAll(context.Background()); err != nil {
		t.Fatalf("FlushAll() error = %v", err)
	}
	stored := f.sink.GetAll()
	if stored[0].Meta == nil || stored[0].Meta.BatchID != "batch1" || stored[0].Meta.SDKVersion != "1.0.0" {
		t.Errorf("Meta = %+v", stored[0].Meta)
	}
	if !stored[0].ReceivedAt.Equal(baseTime) {
		t.Errorf("ReceivedAt = %v, want %v", stored[0].ReceivedAt, baseTime)
	}
}

func TestIngestBatch_RateLimitIsAtomic(t *testing.T) {
	f := newIngestFixture(t, 100)
	ctx := context.Background()

	if _, err := f.svc.IngestBatch(ctx, batchOf(95), app.Source{}); err != nil {
		t.Fatalf("IngestBatch() error = %v", err)
	}

	b := batchOf(10)
	for i := range b.Events {
		b.Events[i].ID = "late-" + b.Events[i].ID
	}
	res, err := f.svc.IngestBatch(ctx, b, app.Source{})
	if !errors.Is(err, app.ErrRateLimited) {
		t.Fatalf("IngestBatch() error = %v, want ErrRateLimited", err)
	}
	if res.Accepted != 0 || res.Rejected != 10 || !res.RateLimit.Exceeded {
		t.Errorf("result = %+v, want all 10 rejected", res)
	}
	if got := f.buffers.ProjectLen("proj-1"); got != 95 {
		t.Errorf("buffered = %d, want 95", got)
	}

	// Exactly reaching the limit is allowed.
	b = batchOf(5)
	for i := range b.Events {
		b.Events[i].ID = "last-" + b.Events[i].ID
	}
	if _, err := f.svc.IngestBatch(ctx, b, app.Source{}); err != nil {
		t.Errorf("IngestBatch() at limit error = %v", err)
	}

	// A new minute resets the bucket.
	f.clock.Advance(time.Minute)
	b = batchOf(1)
	b.Events[0].ID = "next-minute"
	b.Events[0].Timestamp = f.clock.Now()
	if _, err := f.svc.IngestBatch(ctx, b, app.Source{}); err != nil {
		t.Errorf("IngestBatch() next minute error = %v", err)
	}
}

func TestIngestBatch_PartialRejection(t *testing.T) {
	f := newIngestFixture(t, 100)

	b := batchOf(5)
	b.Events[1].Type = "bogus"
	b.Events[2].ID = b.Events[0].ID
	b.Events[3].Timestamp = baseTime.Add(time.Hour)
	b.Events[4].ProjectID = "other"

	res, err := f.svc.IngestBatch(context.Background(), b, app.Source{})
	if err != nil {
		t.Fatalf("IngestBatch() error = %v", err)
	}
	if res.Success {
		t.Error("Success should be false with rejections")
	}
	if res.Accepted != 1 || res.Rejected != 4 {
		t.Fatalf("accepted %d rejected %d, want 1 and 4", res.Accepted, res.Rejected)
	}
	want := map[int]string{
		1: event.CodeInvalidType,
		2: event.CodeDuplicateID,
		3: event.CodeFutureTimestamp,
		4: event.CodeProjectMismatch,
	}
	for _, e := range res.Errors {
		if want[e.Index] != e.Code {
			t.Errorf("Errors[%d].Code = %q, want %q", e.Index, e.Code, want[e.Index])
		}
	}
	if res.RateLimit.Count != 1 {
		t.Errorf("RateLimit.Count = %d, want 1 (only accepted events count)", res.RateLimit.Count)
	}
}

func TestIngestBatch_InvalidEnvelope(t *testing.T) {
	f := newIngestFixture(t, 100)
	ctx := context.Background()

	if _, err := f.svc.IngestBatch(ctx, event.Batch{ProjectID: "proj-1"}, app.Source{}); !errors.Is(err, event.ErrInvalidBatch) {
		t.Errorf("empty batch error = %v, want ErrInvalidBatch", err)
	}
	if _, err := f.svc.IngestBatch(ctx, event.Batch{Events: makeEvents("e", 1)}, app.Source{}); !errors.Is(err, event.ErrInvalidBatch) {
		t.Errorf("missing project error = %v, want ErrInvalidBatch", err)
	}
	if _, err := f.svc.IngestBatch(ctx, batchOf(1001), app.Source{}); !errors.Is(err, event.ErrBatchTooLarge) {
		t.Errorf("oversized batch error = %v, want ErrBatchTooLarge", err)
	}
	if f.buffers.Len() != 0 {
		t.Errorf("buffered = %d, want 0", f.buffers.Len())
	}
}

func TestIngestBatch_BufferFull(t *testing.T) {
	f := newIngestFixture(t, 0)
	f.sink.FailWith(errors.New("db down"))
	ctx := context.Background()

	if _, err := f.svc.IngestBatch(ctx, batchOf(1000), app.Source{}); err != nil {
		t.Fatalf("first IngestBatch() error = %v", err)
	}
	b := batchOf(1000)
	for i := range b.Events {
		b.Events[i].ID = "more-" + b.Events[i].ID
	}
	if _, err := f.svc.IngestBatch(ctx, b, app.Source{}); err != nil {
		t.Fatalf("second IngestBatch() error = %v", err)
	}

	b = batchOf(1)
	b.Events[0].ID = "overflow"
	res, err := f.svc.IngestBatch(ctx, b, app.Source{})
	if !errors.Is(err, app.ErrBufferFull) {
		t.Fatalf("IngestBatch() error = %v, want ErrBufferFull", err)
	}
	if res.Accepted != 0 {
		t.Errorf("Accepted = %d, want 0", res.Accepted)
	}
}

func TestIngestEvent(t *testing.T) {
	f := newIngestFixture(t, 100)
	e := makeEvents("single", 1)[0]
	e.ProjectID = ""

	res, err := f.svc.IngestEvent(context.Background(), "proj-1", e, app.Source{})
	if err != nil {
		t.Fatalf("IngestEvent() error = %v", err)
	}
	if res.Accepted != 1 {
		t.Errorf("Accepted = %d, want 1", res.Accepted)
	}
}
