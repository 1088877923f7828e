package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/artpar/pulse/domain/event"
	"github.com/artpar/pulse/domain/ratelimit"
	"github.com/artpar/pulse/ports"
)

// ErrRateLimited is returned when a batch does not fit the project's limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Rejection reasons reported to the observer.
const (
	rejectInvalidBatch = "invalid_batch"
	rejectRateLimited  = "rate_limited"
	rejectInvalidEvent = "invalid_event"
	rejectBufferFull   = "buffer_full"
)

// IngestionResult summarises one ingested batch.
type IngestionResult struct {
	Success   bool             `json:"success"`
	BatchID   string           `json:"batchId,omitempty"`
	Accepted  int              `json:"accepted"`
	Rejected  int              `json:"rejected"`
	Errors    []event.Error    `json:"errors,omitempty"`
	RateLimit ratelimit.Status `json:"rateLimit"`
}

// IngestionDeps contains dependencies for the ingestion service.
type IngestionDeps struct {
	Limiter  *RateLimiter
	Enricher *Enricher
	Buffers  *BufferManager
	Clock    ports.Clock
	IDGen    ports.IDGenerator
	Logger   zerolog.Logger
	Observer ports.Observer
}

// IngestionService validates, rate limits, enriches and buffers batches.
type IngestionService struct {
	limiter  *RateLimiter
	enricher *Enricher
	buffers  *BufferManager
	clock    ports.Clock
	idGen    ports.IDGenerator
	logger   zerolog.Logger
	observer ports.Observer
	rules    event.Rules
}

// NewIngestionService creates a new ingestion service.
func NewIngestionService(deps IngestionDeps, rules event.Rules) *IngestionService {
	obs := deps.Observer
	if obs == nil {
		obs = ports.NopObserver{}
	}
	return &IngestionService{
		limiter:  deps.Limiter,
		enricher: deps.Enricher,
		buffers:  deps.Buffers,
		clock:    deps.Clock,
		idGen:    deps.IDGen,
		logger:   deps.Logger.With().Str("service", "ingestion").Logger(),
		observer: obs,
		rules:    rules,
	}
}

// IngestBatch processes one batch. A malformed envelope fails the whole
// batch with an error wrapping event.ErrInvalidBatch or
// event.ErrBatchTooLarge. A batch over the rate limit is rejected as a whole
// with ErrRateLimited and a result describing the limit. Otherwise every
// valid event is accepted and every invalid one is reported individually.
func (s *IngestionService) IngestBatch(ctx context.Context, batch event.Batch, src Source) (IngestionResult, error) {
	if err := event.ValidateBatch(batch, s.rules); err != nil {
		s.observer.EventsRejected(rejectInvalidBatch, len(batch.Events))
		return IngestionResult{Rejected: len(batch.Events)}, err
	}
	if batch.ID == "" && s.idGen != nil {
		batch.ID = s.idGen.New()
	}

	n := len(batch.Events)
	status := s.limiter.CheckLimit(ctx, batch.ProjectID, n)
	if status.Exceeded {
		s.observer.EventsRejected(rejectRateLimited, n)
		s.logger.Info().
			Str("project_id", batch.ProjectID).
			Int("events", n).
			Int("count", status.Count).
			Int("limit", status.Limit).
			Msg("batch rate limited")
		return IngestionResult{BatchID: batch.ID, Rejected: n, RateLimit: status}, ErrRateLimited
	}

	valid, rejected := s.validateEvents(batch)
	result := IngestionResult{
		BatchID:   batch.ID,
		Rejected:  len(rejected),
		Errors:    rejected,
		RateLimit: status,
	}
	if len(rejected) > 0 {
		s.observer.EventsRejected(rejectInvalidEvent, len(rejected))
	}
	if len(valid) == 0 {
		return result, nil
	}

	src.BatchID = batch.ID
	if src.SDKVersion == "" {
		src.SDKVersion = batch.SDKVersion
	}
	enriched := s.enricher.EnrichBatch(ctx, valid, src)

	if err := s.buffers.Append(ctx, batch.ProjectID, enriched); err != nil {
		if !errors.Is(err, ErrFlushFailed) {
			s.observer.EventsRejected(rejectBufferFull, len(enriched))
			return IngestionResult{BatchID: batch.ID, Rejected: n, RateLimit: status}, fmt.Errorf("buffer batch: %w", err)
		}
		s.logger.Warn().Err(err).
			Str("project_id", batch.ProjectID).
			Msg("events accepted but flush deferred")
	}

	s.limiter.Increment(ctx, batch.ProjectID, len(enriched))
	s.observer.EventsAccepted(len(enriched))
	result.Accepted = len(enriched)
	result.Success = result.Rejected == 0
	result.RateLimit = ratelimit.Evaluate(status.Count+len(enriched), 0, status.Limit, s.clock.Now())

	s.logger.Debug().
		Str("project_id", batch.ProjectID).
		Str("batch_id", batch.ID).
		Int("accepted", result.Accepted).
		Int("rejected", result.Rejected).
		Msg("batch ingested")
	return result, nil
}

// IngestEvent ingests a single event as a one-element batch.
func (s *IngestionService) IngestEvent(ctx context.Context, projectID string, e event.Event, src Source) (IngestionResult, error) {
	return s.IngestBatch(ctx, event.Batch{
		ProjectID: projectID,
		Events:    []event.Event{e},
	}, src)
}

// validateEvents splits a batch into valid events, with their project filled
// in, and per-event errors.
func (s *IngestionService) validateEvents(batch event.Batch) ([]event.Event, []event.Error) {
	now := s.clock.Now()
	seen := make(map[string]bool, len(batch.Events))
	valid := make([]event.Event, 0, len(batch.Events))
	var rejected []event.Error

	for i, e := range batch.Events {
		if verr := event.ValidateEvent(e, i, batch.ProjectID, s.rules, now); verr != nil {
			rejected = append(rejected, *verr)
			continue
		}
		if seen[e.ID] {
			rejected = append(rejected, *event.DuplicateError(e, i))
			continue
		}
		seen[e.ID] = true
		if e.ProjectID == "" {
			e.ProjectID = batch.ProjectID
		}
		valid = append(valid, e)
	}
	return valid, rejected
}
