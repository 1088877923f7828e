package http

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/artpar/pulse/app"
	"github.com/artpar/pulse/domain/event"
	"github.com/artpar/pulse/domain/ratelimit"
	"github.com/artpar/pulse/pkg/jsonapi"
	"github.com/artpar/pulse/ports"
)

// IngestHandler accepts event batches from client SDKs.
type IngestHandler struct {
	service *app.IngestionService
	clock   ports.Clock
	logger  zerolog.Logger
	maxBody int64
}

// NewIngestHandler creates an ingestion handler.
func NewIngestHandler(service *app.IngestionService, clock ports.Clock, logger zerolog.Logger, maxBody int64) *IngestHandler {
	return &IngestHandler{
		service: service,
		clock:   clock,
		logger:  logger.With().Str("handler", "ingest").Logger(),
		maxBody: maxBody,
	}
}

// Batch ingests a batch of events.
//
//	@Summary		Ingest an event batch
//	@Description	Validates, rate limits, enriches and buffers a batch of events
//	@Tags			Ingestion
//	@Accept			json
//	@Produce		json
//	@Param			X-API-Key	header		string					true	"Project API key"
//	@Param			batch		body		event.Batch				true	"Event batch"
//	@Success		202			{object}	app.IngestionResult		"Batch accepted"
//	@Failure		400			{object}	jsonapi.Document		"Malformed batch"
//	@Failure		401			{object}	jsonapi.Document		"Invalid API key"
//	@Failure		403			{object}	jsonapi.Document		"Batch belongs to another project"
//	@Failure		429			{object}	jsonapi.Document		"Rate limit exceeded"
//	@Failure		503			{object}	jsonapi.Document		"Buffer full"
//	@Security		ProjectKey
//	@Router			/v1/events/batch [post]
func (h *IngestHandler) Batch(w http.ResponseWriter, r *http.Request) {
	k, ok := projectKeyFrom(r.Context())
	if !ok {
		jsonapi.WriteUnauthorized(w, "")
		return
	}

	var batch event.Batch
	if !decodeBody(w, r, h.maxBody, &batch) {
		return
	}
	if batch.ProjectID == "" {
		batch.ProjectID = k.ProjectID
	}
	if batch.ProjectID != k.ProjectID {
		jsonapi.WriteError(w, jsonapi.NewError(http.StatusForbidden, event.CodeProjectMismatch, "Forbidden").
			Detail("Batch projectId does not match the API key").
			Pointer("/projectId").
			Build())
		return
	}

	result, err := h.service.IngestBatch(r.Context(), batch, h.source(r))
	h.respond(w, result, err)
}

// Event ingests a single event.
//
//	@Summary		Ingest one event
//	@Description	Ingests a single event as a one-element batch
//	@Tags			Ingestion
//	@Accept			json
//	@Produce		json
//	@Param			X-API-Key	header		string					true	"Project API key"
//	@Param			event		body		event.Event				true	"Event"
//	@Success		202			{object}	app.IngestionResult		"Event accepted"
//	@Failure		400			{object}	jsonapi.Document		"Invalid event"
//	@Failure		429			{object}	jsonapi.Document		"Rate limit exceeded"
//	@Security		ProjectKey
//	@Router			/v1/events [post]
func (h *IngestHandler) Event(w http.ResponseWriter, r *http.Request) {
	k, ok := projectKeyFrom(r.Context())
	if !ok {
		jsonapi.WriteUnauthorized(w, "")
		return
	}

	var e event.Event
	if !decodeBody(w, r, h.maxBody, &e) {
		return
	}

	result, err := h.service.IngestEvent(r.Context(), k.ProjectID, e, h.source(r))
	if err == nil && result.Accepted == 0 && len(result.Errors) > 0 {
		setRateLimitHeaders(w, result.RateLimit)
		errs := make([]jsonapi.Error, 0, len(result.Errors))
		for _, ee := range result.Errors {
			errs = append(errs, jsonapi.NewError(http.StatusBadRequest, ee.Code, "Invalid Event").
				Detail(ee.Detail).
				Meta("eventId", ee.EventID).
				Build())
		}
		jsonapi.WriteError(w, errs...)
		return
	}
	h.respond(w, result, err)
}

func (h *IngestHandler) source(r *http.Request) app.Source {
	return app.Source{
		ClientIP:   extractIP(r),
		SDKVersion: r.Header.Get("X-SDK-Version"),
	}
}

func (h *IngestHandler) respond(w http.ResponseWriter, result app.IngestionResult, err error) {
	if result.RateLimit.Limit > 0 {
		setRateLimitHeaders(w, result.RateLimit)
	}

	switch {
	case err == nil:
		jsonapi.WriteJSON(w, http.StatusAccepted, result)
	case errors.Is(err, app.ErrRateLimited):
		retry := ratelimit.RetryAfter(result.RateLimit, h.clock.Now())
		secs := int(math.Ceil(retry.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		jsonapi.WriteError(w, jsonapi.NewError(http.StatusTooManyRequests, "rate_limit_exceeded", "Too Many Requests").
			Detailf("Project may send %d events per minute", result.RateLimit.Limit).
			Meta("rateLimit", result.RateLimit).
			Meta("retryAfter", secs).
			Build())
	default:
		writeServiceError(w, h.logger, err)
	}
}

// setRateLimitHeaders sets the X-RateLimit-* headers.
func setRateLimitHeaders(w http.ResponseWriter, s ratelimit.Status) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(s.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(s.Remaining()))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(s.ResetAt.Unix(), 10))
}
