// Package admin provides HTTP handlers for the operator API.
package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/artpar/pulse/app"
	"github.com/artpar/pulse/domain/key"
	"github.com/artpar/pulse/pkg/jsonapi"
	"github.com/artpar/pulse/ports"
)

// TokenHeader carries the admin token.
const TokenHeader = "X-Admin-Token"

// HealthChecker checks if a dependency is healthy.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler provides admin API endpoints.
type Handler struct {
	keys       *app.KeyService
	buffers    *app.BufferManager
	aggregator *app.MetricsAggregator
	exports    *app.ExportService
	checks     map[string]HealthChecker
	token      string
	version    string
	logger     zerolog.Logger
}

// Deps contains dependencies for the admin handler.
type Deps struct {
	Keys       *app.KeyService
	Buffers    *app.BufferManager
	Aggregator *app.MetricsAggregator
	Exports    *app.ExportService
	Checks     map[string]HealthChecker
	Token      string
	Version    string
	Logger     zerolog.Logger
}

// NewHandler creates a new admin API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		keys:       deps.Keys,
		buffers:    deps.Buffers,
		aggregator: deps.Aggregator,
		exports:    deps.Exports,
		checks:     deps.Checks,
		token:      deps.Token,
		version:    deps.Version,
		logger:     deps.Logger.With().Str("handler", "admin").Logger(),
	}
}

// Router returns the admin API router.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(h.AuthMiddleware)

	// Buffers and jobs
	r.Post("/flush", h.Flush)
	r.Post("/jobs/{job}", h.RunJob)
	r.Post("/exports/purge", h.PurgeExports)

	// Keys
	r.Get("/projects/{projectID}/keys", h.ListKeys)
	r.Post("/projects/{projectID}/keys", h.CreateKey)
	r.Delete("/keys/{id}", h.RevokeKey)

	// Doctor (system health)
	r.Get("/doctor", h.Doctor)

	return r
}

// AuthMiddleware requires the admin token. An unset token rejects every
// request.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(TokenHeader)
		if got == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				got = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if h.token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Valid admin token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// -----------------------------------------------------------------------------
// Buffers and jobs
// -----------------------------------------------------------------------------

// FlushResponse reports a manual flush.
type FlushResponse struct {
	Flushed  int `json:"flushed"`
	Buffered int `json:"buffered"`
}

// Flush writes every buffered event to storage.
//
//	@Summary		Flush all buffers
//	@Tags			Admin
//	@Produce		json
//	@Success		200	{object}	FlushResponse
//	@Failure		503	{object}	jsonapi.Document	"Storage unavailable"
//	@Security		AdminToken
//	@Router			/admin/flush [post]
func (h *Handler) Flush(w http.ResponseWriter, r *http.Request) {
	n, err := h.buffers.FlushAll(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Int("flushed", n).Msg("manual flush failed")
		jsonapi.WriteError(w, jsonapi.NewError(http.StatusServiceUnavailable, "flush_failed", "Service Unavailable").
			Detail(err.Error()).
			Meta("flushed", n).
			Build())
		return
	}
	writeJSON(w, http.StatusOK, FlushResponse{Flushed: n, Buffered: h.buffers.Len()})
}

// RunJob runs an aggregation job now.
//
//	@Summary		Run an aggregation job
//	@Tags			Admin
//	@Produce		json
//	@Param			job	path		string	true	"hourly, daily, weekly or cleanup"
//	@Success		200	{object}	app.RunSummary
//	@Failure		404	{object}	jsonapi.Document	"Unknown job"
//	@Failure		500	{object}	jsonapi.Document	"Job failed"
//	@Security		AdminToken
//	@Router			/admin/jobs/{job} [post]
func (h *Handler) RunJob(w http.ResponseWriter, r *http.Request) {
	job := chi.URLParam(r, "job")
	summary, err := h.aggregator.RunJob(r.Context(), job)
	switch {
	case errors.Is(err, app.ErrUnknownJob):
		jsonapi.WriteError(w, jsonapi.ErrNotFoundWithID("job", job))
	case err != nil:
		jsonapi.WriteError(w, jsonapi.NewError(http.StatusInternalServerError, "job_failed", "Job Failed").
			Detail(err.Error()).
			Meta("summary", summary).
			Build())
	default:
		writeJSON(w, http.StatusOK, summary)
	}
}

// PurgeExports deletes expired export files and records.
//
//	@Summary		Purge expired exports
//	@Tags			Admin
//	@Produce		json
//	@Success		200	{object}	map[string]int
//	@Security		AdminToken
//	@Router			/admin/exports/purge [post]
func (h *Handler) PurgeExports(w http.ResponseWriter, r *http.Request) {
	n, err := h.exports.PurgeExpired(r.Context())
	if err != nil {
		jsonapi.WriteError(w, jsonapi.NewError(http.StatusInternalServerError, "purge_failed", "Purge Failed").
			Detail(err.Error()).
			Meta("purged", n).
			Build())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"purged": n})
}

// -----------------------------------------------------------------------------
// Keys API
// -----------------------------------------------------------------------------

// KeyResponse represents a project key in API responses.
type KeyResponse struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	Name      string     `json:"name,omitempty"`
	Prefix    string     `json:"prefix"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
}

// CreateKeyRequest represents a request to create a key.
type CreateKeyRequest struct {
	Name string `json:"name"`
}

// CreateKeyResponse includes the raw key, shown only once.
type CreateKeyResponse struct {
	KeyResponse
	Key string `json:"key"`
}

// ListKeys lists a project's keys.
//
//	@Summary		List project keys
//	@Tags			Admin
//	@Produce		json
//	@Param			projectID	path		string	true	"Project ID"
//	@Success		200			{array}		KeyResponse
//	@Security		AdminToken
//	@Router			/admin/projects/{projectID}/keys [get]
func (h *Handler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.ListKeys(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		h.logger.Error().Err(err).Msg("list keys")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list keys")
		return
	}

	out := make([]KeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, keyToResponse(k))
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateKey issues a new project key.
//
//	@Summary		Create a project key
//	@Tags			Admin
//	@Accept			json
//	@Produce		json
//	@Param			projectID	path		string				true	"Project ID"
//	@Param			request		body		CreateKeyRequest	false	"Key name"
//	@Success		201			{object}	CreateKeyResponse	"The raw key is shown once"
//	@Security		AdminToken
//	@Router			/admin/projects/{projectID}/keys [post]
func (h *Handler) CreateKey(w http.ResponseWriter, r *http.Request) {
	var req CreateKeyRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
			return
		}
	}

	raw, k, err := h.keys.CreateKey(r.Context(), chi.URLParam(r, "projectID"), req.Name)
	if err != nil {
		h.logger.Error().Err(err).Msg("create key")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create key")
		return
	}

	writeJSON(w, http.StatusCreated, CreateKeyResponse{KeyResponse: keyToResponse(k), Key: raw})
}

// RevokeKey revokes a key.
//
//	@Summary		Revoke a key
//	@Tags			Admin
//	@Param			id	path	string	true	"Key ID"
//	@Success		204
//	@Failure		404	{object}	jsonapi.Document	"Key not found"
//	@Security		AdminToken
//	@Router			/admin/keys/{id} [delete]
func (h *Handler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.keys.RevokeKey(r.Context(), id); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			jsonapi.WriteError(w, jsonapi.ErrNotFoundWithID("key", id))
			return
		}
		h.logger.Error().Err(err).Msg("revoke key")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to revoke key")
		return
	}
	jsonapi.WriteNoContent(w)
}

func keyToResponse(k key.Key) KeyResponse {
	return KeyResponse{
		ID:        k.ID,
		ProjectID: k.ProjectID,
		Name:      k.Name,
		Prefix:    k.Prefix,
		CreatedAt: k.CreatedAt,
		RevokedAt: k.RevokedAt,
		LastUsed:  k.LastUsed,
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	jsonapi.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	jsonapi.WriteError(w, jsonapi.NewError(status, code, http.StatusText(status)).Detail(message).Build())
}
