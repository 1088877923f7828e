package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/artpar/pulse/app"
	"github.com/artpar/pulse/domain/cost"
	"github.com/artpar/pulse/pkg/jsonapi"
)

// DefaultCostDays is the summary period when days is omitted.
const DefaultCostDays = 30

// CostsHandler records and reports LLM spend.
type CostsHandler struct {
	monitor *app.CostMonitor
	logger  zerolog.Logger
	maxBody int64
}

// NewCostsHandler creates a costs handler.
func NewCostsHandler(monitor *app.CostMonitor, logger zerolog.Logger, maxBody int64) *CostsHandler {
	return &CostsHandler{
		monitor: monitor,
		logger:  logger.With().Str("handler", "costs").Logger(),
		maxBody: maxBody,
	}
}

// TrackCostRequest is one priced LLM call.
type TrackCostRequest struct {
	UserID       string `json:"userId"`
	ProjectID    string `json:"projectId,omitempty"`
	Model        string `json:"model"`
	InputTokens  int64  `json:"inputTokens"`
	OutputTokens int64  `json:"outputTokens"`
}

// Track records the cost of one LLM call.
//
//	@Summary		Track an LLM call
//	@Description	Prices the call and adds it to the user, project and global daily buckets
//	@Tags			Costs
//	@Accept			json
//	@Produce		json
//	@Param			request	body		TrackCostRequest	true	"LLM call"
//	@Success		201		{object}	cost.Breakdown
//	@Failure		400		{object}	jsonapi.Document	"Invalid request"
//	@Security		AdminToken
//	@Router			/v1/costs [post]
func (h *CostsHandler) Track(w http.ResponseWriter, r *http.Request) {
	var req TrackCostRequest
	if !decodeBody(w, r, h.maxBody, &req) {
		return
	}

	b, err := h.monitor.TrackCost(r.Context(), req.UserID, req.ProjectID, req.Model, req.InputTokens, req.OutputTokens)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	jsonapi.WriteJSON(w, http.StatusCreated, b)
}

// Summary returns the spend of a scope over the last days.
//
//	@Summary		Cost summary
//	@Tags			Costs
//	@Produce		json
//	@Param			scope	path		string	true	"user, project or global"
//	@Param			id		path		string	true	"User or project ID (ignored for global)"
//	@Param			days	query		int		false	"Days to summarise (1-90, default 30)"
//	@Success		200		{object}	cost.Summary
//	@Security		AdminToken
//	@Router			/v1/costs/{scope}/{id} [get]
func (h *CostsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	days := DefaultCostDays
	if s := r.URL.Query().Get("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			jsonapi.WriteError(w, jsonapi.ErrInvalidParameter("days", "days must be a positive integer"))
			return
		}
		days = n
	}

	jsonapi.WriteJSON(w, http.StatusOK, h.monitor.Costs(r.Context(), scope, chi.URLParam(r, "id"), days))
}

// Budget compares month-to-date spend with a threshold.
//
//	@Summary		Budget check
//	@Tags			Costs
//	@Produce		json
//	@Param			scope		path		string	true	"user, project or global"
//	@Param			id			path		string	true	"User or project ID"
//	@Param			threshold	query		number	true	"Monthly budget in USD"
//	@Success		200			{object}	cost.BudgetStatus
//	@Security		AdminToken
//	@Router			/v1/costs/{scope}/{id}/budget [get]
func (h *CostsHandler) Budget(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	threshold, err := strconv.ParseFloat(r.URL.Query().Get("threshold"), 64)
	if err != nil || threshold <= 0 {
		jsonapi.WriteError(w, jsonapi.ErrInvalidParameter("threshold", "threshold must be a positive number"))
		return
	}

	jsonapi.WriteJSON(w, http.StatusOK, h.monitor.CheckBudget(r.Context(), scope, chi.URLParam(r, "id"), threshold))
}

func (h *CostsHandler) scope(w http.ResponseWriter, r *http.Request) (cost.Scope, bool) {
	s := chi.URLParam(r, "scope")
	scope, ok := cost.ParseScope(s)
	if !ok {
		writeServiceError(w, h.logger, fmt.Errorf("%w: %q", app.ErrInvalidScope, s))
		return "", false
	}
	return scope, true
}
