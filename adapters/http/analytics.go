package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/artpar/pulse/app"
	"github.com/artpar/pulse/domain/analytics"
	"github.com/artpar/pulse/pkg/jsonapi"
	"github.com/artpar/pulse/ports"
)

// DefaultRangeDays is the dashboard range when start and end are omitted.
const DefaultRangeDays = 7

// AnalyticsHandler serves dashboard metrics, rollups and weekly reports.
type AnalyticsHandler struct {
	engine     *app.Engine
	aggregator *app.MetricsAggregator
	rollups    ports.RollupStore
	clock      ports.Clock
	logger     zerolog.Logger
}

// NewAnalyticsHandler creates an analytics handler. The aggregator and
// rollup store are optional.
func NewAnalyticsHandler(engine *app.Engine, aggregator *app.MetricsAggregator, rollups ports.RollupStore, clock ports.Clock, logger zerolog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		engine:     engine,
		aggregator: aggregator,
		rollups:    rollups,
		clock:      clock,
		logger:     logger.With().Str("handler", "analytics").Logger(),
	}
}

// Metric returns one dashboard metric.
//
//	@Summary		Get a dashboard metric
//	@Description	Computes a metric over a time range, serving cached results when fresh
//	@Tags			Analytics
//	@Produce		json
//	@Param			projectID		path		string	true	"Project ID"
//	@Param			metric			path		string	true	"overview, events, screens, users, retention, funnel or sessions"
//	@Param			start			query		string	false	"Range start (RFC3339 or YYYY-MM-DD)"
//	@Param			end				query		string	false	"Range end, exclusive (RFC3339 or YYYY-MM-DD)"
//	@Param			granularity		query		string	false	"hour, day, week or month"
//	@Param			steps			query		string	false	"Funnel steps, comma separated"
//	@Param			window_hours	query		number	false	"Funnel conversion window in hours"
//	@Param			offsets			query		string	false	"Retention day offsets, comma separated"
//	@Success		200				{object}	map[string]interface{}	"data, cached, computedAt"
//	@Failure		400				{object}	jsonapi.Document		"Invalid parameters"
//	@Failure		404				{object}	jsonapi.Document		"Unknown metric"
//	@Security		ProjectKey
//	@Router			/v1/projects/{projectID}/analytics/{metric} [get]
func (h *AnalyticsHandler) Metric(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	metric := app.Metric(chi.URLParam(r, "metric"))
	q := r.URL.Query()

	rng, perr := parseRange(q.Get("start"), q.Get("end"), h.clock.Now())
	if perr != nil {
		jsonapi.WriteError(w, *perr)
		return
	}

	var g analytics.Granularity
	if s := q.Get("granularity"); s != "" {
		parsed, err := analytics.ParseGranularity(s)
		if err != nil {
			jsonapi.WriteError(w, jsonapi.ErrInvalidParameter("granularity", err.Error()))
			return
		}
		g = parsed
	}

	ctx := r.Context()
	switch metric {
	case app.MetricOverview:
		res, err := h.engine.Overview(ctx, projectID, rng)
		writeResult(w, h.logger, res, err)
	case app.MetricEvents:
		res, err := h.engine.Events(ctx, projectID, rng, g)
		writeResult(w, h.logger, res, err)
	case app.MetricUsers:
		res, err := h.engine.Users(ctx, projectID, rng, g)
		writeResult(w, h.logger, res, err)
	case app.MetricScreens:
		res, err := h.engine.Screens(ctx, projectID, rng)
		writeResult(w, h.logger, res, err)
	case app.MetricSessions:
		res, err := h.engine.Sessions(ctx, projectID, rng, g)
		writeResult(w, h.logger, res, err)
	case app.MetricRetention:
		offsets, err := parseInts(q.Get("offsets"))
		if err != nil {
			jsonapi.WriteError(w, jsonapi.ErrInvalidParameter("offsets", err.Error()))
			return
		}
		res, err := h.engine.Retention(ctx, projectID, rng, offsets)
		writeResult(w, h.logger, res, err)
	case app.MetricFunnel:
		window := app.DefaultFunnelWindow
		if s := q.Get("window_hours"); s != "" {
			hours, err := strconv.ParseFloat(s, 64)
			if err != nil || hours <= 0 {
				jsonapi.WriteError(w, jsonapi.ErrInvalidParameter("window_hours", "window_hours must be a positive number"))
				return
			}
			window = time.Duration(hours * float64(time.Hour))
		}
		res, err := h.engine.Funnel(ctx, projectID, rng, splitList(q.Get("steps")), window)
		writeResult(w, h.logger, res, err)
	default:
		jsonapi.WriteError(w, jsonapi.ErrNotFoundWithID("metric", string(metric)))
	}
}

// Rollups lists stored rollups.
//
//	@Summary		List rollups
//	@Description	Returns pre-computed hourly, daily or weekly rollups whose start falls in the range
//	@Tags			Analytics
//	@Produce		json
//	@Param			projectID	path		string	true	"Project ID"
//	@Param			period		query		string	false	"hour, day or week (default day)"
//	@Param			start		query		string	false	"Range start"
//	@Param			end			query		string	false	"Range end"
//	@Success		200			{array}		analytics.Rollup
//	@Security		ProjectKey
//	@Router			/v1/projects/{projectID}/rollups [get]
func (h *AnalyticsHandler) Rollups(w http.ResponseWriter, r *http.Request) {
	if h.rollups == nil {
		jsonapi.WriteNotFound(w, "rollup store")
		return
	}
	q := r.URL.Query()

	period := analytics.RollupPeriod(q.Get("period"))
	switch period {
	case "":
		period = analytics.PeriodDay
	case analytics.PeriodHour, analytics.PeriodDay, analytics.PeriodWeek:
	default:
		jsonapi.WriteError(w, jsonapi.ErrInvalidParameter("period", "period must be hour, day or week"))
		return
	}

	rng, perr := parseRange(q.Get("start"), q.Get("end"), h.clock.Now())
	if perr != nil {
		jsonapi.WriteError(w, *perr)
		return
	}

	list, err := h.rollups.ListRollups(r.Context(), chi.URLParam(r, "projectID"), period, rng)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if list == nil {
		list = []analytics.Rollup{}
	}
	jsonapi.WriteJSON(w, http.StatusOK, list)
}

// WeeklyReport returns the report of one week.
//
//	@Summary		Weekly report
//	@Description	Week-over-week summary for the week starting on the given Monday (default last complete week)
//	@Tags			Analytics
//	@Produce		json
//	@Param			projectID	path		string	true	"Project ID"
//	@Param			week		query		string	false	"Week start (YYYY-MM-DD)"
//	@Success		200			{object}	analytics.WeeklyReport
//	@Security		ProjectKey
//	@Router			/v1/projects/{projectID}/reports/weekly [get]
func (h *AnalyticsHandler) WeeklyReport(w http.ResponseWriter, r *http.Request) {
	if h.aggregator == nil {
		jsonapi.WriteNotFound(w, "report")
		return
	}

	week := analytics.Align(h.clock.Now(), analytics.GranularityWeek).AddDate(0, 0, -7)
	if s := r.URL.Query().Get("week"); s != "" {
		t, err := parseTime(s)
		if err != nil {
			jsonapi.WriteError(w, jsonapi.ErrInvalidParameter("week", err.Error()))
			return
		}
		week = analytics.Align(t, analytics.GranularityWeek)
	}

	report, err := h.aggregator.WeeklyReport(r.Context(), chi.URLParam(r, "projectID"), week)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	jsonapi.WriteJSON(w, http.StatusOK, report)
}

func writeResult[T any](w http.ResponseWriter, logger zerolog.Logger, res app.AggregationResult[T], err error) {
	if err != nil {
		writeServiceError(w, logger, err)
		return
	}
	if res.Cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	jsonapi.WriteJSON(w, http.StatusOK, res)
}

// parseRange parses start and end, defaulting to the last DefaultRangeDays
// days ending now.
func parseRange(start, end string, now time.Time) (analytics.Range, *jsonapi.Error) {
	r := analytics.Range{
		Start: now.AddDate(0, 0, -DefaultRangeDays),
		End:   now,
	}
	if end != "" {
		t, err := parseTime(end)
		if err != nil {
			e := jsonapi.ErrInvalidParameter("end", err.Error())
			return r, &e
		}
		r.End = t
		if start == "" {
			r.Start = t.AddDate(0, 0, -DefaultRangeDays)
		}
	}
	if start != "" {
		t, err := parseTime(start)
		if err != nil {
			e := jsonapi.ErrInvalidParameter("start", err.Error())
			return r, &e
		}
		r.Start = t
	}
	return r, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%q is not RFC3339 or YYYY-MM-DD", s)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInts(s string) ([]int, error) {
	parts := splitList(s)
	if len(parts) == 0 {
		return nil, nil
	}
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%q is not a non-negative integer", p)
		}
		out = append(out, n)
	}
	return out, nil
}

