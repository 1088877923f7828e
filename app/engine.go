package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/artpar/pulse/domain/analytics"
	"github.com/artpar/pulse/domain/event"
	"github.com/artpar/pulse/ports"
)

// ErrInvalidFunnel is returned for funnels without steps.
var ErrInvalidFunnel = errors.New("funnel needs at least one step")

// DefaultFunnelWindow is used when no funnel window is given.
const DefaultFunnelWindow = 24 * time.Hour

// Metric names one cached dashboard computation.
type Metric string

const (
	MetricOverview  Metric = "overview"
	MetricEvents    Metric = "events"
	MetricUsers     Metric = "users"
	MetricScreens   Metric = "screens"
	MetricSessions  Metric = "sessions"
	MetricFunnel    Metric = "funnel"
	MetricRetention Metric = "retention"
)

// CachePolicies maps each metric to the lifetime of its cached result.
var CachePolicies = map[Metric]time.Duration{
	MetricOverview:  5 * time.Minute,
	MetricEvents:    5 * time.Minute,
	MetricUsers:     5 * time.Minute,
	MetricScreens:   10 * time.Minute,
	MetricSessions:  10 * time.Minute,
	MetricFunnel:    10 * time.Minute,
	MetricRetention: time.Hour,
}

// AggregationResult wraps a computed metric with its cache provenance.
type AggregationResult[T any] struct {
	Data       T         `json:"data"`
	Cached     bool      `json:"cached"`
	ComputedAt time.Time `json:"computedAt"`
}

type cacheEntry[T any] struct {
	Data       T         `json:"data"`
	ComputedAt time.Time `json:"computedAt"`
}

// Engine computes dashboard metrics from the event store, caching every
// result in the shared cache. The cache is an optimisation only: lookup and
// store failures are logged and the metric is computed from storage.
type Engine struct {
	query       ports.EventQuery
	cache       ports.Cache
	clock       ports.Clock
	logger      zerolog.Logger
	observer    ports.Observer
	seriesLimit int
}

// EngineDeps contains dependencies for the aggregation engine.
type EngineDeps struct {
	Query    ports.EventQuery
	Cache    ports.Cache
	Clock    ports.Clock
	Logger   zerolog.Logger
	Observer ports.Observer
}

// NewEngine creates an aggregation engine.
func NewEngine(deps EngineDeps) *Engine {
	obs := deps.Observer
	if obs == nil {
		obs = ports.NopObserver{}
	}
	return &Engine{
		query:       deps.Query,
		cache:       deps.Cache,
		clock:       deps.Clock,
		logger:      deps.Logger.With().Str("service", "engine").Logger(),
		observer:    obs,
		seriesLimit: 8,
	}
}

// CacheKey builds analytics:{metric}:{project}:{start}:{end}:{granularity}[:{extra}].
// The range must already be normalised.
func CacheKey(metric Metric, projectID string, r analytics.Range, g analytics.Granularity, extra string) string {
	var b strings.Builder
	b.WriteString("analytics:")
	b.WriteString(string(metric))
	b.WriteByte(':')
	b.WriteString(projectID)
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(r.Start.Unix(), 10))
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(r.End.Unix(), 10))
	b.WriteByte(':')
	b.WriteString(string(g))
	if extra != "" {
		b.WriteByte(':')
		b.WriteString(extra)
	}
	return b.String()
}

// cached returns the cached value under key or computes and stores it.
func cached[T any](ctx context.Context, e *Engine, metric Metric, key string, compute func(context.Context) (T, error)) (AggregationResult[T], error) {
	raw, ok, err := e.cache.Get(ctx, key)
	switch {
	case err != nil:
		e.observer.CacheLookup(string(metric), "error")
		e.logger.Warn().Err(err).Str("key", key).Msg("cache read failed, computing")
	case ok:
		var entry cacheEntry[T]
		if err := json.Unmarshal(raw, &entry); err == nil {
			e.observer.CacheLookup(string(metric), "hit")
			return AggregationResult[T]{Data: entry.Data, Cached: true, ComputedAt: entry.ComputedAt}, nil
		}
		e.observer.CacheLookup(string(metric), "error")
		e.logger.Warn().Str("key", key).Msg("cache entry undecodable, computing")
	default:
		e.observer.CacheLookup(string(metric), "miss")
	}

	data, err := compute(ctx)
	if err != nil {
		return AggregationResult[T]{}, fmt.Errorf("compute %s: %w", metric, err)
	}
	entry := cacheEntry[T]{Data: data, ComputedAt: e.clock.Now()}

	if payload, err := json.Marshal(entry); err != nil {
		e.logger.Warn().Err(err).Str("key", key).Msg("cache encode failed")
	} else if err := e.cache.Set(ctx, key, payload, CachePolicies[metric]); err != nil {
		e.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return AggregationResult[T]{Data: data, ComputedAt: entry.ComputedAt}, nil
}

func prepare(r analytics.Range) (analytics.Range, error) {
	r = r.Normalize()
	if err := r.Validate(); err != nil {
		return analytics.Range{}, err
	}
	return r, nil
}

// Overview returns headline metrics for r with trends against the
// equal-length previous period.
func (e *Engine) Overview(ctx context.Context, projectID string, r analytics.Range) (AggregationResult[analytics.Overview], error) {
	r, err := prepare(r)
	if err != nil {
		return AggregationResult[analytics.Overview]{}, err
	}
	key := CacheKey(MetricOverview, projectID, r, analytics.GranularityDay, "")
	return cached(ctx, e, MetricOverview, key, func(ctx context.Context) (analytics.Overview, error) {
		return e.computeOverview(ctx, projectID, r)
	})
}

func (e *Engine) computeOverview(ctx context.Context, projectID string, r analytics.Range) (analytics.Overview, error) {
	prev := r.Previous()
	mau := func(end time.Time) analytics.Range {
		return analytics.Range{Start: end.Add(-analytics.MAUWindow), End: end}
	}

	var (
		dau, dauPrev, mauCur, mauPrev   int
		sessions, sessionsPrev          int
		views, viewsPrev                int
		topScreens, topEvents, platform []analytics.NamedCount
	)
	sessionTypes := []event.Type{event.TypeSessionStart}
	viewTypes := []event.Type{event.TypeScreenView}

	g, ctx := errgroup.WithContext(ctx)
	count := func(dst *int, fn func() (int, error)) {
		g.Go(func() error {
			n, err := fn()
			*dst = n
			return err
		})
	}
	count(&dau, func() (int, error) { return e.query.CountDistinctUsers(ctx, projectID, r) })
	count(&dauPrev, func() (int, error) { return e.query.CountDistinctUsers(ctx, projectID, prev) })
	count(&mauCur, func() (int, error) { return e.query.CountDistinctUsers(ctx, projectID, mau(r.End)) })
	count(&mauPrev, func() (int, error) { return e.query.CountDistinctUsers(ctx, projectID, mau(prev.End)) })
	count(&sessions, func() (int, error) { return e.query.CountEvents(ctx, projectID, sessionTypes, r) })
	count(&sessionsPrev, func() (int, error) { return e.query.CountEvents(ctx, projectID, sessionTypes, prev) })
	count(&views, func() (int, error) { return e.query.CountEvents(ctx, projectID, viewTypes, r) })
	count(&viewsPrev, func() (int, error) { return e.query.CountEvents(ctx, projectID, viewTypes, prev) })
	g.Go(func() (err error) {
		topScreens, err = e.query.CountByName(ctx, projectID, event.TypeScreenView, r, analytics.TopN)
		return err
	})
	g.Go(func() (err error) {
		topEvents, err = e.query.CountByName(ctx, projectID, event.TypeCustom, r, analytics.TopN)
		return err
	})
	g.Go(func() (err error) {
		platform, err = e.query.CountByPlatform(ctx, projectID, r)
		return err
	})
	if err := g.Wait(); err != nil {
		return analytics.Overview{}, err
	}

	return analytics.Overview{
		Range:       r,
		DAU:         analytics.NewTrend(float64(dau), float64(dauPrev)),
		MAU:         analytics.NewTrend(float64(mauCur), float64(mauPrev)),
		Sessions:    analytics.NewTrend(float64(sessions), float64(sessionsPrev)),
		ScreenViews: analytics.NewTrend(float64(views), float64(viewsPrev)),
		TopScreens:  topScreens,
		TopEvents:   topEvents,
		Platforms:   platform,
	}, nil
}

// Users returns a distinct-user series: DAU per day, or MAU per month when
// g is month. Other granularities bucket accordingly.
func (e *Engine) Users(ctx context.Context, projectID string, r analytics.Range, g analytics.Granularity) (AggregationResult[analytics.UserSeries], error) {
	r, err := prepare(r)
	if err != nil {
		return AggregationResult[analytics.UserSeries]{}, err
	}
	if g == "" {
		g = analytics.GranularityDay
	}
	key := CacheKey(MetricUsers, projectID, r, g, "")
	return cached(ctx, e, MetricUsers, key, func(ctx context.Context) (analytics.UserSeries, error) {
		points, err := e.series(ctx, r, g, func(ctx context.Context, b analytics.Range) (int, error) {
			return e.query.CountDistinctUsers(ctx, projectID, b)
		})
		if err != nil {
			return analytics.UserSeries{}, err
		}
		total, err := e.query.CountDistinctUsers(ctx, projectID, r)
		if err != nil {
			return analytics.UserSeries{}, err
		}
		newUsers, err := e.query.FirstSeen(ctx, projectID, r)
		if err != nil {
			return analytics.UserSeries{}, err
		}
		return analytics.UserSeries{Granularity: g, Points: points, Total: total, NewUsers: len(newUsers)}, nil
	})
}

// Events returns event counts by name and type with a volume series.
func (e *Engine) Events(ctx context.Context, projectID string, r analytics.Range, g analytics.Granularity) (AggregationResult[analytics.EventStats], error) {
	r, err := prepare(r)
	if err != nil {
		return AggregationResult[analytics.EventStats]{}, err
	}
	if g == "" {
		g = analytics.GranularityDay
	}
	key := CacheKey(MetricEvents, projectID, r, g, "")
	return cached(ctx, e, MetricEvents, key, func(ctx context.Context) (analytics.EventStats, error) {
		stats := analytics.EventStats{Granularity: g}

		grp, gctx := errgroup.WithContext(ctx)
		grp.Go(func() (err error) {
			stats.Total, err = e.query.CountEvents(gctx, projectID, nil, r)
			return err
		})
		grp.Go(func() (err error) {
			stats.ByName, err = e.query.CountByName(gctx, projectID, "", r, 0)
			return err
		})
		grp.Go(func() (err error) {
			stats.ByType, err = e.query.CountByType(gctx, projectID, r)
			return err
		})
		grp.Go(func() (err error) {
			stats.Series, err = e.series(gctx, r, g, func(ctx context.Context, b analytics.Range) (int, error) {
				return e.query.CountEvents(ctx, projectID, nil, b)
			})
			return err
		})
		if err := grp.Wait(); err != nil {
			return analytics.EventStats{}, err
		}
		return stats, nil
	})
}

// Screens returns per-screen statistics, most viewed first.
func (e *Engine) Screens(ctx context.Context, projectID string, r analytics.Range) (AggregationResult[[]analytics.ScreenStats], error) {
	r, err := prepare(r)
	if err != nil {
		return AggregationResult[[]analytics.ScreenStats]{}, err
	}
	key := CacheKey(MetricScreens, projectID, r, analytics.GranularityDay, "")
	return cached(ctx, e, MetricScreens, key, func(ctx context.Context) ([]analytics.ScreenStats, error) {
		events, err := e.query.ListEvents(ctx, ports.EventFilter{
			ProjectID: projectID,
			Types:     []event.Type{event.TypeScreenView},
			Range:     r,
		})
		if err != nil {
			return nil, err
		}
		return analytics.BuildScreenStats(events), nil
	})
}

// Sessions returns session statistics with a per-bucket session series.
func (e *Engine) Sessions(ctx context.Context, projectID string, r analytics.Range, g analytics.Granularity) (AggregationResult[analytics.SessionStats], error) {
	r, err := prepare(r)
	if err != nil {
		return AggregationResult[analytics.SessionStats]{}, err
	}
	if g == "" {
		g = analytics.GranularityDay
	}
	key := CacheKey(MetricSessions, projectID, r, g, "")
	return cached(ctx, e, MetricSessions, key, func(ctx context.Context) (analytics.SessionStats, error) {
		events, err := e.query.ListEvents(ctx, ports.EventFilter{
			ProjectID: projectID,
			Types:     []event.Type{event.TypeSessionStart, event.TypeSessionEnd},
			Range:     r,
		})
		if err != nil {
			return analytics.SessionStats{}, err
		}
		return analytics.BuildSessionStats(events, analytics.Buckets(r, g)), nil
	})
}

// Retention returns day-N retention for every daily cohort first seen in r.
func (e *Engine) Retention(ctx context.Context, projectID string, r analytics.Range, offsets []int) (AggregationResult[analytics.Retention], error) {
	r, err := prepare(r)
	if err != nil {
		return AggregationResult[analytics.Retention]{}, err
	}
	if len(offsets) == 0 {
		offsets = analytics.DefaultRetentionOffsets
	}
	key := CacheKey(MetricRetention, projectID, r, analytics.GranularityDay, joinInts(offsets))
	return cached(ctx, e, MetricRetention, key, func(ctx context.Context) (analytics.Retention, error) {
		firstSeen, err := e.query.FirstSeen(ctx, projectID, cohortRange(r))
		if err != nil {
			return analytics.Retention{}, err
		}

		seen := make(map[time.Time]bool)
		var cohortDays []time.Time
		for _, fs := range firstSeen {
			d := analytics.DayStart(fs.Day)
			if !seen[d] {
				seen[d] = true
				cohortDays = append(cohortDays, d)
			}
		}

		active, err := e.query.ActiveUserDays(ctx, projectID, analytics.RetentionDays(cohortDays, offsets))
		if err != nil {
			return analytics.Retention{}, err
		}
		return analytics.BuildRetention(firstSeen, active, offsets), nil
	})
}

// cohortRange widens r to whole UTC days so the first and last cohorts hold
// everyone first seen on those days.
func cohortRange(r analytics.Range) analytics.Range {
	return analytics.Range{
		Start: analytics.DayStart(r.Start),
		End:   analytics.DayStart(r.End.Add(-time.Nanosecond)).AddDate(0, 0, 1),
	}
}

// Funnel returns conversion through steps, each reached within window of
// the previous one.
func (e *Engine) Funnel(ctx context.Context, projectID string, r analytics.Range, steps []string, window time.Duration) (AggregationResult[analytics.Funnel], error) {
	r, err := prepare(r)
	if err != nil {
		return AggregationResult[analytics.Funnel]{}, err
	}
	steps = trimSteps(steps)
	if len(steps) == 0 {
		return AggregationResult[analytics.Funnel]{}, ErrInvalidFunnel
	}
	if window <= 0 {
		window = DefaultFunnelWindow
	}
	extra := strings.Join(steps, ",") + "|" + strconv.FormatFloat(window.Hours(), 'f', -1, 64)
	key := CacheKey(MetricFunnel, projectID, r, analytics.GranularityDay, extra)
	return cached(ctx, e, MetricFunnel, key, func(ctx context.Context) (analytics.Funnel, error) {
		events, err := e.query.StepEvents(ctx, projectID, uniqueStrings(steps), r)
		if err != nil {
			return analytics.Funnel{}, err
		}
		return analytics.BuildFunnel(events, steps, window), nil
	})
}

// series evaluates fn for every g-bucket of r with bounded concurrency.
func (e *Engine) series(ctx context.Context, r analytics.Range, g analytics.Granularity, fn func(context.Context, analytics.Range) (int, error)) ([]analytics.Point, error) {
	buckets := analytics.Buckets(r, g)
	points := make([]analytics.Point, len(buckets))

	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(e.seriesLimit)
	for i, b := range buckets {
		i, b := i, b
		grp.Go(func() error {
			n, err := fn(ctx, analytics.Range{Start: b.Start, End: b.End})
			if err != nil {
				return err
			}
			points[i] = analytics.Point{Time: b.Start, Value: n}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}

func trimSteps(steps []string) []string {
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func joinInts(in []int) string {
	parts := make([]string, len(in))
	for i, n := range in {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
