package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/artpar/pulse/domain/analytics"
	"github.com/artpar/pulse/domain/event"
	"github.com/artpar/pulse/ports"
)

// Job names.
const (
	JobHourly  = "hourly"
	JobDaily   = "daily"
	JobWeekly  = "weekly"
	JobCleanup = "cleanup"
)

// ErrUnknownJob is returned by RunJob for unknown job names.
var ErrUnknownJob = errors.New("unknown job")

// ExpiredPurger deletes expired export files and records.
type ExpiredPurger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// AggregatorConfig tunes the metrics aggregator.
type AggregatorConfig struct {
	EventRetentionDays  int
	RollupRetentionDays int
}

// DefaultAggregatorConfig returns production defaults.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		EventRetentionDays:  90,
		RollupRetentionDays: 400,
	}
}

// RunSummary describes one aggregator run.
type RunSummary struct {
	Job       string                   `json:"job"`
	Range     analytics.Range          `json:"range"`
	Projects  int                      `json:"projects"`
	Failed    []string                 `json:"failed,omitempty"`
	Pruned    map[string]int64         `json:"pruned,omitempty"`
	Reports   []analytics.WeeklyReport `json:"reports,omitempty"`
	StartedAt time.Time                `json:"startedAt"`
	Duration  time.Duration            `json:"duration"`
}

// AggregatorDeps contains dependencies for the metrics aggregator.
type AggregatorDeps struct {
	Query    ports.EventQuery
	Rollups  ports.RollupStore
	Exports  ExpiredPurger // Optional
	Clock    ports.Clock
	Logger   zerolog.Logger
	Observer ports.Observer
}

// MetricsAggregator pre-computes rollups and prunes old data. It owns no
// timers; a scheduler or the CLI calls its jobs.
type MetricsAggregator struct {
	query    ports.EventQuery
	rollups  ports.RollupStore
	exports  ExpiredPurger
	clock    ports.Clock
	logger   zerolog.Logger
	observer ports.Observer
	cfg      AggregatorConfig
}

// NewMetricsAggregator creates a metrics aggregator.
func NewMetricsAggregator(deps AggregatorDeps, cfg AggregatorConfig) *MetricsAggregator {
	obs := deps.Observer
	if obs == nil {
		obs = ports.NopObserver{}
	}
	return &MetricsAggregator{
		query:    deps.Query,
		rollups:  deps.Rollups,
		exports:  deps.Exports,
		clock:    deps.Clock,
		logger:   deps.Logger.With().Str("service", "aggregator").Logger(),
		observer: obs,
		cfg:      cfg,
	}
}

// RunJob runs a job by name.
func (a *MetricsAggregator) RunJob(ctx context.Context, job string) (RunSummary, error) {
	switch job {
	case JobHourly:
		return a.AggregateHourly(ctx)
	case JobDaily:
		return a.AggregateDaily(ctx)
	case JobWeekly:
		return a.AggregateWeekly(ctx)
	case JobCleanup:
		return a.Cleanup(ctx, a.cfg.EventRetentionDays)
	default:
		return RunSummary{}, fmt.Errorf("%w: %q", ErrUnknownJob, job)
	}
}

// AggregateHourly rolls up the last complete hour.
func (a *MetricsAggregator) AggregateHourly(ctx context.Context) (RunSummary, error) {
	end := analytics.Align(a.clock.Now(), analytics.GranularityHour)
	r := analytics.Range{Start: end.Add(-time.Hour), End: end}
	return a.rollup(ctx, JobHourly, analytics.PeriodHour, r, nil)
}

// AggregateDaily rolls up the last complete UTC day.
func (a *MetricsAggregator) AggregateDaily(ctx context.Context) (RunSummary, error) {
	end := analytics.DayStart(a.clock.Now())
	r := analytics.Range{Start: end.AddDate(0, 0, -1), End: end}
	return a.rollup(ctx, JobDaily, analytics.PeriodDay, r, nil)
}

// AggregateWeekly rolls up the last complete Monday-based week and builds a
// week-over-week report for every active project.
func (a *MetricsAggregator) AggregateWeekly(ctx context.Context) (RunSummary, error) {
	end := analytics.Align(a.clock.Now(), analytics.GranularityWeek)
	r := analytics.Range{Start: end.AddDate(0, 0, -7), End: end}

	var reports []analytics.WeeklyReport
	summary, err := a.rollup(ctx, JobWeekly, analytics.PeriodWeek, r, func(ctx context.Context, cur analytics.Rollup) error {
		prev, err := a.weekRollup(ctx, cur.ProjectID, r.Previous())
		if err != nil {
			return err
		}
		reports = append(reports, analytics.BuildWeeklyReport(cur, prev))
		return nil
	})
	summary.Reports = reports
	return summary, err
}

// WeeklyReport builds the report of the week starting at weekStart from
// stored rollups, computing any that are missing.
func (a *MetricsAggregator) WeeklyReport(ctx context.Context, projectID string, weekStart time.Time) (analytics.WeeklyReport, error) {
	start := analytics.Align(weekStart, analytics.GranularityWeek)
	r := analytics.Range{Start: start, End: start.AddDate(0, 0, 7)}

	cur, err := a.weekRollup(ctx, projectID, r)
	if err != nil {
		return analytics.WeeklyReport{}, err
	}
	prev, err := a.weekRollup(ctx, projectID, r.Previous())
	if err != nil {
		return analytics.WeeklyReport{}, err
	}
	return analytics.BuildWeeklyReport(cur, prev), nil
}

// weekRollup loads a weekly rollup, computing it when none is stored.
func (a *MetricsAggregator) weekRollup(ctx context.Context, projectID string, r analytics.Range) (analytics.Rollup, error) {
	stored, err := a.rollups.GetRollup(ctx, projectID, analytics.PeriodWeek, r.Start)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, ports.ErrNotFound) {
		return analytics.Rollup{}, err
	}
	return a.Compute(ctx, projectID, analytics.PeriodWeek, r)
}

// Cleanup deletes events older than retentionDays, rollups older than the
// rollup retention and expired exports.
func (a *MetricsAggregator) Cleanup(ctx context.Context, retentionDays int) (RunSummary, error) {
	start := a.clock.Now()
	summary := RunSummary{Job: JobCleanup, StartedAt: start, Pruned: map[string]int64{}}
	if retentionDays < 1 {
		retentionDays = a.cfg.EventRetentionDays
	}

	var errs []error
	cutoff := analytics.DayStart(start).AddDate(0, 0, -retentionDays)
	summary.Range = analytics.Range{End: cutoff}
	if n, err := a.query.DeleteEventsBefore(ctx, cutoff); err != nil {
		errs = append(errs, fmt.Errorf("prune events: %w", err))
		summary.Failed = append(summary.Failed, "events")
	} else {
		summary.Pruned["events"] = n
	}

	rollupCutoff := analytics.DayStart(start).AddDate(0, 0, -a.cfg.RollupRetentionDays)
	if n, err := a.rollups.DeleteRollupsBefore(ctx, rollupCutoff); err != nil {
		errs = append(errs, fmt.Errorf("prune rollups: %w", err))
		summary.Failed = append(summary.Failed, "rollups")
	} else {
		summary.Pruned["rollups"] = n
	}

	if a.exports != nil {
		if n, err := a.exports.PurgeExpired(ctx); err != nil {
			errs = append(errs, fmt.Errorf("purge exports: %w", err))
			summary.Failed = append(summary.Failed, "exports")
		} else {
			summary.Pruned["exports"] = int64(n)
		}
	}

	err := errors.Join(errs...)
	a.finish(&summary, err)
	a.logger.Info().
		Time("cutoff", cutoff).
		Interface("pruned", summary.Pruned).
		Dur("duration", summary.Duration).
		Msg("cleanup finished")
	return summary, err
}

// rollup computes and saves one rollup per active project. Project failures
// are logged and reported in the summary; the run continues.
func (a *MetricsAggregator) rollup(ctx context.Context, job string, period analytics.RollupPeriod, r analytics.Range, after func(context.Context, analytics.Rollup) error) (RunSummary, error) {
	summary := RunSummary{Job: job, Range: r, StartedAt: a.clock.Now()}

	projects, err := a.query.ActiveProjects(ctx, r)
	if err != nil {
		err = fmt.Errorf("list active projects: %w", err)
		a.finish(&summary, err)
		return summary, err
	}
	summary.Projects = len(projects)

	for _, projectID := range projects {
		if err := ctx.Err(); err != nil {
			a.finish(&summary, err)
			return summary, err
		}
		if err := a.rollupProject(ctx, projectID, period, r, after); err != nil {
			summary.Failed = append(summary.Failed, projectID)
			a.logger.Error().Err(err).Str("job", job).Str("project_id", projectID).Msg("rollup failed")
		}
	}

	if len(summary.Failed) > 0 {
		err = fmt.Errorf("%s: %d of %d projects failed", job, len(summary.Failed), len(projects))
	}
	a.finish(&summary, err)
	a.logger.Info().
		Str("job", job).
		Int("projects", summary.Projects).
		Int("failed", len(summary.Failed)).
		Dur("duration", summary.Duration).
		Msg("rollup finished")
	return summary, err
}

func (a *MetricsAggregator) rollupProject(ctx context.Context, projectID string, period analytics.RollupPeriod, r analytics.Range, after func(context.Context, analytics.Rollup) error) error {
	ru, err := a.Compute(ctx, projectID, period, r)
	if err != nil {
		return err
	}
	if err := a.rollups.SaveRollup(ctx, ru); err != nil {
		return fmt.Errorf("save rollup: %w", err)
	}
	if after != nil {
		return after(ctx, ru)
	}
	return nil
}

// Compute derives a rollup from raw events without saving it.
func (a *MetricsAggregator) Compute(ctx context.Context, projectID string, period analytics.RollupPeriod, r analytics.Range) (analytics.Rollup, error) {
	ru := analytics.Rollup{ProjectID: projectID, Period: period, Start: r.Start, End: r.End}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		ru.ActiveUsers, err = a.query.CountDistinctUsers(gctx, projectID, r)
		return err
	})
	g.Go(func() error {
		first, err := a.query.FirstSeen(gctx, projectID, r)
		ru.NewUsers = len(first)
		return err
	})
	g.Go(func() (err error) {
		ru.Events, err = a.query.CountEvents(gctx, projectID, nil, r)
		return err
	})
	g.Go(func() (err error) {
		ru.Sessions, err = a.query.CountEvents(gctx, projectID, []event.Type{event.TypeSessionStart}, r)
		return err
	})
	g.Go(func() (err error) {
		ru.ScreenViews, err = a.query.CountEvents(gctx, projectID, []event.Type{event.TypeScreenView}, r)
		return err
	})
	g.Go(func() (err error) {
		ru.TopScreens, err = a.query.CountByName(gctx, projectID, event.TypeScreenView, r, analytics.TopN)
		return err
	})
	if err := g.Wait(); err != nil {
		return analytics.Rollup{}, fmt.Errorf("compute %s rollup: %w", period, err)
	}
	ru.ComputedAt = a.clock.Now()
	return ru, nil
}

func (a *MetricsAggregator) finish(s *RunSummary, err error) {
	s.Duration = a.clock.Now().Sub(s.StartedAt)
	a.observer.JobFinished(s.Job, s.Duration, err)
}
