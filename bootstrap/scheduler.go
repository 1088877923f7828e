package bootstrap

import (
	"context"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/artpar/pulse/app"
)

// JobRunner runs a named aggregation job.
type JobRunner interface {
	RunJob(ctx context.Context, job string) (app.RunSummary, error)
}

// ScheduledJob describes one registered job.
type ScheduledJob struct {
	Job  string
	Spec string
	Next time.Time
}

// Scheduler runs aggregation jobs on cron specs in UTC. A job that is still
// running when its next tick fires is skipped.
type Scheduler struct {
	cron   *cron.Cron
	runner JobRunner
	logger zerolog.Logger
	specs  map[cron.EntryID]ScheduledJob
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(runner JobRunner, logger zerolog.Logger) *Scheduler {
	logger = logger.With().Str("component", "scheduler").Logger()
	cl := cronLogger{logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner: runner,
		logger: logger,
		specs:  make(map[cron.EntryID]ScheduledJob),
	}
}

// Add registers job on a standard five-field cron spec.
func (s *Scheduler) Add(job, spec string) error {
	id, err := s.cron.AddFunc(spec, func() { s.run(job) })
	if err != nil {
		return err
	}
	s.specs[id] = ScheduledJob{Job: job, Spec: spec}
	return nil
}

func (s *Scheduler) run(job string) {
	start := time.Now()
	summary, err := s.runner.RunJob(context.Background(), job)
	if err != nil {
		s.logger.Error().Err(err).Str("job", job).
			Strs("failed", summary.Failed).
			Dur("duration", time.Since(start)).
			Msg("scheduled job failed")
		return
	}
	s.logger.Info().Str("job", job).
		Int("projects", summary.Projects).
		Dur("duration", time.Since(start)).
		Msg("scheduled job finished")
}

// Start begins firing jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs or ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn().Msg("scheduled jobs still running at shutdown")
	}
}

// Entries lists registered jobs ordered by name. Next is zero until the
// scheduler has started.
func (s *Scheduler) Entries() []ScheduledJob {
	var out []ScheduledJob
	for _, e := range s.cron.Entries() {
		j, ok := s.specs[e.ID]
		if !ok {
			continue
		}
		j.Next = e.Next
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Job < out[k].Job })
	return out
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
