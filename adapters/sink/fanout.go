// Package sink combines event sinks.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/artpar/pulse/domain/event"
	"github.com/artpar/pulse/ports"
)

// Named pairs a sink with the name used in logs.
type Named struct {
	Name string
	Sink ports.EventSink
}

// FanOut writes every batch to a primary sink and to mirrors concurrently.
// A write succeeds only when every sink accepted it. Sinks deduplicate on
// event ID, so retrying a partially failed batch is safe.
type FanOut struct {
	primary Named
	mirrors []Named
	logger  zerolog.Logger
}

// NewFanOut creates a fan-out sink.
func NewFanOut(logger zerolog.Logger, primary Named, mirrors ...Named) *FanOut {
	return &FanOut{
		primary: primary,
		mirrors: mirrors,
		logger:  logger.With().Str("component", "sink").Logger(),
	}
}

// WriteEvents writes to all sinks and waits for them.
func (f *FanOut) WriteEvents(ctx context.Context, events []event.Event) error {
	if len(f.mirrors) == 0 {
		return f.primary.Sink.WriteEvents(ctx, events)
	}

	sinks := f.all()
	errs := make([]error, len(sinks))
	var g errgroup.Group
	for i, s := range sinks {
		i, s := i, s
		g.Go(func() error {
			if err := s.Sink.WriteEvents(ctx, events); err != nil {
				f.logger.Warn().Err(err).
					Str("sink", s.Name).
					Int("events", len(events)).
					Msg("sink write failed")
				errs[i] = fmt.Errorf("%s: %w", s.Name, err)
			}
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}

// HealthCheck reports every unhealthy sink.
func (f *FanOut) HealthCheck(ctx context.Context) error {
	var errs []error
	for _, s := range f.all() {
		if err := s.Sink.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (f *FanOut) Close() error {
	var errs []error
	for _, s := range f.all() {
		if err := s.Sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (f *FanOut) all() []Named {
	return append([]Named{f.primary}, f.mirrors...)
}

var _ ports.EventSink = (*FanOut)(nil)
