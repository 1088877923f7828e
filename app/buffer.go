package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/artpar/pulse/domain/event"
	"github.com/artpar/pulse/ports"
)

// Buffer errors.
var (
	ErrBufferFull   = errors.New("event buffer full")
	ErrBufferClosed = errors.New("event buffer closed")
	ErrFlushFailed  = errors.New("flush failed")
)

// BufferConfig tunes the buffer manager.
type BufferConfig struct {
	FlushSize     int           // Flush a project once it holds this many events
	MaxBuffered   int           // Append fails beyond this many events per project
	FlushInterval time.Duration // Run flushes every project this often
	FlushTimeout  time.Duration // Deadline of one sink write
	CloseRetries  uint64        // Extra FlushAll attempts on Close
	CloseBackoff  time.Duration // Initial delay between Close attempts
}

// DefaultBufferConfig returns production defaults.
func DefaultBufferConfig() BufferConfig {
	return BufferConfig{
		FlushSize:     100,
		MaxBuffered:   10000,
		FlushInterval: 5 * time.Second,
		FlushTimeout:  10 * time.Second,
		CloseRetries:  3,
		CloseBackoff:  200 * time.Millisecond,
	}
}

// BufferManager holds accepted events per project until they are written to
// the sink. Each project has its own buffer lock, so a slow flush of one
// project never blocks appends to another, and a flush lock, so writes of
// one project never interleave.
type BufferManager struct {
	sink     ports.EventSink
	cfg      BufferConfig
	logger   zerolog.Logger
	observer ports.Observer

	mu      sync.RWMutex
	buffers map[string]*projectBuffer

	size   atomic.Int64
	closed atomic.Bool
}

type projectBuffer struct {
	mu      sync.Mutex
	events  []event.Event
	flushMu sync.Mutex
}

// NewBufferManager creates a manager writing to sink.
func NewBufferManager(sink ports.EventSink, cfg BufferConfig, logger zerolog.Logger, observer ports.Observer) *BufferManager {
	def := DefaultBufferConfig()
	if cfg.FlushSize <= 0 {
		cfg.FlushSize = def.FlushSize
	}
	if cfg.MaxBuffered <= 0 {
		cfg.MaxBuffered = def.MaxBuffered
	}
	if cfg.MaxBuffered < cfg.FlushSize {
		cfg.MaxBuffered = cfg.FlushSize
	}
	if cfg.CloseBackoff <= 0 {
		cfg.CloseBackoff = def.CloseBackoff
	}
	if observer == nil {
		observer = ports.NopObserver{}
	}
	return &BufferManager{
		sink:     sink,
		cfg:      cfg,
		logger:   logger.With().Str("service", "buffer").Logger(),
		observer: observer,
		buffers:  make(map[string]*projectBuffer),
	}
}

func (m *BufferManager) buffer(projectID string) *projectBuffer {
	m.mu.RLock()
	b, ok := m.buffers[projectID]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok = m.buffers[projectID]; !ok {
		b = &projectBuffer{}
		m.buffers[projectID] = b
	}
	return b
}

// Append adds events to the project's buffer and flushes it once it reaches
// the flush size. It fails with ErrBufferFull, leaving the buffer unchanged,
// when the events would exceed the per-project cap. A failed size-triggered
// flush keeps the events buffered and returns an error wrapping
// ErrFlushFailed; the events are still accepted.
func (m *BufferManager) Append(ctx context.Context, projectID string, events []event.Event) error {
	if m.closed.Load() {
		return ErrBufferClosed
	}
	if len(events) == 0 {
		return nil
	}

	b := m.buffer(projectID)
	b.mu.Lock()
	if len(b.events)+len(events) > m.cfg.MaxBuffered {
		held := len(b.events)
		b.mu.Unlock()
		return fmt.Errorf("%w: project %s holds %d events", ErrBufferFull, projectID, held)
	}
	b.events = append(b.events, events...)
	full := len(b.events) >= m.cfg.FlushSize
	b.mu.Unlock()
	m.size.Add(int64(len(events)))

	if !full {
		return nil
	}
	if _, err := m.flush(ctx, projectID, b); err != nil {
		return fmt.Errorf("%w: %w", ErrFlushFailed, err)
	}
	return nil
}

// Flush writes the project's buffered events and returns how many were
// written. On failure the events are put back in front of the buffer.
func (m *BufferManager) Flush(ctx context.Context, projectID string) (int, error) {
	m.mu.RLock()
	b, ok := m.buffers[projectID]
	m.mu.RUnlock()
	if !ok {
		return 0, nil
	}
	return m.flush(ctx, projectID, b)
}

// FlushAll flushes every project concurrently. Failures are joined.
func (m *BufferManager) FlushAll(ctx context.Context) (int, error) {
	projects := m.Projects()

	var (
		g       errgroup.Group
		flushed atomic.Int64
		mu      sync.Mutex
		errs    []error
	)
	g.SetLimit(8)
	for _, id := range projects {
		id := id
		g.Go(func() error {
			n, err := m.Flush(ctx, id)
			flushed.Add(int64(n))
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("project %s: %w", id, err))
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return int(flushed.Load()), errors.Join(errs...)
}

func (m *BufferManager) flush(ctx context.Context, projectID string, b *projectBuffer) (int, error) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	batch := b.events
	b.events = nil
	b.mu.Unlock()
	if len(batch) == 0 {
		return 0, nil
	}

	if m.cfg.FlushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.FlushTimeout)
		defer cancel()
	}

	start := time.Now()
	err := m.sink.WriteEvents(ctx, batch)
	m.observer.Flushed(projectID, len(batch), time.Since(start), err)
	if err != nil {
		b.mu.Lock()
		b.events = append(batch, b.events...)
		b.mu.Unlock()
		m.logger.Error().Err(err).
			Str("project_id", projectID).
			Int("events", len(batch)).
			Msg("flush failed, events kept in buffer")
		return 0, err
	}

	m.size.Add(-int64(len(batch)))
	m.logger.Debug().
		Str("project_id", projectID).
		Int("events", len(batch)).
		Dur("duration", time.Since(start)).
		Msg("buffer flushed")
	return len(batch), nil
}

// Run flushes every project each FlushInterval until ctx is done.
func (m *BufferManager) Run(ctx context.Context) {
	if m.cfg.FlushInterval <= 0 {
		return
	}
	ticker := time.NewTicker(m.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.FlushAll(ctx); err != nil && ctx.Err() == nil {
				m.logger.Warn().Err(err).Msg("periodic flush incomplete")
			}
		}
	}
}

// Close stops accepting events, flushes everything with retries and closes
// the sink. Events that still cannot be written are reported as lost.
func (m *BufferManager) Close(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = m.cfg.CloseBackoff
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, m.cfg.CloseRetries), ctx)

	var flushed int
	flushErr := backoff.Retry(func() error {
		n, err := m.FlushAll(ctx)
		flushed += n
		return err
	}, policy)
	if flushErr != nil {
		m.logger.Error().Err(flushErr).
			Int64("lost_events", m.size.Load()).
			Msg("shutdown flush failed")
	} else {
		m.logger.Info().Int("events", flushed).Msg("buffers drained")
	}

	return errors.Join(flushErr, m.sink.Close())
}

// Len returns the number of buffered events across all projects.
func (m *BufferManager) Len() int {
	return int(m.size.Load())
}

// ProjectLen returns the number of buffered events of one project.
func (m *BufferManager) ProjectLen(projectID string) int {
	m.mu.RLock()
	b, ok := m.buffers[projectID]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Projects returns the IDs of projects that have a buffer, sorted.
func (m *BufferManager) Projects() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.buffers))
	for id := range m.buffers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
