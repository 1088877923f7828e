// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"github.com/artpar/pulse/domain/analytics"
	"github.com/artpar/pulse/domain/event"
	"github.com/artpar/pulse/domain/export"
	"github.com/artpar/pulse/domain/key"
	"github.com/artpar/pulse/domain/report"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Hasher provides one-way hashing for API keys.
type Hasher interface {
	// Hash generates a hash from a plaintext value.
	Hash(plaintext string) ([]byte, error)

	// Compare checks if plaintext matches hash.
	Compare(hash []byte, plaintext string) bool
}

// Cache is the shared key/value store with TTL used by the rate limiter,
// the aggregation engine and the cost monitor. Components isolate themselves
// by key namespace (metric-kind:scope:identifiers).
type Cache interface {
	// Get returns the value and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// IncrBy adds delta to an integer counter and returns the new value.
	// The ttl is applied when the counter is created.
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)

	// HIncrBy adds deltas to integer hash fields, creating the hash with ttl.
	HIncrBy(ctx context.Context, key string, fields map[string]int64, ttl time.Duration) error

	// HGetAll returns every integer field of a hash (empty when missing).
	HGetAll(ctx context.Context, key string) (map[string]int64, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// -----------------------------------------------------------------------------
// Event Storage Ports
// -----------------------------------------------------------------------------

// EventSink is the storage adapter contract. Writes are batched and must
// tolerate duplicates: ingestion does not guarantee exactly-once delivery.
type EventSink interface {
	// WriteEvents persists events. An error means none may be assumed written.
	WriteEvents(ctx context.Context, events []event.Event) error

	// HealthCheck returns nil when the sink can accept writes.
	HealthCheck(ctx context.Context) error

	// Close flushes and releases resources.
	Close() error
}

// EventFilter selects raw events.
type EventFilter struct {
	ProjectID string
	Types     []event.Type // Empty means all types
	Range     analytics.Range
	Limit     int // 0 means no limit
}

// EventQuery is the read side of the durable event store.
// All ranges are half-open [Start, End).
type EventQuery interface {
	// CountDistinctUsers counts distinct non-empty user IDs.
	CountDistinctUsers(ctx context.Context, projectID string, r analytics.Range) (int, error)

	// CountEvents counts events of the given types (all when empty).
	CountEvents(ctx context.Context, projectID string, types []event.Type, r analytics.Range) (int, error)

	// CountByName groups events of type t (all when empty) by name, falling
	// back to the type for unnamed events. A limit of 0 returns every group.
	CountByName(ctx context.Context, projectID string, t event.Type, r analytics.Range, limit int) ([]analytics.NamedCount, error)

	// CountByType groups events by type.
	CountByType(ctx context.Context, projectID string, r analytics.Range) ([]analytics.NamedCount, error)

	// CountByPlatform groups events by device platform.
	CountByPlatform(ctx context.Context, projectID string, r analytics.Range) ([]analytics.NamedCount, error)

	// FirstSeen returns users whose first ever event falls inside r.
	FirstSeen(ctx context.Context, projectID string, r analytics.Range) ([]analytics.UserDay, error)

	// ActiveUserDays returns distinct (user, day) pairs for the given UTC days.
	ActiveUserDays(ctx context.Context, projectID string, days []time.Time) ([]analytics.UserDay, error)

	// StepEvents returns events whose funnel key is one of names.
	StepEvents(ctx context.Context, projectID string, names []string, r analytics.Range) ([]analytics.StepEvent, error)

	// ListEvents returns raw events ordered by timestamp.
	ListEvents(ctx context.Context, f EventFilter) ([]event.Event, error)

	// ActiveProjects returns the projects with at least one event in r.
	ActiveProjects(ctx context.Context, r analytics.Range) ([]string, error)

	// DeleteEventsBefore prunes events older than before.
	DeleteEventsBefore(ctx context.Context, before time.Time) (int64, error)
}

// RollupStore persists pre-computed rollups.
type RollupStore interface {
	// SaveRollup upserts on (project, period, start).
	SaveRollup(ctx context.Context, r analytics.Rollup) error

	// GetRollup returns one rollup or ErrNotFound.
	GetRollup(ctx context.Context, projectID string, period analytics.RollupPeriod, start time.Time) (analytics.Rollup, error)

	// ListRollups returns rollups whose start falls inside r, oldest first.
	ListRollups(ctx context.Context, projectID string, period analytics.RollupPeriod, r analytics.Range) ([]analytics.Rollup, error)

	// DeleteRollupsBefore prunes rollups that started before before.
	DeleteRollupsBefore(ctx context.Context, before time.Time) (int64, error)
}

// -----------------------------------------------------------------------------
// Export Ports
// -----------------------------------------------------------------------------

// ExportStore persists export job records.
type ExportStore interface {
	Create(ctx context.Context, r export.Record) error
	Get(ctx context.Context, id string) (export.Record, error)
	Update(ctx context.Context, r export.Record) error
	Delete(ctx context.Context, id string) error

	// ListByProject returns a project's exports, newest first.
	ListByProject(ctx context.Context, projectID string) ([]export.Record, error)

	// CountActive counts pending and processing exports of a project.
	CountActive(ctx context.Context, projectID string) (int, error)

	// ListExpired returns records whose ExpiresAt is not after now.
	ListExpired(ctx context.Context, now time.Time) ([]export.Record, error)
}

// ObjectStore holds exported files.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// Renderer encodes report data into one file format.
type Renderer interface {
	Format() export.Format
	Render(data any, tmpl report.Template, meta report.Meta) ([]byte, error)
}

// -----------------------------------------------------------------------------
// Enrichment and Auth Ports
// -----------------------------------------------------------------------------

// GeoResolver resolves public IP addresses to locations.
type GeoResolver interface {
	Lookup(ctx context.Context, ip netip.Addr) (event.Geo, error)
}

// KeyStore persists project API keys.
type KeyStore interface {
	// Get retrieves keys matching a lookup prefix.
	Get(ctx context.Context, prefix string) ([]key.Key, error)

	// Create stores a new key.
	Create(ctx context.Context, k key.Key) error

	// Revoke marks a key as revoked.
	Revoke(ctx context.Context, id string, at time.Time) error

	// ListByProject returns all keys of a project.
	ListByProject(ctx context.Context, projectID string) ([]key.Key, error)

	// UpdateLastUsed records key usage.
	UpdateLastUsed(ctx context.Context, id string, at time.Time) error
}

// -----------------------------------------------------------------------------
// Observability Ports
// -----------------------------------------------------------------------------

// Observer receives operational measurements from the services.
// Implementations must be safe for concurrent use.
type Observer interface {
	// EventsAccepted counts events placed in the ingestion buffers.
	EventsAccepted(n int)

	// EventsRejected counts events refused at ingestion, by reason.
	EventsRejected(reason string, n int)

	// Flushed reports one buffer flush. err is nil on success.
	Flushed(projectID string, events int, d time.Duration, err error)

	// CacheLookup reports a dashboard cache lookup: hit, miss or error.
	CacheLookup(metric, result string)

	// ExportFinished reports a finished export job.
	ExportFinished(format, status string, size int64)

	// JobFinished reports one scheduled job run.
	JobFinished(job string, d time.Duration, err error)
}

// NopObserver discards all measurements.
type NopObserver struct{}

func (NopObserver) EventsAccepted(int)                        {}
func (NopObserver) EventsRejected(string, int)                {}
func (NopObserver) Flushed(string, int, time.Duration, error) {}
func (NopObserver) CacheLookup(string, string)                {}
func (NopObserver) ExportFinished(string, string, int64)      {}
func (NopObserver) JobFinished(string, time.Duration, error)  {}
