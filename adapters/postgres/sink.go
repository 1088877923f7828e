// Package postgres provides a PostgreSQL event sink that mirrors raw events
// into a warehouse table.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/artpar/pulse/domain/event"
	"github.com/artpar/pulse/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	project_id  TEXT        NOT NULL,
	id          TEXT        NOT NULL,
	type        TEXT        NOT NULL,
	name        TEXT        NOT NULL DEFAULT '',
	user_id     TEXT        NOT NULL DEFAULT '',
	session_id  TEXT        NOT NULL,
	ts          TIMESTAMPTZ NOT NULL,
	received_at TIMESTAMPTZ,
	platform    TEXT        NOT NULL DEFAULT 'unknown',
	properties  JSONB       NOT NULL DEFAULT '{}',
	device      JSONB,
	geo         JSONB,
	meta        JSONB,
	PRIMARY KEY (project_id, id)
);
CREATE INDEX IF NOT EXISTS idx_events_project_ts ON events (project_id, ts);
`

// Sink implements ports.EventSink on PostgreSQL.
type Sink struct {
	db *sql.DB
}

// Open connects to dsn and ensures the events table exists.
func Open(ctx context.Context, dsn string) (*Sink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Sink{db: db}, nil
}

// WriteEvents inserts a batch in one transaction, skipping known events.
func (s *Sink) WriteEvents(ctx context.Context, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (
			project_id, id, type, name, user_id, session_id, ts, received_at,
			platform, properties, device, geo, meta
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (project_id, id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		props, err := json.Marshal(orEmpty(e.Properties))
		if err != nil {
			return fmt.Errorf("event %s: encode properties: %w", e.ID, err)
		}
		device, err := jsonb(e.Device)
		if err != nil {
			return fmt.Errorf("event %s: %w", e.ID, err)
		}
		geo, err := jsonb(e.Geo)
		if err != nil {
			return fmt.Errorf("event %s: %w", e.ID, err)
		}
		meta, err := jsonb(e.Meta)
		if err != nil {
			return fmt.Errorf("event %s: %w", e.ID, err)
		}

		_, err = stmt.ExecContext(ctx,
			e.ProjectID, e.ID, string(e.Type), e.Name, e.UserID, e.SessionID,
			e.Timestamp.UTC(), nullTime(e.ReceivedAt), e.Platform(),
			string(props), device, geo, meta,
		)
		if err != nil {
			return fmt.Errorf("insert event %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// HealthCheck pings the server.
func (s *Sink) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *Sink) Close() error {
	return s.db.Close()
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func jsonb[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

var _ ports.EventSink = (*Sink)(nil)
