package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/pulse/domain/analytics"
	"github.com/artpar/pulse/domain/event"
	"github.com/artpar/pulse/ports"
)

const dayMillis = int64(24 * time.Hour / time.Millisecond)

// keyExpr is the funnel key: the event name, or its type when unnamed.
const keyExpr = "CASE WHEN name != '' THEN name ELSE type END"

// EventStore implements ports.EventSink and ports.EventQuery using SQLite.
// Event timestamps are stored as UTC unix milliseconds.
type EventStore struct {
	db *DB
}

// NewEventStore creates a new SQLite event store.
func NewEventStore(db *DB) *EventStore {
	return &EventStore{db: db}
}

// WriteEvents inserts a batch in one transaction. Events already stored
// under the same (project, id) are skipped.
func (s *EventStore) WriteEvents(ctx context.Context, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO events (
			project_id, id, type, name, user_id, session_id, ts, received_at,
			platform, properties, device, geo, meta
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		props, err := marshalProps(e.Properties)
		if err != nil {
			return fmt.Errorf("event %s: %w", e.ID, err)
		}
		device, err := nullJSON(e.Device)
		if err != nil {
			return fmt.Errorf("event %s: %w", e.ID, err)
		}
		geo, err := nullJSON(e.Geo)
		if err != nil {
			return fmt.Errorf("event %s: %w", e.ID, err)
		}
		meta, err := nullJSON(e.Meta)
		if err != nil {
			return fmt.Errorf("event %s: %w", e.ID, err)
		}

		_, err = stmt.ExecContext(ctx,
			e.ProjectID, e.ID, string(e.Type), e.Name, e.UserID, e.SessionID,
			toMillis(e.Timestamp), toMillis(e.ReceivedAt), e.Platform(),
			props, device, geo, meta,
		)
		if err != nil {
			return fmt.Errorf("insert event %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// HealthCheck pings the database.
func (s *EventStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close checkpoints the write-ahead log. The DB itself is closed by its owner.
func (s *EventStore) Close() error {
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// CountDistinctUsers counts distinct identified users in r.
func (s *EventStore) CountDistinctUsers(ctx context.Context, projectID string, r analytics.Range) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT user_id) FROM events
		WHERE project_id = ? AND ts >= ? AND ts < ? AND user_id != ''
	`, projectID, toMillis(r.Start), toMillis(r.End)).Scan(&n)
	return n, err
}

// CountEvents counts events of the given types in r.
func (s *EventStore) CountEvents(ctx context.Context, projectID string, types []event.Type, r analytics.Range) (int, error) {
	query := `SELECT COUNT(*) FROM events WHERE project_id = ? AND ts >= ? AND ts < ?`
	args := []any{projectID, toMillis(r.Start), toMillis(r.End)}
	query, args = withTypes(query, args, types)

	var n int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// CountByName groups events by funnel key, largest first.
func (s *EventStore) CountByName(ctx context.Context, projectID string, t event.Type, r analytics.Range, limit int) ([]analytics.NamedCount, error) {
	query := `SELECT ` + keyExpr + ` AS k, COUNT(*) AS c FROM events WHERE project_id = ? AND ts >= ? AND ts < ?`
	args := []any{projectID, toMillis(r.Start), toMillis(r.End)}
	if t != "" {
		query += ` AND type = ?`
		args = append(args, string(t))
	}
	query += ` GROUP BY k ORDER BY c DESC, k ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.namedCounts(ctx, query, args...)
}

// CountByType groups events by type.
func (s *EventStore) CountByType(ctx context.Context, projectID string, r analytics.Range) ([]analytics.NamedCount, error) {
	return s.namedCounts(ctx, `
		SELECT type, COUNT(*) AS c FROM events
		WHERE project_id = ? AND ts >= ? AND ts < ?
		GROUP BY type ORDER BY c DESC, type ASC
	`, projectID, toMillis(r.Start), toMillis(r.End))
}

// CountByPlatform groups events by normalised platform.
func (s *EventStore) CountByPlatform(ctx context.Context, projectID string, r analytics.Range) ([]analytics.NamedCount, error) {
	return s.namedCounts(ctx, `
		SELECT platform, COUNT(*) AS c FROM events
		WHERE project_id = ? AND ts >= ? AND ts < ?
		GROUP BY platform ORDER BY c DESC, platform ASC
	`, projectID, toMillis(r.Start), toMillis(r.End))
}

func (s *EventStore) namedCounts(ctx context.Context, query string, args ...any) ([]analytics.NamedCount, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []analytics.NamedCount
	for rows.Next() {
		var nc analytics.NamedCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, err
		}
		out = append(out, nc)
	}
	return out, rows.Err()
}

// FirstSeen returns users whose earliest event in the project falls inside r.
func (s *EventStore) FirstSeen(ctx context.Context, projectID string, r analytics.Range) ([]analytics.UserDay, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, MIN(ts) AS first_ts FROM events
		WHERE project_id = ? AND user_id != '' AND ts < ?
		GROUP BY user_id
		HAVING first_ts >= ?
		ORDER BY first_ts, user_id
	`, projectID, toMillis(r.End), toMillis(r.Start))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []analytics.UserDay
	for rows.Next() {
		var (
			userID string
			first  int64
		)
		if err := rows.Scan(&userID, &first); err != nil {
			return nil, err
		}
		out = append(out, analytics.UserDay{UserID: userID, Day: analytics.DayStart(fromMillis(first))})
	}
	return out, rows.Err()
}

// ActiveUserDays returns the distinct users active on each of days.
func (s *EventStore) ActiveUserDays(ctx context.Context, projectID string, days []time.Time) ([]analytics.UserDay, error) {
	if len(days) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(days))
	args := []any{projectID}
	for i, d := range days {
		placeholders[i] = "?"
		args = append(args, toMillis(analytics.DayStart(d))/dayMillis)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT user_id, ts / `+fmt.Sprint(dayMillis)+` AS day FROM events
		WHERE project_id = ? AND user_id != ''
		AND ts / `+fmt.Sprint(dayMillis)+` IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY day, user_id
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []analytics.UserDay
	for rows.Next() {
		var (
			userID string
			day    int64
		)
		if err := rows.Scan(&userID, &day); err != nil {
			return nil, err
		}
		out = append(out, analytics.UserDay{UserID: userID, Day: fromMillis(day * dayMillis)})
	}
	return out, rows.Err()
}

// StepEvents returns identified events whose funnel key is one of names.
func (s *EventStore) StepEvents(ctx context.Context, projectID string, names []string, r analytics.Range) ([]analytics.StepEvent, error) {
	if len(names) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(names))
	args := []any{projectID, toMillis(r.Start), toMillis(r.End)}
	for i, n := range names {
		placeholders[i] = "?"
		args = append(args, n)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, `+keyExpr+`, ts FROM events
		WHERE project_id = ? AND ts >= ? AND ts < ? AND user_id != ''
		AND `+keyExpr+` IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY ts, id
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []analytics.StepEvent
	for rows.Next() {
		var (
			se analytics.StepEvent
			ts int64
		)
		if err := rows.Scan(&se.UserID, &se.Name, &ts); err != nil {
			return nil, err
		}
		se.Timestamp = fromMillis(ts)
		out = append(out, se)
	}
	return out, rows.Err()
}

// ListEvents returns raw events ordered by timestamp.
func (s *EventStore) ListEvents(ctx context.Context, f ports.EventFilter) ([]event.Event, error) {
	query := `
		SELECT project_id, id, type, name, user_id, session_id, ts, received_at,
			properties, device, geo, meta
		FROM events WHERE project_id = ? AND ts >= ? AND ts < ?`
	args := []any{f.ProjectID, toMillis(f.Range.Start), toMillis(f.Range.End)}
	query, args = withTypes(query, args, f.Types)
	query += ` ORDER BY ts, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ActiveProjects returns projects with at least one event in r.
func (s *EventStore) ActiveProjects(ctx context.Context, r analytics.Range) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT project_id FROM events
		WHERE ts >= ? AND ts < ?
		ORDER BY project_id
	`, toMillis(r.Start), toMillis(r.End))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// DeleteEventsBefore prunes events older than before.
func (s *EventStore) DeleteEventsBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE ts < ?`, toMillis(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func withTypes(query string, args []any, types []event.Type) (string, []any) {
	if len(types) == 0 {
		return query, args
	}
	placeholders := make([]string, len(types))
	for i, t := range types {
		placeholders[i] = "?"
		args = append(args, string(t))
	}
	return query + ` AND type IN (` + strings.Join(placeholders, ", ") + `)`, args
}

func scanEvent(rows *sql.Rows) (event.Event, error) {
	var (
		e                 event.Event
		typ               string
		ts, receivedAt    int64
		props             string
		device, geo, meta sql.NullString
	)
	err := rows.Scan(&e.ProjectID, &e.ID, &typ, &e.Name, &e.UserID, &e.SessionID,
		&ts, &receivedAt, &props, &device, &geo, &meta)
	if err != nil {
		return event.Event{}, err
	}

	e.Type = event.Type(typ)
	e.Timestamp = fromMillis(ts)
	if receivedAt != 0 {
		e.ReceivedAt = fromMillis(receivedAt)
	}
	if props != "" && props != "{}" {
		if err := json.Unmarshal([]byte(props), &e.Properties); err != nil {
			return event.Event{}, fmt.Errorf("decode properties: %w", err)
		}
	}
	if device.Valid {
		e.Device = new(event.Device)
		if err := json.Unmarshal([]byte(device.String), e.Device); err != nil {
			return event.Event{}, fmt.Errorf("decode device: %w", err)
		}
	}
	if geo.Valid {
		e.Geo = new(event.Geo)
		if err := json.Unmarshal([]byte(geo.String), e.Geo); err != nil {
			return event.Event{}, fmt.Errorf("decode geo: %w", err)
		}
	}
	if meta.Valid {
		e.Meta = new(event.Meta)
		if err := json.Unmarshal([]byte(meta.String), e.Meta); err != nil {
			return event.Event{}, fmt.Errorf("decode meta: %w", err)
		}
	}
	return e, nil
}

func marshalProps(p map[string]any) (string, error) {
	if len(p) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode properties: %w", err)
	}
	return string(b), nil
}

// nullJSON encodes a pointer field, storing NULL for nil.
func nullJSON[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// Interface compliance checks.
var (
	_ ports.EventSink  = (*EventStore)(nil)
	_ ports.EventQuery = (*EventStore)(nil)
)
