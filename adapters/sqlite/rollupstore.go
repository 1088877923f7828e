package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/pulse/domain/analytics"
	"github.com/artpar/pulse/ports"
)

// RollupStore implements ports.RollupStore using SQLite.
type RollupStore struct {
	db *DB
}

// NewRollupStore creates a new SQLite rollup store.
func NewRollupStore(db *DB) *RollupStore {
	return &RollupStore{db: db}
}

// SaveRollup upserts a rollup on (project, period, start).
func (s *RollupStore) SaveRollup(ctx context.Context, r analytics.Rollup) error {
	top, err := json.Marshal(r.TopScreens)
	if err != nil {
		return fmt.Errorf("encode top screens: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rollups (
			project_id, period, start_ms, end_ms, active_users, new_users,
			events, sessions, screen_views, top_screens, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, period, start_ms) DO UPDATE SET
			end_ms = excluded.end_ms,
			active_users = excluded.active_users,
			new_users = excluded.new_users,
			events = excluded.events,
			sessions = excluded.sessions,
			screen_views = excluded.screen_views,
			top_screens = excluded.top_screens,
			computed_at = excluded.computed_at
	`, r.ProjectID, string(r.Period), toMillis(r.Start), toMillis(r.End),
		r.ActiveUsers, r.NewUsers, r.Events, r.Sessions, r.ScreenViews,
		string(top), toMillis(r.ComputedAt))
	return err
}

// GetRollup returns one rollup.
func (s *RollupStore) GetRollup(ctx context.Context, projectID string, period analytics.RollupPeriod, start time.Time) (analytics.Rollup, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT project_id, period, start_ms, end_ms, active_users, new_users,
			events, sessions, screen_views, top_screens, computed_at
		FROM rollups
		WHERE project_id = ? AND period = ? AND start_ms = ?
	`, projectID, string(period), toMillis(start))

	r, err := scanRollup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return analytics.Rollup{}, ports.ErrNotFound
	}
	return r, err
}

// ListRollups returns rollups starting inside rng, oldest first.
func (s *RollupStore) ListRollups(ctx context.Context, projectID string, period analytics.RollupPeriod, rng analytics.Range) ([]analytics.Rollup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, period, start_ms, end_ms, active_users, new_users,
			events, sessions, screen_views, top_screens, computed_at
		FROM rollups
		WHERE project_id = ? AND period = ? AND start_ms >= ? AND start_ms < ?
		ORDER BY start_ms
	`, projectID, string(period), toMillis(rng.Start), toMillis(rng.End))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []analytics.Rollup
	for rows.Next() {
		r, err := scanRollup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRollupsBefore prunes rollups that started before before.
func (s *RollupStore) DeleteRollupsBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rollups WHERE start_ms < ?`, toMillis(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRollup(row scanner) (analytics.Rollup, error) {
	var (
		r                 analytics.Rollup
		period, top       string
		start, end, compd int64
	)
	err := row.Scan(&r.ProjectID, &period, &start, &end, &r.ActiveUsers, &r.NewUsers,
		&r.Events, &r.Sessions, &r.ScreenViews, &top, &compd)
	if err != nil {
		return analytics.Rollup{}, err
	}

	r.Period = analytics.RollupPeriod(period)
	r.Start = fromMillis(start)
	r.End = fromMillis(end)
	r.ComputedAt = fromMillis(compd)
	if top != "" && top != "null" {
		if err := json.Unmarshal([]byte(top), &r.TopScreens); err != nil {
			return analytics.Rollup{}, fmt.Errorf("decode top screens: %w", err)
		}
	}
	return r, nil
}

var _ ports.RollupStore = (*RollupStore)(nil)
