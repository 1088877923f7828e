package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/pulse/domain/analytics"
	"github.com/artpar/pulse/domain/export"
	"github.com/artpar/pulse/ports"
)

// ExportStore implements ports.ExportStore using SQLite.
type ExportStore struct {
	db *DB
}

// NewExportStore creates a new SQLite export store.
func NewExportStore(db *DB) *ExportStore {
	return &ExportStore{db: db}
}

const exportColumns = `id, project_id, user_id, report_type, format, status,
	range_start, range_end, options, file, error, progress,
	created_at, updated_at, expires_at`

// Create stores a new export record.
func (s *ExportStore) Create(ctx context.Context, r export.Record) error {
	opts, file, err := encodeExport(r)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO exports (`+exportColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.ProjectID, r.UserID, string(r.ReportType), string(r.Format), string(r.Status),
		r.DateRange.Start.UTC(), r.DateRange.End.UTC(), opts, file, r.Error, r.Progress,
		r.CreatedAt.UTC(), r.UpdatedAt.UTC(), r.ExpiresAt.UTC())
	return err
}

// Get retrieves an export by ID.
func (s *ExportStore) Get(ctx context.Context, id string) (export.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+exportColumns+` FROM exports WHERE id = ?`, id)
	r, err := scanExport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return export.Record{}, ports.ErrNotFound
	}
	return r, err
}

// Update replaces the mutable fields of an export.
func (s *ExportStore) Update(ctx context.Context, r export.Record) error {
	opts, file, err := encodeExport(r)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE exports SET
			status = ?, options = ?, file = ?, error = ?, progress = ?,
			updated_at = ?, expires_at = ?
		WHERE id = ?
	`, string(r.Status), opts, file, r.Error, r.Progress,
		r.UpdatedAt.UTC(), r.ExpiresAt.UTC(), r.ID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Delete removes an export record.
func (s *ExportStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM exports WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// ListByProject returns a project's exports, newest first.
func (s *ExportStore) ListByProject(ctx context.Context, projectID string) ([]export.Record, error) {
	return s.list(ctx, `SELECT `+exportColumns+` FROM exports
		WHERE project_id = ? ORDER BY created_at DESC, id DESC`, projectID)
}

// CountActive counts pending and processing exports of a project.
func (s *ExportStore) CountActive(ctx context.Context, projectID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM exports
		WHERE project_id = ? AND status IN (?, ?)
	`, projectID, string(export.StatusPending), string(export.StatusProcessing)).Scan(&n)
	return n, err
}

// ListExpired returns records whose retention window has passed.
func (s *ExportStore) ListExpired(ctx context.Context, now time.Time) ([]export.Record, error) {
	return s.list(ctx, `SELECT `+exportColumns+` FROM exports
		WHERE expires_at <= ? ORDER BY expires_at, id`, now.UTC())
}

func (s *ExportStore) list(ctx context.Context, query string, args ...any) ([]export.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []export.Record
	for rows.Next() {
		r, err := scanExport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func encodeExport(r export.Record) (string, sql.NullString, error) {
	opts, err := json.Marshal(r.Options)
	if err != nil {
		return "", sql.NullString{}, fmt.Errorf("encode options: %w", err)
	}
	file, err := nullJSON(r.File)
	if err != nil {
		return "", sql.NullString{}, fmt.Errorf("encode file: %w", err)
	}
	return string(opts), file, nil
}

func scanExport(row scanner) (export.Record, error) {
	var (
		r                          export.Record
		reportType, format, status string
		opts                       string
		file                       sql.NullString
		start, end                 time.Time
	)
	err := row.Scan(&r.ID, &r.ProjectID, &r.UserID, &reportType, &format, &status,
		&start, &end, &opts, &file, &r.Error, &r.Progress,
		&r.CreatedAt, &r.UpdatedAt, &r.ExpiresAt)
	if err != nil {
		return export.Record{}, err
	}

	r.ReportType = export.ReportType(reportType)
	r.Format = export.Format(format)
	r.Status = export.Status(status)
	r.DateRange = analytics.Range{Start: start.UTC(), End: end.UTC()}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	r.ExpiresAt = r.ExpiresAt.UTC()
	if err := json.Unmarshal([]byte(opts), &r.Options); err != nil {
		return export.Record{}, fmt.Errorf("decode options: %w", err)
	}
	if file.Valid {
		r.File = new(export.File)
		if err := json.Unmarshal([]byte(file.String), r.File); err != nil {
			return export.Record{}, fmt.Errorf("decode file: %w", err)
		}
	}
	return r, nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ports.ErrNotFound
	}
	return nil
}

var _ ports.ExportStore = (*ExportStore)(nil)
