package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/artpar/pulse/domain/key"
	"github.com/artpar/pulse/ports"
)

// KeyStore implements ports.KeyStore using SQLite.
type KeyStore struct {
	db *DB
}

// NewKeyStore creates a new SQLite key store.
func NewKeyStore(db *DB) *KeyStore {
	return &KeyStore{db: db}
}

const keyColumns = `id, project_id, name, prefix, hash, created_at, revoked_at, last_used`

// Get retrieves keys matching a prefix.
func (s *KeyStore) Get(ctx context.Context, prefix string) ([]key.Key, error) {
	return s.list(ctx, `SELECT `+keyColumns+` FROM project_keys WHERE prefix = ?`, prefix)
}

// Create stores a new key.
func (s *KeyStore) Create(ctx context.Context, k key.Key) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_keys (`+keyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, k.ID, k.ProjectID, k.Name, k.Prefix, k.Hash, k.CreatedAt.UTC(),
		nullTime(k.RevokedAt), nullTime(k.LastUsed))
	return err
}

// Revoke marks a key as revoked.
func (s *KeyStore) Revoke(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE project_keys SET revoked_at = ? WHERE id = ?
	`, at.UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// ListByProject returns all keys for a project, newest first.
func (s *KeyStore) ListByProject(ctx context.Context, projectID string) ([]key.Key, error) {
	return s.list(ctx, `SELECT `+keyColumns+` FROM project_keys
		WHERE project_id = ? ORDER BY created_at DESC`, projectID)
}

// UpdateLastUsed updates the last used timestamp.
func (s *KeyStore) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE project_keys SET last_used = ? WHERE id = ?
	`, at.UTC(), id)
	return err
}

func (s *KeyStore) list(ctx context.Context, query string, args ...any) ([]key.Key, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []key.Key
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func scanKey(row scanner) (key.Key, error) {
	var k key.Key
	var revokedAt, lastUsed sql.NullTime

	err := row.Scan(&k.ID, &k.ProjectID, &k.Name, &k.Prefix, &k.Hash,
		&k.CreatedAt, &revokedAt, &lastUsed)
	if err != nil {
		return key.Key{}, err
	}

	k.CreatedAt = k.CreatedAt.UTC()
	if revokedAt.Valid {
		t := revokedAt.Time.UTC()
		k.RevokedAt = &t
	}
	if lastUsed.Valid {
		t := lastUsed.Time.UTC()
		k.LastUsed = &t
	}
	return k, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

var _ ports.KeyStore = (*KeyStore)(nil)
