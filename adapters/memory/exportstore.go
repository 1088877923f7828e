package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/artpar/pulse/domain/export"
	"github.com/artpar/pulse/ports"
)

// ExportStore is an in-memory implementation of ports.ExportStore.
type ExportStore struct {
	mu      sync.RWMutex
	records map[string]export.Record
}

// NewExportStore creates an empty export store.
func NewExportStore() *ExportStore {
	return &ExportStore{records: make(map[string]export.Record)}
}

// Create stores a new record.
func (s *ExportStore) Create(ctx context.Context, r export.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = r
	return nil
}

// Get returns a record by ID.
func (s *ExportStore) Get(ctx context.Context, id string) (export.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return export.Record{}, ports.ErrNotFound
	}
	return r, nil
}

// Update replaces an existing record.
func (s *ExportStore) Update(ctx context.Context, r export.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; !ok {
		return ports.ErrNotFound
	}
	s.records[r.ID] = r
	return nil
}

// Delete removes a record.
func (s *ExportStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ports.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

// ListByProject returns a project's records, newest first.
func (s *ExportStore) ListByProject(ctx context.Context, projectID string) ([]export.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []export.Record
	for _, r := range s.records {
		if r.ProjectID == projectID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// CountActive counts pending and processing records of a project.
func (s *ExportStore) CountActive(ctx context.Context, projectID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.records {
		if r.ProjectID == projectID && r.IsActive() {
			n++
		}
	}
	return n, nil
}

// ListExpired returns records past their retention window.
func (s *ExportStore) ListExpired(ctx context.Context, now time.Time) ([]export.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []export.Record
	for _, r := range s.records {
		if r.IsExpired(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

var _ ports.ExportStore = (*ExportStore)(nil)
