package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/artpar/pulse/domain/key"
	"github.com/artpar/pulse/ports"
)

// KeyStore is an in-memory implementation of ports.KeyStore. Keys are
// indexed by lookup prefix so authentication does not scan every key.
type KeyStore struct {
	mu       sync.RWMutex
	keys     map[string]key.Key  // by ID
	byPrefix map[string][]string // prefix -> IDs
}

// NewKeyStore creates a new in-memory key store.
func NewKeyStore() *KeyStore {
	return &KeyStore{
		keys:     make(map[string]key.Key),
		byPrefix: make(map[string][]string),
	}
}

// Get returns the keys sharing a lookup prefix.
func (s *KeyStore) Get(ctx context.Context, prefix string) ([]key.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byPrefix[prefix]
	result := make([]key.Key, 0, len(ids))
	for _, id := range ids {
		result = append(result, s.keys[id])
	}
	return result, nil
}

// Create stores k, replacing a key with the same ID.
func (s *KeyStore) Create(ctx context.Context, k key.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.keys[k.ID]; ok {
		s.unindex(old)
	}
	s.keys[k.ID] = k
	s.byPrefix[k.Prefix] = append(s.byPrefix[k.Prefix], k.ID)
	return nil
}

func (s *KeyStore) unindex(k key.Key) {
	ids := s.byPrefix[k.Prefix]
	for i, id := range ids {
		if id == k.ID {
			s.byPrefix[k.Prefix] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(s.byPrefix[k.Prefix]) == 0 {
		delete(s.byPrefix, k.Prefix)
	}
}

// Revoke marks a key as revoked.
func (s *KeyStore) Revoke(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[id]
	if !ok {
		return ports.ErrNotFound
	}
	k.RevokedAt = &at
	s.keys[id] = k
	return nil
}

// ListByProject returns a project's keys, newest first.
func (s *KeyStore) ListByProject(ctx context.Context, projectID string) ([]key.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []key.Key
	for _, k := range s.keys {
		if k.ProjectID == projectID {
			result = append(result, k)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// UpdateLastUsed records key usage. Unknown IDs are ignored.
func (s *KeyStore) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if k, ok := s.keys[id]; ok {
		k.LastUsed = &at
		s.keys[id] = k
	}
	return nil
}

var _ ports.KeyStore = (*KeyStore)(nil)
