package memory

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/artpar/pulse/adapters/clock"
	"github.com/artpar/pulse/ports"
)

// ObjectStore is an in-memory ports.ObjectStore. Signed URLs point at
// BaseURL and carry an expiry parameter; they are not verifiable.
type ObjectStore struct {
	mu      sync.RWMutex
	clock   ports.Clock
	baseURL string
	objects map[string]object
	failErr error
}

type object struct {
	data        []byte
	contentType string
}

// NewObjectStore creates an empty object store.
func NewObjectStore(baseURL string, c ports.Clock) *ObjectStore {
	if c == nil {
		c = clock.Real{}
	}
	if baseURL == "" {
		baseURL = "memory://exports"
	}
	return &ObjectStore{clock: c, baseURL: baseURL, objects: make(map[string]object)}
}

// Upload stores data under key.
func (s *ObjectStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.objects[key] = object{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

// SignedURL returns a download URL valid for ttl.
func (s *ObjectStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.objects[key]; !ok {
		return "", fmt.Errorf("sign %s: %w", key, ports.ErrNotFound)
	}
	expires := s.clock.Now().Add(ttl).Unix()
	return fmt.Sprintf("%s/%s?expires=%d", s.baseURL, url.PathEscape(key), expires), nil
}

// Delete removes an object. Missing keys are not an error.
func (s *ObjectStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// FailWith makes uploads return err (for testing).
func (s *ObjectStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// Object returns a stored object (for testing).
func (s *ObjectStore) Object(key string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[key]
	return o.data, o.contentType, ok
}

// Len returns the number of stored objects (for testing).
func (s *ObjectStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

var _ ports.ObjectStore = (*ObjectStore)(nil)
