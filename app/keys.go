package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/pulse/domain/key"
	"github.com/artpar/pulse/ports"
)

// ErrInvalidKey is returned for unknown, malformed or revoked keys.
var ErrInvalidKey = errors.New("invalid api key")

// DefaultKeyCacheTTL is how long a verified key is trusted without a lookup.
const DefaultKeyCacheTTL = 30 * time.Second

// KeyDeps contains dependencies for the key service.
type KeyDeps struct {
	Store  ports.KeyStore
	Hasher ports.Hasher
	Clock  ports.Clock
	IDGen  ports.IDGenerator
	Logger zerolog.Logger
}

// KeyService manages project ingestion keys. Successful verifications are
// remembered for a short time so bcrypt runs once per key and interval.
type KeyService struct {
	store    ports.KeyStore
	hasher   ports.Hasher
	clock    ports.Clock
	idGen    ports.IDGenerator
	logger   zerolog.Logger
	prefix   string
	cacheTTL time.Duration

	mu       sync.Mutex
	verified map[string]verifiedKey // by sha256 of the raw key
}

type verifiedKey struct {
	key     key.Key
	expires time.Time
}

// NewKeyService creates a key service. A zero cacheTTL disables caching.
func NewKeyService(deps KeyDeps, cacheTTL time.Duration) *KeyService {
	return &KeyService{
		store:    deps.Store,
		hasher:   deps.Hasher,
		clock:    deps.Clock,
		idGen:    deps.IDGen,
		logger:   deps.Logger.With().Str("service", "keys").Logger(),
		prefix:   key.DefaultPrefix,
		cacheTTL: cacheTTL,
		verified: make(map[string]verifiedKey),
	}
}

// CreateKey issues a key for a project. The raw key is only returned here.
func (s *KeyService) CreateKey(ctx context.Context, projectID, name string) (string, key.Key, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return "", key.Key{}, fmt.Errorf("%w: project id required", ErrInvalidKey)
	}

	raw, err := key.Generate(s.prefix)
	if err != nil {
		return "", key.Key{}, err
	}
	hash, err := s.hasher.Hash(raw)
	if err != nil {
		return "", key.Key{}, fmt.Errorf("hash key: %w", err)
	}

	k := key.Key{
		ID:        s.idGen.New(),
		ProjectID: projectID,
		Name:      name,
		Prefix:    key.LookupPrefix(raw),
		Hash:      hash,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.Create(ctx, k); err != nil {
		return "", key.Key{}, fmt.Errorf("store key: %w", err)
	}

	s.logger.Info().Str("key_id", k.ID).Str("project_id", projectID).Msg("api key created")
	return raw, k, nil
}

// ListKeys returns a project's keys.
func (s *KeyService) ListKeys(ctx context.Context, projectID string) ([]key.Key, error) {
	return s.store.ListByProject(ctx, projectID)
}

// RevokeKey revokes a key and forgets any cached verification of it.
func (s *KeyService) RevokeKey(ctx context.Context, id string) error {
	if err := s.store.Revoke(ctx, id, s.clock.Now()); err != nil {
		return err
	}

	s.mu.Lock()
	for h, v := range s.verified {
		if v.key.ID == id {
			delete(s.verified, h)
		}
	}
	s.mu.Unlock()

	s.logger.Info().Str("key_id", id).Msg("api key revoked")
	return nil
}

// Authenticate resolves a raw key to its stored key.
func (s *KeyService) Authenticate(ctx context.Context, raw string) (key.Key, error) {
	now := s.clock.Now()

	// 1. Validate format (PURE)
	prefix, ok := key.ValidateFormat(raw, s.prefix)
	if !ok {
		return key.Key{}, fmt.Errorf("%w: %s", ErrInvalidKey, key.ReasonBadFormat)
	}

	// 2. Recently verified
	sum := sha256.Sum256([]byte(raw))
	digest := hex.EncodeToString(sum[:])
	if k, ok := s.cached(digest, now); ok {
		return k, nil
	}

	// 3. Lookup candidates (I/O)
	candidates, err := s.store.Get(ctx, prefix)
	if err != nil {
		return key.Key{}, fmt.Errorf("lookup key: %w", err)
	}

	// 4. Compare hashes
	var matched *key.Key
	for i := range candidates {
		if s.hasher.Compare(candidates[i].Hash, raw) {
			matched = &candidates[i]
			break
		}
	}
	if matched == nil {
		return key.Key{}, fmt.Errorf("%w: %s", ErrInvalidKey, key.ReasonNotFound)
	}

	// 5. Validate (PURE)
	res := key.Validate(*matched, now)
	if !res.Valid {
		return key.Key{}, fmt.Errorf("%w: %s", ErrInvalidKey, res.Reason)
	}

	if err := s.store.UpdateLastUsed(ctx, matched.ID, now); err != nil {
		s.logger.Warn().Err(err).Str("key_id", matched.ID).Msg("update key last used")
	}
	s.remember(digest, res.Key, now)
	return res.Key, nil
}

func (s *KeyService) cached(digest string, now time.Time) (key.Key, bool) {
	if s.cacheTTL <= 0 {
		return key.Key{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.verified[digest]
	if !ok {
		return key.Key{}, false
	}
	if !now.Before(v.expires) {
		delete(s.verified, digest)
		return key.Key{}, false
	}
	return v.key, true
}

func (s *KeyService) remember(digest string, k key.Key, now time.Time) {
	if s.cacheTTL <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verified[digest] = verifiedKey{key: k, expires: now.Add(s.cacheTTL)}
}
