// Package store persists API keys in memory or PostgreSQL.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ironclad/internal/apikeys/models"
	id "ironclad/pkg/domain"
	"ironclad/pkg/platform/sentinel"
)

// InMemoryStore is the development and test key store.
type InMemoryStore struct {
	mu       sync.RWMutex
	byID     map[id.APIKeyID]*models.APIKey
	byPrefix map[string]id.APIKeyID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:     make(map[id.APIKeyID]*models.APIKey),
		byPrefix: make(map[string]id.APIKeyID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byPrefix[key.Prefix]; taken {
		return fmt.Errorf("api key prefix %s: %w", key.Prefix, sentinel.ErrConflict)
	}
	stored := *key
	s.byID[key.ID] = &stored
	s.byPrefix[key.Prefix] = key.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, keyID id.APIKeyID) (*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.byID[keyID]
	if !ok {
		return nil, fmt.Errorf("api key %s: %w", keyID, sentinel.ErrNotFound)
	}
	cp := *key
	return &cp, nil
}

func (s *InMemoryStore) FindByPrefix(_ context.Context, prefix string) (*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keyID, ok := s.byPrefix[prefix]
	if !ok {
		return nil, fmt.Errorf("api key prefix %s: %w", prefix, sentinel.ErrNotFound)
	}
	cp := *s.byID[keyID]
	return &cp, nil
}

// List returns matching keys newest first.
func (s *InMemoryStore) List(_ context.Context, filter models.Filter) ([]*models.APIKey, error) {
	s.mu.RLock()
	out := make([]*models.APIKey, 0, len(s.byID))
	for _, key := range s.byID {
		if filter.ServiceName != "" && key.ServiceName != filter.ServiceName {
			continue
		}
		if key.Revoked && !filter.IncludeRevoked {
			continue
		}
		cp := *key
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Prefix < out[j].Prefix
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

// Revoke marks the key revoked. Revoking a revoked key keeps the original
// revocation time.
func (s *InMemoryStore) Revoke(_ context.Context, keyID id.APIKeyID, at time.Time) (*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byID[keyID]
	if !ok {
		return nil, fmt.Errorf("api key %s: %w", keyID, sentinel.ErrNotFound)
	}
	if !key.Revoked {
		key.Revoked = true
		key.RevokedAt = &at
	}
	cp := *key
	return &cp, nil
}

func (s *InMemoryStore) RecordUsage(_ context.Context, keyID id.APIKeyID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byID[keyID]
	if !ok {
		return fmt.Errorf("api key %s: %w", keyID, sentinel.ErrNotFound)
	}
	key.UsageCount++
	key.LastUsedAt = &at
	return nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
