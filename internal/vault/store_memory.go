package vault

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ironclad/pkg/platform/sentinel"
)

// InMemoryStore is a process-local Vault for development and tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]Token
	now    func() time.Time
}

type MemoryOption func(*InMemoryStore)

func WithClock(now func() time.Time) MemoryOption {
	return func(s *InMemoryStore) {
		s.now = now
	}
}

func NewInMemoryStore(opts ...MemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		tokens: make(map[string]Token),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Put(_ context.Context, token *Token, ttl time.Duration) error {
	if token == nil || token.ID == "" {
		return fmt.Errorf("put token: missing id")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := s.now()
	t := *token
	t.ExpiresAt = now.Add(ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.tokens[t.ID]; ok && !existing.Expired(now) {
		return fmt.Errorf("put token %s: %w", t.ID, sentinel.ErrConflict)
	}
	s.tokens[t.ID] = t
	token.ExpiresAt = t.ExpiresAt
	return nil
}

// Get evicts the token lazily when it has expired.
func (s *InMemoryStore) Get(_ context.Context, id string) (*Token, error) {
	s.mu.RLock()
	t, ok := s.tokens[id]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if t.Expired(s.now()) {
		s.mu.Lock()
		if cur, ok := s.tokens[id]; ok && cur.Expired(s.now()) {
			delete(s.tokens, id)
		}
		s.mu.Unlock()
		return nil, sentinel.ErrNotFound
	}
	return &t, nil
}

func (s *InMemoryStore) DeleteMany(_ context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for _, id := range ids {
		if _, ok := s.tokens[id]; ok {
			delete(s.tokens, id)
			deleted++
		}
	}
	return deleted, nil
}

// Len reports the number of stored tokens, expired ones included.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}
