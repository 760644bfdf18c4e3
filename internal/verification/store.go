package verification

import (
	"context"
	"sort"
	"sync"
)

// ResultStore persists verification outcomes for the admin API.
type ResultStore interface {
	Save(ctx context.Context, res Result) error
	List(ctx context.Context, limit, offset int) ([]Result, error)
}

// InMemoryStore keeps the latest result per request.
type InMemoryStore struct {
	mu      sync.RWMutex
	results map[string]Result
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{results: make(map[string]Result)}
}

func (s *InMemoryStore) Save(_ context.Context, res Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[res.RequestID] = res
	return nil
}

// List returns results newest first.
func (s *InMemoryStore) List(_ context.Context, limit, offset int) ([]Result, error) {
	s.mu.RLock()
	all := make([]Result, 0, len(s.results))
	for _, r := range s.results {
		all = append(all, r)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].FinishedAt.Equal(all[j].FinishedAt) {
			return all[i].RequestID < all[j].RequestID
		}
		return all[i].FinishedAt.After(all[j].FinishedAt)
	})
	if offset >= len(all) {
		return []Result{}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}
