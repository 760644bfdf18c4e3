// Package store holds the restoration audit stores.
package store

import (
	"context"
	"sort"
	"sync"

	"ironclad/internal/audit"
)

// InMemoryStore is append-only and safe for concurrent writers.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []audit.Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, rec *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *rec)
	return nil
}

func (s *InMemoryStore) List(_ context.Context, q audit.Query) ([]*audit.Record, error) {
	s.mu.RLock()
	matched := make([]*audit.Record, 0, len(s.records))
	for i := range s.records {
		if q.ServiceName != "" && s.records[i].ServiceName != q.ServiceName {
			continue
		}
		cp := s.records[i]
		matched = append(matched, &cp)
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	if q.Offset >= len(matched) {
		return []*audit.Record{}, nil
	}
	end := len(matched)
	if q.Limit > 0 && q.Offset+q.Limit < end {
		end = q.Offset + q.Limit
	}
	return matched[q.Offset:end], nil
}

// Len returns the number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
