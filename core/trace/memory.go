package trace

import (
	"context"
	"sync"
)

// MemoryStore keeps the most recent records in memory.
type MemoryStore struct {
	mu   sync.RWMutex
	recs []Record
	max  int
}

// NewMemoryStore keeps at most max records; max <= 0 keeps 1000.
func NewMemoryStore(max int) *MemoryStore {
	if max <= 0 {
		max = 1000
	}
	return &MemoryStore{max: max}
}

func (s *MemoryStore) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	if over := len(s.recs) - s.max; over > 0 {
		s.recs = append(s.recs[:0], s.recs[over:]...)
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, q Query) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Record
	for _, r := range s.recs {
		if q.Match(r) {
			res = append(res, r)
		}
	}
	return limit(res, q.Limit), nil
}

func (s *MemoryStore) Close() error { return nil }
