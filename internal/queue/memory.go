package queue

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a process-local Store for development and tests. Ordering
// matches Redis: by score, then by member.
type MemoryStore struct {
	mu     sync.Mutex
	scores map[string]map[string]int64
	seq    map[string]int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scores: make(map[string]map[string]int64),
		seq:    make(map[string]int64),
	}
}

func (s *MemoryStore) NextRank(_ context.Context, scope Scope) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rank := s.seq[scope.Key()]
	s.seq[scope.Key()] = rank + 1
	return rank, nil
}

func (s *MemoryStore) Enqueue(_ context.Context, scope Scope, appointmentID string, rank int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.scores[scope.Key()]
	if !ok {
		set = make(map[string]int64)
		s.scores[scope.Key()] = set
	}
	set[appointmentID] = rank
	return nil
}

func (s *MemoryStore) PositionOf(_ context.Context, scope Scope, appointmentID string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range s.orderedLocked(scope) {
		if id == appointmentID {
			return int64(i) + 1, true, nil
		}
	}
	return 0, false, nil
}

func (s *MemoryStore) Remove(_ context.Context, scope Scope, appointmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.scores[scope.Key()]; ok {
		delete(set, appointmentID)
		if len(set) == 0 {
			delete(s.scores, scope.Key())
		}
	}
	return nil
}

func (s *MemoryStore) Members(_ context.Context, scope Scope) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderedLocked(scope), nil
}

func (s *MemoryStore) Len(_ context.Context, scope Scope) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.scores[scope.Key()])), nil
}

func (s *MemoryStore) orderedLocked(scope Scope) []string {
	set := s.scores[scope.Key()]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if set[ids[i]] != set[ids[j]] {
			return set[ids[i]] < set[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}

var _ Store = (*MemoryStore)(nil)
