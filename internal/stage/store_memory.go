package stage

import (
	"context"
	"sort"
	"sync"

	id "matrixpay/pkg/domain"
)

type completionKey struct {
	memberID id.MemberID
	stage    int
}

// InMemoryCompletionStore keeps completions in a map guarded by a RWMutex.
type InMemoryCompletionStore struct {
	mu          sync.RWMutex
	completions map[completionKey]Completion
}

func NewInMemoryCompletionStore() *InMemoryCompletionStore {
	return &InMemoryCompletionStore{completions: make(map[completionKey]Completion)}
}

func (s *InMemoryCompletionStore) Record(_ context.Context, completion Completion) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := completionKey{memberID: completion.MemberID, stage: completion.Stage}
	if _, ok := s.completions[key]; ok {
		return false, nil
	}
	s.completions[key] = completion
	return true, nil
}

func (s *InMemoryCompletionStore) HasCompleted(_ context.Context, memberID id.MemberID, stage int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.completions[completionKey{memberID: memberID, stage: stage}]
	return ok, nil
}

func (s *InMemoryCompletionStore) ListByMember(_ context.Context, memberID id.MemberID) ([]Completion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Completion
	for key, completion := range s.completions {
		if key.memberID == memberID {
			out = append(out, completion)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out, nil
}
