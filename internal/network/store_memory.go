package network

import (
	"context"
	"sort"
	"sync"

	id "matrixpay/pkg/domain"
	"matrixpay/pkg/platform/sentinel"
)

// InMemoryStore keeps the graph in maps guarded by a RWMutex. Used by unit
// tests and development mode; production uses PostgresStore.
type InMemoryStore struct {
	mu      sync.RWMutex
	members map[id.MemberID]Member
	byCode  map[id.ReferralCode]id.MemberID
	parents map[id.MemberID]Edge
	childs  map[id.MemberID][]Edge
	nextSeq int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		members: make(map[id.MemberID]Member),
		byCode:  make(map[id.ReferralCode]id.MemberID),
		parents: make(map[id.MemberID]Edge),
		childs:  make(map[id.MemberID][]Edge),
	}
}

func (s *InMemoryStore) CreateMember(_ context.Context, member Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[member.ID]; ok {
		return sentinel.ErrAlreadyExists
	}
	if owner, ok := s.byCode[member.ReferralCode]; ok && owner != member.ID {
		return sentinel.ErrConflict
	}
	s.members[member.ID] = member
	s.byCode[member.ReferralCode] = member.ID
	return nil
}

func (s *InMemoryStore) AttachEdge(_ context.Context, childID, parentID id.MemberID) (Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.parents[childID]; ok {
		return Edge{}, sentinel.ErrConflict
	}
	child, ok := s.members[childID]
	if !ok {
		return Edge{}, sentinel.ErrNotFound
	}
	if _, ok := s.members[parentID]; !ok {
		return Edge{}, sentinel.ErrNotFound
	}

	s.nextSeq++
	edge := Edge{
		ChildID:   childID,
		ParentID:  parentID,
		Ordinal:   s.nextSeq,
		CreatedAt: child.CreatedAt,
	}
	s.parents[childID] = edge
	s.childs[parentID] = append(s.childs[parentID], edge)
	return edge, nil
}

func (s *InMemoryStore) FindMember(_ context.Context, memberID id.MemberID) (Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	member, ok := s.members[memberID]
	if !ok {
		return Member{}, sentinel.ErrNotFound
	}
	return member, nil
}

func (s *InMemoryStore) FindByCode(_ context.Context, code id.ReferralCode) (Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	memberID, ok := s.byCode[code]
	if !ok {
		return Member{}, sentinel.ErrNotFound
	}
	return s.members[memberID], nil
}

func (s *InMemoryStore) Children(_ context.Context, parentID id.MemberID) ([]Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edges := append([]Edge{}, s.childs[parentID]...)
	sort.Slice(edges, func(i, j int) bool { return edges[i].Ordinal < edges[j].Ordinal })

	members := make([]Member, 0, len(edges))
	for _, e := range edges {
		members = append(members, s.members[e.ChildID])
	}
	return members, nil
}

func (s *InMemoryStore) Parent(_ context.Context, childID id.MemberID) (Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edge, ok := s.parents[childID]
	if !ok {
		return Member{}, sentinel.ErrNotFound
	}
	return s.members[edge.ParentID], nil
}
