package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"matrixpay/internal/network"
	id "matrixpay/pkg/domain"
	dErrors "matrixpay/pkg/domain-errors"
	"matrixpay/pkg/platform/sentinel"
)

// maxAncestorWalk caps root-ward traversals. The deepest matrix only looks
// three levels down, but DrillInto ownership checks may climb an arbitrary
// chain; the cap turns a corrupted (cyclic) graph into an error instead of a
// spin.
const maxAncestorWalk = 1 << 16

// Service owns the sponsor/recruit adjacency relation. It is the single
// source of truth for "who recruited whom"; attach is its only mutation.
type Service struct {
	store  network.Store
	tracer trace.Tracer
}

func New(store network.Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("network store is required")
	}
	return &Service{
		store:  store,
		tracer: otel.Tracer("matrixpay/network"),
	}, nil
}

// NewMemberParams carries the already-validated registration payload. The
// member ID may be pre-assigned by the registration service for replay
// stability; a zero ID mints a fresh one.
type NewMemberParams struct {
	MemberID    id.MemberID
	DisplayName string
	Handle      string
	SponsorCode id.ReferralCode
}

// Attach creates the member and inserts its single parent edge. An empty
// sponsor code creates a root member with no edge (the designated founder
// path). A sponsor code that resolves to no member is rejected and
// registration must not proceed.
func (s *Service) Attach(ctx context.Context, params NewMemberParams) (network.Member, *network.Edge, error) {
	ctx, span := s.tracer.Start(ctx, "network.Attach")
	defer span.End()

	var sponsor network.Member
	if params.SponsorCode != "" {
		found, err := s.store.FindByCode(ctx, params.SponsorCode)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return network.Member{}, nil, dErrors.New(dErrors.CodeInvalidSponsor,
					"sponsor code does not resolve to a member")
			}
			return network.Member{}, nil, fmt.Errorf("resolve sponsor: %w", err)
		}
		sponsor = found
	}

	member := network.Member{
		ID:           params.MemberID,
		DisplayName:  params.DisplayName,
		Handle:       params.Handle,
		ReferralCode: id.NewReferralCode(),
		CreatedAt:    time.Now().UTC(),
	}
	if member.ID.IsZero() {
		member.ID = id.NewMemberID()
	}

	if err := s.store.CreateMember(ctx, member); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrAlreadyExists):
			return network.Member{}, nil, dErrors.Wrap(dErrors.CodeConflict, "member already exists", err)
		case errors.Is(err, sentinel.ErrConflict):
			return network.Member{}, nil, dErrors.Wrap(dErrors.CodeConflict, "referral code already taken", err)
		}
		return network.Member{}, nil, fmt.Errorf("create member: %w", err)
	}

	if params.SponsorCode == "" {
		return member, nil, nil
	}

	edge, err := s.store.AttachEdge(ctx, member.ID, sponsor.ID)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Never silently overwritten: a second parent would corrupt the
			// tree invariant every matrix computation rests on.
			return network.Member{}, nil, dErrors.Wrap(dErrors.CodeDuplicateEdge,
				"member already has a parent", err)
		}
		return network.Member{}, nil, fmt.Errorf("attach edge: %w", err)
	}
	return member, &edge, nil
}

func (s *Service) FindMember(ctx context.Context, memberID id.MemberID) (network.Member, error) {
	member, err := s.store.FindMember(ctx, memberID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return network.Member{}, dErrors.New(dErrors.CodeNotFound, "member not found")
		}
		return network.Member{}, fmt.Errorf("find member: %w", err)
	}
	return member, nil
}

func (s *Service) FindByCode(ctx context.Context, code id.ReferralCode) (network.Member, error) {
	member, err := s.store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return network.Member{}, dErrors.New(dErrors.CodeInvalidSponsor, "referral code does not resolve")
		}
		return network.Member{}, fmt.Errorf("find by code: %w", err)
	}
	return member, nil
}

// Children returns direct recruits in insertion order. Position 1 is the
// first element.
func (s *Service) Children(ctx context.Context, memberID id.MemberID) ([]network.Member, error) {
	return s.store.Children(ctx, memberID)
}

// Descendants walks the subtree breadth-first down to maxDepth. The result is
// finite and deterministically ordered (per-level, per-parent insertion
// order); members reachable twice cannot occur given single-parent-hood but
// are deduped defensively.
func (s *Service) Descendants(ctx context.Context, memberID id.MemberID, maxDepth int) ([]network.Node, error) {
	if maxDepth <= 0 {
		return nil, nil
	}

	type frame struct {
		memberID id.MemberID
		depth    int
	}

	var (
		nodes []network.Node
		seen  = map[id.MemberID]bool{memberID: true}
		queue = []frame{{memberID: memberID, depth: 0}}
	)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}
		children, err := s.store.Children(ctx, cur.memberID)
		if err != nil {
			return nil, fmt.Errorf("descendants of %s: %w", cur.memberID, err)
		}
		for _, child := range children {
			if seen[child.ID] {
				continue
			}
			seen[child.ID] = true
			nodes = append(nodes, network.Node{Member: child, Depth: cur.depth + 1})
			queue = append(queue, frame{memberID: child.ID, depth: cur.depth + 1})
		}
	}
	return nodes, nil
}

// Ancestors returns the sponsor chain, nearest first, up to maxDepth levels.
func (s *Service) Ancestors(ctx context.Context, memberID id.MemberID, maxDepth int) ([]network.Member, error) {
	var ancestors []network.Member
	current := memberID
	for depth := 0; depth < maxDepth; depth++ {
		parent, err := s.store.Parent(ctx, current)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return ancestors, nil
			}
			return nil, fmt.Errorf("parent of %s: %w", current, err)
		}
		ancestors = append(ancestors, parent)
		current = parent.ID
	}
	return ancestors, nil
}

// IsDescendant reports whether target sits in root's subtree. Implemented as
// a root-ward walk from target, which is O(depth) instead of expanding the
// whole subtree.
func (s *Service) IsDescendant(ctx context.Context, rootID, targetID id.MemberID) (bool, error) {
	if rootID == targetID {
		return false, nil
	}
	current := targetID
	for i := 0; i < maxAncestorWalk; i++ {
		parent, err := s.store.Parent(ctx, current)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return false, nil
			}
			return false, fmt.Errorf("parent of %s: %w", current, err)
		}
		if parent.ID == rootID {
			return true, nil
		}
		current = parent.ID
	}
	return false, dErrors.New(dErrors.CodeSlotShapeViolation, "ancestor walk exceeded bound, graph may be cyclic")
}
