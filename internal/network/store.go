package network

import (
	"context"

	id "matrixpay/pkg/domain"
)

// Store persists members and recruitment edges. Implementations return
// sentinel errors for infrastructure facts; the service layer translates them
// into coded domain errors.
type Store interface {
	// CreateMember inserts a member. Returns sentinel.ErrAlreadyExists when the
	// member ID is already present and sentinel.ErrConflict when the referral
	// code is taken by a different member.
	CreateMember(ctx context.Context, member Member) error

	// AttachEdge inserts the child's single parent edge, assigning the next
	// ordinal under the parent. Returns sentinel.ErrConflict when the child
	// already has a parent.
	AttachEdge(ctx context.Context, childID, parentID id.MemberID) (Edge, error)

	FindMember(ctx context.Context, memberID id.MemberID) (Member, error)
	FindByCode(ctx context.Context, code id.ReferralCode) (Member, error)

	// Children returns direct recruits ordered by edge ordinal ascending. The
	// ordering defines matrix slot positions and must be deterministic.
	Children(ctx context.Context, parentID id.MemberID) ([]Member, error)

	// Parent returns the member's sponsor, or sentinel.ErrNotFound for roots.
	Parent(ctx context.Context, childID id.MemberID) (Member, error)
}
