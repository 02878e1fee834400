package network

import (
	"time"

	id "matrixpay/pkg/domain"
)

// Member is a participant in the network. Immutable once created; there is no
// destruction in normal operation.
type Member struct {
	ID           id.MemberID
	DisplayName  string
	Handle       string
	ReferralCode id.ReferralCode
	CreatedAt    time.Time
}

// Edge records who recruited whom. Every member except a root has exactly one
// edge where it is the child; the store enforces that with a unique key on
// ChildID. Ordinal is the insertion sequence under the parent and defines slot
// positions, so it is load-bearing and never recomputed from timestamps.
type Edge struct {
	ChildID   id.MemberID
	ParentID  id.MemberID
	Ordinal   int64
	CreatedAt time.Time
}

// Node pairs a member with its depth relative to a traversal root.
type Node struct {
	Member Member
	Depth  int
}
