package stage

import (
	"context"

	id "matrixpay/pkg/domain"
)

// CompletionStore persists the append-only stage completion log.
type CompletionStore interface {
	// Record inserts the completion if absent. Returns created=false when the
	// (member, stage) key already exists; the row is never updated.
	Record(ctx context.Context, completion Completion) (created bool, err error)

	HasCompleted(ctx context.Context, memberID id.MemberID, stage int) (bool, error)

	// ListByMember returns completions ordered by stage ascending.
	ListByMember(ctx context.Context, memberID id.MemberID) ([]Completion, error)
}
