package ledger

import (
	"time"

	id "matrixpay/pkg/domain"
)

// CommissionKind distinguishes per-slot credits from per-stage completion
// bonuses. Both live in one table so (sponsor, recruit, stage) is a single
// idempotency key space: a bonus row uses recruit = sponsor.
type CommissionKind string

const (
	KindSlot  CommissionKind = "slot"
	KindBonus CommissionKind = "bonus"
)

// Commission is a one-time cash credit. At most one row exists per
// (sponsor, recruit, stage); that key is what prevents double-crediting.
type Commission struct {
	ID         id.CommissionID
	SponsorID  id.MemberID
	RecruitID  id.MemberID
	Stage      int
	Kind       CommissionKind
	Amount     int64
	CreditedAt time.Time
}

// WithdrawalStatus mirrors the decisions the out-of-scope payout workflow
// emits. Approved debits the wallet; Rejected restores a previously approved
// debit (payout bounced).
type WithdrawalStatus string

const (
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

// Withdrawal is an append-only record of a wallet debit or restore.
type Withdrawal struct {
	ID        id.WithdrawalID
	MemberID  id.MemberID
	Amount    int64
	Status    WithdrawalStatus
	AppliedAt time.Time
}

// Wallet is the only mutable aggregate in the system. Balance is maintained
// incrementally in the same transaction as the ledger write and must always
// reconcile exactly against the commission and withdrawal history.
type Wallet struct {
	MemberID  id.MemberID
	Balance   int64
	UpdatedAt time.Time
}
