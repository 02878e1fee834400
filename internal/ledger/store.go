package ledger

import (
	"context"

	id "matrixpay/pkg/domain"
)

// Store persists commissions, withdrawals, and the wallet aggregate. All
// balance-changing operations are atomic: the ledger row and the wallet
// mutation commit together or not at all.
type Store interface {
	// CreditCommission inserts the commission and increments the sponsor's
	// wallet in one transaction. Returns created=false (and no wallet change)
	// when the (sponsor, recruit, stage) key already exists.
	CreditCommission(ctx context.Context, commission Commission) (created bool, err error)

	HasCommission(ctx context.Context, sponsorID, recruitID id.MemberID, stage int) (bool, error)

	// ListCommissions returns a sponsor's credits ordered by credit time asc.
	ListCommissions(ctx context.Context, sponsorID id.MemberID) ([]Commission, error)

	// DebitWallet subtracts amount and appends the approved withdrawal row in
	// one transaction. Returns sentinel.ErrInvalidState when the balance would
	// go negative; the balance is untouched in that case.
	DebitWallet(ctx context.Context, withdrawal Withdrawal) error

	// RestoreWallet adds amount back and appends the rejected withdrawal row.
	RestoreWallet(ctx context.Context, withdrawal Withdrawal) error

	// Wallet returns the aggregate, or a zero-balance wallet if none exists.
	Wallet(ctx context.Context, memberID id.MemberID) (Wallet, error)

	ListWithdrawals(ctx context.Context, memberID id.MemberID) ([]Withdrawal, error)
}
