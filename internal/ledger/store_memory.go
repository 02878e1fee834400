package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	id "matrixpay/pkg/domain"
	"matrixpay/pkg/platform/sentinel"
)

type commissionKey struct {
	sponsorID id.MemberID
	recruitID id.MemberID
	stage     int
}

// InMemoryStore keeps the ledger under a single mutex so the commission
// insert and the wallet increment are observed atomically, mirroring the
// transaction the Postgres store uses.
type InMemoryStore struct {
	mu          sync.RWMutex
	commissions map[commissionKey]Commission
	wallets     map[id.MemberID]Wallet
	withdrawals map[id.MemberID][]Withdrawal
	seq         int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		commissions: make(map[commissionKey]Commission),
		wallets:     make(map[id.MemberID]Wallet),
		withdrawals: make(map[id.MemberID][]Withdrawal),
	}
}

func (s *InMemoryStore) CreditCommission(_ context.Context, commission Commission) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := commissionKey{
		sponsorID: commission.SponsorID,
		recruitID: commission.RecruitID,
		stage:     commission.Stage,
	}
	if _, ok := s.commissions[key]; ok {
		return false, nil
	}

	s.seq++
	s.commissions[key] = commission

	wallet := s.wallets[commission.SponsorID]
	wallet.MemberID = commission.SponsorID
	wallet.Balance += commission.Amount
	wallet.UpdatedAt = commission.CreditedAt
	s.wallets[commission.SponsorID] = wallet
	return true, nil
}

func (s *InMemoryStore) HasCommission(_ context.Context, sponsorID, recruitID id.MemberID, stage int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.commissions[commissionKey{sponsorID: sponsorID, recruitID: recruitID, stage: stage}]
	return ok, nil
}

func (s *InMemoryStore) ListCommissions(_ context.Context, sponsorID id.MemberID) ([]Commission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Commission
	for key, commission := range s.commissions {
		if key.sponsorID == sponsorID {
			out = append(out, commission)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreditedAt.Before(out[j].CreditedAt) })
	return out, nil
}

func (s *InMemoryStore) DebitWallet(_ context.Context, withdrawal Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wallet := s.wallets[withdrawal.MemberID]
	if wallet.Balance < withdrawal.Amount {
		return sentinel.ErrInvalidState
	}
	wallet.MemberID = withdrawal.MemberID
	wallet.Balance -= withdrawal.Amount
	wallet.UpdatedAt = withdrawal.AppliedAt
	s.wallets[withdrawal.MemberID] = wallet
	s.withdrawals[withdrawal.MemberID] = append(s.withdrawals[withdrawal.MemberID], withdrawal)
	return nil
}

func (s *InMemoryStore) RestoreWallet(_ context.Context, withdrawal Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wallet := s.wallets[withdrawal.MemberID]
	wallet.MemberID = withdrawal.MemberID
	wallet.Balance += withdrawal.Amount
	wallet.UpdatedAt = withdrawal.AppliedAt
	s.wallets[withdrawal.MemberID] = wallet
	s.withdrawals[withdrawal.MemberID] = append(s.withdrawals[withdrawal.MemberID], withdrawal)
	return nil
}

func (s *InMemoryStore) Wallet(_ context.Context, memberID id.MemberID) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wallet, ok := s.wallets[memberID]
	if !ok {
		return Wallet{MemberID: memberID, UpdatedAt: time.Time{}}, nil
	}
	return wallet, nil
}

func (s *InMemoryStore) ListWithdrawals(_ context.Context, memberID id.MemberID) ([]Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]Withdrawal{}, s.withdrawals[memberID]...), nil
}
