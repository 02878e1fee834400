//go:build integration

package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"matrixpay/internal/network"
	id "matrixpay/pkg/domain"
	"matrixpay/pkg/platform/sentinel"
	"matrixpay/pkg/testutil/containers"
)

type LedgerPostgresSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	members  *network.PostgresStore
	store    *PostgresStore
}

func TestLedgerPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(LedgerPostgresSuite))
}

func (s *LedgerPostgresSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.members = network.NewPostgres(s.postgres.DB)
	s.store = NewPostgres(s.postgres.DB)
}

func (s *LedgerPostgresSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(),
		"withdrawals", "wallets", "commissions", "stage_completions", "network_edges", "members")
	s.Require().NoError(err)
}

func (s *LedgerPostgresSuite) createMember() id.MemberID {
	memberID := id.NewMemberID()
	err := s.members.CreateMember(context.Background(), network.Member{
		ID:           memberID,
		DisplayName:  "m",
		Handle:       "m-" + memberID.String()[:8],
		ReferralCode: id.NewReferralCode(),
		CreatedAt:    time.Now().UTC(),
	})
	s.Require().NoError(err)
	return memberID
}

func (s *LedgerPostgresSuite) commission(sponsorID, recruitID id.MemberID, stage int, amount int64) Commission {
	return Commission{
		ID:         id.NewCommissionID(),
		SponsorID:  sponsorID,
		RecruitID:  recruitID,
		Stage:      stage,
		Kind:       KindSlot,
		Amount:     amount,
		CreditedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func (s *LedgerPostgresSuite) TestCreditCommission() {
	ctx := context.Background()
	sponsor, recruit := s.createMember(), s.createMember()

	s.Run("first credit inserts and increments the wallet", func() {
		created, err := s.store.CreditCommission(ctx, s.commission(sponsor, recruit, 1, 100_00))
		s.Require().NoError(err)
		s.True(created)

		wallet, err := s.store.Wallet(ctx, sponsor)
		s.Require().NoError(err)
		s.Equal(int64(100_00), wallet.Balance)
	})

	s.Run("replays leave the wallet untouched", func() {
		for i := 0; i < 5; i++ {
			created, err := s.store.CreditCommission(ctx, s.commission(sponsor, recruit, 1, 100_00))
			s.Require().NoError(err)
			s.False(created)
		}

		wallet, err := s.store.Wallet(ctx, sponsor)
		s.Require().NoError(err)
		s.Equal(int64(100_00), wallet.Balance)

		commissions, err := s.store.ListCommissions(ctx, sponsor)
		s.Require().NoError(err)
		s.Len(commissions, 1)
	})
}

// TestConcurrentCredits hammers one idempotency key from many goroutines and
// verifies the wallet is incremented exactly once.
func (s *LedgerPostgresSuite) TestConcurrentCredits() {
	ctx := context.Background()
	sponsor, recruit := s.createMember(), s.createMember()

	const goroutines = 16
	var wg sync.WaitGroup
	var creates atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := s.store.CreditCommission(ctx, s.commission(sponsor, recruit, 2, 200_00))
			if err == nil && created {
				creates.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), creates.Load())

	wallet, err := s.store.Wallet(ctx, sponsor)
	s.Require().NoError(err)
	s.Equal(int64(200_00), wallet.Balance)
}

func (s *LedgerPostgresSuite) TestDebitAndRestore() {
	ctx := context.Background()
	member, recruit := s.createMember(), s.createMember()

	created, err := s.store.CreditCommission(ctx, s.commission(member, recruit, 1, 500_00))
	s.Require().NoError(err)
	s.Require().True(created)

	now := time.Now().UTC().Truncate(time.Microsecond)

	s.Run("debit with sufficient balance", func() {
		err := s.store.DebitWallet(ctx, Withdrawal{
			ID:        id.NewWithdrawalID(),
			MemberID:  member,
			Amount:    300_00,
			Status:    WithdrawalApproved,
			AppliedAt: now,
		})
		s.Require().NoError(err)

		wallet, err := s.store.Wallet(ctx, member)
		s.Require().NoError(err)
		s.Equal(int64(200_00), wallet.Balance)
	})

	s.Run("debit beyond balance fails atomically", func() {
		err := s.store.DebitWallet(ctx, Withdrawal{
			ID:        id.NewWithdrawalID(),
			MemberID:  member,
			Amount:    10_000_00,
			Status:    WithdrawalApproved,
			AppliedAt: now,
		})
		s.Require().ErrorIs(err, sentinel.ErrInvalidState)

		wallet, err := s.store.Wallet(ctx, member)
		s.Require().NoError(err)
		s.Equal(int64(200_00), wallet.Balance)

		withdrawals, err := s.store.ListWithdrawals(ctx, member)
		s.Require().NoError(err)
		s.Len(withdrawals, 1, "no row for the refused debit")
	})

	s.Run("restore adds the amount back", func() {
		err := s.store.RestoreWallet(ctx, Withdrawal{
			ID:        id.NewWithdrawalID(),
			MemberID:  member,
			Amount:    300_00,
			Status:    WithdrawalRejected,
			AppliedAt: now.Add(time.Second),
		})
		s.Require().NoError(err)

		wallet, err := s.store.Wallet(ctx, member)
		s.Require().NoError(err)
		s.Equal(int64(500_00), wallet.Balance)

		withdrawals, err := s.store.ListWithdrawals(ctx, member)
		s.Require().NoError(err)
		s.Require().Len(withdrawals, 2)
		s.Equal(WithdrawalApproved, withdrawals[0].Status)
		s.Equal(WithdrawalRejected, withdrawals[1].Status)
	})
}

// TestConcurrentDebits races debits against one balance and verifies it never
// goes negative.
func (s *LedgerPostgresSuite) TestConcurrentDebits() {
	ctx := context.Background()
	member, recruit := s.createMember(), s.createMember()

	created, err := s.store.CreditCommission(ctx, s.commission(member, recruit, 1, 300_00))
	s.Require().NoError(err)
	s.Require().True(created)

	const goroutines = 8
	var wg sync.WaitGroup
	var successes, refused atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.DebitWallet(ctx, Withdrawal{
				ID:        id.NewWithdrawalID(),
				MemberID:  member,
				Amount:    100_00,
				Status:    WithdrawalApproved,
				AppliedAt: time.Now().UTC(),
			})
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, sentinel.ErrInvalidState):
				refused.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(3), successes.Load())
	s.Equal(int32(goroutines-3), refused.Load())

	wallet, err := s.store.Wallet(ctx, member)
	s.Require().NoError(err)
	s.Equal(int64(0), wallet.Balance)
}

func (s *LedgerPostgresSuite) TestWalletDefaultsToZero() {
	wallet, err := s.store.Wallet(context.Background(), s.createMember())
	s.Require().NoError(err)
	s.Equal(int64(0), wallet.Balance)
}
