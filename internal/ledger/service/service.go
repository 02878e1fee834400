package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"matrixpay/internal/ledger"
	"matrixpay/internal/platform/metrics"
	"matrixpay/internal/stage"
	id "matrixpay/pkg/domain"
	dErrors "matrixpay/pkg/domain-errors"
	"matrixpay/pkg/platform/sentinel"
)

// Publisher receives ledger events. Best-effort, decoupled from the commit
// path: a dropped notification never loses a credit.
type Publisher interface {
	CommissionCredited(ctx context.Context, sponsorID id.MemberID, amount int64, stageNumber int)
	WalletDebited(ctx context.Context, memberID id.MemberID, amount int64)
	WalletRestored(ctx context.Context, memberID id.MemberID, amount int64)
}

// Service converts qualifying-slot and completion events into wallet credits
// with exactly-once semantics, and applies the payout workflow's withdrawal
// decisions.
type Service struct {
	store     ledger.Store
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

func New(store ledger.Store, publisher Publisher, logger *slog.Logger, m *metrics.Metrics) (*Service, error) {
	if store == nil {
		return nil, errors.New("ledger store is required")
	}
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger,
		metrics:   m,
		tracer:    otel.Tracer("matrixpay/ledger"),
	}, nil
}

// CreditSlot credits the per-slot amount for a newly qualified slot. Returns
// created=false when the (sponsor, recruit, stage) key was already credited;
// that outcome is normal control flow, not an error.
func (s *Service) CreditSlot(ctx context.Context, sponsorID, recruitID id.MemberID, stageNumber int) (bool, error) {
	def, ok := stage.DefinitionFor(stageNumber)
	if !ok {
		return false, dErrors.New(dErrors.CodeInvalidInput, "unknown stage")
	}
	return s.credit(ctx, ledger.Commission{
		ID:         id.NewCommissionID(),
		SponsorID:  sponsorID,
		RecruitID:  recruitID,
		Stage:      stageNumber,
		Kind:       ledger.KindSlot,
		Amount:     def.PerSlotAmount,
		CreditedAt: time.Now().UTC(),
	})
}

// CreditBonus awards the completion bonus once per (member, stage). Bonus
// rows use recruit = member, so the commission key space covers them too.
func (s *Service) CreditBonus(ctx context.Context, memberID id.MemberID, stageNumber int) (bool, error) {
	def, ok := stage.DefinitionFor(stageNumber)
	if !ok {
		return false, dErrors.New(dErrors.CodeInvalidInput, "unknown stage")
	}
	if def.CompletionBonus <= 0 {
		return false, nil
	}
	return s.credit(ctx, ledger.Commission{
		ID:         id.NewCommissionID(),
		SponsorID:  memberID,
		RecruitID:  memberID,
		Stage:      stageNumber,
		Kind:       ledger.KindBonus,
		Amount:     def.CompletionBonus,
		CreditedAt: time.Now().UTC(),
	})
}

func (s *Service) credit(ctx context.Context, commission ledger.Commission) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Credit")
	defer span.End()

	created, err := s.store.CreditCommission(ctx, commission)
	if err != nil {
		return false, fmt.Errorf("credit commission: %w", err)
	}
	if !created {
		return false, nil
	}

	s.logger.InfoContext(ctx, "commission credited",
		"sponsor_id", commission.SponsorID.String(),
		"recruit_id", commission.RecruitID.String(),
		"stage", commission.Stage,
		"kind", string(commission.Kind),
		"amount", commission.Amount,
	)
	if s.publisher != nil {
		s.publisher.CommissionCredited(ctx, commission.SponsorID, commission.Amount, commission.Stage)
	}
	return true, nil
}

// ApplyWithdrawal applies an approved or rejected payout decision. Approval
// debits the wallet, refusing any debit that would take the balance negative.
// Rejection restores a previously approved amount; restoring more than was
// ever approved is refused rather than minting balance.
func (s *Service) ApplyWithdrawal(ctx context.Context, memberID id.MemberID, amount int64, status ledger.WithdrawalStatus) (ledger.Withdrawal, error) {
	if amount <= 0 {
		return ledger.Withdrawal{}, dErrors.New(dErrors.CodeInvalidInput, "withdrawal amount must be positive")
	}

	withdrawal := ledger.Withdrawal{
		ID:        id.NewWithdrawalID(),
		MemberID:  memberID,
		Amount:    amount,
		Status:    status,
		AppliedAt: time.Now().UTC(),
	}

	switch status {
	case ledger.WithdrawalApproved:
		if err := s.store.DebitWallet(ctx, withdrawal); err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				if s.metrics != nil {
					s.metrics.WithdrawalsRejected.Inc()
				}
				return ledger.Withdrawal{}, dErrors.New(dErrors.CodeInsufficientBalance,
					"withdrawal exceeds wallet balance")
			}
			return ledger.Withdrawal{}, fmt.Errorf("debit wallet: %w", err)
		}
		if s.publisher != nil {
			s.publisher.WalletDebited(ctx, memberID, amount)
		}
	case ledger.WithdrawalRejected:
		headroom, err := s.approvedHeadroom(ctx, memberID)
		if err != nil {
			return ledger.Withdrawal{}, err
		}
		if amount > headroom {
			return ledger.Withdrawal{}, dErrors.New(dErrors.CodeInvalidState,
				"rejection does not match an approved withdrawal")
		}
		if err := s.store.RestoreWallet(ctx, withdrawal); err != nil {
			return ledger.Withdrawal{}, fmt.Errorf("restore wallet: %w", err)
		}
		if s.publisher != nil {
			s.publisher.WalletRestored(ctx, memberID, amount)
		}
	default:
		return ledger.Withdrawal{}, dErrors.New(dErrors.CodeInvalidInput, "unknown withdrawal status")
	}

	s.logger.InfoContext(ctx, "withdrawal applied",
		"member_id", memberID.String(),
		"amount", amount,
		"status", string(status),
	)
	return withdrawal, nil
}

// approvedHeadroom is the net amount still out with the payout workflow:
// approved debits minus already-restored rejections.
func (s *Service) approvedHeadroom(ctx context.Context, memberID id.MemberID) (int64, error) {
	withdrawals, err := s.store.ListWithdrawals(ctx, memberID)
	if err != nil {
		return 0, fmt.Errorf("list withdrawals: %w", err)
	}
	var headroom int64
	for _, w := range withdrawals {
		switch w.Status {
		case ledger.WithdrawalApproved:
			headroom += w.Amount
		case ledger.WithdrawalRejected:
			headroom -= w.Amount
		}
	}
	return headroom, nil
}

// Wallet returns the member's wallet aggregate.
func (s *Service) Wallet(ctx context.Context, memberID id.MemberID) (ledger.Wallet, error) {
	return s.store.Wallet(ctx, memberID)
}

// Commissions returns the member's credit history.
func (s *Service) Commissions(ctx context.Context, memberID id.MemberID) ([]ledger.Commission, error) {
	return s.store.ListCommissions(ctx, memberID)
}

// HasCommission reports whether the (sponsor, recruit, stage) key was ever
// credited; the tree views use it to annotate slots.
func (s *Service) HasCommission(ctx context.Context, sponsorID, recruitID id.MemberID, stageNumber int) (bool, error) {
	return s.store.HasCommission(ctx, sponsorID, recruitID, stageNumber)
}

// Reconcile verifies the incremental balance against the full history:
// balance == sum(commissions) - sum(approved withdrawals) + sum(restores).
// Any drift is an invariant breach, not a rounding issue.
func (s *Service) Reconcile(ctx context.Context, memberID id.MemberID) error {
	wallet, err := s.store.Wallet(ctx, memberID)
	if err != nil {
		return err
	}
	commissions, err := s.store.ListCommissions(ctx, memberID)
	if err != nil {
		return err
	}
	withdrawals, err := s.store.ListWithdrawals(ctx, memberID)
	if err != nil {
		return err
	}

	var expected int64
	for _, c := range commissions {
		expected += c.Amount
	}
	for _, w := range withdrawals {
		switch w.Status {
		case ledger.WithdrawalApproved:
			expected -= w.Amount
		case ledger.WithdrawalRejected:
			expected += w.Amount
		}
	}

	if wallet.Balance != expected {
		return dErrors.New(dErrors.CodeInvalidState, fmt.Sprintf(
			"wallet %s out of balance: have %d, ledger says %d",
			memberID, wallet.Balance, expected))
	}
	return nil
}
