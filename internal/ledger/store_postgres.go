package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	id "matrixpay/pkg/domain"
	"matrixpay/pkg/platform/sentinel"
)

// PostgresStore persists the ledger. Idempotency rides on the unique key
// commissions(sponsor_id, recruit_id, stage) with ON CONFLICT DO NOTHING; the
// wallet increment shares the transaction, so a failed increment rolls the
// commission back and a replayed event is a clean no-op.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreditCommission(ctx context.Context, commission Commission) (created bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin credit tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	insert := `
		INSERT INTO commissions (id, sponsor_id, recruit_id, stage, kind, amount, credited_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (sponsor_id, recruit_id, stage) DO NOTHING
	`
	res, err := tx.ExecContext(ctx, insert,
		commission.ID.String(),
		commission.SponsorID.String(),
		commission.RecruitID.String(),
		commission.Stage,
		string(commission.Kind),
		commission.Amount,
		commission.CreditedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert commission: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert commission rows: %w", err)
	}
	if rows == 0 {
		// Already credited; nothing to commit.
		if err = tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			return false, fmt.Errorf("rollback noop credit: %w", err)
		}
		err = nil
		return false, nil
	}

	upsert := `
		INSERT INTO wallets (member_id, balance, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (member_id) DO UPDATE SET
			balance = wallets.balance + EXCLUDED.balance,
			updated_at = EXCLUDED.updated_at
	`
	if _, err = tx.ExecContext(ctx, upsert,
		commission.SponsorID.String(),
		commission.Amount,
		commission.CreditedAt,
	); err != nil {
		return false, fmt.Errorf("increment wallet: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit credit: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) HasCommission(ctx context.Context, sponsorID, recruitID id.MemberID, stage int) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM commissions
			WHERE sponsor_id = $1 AND recruit_id = $2 AND stage = $3
		)
	`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, sponsorID.String(), recruitID.String(), stage).Scan(&exists); err != nil {
		return false, fmt.Errorf("has commission: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListCommissions(ctx context.Context, sponsorID id.MemberID) ([]Commission, error) {
	query := `
		SELECT id, sponsor_id, recruit_id, stage, kind, amount, credited_at
		FROM commissions
		WHERE sponsor_id = $1
		ORDER BY credited_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, sponsorID.String())
	if err != nil {
		return nil, fmt.Errorf("list commissions: %w", err)
	}
	defer rows.Close()

	var out []Commission
	for rows.Next() {
		var (
			commission Commission
			rawID      string
			rawSponsor string
			rawRecruit string
			rawKind    string
		)
		if err := rows.Scan(&rawID, &rawSponsor, &rawRecruit, &commission.Stage, &rawKind, &commission.Amount, &commission.CreditedAt); err != nil {
			return nil, fmt.Errorf("scan commission: %w", err)
		}
		if commission.ID, err = id.ParseCommissionID(rawID); err != nil {
			return nil, err
		}
		if commission.SponsorID, err = id.ParseMemberID(rawSponsor); err != nil {
			return nil, err
		}
		if commission.RecruitID, err = id.ParseMemberID(rawRecruit); err != nil {
			return nil, err
		}
		commission.Kind = CommissionKind(rawKind)
		out = append(out, commission)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commissions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DebitWallet(ctx context.Context, withdrawal Withdrawal) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin debit tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// The balance guard lives in the WHERE clause so concurrent debits cannot
	// race the wallet below zero.
	debit := `
		UPDATE wallets
		SET balance = balance - $2, updated_at = $3
		WHERE member_id = $1 AND balance >= $2
	`
	res, err := tx.ExecContext(ctx, debit,
		withdrawal.MemberID.String(),
		withdrawal.Amount,
		withdrawal.AppliedAt,
	)
	if err != nil {
		return fmt.Errorf("debit wallet: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit wallet rows: %w", err)
	}
	if rows == 0 {
		err = sentinel.ErrInvalidState
		return err
	}

	if err = insertWithdrawal(ctx, tx, withdrawal); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit debit: %w", err)
	}
	return nil
}

func (s *PostgresStore) RestoreWallet(ctx context.Context, withdrawal Withdrawal) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin restore tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	restore := `
		INSERT INTO wallets (member_id, balance, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (member_id) DO UPDATE SET
			balance = wallets.balance + EXCLUDED.balance,
			updated_at = EXCLUDED.updated_at
	`
	if _, err = tx.ExecContext(ctx, restore,
		withdrawal.MemberID.String(),
		withdrawal.Amount,
		withdrawal.AppliedAt,
	); err != nil {
		return fmt.Errorf("restore wallet: %w", err)
	}

	if err = insertWithdrawal(ctx, tx, withdrawal); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit restore: %w", err)
	}
	return nil
}

func insertWithdrawal(ctx context.Context, tx *sql.Tx, withdrawal Withdrawal) error {
	insert := `
		INSERT INTO withdrawals (id, member_id, amount, status, applied_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.ExecContext(ctx, insert,
		withdrawal.ID.String(),
		withdrawal.MemberID.String(),
		withdrawal.Amount,
		string(withdrawal.Status),
		withdrawal.AppliedAt,
	); err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

func (s *PostgresStore) Wallet(ctx context.Context, memberID id.MemberID) (Wallet, error) {
	query := `SELECT member_id, balance, updated_at FROM wallets WHERE member_id = $1`
	var (
		wallet Wallet
		rawID  string
	)
	err := s.db.QueryRowContext(ctx, query, memberID.String()).
		Scan(&rawID, &wallet.Balance, &wallet.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Wallet{MemberID: memberID}, nil
		}
		return Wallet{}, fmt.Errorf("get wallet: %w", err)
	}
	wallet.MemberID = memberID
	return wallet, nil
}

func (s *PostgresStore) ListWithdrawals(ctx context.Context, memberID id.MemberID) ([]Withdrawal, error) {
	query := `
		SELECT id, member_id, amount, status, applied_at
		FROM withdrawals
		WHERE member_id = $1
		ORDER BY applied_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, memberID.String())
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	defer rows.Close()

	var out []Withdrawal
	for rows.Next() {
		var (
			withdrawal Withdrawal
			rawID      string
			rawMember  string
			rawStatus  string
		)
		if err := rows.Scan(&rawID, &rawMember, &withdrawal.Amount, &rawStatus, &withdrawal.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan withdrawal: %w", err)
		}
		if withdrawal.ID, err = id.ParseWithdrawalID(rawID); err != nil {
			return nil, err
		}
		if withdrawal.MemberID, err = id.ParseMemberID(rawMember); err != nil {
			return nil, err
		}
		withdrawal.Status = WithdrawalStatus(rawStatus)
		out = append(out, withdrawal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate withdrawals: %w", err)
	}
	return out, nil
}
