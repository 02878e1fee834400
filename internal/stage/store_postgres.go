package stage

import (
	"context"
	"database/sql"
	"fmt"

	id "matrixpay/pkg/domain"
)

// PostgresCompletionStore persists stage completions. The unique key on
// (member_id, stage) plus ON CONFLICT DO NOTHING gives idempotent recording
// without a read-modify-write race.
type PostgresCompletionStore struct {
	db *sql.DB
}

func NewPostgresCompletionStore(db *sql.DB) *PostgresCompletionStore {
	return &PostgresCompletionStore{db: db}
}

func (s *PostgresCompletionStore) Record(ctx context.Context, completion Completion) (bool, error) {
	query := `
		INSERT INTO stage_completions (member_id, stage, completed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (member_id, stage) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		completion.MemberID.String(),
		completion.Stage,
		completion.CompletedAt,
	)
	if err != nil {
		return false, fmt.Errorf("record completion: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record completion rows: %w", err)
	}
	return rows == 1, nil
}

func (s *PostgresCompletionStore) HasCompleted(ctx context.Context, memberID id.MemberID, stage int) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM stage_completions WHERE member_id = $1 AND stage = $2)`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, memberID.String(), stage).Scan(&exists); err != nil {
		return false, fmt.Errorf("has completed: %w", err)
	}
	return exists, nil
}

func (s *PostgresCompletionStore) ListByMember(ctx context.Context, memberID id.MemberID) ([]Completion, error) {
	query := `
		SELECT member_id, stage, completed_at
		FROM stage_completions
		WHERE member_id = $1
		ORDER BY stage ASC
	`
	rows, err := s.db.QueryContext(ctx, query, memberID.String())
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var out []Completion
	for rows.Next() {
		var (
			completion Completion
			rawID      string
		)
		if err := rows.Scan(&rawID, &completion.Stage, &completion.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		memberID, err := id.ParseMemberID(rawID)
		if err != nil {
			return nil, err
		}
		completion.MemberID = memberID
		out = append(out, completion)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completions: %w", err)
	}
	return out, nil
}
