package network

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	id "matrixpay/pkg/domain"
	"matrixpay/pkg/platform/sentinel"
)

// PostgresStore persists the graph in PostgreSQL. The unique constraint on
// network_edges(child_id) is what makes single-parent-hood hold under
// concurrent attachments; the store only surfaces the violation.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateMember(ctx context.Context, member Member) error {
	query := `
		INSERT INTO members (id, display_name, handle, referral_code, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query,
		member.ID.String(),
		member.DisplayName,
		member.Handle,
		string(member.ReferralCode),
		member.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			if pqErr.Constraint == "members_pkey" {
				return sentinel.ErrAlreadyExists
			}
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create member: %w", err)
	}
	return nil
}

func (s *PostgresStore) AttachEdge(ctx context.Context, childID, parentID id.MemberID) (Edge, error) {
	query := `
		INSERT INTO network_edges (child_id, parent_id, ordinal, created_at)
		VALUES ($1, $2, nextval('network_edge_ordinal'), now())
		RETURNING ordinal, created_at
	`
	edge := Edge{ChildID: childID, ParentID: parentID}
	err := s.db.QueryRowContext(ctx, query, childID.String(), parentID.String()).
		Scan(&edge.Ordinal, &edge.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code.Name() {
			case "unique_violation":
				return Edge{}, sentinel.ErrConflict
			case "foreign_key_violation":
				return Edge{}, sentinel.ErrNotFound
			}
		}
		return Edge{}, fmt.Errorf("attach edge: %w", err)
	}
	return edge, nil
}

func (s *PostgresStore) FindMember(ctx context.Context, memberID id.MemberID) (Member, error) {
	query := `
		SELECT id, display_name, handle, referral_code, created_at
		FROM members
		WHERE id = $1
	`
	return scanMember(s.db.QueryRowContext(ctx, query, memberID.String()))
}

func (s *PostgresStore) FindByCode(ctx context.Context, code id.ReferralCode) (Member, error) {
	query := `
		SELECT id, display_name, handle, referral_code, created_at
		FROM members
		WHERE referral_code = $1
	`
	return scanMember(s.db.QueryRowContext(ctx, query, string(code)))
}

func (s *PostgresStore) Children(ctx context.Context, parentID id.MemberID) ([]Member, error) {
	query := `
		SELECT m.id, m.display_name, m.handle, m.referral_code, m.created_at
		FROM network_edges e
		JOIN members m ON m.id = e.child_id
		WHERE e.parent_id = $1
		ORDER BY e.ordinal ASC
	`
	rows, err := s.db.QueryContext(ctx, query, parentID.String())
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		member, err := scanMemberRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate children: %w", err)
	}
	return members, nil
}

func (s *PostgresStore) Parent(ctx context.Context, childID id.MemberID) (Member, error) {
	query := `
		SELECT m.id, m.display_name, m.handle, m.referral_code, m.created_at
		FROM network_edges e
		JOIN members m ON m.id = e.parent_id
		WHERE e.child_id = $1
	`
	return scanMember(s.db.QueryRowContext(ctx, query, childID.String()))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row *sql.Row) (Member, error) {
	member, err := scanMemberRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Member{}, sentinel.ErrNotFound
		}
		return Member{}, fmt.Errorf("find member: %w", err)
	}
	return member, nil
}

func scanMemberRow(row rowScanner) (Member, error) {
	var (
		member  Member
		rawID   string
		rawCode string
	)
	if err := row.Scan(&rawID, &member.DisplayName, &member.Handle, &rawCode, &member.CreatedAt); err != nil {
		return Member{}, err
	}
	memberID, err := id.ParseMemberID(rawID)
	if err != nil {
		return Member{}, err
	}
	member.ID = memberID
	member.ReferralCode = id.ReferralCode(rawCode)
	return member, nil
}
