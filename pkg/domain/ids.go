package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "matrixpay/pkg/domain-errors"
)

// Typed UUID wrappers keep member, commission, and withdrawal identifiers from
// being interchanged by accident. Parse helpers enforce the invariant that IDs
// are valid, non-empty, non-nil UUIDs at trust boundaries.

type MemberID uuid.UUID

type CommissionID uuid.UUID

type WithdrawalID uuid.UUID

func (id MemberID) String() string     { return uuid.UUID(id).String() }
func (id CommissionID) String() string { return uuid.UUID(id).String() }
func (id WithdrawalID) String() string { return uuid.UUID(id).String() }

func (id MemberID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }

// MarshalText renders IDs as canonical UUID strings in JSON and text
// encodings; the [16]byte representation never leaves the process.
func (id MemberID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id CommissionID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id WithdrawalID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *MemberID) UnmarshalText(text []byte) error {
	parsed, err := ParseMemberID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *CommissionID) UnmarshalText(text []byte) error {
	parsed, err := ParseCommissionID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *WithdrawalID) UnmarshalText(text []byte) error {
	parsed, err := ParseWithdrawalID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// NewMemberID mints a fresh member identifier.
func NewMemberID() MemberID { return MemberID(uuid.New()) }

func NewCommissionID() CommissionID { return CommissionID(uuid.New()) }

func NewWithdrawalID() WithdrawalID { return WithdrawalID(uuid.New()) }

func ParseMemberID(s string) (MemberID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return MemberID{}, err
	}
	return MemberID(u), nil
}

func ParseCommissionID(s string) (CommissionID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return CommissionID{}, err
	}
	return CommissionID(u), nil
}

func ParseWithdrawalID(s string) (WithdrawalID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return WithdrawalID{}, err
	}
	return WithdrawalID(u), nil
}

func parseUUID(s string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(dErrors.CodeInvalidInput, "id must be a valid UUID", err)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return u, nil
}

// ReferralCode is the short code a sponsor hands out for recruitment. It is an
// opaque token, not a secret.
type ReferralCode string

func ParseReferralCode(s string) (ReferralCode, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "referral code must not be empty")
	}
	return ReferralCode(s), nil
}

// NewReferralCode derives a compact code from a fresh UUID. Collisions are as
// unlikely as UUID collisions; the store still enforces uniqueness.
func NewReferralCode() ReferralCode {
	raw := uuid.NewString()
	return ReferralCode("MX-" + strings.ToUpper(raw[:8]))
}
