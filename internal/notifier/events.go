package notifier

import (
	"time"

	id "matrixpay/pkg/domain"
)

// EventType names the state changes the engine announces. Subscribers must
// treat delivery as best-effort and reconcile by re-querying on reconnect.
type EventType string

const (
	EventMemberJoined       EventType = "member_joined"
	EventStageCompleted     EventType = "stage_completed"
	EventCommissionCredited EventType = "commission_credited"
	EventWalletDebited      EventType = "wallet_debited"
	EventWalletRestored     EventType = "wallet_restored"
)

// Event is emitted from domain logic after a state change commits. Keep it
// transport-agnostic so sinks can fan out to Kafka, Redis, or tests.
type Event struct {
	Type      EventType   `json:"type"`
	At        time.Time   `json:"at"`
	MemberID  id.MemberID `json:"member_id"`
	SponsorID id.MemberID `json:"sponsor_id,omitempty"`
	Stage     int         `json:"stage,omitempty"`
	Amount    int64       `json:"amount,omitempty"`
}
