package notifier

//go:generate mockgen -source=notifier.go -destination=mocks/sink_mock.go -package=mocks Sink

import (
	"context"
	"log/slog"
	"time"

	id "matrixpay/pkg/domain"
)

// Sink delivers one event to one destination.
type Sink interface {
	Deliver(ctx context.Context, event Event) error
}

// Notifier decouples domain code from delivery. Publishing enqueues onto a
// buffered inbox and never blocks the commit path: when the inbox is full the
// event is dropped with a warning, because losing a notification must never
// lose a commission. A worker goroutine drains the inbox into every sink.
type Notifier struct {
	inbox  chan Event
	sinks  []Sink
	logger *slog.Logger
}

func New(logger *slog.Logger, buffer int, sinks ...Sink) *Notifier {
	if buffer <= 0 {
		buffer = 256
	}
	return &Notifier{
		inbox:  make(chan Event, buffer),
		sinks:  sinks,
		logger: logger,
	}
}

// Run drains the inbox until the context is cancelled. Sink failures are
// logged and skipped; one slow sink must not starve the rest.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-n.inbox:
			for _, sink := range n.sinks {
				if err := sink.Deliver(ctx, event); err != nil {
					n.logger.WarnContext(ctx, "event delivery failed",
						"type", string(event.Type),
						"member_id", event.MemberID.String(),
						"error", err.Error(),
					)
				}
			}
		}
	}
}

func (n *Notifier) publish(event Event) {
	select {
	case n.inbox <- event:
	default:
		n.logger.Warn("event dropped, notifier inbox full",
			"type", string(event.Type),
			"member_id", event.MemberID.String(),
		)
	}
}

// MemberJoined announces a committed attachment.
func (n *Notifier) MemberJoined(_ context.Context, memberID, sponsorID id.MemberID) {
	n.publish(Event{
		Type:      EventMemberJoined,
		At:        time.Now().UTC(),
		MemberID:  memberID,
		SponsorID: sponsorID,
	})
}

// StageCompleted announces a freshly recorded completion.
func (n *Notifier) StageCompleted(_ context.Context, memberID id.MemberID, stageNumber int) {
	n.publish(Event{
		Type:     EventStageCompleted,
		At:       time.Now().UTC(),
		MemberID: memberID,
		Stage:    stageNumber,
	})
}

// CommissionCredited announces a committed credit.
func (n *Notifier) CommissionCredited(_ context.Context, sponsorID id.MemberID, amount int64, stageNumber int) {
	n.publish(Event{
		Type:     EventCommissionCredited,
		At:       time.Now().UTC(),
		MemberID: sponsorID,
		Stage:    stageNumber,
		Amount:   amount,
	})
}

// WalletDebited announces an approved withdrawal debit.
func (n *Notifier) WalletDebited(_ context.Context, memberID id.MemberID, amount int64) {
	n.publish(Event{
		Type:     EventWalletDebited,
		At:       time.Now().UTC(),
		MemberID: memberID,
		Amount:   amount,
	})
}

// WalletRestored announces a rejected-withdrawal restore.
func (n *Notifier) WalletRestored(_ context.Context, memberID id.MemberID, amount int64) {
	n.publish(Event{
		Type:     EventWalletRestored,
		At:       time.Now().UTC(),
		MemberID: memberID,
		Amount:   amount,
	})
}
