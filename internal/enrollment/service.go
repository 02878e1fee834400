package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"matrixpay/internal/network"
	netservice "matrixpay/internal/network/service"
	"matrixpay/internal/platform/metrics"
	id "matrixpay/pkg/domain"
	dErrors "matrixpay/pkg/domain-errors"
)

// JoinEvent is the already-validated "member joined under sponsor X" fact the
// registration flow emits. MemberID is optional; when the registration
// service pre-assigns it, replays of the same event are recognized and settle
// as no-ops.
type JoinEvent struct {
	MemberID    string
	DisplayName string
	Handle      string
	SponsorCode string
}

// Graph attaches new members to the network.
type Graph interface {
	Attach(ctx context.Context, params netservice.NewMemberParams) (network.Member, *network.Edge, error)
}

// Engine drives stage progression after an attachment.
type Engine interface {
	Advance(ctx context.Context, memberID id.MemberID) error
}

// Publisher announces committed attachments.
type Publisher interface {
	MemberJoined(ctx context.Context, memberID, sponsorID id.MemberID)
}

// Service is the boundary between registration and the engine: attach, then
// reevaluate the sponsor chain, then notify.
type Service struct {
	graph     Graph
	engine    Engine
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func New(graph Graph, engine Engine, publisher Publisher, logger *slog.Logger, m *metrics.Metrics) (*Service, error) {
	if graph == nil {
		return nil, errors.New("network graph is required")
	}
	if engine == nil {
		return nil, errors.New("stage engine is required")
	}
	return &Service{
		graph:     graph,
		engine:    engine,
		publisher: publisher,
		logger:    logger,
		metrics:   m,
	}, nil
}

// ProcessMemberJoined handles one join event end to end. Replaying the same
// event (same member ID) is safe: the duplicate attachment is detected, no
// second edge is inserted, and the progression pass underneath is fully
// idempotent.
func (s *Service) ProcessMemberJoined(ctx context.Context, event JoinEvent) error {
	if event.DisplayName == "" || event.Handle == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "display name and handle are required")
	}

	params := netservice.NewMemberParams{
		DisplayName: event.DisplayName,
		Handle:      event.Handle,
		SponsorCode: id.ReferralCode(event.SponsorCode),
	}
	if event.MemberID != "" {
		memberID, err := id.ParseMemberID(event.MemberID)
		if err != nil {
			return err
		}
		params.MemberID = memberID
	}

	member, edge, err := s.graph.Attach(ctx, params)
	if err != nil {
		if (dErrors.HasCode(err, dErrors.CodeConflict) || dErrors.HasCode(err, dErrors.CodeDuplicateEdge)) && !params.MemberID.IsZero() {
			// Replay of an event we already applied. Re-run progression so a
			// crash between attach and advance still converges.
			s.logger.InfoContext(ctx, "member joined replayed",
				"member_id", params.MemberID.String(),
			)
			return s.engine.Advance(ctx, params.MemberID)
		}
		return fmt.Errorf("attach member: %w", err)
	}

	if s.metrics != nil {
		s.metrics.MembersAttached.Inc()
	}

	var sponsorID id.MemberID
	if edge != nil {
		sponsorID = edge.ParentID
	}
	s.logger.InfoContext(ctx, "member joined",
		"member_id", member.ID.String(),
		"handle", member.Handle,
		"sponsor_id", sponsorID.String(),
	)
	if s.publisher != nil {
		s.publisher.MemberJoined(ctx, member.ID, sponsorID)
	}

	if err := s.engine.Advance(ctx, member.ID); err != nil {
		// The attachment is committed; the caller replays the event and the
		// idempotency keys make the retry safe.
		return fmt.Errorf("advance after join: %w", err)
	}
	return nil
}
