package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"matrixpay/internal/network"
	"matrixpay/internal/platform/metrics"
	"matrixpay/internal/stage"
	id "matrixpay/pkg/domain"
	dErrors "matrixpay/pkg/domain-errors"
)

// maxMatrixDepth is the deepest level any matrix looks down the tree. A new
// event can therefore only change matrices of ancestors within this distance.
const maxMatrixDepth = 3

// Graph is the slice of the network service the engine needs.
type Graph interface {
	Children(ctx context.Context, memberID id.MemberID) ([]network.Member, error)
	Ancestors(ctx context.Context, memberID id.MemberID, maxDepth int) ([]network.Member, error)
}

// Ledger credits qualifying slots and completion bonuses. Both operations are
// idempotent; created=false means the key was already credited.
type Ledger interface {
	CreditSlot(ctx context.Context, sponsorID, recruitID id.MemberID, stageNumber int) (bool, error)
	CreditBonus(ctx context.Context, memberID id.MemberID, stageNumber int) (bool, error)
}

// Publisher receives stage completion events. Best-effort: failures are
// logged, never propagated into the commit path.
type Publisher interface {
	StageCompleted(ctx context.Context, memberID id.MemberID, stageNumber int)
}

// Service evaluates matrix shapes and drives network progression. Evaluate is
// the lock-free read side; Advance is the write side that records completions
// and credits commissions through the ledger.
type Service struct {
	graph       Graph
	completions stage.CompletionStore
	ledger      Ledger
	publisher   Publisher
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

func New(graph Graph, completions stage.CompletionStore, ledger Ledger, publisher Publisher, logger *slog.Logger, m *metrics.Metrics) (*Service, error) {
	if graph == nil {
		return nil, errors.New("network graph is required")
	}
	if completions == nil {
		return nil, errors.New("completion store is required")
	}
	if ledger == nil {
		return nil, errors.New("commission ledger is required")
	}
	return &Service{
		graph:       graph,
		completions: completions,
		ledger:      ledger,
		publisher:   publisher,
		logger:      logger,
		metrics:     m,
		tracer:      otel.Tracer("matrixpay/stage"),
	}, nil
}

// Evaluate resolves the slot tree for one (member, stage). Read-only and
// lock-free; it never records completions or credits anything.
func (s *Service) Evaluate(ctx context.Context, memberID id.MemberID, stageNumber int) (stage.View, error) {
	def, ok := stage.DefinitionFor(stageNumber)
	if !ok {
		return stage.View{}, dErrors.New(dErrors.CodeInvalidInput,
			"stage must be between "+strconv.Itoa(stage.MinStage)+" and "+strconv.Itoa(stage.MaxStage))
	}

	view, err := s.evaluate(ctx, memberID, def)
	if err != nil {
		return stage.View{}, err
	}

	// Monotonicity: a recorded completion outlives the live slot view, so a
	// completed stage always reports complete even while reads lag writes.
	if !view.IsComplete {
		done, err := s.completions.HasCompleted(ctx, memberID, stageNumber)
		if err != nil {
			return stage.View{}, fmt.Errorf("check completion: %w", err)
		}
		if done {
			view.IsComplete = true
		}
	}
	return view, nil
}

func (s *Service) evaluate(ctx context.Context, memberID id.MemberID, def stage.Definition) (stage.View, error) {
	return stage.BuildView(ctx, memberID, def, s.graph.Children, s.completions.HasCompleted)
}

// Completions lists a member's recorded stage completions.
func (s *Service) Completions(ctx context.Context, memberID id.MemberID) ([]stage.Completion, error) {
	return s.completions.ListByMember(ctx, memberID)
}

// Advance reevaluates every matrix a change to memberID can affect: the
// member's ancestors within matrix depth, across all stages. Newly qualified
// slots are credited (idempotently), fresh completions are recorded at most
// once, and each fresh completion re-enqueues its member because it may
// qualify them in an upline matrix one stage up.
//
// Replaying Advance for an already-processed member is a no-op end to end;
// every write underneath is keyed.
func (s *Service) Advance(ctx context.Context, memberID id.MemberID) error {
	ctx, span := s.tracer.Start(ctx, "stage.Advance")
	defer span.End()

	queue := []id.MemberID{memberID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		ancestors, err := s.graph.Ancestors(ctx, current, maxMatrixDepth)
		if err != nil {
			return fmt.Errorf("ancestors of %s: %w", current, err)
		}

		for _, ancestor := range ancestors {
			requeue, err := s.settleMember(ctx, ancestor.ID)
			if err != nil {
				return err
			}
			if requeue {
				queue = append(queue, ancestor.ID)
			}
		}
	}
	return nil
}

// settleMember credits and completes every stage matrix of one member.
// Returns true when a completion was freshly recorded.
func (s *Service) settleMember(ctx context.Context, memberID id.MemberID) (bool, error) {
	var progressed bool
	for stageNumber := stage.MinStage; stageNumber <= stage.MaxStage; stageNumber++ {
		def, _ := stage.DefinitionFor(stageNumber)

		view, err := s.evaluate(ctx, memberID, def)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeSlotShapeViolation) {
				// Structural breach: halt this subtree, do not credit.
				s.logger.ErrorContext(ctx, "slot shape violation, halting subtree",
					"member_id", memberID.String(),
					"stage", stageNumber,
					"error", err.Error(),
				)
			}
			return false, err
		}

		for _, recruit := range view.QualifiedOccupants() {
			created, err := s.ledger.CreditSlot(ctx, memberID, recruit.ID, stageNumber)
			if err != nil {
				return false, fmt.Errorf("credit slot (%s, %s, %d): %w",
					memberID, recruit.ID, stageNumber, err)
			}
			if created && s.metrics != nil {
				s.metrics.CommissionsCredited.WithLabelValues(strconv.Itoa(stageNumber), "slot").Inc()
			}
		}

		if !view.IsComplete {
			continue
		}

		created, err := s.completions.Record(ctx, stage.Completion{
			MemberID:    memberID,
			Stage:       stageNumber,
			CompletedAt: time.Now().UTC(),
		})
		if err != nil {
			return false, fmt.Errorf("record completion (%s, %d): %w", memberID, stageNumber, err)
		}
		if !created {
			continue
		}

		progressed = true
		s.logger.InfoContext(ctx, "stage completed",
			"member_id", memberID.String(),
			"stage", stageNumber,
		)
		if s.metrics != nil {
			s.metrics.StageCompletions.WithLabelValues(strconv.Itoa(stageNumber)).Inc()
		}

		if def.CompletionBonus > 0 {
			bonusCreated, err := s.ledger.CreditBonus(ctx, memberID, stageNumber)
			if err != nil {
				return false, fmt.Errorf("credit bonus (%s, %d): %w", memberID, stageNumber, err)
			}
			if bonusCreated && s.metrics != nil {
				s.metrics.CommissionsCredited.WithLabelValues(strconv.Itoa(stageNumber), "bonus").Inc()
			}
		}

		if s.publisher != nil {
			s.publisher.StageCompleted(ctx, memberID, stageNumber)
		}
	}
	return progressed, nil
}
