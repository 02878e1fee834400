package treequery

import (
	"context"
	"errors"

	"matrixpay/internal/network"
	"matrixpay/internal/stage"
	id "matrixpay/pkg/domain"
	dErrors "matrixpay/pkg/domain-errors"
)

// Graph is the slice of the network service the views need.
type Graph interface {
	FindMember(ctx context.Context, memberID id.MemberID) (network.Member, error)
	IsDescendant(ctx context.Context, rootID, targetID id.MemberID) (bool, error)
}

// Engine is the read side of the stage engine.
type Engine interface {
	Evaluate(ctx context.Context, memberID id.MemberID, stageNumber int) (stage.View, error)
	Completions(ctx context.Context, memberID id.MemberID) ([]stage.Completion, error)
}

// Ledger answers slot annotation lookups.
type Ledger interface {
	HasCommission(ctx context.Context, sponsorID, recruitID id.MemberID, stageNumber int) (bool, error)
}

// Service renders bounded-depth matrix views and drill-downs. Pure reads: no
// locks, no writes, tolerant of views lagging the latest commit by one
// propagation cycle.
type Service struct {
	graph  Graph
	engine Engine
	ledger Ledger
}

func New(graph Graph, engine Engine, ledger Ledger) (*Service, error) {
	if graph == nil {
		return nil, errors.New("network graph is required")
	}
	if engine == nil {
		return nil, errors.New("stage engine is required")
	}
	if ledger == nil {
		return nil, errors.New("commission ledger is required")
	}
	return &Service{graph: graph, engine: engine, ledger: ledger}, nil
}

// ViewMatrix renders rootID's matrix for a stage. depthLimit trims levels
// below the limit; 0 means the full shape (which is itself bounded at three
// levels, so no wall-clock timeout is needed).
func (s *Service) ViewMatrix(ctx context.Context, rootID id.MemberID, stageNumber, depthLimit int) (MatrixView, error) {
	root, err := s.graph.FindMember(ctx, rootID)
	if err != nil {
		return MatrixView{}, err
	}

	engineView, err := s.engine.Evaluate(ctx, rootID, stageNumber)
	if err != nil {
		return MatrixView{}, err
	}

	view := MatrixView{
		Root:          root,
		Stage:         stageNumber,
		DepthLimit:    depthLimit,
		FilledSlots:   engineView.FilledSlots,
		RequiredSlots: engineView.RequiredSlots,
		IsComplete:    engineView.IsComplete,
	}

	for _, slot := range engineView.Slots {
		if depthLimit > 0 && slot.Level > depthLimit {
			continue
		}
		sv := SlotView{Level: slot.Level, Index: slot.Index, State: slot.State}
		if slot.Occupant != nil {
			occupant := Occupant{Member: *slot.Occupant, CompletedPrereq: slot.Qualified}
			commissioned, err := s.ledger.HasCommission(ctx, rootID, slot.Occupant.ID, stageNumber)
			if err != nil {
				return MatrixView{}, err
			}
			occupant.Commissioned = commissioned
			sv.Occupant = &occupant
		}
		view.Slots = append(view.Slots, sv)
	}
	return view, nil
}

// DrillInto re-roots the view at targetID, provided target sits inside
// currentRoot's subtree. Members cannot render trees they are not an ancestor
// of.
func (s *Service) DrillInto(ctx context.Context, currentRootID, targetID id.MemberID, stageNumber, depthLimit int) (MatrixView, error) {
	ok, err := s.graph.IsDescendant(ctx, currentRootID, targetID)
	if err != nil {
		return MatrixView{}, err
	}
	if !ok {
		return MatrixView{}, dErrors.New(dErrors.CodeForbidden,
			"target member is not in the requester's downline")
	}
	return s.ViewMatrix(ctx, targetID, stageNumber, depthLimit)
}

// StageCompletions lists the member's recorded completions for the UI.
func (s *Service) StageCompletions(ctx context.Context, memberID id.MemberID) ([]stage.Completion, error) {
	if _, err := s.graph.FindMember(ctx, memberID); err != nil {
		return nil, err
	}
	return s.engine.Completions(ctx, memberID)
}
