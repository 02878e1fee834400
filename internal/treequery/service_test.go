package treequery

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"

	"matrixpay/internal/ledger"
	ledgerservice "matrixpay/internal/ledger/service"
	"matrixpay/internal/network"
	netservice "matrixpay/internal/network/service"
	"matrixpay/internal/stage"
	stageservice "matrixpay/internal/stage/service"
	id "matrixpay/pkg/domain"
	dErrors "matrixpay/pkg/domain-errors"
)

type TreeQuerySuite struct {
	suite.Suite
	graph  *netservice.Service
	engine *stageservice.Service
	svc    *Service
	ctx    context.Context
}

func TestTreeQuerySuite(t *testing.T) {
	suite.Run(t, new(TreeQuerySuite))
}

func (s *TreeQuerySuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	graph, err := netservice.New(network.NewInMemoryStore())
	s.Require().NoError(err)

	ledgerSvc, err := ledgerservice.New(ledger.NewInMemoryStore(), nil, logger, nil)
	s.Require().NoError(err)

	engine, err := stageservice.New(graph, stage.NewInMemoryCompletionStore(), ledgerSvc, nil, logger, nil)
	s.Require().NoError(err)

	svc, err := New(graph, engine, ledgerSvc)
	s.Require().NoError(err)

	s.graph = graph
	s.engine = engine
	s.svc = svc
	s.ctx = context.Background()
}

func (s *TreeQuerySuite) join(handle string, sponsorCode id.ReferralCode) network.Member {
	member, _, err := s.graph.Attach(s.ctx, netservice.NewMemberParams{
		DisplayName: handle,
		Handle:      handle,
		SponsorCode: sponsorCode,
	})
	s.Require().NoError(err)
	s.Require().NoError(s.engine.Advance(s.ctx, member.ID))
	return member
}

func (s *TreeQuerySuite) TestViewMatrix() {
	root := s.join("root", "")
	a := s.join("a", root.ReferralCode)
	s.join("a1", a.ReferralCode)

	s.Run("renders occupants with commission annotations", func() {
		view, err := s.svc.ViewMatrix(s.ctx, root.ID, 1, 0)
		s.Require().NoError(err)

		s.Equal(root.ID, view.Root.ID)
		s.Equal(6, view.RequiredSlots)
		s.Equal(2, view.FilledSlots)
		s.Require().Len(view.Slots, 6)

		occupied := 0
		for _, slot := range view.Slots {
			if slot.Occupant == nil {
				s.Equal(stage.SlotEmpty, slot.State)
				continue
			}
			occupied++
			s.True(slot.Occupant.CompletedPrereq)
			s.True(slot.Occupant.Commissioned, "progression already credited these slots")
		}
		s.Equal(2, occupied)
	})

	s.Run("depth limit trims deeper levels", func() {
		view, err := s.svc.ViewMatrix(s.ctx, root.ID, 1, 1)
		s.Require().NoError(err)
		s.Require().Len(view.Slots, 2)
		for _, slot := range view.Slots {
			s.Equal(1, slot.Level)
		}
		// Aggregates still describe the whole matrix.
		s.Equal(2, view.FilledSlots)
	})

	s.Run("unknown member is not found", func() {
		_, err := s.svc.ViewMatrix(s.ctx, id.NewMemberID(), 1, 0)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("deeper stages mark unqualified occupants", func() {
		view, err := s.svc.ViewMatrix(s.ctx, root.ID, 2, 0)
		s.Require().NoError(err)
		s.Equal(0, view.FilledSlots)
		for _, slot := range view.Slots {
			if slot.Occupant != nil {
				s.Equal(stage.SlotLocked, slot.State)
				s.False(slot.Occupant.CompletedPrereq)
			}
		}
	})
}

func (s *TreeQuerySuite) TestDrillInto() {
	root := s.join("root", "")
	a := s.join("a", root.ReferralCode)
	b := s.join("b", root.ReferralCode)
	a1 := s.join("a1", a.ReferralCode)

	s.Run("ancestors can re-root into their downline", func() {
		view, err := s.svc.DrillInto(s.ctx, root.ID, a.ID, 1, 0)
		s.Require().NoError(err)
		s.Equal(a.ID, view.Root.ID)
		s.Equal(1, view.FilledSlots)
	})

	s.Run("siblings are out of bounds", func() {
		_, err := s.svc.DrillInto(s.ctx, b.ID, a1.ID, 1, 0)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("drilling up the tree is forbidden", func() {
		_, err := s.svc.DrillInto(s.ctx, a1.ID, root.ID, 1, 0)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *TreeQuerySuite) TestStageCompletions() {
	root := s.join("root", "")

	s.Run("new members have no completions", func() {
		completions, err := s.svc.StageCompletions(s.ctx, root.ID)
		s.Require().NoError(err)
		s.Empty(completions)
	})

	s.Run("unknown members are rejected", func() {
		_, err := s.svc.StageCompletions(s.ctx, id.NewMemberID())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
