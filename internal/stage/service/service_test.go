package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"matrixpay/internal/ledger"
	ledgerservice "matrixpay/internal/ledger/service"
	"matrixpay/internal/network"
	netservice "matrixpay/internal/network/service"
	"matrixpay/internal/stage"
	id "matrixpay/pkg/domain"
)

// StageEngineSuite wires the engine against the real in-memory graph and
// ledger, the same composition the server uses minus Postgres.
type StageEngineSuite struct {
	suite.Suite
	graph       *netservice.Service
	completions *stage.InMemoryCompletionStore
	ledgerStore *ledger.InMemoryStore
	ledgerSvc   *ledgerservice.Service
	engine      *Service
	ctx         context.Context
}

func TestStageEngineSuite(t *testing.T) {
	suite.Run(t, new(StageEngineSuite))
}

func (s *StageEngineSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	graph, err := netservice.New(network.NewInMemoryStore())
	s.Require().NoError(err)

	s.graph = graph
	s.completions = stage.NewInMemoryCompletionStore()
	s.ledgerStore = ledger.NewInMemoryStore()

	s.ledgerSvc, err = ledgerservice.New(s.ledgerStore, nil, logger, nil)
	s.Require().NoError(err)

	s.engine, err = New(graph, s.completions, s.ledgerSvc, nil, logger, nil)
	s.Require().NoError(err)

	s.ctx = context.Background()
}

// join attaches a member and runs the progression pass, mirroring what the
// enrollment flow does for every inbound event.
func (s *StageEngineSuite) join(handle string, sponsorCode id.ReferralCode) network.Member {
	member, _, err := s.graph.Attach(s.ctx, netservice.NewMemberParams{
		DisplayName: handle,
		Handle:      handle,
		SponsorCode: sponsorCode,
	})
	s.Require().NoError(err)
	s.Require().NoError(s.engine.Advance(s.ctx, member.ID))
	return member
}

// fillEntryMatrix recruits the full two-level tree under root: two children
// and four grandchildren.
func (s *StageEngineSuite) fillEntryMatrix(root network.Member) (last network.Member) {
	a := s.join("a", root.ReferralCode)
	b := s.join("b", root.ReferralCode)
	s.join("a1", a.ReferralCode)
	s.join("a2", a.ReferralCode)
	s.join("b1", b.ReferralCode)
	last = s.join("b2", b.ReferralCode)
	return last
}

func (s *StageEngineSuite) wallet(memberID id.MemberID) int64 {
	wallet, err := s.ledgerSvc.Wallet(s.ctx, memberID)
	s.Require().NoError(err)
	return wallet.Balance
}

func (s *StageEngineSuite) TestEntryMatrixCompletion() {
	root := s.join("root", "")
	s.fillEntryMatrix(root)

	view, err := s.engine.Evaluate(s.ctx, root.ID, 1)
	s.Require().NoError(err)
	s.True(view.IsComplete)
	s.Equal(6, view.FilledSlots)

	// One commission per filled slot at the stage-1 rate, no bonus.
	def, _ := stage.DefinitionFor(1)
	s.Equal(6*def.PerSlotAmount, s.wallet(root.ID))

	commissions, err := s.ledgerSvc.Commissions(s.ctx, root.ID)
	s.Require().NoError(err)
	s.Len(commissions, 6)
	for _, c := range commissions {
		s.Equal(ledger.KindSlot, c.Kind)
		s.Equal(1, c.Stage)
	}

	completions, err := s.engine.Completions(s.ctx, root.ID)
	s.Require().NoError(err)
	s.Require().Len(completions, 1)
	s.Equal(1, completions[0].Stage)

	s.Require().NoError(s.ledgerSvc.Reconcile(s.ctx, root.ID))
}

// TestReplayIsIdempotent replays the progression pass many times and verifies
// nothing is double-credited or double-completed.
func (s *StageEngineSuite) TestReplayIsIdempotent() {
	root := s.join("root", "")
	last := s.fillEntryMatrix(root)

	balance := s.wallet(root.ID)
	for i := 0; i < 5; i++ {
		s.Require().NoError(s.engine.Advance(s.ctx, last.ID))
	}

	s.Equal(balance, s.wallet(root.ID))

	commissions, err := s.ledgerSvc.Commissions(s.ctx, root.ID)
	s.Require().NoError(err)
	s.Len(commissions, 6)

	completions, err := s.engine.Completions(s.ctx, root.ID)
	s.Require().NoError(err)
	s.Len(completions, 1)
}

// TestCompletionCascades verifies that finishing the entry matrix immediately
// qualifies the member in the sponsor's next-stage matrix.
func (s *StageEngineSuite) TestCompletionCascades() {
	grand := s.join("grand", "")
	root := s.join("root", grand.ReferralCode)
	s.fillEntryMatrix(root)

	// root completed stage 1, so it now counts in grand's stage-2 matrix.
	done, err := s.completions.HasCompleted(s.ctx, root.ID, 1)
	s.Require().NoError(err)
	s.True(done)

	credited, err := s.ledgerSvc.HasCommission(s.ctx, grand.ID, root.ID, 2)
	s.Require().NoError(err)
	s.True(credited, "stage-2 slot commission should follow the cascade")

	// grand's wallet: three stage-1 slots (root, a, b) plus the stage-2 slot.
	def1, _ := stage.DefinitionFor(1)
	def2, _ := stage.DefinitionFor(2)
	s.Equal(3*def1.PerSlotAmount+def2.PerSlotAmount, s.wallet(grand.ID))

	s.Require().NoError(s.ledgerSvc.Reconcile(s.ctx, grand.ID))
}

// TestCompletionIsMonotonic verifies that a recorded completion keeps
// reporting complete regardless of what the live view says.
func (s *StageEngineSuite) TestCompletionIsMonotonic() {
	root := s.join("root", "")

	created, err := s.completions.Record(s.ctx, stage.Completion{
		MemberID:    root.ID,
		Stage:       1,
		CompletedAt: time.Now().UTC(),
	})
	s.Require().NoError(err)
	s.True(created)

	view, err := s.engine.Evaluate(s.ctx, root.ID, 1)
	s.Require().NoError(err)
	s.True(view.IsComplete, "recorded completion must outlive the live view")
	s.Equal(0, view.FilledSlots)
}

func (s *StageEngineSuite) TestEvaluateRejectsUnknownStage() {
	root := s.join("root", "")
	for _, stageNumber := range []int{0, 7, -1} {
		_, err := s.engine.Evaluate(s.ctx, root.ID, stageNumber)
		s.Require().Error(err)
	}
}
