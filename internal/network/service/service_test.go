package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"matrixpay/internal/network"
	id "matrixpay/pkg/domain"
	dErrors "matrixpay/pkg/domain-errors"
)

type NetworkServiceSuite struct {
	suite.Suite
	svc *Service
	ctx context.Context
}

func TestNetworkServiceSuite(t *testing.T) {
	suite.Run(t, new(NetworkServiceSuite))
}

func (s *NetworkServiceSuite) SetupTest() {
	svc, err := New(network.NewInMemoryStore())
	s.Require().NoError(err)
	s.svc = svc
	s.ctx = context.Background()
}

func (s *NetworkServiceSuite) attach(handle string, sponsorCode id.ReferralCode) network.Member {
	member, _, err := s.svc.Attach(s.ctx, NewMemberParams{
		DisplayName: handle,
		Handle:      handle,
		SponsorCode: sponsorCode,
	})
	s.Require().NoError(err)
	return member
}

func (s *NetworkServiceSuite) TestAttach() {
	s.Run("empty sponsor code creates a root with no edge", func() {
		member, edge, err := s.svc.Attach(s.ctx, NewMemberParams{
			DisplayName: "Founder",
			Handle:      "founder",
		})
		s.Require().NoError(err)
		s.Nil(edge)
		s.False(member.ID.IsZero())
		s.NotEmpty(member.ReferralCode)
	})

	s.Run("sponsor code resolves and the edge lands on the sponsor", func() {
		sponsor := s.attach("sponsor", "")

		member, edge, err := s.svc.Attach(s.ctx, NewMemberParams{
			DisplayName: "Recruit",
			Handle:      "recruit",
			SponsorCode: sponsor.ReferralCode,
		})
		s.Require().NoError(err)
		s.Require().NotNil(edge)
		s.Equal(sponsor.ID, edge.ParentID)
		s.Equal(member.ID, edge.ChildID)
	})

	s.Run("unknown sponsor code blocks registration", func() {
		_, _, err := s.svc.Attach(s.ctx, NewMemberParams{
			DisplayName: "Orphan",
			Handle:      "orphan",
			SponsorCode: "MX-DOESNOTX",
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidSponsor))
	})

	s.Run("replaying a pre-assigned member ID is a conflict, not a second edge", func() {
		sponsor := s.attach("sponsor2", "")
		memberID := id.NewMemberID()

		_, _, err := s.svc.Attach(s.ctx, NewMemberParams{
			MemberID:    memberID,
			DisplayName: "Recruit2",
			Handle:      "recruit2",
			SponsorCode: sponsor.ReferralCode,
		})
		s.Require().NoError(err)

		_, _, err = s.svc.Attach(s.ctx, NewMemberParams{
			MemberID:    memberID,
			DisplayName: "Recruit2",
			Handle:      "recruit2",
			SponsorCode: sponsor.ReferralCode,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		children, err := s.svc.Children(s.ctx, sponsor.ID)
		s.Require().NoError(err)
		s.Len(children, 1)
	})
}

func (s *NetworkServiceSuite) TestTraversals() {
	// root -> a, b; a -> c, d; c -> e
	root := s.attach("root", "")
	a := s.attach("a", root.ReferralCode)
	b := s.attach("b", root.ReferralCode)
	c := s.attach("c", a.ReferralCode)
	d := s.attach("d", a.ReferralCode)
	e := s.attach("e", c.ReferralCode)

	s.Run("descendants walk breadth-first in insertion order", func() {
		nodes, err := s.svc.Descendants(s.ctx, root.ID, 3)
		s.Require().NoError(err)
		s.Require().Len(nodes, 5)

		handles := make([]string, 0, len(nodes))
		for _, n := range nodes {
			handles = append(handles, n.Member.Handle)
		}
		s.Equal([]string{"a", "b", "c", "d", "e"}, handles)
		s.Equal(1, nodes[0].Depth)
		s.Equal(3, nodes[4].Depth)
	})

	s.Run("descendants honor the depth bound", func() {
		nodes, err := s.svc.Descendants(s.ctx, root.ID, 1)
		s.Require().NoError(err)
		s.Len(nodes, 2)

		nodes, err = s.svc.Descendants(s.ctx, root.ID, 0)
		s.Require().NoError(err)
		s.Empty(nodes)
	})

	s.Run("ancestors come back nearest first", func() {
		ancestors, err := s.svc.Ancestors(s.ctx, e.ID, 10)
		s.Require().NoError(err)
		s.Require().Len(ancestors, 3)
		s.Equal(c.ID, ancestors[0].ID)
		s.Equal(a.ID, ancestors[1].ID)
		s.Equal(root.ID, ancestors[2].ID)
	})

	s.Run("ancestors stop at the depth bound", func() {
		ancestors, err := s.svc.Ancestors(s.ctx, e.ID, 2)
		s.Require().NoError(err)
		s.Require().Len(ancestors, 2)
		s.Equal(c.ID, ancestors[0].ID)
	})

	s.Run("descendant checks", func() {
		ok, err := s.svc.IsDescendant(s.ctx, root.ID, e.ID)
		s.Require().NoError(err)
		s.True(ok)

		ok, err = s.svc.IsDescendant(s.ctx, b.ID, e.ID)
		s.Require().NoError(err)
		s.False(ok)

		ok, err = s.svc.IsDescendant(s.ctx, d.ID, d.ID)
		s.Require().NoError(err)
		s.False(ok, "a member is not its own descendant")
	})
}
