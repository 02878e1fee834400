package stage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matrixpay/internal/network"
	id "matrixpay/pkg/domain"
	dErrors "matrixpay/pkg/domain-errors"
)

func member(handle string) network.Member {
	return network.Member{ID: id.NewMemberID(), DisplayName: handle, Handle: handle}
}

func childrenOf(tree map[id.MemberID][]network.Member) ChildrenFunc {
	return func(_ context.Context, memberID id.MemberID) ([]network.Member, error) {
		return tree[memberID], nil
	}
}

func completedSet(done map[id.MemberID]int) CompletedFunc {
	return func(_ context.Context, memberID id.MemberID, stage int) (bool, error) {
		return done[memberID] >= stage, nil
	}
}

func slotByIndex(v View, index int) Slot {
	for _, s := range v.Slots {
		if s.Index == index {
			return s
		}
	}
	return Slot{}
}

func TestBuildViewStageOne(t *testing.T) {
	ctx := context.Background()
	def, _ := DefinitionFor(1)

	root := member("root")
	a, b := member("a"), member("b")
	a1, a2, b1, b2 := member("a1"), member("a2"), member("b1"), member("b2")

	t.Run("a full two-level tree completes the entry matrix", func(t *testing.T) {
		tree := map[id.MemberID][]network.Member{
			root.ID: {a, b},
			a.ID:    {a1, a2},
			b.ID:    {b1, b2},
		}
		view, err := BuildView(ctx, root.ID, def, childrenOf(tree), completedSet(nil))
		require.NoError(t, err)

		assert.Equal(t, 6, view.RequiredSlots)
		assert.Equal(t, 6, view.FilledSlots)
		assert.True(t, view.IsComplete)
		assert.False(t, view.BonusEligible)
		for _, slot := range view.Slots {
			assert.Equal(t, SlotOccupied, slot.State)
			assert.True(t, slot.Qualified)
		}
	})

	t.Run("no prerequisite gates the entry matrix", func(t *testing.T) {
		tree := map[id.MemberID][]network.Member{root.ID: {a}}
		view, err := BuildView(ctx, root.ID, def, childrenOf(tree), completedSet(nil))
		require.NoError(t, err)

		assert.Equal(t, 1, view.FilledSlots)
		assert.False(t, view.IsComplete)
	})

	t.Run("vacancies in the entry matrix are empty, never locked", func(t *testing.T) {
		tree := map[id.MemberID][]network.Member{root.ID: {a}}
		view, err := BuildView(ctx, root.ID, def, childrenOf(tree), completedSet(nil))
		require.NoError(t, err)

		for _, slot := range view.Slots {
			if slot.Occupant == nil {
				assert.Equal(t, SlotEmpty, slot.State, "slot %d/%d", slot.Level, slot.Index)
			}
		}
	})

	t.Run("a third recruit stays outside the matrix", func(t *testing.T) {
		extra := member("extra")
		tree := map[id.MemberID][]network.Member{root.ID: {a, b, extra}}
		view, err := BuildView(ctx, root.ID, def, childrenOf(tree), completedSet(nil))
		require.NoError(t, err)

		for _, slot := range view.Slots {
			if slot.Occupant != nil {
				assert.NotEqual(t, extra.ID, slot.Occupant.ID)
			}
		}
		assert.Equal(t, 2, view.FilledSlots)
	})
}

func TestBuildViewDeepStages(t *testing.T) {
	ctx := context.Background()
	def, _ := DefinitionFor(2)

	root := member("root")
	a, b := member("a"), member("b")
	a1, a2 := member("a1"), member("a2")

	t.Run("occupants need the previous stage to qualify", func(t *testing.T) {
		tree := map[id.MemberID][]network.Member{root.ID: {a, b}}
		done := map[id.MemberID]int{a.ID: 1}

		view, err := BuildView(ctx, root.ID, def, childrenOf(tree), completedSet(done))
		require.NoError(t, err)

		slotA := slotByIndex(view, 1)
		require.NotNil(t, slotA.Occupant)
		assert.Equal(t, SlotOccupied, slotA.State)
		assert.True(t, slotA.Qualified)

		slotB := slotByIndex(view, 2)
		require.NotNil(t, slotB.Occupant)
		assert.Equal(t, SlotLocked, slotB.State)
		assert.False(t, slotB.Qualified)

		assert.Equal(t, 1, view.FilledSlots)
	})

	t.Run("locks propagate down the occupant chain", func(t *testing.T) {
		tree := map[id.MemberID][]network.Member{
			root.ID: {a},
			a.ID:    {a1, a2},
		}
		// a1 and a2 hold the prerequisite but a does not, so their slots
		// inherit the lock.
		done := map[id.MemberID]int{a1.ID: 1, a2.ID: 1}

		view, err := BuildView(ctx, root.ID, def, childrenOf(tree), completedSet(done))
		require.NoError(t, err)

		assert.Equal(t, 0, view.FilledSlots)
		for _, slot := range view.Slots {
			if slot.Occupant != nil {
				assert.Equal(t, SlotLocked, slot.State)
			}
		}
	})

	t.Run("vacancies under unqualified parents are locked", func(t *testing.T) {
		tree := map[id.MemberID][]network.Member{root.ID: {a}}
		view, err := BuildView(ctx, root.ID, def, childrenOf(tree), completedSet(nil))
		require.NoError(t, err)

		// Level 2 positions 1 and 2 sit under the unqualified occupant a.
		level2 := view.Slots[2:6]
		assert.Equal(t, SlotLocked, level2[0].State)
		assert.Equal(t, SlotLocked, level2[1].State)
		// Positions under the vacant level-1 slot are locked too.
		assert.Equal(t, SlotLocked, level2[2].State)
		assert.Equal(t, SlotLocked, level2[3].State)
	})

	t.Run("a fully qualified three-level tree completes", func(t *testing.T) {
		members := make([]network.Member, 14)
		tree := map[id.MemberID][]network.Member{}
		done := map[id.MemberID]int{}
		for i := range members {
			members[i] = member("m")
			done[members[i].ID] = 1
		}
		tree[root.ID] = members[0:2]
		tree[members[0].ID] = members[2:4]
		tree[members[1].ID] = members[4:6]
		tree[members[2].ID] = members[6:8]
		tree[members[3].ID] = members[8:10]
		tree[members[4].ID] = members[10:12]
		tree[members[5].ID] = members[12:14]

		view, err := BuildView(ctx, root.ID, def, childrenOf(tree), completedSet(done))
		require.NoError(t, err)
		assert.Equal(t, 14, view.FilledSlots)
		assert.True(t, view.IsComplete)
		assert.True(t, view.BonusEligible)
		assert.Len(t, view.QualifiedOccupants(), 14)
	})
}

func TestBuildViewShapeViolation(t *testing.T) {
	ctx := context.Background()
	def, _ := DefinitionFor(1)

	root := member("root")
	a := member("a")

	// Corrupt graph: a appears under root and under itself.
	tree := map[id.MemberID][]network.Member{
		root.ID: {a},
		a.ID:    {a},
	}
	_, err := BuildView(ctx, root.ID, def, childrenOf(tree), completedSet(nil))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeSlotShapeViolation))
}
