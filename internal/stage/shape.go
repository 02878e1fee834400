package stage

import (
	"context"

	"matrixpay/internal/network"
	id "matrixpay/pkg/domain"
	dErrors "matrixpay/pkg/domain-errors"
)

// ChildrenFunc returns a member's direct recruits in slot order.
type ChildrenFunc func(ctx context.Context, memberID id.MemberID) ([]network.Member, error)

// CompletedFunc reports whether a member has completed the given stage.
type CompletedFunc func(ctx context.Context, memberID id.MemberID, stage int) (bool, error)

// BuildView resolves the full slot tree for one (member, stage).
//
// Shape rules: every level is 2-wide per parent position. Stage 1 runs two
// levels deep (2+4=6 slots); stages 2-6 run three (2+4+8=14). For stages 2-6
// an occupant only qualifies once it has completed the previous stage, and a
// slot inherits Locked from any unfilled or unqualified ancestor position.
//
// The tree invariant (single parent per member) makes duplicate occupants
// structurally impossible; seeing one anyway means the graph is corrupt, so
// evaluation halts with SlotShapeViolation rather than produce a wrong
// commission.
func BuildView(ctx context.Context, memberID id.MemberID, def Definition, children ChildrenFunc, completed CompletedFunc) (View, error) {
	view := View{
		MemberID:      memberID,
		Stage:         def.Stage,
		RequiredSlots: def.SlotCount,
	}
	prereq := def.Stage - 1
	seen := map[id.MemberID]bool{memberID: true}

	// cell tracks the occupant feeding the next level and whether its whole
	// ancestor chain is qualified.
	type cell struct {
		memberID  id.MemberID
		hasMember bool
		qualified bool
	}

	prev := []cell{{memberID: memberID, hasMember: true, qualified: true}}
	for level := 1; level <= def.Levels; level++ {
		next := make([]cell, 0, len(prev)*2)
		index := 0
		for _, parent := range prev {
			var kids []network.Member
			if parent.hasMember {
				all, err := children(ctx, parent.memberID)
				if err != nil {
					return View{}, err
				}
				// Only the first two direct recruits occupy matrix positions;
				// later recruits sit outside this matrix.
				if len(all) > 2 {
					all = all[:2]
				}
				kids = all
			}

			for pos := 0; pos < 2; pos++ {
				index++
				slot := Slot{Level: level, Index: index}
				var c cell

				if pos < len(kids) {
					kid := kids[pos]
					if seen[kid.ID] {
						return View{}, dErrors.New(dErrors.CodeSlotShapeViolation,
							"member "+kid.ID.String()+" occupies two positions in one matrix")
					}
					seen[kid.ID] = true

					occupant := kid
					slot.Occupant = &occupant

					qualified := true
					if prereq >= MinStage {
						ok, err := completed(ctx, kid.ID, prereq)
						if err != nil {
							return View{}, err
						}
						qualified = ok
					}

					if parent.qualified && qualified {
						slot.State = SlotOccupied
						slot.Qualified = true
					} else {
						slot.State = SlotLocked
					}
					c = cell{memberID: kid.ID, hasMember: true, qualified: slot.Qualified}
				} else {
					// Vacant position. Stage 1 has no locking; deeper stages
					// lock vacancies under unqualified ancestors.
					if def.Stage == MinStage || parent.qualified {
						slot.State = SlotEmpty
					} else {
						slot.State = SlotLocked
					}
				}

				if slot.Qualified {
					view.FilledSlots++
				}
				view.Slots = append(view.Slots, slot)
				next = append(next, c)
			}
		}
		prev = next
	}

	view.IsComplete = view.FilledSlots == view.RequiredSlots
	view.BonusEligible = view.IsComplete && def.CompletionBonus > 0
	return view, nil
}
