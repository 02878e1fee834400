package stage

import (
	"time"

	"matrixpay/internal/network"
	id "matrixpay/pkg/domain"
)

const (
	MinStage = 1
	MaxStage = 6
)

// Definition is the static matrix configuration for one stage. Stage 1 is the
// 2x2 entry matrix (6 slots); stages 2-6 use the 2x3 shape (14 slots).
type Definition struct {
	Stage           int
	SlotCount       int
	Levels          int
	PerSlotAmount   int64
	CompletionBonus int64
}

// Amounts are in the smallest currency unit.
var definitions = map[int]Definition{
	1: {Stage: 1, SlotCount: 6, Levels: 2, PerSlotAmount: 1_000_00},
	2: {Stage: 2, SlotCount: 14, Levels: 3, PerSlotAmount: 2_000_00, CompletionBonus: 10_000_00},
	3: {Stage: 3, SlotCount: 14, Levels: 3, PerSlotAmount: 5_000_00, CompletionBonus: 40_000_00},
	4: {Stage: 4, SlotCount: 14, Levels: 3, PerSlotAmount: 10_000_00, CompletionBonus: 100_000_00},
	5: {Stage: 5, SlotCount: 14, Levels: 3, PerSlotAmount: 20_000_00, CompletionBonus: 250_000_00},
	6: {Stage: 6, SlotCount: 14, Levels: 3, PerSlotAmount: 50_000_00, CompletionBonus: 1_000_000_00},
}

// DefinitionFor returns the matrix definition for a stage number. The second
// return is false outside 1..6.
func DefinitionFor(stage int) (Definition, bool) {
	def, ok := definitions[stage]
	return def, ok
}

// SlotState is the tagged variant shared between the engine and the tree
// query views. Empty means the position is open; Locked means the position
// (or an ancestor position) is occupied by someone who has not completed the
// prerequisite stage, or sits under an unfilled position in a 2x3 matrix.
type SlotState string

const (
	SlotEmpty    SlotState = "empty"
	SlotLocked   SlotState = "locked"
	SlotOccupied SlotState = "occupied"
)

// Slot is a logical matrix position resolved at evaluation time; it is never
// persisted.
type Slot struct {
	Level    int
	Index    int
	State    SlotState
	Occupant *network.Member
	// Qualified is true only for occupied slots whose occupant holds the
	// prerequisite completion and whose ancestors are all qualified. Only
	// qualified slots count as filled and trigger commissions.
	Qualified bool
}

// View is the evaluation result for one (member, stage).
type View struct {
	MemberID      id.MemberID
	Stage         int
	FilledSlots   int
	RequiredSlots int
	IsComplete    bool
	BonusEligible bool
	Slots         []Slot
}

// QualifiedOccupants returns the members filling qualified slots, deduped in
// slot order. These are the commission-bearing recruits for the matrix owner.
func (v View) QualifiedOccupants() []network.Member {
	seen := make(map[id.MemberID]bool, len(v.Slots))
	var out []network.Member
	for _, slot := range v.Slots {
		if !slot.Qualified || slot.Occupant == nil {
			continue
		}
		if seen[slot.Occupant.ID] {
			continue
		}
		seen[slot.Occupant.ID] = true
		out = append(out, *slot.Occupant)
	}
	return out
}

// Completion marks that a member finished a stage. Append-only: created at
// most once per (member, stage), never deleted or altered.
type Completion struct {
	MemberID    id.MemberID
	Stage       int
	CompletedAt time.Time
}
