package treequery

import (
	"matrixpay/internal/network"
	"matrixpay/internal/stage"
)

// MatrixView is the read-side rendering of one member's stage matrix: the
// root plus every logical slot with an occupant or an explicit empty/locked
// marker.
type MatrixView struct {
	Root          network.Member
	Stage         int
	DepthLimit    int
	FilledSlots   int
	RequiredSlots int
	IsComplete    bool
	Slots         []SlotView
}

// SlotView decorates an engine slot with the annotations the UI renders.
type SlotView struct {
	Level    int
	Index    int
	State    stage.SlotState
	Occupant *Occupant
}

// Occupant carries per-member annotations for an occupied or locked slot.
type Occupant struct {
	Member network.Member
	// CompletedPrereq reports whether the occupant holds the completion that
	// unlocks this slot (always true for qualified slots).
	CompletedPrereq bool
	// Commissioned reports whether the root has already been credited for
	// this occupant at this stage.
	Commissioned bool
}
