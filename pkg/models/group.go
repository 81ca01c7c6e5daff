package models

import "github.com/google/uuid"

// FactGroup is a connected component of near-duplicate facts. Soft groups
// are ephemeral and display-only; the same shape is used internally for the
// hard-dedup pass. Exactly one member is the representative and CollapsedIDs
// always contains it.
type FactGroup struct {
	GroupID          uuid.UUID   `json:"group_id"`
	RepresentativeID uuid.UUID   `json:"representative_id"`
	CollapsedIDs     []uuid.UUID `json:"collapsed_ids"`
	Size             int         `json:"size"`
}

// IsSingleton reports whether the group has exactly one member
func (g FactGroup) IsSingleton() bool {
	return len(g.CollapsedIDs) == 1
}

// GroupChoice is the user's per-group expansion choice at selection time
type GroupChoice string

const (
	GroupChoiceRepresentativeOnly GroupChoice = "representative-only"
	GroupChoiceIncludeAll         GroupChoice = "include-all"
)

// SelectionItem references either a singleton fact or a grouped
// representative with an expansion choice
type SelectionItem struct {
	FactID      uuid.UUID   `json:"fact_id" validate:"required"`
	GroupID     *uuid.UUID  `json:"group_id,omitempty"`
	GroupChoice GroupChoice `json:"group_choice,omitempty"`
}

// Selection is a user-chosen set of facts destined for synthesis
type Selection struct {
	Items []SelectionItem `json:"items" validate:"required,min=1,dive"`
}

// DegradedGroup records a group whose member fetch failed during
// resolution; resolution proceeded with the representative only
type DegradedGroup struct {
	GroupID uuid.UUID `json:"group_id"`
	Reason  string    `json:"reason"`
}

// ResolvedFactSet is the flat, deduplicated fact list produced by resolving
// a selection. Order is selection order; no fact appears twice; stale IDs
// are dropped, not substituted.
type ResolvedFactSet struct {
	Facts          []Fact          `json:"facts"`
	DegradedGroups []DegradedGroup `json:"degraded_groups,omitempty"`
}

// IDs returns the fact ids in resolution order
func (r ResolvedFactSet) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.Facts))
	for _, f := range r.Facts {
		ids = append(ids, f.ID)
	}
	return ids
}
