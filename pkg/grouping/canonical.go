package grouping

import (
	"sort"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Comparator orders two facts for canonical selection. Negative means a
// ranks ahead of b, positive means b ranks ahead, zero means this key ties.
type Comparator func(a, b models.Fact) int

// CanonicalOrder is the declared priority chain for picking a group's
// representative. Each key breaks ties only when every earlier key tied.
// The order is load-bearing for auditability: reordering changes which fact
// users see as "the" fact across re-runs.
var CanonicalOrder = []Comparator{
	ByPinned,
	ByKeyClaim,
	ByConfidence,
	ByCreatedAt,
	ByID,
}

// ByPinned ranks pinned facts first
func ByPinned(a, b models.Fact) int {
	return rankBool(a.IsPinned, b.IsPinned)
}

// ByKeyClaim ranks key claims first
func ByKeyClaim(a, b models.Fact) int {
	return rankBool(a.IsKeyClaim, b.IsKeyClaim)
}

// ByConfidence ranks higher extraction confidence first
func ByConfidence(a, b models.Fact) int {
	switch {
	case a.ConfidenceScore > b.ConfidenceScore:
		return -1
	case a.ConfidenceScore < b.ConfidenceScore:
		return 1
	}
	return 0
}

// ByCreatedAt ranks older facts first (stable-first)
func ByCreatedAt(a, b models.Fact) int {
	switch {
	case a.CreatedAt.Before(b.CreatedAt):
		return -1
	case b.CreatedAt.Before(a.CreatedAt):
		return 1
	}
	return 0
}

// ByID is the final total-order key so selection never depends on input
// order
func ByID(a, b models.Fact) int {
	switch {
	case a.ID.String() < b.ID.String():
		return -1
	case a.ID.String() > b.ID.String():
		return 1
	}
	return 0
}

// Compare applies the full canonical priority chain
func Compare(a, b models.Fact) int {
	for _, cmp := range CanonicalOrder {
		if c := cmp(a, b); c != 0 {
			return c
		}
	}
	return 0
}

// SelectCanonical deterministically picks the representative of a group.
// The group must be non-empty; a zero Fact is returned otherwise.
func SelectCanonical(facts []models.Fact) models.Fact {
	if len(facts) == 0 {
		return models.Fact{}
	}

	canonical := facts[0]
	for _, f := range facts[1:] {
		if Compare(f, canonical) < 0 {
			canonical = f
		}
	}
	return canonical
}

// SortCanonical stable-sorts facts by the canonical priority chain, best
// candidate first
func SortCanonical(facts []models.Fact) {
	sort.SliceStable(facts, func(i, j int) bool {
		return Compare(facts[i], facts[j]) < 0
	})
}

func rankBool(a, b bool) int {
	switch {
	case a && !b:
		return -1
	case !a && b:
		return 1
	}
	return 0
}
