package grouping

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func fact(id string, opts ...func(*models.Fact)) models.Fact {
	f := models.Fact{
		ID:        uuid.MustParse(id),
		Text:      "some fact",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

func pinned(f *models.Fact)   { f.IsPinned = true }
func keyClaim(f *models.Fact) { f.IsKeyClaim = true }

func confidence(score float64) func(*models.Fact) {
	return func(f *models.Fact) { f.ConfidenceScore = score }
}

func createdAt(t time.Time) func(*models.Fact) {
	return func(f *models.Fact) { f.CreatedAt = t }
}

func TestSelectCanonical_PinnedWinsOverEverything(t *testing.T) {
	a := fact("00000000-0000-0000-0000-00000000000a", confidence(0.5))
	b := fact("00000000-0000-0000-0000-00000000000b", pinned, confidence(0.1))
	c := fact("00000000-0000-0000-0000-00000000000c", keyClaim, confidence(0.9))

	canonical := SelectCanonical([]models.Fact{a, b, c})
	assert.Equal(t, b.ID, canonical.ID)
}

func TestSelectCanonical_PriorityChain(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		facts    []models.Fact
		expected string
	}{
		{
			name: "key claim beats confidence",
			facts: []models.Fact{
				fact("00000000-0000-0000-0000-000000000001", confidence(0.99)),
				fact("00000000-0000-0000-0000-000000000002", keyClaim, confidence(0.1)),
			},
			expected: "00000000-0000-0000-0000-000000000002",
		},
		{
			name: "confidence beats age",
			facts: []models.Fact{
				fact("00000000-0000-0000-0000-000000000001", confidence(0.2), createdAt(base)),
				fact("00000000-0000-0000-0000-000000000002", confidence(0.8), createdAt(base.Add(time.Hour))),
			},
			expected: "00000000-0000-0000-0000-000000000002",
		},
		{
			name: "older wins on full tie",
			facts: []models.Fact{
				fact("00000000-0000-0000-0000-000000000001", createdAt(base.Add(time.Hour))),
				fact("00000000-0000-0000-0000-000000000002", createdAt(base)),
			},
			expected: "00000000-0000-0000-0000-000000000002",
		},
		{
			name: "id breaks exact tie",
			facts: []models.Fact{
				fact("00000000-0000-0000-0000-000000000002"),
				fact("00000000-0000-0000-0000-000000000001"),
			},
			expected: "00000000-0000-0000-0000-000000000001",
		},
		{
			name: "single member",
			facts: []models.Fact{
				fact("00000000-0000-0000-0000-000000000001"),
			},
			expected: "00000000-0000-0000-0000-000000000001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			canonical := SelectCanonical(tt.facts)
			assert.Equal(t, uuid.MustParse(tt.expected), canonical.ID)
		})
	}
}

func TestSelectCanonical_InputOrderIndependent(t *testing.T) {
	a := fact("00000000-0000-0000-0000-00000000000a", confidence(0.3))
	b := fact("00000000-0000-0000-0000-00000000000b", confidence(0.7))
	c := fact("00000000-0000-0000-0000-00000000000c", confidence(0.5))

	orderings := [][]models.Fact{
		{a, b, c}, {c, b, a}, {b, a, c}, {c, a, b},
	}

	for _, facts := range orderings {
		assert.Equal(t, b.ID, SelectCanonical(facts).ID)
	}
}

func TestComparators_Individually(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("ByPinned", func(t *testing.T) {
		p := fact("00000000-0000-0000-0000-000000000001", pinned)
		u := fact("00000000-0000-0000-0000-000000000002")
		assert.Negative(t, ByPinned(p, u))
		assert.Positive(t, ByPinned(u, p))
		assert.Zero(t, ByPinned(u, u))
	})

	t.Run("ByKeyClaim", func(t *testing.T) {
		k := fact("00000000-0000-0000-0000-000000000001", keyClaim)
		u := fact("00000000-0000-0000-0000-000000000002")
		assert.Negative(t, ByKeyClaim(k, u))
		assert.Positive(t, ByKeyClaim(u, k))
	})

	t.Run("ByConfidence", func(t *testing.T) {
		hi := fact("00000000-0000-0000-0000-000000000001", confidence(0.9))
		lo := fact("00000000-0000-0000-0000-000000000002", confidence(0.1))
		assert.Negative(t, ByConfidence(hi, lo))
		assert.Positive(t, ByConfidence(lo, hi))
		assert.Zero(t, ByConfidence(hi, hi))
	})

	t.Run("ByCreatedAt", func(t *testing.T) {
		old := fact("00000000-0000-0000-0000-000000000001", createdAt(base))
		new_ := fact("00000000-0000-0000-0000-000000000002", createdAt(base.Add(time.Minute)))
		assert.Negative(t, ByCreatedAt(old, new_))
		assert.Positive(t, ByCreatedAt(new_, old))
	})
}

func TestSelectCanonical_Empty(t *testing.T) {
	canonical := SelectCanonical(nil)
	assert.Equal(t, uuid.Nil, canonical.ID)
}

func TestSortCanonical(t *testing.T) {
	a := fact("00000000-0000-0000-0000-00000000000a")
	b := fact("00000000-0000-0000-0000-00000000000b", pinned)
	c := fact("00000000-0000-0000-0000-00000000000c", keyClaim)

	facts := []models.Fact{a, c, b}
	SortCanonical(facts)

	require.Len(t, facts, 3)
	assert.Equal(t, b.ID, facts[0].ID)
	assert.Equal(t, c.ID, facts[1].ID)
	assert.Equal(t, a.ID, facts[2].ID)
}
