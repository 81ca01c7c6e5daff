// Package grouping partitions facts into connected components of near
// duplicates and picks each component's canonical representative
package grouping

import (
	"sort"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/similarity"
)

// groupNamespace seeds deterministic soft-group ids so the same fact set
// yields the same group ids across list reads within a project
var groupNamespace = uuid.MustParse("8f6f3c0a-5d1e-4f5b-9c2e-1a7d4b8e9f01")

// Builder partitions a fact set into similarity groups
type Builder struct {
	config BuilderConfig
}

// BuilderConfig contains configuration for the group builder
type BuilderConfig struct {
	// GroupLimit bounds the number of facts entering pairwise comparison.
	// Facts beyond the limit become singletons instead of silently
	// degrading latency on pathologically large projects.
	GroupLimit int
}

// DefaultConfig returns default builder configuration
func DefaultConfig() BuilderConfig {
	return BuilderConfig{GroupLimit: 2000}
}

// NewBuilder creates a new group builder
func NewBuilder(config BuilderConfig) *Builder {
	if config.GroupLimit <= 0 {
		config.GroupLimit = DefaultConfig().GroupLimit
	}
	return &Builder{config: config}
}

// Build partitions facts into groups whose pairwise-linked similarity is at
// least threshold. Groups are connected components: A~B and B~C land in one
// group even when A and C are not directly similar; chains of near
// duplicates are meant to collapse together.
//
// The result is a partition of the input: every fact appears in exactly one
// group and each group's CollapsedIDs contains its representative. Output
// ordering is deterministic for a fixed input set.
func (b *Builder) Build(facts []models.Fact, threshold float64) []models.FactGroup {
	if len(facts) == 0 {
		return []models.FactGroup{}
	}

	// Stable candidate order so truncation and union-find are
	// reproducible regardless of caller ordering.
	ordered := make([]models.Fact, len(facts))
	copy(ordered, facts)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID.String() < ordered[j].ID.String()
	})

	limit := len(ordered)
	if limit > b.config.GroupLimit {
		limit = b.config.GroupLimit
	}

	parent := make([]int, len(ordered))
	for i := range parent {
		parent[i] = i
	}

	// Union-find over all pairs inside the candidate window. Facts past
	// the window stay singletons.
	for i := 0; i < limit; i++ {
		for j := i + 1; j < limit; j++ {
			if similarity.Score(ordered[i].Text, ordered[j].Text) >= threshold {
				union(parent, i, j)
			}
		}
	}

	components := make(map[int][]models.Fact)
	roots := make([]int, 0)
	for i := range ordered {
		root := find(parent, i)
		if _, ok := components[root]; !ok {
			roots = append(roots, root)
		}
		components[root] = append(components[root], ordered[i])
	}

	groups := make([]models.FactGroup, 0, len(roots))
	for _, root := range roots {
		members := components[root]
		canonical := SelectCanonical(members)

		ids := make([]uuid.UUID, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.ID)
		}

		groups = append(groups, models.FactGroup{
			GroupID:          deriveGroupID(ids),
			RepresentativeID: canonical.ID,
			CollapsedIDs:     ids,
			Size:             len(ids),
		})
	}

	return groups
}

// deriveGroupID builds a deterministic group id from the sorted member set
func deriveGroupID(ids []uuid.UUID) uuid.UUID {
	sorted := make([]string, 0, len(ids))
	for _, id := range ids {
		sorted = append(sorted, id.String())
	}
	sort.Strings(sorted)

	var buf []byte
	for _, s := range sorted {
		buf = append(buf, s...)
	}
	return uuid.NewSHA1(groupNamespace, buf)
}

func find(parent []int, i int) int {
	for parent[i] != i {
		parent[i] = parent[parent[i]]
		i = parent[i]
	}
	return i
}

func union(parent []int, i, j int) {
	ri, rj := find(parent, i), find(parent, j)
	if ri != rj {
		// Attach the larger root index to the smaller one so component
		// roots are stable for a fixed candidate order.
		if ri < rj {
			parent[rj] = ri
		} else {
			parent[ri] = rj
		}
	}
}
