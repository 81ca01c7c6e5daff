// Package resolver flattens a user's fact selection into the concrete fact
// list handed to trust gating and synthesis
package resolver

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
)

// FactFetcher loads facts by id. Missing ids are absent from the result,
// not an error.
type FactFetcher interface {
	GetByIDs(ctx context.Context, tenantID string, ids []uuid.UUID) ([]models.Fact, error)
}

// Session resolves one selection against one group snapshot. Group member
// fetches are lazy and memoized for the session's lifetime, so expanding
// the same group twice hits storage once.
type Session struct {
	store  FactFetcher
	logger ectologger.Logger

	memberCache map[uuid.UUID][]models.Fact
}

// NewSession creates a resolution session
func NewSession(store FactFetcher, logger ectologger.Logger) *Session {
	return &Session{
		store:       store,
		logger:      logger,
		memberCache: make(map[uuid.UUID][]models.Fact),
	}
}

// Resolve expands a selection into a flat fact list. Items resolve in
// selection order; include-all items expand to the representative followed
// by the remaining members; no fact appears twice; ids that no longer
// exist are dropped rather than substituted. A failed member fetch
// degrades that group to its representative and is reported, never fatal.
func (s *Session) Resolve(ctx context.Context, tenantID string, selection models.Selection, groups map[uuid.UUID]models.FactGroup) (models.ResolvedFactSet, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Session.Resolve")
	defer span.End()

	ids := make([]uuid.UUID, 0, len(selection.Items))
	for _, item := range selection.Items {
		ids = append(ids, item.FactID)
	}

	fetched, err := s.store.GetByIDs(ctx, tenantID, ids)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to load selected facts")
		return models.ResolvedFactSet{}, err
	}
	byID := make(map[uuid.UUID]models.Fact, len(fetched))
	for _, f := range fetched {
		byID[f.ID] = f
	}

	result := models.ResolvedFactSet{
		Facts:          make([]models.Fact, 0, len(selection.Items)),
		DegradedGroups: nil,
	}
	seen := make(map[uuid.UUID]bool)

	appendFact := func(f models.Fact) {
		if seen[f.ID] {
			return
		}
		seen[f.ID] = true
		result.Facts = append(result.Facts, f)
	}

	for _, item := range selection.Items {
		representative, ok := byID[item.FactID]

		if item.GroupID == nil || item.GroupChoice != models.GroupChoiceIncludeAll {
			if ok {
				appendFact(representative)
			}
			continue
		}

		group, known := groups[*item.GroupID]
		if !known {
			// Stale group id: the grouping snapshot moved on. Degrade to
			// the representative rather than guessing at membership.
			result.DegradedGroups = append(result.DegradedGroups, models.DegradedGroup{
				GroupID: *item.GroupID,
				Reason:  "group no longer exists",
			})
			metrics.ResolutionsDegradedTotal.Inc()
			if ok {
				appendFact(representative)
			}
			continue
		}

		members, err := s.members(ctx, tenantID, group)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"group_id": group.GroupID.String(),
			}).Warn("Group member fetch failed, degrading to representative")
			result.DegradedGroups = append(result.DegradedGroups, models.DegradedGroup{
				GroupID: group.GroupID,
				Reason:  "member fetch failed",
			})
			metrics.ResolutionsDegradedTotal.Inc()
			if ok {
				appendFact(representative)
			}
			continue
		}

		// Expand in CollapsedIDs order, not storage return order; the
		// payload handed to generation must not vary between identical
		// requests.
		memberByID := make(map[uuid.UUID]models.Fact, len(members))
		for _, m := range members {
			memberByID[m.ID] = m
		}
		if rep, found := memberByID[group.RepresentativeID]; found {
			appendFact(rep)
		}
		for _, id := range group.CollapsedIDs {
			if id == group.RepresentativeID {
				continue
			}
			if m, found := memberByID[id]; found {
				appendFact(m)
			}
		}
	}

	return result, nil
}

// members returns the group's member facts, fetching at most once per
// group per session
func (s *Session) members(ctx context.Context, tenantID string, group models.FactGroup) ([]models.Fact, error) {
	if cached, ok := s.memberCache[group.GroupID]; ok {
		return cached, nil
	}

	members, err := s.store.GetByIDs(ctx, tenantID, group.CollapsedIDs)
	if err != nil {
		return nil, err
	}

	s.memberCache[group.GroupID] = members
	return members, nil
}
