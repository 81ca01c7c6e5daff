// Package trust implements the advisory quality gate that runs between
// selection resolution and synthesis dispatch
package trust

import (
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Decision is the gate's verdict over a resolved fact set
type Decision string

const (
	DecisionPass  Decision = "pass"
	DecisionBlock Decision = "block"
)

// Resolution is the user's answer to a block verdict. The gate is
// advisory: it never picks a resolution on its own.
type Resolution string

const (
	ResolutionExcludeNonApproved Resolution = "exclude_non_approved"
	ResolutionIncludeAnyway      Resolution = "include_anyway"
)

// Valid reports whether r is a known resolution
func (r Resolution) Valid() bool {
	return r == ResolutionExcludeNonApproved || r == ResolutionIncludeAnyway
}

// MinSynthesisFacts is the smallest fact set synthesis accepts; a gate
// resolution may not shrink the set below it
const MinSynthesisFacts = 2

// GateDecision is the gate's verdict plus everything the caller needs to
// present the choice: the review composition and, on block, the ids that
// would survive an exclude-non-approved resolution
type GateDecision struct {
	Decision       Decision            `json:"decision"`
	Stats          models.QualityStats `json:"stats"`
	ApprovedSubset []uuid.UUID         `json:"approved_subset,omitempty"`
}

// Passed reports whether the gate passed
func (d GateDecision) Passed() bool {
	return d.Decision == DecisionPass
}

// Evaluate inspects a resolved fact set and returns exactly one verdict:
// pass when every fact is approved, block otherwise. It never mutates or
// filters the input.
func Evaluate(facts []models.Fact) GateDecision {
	stats := models.ComputeQualityStats(facts)

	decision := GateDecision{Decision: DecisionPass, Stats: stats}
	if stats.Approved < stats.Total {
		decision.Decision = DecisionBlock
		decision.ApprovedSubset = approvedIDs(facts)
	}

	metrics.TrustGateDecisions.WithLabelValues(string(decision.Decision)).Inc()
	return decision
}

// ApplyResolution produces the fact set synthesis will run on. A passed
// gate ignores the resolution. On block, exclude-non-approved keeps only
// approved facts in their original order and fails when fewer than
// MinSynthesisFacts survive; include-anyway keeps the set as resolved.
// The input slice is never modified.
func ApplyResolution(facts []models.Fact, decision GateDecision, resolution Resolution) ([]models.Fact, error) {
	if decision.Passed() {
		return facts, nil
	}

	switch resolution {
	case ResolutionIncludeAnyway:
		return facts, nil
	case ResolutionExcludeNonApproved:
		approved := make([]models.Fact, 0, decision.Stats.Approved)
		for _, f := range facts {
			if f.ReviewStatus == models.ReviewStatusApproved {
				approved = append(approved, f)
			}
		}
		if len(approved) < MinSynthesisFacts {
			return nil, httperror.NewHTTPErrorf(http.StatusUnprocessableEntity,
				"need at least %d approved facts to proceed, have %d", MinSynthesisFacts, len(approved))
		}
		return approved, nil
	default:
		return nil, httperror.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("unknown gate resolution %q", resolution))
	}
}

func approvedIDs(facts []models.Fact) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(facts))
	for _, f := range facts {
		if f.ReviewStatus == models.ReviewStatusApproved {
			ids = append(ids, f.ID)
		}
	}
	return ids
}
