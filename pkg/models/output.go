package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SynthesisMode selects the narrative shape of a generated output
type SynthesisMode string

const (
	ModeParagraph     SynthesisMode = "paragraph"
	ModeResearchBrief SynthesisMode = "research_brief"
	ModeScriptOutline SynthesisMode = "script_outline"
	ModeSplit         SynthesisMode = "split"
)

// Valid reports whether m is a known synthesis mode
func (m SynthesisMode) Valid() bool {
	switch m {
	case ModeParagraph, ModeResearchBrief, ModeScriptOutline, ModeSplit:
		return true
	}
	return false
}

// QualityStats is a snapshot of the review-status composition of the fact
// set an output was generated from. Computed once at synthesis time and
// never recomputed for an existing output.
type QualityStats struct {
	Total       int `json:"total"`
	Approved    int `json:"approved"`
	NeedsReview int `json:"needs_review"`
	Flagged     int `json:"flagged"`
	Rejected    int `json:"rejected"`
	Pinned      int `json:"pinned"`
}

// MixedTrust reports whether the output was generated from facts that were
// not all approved
func (q QualityStats) MixedTrust() bool {
	return q.Approved < q.Total
}

// ComputeQualityStats tallies the review composition of a fact set
func ComputeQualityStats(facts []Fact) QualityStats {
	stats := QualityStats{Total: len(facts)}
	for _, f := range facts {
		switch f.ReviewStatus {
		case ReviewStatusApproved:
			stats.Approved++
		case ReviewStatusNeedsReview:
			stats.NeedsReview++
		case ReviewStatusFlagged:
			stats.Flagged++
		case ReviewStatusRejected:
			stats.Rejected++
		}
		if f.IsPinned {
			stats.Pinned++
		}
	}
	return stats
}

// Output is a stored synthesis result. QualityStats is written once at
// creation and never updated.
type Output struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	TenantID    string          `json:"tenant_id" db:"tenant_id"`
	ProjectID   uuid.UUID       `json:"project_id" db:"project_id"`
	Title       string          `json:"title" db:"title"`
	Content     string          `json:"content" db:"content"`
	OutputType  string          `json:"output_type" db:"output_type"`
	Mode        string          `json:"mode" db:"mode"`
	FactIDs     json.RawMessage `json:"fact_ids" db:"fact_ids"`
	SourceCount int             `json:"source_count" db:"source_count"`
	IsPinned    bool            `json:"is_pinned" db:"is_pinned"`

	QualityStats json.RawMessage `json:"quality_stats,omitempty" db:"quality_stats"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SynthesisFact is one entry of the payload handed to the text-generation
// collaborator
type SynthesisFact struct {
	ID      uuid.UUID `json:"id"`
	Text    string    `json:"text"`
	Title   string    `json:"title"`
	URL     string    `json:"url"`
	Section string    `json:"section,omitempty"`
}

// SynthesisRequest is the payload for the text-generation collaborator.
// Fact order is resolution order; narrative flow depends on it.
type SynthesisRequest struct {
	Facts []SynthesisFact `json:"facts"`
	Mode  SynthesisMode   `json:"mode"`
}
