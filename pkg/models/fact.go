package models

import (
	"time"

	"github.com/google/uuid"
)

// ReviewStatus is the curation state of a fact
type ReviewStatus string

const (
	ReviewStatusPending     ReviewStatus = "PENDING"
	ReviewStatusApproved    ReviewStatus = "APPROVED"
	ReviewStatusNeedsReview ReviewStatus = "NEEDS_REVIEW"
	ReviewStatusFlagged     ReviewStatus = "FLAGGED"
	ReviewStatusRejected    ReviewStatus = "REJECTED"
)

// Valid reports whether s is a known review status
func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewStatusPending, ReviewStatusApproved, ReviewStatusNeedsReview, ReviewStatusFlagged, ReviewStatusRejected:
		return true
	}
	return false
}

// Fact is an atomic extracted claim with provenance and review metadata.
// Facts are created by the extraction pipeline; this service only reads
// them, except for the three dedup fields (duplicate_group_id,
// is_suppressed, canonical_fact_id) which the dedup engine owns.
// Field order matches schema.
type Fact struct {
	ID              uuid.UUID `json:"id" db:"id"`
	TenantID        string    `json:"tenant_id" db:"tenant_id"`
	ProjectID       uuid.UUID `json:"project_id" db:"project_id"`
	SourceRef       string    `json:"source_ref" db:"source_ref"`
	Text            string    `json:"text" db:"text"`
	SourceTitle     *string   `json:"source_title,omitempty" db:"source_title"`
	SourceURL       *string   `json:"source_url,omitempty" db:"source_url"`
	SectionContext  *string   `json:"section_context,omitempty" db:"section_context"`
	ConfidenceScore float64   `json:"confidence_score" db:"confidence_score"`

	ReviewStatus ReviewStatus `json:"review_status" db:"review_status"`
	IsPinned     bool         `json:"is_pinned" db:"is_pinned"`
	IsKeyClaim   bool         `json:"is_key_claim" db:"is_key_claim"`

	// Dedup state, written only by the dedup engine. Suppressed facts stay
	// selectable and are never hard-deleted.
	DuplicateGroupID *uuid.UUID `json:"duplicate_group_id,omitempty" db:"duplicate_group_id"`
	IsSuppressed     bool       `json:"is_suppressed" db:"is_suppressed"`
	CanonicalFactID  *uuid.UUID `json:"canonical_fact_id,omitempty" db:"canonical_fact_id"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// UpdateReviewStatusRequest sets a fact's review status
type UpdateReviewStatusRequest struct {
	ReviewStatus ReviewStatus `json:"review_status" validate:"required"`
}

// UpdatePinRequest toggles a fact's pinned flag
type UpdatePinRequest struct {
	IsPinned bool `json:"is_pinned"`
}

// UpdateKeyClaimRequest toggles a fact's key-claim flag
type UpdateKeyClaimRequest struct {
	IsKeyClaim bool `json:"is_key_claim"`
}

// DedupResult summarizes a dedup run over a project's facts
type DedupResult struct {
	GroupsFormed    int `json:"groups_formed"`
	SuppressedCount int `json:"suppressed_count"`
}

// FactListResponse is the ungrouped list response
type FactListResponse struct {
	Facts []Fact `json:"facts"`
	Total int    `json:"total"`
}

// GroupedFactListResponse is the "collapse similar" list response. Groups
// are recomputed on every read and never persisted.
type GroupedFactListResponse struct {
	Facts  []Fact               `json:"facts"`
	Groups map[string]FactGroup `json:"groups"`
	Total  int                  `json:"total"`
}
