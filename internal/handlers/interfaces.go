package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/internal/repositories/fact"
	"github.com/Ramsey-B/fern/pkg/models"
)

// FactRepo is the fact persistence surface the handlers need
type FactRepo interface {
	ListByProject(ctx context.Context, tenantID string, projectID uuid.UUID, opts fact.ListOptions) ([]models.Fact, error)
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.Fact, error)
	GetByIDs(ctx context.Context, tenantID string, ids []uuid.UUID) ([]models.Fact, error)
	UpdateReviewStatus(ctx context.Context, tenantID string, id uuid.UUID, status models.ReviewStatus) error
	UpdatePin(ctx context.Context, tenantID string, id uuid.UUID, pinned bool) error
	UpdateKeyClaim(ctx context.Context, tenantID string, id uuid.UUID, keyClaim bool) error
}

// OutputRepo is the output persistence surface the handlers need
type OutputRepo interface {
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.Output, error)
	ListByProject(ctx context.Context, tenantID string, projectID uuid.UUID) ([]models.Output, error)
	UpdatePin(ctx context.Context, tenantID string, id uuid.UUID, pinned bool) error
	Delete(ctx context.Context, tenantID string, id uuid.UUID) error
}

// DedupRunner runs the persisted hard-dedup pass
type DedupRunner interface {
	Run(ctx context.Context, tenantID string, projectID uuid.UUID) (models.DedupResult, error)
}

// Synthesizer generates and persists a synthesis output
type Synthesizer interface {
	Dispatch(ctx context.Context, tenantID string, projectID uuid.UUID, facts []models.Fact, mode models.SynthesisMode) (*models.Output, error)
}
