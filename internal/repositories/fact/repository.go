package fact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/database"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/models"
)

var factColumns = []string{
	"id", "tenant_id", "project_id", "source_ref", "text", "source_title",
	"source_url", "section_context", "confidence_score", "review_status",
	"is_pinned", "is_key_claim", "duplicate_group_id", "is_suppressed",
	"canonical_fact_id", "created_at", "updated_at", "deleted_at",
}

// ListOptions filters and orders a project fact listing
type ListOptions struct {
	ShowSuppressed bool
	Filter         string // all | pending | approved | needs_review | flagged | rejected | key_claims
	Sort           string // newest | confidence | key_claims
	Order          string // asc | desc
}

// Repository handles fact persistence. Facts are created by the extraction
// pipeline; here they are read, review-curated, and dedup-annotated.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new fact repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListByProject returns a project's non-deleted facts. Suppressed facts are
// excluded unless opts.ShowSuppressed is set.
func (r *Repository) ListByProject(ctx context.Context, tenantID string, projectID uuid.UUID, opts ListOptions) ([]models.Fact, error) {
	ctx, span := tracing.StartSpan(ctx, "fact.Repository.ListByProject")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(factColumns...)
	sb.From("facts")
	where := []string{
		sb.Equal("tenant_id", tenantID),
		sb.Equal("project_id", projectID),
		sb.IsNull("deleted_at"),
	}
	if !opts.ShowSuppressed {
		where = append(where, sb.Equal("is_suppressed", false))
	}

	switch opts.Filter {
	case "", "all":
	case "key_claims":
		where = append(where, sb.Equal("is_key_claim", true))
	case "pending", "approved", "needs_review", "flagged", "rejected":
		where = append(where, sb.Equal("review_status", filterStatus(opts.Filter)))
	default:
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid filter: %s", opts.Filter)
	}
	sb.Where(where...)

	direction := "DESC"
	if opts.Order == "asc" {
		direction = "ASC"
	}
	switch opts.Sort {
	case "confidence":
		sb.OrderBy("confidence_score " + direction)
	case "key_claims":
		sb.OrderBy("is_key_claim DESC", "created_at DESC")
	default:
		sb.OrderBy("created_at " + direction)
	}

	query, args := sb.Build()
	facts := []models.Fact{}
	if err := r.db.SelectContext(ctx, &facts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "project_id": projectID}).Error("Failed to list facts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list facts")
	}
	return facts, nil
}

// GetByID returns a single non-deleted fact
func (r *Repository) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.Fact, error) {
	ctx, span := tracing.StartSpan(ctx, "fact.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(factColumns...)
	sb.From("facts")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var f models.Fact
	if err := r.db.GetContext(ctx, &f, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "fact %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"fact_id": id}).Error("Failed to get fact")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get fact")
	}
	return &f, nil
}

// GetByIDs returns the non-deleted facts among ids. Missing or deleted ids
// are simply absent from the result; callers that care about staleness
// compare lengths.
func (r *Repository) GetByIDs(ctx context.Context, tenantID string, ids []uuid.UUID) ([]models.Fact, error) {
	ctx, span := tracing.StartSpan(ctx, "fact.Repository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return []models.Fact{}, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(factColumns...)
	sb.From("facts")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.In("id", idsToAny(ids)...),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	facts := []models.Fact{}
	if err := r.db.SelectContext(ctx, &facts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"tenant_id": tenantID, "id_count": len(ids)}).Error("Failed to get facts by ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get facts")
	}
	return facts, nil
}

// SuppressionWrite is the persisted outcome of one hard-dup group: every
// member gets the group id and the canonical back-reference, non-canonical
// members get is_suppressed
type SuppressionWrite struct {
	GroupID     uuid.UUID
	CanonicalID uuid.UUID
	MemberIDs   []uuid.UUID
}

// WriteDedupState persists a dedup run's suppression outcome in a single
// transaction: all listed groups are written and clearIDs have their dedup
// fields reset. A failure leaves every fact's suppression state untouched.
// Returns the number of facts suppressed by this write.
func (r *Repository) WriteDedupState(ctx context.Context, tenantID string, writes []SuppressionWrite, clearIDs []uuid.UUID) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "fact.Repository.WriteDedupState")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	suppressed := 0

	for _, w := range writes {
		memberSet := make(map[uuid.UUID]struct{}, len(w.MemberIDs))
		nonCanonical := make([]uuid.UUID, 0, len(w.MemberIDs)-1)
		for _, id := range w.MemberIDs {
			memberSet[id] = struct{}{}
			if id != w.CanonicalID {
				nonCanonical = append(nonCanonical, id)
			}
		}
		if _, ok := memberSet[w.CanonicalID]; !ok {
			return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "canonical %s is not a member of its group", w.CanonicalID)
		}

		// Canonical keeps is_suppressed = false. The WHERE clause skips
		// rows already in the target state so re-runs are write-free.
		cb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
		cb.Update("facts")
		cb.Set(
			cb.Assign("duplicate_group_id", w.GroupID),
			cb.Assign("canonical_fact_id", w.CanonicalID),
			cb.Assign("is_suppressed", false),
			cb.Assign("updated_at", now),
		)
		cb.Where(
			cb.Equal("tenant_id", tenantID),
			cb.Equal("id", w.CanonicalID),
			cb.Or(
				cb.NotEqual("is_suppressed", false),
				cb.IsNull("duplicate_group_id"),
				cb.NotEqual("duplicate_group_id", w.GroupID),
				cb.IsNull("canonical_fact_id"),
				cb.NotEqual("canonical_fact_id", w.CanonicalID),
			),
		)
		query, args := cb.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"group_id": w.GroupID}).Error("Failed to write canonical dedup state")
			return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to write dedup state")
		}

		if len(nonCanonical) > 0 {
			mb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
			mb.Update("facts")
			mb.Set(
				mb.Assign("duplicate_group_id", w.GroupID),
				mb.Assign("canonical_fact_id", w.CanonicalID),
				mb.Assign("is_suppressed", true),
				mb.Assign("updated_at", now),
			)
			mb.Where(
				mb.Equal("tenant_id", tenantID),
				mb.In("id", idsToAny(nonCanonical)...),
				mb.Or(
					mb.NotEqual("is_suppressed", true),
					mb.IsNull("duplicate_group_id"),
					mb.NotEqual("duplicate_group_id", w.GroupID),
					mb.IsNull("canonical_fact_id"),
					mb.NotEqual("canonical_fact_id", w.CanonicalID),
				),
			)
			query, args := mb.Build()
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"group_id": w.GroupID}).Error("Failed to write member dedup state")
				return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to write dedup state")
			}
			suppressed += len(nonCanonical)
		}
	}

	if len(clearIDs) > 0 {
		clr := sqlbuilder.PostgreSQL.NewUpdateBuilder()
		clr.Update("facts")
		clr.Set(
			clr.Assign("duplicate_group_id", nil),
			clr.Assign("canonical_fact_id", nil),
			clr.Assign("is_suppressed", false),
			clr.Assign("updated_at", now),
		)
		clr.Where(
			clr.Equal("tenant_id", tenantID),
			clr.In("id", idsToAny(clearIDs)...),
		)
		query, args := clr.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"clear_count": len(clearIDs)}).Error("Failed to clear stale dedup state")
			return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to write dedup state")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to commit dedup state")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit dedup state")
	}

	return suppressed, nil
}

// UpdateReviewStatus sets a fact's review status
func (r *Repository) UpdateReviewStatus(ctx context.Context, tenantID string, id uuid.UUID, status models.ReviewStatus) error {
	return r.updateField(ctx, tenantID, id, "review_status", string(status), "fact.Repository.UpdateReviewStatus")
}

// UpdatePin sets a fact's pinned flag
func (r *Repository) UpdatePin(ctx context.Context, tenantID string, id uuid.UUID, pinned bool) error {
	return r.updateField(ctx, tenantID, id, "is_pinned", pinned, "fact.Repository.UpdatePin")
}

// UpdateKeyClaim sets a fact's key-claim flag
func (r *Repository) UpdateKeyClaim(ctx context.Context, tenantID string, id uuid.UUID, keyClaim bool) error {
	return r.updateField(ctx, tenantID, id, "is_key_claim", keyClaim, "fact.Repository.UpdateKeyClaim")
}

func (r *Repository) updateField(ctx context.Context, tenantID string, id uuid.UUID, column string, value any, spanName string) error {
	ctx, span := tracing.StartSpan(ctx, spanName)
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("facts")
	sb.Set(
		sb.Assign(column, value),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"fact_id": id, "column": column}).Error("Failed to update fact")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update fact")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("fact %s not found", id))
	}
	return nil
}

func filterStatus(filter string) string {
	switch filter {
	case "pending":
		return string(models.ReviewStatusPending)
	case "approved":
		return string(models.ReviewStatusApproved)
	case "needs_review":
		return string(models.ReviewStatusNeedsReview)
	case "flagged":
		return string(models.ReviewStatusFlagged)
	case "rejected":
		return string(models.ReviewStatusRejected)
	}
	return filter
}

func idsToAny(ids []uuid.UUID) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
