package output

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

var outputColumns = []string{
	"id", "tenant_id", "project_id", "title", "content", "output_type",
	"mode", "fact_ids", "source_count", "is_pinned", "quality_stats",
	"created_at", "updated_at",
}

// Repository handles output persistence. quality_stats is written exactly
// once at creation; no update path exists for it.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new output repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create stores a new output row
func (r *Repository) Create(ctx context.Context, out *models.Output) (*models.Output, error) {
	ctx, span := tracing.StartSpan(ctx, "output.Repository.Create")
	defer span.End()

	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	now := time.Now().UTC()
	out.CreatedAt = now
	out.UpdatedAt = now
	if out.OutputType == "" {
		out.OutputType = "synthesis"
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("outputs")
	sb.Cols(outputColumns...)
	sb.Values(
		out.ID, out.TenantID, out.ProjectID, out.Title, out.Content,
		out.OutputType, out.Mode, []byte(out.FactIDs), out.SourceCount,
		out.IsPinned, []byte(out.QualityStats), out.CreatedAt, out.UpdatedAt,
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"output_id": out.ID}).Error("Failed to create output")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create output")
	}
	return out, nil
}

// GetByID returns a single output
func (r *Repository) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.Output, error) {
	ctx, span := tracing.StartSpan(ctx, "output.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(outputColumns...)
	sb.From("outputs")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var out models.Output
	if err := r.db.GetContext(ctx, &out, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "output %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"output_id": id}).Error("Failed to get output")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get output")
	}
	return &out, nil
}

// ListByProject returns a project's outputs, newest first
func (r *Repository) ListByProject(ctx context.Context, tenantID string, projectID uuid.UUID) ([]models.Output, error) {
	ctx, span := tracing.StartSpan(ctx, "output.Repository.ListByProject")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(outputColumns...)
	sb.From("outputs")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("project_id", projectID),
	)
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	outputs := []models.Output{}
	if err := r.db.SelectContext(ctx, &outputs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"project_id": projectID}).Error("Failed to list outputs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list outputs")
	}
	return outputs, nil
}

// UpdatePin sets an output's pinned flag. quality_stats is deliberately
// untouched by every update path.
func (r *Repository) UpdatePin(ctx context.Context, tenantID string, id uuid.UUID, pinned bool) error {
	ctx, span := tracing.StartSpan(ctx, "output.Repository.UpdatePin")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("outputs")
	sb.Set(
		sb.Assign("is_pinned", pinned),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"output_id": id}).Error("Failed to pin output")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to pin output")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("output %s not found", id))
	}
	return nil
}

// Delete removes an output
func (r *Repository) Delete(ctx context.Context, tenantID string, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "output.Repository.Delete")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("outputs")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"output_id": id}).Error("Failed to delete output")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete output")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("output %s not found", id))
	}
	return nil
}
