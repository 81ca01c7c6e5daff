package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
)

// OutputsHandler serves stored synthesis outputs
type OutputsHandler struct {
	repo    OutputRepo
	emitter *events.Emitter
	logger  ectologger.Logger
}

// NewOutputsHandler creates a new outputs handler. emitter may be nil when
// event emission is disabled.
func NewOutputsHandler(repo OutputRepo, emitter *events.Emitter, logger ectologger.Logger) *OutputsHandler {
	return &OutputsHandler{
		repo:    repo,
		emitter: emitter,
		logger:  logger,
	}
}

// RegisterRoutes registers the output routes
func (h *OutputsHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/projects/:project_id/outputs", h.List)
	g.GET("/outputs/:id", h.Get)
	g.PATCH("/outputs/:id/pin", h.UpdatePin)
	g.DELETE("/outputs/:id", h.Delete)
}

// List handles GET /projects/:project_id/outputs
func (h *OutputsHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "outputs_handler.List")
	defer span.End()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	projectID, err := ParseUUID(c, "project_id")
	if err != nil {
		return err
	}

	outputs, err := h.repo.ListByProject(ctx, tenantID, projectID)
	if err != nil {
		return err
	}

	return SuccessResponse(c, outputs)
}

// Get handles GET /outputs/:id
func (h *OutputsHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "outputs_handler.Get")
	defer span.End()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	output, err := h.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, output)
}

// UpdatePin handles PATCH /outputs/:id/pin. Pinning never touches the
// output's stored quality stats.
func (h *OutputsHandler) UpdatePin(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "outputs_handler.UpdatePin")
	defer span.End()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var req models.UpdatePinRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	if err := h.repo.UpdatePin(ctx, tenantID, id, req.IsPinned); err != nil {
		return err
	}

	fresh, err := h.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}
	return SuccessResponse(c, fresh)
}

// Delete handles DELETE /outputs/:id
func (h *OutputsHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "outputs_handler.Delete")
	defer span.End()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	output, err := h.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}

	if err := h.repo.Delete(ctx, tenantID, id); err != nil {
		return err
	}

	if h.emitter != nil {
		if err := h.emitter.EmitOutputDeleted(ctx, tenantID, output.ProjectID, id); err != nil {
			h.logger.WithContext(ctx).WithError(err).Warn("Failed to emit output deleted event")
		}
	}

	return NoContentResponse(c)
}
