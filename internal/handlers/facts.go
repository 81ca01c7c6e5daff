package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/fact"
	"github.com/Ramsey-B/fern/pkg/grouping"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
)

// FactsHandler serves fact listing, review curation, and dedup runs
type FactsHandler struct {
	repo          FactRepo
	dedup         DedupRunner
	builder       *grouping.Builder
	softThreshold float64
	logger        ectologger.Logger
}

// NewFactsHandler creates a new facts handler
func NewFactsHandler(repo FactRepo, dedup DedupRunner, builder *grouping.Builder, softThreshold float64, logger ectologger.Logger) *FactsHandler {
	return &FactsHandler{
		repo:          repo,
		dedup:         dedup,
		builder:       builder,
		softThreshold: softThreshold,
		logger:        logger,
	}
}

// RegisterRoutes registers the fact routes
func (h *FactsHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/projects/:project_id/facts", h.List)
	g.POST("/projects/:project_id/dedup", h.RunDedup)
	g.PATCH("/facts/:id/review", h.UpdateReview)
	g.PATCH("/facts/:id/pin", h.UpdatePin)
	g.PATCH("/facts/:id/key-claim", h.UpdateKeyClaim)
}

// List handles GET /projects/:project_id/facts. With group_similar=true the
// response carries an ephemeral similarity grouping computed at min_sim;
// nothing about that grouping is ever persisted.
func (h *FactsHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "facts_handler.List")
	defer span.End()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	projectID, err := ParseUUID(c, "project_id")
	if err != nil {
		return err
	}

	opts := fact.ListOptions{
		Filter: c.QueryParam("filter"),
		Sort:   c.QueryParam("sort"),
		Order:  c.QueryParam("order"),
	}
	opts.ShowSuppressed, _ = strconv.ParseBool(c.QueryParam("show_suppressed"))

	facts, err := h.repo.ListByProject(ctx, tenantID, projectID, opts)
	if err != nil {
		return err
	}

	groupSimilar, _ := strconv.ParseBool(c.QueryParam("group_similar"))
	if !groupSimilar {
		return SuccessResponse(c, models.FactListResponse{Facts: facts, Total: len(facts)})
	}

	minSim := h.softThreshold
	if raw := c.QueryParam("min_sim"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 || parsed > 1 {
			return BadRequest("min_sim must be a number in (0, 1]")
		}
		minSim = parsed
	}

	start := time.Now()
	groups := h.builder.Build(facts, minSim)
	metrics.GroupBuildDuration.Observe(time.Since(start).Seconds())

	grouped := make(map[string]models.FactGroup)
	for _, g := range groups {
		if g.IsSingleton() {
			continue
		}
		grouped[g.GroupID.String()] = g
	}

	return SuccessResponse(c, models.GroupedFactListResponse{
		Facts:  facts,
		Groups: grouped,
		Total:  len(facts),
	})
}

// RunDedup handles POST /projects/:project_id/dedup
func (h *FactsHandler) RunDedup(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "facts_handler.RunDedup")
	defer span.End()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	projectID, err := ParseUUID(c, "project_id")
	if err != nil {
		return err
	}

	result, err := h.dedup.Run(ctx, tenantID, projectID)
	if err != nil {
		return err
	}

	return SuccessResponse(c, result)
}

// UpdateReview handles PATCH /facts/:id/review
func (h *FactsHandler) UpdateReview(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "facts_handler.UpdateReview")
	defer span.End()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var req models.UpdateReviewStatusRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !req.ReviewStatus.Valid() {
		return BadRequest("unknown review status")
	}

	if err := h.repo.UpdateReviewStatus(ctx, tenantID, id, req.ReviewStatus); err != nil {
		return err
	}

	fresh, err := h.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}
	return SuccessResponse(c, fresh)
}

// UpdatePin handles PATCH /facts/:id/pin
func (h *FactsHandler) UpdatePin(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "facts_handler.UpdatePin")
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

// UpdateKeyClaim handles PATCH /facts/:id/key-claim
func (h *FactsHandler) UpdateKeyClaim(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "facts_handler.UpdateKeyClaim")
	defer span.End()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var req models.UpdateKeyClaimRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	if err := h.repo.UpdateKeyClaim(ctx, tenantID, id, req.IsKeyClaim); err != nil {
		return err
	}

	fresh, err := h.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}
	return SuccessResponse(c, fresh)
}
