package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/fact"
	"github.com/Ramsey-B/fern/pkg/grouping"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/resolver"
	"github.com/Ramsey-B/fern/pkg/trust"
)

// SynthesisHandler serves selection resolution, trust gating, and
// synthesis dispatch
type SynthesisHandler struct {
	repo          FactRepo
	synth         Synthesizer
	builder       *grouping.Builder
	softThreshold float64
	logger        ectologger.Logger
}

// NewSynthesisHandler creates a new synthesis handler
func NewSynthesisHandler(repo FactRepo, synth Synthesizer, builder *grouping.Builder, softThreshold float64, logger ectologger.Logger) *SynthesisHandler {
	return &SynthesisHandler{
		repo:          repo,
		synth:         synth,
		builder:       builder,
		softThreshold: softThreshold,
		logger:        logger,
	}
}

// RegisterRoutes registers the synthesis routes
func (h *SynthesisHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/projects/:project_id/selection/resolve", h.Resolve)
	g.POST("/projects/:project_id/synthesize", h.Synthesize)
}

// ResolveRequest is the request body for resolving a selection
type ResolveRequest struct {
	Items          []models.SelectionItem `json:"items" validate:"required,min=1,dive"`
	MinSim         *float64               `json:"min_sim,omitempty"`
	ShowSuppressed bool                   `json:"show_suppressed,omitempty"`
}

// ResolveResponse is the resolved fact set plus the gate's advisory verdict
type ResolveResponse struct {
	Facts          []models.Fact          `json:"facts"`
	DegradedGroups []models.DegradedGroup `json:"degraded_groups,omitempty"`
	Gate           trust.GateDecision     `json:"gate"`
}

// SynthesizeRequest is the request body for generating an output
type SynthesizeRequest struct {
	Items          []models.SelectionItem `json:"items" validate:"required,min=1,dive"`
	Mode           models.SynthesisMode   `json:"mode" validate:"required"`
	MinSim         *float64               `json:"min_sim,omitempty"`
	ShowSuppressed bool                   `json:"show_suppressed,omitempty"`
	GateResolution trust.Resolution       `json:"gate_resolution,omitempty"`
}

// SynthesizeResponse mirrors the canonical synthesis contract
type SynthesizeResponse struct {
	Synthesis      string                 `json:"synthesis"`
	OutputID       string                 `json:"output_id"`
	DegradedGroups []models.DegradedGroup `json:"degraded_groups,omitempty"`
}

// Resolve handles POST /projects/:project_id/selection/resolve. It expands
// the selection against a fresh grouping snapshot and reports the trust
// gate's verdict without acting on it.
func (h *SynthesisHandler) Resolve(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "synthesis_handler.Resolve")
	defer span.End()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	projectID, err := ParseUUID(c, "project_id")
	if err != nil {
		return err
	}

	var req ResolveRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	resolved, err := h.resolveSelection(ctx, tenantID, projectID, req.Items, req.MinSim, req.ShowSuppressed)
	if err != nil {
		return err
	}

	return SuccessResponse(c, ResolveResponse{
		Facts:          resolved.Facts,
		DegradedGroups: resolved.DegradedGroups,
		Gate:           trust.Evaluate(resolved.Facts),
	})
}

// Synthesize handles POST /projects/:project_id/synthesize: resolve, gate,
// apply the caller's gate resolution, dispatch. A blocked gate with no
// resolution is the caller's decision to make, not ours.
func (h *SynthesisHandler) Synthesize(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "synthesis_handler.Synthesize")
	defer span.End()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	projectID, err := ParseUUID(c, "project_id")
	if err != nil {
		return err
	}

	var req SynthesizeRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !req.Mode.Valid() {
		return BadRequest("unknown synthesis mode")
	}

	resolved, err := h.resolveSelection(ctx, tenantID, projectID, req.Items, req.MinSim, req.ShowSuppressed)
	if err != nil {
		return err
	}

	decision := trust.Evaluate(resolved.Facts)
	if !decision.Passed() && req.GateResolution == "" {
		return httperror.NewHTTPError(http.StatusUnprocessableEntity,
			"selection contains non-approved facts; set gate_resolution to exclude_non_approved or include_anyway")
	}

	facts, err := trust.ApplyResolution(resolved.Facts, decision, req.GateResolution)
	if err != nil {
		return err
	}

	output, err := h.synth.Dispatch(ctx, tenantID, projectID, facts, req.Mode)
	if err != nil {
		return err
	}

	return SuccessResponse(c, SynthesizeResponse{
		Synthesis:      output.Content,
		OutputID:       output.ID.String(),
		DegradedGroups: resolved.DegradedGroups,
	})
}

// resolveSelection rebuilds the grouping snapshot for the project and
// resolves the selection against it. Group ids derive from membership, so
// a snapshot rebuilt with the same threshold and visibility as the list
// that handed out the ids matches them; the caller echoes show_suppressed
// alongside min_sim for that reason.
func (h *SynthesisHandler) resolveSelection(ctx context.Context, tenantID string, projectID uuid.UUID, items []models.SelectionItem, minSim *float64, showSuppressed bool) (models.ResolvedFactSet, error) {
	threshold := h.softThreshold
	if minSim != nil {
		if *minSim <= 0 || *minSim > 1 {
			return models.ResolvedFactSet{}, BadRequest("min_sim must be a number in (0, 1]")
		}
		threshold = *minSim
	}

	facts, err := h.repo.ListByProject(ctx, tenantID, projectID, fact.ListOptions{ShowSuppressed: showSuppressed})
	if err != nil {
		return models.ResolvedFactSet{}, err
	}

	start := time.Now()
	groups := h.builder.Build(facts, threshold)
	metrics.GroupBuildDuration.Observe(time.Since(start).Seconds())

	snapshot := make(map[uuid.UUID]models.FactGroup, len(groups))
	for _, g := range groups {
		snapshot[g.GroupID] = g
	}

	session := resolver.NewSession(h.repo, h.logger)
	return session.Resolve(ctx, tenantID, models.Selection{Items: items}, snapshot)
}
