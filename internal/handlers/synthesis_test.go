package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/grouping"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/trust"
)

type fakeSynthesizer struct {
	output *models.Output
	err    error
	facts  []models.Fact
	mode   models.SynthesisMode
}

func (s *fakeSynthesizer) Dispatch(_ context.Context, _ string, projectID uuid.UUID, facts []models.Fact, mode models.SynthesisMode) (*models.Output, error) {
	s.facts = facts
	s.mode = mode
	if s.err != nil {
		return nil, s.err
	}
	out := *s.output
	out.ProjectID = projectID
	return &out, nil
}

func approvedProjectFact(projectID uuid.UUID, text string, createdAt time.Time) models.Fact {
	f := projectFact(projectID, text, createdAt)
	f.ReviewStatus = models.ReviewStatusApproved
	return f
}

func newSynthesisHandler(repo *fakeFactRepo, synth *fakeSynthesizer) *SynthesisHandler {
	return NewSynthesisHandler(repo, synth, grouping.NewBuilder(grouping.DefaultConfig()), 0.88, testLogger())
}

func selectionBody(mode string, gateResolution string, ids ...uuid.UUID) string {
	items := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		items = append(items, map[string]any{"fact_id": id.String()})
	}
	payload := map[string]any{"items": items}
	if mode != "" {
		payload["mode"] = mode
	}
	if gateResolution != "" {
		payload["gate_resolution"] = gateResolution
	}
	data, _ := json.Marshal(payload)
	return string(data)
}

func TestResolve_ReturnsGateVerdict(t *testing.T) {
	e := echo.New()
	projectID := uuid.New()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	approved := approvedProjectFact(projectID, "the sky is blue", base)
	flagged := projectFact(projectID, "water boils at one hundred degrees", base)
	flagged.ReviewStatus = models.ReviewStatusFlagged
	repo := newFakeFactRepo(approved, flagged)
	h := newSynthesisHandler(repo, &fakeSynthesizer{})

	c, rec := newRequestContext(e, http.MethodPost,
		"/api/v1/projects/"+projectID.String()+"/selection/resolve",
		selectionBody("", "", approved.ID, flagged.ID))
	c.SetParamNames("project_id")
	c.SetParamValues(projectID.String())

	require.NoError(t, h.Resolve(c))

	var resp ResolveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Facts, 2)
	assert.Equal(t, trust.DecisionBlock, resp.Gate.Decision)
	assert.Equal(t, []uuid.UUID{approved.ID}, resp.Gate.ApprovedSubset)
}

func TestResolve_IncludeAllExpandsGroup(t *testing.T) {
	e := echo.New()
	projectID := uuid.New()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	older := approvedProjectFact(projectID, "The sky is blue.", base)
	newer := approvedProjectFact(projectID, "the sky is blue", base.Add(time.Hour))
	repo := newFakeFactRepo(older, newer)
	h := newSynthesisHandler(repo, &fakeSynthesizer{})

	// Group ids derive from membership, so recompute the snapshot the
	// same way the handler will.
	groups := grouping.NewBuilder(grouping.DefaultConfig()).Build([]models.Fact{older, newer}, 0.88)
	require.Len(t, groups, 1)
	groupID := groups[0].GroupID

	body := fmt.Sprintf(`{"items": [{"fact_id": %q, "group_id": %q, "group_choice": "include-all"}]}`,
		older.ID, groupID)
	c, rec := newRequestContext(e, http.MethodPost,
		"/api/v1/projects/"+projectID.String()+"/selection/resolve", body)
	c.SetParamNames("project_id")
	c.SetParamValues(projectID.String())

	require.NoError(t, h.Resolve(c))

	var resp ResolveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Facts, 2)
	assert.Empty(t, resp.DegradedGroups)
	assert.Equal(t, trust.DecisionPass, resp.Gate.Decision)
}

func TestResolve_IncludeAllWithSuppressedMember(t *testing.T) {
	e := echo.New()
	projectID := uuid.New()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	canonical := approvedProjectFact(projectID, "The sky is blue.", base)
	suppressed := approvedProjectFact(projectID, "the sky is blue", base.Add(time.Hour))
	suppressed.IsSuppressed = true
	repo := newFakeFactRepo(canonical, suppressed)
	h := newSynthesisHandler(repo, &fakeSynthesizer{})

	// A list with show_suppressed=true grouped both facts; the resolve
	// snapshot has to see the same fact set to reproduce the group id.
	groups := grouping.NewBuilder(grouping.DefaultConfig()).Build([]models.Fact{canonical, suppressed}, 0.88)
	require.Len(t, groups, 1)
	groupID := groups[0].GroupID

	body := fmt.Sprintf(`{"items": [{"fact_id": %q, "group_id": %q, "group_choice": "include-all"}], "show_suppressed": true}`,
		canonical.ID, groupID)
	c, rec := newRequestContext(e, http.MethodPost,
		"/api/v1/projects/"+projectID.String()+"/selection/resolve", body)
	c.SetParamNames("project_id")
	c.SetParamValues(projectID.String())

	require.NoError(t, h.Resolve(c))
	assert.True(t, repo.lastOpts.ShowSuppressed)

	var resp ResolveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Facts, 2)
	assert.Empty(t, resp.DegradedGroups)
}

func TestResolve_StaleGroupDegrades(t *testing.T) {
	e := echo.New()
	projectID := uuid.New()
	f := approvedProjectFact(projectID, "the sky is blue", time.Now().UTC())
	repo := newFakeFactRepo(f)
	h := newSynthesisHandler(repo, &fakeSynthesizer{})

	staleID := uuid.New()
	body := fmt.Sprintf(`{"items": [{"fact_id": %q, "group_id": %q, "group_choice": "include-all"}]}`,
		f.ID, staleID)
	c, rec := newRequestContext(e, http.MethodPost,
		"/api/v1/projects/"+projectID.String()+"/selection/resolve", body)
	c.SetParamNames("project_id")
	c.SetParamValues(projectID.String())

	require.NoError(t, h.Resolve(c))

	var resp ResolveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Facts, 1)
	assert.Equal(t, f.ID, resp.Facts[0].ID)
	require.Len(t, resp.DegradedGroups, 1)
	assert.Equal(t, staleID, resp.DegradedGroups[0].GroupID)
}

func TestSynthesize_AllApproved(t *testing.T) {
	e := echo.New()
	projectID := uuid.New()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a := approvedProjectFact(projectID, "the sky is blue", base)
	b := approvedProjectFact(projectID, "water boils at one hundred degrees", base)
	repo := newFakeFactRepo(a, b)
	synth := &fakeSynthesizer{output: &models.Output{ID: uuid.New(), Content: "Blue sky, boiling water."}}
	h := newSynthesisHandler(repo, synth)

	c, rec := newRequestContext(e, http.MethodPost,
		"/api/v1/projects/"+projectID.String()+"/synthesize",
		selectionBody("paragraph", "", a.ID, b.ID))
	c.SetParamNames("project_id")
	c.SetParamValues(projectID.String())

	require.NoError(t, h.Synthesize(c))

	var resp SynthesizeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Blue sky, boiling water.", resp.Synthesis)
	assert.NotEmpty(t, resp.OutputID)
	assert.Equal(t, models.ModeParagraph, synth.mode)
	require.Len(t, synth.facts, 2)
}

func TestSynthesize_BlockedWithoutResolution(t *testing.T) {
	e := echo.New()
	projectID := uuid.New()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a := approvedProjectFact(projectID, "the sky is blue", base)
	b := projectFact(projectID, "water boils at one hundred degrees", base)
	repo := newFakeFactRepo(a, b)
	synth := &fakeSynthesizer{output: &models.Output{ID: uuid.New(), Content: "x"}}
	h := newSynthesisHandler(repo, synth)

	c, _ := newRequestContext(e, http.MethodPost,
		"/api/v1/projects/"+projectID.String()+"/synthesize",
		selectionBody("paragraph", "", a.ID, b.ID))
	c.SetParamNames("project_id")
	c.SetParamValues(projectID.String())

	err := h.Synthesize(c)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, httperror.GetStatusCode(err))
	assert.Empty(t, synth.facts, "generator never invoked on an unresolved block")
}

func TestSynthesize_IncludeAnyway(t *testing.T) {
	e := echo.New()
	projectID := uuid.New()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a := approvedProjectFact(projectID, "the sky is blue", base)
	b := projectFact(projectID, "water boils at one hundred degrees", base)
	repo := newFakeFactRepo(a, b)
	synth := &fakeSynthesizer{output: &models.Output{ID: uuid.New(), Content: "x"}}
	h := newSynthesisHandler(repo, synth)

	c, _ := newRequestContext(e, http.MethodPost,
		"/api/v1/projects/"+projectID.String()+"/synthesize",
		selectionBody("paragraph", "include_anyway", a.ID, b.ID))
	c.SetParamNames("project_id")
	c.SetParamValues(projectID.String())

	require.NoError(t, h.Synthesize(c))
	require.Len(t, synth.facts, 2, "include_anyway keeps the full set")
}

func TestSynthesize_ExcludeNonApprovedTooSmall(t *testing.T) {
	e := echo.New()
	projectID := uuid.New()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a := approvedProjectFact(projectID, "the sky is blue", base)
	b := projectFact(projectID, "water boils at one hundred degrees", base)
	repo := newFakeFactRepo(a, b)
	synth := &fakeSynthesizer{output: &models.Output{ID: uuid.New(), Content: "x"}}
	h := newSynthesisHandler(repo, synth)

	c, _ := newRequestContext(e, http.MethodPost,
		"/api/v1/projects/"+projectID.String()+"/synthesize",
		selectionBody("paragraph", "exclude_non_approved", a.ID, b.ID))
	c.SetParamNames("project_id")
	c.SetParamValues(projectID.String())

	err := h.Synthesize(c)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, httperror.GetStatusCode(err))
}

func TestSynthesize_UnknownMode(t *testing.T) {
	e := echo.New()
	projectID := uuid.New()
	a := approvedProjectFact(projectID, "a", time.Now().UTC())
	b := approvedProjectFact(projectID, "b", time.Now().UTC())
	h := newSynthesisHandler(newFakeFactRepo(a, b), &fakeSynthesizer{})

	c, _ := newRequestContext(e, http.MethodPost,
		"/api/v1/projects/"+projectID.String()+"/synthesize",
		selectionBody("haiku", "", a.ID, b.ID))
	c.SetParamNames("project_id")
	c.SetParamValues(projectID.String())

	err := h.Synthesize(c)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}
