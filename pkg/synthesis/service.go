package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
)

// OutputStore persists synthesis outputs
type OutputStore interface {
	Create(ctx context.Context, out *models.Output) (*models.Output, error)
}

// Service runs the synthesis pipeline tail: build the request, call the
// generator once, persist the output
type Service struct {
	generator Generator
	outputs   OutputStore
	emitter   *events.Emitter
	logger    ectologger.Logger
}

// NewService creates a synthesis service. emitter may be nil when event
// emission is disabled.
func NewService(generator Generator, outputs OutputStore, emitter *events.Emitter, logger ectologger.Logger) *Service {
	return &Service{
		generator: generator,
		outputs:   outputs,
		emitter:   emitter,
		logger:    logger,
	}
}

// Dispatch generates a synthesis from the resolved fact set and persists
// it. The fact order given here is the order the generator sees. Quality
// stats are computed here, once, and stored with the output; they are
// never recomputed later.
func (s *Service) Dispatch(ctx context.Context, tenantID string, projectID uuid.UUID, facts []models.Fact, mode models.SynthesisMode) (*models.Output, error) {
	ctx, span := tracing.StartSpan(ctx, "synthesis.Service.Dispatch")
	defer span.End()

	req, stats, err := BuildRequest(facts, mode)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	content, err := s.generator.Generate(ctx, req)
	metrics.SynthesisDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SynthesisRequestsTotal.WithLabelValues(string(mode), "failed").Inc()
		return nil, err
	}

	factIDs := make([]uuid.UUID, 0, len(req.Facts))
	for _, f := range req.Facts {
		factIDs = append(factIDs, f.ID)
	}
	factIDsJSON, err := json.Marshal(factIDs)
	if err != nil {
		return nil, err
	}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return nil, err
	}

	output := &models.Output{
		TenantID:     tenantID,
		ProjectID:    projectID,
		Title:        outputTitle(mode, time.Now().UTC()),
		Content:      content,
		OutputType:   "synthesis",
		Mode:         string(mode),
		FactIDs:      factIDsJSON,
		SourceCount:  SourceCount(req),
		QualityStats: statsJSON,
	}

	created, err := s.outputs.Create(ctx, output)
	if err != nil {
		metrics.SynthesisRequestsTotal.WithLabelValues(string(mode), "failed").Inc()
		return nil, err
	}

	metrics.SynthesisRequestsTotal.WithLabelValues(string(mode), "completed").Inc()

	if s.emitter != nil {
		if err := s.emitter.EmitOutputCreated(ctx, created, created.SourceCount); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Failed to emit output created event")
		}
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"output_id":    created.ID.String(),
		"project_id":   projectID.String(),
		"mode":         string(mode),
		"fact_count":   len(req.Facts),
		"source_count": output.SourceCount,
	}).Info("Synthesis output created")

	return created, nil
}

func outputTitle(mode models.SynthesisMode, now time.Time) string {
	titles := map[models.SynthesisMode]string{
		models.ModeParagraph:     "Synthesis",
		models.ModeResearchBrief: "Research Brief",
		models.ModeScriptOutline: "Script Outline",
		models.ModeSplit:         "Split Synthesis",
	}
	title, ok := titles[mode]
	if !ok {
		title = "Output"
	}
	return fmt.Sprintf("%s - %s", title, now.Format("Jan 02, 2006 at 03:04 PM"))
}
