// Package synthesis builds generation requests from resolved fact sets and
// dispatches them to the text-generation collaborator
package synthesis

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/trust"
)

// BuildRequest assembles the payload for the text-generation collaborator.
// Fact order is preserved exactly as resolved; the returned QualityStats is
// the one snapshot ever taken for the eventual output. The request is not
// mutated after this point.
func BuildRequest(facts []models.Fact, mode models.SynthesisMode) (*models.SynthesisRequest, models.QualityStats, error) {
	if !mode.Valid() {
		return nil, models.QualityStats{}, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown synthesis mode %q", mode)
	}
	if len(facts) < trust.MinSynthesisFacts {
		return nil, models.QualityStats{}, httperror.NewHTTPErrorf(http.StatusUnprocessableEntity,
			"need at least %d facts to synthesize, have %d", trust.MinSynthesisFacts, len(facts))
	}

	payload := make([]models.SynthesisFact, 0, len(facts))
	for _, f := range facts {
		payload = append(payload, models.SynthesisFact{
			ID:      f.ID,
			Text:    f.Text,
			Title:   strOrEmpty(f.SourceTitle),
			URL:     strOrEmpty(f.SourceURL),
			Section: strOrEmpty(f.SectionContext),
		})
	}

	req := &models.SynthesisRequest{
		Facts: payload,
		Mode:  mode,
	}
	return req, models.ComputeQualityStats(facts), nil
}

// SourceCount counts the distinct non-empty source URLs in a request
func SourceCount(req *models.SynthesisRequest) int {
	urls := make(map[string]bool)
	for _, f := range req.Facts {
		if f.URL != "" {
			urls[f.URL] = true
		}
	}
	return len(urls)
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
