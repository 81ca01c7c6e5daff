package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"

	"github.com/Ramsey-B/fern/pkg/models"
)

// maxResponseSize bounds generation response bodies (10MB)
const maxResponseSize = 10 * 1024 * 1024

// Generator produces synthesis text from a built request
type Generator interface {
	Generate(ctx context.Context, req *models.SynthesisRequest) (string, error)
}

// HTTPGeneratorConfig holds generation service configuration
type HTTPGeneratorConfig struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPGenerator calls the text-generation collaborator over HTTP. One
// attempt per dispatch; generation is expensive and the caller surfaces
// failures instead of retrying.
type HTTPGenerator struct {
	client  *http.Client
	baseURL string
	logger  ectologger.Logger
}

// NewHTTPGenerator creates a generator client
func NewHTTPGenerator(cfg HTTPGeneratorConfig, logger ectologger.Logger) *HTTPGenerator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPGenerator{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// generateResponse tolerates the collaborator returning synthesis as a
// string or as a list of sections
type generateResponse struct {
	Synthesis json.RawMessage `json:"synthesis"`
}

// Generate posts the request and returns the synthesis text. An empty
// synthesis from the collaborator is a gateway failure, not a success
// with empty content.
func (g *HTTPGenerator) Generate(ctx context.Context, req *models.SynthesisRequest) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "synthesis.HTTPGenerator.Generate")
	defer span.End()

	body, err := json.Marshal(req)
	if err != nil {
		return "", httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode synthesis request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return "", httperror.NewHTTPError(http.StatusInternalServerError, "failed to build synthesis request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		g.logger.WithContext(ctx).WithError(err).Error("Text generation request failed")
		return "", httperror.NewHTTPError(http.StatusBadGateway, "text generation request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", httperror.NewHTTPError(http.StatusBadGateway, "failed to read generation response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.logger.WithContext(ctx).WithFields(map[string]any{
			"status": resp.StatusCode,
		}).Error("Text generation returned an error status")
		return "", httperror.NewHTTPErrorf(http.StatusBadGateway, "text generation failed with status %d", resp.StatusCode)
	}

	var parsed generateResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", httperror.NewHTTPError(http.StatusBadGateway, "invalid generation response")
	}

	content, err := flattenSynthesis(parsed.Synthesis)
	if err != nil {
		return "", httperror.NewHTTPError(http.StatusBadGateway, "invalid generation response")
	}

	if strings.TrimSpace(content) == "" {
		return "", ErrEmptySynthesis
	}

	return content, nil
}

// ErrEmptySynthesis is returned when the collaborator produced no usable
// text; callers translate it into a 502 with code EMPTY_SYNTHESIS
var ErrEmptySynthesis = httperror.NewHTTPError(http.StatusBadGateway, "LLM returned empty synthesis")

func flattenSynthesis(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var sections []string
	if err := json.Unmarshal(raw, &sections); err == nil {
		nonEmpty := make([]string, 0, len(sections))
		for _, sec := range sections {
			if sec != "" {
				nonEmpty = append(nonEmpty, sec)
			}
		}
		return strings.Join(nonEmpty, "\n\n"), nil
	}

	return "", fmt.Errorf("synthesis is neither string nor list")
}
