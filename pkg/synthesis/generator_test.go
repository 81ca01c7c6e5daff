package synthesis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func testRequest() *models.SynthesisRequest {
	return &models.SynthesisRequest{
		Facts: []models.SynthesisFact{
			{ID: uuid.New(), Text: "bees dance to communicate"},
			{ID: uuid.New(), Text: "the dance encodes direction"},
		},
		Mode: models.ModeParagraph,
	}
}

func newGenerator(url string) *HTTPGenerator {
	return NewHTTPGenerator(HTTPGeneratorConfig{BaseURL: url}, testLogger())
}

func TestGenerate_StringSynthesis(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/synthesize", r.URL.Path)

		var req models.SynthesisRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Facts, 2)

		json.NewEncoder(w).Encode(map[string]any{"synthesis": "Bees communicate through dance."})
	}))
	defer srv.Close()

	content, err := newGenerator(srv.URL).Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Bees communicate through dance.", content)
}

func TestGenerate_SectionListSynthesis(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"synthesis": []string{"Part one.", "", "Part two."}})
	}))
	defer srv.Close()

	content, err := newGenerator(srv.URL).Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Part one.\n\nPart two.", content)
}

func TestGenerate_EmptySynthesisIsGatewayError(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty string", `{"synthesis": ""}`},
		{"whitespace", `{"synthesis": "   \n"}`},
		{"missing field", `{}`},
		{"empty list", `{"synthesis": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newGenerator(srv.URL).Generate(context.Background(), testRequest())
			require.Error(t, err)
			assert.Equal(t, http.StatusBadGateway, httperror.GetStatusCode(err))
		})
	}
}

func TestGenerate_UpstreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newGenerator(srv.URL).Generate(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, httperror.GetStatusCode(err))
}

func TestGenerate_SingleAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newGenerator(srv.URL).Generate(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "generation is never retried")
}
