package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"legalqa-backend/chunker"
	"legalqa-backend/models"
	"legalqa-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder keys unit vectors off keywords so retrieval order is fixed.
type stubEmbedder struct{}

func (stubEmbedder) vector(text string) []float32 {
	if strings.Contains(text, "consent") {
		return []float32{1, 0}
	}
	return []float32{0, 1}
}

func (e stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = e.vector(text)
	}
	return vectors, nil
}

func (e stubEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return e.vector(query), nil
}

func (stubEmbedder) Dimension() int { return 2 }

func (stubEmbedder) ModelInfo() string { return "stub-embedder" }

type stubGenerator struct {
	answer string
	err    error
}

func (g stubGenerator) Generate(ctx context.Context, question string, chunks []models.ScoredChunk) (string, error) {
	return g.answer, g.err
}

func newRetrievalService(t *testing.T, seed bool) *service.RetrievalService {
	t.Helper()

	s := service.NewRetrievalService(
		service.RetrievalWithChunker(chunker.New()),
		service.RetrievalWithEmbedder(stubEmbedder{}),
	)
	if seed {
		body := strings.Repeat("Processing is lawful only where the data subject has given consent. ", 3)
		_, err := s.Ingest(context.Background(), "gdpr.txt", []models.Section{
			{Text: "Article 6\n" + body},
		})
		require.NoError(t, err)
	}
	return s
}

func askRouter(t *testing.T, seed bool, gen service.Generator) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewAskHandler(newRetrievalService(t, seed), gen)
	r.POST("/api/ask", h.Ask)
	return r
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestAskSuccess(t *testing.T) {
	r := askRouter(t, true, stubGenerator{answer: "Consent makes processing lawful."})

	w := postJSON(r, "/api/ask", `{"question":"when is consent required?"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                 `json:"success"`
		Answer  string               `json:"answer"`
		Chunks  []models.ScoredChunk `json:"chunks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.True(t, resp.Success)
	assert.Equal(t, "Consent makes processing lawful.", resp.Answer)
	require.NotEmpty(t, resp.Chunks)
	assert.Contains(t, resp.Chunks[0].Text, "consent")
}

func TestAskMissingQuestion(t *testing.T) {
	r := askRouter(t, true, stubGenerator{answer: "unused"})

	w := postJSON(r, "/api/ask", `{"top_k":3}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_REQUEST")
}

func TestAskNoDocumentLoaded(t *testing.T) {
	r := askRouter(t, false, stubGenerator{answer: "unused"})

	w := postJSON(r, "/api/ask", `{"question":"what is consent?"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "NO_DOCUMENT_LOADED")
}

func TestAskGenerationFailedStillReturnsChunks(t *testing.T) {
	r := askRouter(t, true, stubGenerator{err: errors.New("model unavailable")})

	w := postJSON(r, "/api/ask", `{"question":"what is consent?"}`)
	require.Equal(t, http.StatusBadGateway, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
		Chunks []models.ScoredChunk `json:"chunks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.False(t, resp.Success)
	assert.Equal(t, "GENERATION_FAILED", resp.Error.Code)
	assert.NotEmpty(t, resp.Chunks)
}
