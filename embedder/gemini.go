package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"
)

const (
	defaultBaseURL   = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel     = "gemini-embedding-001"
	defaultDimension = 768
	defaultBatchSize = 100

	maxRetries     = 3
	initialBackoff = time.Second
)

// EmbeddingRequest represents an embedContent API request
type EmbeddingRequest struct {
	Model                string       `json:"model"`
	Content              ContentInput `json:"content"`
	TaskType             string       `json:"task_type,omitempty"`
	OutputDimensionality int          `json:"output_dimensionality,omitempty"`
}

// ContentInput represents content for embedding
type ContentInput struct {
	Parts []PartInput `json:"parts"`
}

// PartInput represents a part of content
type PartInput struct {
	Text string `json:"text"`
}

// EmbeddingResponse represents an embedContent API response
type EmbeddingResponse struct {
	Embedding EmbeddingValues `json:"embedding"`
}

// EmbeddingValues contains the embedding values
type EmbeddingValues struct {
	Values []float64 `json:"values"`
}

// BatchEmbeddingRequest represents a batchEmbedContents API request
type BatchEmbeddingRequest struct {
	Requests []EmbeddingRequest `json:"requests"`
}

// BatchEmbeddingItem is the structure returned by the batch API
// (no nested "embedding" key)
type BatchEmbeddingItem struct {
	Values []float64 `json:"values"`
}

// BatchEmbeddingResponse represents a batchEmbedContents API response
type BatchEmbeddingResponse struct {
	Embeddings []BatchEmbeddingItem `json:"embeddings"`
}

// GeminiEmbedder calls the Gemini embedding API over HTTP. Passages use the
// RETRIEVAL_DOCUMENT task type, queries RETRIEVAL_QUERY; both are projected
// to the same output dimensionality and L2-normalized, so inner product on
// the results equals cosine similarity.
type GeminiEmbedder struct {
	apiKey    string
	model     string
	baseURL   string
	dimension int
	batchSize int
	client    *http.Client
}

// GeminiOption configures a GeminiEmbedder.
type GeminiOption func(*GeminiEmbedder)

// WithBaseURL overrides the API base URL (used in tests).
func WithBaseURL(url string) GeminiOption {
	return func(e *GeminiEmbedder) {
		e.baseURL = url
	}
}

// WithBatchSize sets the number of texts per batch request.
func WithBatchSize(size int) GeminiOption {
	return func(e *GeminiEmbedder) {
		if size > 0 {
			e.batchSize = size
		}
	}
}

// NewGemini creates a Gemini embedder.
func NewGemini(apiKey string, opts ...GeminiOption) *GeminiEmbedder {
	e := &GeminiEmbedder{
		apiKey:    apiKey,
		model:     defaultModel,
		baseURL:   defaultBaseURL,
		dimension: defaultDimension,
		batchSize: defaultBatchSize,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dimension returns the embedding dimension.
func (e *GeminiEmbedder) Dimension() int {
	return e.dimension
}

// ModelInfo returns the model identifier.
func (e *GeminiEmbedder) ModelInfo() string {
	return e.model
}

// Embed embeds passages in batches. Batching is internal: the output order
// matches the input order regardless of batch size.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

// EmbedQuery embeds a single search query.
func (e *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	reqBody := EmbeddingRequest{
		Model: "models/" + e.model,
		Content: ContentInput{
			Parts: []PartInput{{Text: text}},
		},
		TaskType:             "RETRIEVAL_QUERY",
		OutputDimensionality: e.dimension,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := e.baseURL + "/models/" + e.model + ":embedContent"
	body, err := e.post(ctx, url, jsonData)
	if err != nil {
		return nil, err
	}

	var apiResp EmbeddingResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrEmbeddingFailed, err)
	}
	if len(apiResp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: empty embedding returned", ErrEmbeddingFailed)
	}

	return normalize(apiResp.Embedding.Values), nil
}

// embedBatch embeds one batch of passages via batchEmbedContents.
func (e *GeminiEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	requests := make([]EmbeddingRequest, len(texts))
	for i, text := range texts {
		requests[i] = EmbeddingRequest{
			Model: "models/" + e.model,
			Content: ContentInput{
				Parts: []PartInput{{Text: text}},
			},
			TaskType:             "RETRIEVAL_DOCUMENT",
			OutputDimensionality: e.dimension,
		}
	}

	jsonData, err := json.Marshal(BatchEmbeddingRequest{Requests: requests})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := e.baseURL + "/models/" + e.model + ":batchEmbedContents"
	body, err := e.post(ctx, url, jsonData)
	if err != nil {
		return nil, err
	}

	var apiResp BatchEmbeddingResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrEmbeddingFailed, err)
	}
	if len(apiResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmbeddingFailed, len(apiResp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(apiResp.Embeddings))
	for i, item := range apiResp.Embeddings {
		if len(item.Values) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at position %d", ErrEmbeddingFailed, i)
		}
		vectors[i] = normalize(item.Values)
	}

	return vectors, nil
}

// post sends the request with retry and exponential backoff. 400 and 401
// responses are not retried.
func (e *GeminiEmbedder) post(ctx context.Context, url string, jsonData []byte) ([]byte, error) {
	backoff := initialBackoff
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", e.apiKey)

		resp, err := e.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt == maxRetries-1 {
				return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			var buf bytes.Buffer
			_, err := buf.ReadFrom(resp.Body)
			resp.Body.Close()
			if err != nil {
				if attempt == maxRetries-1 {
					return nil, fmt.Errorf("%w: failed to read response: %v", ErrEmbeddingFailed, err)
				}
				continue
			}
			return buf.Bytes(), nil
		}

		resp.Body.Close()

		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: API error: %d", ErrEmbeddingFailed, resp.StatusCode)
		}

		if attempt == maxRetries-1 {
			return nil, fmt.Errorf("%w: API error after %d attempts: %d", ErrEmbeddingFailed, maxRetries, resp.StatusCode)
		}
	}

	return nil, ErrEmbeddingFailed
}

// normalize converts to float32 and scales to unit length.
func normalize(values []float64) []float32 {
	norm := 0.0
	for _, v := range values {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, len(values))
	for i, v := range values {
		if norm > 0 {
			vec[i] = float32(v / norm)
		} else {
			vec[i] = float32(v)
		}
	}
	return vec
}
