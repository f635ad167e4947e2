package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"legalqa-backend/chunker"
	"legalqa-backend/embedder"
	"legalqa-backend/index"
	"legalqa-backend/models"
)

var (
	ErrNoDocumentLoaded    = errors.New("no document loaded")
	ErrIngestionInProgress = errors.New("document ingestion in progress")
	ErrIngestionTimeout    = errors.New("document ingestion timed out")
)

// DefaultTopK is the number of chunks retrieved when the caller does not
// specify one.
const DefaultTopK = 3

// DefaultIngestionTimeout bounds a single ingestion run. Embedding a large
// document is the slow part; past this bound the ingestion fails rather
// than holding the session in Ingesting.
const DefaultIngestionTimeout = 5 * time.Minute

// SessionState describes the document session lifecycle.
type SessionState string

const (
	StateEmpty     SessionState = "empty"
	StateIngesting SessionState = "ingesting"
	StateReady     SessionState = "ready"
)

// DocumentSession binds one document's chunks and vector index. It is
// immutable once constructed: a new document load builds a fresh session
// and swaps the reference, so in-flight queries finish against a
// consistent snapshot.
type DocumentSession struct {
	Document models.Document
	Chunks   []models.Chunk
	Index    *index.VectorIndex
}

// SessionInfo is a point-in-time view of the session for status endpoints.
type SessionInfo struct {
	State      SessionState `json:"state"`
	DocumentID string       `json:"document,omitempty"`
	Chunks     int          `json:"chunks"`
}

// RetrievalService orchestrates chunker, embedder and vector index around a
// single active document session. Queries during a rebuild are served by
// the previous Ready session; with no prior session they fail fast with
// ErrIngestionInProgress rather than blocking.
type RetrievalService struct {
	chunker          *chunker.Chunker
	embedder         embedder.Embedder
	ingestionTimeout time.Duration

	current   atomic.Pointer[DocumentSession]
	ingesting atomic.Bool
}

// RetrievalServiceOption is a functional option for RetrievalService
type RetrievalServiceOption func(*RetrievalService)

// RetrievalWithChunker sets the chunker
func RetrievalWithChunker(c *chunker.Chunker) RetrievalServiceOption {
	return func(s *RetrievalService) {
		s.chunker = c
	}
}

// RetrievalWithEmbedder sets the embedding backend
func RetrievalWithEmbedder(e embedder.Embedder) RetrievalServiceOption {
	return func(s *RetrievalService) {
		s.embedder = e
	}
}

// RetrievalWithIngestionTimeout sets the per-ingestion time bound
func RetrievalWithIngestionTimeout(d time.Duration) RetrievalServiceOption {
	return func(s *RetrievalService) {
		if d > 0 {
			s.ingestionTimeout = d
		}
	}
}

// NewRetrievalService creates a new retrieval service
func NewRetrievalService(opts ...RetrievalServiceOption) *RetrievalService {
	s := &RetrievalService{
		ingestionTimeout: DefaultIngestionTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.chunker == nil {
		s.chunker = chunker.New()
	}
	return s
}

// Ingest chunks, embeds and indexes the parsed sections, then atomically
// replaces the active session. All-or-nothing: any failure leaves the
// prior Ready session serving queries unchanged.
func (s *RetrievalService) Ingest(ctx context.Context, docID string, sections []models.Section) (int, error) {
	if s.embedder == nil {
		return 0, errors.New("embedder not set")
	}
	if !s.ingesting.CompareAndSwap(false, true) {
		return 0, ErrIngestionInProgress
	}
	defer s.ingesting.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.ingestionTimeout)
	defer cancel()

	chunks, err := s.chunker.Chunk(sections)
	if err != nil {
		return 0, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: %v", ErrIngestionTimeout, err)
		}
		return 0, err
	}

	idx := index.New()
	if err := idx.Build(vectors); err != nil {
		return 0, err
	}

	s.current.Store(&DocumentSession{
		Document: models.Document{ID: docID, Sections: sections},
		Chunks:   chunks,
		Index:    idx,
	})

	return len(chunks), nil
}

// IngestSnapshot installs a precomputed embedding snapshot as the active
// session, skipping the chunking and embedding passes. Snapshots from a
// different model or with inconsistent dimensions are rejected.
func (s *RetrievalService) IngestSnapshot(snap *models.EmbeddingSnapshot) (int, error) {
	if !s.ingesting.CompareAndSwap(false, true) {
		return 0, ErrIngestionInProgress
	}
	defer s.ingesting.Store(false)

	if len(snap.Chunks) != len(snap.Vectors) {
		return 0, fmt.Errorf("snapshot has %d chunks but %d vectors", len(snap.Chunks), len(snap.Vectors))
	}
	if s.embedder != nil && snap.ModelInfo != s.embedder.ModelInfo() {
		return 0, fmt.Errorf("snapshot was computed with model %q, current model is %q", snap.ModelInfo, s.embedder.ModelInfo())
	}
	for i, v := range snap.Vectors {
		if len(v) != snap.Dimension {
			return 0, fmt.Errorf("%w: snapshot vector %d has dimension %d, expected %d", index.ErrDimensionMismatch, i, len(v), snap.Dimension)
		}
	}

	idx := index.New()
	if err := idx.Build(snap.Vectors); err != nil {
		return 0, err
	}

	s.current.Store(&DocumentSession{
		Document: models.Document{ID: snap.DocumentID},
		Chunks:   snap.Chunks,
		Index:    idx,
	})

	return len(snap.Chunks), nil
}

// Retrieve embeds the query, searches the active session's index and maps
// the hits back to chunks with a 0-100 relevance score. Raw cosine
// similarity is rescaled as max(0, raw)*100, which preserves rank order.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, topK int) ([]models.ScoredChunk, error) {
	if s.embedder == nil {
		return nil, errors.New("embedder not set")
	}

	sess := s.current.Load()
	if sess == nil {
		if s.ingesting.Load() {
			return nil, ErrIngestionInProgress
		}
		return nil, ErrNoDocumentLoaded
	}

	if len(sess.Chunks) == 0 {
		return []models.ScoredChunk{}, nil
	}

	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > len(sess.Chunks) {
		topK = len(sess.Chunks)
	}

	queryVector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := sess.Index.Search(queryVector, topK)
	if err != nil {
		return nil, err
	}

	scored := make([]models.ScoredChunk, len(hits))
	for i, hit := range hits {
		scored[i] = models.ScoredChunk{
			Chunk: sess.Chunks[hit.ChunkIndex],
			Score: relevanceScore(hit.Score),
		}
	}

	return scored, nil
}

// Session reports the current lifecycle state.
func (s *RetrievalService) Session() SessionInfo {
	sess := s.current.Load()
	if s.ingesting.Load() {
		info := SessionInfo{State: StateIngesting}
		if sess != nil {
			// Prior session keeps serving while the rebuild runs
			info.DocumentID = sess.Document.ID
			info.Chunks = len(sess.Chunks)
		}
		return info
	}
	if sess == nil {
		return SessionInfo{State: StateEmpty}
	}
	return SessionInfo{
		State:      StateReady,
		DocumentID: sess.Document.ID,
		Chunks:     len(sess.Chunks),
	}
}

// relevanceScore maps raw cosine similarity in [-1, 1] to a display score
// in [0, 100]. Negative similarities clamp to 0.
func relevanceScore(raw float32) float64 {
	score := float64(raw) * 100
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
