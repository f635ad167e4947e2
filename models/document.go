package models

// Section is one ordered unit of parsed document text, as produced by the
// document parser (page, heading or paragraph granularity depends on format)
type Section struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Document represents a parsed source document. Immutable once parsed.
type Document struct {
	ID       string    `json:"id"`
	Sections []Section `json:"sections"`
}

// Chunk is the unit of retrieval: a bounded passage of document text with
// a stable position and section metadata
type Chunk struct {
	Index    int                    `json:"index"` // position in ingestion order, join key to vectors
	Text     string                 `json:"text"`
	Start    int                    `json:"start"` // character span within the source section
	End      int                    `json:"end"`
	Level    ChunkLevel             `json:"level"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ChunkLevel indicates the structural depth a chunk was cut at
type ChunkLevel string

const (
	LevelArticle   ChunkLevel = "article"   // whole article or clause
	LevelChapter   ChunkLevel = "chapter"   // chapter without article subdivisions
	LevelWindow    ChunkLevel = "window"    // overlapping window within a unit
	LevelParagraph ChunkLevel = "paragraph" // blank-line fallback split
)

// ScoredChunk is a chunk plus its normalized relevance score for one query.
// Never persisted; only appears in query responses.
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"` // 0-100
}
