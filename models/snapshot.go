package models

// EmbeddingSnapshot is the serialized form of an ingested document:
// ordered chunks plus their vectors, one vector per chunk at the same
// position. Produced by cmd/precompute-embeddings, consumed at startup to
// skip the embedding pass for the bundled regulation text.
type EmbeddingSnapshot struct {
	DocumentID string      `json:"document_id"`
	ModelInfo  string      `json:"model_info"`
	Dimension  int         `json:"dimension"`
	Chunks     []Chunk     `json:"chunks"`
	Vectors    [][]float32 `json:"vectors"`
}
