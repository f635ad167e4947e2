package repository

import (
	"context"
	"errors"
	"fmt"

	"legalqa-backend/index"
	"legalqa-backend/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSnapshotNotFound is returned when no snapshot exists for a document.
var ErrSnapshotNotFound = errors.New("embedding snapshot not found")

// SnapshotRepository persists embedding snapshots: document id, ordered
// chunk texts with metadata, vector dimension and the vectors themselves.
type SnapshotRepository struct {
	db *pgxpool.Pool
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// EnsureSchema creates the snapshot tables if they do not exist.
func (r *SnapshotRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS embedding_snapshots (
			document_id TEXT PRIMARY KEY,
			model_info  TEXT NOT NULL,
			dimension   INT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS snapshot_chunks (
			document_id TEXT NOT NULL REFERENCES embedding_snapshots(document_id) ON DELETE CASCADE,
			chunk_index INT NOT NULL,
			chunk_text  TEXT NOT NULL,
			chunk_start INT NOT NULL,
			chunk_end   INT NOT NULL,
			level       TEXT NOT NULL,
			metadata    JSONB,
			embedding   FLOAT8[] NOT NULL,
			PRIMARY KEY (document_id, chunk_index)
		)`)
	if err != nil {
		return fmt.Errorf("failed to create snapshot schema: %w", err)
	}
	return nil
}

// Save stores a snapshot, replacing any prior snapshot for the document.
func (r *SnapshotRepository) Save(ctx context.Context, snap *models.EmbeddingSnapshot) error {
	if len(snap.Chunks) != len(snap.Vectors) {
		return fmt.Errorf("snapshot has %d chunks but %d vectors", len(snap.Chunks), len(snap.Vectors))
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `DELETE FROM embedding_snapshots WHERE document_id = $1`, snap.DocumentID)
	if err != nil {
		return fmt.Errorf("failed to clear prior snapshot: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO embedding_snapshots (document_id, model_info, dimension)
		VALUES ($1, $2, $3)`,
		snap.DocumentID, snap.ModelInfo, snap.Dimension,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	for i, chunk := range snap.Chunks {
		embedding := make([]float64, len(snap.Vectors[i]))
		for j, v := range snap.Vectors[i] {
			embedding[j] = float64(v)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO snapshot_chunks (
				document_id, chunk_index, chunk_text, chunk_start, chunk_end, level, metadata, embedding
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			snap.DocumentID, chunk.Index, chunk.Text, chunk.Start, chunk.End, string(chunk.Level), chunk.Metadata, embedding,
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}

	return tx.Commit(ctx)
}

// Load retrieves the snapshot for a document. Vectors whose dimension does
// not match the stored dimension are rejected rather than loaded.
func (r *SnapshotRepository) Load(ctx context.Context, documentID string) (*models.EmbeddingSnapshot, error) {
	snap := &models.EmbeddingSnapshot{DocumentID: documentID}

	err := r.db.QueryRow(ctx, `
		SELECT model_info, dimension
		FROM embedding_snapshots
		WHERE document_id = $1`,
		documentID,
	).Scan(&snap.ModelInfo, &snap.Dimension)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT chunk_index, chunk_text, chunk_start, chunk_end, level, metadata, embedding
		FROM snapshot_chunks
		WHERE document_id = $1
		ORDER BY chunk_index`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var chunk models.Chunk
		var level string
		var embedding []float64
		err := rows.Scan(&chunk.Index, &chunk.Text, &chunk.Start, &chunk.End, &level, &chunk.Metadata, &embedding)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot chunk: %w", err)
		}
		chunk.Level = models.ChunkLevel(level)

		if len(embedding) != snap.Dimension {
			return nil, fmt.Errorf("%w: chunk %d has dimension %d, snapshot declares %d",
				index.ErrDimensionMismatch, chunk.Index, len(embedding), snap.Dimension)
		}

		vector := make([]float32, len(embedding))
		for j, v := range embedding {
			vector[j] = float32(v)
		}

		snap.Chunks = append(snap.Chunks, chunk)
		snap.Vectors = append(snap.Vectors, vector)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot chunks: %w", err)
	}

	return snap, nil
}
