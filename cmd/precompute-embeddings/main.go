package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"

	"legalqa-backend/chunker"
	"legalqa-backend/embedder"
	"legalqa-backend/models"
	"legalqa-backend/parser"
	"legalqa-backend/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

const defaultRegulationPath = "./example_data/gdpr.txt"

// Precomputes chunk embeddings for the bundled regulation text and stores
// them as a snapshot, so the server can start with a Ready session instead
// of re-embedding on every boot.
func main() {
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../.env"); err != nil {
			log.Printf("Warning: No .env file found, using environment variables")
		}
	}

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required")
	}

	regulationPath := os.Getenv("REGULATION_PATH")
	if regulationPath == "" {
		regulationPath = defaultRegulationPath
	}

	file, err := os.Open(regulationPath)
	if err != nil {
		log.Fatalf("Failed to open regulation file: %v", err)
	}
	defer file.Close()

	ctx := context.Background()
	docID := filepath.Base(regulationPath)

	sections, err := parser.NewPlainText().Parse(ctx, docID, file)
	if err != nil {
		log.Fatalf("Failed to parse document: %v", err)
	}
	log.Printf("Parsed %d sections from %s", len(sections), regulationPath)

	chunks, err := chunker.New().Chunk(sections)
	if err != nil {
		log.Fatalf("Failed to chunk document: %v", err)
	}
	log.Printf("Created %d chunks", len(chunks))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	gemini := embedder.NewGemini(apiKey)

	embedCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	start := time.Now()
	vectors, err := gemini.Embed(embedCtx, texts)
	if err != nil {
		log.Fatalf("Failed to generate embeddings: %v", err)
	}
	log.Printf("Generated %d embeddings in %s", len(vectors), time.Since(start).Round(time.Second))

	snap := &models.EmbeddingSnapshot{
		DocumentID: docID,
		ModelInfo:  gemini.ModelInfo(),
		Dimension:  gemini.Dimension(),
		Chunks:     chunks,
		Vectors:    vectors,
	}

	stored := false

	if connString := os.Getenv("DATABASE_URL"); connString != "" {
		pool, err := pgxpool.New(ctx, connString)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pool.Close()

		repo := repository.NewSnapshotRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to create snapshot schema: %v", err)
		}
		if err := repo.Save(ctx, snap); err != nil {
			log.Fatalf("Failed to save snapshot: %v", err)
		}

		log.Printf("Saved snapshot for %s to database", docID)
		stored = true
	}

	if outPath := os.Getenv("SNAPSHOT_PATH"); outPath != "" {
		if err := writeSnapshotFile(outPath, snap); err != nil {
			log.Fatalf("Failed to write snapshot file: %v", err)
		}

		log.Printf("Wrote snapshot for %s to %s", docID, outPath)
		stored = true
	}

	if !stored {
		log.Fatal("Set DATABASE_URL and/or SNAPSHOT_PATH to store the snapshot")
	}
}

func writeSnapshotFile(path string, snap *models.EmbeddingSnapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewEncoder(file).Encode(snap)
}
