package main

import (
	"context"
	"log"
	"os"
	"time"

	"legalqa-backend/chunker"
	"legalqa-backend/embedder"
	"legalqa-backend/handlers"
	"legalqa-backend/parser"
	"legalqa-backend/repository"
	"legalqa-backend/service"
	"legalqa-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/generative-ai-go/genai"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

const defaultRegulationPath = "./example_data/gdpr.txt"

func main() {
	// Load .env file from project root (relative to cmd/server/)
	// Try current directory first, then project root
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../.env"); err != nil {
			log.Printf("Warning: No .env file found, using environment variables")
		}
	}

	// Validate Gemini credentials up front
	geminiClient, err := initGemini()
	if err != nil {
		log.Fatal("Failed to initialize Gemini:", err)
	}
	defer geminiClient.Close()

	// Initialize storage for uploaded documents
	fileStorage, err := storage.NewStorageFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	log.Println("Storage initialized")

	apiKey := os.Getenv("GEMINI_API_KEY")

	// Initialize services
	retrievalService := service.NewRetrievalService(
		service.RetrievalWithChunker(chunker.New()),
		service.RetrievalWithEmbedder(embedder.NewGemini(apiKey)),
		service.RetrievalWithIngestionTimeout(ingestionTimeout()),
	)
	answerService := service.NewAnswerService(apiKey)

	// Optional Postgres: uploaded file records and precomputed snapshots
	var fileRepo *repository.FileRepository
	if connString := os.Getenv("DATABASE_URL"); connString != "" {
		db, err := initPostgres(connString)
		if err != nil {
			log.Fatal("Failed to initialize Postgres:", err)
		}
		defer db.Close()

		fileRepo = repository.NewFileRepository(db)
		if err := fileRepo.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("Failed to create file schema: %v", err)
		}

		preloadSnapshot(db, retrievalService)
	}

	regulationPath := os.Getenv("REGULATION_PATH")
	if regulationPath == "" {
		regulationPath = defaultRegulationPath
	}

	// Initialize handlers
	documentHandler := handlers.NewDocumentHandler(retrievalService, parser.NewPlainText(), fileStorage, fileRepo, regulationPath)
	askHandler := handlers.NewAskHandler(retrievalService, answerService)

	// Setup Gin router
	r := gin.Default()

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"session": retrievalService.Session(),
		})
	})

	// API routes
	api := r.Group("/api")
	{
		api.POST("/documents/load", documentHandler.LoadRegulation)
		api.POST("/documents/upload", documentHandler.UploadDocument)
		api.GET("/session", documentHandler.GetSession)
		api.POST("/ask", askHandler.Ask)
	}

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

func initPostgres(connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, err
	}

	log.Println("Postgres connection established")
	return pool, nil
}

func initGemini() (*genai.Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Println("Warning: GEMINI_API_KEY not set")
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	log.Println("Gemini client initialized")
	return client, nil
}

// preloadSnapshot restores the precomputed regulation snapshot, if one
// exists, so the server starts with a Ready session and no embedding pass.
func preloadSnapshot(db *pgxpool.Pool, retrievalService *service.RetrievalService) {
	docID := os.Getenv("SNAPSHOT_DOCUMENT")
	if docID == "" {
		return
	}

	snapshotRepo := repository.NewSnapshotRepository(db)
	snap, err := snapshotRepo.Load(context.Background(), docID)
	if err != nil {
		log.Printf("Warning: Failed to load snapshot for %s: %v", docID, err)
		return
	}

	chunks, err := retrievalService.IngestSnapshot(snap)
	if err != nil {
		log.Printf("Warning: Failed to install snapshot for %s: %v", docID, err)
		return
	}

	log.Printf("Loaded precomputed snapshot for %s (%d chunks)", docID, chunks)
}

func ingestionTimeout() time.Duration {
	raw := os.Getenv("INGESTION_TIMEOUT")
	if raw == "" {
		return service.DefaultIngestionTimeout
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Warning: Invalid INGESTION_TIMEOUT %q, using default", raw)
		return service.DefaultIngestionTimeout
	}
	return d
}
