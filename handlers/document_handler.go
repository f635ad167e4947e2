package handlers

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"legalqa-backend/chunker"
	"legalqa-backend/embedder"
	"legalqa-backend/models"
	"legalqa-backend/parser"
	"legalqa-backend/repository"
	"legalqa-backend/service"
	"legalqa-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DocumentHandler handles HTTP requests for document ingestion
type DocumentHandler struct {
	retrieval        *service.RetrievalService
	parser           parser.Parser
	storage          storage.Storage
	fileRepo         *repository.FileRepository // optional, nil without a database
	regulationPath   string
	maxFileSize      int64
	allowedMimeTypes map[string]bool
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(retrieval *service.RetrievalService, p parser.Parser, store storage.Storage, fileRepo *repository.FileRepository, regulationPath string) *DocumentHandler {
	return &DocumentHandler{
		retrieval:      retrieval,
		parser:         p,
		storage:        store,
		fileRepo:       fileRepo,
		regulationPath: regulationPath,
		maxFileSize:    10 * 1024 * 1024, // 10MB
		allowedMimeTypes: map[string]bool{
			"text/plain":    true,
			"text/markdown": true,
		},
	}
}

// LoadRegulation handles POST /api/documents/load
// It ingests the pre-configured regulation file as the active document.
func (h *DocumentHandler) LoadRegulation(c *gin.Context) {
	file, err := os.Open(h.regulationPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "REGULATION_UNAVAILABLE",
				"message": "Failed to open regulation file: " + err.Error(),
			},
		})
		return
	}
	defer file.Close()

	docID := filepath.Base(h.regulationPath)
	sections, err := h.parser.Parse(c.Request.Context(), docID, file)
	if err != nil {
		respondIngestError(c, err)
		return
	}

	chunks, err := h.retrieval.Ingest(c.Request.Context(), docID, sections)
	if err != nil {
		respondIngestError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"document": docID,
		"chunks":   chunks,
	})
}

// UploadDocument handles POST /api/documents/upload
// The file is persisted to storage, parsed, and ingested as the active
// document. A failed ingestion leaves the previous document serving.
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_FILE",
				"message": "File is required",
			},
		})
		return
	}

	if fileHeader.Size > h.maxFileSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FILE_TOO_LARGE",
				"message": "File exceeds the 10MB limit",
			},
		})
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType != "" && !h.allowedMimeTypes[mimeType] {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNSUPPORTED_TYPE",
				"message": "Unsupported content type: " + mimeType,
			},
		})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "READ_FAILED",
				"message": err.Error(),
			},
		})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "READ_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	// Parse before persisting so unsupported formats fail without side effects
	sections, err := h.parser.Parse(c.Request.Context(), fileHeader.Filename, bytes.NewReader(data))
	if err != nil {
		respondIngestError(c, err)
		return
	}

	fileID := uuid.New()
	storagePath, err := h.storage.Upload(c.Request.Context(), fileID, fileHeader.Filename, bytes.NewReader(data))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "STORAGE_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	if h.fileRepo != nil {
		record := &models.UploadedFile{
			ID:          fileID,
			Filename:    fileHeader.Filename,
			MimeType:    mimeType,
			Size:        fileHeader.Size,
			StoragePath: storagePath,
			CreatedAt:   time.Now(),
		}
		if err := h.fileRepo.Create(c.Request.Context(), record); err != nil {
			log.Printf("Warning: Failed to record uploaded file: %v", err)
		}
	}

	chunks, err := h.retrieval.Ingest(c.Request.Context(), fileHeader.Filename, sections)
	if err != nil {
		respondIngestError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"document": fileHeader.Filename,
		"chunks":   chunks,
	})
}

// GetSession handles GET /api/session
func (h *DocumentHandler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"session": h.retrieval.Session(),
	})
}

// respondIngestError maps ingestion failures to HTTP responses.
func respondIngestError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chunker.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_INPUT",
				"message": "Document contains no usable text",
			},
		})
	case errors.Is(err, parser.ErrUnsupportedFormat):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNSUPPORTED_FORMAT",
				"message": err.Error(),
			},
		})
	case errors.Is(err, service.ErrIngestionInProgress):
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INGESTION_IN_PROGRESS",
				"message": "Another document is currently being ingested",
			},
		})
	case errors.Is(err, service.ErrIngestionTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INGESTION_TIMEOUT",
				"message": "Document ingestion exceeded the time limit",
			},
		})
	case errors.Is(err, embedder.ErrEmbeddingFailed):
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "EMBEDDING_FAILED",
				"message": err.Error(),
			},
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INGESTION_FAILED",
				"message": err.Error(),
			},
		})
	}
}
