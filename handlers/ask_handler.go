package handlers

import (
	"errors"
	"net/http"

	"legalqa-backend/embedder"
	"legalqa-backend/service"

	"github.com/gin-gonic/gin"
)

// AskHandler handles HTTP requests for document questions
type AskHandler struct {
	retrieval *service.RetrievalService
	generator service.Generator
}

// NewAskHandler creates a new ask handler
func NewAskHandler(retrieval *service.RetrievalService, generator service.Generator) *AskHandler {
	return &AskHandler{
		retrieval: retrieval,
		generator: generator,
	}
}

// AskRequest represents the request body for asking a question
type AskRequest struct {
	Question string `json:"question" binding:"required"`
	TopK     int    `json:"top_k"`
}

// Ask handles POST /api/ask
// The retrieved chunks are returned alongside the generated answer; if
// generation fails they are still delivered so the caller can show sources.
func (h *AskHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": err.Error(),
			},
		})
		return
	}

	chunks, err := h.retrieval.Retrieve(c.Request.Context(), req.Question, req.TopK)
	if err != nil {
		respondRetrieveError(c, err)
		return
	}

	answer, err := h.generator.Generate(c.Request.Context(), req.Question, chunks)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "GENERATION_FAILED",
				"message": err.Error(),
			},
			"chunks": chunks,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"answer":  answer,
		"chunks":  chunks,
	})
}

// respondRetrieveError maps query failures to HTTP responses.
func respondRetrieveError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNoDocumentLoaded):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "NO_DOCUMENT_LOADED",
				"message": "No document loaded",
			},
		})
	case errors.Is(err, service.ErrIngestionInProgress):
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INGESTION_IN_PROGRESS",
				"message": "Document ingestion in progress, retry shortly",
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
				"code":    "QUERY_FAILED",
				"message": err.Error(),
			},
		})
	}
}
